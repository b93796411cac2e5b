// internal/workers/analysis/synthesize-answer/models.go
package synthesizeanswer

import (
	"encoding/json"

	"analyst-workers/internal/analysis/grounding"
)

// Input collects what the earlier pipeline steps left in the process
// variables. Result holds the engine output of whichever branch ran; its
// shape follows Mode.
type Input struct {
	SessionID  string              `json:"sessionId"`
	UserID     string              `json:"userId"`
	Question   string              `json:"question"`
	Mode       string              `json:"mode"`
	Confidence float64             `json:"confidence"`
	Engine     string              `json:"engine,omitempty"`
	Result     json.RawMessage     `json:"result,omitempty"`
	Sources    []string            `json:"sources,omitempty"`
	Passages   []grounding.Passage `json:"passages,omitempty"`
}

type Output struct {
	SessionID string `json:"sessionId"`
	AnswerID  string `json:"answerId"`
	Answer    string `json:"answer"`
	Mode      string `json:"mode"`
	Engine    string `json:"engine"`
	NoData    bool   `json:"noData"`
}

// synthesisRequest is the payload sent to the synthesis service.
type synthesisRequest struct {
	Question string             `json:"question"`
	Context  *grounding.Context `json:"context"`
}

// synthesisResponse is the reply the service returns.
type synthesisResponse struct {
	Answer string `json:"answer"`
}
