// internal/workers/analysis/retrieve-passages/models.go
package retrievepassages

import "analyst-workers/internal/analysis/grounding"

type Input struct {
	SessionID string `json:"sessionId"`
	Question  string `json:"question"`
	// TopK narrows the passage count below the configured maximum.
	TopK int `json:"topK,omitempty"`
}

type Output struct {
	SessionID string              `json:"sessionId"`
	Engine    string              `json:"engine"`
	Passages  []grounding.Passage `json:"passages"`
	TotalHits int                 `json:"totalHits"`
}
