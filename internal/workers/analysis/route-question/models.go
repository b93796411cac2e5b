// internal/workers/analysis/route-question/models.go
package routequestion

type Input struct {
	SessionID string `json:"sessionId"`
	Question  string `json:"question"`
}

type Output struct {
	SessionID  string             `json:"sessionId"`
	Question   string             `json:"question"`
	Mode       string             `json:"mode"` // "CALC", "LOOKUP", "RAG"
	Confidence float64            `json:"confidence"`
	Reasoning  string             `json:"reasoning"`
	Scores     map[string]float64 `json:"scores"`
}
