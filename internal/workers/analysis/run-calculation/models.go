// internal/workers/analysis/run-calculation/models.go
package runcalculation

import "analyst-workers/internal/analysis/calc"

type Input struct {
	SessionID string `json:"sessionId"`
	Question  string `json:"question"`
	// Dataset restricts the computation to one named source table.
	Dataset string `json:"dataset,omitempty"`
}

type Output struct {
	SessionID string       `json:"sessionId"`
	Engine    string       `json:"engine"`
	Result    *calc.Result `json:"result"`
	Sources   []string     `json:"sources,omitempty"`
	Cached    bool         `json:"cached"`
}
