// internal/workers/analysis/run-lookup/models.go
package runlookup

import "analyst-workers/internal/analysis/lookup"

type Input struct {
	SessionID string `json:"sessionId"`
	Question  string `json:"question"`
	// Dataset restricts the lookup to one named source table.
	Dataset string `json:"dataset,omitempty"`
}

type Output struct {
	SessionID string         `json:"sessionId"`
	Engine    string         `json:"engine"`
	Result    *lookup.Result `json:"result"`
	Sources   []string       `json:"sources,omitempty"`
}
