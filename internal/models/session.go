package models

import "time"

// AnalysisSession tracks one user's uploaded data and the unified table
// built from it. The table itself lives in the session store; this struct
// carries the metadata that travels through job variables.
type AnalysisSession struct {
	ID           string           `json:"id"`
	UserID       string           `json:"userId"`
	CreatedAt    time.Time        `json:"createdAt"`
	LastActivity time.Time        `json:"lastActivity"`
	Datasets     []DatasetSummary `json:"datasets,omitempty"`
	TableVersion int              `json:"tableVersion"`
	TableRows    int              `json:"tableRows"`
	TableColumns int              `json:"tableColumns"`
}

// HasTable reports whether a unified table has been built for this session.
func (s *AnalysisSession) HasTable() bool {
	return s.TableVersion > 0
}

// Touch updates the last activity timestamp
func (s *AnalysisSession) Touch() {
	s.LastActivity = time.Now()
}
