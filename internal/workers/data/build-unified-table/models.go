// internal/workers/data/build-unified-table/models.go
package buildunifiedtable

import "analyst-workers/internal/models"

type Input struct {
	SessionID string           `json:"sessionId"`
	UserID    string           `json:"userId"`
	Datasets  []models.Dataset `json:"datasets"`
}

type Output struct {
	SessionID    string                  `json:"sessionId"`
	TableVersion int                     `json:"tableVersion"`
	RowCount     int                     `json:"rowCount"`
	ColumnCount  int                     `json:"columnCount"`
	KeyColumn    string                  `json:"keyColumn,omitempty"`
	Joined       bool                    `json:"joined"`
	Datasets     []models.DatasetSummary `json:"datasets"`
}
