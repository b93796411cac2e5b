package models

// Dataset is one uploaded sheet as it arrives in job variables: a flat list
// of records plus the column order the upload preserved.
type Dataset struct {
	Name    string                   `json:"name"`
	Columns []string                 `json:"columns"`
	Rows    []map[string]interface{} `json:"rows"`
}

// DatasetSummary is the lightweight shape kept on the session.
type DatasetSummary struct {
	Name    string `json:"name"`
	Rows    int    `json:"rows"`
	Columns int    `json:"columns"`
}

// Summarize reduces a dataset to its session-level summary.
func (d Dataset) Summarize() DatasetSummary {
	return DatasetSummary{
		Name:    d.Name,
		Rows:    len(d.Rows),
		Columns: len(d.Columns),
	}
}
