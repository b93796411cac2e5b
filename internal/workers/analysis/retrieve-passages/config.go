// internal/workers/analysis/retrieve-passages/config.go
package retrievepassages

import "time"

type Config struct {
	Timeout time.Duration
	// Index is the Elasticsearch index holding journal and policy passages.
	Index string
	// MaxPassages caps the retrieved passage list regardless of topK.
	MaxPassages int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:     15 * time.Second,
		Index:       "analysis-passages",
		MaxPassages: 5,
	}
}
