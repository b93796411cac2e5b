// internal/workers/analysis/route-question/config.go
package routequestion

import "time"

type Config struct {
	Timeout time.Duration
	// MaxQuestionLength rejects runaway prompts before routing.
	MaxQuestionLength int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:           10 * time.Second,
		MaxQuestionLength: 500,
	}
}
