// internal/workers/communication/deliver-answer/config.go
package deliveranswer

import "time"

type Config struct {
	Timeout      time.Duration
	EmailEnabled bool
	FromEmail    string
	SMSEnabled   bool
	SenderID     string
	// DefaultSubject is used when the job carries no subject of its own.
	DefaultSubject string
	// MaxSMSRunes bounds the SMS body. SNS rejects oversized payloads, so
	// longer answers are truncated; the full text stays in the audit trail.
	MaxSMSRunes int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:        15 * time.Second,
		EmailEnabled:   true,
		FromEmail:      "noreply@example.com",
		SMSEnabled:     true,
		DefaultSubject: "데이터 분석 결과",
		MaxSMSRunes:    1000,
	}
}
