package models

import (
	"context"
	"time"
)

// AnswerRecord is the audit trail row written after every synthesized answer.
type AnswerRecord struct {
	ID         string    `json:"id" db:"id"`
	SessionID  string    `json:"sessionId" db:"session_id"`
	UserID     string    `json:"userId" db:"user_id"`
	Question   string    `json:"question" db:"question"`
	Mode       string    `json:"mode" db:"mode"`
	Confidence float64   `json:"confidence" db:"confidence"`
	Answer     string    `json:"answer" db:"answer"`
	Engine     string    `json:"engine" db:"engine"`
	RowCount   int       `json:"rowCount" db:"row_count"`
	LatencyMS  int64     `json:"latencyMs" db:"latency_ms"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// AnswerRepository defines answer audit data access
type AnswerRepository interface {
	Insert(ctx context.Context, rec *AnswerRecord) error
	FindBySession(ctx context.Context, sessionID string, limit int) ([]*AnswerRecord, error)
}
