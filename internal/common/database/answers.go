// internal/common/database/answers.go
package database

import (
	"context"
	"database/sql"
	"time"

	apperrors "analyst-workers/internal/common/errors"
	"analyst-workers/internal/models"
)

// PostgresAnswerRepository persists the answer audit trail.
type PostgresAnswerRepository struct {
	db *sql.DB
}

func NewPostgresAnswerRepository(db *sql.DB) *PostgresAnswerRepository {
	return &PostgresAnswerRepository{db: db}
}

func (r *PostgresAnswerRepository) Insert(ctx context.Context, rec *models.AnswerRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO answer_audit (
			id, session_id, user_id, question, mode, confidence, answer, engine, row_count, latency_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID,
		rec.SessionID,
		rec.UserID,
		rec.Question,
		rec.Mode,
		rec.Confidence,
		rec.Answer,
		rec.Engine,
		rec.RowCount,
		rec.LatencyMS,
		createdAt,
	)
	if err != nil {
		return apperrors.NewAuditWriteFailedError(err)
	}
	return nil
}

func (r *PostgresAnswerRepository) FindBySession(ctx context.Context, sessionID string, limit int) ([]*models.AnswerRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, user_id, question, mode, confidence, answer, engine, row_count, latency_ms, created_at
		FROM answer_audit
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("answer_audit.find_by_session", err)
	}
	defer rows.Close()

	var records []*models.AnswerRecord
	for rows.Next() {
		rec := &models.AnswerRecord{}
		if err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.UserID,
			&rec.Question,
			&rec.Mode,
			&rec.Confidence,
			&rec.Answer,
			&rec.Engine,
			&rec.RowCount,
			&rec.LatencyMS,
			&rec.CreatedAt,
		); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("answer_audit.scan", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("answer_audit.rows", err)
	}
	return records, nil
}
