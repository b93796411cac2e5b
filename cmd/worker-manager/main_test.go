package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analyst-workers/internal/models"
)

type stubAnswerRepo struct {
	records []*models.AnswerRecord
	err     error

	gotSession string
	gotLimit   int
}

func (r *stubAnswerRepo) Insert(_ context.Context, _ *models.AnswerRecord) error {
	return nil
}

func (r *stubAnswerRepo) FindBySession(_ context.Context, sessionID string, limit int) ([]*models.AnswerRecord, error) {
	r.gotSession = sessionID
	r.gotLimit = limit
	return r.records, r.err
}

func TestRecentAnswersHandler(t *testing.T) {
	repo := &stubAnswerRepo{
		records: []*models.AnswerRecord{{
			ID:        "ans-1",
			SessionID: "sess-1",
			Question:  "거래처별 합계",
			Mode:      "CALC",
			Answer:    "합계는 1,500입니다.",
			RowCount:  3,
			CreatedAt: time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC),
		}},
	}

	req := httptest.NewRequest(http.MethodGet, "/answers?sessionId=sess-1&limit=5", nil)
	rec := httptest.NewRecorder()
	recentAnswersHandler(repo)(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sess-1", repo.gotSession)
	assert.Equal(t, 5, repo.gotLimit)

	var body struct {
		SessionID string                 `json:"sessionId"`
		Answers   []*models.AnswerRecord `json:"answers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "sess-1", body.SessionID)
	require.Len(t, body.Answers, 1)
	assert.Equal(t, "ans-1", body.Answers[0].ID)
	assert.Equal(t, 3, body.Answers[0].RowCount)
}

func TestRecentAnswersHandler_RequiresSession(t *testing.T) {
	repo := &stubAnswerRepo{}

	req := httptest.NewRequest(http.MethodGet, "/answers", nil)
	rec := httptest.NewRecorder()
	recentAnswersHandler(repo)(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, repo.gotSession)
}

func TestRecentAnswersHandler_LookupFailure(t *testing.T) {
	repo := &stubAnswerRepo{err: assert.AnError}

	req := httptest.NewRequest(http.MethodGet, "/answers?sessionId=sess-1", nil)
	rec := httptest.NewRecorder()
	recentAnswersHandler(repo)(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
