package retrievepassages

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analyst-workers/internal/common/database"
	apperrors "analyst-workers/internal/common/errors"
	"analyst-workers/internal/common/logger"
	"analyst-workers/internal/common/validation"
)

// ==========================
// Test Fixtures
// ==========================

const searchReply = `{
	"hits": {
		"total": {"value": 2},
		"hits": [
			{"_id": "p1", "_score": 1.72, "_source": {"source": "refund-policy.md", "content": "환불은 수령 후 7일 이내에 가능합니다."}},
			{"_id": "p2", "_score": 0.91, "_source": {"title": "terms", "content": "계약 해지 시 위약금 규정을 따릅니다."}}
		]
	}
}`

// setupES serves canned Elasticsearch replies. The product header keeps the
// v8 client's compatibility check happy.
func setupES(t *testing.T, status int, reply string, capture *map[string]interface{}) *database.ElasticsearchClient {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			_ = json.NewDecoder(r.Body).Decode(capture)
		}
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return &database.ElasticsearchClient{Client: client}
}

func newTestHandler(t *testing.T, esClient *database.ElasticsearchClient) *Handler {
	return NewHandler(LoadConfig(), esClient, logger.NewTestLogger(t))
}

// ==========================
// Retrieval Tests
// ==========================

func TestExecute_RetrievesPassages(t *testing.T) {
	var gotQuery map[string]interface{}
	handler := newTestHandler(t, setupES(t, http.StatusOK, searchReply, &gotQuery))

	output, err := handler.Execute(context.Background(), &Input{
		SessionID: "sess-1",
		Question:  "환불 규정이 뭐야",
	})

	require.NoError(t, err)
	assert.Equal(t, "rag", output.Engine)
	assert.Equal(t, 2, output.TotalHits)
	require.Len(t, output.Passages, 2)

	assert.Equal(t, "p1", output.Passages[0].ID)
	assert.Equal(t, "refund-policy.md", output.Passages[0].Source)
	assert.InDelta(t, 1.72, output.Passages[0].Score, 0.001)
	assert.Contains(t, output.Passages[0].Text, "환불")

	// A hit without a source field falls back to its title.
	assert.Equal(t, "terms", output.Passages[1].Source)

	assert.Equal(t, float64(5), gotQuery["size"])
}

func TestExecute_TopKNarrowsRequestSize(t *testing.T) {
	var gotQuery map[string]interface{}
	handler := newTestHandler(t, setupES(t, http.StatusOK, searchReply, &gotQuery))

	_, err := handler.Execute(context.Background(), &Input{
		SessionID: "sess-1",
		Question:  "환불 규정",
		TopK:      2,
	})

	require.NoError(t, err)
	assert.Equal(t, float64(2), gotQuery["size"])
}

func TestExecute_TopKNeverExceedsConfiguredMax(t *testing.T) {
	var gotQuery map[string]interface{}
	handler := newTestHandler(t, setupES(t, http.StatusOK, searchReply, &gotQuery))

	_, err := handler.Execute(context.Background(), &Input{
		SessionID: "sess-1",
		Question:  "환불 규정",
		TopK:      50,
	})

	require.NoError(t, err)
	assert.Equal(t, float64(5), gotQuery["size"])
}

func TestExecute_NoHitsReturnsEmptyList(t *testing.T) {
	empty := `{"hits": {"total": {"value": 0}, "hits": []}}`
	handler := newTestHandler(t, setupES(t, http.StatusOK, empty, nil))

	output, err := handler.Execute(context.Background(), &Input{
		SessionID: "sess-1",
		Question:  "아무도 모르는 질문",
	})

	require.NoError(t, err)
	assert.Empty(t, output.Passages)
	assert.Zero(t, output.TotalHits)
}

func TestExecute_ContentlessHitsAreDropped(t *testing.T) {
	reply := `{
		"hits": {
			"total": {"value": 2},
			"hits": [
				{"_id": "p1", "_score": 1.0, "_source": {"source": "a.md", "content": "본문"}},
				{"_id": "p2", "_score": 0.5, "_source": {"source": "b.md"}}
			]
		}
	}`
	handler := newTestHandler(t, setupES(t, http.StatusOK, reply, nil))

	output, err := handler.Execute(context.Background(), &Input{
		SessionID: "sess-1",
		Question:  "질문",
	})

	require.NoError(t, err)
	require.Len(t, output.Passages, 1)
	assert.Equal(t, "p1", output.Passages[0].ID)
}

// ==========================
// Failure Tests
// ==========================

func TestExecute_MissingIndex(t *testing.T) {
	notFound := `{"error": {"type": "index_not_found_exception"}}`
	handler := newTestHandler(t, setupES(t, http.StatusNotFound, notFound, nil))

	_, err := handler.Execute(context.Background(), &Input{
		SessionID: "sess-1",
		Question:  "질문",
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeIndexNotFound, apperrors.CodeOf(err))
}

func TestExecute_ServerErrorIsQueryFailure(t *testing.T) {
	boom := `{"error": {"type": "search_phase_execution_exception"}}`
	handler := newTestHandler(t, setupES(t, http.StatusInternalServerError, boom, nil))

	_, err := handler.Execute(context.Background(), &Input{
		SessionID: "sess-1",
		Question:  "질문",
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeSearchQueryFailed, apperrors.CodeOf(err))
}

func TestExecute_EmptyQuestion(t *testing.T) {
	handler := newTestHandler(t, setupES(t, http.StatusOK, searchReply, nil))

	_, err := handler.Execute(context.Background(), &Input{
		SessionID: "sess-1",
		Question:  "   ",
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidQuestion, apperrors.CodeOf(err))
}

func TestExecute_NilClient(t *testing.T) {
	handler := newTestHandler(t, nil)

	_, err := handler.Execute(context.Background(), &Input{
		SessionID: "sess-1",
		Question:  "질문",
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeElasticsearchConnectionFailed, apperrors.CodeOf(err))
}

// ==========================
// Benchmarks
// ==========================

func BenchmarkExecute_Retrieve(b *testing.B) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchReply))
	}))
	defer srv.Close()

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	if err != nil {
		b.Fatal(err)
	}
	handler := NewHandler(
		LoadConfig(),
		&database.ElasticsearchClient{Client: client},
		logger.NewNoOpLogger(),
	)

	input := &Input{SessionID: "bench", Question: "환불 규정"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := handler.Execute(context.Background(), input); err != nil {
			b.Fatal(err)
		}
	}
}

// ==========================
// Schema Tests
// ==========================

func TestInputSchema(t *testing.T) {
	schema := InputSchema()
	require.NoError(t, validation.CompileSchema(schema))

	ok := []byte(`{"question": "마진율이란 무엇인가요?", "topK": 3}`)
	assert.NoError(t, validation.ValidateJobInput(ok, schema))

	zero := []byte(`{"question": "마진율이란 무엇인가요?", "topK": 0}`)
	assert.Error(t, validation.ValidateJobInput(zero, schema))

	missing := []byte(`{"sessionId": "sess-1"}`)
	assert.Error(t, validation.ValidateJobInput(missing, schema))
}
