package buildunifiedtable

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analyst-workers/internal/analysis/tabular"
	apperrors "analyst-workers/internal/common/errors"
	"analyst-workers/internal/common/logger"
	"analyst-workers/internal/common/validation"
	"analyst-workers/internal/models"
)

// ==========================
// Test Fixtures
// ==========================

func newTestHandler(t *testing.T) (*Handler, *tabular.SessionStore) {
	store := tabular.NewSessionStore(0)
	handler := NewHandler(
		LoadConfig(),
		store,
		tabular.NewNormalizer(nil),
		tabular.NewJoiner(nil, nil),
		logger.NewTestLogger(t),
	)
	return handler, store
}

func salesDataset() models.Dataset {
	return models.Dataset{
		Name:    "sales",
		Columns: []string{"거래처명", "매출일", "합계"},
		Rows: []map[string]interface{}{
			{"거래처명": "동아물산", "매출일": "2024-01-15", "합계": "1,000"},
			{"거래처명": "한빛유통", "매출일": "2024-02-03", "합계": "2,500"},
			{"거래처명": "동아물산", "매출일": "2024-03-20", "합계": "-"},
		},
	}
}

func contactsDataset() models.Dataset {
	return models.Dataset{
		Name:    "contacts",
		Columns: []string{"거래처명", "전화번호"},
		Rows: []map[string]interface{}{
			{"거래처명": "동아물산", "전화번호": "02-123-4567"},
			{"거래처명": "한빛유통", "전화번호": "031-555-1234"},
		},
	}
}

// ==========================
// Build Tests
// ==========================

func TestExecute_JoinsTwoDatasets(t *testing.T) {
	handler, store := newTestHandler(t)

	output, err := handler.Execute(context.Background(), &Input{
		SessionID: "sess-1",
		UserID:    "user-1",
		Datasets:  []models.Dataset{salesDataset(), contactsDataset()},
	})

	require.NoError(t, err)
	assert.True(t, output.Joined)
	assert.Equal(t, "거래처명", output.KeyColumn)
	assert.Equal(t, 1, output.TableVersion)
	assert.Len(t, output.Datasets, 2)

	table, meta, err := store.Snapshot("sess-1")
	require.NoError(t, err)
	assert.Equal(t, output.RowCount, table.NumRows())
	assert.Equal(t, "user-1", meta.UserID)
	assert.True(t, table.HasColumn("합계"))
	assert.True(t, table.HasColumn("전화번호"))
}

func TestExecute_NormalizesNumericColumns(t *testing.T) {
	handler, store := newTestHandler(t)

	_, err := handler.Execute(context.Background(), &Input{
		SessionID: "sess-1",
		UserID:    "user-1",
		Datasets:  []models.Dataset{salesDataset()},
	})
	require.NoError(t, err)

	table, _, err := store.Snapshot("sess-1")
	require.NoError(t, err)
	assert.Equal(t, float64(1000), table.Rows[0]["합계"])
	// Placeholder totals become nil, never zero.
	assert.Nil(t, table.Rows[2]["합계"])
}

func TestExecute_SingleDatasetStandsAlone(t *testing.T) {
	handler, store := newTestHandler(t)

	output, err := handler.Execute(context.Background(), &Input{
		SessionID: "sess-1",
		UserID:    "user-1",
		Datasets:  []models.Dataset{salesDataset()},
	})

	require.NoError(t, err)
	assert.False(t, output.Joined)
	assert.Equal(t, "거래처명", output.KeyColumn)
	assert.Equal(t, 3, output.RowCount)

	table, _, err := store.Snapshot("sess-1")
	require.NoError(t, err)
	assert.Equal(t, "unified", table.Name)
}

func TestExecute_UnjoinableSourcesKeepPrimary(t *testing.T) {
	handler, store := newTestHandler(t)

	items := models.Dataset{
		Name:    "items",
		Columns: []string{"품목명", "단가"},
		Rows: []map[string]interface{}{
			{"품목명": "볼트", "단가": 120},
		},
	}

	output, err := handler.Execute(context.Background(), &Input{
		SessionID: "sess-1",
		UserID:    "user-1",
		Datasets:  []models.Dataset{salesDataset(), items},
	})

	require.NoError(t, err)
	assert.False(t, output.Joined)
	assert.Equal(t, 3, output.RowCount)

	// Both sources stay addressable for dataset-scoped questions.
	_, err = store.Source("sess-1", "sales")
	require.NoError(t, err)
	_, err = store.Source("sess-1", "items")
	require.NoError(t, err)
}

func TestExecute_SecondBuildBumpsVersion(t *testing.T) {
	handler, _ := newTestHandler(t)

	input := &Input{
		SessionID: "sess-1",
		UserID:    "user-1",
		Datasets:  []models.Dataset{salesDataset()},
	}

	first, err := handler.Execute(context.Background(), input)
	require.NoError(t, err)
	second, err := handler.Execute(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, 1, first.TableVersion)
	assert.Equal(t, 2, second.TableVersion)
}

func TestExecute_ColumnsRecoveredFromRows(t *testing.T) {
	handler, _ := newTestHandler(t)

	ds := models.Dataset{
		Name: "loose",
		Rows: []map[string]interface{}{
			{"거래처명": "동아물산", "합계": 100},
		},
	}

	output, err := handler.Execute(context.Background(), &Input{
		SessionID: "sess-1",
		UserID:    "user-1",
		Datasets:  []models.Dataset{ds},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, output.ColumnCount)
}

func TestExecute_EmptyRowDatasetsAreSkipped(t *testing.T) {
	handler, _ := newTestHandler(t)

	empty := models.Dataset{Name: "empty", Columns: []string{"거래처명"}}

	output, err := handler.Execute(context.Background(), &Input{
		SessionID: "sess-1",
		UserID:    "user-1",
		Datasets:  []models.Dataset{empty, salesDataset()},
	})

	require.NoError(t, err)
	assert.Len(t, output.Datasets, 1)
	assert.Equal(t, "sales", output.Datasets[0].Name)
}

func TestExecute_InputRowsAreNotMutated(t *testing.T) {
	handler, _ := newTestHandler(t)

	ds := salesDataset()
	_, err := handler.Execute(context.Background(), &Input{
		SessionID: "sess-1",
		UserID:    "user-1",
		Datasets:  []models.Dataset{ds},
	})

	require.NoError(t, err)
	assert.Equal(t, "1,000", ds.Rows[0]["합계"])
}

// ==========================
// Validation Tests
// ==========================

func TestExecute_ValidationErrors(t *testing.T) {
	handler, _ := newTestHandler(t)

	tooMany := make([]models.Dataset, 11)
	for i := range tooMany {
		tooMany[i] = salesDataset()
	}

	tests := []struct {
		name     string
		input    *Input
		wantCode apperrors.ErrorCode
	}{
		{
			name:     "missing session id",
			input:    &Input{Datasets: []models.Dataset{salesDataset()}},
			wantCode: apperrors.ErrCodeTableBuildFailed,
		},
		{
			name:     "no datasets",
			input:    &Input{SessionID: "sess-1", UserID: "user-1"},
			wantCode: apperrors.ErrCodeDatasetEmpty,
		},
		{
			name: "all datasets empty",
			input: &Input{
				SessionID: "sess-1",
				UserID:    "user-1",
				Datasets:  []models.Dataset{{Name: "empty"}},
			},
			wantCode: apperrors.ErrCodeDatasetEmpty,
		},
		{
			name: "too many datasets",
			input: &Input{
				SessionID: "sess-1",
				UserID:    "user-1",
				Datasets:  tooMany,
			},
			wantCode: apperrors.ErrCodeTableBuildFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := handler.Execute(context.Background(), tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, apperrors.CodeOf(err))
		})
	}
}

// ==========================
// Benchmarks
// ==========================

func BenchmarkExecute_TwoDatasetJoin(b *testing.B) {
	store := tabular.NewSessionStore(0)
	handler := NewHandler(
		LoadConfig(),
		store,
		tabular.NewNormalizer(nil),
		tabular.NewJoiner(nil, nil),
		logger.NewNoOpLogger(),
	)

	input := &Input{
		SessionID: "bench",
		UserID:    "user-1",
		Datasets:  []models.Dataset{salesDataset(), contactsDataset()},
	}

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

	ok := []byte(`{"sessionId": "sess-1", "datasets": [{"name": "sales"}]}`)
	assert.NoError(t, validation.ValidateJobInput(ok, schema))

	empty := []byte(`{"sessionId": "sess-1", "datasets": []}`)
	assert.Error(t, validation.ValidateJobInput(empty, schema))

	missing := []byte(`{"sessionId": "sess-1"}`)
	assert.Error(t, validation.ValidateJobInput(missing, schema))
}
