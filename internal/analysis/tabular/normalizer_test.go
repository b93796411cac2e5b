package tabular

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Target Selection
// ==========================

func TestNormalizer_Targets(t *testing.T) {
	table := makeTable("sales",
		[]string{"거래처명", "매출일", "합계", "수량", "total_amount", "비고"})

	n := NewNormalizer(nil)
	targets := n.Targets(table)

	assert.Equal(t, []string{"합계", "수량", "total_amount"}, targets)
}

func TestNormalizer_Targets_CustomKeywords(t *testing.T) {
	table := makeTable("t", []string{"weight_kg", "합계", "note"})

	n := NewNormalizer([]string{"weight"})
	targets := n.Targets(table)

	// Custom keywords replace the defaults entirely.
	assert.Equal(t, []string{"weight_kg"}, targets)
}

func TestNormalizer_Targets_CaseInsensitive(t *testing.T) {
	table := makeTable("t", []string{"Total_Amount", "QTY"})

	n := NewNormalizer(nil)

	assert.Equal(t, []string{"Total_Amount", "QTY"}, n.Targets(table))
}

// ==========================
// Value Coercion
// ==========================

func TestNormalizer_Normalize(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected interface{}
	}{
		{name: "separated thousands", input: "12,000", expected: float64(12000)},
		{name: "currency mark", input: "₩3,500", expected: float64(3500)},
		{name: "already numeric", input: float64(42), expected: float64(42)},
		{name: "int widens to float", input: 7, expected: float64(7)},
		{name: "zero survives", input: "0", expected: float64(0)},
		{name: "empty string becomes nil", input: "", expected: nil},
		{name: "nan token becomes nil", input: "NaN", expected: nil},
		{name: "dash placeholder becomes nil", input: "-", expected: nil},
		{name: "unparseable text becomes nil", input: "미정", expected: nil},
		{name: "nil stays nil", input: nil, expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := makeTable("t", []string{"합계"},
				map[string]interface{}{"합계": tt.input})

			NewNormalizer(nil).Normalize(table)

			assert.Equal(t, tt.expected, table.Rows[0]["합계"])
		})
	}
}

func TestNormalizer_Normalize_MissingNeverZero(t *testing.T) {
	table := makeTable("t", []string{"금액"},
		map[string]interface{}{"금액": ""},
		map[string]interface{}{"금액": "nan"},
		map[string]interface{}{"금액": "-"},
	)

	NewNormalizer(nil).Normalize(table)

	for i, row := range table.Rows {
		assert.Nil(t, row["금액"], "row %d must be nil, not zero", i)
		assert.NotEqual(t, float64(0), row["금액"], "row %d", i)
	}
}

func TestNormalizer_Normalize_UntargetedColumnsUntouched(t *testing.T) {
	table := makeTable("t", []string{"거래처명", "비고", "합계"},
		map[string]interface{}{"거래처명": "Acme", "비고": "12,000", "합계": "12,000"})

	NewNormalizer(nil).Normalize(table)

	// Only the keyword-matched column is coerced; numeric-looking text
	// elsewhere keeps its original form.
	assert.Equal(t, "Acme", table.Rows[0]["거래처명"])
	assert.Equal(t, "12,000", table.Rows[0]["비고"])
	assert.Equal(t, float64(12000), table.Rows[0]["합계"])
}

func TestNormalizer_Normalize_Idempotent(t *testing.T) {
	table := makeTable("t", []string{"합계", "수량"},
		map[string]interface{}{"합계": "1,000", "수량": 3},
		map[string]interface{}{"합계": "", "수량": "두 개"},
		map[string]interface{}{"합계": float64(500), "수량": nil},
	)

	n := NewNormalizer(nil)
	n.Normalize(table)

	firstPass := make([]map[string]interface{}, len(table.Rows))
	for i, row := range table.Rows {
		firstPass[i] = CopyRow(row)
	}

	n.Normalize(table)

	require.Equal(t, firstPass, table.Rows)
}

func TestNormalizer_Normalize_AbsentKeySkipped(t *testing.T) {
	// Rows from a ragged upload may not carry every column at all.
	table := makeTable("t", []string{"합계"},
		map[string]interface{}{},
	)

	NewNormalizer(nil).Normalize(table)

	_, present := table.Rows[0]["합계"]
	assert.False(t, present)
}

// ==========================
// Benchmark
// ==========================

func BenchmarkNormalizer_Normalize(b *testing.B) {
	rows := make([]map[string]interface{}, 0, 1000)
	for i := 0; i < 1000; i++ {
		rows = append(rows, map[string]interface{}{
			"합계":  "1,234,567",
			"수량":  "42",
			"거래처명": "Acme",
		})
	}
	n := NewNormalizer(nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		table := makeTable("bench", []string{"거래처명", "합계", "수량"}, rows...)
		n.Normalize(table)
	}
}
