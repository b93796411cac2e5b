package lookup

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analyst-workers/internal/analysis/tabular"
)

// ==========================
// Test Helper Functions
// ==========================

func newTestEngine() *Engine {
	return NewEngine(Config{})
}

func transactionsTable() *tabular.Table {
	return &tabular.Table{
		Name:    "unified",
		Columns: []string{"거래처명", "매출일", "주문번호", "합계", "비고"},
		Rows: []map[string]interface{}{
			{"거래처명": "한국케미칼상사", "매출일": "2024-01-15", "주문번호": "ORD-100", "합계": float64(100), "비고": "정기 주문"},
			{"거래처명": "부산상회", "매출일": "2024-02-01", "주문번호": "ORD-101", "합계": float64(300), "비고": "신규"},
			{"거래처명": "한국케미칼상사", "매출일": "2024-03-10", "주문번호": "ORD-102", "합계": float64(200), "비고": nil},
			{"거래처명": "(주)이놀", "매출일": "2023-11-05", "주문번호": "ORD-103", "합계": float64(50), "비고": nil},
		},
		Roles: map[string]tabular.Role{
			"거래처명": tabular.RoleCategorical,
			"매출일":  tabular.RoleDate,
			"주문번호": tabular.RoleText,
			"합계":   tabular.RoleNumeric,
			"비고":   tabular.RoleText,
		},
		KeyColumn: "거래처명",
	}
}

// ==========================
// Entity Matching
// ==========================

func TestEngine_Execute_EntityMatch(t *testing.T) {
	eng := newTestEngine()

	res := eng.Execute("한국케미칼상사 거래 내역 보여줘", transactionsTable(), Options{})

	require.False(t, res.NoData)
	assert.Equal(t, "한국케미칼상사", res.Entity)
	assert.Equal(t, 2, res.TotalMatches)
	assert.Contains(t, res.AppliedFilters, "거래처명=한국케미칼상사")

	require.Len(t, res.Records, 2)
	for _, rec := range res.Records {
		assert.Equal(t, "한국케미칼상사", rec["거래처명"])
	}
	assert.Equal(t, "ORD-100", res.Records[0]["주문번호"])
	assert.Equal(t, "ORD-102", res.Records[1]["주문번호"])
	assert.Equal(t, []string{"거래처명", "매출일", "주문번호", "합계", "비고"}, res.Fields)
}

func TestEngine_Execute_PartialNameMatch(t *testing.T) {
	eng := newTestEngine()

	res := eng.Execute("이놀의 거래처 정보를 알려주세요", transactionsTable(), Options{})

	require.False(t, res.NoData)
	assert.Empty(t, res.Entity)
	assert.Contains(t, res.AppliedFilters, "거래처명~이놀")
	require.Len(t, res.Records, 1)
	assert.Equal(t, "(주)이놀", res.Records[0]["거래처명"])
}

func TestEngine_Execute_UnknownEntityIsExplicitlyEmpty(t *testing.T) {
	eng := newTestEngine()

	res := eng.Execute("없는회사 정보 알려줘", transactionsTable(), Options{})

	assert.True(t, res.NoData)
	assert.Contains(t, res.Message, "no records match")
	assert.Contains(t, res.AppliedFilters, "거래처명~없는회사")
	assert.Empty(t, res.Records)
}

// ==========================
// Recency and Period Filters
// ==========================

func TestEngine_Execute_RecentOrdersByDateDescending(t *testing.T) {
	eng := newTestEngine()

	res := eng.Execute("최근 거래 보여줘", transactionsTable(), Options{})

	require.False(t, res.NoData)
	assert.Contains(t, res.AppliedFilters, "recent")
	assert.Equal(t, 4, res.TotalMatches)
	require.Len(t, res.Records, 4)
	assert.Equal(t, "ORD-102", res.Records[0]["주문번호"])
	assert.Equal(t, "ORD-101", res.Records[1]["주문번호"])
	assert.Equal(t, "ORD-100", res.Records[2]["주문번호"])
	assert.Equal(t, "ORD-103", res.Records[3]["주문번호"])
}

func TestEngine_Execute_DisplayCapKeepsTotalCount(t *testing.T) {
	eng := NewEngine(Config{MaxRows: 2})

	res := eng.Execute("최근 거래 보여줘", transactionsTable(), Options{})

	require.False(t, res.NoData)
	assert.Equal(t, 4, res.TotalMatches)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "ORD-102", res.Records[0]["주문번호"])
	assert.Equal(t, "ORD-101", res.Records[1]["주문번호"])
}

func TestEngine_Execute_YearFilter(t *testing.T) {
	eng := newTestEngine()

	res := eng.Execute("2023년 거래 내역", transactionsTable(), Options{})

	require.False(t, res.NoData)
	assert.Contains(t, res.AppliedFilters, "year=2023")
	assert.Equal(t, 1, res.TotalMatches)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "(주)이놀", res.Records[0]["거래처명"])
}

func TestEngine_Execute_EntityCombinesWithRecent(t *testing.T) {
	eng := newTestEngine()

	res := eng.Execute("한국케미칼상사 최근 거래", transactionsTable(), Options{})

	require.False(t, res.NoData)
	assert.Contains(t, res.AppliedFilters, "거래처명=한국케미칼상사")
	assert.Contains(t, res.AppliedFilters, "recent")
	assert.Equal(t, 2, res.TotalMatches)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "ORD-102", res.Records[0]["주문번호"])
	assert.Equal(t, "ORD-100", res.Records[1]["주문번호"])
}

// ==========================
// Identifier Search
// ==========================

func TestEngine_Execute_CodeSearch(t *testing.T) {
	eng := newTestEngine()

	res := eng.Execute("ORD-101 주문 정보", transactionsTable(), Options{})

	require.False(t, res.NoData)
	assert.Contains(t, res.AppliedFilters, "code~ORD-101")
	assert.Equal(t, 1, res.TotalMatches)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "부산상회", res.Records[0]["거래처명"])
}

// ==========================
// Unconditioned Lookups
// ==========================

func TestEngine_Execute_HeadSampleWhenNoConditions(t *testing.T) {
	eng := newTestEngine()

	res := eng.Execute("데이터 보여줘", transactionsTable(), Options{})

	require.False(t, res.NoData)
	assert.Contains(t, res.AppliedFilters, "first 10 rows")
	assert.Equal(t, 4, res.TotalMatches)
	require.Len(t, res.Records, 4)
	assert.Equal(t, "ORD-100", res.Records[0]["주문번호"])
}

func TestEngine_Execute_EmptyTable(t *testing.T) {
	eng := newTestEngine()

	res := eng.Execute("최근 거래", &tabular.Table{Name: "unified"}, Options{})
	assert.True(t, res.NoData)

	res = eng.Execute("최근 거래", nil, Options{})
	assert.True(t, res.NoData)
}

// ==========================
// Provenance and Immutability
// ==========================

func TestEngine_Execute_DatasetLabelRecorded(t *testing.T) {
	eng := newTestEngine()

	res := eng.Execute("최근 거래 보여줘", transactionsTable(), Options{DatasetLabel: "sales"})

	require.NotEmpty(t, res.AppliedFilters)
	assert.Equal(t, "dataset=sales", res.AppliedFilters[0])
}

func TestEngine_Execute_SourceTableUnmodified(t *testing.T) {
	tbl := transactionsTable()
	var beforeOrder []string
	for _, row := range tbl.Rows {
		beforeOrder = append(beforeOrder, tabular.CellString(row["주문번호"]))
	}
	eng := newTestEngine()

	res := eng.Execute("최근 거래 보여줘", tbl, Options{})
	require.False(t, res.NoData)

	var afterOrder []string
	for _, row := range tbl.Rows {
		afterOrder = append(afterOrder, tabular.CellString(row["주문번호"]))
	}
	assert.Equal(t, beforeOrder, afterOrder)

	res.Records[0]["합계"] = float64(-1)
	assert.Equal(t, float64(200), tbl.Rows[2]["합계"])
}

// ==========================
// Benchmarks
// ==========================

func BenchmarkEngine_Execute(b *testing.B) {
	rows := make([]map[string]interface{}, 0, 1000)
	for i := 0; i < 1000; i++ {
		rows = append(rows, map[string]interface{}{
			"거래처명": fmt.Sprintf("업체%d", i%40),
			"매출일":  fmt.Sprintf("2024-%02d-%02d", i%12+1, i%28+1),
			"합계":   float64(i),
		})
	}
	tbl := &tabular.Table{
		Name:    "unified",
		Columns: []string{"거래처명", "매출일", "합계"},
		Rows:    rows,
		Roles: map[string]tabular.Role{
			"거래처명": tabular.RoleCategorical,
			"매출일":  tabular.RoleDate,
			"합계":   tabular.RoleNumeric,
		},
		KeyColumn: "거래처명",
	}
	eng := NewEngine(Config{})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		eng.Execute("업체7 최근 거래 내역", tbl, Options{})
	}
}
