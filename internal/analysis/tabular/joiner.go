package tabular

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultJoinKeyAliases are the accepted names for the shared entity column,
// checked in order.
var DefaultJoinKeyAliases = []string{
	"거래처명", "거래처", "거래처코드", "거래처 코드",
	"customer_name", "customer", "counterparty", "account", "client", "entity",
}

// DefaultProtectedColumns are never renamed on collision; colliding values
// are coalesced instead. They carry the core semantics every source agrees
// on: entity identity, primary date, primary totals.
var DefaultProtectedColumns = []string{
	"거래처", "거래처명", "거래처 코드", "매출일", "거래일",
	"합계", "총 판매금액", "공급가액", "마진율", "제품명", "제품군",
	"customer", "customer_name", "customer_code", "sales_date", "transaction_date",
	"total", "total_amount", "supply_value", "margin_rate", "product_name", "category",
}

// ErrNotJoinable is returned when fewer than two sources expose a join key.
// The caller then proceeds with single-source analysis instead.
var ErrNotJoinable = errors.New("fewer than two sources share a detectable join key")

// Joiner unifies independently-shaped sources into one table via a full
// outer join on the shared entity key.
type Joiner struct {
	keyAliases []string
	protected  map[string]struct{}
}

// NewJoiner builds a Joiner. Empty lists select the compiled-in defaults.
func NewJoiner(keyAliases, protectedColumns []string) *Joiner {
	if len(keyAliases) == 0 {
		keyAliases = DefaultJoinKeyAliases
	}
	if len(protectedColumns) == 0 {
		protectedColumns = DefaultProtectedColumns
	}
	protected := make(map[string]struct{}, len(protectedColumns))
	for _, c := range protectedColumns {
		protected[strings.ToLower(c)] = struct{}{}
	}
	return &Joiner{keyAliases: keyAliases, protected: protected}
}

// IsProtected reports whether a column name is exempt from collision renaming.
func (j *Joiner) IsProtected(col string) bool {
	_, ok := j.protected[strings.ToLower(col)]
	return ok
}

// DetectJoinKey finds the source's join key column: exact alias match first,
// then containment.
func (j *Joiner) DetectJoinKey(t *Table) (string, bool) {
	for _, alias := range j.keyAliases {
		for _, col := range t.Columns {
			if strings.EqualFold(col, alias) {
				return col, true
			}
		}
	}
	for _, alias := range j.keyAliases {
		for _, col := range t.Columns {
			if strings.Contains(strings.ToLower(col), strings.ToLower(alias)) {
				return col, true
			}
		}
	}
	return "", false
}

// Join outer-joins the given sources on their detected keys. Source order is
// the coalescing priority order. Sources without a detectable key are left
// out; when fewer than two remain, ErrNotJoinable is returned and the caller
// keeps its single-source table.
func (j *Joiner) Join(sources []*Table) (*Table, error) {
	type joinSource struct {
		table  *Table
		keyCol string
	}
	var joinable []joinSource
	for _, src := range sources {
		if key, ok := j.DetectJoinKey(src); ok {
			joinable = append(joinable, joinSource{table: src, keyCol: key})
		}
	}
	if len(joinable) < 2 {
		return nil, ErrNotJoinable
	}

	// The highest-priority source names the key column for the whole result.
	canonicalKey := joinable[0].keyCol

	// Count non-key, non-protected column names across sources to find
	// collisions before any merging happens.
	nameCount := make(map[string]int)
	for _, src := range joinable {
		for _, col := range src.table.Columns {
			if col == src.keyCol || j.IsProtected(col) {
				continue
			}
			nameCount[col]++
		}
	}

	// prepared rewrites each source onto the unified column layout.
	prepared := make([]*Table, 0, len(joinable))
	for _, src := range joinable {
		renames := map[string]string{src.keyCol: canonicalKey}
		for _, col := range src.table.Columns {
			if col == src.keyCol {
				continue
			}
			if !j.IsProtected(col) && nameCount[col] > 1 {
				renames[col] = fmt.Sprintf("%s_%s", src.table.Name, col)
			}
		}
		prepared = append(prepared, renameColumns(src.table, renames))
	}

	unified := prepared[0]
	for _, next := range prepared[1:] {
		unified = outerJoin(unified, next, canonicalKey)
	}

	unified.Name = "unified"
	unified.KeyColumn = canonicalKey
	InferRoles(unified)
	return unified, nil
}

// renameColumns copies t with the given column renames applied.
func renameColumns(t *Table, renames map[string]string) *Table {
	outName := func(col string) string {
		if renamed, ok := renames[col]; ok {
			return renamed
		}
		return col
	}

	cols := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		cols[i] = outName(col)
	}

	rows := make([]map[string]interface{}, len(t.Rows))
	for i, row := range t.Rows {
		out := make(map[string]interface{}, len(row))
		for col, v := range row {
			out[outName(col)] = v
		}
		rows[i] = out
	}

	return &Table{Name: t.Name, Columns: cols, Rows: rows}
}

// outerJoin merges right into left on key. Keys present on both sides pair
// every matching left row with every matching right row; one-sided keys keep
// their rows with the other side's columns missing. Rows with a missing key
// never match anything. Shared (protected) columns coalesce left-first, so
// earlier sources win.
func outerJoin(left, right *Table, key string) *Table {
	cols := append([]string{}, left.Columns...)
	have := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		have[c] = struct{}{}
	}
	for _, c := range right.Columns {
		if _, ok := have[c]; !ok {
			cols = append(cols, c)
		}
	}

	rightByKey := make(map[string][]map[string]interface{})
	var rightKeyOrder []string
	var rightKeyless []map[string]interface{}
	for _, row := range right.Rows {
		k := CellString(row[key])
		if k == "" {
			rightKeyless = append(rightKeyless, row)
			continue
		}
		if _, seen := rightByKey[k]; !seen {
			rightKeyOrder = append(rightKeyOrder, k)
		}
		rightByKey[k] = append(rightByKey[k], row)
	}

	var rows []map[string]interface{}
	matched := make(map[string]struct{})
	for _, lrow := range left.Rows {
		k := CellString(lrow[key])
		rrows, ok := rightByKey[k]
		if k == "" || !ok {
			rows = append(rows, CopyRow(lrow))
			continue
		}
		matched[k] = struct{}{}
		for _, rrow := range rrows {
			rows = append(rows, mergeRows(lrow, rrow))
		}
	}
	for _, k := range rightKeyOrder {
		if _, ok := matched[k]; ok {
			continue
		}
		for _, rrow := range rightByKey[k] {
			rows = append(rows, CopyRow(rrow))
		}
	}
	for _, rrow := range rightKeyless {
		rows = append(rows, CopyRow(rrow))
	}

	return &Table{Columns: cols, Rows: rows}
}

// mergeRows combines a matched pair. Left values win on shared columns
// unless missing, which implements priority-ordered coalescing.
func mergeRows(left, right map[string]interface{}) map[string]interface{} {
	out := CopyRow(left)
	for k, v := range right {
		if existing, ok := out[k]; ok && !IsMissing(existing) {
			continue
		}
		out[k] = v
	}
	return out
}
