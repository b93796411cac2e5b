// Package tabular builds and holds the unified in-memory table the answer
// engines read: numeric normalization, multi-source outer joins, schema role
// inference, and per-session table ownership.
package tabular

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Role is the semantic type inferred for a column.
type Role string

const (
	RoleNumeric     Role = "numeric"
	RoleCategorical Role = "categorical"
	RoleDate        Role = "date"
	RoleText        Role = "text"
)

// Table is one in-memory table. After construction it is treated as
// read-only; a data change replaces the whole table via the session store.
type Table struct {
	Name      string                   `json:"name"`
	Columns   []string                 `json:"columns"`
	Rows      []map[string]interface{} `json:"rows"`
	Roles     map[string]Role          `json:"roles,omitempty"`
	KeyColumn string                   `json:"keyColumn,omitempty"`
}

// NumRows returns the row count.
func (t *Table) NumRows() int {
	return len(t.Rows)
}

// HasColumn reports whether name is one of the table's columns.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// ColumnsWithRole returns column names carrying the given role, in table order.
func (t *Table) ColumnsWithRole(role Role) []string {
	var out []string
	for _, c := range t.Columns {
		if t.Roles[c] == role {
			out = append(out, c)
		}
	}
	return out
}

// PrimaryDateColumn returns the first date-role column, or "".
func (t *Table) PrimaryDateColumn() string {
	for _, c := range t.Columns {
		if t.Roles[c] == RoleDate {
			return c
		}
	}
	return ""
}

// DistinctValues returns the column's distinct non-missing values in first
// appearance order. Used as the known-entity vocabulary when col is the key
// column.
func (t *Table) DistinctValues(col string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, row := range t.Rows {
		v, ok := row[col]
		if !ok || IsMissing(v) {
			continue
		}
		s := CellString(v)
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// missingTokens are text placeholders that mean "no value", never zero.
var missingTokens = map[string]struct{}{
	"":     {},
	"nan":  {},
	"none": {},
	"null": {},
	"-":    {},
}

// IsMissing reports whether v represents an absent value.
func IsMissing(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		_, miss := missingTokens[strings.ToLower(strings.TrimSpace(s))]
		return miss
	}
	return false
}

// ToFloat converts a cell to float64 when it holds a usable number.
// String values are parsed after stripping grouping separators.
func ToFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		cleaned := stripSeparators(n)
		if cleaned == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// stripSeparators removes thousands separators, currency marks, and
// surrounding whitespace from a numeric-looking string.
func stripSeparators(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	for _, mark := range []string{"₩", "$", "€", "¥", "%"} {
		s = strings.ReplaceAll(s, mark, "")
	}
	return s
}

// CopyRow returns a shallow copy of one row. Engines hand copies outward so
// result payloads never alias the stored table.
func CopyRow(row map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

// CellString renders a cell for display and entity matching.
func CellString(v interface{}) string {
	if v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case bool:
		return strconv.FormatBool(s)
	default:
		return fmt.Sprintf("%v", v)
	}
}
