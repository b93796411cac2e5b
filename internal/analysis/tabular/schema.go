package tabular

import (
	"strings"
	"time"
)

// roleSampleSize bounds how many values are inspected per column.
const roleSampleSize = 100

// typeThreshold is the share of sampled values that must parse for a
// column to take the numeric or date role.
const typeThreshold = 0.8

// dateLayouts are the accepted date formats, most common first.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"20060102",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01",
	"01/02/2006",
}

// dateNameHints mark columns that carry dates by name alone.
var dateNameHints = []string{
	"일자", "날짜", "일시", "매출일", "거래일", "등록일", "작성일",
	"date", "_at",
}

// ParseDate attempts to read a cell as a calendar date.
func ParseDate(v interface{}) (time.Time, bool) {
	s := CellString(v)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// FilterRowsByPeriod keeps rows whose date cell falls inside the requested
// year and month (zero means unconstrained). Once a constraint is active,
// rows with unparseable dates are dropped rather than guessed at.
func FilterRowsByPeriod(rows []map[string]interface{}, dateCol string, year, month int) []map[string]interface{} {
	if (year == 0 && month == 0) || dateCol == "" {
		return rows
	}
	var kept []map[string]interface{}
	for _, row := range rows {
		ts, ok := ParseDate(row[dateCol])
		if !ok {
			continue
		}
		if year != 0 && ts.Year() != year {
			continue
		}
		if month != 0 && int(ts.Month()) != month {
			continue
		}
		kept = append(kept, row)
	}
	return kept
}

// InferRoles assigns a semantic role to every column of t. Name hints win
// over value sampling so that sparse columns still classify predictably.
func InferRoles(t *Table) {
	roles := make(map[string]Role, len(t.Columns))
	for _, col := range t.Columns {
		roles[col] = inferColumnRole(t, col)
	}
	t.Roles = roles
}

func inferColumnRole(t *Table, col string) Role {
	lower := strings.ToLower(col)
	for _, hint := range dateNameHints {
		if strings.Contains(lower, hint) {
			return RoleDate
		}
	}

	var sampled, numeric, dates int
	distinct := make(map[string]struct{})
	for _, row := range t.Rows {
		if sampled >= roleSampleSize {
			break
		}
		v, ok := row[col]
		if !ok || IsMissing(v) {
			continue
		}
		sampled++
		if _, isNum := ToFloat(v); isNum {
			numeric++
		}
		if _, isDate := ParseDate(v); isDate {
			dates++
		}
		distinct[CellString(v)] = struct{}{}
	}

	if sampled == 0 {
		return RoleText
	}
	if float64(dates)/float64(sampled) >= typeThreshold {
		return RoleDate
	}
	if float64(numeric)/float64(sampled) >= typeThreshold {
		return RoleNumeric
	}
	ratio := float64(len(distinct)) / float64(sampled)
	if len(distinct) <= 20 || ratio <= 0.5 {
		return RoleCategorical
	}
	return RoleText
}
