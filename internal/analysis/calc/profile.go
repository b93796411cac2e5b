package calc

import (
	"fmt"
	"sort"

	"analyst-workers/internal/analysis/tabular"
)

const (
	profileStatColumns = 10
	profileTopGroups   = 10
)

// EntityProfile is the deep dive produced when the question names a distinct
// value of the table's entity column: summary statistics, the yearly trend,
// the top categories, and the most recent raw records for that entity.
type EntityProfile struct {
	Entity        string                   `json:"entity"`
	RecordCount   int                      `json:"recordCount"`
	ColumnStats   []ColumnStats            `json:"columnStats,omitempty"`
	YearlyTrend   []YearBucket             `json:"yearlyTrend,omitempty"`
	TopCategory   *CategoryRanking         `json:"topCategory,omitempty"`
	RecentRecords []map[string]interface{} `json:"recentRecords,omitempty"`
}

// ColumnStats summarizes one measure column over the entity's rows. Count is
// the number of valid numeric cells the other statistics were computed from.
type ColumnStats struct {
	Column string  `json:"column"`
	Sum    float64 `json:"sum"`
	Mean   float64 `json:"mean"`
	Max    float64 `json:"max"`
	Min    float64 `json:"min"`
	Count  int     `json:"count"`
}

// YearBucket is one year of the entity's activity.
type YearBucket struct {
	Year  int     `json:"year"`
	Total float64 `json:"total"`
	Count int     `json:"count"`
}

// CategoryRanking ranks the entity's rows by a categorical column, highest
// measure total first.
type CategoryRanking struct {
	Column string       `json:"column"`
	Groups []GroupValue `json:"groups"`
}

// GroupValue is one ranked category.
type GroupValue struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
	Count int     `json:"count"`
}

// buildProfile runs the entity deep dive over the already period-filtered
// rows. The entity filter itself is recorded alongside the other filters.
func (e *Engine) buildProfile(entity string, p plan, t *tabular.Table, rows []map[string]interface{}, filters []string) *Result {
	var entityRows []map[string]interface{}
	for _, row := range rows {
		if tabular.CellString(row[t.KeyColumn]) == entity {
			entityRows = append(entityRows, row)
		}
	}
	filters = append(filters, t.KeyColumn+"="+entity)
	if len(entityRows) == 0 {
		return noDataResult(p.kind, filters, fmt.Sprintf("no records for %s match the applied filters", entity))
	}

	targets := e.numericTargets(t)
	if len(targets) > profileStatColumns {
		targets = targets[:profileStatColumns]
	}
	measure := ""
	if len(targets) > 0 {
		measure = targets[0]
	}
	dateCol := t.PrimaryDateColumn()

	profile := &EntityProfile{
		Entity:        entity,
		RecordCount:   len(entityRows),
		ColumnStats:   columnStats(entityRows, targets),
		TopCategory:   topCategory(entityRows, t, measure),
		RecentRecords: e.recentRecords(entityRows, dateCol),
	}
	if dateCol != "" {
		profile.YearlyTrend = yearlyTrend(entityRows, dateCol, measure)
	}

	return &Result{
		Kind:            p.kind,
		AppliedFilters:  filters,
		Evidence:        e.sampleRows(entityRows),
		EvidenceColumns: append([]string(nil), t.Columns...),
		Profile:         profile,
		TotalGroups:     1,
	}
}

func columnStats(rows []map[string]interface{}, targets []string) []ColumnStats {
	var out []ColumnStats
	for _, col := range targets {
		var sum, max, min float64
		var count int
		for _, row := range rows {
			v, ok := row[col]
			if !ok || tabular.IsMissing(v) {
				continue
			}
			f, ok := tabular.ToFloat(v)
			if !ok {
				continue
			}
			if count == 0 {
				max, min = f, f
			} else {
				if f > max {
					max = f
				}
				if f < min {
					min = f
				}
			}
			sum += f
			count++
		}
		if count == 0 {
			continue
		}
		out = append(out, ColumnStats{
			Column: col,
			Sum:    sum,
			Mean:   sum / float64(count),
			Max:    max,
			Min:    min,
			Count:  count,
		})
	}
	return out
}

// yearlyTrend buckets the entity's rows by calendar year, oldest first.
// Total stays zero when the table has no measure column; Count still shows
// the activity level.
func yearlyTrend(rows []map[string]interface{}, dateCol, measure string) []YearBucket {
	byYear := make(map[int]*YearBucket)
	var years []int
	for _, row := range rows {
		ts, ok := tabular.ParseDate(row[dateCol])
		if !ok {
			continue
		}
		y := ts.Year()
		b, ok := byYear[y]
		if !ok {
			b = &YearBucket{Year: y}
			byYear[y] = b
			years = append(years, y)
		}
		b.Count++
		if measure != "" {
			if f, ok := tabular.ToFloat(row[measure]); ok && !tabular.IsMissing(row[measure]) {
				b.Total += f
			}
		}
	}
	sort.Ints(years)
	out := make([]YearBucket, 0, len(years))
	for _, y := range years {
		out = append(out, *byYear[y])
	}
	return out
}

// topCategory ranks the first categorical column other than the entity
// column itself. Ranking value is the measure total per category, or the row
// count when the table has no measure column.
func topCategory(rows []map[string]interface{}, t *tabular.Table, measure string) *CategoryRanking {
	catCol := ""
	for _, col := range t.ColumnsWithRole(tabular.RoleCategorical) {
		if col == t.KeyColumn {
			continue
		}
		catCol = col
		break
	}
	if catCol == "" {
		return nil
	}

	index := make(map[string]*GroupValue)
	var ordered []*GroupValue
	for _, row := range rows {
		v, ok := row[catCol]
		if !ok || tabular.IsMissing(v) {
			continue
		}
		key := tabular.CellString(v)
		g, ok := index[key]
		if !ok {
			g = &GroupValue{Key: key}
			index[key] = g
			ordered = append(ordered, g)
		}
		g.Count++
		if measure != "" {
			if f, ok := tabular.ToFloat(row[measure]); ok && !tabular.IsMissing(row[measure]) {
				g.Value += f
			}
		} else {
			g.Value = float64(g.Count)
		}
	}
	if len(ordered) == 0 {
		return nil
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Value > ordered[j].Value })
	if len(ordered) > profileTopGroups {
		ordered = ordered[:profileTopGroups]
	}
	groups := make([]GroupValue, 0, len(ordered))
	for _, g := range ordered {
		groups = append(groups, *g)
	}
	return &CategoryRanking{Column: catCol, Groups: groups}
}

// recentRecords returns up to recentRows raw records, newest first when a
// date column exists, otherwise the tail of the table in original order.
func (e *Engine) recentRecords(rows []map[string]interface{}, dateCol string) []map[string]interface{} {
	picked := make([]map[string]interface{}, len(rows))
	copy(picked, rows)
	if dateCol != "" {
		sort.SliceStable(picked, func(i, j int) bool {
			ti, oki := tabular.ParseDate(picked[i][dateCol])
			tj, okj := tabular.ParseDate(picked[j][dateCol])
			if oki != okj {
				return oki
			}
			if !oki {
				return false
			}
			return ti.After(tj)
		})
	} else if len(picked) > e.recentRows {
		picked = picked[len(picked)-e.recentRows:]
	}
	if len(picked) > e.recentRows {
		picked = picked[:e.recentRows]
	}
	out := make([]map[string]interface{}, 0, len(picked))
	for _, row := range picked {
		out = append(out, tabular.CopyRow(row))
	}
	return out
}
