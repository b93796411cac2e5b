// Package calc answers quantitative questions over a unified table. It
// parses the aggregation, grouping, ranking, and period constraints out of
// the question text, computes the result with plain float64 arithmetic, and
// returns literal rows plus the raw evidence sample that backs them. The
// engine never guesses: when the table cannot support the requested
// computation it says so in the result instead of fabricating numbers.
package calc

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"analyst-workers/internal/analysis/tabular"
)

// Kind names the aggregation applied to each group.
type Kind string

const (
	KindSum   Kind = "sum"
	KindMean  Kind = "mean"
	KindCount Kind = "count"
	KindMax   Kind = "max"
	KindMin   Kind = "min"
)

// countColumn is the value column name used when the question asks for a
// record count rather than a numeric aggregate.
const countColumn = "count"

// maxValueColumns bounds how many measure columns a grouped result carries
// so wide tables do not flood the grounding context.
const maxValueColumns = 5

// Config tunes the engine. Zero values fall back to the documented defaults.
type Config struct {
	// NumericKeywords selects measure columns by name, matching the
	// normalizer's target list.
	NumericKeywords []string
	// IdentifierTerms excludes identifier-like columns from aggregation.
	IdentifierTerms []string
	// DefaultTopN is the group limit when a ranking word appears without an
	// explicit count.
	DefaultTopN int
	// MaxTopN bounds the group list when the question gives no limit at all.
	MaxTopN int
	// EvidenceRows caps the raw-row evidence sample attached to each result.
	EvidenceRows int
	// RecentRows caps the recent-record list inside an entity profile.
	RecentRows int
}

// Options adjusts a single Execute call.
type Options struct {
	// DatasetLabel records that the computation ran over one named source
	// instead of the unified table. It is provenance only; the caller picks
	// the table.
	DatasetLabel string
}

// Result is the complete outcome of one calculation. Exactly one of three
// shapes is populated: a grouped result table, an entity profile, or a
// no-data explanation.
type Result struct {
	Kind           Kind                     `json:"kind"`
	GroupBy        string                   `json:"groupBy,omitempty"`
	ValueColumns   []string                 `json:"valueColumns,omitempty"`
	Table          *tabular.Table           `json:"table,omitempty"`
	Profile        *EntityProfile           `json:"profile,omitempty"`
	AppliedFilters []string                 `json:"appliedFilters,omitempty"`
	Evidence       []map[string]interface{} `json:"evidence,omitempty"`
	// EvidenceColumns is the source table's column order, so evidence and
	// profile rows render the same way the table displays.
	EvidenceColumns []string `json:"evidenceColumns,omitempty"`
	TotalGroups     int      `json:"totalGroups"`
	NoData          bool     `json:"noData"`
	Message         string   `json:"message,omitempty"`
}

// Engine executes calculations. It is stateless across calls and safe for
// concurrent use.
type Engine struct {
	numericKeywords []string
	identifierTerms []string
	defaultTopN     int
	maxTopN         int
	evidenceRows    int
	recentRows      int
}

// NewEngine builds an engine from config, applying defaults for every zero
// field.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		numericKeywords: lowerAll(cfg.NumericKeywords),
		identifierTerms: lowerAll(cfg.IdentifierTerms),
		defaultTopN:     cfg.DefaultTopN,
		maxTopN:         cfg.MaxTopN,
		evidenceRows:    cfg.EvidenceRows,
		recentRows:      cfg.RecentRows,
	}
	if len(e.numericKeywords) == 0 {
		e.numericKeywords = lowerAll(tabular.DefaultNumericKeywords)
	}
	if len(e.identifierTerms) == 0 {
		e.identifierTerms = lowerAll(tabular.DefaultIdentifierKeywords)
	}
	if e.defaultTopN <= 0 {
		e.defaultTopN = 5
	}
	if e.maxTopN <= 0 {
		e.maxTopN = 50
	}
	if e.evidenceRows <= 0 {
		e.evidenceRows = 5
	}
	if e.recentRows <= 0 {
		e.recentRows = 10
	}
	return e
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// aggregationPatterns is checked in order; the first match wins. Questions
// without any aggregation word default to sum.
var aggregationPatterns = []struct {
	kind Kind
	re   *regexp.Regexp
}{
	{KindSum, regexp.MustCompile(`합계|총|전체|(?i)\bsum\b|\btotal\b`)},
	{KindMean, regexp.MustCompile(`평균|(?i)\baverage\b|\bmean\b`)},
	{KindCount, regexp.MustCompile(`개수|건수|몇|카운트|(?i)\bcount\b|\bhow many\b`)},
	{KindMax, regexp.MustCompile(`최대|최댓값|최고|(?i)\bmax(imum)?\b|\bhighest\b|\blargest\b`)},
	{KindMin, regexp.MustCompile(`최소|최솟값|최저|(?i)\bmin(imum)?\b|\blowest\b|\bsmallest\b`)},
}

var (
	descRankPattern  = regexp.MustCompile(`(?i)상위|순위|랭킹|\btop\b|\brank`)
	ascRankPattern   = regexp.MustCompile(`(?i)하위|\bbottom\b|\blowest\s+\d`)
	rankCountPattern = regexp.MustCompile(`(?i)(?:상위|하위|\btop\b|\bbottom\b)\s*(\d+)`)

	monthGroupPattern   = regexp.MustCompile(`(?i)월별|\bmonthly\b|\bby\s+month\b|\bper\s+month\b`)
	quarterGroupPattern = regexp.MustCompile(`(?i)분기별|\bquarterly\b|\bby\s+quarter\b`)
	yearGroupPattern    = regexp.MustCompile(`(?i)년도별|연도별|\byearly\b|\bannually\b|\bby\s+year\b`)
	suffixGroupPattern  = regexp.MustCompile(`([\p{L}\p{N}]+)별`)
	byPhrasePattern     = regexp.MustCompile(`(?i)\b(?:by|per)\s+(\p{L}+)`)

	yearFilterPattern  = regexp.MustCompile(`(\d{4})년`)
	monthFilterPattern = regexp.MustCompile(`(\d{1,2})월`)
)

// plan is the parsed intent of one question.
type plan struct {
	kind       Kind
	ranking    string // "", "desc", "asc"
	explicitN  int
	bucket     string // "", "year", "quarter", "month"
	groupToken string
	year       int
	month      int
}

func parseQuestion(question string) plan {
	p := plan{kind: KindSum}
	for _, sig := range aggregationPatterns {
		if sig.re.MatchString(question) {
			p.kind = sig.kind
			break
		}
	}

	switch {
	case descRankPattern.MatchString(question):
		p.ranking = "desc"
	case ascRankPattern.MatchString(question):
		p.ranking = "asc"
	}
	if m := rankCountPattern.FindStringSubmatch(question); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			p.explicitN = n
		}
	}

	switch {
	case monthGroupPattern.MatchString(question):
		p.bucket = "month"
	case quarterGroupPattern.MatchString(question):
		p.bucket = "quarter"
	case yearGroupPattern.MatchString(question):
		p.bucket = "year"
	default:
		if m := suffixGroupPattern.FindStringSubmatch(question); m != nil {
			p.groupToken = m[1]
		} else if m := byPhrasePattern.FindStringSubmatch(question); m != nil {
			p.groupToken = m[1]
		}
	}

	if m := yearFilterPattern.FindStringSubmatch(question); m != nil {
		p.year, _ = strconv.Atoi(m[1])
	}
	if m := monthFilterPattern.FindStringSubmatch(question); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 && n <= 12 {
			p.month = n
		}
	}
	return p
}

// Execute runs one calculation over the given table. It always returns a
// result; impossible requests come back with NoData set and a message naming
// the reason.
func (e *Engine) Execute(question string, t *tabular.Table, opts Options) *Result {
	p := parseQuestion(question)

	var filters []string
	if opts.DatasetLabel != "" {
		filters = append(filters, "dataset="+opts.DatasetLabel)
	}

	if t == nil || t.NumRows() == 0 {
		return noDataResult(p.kind, filters, "the table has no rows")
	}

	rows := t.Rows
	rows, filters = e.applyPeriodFilter(p, t, rows, filters)
	if len(rows) == 0 {
		return noDataResult(p.kind, filters, "no rows match the applied filters")
	}

	if entity := detectEntity(question, t); entity != "" {
		return e.buildProfile(entity, p, t, rows, filters)
	}

	targets := e.numericTargets(t)
	if len(targets) > maxValueColumns {
		targets = targets[:maxValueColumns]
	}
	if p.kind != KindCount && len(targets) == 0 {
		return noDataResult(p.kind, filters, "the table has no computable numeric column")
	}

	grp, ok := e.resolveGrouping(p, t)
	if !ok {
		return noDataResult(p.kind, filters, "time grouping requested but the table has no date column")
	}

	if grp.column == "" && grp.bucket == "" {
		return e.wholeTableResult(p, t, rows, targets, filters)
	}
	return e.groupedResult(p, t, rows, targets, grp, filters)
}

// applyPeriodFilter narrows rows to the requested year and month using the
// primary date column. Without a date column the period constraint is
// ignored and no filter entry is recorded.
func (e *Engine) applyPeriodFilter(p plan, t *tabular.Table, rows []map[string]interface{}, filters []string) ([]map[string]interface{}, []string) {
	if p.year == 0 && p.month == 0 {
		return rows, filters
	}
	dateCol := t.PrimaryDateColumn()
	if dateCol == "" {
		return rows, filters
	}
	rows = tabular.FilterRowsByPeriod(rows, dateCol, p.year, p.month)
	if p.year != 0 {
		filters = append(filters, fmt.Sprintf("year=%d", p.year))
	}
	if p.month != 0 {
		filters = append(filters, fmt.Sprintf("month=%d", p.month))
	}
	return rows, filters
}

// numericTargets picks the measure columns: numeric role, a recognized
// quantity word in the name, and no identifier term.
func (e *Engine) numericTargets(t *tabular.Table) []string {
	var out []string
	for _, col := range t.Columns {
		if t.Roles[col] != tabular.RoleNumeric {
			continue
		}
		lower := strings.ToLower(col)
		if !containsAny(lower, e.numericKeywords) {
			continue
		}
		if containsAny(lower, e.identifierTerms) {
			continue
		}
		out = append(out, col)
	}
	return out
}

func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}

// grouping resolves what the result rows are keyed by: either a table column
// or a calendar bucket over the primary date column.
type grouping struct {
	column string
	bucket string // "", "year", "quarter", "month"
	label  string
}

// resolveGrouping maps the parsed group request onto the table. The bool is
// false only when a time bucket was requested and no date column exists.
func (e *Engine) resolveGrouping(p plan, t *tabular.Table) (grouping, bool) {
	if p.bucket != "" {
		if t.PrimaryDateColumn() == "" {
			return grouping{}, false
		}
		return grouping{bucket: p.bucket, label: p.bucket}, true
	}
	if p.groupToken != "" {
		token := strings.ToLower(p.groupToken)
		for _, col := range t.Columns {
			if !strings.Contains(strings.ToLower(col), token) {
				continue
			}
			if t.Roles[col] == tabular.RoleNumeric {
				continue
			}
			return grouping{column: col, label: col}, true
		}
	}
	if t.KeyColumn != "" && t.HasColumn(t.KeyColumn) {
		return grouping{column: t.KeyColumn, label: t.KeyColumn}, true
	}
	for _, col := range t.ColumnsWithRole(tabular.RoleCategorical) {
		return grouping{column: col, label: col}, true
	}
	return grouping{}, true
}

// aggGroup is one group during computation, kept in first-appearance order
// so ranking ties resolve by original key order.
type aggGroup struct {
	key       string
	rows      []map[string]interface{}
	values    map[string]interface{}
	sortVal   float64
	sortValid bool
}

func (e *Engine) groupedResult(p plan, t *tabular.Table, rows []map[string]interface{}, targets []string, grp grouping, filters []string) *Result {
	groups := collectGroups(rows, t, grp)
	if len(groups) == 0 {
		return noDataResult(p.kind, filters, "no rows carry a usable group key")
	}
	total := len(groups)

	valueCols := targets
	if p.kind == KindCount {
		valueCols = []string{countColumn}
	}
	for _, g := range groups {
		g.values = make(map[string]interface{}, len(valueCols))
		if p.kind == KindCount {
			g.values[countColumn] = float64(len(g.rows))
		} else {
			for _, col := range targets {
				g.values[col] = aggregate(p.kind, g.rows, col)
			}
		}
		g.sortVal, g.sortValid = toSortValue(g.values[valueCols[0]])
	}

	chrono := grp.bucket != "" && p.ranking == ""
	if chrono {
		sort.SliceStable(groups, func(i, j int) bool { return groups[i].key < groups[j].key })
	} else {
		asc := p.ranking == "asc"
		sort.SliceStable(groups, func(i, j int) bool {
			gi, gj := groups[i], groups[j]
			if gi.sortValid != gj.sortValid {
				return gi.sortValid
			}
			if !gi.sortValid {
				return false
			}
			if asc {
				return gi.sortVal < gj.sortVal
			}
			return gi.sortVal > gj.sortVal
		})
	}

	limit := p.explicitN
	if limit == 0 {
		if p.ranking != "" {
			limit = e.defaultTopN
		} else {
			limit = e.maxTopN
		}
	}
	capped := len(groups) > limit
	if capped {
		if chrono {
			groups = groups[len(groups)-limit:]
		} else {
			groups = groups[:limit]
		}
	}

	switch {
	case p.ranking == "asc":
		filters = append(filters, fmt.Sprintf("bottom %d", limit))
	case p.ranking == "desc":
		filters = append(filters, fmt.Sprintf("top %d", limit))
	case capped && chrono:
		filters = append(filters, fmt.Sprintf("last %d of %d periods", limit, total))
	case capped:
		filters = append(filters, fmt.Sprintf("top %d of %d groups", limit, total))
	}

	cols := append([]string{grp.label}, valueCols...)
	roles := map[string]tabular.Role{grp.label: tabular.RoleCategorical}
	for _, c := range valueCols {
		roles[c] = tabular.RoleNumeric
	}
	resultRows := make([]map[string]interface{}, 0, len(groups))
	for _, g := range groups {
		row := map[string]interface{}{grp.label: g.key}
		for _, c := range valueCols {
			row[c] = g.values[c]
		}
		resultRows = append(resultRows, row)
	}

	return &Result{
		Kind:           p.kind,
		GroupBy:        grp.label,
		ValueColumns:   valueCols,
		Table: &tabular.Table{
			Name:      "calc",
			Columns:   cols,
			Rows:      resultRows,
			Roles:     roles,
			KeyColumn: grp.label,
		},
		AppliedFilters:  filters,
		Evidence:        e.evidenceForGroups(rows, t, grp, groups),
		EvidenceColumns: append([]string(nil), t.Columns...),
		TotalGroups:     total,
	}
}

// wholeTableResult handles tables with no groupable column: one row of
// aggregates over every filtered row.
func (e *Engine) wholeTableResult(p plan, t *tabular.Table, rows []map[string]interface{}, targets []string, filters []string) *Result {
	valueCols := targets
	row := map[string]interface{}{}
	if p.kind == KindCount {
		valueCols = []string{countColumn}
		row[countColumn] = float64(len(rows))
	} else {
		for _, col := range targets {
			row[col] = aggregate(p.kind, rows, col)
		}
	}
	roles := map[string]tabular.Role{}
	for _, c := range valueCols {
		roles[c] = tabular.RoleNumeric
	}
	return &Result{
		Kind:         p.kind,
		ValueColumns: valueCols,
		Table: &tabular.Table{
			Name:    "calc",
			Columns: valueCols,
			Rows:    []map[string]interface{}{row},
			Roles:   roles,
		},
		AppliedFilters:  filters,
		Evidence:        e.sampleRows(rows),
		EvidenceColumns: append([]string(nil), t.Columns...),
		TotalGroups:     1,
	}
}

// groupKey derives the group key for one row: the cell value for column
// grouping, a calendar label for bucketed grouping. The bool is false when
// the row cannot be keyed and must be left out, matching how spreadsheet
// group-bys treat blank keys.
func groupKey(row map[string]interface{}, grp grouping, dateCol string) (string, bool) {
	if grp.bucket == "" {
		v, ok := row[grp.column]
		if !ok || tabular.IsMissing(v) {
			return "", false
		}
		return tabular.CellString(v), true
	}
	ts, ok := tabular.ParseDate(row[dateCol])
	if !ok {
		return "", false
	}
	switch grp.bucket {
	case "year":
		return fmt.Sprintf("%04d", ts.Year()), true
	case "quarter":
		return fmt.Sprintf("%04d-Q%d", ts.Year(), (int(ts.Month())-1)/3+1), true
	default:
		return fmt.Sprintf("%04d-%02d", ts.Year(), int(ts.Month())), true
	}
}

// collectGroups partitions rows in first-appearance order.
func collectGroups(rows []map[string]interface{}, t *tabular.Table, grp grouping) []*aggGroup {
	index := make(map[string]*aggGroup)
	var ordered []*aggGroup
	dateCol := t.PrimaryDateColumn()
	for _, row := range rows {
		key, ok := groupKey(row, grp, dateCol)
		if !ok {
			continue
		}
		g, ok := index[key]
		if !ok {
			g = &aggGroup{key: key}
			index[key] = g
			ordered = append(ordered, g)
		}
		g.rows = append(g.rows, row)
	}
	return ordered
}

// aggregate computes one statistic over one column, skipping missing and
// non-numeric cells. Sum of nothing is 0; mean, max, and min of nothing are
// nil so the renderer shows a gap instead of a made-up zero.
func aggregate(kind Kind, rows []map[string]interface{}, col string) interface{} {
	var sum float64
	var count int
	var max, min float64
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
	switch kind {
	case KindSum:
		return sum
	case KindMean:
		if count == 0 {
			return nil
		}
		return sum / float64(count)
	case KindMax:
		if count == 0 {
			return nil
		}
		return max
	case KindMin:
		if count == 0 {
			return nil
		}
		return min
	default:
		return float64(count)
	}
}

func toSortValue(v interface{}) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return tabular.ToFloat(v)
}

// evidenceForGroups samples raw rows that belong to the returned groups, in
// table order, so the evidence always backs the reported numbers.
func (e *Engine) evidenceForGroups(rows []map[string]interface{}, t *tabular.Table, grp grouping, groups []*aggGroup) []map[string]interface{} {
	member := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		member[g.key] = struct{}{}
	}
	dateCol := t.PrimaryDateColumn()
	var out []map[string]interface{}
	for _, row := range rows {
		if len(out) >= e.evidenceRows {
			break
		}
		key, ok := groupKey(row, grp, dateCol)
		if !ok {
			continue
		}
		if _, ok := member[key]; !ok {
			continue
		}
		out = append(out, tabular.CopyRow(row))
	}
	return out
}

func (e *Engine) sampleRows(rows []map[string]interface{}) []map[string]interface{} {
	n := e.evidenceRows
	if n > len(rows) {
		n = len(rows)
	}
	out := make([]map[string]interface{}, 0, n)
	for _, row := range rows[:n] {
		out = append(out, tabular.CopyRow(row))
	}
	return out
}

// detectEntity reports the first distinct key-column value mentioned in the
// question. Values shorter than two runes are skipped to avoid accidental
// single-character hits.
func detectEntity(question string, t *tabular.Table) string {
	if t.KeyColumn == "" || !t.HasColumn(t.KeyColumn) {
		return ""
	}
	lower := strings.ToLower(question)
	for _, name := range t.DistinctValues(t.KeyColumn) {
		if len([]rune(name)) < 2 {
			continue
		}
		if strings.Contains(lower, strings.ToLower(name)) {
			return name
		}
	}
	return ""
}

func noDataResult(kind Kind, filters []string, msg string) *Result {
	return &Result{
		Kind:           kind,
		AppliedFilters: filters,
		NoData:         true,
		Message:        msg,
	}
}
