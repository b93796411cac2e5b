// Package lookup retrieves raw records for a specifically named entity or a
// filtered slice of the table, such as the most recent transactions. It only
// filters, orders, and caps rows; it never aggregates across them, so every
// value it returns is a literal cell from the table.
package lookup

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"analyst-workers/internal/analysis/tabular"
)

// Config tunes the engine. Zero values fall back to the documented defaults.
type Config struct {
	// MaxRows caps how many records are surfaced. The total match count is
	// still reported so the caller knows the cap was hit.
	MaxRows int
}

// Options adjusts a single Execute call.
type Options struct {
	// DatasetLabel records that the lookup ran over one named source instead
	// of the unified table.
	DatasetLabel string
}

// Result is the outcome of one lookup: the surfaced records plus the filter
// trail that produced them. TotalMatches counts every matching row, not just
// the capped display subset.
type Result struct {
	Entity         string                   `json:"entity,omitempty"`
	Records        []map[string]interface{} `json:"records,omitempty"`
	Fields         []string                 `json:"fields,omitempty"`
	TotalMatches   int                      `json:"totalMatches"`
	AppliedFilters []string                 `json:"appliedFilters,omitempty"`
	NoData         bool                     `json:"noData"`
	Message        string                   `json:"message,omitempty"`
}

// Engine answers record-retrieval questions. Stateless and safe for
// concurrent use.
type Engine struct {
	maxRows int
}

// NewEngine builds an engine from config.
func NewEngine(cfg Config) *Engine {
	e := &Engine{maxRows: cfg.MaxRows}
	if e.maxRows <= 0 {
		e.maxRows = 10
	}
	return e
}

var (
	recencyPattern     = regexp.MustCompile(`최근|지난|(?i)\brecent\b|\blatest\b|\blast\b`)
	yearFilterPattern  = regexp.MustCompile(`(\d{4})년`)
	monthFilterPattern = regexp.MustCompile(`(\d{1,2})월`)
	codePattern        = regexp.MustCompile(`\b[A-Z][A-Z0-9-]{2,}\b`)
	hangulTokenPattern = regexp.MustCompile(`[가-힣]{2,}`)
)

// tokenStopwords are question words and generic nouns that must never be
// mistaken for a partial entity name.
var tokenStopwords = map[string]struct{}{
	"무엇": {}, "어디": {}, "언제": {}, "누구": {}, "어떻게": {},
	"합계": {}, "평균": {}, "최근": {}, "지난": {}, "방문": {},
	"알려": {}, "알려줘": {}, "알려주세요": {}, "보여": {}, "보여줘": {}, "보여주세요": {},
	"정보": {}, "내역": {}, "거래": {}, "거래처": {}, "데이터": {}, "기록": {},
	"주세요": {}, "목록": {}, "상세": {}, "검색": {}, "조회": {}, "현황": {},
	"제품": {}, "품목": {}, "주문": {}, "고객": {}, "업체": {}, "매출": {}, "판매": {},
}

// conditions is everything the question asked the lookup to narrow by.
type conditions struct {
	entity string // full known entity name mentioned in the question
	token  string // partial name fragment, used only when entity is empty
	code   string
	year   int
	month  int
	recent bool
}

func (c conditions) empty() bool {
	return c.entity == "" && c.token == "" && c.code == "" &&
		c.year == 0 && c.month == 0 && !c.recent
}

// Execute runs one lookup over the given table. It always returns a result;
// an empty match comes back with NoData set instead of an error.
func (e *Engine) Execute(question string, t *tabular.Table, opts Options) *Result {
	var filters []string
	if opts.DatasetLabel != "" {
		filters = append(filters, "dataset="+opts.DatasetLabel)
	}
	if t == nil || t.NumRows() == 0 {
		return noDataResult(filters, "the table has no rows")
	}

	cond := parseConditions(question, t)

	rows := t.Rows
	if cond.year != 0 || cond.month != 0 {
		if dateCol := t.PrimaryDateColumn(); dateCol != "" {
			rows = tabular.FilterRowsByPeriod(rows, dateCol, cond.year, cond.month)
			if cond.year != 0 {
				filters = append(filters, fmt.Sprintf("year=%d", cond.year))
			}
			if cond.month != 0 {
				filters = append(filters, fmt.Sprintf("month=%d", cond.month))
			}
		}
	}

	switch {
	case cond.entity != "":
		rows = filterKeyEquals(rows, t.KeyColumn, cond.entity)
		filters = append(filters, t.KeyColumn+"="+cond.entity)
	case cond.token != "":
		rows = filterKeyContains(rows, t.KeyColumn, cond.token)
		filters = append(filters, t.KeyColumn+"~"+cond.token)
	}

	if cond.code != "" {
		if idCols := identifierColumns(t); len(idCols) > 0 {
			rows = filterAnyContains(rows, idCols, cond.code)
			filters = append(filters, "code~"+cond.code)
		}
	}

	total := len(rows)
	if total == 0 {
		return noDataResult(filters, "no records match the applied filters")
	}

	if cond.recent {
		if dateCol := t.PrimaryDateColumn(); dateCol != "" {
			rows = sortByDateDesc(rows, dateCol)
			filters = append(filters, "recent")
		}
	}

	if cond.empty() {
		filters = append(filters, fmt.Sprintf("first %d rows", e.maxRows))
	}

	display := rows
	if len(display) > e.maxRows {
		display = display[:e.maxRows]
	}
	records := make([]map[string]interface{}, 0, len(display))
	for _, row := range display {
		records = append(records, tabular.CopyRow(row))
	}

	return &Result{
		Entity:         cond.entity,
		Records:        records,
		Fields:         append([]string(nil), t.Columns...),
		TotalMatches:   total,
		AppliedFilters: filters,
	}
}

// parseConditions extracts every narrowing condition from the question. The
// entity match runs in stages: a full known entity name contained in the
// question, then a question fragment contained in a known entity name with
// trailing runes trimmed so particles glued onto a name still match, and
// finally, when nothing else constrains the lookup, an unverified name token
// that yields an explicit empty result instead of an arbitrary row sample.
func parseConditions(question string, t *tabular.Table) conditions {
	var cond conditions

	if m := yearFilterPattern.FindStringSubmatch(question); m != nil {
		cond.year, _ = strconv.Atoi(m[1])
	}
	if m := monthFilterPattern.FindStringSubmatch(question); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 && n <= 12 {
			cond.month = n
		}
	}
	cond.recent = recencyPattern.MatchString(question)
	if m := codePattern.FindString(question); m != "" {
		cond.code = m
	}

	if t.KeyColumn == "" || !t.HasColumn(t.KeyColumn) {
		return cond
	}
	known := t.DistinctValues(t.KeyColumn)
	lower := strings.ToLower(question)
	for _, name := range known {
		if len([]rune(name)) < 2 {
			continue
		}
		if strings.Contains(lower, strings.ToLower(name)) {
			cond.entity = name
			return cond
		}
	}

	tokens := nameTokens(question)
	for _, token := range tokens {
		if m := matchTokenAgainst(token, known); m != "" {
			cond.token = m
			return cond
		}
	}
	if cond.empty() {
		for _, token := range tokens {
			if len([]rune(token)) >= 3 {
				cond.token = token
				break
			}
		}
	}
	return cond
}

// nameTokens returns the question's hangul runs that could be entity names,
// with trailing particles trimmed and stopwords removed.
func nameTokens(question string) []string {
	var out []string
	for _, token := range hangulTokenPattern.FindAllString(question, -1) {
		if _, stop := tokenStopwords[token]; stop {
			continue
		}
		token = trimParticle(token)
		if _, stop := tokenStopwords[token]; stop {
			continue
		}
		out = append(out, token)
	}
	return out
}

var trailingParticles = map[rune]struct{}{
	'을': {}, '를': {}, '이': {}, '가': {}, '은': {}, '는': {},
	'의': {}, '에': {}, '로': {}, '와': {}, '과': {}, '도': {}, '만': {},
}

// trimParticle drops a single trailing particle rune from tokens of three or
// more runes, so "이놀의" searches as "이놀".
func trimParticle(token string) string {
	runes := []rune(token)
	if len(runes) >= 3 {
		if _, ok := trailingParticles[runes[len(runes)-1]]; ok {
			return string(runes[:len(runes)-1])
		}
	}
	return token
}

// matchTokenAgainst returns the longest prefix of token (at least two runes)
// that appears inside one of the known values.
func matchTokenAgainst(token string, known []string) string {
	runes := []rune(token)
	for len(runes) >= 2 {
		cand := strings.ToLower(string(runes))
		for _, v := range known {
			if strings.Contains(strings.ToLower(v), cand) {
				return string(runes)
			}
		}
		runes = runes[:len(runes)-1]
	}
	return ""
}

func filterKeyEquals(rows []map[string]interface{}, col, value string) []map[string]interface{} {
	var out []map[string]interface{}
	for _, row := range rows {
		if tabular.CellString(row[col]) == value {
			out = append(out, row)
		}
	}
	return out
}

func filterKeyContains(rows []map[string]interface{}, col, token string) []map[string]interface{} {
	needle := strings.ToLower(token)
	var out []map[string]interface{}
	for _, row := range rows {
		if strings.Contains(strings.ToLower(tabular.CellString(row[col])), needle) {
			out = append(out, row)
		}
	}
	return out
}

func filterAnyContains(rows []map[string]interface{}, cols []string, needle string) []map[string]interface{} {
	lowered := strings.ToLower(needle)
	var out []map[string]interface{}
	for _, row := range rows {
		for _, col := range cols {
			v, ok := row[col]
			if !ok || tabular.IsMissing(v) {
				continue
			}
			if strings.Contains(strings.ToLower(tabular.CellString(v)), lowered) {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

func identifierColumns(t *tabular.Table) []string {
	var out []string
	for _, col := range t.Columns {
		lower := strings.ToLower(col)
		for _, term := range tabular.DefaultIdentifierKeywords {
			if strings.Contains(lower, term) {
				out = append(out, col)
				break
			}
		}
	}
	return out
}

// sortByDateDesc orders rows newest first without touching the input slice.
// Rows with unparseable dates sink to the end.
func sortByDateDesc(rows []map[string]interface{}, dateCol string) []map[string]interface{} {
	out := make([]map[string]interface{}, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		ti, oki := tabular.ParseDate(out[i][dateCol])
		tj, okj := tabular.ParseDate(out[j][dateCol])
		if oki != okj {
			return oki
		}
		if !oki {
			return false
		}
		return ti.After(tj)
	})
	return out
}

func noDataResult(filters []string, msg string) *Result {
	return &Result{
		AppliedFilters: filters,
		NoData:         true,
		Message:        msg,
	}
}
