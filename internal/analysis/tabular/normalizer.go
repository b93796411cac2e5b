package tabular

import "strings"

// DefaultNumericKeywords mark columns that carry amounts, quantities, or
// ratios. A column participates in numeric normalization only when its name
// contains one of these terms.
var DefaultNumericKeywords = []string{
	"합계", "금액", "가액", "세", "단가", "수량", "마진", "율", "%", "개", "건", "점수",
	"amount", "total", "sum", "price", "quantity", "qty", "tax",
	"rate", "margin", "score", "revenue", "sales", "cost", "value",
}

// DefaultIdentifierKeywords mark columns that hold identifiers rather than
// measures: order numbers, entity codes, row ids. The answer engines treat
// these columns as searchable text and never aggregate them.
var DefaultIdentifierKeywords = []string{
	"번호", "코드", "id", "index", "number", "code",
}

// Normalizer coerces numeric-looking text columns into real numbers while
// preserving missing-value semantics.
type Normalizer struct {
	keywords []string
}

// NewNormalizer builds a Normalizer. An empty keyword list selects the
// compiled-in defaults.
func NewNormalizer(keywords []string) *Normalizer {
	if len(keywords) == 0 {
		keywords = DefaultNumericKeywords
	}
	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}
	return &Normalizer{keywords: lowered}
}

// Targets returns the columns of t whose names match the numeric keywords.
func (n *Normalizer) Targets(t *Table) []string {
	var out []string
	for _, col := range t.Columns {
		if n.matches(col) {
			out = append(out, col)
		}
	}
	return out
}

func (n *Normalizer) matches(col string) bool {
	lower := strings.ToLower(col)
	for _, k := range n.keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// Normalize converts every targeted column of t in place. Placeholder
// tokens and unparseable values become nil, never zero. Columns outside
// the keyword set are left untouched, and reapplying is a no-op.
func (n *Normalizer) Normalize(t *Table) {
	targets := n.Targets(t)
	if len(targets) == 0 {
		return
	}

	for _, row := range t.Rows {
		for _, col := range targets {
			v, ok := row[col]
			if !ok {
				continue
			}
			row[col] = normalizeCell(v)
		}
	}
}

// normalizeCell maps one cell to float64 or nil.
func normalizeCell(v interface{}) interface{} {
	if IsMissing(v) {
		return nil
	}
	if f, ok := ToFloat(v); ok {
		return f
	}
	// Unparseable numeric text is absorbed as missing rather than failing
	// the whole table.
	return nil
}
