// Package grounding assembles the context handed to answer synthesis. The
// context carries only literal values computed by the answer engines plus
// the provenance of those values, and an instruction block that binds the
// synthesized answer to them, so every statement in an answer can be traced
// back to source rows or retrieved passages.
package grounding

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"analyst-workers/internal/analysis/calc"
	"analyst-workers/internal/analysis/lookup"
	"analyst-workers/internal/analysis/routing"
	"analyst-workers/internal/analysis/tabular"
)

// Passage is one retrieved document chunk.
type Passage struct {
	ID     string  `json:"id,omitempty"`
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
}

// Context is the grounding payload for one question. Facts holds the
// rendered literal values; the remaining fields carry provenance so the
// synthesized answer can state its scope.
type Context struct {
	Mode           routing.Mode `json:"mode"`
	Question       string       `json:"question"`
	Facts          string       `json:"facts"`
	Sources        []string     `json:"sources,omitempty"`
	RowCount       int          `json:"rowCount"`
	AppliedFilters []string     `json:"appliedFilters,omitempty"`
	NoData         bool         `json:"noData"`
	Instructions   []string     `json:"instructions"`
}

// Config controls masking of raw record fields.
type Config struct {
	// MaskSensitive enables masking of personal identifiers before raw
	// record fields enter the context.
	MaskSensitive bool
	// SensitiveColumns overrides the column-name fragments that mark a
	// field as sensitive. Empty keeps DefaultSensitiveColumns.
	SensitiveColumns []string
}

// Assembler renders engine results into grounding contexts. It holds no
// per-question state and is safe for concurrent use.
type Assembler struct {
	mask *Masker
}

// NewAssembler builds an Assembler from cfg.
func NewAssembler(cfg Config) *Assembler {
	return &Assembler{mask: NewMasker(cfg.MaskSensitive, cfg.SensitiveColumns)}
}

const (
	calcInstruction    = "Quote the computed values exactly as shown, together with their grouping and filters."
	lookupInstruction  = "Describe only the listed records; the shown and total counts define the scope."
	ragInstruction     = "Attribute passage content to its numbered source."
	absenceInstruction = "State clearly that no matching data was found."
)

// baseInstructions restate the contract the answer engines guarantee: every
// value in Facts is computed from source data, and nothing outside Facts is
// known.
func baseInstructions() []string {
	return []string{
		"Answer using only the literal values in the facts section.",
		"Never invent entity, product, or column names that do not appear in the facts.",
		"If the facts do not cover the question, state that the data does not contain it instead of guessing.",
		"Read '-' cells as missing values, not as zero.",
	}
}

// FromCalc renders a calculation result. sources names the datasets the
// unified table was built from.
func (a *Assembler) FromCalc(question string, res *calc.Result, sources []string) *Context {
	ctx := &Context{
		Mode:           routing.ModeCalc,
		Question:       question,
		Sources:        sources,
		AppliedFilters: res.AppliedFilters,
		Instructions:   baseInstructions(),
	}
	if res.NoData {
		ctx.NoData = true
		ctx.Facts = noDataFacts(res.Message)
		ctx.Instructions = append(ctx.Instructions, absenceInstruction)
		return ctx
	}

	var b strings.Builder
	if res.Profile != nil {
		ctx.RowCount = res.Profile.RecordCount
		a.writeProfile(&b, res)
	} else {
		ctx.RowCount = res.TotalGroups
		a.writeGrouped(&b, res)
	}
	ctx.Facts = strings.TrimRight(b.String(), "\n")
	ctx.Instructions = append(ctx.Instructions, calcInstruction)
	return ctx
}

// FromLookup renders a record lookup result.
func (a *Assembler) FromLookup(question string, res *lookup.Result, sources []string) *Context {
	ctx := &Context{
		Mode:           routing.ModeLookup,
		Question:       question,
		Sources:        sources,
		AppliedFilters: res.AppliedFilters,
		RowCount:       res.TotalMatches,
		Instructions:   baseInstructions(),
	}
	if res.NoData {
		ctx.NoData = true
		ctx.Facts = noDataFacts(res.Message)
		ctx.Instructions = append(ctx.Instructions, absenceInstruction)
		return ctx
	}

	var b strings.Builder
	if res.Entity != "" {
		fmt.Fprintf(&b, "Records for %s:\n", res.Entity)
	} else {
		b.WriteString("Matching records:\n")
	}
	b.WriteString(a.renderRows(res.Records, res.Fields))
	if res.TotalMatches > len(res.Records) {
		fmt.Fprintf(&b, "Showing %d of %d matching rows.\n", len(res.Records), res.TotalMatches)
	}
	ctx.Facts = strings.TrimRight(b.String(), "\n")
	ctx.Instructions = append(ctx.Instructions, lookupInstruction)
	return ctx
}

// FromPassages renders retrieved passages for an open-ended question.
func (a *Assembler) FromPassages(question string, passages []Passage) *Context {
	ctx := &Context{
		Mode:         routing.ModeRAG,
		Question:     question,
		RowCount:     len(passages),
		Instructions: baseInstructions(),
	}
	if len(passages) == 0 {
		ctx.NoData = true
		ctx.Facts = noDataFacts("no relevant passages were retrieved")
		ctx.Instructions = append(ctx.Instructions, absenceInstruction)
		return ctx
	}

	var b strings.Builder
	b.WriteString("Retrieved passages:\n")
	for i, p := range passages {
		fmt.Fprintf(&b, "\n[%d] %s (relevance %.2f)\n%s\n", i+1, p.Source, p.Score, strings.TrimSpace(p.Text))
		ctx.Sources = append(ctx.Sources, fmt.Sprintf("[%d] %s", i+1, p.Source))
	}
	ctx.Facts = strings.TrimRight(b.String(), "\n")
	ctx.Instructions = append(ctx.Instructions, ragInstruction)
	return ctx
}

func (a *Assembler) writeGrouped(b *strings.Builder, res *calc.Result) {
	targets := strings.Join(res.ValueColumns, ", ")
	if res.Kind == calc.KindCount {
		targets = "rows"
	}
	if res.GroupBy != "" {
		fmt.Fprintf(b, "Computed %s of %s grouped by %s:\n", res.Kind, targets, res.GroupBy)
	} else {
		fmt.Fprintf(b, "Computed %s of %s over all rows:\n", res.Kind, targets)
	}
	b.WriteString(renderColumnsRows(res.Table.Columns, res.Table.Rows))
	if res.TotalGroups > len(res.Table.Rows) {
		fmt.Fprintf(b, "Showing %d of %d groups.\n", len(res.Table.Rows), res.TotalGroups)
	}
	if len(res.Evidence) > 0 {
		b.WriteString("\nSample source rows:\n")
		b.WriteString(a.renderRows(res.Evidence, res.EvidenceColumns))
	}
}

// writeProfile renders the entity deep dive. The profile's recent records
// stand in for sample rows, so the evidence block is not repeated here.
func (a *Assembler) writeProfile(b *strings.Builder, res *calc.Result) {
	p := res.Profile
	fmt.Fprintf(b, "Profile for %s (%d records):\n", p.Entity, p.RecordCount)
	if len(p.ColumnStats) > 0 {
		b.WriteString("\nColumn statistics:\n")
		b.WriteString(renderStats(p.ColumnStats))
	}
	if len(p.YearlyTrend) > 0 {
		b.WriteString("\nYearly trend:\n")
		b.WriteString(renderTrend(p.YearlyTrend))
	}
	if p.TopCategory != nil && len(p.TopCategory.Groups) > 0 {
		fmt.Fprintf(b, "\nTop %s:\n", escapeCell(p.TopCategory.Column))
		b.WriteString(renderRanking(p.TopCategory))
	}
	if len(p.RecentRecords) > 0 {
		b.WriteString("\nMost recent records:\n")
		b.WriteString(a.renderRows(p.RecentRecords, res.EvidenceColumns))
	}
}

// renderRows masks sensitive fields and renders the rows as a markdown
// table in the given column order.
func (a *Assembler) renderRows(rows []map[string]interface{}, cols []string) string {
	masked := make([]map[string]interface{}, len(rows))
	for i, r := range rows {
		masked[i] = a.mask.MaskRow(r, cols)
	}
	return renderColumnsRows(cols, masked)
}

func renderColumnsRows(cols []string, rows []map[string]interface{}) string {
	var b strings.Builder
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = escapeCell(c)
	}
	b.WriteString("| " + strings.Join(header, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(cols)) + "\n")
	for _, row := range rows {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = renderCell(row[c])
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return b.String()
}

func renderStats(stats []calc.ColumnStats) string {
	var b strings.Builder
	b.WriteString("| column | sum | mean | max | min | count |\n")
	b.WriteString("|" + strings.Repeat(" --- |", 6) + "\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %d |\n",
			escapeCell(s.Column), formatNumber(s.Sum), formatNumber(s.Mean),
			formatNumber(s.Max), formatNumber(s.Min), s.Count)
	}
	return b.String()
}

func renderTrend(trend []calc.YearBucket) string {
	var b strings.Builder
	b.WriteString("| year | total | count |\n")
	b.WriteString("|" + strings.Repeat(" --- |", 3) + "\n")
	for _, y := range trend {
		fmt.Fprintf(&b, "| %d | %s | %d |\n", y.Year, formatNumber(y.Total), y.Count)
	}
	return b.String()
}

func renderRanking(r *calc.CategoryRanking) string {
	var b strings.Builder
	fmt.Fprintf(&b, "| %s | total | count |\n", escapeCell(r.Column))
	b.WriteString("|" + strings.Repeat(" --- |", 3) + "\n")
	for _, g := range r.Groups {
		fmt.Fprintf(&b, "| %s | %s | %d |\n", escapeCell(g.Key), formatNumber(g.Value), g.Count)
	}
	return b.String()
}

// renderCell formats one cell. Missing values render as "-" so synthesis
// reads them as absent data rather than zero.
func renderCell(v interface{}) string {
	if tabular.IsMissing(v) {
		return "-"
	}
	switch n := v.(type) {
	case float64:
		return formatNumber(n)
	case float32:
		return formatNumber(float64(n))
	case int:
		return formatNumber(float64(n))
	case int64:
		return formatNumber(float64(n))
	}
	return escapeCell(tabular.CellString(v))
}

// numberPrinter adds grouping separators the way the delivered answers
// display amounts.
var numberPrinter = message.NewPrinter(language.English)

// formatNumber renders whole numbers with grouping separators and
// everything else with two decimals.
func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return numberPrinter.Sprintf("%d", int64(f))
	}
	return numberPrinter.Sprintf("%.2f", f)
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

func noDataFacts(msg string) string {
	if msg == "" {
		msg = "no matching data"
	}
	return "No data: " + msg
}
