// Package routing classifies a question into CALC, LOOKUP, or RAG mode by
// scoring keyword and pattern evidence. Scoring is purely additive over the
// lexicons and the pattern table, so identical input always produces the
// identical result.
package routing

import (
	"fmt"
	"strings"
)

// Result is the routing decision for one question.
type Result struct {
	Mode       Mode             `json:"mode"`
	Confidence float64          `json:"confidence"`
	Reasoning  string           `json:"reasoning"`
	Scores     map[Mode]float64 `json:"scores"`
}

// Config overrides the compiled-in lexicons. Empty lists keep the defaults.
type Config struct {
	CalcKeywords   []string
	LookupKeywords []string
	RAGKeywords    []string
}

// Router scores questions against the three mode lexicons plus the pattern
// boost table. It holds no per-question state and is safe for concurrent use.
type Router struct {
	calc   []string
	lookup []string
	rag    []string
}

// NewRouter builds a Router from cfg.
func NewRouter(cfg Config) *Router {
	return &Router{
		calc:   prepareKeywords(cfg.CalcKeywords, DefaultCalcKeywords),
		lookup: prepareKeywords(cfg.LookupKeywords, DefaultLookupKeywords),
		rag:    prepareKeywords(cfg.RAGKeywords, DefaultRAGKeywords),
	}
}

// Route classifies the question. knownEntities is the entity vocabulary of
// the loaded data (key-column values); a mention of one of them shifts the
// score toward LOOKUP unless aggregation intent is already present.
func (r *Router) Route(question string, knownEntities []string) Result {
	lower := strings.ToLower(question)

	scores := map[Mode]float64{
		ModeCalc:   keywordScore(lower, r.calc),
		ModeLookup: keywordScore(lower, r.lookup),
		ModeRAG:    keywordScore(lower, r.rag),
	}

	for _, boost := range patternBoosts {
		if boost.re.MatchString(question) {
			scores[boost.mode] += boost.weight
		}
	}

	if mentionsKnownEntity(lower, knownEntities) {
		if scores[ModeCalc] > 0 {
			scores[ModeCalc] += entityCalcBoost
		} else {
			scores[ModeLookup] += entityLookupBoost
		}
	}

	if dateTokenPattern.MatchString(question) {
		if scores[ModeCalc] > 0 {
			scores[ModeCalc] += dateCalcBoost
		} else {
			scores[ModeLookup] += dateLookupBoost
		}
	}

	winner := pickWinner(scores)

	// No positive evidence at all: treat the question as open-ended.
	if scores[winner] <= 0 {
		return Result{
			Mode:       ModeRAG,
			Confidence: 0,
			Reasoning:  renderReasoning(scores, ModeRAG) + " (default, no keyword evidence)",
			Scores:     scores,
		}
	}

	return Result{
		Mode:       winner,
		Confidence: marginConfidence(scores, winner),
		Reasoning:  renderReasoning(scores, winner),
		Scores:     scores,
	}
}

// keywordScore adds one point per lexicon keyword contained in the question.
func keywordScore(lowerQuestion string, keywords []string) float64 {
	score := 0.0
	for _, k := range keywords {
		if strings.Contains(lowerQuestion, k) {
			score += 1.0
		}
	}
	return score
}

// pickWinner returns the strictly highest scoring mode; ties fall to the
// earlier entry of modePriority.
func pickWinner(scores map[Mode]float64) Mode {
	winner := modePriority[0]
	for _, m := range modePriority[1:] {
		if scores[m] > scores[winner] {
			winner = m
		}
	}
	return winner
}

// marginConfidence reports how decisively the winner beat the runner-up:
// the score margin relative to the winning score, clamped to [0, 1]. A tie
// resolved by priority therefore carries zero confidence.
func marginConfidence(scores map[Mode]float64, winner Mode) float64 {
	runnerUp := 0.0
	first := true
	for _, m := range modePriority {
		if m == winner {
			continue
		}
		if first || scores[m] > runnerUp {
			runnerUp = scores[m]
			first = false
		}
	}

	margin := (scores[winner] - runnerUp) / scores[winner]
	if margin < 0 {
		return 0
	}
	if margin > 1 {
		return 1
	}
	return margin
}

// renderReasoning writes every mode's score and the selected mode.
func renderReasoning(scores map[Mode]float64, winner Mode) string {
	parts := make([]string, 0, len(modePriority))
	for _, m := range modePriority {
		parts = append(parts, fmt.Sprintf("%s=%.1f", m, scores[m]))
	}
	return strings.Join(parts, ", ") + " -> " + string(winner)
}

// mentionsKnownEntity reports whether any known entity name appears in the
// question. Single-character names are skipped as noise.
func mentionsKnownEntity(lowerQuestion string, entities []string) bool {
	for _, e := range entities {
		e = strings.TrimSpace(e)
		if len([]rune(e)) < 2 {
			continue
		}
		if strings.Contains(lowerQuestion, strings.ToLower(e)) {
			return true
		}
	}
	return false
}

// prepareKeywords lowercases and dedupes a keyword list, falling back to
// defaults when the override is empty.
func prepareKeywords(override, defaults []string) []string {
	src := override
	if len(src) == 0 {
		src = defaults
	}
	seen := make(map[string]struct{}, len(src))
	out := make([]string, 0, len(src))
	for _, k := range src {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
