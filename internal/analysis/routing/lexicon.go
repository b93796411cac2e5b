package routing

import "regexp"

// Mode is the answer strategy a question is dispatched to.
type Mode string

const (
	// ModeCalc runs deterministic aggregation over the unified table.
	ModeCalc Mode = "CALC"
	// ModeLookup retrieves the record set for a named entity or slice.
	ModeLookup Mode = "LOOKUP"
	// ModeRAG answers open-ended questions from retrieved passages.
	ModeRAG Mode = "RAG"
)

// modePriority breaks score ties: earlier modes win. On equal evidence an
// aggregation answer is cheaper to verify than a lookup, and a lookup
// cheaper than open retrieval.
var modePriority = []Mode{ModeCalc, ModeLookup, ModeRAG}

// DefaultCalcKeywords mark aggregation, ranking, grouping, and trend intent.
var DefaultCalcKeywords = []string{
	"합계", "총", "평균", "최대", "최소", "최댓값", "최솟값",
	"상위", "하위", "랭킹", "순위",
	"추이", "전월", "전년", "증감", "증가", "감소", "변화",
	"월별", "분기별", "년도별", "기간별", "일별", "주별",
	"그룹별", "거래처별", "제품별", "품목별", "지역별", "담당자별",
	"필터", "조건", "범위",
	"몇", "얼마", "몇개", "몇건", "건수", "개수", "수량",
	"비율", "퍼센트", "%", "점유율", "비중",
	"sum", "total", "average", "mean", "maximum", "minimum",
	"top", "bottom", "rank", "ranking", "trend", "growth",
	"increase", "decrease", "monthly", "quarterly", "yearly", "weekly",
	"how many", "how much", "count", "ratio", "percent", "share",
}

// DefaultLookupKeywords mark references to a specific record or entity.
var DefaultLookupKeywords = []string{
	"특정", "해당", "이 거래처", "이 주문", "이 제품",
	"언제", "누가", "어디", "무엇",
	"주문번호", "거래코드", "사업자번호",
	"specific", "this customer", "this order", "this product",
	"when", "who", "where",
	"order number", "transaction code", "business number",
	"history", "detail",
}

// DefaultRAGKeywords mark definitional and explanatory questions that the
// table cannot answer by itself.
var DefaultRAGKeywords = []string{
	"이란", "무엇", "뭐야", "설명", "정의", "의미",
	"어떻게", "왜", "이유", "방법",
	"영업일지", "일지", "메모", "기록", "노트",
	"규정", "가이드", "지침", "정책",
	"코드북", "항목", "컬럼", "필드", "데이터",
	"what is", "what are", "meaning", "explain", "definition", "define",
	"why", "how to", "guide", "policy", "glossary", "codebook",
	"column", "field", "memo", "note", "journal",
}

// patternBoost is one regex rule layered on top of the lexicon scores.
// Keeping the rules in a table makes the dispatch auditable: every weight
// a question can earn is listed here or in the conditional boosts below.
type patternBoost struct {
	name   string
	re     *regexp.Regexp
	mode   Mode
	weight float64
}

var (
	topNPattern       = regexp.MustCompile(`(?i)(top|bottom|상위|하위)\s*\d+`)
	groupByPattern    = regexp.MustCompile(`[\p{L}\p{N}]+별`)
	comparisonPattern = regexp.MustCompile(`(?i)비교|차이|이상|이하|초과|미만|compare|versus|difference|at least|more than|less than`)
	definitionPattern = regexp.MustCompile(`(이란|란|는|은|무엇|뭐|의미|설명|인가요|인가)\?*$|(?i)\bwhat\s+(is|are|does|do)\b`)
	dateTokenPattern  = regexp.MustCompile(`(?i)\d{4}년|\d+월|\d+일|최근|지난|올해|작년|recent|latest|last\s+(year|month|week)|this\s+(year|month|week)`)
)

var patternBoosts = []patternBoost{
	{name: "explicit top-N", re: topNPattern, mode: ModeCalc, weight: 2.0},
	{name: "group-by suffix", re: groupByPattern, mode: ModeCalc, weight: 1.5},
	{name: "comparison or threshold", re: comparisonPattern, mode: ModeCalc, weight: 1.0},
	{name: "definitional phrasing", re: definitionPattern, mode: ModeRAG, weight: 3.0},
	{name: "definitional phrasing", re: definitionPattern, mode: ModeLookup, weight: -1.0},
}

// Conditional boosts depend on the scores accumulated so far: a named
// entity or a date token strengthens an aggregation question but signals a
// lookup when no aggregation intent is present.
const (
	entityCalcBoost   = 1.0
	entityLookupBoost = 2.0
	dateCalcBoost     = 1.0
	dateLookupBoost   = 0.5
)
