// Package e2e drives the whole question pipeline in memory, without a
// broker: upload → normalize/join → route → engine → grounding → synthesis
// → delivery. External services are stand-ins (httptest synthesis, sqlmock
// audit, miniredis cache, fake senders); everything else is the real code
// the workers run in production.
package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analyst-workers/internal/analysis/calc"
	"analyst-workers/internal/analysis/grounding"
	"analyst-workers/internal/analysis/lookup"
	"analyst-workers/internal/analysis/routing"
	"analyst-workers/internal/analysis/tabular"
	"analyst-workers/internal/common/database"
	httpclient "analyst-workers/internal/common/http"
	"analyst-workers/internal/common/logger"
	"analyst-workers/internal/models"

	rq "analyst-workers/internal/workers/analysis/route-question"
	rc "analyst-workers/internal/workers/analysis/run-calculation"
	rl "analyst-workers/internal/workers/analysis/run-lookup"
	sa "analyst-workers/internal/workers/analysis/synthesize-answer"
	da "analyst-workers/internal/workers/communication/deliver-answer"
	but "analyst-workers/internal/workers/data/build-unified-table"
)

// ==========================
// External-service stand-ins
// ==========================

type capturedSynthesis struct {
	Question string            `json:"question"`
	Context  grounding.Context `json:"context"`
}

func startSynthesisServer(t *testing.T, capture *capturedSynthesis) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			_ = json.NewDecoder(r.Body).Decode(capture)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"answer": "집계 결과를 전달드립니다."}`))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

type fakeEmail struct {
	calls             int
	to, subject, body string
}

func (f *fakeEmail) SendPlainEmail(_ context.Context, from, to, subject, body string) (*ses.SendEmailOutput, error) {
	f.calls++
	f.to, f.subject, f.body = to, subject, body
	return &ses.SendEmailOutput{MessageId: awssdk.String("ses-e2e-1")}, nil
}

type fakeSMS struct{}

func (fakeSMS) PublishSMS(_ context.Context, _, _, _ string) (*sns.PublishOutput, error) {
	return &sns.PublishOutput{MessageId: awssdk.String("sns-e2e-1")}, nil
}

// ==========================
// Pipeline fixture
// ==========================

type pipeline struct {
	store     *tabular.SessionStore
	build     *but.Handler
	route     *rq.Handler
	calculate *rc.Handler
	lookup    *rl.Handler
	synth     *sa.Handler
	deliver   *da.Handler
	email     *fakeEmail
	synthesis *capturedSynthesis
	audit     sqlmock.Sqlmock
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	log := logger.NewTestLogger(t)

	store := tabular.NewSessionStore(0)
	normalizer := tabular.NewNormalizer(nil)
	joiner := tabular.NewJoiner(nil, nil)
	router := routing.NewRouter(routing.Config{})
	calcEngine := calc.NewEngine(calc.Config{})
	lookupEngine := lookup.NewEngine(lookup.Config{})
	assembler := grounding.NewAssembler(grounding.Config{MaskSensitive: true})

	mr := miniredis.RunT(t)
	redisClient := &database.RedisClient{
		Client: redislib.NewClient(&redislib.Options{Addr: mr.Addr()}),
	}

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	capture := &capturedSynthesis{}
	saCfg := sa.LoadConfig()
	saCfg.BaseURL = startSynthesisServer(t, capture)
	saCfg.APIKey = "e2e-key"

	daCfg := da.LoadConfig()
	daCfg.FromEmail = "analyst@example.com"

	email := &fakeEmail{}

	return &pipeline{
		store:     store,
		build:     but.NewHandler(but.LoadConfig(), store, normalizer, joiner, log),
		route:     rq.NewHandler(rq.LoadConfig(), store, router, log),
		calculate: rc.NewHandler(rc.LoadConfig(), store, calcEngine, redisClient, log),
		lookup:    rl.NewHandler(rl.LoadConfig(), store, lookupEngine, log),
		synth:     sa.NewHandler(saCfg, assembler, httpclient.NewClient(5*time.Second), database.NewPostgresAnswerRepository(db), log),
		deliver:   da.NewHandler(daCfg, email, fakeSMS{}, log),
		email:     email,
		synthesis: capture,
		audit:     mock,
	}
}

// Two independently-shaped uploads sharing the 거래처명 entity key. The sales
// totals arrive as locale-formatted text and the last row's total is a
// placeholder, so the build step has real normalization work to do. 비고
// appears in both sources and must be prefixed; 사업자번호 is personal data
// that masking must catch downstream.
func salesDataset() models.Dataset {
	return models.Dataset{
		Name:    "sales",
		Columns: []string{"거래처명", "매출일", "합계", "비고"},
		Rows: []map[string]interface{}{
			{"거래처명": "동아물산", "매출일": "2024-01-15", "합계": "100,000", "비고": "정기 납품"},
			{"거래처명": "한빛유통", "매출일": "2024-02-03", "합계": "300,000", "비고": "신규 계약"},
			{"거래처명": "서울상사", "매출일": "2024-03-20", "합계": "50,000", "비고": "할인 적용"},
			{"거래처명": "동아물산", "매출일": "2024-04-11", "합계": "-", "비고": "반품 대기"},
		},
	}
}

func accountsDataset() models.Dataset {
	return models.Dataset{
		Name:    "accounts",
		Columns: []string{"거래처명", "사업자번호", "비고"},
		Rows: []map[string]interface{}{
			{"거래처명": "동아물산", "사업자번호": "214-87-12345", "비고": "본사 직거래"},
			{"거래처명": "한빛유통", "사업자번호": "321-11-98765", "비고": "위탁 판매"},
			{"거래처명": "남부상회", "사업자번호": "555-22-33333", "비고": "신규 등록"},
		},
	}
}

func buildSession(t *testing.T, p *pipeline, sessionID string) *but.Output {
	t.Helper()
	out, err := p.build.Execute(context.Background(), &but.Input{
		SessionID: sessionID,
		UserID:    "user-e2e",
		Datasets:  []models.Dataset{salesDataset(), accountsDataset()},
	})
	require.NoError(t, err)
	return out
}

// ==========================
// Build stage
// ==========================

func TestPipeline_BuildJoinsBothSources(t *testing.T) {
	p := newPipeline(t)

	out := buildSession(t, p, "sess-e2e")

	assert.True(t, out.Joined)
	assert.Equal(t, "거래처명", out.KeyColumn)
	// Outer join keeps every source row: 4 sales rows plus the
	// accounts-only 남부상회.
	assert.GreaterOrEqual(t, out.RowCount, 4)

	table, _, err := p.store.Snapshot("sess-e2e")
	require.NoError(t, err)

	// The colliding 비고 is prefixed per source; the key column keeps its
	// name, as does the protected 합계.
	assert.True(t, table.HasColumn("sales_비고"))
	assert.True(t, table.HasColumn("accounts_비고"))
	assert.True(t, table.HasColumn("합계"))
	assert.False(t, table.HasColumn("비고"))

	// 남부상회 exists only in accounts and must survive the join.
	assert.Contains(t, table.DistinctValues("거래처명"), "남부상회")

	// The placeholder total was coerced to missing, not zero.
	numeric := 0
	for _, row := range table.Rows {
		if _, ok := tabular.ToFloat(row["합계"]); ok {
			numeric++
		}
	}
	assert.Equal(t, 3, numeric)
}

func TestPipeline_RebuildReplacesTableAtomically(t *testing.T) {
	p := newPipeline(t)
	first := buildSession(t, p, "sess-e2e")

	out, err := p.build.Execute(context.Background(), &but.Input{
		SessionID: "sess-e2e",
		UserID:    "user-e2e",
		Datasets:  []models.Dataset{salesDataset()},
	})
	require.NoError(t, err)

	assert.Greater(t, out.TableVersion, first.TableVersion)
	assert.False(t, out.Joined)

	table, _, err := p.store.Snapshot("sess-e2e")
	require.NoError(t, err)
	assert.Equal(t, 4, table.NumRows())
}

// ==========================
// Routed question: CALC
// ==========================

func TestPipeline_TopNQuestion(t *testing.T) {
	p := newPipeline(t)
	buildSession(t, p, "sess-e2e")

	routed, err := p.route.Execute(context.Background(), &rq.Input{
		SessionID: "sess-e2e",
		Question:  "거래처별 합계 상위 2개 알려줘",
	})
	require.NoError(t, err)
	assert.Equal(t, "CALC", routed.Mode)
	assert.Greater(t, routed.Confidence, 0.0)

	out, err := p.calculate.Execute(context.Background(), &rc.Input{
		SessionID: "sess-e2e",
		Question:  routed.Question,
	})
	require.NoError(t, err)

	res := out.Result
	require.NotNil(t, res)
	require.False(t, res.NoData)
	assert.Equal(t, "거래처명", res.GroupBy)
	// 남부상회 joins in from accounts with no 합계 cells and sums to 0,
	// so the outer join yields four groups, not three.
	assert.Equal(t, 4, res.TotalGroups)

	require.NotNil(t, res.Table)
	require.Len(t, res.Table.Rows, 2)
	assert.Equal(t, "한빛유통", res.Table.Rows[0]["거래처명"])
	assert.Equal(t, "동아물산", res.Table.Rows[1]["거래처명"])

	top, ok := tabular.ToFloat(res.Table.Rows[0]["합계"])
	require.True(t, ok)
	assert.InDelta(t, 300000, top, 0.001)

	// Evidence rows accompany the aggregate so provenance survives.
	assert.NotEmpty(t, res.Evidence)
}

func TestPipeline_RepeatCalcHitsCache(t *testing.T) {
	p := newPipeline(t)
	buildSession(t, p, "sess-e2e")

	input := &rc.Input{SessionID: "sess-e2e", Question: "거래처별 합계"}

	first, err := p.calculate.Execute(context.Background(), input)
	require.NoError(t, err)
	second, err := p.calculate.Execute(context.Background(), input)
	require.NoError(t, err)

	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
}

// ==========================
// Routed question: LOOKUP
// ==========================

func TestPipeline_EntityLookup(t *testing.T) {
	p := newPipeline(t)
	buildSession(t, p, "sess-e2e")

	routed, err := p.route.Execute(context.Background(), &rq.Input{
		SessionID: "sess-e2e",
		Question:  "동아물산 거래 내역 보여줘",
	})
	require.NoError(t, err)
	assert.Equal(t, "LOOKUP", routed.Mode)

	out, err := p.lookup.Execute(context.Background(), &rl.Input{
		SessionID: "sess-e2e",
		Question:  routed.Question,
	})
	require.NoError(t, err)

	res := out.Result
	require.NotNil(t, res)
	assert.False(t, res.NoData)
	assert.Equal(t, "동아물산", res.Entity)
	assert.Equal(t, 2, res.TotalMatches)
	for _, rec := range res.Records {
		assert.Equal(t, "동아물산", tabular.CellString(rec["거래처명"]))
	}
}

// ==========================
// Routed question: RAG
// ==========================

func TestPipeline_DefinitionalQuestionRoutesToRAG(t *testing.T) {
	p := newPipeline(t)
	buildSession(t, p, "sess-e2e")

	routed, err := p.route.Execute(context.Background(), &rq.Input{
		SessionID: "sess-e2e",
		Question:  "마진율이란 무엇인가요?",
	})
	require.NoError(t, err)
	assert.Equal(t, "RAG", routed.Mode)
}

// ==========================
// Synthesis and delivery
// ==========================

func TestPipeline_SynthesizedAnswerIsGrounded(t *testing.T) {
	p := newPipeline(t)
	buildSession(t, p, "sess-e2e")

	calcOut, err := p.calculate.Execute(context.Background(), &rc.Input{
		SessionID: "sess-e2e",
		Question:  "거래처별 합계 상위 2개 알려줘",
	})
	require.NoError(t, err)

	raw, err := json.Marshal(calcOut.Result)
	require.NoError(t, err)

	p.audit.ExpectExec("INSERT INTO answer_audit").
		WillReturnResult(sqlmock.NewResult(1, 1))

	answer, err := p.synth.Execute(context.Background(), &sa.Input{
		SessionID:  "sess-e2e",
		UserID:     "user-e2e",
		Question:   "거래처별 합계 상위 2개 알려줘",
		Mode:       "CALC",
		Confidence: 0.9,
		Engine:     calcOut.Engine,
		Result:     raw,
		Sources:    calcOut.Sources,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, answer.Answer)
	assert.NotEmpty(t, answer.AnswerID)
	assert.False(t, answer.NoData)
	require.NoError(t, p.audit.ExpectationsWereMet())

	// Every value the synthesis service sees is a literal cell or a number
	// computed from literal cells; nothing outside the data appears.
	facts := p.synthesis.Context.Facts
	assert.Contains(t, facts, "한빛유통")
	assert.Contains(t, facts, "동아물산")
	assert.Contains(t, facts, "300,000")
	assert.NotContains(t, facts, "남부상회") // not in the top 2
	assert.Contains(t, p.synthesis.Context.Sources, "sales")
}

func TestPipeline_LookupAnswerMasksRegistrationNumbers(t *testing.T) {
	p := newPipeline(t)
	buildSession(t, p, "sess-e2e")

	lookupOut, err := p.lookup.Execute(context.Background(), &rl.Input{
		SessionID: "sess-e2e",
		Question:  "동아물산 거래 내역 보여줘",
	})
	require.NoError(t, err)

	raw, err := json.Marshal(lookupOut.Result)
	require.NoError(t, err)

	p.audit.ExpectExec("INSERT INTO answer_audit").
		WillReturnResult(sqlmock.NewResult(1, 1))

	_, err = p.synth.Execute(context.Background(), &sa.Input{
		SessionID:  "sess-e2e",
		UserID:     "user-e2e",
		Question:   "동아물산 거래 내역 보여줘",
		Mode:       "LOOKUP",
		Confidence: 0.8,
		Engine:     lookupOut.Engine,
		Result:     raw,
		Sources:    lookupOut.Sources,
	})
	require.NoError(t, err)

	facts := p.synthesis.Context.Facts
	assert.NotContains(t, facts, "214-87-12345")
	assert.Contains(t, facts, "214-**-***45")
}

func TestPipeline_AnswerDeliveredByEmail(t *testing.T) {
	p := newPipeline(t)

	out, err := p.deliver.Execute(context.Background(), &da.Input{
		SessionID: "sess-e2e",
		AnswerID:  "ans-1",
		Answer:    "집계 결과를 전달드립니다.",
		Channel:   da.ChannelEmail,
		Recipient: "requester@example.com",
	})
	require.NoError(t, err)

	assert.True(t, out.Delivered)
	assert.Equal(t, 1, p.email.calls)
	assert.Equal(t, "requester@example.com", p.email.to)
	assert.Contains(t, p.email.body, "집계 결과")
}
