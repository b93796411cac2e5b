// Package synthesizeanswer turns an engine result into the final natural
// language answer. It renders the grounding context, posts it to the
// synthesis service, and writes the audit record that ties the answer back
// to its question, mode, and confidence.
package synthesizeanswer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"

	"analyst-workers/internal/analysis/calc"
	"analyst-workers/internal/analysis/grounding"
	"analyst-workers/internal/analysis/lookup"
	"analyst-workers/internal/analysis/routing"
	apperrors "analyst-workers/internal/common/errors"
	httpclient "analyst-workers/internal/common/http"
	"analyst-workers/internal/common/logger"
	"analyst-workers/internal/common/metrics"
	"analyst-workers/internal/common/validation"
	"analyst-workers/internal/models"
)

const TaskType = "analysis.answer.synthesize"

const Name = "synthesize-answer"

const synthesizePath = "/v1/synthesize"

type Handler struct {
	config     *Config
	assembler  *grounding.Assembler
	httpClient *httpclient.Client
	answers    models.AnswerRepository
	errors     *apperrors.ErrorHandler
	logger     logger.Logger
}

// NewHandler wires the synthesis worker. answers may be nil, which skips the
// audit trail without affecting the answer itself.
func NewHandler(config *Config, assembler *grounding.Assembler, httpClient *httpclient.Client, answers models.AnswerRepository, log logger.Logger) *Handler {
	scoped := log.With(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		assembler:  assembler,
		httpClient: httpClient,
		answers:    answers,
		errors:     apperrors.NewErrorHandler(scoped),
		logger:     scoped,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	if err := validation.ValidateJobInput([]byte(job.Variables), InputSchema()); err != nil {
		h.failJob(ctx, client, job, apperrors.NewInputValidationError(TaskType, err))
		return
	}

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(ctx, client, job, apperrors.NewBusinessRuleError(
			"Synthesis input unreadable", fmt.Sprintf("parse input: %v", err)))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(ctx, client, job, err)
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	h.completeJob(ctx, client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	start := time.Now()
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, apperrors.NewInvalidQuestionError("question is empty")
	}

	gctx, err := h.buildContext(question, input)
	if err != nil {
		return nil, err
	}

	answer, err := h.synthesize(ctx, question, gctx)
	if err != nil {
		return nil, err
	}

	record := &models.AnswerRecord{
		ID:         uuid.NewString(),
		SessionID:  input.SessionID,
		UserID:     input.UserID,
		Question:   question,
		Mode:       string(gctx.Mode),
		Confidence: input.Confidence,
		Answer:     answer,
		Engine:     h.engineName(input, gctx.Mode),
		RowCount:   gctx.RowCount,
		LatencyMS:  time.Since(start).Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	h.audit(ctx, record)

	h.logger.Info("answer synthesized", map[string]interface{}{
		"sessionId": input.SessionID,
		"answerId":  record.ID,
		"mode":      record.Mode,
		"noData":    gctx.NoData,
	})

	return &Output{
		SessionID: input.SessionID,
		AnswerID:  record.ID,
		Answer:    answer,
		Mode:      record.Mode,
		Engine:    record.Engine,
		NoData:    gctx.NoData,
	}, nil
}

// buildContext renders the grounding context for whichever engine ran.
func (h *Handler) buildContext(question string, input *Input) (*grounding.Context, error) {
	switch routing.Mode(strings.ToUpper(input.Mode)) {
	case routing.ModeCalc:
		var res calc.Result
		if err := h.decodeResult(input.Result, &res); err != nil {
			return nil, err
		}
		return h.assembler.FromCalc(question, &res, input.Sources), nil

	case routing.ModeLookup:
		var res lookup.Result
		if err := h.decodeResult(input.Result, &res); err != nil {
			return nil, err
		}
		return h.assembler.FromLookup(question, &res, input.Sources), nil

	case routing.ModeRAG:
		return h.assembler.FromPassages(question, input.Passages), nil

	default:
		return nil, apperrors.NewBusinessRuleError(
			"Unknown answer mode", fmt.Sprintf("mode: %q", input.Mode))
	}
}

func (h *Handler) decodeResult(raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 {
		return apperrors.NewBusinessRuleError(
			"Engine result missing", "the routed engine left no result variable")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.NewBusinessRuleError(
			"Engine result unreadable", fmt.Sprintf("decode result: %v", err))
	}
	return nil
}

func (h *Handler) synthesize(ctx context.Context, question string, gctx *grounding.Context) (string, error) {
	headers := map[string]string{}
	if h.config.APIKey != "" {
		headers["Authorization"] = "Bearer " + h.config.APIKey
	}

	var resp synthesisResponse
	start := time.Now()
	err := h.httpClient.PostJSON(ctx, h.config.BaseURL+synthesizePath, headers,
		synthesisRequest{Question: question, Context: gctx}, &resp)
	metrics.ExternalCallDuration.WithLabelValues("synthesis").Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", apperrors.NewSynthesisTimeoutError()
		}
		return "", apperrors.NewSynthesisFailedError(err)
	}

	answer := strings.TrimSpace(resp.Answer)
	if answer == "" {
		return "", apperrors.NewSynthesisFailedError(errors.New("synthesis service returned an empty answer"))
	}
	return answer, nil
}

// audit writes the answer record. The answer is already synthesized at this
// point, so a failed insert is logged rather than failing the job and paying
// for a second synthesis call.
func (h *Handler) audit(ctx context.Context, record *models.AnswerRecord) {
	if h.answers == nil {
		return
	}
	if err := h.answers.Insert(ctx, record); err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.ErrCodeAuditWriteFailed)).Inc()
		h.logger.Error("audit insert failed", map[string]interface{}{
			"answerId": record.ID,
			"error":    err.Error(),
		})
	}
}

func (h *Handler) engineName(input *Input, mode routing.Mode) string {
	if input.Engine != "" {
		return input.Engine
	}
	switch mode {
	case routing.ModeCalc:
		return "calc"
	case routing.ModeLookup:
		return "lookup"
	default:
		return "rag"
	}
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.CodeOf(err))).Inc()
	h.errors.HandleJobError(ctx, client, job, err)
}

// Execute runs the synthesis outside a job context.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
