// Package routequestion classifies each question against the session's
// unified table and dispatches it to one of the three answer engines. The
// decision, its confidence, and the per-mode scores travel onward as job
// variables so the process can branch on them.
package routequestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"analyst-workers/internal/analysis/routing"
	"analyst-workers/internal/analysis/tabular"
	apperrors "analyst-workers/internal/common/errors"
	"analyst-workers/internal/common/logger"
	"analyst-workers/internal/common/metrics"
	"analyst-workers/internal/common/validation"
)

const TaskType = "analysis.question.route"

const Name = "route-question"

type Handler struct {
	config *Config
	store  *tabular.SessionStore
	router *routing.Router
	errors *apperrors.ErrorHandler
	logger logger.Logger
}

func NewHandler(config *Config, store *tabular.SessionStore, router *routing.Router, log logger.Logger) *Handler {
	scoped := log.With(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
		store:  store,
		router: router,
		errors: apperrors.NewErrorHandler(scoped),
		logger: scoped,
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
		h.failJob(ctx, client, job, apperrors.NewInvalidQuestionError(fmt.Sprintf("parse input: %v", err)))
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
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, apperrors.NewInvalidQuestionError("question is empty")
	}
	if h.config.MaxQuestionLength > 0 && len([]rune(question)) > h.config.MaxQuestionLength {
		return nil, apperrors.NewInvalidQuestionError(
			fmt.Sprintf("question exceeds %d characters", h.config.MaxQuestionLength))
	}
	if input.SessionID == "" {
		return nil, apperrors.NewSessionNotFoundError("")
	}

	table, _, err := h.store.Snapshot(input.SessionID)
	if err != nil {
		return nil, h.snapshotError(input.SessionID, err)
	}

	var knownEntities []string
	if table.KeyColumn != "" {
		knownEntities = table.DistinctValues(table.KeyColumn)
	}

	res := h.router.Route(question, knownEntities)
	metrics.QuestionsRouted.WithLabelValues(string(res.Mode)).Inc()
	metrics.RoutingConfidence.Observe(res.Confidence)

	h.logger.Info("question routed", map[string]interface{}{
		"sessionId":  input.SessionID,
		"mode":       string(res.Mode),
		"confidence": res.Confidence,
		"entities":   len(knownEntities),
	})

	scores := make(map[string]float64, len(res.Scores))
	for mode, score := range res.Scores {
		scores[string(mode)] = score
	}

	return &Output{
		SessionID:  input.SessionID,
		Question:   question,
		Mode:       string(res.Mode),
		Confidence: res.Confidence,
		Reasoning:  res.Reasoning,
		Scores:     scores,
	}, nil
}

func (h *Handler) snapshotError(sessionID string, err error) error {
	switch {
	case errors.Is(err, tabular.ErrSessionNotFound):
		return apperrors.NewSessionNotFoundError(sessionID)
	case errors.Is(err, tabular.ErrNoTable):
		return apperrors.NewUnifiedTableMissingError(sessionID)
	default:
		return apperrors.NewRoutingFailedError(err)
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

// Execute runs the routing outside a job context.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
