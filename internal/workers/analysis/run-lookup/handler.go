// Package runlookup answers record-retrieval questions: the rows behind a
// named entity, an identifier code, or a recency slice of the session's
// unified table.
package runlookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"analyst-workers/internal/analysis/lookup"
	"analyst-workers/internal/analysis/tabular"
	apperrors "analyst-workers/internal/common/errors"
	"analyst-workers/internal/common/logger"
	"analyst-workers/internal/common/metrics"
	"analyst-workers/internal/common/validation"
	"analyst-workers/internal/models"
)

const TaskType = "analysis.lookup.run"

const Name = "run-lookup"

const engineName = "lookup"

type Handler struct {
	config *Config
	store  *tabular.SessionStore
	engine *lookup.Engine
	errors *apperrors.ErrorHandler
	logger logger.Logger
}

func NewHandler(config *Config, store *tabular.SessionStore, engine *lookup.Engine, log logger.Logger) *Handler {
	scoped := log.With(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
		store:  store,
		engine: engine,
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
	if input.SessionID == "" {
		return nil, apperrors.NewSessionNotFoundError("")
	}

	table, meta, err := h.store.Snapshot(input.SessionID)
	if err != nil {
		return nil, h.snapshotError(input.SessionID, err)
	}

	opts := lookup.Options{}
	sources := datasetNames(meta)
	if input.Dataset != "" {
		src, err := h.store.Source(input.SessionID, input.Dataset)
		if err != nil {
			return nil, apperrors.NewLookupExecutionFailedError(
				fmt.Errorf("dataset %q is not loaded in session %s", input.Dataset, input.SessionID))
		}
		table = src
		opts.DatasetLabel = input.Dataset
		sources = []string{input.Dataset}
	}

	engineStart := time.Now()
	result := h.engine.Execute(question, table, opts)
	metrics.EngineDuration.WithLabelValues(engineName).Observe(time.Since(engineStart).Seconds())

	h.logger.Info("lookup finished", map[string]interface{}{
		"sessionId": input.SessionID,
		"entity":    result.Entity,
		"matches":   result.TotalMatches,
		"noData":    result.NoData,
	})

	return &Output{
		SessionID: input.SessionID,
		Engine:    engineName,
		Result:    result,
		Sources:   sources,
	}, nil
}

func (h *Handler) snapshotError(sessionID string, err error) error {
	switch {
	case errors.Is(err, tabular.ErrSessionNotFound):
		return apperrors.NewSessionNotFoundError(sessionID)
	case errors.Is(err, tabular.ErrNoTable):
		return apperrors.NewUnifiedTableMissingError(sessionID)
	default:
		return apperrors.NewLookupExecutionFailedError(err)
	}
}

func datasetNames(meta models.AnalysisSession) []string {
	if len(meta.Datasets) == 0 {
		return nil
	}
	names := make([]string, len(meta.Datasets))
	for i, ds := range meta.Datasets {
		names[i] = ds.Name
	}
	return names
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

// Execute runs the lookup outside a job context.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
