// Package runcalculation answers aggregation questions deterministically
// over the session's unified table. Results are cached per table version,
// so repeating a question is free until the underlying data changes.
package runcalculation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/redis/go-redis/v9"

	"analyst-workers/internal/analysis/calc"
	"analyst-workers/internal/analysis/tabular"
	"analyst-workers/internal/common/database"
	apperrors "analyst-workers/internal/common/errors"
	"analyst-workers/internal/common/logger"
	"analyst-workers/internal/common/metrics"
	"analyst-workers/internal/common/validation"
	"analyst-workers/internal/models"
)

const TaskType = "analysis.calc.run"

const Name = "run-calculation"

const engineName = "calc"

type Handler struct {
	config      *Config
	store       *tabular.SessionStore
	engine      *calc.Engine
	redisClient *database.RedisClient
	errors      *apperrors.ErrorHandler
	logger      logger.Logger
}

// NewHandler wires the calculation worker. redisClient may be nil, which
// disables caching the same way a zero CacheTTL does.
func NewHandler(config *Config, store *tabular.SessionStore, engine *calc.Engine, redisClient *database.RedisClient, log logger.Logger) *Handler {
	scoped := log.With(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:      config,
		store:       store,
		engine:      engine,
		redisClient: redisClient,
		errors:      apperrors.NewErrorHandler(scoped),
		logger:      scoped,
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

	opts := calc.Options{}
	sources := datasetNames(meta)
	if input.Dataset != "" {
		src, err := h.store.Source(input.SessionID, input.Dataset)
		if err != nil {
			return nil, apperrors.NewCalcExecutionFailedError(
				fmt.Errorf("dataset %q is not loaded in session %s", input.Dataset, input.SessionID))
		}
		table = src
		opts.DatasetLabel = input.Dataset
		sources = []string{input.Dataset}
	}

	output := &Output{
		SessionID: input.SessionID,
		Engine:    engineName,
		Sources:   sources,
	}

	cacheKey := h.cacheKey(input.SessionID, meta.TableVersion, input.Dataset, question)
	if cached := h.fromCache(ctx, cacheKey); cached != nil {
		output.Result = cached
		output.Cached = true
		return output, nil
	}

	engineStart := time.Now()
	result := h.engine.Execute(question, table, opts)
	metrics.EngineDuration.WithLabelValues(engineName).Observe(time.Since(engineStart).Seconds())

	h.toCache(ctx, cacheKey, result)

	h.logger.Info("calculation finished", map[string]interface{}{
		"sessionId": input.SessionID,
		"kind":      string(result.Kind),
		"groupBy":   result.GroupBy,
		"groups":    result.TotalGroups,
		"noData":    result.NoData,
	})

	output.Result = result
	return output, nil
}

// cacheKey ties a result to the exact table contents it was computed from.
// The table version bumps on every rebuild, so stale entries simply age out.
func (h *Handler) cacheKey(sessionID string, version int, dataset, question string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(question), " "))
	return fmt.Sprintf("calc:%s:v%d:%s:%s", sessionID, version, dataset, normalized)
}

func (h *Handler) cacheEnabled() bool {
	return h.redisClient != nil && h.config.CacheTTL > 0
}

func (h *Handler) fromCache(ctx context.Context, key string) *calc.Result {
	if !h.cacheEnabled() {
		return nil
	}

	val, err := h.redisClient.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.CacheOperations.WithLabelValues("get", "miss").Inc()
		} else {
			metrics.CacheOperations.WithLabelValues("get", "error").Inc()
			h.logger.Warn("cache read failed", map[string]interface{}{"error": err.Error()})
		}
		return nil
	}

	var res calc.Result
	if err := json.Unmarshal([]byte(val), &res); err != nil {
		metrics.CacheOperations.WithLabelValues("get", "error").Inc()
		return nil
	}
	metrics.CacheOperations.WithLabelValues("get", "hit").Inc()
	return &res
}

func (h *Handler) toCache(ctx context.Context, key string, res *calc.Result) {
	if !h.cacheEnabled() {
		return
	}

	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := h.redisClient.Set(ctx, key, data, h.config.CacheTTL); err != nil {
		metrics.CacheOperations.WithLabelValues("set", "error").Inc()
		h.logger.Warn("cache write failed", map[string]interface{}{"error": err.Error()})
		return
	}
	metrics.CacheOperations.WithLabelValues("set", "ok").Inc()
}

func (h *Handler) snapshotError(sessionID string, err error) error {
	switch {
	case errors.Is(err, tabular.ErrSessionNotFound):
		return apperrors.NewSessionNotFoundError(sessionID)
	case errors.Is(err, tabular.ErrNoTable):
		return apperrors.NewUnifiedTableMissingError(sessionID)
	default:
		return apperrors.NewCalcExecutionFailedError(err)
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

// Execute runs the calculation outside a job context.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
