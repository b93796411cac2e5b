// Package buildunifiedtable rebuilds a session's unified table from the
// uploaded datasets carried in the job variables. Every data change flows
// through here: sources are numerically normalized, outer-joined when they
// share an entity key, and swapped into the session store as one atomic
// replacement.
package buildunifiedtable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"analyst-workers/internal/analysis/tabular"
	apperrors "analyst-workers/internal/common/errors"
	"analyst-workers/internal/common/logger"
	"analyst-workers/internal/common/metrics"
	"analyst-workers/internal/common/validation"
	"analyst-workers/internal/models"
)

const TaskType = "data.table.build"

// Name keys this worker's section in the workers block of config.yaml.
const Name = "build-unified-table"

type Handler struct {
	config     *Config
	store      *tabular.SessionStore
	normalizer *tabular.Normalizer
	joiner     *tabular.Joiner
	errors     *apperrors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(config *Config, store *tabular.SessionStore, normalizer *tabular.Normalizer, joiner *tabular.Joiner, log logger.Logger) *Handler {
	scoped := log.With(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		store:      store,
		normalizer: normalizer,
		joiner:     joiner,
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
		h.failJob(ctx, client, job, apperrors.NewTableBuildFailedError(fmt.Sprintf("parse input: %v", err)))
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
	if input.SessionID == "" {
		return nil, apperrors.NewTableBuildFailedError("sessionId is required")
	}
	if len(input.Datasets) == 0 {
		return nil, apperrors.NewDatasetEmptyError(input.SessionID)
	}
	if h.config.MaxDatasets > 0 && len(input.Datasets) > h.config.MaxDatasets {
		return nil, apperrors.NewTableBuildFailedError(
			fmt.Sprintf("%d datasets exceed the limit of %d", len(input.Datasets), h.config.MaxDatasets))
	}

	h.store.GetOrCreate(input.SessionID, input.UserID)

	sources := make([]*tabular.Table, 0, len(input.Datasets))
	rawRows := 0
	for i, ds := range input.Datasets {
		if len(ds.Rows) == 0 {
			continue
		}
		src := sourceTable(i, ds)
		h.normalizer.Normalize(src)
		tabular.InferRoles(src)
		sources = append(sources, src)
		rawRows += src.NumRows()
	}
	if len(sources) == 0 {
		return nil, apperrors.NewDatasetEmptyError(input.SessionID)
	}
	metrics.TableRows.WithLabelValues("raw").Set(float64(rawRows))

	unified, joined := h.unify(sources)
	metrics.TableRows.WithLabelValues("unified").Set(float64(unified.NumRows()))

	meta, err := h.store.ReplaceTable(input.SessionID, unified, sources)
	if err != nil {
		return nil, apperrors.NewSessionNotFoundError(input.SessionID)
	}

	h.logger.Info("unified table built", map[string]interface{}{
		"sessionId":    input.SessionID,
		"tableVersion": meta.TableVersion,
		"datasets":     len(sources),
		"rawRows":      rawRows,
		"unifiedRows":  unified.NumRows(),
		"joined":       joined,
		"keyColumn":    unified.KeyColumn,
	})

	return &Output{
		SessionID:    input.SessionID,
		TableVersion: meta.TableVersion,
		RowCount:     meta.TableRows,
		ColumnCount:  meta.TableColumns,
		KeyColumn:    unified.KeyColumn,
		Joined:       joined,
		Datasets:     meta.Datasets,
	}, nil
}

// unify outer-joins the sources when two or more share an entity key.
// Otherwise the highest-priority source stands alone as the unified table.
func (h *Handler) unify(sources []*tabular.Table) (*tabular.Table, bool) {
	if len(sources) > 1 {
		unified, err := h.joiner.Join(sources)
		if err == nil {
			return unified, true
		}
		if !errors.Is(err, tabular.ErrNotJoinable) {
			h.logger.Warn("join failed, keeping primary source", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	return singleSourceTable(h.joiner, sources[0]), false
}

// singleSourceTable promotes one source to the unified table, detecting its
// key column so entity matching still works without a join.
func singleSourceTable(j *tabular.Joiner, src *tabular.Table) *tabular.Table {
	unified := &tabular.Table{
		Name:    "unified",
		Columns: append([]string(nil), src.Columns...),
		Rows:    src.Rows,
		Roles:   src.Roles,
	}
	if key, ok := j.DetectJoinKey(src); ok {
		unified.KeyColumn = key
	}
	return unified
}

// sourceTable converts an uploaded dataset into a working table. Rows are
// copied so later normalization never mutates the job payload maps shared
// with the raw input.
func sourceTable(index int, ds models.Dataset) *tabular.Table {
	name := ds.Name
	if name == "" {
		name = fmt.Sprintf("dataset_%d", index+1)
	}

	cols := ds.Columns
	if len(cols) == 0 {
		cols = collectColumns(ds.Rows)
	}

	rows := make([]map[string]interface{}, len(ds.Rows))
	for i, row := range ds.Rows {
		rows[i] = tabular.CopyRow(row)
	}

	return &tabular.Table{
		Name:    name,
		Columns: append([]string(nil), cols...),
		Rows:    rows,
	}
}

// collectColumns rebuilds a column order from the rows when the upload lost
// it: first-appearance order across rows.
func collectColumns(rows []map[string]interface{}) []string {
	seen := make(map[string]struct{})
	var cols []string
	for _, row := range rows {
		for col := range row {
			if _, ok := seen[col]; ok {
				continue
			}
			seen[col] = struct{}{}
			cols = append(cols, col)
		}
	}
	return cols
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

// Execute runs the build outside a job context.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
