// Package retrievepassages fetches the document passages behind open-ended
// questions: journal entries, policies, and codebook notes indexed in
// Elasticsearch. Retrieved passages feed the grounding context as numbered,
// attributable sources.
package retrievepassages

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"analyst-workers/internal/analysis/grounding"
	"analyst-workers/internal/common/database"
	apperrors "analyst-workers/internal/common/errors"
	"analyst-workers/internal/common/logger"
	"analyst-workers/internal/common/metrics"
	"analyst-workers/internal/common/validation"
)

const TaskType = "analysis.passages.retrieve"

const Name = "retrieve-passages"

const engineName = "rag"

type Handler struct {
	config   *Config
	esClient *database.ElasticsearchClient
	errors   *apperrors.ErrorHandler
	logger   logger.Logger
}

func NewHandler(config *Config, esClient *database.ElasticsearchClient, log logger.Logger) *Handler {
	scoped := log.With(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   config,
		esClient: esClient,
		errors:   apperrors.NewErrorHandler(scoped),
		logger:   scoped,
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

// searchResponse is the subset of the Elasticsearch reply the worker reads.
type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string                 `json:"_id"`
			Score  float64                `json:"_score"`
			Source map[string]interface{} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, apperrors.NewInvalidQuestionError("question is empty")
	}
	if h.esClient == nil {
		return nil, apperrors.NewElasticsearchConnectionFailedError(
			errors.New("elasticsearch client not configured"))
	}

	size := h.config.MaxPassages
	if input.TopK > 0 && input.TopK < size {
		size = input.TopK
	}

	body, err := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  question,
				"fields": []string{"content", "title^2"},
			},
		},
		"size": size,
	})
	if err != nil {
		return nil, apperrors.NewSearchQueryFailedError(h.config.Index, err)
	}

	searchStart := time.Now()
	res, err := h.esClient.Search(ctx, h.config.Index, bytes.NewReader(body))
	metrics.ExternalCallDuration.WithLabelValues("elasticsearch").Observe(time.Since(searchStart).Seconds())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.NewSearchTimeoutError(h.config.Index)
		}
		return nil, apperrors.NewElasticsearchConnectionFailedError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		if res.StatusCode == http.StatusNotFound {
			return nil, apperrors.NewIndexNotFoundError(h.config.Index)
		}
		return nil, apperrors.NewSearchQueryFailedError(h.config.Index, errors.New(res.String()))
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, apperrors.NewSearchQueryFailedError(h.config.Index, err)
	}

	passages := make([]grounding.Passage, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		text, _ := hit.Source["content"].(string)
		if strings.TrimSpace(text) == "" {
			continue
		}
		passages = append(passages, grounding.Passage{
			ID:     hit.ID,
			Source: passageSource(hit.Source),
			Text:   text,
			Score:  hit.Score,
		})
	}

	metrics.EngineDuration.WithLabelValues(engineName).Observe(time.Since(searchStart).Seconds())
	h.logger.Info("passages retrieved", map[string]interface{}{
		"sessionId": input.SessionID,
		"passages":  len(passages),
		"totalHits": parsed.Hits.Total.Value,
	})

	return &Output{
		SessionID: input.SessionID,
		Engine:    engineName,
		Passages:  passages,
		TotalHits: parsed.Hits.Total.Value,
	}, nil
}

// passageSource names a hit for attribution: explicit source field first,
// then the document title.
func passageSource(src map[string]interface{}) string {
	if s, ok := src["source"].(string); ok && s != "" {
		return s
	}
	if s, ok := src["title"].(string); ok && s != "" {
		return s
	}
	return "document"
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

// Execute runs the retrieval outside a job context.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
