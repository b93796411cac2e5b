// internal/common/camunda/worker.go
package camunda

import (
	"time"

	"analyst-workers/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// JobHandler is implemented by every worker package. Handlers complete or
// fail the job themselves through the JobClient.
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job)
}

// WorkerOptions configures a single job subscription.
type WorkerOptions struct {
	TaskType      string
	MaxJobsActive int
	Timeout       time.Duration
}

// Worker owns one open job subscription. The zbc.Client is shared across
// workers and stays open until the manager shuts down.
type Worker struct {
	worker   worker.JobWorker
	logger   logger.Logger
	taskType string
}

// OpenWorker subscribes handler to opts.TaskType and starts polling.
func OpenWorker(client zbc.Client, opts WorkerOptions, handler JobHandler, log logger.Logger) *Worker {
	jobWorker := client.NewJobWorker().
		JobType(opts.TaskType).
		Handler(handler.Handle).
		MaxJobsActive(opts.MaxJobsActive).
		Timeout(opts.Timeout).
		Open()

	log.Info("Worker started", map[string]interface{}{
		"taskType":      opts.TaskType,
		"maxJobsActive": opts.MaxJobsActive,
		"timeout":       opts.Timeout.String(),
	})

	return &Worker{
		worker:   jobWorker,
		logger:   log,
		taskType: opts.TaskType,
	}
}

// TaskType returns the job type this worker is subscribed to.
func (w *Worker) TaskType() string {
	return w.taskType
}

// Close drains and stops the subscription. It does not close the shared client.
func (w *Worker) Close() {
	w.logger.Info("Stopping worker", map[string]interface{}{"taskType": w.taskType})
	w.worker.Close()
}
