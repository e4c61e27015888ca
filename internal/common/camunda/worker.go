// internal/common/camunda/worker.go
package camunda

import (
	"time"

	"receipt-agent/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// JobHandler completes, fails or throws on the job itself and returns an error only for logging.
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job) error
}

// WorkerOptions configures one job worker.
type WorkerOptions struct {
	TaskType      string
	MaxJobsActive int
	Timeout       time.Duration
}

type Worker struct {
	worker   worker.JobWorker
	logger   logger.Logger
	taskType string
}

// NewWorker opens a job worker for opts.TaskType.
func NewWorker(client zbc.Client, opts WorkerOptions, handler JobHandler, log logger.Logger) *Worker {
	builder := client.NewJobWorker().
		JobType(opts.TaskType).
		Handler(func(jc worker.JobClient, job entities.Job) {
			if err := handler.Handle(jc, job); err != nil {
				log.Error("Handler returned error", map[string]interface{}{
					"taskType": opts.TaskType,
					"jobKey":   job.Key,
					"error":    err,
				})
			}
		}).
		MaxJobsActive(opts.MaxJobsActive)
	if opts.Timeout > 0 {
		builder = builder.Timeout(opts.Timeout)
	}

	w := &Worker{
		worker:   builder.Open(),
		logger:   log,
		taskType: opts.TaskType,
	}
	log.Info("worker started", map[string]interface{}{"taskType": opts.TaskType, "maxJobsActive": opts.MaxJobsActive})
	return w
}

// Stop closes the job worker and waits for in-flight jobs.
func (w *Worker) Stop() {
	w.logger.Info("stopping worker", map[string]interface{}{"taskType": w.taskType})
	w.worker.Close()
	w.worker.AwaitClose()
}
