package processreceipt

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"receipt-agent/internal/common/config"
	apperrors "receipt-agent/internal/common/errors"
	"receipt-agent/internal/common/logger"
	"receipt-agent/internal/common/metrics"
	"receipt-agent/internal/common/validation"
	"receipt-agent/internal/extraction"
	"receipt-agent/internal/pipeline"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const TaskType = "process-receipt"

type Processor interface {
	Process(ctx context.Context, doc extraction.Document) (*pipeline.Result, error)
}

type Handler struct {
	config    *Config
	processor Processor
	errors    *apperrors.ErrorHandler
	logger    logger.Logger
}

type HandlerOptions struct {
	AppConfig    *config.Config
	Processor    Processor
	CustomConfig *Config
	Logger       logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	workerConfig := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)
	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.Processor == nil {
		return nil, fmt.Errorf("%s requires a receipt processor", TaskType)
	}

	loggerInstance := opts.Logger
	if loggerInstance == nil {
		loggerInstance = logger.NewStructured("info", "json", "stdout")
	}

	return &Handler{
		config:    workerConfig,
		processor: opts.Processor,
		errors:    apperrors.NewErrorHandler(loggerInstance),
		logger:    loggerInstance,
	}, nil
}

func (h *Handler) Config() *Config { return h.config }

// Handle completes the job with the receipt outcome. Transient extraction failures fail the job
// with retries; everything else, including LOOP_EXCEEDED, is thrown as a BPMN error.
func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	startTime := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("Processing receipt job", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
		"worker":             TaskType,
	})

	input, err := h.parseInput(job)
	if err != nil {
		h.fail(ctx, client, job, err)
		return err
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return err
	}

	if err := h.completeJob(ctx, client, job, output); err != nil {
		return err
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
	return nil
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, apperrors.NewInvalidSubmissionError("failed to parse job variables: " + err.Error())
	}
	return parseVariables(variables)
}

func parseVariables(variables map[string]interface{}) (*Input, error) {
	result := validation.ValidateInput(variables, GetInputSchema())
	if !result.Valid {
		return nil, apperrors.NewInvalidSubmissionError(fmt.Sprintf("validation errors: %v", result.GetErrorMessages()))
	}

	input := &Input{
		EmployeeID: variables["employeeId"].(string),
		File:       variables["receiptFile"].(string),
	}
	if v, ok := variables["fileId"].(string); ok {
		input.FileID = v
	}
	if v, ok := variables["contentType"].(string); ok {
		input.ContentType = v
	}
	return input, nil
}

// Execute runs the receipt pipeline for one job input.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	data, err := base64.StdEncoding.DecodeString(input.File)
	if err != nil {
		return nil, apperrors.NewInvalidSubmissionError("receiptFile is not valid base64")
	}
	fileID := input.FileID
	if fileID == "" {
		fileID = uuid.NewString()
	}

	res, err := h.processor.Process(ctx, extraction.Document{
		FileID:      fileID,
		EmployeeID:  input.EmployeeID,
		Data:        data,
		ContentType: input.ContentType,
	})
	if err != nil {
		return nil, err
	}

	output := &Output{
		FileID:      res.FileID,
		ReceiptID:   res.ReceiptID,
		Category:    string(res.Category),
		Outcome:     res.Outcome,
		ProcessedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if res.Verdict != nil {
		output.IsDuplicate = res.Verdict.IsDuplicate
		output.DuplicateScore = res.Verdict.Score
		output.MatchedReceiptID = res.Verdict.MatchedReceiptID
	}
	if res.Session != nil {
		output.AgentTurns = res.Session.Turns
	}
	return output, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) error {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.GetKey()).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err,
		})
		return err
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err,
		})
		return err
	}
	h.logger.Info("Receipt job completed", map[string]interface{}{
		"jobKey":    job.GetKey(),
		"receiptId": output.ReceiptID,
		"outcome":   output.Outcome,
	})
	return nil
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.CodeOf(err))).Inc()
	h.errors.HandleJobError(ctx, client, job, err)
}
