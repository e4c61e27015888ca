package errors

import (
	"context"
	"encoding/json"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// Logger is the subset of logger.Logger the handler needs.
type Logger interface {
	Error(msg string, fields map[string]interface{})
}

// ErrorHandler turns pipeline errors into Zeebe job outcomes: a failed job with retries for
// transient pre-persistence errors, a BPMN error for everything else.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Decision describes what HandleJobError did with a job.
type Decision struct {
	BPMN    *BPMNError
	Thrown  bool
	Retries int
}

// Decide computes the job outcome for err without talking to the broker.
func (h *ErrorHandler) Decide(job entities.Job, err error) Decision {
	stdErr := normalizeError(err)
	bpmnErr := ConvertToBPMNError(stdErr)

	retries := bpmnErr.Retries
	if remaining := int(job.Retries) - 1; remaining < retries {
		retries = remaining
	}
	if retries > 0 {
		return Decision{BPMN: bpmnErr, Retries: retries}
	}
	return Decision{BPMN: bpmnErr, Thrown: true}
}

// HandleJobError reports err for job and returns the decision taken.
func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) Decision {
	decision := h.Decide(job, err)
	h.logError(job, err, decision)

	varsJSON := "{}"
	if raw, marshalErr := json.Marshal(decision.BPMN.ToErrorVariables()); marshalErr == nil {
		varsJSON = string(raw)
	}
	if decision.Thrown {
		cmd := client.NewThrowErrorCommand().
			JobKey(job.Key).
			ErrorCode(decision.BPMN.Code).
			ErrorMessage(decision.BPMN.Message)
		if withVars, varErr := cmd.VariablesFromString(varsJSON); varErr == nil {
			_, _ = withVars.Send(ctx)
			return decision
		}
		_, _ = cmd.Send(ctx)
		return decision
	}

	_, _ = client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(int32(decision.Retries)).
		ErrorMessage(decision.BPMN.Message).
		Send(ctx)
	return decision
}

func normalizeError(err error) *StandardError {
	if stdErr, ok := As(err); ok {
		return stdErr
	}
	return &StandardError{
		Code:      "INTERNAL_ERROR",
		Message:   "Unexpected error",
		Details:   causeDetails(err),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func (h *ErrorHandler) logError(job entities.Job, err error, decision Decision) {
	h.logger.Error("Job failed", map[string]interface{}{
		"jobKey":           job.Key,
		"jobType":          job.Type,
		"errorCode":        string(CodeOf(err)),
		"bpmnErrorCode":    decision.BPMN.Code,
		"message":          decision.BPMN.Message,
		"details":          decision.BPMN.Details,
		"thrown":           decision.Thrown,
		"retries":          decision.Retries,
		"errorCategory":    GetErrorCategory(CodeOf(err)),
		"workflowInstance": job.ProcessInstanceKey,
	})
}
