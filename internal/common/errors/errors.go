// Package errors provides the structured error taxonomy shared by the receipt pipeline,
// the agent loop and the workflow workers.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Agent loop errors. These are explained back to the model and never end a session.
const (
	ErrCodeMalformedResponse  ErrorCode = "MALFORMED_RESPONSE"
	ErrCodeUnknownTool        ErrorCode = "UNKNOWN_TOOL"
	ErrCodeInvalidParameters  ErrorCode = "INVALID_PARAMETERS"
	ErrCodeToolExecutionError ErrorCode = "TOOL_EXECUTION_ERROR"
)

// Session-fatal errors.
const (
	ErrCodeLoopExceeded          ErrorCode = "LOOP_EXCEEDED"
	ErrCodeStorageFault          ErrorCode = "STORAGE_FAULT"
	ErrCodeSessionCancelled      ErrorCode = "SESSION_CANCELLED"
	ErrCodeModelCompletionFailed ErrorCode = "MODEL_COMPLETION_FAILED"
)

// Intake errors raised before anything is persisted.
const (
	ErrCodeInvalidSubmission ErrorCode = "INVALID_SUBMISSION"
	ErrCodeExtractionFailed  ErrorCode = "EXTRACTION_FAILED"
	ErrCodeEmbeddingFailed   ErrorCode = "EMBEDDING_FAILED"
)

// Capability errors surfaced by tools.
const (
	ErrCodeEmployeeNotFound       ErrorCode = "EMPLOYEE_NOT_FOUND"
	ErrCodeInvalidExpenseType     ErrorCode = "INVALID_EXPENSE_TYPE"
	ErrCodeGeocodingFailed        ErrorCode = "GEOCODING_FAILED"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeDatabaseQueryFailed    ErrorCode = "DATABASE_QUERY_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata returns the error with an extra metadata key set.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func causeDetails(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// NewMalformedResponseError reports model output that does not match the response grammar.
func NewMalformedResponseError(details string) *StandardError {
	return newError(ErrCodeMalformedResponse, "Model response is malformed", details, false, nil)
}

// NewUnknownToolError reports a tool name that is not registered.
func NewUnknownToolError(name string) *StandardError {
	return newError(ErrCodeUnknownTool, "Unknown tool", fmt.Sprintf("tool %q is not registered", name), false, nil).
		WithMetadata("tool", name)
}

// NewInvalidParametersError reports parameters that do not satisfy a tool schema.
func NewInvalidParametersError(tool string, problems []string) *StandardError {
	return newError(ErrCodeInvalidParameters, "Invalid tool parameters", strings.Join(problems, "; "), false, nil).
		WithMetadata("tool", tool)
}

// NewToolExecutionError wraps a failure raised by a tool capability.
func NewToolExecutionError(tool string, err error) *StandardError {
	e := newError(ErrCodeToolExecutionError, "Tool execution failed", causeDetails(err), false, err).
		WithMetadata("tool", tool)
	if std, ok := As(err); ok {
		e.WithMetadata("causeCode", string(std.Code))
	}
	return e
}

// NewLoopExceededError reports a session that reached its turn ceiling.
func NewLoopExceededError(maxTurns int) *StandardError {
	return newError(ErrCodeLoopExceeded, "Agent loop exceeded turn ceiling",
		fmt.Sprintf("no final call after %d turns", maxTurns), false, nil).
		WithMetadata("maxTurns", maxTurns)
}

// NewStorageFaultError wraps a vector store or record store failure.
func NewStorageFaultError(operation string, err error) *StandardError {
	return newError(ErrCodeStorageFault, "Receipt storage failure", causeDetails(err), false, err).
		WithMetadata("operation", operation)
}

// NewSessionCancelledError reports a session aborted between turns.
func NewSessionCancelledError(err error) *StandardError {
	return newError(ErrCodeSessionCancelled, "Session cancelled", causeDetails(err), false, err)
}

// NewModelCompletionFailedError wraps a failed model completion call.
func NewModelCompletionFailedError(err error) *StandardError {
	return newError(ErrCodeModelCompletionFailed, "Model completion failed", causeDetails(err), false, err)
}

// NewInvalidSubmissionError reports an intake request that cannot be processed.
func NewInvalidSubmissionError(details string) *StandardError {
	return newError(ErrCodeInvalidSubmission, "Invalid receipt submission", details, false, nil)
}

// NewExtractionFailedError wraps a failed field extraction call.
func NewExtractionFailedError(err error) *StandardError {
	return newError(ErrCodeExtractionFailed, "Receipt field extraction failed", causeDetails(err), true, err)
}

// NewEmbeddingFailedError wraps a failed embedding call.
func NewEmbeddingFailedError(err error) *StandardError {
	return newError(ErrCodeEmbeddingFailed, "Receipt embedding failed", causeDetails(err), true, err)
}

// NewEmployeeNotFoundError reports an unknown employee id.
func NewEmployeeNotFoundError(employeeID string) *StandardError {
	return newError(ErrCodeEmployeeNotFound, "Employee not found", employeeID, false, nil).
		WithMetadata("employeeId", employeeID)
}

// NewInvalidExpenseTypeError reports a category that has no budget ledger.
func NewInvalidExpenseTypeError(expenseType string) *StandardError {
	return newError(ErrCodeInvalidExpenseType, "Expense type has no budget ledger", expenseType, false, nil)
}

// NewGeocodingFailedError wraps a failed address lookup.
func NewGeocodingFailedError(address string, err error) *StandardError {
	return newError(ErrCodeGeocodingFailed, "Address could not be geocoded", causeDetails(err), true, err).
		WithMetadata("address", address)
}

// NewNotificationSendFailedError wraps a failed email or SMS send.
func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Failed to send notification", causeDetails(err), true, err).
		WithMetadata("channel", channel)
}

// NewDatabaseQueryFailedError wraps a failed SQL statement.
func NewDatabaseQueryFailedError(operation string, err error) *StandardError {
	return newError(ErrCodeDatabaseQueryFailed, "Database query failed", causeDetails(err), true, err).
		WithMetadata("operation", operation)
}

// ==========================
// 4. Mapping and Policy
// ==========================

// BPMNErrorMapping maps internal codes to the error codes modelled in the receipt BPMN process.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeLoopExceeded:           "RECEIPT_MANUAL_REVIEW",
	ErrCodeStorageFault:           "RECEIPT_STORAGE_FAULT",
	ErrCodeSessionCancelled:       "RECEIPT_MANUAL_REVIEW",
	ErrCodeModelCompletionFailed:  "RECEIPT_MANUAL_REVIEW",
	ErrCodeInvalidSubmission:      "RECEIPT_REJECTED",
	ErrCodeExtractionFailed:       "RECEIPT_EXTRACTION_FAILED",
	ErrCodeEmbeddingFailed:        "RECEIPT_EXTRACTION_FAILED",
	ErrCodeEmployeeNotFound:       "RECEIPT_REJECTED",
	ErrCodeNotificationSendFailed: "RECEIPT_NOTIFICATION_FAILED",
}

// Recoverable reports whether an error code is fed back to the model instead of ending the session.
func Recoverable(code ErrorCode) bool {
	switch code {
	case ErrCodeMalformedResponse, ErrCodeUnknownTool, ErrCodeInvalidParameters, ErrCodeToolExecutionError:
		return true
	default:
		return false
	}
}

// GetRetryCount returns the job retry budget for an error code. Anything that may already have
// committed side effects (a stored receipt, a ledger update) is never retried.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeExtractionFailed, ErrCodeEmbeddingFailed:
		return 3
	case ErrCodeGeocodingFailed, ErrCodeDatabaseQueryFailed:
		return 2
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// As extracts a StandardError from an error chain.
func As(err error) (*StandardError, bool) {
	var std *StandardError
	if stderrors.As(err, &std) {
		return std, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	std, ok := As(err)
	return ok && std.Code == code
}

// CodeOf returns the code of err, or INTERNAL_ERROR for plain errors.
func CodeOf(err error) ErrorCode {
	if std, ok := As(err); ok {
		return std.Code
	}
	return "INTERNAL_ERROR"
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case Recoverable(code):
		return "AGENT"
	case strings.Contains(codeStr, "LOOP") || strings.Contains(codeStr, "SESSION") || strings.Contains(codeStr, "MODEL"):
		return "SESSION"
	case strings.Contains(codeStr, "STORAGE") || strings.Contains(codeStr, "DATABASE"):
		return "STORAGE"
	case strings.Contains(codeStr, "EXTRACTION") || strings.Contains(codeStr, "EMBEDDING"):
		return "AI"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "NOT_FOUND"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
