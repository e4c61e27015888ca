// Package tools holds the capabilities the agent may call and the registry that validates and runs them.
package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "receipt-agent/internal/common/errors"
	"receipt-agent/internal/common/logger"
	"receipt-agent/internal/common/metrics"
	"receipt-agent/internal/common/validation"
	"receipt-agent/internal/models"
)

// Kind groups tools for the duplicate short-circuit guard.
type Kind string

const (
	KindLookup       Kind = "lookup"
	KindBusinessRule Kind = "business_rule"
	KindDuplicate    Kind = "duplicate"
	KindNotification Kind = "notification"
)

// ErrBlockedForDuplicate is returned when a business-rule tool is called for a duplicate receipt.
var ErrBlockedForDuplicate = errors.New("business-rule tools are not available for a duplicate receipt")

// Context is the per-session state a tool may read.
type Context struct {
	SessionID string
	Record    *models.ReceiptRecord
	Verdict   models.DuplicateVerdict
}

// Func runs a tool with parameters that already passed schema validation.
type Func func(ctx context.Context, params map[string]interface{}, tc *Context) (interface{}, error)

type Spec struct {
	Name        string
	Description string
	Kind        Kind
	Parameters  validation.JSONSchema
	Invoke      Func
}

// Registry is immutable after construction and safe for concurrent sessions.
type Registry struct {
	specs  map[string]Spec
	order  []string
	logger logger.Logger
}

func NewRegistry(log logger.Logger, specs ...Spec) (*Registry, error) {
	r := &Registry{specs: make(map[string]Spec, len(specs)), logger: log}
	for _, s := range specs {
		if s.Name == "" || s.Invoke == nil {
			return nil, fmt.Errorf("tool %q: name and invoke func are required", s.Name)
		}
		if _, dup := r.specs[s.Name]; dup {
			return nil, fmt.Errorf("tool %q registered twice", s.Name)
		}
		if s.Parameters.Type == "" {
			s.Parameters.Type = "object"
		}
		r.specs[s.Name] = s
		r.order = append(r.order, s.Name)
	}
	return r, nil
}

func (r *Registry) Lookup(name string) (Spec, error) {
	s, ok := r.specs[name]
	if !ok {
		return Spec{}, apperrors.NewUnknownToolError(name)
	}
	return s, nil
}

// Specs returns the tools in registration order.
func (r *Registry) Specs() []Spec {
	out := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.specs[name])
	}
	return out
}

// Invoke validates params and runs the tool. The result is always non-nil so it can be fed back
// to the model; the error carries UNKNOWN_TOOL, INVALID_PARAMETERS or TOOL_EXECUTION_ERROR.
func (r *Registry) Invoke(ctx context.Context, name string, params map[string]interface{}, tc *Context) (*models.ToolInvocationResult, error) {
	start := time.Now()
	result := &models.ToolInvocationResult{ToolName: name}

	payload, err := r.invoke(ctx, name, params, tc)
	result.Duration = time.Since(start)

	if err != nil {
		code := apperrors.CodeOf(err)
		result.Error = err.Error()
		result.ErrorCode = string(code)
		metrics.ToolInvocations.WithLabelValues(name, string(code)).Inc()
		r.logger.Warn("tool invocation failed", map[string]interface{}{
			"tool":      name,
			"errorCode": code,
			"error":     err,
		})
		return result, err
	}

	result.Success = true
	result.Payload = payload
	metrics.ToolInvocations.WithLabelValues(name, "ok").Inc()
	r.logger.Debug("tool invoked", map[string]interface{}{
		"tool":       name,
		"durationMs": result.Duration.Milliseconds(),
	})
	return result, nil
}

func (r *Registry) invoke(ctx context.Context, name string, params map[string]interface{}, tc *Context) (payload interface{}, err error) {
	spec, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	if tc == nil {
		tc = &Context{}
	}
	if spec.Kind == KindBusinessRule && tc.Verdict.IsDuplicate {
		return nil, apperrors.NewToolExecutionError(name, ErrBlockedForDuplicate)
	}

	params = withDefaults(params, spec.Parameters)
	if res := validation.ValidateInput(params, spec.Parameters); !res.Valid {
		return nil, apperrors.NewInvalidParametersError(name, res.GetErrorMessages())
	}

	defer func() {
		if rec := recover(); rec != nil {
			payload = nil
			err = apperrors.NewToolExecutionError(name, fmt.Errorf("panic: %v", rec))
		}
	}()

	payload, err = spec.Invoke(ctx, params, tc)
	if err != nil {
		return nil, apperrors.NewToolExecutionError(name, err)
	}
	return payload, nil
}

func withDefaults(params map[string]interface{}, schema validation.JSONSchema) map[string]interface{} {
	out := make(map[string]interface{}, len(params)+len(schema.Properties))
	for k, v := range params {
		out[k] = v
	}
	for k, prop := range schema.Properties {
		if _, ok := out[k]; !ok && prop.Default != nil {
			out[k] = prop.Default
		}
	}
	return out
}
