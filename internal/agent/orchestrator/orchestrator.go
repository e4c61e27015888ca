// Package orchestrator runs the bounded model/tool loop for one receipt.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"receipt-agent/internal/agent/parser"
	"receipt-agent/internal/agent/tools"
	apperrors "receipt-agent/internal/common/errors"
	"receipt-agent/internal/common/logger"
	"receipt-agent/internal/common/metrics"
	"receipt-agent/internal/common/observability"
	"receipt-agent/internal/dedupe"
	"receipt-agent/internal/llm"
	"receipt-agent/internal/models"
	"receipt-agent/internal/prompts"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const DefaultMaxTurns = 10

// ErrNotRecorded is returned when a session is started before the receipt was persisted.
var ErrNotRecorded = errors.New("receipt must be recorded before the agent runs")

// StageRecorder receives the audit event written before a duplicate is short-circuited.
type StageRecorder interface {
	Record(ctx context.Context, fileID, employeeID string, stage int, details map[string]interface{}) error
}

type Config struct {
	MaxTurns int
	// InvokeFinalTool runs the tool named on a final turn before finishing.
	InvokeFinalTool bool
}

type Dependencies struct {
	Completer llm.Completer
	Registry  *tools.Registry
	Format    parser.Format
	Catalog   *prompts.Catalog
	// Directory resolves the employee name for the duplicate notice. Optional.
	Directory tools.EmployeeDirectory
	// Stages is optional.
	Stages StageRecorder
	// Obs is optional.
	Obs    *observability.Observability
	Logger logger.Logger
}

// Session is the outcome of one run.
type Session struct {
	ID             string                  `json:"sessionId"`
	ReceiptID      string                  `json:"receiptId"`
	State          models.SessionState     `json:"state"`
	Turns          int                     `json:"turns"`
	ShortCircuited bool                    `json:"shortCircuited"`
	Verdict        models.DuplicateVerdict `json:"verdict"`
	Final          *models.AgentTurn       `json:"final,omitempty"`
	History        []models.HistoryEntry   `json:"history"`
	ErrorCode      string                  `json:"errorCode,omitempty"`
	StartedAt      time.Time               `json:"startedAt"`
	FinishedAt     time.Time               `json:"finishedAt"`
}

type Orchestrator struct {
	deps   Dependencies
	config Config
	logger logger.Logger
}

func New(deps Dependencies, cfg Config) (*Orchestrator, error) {
	if deps.Completer == nil || deps.Registry == nil || deps.Format == nil || deps.Catalog == nil {
		return nil, errors.New("orchestrator: completer, registry, format and catalog are required")
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Orchestrator{deps: deps, config: cfg, logger: log}, nil
}

// Run processes a receipt whose duplicate check has been recorded. The returned session is
// non-nil whenever the run started; err carries the fatal code of a FAILED session.
func (o *Orchestrator) Run(ctx context.Context, record *models.ReceiptRecord, checked *dedupe.Checked) (*Session, error) {
	if checked == nil || !checked.Recorded() || checked.Entry().ReceiptID != record.ID {
		return nil, ErrNotRecorded
	}

	s := &Session{
		ID:        uuid.New().String(),
		ReceiptID: record.ID,
		State:     models.StateInit,
		Verdict:   checked.Verdict(),
		History:   []models.HistoryEntry{},
		StartedAt: time.Now(),
	}
	log := o.logger.WithFields(map[string]interface{}{
		"sessionId": s.ID,
		"receiptId": record.ID,
		"category":  record.Category,
	})

	ctx, span := o.startSpan(ctx, "agent.session", map[string]string{
		"session.id": s.ID,
		"receipt.id": record.ID,
		"category":   string(record.Category),
	})
	defer span.End()

	tc := &tools.Context{SessionID: s.ID, Record: record, Verdict: s.Verdict}

	var err error
	if s.Verdict.IsDuplicate {
		s.ShortCircuited = true
		err = o.shortCircuit(ctx, s, tc, log)
	} else {
		err = o.loop(ctx, s, tc, log)
	}

	s.FinishedAt = time.Now()
	if err != nil {
		s.State = models.StateFailed
		s.ErrorCode = string(apperrors.CodeOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, s.ErrorCode)
		log.Error("agent session failed", map[string]interface{}{
			"errorCode": s.ErrorCode,
			"turns":     s.Turns,
			"error":     err,
		})
	} else {
		s.State = models.StateDone
		log.Info("agent session done", map[string]interface{}{
			"turns":          s.Turns,
			"shortCircuited": s.ShortCircuited,
		})
	}

	metrics.AgentTurns.WithLabelValues(string(s.State)).Observe(float64(s.Turns))
	if o.deps.Obs != nil {
		o.deps.Obs.RecordSession(ctx, string(s.State), string(record.Category), s.FinishedAt.Sub(s.StartedAt))
	}
	return s, err
}

func (o *Orchestrator) startSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, trace.Span) {
	if o.deps.Obs == nil {
		return noop.NewTracerProvider().Tracer("").Start(ctx, name)
	}
	return o.deps.Obs.StartSpan(ctx, name, attrs)
}

type promptField struct {
	Key   string
	Value string
}

type promptTool struct {
	Name        string
	Description string
	Parameters  string
}

func (o *Orchestrator) systemPrompt(record *models.ReceiptRecord) (string, error) {
	fields := make([]promptField, 0, len(record.Fields))
	for _, k := range record.SortedFieldKeys() {
		fields = append(fields, promptField{Key: k, Value: record.Fields[k]})
	}
	specs := o.deps.Registry.Specs()
	catalog := make([]promptTool, 0, len(specs))
	for _, spec := range specs {
		catalog = append(catalog, promptTool{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  spec.Parameters.String(),
		})
	}
	return o.deps.Catalog.Render("agent", map[string]interface{}{
		"EmployeeID": record.EmployeeID,
		"Category":   record.Category,
		"ReceiptID":  record.ID,
		"Fields":     fields,
		"Tools":      catalog,
		"Format":     o.deps.Format.Instructions(),
	})
}

func (o *Orchestrator) loop(ctx context.Context, s *Session, tc *tools.Context, log logger.Logger) error {
	system, err := o.systemPrompt(tc.Record)
	if err != nil {
		return apperrors.NewModelCompletionFailedError(err)
	}
	s.State = models.StateLooping

	var history []llm.Message
	for turn := 1; ; turn++ {
		if err := ctx.Err(); err != nil {
			return apperrors.NewSessionCancelledError(err)
		}
		if turn > o.config.MaxTurns {
			return apperrors.NewLoopExceededError(o.config.MaxTurns)
		}
		s.Turns = turn

		raw, err := o.complete(ctx, turn, system, history)
		if err != nil {
			if ctx.Err() != nil {
				return apperrors.NewSessionCancelledError(ctx.Err())
			}
			return apperrors.NewModelCompletionFailedError(err)
		}
		history = append(history, llm.Message{Role: llm.RoleAssistant, Content: raw})
		entry := models.HistoryEntry{Turn: turn, Raw: raw, RecordAt: time.Now()}

		parsed, err := o.deps.Format.Parse(raw)
		if err != nil {
			entry.Result = failedResult("", err)
			s.History = append(s.History, entry)
			log.Warn("malformed model response", map[string]interface{}{"turn": turn, "error": err})

			msg, rErr := o.deps.Catalog.Render("correction", map[string]interface{}{"Error": err.Error()})
			if rErr != nil {
				return apperrors.NewModelCompletionFailedError(rErr)
			}
			history = append(history, llm.Message{Role: llm.RoleUser, Content: msg})
			continue
		}
		entry.Parsed = parsed

		if parsed.IsFinal && (parsed.ToolName == "" || !o.config.InvokeFinalTool) {
			s.History = append(s.History, entry)
			s.Final = parsed
			return nil
		}

		res, invokeErr := o.deps.Registry.Invoke(ctx, parsed.ToolName, parsed.Parameters, tc)
		entry.Result = res
		s.History = append(s.History, entry)
		if invokeErr != nil && !apperrors.Recoverable(apperrors.CodeOf(invokeErr)) {
			return invokeErr
		}
		if invokeErr == nil && parsed.IsFinal {
			s.Final = parsed
			return nil
		}

		msg, err := o.toolResultMessage(res)
		if err != nil {
			return apperrors.NewModelCompletionFailedError(err)
		}
		history = append(history, llm.Message{Role: llm.RoleUser, Content: msg})
	}
}

func (o *Orchestrator) complete(ctx context.Context, turn int, system string, history []llm.Message) (string, error) {
	ctx, span := o.startSpan(ctx, "agent.turn", map[string]string{"turn": fmt.Sprint(turn)})
	defer span.End()

	raw, err := o.deps.Completer.Complete(ctx, system, history)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
	}
	return raw, err
}

func (o *Orchestrator) toolResultMessage(res *models.ToolInvocationResult) (string, error) {
	body := map[string]interface{}{"success": res.Success}
	if res.Success {
		body["result"] = res.Payload
	} else {
		body["error"] = res.Error
		body["error_code"] = res.ErrorCode
	}
	raw, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return o.deps.Catalog.Render("tool_result", map[string]interface{}{
		"ToolName": res.ToolName,
		"Body":     string(raw),
	})
}

func failedResult(tool string, err error) *models.ToolInvocationResult {
	return &models.ToolInvocationResult{
		ToolName:  tool,
		Error:     err.Error(),
		ErrorCode: string(apperrors.CodeOf(err)),
	}
}

// shortCircuit handles a duplicate without consulting the model: audit, confirm the verdict,
// then notify the employee.
func (o *Orchestrator) shortCircuit(ctx context.Context, s *Session, tc *tools.Context, log logger.Logger) error {
	record := tc.Record
	v := s.Verdict

	if o.deps.Stages != nil {
		err := o.deps.Stages.Record(ctx, record.FileID, record.EmployeeID, models.StageDuplicateCheck, map[string]interface{}{
			"action":           "short_circuit",
			"matchedReceiptId": v.MatchedReceiptID,
			"score":            v.Score,
			"threshold":        v.Threshold,
		})
		if err != nil {
			log.Warn("failed to record duplicate audit event", map[string]interface{}{"error": err})
		}
	}

	res, err := o.invokeDirect(ctx, s, tc, tools.IsDuplicateReceipt, map[string]interface{}{"receipt_id": record.ID})
	if err != nil {
		return err
	}
	if v, ok := res.Payload.(*models.DuplicateVerdict); !ok || !v.IsDuplicate {
		return apperrors.NewToolExecutionError(tools.IsDuplicateReceipt, errors.New("verdict changed during short-circuit"))
	}

	subject, content, err := o.duplicateNotice(ctx, record, v)
	if err != nil {
		return apperrors.NewNotificationSendFailedError("email", err)
	}
	res, err = o.invokeDirect(ctx, s, tc, tools.SendEmail, map[string]interface{}{
		"recipient_id": record.EmployeeID,
		"subject":      subject,
		"content":      content,
	})
	if err != nil {
		return apperrors.NewNotificationSendFailedError("email", err)
	}
	if n, ok := res.Payload.(*models.NotificationResult); ok && n.Status != models.NotificationSent {
		log.Warn("duplicate notice not delivered", map[string]interface{}{"status": n.Status})
	}
	return nil
}

func (o *Orchestrator) invokeDirect(ctx context.Context, s *Session, tc *tools.Context, name string, params map[string]interface{}) (*models.ToolInvocationResult, error) {
	turn := &models.AgentTurn{ToolName: name, Parameters: params}
	res, err := o.deps.Registry.Invoke(ctx, name, params, tc)
	s.History = append(s.History, models.HistoryEntry{Parsed: turn, Result: res, RecordAt: time.Now()})
	return res, err
}

func (o *Orchestrator) duplicateNotice(ctx context.Context, record *models.ReceiptRecord, v models.DuplicateVerdict) (string, string, error) {
	name := record.EmployeeID
	if o.deps.Directory != nil {
		if emp, err := o.deps.Directory.Get(ctx, record.EmployeeID); err == nil && strings.TrimSpace(emp.Name) != "" {
			name = emp.Name
		}
	}
	body, err := o.deps.Catalog.Render("duplicate_body", map[string]interface{}{
		"Name":             name,
		"Category":         record.Category,
		"FileID":           record.FileID,
		"MatchedReceiptID": v.MatchedReceiptID,
		"Score":            v.Score,
	})
	if err != nil {
		return "", "", err
	}
	return o.deps.Catalog.Notifications.DuplicateSubject, strings.TrimSpace(body), nil
}
