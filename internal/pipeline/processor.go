// Package pipeline chains extraction, the duplicate check and the agent session for one receipt.
package pipeline

import (
	"context"
	"time"

	"receipt-agent/internal/agent/orchestrator"
	apperrors "receipt-agent/internal/common/errors"
	"receipt-agent/internal/common/logger"
	"receipt-agent/internal/common/metrics"
	"receipt-agent/internal/dedupe"
	"receipt-agent/internal/extraction"
	"receipt-agent/internal/llm"
	"receipt-agent/internal/models"
)

type Extractor interface {
	Classify(ctx context.Context, doc extraction.Document) (models.Category, error)
	ExtractFields(ctx context.Context, doc extraction.Document, category models.Category) (*models.ReceiptRecord, error)
}

type Agent interface {
	Run(ctx context.Context, record *models.ReceiptRecord, checked *dedupe.Checked) (*orchestrator.Session, error)
}

type StageRecorder interface {
	Record(ctx context.Context, fileID, employeeID string, stage int, details map[string]interface{}) error
}

// Result summarizes one processed receipt.
type Result struct {
	FileID    string                   `json:"fileId"`
	ReceiptID string                   `json:"receiptId,omitempty"`
	Category  models.Category          `json:"category,omitempty"`
	Verdict   *models.DuplicateVerdict `json:"verdict,omitempty"`
	Session   *orchestrator.Session    `json:"session,omitempty"`
	Outcome   string                   `json:"outcome"`
	ErrorCode string                   `json:"errorCode,omitempty"`
	Elapsed   time.Duration            `json:"elapsed"`
}

const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

type Processor struct {
	extractor Extractor
	embedder  llm.Embedder
	detector  *dedupe.Detector
	agent     Agent
	stages    StageRecorder
	logger    logger.Logger
}

func NewProcessor(extractor Extractor, embedder llm.Embedder, detector *dedupe.Detector, agent Agent, stages StageRecorder, log logger.Logger) *Processor {
	return &Processor{
		extractor: extractor,
		embedder:  embedder,
		detector:  detector,
		agent:     agent,
		stages:    stages,
		logger:    log,
	}
}

// Process runs one receipt end to end. The record and embedding are persisted before the
// agent starts, whatever the verdict.
func (p *Processor) Process(ctx context.Context, doc extraction.Document) (*Result, error) {
	start := time.Now()
	res := &Result{FileID: doc.FileID}
	log := logger.ForReceipt(p.logger, doc.FileID, doc.EmployeeID)

	err := p.process(ctx, doc, res, log)
	res.Elapsed = time.Since(start)

	category := string(res.Category)
	if category == "" {
		category = "unknown"
	}
	if err != nil {
		res.Outcome = OutcomeFailed
		res.ErrorCode = string(apperrors.CodeOf(err))
		p.stage(ctx, doc, models.StageFailed, map[string]interface{}{"errorCode": res.ErrorCode, "error": err.Error()}, log)
		log.Error("receipt processing failed", map[string]interface{}{"errorCode": res.ErrorCode, "error": err})
	} else {
		p.stage(ctx, doc, models.StageCompleted, map[string]interface{}{"outcome": res.Outcome, "receiptId": res.ReceiptID}, log)
		log.Info("receipt processed", map[string]interface{}{
			"receiptId": res.ReceiptID,
			"outcome":   res.Outcome,
			"elapsedMs": res.Elapsed.Milliseconds(),
		})
	}
	metrics.ReceiptsProcessed.WithLabelValues(category, res.Outcome).Inc()
	return res, err
}

func (p *Processor) process(ctx context.Context, doc extraction.Document, res *Result, log logger.Logger) error {
	p.stage(ctx, doc, models.StageProcessingStarts, nil, log)

	category, err := p.extractor.Classify(ctx, doc)
	if err != nil {
		return err
	}
	res.Category = category
	p.stage(ctx, doc, models.StageClassified, map[string]interface{}{"category": category}, log)

	record, err := p.extractor.ExtractFields(ctx, doc, category)
	if err != nil {
		return err
	}
	res.ReceiptID = record.ID
	p.stage(ctx, doc, models.StageExtracted, map[string]interface{}{"receiptId": record.ID, "fields": record.Fields}, log)

	vector, err := p.embedder.Embed(ctx, record.NormalizedText)
	if err != nil {
		return apperrors.NewEmbeddingFailedError(err)
	}

	checked, err := p.detector.Check(ctx, &models.EmbeddingEntry{
		ReceiptID:  record.ID,
		Category:   record.Category,
		Vector:     vector,
		Metadata:   map[string]string{"fileId": record.FileID, "employeeId": record.EmployeeID},
		InsertedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	verdict := checked.Verdict()
	res.Verdict = &verdict

	if err := p.detector.Record(ctx, record, checked); err != nil {
		return err
	}
	p.stage(ctx, doc, models.StageDuplicateCheck, map[string]interface{}{
		"isDuplicate":      verdict.IsDuplicate,
		"outcome":          verdict.Outcome,
		"score":            verdict.Score,
		"matchedReceiptId": verdict.MatchedReceiptID,
	}, log)

	p.stage(ctx, doc, models.StageAgentProcessing, nil, log)
	session, err := p.agent.Run(ctx, record, checked)
	res.Session = session
	if err != nil {
		return err
	}

	res.Outcome = OutcomeProcessed
	if session.ShortCircuited {
		res.Outcome = OutcomeDuplicate
	}
	return nil
}

// stage records progress. Tracking failures never fail the receipt.
func (p *Processor) stage(ctx context.Context, doc extraction.Document, stage int, details map[string]interface{}, log logger.Logger) {
	if p.stages == nil {
		return
	}
	if err := p.stages.Record(ctx, doc.FileID, doc.EmployeeID, stage, details); err != nil {
		log.Warn("failed to record stage", map[string]interface{}{"stage": stage, "error": err})
	}
}
