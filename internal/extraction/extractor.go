// Package extraction turns a receipt image into a ReceiptRecord with two vision calls:
// classification, then category-specific field extraction.
package extraction

import (
	"context"
	"net/http"
	"strings"
	"time"

	apperrors "receipt-agent/internal/common/errors"
	"receipt-agent/internal/common/logger"
	"receipt-agent/internal/llm"
	"receipt-agent/internal/models"
	"receipt-agent/internal/prompts"

	"github.com/google/uuid"
)

var supportedTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/gif":  true,
}

// Document is one submitted receipt file.
type Document struct {
	FileID      string
	EmployeeID  string
	Data        []byte
	ContentType string
}

type Extractor struct {
	vision  llm.Vision
	catalog *prompts.Catalog
	logger  logger.Logger
	now     func() time.Time
}

func New(vision llm.Vision, catalog *prompts.Catalog, log logger.Logger) *Extractor {
	return &Extractor{vision: vision, catalog: catalog, logger: log, now: time.Now}
}

// ContentType validates the declared type, sniffing it when empty.
func ContentType(doc Document) (string, error) {
	if len(doc.Data) == 0 {
		return "", apperrors.NewInvalidSubmissionError("receipt file is empty")
	}
	ct := doc.ContentType
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(doc.Data)
	}
	ct = strings.TrimSpace(strings.Split(ct, ";")[0])
	if !supportedTypes[ct] {
		return "", apperrors.NewInvalidSubmissionError("unsupported receipt content type " + ct)
	}
	return ct, nil
}

// Classify asks the vision model for the receipt category.
func (e *Extractor) Classify(ctx context.Context, doc Document) (models.Category, error) {
	ct, err := ContentType(doc)
	if err != nil {
		return "", err
	}
	answer, err := e.vision.Describe(ctx, e.catalog.Classification.Prompt, doc.Data, ct)
	if err != nil {
		return "", apperrors.NewExtractionFailedError(err)
	}
	category := ParseCategory(answer)
	e.logger.Info("receipt classified", map[string]interface{}{
		"fileId":   doc.FileID,
		"category": category,
		"answer":   strings.TrimSpace(answer),
	})
	return category, nil
}

// ExtractFields asks for the category's fields and builds the immutable record.
func (e *Extractor) ExtractFields(ctx context.Context, doc Document, category models.Category) (*models.ReceiptRecord, error) {
	ct, err := ContentType(doc)
	if err != nil {
		return nil, err
	}
	prompt, err := e.catalog.ExtractionPrompt(category)
	if err != nil {
		return nil, apperrors.NewExtractionFailedError(err)
	}
	answer, err := e.vision.Describe(ctx, prompt, doc.Data, ct)
	if err != nil {
		return nil, apperrors.NewExtractionFailedError(err)
	}

	fields := ParseFields(answer, e.catalog.FieldsFor(category))
	text := EmbeddingText(fields)
	record := &models.ReceiptRecord{
		ID:             uuid.NewString(),
		FileID:         doc.FileID,
		EmployeeID:     doc.EmployeeID,
		Category:       category,
		Fields:         fields,
		RawText:        answer,
		NormalizedText: models.NormalizeText(text),
		CreatedAt:      e.now().UTC(),
	}

	e.logger.Info("receipt fields extracted", map[string]interface{}{
		"fileId":    doc.FileID,
		"receiptId": record.ID,
		"category":  category,
		"populated": len(record.SortedFieldKeys()),
	})
	return record, nil
}

// Extract runs classification and field extraction.
func (e *Extractor) Extract(ctx context.Context, doc Document) (*models.ReceiptRecord, error) {
	category, err := e.Classify(ctx, doc)
	if err != nil {
		return nil, err
	}
	return e.ExtractFields(ctx, doc, category)
}
