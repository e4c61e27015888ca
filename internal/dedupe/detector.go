// Package dedupe decides whether a receipt repeats one already stored in its category.
package dedupe

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	apperrors "receipt-agent/internal/common/errors"
	"receipt-agent/internal/common/logger"
	"receipt-agent/internal/common/metrics"
	"receipt-agent/internal/models"
	"receipt-agent/internal/vectorstore"
)

var (
	ErrNotChecked      = errors.New("receipt must be checked before it is recorded")
	ErrCheckMismatch   = errors.New("check result belongs to a different receipt")
	ErrAlreadyRecorded = errors.New("check result was already recorded")
)

// Checked carries a verdict together with the entry it was computed for. It is the only
// way to call Record, so a receipt can never be compared against itself.
type Checked struct {
	verdict  models.DuplicateVerdict
	entry    models.EmbeddingEntry
	recorded atomic.Bool
}

func (c *Checked) Verdict() models.DuplicateVerdict { return c.verdict }

func (c *Checked) Entry() models.EmbeddingEntry { return c.entry }

// Recorded reports whether Record has persisted this check's receipt.
func (c *Checked) Recorded() bool { return c.recorded.Load() }

type Detector struct {
	store      vectorstore.Store
	thresholds *Thresholds
	logger     logger.Logger
	now        func() time.Time
}

func NewDetector(store vectorstore.Store, thresholds *Thresholds, log logger.Logger) *Detector {
	return &Detector{
		store:      store,
		thresholds: thresholds,
		logger:     log,
		now:        time.Now,
	}
}

// Thresholds exposes the live threshold set for reload and calibration.
func (d *Detector) Thresholds() *Thresholds {
	return d.thresholds
}

// Check scores entry against every stored entry of its category. It does not write.
func (d *Detector) Check(ctx context.Context, entry *models.EmbeddingEntry) (*Checked, error) {
	matches, err := d.store.Query(ctx, entry.Category, entry.Vector)
	if err != nil {
		return nil, storageFault("query", err)
	}

	threshold := d.thresholds.For(entry.Category)
	verdict := Evaluate(matches, threshold)
	verdict.CheckedAt = d.now()

	if verdict.Outcome != models.OutcomeNoHistory {
		metrics.DuplicateScore.WithLabelValues(string(entry.Category)).Observe(verdict.Score)
	}
	d.logger.Info("duplicate check", map[string]interface{}{
		"receiptId": entry.ReceiptID,
		"category":  entry.Category,
		"outcome":   verdict.Outcome,
		"score":     verdict.Score,
		"threshold": threshold,
		"matchedId": verdict.MatchedReceiptID,
		"compared":  verdict.Compared,
	})

	c := &Checked{verdict: verdict, entry: *entry}
	c.entry.Vector = append([]float32(nil), entry.Vector...)
	return c, nil
}

// Record persists record and the checked entry atomically. It runs whatever the verdict
// was, so later checks see duplicates too.
func (d *Detector) Record(ctx context.Context, record *models.ReceiptRecord, checked *Checked) error {
	if checked == nil {
		return ErrNotChecked
	}
	if checked.entry.ReceiptID != record.ID {
		return ErrCheckMismatch
	}
	if !checked.recorded.CompareAndSwap(false, true) {
		return ErrAlreadyRecorded
	}

	entry := checked.entry
	if err := d.store.Commit(ctx, record, &entry); err != nil {
		checked.recorded.Store(false)
		return storageFault("commit", err)
	}
	return nil
}

// Evaluate picks the best match. The first-seen entry wins ties.
func Evaluate(matches []vectorstore.Match, threshold float64) models.DuplicateVerdict {
	v := models.DuplicateVerdict{
		Threshold: threshold,
		Compared:  len(matches),
		Outcome:   models.OutcomeNoHistory,
	}
	if len(matches) == 0 {
		return v
	}

	best := 0
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[best].Score {
			best = i
		}
	}

	v.Score = matches[best].Score
	if v.Score >= threshold {
		v.IsDuplicate = true
		v.Outcome = models.OutcomeDuplicate
		v.MatchedReceiptID = matches[best].Entry.ReceiptID
		return v
	}
	v.Outcome = models.OutcomeNovel
	return v
}

// Compare scores two vectors directly under threshold.
func Compare(a, b []float32, threshold float64) (float64, bool) {
	s := vectorstore.Cosine(a, b)
	return s, s >= threshold
}

func storageFault(op string, err error) error {
	if _, ok := apperrors.As(err); ok {
		return err
	}
	return apperrors.NewStorageFaultError(op, err)
}
