package vectorstore

import (
	"context"
	"sync"

	apperrors "receipt-agent/internal/common/errors"
	"receipt-agent/internal/models"
)

// MemoryStore keeps everything in process. Used for tests and local calibration.
type MemoryStore struct {
	mu         sync.RWMutex
	byCategory map[models.Category][]models.EmbeddingEntry
	records    map[string]models.ReceiptRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byCategory: make(map[models.Category][]models.EmbeddingEntry),
		records:    make(map[string]models.ReceiptRecord),
	}
}

func (s *MemoryStore) Insert(ctx context.Context, entry *models.EmbeddingEntry) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewStorageFaultError("insert", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byCategory[entry.Category] = append(s.byCategory[entry.Category], cloneEntry(entry))
	return nil
}

func (s *MemoryStore) Commit(ctx context.Context, record *models.ReceiptRecord, entry *models.EmbeddingEntry) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewStorageFaultError("commit", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = *record
	s.byCategory[entry.Category] = append(s.byCategory[entry.Category], cloneEntry(entry))
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, category models.Category, vector []float32) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewStorageFaultError("query", err)
	}
	s.mu.RLock()
	entries := s.byCategory[category]
	snapshot := make([]models.EmbeddingEntry, len(entries))
	copy(snapshot, entries)
	s.mu.RUnlock()
	return score(snapshot, vector), nil
}

func (s *MemoryStore) Record(ctx context.Context, id string) (*models.ReceiptRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &r, nil
}

func cloneEntry(e *models.EmbeddingEntry) models.EmbeddingEntry {
	c := *e
	c.Vector = append([]float32(nil), e.Vector...)
	if e.Metadata != nil {
		c.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}
