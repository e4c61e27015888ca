package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "receipt-agent/internal/common/errors"
	"receipt-agent/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one list of entries per category and one key per receipt.
// Commit runs inside MULTI/EXEC so a record is never visible without its entry.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "receipt"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) entriesKey(c models.Category) string {
	return fmt.Sprintf("%s:embeddings:%s", s.prefix, c)
}

func (s *RedisStore) recordKey(id string) string {
	return fmt.Sprintf("%s:record:%s", s.prefix, id)
}

func (s *RedisStore) Insert(ctx context.Context, entry *models.EmbeddingEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return apperrors.NewStorageFaultError("insert", err)
	}
	if err := s.client.RPush(ctx, s.entriesKey(entry.Category), data).Err(); err != nil {
		return apperrors.NewStorageFaultError("insert", err)
	}
	return nil
}

func (s *RedisStore) Commit(ctx context.Context, record *models.ReceiptRecord, entry *models.EmbeddingEntry) error {
	recordData, err := json.Marshal(record)
	if err != nil {
		return apperrors.NewStorageFaultError("commit", err)
	}
	entryData, err := json.Marshal(entry)
	if err != nil {
		return apperrors.NewStorageFaultError("commit", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(record.ID), recordData, 0)
		pipe.RPush(ctx, s.entriesKey(entry.Category), entryData)
		return nil
	})
	if err != nil {
		return apperrors.NewStorageFaultError("commit", err)
	}
	return nil
}

func (s *RedisStore) Query(ctx context.Context, category models.Category, vector []float32) ([]Match, error) {
	raw, err := s.client.LRange(ctx, s.entriesKey(category), 0, -1).Result()
	if err != nil {
		return nil, apperrors.NewStorageFaultError("query", err)
	}

	entries := make([]models.EmbeddingEntry, 0, len(raw))
	for i, item := range raw {
		var e models.EmbeddingEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, apperrors.NewStorageFaultError("query", fmt.Errorf("decode entry %d of %s: %w", i, category, err))
		}
		entries = append(entries, e)
	}
	return score(entries, vector), nil
}

func (s *RedisStore) Record(ctx context.Context, id string) (*models.ReceiptRecord, error) {
	data, err := s.client.Get(ctx, s.recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, apperrors.NewStorageFaultError("record", err)
	}
	var r models.ReceiptRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, apperrors.NewStorageFaultError("record", err)
	}
	return &r, nil
}
