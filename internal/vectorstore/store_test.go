package vectorstore

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"receipt-agent/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	nan := float32(math.NaN())
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"empty", nil, nil, 0},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"zero norm", []float32{0, 0}, []float32{1, 1}, 0},
		{"nan", []float32{nan, 1}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-9)
		})
	}
}

func entry(id string, c models.Category, v ...float32) *models.EmbeddingEntry {
	return &models.EmbeddingEntry{
		ReceiptID:  id,
		Category:   c,
		Vector:     v,
		Metadata:   map[string]string{"employeeId": "E1"},
		InsertedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

// storeContract exercises behavior every backend shares.
func storeContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("empty category returns no matches", func(t *testing.T) {
		s := newStore(t)
		matches, err := s.Query(ctx, models.CategoryTravel, []float32{1, 0})
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("query is scoped by category and keeps insertion order", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, entry("a", models.CategoryTravel, 1, 0)))
		require.NoError(t, s.Insert(ctx, entry("b", models.CategoryFood, 1, 0)))
		require.NoError(t, s.Insert(ctx, entry("c", models.CategoryTravel, 0, 1)))

		matches, err := s.Query(ctx, models.CategoryTravel, []float32{1, 0})
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "a", matches[0].Entry.ReceiptID)
		assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
		assert.Equal(t, "c", matches[1].Entry.ReceiptID)
		assert.InDelta(t, 0.0, matches[1].Score, 1e-6)
	})

	t.Run("double insert stores two entries", func(t *testing.T) {
		s := newStore(t)
		e := entry("dup", models.CategoryTech, 0.3, 0.4)
		require.NoError(t, s.Insert(ctx, e))
		require.NoError(t, s.Insert(ctx, e))

		matches, err := s.Query(ctx, models.CategoryTech, []float32{0.3, 0.4})
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, matches[0].Entry.ReceiptID, matches[1].Entry.ReceiptID)
	})

	t.Run("commit makes record and entry visible", func(t *testing.T) {
		s := newStore(t)
		rec := &models.ReceiptRecord{
			ID:         "r1",
			FileID:     "f1",
			EmployeeID: "E1",
			Category:   models.CategoryFood,
			Fields:     map[string]string{models.FieldMerchant: "Cafe Niloufer"},
		}
		require.NoError(t, s.Commit(ctx, rec, entry("r1", models.CategoryFood, 1, 1)))

		got, err := s.Record(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, "Cafe Niloufer", got.Fields[models.FieldMerchant])

		matches, err := s.Query(ctx, models.CategoryFood, []float32{1, 1})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "r1", matches[0].Entry.ReceiptID)
	})

	t.Run("unknown record", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Record(ctx, "missing")
		assert.ErrorIs(t, err, ErrRecordNotFound)
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestMemoryStore_ConcurrentInsertAndQuery(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Insert(ctx, entry("x", models.CategoryTravel, 1, 2, 3)))
		}()
		go func() {
			defer wg.Done()
			matches, err := s.Query(ctx, models.CategoryTravel, []float32{1, 2, 3})
			assert.NoError(t, err)
			for _, m := range matches {
				assert.Len(t, m.Entry.Vector, 3)
			}
		}()
	}
	wg.Wait()

	matches, err := s.Query(ctx, models.CategoryTravel, []float32{1, 2, 3})
	require.NoError(t, err)
	assert.Len(t, matches, 50)
}

func TestMemoryStore_EntriesAreCopied(t *testing.T) {
	s := NewMemoryStore()
	e := entry("a", models.CategoryFood, 1, 0)
	require.NoError(t, s.Insert(context.Background(), e))
	e.Vector[0] = 0

	matches, err := s.Query(context.Background(), models.CategoryFood, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
}
