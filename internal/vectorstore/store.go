// Package vectorstore keeps receipt embeddings in an append-only, category-scoped collection.
package vectorstore

import (
	"context"
	"errors"
	"math"

	"receipt-agent/internal/models"
)

// ErrRecordNotFound is returned by Record when no receipt has the id.
var ErrRecordNotFound = errors.New("receipt record not found")

// Match is a stored entry paired with its similarity to the query vector.
type Match struct {
	Entry models.EmbeddingEntry
	Score float64
}

// Store is implemented by every backend. Implementations are safe for concurrent use and a
// query never observes a partially written entry.
type Store interface {
	// Insert appends entry. The same entry inserted twice is stored twice.
	Insert(ctx context.Context, entry *models.EmbeddingEntry) error
	// Commit writes a receipt and its embedding in one atomic step.
	Commit(ctx context.Context, record *models.ReceiptRecord, entry *models.EmbeddingEntry) error
	// Query returns every entry of category scored against vector, in insertion order.
	Query(ctx context.Context, category models.Category, vector []float32) ([]Match, error)
	// Record loads a committed receipt.
	Record(ctx context.Context, id string) (*models.ReceiptRecord, error)
}

// Cosine returns the cosine similarity of a and b in [-1, 1].
// Empty, zero-norm, mismatched or non-finite input scores 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	s := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0
	}
	return math.Max(-1, math.Min(1, s))
}

func score(entries []models.EmbeddingEntry, vector []float32) []Match {
	out := make([]Match, 0, len(entries))
	for _, e := range entries {
		out = append(out, Match{Entry: e, Score: Cosine(vector, e.Vector)})
	}
	return out
}
