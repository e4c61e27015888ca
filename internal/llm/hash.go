package llm

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[a-z0-9.:-]+`)

// numericTokenWeight boosts whole tokens that carry digits (dates, times, amounts), which
// distinguish events that share a route or merchant.
const numericTokenWeight = 2

// HashEmbedder is an offline embedder built on signed feature hashing of character trigrams.
// Near-identical text maps to near-identical vectors, which is enough for calibration runs
// and for environments without an embeddings endpoint.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 512
	}
	return &HashEmbedder{dim: dim}
}

func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v := make([]float32, e.dim)
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	for _, tok := range tokenPattern.FindAllString(normalized, -1) {
		padded := []rune(" " + tok + " ")
		for i := 0; i+3 <= len(padded); i++ {
			e.add(v, string(padded[i:i+3]), 1)
		}
		if strings.ContainsAny(tok, "0123456789") {
			e.add(v, "w:"+tok, numericTokenWeight)
		}
	}
	return v, nil
}

func (e *HashEmbedder) add(v []float32, feature string, weight float32) {
	h := fnv.New32a()
	h.Write([]byte(feature))
	sum := h.Sum32()
	if sum>>31&1 == 1 {
		weight = -weight
	}
	v[sum%uint32(e.dim)] += weight
}
