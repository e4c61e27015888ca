package dedupe

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"receipt-agent/internal/models"
)

// DefaultThreshold tolerates OCR noise and address truncation without merging distinct trips.
const DefaultThreshold = 0.95

// Thresholds holds the duplicate threshold per category. It is read on every check and
// replaced on config reload or calibration.
type Thresholds struct {
	mu          sync.RWMutex
	fallback    float64
	perCategory map[models.Category]float64
}

// NewThresholds builds a set from config. Category keys are matched case-insensitively.
func NewThresholds(fallback float64, perCategory map[string]float64) (*Thresholds, error) {
	t := &Thresholds{}
	if err := t.Replace(fallback, perCategory); err != nil {
		return nil, err
	}
	return t, nil
}

// For returns the threshold applied to category c.
func (t *Thresholds) For(c models.Category) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if v, ok := t.perCategory[c]; ok {
		return v
	}
	return t.fallback
}

// Replace swaps the whole set atomically. On error the current set is kept.
func (t *Thresholds) Replace(fallback float64, perCategory map[string]float64) error {
	if fallback == 0 {
		fallback = DefaultThreshold
	}
	if err := checkRange("default", fallback); err != nil {
		return err
	}
	next := make(map[models.Category]float64, len(perCategory))
	for k, v := range perCategory {
		c, ok := models.ParseCategory(strings.ToUpper(k))
		if !ok {
			return fmt.Errorf("unknown category %q in duplicate thresholds", k)
		}
		if err := checkRange(k, v); err != nil {
			return err
		}
		next[c] = v
	}

	t.mu.Lock()
	t.fallback = fallback
	t.perCategory = next
	t.mu.Unlock()
	return nil
}

// Set overrides a single category.
func (t *Thresholds) Set(c models.Category, v float64) error {
	if err := checkRange(string(c), v); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.perCategory[c] = v
	return nil
}

// Snapshot returns the default and a copy of the overrides.
func (t *Thresholds) Snapshot() (float64, map[models.Category]float64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[models.Category]float64, len(t.perCategory))
	for k, v := range t.perCategory {
		out[k] = v
	}
	return t.fallback, out
}

func checkRange(name string, v float64) error {
	if math.IsNaN(v) || v <= -1 || v > 1 {
		return fmt.Errorf("duplicate threshold %s=%v must be in (-1, 1]", name, v)
	}
	return nil
}
