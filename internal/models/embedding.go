package models

import "time"

// EmbeddingEntry is the vector form of a ReceiptRecord, owned 1:1 by it.
type EmbeddingEntry struct {
	ReceiptID  string            `json:"receiptId"`
	Category   Category          `json:"category"`
	Vector     []float32         `json:"vector"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	InsertedAt time.Time         `json:"insertedAt"`
}

// VerdictOutcome distinguishes an empty category from a compared-but-novel receipt.
type VerdictOutcome string

const (
	OutcomeNoHistory VerdictOutcome = "NO_HISTORY"
	OutcomeNovel     VerdictOutcome = "NOVEL"
	OutcomeDuplicate VerdictOutcome = "DUPLICATE"
)

// DuplicateVerdict is the result of one duplicate check.
type DuplicateVerdict struct {
	IsDuplicate      bool           `json:"isDuplicate"`
	MatchedReceiptID string         `json:"matchedReceiptId,omitempty"`
	Score            float64        `json:"score"`
	Threshold        float64        `json:"threshold"`
	Outcome          VerdictOutcome `json:"outcome"`
	Compared         int            `json:"compared"`
	CheckedAt        time.Time      `json:"checkedAt"`
}
