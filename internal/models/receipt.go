// internal/models/receipt.go
package models

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Category is the expense type a receipt is classified into.
type Category string

const (
	CategoryFood   Category = "FOOD_EXPENSE"
	CategoryTravel Category = "TRAVEL_EXPENSE"
	CategoryTech   Category = "TECH_EXPENSE"
	CategoryOther  Category = "OTHER_EXPENSE"
)

// Categories lists every category in classification order.
var Categories = []Category{CategoryFood, CategoryTravel, CategoryTech, CategoryOther}

// ParseCategory normalizes s to a known category.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// Ledgered reports whether the category has a budget ledger.
func (c Category) Ledgered() bool {
	return c == CategoryFood || c == CategoryTravel || c == CategoryTech
}

// Common extracted field keys.
const (
	FieldMerchant      = "merchant"
	FieldDate          = "date"
	FieldTime          = "time"
	FieldTotalAmount   = "total_amount"
	FieldMode          = "mode"
	FieldStartLocation = "start_location"
	FieldEndLocation   = "end_location"
)

// ReceiptRecord is one submitted receipt after extraction. It is never mutated once created.
type ReceiptRecord struct {
	ID             string            `json:"id"`
	FileID         string            `json:"fileId"`
	EmployeeID     string            `json:"employeeId"`
	Category       Category          `json:"category"`
	Fields         map[string]string `json:"fields"`
	RawText        string            `json:"rawText"`
	NormalizedText string            `json:"normalizedText"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// Field returns an extracted field. Missing and "not specified" values report false.
func (r *ReceiptRecord) Field(key string) (string, bool) {
	v, ok := r.Fields[key]
	if !ok || IsUnspecified(v) {
		return "", false
	}
	return v, true
}

// Amount parses the total amount field.
func (r *ReceiptRecord) Amount() (float64, bool) {
	v, ok := r.Field(FieldTotalAmount)
	if !ok {
		return 0, false
	}
	return ParseAmount(v)
}

// SortedFieldKeys returns the populated field keys in lexical order.
func (r *ReceiptRecord) SortedFieldKeys() []string {
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		if _, ok := r.Field(k); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// IsUnspecified reports whether an extracted value means "no value".
func IsUnspecified(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "not specified", "n/a", "na", "none", "unknown", "-":
		return true
	}
	return false
}

var amountPattern = regexp.MustCompile(`[-+]?\d[\d,]*(?:\.\d+)?`)

// ParseAmount extracts the first number from a currency string such as "Rs. 1,503.00".
func ParseAmount(s string) (float64, bool) {
	m := amountPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// NormalizeText lowercases and collapses whitespace so that cosmetic differences between two
// extractions of the same receipt do not move the embedding.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
