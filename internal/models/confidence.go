// Package models defines data structures for fieldnotes sessions and
// durable connection records.
package models

// Confidence is the tier attached to an extracted profile value.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Rank maps a tier onto an ordered integer (low < medium < high).
// Unknown tiers rank below low so malformed input never wins a merge.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceLow:
		return 1
	case ConfidenceMedium:
		return 2
	case ConfidenceHigh:
		return 3
	default:
		return 0
	}
}

// ConfidentField is a profile value labeled with the tier of the
// extraction that produced it.
type ConfidentField struct {
	Value      string     `json:"value"`
	Confidence Confidence `json:"confidence"`
}

// IsZero reports whether the field has never been set.
func (f ConfidentField) IsZero() bool {
	return f.Value == ""
}
