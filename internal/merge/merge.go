// Package merge implements the field-merge policies used everywhere
// profile values are updated: the confidence-ordered overwrite used by
// the session store and the write-once rule used by the insight
// extractor's belief state. Both policies live here so the two
// subsystems cannot drift apart on what "the current truth" means.
package merge

import (
	"strings"
	"unicode"

	"github.com/fieldnotes-ai/fieldnotes/internal/models"
)

// Field applies the confidence-ordered merge rule. The candidate wins if
// the stored field is empty, if its value differs and its tier is at
// least the stored tier, or if the value is identical but the tier is
// strictly greater. Otherwise the stored field is kept.
func Field(stored, candidate models.ConfidentField) models.ConfidentField {
	if candidate.IsZero() {
		return stored
	}
	if stored.IsZero() {
		return candidate
	}
	cand, cur := candidate.Confidence.Rank(), stored.Confidence.Rank()
	if candidate.Value != stored.Value && cand >= cur {
		return candidate
	}
	if candidate.Value == stored.Value && cand > cur {
		return candidate
	}
	return stored
}

// ValueWriteOnce applies the write-once rule to a bare scalar: the
// stored value, once set, is never replaced. Returns the merged value
// and what was newly added, empty when the stored value was kept.
func ValueWriteOnce(stored, candidate string) (value, added string) {
	candidate = strings.TrimSpace(candidate)
	if stored != "" || candidate == "" {
		return stored, ""
	}
	return candidate, candidate
}

// Normalize lowercases, strips punctuation and collapses whitespace, the
// canonical form used for duplicate detection across fact lists.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			space = true
		}
	}
	return b.String()
}

// NearDuplicate reports whether two facts are semantically the same
// entry: after normalization, one contains the other.
func NearDuplicate(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return na == nb
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}

// UnionFacts appends candidates that are not near-duplicates of an
// existing entry (or of an earlier candidate). Returns the merged list
// and the entries that were actually added.
func UnionFacts(existing, candidates []string) (merged, added []string) {
	merged = existing
	for _, cand := range candidates {
		cand = strings.TrimSpace(cand)
		if cand == "" {
			continue
		}
		dup := false
		for _, have := range merged {
			if NearDuplicate(have, cand) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		merged = append(merged, cand)
		added = append(added, cand)
	}
	return merged, added
}
