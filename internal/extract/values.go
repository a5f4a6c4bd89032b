package extract

import (
	"regexp"
	"strings"

	"github.com/fieldnotes-ai/fieldnotes/internal/models"
)

// Field names a belief-state scalar recoverable from a sentence.
type Field string

const (
	FieldName        Field = "name"
	FieldCompany     Field = "company"
	FieldRole        Field = "role"
	FieldInstitution Field = "institution"
	FieldMajor       Field = "major"
)

// Belief scalars arrive as free-text sentences ("His name is Sam"), not
// atomic values. Each field has an ordered pattern chain; the trigger
// phrase matches case-insensitively while name-like captures stay
// capitalized so trailing prose is not swallowed.
var fieldPatterns = map[Field][]*regexp.Regexp{
	FieldName: {
		regexp.MustCompile(`(?:(?i)(?:my name is|his name is|her name is|their name is|name's|this is|i'm|i am|call me)\s+)([A-Z][A-Za-z'\-]*(?:\s+[A-Z][A-Za-z'\-]*){0,3})`),
	},
	FieldCompany: {
		regexp.MustCompile(`(?:(?i)(?:works? (?:at|for)|employed (?:at|by)|i'm (?:at|with)|company is called|company is|founded)\s+)([A-Z][A-Za-z0-9&\-]*(?:\s+[A-Z][A-Za-z0-9&\-]*){0,3})`),
	},
	FieldRole: {
		regexp.MustCompile(`(?i)(?:i'm (?:a|an|the)|he's (?:a|an|the)|she's (?:a|an|the)|they're (?:a|an|the)|works as (?:a|an)|role is)\s+([A-Za-z][A-Za-z \-]+?)(?:\s+(?:at|for|with|in)\s|[.,!?]|$)`),
	},
	FieldInstitution: {
		regexp.MustCompile(`(?:(?i)(?:stud(?:y|ies|ied|ying) at|goes to|went to|attends?|graduated from|alum(?:nus|na)? of)\s+)([A-Z][A-Za-z&\-]*(?:\s+[A-Z][A-Za-z&\-]*){0,4})`),
	},
	FieldMajor: {
		regexp.MustCompile(`(?i)(?:major(?:ing|ed|s)? in|degree in|phd in|masters in|studying)\s+([A-Za-z][A-Za-z \-]+?)(?:\s+at\s|[.,!?]|$)`),
	},
}

// RecoverValue recovers the atomic value for a field from its belief
// sentence. A pattern match yields the captured value at high
// confidence. When no pattern matches, the whole sentence is kept as a
// low-confidence fallback value rather than silently treated as clean,
// so downstream review can flag it.
func RecoverValue(field Field, sentence string) (models.ConfidentField, bool) {
	sentence = strings.TrimSpace(sentence)
	if sentence == "" {
		return models.ConfidentField{}, false
	}

	for _, pat := range fieldPatterns[field] {
		if m := pat.FindStringSubmatch(sentence); m != nil {
			value := strings.TrimSpace(m[1])
			if value != "" {
				return models.ConfidentField{
					Value:      value,
					Confidence: models.ConfidenceHigh,
				}, true
			}
		}
	}

	return models.ConfidentField{
		Value:      strings.TrimSuffix(sentence, "."),
		Confidence: models.ConfidenceLow,
	}, false
}

// ResolveProfile recovers atomic values for every scalar in a belief
// state. The second return value reports whether any field fell back to
// raw sentence text, which marks the resulting record for review.
func ResolveProfile(b BeliefState) (models.Profile, bool) {
	var p models.Profile
	fellBack := false

	resolve := func(field Field, sentence string, dst *models.ConfidentField) {
		if sentence == "" {
			return
		}
		value, matched := RecoverValue(field, sentence)
		*dst = value
		if !matched {
			fellBack = true
		}
	}

	resolve(FieldName, b.Name, &p.Name)
	resolve(FieldCompany, b.Company, &p.Company)
	resolve(FieldRole, b.Role, &p.Role)
	resolve(FieldInstitution, b.Institution, &p.Institution)
	resolve(FieldMajor, b.Major, &p.Major)

	return p, fellBack
}
