package extract

import (
	"testing"

	"github.com/fieldnotes-ai/fieldnotes/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestRecoverValue(t *testing.T) {
	tests := []struct {
		name       string
		field      Field
		sentence   string
		want       string
		confidence models.Confidence
		matched    bool
	}{
		{
			name:       "name from introduction",
			field:      FieldName,
			sentence:   "His name is Sam Altman and he seemed friendly",
			want:       "Sam Altman",
			confidence: models.ConfidenceHigh,
			matched:    true,
		},
		{
			name:       "name trigger is case insensitive",
			field:      FieldName,
			sentence:   "MY NAME IS Priya",
			want:       "Priya",
			confidence: models.ConfidenceHigh,
			matched:    true,
		},
		{
			name:       "name capture stops at lowercase prose",
			field:      FieldName,
			sentence:   "his name is Samuel Lee and he works downtown",
			want:       "Samuel Lee",
			confidence: models.ConfidenceHigh,
			matched:    true,
		},
		{
			name:       "company from works at",
			field:      FieldCompany,
			sentence:   "He works at Acme Robotics building warehouse arms",
			want:       "Acme Robotics",
			confidence: models.ConfidenceHigh,
			matched:    true,
		},
		{
			name:       "company from founded",
			field:      FieldCompany,
			sentence:   "She founded Driftwood last year",
			want:       "Driftwood",
			confidence: models.ConfidenceHigh,
			matched:    true,
		},
		{
			name:       "role stops at employer clause",
			field:      FieldRole,
			sentence:   "He's a staff engineer at a big bank",
			want:       "staff engineer",
			confidence: models.ConfidenceHigh,
			matched:    true,
		},
		{
			name:       "role stops at sentence end",
			field:      FieldRole,
			sentence:   "she's the head of design.",
			want:       "head of design",
			confidence: models.ConfidenceHigh,
			matched:    true,
		},
		{
			name:       "institution from studied at",
			field:      FieldInstitution,
			sentence:   "She studied at Carnegie Mellon University",
			want:       "Carnegie Mellon University",
			confidence: models.ConfidenceHigh,
			matched:    true,
		},
		{
			name:       "major with trailing institution",
			field:      FieldMajor,
			sentence:   "majoring in computer science at Stanford",
			want:       "computer science",
			confidence: models.ConfidenceHigh,
			matched:    true,
		},
		{
			name:       "no pattern falls back to whole sentence",
			field:      FieldName,
			sentence:   "Something about a nickname, hard to hear.",
			want:       "Something about a nickname, hard to hear",
			confidence: models.ConfidenceLow,
			matched:    false,
		},
		{
			name:       "fallback keeps sentence without trailing period",
			field:      FieldCompany,
			sentence:   "some kind of robotics startup.",
			want:       "some kind of robotics startup",
			confidence: models.ConfidenceLow,
			matched:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, matched := RecoverValue(tt.field, tt.sentence)
			assert.Equal(t, tt.matched, matched)
			assert.Equal(t, tt.want, got.Value)
			assert.Equal(t, tt.confidence, got.Confidence)
		})
	}
}

func TestRecoverValueEmptySentence(t *testing.T) {
	got, matched := RecoverValue(FieldName, "   ")
	assert.False(t, matched)
	assert.True(t, got.IsZero())
}

func TestResolveProfile(t *testing.T) {
	beliefs := BeliefState{
		Name:    "His name is Sam",
		Company: "He works at Acme Robotics",
		Role:    "he's a staff engineer",
	}

	profile, fellBack := ResolveProfile(beliefs)

	assert.False(t, fellBack)
	assert.Equal(t, "Sam", profile.Name.Value)
	assert.Equal(t, models.ConfidenceHigh, profile.Name.Confidence)
	assert.Equal(t, "Acme Robotics", profile.Company.Value)
	assert.Equal(t, "staff engineer", profile.Role.Value)
	assert.True(t, profile.Institution.IsZero())
	assert.True(t, profile.Major.IsZero())
}

func TestResolveProfileFlagsFallback(t *testing.T) {
	beliefs := BeliefState{
		Name:    "His name is Sam",
		Company: "some robotics thing, didn't catch the name",
	}

	profile, fellBack := ResolveProfile(beliefs)

	assert.True(t, fellBack, "an unparsed sentence must flag the profile")
	assert.Equal(t, models.ConfidenceHigh, profile.Name.Confidence)
	assert.Equal(t, models.ConfidenceLow, profile.Company.Confidence)
	assert.Equal(t, "some robotics thing, didn't catch the name", profile.Company.Value)
}

func TestResolveProfileEmptyBeliefs(t *testing.T) {
	profile, fellBack := ResolveProfile(BeliefState{})
	assert.False(t, fellBack)
	assert.True(t, profile.Name.IsZero())
	assert.True(t, profile.Company.IsZero())
}
