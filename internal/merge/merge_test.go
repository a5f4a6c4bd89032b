package merge

import (
	"testing"

	"github.com/fieldnotes-ai/fieldnotes/internal/models"
)

func field(v string, c models.Confidence) models.ConfidentField {
	return models.ConfidentField{Value: v, Confidence: c}
}

func TestField(t *testing.T) {
	tests := []struct {
		name      string
		stored    models.ConfidentField
		candidate models.ConfidentField
		want      models.ConfidentField
	}{
		{"empty stored takes candidate", models.ConfidentField{}, field("Sam", models.ConfidenceLow), field("Sam", models.ConfidenceLow)},
		{"empty candidate keeps stored", field("Sam", models.ConfidenceLow), models.ConfidentField{}, field("Sam", models.ConfidenceLow)},
		{"different value equal tier replaces", field("Sam", models.ConfidenceLow), field("Samuel Lee", models.ConfidenceLow), field("Samuel Lee", models.ConfidenceLow)},
		{"different value higher tier replaces", field("Sam", models.ConfidenceLow), field("Samuel Lee", models.ConfidenceHigh), field("Samuel Lee", models.ConfidenceHigh)},
		{"different value lower tier keeps stored", field("Samuel Lee", models.ConfidenceHigh), field("Sam", models.ConfidenceLow), field("Samuel Lee", models.ConfidenceHigh)},
		{"same value higher tier upgrades", field("Sam", models.ConfidenceLow), field("Sam", models.ConfidenceHigh), field("Sam", models.ConfidenceHigh)},
		{"same value same tier unchanged", field("Sam", models.ConfidenceMedium), field("Sam", models.ConfidenceMedium), field("Sam", models.ConfidenceMedium)},
		{"same value lower tier keeps stored tier", field("Sam", models.ConfidenceHigh), field("Sam", models.ConfidenceLow), field("Sam", models.ConfidenceHigh)},
		{"medium beats low on differing value", field("Acme", models.ConfidenceLow), field("Acme Corp", models.ConfidenceMedium), field("Acme Corp", models.ConfidenceMedium)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Field(tt.stored, tt.candidate)
			if got != tt.want {
				t.Errorf("Field(%v, %v) = %v, want %v", tt.stored, tt.candidate, got, tt.want)
			}
		})
	}
}

func TestFieldTierMonotonic(t *testing.T) {
	// Applying candidates of non-decreasing tier must never lower the
	// stored tier.
	stored := models.ConfidentField{}
	seq := []models.ConfidentField{
		field("a", models.ConfidenceLow),
		field("b", models.ConfidenceLow),
		field("c", models.ConfidenceMedium),
		field("c", models.ConfidenceMedium),
		field("d", models.ConfidenceHigh),
	}
	prev := 0
	for _, cand := range seq {
		stored = Field(stored, cand)
		if stored.Confidence.Rank() < prev {
			t.Fatalf("tier regressed: %v after candidate %v", stored, cand)
		}
		prev = stored.Confidence.Rank()
	}
}

func TestValueWriteOnce(t *testing.T) {
	stored, added := ValueWriteOnce("", "first")
	if stored != "first" || added != "first" {
		t.Fatalf("expected first write to stick, got %q added %q", stored, added)
	}
	stored, added = ValueWriteOnce(stored, "second")
	if stored != "first" {
		t.Errorf("write-once value was overwritten: %q", stored)
	}
	if added != "" {
		t.Errorf("kept value reported as added: %q", added)
	}
	if stored, _ = ValueWriteOnce("first", "  "); stored != "first" {
		t.Errorf("blank candidate changed stored value: %q", stored)
	}
	if stored, added = ValueWriteOnce("", "  padded  "); stored != "padded" || added != "padded" {
		t.Errorf("candidate not trimmed: %q added %q", stored, added)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello, World!", "hello world"},
		{"  spaced   out  ", "spaced out"},
		{"AI/ML engineering", "ai ml engineering"},
		{"kubernetes", "kubernetes"},
		{"", ""},
		{"!!!", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNearDuplicate(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"Kubernetes", "kubernetes!", true},
		{"scaling Kubernetes", "kubernetes", true},
		{"kubernetes", "scaling Kubernetes clusters", true},
		{"hiring engineers", "series B fundraising", false},
		{"", "", true},
		{"topic", "", false},
	}
	for _, tt := range tests {
		if got := NearDuplicate(tt.a, tt.b); got != tt.want {
			t.Errorf("NearDuplicate(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestUnionFacts(t *testing.T) {
	existing := []string{"Kubernetes scaling", "hiring"}
	merged, added := UnionFacts(existing, []string{"kubernetes", "Series B", "series b!", "  ", "hiring engineers"})

	if len(added) != 1 || added[0] != "Series B" {
		t.Fatalf("added = %v, want [Series B]", added)
	}
	if len(merged) != 3 {
		t.Errorf("merged = %v, want 3 entries", merged)
	}

	// No two entries may normalize into containment of each other.
	for i := range merged {
		for j := range merged {
			if i != j && Normalize(merged[i]) == Normalize(merged[j]) {
				t.Errorf("duplicate normalized entries: %q and %q", merged[i], merged[j])
			}
		}
	}
}
