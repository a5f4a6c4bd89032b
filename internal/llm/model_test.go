package llm

import (
	"context"
	"testing"

	"github.com/tmc/langchaingo/llms"
)

func TestParseProfileExtraction(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		check   func(t *testing.T, got *ProfileExtraction)
	}{
		{
			name: "plain json",
			raw:  `{"name":"His name is Sam","topics":["kubernetes","hiring"]}`,
			check: func(t *testing.T, got *ProfileExtraction) {
				if got.Name != "His name is Sam" {
					t.Errorf("Name = %q", got.Name)
				}
				if len(got.Topics) != 2 {
					t.Errorf("Topics = %v", got.Topics)
				}
			},
		},
		{
			name: "fenced json",
			raw:  "```json\n{\"company\":\"She works at Acme\"}\n```",
			check: func(t *testing.T, got *ProfileExtraction) {
				if got.Company != "She works at Acme" {
					t.Errorf("Company = %q", got.Company)
				}
			},
		},
		{
			name: "json surrounded by prose",
			raw:  "Sure, here it is: {\"role\":\"He is the CTO\"} hope that helps",
			check: func(t *testing.T, got *ProfileExtraction) {
				if got.Role != "He is the CTO" {
					t.Errorf("Role = %q", got.Role)
				}
			},
		},
		{
			name: "empty object means nothing new",
			raw:  "{}",
			check: func(t *testing.T, got *ProfileExtraction) {
				if !got.IsEmpty() {
					t.Errorf("expected empty extraction, got %+v", got)
				}
			},
		},
		{
			name:    "no json at all",
			raw:     "I could not find anything.",
			wantErr: true,
		},
		{
			name:    "malformed json",
			raw:     `{"name": "broken`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseProfileExtraction(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, got)
		})
	}
}

func TestProfileExtractionIsEmpty(t *testing.T) {
	var nilExtraction *ProfileExtraction
	if !nilExtraction.IsEmpty() {
		t.Error("nil extraction should be empty")
	}
	if !(&ProfileExtraction{}).IsEmpty() {
		t.Error("zero extraction should be empty")
	}
	if (&ProfileExtraction{Hooks: []string{"send the paper"}}).IsEmpty() {
		t.Error("extraction with a hook should not be empty")
	}
}

type stubLLM struct {
	content string
	info    map[string]any
}

func (s *stubLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:        s.content,
		GenerationInfo: s.info,
	}}}, nil
}

func (s *stubLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return s.content, nil
}

func TestExtractProfileCarriesTokenUsage(t *testing.T) {
	m := &Model{llm: &stubLLM{
		content: `{"name":"His name is Sam"}`,
		info:    map[string]any{"PromptTokens": 120, "CompletionTokens": 9},
	}}

	got, err := m.ExtractProfile(context.Background(), "his name is sam")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "His name is Sam" {
		t.Errorf("Name = %q", got.Name)
	}
	if got.Usage.InputTokens != 120 || got.Usage.OutputTokens != 9 {
		t.Errorf("Usage = %+v", got.Usage)
	}
	if got.IsEmpty() {
		t.Error("extraction with a name should not be empty")
	}
}

func TestUsageFromInfo(t *testing.T) {
	tests := []struct {
		name    string
		info    map[string]any
		in, out int64
	}{
		{
			name: "openai style",
			info: map[string]any{"PromptTokens": 50, "CompletionTokens": 12},
			in:   50, out: 12,
		},
		{
			name: "anthropic style",
			info: map[string]any{"InputTokens": int64(77), "OutputTokens": int64(3)},
			in:   77, out: 3,
		},
		{
			name: "float counts",
			info: map[string]any{"input_tokens": float64(8), "output_tokens": float64(2)},
			in:   8, out: 2,
		},
		{name: "nothing reported", info: map[string]any{}},
		{name: "nil info"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := usageFromInfo(tt.info)
			if got.InputTokens != tt.in || got.OutputTokens != tt.out {
				t.Errorf("usageFromInfo(%v) = %+v", tt.info, got)
			}
		})
	}
}
