package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/fieldnotes-ai/fieldnotes/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Model wraps a langchaingo LLM for profile extraction.
type Model struct {
	llm       llms.Model
	modelName string
}

// NewModel creates an LLM model based on configuration.
func NewModel(ctx context.Context, cfg config.Config) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case config.ProviderBedrock:
		awsCfg, loadErr := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.BedrockRegion),
		)
		if loadErr != nil {
			return nil, fmt.Errorf("load aws config: %w", loadErr)
		}
		client := bedrockruntime.NewFromConfig(awsCfg)
		model, err = bedrock.New(
			bedrock.WithClient(client),
			bedrock.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return &Model{
		llm:       model,
		modelName: cfg.LLMModel,
	}, nil
}

// Usage is the token accounting a provider reported for one call. Zero
// fields mean the provider reported nothing.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// GenerateWithSystem generates text with a system prompt.
func (m *Model) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	text, _, err := m.generateWithSystem(ctx, systemPrompt, userPrompt)
	return text, err
}

func (m *Model) generateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	response, err := m.llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", Usage{}, fmt.Errorf("generate with system: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("no response choices")
	}

	choice := response.Choices[0]
	return choice.Content, usageFromInfo(choice.GenerationInfo), nil
}

// usageFromInfo digs the token counts out of a choice's GenerationInfo.
// The key names differ per provider: openai and ollama report
// PromptTokens/CompletionTokens, anthropic and bedrock report
// InputTokens/OutputTokens.
func usageFromInfo(info map[string]any) Usage {
	return Usage{
		InputTokens:  infoTokens(info, "PromptTokens", "InputTokens", "input_tokens"),
		OutputTokens: infoTokens(info, "CompletionTokens", "OutputTokens", "output_tokens"),
	}
}

func infoTokens(info map[string]any, keys ...string) int64 {
	for _, key := range keys {
		switch v := info[key].(type) {
		case int:
			return int64(v)
		case int32:
			return int64(v)
		case int64:
			return v
		case float64:
			return int64(v)
		}
	}
	return 0
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

// ProfileExtraction is the sparse result of one extraction call. Scalar
// fields are free-text sentences as spoken ("His name is Sam"), not
// atomic values; array fields are short fact strings. An all-empty
// result means the transcript slice held nothing new.
type ProfileExtraction struct {
	Name        string   `json:"name,omitempty"`
	Company     string   `json:"company,omitempty"`
	Role        string   `json:"role,omitempty"`
	Institution string   `json:"institution,omitempty"`
	Major       string   `json:"major,omitempty"`
	Topics      []string `json:"topics,omitempty"`
	Challenges  []string `json:"challenges,omitempty"`
	Hooks       []string `json:"hooks,omitempty"`
	Personal    []string `json:"personal,omitempty"`

	// Usage is call accounting, not extracted content; it never counts
	// toward IsEmpty.
	Usage Usage `json:"-"`
}

// IsEmpty reports whether the extraction carries no new information.
func (e *ProfileExtraction) IsEmpty() bool {
	return e == nil ||
		(e.Name == "" && e.Company == "" && e.Role == "" &&
			e.Institution == "" && e.Major == "" &&
			len(e.Topics) == 0 && len(e.Challenges) == 0 &&
			len(e.Hooks) == 0 && len(e.Personal) == 0)
}

const extractSystemPrompt = `You listen to one side of an in-person conversation and extract facts about the person being spoken with.

Return ONLY a JSON object. Include a key only when the transcript slice contains NEW information for it:
  "name", "company", "role", "institution", "major": quote the sentence that states the fact
  "topics": conversation topics (short phrases)
  "challenges": problems or pain points they mention
  "hooks": follow-up opportunities ("send them the paper", "intro to Dana")
  "personal": personal facts (hobbies, family, hometown)

If the slice contains nothing new, return {}. No commentary, no markdown.`

// ExtractProfile sends a transcript slice to the model and parses the
// structured result.
func (m *Model) ExtractProfile(ctx context.Context, transcript string) (*ProfileExtraction, error) {
	userPrompt := fmt.Sprintf("Transcript slice:\n%s\n\nJSON:", transcript)

	raw, usage, err := m.generateWithSystem(ctx, extractSystemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("extract profile: %w", err)
	}

	result, err := ParseProfileExtraction(raw)
	if err != nil {
		return nil, fmt.Errorf("extract profile: %w", err)
	}
	result.Usage = usage
	return result, nil
}

// ParseProfileExtraction parses a model response into a ProfileExtraction,
// tolerating markdown code fences and prose around the JSON object.
func ParseProfileExtraction(raw string) (*ProfileExtraction, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in model response")
	}

	var result ProfileExtraction
	if err := json.Unmarshal([]byte(raw[start:end+1]), &result); err != nil {
		return nil, fmt.Errorf("parse model response: %w", err)
	}
	return &result, nil
}
