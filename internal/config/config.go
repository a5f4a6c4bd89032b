// Package config holds process configuration and logger setup.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider identifies an LLM or embedding backend.
type Provider string

const (
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderBedrock   Provider = "bedrock"
)

// Config holds all configuration values.
type Config struct {
	// HTTP transport
	ListenAddr string `yaml:"listen_addr"`

	// SurrealDB connection
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level"`

	// Extraction LLM
	LLMProvider Provider `yaml:"llm_provider"`
	LLMModel    string   `yaml:"llm_model"`

	// Embeddings
	EmbedProvider  Provider `yaml:"embed_provider"`
	EmbedModel     string   `yaml:"embed_model"`
	EmbedDimension int      `yaml:"embed_dimension"`

	// Provider credentials / endpoints
	OllamaHost      string `yaml:"ollama_host"`
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	BedrockRegion   string `yaml:"bedrock_region"`

	// Transcription provider
	TranscribeURL    string `yaml:"transcribe_url"`
	TranscribeAPIKey string `yaml:"-"`

	// Identity matching
	MatchThreshold float64 `yaml:"match_threshold"`
	MatchFloor     float64 `yaml:"match_floor"`
	MatchLimit     int     `yaml:"match_limit"`

	// Session lifecycle
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"`
	SweepInterval      time.Duration `yaml:"sweep_interval"`
	ExtractDebounce    time.Duration `yaml:"extract_debounce"`
	ExtractMinChars    int           `yaml:"extract_min_chars"`
	CallTimeout        time.Duration `yaml:"call_timeout"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	return Config{
		ListenAddr: getEnv("FIELDNOTES_LISTEN_ADDR", ":8090"),

		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "fieldnotes"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "live"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		LLMProvider: Provider(getEnv("FIELDNOTES_LLM_PROVIDER", "ollama")),
		LLMModel:    getEnv("FIELDNOTES_LLM_MODEL", "llama3.1:8b"),

		EmbedProvider:  Provider(getEnv("FIELDNOTES_EMBED_PROVIDER", "ollama")),
		EmbedModel:     getEnv("FIELDNOTES_EMBED_MODEL", "all-minilm:l6-v2"),
		EmbedDimension: getEnvInt("FIELDNOTES_EMBED_DIMENSION", 384),

		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		BedrockRegion:   getEnv("AWS_REGION", "us-east-1"),

		TranscribeURL:    getEnv("FIELDNOTES_TRANSCRIBE_URL", "ws://localhost:9090/stream"),
		TranscribeAPIKey: os.Getenv("FIELDNOTES_TRANSCRIBE_API_KEY"),

		MatchThreshold: getEnvFloat("FIELDNOTES_MATCH_THRESHOLD", 0.80),
		MatchFloor:     getEnvFloat("FIELDNOTES_MATCH_FLOOR", 0.35),
		MatchLimit:     getEnvInt("FIELDNOTES_MATCH_LIMIT", 5),

		SessionIdleTimeout: getEnvDuration("FIELDNOTES_SESSION_IDLE_TIMEOUT", 10*time.Minute),
		SweepInterval:      getEnvDuration("FIELDNOTES_SWEEP_INTERVAL", 60*time.Second),
		ExtractDebounce:    getEnvDuration("FIELDNOTES_EXTRACT_DEBOUNCE", 3*time.Second),
		ExtractMinChars:    getEnvInt("FIELDNOTES_EXTRACT_MIN_CHARS", 50),
		CallTimeout:        getEnvDuration("FIELDNOTES_CALL_TIMEOUT", 30*time.Second),

		LogFile:  getEnv("FIELDNOTES_LOG_FILE", "/tmp/fieldnotes.log"),
		LogLevel: parseLogLevel(getEnv("FIELDNOTES_LOG_LEVEL", "INFO")),
	}
}

// ApplyFile overlays values from a YAML file onto the configuration.
// Intended for deploy-time overrides; secrets stay in the environment.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
