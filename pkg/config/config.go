package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Server
	Port    string
	AppName string

	// OpenAI-compatible API
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	EmbedModel      string
	CompletionModel string
	RequestTimeout  time.Duration

	// Storage layout
	DataDir     string // persisted knowledge-base snapshots
	UploadDir   string // request-scoped uploads
	DocsDir     string // preset source documents
	PresetsPath string // yaml file listing preset comparison targets

	// Reference base (Grupo Sura)
	ReferenceKey  string
	ReferenceFile string // filename under DocsDir

	// Retrieval
	TokenLimit  int
	TopK        int
	MaxChars    int // document length bound before chunking
	HeadChars   int
	DefaultYear int // metadata fallback when the filename carries no year
}

// PresetEntry is one preset comparison target from the presets yaml file.
type PresetEntry struct {
	Key   string `yaml:"key"`
	Label string `yaml:"label"`
	File  string `yaml:"file"`
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envOrDefault("PORT", "5000"),
		AppName: envOrDefault("APP_NAME", "FinLens"),

		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:   envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		EmbedModel:      envOrDefault("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		CompletionModel: envOrDefault("OPENAI_COMPLETION_MODEL", "gpt-5-nano"),
		RequestTimeout:  time.Duration(envOrDefaultInt("OPENAI_TIMEOUT_SECONDS", 120)) * time.Second,

		DataDir:     envOrDefault("DATA_DIR", "data"),
		UploadDir:   envOrDefault("UPLOAD_DIR", "uploads"),
		DocsDir:     envOrDefault("DOCS_DIR", "docs"),
		PresetsPath: envOrDefault("PRESETS_PATH", "configs/presets.yaml"),

		ReferenceKey:  envOrDefault("REFERENCE_KEY", "sura"),
		ReferenceFile: envOrDefault("REFERENCE_FILE", "SURA_COL_2024.pdf"),

		TokenLimit:  envOrDefaultInt("CHUNK_TOKEN_LIMIT", 500),
		TopK:        envOrDefaultInt("SEARCH_TOP_K", 3),
		MaxChars:    envOrDefaultInt("TEXT_MAX_CHARS", 35000),
		HeadChars:   envOrDefaultInt("TEXT_HEAD_CHARS", 20000),
		DefaultYear: envOrDefaultInt("DEFAULT_YEAR", time.Now().Year()),
	}
}

// LoadPresets reads the preset comparison targets from the yaml file at path.
func LoadPresets(path string) ([]PresetEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets file: %w", err)
	}
	var doc struct {
		Presets []PresetEntry `yaml:"presets"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse presets file: %w", err)
	}
	return doc.Presets, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return fallback
}
