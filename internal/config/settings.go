package config

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Default endpoint of a local OpenAI-compatible inference server.
const (
	DefaultAPIBase        = "http://localhost:1234/v1"
	DefaultAPIKey         = "lm-studio"
	DefaultChatModel      = "qwen/qwen3-4b-2507"
	DefaultEmbeddingModel = "text-embedding-nomic-embed-text-v1.5"
)

// Settings mirrors the subset of the indexer's settings.yaml that the
// backend needs: which inference server to talk to and with which models.
// The file is owned by the indexing pipeline; unknown keys are ignored.
type Settings struct {
	LLM        LLMSettings       `yaml:"llm"`
	Embeddings EmbeddingSettings `yaml:"embeddings"`
	Chunks     ChunkSettings     `yaml:"chunks"`
	Input      InputSettings     `yaml:"input"`
}

// LLMSettings configures chat completion calls.
type LLMSettings struct {
	Type        string  `yaml:"type"`
	Model       string  `yaml:"model"`
	APIBase     string  `yaml:"api_base"`
	APIKey      string  `yaml:"api_key"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// EmbeddingSettings configures embedding calls.
type EmbeddingSettings struct {
	LLM EmbeddingLLM `yaml:"llm"`
}

// EmbeddingLLM is the nested llm block of the embeddings section.
type EmbeddingLLM struct {
	Type      string `yaml:"type"`
	Model     string `yaml:"model"`
	APIBase   string `yaml:"api_base"`
	BatchSize int    `yaml:"batch_size"`
}

// ChunkSettings is informational for the backend; the indexer consumes it.
type ChunkSettings struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// InputSettings is informational for the backend; the indexer consumes it.
type InputSettings struct {
	BaseDir     string `yaml:"base_dir"`
	FilePattern string `yaml:"file_pattern"`
}

// DefaultSettings returns the settings used when no settings.yaml exists
// yet, pointing at a local inference server.
func DefaultSettings() *Settings {
	s := &Settings{}
	s.applyDefaults()
	return s
}

func (s *Settings) applyDefaults() {
	if s.LLM.Model == "" {
		s.LLM.Model = DefaultChatModel
	}
	if s.LLM.APIBase == "" {
		s.LLM.APIBase = DefaultAPIBase
	}
	if s.LLM.APIKey == "" {
		s.LLM.APIKey = DefaultAPIKey
	}
	if s.LLM.MaxTokens == 0 {
		s.LLM.MaxTokens = 4000
	}
	if s.LLM.Temperature == 0 {
		s.LLM.Temperature = 0.1
	}
	if s.Embeddings.LLM.Model == "" {
		s.Embeddings.LLM.Model = DefaultEmbeddingModel
	}
	if s.Embeddings.LLM.APIBase == "" {
		s.Embeddings.LLM.APIBase = s.LLM.APIBase
	}
	if s.Embeddings.LLM.BatchSize == 0 {
		s.Embeddings.LLM.BatchSize = 16
	}
}

// LoadSettings reads and parses a settings.yaml file.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing settings file: %w", err)
	}
	s.applyDefaults()
	return &s, nil
}

// SettingsSource hands out the current indexer settings and supports
// re-reading them after indexing runs or on file change.
type SettingsSource struct {
	mu      sync.RWMutex
	path    string
	current *Settings
	logger  *zap.Logger
}

// NewSettingsSource loads the settings file once. A missing or unreadable
// file is tolerated with defaults so the backend serves its empty state
// before the first indexing run.
func NewSettingsSource(path string, logger *zap.Logger) *SettingsSource {
	src := &SettingsSource{
		path:    path,
		current: DefaultSettings(),
		logger:  logger,
	}

	if s, err := LoadSettings(path); err != nil {
		logger.Warn("Settings file not loaded, using defaults",
			zap.String("path", path),
			zap.Error(err),
		)
	} else {
		src.current = s
	}

	return src
}

// Current returns the settings snapshot in effect.
func (s *SettingsSource) Current() *Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Path returns the watched settings file location.
func (s *SettingsSource) Path() string {
	return s.path
}

// Reload re-reads the settings file. The previous snapshot stays in effect
// when the file cannot be parsed.
func (s *SettingsSource) Reload() error {
	loaded, err := LoadSettings(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.current = loaded
	s.mu.Unlock()

	s.logger.Info("Indexer settings reloaded",
		zap.String("path", s.path),
		zap.String("model", loaded.LLM.Model),
		zap.String("api_base", loaded.LLM.APIBase),
	)
	return nil
}
