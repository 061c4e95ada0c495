package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `json:"server" toml:"server"`
	LLM      LLMConfig      `json:"llm" toml:"llm"`
	Prompts  PromptConfig   `json:"prompts" toml:"prompts"`
	WhatsApp WhatsAppConfig `json:"whatsapp" toml:"whatsapp"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int   `json:"port" toml:"port"`
	MaxUploadBytes int64 `json:"max_upload_bytes" toml:"max_upload_bytes"`
}

// LLMConfig holds configuration for the model backend
type LLMConfig struct {
	Provider       string           `json:"provider" toml:"provider"` // "openai", "ollama" or "mock"
	OpenAI         OpenAIConfig     `json:"openai" toml:"openai"`
	Ollama         OllamaConfig     `json:"ollama" toml:"ollama"`
	TimeoutSeconds int              `json:"timeout_seconds" toml:"timeout_seconds"`
	Diagnosis      GenerationConfig `json:"diagnosis" toml:"diagnosis"`
	FollowUp       GenerationConfig `json:"follow_up" toml:"follow_up"`
}

// OpenAIConfig holds specific configuration for OpenAI-compatible endpoints
type OpenAIConfig struct {
	BaseURL string `json:"base_url" toml:"base_url"`
	Model   string `json:"model" toml:"model"`
	APIKey  string `json:"api_key" toml:"api_key"`
}

// OllamaConfig holds specific configuration for Ollama integration
type OllamaConfig struct {
	Endpoint string `json:"endpoint" toml:"endpoint"`
	Model    string `json:"model" toml:"model"`
}

// GenerationConfig holds the sampling parameters of one kind of model call
type GenerationConfig struct {
	MaxTokens   int     `json:"max_tokens" toml:"max_tokens"`
	Temperature float64 `json:"temperature" toml:"temperature"`
}

// PromptConfig holds the instructions sent with each kind of model call. An
// empty FollowUp sends the raw transcript without a system message.
type PromptConfig struct {
	Diagnosis string `json:"diagnosis" toml:"diagnosis"`
	FollowUp  string `json:"follow_up" toml:"follow_up"`
}

// WhatsAppConfig holds configuration for the WhatsApp integration
type WhatsAppConfig struct {
	Enabled       bool     `json:"enabled" toml:"enabled"`
	BotName       string   `json:"bot_name" toml:"bot_name"`
	TriggerWords  []string `json:"trigger_words" toml:"trigger_words"`
	StoreDir      string   `json:"store_dir" toml:"store_dir"`
	AllowedGroups []string `json:"allowed_groups" toml:"allowed_groups"`
}

// LoadConfig loads configuration from a JSON file, or a TOML file when the
// path ends in .toml. Fields missing from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, err
		}
	} else if err := json.Unmarshal(data, config); err != nil {
		return nil, err
	}

	config.applyEnv()
	return config, nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	config := &Config{
		Server: ServerConfig{
			Port:           8080,
			MaxUploadBytes: 10 << 20,
		},
		LLM: LLMConfig{
			Provider: "openai",
			OpenAI: OpenAIConfig{
				Model: "gpt-4o-mini",
			},
			Ollama: OllamaConfig{
				Endpoint: "http://localhost:11434",
				Model:    "llava:7b",
			},
			TimeoutSeconds: 100,
			Diagnosis: GenerationConfig{
				MaxTokens:   500,
				Temperature: 0.2,
			},
			FollowUp: GenerationConfig{
				MaxTokens:   500,
				Temperature: 0.2,
			},
		},
		Prompts: PromptConfig{
			Diagnosis: DefaultDiagnosisInstruction,
			FollowUp:  DefaultFollowUpInstruction,
		},
		WhatsApp: WhatsAppConfig{
			Enabled:       false,
			BotName:       "Derma",
			TriggerWords:  []string{"@derma", "derma"},
			StoreDir:      "./data/whatsapp",
			AllowedGroups: []string{},
		},
	}

	config.applyEnv()
	return config
}

// applyEnv lets the environment override secrets and the provider choice
func (c *Config) applyEnv() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && c.LLM.OpenAI.APIKey == "" {
		c.LLM.OpenAI.APIKey = key
	}
	if provider := os.Getenv("DERMA_LLM_PROVIDER"); provider != "" {
		c.LLM.Provider = provider
	}
}
