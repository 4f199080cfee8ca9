package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/MegaGrindStone/elf-therapist/internal/handlers"
	"github.com/MegaGrindStone/elf-therapist/internal/services"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type llmConfig interface {
	llm(logger *slog.Logger) (handlers.LLM, error)
	provider() string
}

// BaseLLMConfig contains the common fields for all LLM configurations.
type BaseLLMConfig struct {
	Provider   string                 `yaml:"provider"`
	Model      string                 `yaml:"model"`
	Parameters services.LLMParameters `yaml:"parameters"`
}

type config struct {
	Port         string        `yaml:"port"`
	DBPath       string        `yaml:"dbPath"`
	SystemPrompt string        `yaml:"systemPrompt"`
	Therapists   int           `yaml:"therapists"`
	Timeout      time.Duration `yaml:"timeout"`
	CORSOrigins  []string      `yaml:"corsOrigins"`
	ImagesDir    string        `yaml:"imagesDir"`
	LLM          llmConfig     `yaml:"llm"`
}

// envOverrides are applied over the config file.
type envOverrides struct {
	Port         string        `env:"PORT"`
	DBPath       string        `env:"ELF_THERAPIST_DB"`
	SystemPrompt string        `env:"ELF_THERAPIST_SYSTEM_PROMPT"`
	Therapists   int           `env:"ELF_THERAPIST_THERAPISTS"`
	Timeout      time.Duration `env:"ELF_THERAPIST_TIMEOUT"`
	CORSOrigins  []string      `env:"ELF_THERAPIST_CORS_ORIGINS" envSeparator:","`
	ImagesDir    string        `env:"ELF_THERAPIST_IMAGES_DIR"`
}

type ollamaConfig struct {
	BaseLLMConfig `yaml:",inline"`
	Host          string `yaml:"host"`
}

type openAIConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	BaseURL       string `yaml:"baseURL"`
}

type anthropicConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	Endpoint      string `yaml:"endpoint"`
	MaxTokens     int    `yaml:"maxTokens"`
}

type openRouterConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	Endpoint      string `yaml:"endpoint"`
}

const (
	configEnvKey = "ELF_THERAPIST_CONFIG"

	defaultPort         = "5000"
	defaultOllamaHost   = "http://localhost:11434"
	defaultOllamaModel  = "qwen3:8b"
	defaultTemperature  = 0.7
	defaultTimeout      = 90 * time.Second
	defaultMaxTokens    = 1024
	defaultDBFileName   = "store.db"
	defaultConfigFolder = "elftherapist"
	defaultImagesDir    = "images"
)

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port         string         `yaml:"port"`
		DBPath       string         `yaml:"dbPath"`
		SystemPrompt string         `yaml:"systemPrompt"`
		Therapists   int            `yaml:"therapists"`
		Timeout      time.Duration  `yaml:"timeout"`
		CORSOrigins  []string       `yaml:"corsOrigins"`
		ImagesDir    string         `yaml:"imagesDir"`
		LLM          map[string]any `yaml:"llm"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	c.Port = rawConfig.Port
	c.DBPath = rawConfig.DBPath
	c.SystemPrompt = rawConfig.SystemPrompt
	c.Therapists = rawConfig.Therapists
	c.Timeout = rawConfig.Timeout
	c.CORSOrigins = rawConfig.CORSOrigins
	c.ImagesDir = rawConfig.ImagesDir

	if len(rawConfig.LLM) == 0 {
		return nil
	}

	llmProvider, ok := rawConfig.LLM["provider"].(string)
	if !ok {
		return fmt.Errorf("llm provider is required")
	}

	llmRawYAML, err := yaml.Marshal(rawConfig.LLM)
	if err != nil {
		return err
	}

	var llm llmConfig
	switch llmProvider {
	case "ollama":
		llm = &ollamaConfig{}
	case "openai":
		llm = &openAIConfig{}
	case "anthropic":
		llm = &anthropicConfig{}
	case "openrouter":
		llm = &openRouterConfig{}
	default:
		return fmt.Errorf("unknown llm provider: %s", llmProvider)
	}

	if err := yaml.Unmarshal(llmRawYAML, llm); err != nil {
		return err
	}

	c.LLM = llm

	return nil
}

// configPath returns the location of the config file, honouring ELF_THERAPIST_CONFIG.
func configPath() (string, error) {
	if p := os.Getenv(configEnvKey); p != "" {
		return p, nil
	}
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("error getting user config dir: %w", err)
	}
	return filepath.Join(cfgDir, defaultConfigFolder, "config.yaml"), nil
}

// loadConfig reads the config file at path. A missing file yields the defaults, so the server runs
// against a local ollama out of the box.
func loadConfig(path string) (config, error) {
	cfg := config{}

	f, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return config{}, fmt.Errorf("error opening config file: %w", err)
	default:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return config{}, fmt.Errorf("error decoding config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return config{}, err
	}
	cfg.applyDefaults(filepath.Dir(path))
	return cfg, cfg.validate()
}

func (c *config) applyEnv() error {
	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return fmt.Errorf("error parsing environment: %w", err)
	}

	if ov.Port != "" {
		c.Port = ov.Port
	}
	if ov.DBPath != "" {
		c.DBPath = ov.DBPath
	}
	if ov.SystemPrompt != "" {
		c.SystemPrompt = ov.SystemPrompt
	}
	if ov.Therapists != 0 {
		c.Therapists = ov.Therapists
	}
	if ov.Timeout != 0 {
		c.Timeout = ov.Timeout
	}
	if len(ov.CORSOrigins) > 0 {
		c.CORSOrigins = ov.CORSOrigins
	}
	if ov.ImagesDir != "" {
		c.ImagesDir = ov.ImagesDir
	}
	return nil
}

func (c *config) applyDefaults(dir string) {
	if c.Port == "" {
		c.Port = defaultPort
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(dir, defaultDBFileName)
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = defaultSystemPrompt
	}
	if c.Therapists == 0 {
		c.Therapists = 1
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"*"}
	}
	if c.ImagesDir == "" {
		c.ImagesDir = defaultImagesDir
	}
	if c.LLM == nil {
		c.LLM = &ollamaConfig{BaseLLMConfig: BaseLLMConfig{Provider: "ollama"}}
	}
	if o, ok := c.LLM.(*ollamaConfig); ok && o.Model == "" {
		o.Model = defaultOllamaModel
	}
}

func (c config) validate() error {
	if c.Therapists < 1 {
		return fmt.Errorf("therapists must be at least 1, got %d", c.Therapists)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	return nil
}

func withDefaultTemperature(p services.LLMParameters) services.LLMParameters {
	if p.Temperature == nil {
		t := float32(defaultTemperature)
		p.Temperature = &t
	}
	return p
}

func (o ollamaConfig) llm(logger *slog.Logger) (handlers.LLM, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	host := o.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = defaultOllamaHost
	}
	return services.NewOllama(host, o.Model, withDefaultTemperature(o.Parameters), logger)
}

func (o ollamaConfig) provider() string { return "ollama" }

func (o openAIConfig) llm(logger *slog.Logger) (handlers.LLM, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return services.NewOpenAI(apiKey, o.BaseURL, o.Model, withDefaultTemperature(o.Parameters), logger), nil
}

func (o openAIConfig) provider() string { return "openai" }

func (a anthropicConfig) llm(logger *slog.Logger) (handlers.LLM, error) {
	if a.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	maxTokens := a.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	apiKey := a.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	return services.NewAnthropic(apiKey, a.Endpoint, a.Model, maxTokens, withDefaultTemperature(a.Parameters), logger), nil
}

func (a anthropicConfig) provider() string { return "anthropic" }

func (o openRouterConfig) llm(logger *slog.Logger) (handlers.LLM, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENROUTER_API_KEY")
	}
	return services.NewOpenRouter(apiKey, o.Endpoint, o.Model, withDefaultTemperature(o.Parameters), logger), nil
}

func (o openRouterConfig) provider() string { return "openrouter" }
