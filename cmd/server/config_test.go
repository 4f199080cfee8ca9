package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	dir := t.TempDir()

	cfg, err := loadConfig(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if cfg.Port != defaultPort {
		t.Errorf("Port = %q, want %q", cfg.Port, defaultPort)
	}
	if cfg.DBPath != filepath.Join(dir, defaultDBFileName) {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.Timeout != 90*time.Second {
		t.Errorf("Timeout = %v, want 90s", cfg.Timeout)
	}
	if cfg.Therapists != 1 {
		t.Errorf("Therapists = %d, want 1", cfg.Therapists)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Errorf("CORSOrigins = %v, want [*]", cfg.CORSOrigins)
	}
	if cfg.ImagesDir != defaultImagesDir {
		t.Errorf("ImagesDir = %q, want %q", cfg.ImagesDir, defaultImagesDir)
	}
	if !strings.Contains(cfg.SystemPrompt, "<END_CHAT>") {
		t.Error("default system prompt does not mention <END_CHAT>")
	}

	o, ok := cfg.LLM.(*ollamaConfig)
	if !ok {
		t.Fatalf("LLM = %T, want *ollamaConfig", cfg.LLM)
	}
	if o.Model != defaultOllamaModel {
		t.Errorf("Model = %q, want %q", o.Model, defaultOllamaModel)
	}
	if _, err := o.llm(slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		t.Errorf("llm() error = %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("PORT", "")

	tests := []struct {
		name         string
		content      string
		wantErr      string
		wantProvider string
		check        func(t *testing.T, cfg config)
	}{
		{
			name: "ollama with parameters",
			content: `
port: "8080"
therapists: 3
timeout: 30s
llm:
  provider: ollama
  model: llama3
  host: http://ollama:11434
  parameters:
    temperature: 0.2
`,
			wantProvider: "ollama",
			check: func(t *testing.T, cfg config) {
				if cfg.Port != "8080" || cfg.Therapists != 3 || cfg.Timeout != 30*time.Second {
					t.Errorf("config = %+v", cfg)
				}
				o := cfg.LLM.(*ollamaConfig)
				if o.Host != "http://ollama:11434" || o.Model != "llama3" {
					t.Errorf("ollama config = %+v", o)
				}
				if o.Parameters.Temperature == nil || *o.Parameters.Temperature != 0.2 {
					t.Errorf("temperature = %v", o.Parameters.Temperature)
				}
			},
		},
		{
			name: "openai",
			content: `
llm:
  provider: openai
  model: gpt-4o-mini
  apiKey: sk-test
`,
			wantProvider: "openai",
		},
		{
			name: "anthropic",
			content: `
llm:
  provider: anthropic
  model: claude-3-5-haiku-latest
`,
			wantProvider: "anthropic",
		},
		{
			name: "openrouter",
			content: `
corsOrigins: ["https://north.pole"]
llm:
  provider: openrouter
  model: meta-llama/llama-3.1-8b-instruct
`,
			wantProvider: "openrouter",
			check: func(t *testing.T, cfg config) {
				if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "https://north.pole" {
					t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
				}
			},
		},
		{
			name:    "unknown provider",
			content: "llm:\n  provider: eliza\n",
			wantErr: "unknown llm provider",
		},
		{
			name:    "missing provider",
			content: "llm:\n  model: qwen3:8b\n",
			wantErr: "llm provider is required",
		},
		{
			name:    "negative therapists",
			content: "therapists: -2\n",
			wantErr: "therapists must be at least 1",
		},
		{
			name:         "empty file",
			content:      "",
			wantProvider: "ollama",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := loadConfig(writeConfig(t, tt.content))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("loadConfig() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("loadConfig() error = %v", err)
			}
			if got := cfg.LLM.provider(); got != tt.wantProvider {
				t.Errorf("provider() = %q, want %q", got, tt.wantProvider)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ELF_THERAPIST_THERAPISTS", "4")
	t.Setenv("ELF_THERAPIST_TIMEOUT", "45s")
	t.Setenv("ELF_THERAPIST_CORS_ORIGINS", "https://north.pole,https://workshop.pole")

	cfg, err := loadConfig(writeConfig(t, "port: \"8080\"\ntherapists: 2\n"))
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Port != "9090" || cfg.Therapists != 4 || cfg.Timeout != 45*time.Second {
		t.Errorf("config = %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://workshop.pole" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

func TestConfigPathFromEnv(t *testing.T) {
	t.Setenv(configEnvKey, "/tmp/elf.yaml")

	got, err := configPath()
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/elf.yaml" {
		t.Errorf("configPath() = %q, want %q", got, "/tmp/elf.yaml")
	}
}
