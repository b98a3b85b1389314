package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/easyops/contextengine-go/pkg/core/config"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := config.Default()

	if cfg.LLM.Provider != config.ProviderStub {
		t.Errorf("LLM.Provider = %q, want stub", cfg.LLM.Provider)
	}
	if cfg.Retrieval.MaxCandidates != 30 {
		t.Errorf("Retrieval.MaxCandidates = %d, want 30", cfg.Retrieval.MaxCandidates)
	}
	if cfg.Retrieval.ContentCap != 50000 {
		t.Errorf("Retrieval.ContentCap = %d, want 50000", cfg.Retrieval.ContentCap)
	}
	if cfg.History.KeepLast != 30 || cfg.History.TurnCap != 12000 || cfg.History.SummaryCap != 4000 {
		t.Errorf("History = %+v", cfg.History)
	}
	if cfg.Knowledge.ChunkSize != 800 || cfg.Knowledge.ChunkOverlap != 100 {
		t.Errorf("Knowledge = %+v", cfg.Knowledge)
	}
	if cfg.Assembly.RecentLogLimit != 10 {
		t.Errorf("Assembly.RecentLogLimit = %d, want 10", cfg.Assembly.RecentLogLimit)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "engine.yaml", `
llm:
  provider: openai
  model: gpt-4o-mini
  api_key: sk-test
  timeout: 10s
embedding:
  provider: multimodal
  api_key: ek
retrieval:
  max_candidates: 12
aliases_file: aliases.yaml
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.Provider != config.ProviderOpenAI || cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("LLM = %+v", cfg.LLM)
	}
	if cfg.LLM.Timeout != 10*time.Second {
		t.Errorf("LLM.Timeout = %v, want 10s", cfg.LLM.Timeout)
	}
	if cfg.Embedding.Provider != config.EmbeddingMultimodal {
		t.Errorf("Embedding.Provider = %q", cfg.Embedding.Provider)
	}
	if !cfg.Embedding.HasCredentials() {
		t.Error("Embedding.HasCredentials() = false, want true")
	}
	if cfg.Retrieval.MaxCandidates != 12 {
		t.Errorf("Retrieval.MaxCandidates = %d, want 12", cfg.Retrieval.MaxCandidates)
	}
	if cfg.Retrieval.SnippetChars != 50 {
		t.Errorf("Retrieval.SnippetChars = %d, want default 50", cfg.Retrieval.SnippetChars)
	}
	if want := filepath.Join(filepath.Dir(path), "aliases.yaml"); cfg.AliasesFile != want {
		t.Errorf("AliasesFile = %q, want %q", cfg.AliasesFile, want)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "engine.toml", `
[llm]
provider = "anthropic"
model = "claude-3-5-sonnet-latest"

[knowledge]
chunk_size = 400
chunk_overlap = 50
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.Provider != config.ProviderAnthropic {
		t.Errorf("LLM.Provider = %q", cfg.LLM.Provider)
	}
	if cfg.Knowledge.ChunkSize != 400 || cfg.Knowledge.ChunkOverlap != 50 {
		t.Errorf("Knowledge = %+v", cfg.Knowledge)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "engine.json", `{"history": {"keep_last": 8}}`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.History.KeepLast != 8 {
		t.Errorf("History.KeepLast = %d, want 8", cfg.History.KeepLast)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "engine.yaml", "llm:\n  provider: openai\n  model: gpt-4o\n")
	t.Setenv("CTXENGINE_LLM__MODEL", "gpt-4o-mini")
	t.Setenv("CTXENGINE_LLM__API_KEY", "sk-env")
	t.Setenv("CTXENGINE_ASSEMBLY__RECENT_LOG_LIMIT", "4")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("LLM.Model = %q, want gpt-4o-mini", cfg.LLM.Model)
	}
	if cfg.LLM.APIKey != "sk-env" {
		t.Errorf("LLM.APIKey = %q, want sk-env", cfg.LLM.APIKey)
	}
	if cfg.Assembly.RecentLogLimit != 4 {
		t.Errorf("Assembly.RecentLogLimit = %d, want 4", cfg.Assembly.RecentLogLimit)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("Storage.Driver = %q, want memory", cfg.Storage.Driver)
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	path := writeFile(t, "engine.ini", "a=b")
	if _, err := config.Load(path); !errors.Is(err, config.ErrUnsupportedFormat) {
		t.Errorf("Load() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   error
	}{
		{"unknown provider", func(c *config.Config) { c.LLM.Provider = "foo" }, config.ErrUnknownProvider},
		{"missing model", func(c *config.Config) { c.LLM.Provider = config.ProviderOpenAI; c.LLM.Model = "" }, config.ErrModelRequired},
		{"temperature", func(c *config.Config) { c.LLM.Temperature = 3 }, config.ErrInvalidTemperature},
		{"overlap", func(c *config.Config) { c.Knowledge.ChunkOverlap = 800 }, config.ErrInvalidChunking},
		{"negative candidates", func(c *config.Config) { c.Retrieval.MaxCandidates = -1 }, config.ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNormalizeProvider(t *testing.T) {
	cases := map[string]config.Provider{
		"Volcengine": config.ProviderDoubao,
		"ark":        config.ProviderDoubao,
		"claude":     config.ProviderAnthropic,
		"":           config.ProviderStub,
		"OpenAI":     config.ProviderOpenAI,
		"Ollama":     config.ProviderOllama,
		" vLLM ":     config.ProviderVLLM,
	}
	for in, want := range cases {
		if got := config.NormalizeProvider(in); got != want {
			t.Errorf("NormalizeProvider(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestProvider_SelfHosted(t *testing.T) {
	for _, p := range []config.Provider{config.ProviderOllama, config.ProviderVLLM} {
		if !p.IsValid() || !p.SelfHosted() {
			t.Errorf("%s should be a valid self-hosted provider", p)
		}
	}
	if config.ProviderOpenAI.SelfHosted() {
		t.Error("openai requires an api key")
	}
}
