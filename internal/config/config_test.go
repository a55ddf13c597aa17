package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Ollama.BaseURL != "http://127.0.0.1:11434" {
		t.Errorf("Ollama.BaseURL = %q", cfg.Ollama.BaseURL)
	}
	if cfg.Ollama.GenerateModel != "llama2" || cfg.Ollama.EmbedModel != "nomic-embed-text" {
		t.Errorf("model defaults = %q / %q", cfg.Ollama.GenerateModel, cfg.Ollama.EmbedModel)
	}
	if cfg.Ollama.EmbedDimension != 768 {
		t.Errorf("Ollama.EmbedDimension = %d", cfg.Ollama.EmbedDimension)
	}
	if cfg.SMTP.Host != "smtp.gmail.com" || cfg.SMTP.Port != 587 {
		t.Errorf("SMTP defaults = %q:%d", cfg.SMTP.Host, cfg.SMTP.Port)
	}
	if cfg.Sessions.IdleTimeoutHours != 12 {
		t.Errorf("Sessions.IdleTimeoutHours = %d", cfg.Sessions.IdleTimeoutHours)
	}
}

func TestLoadParsesFileAndFillsGaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  addr: ":9090"
ollama:
  base_url: "http://ollama.internal:11434"
  embed_dimension: 384
lectures:
  schedule_path: "/var/lib/studychat/lectures.json"
  test_mode: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Ollama.BaseURL != "http://ollama.internal:11434" {
		t.Errorf("Ollama.BaseURL = %q", cfg.Ollama.BaseURL)
	}
	if cfg.Ollama.EmbedDimension != 384 {
		t.Errorf("Ollama.EmbedDimension = %d", cfg.Ollama.EmbedDimension)
	}
	// Unset fields still receive their defaults.
	if cfg.Ollama.GenerateModel != "llama2" {
		t.Errorf("Ollama.GenerateModel = %q", cfg.Ollama.GenerateModel)
	}
	if !cfg.Lectures.TestMode {
		t.Error("Lectures.TestMode was not parsed")
	}
	if cfg.Lectures.SchedulePath != "/var/lib/studychat/lectures.json" {
		t.Errorf("Lectures.SchedulePath = %q", cfg.Lectures.SchedulePath)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a mapping"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load succeeded on malformed YAML")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("EMAIL_ADDRESS", "exports@example.com")
	t.Setenv("EMAIL_PASSWORD", "app-password")
	t.Setenv("LECTURE_TEST_MODE", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SMTP.Username != "exports@example.com" || cfg.SMTP.From != "exports@example.com" || cfg.SMTP.To != "exports@example.com" {
		t.Errorf("EMAIL_ADDRESS not applied: %+v", cfg.SMTP)
	}
	if cfg.SMTP.Password != "app-password" {
		t.Errorf("SMTP.Password = %q", cfg.SMTP.Password)
	}
	if !cfg.Lectures.TestMode {
		t.Error("LECTURE_TEST_MODE not applied")
	}
}

func TestInvalidTestModeEnvIgnored(t *testing.T) {
	t.Setenv("LECTURE_TEST_MODE", "definitely")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Lectures.TestMode {
		t.Error("unparseable LECTURE_TEST_MODE flipped test mode on")
	}
}
