package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadWith(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Pipeline.DefaultUserID != 10 {
		t.Errorf("DefaultUserID = %d, want 10", cfg.Pipeline.DefaultUserID)
	}
	if cfg.Services.Timeout() != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Services.Timeout())
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		t.Error("AllowedOrigins must have defaults")
	}
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeConfigFile(t, `{
		"port": 6000,
		"atot_url": "http://localhost:9001",
		"timeout_seconds": 10,
		"default_user_id": 3,
		"log_level": "debug"
	}`)

	cfg, err := loadWith(path)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.Port != 6000 {
		t.Errorf("Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.Services.RecognizeURL != "http://localhost:9001" {
		t.Errorf("RecognizeURL = %q", cfg.Services.RecognizeURL)
	}
	if cfg.Services.TimeoutSeconds != 10 {
		t.Errorf("TimeoutSeconds = %d, want 10", cfg.Services.TimeoutSeconds)
	}
	if cfg.Pipeline.DefaultUserID != 3 {
		t.Errorf("DefaultUserID = %d, want 3", cfg.Pipeline.DefaultUserID)
	}
	// Untouched fields keep defaults.
	if cfg.Services.GenerateURL != "http://20.20.15.20:8000" {
		t.Errorf("GenerateURL = %q, want default", cfg.Services.GenerateURL)
	}
}

func TestLoadRejectsInvalidSchema(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"wrong type", `{"port": "not-a-number"}`},
		{"unknown key", `{"prot": 6000}`},
		{"bad log level", `{"log_level": "verbose"}`},
		{"not json", `port = 6000`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.content)
			if _, err := loadWith(path); err == nil {
				t.Errorf("loadWith accepted invalid config %q", tt.content)
			}
		})
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("VOICEPIPE_PORT", "7070")
	t.Setenv("VOICEPIPE_TTS_URL", "http://localhost:9003")
	t.Setenv("VOICEPIPE_USER_ID", "42")
	t.Setenv("VOICEPIPE_ALLOWED_ORIGINS", "http://a.test, http://b.test")

	cfg, err := loadWith(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Services.SynthesizeURL != "http://localhost:9003" {
		t.Errorf("SynthesizeURL = %q", cfg.Services.SynthesizeURL)
	}
	if cfg.Pipeline.DefaultUserID != 42 {
		t.Errorf("DefaultUserID = %d, want 42", cfg.Pipeline.DefaultUserID)
	}
	want := []string{"http://a.test", "http://b.test"}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[0] != want[0] || cfg.Server.AllowedOrigins[1] != want[1] {
		t.Errorf("AllowedOrigins = %v, want %v", cfg.Server.AllowedOrigins, want)
	}
}

// Env overrides must beat the config file.
func TestEnvBeatsFile(t *testing.T) {
	path := writeConfigFile(t, `{"port": 6000}`)
	t.Setenv("VOICEPIPE_PORT", "7070")

	cfg, err := loadWith(path)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %d, want 7070", cfg.Server.Port)
	}
}
