// Package config loads voicepipe configuration from defaults, an optional
// JSON config file, and VOICEPIPE_* environment variable overrides, in that
// order. The config file is validated against an embedded JSON schema
// before it is applied.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

type Config struct {
	Server   ServerConfig
	Services ServicesConfig
	Storage  StorageConfig
	Pipeline PipelineConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port           int
	AllowedOrigins []string
}

type ServicesConfig struct {
	RecognizeURL   string
	GenerateURL    string
	SynthesizeURL  string
	TimeoutSeconds int
}

// Timeout returns the per-call deadline applied to every remote stage call.
func (s ServicesConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

type StorageConfig struct {
	DataDir  string
	AudioDir string
}

type PipelineConfig struct {
	// DefaultUserID is the user whose history pipeline runs extend when a
	// request names no explicit user.
	DefaultUserID int64
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 5000,
			AllowedOrigins: []string{
				"http://localhost:8000",
				"http://127.0.0.1:8000",
				"http://localhost:5000",
				"http://127.0.0.1:5000",
				"http://localhost:8002",
				"http://127.0.0.1:8002",
			},
		},
		Services: ServicesConfig{
			RecognizeURL:   "http://1.20.15.20:8000",
			GenerateURL:    "http://20.20.15.20:8000",
			SynthesizeURL:  "http://20.20.15.1:8000",
			TimeoutSeconds: 30,
		},
		Storage: StorageConfig{
			DataDir:  dataDir,
			AudioDir: filepath.Join(dataDir, "audio"),
		},
		Pipeline: PipelineConfig{
			DefaultUserID: 10,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "voicepipe")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "voicepipe-data"
	}
	return filepath.Join(home, ".local", "share", "voicepipe")
}

// ConfigFilePath returns the path of the optional JSON config file.
func ConfigFilePath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "voicepipe", "config.json")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("voicepipe", "config.json")
	}
	return filepath.Join(home, ".config", "voicepipe", "config.json")
}

// Load reads configuration from defaults, the JSON config file (if
// present), and VOICEPIPE_* environment variables.
func Load() (Config, error) {
	return loadWith(ConfigFilePath())
}

func loadWith(path string) (Config, error) {
	cfg := defaults()

	raw, err := os.ReadFile(path)
	if err == nil {
		if err := applyFile(&cfg, raw); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if cfg.Services.TimeoutSeconds <= 0 {
		return Config{}, fmt.Errorf("services timeout must be positive, got %d", cfg.Services.TimeoutSeconds)
	}
	return cfg, nil
}

// fileConfig mirrors the JSON config file layout. Pointer fields
// distinguish "absent" from zero values.
type fileConfig struct {
	Port           *int     `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
	AtotURL        *string  `json:"atot_url"`
	TtotURL        *string  `json:"ttot_url"`
	TtsURL         *string  `json:"tts_url"`
	TimeoutSeconds *int     `json:"timeout_seconds"`
	DataDir        *string  `json:"data_dir"`
	AudioDir       *string  `json:"audio_dir"`
	DefaultUserID  *int64   `json:"default_user_id"`
	LogLevel       *string  `json:"log_level"`
}

func applyFile(cfg *Config, raw []byte) error {
	if err := validateSchema(raw); err != nil {
		return err
	}

	var fc fileConfig
	if err := json.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("decoding: %w", err)
	}

	if fc.Port != nil {
		cfg.Server.Port = *fc.Port
	}
	if fc.AllowedOrigins != nil {
		cfg.Server.AllowedOrigins = fc.AllowedOrigins
	}
	if fc.AtotURL != nil {
		cfg.Services.RecognizeURL = *fc.AtotURL
	}
	if fc.TtotURL != nil {
		cfg.Services.GenerateURL = *fc.TtotURL
	}
	if fc.TtsURL != nil {
		cfg.Services.SynthesizeURL = *fc.TtsURL
	}
	if fc.TimeoutSeconds != nil {
		cfg.Services.TimeoutSeconds = *fc.TimeoutSeconds
	}
	if fc.DataDir != nil {
		cfg.Storage.DataDir = *fc.DataDir
		cfg.Storage.AudioDir = filepath.Join(*fc.DataDir, "audio")
	}
	if fc.AudioDir != nil {
		cfg.Storage.AudioDir = *fc.AudioDir
	}
	if fc.DefaultUserID != nil {
		cfg.Pipeline.DefaultUserID = *fc.DefaultUserID
	}
	if fc.LogLevel != nil {
		cfg.Log.Level = *fc.LogLevel
	}
	return nil
}

func validateSchema(raw []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config.schema.json", bytes.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("loading config schema: %w", err)
	}
	schema, err := compiler.Compile("config.schema.json")
	if err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decoding: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("validating: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VOICEPIPE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("VOICEPIPE_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.Server.AllowedOrigins = origins
	}
	if v := os.Getenv("VOICEPIPE_ATOT_URL"); v != "" {
		cfg.Services.RecognizeURL = v
	}
	if v := os.Getenv("VOICEPIPE_TTOT_URL"); v != "" {
		cfg.Services.GenerateURL = v
	}
	if v := os.Getenv("VOICEPIPE_TTS_URL"); v != "" {
		cfg.Services.SynthesizeURL = v
	}
	if v := os.Getenv("VOICEPIPE_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.Services.TimeoutSeconds = secs
		}
	}
	if v := os.Getenv("VOICEPIPE_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
		cfg.Storage.AudioDir = filepath.Join(v, "audio")
	}
	if v := os.Getenv("VOICEPIPE_AUDIO_DIR"); v != "" {
		cfg.Storage.AudioDir = v
	}
	if v := os.Getenv("VOICEPIPE_USER_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Pipeline.DefaultUserID = id
		}
	}
	if v := os.Getenv("VOICEPIPE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}
