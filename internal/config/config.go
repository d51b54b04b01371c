// Package config loads service configuration from config.yaml and
// LEDGER_-prefixed environment variables.
package config

import (
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Storage StorageConfig `koanf:"storage"`
	OpenAI  OpenAIConfig  `koanf:"openai"`
	OCR     OCRConfig     `koanf:"ocr"`
	Uploads UploadsConfig `koanf:"uploads"`
	Auth    AuthConfig    `koanf:"auth"`
}

type ServerConfig struct {
	Port    int    `koanf:"port"`
	Timeout string `koanf:"timeout"` // Duration string like "30s"
}

// RequestTimeout parses the configured timeout, defaulting to 30s.
func (s ServerConfig) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(s.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type OpenAIConfig struct {
	APIKey          string `koanf:"api_key"`
	BaseURL         string `koanf:"base_url"` // Custom API endpoint
	Model           string `koanf:"model"`
	MaxPromptTokens int    `koanf:"max_prompt_tokens"`
}

type OCRConfig struct {
	TesseractPath string `koanf:"tesseract_path"`
	PDFToPPMPath  string `koanf:"pdftoppm_path"`
	Languages     string `koanf:"languages"`
}

type UploadsConfig struct {
	Dir               string   `koanf:"dir"`
	MaxSizeBytes      int64    `koanf:"max_size_bytes"`
	AllowedExtensions []string `koanf:"allowed_extensions"`
}

type AuthConfig struct {
	APIKeys []APIKeyConfig `koanf:"api_keys"`
}

type APIKeyConfig struct {
	KeyHash string `koanf:"key_hash"`
	Name    string `koanf:"name"` // Actor recorded in the audit trail
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func Load() (*Config, error) {
	k := koanf.New(".")

	// Try to load from config.yaml file first
	if err := k.Load(file.Provider("config.yaml"), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider("LEDGER_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "LEDGER_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	// Default values
	if !k.Exists("server.port") {
		k.Set("server.port", 8080)
	}
	if !k.Exists("storage.type") {
		k.Set("storage.type", "sqlite")
	}
	if !k.Exists("storage.sqlite.path") {
		k.Set("storage.sqlite.path", "./data/ledgerpipe.db")
	}
	if !k.Exists("uploads.dir") {
		k.Set("uploads.dir", "./data/uploads")
	}
	if !k.Exists("uploads.max_size_bytes") {
		k.Set("uploads.max_size_bytes", 10*1024*1024)
	}
	if !k.Exists("uploads.allowed_extensions") {
		k.Set("uploads.allowed_extensions", []string{".pdf", ".png", ".jpg", ".jpeg", ".tiff"})
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Substitute environment variables in the provider API key
	cfg.OpenAI.APIKey = substituteEnvVars(cfg.OpenAI.APIKey)

	return &cfg, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
