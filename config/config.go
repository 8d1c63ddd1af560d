package config

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
	Env  string `yaml:"env"` // "development" or "production"

	// Data directory
	DataDir string `yaml:"dataDir"`

	// Database
	DatabasePath string `yaml:"databasePath"`

	// Git
	GitBinary       string `yaml:"gitBinary"`
	GitTimeoutMs    int    `yaml:"gitTimeoutMs"`
	WorktreeBaseDir string `yaml:"worktreeBaseDir"`

	// Agent CLI binaries
	ClaudeBinary string `yaml:"claudeBinary"`
	CodexBinary  string `yaml:"codexBinary"`
	GeminiBinary string `yaml:"geminiBinary"`

	// Agent environment
	AnthropicAPIKey string `yaml:"anthropicApiKey"`
	OpenAIAPIKey    string `yaml:"openaiApiKey"`
	GeminiAPIKey    string `yaml:"geminiApiKey"`

	// Logging
	LogLevel string `yaml:"logLevel"`
}

var (
	cfg  *Config
	once sync.Once
)

// Get returns the global configuration (singleton)
func Get() *Config {
	once.Do(func() {
		cfg = load()
	})
	return cfg
}

// load reads configuration from environment variables, then applies the
// optional YAML overlay file pointed at by SNOWTREE_CONFIG.
func load() *Config {
	dataDir := getEnv("SNOWTREE_DATA_DIR", "./data")

	c := &Config{
		// Server
		Port: getEnvInt("PORT", 14355),
		Host: getEnv("HOST", "127.0.0.1"),
		Env:  getEnv("ENV", "development"),

		DataDir:      dataDir,
		DatabasePath: getEnv("SNOWTREE_DB_PATH", filepath.Join(dataDir, "snowtree.db")),

		GitBinary:       getEnv("SNOWTREE_GIT_BINARY", "git"),
		GitTimeoutMs:    getEnvInt("SNOWTREE_GIT_TIMEOUT_MS", 120000),
		WorktreeBaseDir: getEnv("SNOWTREE_WORKTREE_DIR", filepath.Join(dataDir, "worktrees")),

		ClaudeBinary: getEnv("SNOWTREE_CLAUDE_BINARY", "claude"),
		CodexBinary:  getEnv("SNOWTREE_CODEX_BINARY", "codex"),
		GeminiBinary: getEnv("SNOWTREE_GEMINI_BINARY", "gemini"),

		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),

		LogLevel: getEnv("SNOWTREE_LOG_LEVEL", ""),
	}

	if overlay := os.Getenv("SNOWTREE_CONFIG"); overlay != "" {
		applyOverlay(c, overlay)
	}

	return c
}

// applyOverlay merges a YAML config file over the env-derived config.
// A missing or unreadable file is ignored; the env values stand.
func applyOverlay(c *Config, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	// yaml only sets the keys present in the file, so env-derived values
	// survive for everything the overlay doesn't mention.
	_ = yaml.Unmarshal(data, c)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}
