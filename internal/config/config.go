package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration for pipeline state and artifacts.
type Paths struct {
	StateRoot string `toml:"state_root"`
}

// LLMRouting maps a pipeline decision to the provider tier that should
// handle it: "local" or "remote".
type LLMRouting struct {
	HighlightDetection string `toml:"highlight_detection"`
	ChapterDetection   string `toml:"chapter_detection"`
	Translation        string `toml:"translation"`
	TitleGeneration    string `toml:"title_generation"`
}

// LLMProvider describes connection settings for a single LLM tier.
type LLMProvider struct {
	BaseURL        string `toml:"base_url"`
	APIKeyEnv      string `toml:"api_key_env"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// LLM contains shared LLM routing and provider settings.
type LLM struct {
	FallbackEnabled bool        `toml:"fallback_enabled"`
	RPM             int         `toml:"rpm"`
	Temperature     float64     `toml:"temperature"`
	MaxOutputTokens int         `toml:"max_output_tokens"`
	Routing         LLMRouting  `toml:"routing"`
	Local           LLMProvider `toml:"local"`
	Remote          LLMProvider `toml:"remote"`
}

// Resource contains ceilings the resource gate enforces before admitting a
// new subprocess.
type Resource struct {
	MaxCPUPercent      float64 `toml:"max_cpu_percent"`
	MaxMemoryPercent   float64 `toml:"max_memory_percent"`
	MaxGPUPercent      float64 `toml:"max_gpu_percent"`
	MaxParallelExports int     `toml:"max_parallel_exports"`
	MaxParallelEncodes int     `toml:"max_parallel_encodes"`
}

// Translation contains configuration for batch translation chunking and
// quality gates.
type Translation struct {
	MaxTokensPerRequest int     `toml:"max_tokens_per_request"`
	OverlapSegments     int     `toml:"overlap_segments"`
	MinSuccessRate      float64 `toml:"min_success_rate"`
	SourceLanguage      string  `toml:"source_language"`
	TargetLanguage      string  `toml:"target_language"`
}

// Stage contains configuration for per-stage retry behavior.
type Stage struct {
	RetryBudget int `toml:"retry_budget"`
}

// Checkpoint contains configuration for checkpoint lifecycle behavior.
type Checkpoint struct {
	CleanupOnSuccess bool `toml:"cleanup_on_success"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic string `toml:"ntfy_topic"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Dir    string `toml:"dir"`
}

// Config encapsulates all configuration values for clipline.
//
// Configuration sections by subsystem:
//   - Paths: state root used to derive checkpoint, cache, and export locations
//   - LLM: local/remote provider routing for highlight detection, chapters,
//     translation, and title generation
//   - Resource: CPU/memory/GPU ceilings and parallel subprocess limits
//   - Translation: batch chunking, overlap, and quality thresholds
//   - Stage: per-stage retry budget
//   - Checkpoint: checkpoint retention behavior
//   - Notifications: ntfy push notification settings
//   - Logging: log level, format, and directory
type Config struct {
	Paths         Paths         `toml:"paths"`
	LLM           LLM           `toml:"llm"`
	Resource      Resource      `toml:"resource"`
	Translation   Translation   `toml:"translation"`
	Stage         Stage         `toml:"stage"`
	Checkpoint    Checkpoint    `toml:"checkpoint"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/clipline/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/clipline/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("clipline.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// StateDir returns the directory holding a specific state category (e.g.
// "checkpoints", "cache", "exports") rooted under Paths.StateRoot.
func (c *Config) StateDir(category string) string {
	return filepath.Join(c.Paths.StateRoot, category)
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.StateRoot,
		c.StateDir("checkpoints"),
		c.StateDir("cache"),
		c.StateDir("exports"),
	}
	if strings.TrimSpace(c.Logging.Dir) != "" {
		dirs = append(dirs, c.Logging.Dir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// ResolveAPIKey reads a provider's API key from the environment variable
// named by provider.APIKeyEnv. Returns an empty string when unset or when
// no environment variable name is configured (e.g. a local provider that
// needs no key).
func ResolveAPIKey(provider LLMProvider) string {
	if strings.TrimSpace(provider.APIKeyEnv) == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(provider.APIKeyEnv))
}
