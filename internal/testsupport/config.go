package testsupport

import (
	"path/filepath"
	"testing"

	"clipline/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateRoot = base
	cfgVal.Logging.Dir = filepath.Join(base, "logs")
	cfgVal.LLM.FallbackEnabled = false
	cfgVal.LLM.Local.BaseURL = "http://127.0.0.1:0"
	cfgVal.LLM.Remote.BaseURL = "http://127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure test config directories: %v", err)
	}

	return builder.cfg
}

// WithRemoteAPIKeyEnv points the remote LLM provider at an environment
// variable the test has already populated, and enables fallback.
func WithRemoteAPIKeyEnv(envVar string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.FallbackEnabled = true
		b.cfg.LLM.Remote.APIKeyEnv = envVar
	}
}

// WithTranslationLanguages overrides the source/target languages.
func WithTranslationLanguages(source, target string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Translation.SourceLanguage = source
		b.cfg.Translation.TargetLanguage = target
	}
}

// WithNtfyTopic overrides the notifications topic, typically an httptest
// server URL.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return cfg.Paths.StateRoot
}
