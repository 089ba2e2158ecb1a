package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLLM()
	c.normalizeResource()
	c.normalizeTranslation()
	c.normalizeStage()
	if err := c.normalizeLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateRoot) == "" {
		c.Paths.StateRoot = defaultStateRoot
	}
	if c.Paths.StateRoot, err = expandPath(c.Paths.StateRoot); err != nil {
		return fmt.Errorf("paths.state_root: %w", err)
	}
	return nil
}

func (c *Config) normalizeLLM() {
	c.LLM.Routing.HighlightDetection = normalizeTier(c.LLM.Routing.HighlightDetection, "local")
	c.LLM.Routing.ChapterDetection = normalizeTier(c.LLM.Routing.ChapterDetection, "local")
	c.LLM.Routing.Translation = normalizeTier(c.LLM.Routing.Translation, "local")
	c.LLM.Routing.TitleGeneration = normalizeTier(c.LLM.Routing.TitleGeneration, "remote")

	if c.LLM.RPM <= 0 {
		c.LLM.RPM = defaultLLMRPM
	}
	if c.LLM.MaxOutputTokens <= 0 {
		c.LLM.MaxOutputTokens = defaultLLMMaxOutputTokens
	}
	if strings.TrimSpace(c.LLM.Local.BaseURL) == "" {
		c.LLM.Local.BaseURL = defaultLocalBaseURL
	}
	if strings.TrimSpace(c.LLM.Local.Model) == "" {
		c.LLM.Local.Model = defaultLocalModel
	}
	if c.LLM.Local.TimeoutSeconds <= 0 {
		c.LLM.Local.TimeoutSeconds = defaultLocalTimeoutSeconds
	}
	if strings.TrimSpace(c.LLM.Remote.BaseURL) == "" {
		c.LLM.Remote.BaseURL = defaultRemoteBaseURL
	}
	if strings.TrimSpace(c.LLM.Remote.Model) == "" {
		c.LLM.Remote.Model = defaultRemoteModel
	}
	if c.LLM.Remote.TimeoutSeconds <= 0 {
		c.LLM.Remote.TimeoutSeconds = defaultRemoteTimeoutSecs
	}
}

func normalizeTier(value, fallback string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "local", "remote":
		return value
	default:
		return fallback
	}
}

func (c *Config) normalizeResource() {
	if c.Resource.MaxCPUPercent <= 0 {
		c.Resource.MaxCPUPercent = defaultMaxCPUPercent
	}
	if c.Resource.MaxMemoryPercent <= 0 {
		c.Resource.MaxMemoryPercent = defaultMaxMemoryPercent
	}
	if c.Resource.MaxGPUPercent <= 0 {
		c.Resource.MaxGPUPercent = defaultMaxGPUPercent
	}
	if c.Resource.MaxParallelExports <= 0 {
		c.Resource.MaxParallelExports = defaultMaxParallelExports
	}
	if c.Resource.MaxParallelEncodes <= 0 {
		c.Resource.MaxParallelEncodes = defaultMaxParallelEncodes
	}
}

func (c *Config) normalizeTranslation() {
	if c.Translation.MaxTokensPerRequest <= 0 {
		c.Translation.MaxTokensPerRequest = defaultMaxTokensPerRequest
	}
	if c.Translation.OverlapSegments < 0 {
		c.Translation.OverlapSegments = defaultOverlapSegments
	}
	if c.Translation.MinSuccessRate <= 0 || c.Translation.MinSuccessRate > 1 {
		c.Translation.MinSuccessRate = defaultMinSuccessRate
	}
	c.Translation.SourceLanguage = strings.ToLower(strings.TrimSpace(c.Translation.SourceLanguage))
	if c.Translation.SourceLanguage == "" {
		c.Translation.SourceLanguage = defaultSourceLanguage
	}
	c.Translation.TargetLanguage = strings.ToLower(strings.TrimSpace(c.Translation.TargetLanguage))
	if c.Translation.TargetLanguage == "" {
		c.Translation.TargetLanguage = defaultTargetLanguage
	}
}

func (c *Config) normalizeStage() {
	if c.Stage.RetryBudget <= 0 {
		c.Stage.RetryBudget = defaultStageRetryBudget
	}
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "auto":
		c.Logging.Format = "auto"
	case "json", "console":
	default:
		c.Logging.Format = "auto"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if strings.TrimSpace(c.Logging.Dir) == "" {
		c.Logging.Dir = defaultLogDir
	}
	var err error
	if c.Logging.Dir, err = expandPath(c.Logging.Dir); err != nil {
		return fmt.Errorf("logging.dir: %w", err)
	}
	return nil
}
