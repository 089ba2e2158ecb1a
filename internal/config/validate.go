package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateResource(); err != nil {
		return err
	}
	if err := c.validateTranslation(); err != nil {
		return err
	}
	if err := c.validateStage(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLLM() error {
	if c.LLM.FallbackEnabled {
		if ResolveAPIKey(c.LLM.Remote) == "" {
			defaultPath, err := DefaultConfigPath()
			if err != nil {
				defaultPath = "~/.config/clipline/config.toml"
			}
			return fmt.Errorf("llm.remote requires an api key: set %s or edit %s", c.LLM.Remote.APIKeyEnv, defaultPath)
		}
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return errors.New("llm.temperature must be between 0 and 2")
	}
	if c.LLM.RPM <= 0 {
		return errors.New("llm.rpm must be positive")
	}
	return nil
}

func (c *Config) validateResource() error {
	if err := ensurePositivePercent(map[string]float64{
		"resource.max_cpu_percent":    c.Resource.MaxCPUPercent,
		"resource.max_memory_percent": c.Resource.MaxMemoryPercent,
		"resource.max_gpu_percent":    c.Resource.MaxGPUPercent,
	}); err != nil {
		return err
	}
	if c.Resource.MaxParallelExports <= 0 {
		return errors.New("resource.max_parallel_exports must be positive")
	}
	if c.Resource.MaxParallelEncodes <= 0 {
		return errors.New("resource.max_parallel_encodes must be positive")
	}
	return nil
}

func (c *Config) validateTranslation() error {
	if c.Translation.MaxTokensPerRequest <= 0 {
		return errors.New("translation.max_tokens_per_request must be positive")
	}
	if c.Translation.OverlapSegments < 0 {
		return errors.New("translation.overlap_segments must be >= 0")
	}
	if c.Translation.MinSuccessRate <= 0 || c.Translation.MinSuccessRate > 1 {
		return errors.New("translation.min_success_rate must be between 0 and 1")
	}
	if c.Translation.SourceLanguage == c.Translation.TargetLanguage {
		return errors.New("translation.source_language and translation.target_language must differ")
	}
	return nil
}

func (c *Config) validateStage() error {
	if c.Stage.RetryBudget <= 0 {
		return errors.New("stage.retry_budget must be positive")
	}
	return nil
}

func ensurePositivePercent(values map[string]float64) error {
	for key, value := range values {
		if value <= 0 || value > 100 {
			return fmt.Errorf("%s must be between 0 and 100", key)
		}
	}
	return nil
}
