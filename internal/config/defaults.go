package config

const (
	defaultStateRoot           = "~/.local/state/clipline"
	defaultLogDir              = "~/.local/state/clipline/logs"
	defaultLogFormat           = "auto"
	defaultLogLevel            = "info"
	defaultLLMRPM              = 60
	defaultLLMTemperature      = 0.3
	defaultLLMMaxOutputTokens  = 2048
	defaultLocalBaseURL        = "http://localhost:11434"
	defaultLocalModel          = "qwen3:8b"
	defaultLocalTimeoutSeconds = 60
	defaultRemoteBaseURL       = "https://openrouter.ai/api/v1"
	defaultRemoteAPIKeyEnv     = "CLIPLINE_REMOTE_API_KEY"
	defaultRemoteModel         = "gpt-4o-mini"
	defaultRemoteTimeoutSecs   = 30
	defaultMaxCPUPercent       = 80
	defaultMaxMemoryPercent    = 70
	defaultMaxGPUPercent       = 90
	defaultMaxParallelExports  = 2
	defaultMaxParallelEncodes  = 1
	defaultMaxTokensPerRequest = 4000
	defaultOverlapSegments     = 2
	defaultMinSuccessRate      = 0.90
	defaultSourceLanguage      = "en"
	defaultTargetLanguage      = "ja"
	defaultStageRetryBudget    = 3
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateRoot: defaultStateRoot,
		},
		LLM: LLM{
			FallbackEnabled: true,
			RPM:             defaultLLMRPM,
			Temperature:     defaultLLMTemperature,
			MaxOutputTokens: defaultLLMMaxOutputTokens,
			Routing: LLMRouting{
				HighlightDetection: "local",
				ChapterDetection:   "local",
				Translation:        "local",
				TitleGeneration:    "remote",
			},
			Local: LLMProvider{
				BaseURL:        defaultLocalBaseURL,
				Model:          defaultLocalModel,
				TimeoutSeconds: defaultLocalTimeoutSeconds,
			},
			Remote: LLMProvider{
				BaseURL:        defaultRemoteBaseURL,
				APIKeyEnv:      defaultRemoteAPIKeyEnv,
				Model:          defaultRemoteModel,
				TimeoutSeconds: defaultRemoteTimeoutSecs,
			},
		},
		Resource: Resource{
			MaxCPUPercent:      defaultMaxCPUPercent,
			MaxMemoryPercent:   defaultMaxMemoryPercent,
			MaxGPUPercent:      defaultMaxGPUPercent,
			MaxParallelExports: defaultMaxParallelExports,
			MaxParallelEncodes: defaultMaxParallelEncodes,
		},
		Translation: Translation{
			MaxTokensPerRequest: defaultMaxTokensPerRequest,
			OverlapSegments:     defaultOverlapSegments,
			MinSuccessRate:      defaultMinSuccessRate,
			SourceLanguage:      defaultSourceLanguage,
			TargetLanguage:      defaultTargetLanguage,
		},
		Stage: Stage{
			RetryBudget: defaultStageRetryBudget,
		},
		Checkpoint: Checkpoint{
			CleanupOnSuccess: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
			Dir:    defaultLogDir,
		},
	}
}
