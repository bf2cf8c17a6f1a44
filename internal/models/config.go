package models

// Config holds the application configuration
type Config struct {
	Database DatabaseConfig `json:"database"`
	Whispers WhisperConfig  `json:"whispers"`
	Twitch   TwitchConfig   `json:"twitch"`
	Server   ServerConfig   `json:"server"`
	Tracing  TracingConfig  `json:"tracing"`
	Retry    RetryConfig    `json:"retry"`
	LogLevel string         `json:"log_level"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path string `json:"path"`
}

// WhisperConfig holds the dispatch queue limits
type WhisperConfig struct {
	PerSecondLimit              int `json:"perSecondLimit"`
	PerMinuteLimit              int `json:"perMinuteLimit"`
	TickIntervalMs              int `json:"tickIntervalMs"`
	SendTimeoutSec              int `json:"sendTimeoutSec"`
	DefaultMaxWhisperRecipients int `json:"defaultMaxWhisperRecipients"`
	BreakerMaxFailures          int `json:"breakerMaxFailures"`
	BreakerCooldownSec          int `json:"breakerCooldownSec"`
}

// TwitchConfig holds Helix API settings. Credentials come from the
// environment, never from the config file.
type TwitchConfig struct {
	HelixBaseURL string `json:"helix_base_url"`
	BotUserID    string `json:"bot_user_id"`
	ClientID     string `json:"-"`
	AccessToken  string `json:"-"`
	TimeoutSec   int    `json:"timeoutSec"`
}

// ServerConfig holds admin HTTP server settings
type ServerConfig struct {
	Port            int `json:"port"`
	ReadTimeoutSec  int `json:"readTimeoutSec"`
	WriteTimeoutSec int `json:"writeTimeoutSec"`
	IdleTimeoutSec  int `json:"idleTimeoutSec"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	Enabled        bool    `json:"enabled"`
	UseStdout      bool    `json:"use_stdout"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
