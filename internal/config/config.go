package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"whisperq/internal/constants"
	"whisperq/internal/models"
	"whisperq/internal/security"
	"whisperq/internal/validation"
)

var (
	ErrMissingDBPath      = models.ConfigError{Message: "missing database path"}
	ErrMissingBotUserID   = models.ConfigError{Message: "missing Twitch bot user ID"}
	ErrInvalidWhisperRate = models.ConfigError{Message: "whisper rate limits must be positive"}
	ErrInvalidRecipients  = models.ConfigError{Message: "defaultMaxWhisperRecipients must be positive"}
	ErrInvalidSampleRate  = models.ConfigError{Message: "tracing sample_rate must be between 0 and 1"}
)

func LoadConfig(path string) (*models.Config, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	if err := applyEnvironmentOverrides(&config); err != nil {
		return nil, err
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if c.Twitch.BotUserID == "" {
		return ErrMissingBotUserID
	}

	if c.Whispers.PerSecondLimit < 0 || c.Whispers.PerMinuteLimit < 0 {
		return ErrInvalidWhisperRate
	}
	if c.Whispers.PerSecondLimit == 0 {
		c.Whispers.PerSecondLimit = constants.DefaultWhispersPerSecond
	}
	if c.Whispers.PerMinuteLimit == 0 {
		c.Whispers.PerMinuteLimit = constants.DefaultWhispersPerMinute
	}
	if c.Whispers.DefaultMaxWhisperRecipients < 0 {
		return ErrInvalidRecipients
	}
	if c.Whispers.DefaultMaxWhisperRecipients == 0 {
		c.Whispers.DefaultMaxWhisperRecipients = constants.DefaultMaxWhisperRecipients
	}
	if c.Whispers.TickIntervalMs <= 0 {
		c.Whispers.TickIntervalMs = constants.DefaultWhisperTickIntervalMs
	}
	if c.Whispers.SendTimeoutSec <= 0 {
		c.Whispers.SendTimeoutSec = constants.DefaultWhisperSendTimeoutSec
	}
	if c.Whispers.BreakerMaxFailures <= 0 {
		c.Whispers.BreakerMaxFailures = constants.DefaultHelixBreakerFailures
	}
	if c.Whispers.BreakerCooldownSec <= 0 {
		c.Whispers.BreakerCooldownSec = constants.DefaultHelixBreakerCooldownSec
	}

	if c.Twitch.HelixBaseURL == "" {
		c.Twitch.HelixBaseURL = constants.DefaultHelixBaseURL
	}
	if c.Twitch.TimeoutSec <= 0 {
		c.Twitch.TimeoutSec = constants.DefaultHTTPTimeoutSec
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultDatabaseRetryAttempts
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return ErrInvalidSampleRate
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = constants.DefaultServiceName
	}
	if c.Tracing.Environment == "" {
		c.Tracing.Environment = constants.DefaultEnvironment
	}
	if c.Tracing.OTLPEndpoint == "" {
		c.Tracing.OTLPEndpoint = constants.DefaultOTLPEndpoint
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return nil
}

func applyEnvironmentOverrides(c *models.Config) error {
	if path := os.Getenv("WHISPERQ_DB_PATH"); path != "" {
		c.Database.Path = path
	}

	// Credentials are only ever read from the environment
	c.Twitch.ClientID = os.Getenv("TWITCH_CLIENT_ID")
	c.Twitch.AccessToken = os.Getenv("TWITCH_ACCESS_TOKEN")

	if id := os.Getenv("TWITCH_BOT_USER_ID"); id != "" {
		c.Twitch.BotUserID = id
	}
	if url := os.Getenv("TWITCH_HELIX_URL"); url != "" {
		c.Twitch.HelixBaseURL = strings.TrimRight(url, "/")
	}
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err == nil {
			err = validation.ValidateNumericRange(p, "PORT", 1, 65535)
		}
		if err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid PORT value: %q", port)}
		}
		c.Server.Port = p
	}
	return nil
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	isProduction := os.Getenv("WHISPERQ_ENV") == "production"

	if isProduction {
		if c.Twitch.ClientID == "" || c.Twitch.AccessToken == "" {
			return models.ConfigError{Message: "Twitch credentials are required in production (set TWITCH_CLIENT_ID and TWITCH_ACCESS_TOKEN)"}
		}
		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else if c.Twitch.AccessToken == "" {
		fmt.Fprintf(os.Stderr, "WARNING: TWITCH_ACCESS_TOKEN not set. Whisper sends will be rejected by Helix.\n")
	}

	return nil
}
