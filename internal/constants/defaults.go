package constants

import "time"

// Whisper dispatch defaults
const (
	DefaultWhispersPerSecond       = 3
	DefaultWhispersPerMinute       = 100
	DefaultMaxWhisperRecipients    = 40
	DefaultWhisperTickIntervalMs   = 1000
	DefaultWhisperSendTimeoutSec   = 10
	DefaultWhisperStoreTimeoutSec  = 5
	FrozenMaxWhisperRecipients     = 1
	DefaultHelixBreakerFailures    = 5
	DefaultHelixBreakerCooldownSec = 30
	WhisperQueueTimerName          = "WhisperQueue"
	PerSecondWindow                = time.Second
	PerMinuteWindow                = time.Minute
)

// WhisperRolloverThreshold is the marker age past which prior window state
// (both occurrence counters and the recipient set) is discarded.
const WhisperRolloverThreshold = PerMinuteWindow

// Default timeout values
const (
	DefaultHTTPTimeoutSec         = 30
	DefaultDatabaseRetryAttempts  = 3
	DefaultRetryBackoffMs         = 1000
	DefaultMaxBackoffMs           = 60000
	DatabaseWriteBackoffMs        = 50
	DatabaseWriteMaxBackoffMs     = 400
	DefaultGracefulShutdownSec    = 30
	DefaultServerPort             = 8085
	DefaultServerReadTimeoutSec   = 15
	DefaultServerWriteTimeoutSec  = 15
	DefaultServerIdleTimeoutSec   = 60
	ServerErrorChannelSize        = 1
	DefaultHelixBaseURL           = "https://api.twitch.tv/helix"
	DefaultMaxWhisperRequestBytes = 1 << 16
)

// Privacy settings
const (
	DefaultUserIDMaskLength = 3
)

// Whisper request limits
const (
	MaxWhisperTextLength  = 10000
	MaxDisplayNameLength  = 25
	MaxTwitchUserIDLength = 20
)

// Tracing defaults
const (
	DefaultServiceName     = "whisperq"
	DefaultEnvironment     = "development"
	DefaultOTLPEndpoint    = "localhost:4318"
	TracingShutdownTimeout = 5 * time.Second
)
