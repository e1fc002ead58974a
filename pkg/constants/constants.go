package constants

import "time"

// Message length limits
const (
	// MaxTelegramMessageLength is Telegram's message character limit
	MaxTelegramMessageLength = 4096
)

// Timeouts and intervals
const (
	// DefaultHTTPTimeout is the timeout for stats provider HTTP requests
	DefaultHTTPTimeout = 15 * time.Second
	// ActivityFeedInterval is the minimum gap between activity feed evaluations
	ActivityFeedInterval = 3 * time.Minute
	// ScoresFeedInterval is the minimum gap between scores feed evaluations
	ScoresFeedInterval = 5 * time.Minute
)

// Secret masking
const (
	// MinSecretLengthForMasking is the minimum secret length to apply masking
	MinSecretLengthForMasking = 10
	// SecretMaskPrefixLength is the length of prefix to show before masking
	SecretMaskPrefixLength = 4
	// SecretMaskSuffixLength is the length of suffix to show after masking
	SecretMaskSuffixLength = 4
)

// Logging defaults
const (
	// DefaultLogMaxSize is the default maximum log file size in MB
	DefaultLogMaxSize = 100
	// DefaultLogMaxBackups is the default number of rotated files to keep
	DefaultLogMaxBackups = 5
	// DefaultLogMaxAge is the default maximum number of days to retain old logs
	DefaultLogMaxAge = 30
)
