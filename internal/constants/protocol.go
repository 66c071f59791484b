package constants

import "time"

const (
	// ProtocolVersion is reported in the worker startup banner and checked
	// by the supervisor before the process is considered ready.
	ProtocolVersion = "1.2.0"

	// ProtocolVersionConstraint is the range of worker versions the
	// supervisor accepts.
	ProtocolVersionConstraint = "^1"

	// PromptMarker is printed by the worker after startup and after every
	// exchange. Kept as a framing fallback for interactive use; the primary
	// framing is one JSON document per line.
	PromptMarker = "> "

	// BannerPrefix starts the worker's first output line, followed by the
	// protocol version.
	BannerPrefix = "geovault-worker/"
)

const (
	// DefaultWarmupDelay is how long the supervisor waits after spawning
	// the worker before reading the banner.
	DefaultWarmupDelay = 500 * time.Millisecond

	// DefaultReadTimeout is the per-line read timeout during an exchange.
	DefaultReadTimeout = 200 * time.Millisecond

	// DefaultMaxReadRetries bounds the read attempts of one exchange before
	// the worker is declared hung.
	DefaultMaxReadRetries = 30

	// DefaultExchangeTimeout bounds one full request/response exchange.
	DefaultExchangeTimeout = 15 * time.Second
)
