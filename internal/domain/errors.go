package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrExchangeUnavailable marks transient network or timeout failures.
	// The poller retries on the next scheduled tick, never within the tick.
	ErrExchangeUnavailable = errors.New("exchange unavailable")

	// ErrSigningFailed marks a local signature construction or verification
	// failure. The order attempt is aborted before any network I/O.
	ErrSigningFailed = errors.New("signing failed")

	// ErrConfigLocked is returned when a bot config mutation is attempted
	// while the engine is running.
	ErrConfigLocked = errors.New("config locked while bot is running")

	// ErrNotInitialized is returned by on-demand reads before the first
	// successful poll of every category.
	ErrNotInitialized = errors.New("cache not initialized")

	// ErrBotAlreadyRunning is returned by Start on a running engine.
	ErrBotAlreadyRunning = errors.New("bot already running")

	// ErrBotNotRunning is returned by Stop on a stopped engine.
	ErrBotNotRunning = errors.New("bot not running")

	// ErrNoPrice is returned when no usable reference price exists for a
	// market in the snapshot cache.
	ErrNoPrice = errors.New("no reference price available")

	// ErrNotFound is a generic lookup miss (cache keys, order IDs).
	ErrNotFound = errors.New("not found")
)

// RejectedError is a non-transient exchange rejection: the request reached
// the exchange and was refused with an HTTP status and response body.
type RejectedError struct {
	Status int
	Body   string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("exchange rejected request: HTTP %d: %s", e.Status, e.Body)
}

// IsRejected reports whether err is an exchange rejection.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}
