package flagsync

import "errors"

var (
	// ErrInvalidConfig is returned by Validate and fails the start future of
	// New. It is never retried.
	ErrInvalidConfig = errors.New("flagsync: invalid configuration")

	// ErrParsingConfig is returned when environment variables cannot be
	// parsed into Config.
	ErrParsingConfig = errors.New("flagsync: failed to parse configuration")

	ErrUnknownEnvironment = errors.New("flagsync: unknown environment")
	ErrInvalidUser        = errors.New("flagsync: user cannot be encoded")
	ErrClosed             = errors.New("flagsync: client is closed")
)
