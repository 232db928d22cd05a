package kvstore

import "errors"

var (
	ErrEmptyKey           = errors.New("kvstore: empty key")
	ErrMissingDir         = errors.New("kvstore: pebble directory is required")
	ErrOpen               = errors.New("kvstore: failed to open database")
	ErrEmptyConnectionURL = errors.New("kvstore: empty redis connection URL")
	ErrParseConnectionURL = errors.New("kvstore: failed to parse redis connection URL")
	ErrRedisNotReady      = errors.New("kvstore: redis did not become ready in time")
	ErrHealthcheckFailed  = errors.New("kvstore: redis healthcheck failed")
)
