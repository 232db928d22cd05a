package flagstore

import "errors"

// Errors returned by snapshot persistence. The underlying cause is joined.
var (
	ErrEncode  = errors.New("flagstore: failed to encode snapshot")
	ErrDecode  = errors.New("flagstore: failed to decode snapshot")
	ErrPersist = errors.New("flagstore: failed to persist snapshot")
)
