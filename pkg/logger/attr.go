package logger

import (
	"log/slog"
	"strconv"
	"time"
)

// Group creates a group attribute with the given name and attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups non-nil errors under the key "errors".
// Returns an empty Attr when every error is nil.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error records err under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Environment records the environment name under the key "environment".
func Environment(name string) slog.Attr {
	return slog.String("environment", name)
}

// FlagKey records a feature flag key under the key "flag_key".
func FlagKey(key string) slog.Attr {
	return slog.String("flag_key", key)
}

// UserKey records the user key under the key "user_key".
// If key is empty, it returns an empty Attr.
func UserKey(key string) slog.Attr {
	if key == "" {
		return slog.Attr{}
	}
	return slog.String("user_key", key)
}

// StatusCode records an HTTP status code under the key "status_code".
func StatusCode(code int) slog.Attr {
	return slog.Int("status_code", code)
}

// Attempt records the retry attempt index under the key "attempt".
func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

// Delay records a scheduled delay under the key "delay".
func Delay(d time.Duration) slog.Attr {
	return slog.Duration("delay", d)
}

// Duration records how long something took under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Count records a quantity under the key "count".
func Count(n int) slog.Attr {
	return slog.Int("count", n)
}

// State records a state-machine state under the key "state".
func State(name string) slog.Attr {
	return slog.String("state", name)
}

// URL records a request URL under the key "url".
func URL(u string) slog.Attr {
	return slog.String("url", u)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
