// Package logger builds the structured loggers used across flagsync.
//
// Everything logs through log/slog. New creates a *slog.Logger configured by
// functional options (format, level, output, static attributes), and the
// attribute helpers in attr.go keep key names consistent between components:
//
//	log := logger.New(logger.WithDevelopment("checkout-app"))
//	log.Warn("stream connection failed",
//	    logger.Environment("default"),
//	    logger.StatusCode(503),
//	    logger.Error(err),
//	)
//
// Library components default to Nop so that an embedding application stays
// quiet unless it hands a logger to the client.
package logger
