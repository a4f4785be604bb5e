// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package errutil provides helpers for logging and asserting structured errors.
package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs an error with structured context if it's an oops error.
// For oops errors it extracts the message, code, and context; for standard
// errors it logs the error string.
func LogError(logger *slog.Logger, msg string, err error) {
	logWith(logger.Error, msg, err)
}

// LogWarn logs an error at warning level with the same structure as LogError.
// Used for expected authentication failures that are audited but are not faults.
func LogWarn(logger *slog.Logger, msg string, err error) {
	logWith(logger.Warn, msg, err)
}

func logWith(log func(msg string, args ...any), msg string, err error) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		log(msg, "error", err)
		return
	}

	attrs := []any{"error", oopsErr.Error()}
	var code any = oopsErr.Code()
	if code != nil && code != "" {
		attrs = append(attrs, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		attrs = append(attrs, "context", ctx)
	}
	log(msg, attrs...)
}
