// Package logger provides structured logging for converge.
//
//   - logger.go: log/slog setup, output format and dynamic level
//   - context.go: loggers, session IDs and trace IDs carried in a context
//   - redact.go: masking of sensitive attributes
//
// Long-lived components take a *slog.Logger (see Logger.Slog) and fall
// back to slog.Default() when given nil.
package logger
