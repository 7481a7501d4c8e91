// Package logger provides structured logging with configurable log levels.
// It wraps the standard log/slog package and adds the CONN level used for
// per-connection diagnostics such as URL rewrites.
package logger
