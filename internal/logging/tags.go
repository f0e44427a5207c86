package logging

import "go.uber.org/zap"

// Line prefixes understood by log scrapers.
const (
	TagInfo  = "[info]"
	TagStep  = "[step]"
	TagOK    = "[ok]"
	TagWarn  = "[warn]"
	TagError = "[error]"
	TagDone  = "[done]"
)

func tagged(tag, msg string) string {
	return tag + " " + msg
}

// Info logs an [info] line.
func Info(l *zap.Logger, msg string, fields ...zap.Field) {
	l.Info(tagged(TagInfo, msg), fields...)
}

// Step logs a [step] line marking the start of a unit of work.
func Step(l *zap.Logger, msg string, fields ...zap.Field) {
	l.Info(tagged(TagStep, msg), fields...)
}

// OK logs an [ok] line marking a completed unit of work.
func OK(l *zap.Logger, msg string, fields ...zap.Field) {
	l.Info(tagged(TagOK, msg), fields...)
}

// Done logs the final [done] line of a successful run.
func Done(l *zap.Logger, msg string, fields ...zap.Field) {
	l.Info(tagged(TagDone, msg), fields...)
}

// Warn logs a [warn] line to the error stream.
func Warn(l *zap.Logger, msg string, fields ...zap.Field) {
	l.Warn(tagged(TagWarn, msg), fields...)
}

// Error logs an [error] line to the error stream.
func Error(l *zap.Logger, msg string, fields ...zap.Field) {
	l.Error(tagged(TagError, msg), fields...)
}

// Debug logs an untagged diagnostic line; it only appears in development mode.
func Debug(l *zap.Logger, msg string, fields ...zap.Field) {
	l.Debug(msg, fields...)
}
