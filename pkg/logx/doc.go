// Package logx provides a small structured logging facade over zerolog.
//
// It exposes a value-type Logger with variadic Field closures so call sites
// read like slog but render through zerolog's console/JSON writers. The zero
// value is a no-op logger, which keeps test code free of nil checks.
package logx
