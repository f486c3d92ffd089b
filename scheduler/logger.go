package scheduler

import "log"

// Logger is the engine's only ambient dependency on the outside world
// besides the Store. Callers are free to back it with anything; see
// package zlog for a github.com/rs/zerolog-backed implementation.
type Logger interface {
	Error(format string, args ...any)
	Warn(format string, args ...any)
	Info(format string, args ...any)
}

// stdLogger is the fallback used when Settings.Logger is nil.
type stdLogger struct{}

func (stdLogger) Error(format string, args ...any) { log.Printf("ERROR "+format, args...) }
func (stdLogger) Warn(format string, args ...any)  { log.Printf("WARN "+format, args...) }
func (stdLogger) Info(format string, args ...any)  { log.Printf("INFO "+format, args...) }
