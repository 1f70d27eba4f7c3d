// Package logging provides a minimal structured Logger interface over
// log/slog, so components depend on the interface and callers choose the
// handler, format and level.
//
// Usage:
//
//	logger := logging.New(logging.LevelInfo, "text", os.Stderr)
//	actor := philosopher.NewActor(philosopher.ActorConfig{Logger: logger, ...})
package logging
