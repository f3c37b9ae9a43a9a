package apogee

// Logger defines the interface for structured logging used throughout the
// orchestration core. Arguments are key-value pairs:
//
//	logger.Info("Starting subsystem", "subsystem", "network")
//
// This shape is compatible with slog, zerolog, zap, and similar libraries; an
// adapter for any of them is a handful of lines.
type Logger interface {
	// Info logs normal orchestration events: registration, launches, landings.
	Info(msg string, args ...any)

	// Error logs failures that do not crash the process, such as a subsystem
	// failing its init callback.
	Error(msg string, args ...any)

	// Warn logs unusual but tolerated conditions, such as a shutdown timeout
	// being reported as a resource-leak risk.
	Warn(msg string, args ...any)

	// Debug logs detailed diagnostics: per-check readiness findings, state
	// transitions, dependency resolution.
	Debug(msg string, args ...any)
}
