package driven

// Logger is a structured key-value log sink. Keys and values alternate
// in the variadic tail, zap-style: Info("indexed", "document_id", id).
type Logger interface {
	// Debug logs fine-grained diagnostics.
	Debug(msg string, keysAndValues ...any)

	// Info logs normal operation events.
	Info(msg string, keysAndValues ...any)

	// Warn logs degradations the engine recovered from.
	Warn(msg string, keysAndValues ...any)

	// Error logs failures surfaced to the caller.
	Error(msg string, keysAndValues ...any)

	// With returns a child logger carrying the given fields.
	With(keysAndValues ...any) Logger
}
