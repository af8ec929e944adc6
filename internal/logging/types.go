package logging

import "time"

// Level orders log severity. Config strings map onto these constants
// via ParseLevel; anything unrecognized falls back to info.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// LogEntry is one logged event as held in the in-process ring buffer.
// Context carries the structured fields from the call site merged with
// any bound through Logger.With.
type LogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     Level             `json:"level"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
}
