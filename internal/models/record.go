package models

import "time"

// LogRecord is a structured log entry submitted for scoring or training.
// Records are treated as immutable once received; Metadata is carried for
// callers but never fed to the model.
type LogRecord struct {
	MessageLength      int
	Level              string
	Service            string
	HasException       bool
	HasTimeout         bool
	HasConnectionError bool
	Timestamp          time.Time
	Metadata           map[string]any
}
