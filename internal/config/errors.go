package config

import "fmt"

// Error reports an invalid or malformed configuration value. It is
// fatal: the pipeline never retries after a config error.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}
