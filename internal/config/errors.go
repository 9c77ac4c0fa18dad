package config

import (
	"errors"
	"fmt"
)

// ErrConfiguration marks setup-time configuration faults. They must stop an
// episode from starting.
var ErrConfiguration = errors.New("configuration error")

// Error describes a rejected configuration key.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Reason)
}

func (e *Error) Is(target error) bool {
	return target == ErrConfiguration
}

// Errorf builds an *Error for key.
func Errorf(key, format string, args ...any) error {
	return &Error{Key: key, Reason: fmt.Sprintf(format, args...)}
}
