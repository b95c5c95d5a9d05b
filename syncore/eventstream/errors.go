package eventstream

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInitialURIRequired = errors.New("eventstream initial uri is required")
	ErrConsumerRequired   = errors.New("eventstream consumer is required")
	ErrHTTPClientRequired = errors.New("eventstream http client is required")
	ErrPosition           = errors.New("eventstream position store failed")
	ErrProtocolViolation  = errors.New("eventstream protocol violation")
	ErrHalted             = errors.New("eventstream poller halted")
)

// ProtocolViolationError reports an event resource missing required fields.
// It is handed to the Consumer and the poller keeps going.
type ProtocolViolationError struct {
	URI     string
	Missing []string
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("%s: %s is missing %s", ErrProtocolViolation.Error(), e.URI, strings.Join(e.Missing, " and "))
}

func (e *ProtocolViolationError) Unwrap() error { return ErrProtocolViolation }
