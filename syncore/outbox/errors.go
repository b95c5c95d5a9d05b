package outbox

import "errors"

var (
	ErrRepositoryRequired = errors.New("outbox repository is required")
	ErrHTTPClientRequired = errors.New("outbox http client is required")
	ErrClientRequired     = errors.New("outbox client is required")
	ErrPersistence        = errors.New("outbox persistence failed")
	ErrInvalidCommand     = errors.New("invalid outbox command")
	ErrPayloadTooLarge    = errors.New("outbox command payload exceeds maximum allowed size")
	ErrPayloadNotJSON     = errors.New("outbox command payload must be valid JSON")
	ErrLocalHandler       = errors.New("local command handler failed")
	ErrHalted             = errors.New("outbox client halted")
	// ErrCorruptCommand marks a stored head that cannot be decoded. The client
	// halts on it instead of retrying.
	ErrCorruptCommand = errors.New("outbox stored command is corrupt")
)
