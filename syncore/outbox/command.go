package outbox

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DefaultMaxPayloadBytes caps the encoded size of a command payload.
const DefaultMaxPayloadBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// Command is an outbound intent addressed by name. The name becomes the last
// path segment of the POST endpoint.
type Command struct {
	Name    string          `json:"name" validate:"required,max=256,excludesall=/?#,ne=.,ne=.."`
	Payload json.RawMessage `json:"payload"`
}

// NewCommand encodes payload as JSON and returns a validated command.
func NewCommand(name string, payload any) (Command, error) {
	var raw json.RawMessage

	switch value := payload.(type) {
	case nil:
	case json.RawMessage:
		raw = value
	case []byte:
		raw = value
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return Command{}, fmt.Errorf("%w: encode payload: %w", ErrInvalidCommand, err)
		}

		raw = encoded
	}

	cmd := Command{Name: strings.TrimSpace(name), Payload: raw}
	if err := cmd.Validate(); err != nil {
		return Command{}, err
	}

	return cmd.normalized(), nil
}

// Validate checks the structural shape of the command.
func (c Command) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	if len(c.Payload) > DefaultMaxPayloadBytes {
		return ErrPayloadTooLarge
	}

	if len(c.Payload) > 0 && !json.Valid(c.Payload) {
		return ErrPayloadNotJSON
	}

	return nil
}

// normalized returns a copy whose payload is never empty.
func (c Command) normalized() Command {
	if len(c.Payload) == 0 {
		c.Payload = json.RawMessage(`{}`)
		return c
	}

	c.Payload = append(json.RawMessage(nil), c.Payload...)

	return c
}
