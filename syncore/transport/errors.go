package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnexpectedResponse is the sentinel behind UnexpectedResponseError.
var ErrUnexpectedResponse = errors.New("unexpected response")

const maxBodyInError = 256

// UnexpectedResponseError reports an HTTP response no classification rule
// accepts. It is never retried.
type UnexpectedResponseError struct {
	URI     string
	Status  int
	Headers http.Header
	Body    []byte
}

// NewUnexpectedResponseError captures resp for diagnostics.
func NewUnexpectedResponseError(resp Response) *UnexpectedResponseError {
	return &UnexpectedResponseError{
		URI:     resp.URI,
		Status:  resp.Status,
		Headers: resp.Headers.Clone(),
		Body:    append([]byte(nil), resp.Body...),
	}
}

func (e *UnexpectedResponseError) Error() string {
	body := e.Body
	if len(body) > maxBodyInError {
		body = body[:maxBodyInError]
	}

	return fmt.Sprintf("%s: uri=%s status=%d body=%q", ErrUnexpectedResponse.Error(), e.URI, e.Status, body)
}

func (e *UnexpectedResponseError) Unwrap() error { return ErrUnexpectedResponse }
