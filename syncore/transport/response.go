package transport

import (
	"context"
	"net/http"
)

// Response is the outcome of one HTTP exchange. Err is set when no HTTP
// response was obtained; Status, Headers and Body are then zero.
type Response struct {
	Err     error
	URI     string
	Status  int
	Headers http.Header
	Body    []byte
}

// Callback receives the outcome of a request.
type Callback func(Response)

// HTTPClient performs asynchronous HTTP calls. Implementations invoke cb
// exactly once per call and never block the caller on the network.
type HTTPClient interface {
	Post(ctx context.Context, endpoint string, payload []byte, cb Callback)
	Get(ctx context.Context, uri string, cb Callback)
}

// Failed reports whether the exchange produced no HTTP response.
func (r Response) Failed() bool { return r.Err != nil }

// Success reports whether a 2xx response was received.
func (r Response) Success() bool {
	return r.Err == nil && r.Status >= http.StatusOK && r.Status < http.StatusMultipleChoices
}

// ServerError reports whether a 5xx response was received.
func (r Response) ServerError() bool {
	return r.Err == nil && r.Status >= http.StatusInternalServerError && r.Status <= 599
}

// Header returns the first value of a response header.
func (r Response) Header(key string) string {
	if r.Headers == nil {
		return ""
	}

	return r.Headers.Get(key)
}
