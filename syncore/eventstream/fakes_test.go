//go:build unit

package eventstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/LerianStudio/lib-syncore/syncore/transport"
)

type pendingGet struct {
	uri string
	cb  transport.Callback
}

// fakeHTTP holds GET callbacks until the test answers them in order.
type fakeHTTP struct {
	mu      sync.Mutex
	gets    []string
	pending []pendingGet
}

func (f *fakeHTTP) Get(_ context.Context, uri string, cb transport.Callback) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.gets = append(f.gets, uri)
	f.pending = append(f.pending, pendingGet{uri: uri, cb: cb})
}

func (f *fakeHTTP) Post(_ context.Context, endpoint string, _ []byte, cb transport.Callback) {
	cb(transport.Response{Err: errors.New("unexpected POST " + endpoint)})
}

func (f *fakeHTTP) respond(resp transport.Response) {
	f.mu.Lock()
	if len(f.pending) == 0 {
		f.mu.Unlock()
		panic("no pending GET")
	}

	next := f.pending[0]
	f.pending = f.pending[1:]
	f.mu.Unlock()

	resp.URI = next.uri
	next.cb(resp)
}

func (f *fakeHTTP) inFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.pending)
}

func (f *fakeHTTP) requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.gets...)
}

func status(code int) transport.Response { return transport.Response{Status: code} }

func resource(t, message, next string) transport.Response {
	body := map[string]any{}
	if t != "" {
		body["type"] = t
	}

	if message != "" {
		body["message"] = json.RawMessage(message)
	}

	if next != "" {
		body["next"] = next
	}

	encoded, _ := json.Marshal(body)

	return transport.Response{
		Status:  http.StatusOK,
		Headers: http.Header{"Content-Type": []string{"application/json"}},
		Body:    encoded,
	}
}

// journal records consumer and position store calls in one ordered log.
type journal struct {
	mu      sync.Mutex
	entries []string
	events  []Event
	errs    []error
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries = append(j.entries, entry)
}

func (j *journal) OnEvent(_ context.Context, event Event) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries = append(j.entries, "event "+event.URI)
	j.events = append(j.events, event)
}

func (j *journal) OnError(_ context.Context, uri string, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries = append(j.entries, "error "+uri)
	j.errs = append(j.errs, err)
}

type journalStore struct {
	*MemoryPositionStore
	log *journal
	err error
}

func (s *journalStore) TransitionedTo(ctx context.Context, uri string) error {
	if s.err != nil {
		return s.err
	}

	s.log.add("position " + uri)

	return s.MemoryPositionStore.TransitionedTo(ctx, uri)
}
