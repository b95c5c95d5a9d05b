//go:build unit

package outbox

import (
	"context"
	"errors"
	"sync"

	"github.com/LerianStudio/lib-syncore/syncore/transport"
)

type postCall struct {
	endpoint string
	payload  string
}

// fakeHTTP holds callbacks until the test answers them.
type fakeHTTP struct {
	mu          sync.Mutex
	posts       []postCall
	pending     []transport.Callback
	maxInFlight int
}

func (f *fakeHTTP) Post(_ context.Context, endpoint string, payload []byte, cb transport.Callback) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.posts = append(f.posts, postCall{endpoint: endpoint, payload: string(payload)})
	f.pending = append(f.pending, cb)
	f.maxInFlight = max(f.maxInFlight, len(f.pending))
}

func (f *fakeHTTP) Get(_ context.Context, uri string, cb transport.Callback) {
	cb(transport.Response{Err: errors.New("unexpected GET " + uri)})
}

func (f *fakeHTTP) respond(resp transport.Response) {
	f.mu.Lock()
	if len(f.pending) == 0 {
		f.mu.Unlock()
		panic("no pending request")
	}

	cb := f.pending[0]
	f.pending = f.pending[1:]
	f.mu.Unlock()

	cb(resp)
}

func (f *fakeHTTP) status(code int) { f.respond(transport.Response{Status: code}) }

func (f *fakeHTTP) inFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.pending)
}

func (f *fakeHTTP) endpoints() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.posts))
	for _, p := range f.posts {
		out = append(out, p.endpoint)
	}

	return out
}

// recordingRepo records the name of every head it removes.
type recordingRepo struct {
	*MemoryRepository

	mu         sync.Mutex
	removed    []string
	addErr     error
	firstErr   error
	afterFirst func()
}

func newRecordingRepo() *recordingRepo {
	return &recordingRepo{MemoryRepository: NewMemoryRepository()}
}

func (r *recordingRepo) Add(ctx context.Context, cmd Command) error {
	if r.addErr != nil {
		return r.addErr
	}

	return r.MemoryRepository.Add(ctx, cmd)
}

func (r *recordingRepo) First(ctx context.Context) (*Command, error) {
	r.mu.Lock()
	err := r.firstErr
	r.firstErr = nil
	hook := r.afterFirst
	r.afterFirst = nil
	r.mu.Unlock()

	if err != nil {
		return nil, err
	}

	head, err := r.MemoryRepository.First(ctx)

	if hook != nil {
		hook()
	}

	return head, err
}

func (r *recordingRepo) RemoveFirst(ctx context.Context) error {
	head, err := r.MemoryRepository.First(ctx)
	if err != nil {
		return err
	}

	if head != nil {
		r.mu.Lock()
		r.removed = append(r.removed, head.Name)
		r.mu.Unlock()
	}

	return r.MemoryRepository.RemoveFirst(ctx)
}
