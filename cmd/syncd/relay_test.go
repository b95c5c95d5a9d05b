//go:build unit

package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LerianStudio/lib-syncore/syncore/config"
	"github.com/LerianStudio/lib-syncore/syncore/log"
	"github.com/LerianStudio/lib-syncore/syncore/platform"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func TestRelayForwardsCommandsAndPrintsEvents(t *testing.T) {
	var (
		mu    sync.Mutex
		posts []string
	)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			body, _ := io.ReadAll(r.Body)

			mu.Lock()
			posts = append(posts, r.URL.Path+" "+string(body))
			mu.Unlock()

			w.WriteHeader(http.StatusAccepted)
		case r.URL.Path == "/events":
			w.Header().Set("Location", "/events/0")
			w.WriteHeader(http.StatusFound)
		case r.URL.Path == "/events/0":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"type":"opened","message":{"id":1}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer upstream.Close()

	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Upstream.BaseURL = upstream.URL
	cfg.Outbox.Enabled = true
	cfg.Events.Enabled = true
	cfg.Events.WaitingInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, err := openStorage(ctx, cfg, log.NewNop())
	require.NoError(t, err)
	defer stores.Close()

	loop := platform.NewLoop()
	require.NoError(t, loop.Start(ctx))
	defer loop.Stop()

	r, err := newRelay(ctx, cfg, stores, loop, log.NewNop())
	require.NoError(t, err)
	defer r.Close()

	input := strings.NewReader(strings.Join([]string{
		`{"name":"open","payload":{"id":1}}`,
		`not json`,
		`{"name":"bad/name"}`,
		`{"name":"close"}`,
	}, "\n"))

	out := &syncBuffer{}
	done := make(chan error, 1)

	go func() { done <- r.run(ctx, input, out) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(posts) == 2 && strings.Contains(out.String(), `"opened"`)
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{`/commands/open {"id":1}`, `/commands/close {}`}, posts)
	mu.Unlock()

	assert.JSONEq(t, `{"uri":"/events/0","type":"opened","message":{"id":1}}`, strings.TrimSpace(out.String()))

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}
