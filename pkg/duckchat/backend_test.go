package duckchat_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"

	"github.com/papercomputeco/freedom/pkg/duckchat"
)

// fakeBackend is an httptest stand-in for the duckchat status and chat
// endpoints. Handlers can be swapped per test.
type fakeBackend struct {
	server *httptest.Server

	statusCalls atomic.Int32
	chatCalls   atomic.Int32

	mu          sync.Mutex
	chatHeaders http.Header
	chatBody    map[string]any
	acceptValue string

	status http.HandlerFunc
	chat   http.HandlerFunc
}

func newFakeBackend() *fakeBackend {
	b := &fakeBackend{}
	b.status = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(duckchat.TokenHeader, "issued-token")
		w.WriteHeader(http.StatusOK)
	}
	b.chat = streamEvents("rotated-token",
		`{"role":"assistant","message":"Hel","created":1,"id":"x","action":"success","model":"gpt-3.5-turbo-0125"}`,
		`{"role":"assistant","message":"lo","created":1,"id":"x","action":"success","model":"gpt-3.5-turbo-0125"}`,
		"[DONE]",
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+duckchat.DefaultStatusPath, func(w http.ResponseWriter, r *http.Request) {
		b.statusCalls.Add(1)
		b.mu.Lock()
		b.acceptValue = r.Header.Get(duckchat.TokenAcceptHeader)
		handler := b.status
		b.mu.Unlock()
		handler(w, r)
	})
	mux.HandleFunc("POST "+duckchat.DefaultChatPath, func(w http.ResponseWriter, r *http.Request) {
		b.chatCalls.Add(1)
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)

		b.mu.Lock()
		b.chatHeaders = r.Header.Clone()
		b.chatBody = body
		handler := b.chat
		b.mu.Unlock()
		handler(w, r)
	})
	b.server = httptest.NewServer(mux)
	return b
}

func (b *fakeBackend) setStatus(h http.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = h
}

func (b *fakeBackend) setChat(h http.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chat = h
}

func (b *fakeBackend) lastChatHeaders() http.Header {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chatHeaders
}

func (b *fakeBackend) lastChatBody() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chatBody
}

func (b *fakeBackend) lastAccept() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acceptValue
}

func (b *fakeBackend) Close() {
	b.server.Close()
}

// streamEvents answers with the given data payloads as SSE events, setting
// the rotated token header when it is non-empty.
func streamEvents(token string, payloads ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if token != "" {
			w.Header().Set(duckchat.TokenHeader, token)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for _, p := range payloads {
			fmt.Fprintf(w, "data: %s\n\n", p)
			flusher.Flush()
		}
	}
}
