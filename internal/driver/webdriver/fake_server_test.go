package webdriver

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// command is one request received by the fake server.
type command struct {
	Method string
	Path   string
	Body   map[string]any
}

// fakeServer answers W3C commands from a route table keyed by
// "METHOD /path-after-session-id".
type fakeServer struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	routes   map[string]func(body map[string]any) (int, any)
	received []command
}

const fakeSessionID = "abc123"

func newFakeServer(t *testing.T) *fakeServer {
	f := &fakeServer{t: t, routes: map[string]func(map[string]any) (int, any){}}
	f.handle("POST /session", func(map[string]any) (int, any) {
		return 200, map[string]any{"sessionId": fakeSessionID, "capabilities": map[string]any{}}
	})
	f.handle("POST /timeouts", ok(nil))
	f.handle("DELETE ", ok(nil))
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func ok(v any) func(map[string]any) (int, any) {
	return func(map[string]any) (int, any) { return 200, v }
}

func fail(status int, code, msg string) func(map[string]any) (int, any) {
	return func(map[string]any) (int, any) {
		return status, map[string]any{"error": code, "message": msg, "stacktrace": ""}
	}
}

func (f *fakeServer) handle(route string, h func(map[string]any) (int, any)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[route] = h
}

func (f *fakeServer) serve(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(requestIDHeader) == "" {
		f.t.Errorf("%s %s sent without a request id", r.Method, r.URL.Path)
	}
	path := strings.TrimPrefix(r.URL.Path, "/session/"+fakeSessionID)
	if path == r.URL.Path && path != "/session" {
		http.NotFound(w, r)
		return
	}
	var body map[string]any
	if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			f.t.Errorf("bad request body %q: %v", raw, err)
		}
	}

	f.mu.Lock()
	f.received = append(f.received, command{Method: r.Method, Path: path, Body: body})
	h := f.routes[r.Method+" "+path]
	f.mu.Unlock()

	if h == nil {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"value":{"error":"unknown command","message":"no route"}}`)
		return
	}
	status, value := h(body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	b, _ := json.Marshal(map[string]any{"value": value})
	_, _ = w.Write(b)
}

// commands returns the received commands whose path starts with prefix.
func (f *fakeServer) commands(prefix string) []command {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []command
	for _, c := range f.received {
		if strings.HasPrefix(c.Path, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func elementRefs(ids ...string) []map[string]string {
	out := make([]map[string]string, len(ids))
	for i, id := range ids {
		out[i] = map[string]string{w3cElementKey: id}
	}
	return out
}
