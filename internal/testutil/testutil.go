// Package testutil holds helpers shared by package tests: a scripted HTTP file
// server and throwaway configs rooted in a temp dir.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/jxwalker/assetfetch/internal/config"
)

// Route is a canned response for one path.
type Route struct {
	Status  int
	Body    []byte
	Headers map[string]string
	// Chunked streams Body without a Content-Length header.
	Chunked bool
	// DeclaredLength overrides Content-Length (a larger value simulates a dropped connection).
	DeclaredLength int
	// Handler, when set, replaces all of the above.
	Handler http.HandlerFunc
}

// FileServer is an httptest server serving scripted routes and counting hits.
type FileServer struct {
	*httptest.Server

	mu     sync.Mutex
	routes map[string]Route
	hits   map[string]int
	total  int
	last   *http.Request
}

// NewFileServer starts a server that is closed when the test ends.
func NewFileServer(t *testing.T) *FileServer {
	t.Helper()
	fs := &FileServer{routes: map[string]Route{}, hits: map[string]int{}}
	fs.Server = httptest.NewServer(http.HandlerFunc(fs.serve))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *FileServer) serve(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	fs.hits[r.URL.Path]++
	fs.total++
	fs.last = r.Clone(r.Context())
	route, ok := fs.routes[r.URL.Path]
	fs.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = fmt.Fprintf(w, "No mock response configured for %s", r.URL.Path)
		return
	}
	if route.Handler != nil {
		route.Handler(w, r)
		return
	}
	for k, v := range route.Headers {
		w.Header().Set(k, v)
	}
	status := route.Status
	if status == 0 {
		status = http.StatusOK
	}
	if route.Chunked {
		w.WriteHeader(status)
		fl, _ := w.(http.Flusher)
		for i := 0; i < len(route.Body); i += 4096 {
			end := i + 4096
			if end > len(route.Body) {
				end = len(route.Body)
			}
			_, _ = w.Write(route.Body[i:end])
			if fl != nil {
				fl.Flush()
			}
		}
		return
	}
	n := len(route.Body)
	if route.DeclaredLength > 0 {
		n = route.DeclaredLength
	}
	w.Header().Set("Content-Length", strconv.Itoa(n))
	w.WriteHeader(status)
	_, _ = w.Write(route.Body)
}

// Handle registers a route for path.
func (fs *FileServer) Handle(path string, r Route) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.routes[path] = r
}

// URLFor returns the absolute URL of path on this server.
func (fs *FileServer) URLFor(path string) string { return fs.URL + path }

// Hits returns how many requests reached path.
func (fs *FileServer) Hits(path string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.hits[path]
}

// TotalHits counts every request the server received.
func (fs *FileServer) TotalHits() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.total
}

// LastRequest returns a clone of the most recent request, or nil.
func (fs *FileServer) LastRequest() *http.Request {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.last
}

// Payload returns n deterministic, non-repeating-looking bytes.
func Payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte((i*31 + 7) % 251)
	}
	return b
}

// Config returns a default config rooted in a fresh temp dir with fast retries.
func Config(t *testing.T) *config.Config {
	t.Helper()
	c := config.Default(t.TempDir())
	c.Concurrency.MaxRetries = 2
	c.Concurrency.Backoff = config.Backoff{MinMS: 1, MaxMS: 5}
	return c
}
