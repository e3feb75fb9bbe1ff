// Package tests provides shared fixtures for package tests: a fake Matrix
// API server and a fixed session cookie source.
package tests

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Cookie is a session source that always returns itself.
type Cookie string

func (c Cookie) Cookie(context.Context) (string, error) {
	return string(c), nil
}

// Route is a canned response.
type Route struct {
	Status int
	Body   string
	Header http.Header
}

// Request is a request seen by a FakeMatrix.
type Request struct {
	Method string
	Path   string
	Cookie string
	Body   []byte
}

// FakeMatrix is an httptest server answering Matrix API paths with canned
// responses. Unknown paths answer 404 with an empty body.
type FakeMatrix struct {
	*httptest.Server

	mu       sync.Mutex
	routes   map[string]Route
	requests []Request
	gate     chan struct{}
}

// NewFakeMatrix starts a FakeMatrix that is closed when t finishes.
func NewFakeMatrix(t testing.TB) *FakeMatrix {
	f := &FakeMatrix{routes: make(map[string]Route)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

func key(method, path string) string {
	return method + " " + path
}

// Handle registers a response for method and path.
func (f *FakeMatrix) Handle(method, path string, status int, body string) {
	f.HandleRoute(method, path, Route{Status: status, Body: body})
}

// HandleRoute registers a response with headers.
func (f *FakeMatrix) HandleRoute(method, path string, r Route) {
	f.mu.Lock()
	f.routes[key(method, path)] = r
	f.mu.Unlock()
}

// Hold makes every request block until Release is called.
func (f *FakeMatrix) Hold() {
	f.mu.Lock()
	f.gate = make(chan struct{})
	f.mu.Unlock()
}

// Release unblocks requests held by Hold.
func (f *FakeMatrix) Release() {
	f.mu.Lock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
	f.mu.Unlock()
}

// Requests returns a copy of every request received so far.
func (f *FakeMatrix) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}

// Hits counts requests received for method and path.
func (f *FakeMatrix) Hits(method, path string) int {
	n := 0
	for _, r := range f.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func (f *FakeMatrix) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.requests = append(f.requests, Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Cookie: r.Header.Get("Cookie"),
		Body:   body,
	})
	route, ok := f.routes[key(r.Method, r.URL.Path)]
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	for k, vs := range route.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	status := route.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	io.WriteString(w, route.Body)
}
