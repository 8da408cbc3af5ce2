// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/songbook/internal/models"
)

// FakeConnectivity is a test double for services.Connectivity whose status is set by the test.
type FakeConnectivity struct {
	mu     sync.Mutex
	online bool
	subs   map[int]func(bool)
	nextID int
}

func NewFakeConnectivity(online bool) *FakeConnectivity {
	return &FakeConnectivity{online: online, subs: make(map[int]func(bool))}
}

func (f *FakeConnectivity) Online(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online
}

func (f *FakeConnectivity) Subscribe(fn func(bool)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

// Set changes the status and, on a transition, calls every subscriber synchronously.
func (f *FakeConnectivity) Set(online bool) {
	f.mu.Lock()
	changed := f.online != online
	f.online = online
	subs := make([]func(bool), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range subs {
		fn(online)
	}
}

// Subscribers returns the number of live subscriptions.
func (f *FakeConnectivity) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// FakeDocumentStore is an in-memory test double for services.DocumentStore.
//
// When Gate is non-nil every fetch blocks until it is closed or the context ends.
// Entered, when non-nil, receives the collection name as each fetch starts.
type FakeDocumentStore struct {
	Gate    chan struct{}
	Entered chan string

	mu    sync.Mutex
	docs  map[string][]models.Document
	errs  map[string]error
	calls []string
}

func NewFakeDocumentStore() *FakeDocumentStore {
	return &FakeDocumentStore{
		docs: make(map[string][]models.Document),
		errs: make(map[string]error),
	}
}

// SetCollection replaces the documents of a top-level collection.
func (f *FakeDocumentStore) SetCollection(name string, docs []models.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[name] = docs
}

// SetUserCollection replaces the documents of a collection nested under userID.
func (f *FakeDocumentStore) SetUserCollection(userID, name string, docs []models.Document) {
	f.SetCollection(userID+"/"+name, docs)
}

// Fail makes fetches of name return err. A nil err clears the failure.
func (f *FakeDocumentStore) Fail(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, name)
		return
	}
	f.errs[name] = err
}

// Calls returns the collection paths fetched so far, in order.
func (f *FakeDocumentStore) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount returns how many times path was fetched.
func (f *FakeDocumentStore) CallCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == path {
			n++
		}
	}
	return n
}

func (f *FakeDocumentStore) Collection(ctx context.Context, name string) ([]models.Document, error) {
	return f.fetch(ctx, name)
}

func (f *FakeDocumentStore) UserCollection(ctx context.Context, userID, name string) ([]models.Document, error) {
	return f.fetch(ctx, userID+"/"+name)
}

func (f *FakeDocumentStore) fetch(ctx context.Context, path string) ([]models.Document, error) {
	f.mu.Lock()
	f.calls = append(f.calls, path)
	f.mu.Unlock()

	if f.Entered != nil {
		select {
		case f.Entered <- path:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[path]; err != nil {
		return nil, err
	}
	return append([]models.Document(nil), f.docs[path]...), nil
}

// MapSettings is an appsettings.Reader backed by a map.
type MapSettings map[string]string

func (m MapSettings) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Docs builds documents with the given IDs and a title field.
func Docs(ids ...string) []models.Document {
	docs := make([]models.Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, models.Document{ID: id, Data: map[string]any{"title": "Song " + id}})
	}
	return docs
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
