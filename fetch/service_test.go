package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/richinex/marionette/pages"
	"github.com/richinex/marionette/storage"
)

// fakeSolver is an httptest FlareSolverr with a canned page per URL.
type fakeSolver struct {
	mu       sync.Mutex
	pages    map[string]string
	gets     int
	sessions []string
}

func (f *fakeSolver) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cmd struct {
			Cmd     string `json:"cmd"`
			URL     string `json:"url"`
			Session string `json:"session"`
		}
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()

		switch cmd.Cmd {
		case "sessions.create":
			f.sessions = append(f.sessions, cmd.Session)
			json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok", "session": cmd.Session})
		case "sessions.destroy":
			json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok"})
		case "request.get":
			f.gets++
			html, ok := f.pages[cmd.URL]
			if !ok {
				json.NewEncoder(w).Encode(map[string]interface{}{"status": "error", "message": "no such page"})
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status": "ok",
				"solution": map[string]interface{}{
					"url":       cmd.URL,
					"status":    200,
					"response":  html,
					"userAgent": "test-agent",
				},
			})
		default:
			json.NewEncoder(w).Encode(map[string]interface{}{"status": "error", "message": "unknown cmd"})
		}
	}
}

func articleHTML(paragraphs int) string {
	var b strings.Builder
	b.WriteString("<html><head><title>Test Article</title></head><body><article>")
	for i := 0; i < paragraphs; i++ {
		fmt.Fprintf(&b, "<p>Paragraph %d with enough words to survive readability extraction and contribute real length to the document body.</p>", i)
	}
	b.WriteString("</article></body></html>")
	return b.String()
}

func newTestService(t *testing.T, solver *fakeSolver) *Service {
	t.Helper()
	ts := httptest.NewServer(solver.handler())
	t.Cleanup(ts.Close)
	return NewService(NewSolverClient(ts.URL))
}

func TestFetchAutoCreatesSession(t *testing.T) {
	solver := &fakeSolver{pages: map[string]string{"https://example.com": articleHTML(3)}}
	service := newTestService(t, solver)

	req := DefaultFetchRequest()
	req.URL = "https://example.com"
	result, err := service.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if len(solver.sessions) != 1 {
		t.Errorf("sessions created = %d", len(solver.sessions))
	}
	if result.FromCache {
		t.Error("first fetch must not be from cache")
	}
	if result.Content == "" {
		t.Error("extracted content empty")
	}
	if result.Pagination == nil || result.Pagination.Page != 1 {
		t.Errorf("pagination = %+v", result.Pagination)
	}
}

func TestFetchServesRepeatFromCache(t *testing.T) {
	solver := &fakeSolver{pages: map[string]string{"https://example.com": articleHTML(3)}}
	service := newTestService(t, solver)

	req := DefaultFetchRequest()
	req.URL = "https://example.com"
	if _, err := service.Fetch(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	result, err := service.Fetch(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}

	if !result.FromCache {
		t.Error("second fetch should hit the cache")
	}
	if solver.gets != 1 {
		t.Errorf("solver gets = %d, want 1", solver.gets)
	}
}

func TestFetchContinuationToken(t *testing.T) {
	solver := &fakeSolver{pages: map[string]string{"https://example.com/long": articleHTML(40)}}
	service := newTestService(t, solver)

	req := DefaultFetchRequest()
	req.URL = "https://example.com/long"
	req.MaxTokens = 50 // force multiple pages
	first, err := service.Fetch(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if first.Pagination == nil || !first.Pagination.HasNext {
		t.Fatalf("expected a next page: %+v", first.Pagination)
	}
	if first.Pagination.ContinuationToken == "" {
		t.Fatal("continuation token missing")
	}

	next := DefaultFetchRequest()
	next.ContinuationToken = first.Pagination.ContinuationToken
	next.MaxTokens = 50
	second, err := service.Fetch(context.Background(), next)
	if err != nil {
		t.Fatalf("continuation fetch: %v", err)
	}

	if !second.FromCache {
		t.Error("continuation should be served from cache")
	}
	if second.Pagination.Page != 2 {
		t.Errorf("page = %d, want 2", second.Pagination.Page)
	}
	if solver.gets != 1 {
		t.Errorf("solver gets = %d, want 1", solver.gets)
	}
}

func TestFetchForeignTokenRejected(t *testing.T) {
	solver := &fakeSolver{pages: map[string]string{"https://example.com": articleHTML(3)}}
	service := newTestService(t, solver)

	req := DefaultFetchRequest()
	req.URL = "https://example.com"
	if _, err := service.Fetch(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	stale := DefaultFetchRequest()
	stale.ContinuationToken = pages.EncodeToken("https://example.com", "some-other-session", 2)
	_, err := service.Fetch(context.Background(), stale)
	if !errors.Is(err, pages.ErrSessionMismatch) {
		t.Errorf("err = %v, want ErrSessionMismatch", err)
	}
}

func TestFetchWithoutExtraction(t *testing.T) {
	html := articleHTML(2)
	solver := &fakeSolver{pages: map[string]string{"https://example.com": html}}
	service := newTestService(t, solver)

	req := DefaultFetchRequest()
	req.URL = "https://example.com"
	req.ExtractContent = false
	result, err := service.Fetch(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}

	if result.HTML != html {
		t.Error("raw HTML should be returned verbatim")
	}
	if result.Pagination != nil {
		t.Error("raw HTML fetches are not paginated")
	}
}

func TestFetchSolverFailure(t *testing.T) {
	solver := &fakeSolver{pages: map[string]string{}}
	service := newTestService(t, solver)

	req := DefaultFetchRequest()
	req.URL = "https://blocked.example.com"
	if _, err := service.Fetch(context.Background(), req); err == nil {
		t.Fatal("expected error for failed challenge")
	}
}

func TestDestroySessionDropsCache(t *testing.T) {
	solver := &fakeSolver{pages: map[string]string{"https://example.com": articleHTML(3)}}
	service := newTestService(t, solver)

	req := DefaultFetchRequest()
	req.URL = "https://example.com"
	if _, err := service.Fetch(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	destroyed, err := service.DestroySession(context.Background())
	if err != nil || !destroyed {
		t.Fatalf("DestroySession = %v, %v", destroyed, err)
	}
	if service.cache.Len() != 0 {
		t.Errorf("cache entries remain: %d", service.cache.Len())
	}

	// No live session now.
	destroyed, err = service.DestroySession(context.Background())
	if err != nil || destroyed {
		t.Errorf("second destroy = %v, %v", destroyed, err)
	}
}

func TestFetchArchivesDocuments(t *testing.T) {
	solver := &fakeSolver{pages: map[string]string{"https://example.com": articleHTML(3)}}
	store, err := storage.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	service := newTestService(t, solver).WithArchive(store)

	req := DefaultFetchRequest()
	req.URL = "https://example.com"
	if _, err := service.Fetch(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	sessionID, err := service.CreateSession(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	docs, err := store.Documents(context.Background(), sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].URL != "https://example.com" {
		t.Errorf("archived docs = %+v", docs)
	}
}
