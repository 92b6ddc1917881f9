package fetch

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/richinex/marionette/pages"
	"github.com/richinex/marionette/storage"
)

// Fetch defaults, matching the fetch_url tool schema.
const (
	DefaultMaxTimeout = 60000
	DefaultMaxTokens  = 20000
)

// FetchRequest are the arguments of one fetch_url call.
type FetchRequest struct {
	URL               string `json:"url"`
	MaxTimeout        int    `json:"max_timeout"`
	ExtractContent    bool   `json:"extract_content"`
	MaxTokens         int    `json:"max_tokens"`
	ReturnFormat      string `json:"return_format"`
	Page              int    `json:"page"`
	ContinuationToken string `json:"continuation_token"`
	CacheContent      bool   `json:"cache_content"`
}

// DefaultFetchRequest returns a request with the documented defaults set,
// ready for json.Unmarshal to override the fields the caller supplied.
func DefaultFetchRequest() FetchRequest {
	return FetchRequest{
		MaxTimeout:     DefaultMaxTimeout,
		ExtractContent: true,
		MaxTokens:      DefaultMaxTokens,
		ReturnFormat:   "auto",
		Page:           1,
		CacheContent:   true,
	}
}

// FetchResult is the JSON payload returned by fetch_url.
type FetchResult struct {
	URL             string            `json:"url"`
	Title           string            `json:"title,omitempty"`
	Content         string            `json:"content,omitempty"`
	ContentHTML     string            `json:"content_html,omitempty"`
	HTML            string            `json:"html,omitempty"`
	Status          int               `json:"status,omitempty"`
	UserAgent       string            `json:"userAgent,omitempty"`
	EstimatedTokens int               `json:"estimated_tokens"`
	Pagination      *pages.Pagination `json:"pagination,omitempty"`
	FromCache       bool              `json:"from_cache"`
}

// Service implements the fetch_url / create_session / destroy_session
// tools over one solver endpoint.
//
// Information Hiding:
// - Session lifecycle hidden (auto-created on first fetch)
// - Cache consultation and continuation token handling hidden
// - Optional archive persistence hidden
type Service struct {
	solver  *SolverClient
	cache   *pages.Cache
	session *pages.Session
	store   *storage.Store
}

// NewService creates a fetch service over the given solver.
func NewService(solver *SolverClient) *Service {
	return &Service{
		solver: solver,
		cache:  pages.NewCache(),
	}
}

// WithArchive persists every extracted document into the store.
func (s *Service) WithArchive(store *storage.Store) *Service {
	s.store = store
	return s
}

// CreateSession creates a solver browser session and makes it current.
// An existing session stays live; its id is returned.
func (s *Service) CreateSession(ctx context.Context) (string, error) {
	if s.session != nil {
		return s.session.ID, nil
	}

	id := uuid.New().String()
	if err := s.solver.CreateSession(ctx, id); err != nil {
		return "", err
	}

	session := pages.NewSession(id)
	s.session = &session
	return id, nil
}

// DestroySession tears down the current session and drops its cached
// documents. Returns false if no session was live.
func (s *Service) DestroySession(ctx context.Context) (bool, error) {
	if s.session == nil {
		return false, nil
	}

	if err := s.solver.DestroySession(ctx, s.session.ID); err != nil {
		return false, err
	}

	s.cache.DropSession(*s.session)
	s.session = nil
	return true, nil
}

// Fetch retrieves a URL with pagination support. A continuation token
// overrides the url and page arguments and must belong to the current
// session. Cached documents are served without touching the solver.
func (s *Service) Fetch(ctx context.Context, req FetchRequest) (FetchResult, error) {
	url := req.URL
	page := req.Page

	if req.ContinuationToken != "" {
		if s.session == nil {
			return FetchResult{}, fmt.Errorf("%w: no live session", pages.ErrSessionMismatch)
		}
		tokenURL, tokenPage, err := pages.DecodeTokenForSession(req.ContinuationToken, *s.session)
		if err != nil {
			return FetchResult{}, err
		}
		url = tokenURL
		page = tokenPage
	}

	if req.CacheContent && s.session != nil {
		if doc, ok := s.cache.Get(*s.session, url); ok {
			return s.paginated(FetchResult{URL: url, FromCache: true}, doc, page, req), nil
		}
	}

	if _, err := s.CreateSession(ctx); err != nil {
		return FetchResult{}, err
	}

	solution, err := s.solver.Get(ctx, url, s.session.ID, req.MaxTimeout)
	if err != nil {
		return FetchResult{}, err
	}

	result := FetchResult{
		URL:       solution.URL,
		Status:    solution.Status,
		UserAgent: solution.UserAgent,
	}
	if result.URL == "" {
		result.URL = url
	}

	if !req.ExtractContent || solution.Response == "" {
		// Raw HTML, no pagination.
		result.HTML = solution.Response
		result.EstimatedTokens = pages.EstimateTokens(solution.Response)
		return result, nil
	}

	extracted, err := ExtractContent(solution.Response, url)
	if err != nil {
		// Extraction failures degrade to the raw page rather than failing
		// the fetch.
		extracted = Extracted{
			Text: fmt.Sprintf("Content extraction failed: %v", err),
			HTML: solution.Response,
		}
	}

	doc := pages.Document{
		URL:   url,
		Text:  extracted.Text,
		HTML:  extracted.HTML,
		Title: extracted.Title,
	}

	if req.CacheContent {
		s.cache.Put(*s.session, doc)
	}
	s.archive(ctx, doc)

	if req.ReturnFormat == "full_html" {
		result.HTML = solution.Response
	}
	return s.paginated(result, doc, page, req), nil
}

// paginated fills a base result with one page of the document's text.
func (s *Service) paginated(result FetchResult, doc pages.Document, page int, req FetchRequest) FetchResult {
	pageContent, pagination := pages.Paginate(doc.Text, page, req.MaxTokens)

	if pagination.HasNext && s.session != nil {
		pagination.ContinuationToken = pages.EncodeToken(doc.URL, s.session.ID, pagination.Page+1)
	}

	result.Title = doc.Title
	result.Content = pageContent
	result.EstimatedTokens = pages.EstimateTokens(pageContent)
	result.Pagination = &pagination
	if req.ReturnFormat == "full_html" {
		result.ContentHTML = doc.HTML
	}
	return result
}

func (s *Service) archive(ctx context.Context, doc pages.Document) {
	if s.store == nil || s.session == nil {
		return
	}
	err := s.store.SaveDocument(ctx, storage.Document{
		SessionID:  s.session.ID,
		URL:        doc.URL,
		Title:      doc.Title,
		Content:    doc.Text,
		HTML:       doc.HTML,
		TokenCount: doc.Tokens(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to archive %s: %v\n", doc.URL, err)
	}
}
