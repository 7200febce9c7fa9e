package search

import (
	"context"
	"log"
	"math"
	"regexp"
	"strings"

	"searchlight/api/internal/rbac"
	"searchlight/api/internal/store"
)

const (
	minQueryLen = 2
	maxQueryLen = 200

	defaultPageSize = 10
	maxPageSize     = 100

	defaultSuggestLimit = 10
	maxSuggestLimit     = 50
)

var validSortFields = map[string]bool{
	"relevance": true,
	"createdat": true,
	"updatedat": true,
	"title":     true,
	"date":      true, // accepted alias for createdAt
}

// Service is the query engine: it validates requests, applies role-based
// visibility, executes against the accelerator or the store, and shapes
// the response (highlighting, tag splitting, pagination metadata).
type Service struct {
	store IndexStore
	accel Accelerator
}

// NewService creates a query engine. accel may be nil when no external
// engine is configured.
func NewService(store IndexStore, accel Accelerator) *Service {
	return &Service{store: store, accel: accel}
}

// Search validates the request and returns one page of ranked results.
// Viewers only see their own department; managers and admins see all.
func (s *Service) Search(ctx context.Context, req Request, who Identity) (Response, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = defaultPageSize
	}
	if req.SortBy == "" {
		req.SortBy = "relevance"
	}
	if err := validateRequest(req); err != nil {
		return Response{}, err
	}

	q := store.SearchQuery{
		Terms:         strings.TrimSpace(req.Query),
		Categories:    req.Filters.Categories,
		DepartmentIDs: req.Filters.DepartmentIDs,
		FromDate:      req.Filters.FromDate,
		ToDate:        req.Filters.ToDate,
		SortBy:        req.SortBy,
		Ascending:     req.Ascending,
		Page:          req.Page,
		PageSize:      req.PageSize,
	}
	if !rbac.SeesAllDepartments(who.Role) {
		q.RestrictToDepartment = who.DepartmentID
	}

	hits, total, err := s.execute(ctx, q)
	if err != nil {
		return Response{}, err
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, toResult(hit, q.Terms))
	}
	return Response{
		Results:    results,
		TotalCount: total,
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(req.PageSize))),
	}, nil
}

// execute tries the accelerator when it is healthy and falls back to the
// store on any error. Multi-token queries always go to the store: tokens
// are OR-combined, and Meilisearch's term-dropping match strategy excludes
// documents that match only a later token, so the two paths would disagree.
func (s *Service) execute(ctx context.Context, q store.SearchQuery) ([]store.SearchHit, int, error) {
	if s.accel != nil && s.accel.Healthy() && len(strings.Fields(q.Terms)) == 1 {
		hits, total, err := s.accel.Search(ctx, q)
		if err == nil {
			return hits, total, nil
		}
		log.Printf("search: accelerator error, falling back to store: %v", err)
	}
	return s.store.Search(ctx, q)
}

// Suggest returns distinct titles starting with prefix. A prefix shorter
// than two characters is rejected rather than silently empty, so clients
// learn the bound.
func (s *Service) Suggest(ctx context.Context, prefix string, limit int) (Suggestions, error) {
	prefix = strings.TrimSpace(prefix)
	if len(prefix) < minQueryLen {
		return Suggestions{}, invalid("prefix", "must be at least 2 characters")
	}
	if limit == 0 {
		limit = defaultSuggestLimit
	}
	if limit < 1 || limit > maxSuggestLimit {
		return Suggestions{}, invalid("limit", "must be between 1 and 50")
	}

	titles, err := s.store.Suggest(ctx, prefix, limit)
	if err != nil {
		return Suggestions{}, err
	}
	if titles == nil {
		titles = []string{}
	}
	return Suggestions{Suggestions: titles}, nil
}

// FacetCounts returns the category and department aggregations.
func (s *Service) FacetCounts(ctx context.Context) (Facets, error) {
	categories, departments, err := s.store.Facets(ctx)
	if err != nil {
		return Facets{}, err
	}
	return Facets{Categories: categories, Departments: departments}, nil
}

// GetByID returns one indexed document. Tombstoned documents are reported
// as not found; the serving surface never exposes deleted rows.
func (s *Service) GetByID(ctx context.Context, id string, who Identity) (Result, error) {
	doc, err := s.store.GetByID(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if doc.IsDeleted {
		return Result{}, store.ErrNotFound
	}
	if !rbac.SeesAllDepartments(who.Role) && doc.DepartmentID != who.DepartmentID {
		return Result{}, store.ErrNotFound
	}
	return toResult(store.SearchHit{Document: doc}, ""), nil
}

func validateRequest(req Request) error {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return invalid("query", "must not be empty")
	}
	if len(query) < minQueryLen || len(query) > maxQueryLen {
		return invalid("query", "must be between 2 and 200 characters")
	}
	if req.Page < 1 {
		return invalid("page", "must be at least 1")
	}
	if req.PageSize < 1 || req.PageSize > maxPageSize {
		return invalid("pageSize", "must be between 1 and 100")
	}
	if !validSortFields[strings.ToLower(req.SortBy)] {
		return invalid("sortBy", "must be one of relevance, createdAt, updatedAt, title")
	}
	if req.Filters.FromDate != nil && req.Filters.ToDate != nil && req.Filters.FromDate.After(*req.Filters.ToDate) {
		return invalid("fromDate", "must not be after toDate")
	}
	return nil
}

func toResult(hit store.SearchHit, terms string) Result {
	doc := hit.Document
	result := Result{
		ID:               doc.ID,
		Title:            doc.Title,
		HighlightedTitle: highlight(doc.Title, terms),
		Description:      doc.Description,
		Category:         doc.Category,
		Tags:             splitTags(doc.Tags),
		DepartmentID:     doc.DepartmentID,
		DepartmentName:   doc.DepartmentName,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
		Score:            hit.Score,
	}
	if doc.Description != nil {
		highlighted := highlight(*doc.Description, terms)
		result.HighlightedDescription = &highlighted
	}
	return result
}

// highlight wraps every case-insensitive occurrence of each query token in
// <em> markers. Tokens shorter than two characters are skipped; tokens are
// applied sequentially, so overlapping matches may nest markers.
func highlight(text, terms string) string {
	if text == "" || terms == "" {
		return text
	}
	for _, token := range strings.Fields(terms) {
		if len(token) < minQueryLen {
			continue
		}
		re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(token))
		if err != nil {
			continue
		}
		text = re.ReplaceAllString(text, "<em>$0</em>")
	}
	return text
}

// splitTags expands the stored comma-delimited tag field into a slice,
// dropping blanks. Always returns a non-nil slice so the JSON field is [].
func splitTags(tags string) []string {
	parts := strings.Split(tags, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
