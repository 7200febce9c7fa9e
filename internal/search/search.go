package search

import (
	"context"
	"time"

	"searchlight/api/internal/rbac"
	"searchlight/api/internal/store"
)

// Identity is the caller identity the transport layer resolves from
// request headers. Role has already been normalized.
type Identity struct {
	UserID       string
	Role         rbac.Role
	DepartmentID string
}

// Filters narrows a search structurally. Empty collections and nil dates
// mean "no restriction".
type Filters struct {
	Categories    []string   `json:"categories"`
	DepartmentIDs []string   `json:"departmentIds"`
	FromDate      *time.Time `json:"fromDate"`
	ToDate        *time.Time `json:"toDate"`
}

// Request is the search request body.
type Request struct {
	Query     string  `json:"query"`
	Filters   Filters `json:"filters"`
	Page      int     `json:"page"`
	PageSize  int     `json:"pageSize"`
	SortBy    string  `json:"sortBy"`
	Ascending bool    `json:"ascending"`
}

// Result is one search hit as returned to clients. Highlighted fields
// carry <em> markers around matched query tokens.
type Result struct {
	ID                     string     `json:"id"`
	Title                  string     `json:"title"`
	HighlightedTitle       string     `json:"highlightedTitle"`
	Description            *string    `json:"description,omitempty"`
	HighlightedDescription *string    `json:"highlightedDescription,omitempty"`
	Category               string     `json:"category"`
	Tags                   []string   `json:"tags"`
	DepartmentID           string     `json:"departmentId"`
	DepartmentName         string     `json:"departmentName"`
	CreatedAt              time.Time  `json:"createdAt"`
	UpdatedAt              *time.Time `json:"updatedAt,omitempty"`
	Score                  float64    `json:"score"`
}

// Response is a page of search results plus pagination metadata.
type Response struct {
	Results    []Result `json:"results"`
	TotalCount int      `json:"totalCount"`
	Page       int      `json:"page"`
	PageSize   int      `json:"pageSize"`
	TotalPages int      `json:"totalPages"`
}

// Suggestions is the autocomplete response.
type Suggestions struct {
	Suggestions []string `json:"suggestions"`
}

// Facets is the aggregation response: document counts per category and
// per department, non-deleted rows only.
type Facets struct {
	Categories  []store.CategoryFacet   `json:"categories"`
	Departments []store.DepartmentFacet `json:"departments"`
}

// IndexStore is the slice of the persistence layer the query engine reads.
type IndexStore interface {
	Search(ctx context.Context, q store.SearchQuery) ([]store.SearchHit, int, error)
	Suggest(ctx context.Context, prefix string, limit int) ([]string, error)
	Facets(ctx context.Context) ([]store.CategoryFacet, []store.DepartmentFacet, error)
	GetByID(ctx context.Context, id string) (store.Document, error)
}

// Accelerator is an optional external engine tried before the store.
// When it is nil or unhealthy, every query is served from the store.
type Accelerator interface {
	Healthy() bool
	Search(ctx context.Context, q store.SearchQuery) ([]store.SearchHit, int, error)
}

// ValidationError marks a request the caller can fix. The transport layer
// maps it to a 400 response.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
