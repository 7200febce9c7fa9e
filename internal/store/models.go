package store

import "time"

// Document is one row of the search index: a denormalized, read-optimized
// projection of a document owned by the upstream system of record. The
// index never invents ids; they are copied from the source.
type Document struct {
	ID             string
	Title          string
	Description    *string
	Category       string
	Tags           string // comma-delimited, kept flat so it participates in full-text matching
	DepartmentID   string
	DepartmentName string
	IsDeleted      bool
	CreatedAt      time.Time
	UpdatedAt      *time.Time
	LastSyncedAt   time.Time
}

// SearchHit pairs an index row with its relevance rank for one query.
type SearchHit struct {
	Document Document
	Score    float64
}

// SearchQuery is the single parameterized query primitive the store
// executes: full-text terms, structural filters, visibility scope,
// sort mode and a page window.
type SearchQuery struct {
	// Terms is the raw query string; it is whitespace-tokenized and each
	// token matched as a prefix-capable term, tokens OR-combined.
	Terms string

	Categories    []string
	DepartmentIDs []string
	FromDate      *time.Time
	ToDate        *time.Time

	// RestrictToDepartment scopes results to one department when the
	// caller's role does not see the whole corpus. Empty = unrestricted.
	RestrictToDepartment string

	// SortBy is one of relevance, createdAt, updatedAt, title ("date" is
	// accepted as an alias for createdAt). Anything else falls back to
	// relevance, which always ranks descending.
	SortBy    string
	Ascending bool

	Page     int
	PageSize int
}

// CategoryFacet is a per-category document count over non-deleted rows.
type CategoryFacet struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// DepartmentFacet is a per-department document count over non-deleted rows.
type DepartmentFacet struct {
	DepartmentID   string `json:"departmentId"`
	DepartmentName string `json:"departmentName"`
	Count          int    `json:"count"`
}
