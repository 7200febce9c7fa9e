package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"searchlight/api/internal/rbac"
	"searchlight/api/internal/store"
)

type fakeIndexStore struct {
	searchFn  func(ctx context.Context, q store.SearchQuery) ([]store.SearchHit, int, error)
	suggestFn func(ctx context.Context, prefix string, limit int) ([]string, error)
	facetsFn  func(ctx context.Context) ([]store.CategoryFacet, []store.DepartmentFacet, error)
	getByIDFn func(ctx context.Context, id string) (store.Document, error)
}

func (f *fakeIndexStore) Search(ctx context.Context, q store.SearchQuery) ([]store.SearchHit, int, error) {
	if f.searchFn != nil {
		return f.searchFn(ctx, q)
	}
	return []store.SearchHit{}, 0, nil
}

func (f *fakeIndexStore) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	if f.suggestFn != nil {
		return f.suggestFn(ctx, prefix, limit)
	}
	return []string{}, nil
}

func (f *fakeIndexStore) Facets(ctx context.Context) ([]store.CategoryFacet, []store.DepartmentFacet, error) {
	if f.facetsFn != nil {
		return f.facetsFn(ctx)
	}
	return nil, nil, nil
}

func (f *fakeIndexStore) GetByID(ctx context.Context, id string) (store.Document, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return store.Document{}, store.ErrNotFound
}

type fakeAccelerator struct {
	healthy  bool
	searchFn func(ctx context.Context, q store.SearchQuery) ([]store.SearchHit, int, error)
}

func (f *fakeAccelerator) Healthy() bool { return f.healthy }

func (f *fakeAccelerator) Search(ctx context.Context, q store.SearchQuery) ([]store.SearchHit, int, error) {
	return f.searchFn(ctx, q)
}

func manager() Identity {
	return Identity{UserID: "u1", Role: rbac.RoleManager, DepartmentID: "dept-1"}
}

func docHit(id, title string) store.SearchHit {
	return store.SearchHit{
		Document: store.Document{
			ID:        id,
			Title:     title,
			Category:  "Policy",
			CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		Score: 0.5,
	}
}

func TestSearchValidation(t *testing.T) {
	svc := NewService(&fakeIndexStore{}, nil)
	ctx := context.Background()

	cases := []struct {
		name  string
		req   Request
		field string
	}{
		{"empty query", Request{Query: "   "}, "query"},
		{"query too short", Request{Query: "a"}, "query"},
		{"query too long", Request{Query: string(make([]byte, 201))}, "query"},
		{"negative page", Request{Query: "budget", Page: -1}, "page"},
		{"page size too large", Request{Query: "budget", PageSize: 101}, "pageSize"},
		{"unknown sort", Request{Query: "budget", SortBy: "score"}, "sortBy"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Search(ctx, tc.req, manager())
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if vErr.Field != tc.field {
				t.Errorf("expected field %q, got %q", tc.field, vErr.Field)
			}
		})
	}
}

func TestSearchDateRangeValidation(t *testing.T) {
	svc := NewService(&fakeIndexStore{}, nil)
	from := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.Search(context.Background(), Request{
		Query:   "budget",
		Filters: Filters{FromDate: &from, ToDate: &to},
	}, manager())

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if vErr.Field != "fromDate" {
		t.Errorf("expected field fromDate, got %q", vErr.Field)
	}
}

func TestSearchDefaults(t *testing.T) {
	var captured store.SearchQuery
	fs := &fakeIndexStore{
		searchFn: func(ctx context.Context, q store.SearchQuery) ([]store.SearchHit, int, error) {
			captured = q
			return []store.SearchHit{}, 0, nil
		},
	}
	svc := NewService(fs, nil)

	resp, err := svc.Search(context.Background(), Request{Query: "budget"}, manager())
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if captured.Page != 1 || captured.PageSize != 10 {
		t.Errorf("expected page=1 pageSize=10, got page=%d pageSize=%d", captured.Page, captured.PageSize)
	}
	if captured.SortBy != "relevance" {
		t.Errorf("expected sortBy=relevance, got %q", captured.SortBy)
	}
	if resp.Page != 1 || resp.PageSize != 10 {
		t.Errorf("response metadata wrong: page=%d pageSize=%d", resp.Page, resp.PageSize)
	}
}

func TestSearchViewerIsDepartmentScoped(t *testing.T) {
	var captured store.SearchQuery
	fs := &fakeIndexStore{
		searchFn: func(ctx context.Context, q store.SearchQuery) ([]store.SearchHit, int, error) {
			captured = q
			return []store.SearchHit{}, 0, nil
		},
	}
	svc := NewService(fs, nil)

	viewer := Identity{UserID: "u2", Role: rbac.RoleViewer, DepartmentID: "dept-7"}
	if _, err := svc.Search(context.Background(), Request{Query: "budget"}, viewer); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if captured.RestrictToDepartment != "dept-7" {
		t.Errorf("expected viewer scoped to dept-7, got %q", captured.RestrictToDepartment)
	}

	if _, err := svc.Search(context.Background(), Request{Query: "budget"}, manager()); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if captured.RestrictToDepartment != "" {
		t.Errorf("manager should be unrestricted, got %q", captured.RestrictToDepartment)
	}
}

func TestSearchTotalPages(t *testing.T) {
	fs := &fakeIndexStore{
		searchFn: func(ctx context.Context, q store.SearchQuery) ([]store.SearchHit, int, error) {
			return []store.SearchHit{docHit("1", "Budget Analysis Q1")}, 25, nil
		},
	}
	svc := NewService(fs, nil)

	resp, err := svc.Search(context.Background(), Request{Query: "budget", PageSize: 10}, manager())
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if resp.TotalCount != 25 {
		t.Errorf("expected totalCount 25, got %d", resp.TotalCount)
	}
	if resp.TotalPages != 3 {
		t.Errorf("expected totalPages 3, got %d", resp.TotalPages)
	}
}

func TestSearchHighlighting(t *testing.T) {
	description := "Quarterly budget figures and budgeting notes"
	fs := &fakeIndexStore{
		searchFn: func(ctx context.Context, q store.SearchQuery) ([]store.SearchHit, int, error) {
			hit := docHit("1", "Budget Analysis Q1")
			hit.Document.Description = &description
			return []store.SearchHit{hit}, 1, nil
		},
	}
	svc := NewService(fs, nil)

	resp, err := svc.Search(context.Background(), Request{Query: "budget analysis"}, manager())
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	got := resp.Results[0].HighlightedTitle
	want := "<em>Budget</em> <em>Analysis</em> Q1"
	if got != want {
		t.Errorf("highlighted title = %q, want %q", got, want)
	}

	if resp.Results[0].HighlightedDescription == nil {
		t.Fatal("expected highlighted description")
	}
	gotDesc := *resp.Results[0].HighlightedDescription
	wantDesc := "Quarterly <em>budget</em> figures and <em>budget</em>ing notes"
	if gotDesc != wantDesc {
		t.Errorf("highlighted description = %q, want %q", gotDesc, wantDesc)
	}
}

func TestSearchShortTokensNotHighlighted(t *testing.T) {
	fs := &fakeIndexStore{
		searchFn: func(ctx context.Context, q store.SearchQuery) ([]store.SearchHit, int, error) {
			return []store.SearchHit{docHit("1", "Annual IT Review")}, 1, nil
		},
	}
	svc := NewService(fs, nil)

	resp, err := svc.Search(context.Background(), Request{Query: "review a"}, manager())
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	want := "Annual IT <em>Review</em>"
	if got := resp.Results[0].HighlightedTitle; got != want {
		t.Errorf("highlighted title = %q, want %q", got, want)
	}
}

func TestSearchTagsSplit(t *testing.T) {
	fs := &fakeIndexStore{
		searchFn: func(ctx context.Context, q store.SearchQuery) ([]store.SearchHit, int, error) {
			hit := docHit("1", "Budget Analysis Q1")
			hit.Document.Tags = "finance, q1, , budget "
			return []store.SearchHit{hit}, 1, nil
		},
	}
	svc := NewService(fs, nil)

	resp, err := svc.Search(context.Background(), Request{Query: "budget"}, manager())
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	tags := resp.Results[0].Tags
	want := []string{"finance", "q1", "budget"}
	if len(tags) != len(want) {
		t.Fatalf("expected %d tags, got %v", len(want), tags)
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Errorf("tag[%d] = %q, want %q", i, tags[i], want[i])
		}
	}
}

func TestSearchAcceleratorFallback(t *testing.T) {
	fromStore := false
	fs := &fakeIndexStore{
		searchFn: func(ctx context.Context, q store.SearchQuery) ([]store.SearchHit, int, error) {
			fromStore = true
			return []store.SearchHit{docHit("1", "Budget Analysis Q1")}, 1, nil
		},
	}

	t.Run("healthy accelerator serves", func(t *testing.T) {
		fromStore = false
		accel := &fakeAccelerator{
			healthy: true,
			searchFn: func(ctx context.Context, q store.SearchQuery) ([]store.SearchHit, int, error) {
				return []store.SearchHit{docHit("2", "Budget Report Q2")}, 1, nil
			},
		}
		svc := NewService(fs, accel)
		resp, err := svc.Search(context.Background(), Request{Query: "budget"}, manager())
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if fromStore {
			t.Error("store should not be queried when accelerator succeeds")
		}
		if resp.Results[0].ID != "2" {
			t.Errorf("expected accelerator result, got %s", resp.Results[0].ID)
		}
	})

	t.Run("accelerator error falls back to store", func(t *testing.T) {
		fromStore = false
		accel := &fakeAccelerator{
			healthy: true,
			searchFn: func(ctx context.Context, q store.SearchQuery) ([]store.SearchHit, int, error) {
				return nil, 0, errors.New("connection refused")
			},
		}
		svc := NewService(fs, accel)
		resp, err := svc.Search(context.Background(), Request{Query: "budget"}, manager())
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if !fromStore {
			t.Error("store should serve when accelerator errors")
		}
		if resp.Results[0].ID != "1" {
			t.Errorf("expected store result, got %s", resp.Results[0].ID)
		}
	})

	t.Run("multi-token query served by store", func(t *testing.T) {
		fromStore = false
		accelQueried := false
		accel := &fakeAccelerator{
			healthy: true,
			searchFn: func(ctx context.Context, q store.SearchQuery) ([]store.SearchHit, int, error) {
				accelQueried = true
				return []store.SearchHit{docHit("2", "Budget Report Q2")}, 1, nil
			},
		}
		svc := NewService(fs, accel)
		if _, err := svc.Search(context.Background(), Request{Query: "budget network"}, manager()); err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		// Tokens are OR-combined; the accelerator cannot honor that for
		// multiple tokens, so the store must serve.
		if accelQueried {
			t.Error("accelerator must not serve multi-token queries")
		}
		if !fromStore {
			t.Error("store should serve multi-token queries")
		}
	})

	t.Run("unhealthy accelerator skipped", func(t *testing.T) {
		fromStore = false
		accel := &fakeAccelerator{healthy: false}
		svc := NewService(fs, accel)
		if _, err := svc.Search(context.Background(), Request{Query: "budget"}, manager()); err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if !fromStore {
			t.Error("store should serve when accelerator unhealthy")
		}
	})
}

func TestSuggestValidation(t *testing.T) {
	svc := NewService(&fakeIndexStore{}, nil)
	ctx := context.Background()

	if _, err := svc.Suggest(ctx, "B", 10); err == nil {
		t.Error("expected error for one-character prefix")
	}
	if _, err := svc.Suggest(ctx, "Bu", 51); err == nil {
		t.Error("expected error for limit above 50")
	}
	if _, err := svc.Suggest(ctx, "Bu", -1); err == nil {
		t.Error("expected error for negative limit")
	}
}

func TestSuggestDefaultLimit(t *testing.T) {
	var capturedLimit int
	fs := &fakeIndexStore{
		suggestFn: func(ctx context.Context, prefix string, limit int) ([]string, error) {
			capturedLimit = limit
			return []string{"Budget Analysis Q1"}, nil
		},
	}
	svc := NewService(fs, nil)

	resp, err := svc.Suggest(context.Background(), "Bu", 0)
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if capturedLimit != 10 {
		t.Errorf("expected default limit 10, got %d", capturedLimit)
	}
	if len(resp.Suggestions) != 1 {
		t.Errorf("expected 1 suggestion, got %d", len(resp.Suggestions))
	}
}

func TestGetByIDHidesDeletedAndForeignDocuments(t *testing.T) {
	fs := &fakeIndexStore{
		getByIDFn: func(ctx context.Context, id string) (store.Document, error) {
			switch id {
			case "gone":
				return store.Document{ID: id, IsDeleted: true, DepartmentID: "dept-1"}, nil
			case "other-dept":
				return store.Document{ID: id, DepartmentID: "dept-9"}, nil
			default:
				return store.Document{ID: id, DepartmentID: "dept-1", Title: "Budget Analysis Q1"}, nil
			}
		},
	}
	svc := NewService(fs, nil)
	viewer := Identity{UserID: "u2", Role: rbac.RoleViewer, DepartmentID: "dept-1"}

	if _, err := svc.GetByID(context.Background(), "gone", manager()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("deleted document should be not found, got %v", err)
	}
	if _, err := svc.GetByID(context.Background(), "other-dept", viewer); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("foreign department document should be hidden from viewer, got %v", err)
	}
	if _, err := svc.GetByID(context.Background(), "other-dept", manager()); err != nil {
		t.Errorf("manager should see other departments, got %v", err)
	}
	result, err := svc.GetByID(context.Background(), "doc-1", viewer)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if result.Title != "Budget Analysis Q1" {
		t.Errorf("unexpected title %q", result.Title)
	}
}
