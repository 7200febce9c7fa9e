package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func pagedServer(t *testing.T, docs []Document, pageSize int, failPage int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/documents" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("X-Sync-Token") != "test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		pageNum, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if pageNum < 1 {
			pageNum = 1
		}
		if failPage > 0 && pageNum == failPage {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		totalPages := (len(docs) + pageSize - 1) / pageSize
		start := (pageNum - 1) * pageSize
		end := start + pageSize
		if start > len(docs) {
			start = len(docs)
		}
		if end > len(docs) {
			end = len(docs)
		}

		_ = json.NewEncoder(w).Encode(page{
			Data:       docs[start:end],
			Page:       pageNum,
			PageSize:   pageSize,
			TotalCount: len(docs),
			TotalPages: totalPages,
		})
	}))
}

func corpus(n int) []Document {
	docs := make([]Document, n)
	for i := range docs {
		docs[i] = Document{
			ID:           fmt.Sprintf("doc-%d", i),
			Title:        fmt.Sprintf("Document %d", i),
			Category:     "Policy",
			DepartmentID: "dept-1",
			CreatedAt:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		}
	}
	return docs
}

func TestFetchAllWalksEveryPage(t *testing.T) {
	docs := corpus(25)
	server := pagedServer(t, docs, 10, 0)
	defer server.Close()

	client := NewClient(server.URL, "test-token", 10)
	got, err := client.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}

	if len(got) != 25 {
		t.Fatalf("expected 25 documents, got %d", len(got))
	}
	seen := make(map[string]bool, len(got))
	for _, doc := range got {
		if seen[doc.ID] {
			t.Errorf("duplicate document %s", doc.ID)
		}
		seen[doc.ID] = true
	}
}

func TestFetchAllSinglePage(t *testing.T) {
	server := pagedServer(t, corpus(3), 10, 0)
	defer server.Close()

	client := NewClient(server.URL, "test-token", 10)
	got, err := client.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 documents, got %d", len(got))
	}
}

func TestFetchAllEmptyCorpus(t *testing.T) {
	server := pagedServer(t, nil, 10, 0)
	defer server.Close()

	client := NewClient(server.URL, "test-token", 10)
	got, err := client.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty corpus, got %d documents", len(got))
	}
}

func TestFetchAllAbortsOnPageError(t *testing.T) {
	server := pagedServer(t, corpus(25), 10, 2)
	defer server.Close()

	client := NewClient(server.URL, "test-token", 10)
	if _, err := client.FetchAll(context.Background()); err == nil {
		t.Fatal("expected error when a page fails")
	}
}

func TestFetchAllAbortsWhenUnauthorized(t *testing.T) {
	server := pagedServer(t, corpus(5), 10, 0)
	defer server.Close()

	client := NewClient(server.URL, "wrong-token", 10)
	if _, err := client.FetchAll(context.Background()); err == nil {
		t.Fatal("expected error for rejected sync token")
	}
}

func TestFetchAllHonorsContextCancellation(t *testing.T) {
	server := pagedServer(t, corpus(5), 10, 0)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(server.URL, "test-token", 10)
	if _, err := client.FetchAll(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
