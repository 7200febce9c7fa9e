package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"

	"searchlight/api/internal/store"
)

const idxDocuments = "searchlight_documents"

// Meili is the optional accelerator: queries are served from Meilisearch
// while it is healthy, and the reconciler mirrors every index write into
// it. The Postgres index stays the source of truth.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the document index.
// The caller proceeds without acceleration if the instance is down; the
// health loop picks it up when it recovers.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxDocuments,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxDocuments, err)
	}

	index := m.client.Index(idxDocuments)

	filterable := []interface{}{"category", "departmentId", "isDeleted", "createdAtUnix"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxDocuments, err)
	}

	sortable := []string{"createdAtUnix", "updatedAtUnix", "title"}
	if _, err := index.UpdateSortableAttributes(&sortable); err != nil {
		log.Printf("search: update sortable attrs for %s: %v", idxDocuments, err)
	}

	searchable := []string{"title", "description", "tags"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxDocuments, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// meiliDocument is the indexed shape. Timestamps carry a unix companion
// field because Meilisearch filters and sorts on numbers, not RFC 3339.
type meiliDocument struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	Category       string  `json:"category"`
	Tags           string  `json:"tags"`
	DepartmentID   string  `json:"departmentId"`
	DepartmentName string  `json:"departmentName"`
	IsDeleted      bool    `json:"isDeleted"`
	CreatedAt      string  `json:"createdAt"`
	CreatedAtUnix  int64   `json:"createdAtUnix"`
	UpdatedAt      *string `json:"updatedAt,omitempty"`
	UpdatedAtUnix  int64   `json:"updatedAtUnix"`
}

func toMeiliDocument(doc store.Document) meiliDocument {
	md := meiliDocument{
		ID:             doc.ID,
		Title:          doc.Title,
		Category:       doc.Category,
		Tags:           doc.Tags,
		DepartmentID:   doc.DepartmentID,
		DepartmentName: doc.DepartmentName,
		IsDeleted:      doc.IsDeleted,
		CreatedAt:      doc.CreatedAt.Format(time.RFC3339),
		CreatedAtUnix:  doc.CreatedAt.Unix(),
	}
	if doc.Description != nil {
		md.Description = *doc.Description
	}
	if doc.UpdatedAt != nil {
		formatted := doc.UpdatedAt.Format(time.RFC3339)
		md.UpdatedAt = &formatted
		md.UpdatedAtUnix = doc.UpdatedAt.Unix()
	}
	return md
}

// Upsert mirrors one document into the accelerator index.
func (m *Meili) Upsert(doc store.Document) error {
	_, err := m.client.Index(idxDocuments).AddDocuments([]meiliDocument{toMeiliDocument(doc)}, nil)
	return err
}

// Delete removes one document from the accelerator index. Missing ids are
// not an error.
func (m *Meili) Delete(id string) error {
	_, err := m.client.Index(idxDocuments).DeleteDocument(id, nil)
	return err
}

// Search executes the same query contract as the store against
// Meilisearch. Page/HitsPerPage is used instead of limit/offset so
// TotalHits is exact and pagination metadata stays truthful.
func (m *Meili) Search(ctx context.Context, q store.SearchQuery) ([]store.SearchHit, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	sr := &meili.SearchRequest{
		Page:             int64(q.Page),
		HitsPerPage:      int64(q.PageSize),
		ShowRankingScore: true,
	}

	filters := []string{"isDeleted = false"}
	if q.RestrictToDepartment != "" {
		filters = append(filters, fmt.Sprintf("departmentId = %q", q.RestrictToDepartment))
	}
	if len(q.Categories) > 0 {
		filters = append(filters, fmt.Sprintf("category IN [%s]", quoteJoin(q.Categories)))
	}
	if len(q.DepartmentIDs) > 0 {
		filters = append(filters, fmt.Sprintf("departmentId IN [%s]", quoteJoin(q.DepartmentIDs)))
	}
	if q.FromDate != nil {
		filters = append(filters, fmt.Sprintf("createdAtUnix >= %d", q.FromDate.Unix()))
	}
	if q.ToDate != nil {
		filters = append(filters, fmt.Sprintf("createdAtUnix <= %d", q.ToDate.Unix()))
	}
	sr.Filter = filters

	if sort := meiliSort(q.SortBy, q.Ascending); sort != "" {
		sr.Sort = []string{sort}
	}

	resp, err := m.client.Index(idxDocuments).SearchWithContext(ctx, q.Terms, sr)
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	hits := make([]store.SearchHit, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		decoded, err := decodeHit(hit)
		if err != nil {
			return nil, 0, fmt.Errorf("meilisearch decode hit: %w", err)
		}
		hits = append(hits, decoded)
	}
	return hits, int(resp.TotalHits), nil
}

func meiliSort(sortBy string, ascending bool) string {
	direction := "desc"
	if ascending {
		direction = "asc"
	}
	switch strings.ToLower(sortBy) {
	case "createdat", "date":
		return "createdAtUnix:" + direction
	case "updatedat":
		return "updatedAtUnix:" + direction
	case "title":
		return "title:" + direction
	default:
		return ""
	}
}

func quoteJoin(values []string) string {
	quoted := make([]string, len(values))
	for i, value := range values {
		quoted[i] = fmt.Sprintf("%q", value)
	}
	return strings.Join(quoted, ", ")
}

func decodeHit(hit meili.Hit) (store.SearchHit, error) {
	raw, err := json.Marshal(hit)
	if err != nil {
		return store.SearchHit{}, err
	}
	var md meiliDocument
	if err := json.Unmarshal(raw, &md); err != nil {
		return store.SearchHit{}, err
	}

	doc := store.Document{
		ID:             md.ID,
		Title:          md.Title,
		Category:       md.Category,
		Tags:           md.Tags,
		DepartmentID:   md.DepartmentID,
		DepartmentName: md.DepartmentName,
		IsDeleted:      md.IsDeleted,
	}
	if md.Description != "" {
		doc.Description = &md.Description
	}
	if createdAt, err := time.Parse(time.RFC3339, md.CreatedAt); err == nil {
		doc.CreatedAt = createdAt
	}
	if md.UpdatedAt != nil {
		if updatedAt, err := time.Parse(time.RFC3339, *md.UpdatedAt); err == nil {
			doc.UpdatedAt = &updatedAt
		}
	}

	score := 0.0
	if rawScore, ok := hit["_rankingScore"]; ok {
		_ = json.Unmarshal(rawScore, &score)
	}
	return store.SearchHit{Document: doc, Score: score}, nil
}
