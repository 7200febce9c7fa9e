package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Document is the wire shape of one source record. The source owns the
// ids; IsDeleted is the only deletion signal the reconciler acts on.
type Document struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    *string    `json:"description"`
	Category       string     `json:"category"`
	Tags           []string   `json:"tags"`
	DepartmentID   string     `json:"departmentId"`
	DepartmentName string     `json:"departmentName"`
	IsDeleted      bool       `json:"isDeleted"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      *time.Time `json:"updatedAt"`
}

type page struct {
	Data       []Document `json:"data"`
	Page       int        `json:"page"`
	PageSize   int        `json:"pageSize"`
	TotalCount int        `json:"totalCount"`
	TotalPages int        `json:"totalPages"`
}

// Client fetches the full document corpus from the upstream system of
// record, page by page. Fetches are rate limited so reconciliation cycles
// cannot saturate the source.
type Client struct {
	baseURL    string
	httpClient *http.Client
	syncToken  string
	pageSize   int
	limiter    *rate.Limiter
}

func NewClient(baseURL, syncToken string, pageSize int) *Client {
	if pageSize < 1 {
		pageSize = 100
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		syncToken:  syncToken,
		pageSize:   pageSize,
		limiter:    rate.NewLimiter(rate.Limit(5), 5),
	}
}

// FetchAll retrieves every document the source exposes. The fetch is
// all-or-nothing: any failed page aborts the whole call so a partial
// corpus is never mistaken for the full one.
func (c *Client) FetchAll(ctx context.Context) ([]Document, error) {
	var docs []Document
	pageNum := 1
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		p, err := c.fetchPage(ctx, pageNum)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", pageNum, err)
		}

		docs = append(docs, p.Data...)
		if len(p.Data) == 0 || pageNum >= p.TotalPages {
			return docs, nil
		}
		pageNum++
	}
}

func (c *Client) fetchPage(ctx context.Context, pageNum int) (page, error) {
	u := fmt.Sprintf("%s/api/documents?page=%d&pageSize=%d",
		c.baseURL, pageNum, c.pageSize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return page{}, err
	}
	req.Header.Set("Accept", "application/json")
	if c.syncToken != "" {
		req.Header.Set("X-Sync-Token", c.syncToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return page{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return page{}, fmt.Errorf("source returned status %d", resp.StatusCode)
	}

	var p page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return page{}, fmt.Errorf("decode page: %w", err)
	}
	return p, nil
}
