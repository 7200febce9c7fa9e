package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrNotFound is returned by point lookups when no row matches.
var ErrNotFound = errors.New("document not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Upsert inserts the document or fully replaces the mutable fields of the
// existing row. last_synced_at is set by the database clock on every call,
// so it is monotonically non-decreasing per id; applying the same document
// twice leaves every other column unchanged.
func (s *PostgresStore) Upsert(ctx context.Context, doc Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents
			(id, title, description, category, tags, department_id, department_name, is_deleted, created_at, updated_at, last_synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			tags = EXCLUDED.tags,
			department_id = EXCLUDED.department_id,
			department_name = EXCLUDED.department_name,
			is_deleted = EXCLUDED.is_deleted,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at,
			last_synced_at = NOW()
	`, doc.ID, doc.Title, doc.Description, doc.Category, doc.Tags,
		doc.DepartmentID, doc.DepartmentName, doc.IsDeleted, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", doc.ID, err)
	}
	return nil
}

// SoftDelete tombstones the row. Deleting an id that was never indexed is
// a no-op, not an error.
func (s *PostgresStore) SoftDelete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents SET is_deleted = TRUE, last_synced_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("soft delete document %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, category, tags, department_id, department_name,
			is_deleted, created_at, updated_at, last_synced_at
		FROM documents WHERE id = $1
	`, id)

	doc, err := scanDocument(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

// GetAll enumerates the whole index, tombstones included. Used by
// reconciliation diagnostics, never by a serving path.
func (s *PostgresStore) GetAll(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, category, tags, department_id, department_name,
			is_deleted, created_at, updated_at, last_synced_at
		FROM documents
	`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Search executes the ranked, filtered, paginated query. The count and the
// page share one WHERE clause, so totalCount always reflects the same
// predicate as the returned rows. Every filter value is bound as a
// parameter; nothing user-supplied is spliced into the SQL text.
func (s *PostgresStore) Search(ctx context.Context, q SearchQuery) ([]SearchHit, int, error) {
	tsQuery := buildTSQuery(q.Terms)
	if tsQuery == "" {
		return []SearchHit{}, 0, nil
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	pageSize := q.PageSize
	if pageSize < 1 {
		pageSize = 10
	}

	where := []string{"d.is_deleted = FALSE", "d.fts @@ to_tsquery('english', $1)"}
	args := []any{tsQuery}
	argN := 2

	if q.RestrictToDepartment != "" {
		where = append(where, fmt.Sprintf("d.department_id = $%d", argN))
		args = append(args, q.RestrictToDepartment)
		argN++
	}
	if len(q.Categories) > 0 {
		placeholders := make([]string, len(q.Categories))
		for i, category := range q.Categories {
			placeholders[i] = fmt.Sprintf("$%d", argN)
			args = append(args, category)
			argN++
		}
		where = append(where, fmt.Sprintf("d.category IN (%s)", strings.Join(placeholders, ", ")))
	}
	if len(q.DepartmentIDs) > 0 {
		placeholders := make([]string, len(q.DepartmentIDs))
		for i, departmentID := range q.DepartmentIDs {
			placeholders[i] = fmt.Sprintf("$%d", argN)
			args = append(args, departmentID)
			argN++
		}
		where = append(where, fmt.Sprintf("d.department_id IN (%s)", strings.Join(placeholders, ", ")))
	}
	if q.FromDate != nil {
		where = append(where, fmt.Sprintf("d.created_at >= $%d", argN))
		args = append(args, *q.FromDate)
		argN++
	}
	if q.ToDate != nil {
		where = append(where, fmt.Sprintf("d.created_at <= $%d", argN))
		args = append(args, *q.ToDate)
		argN++
	}

	whereSQL := strings.Join(where, " AND ")

	countSQL := "SELECT count(*) FROM documents d WHERE " + whereSQL
	var total int
	if err := s.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("search count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT d.id, d.title, d.description, d.category, d.tags, d.department_id, d.department_name,
			d.is_deleted, d.created_at, d.updated_at, d.last_synced_at,
			ts_rank(d.fts, to_tsquery('english', $1)) AS score
		FROM documents d
		WHERE %s
		%s
		LIMIT %d OFFSET %d`,
		whereSQL, orderClause(q.SortBy, q.Ascending), pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	hits := make([]SearchHit, 0, pageSize)
	for rows.Next() {
		var hit SearchHit
		var description sql.NullString
		var updatedAt sql.NullTime
		if err := rows.Scan(&hit.Document.ID, &hit.Document.Title, &description,
			&hit.Document.Category, &hit.Document.Tags, &hit.Document.DepartmentID,
			&hit.Document.DepartmentName, &hit.Document.IsDeleted, &hit.Document.CreatedAt,
			&updatedAt, &hit.Document.LastSyncedAt, &hit.Score); err != nil {
			return nil, 0, fmt.Errorf("search scan: %w", err)
		}
		if description.Valid {
			hit.Document.Description = &description.String
		}
		if updatedAt.Valid {
			hit.Document.UpdatedAt = &updatedAt.Time
		}
		hits = append(hits, hit)
	}
	return hits, total, rows.Err()
}

// Suggest returns distinct titles of non-deleted rows starting with prefix,
// matched case-insensitively. Prefixes shorter than two characters yield
// nothing; the engine enforces the same bound before the store is reached.
func (s *PostgresStore) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	if len(strings.TrimSpace(prefix)) < 2 {
		return []string{}, nil
	}
	if limit < 1 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT title FROM documents
		WHERE is_deleted = FALSE AND title ILIKE $1
		ORDER BY title
		LIMIT $2
	`, escapeLike(prefix)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("suggest query: %w", err)
	}
	defer rows.Close()

	suggestions := make([]string, 0, limit)
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("suggest scan: %w", err)
		}
		suggestions = append(suggestions, title)
	}
	return suggestions, rows.Err()
}

// Facets counts non-deleted documents per category and per department,
// each ordered by descending count. The aggregation rows are typed; no
// field names are resolved at runtime.
func (s *PostgresStore) Facets(ctx context.Context) ([]CategoryFacet, []DepartmentFacet, error) {
	categoryRows, err := s.db.QueryContext(ctx, `
		SELECT category, count(*) FROM documents
		WHERE is_deleted = FALSE
		GROUP BY category
		ORDER BY count(*) DESC
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("category facets: %w", err)
	}
	defer categoryRows.Close()

	categories := make([]CategoryFacet, 0)
	for categoryRows.Next() {
		var facet CategoryFacet
		if err := categoryRows.Scan(&facet.Category, &facet.Count); err != nil {
			return nil, nil, fmt.Errorf("scan category facet: %w", err)
		}
		categories = append(categories, facet)
	}
	if err := categoryRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate category facets: %w", err)
	}

	departmentRows, err := s.db.QueryContext(ctx, `
		SELECT department_id, department_name, count(*) FROM documents
		WHERE is_deleted = FALSE
		GROUP BY department_id, department_name
		ORDER BY count(*) DESC
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("department facets: %w", err)
	}
	defer departmentRows.Close()

	departments := make([]DepartmentFacet, 0)
	for departmentRows.Next() {
		var facet DepartmentFacet
		if err := departmentRows.Scan(&facet.DepartmentID, &facet.DepartmentName, &facet.Count); err != nil {
			return nil, nil, fmt.Errorf("scan department facet: %w", err)
		}
		departments = append(departments, facet)
	}
	return categories, departments, departmentRows.Err()
}

// buildTSQuery turns a raw query string into an OR-combined prefix tsquery:
// "budget report" becomes "budget:* | report:*". A document matches when any
// token matches any indexed field, which deliberately favors recall.
// Tokens are stripped to Unicode letters and digits, so accented and
// non-Latin terms survive intact while no tsquery metacharacter can; if
// nothing survives, the caller returns no results.
func buildTSQuery(terms string) string {
	var tokens []string
	for _, field := range strings.Fields(terms) {
		token := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, field)
		if token == "" {
			continue
		}
		tokens = append(tokens, token+":*")
	}
	return strings.Join(tokens, " | ")
}

func orderClause(sortBy string, ascending bool) string {
	direction := "DESC"
	if ascending {
		direction = "ASC"
	}
	switch strings.ToLower(sortBy) {
	case "createdat", "date":
		return "ORDER BY d.created_at " + direction
	case "updatedat":
		return "ORDER BY d.updated_at " + direction
	case "title":
		return "ORDER BY d.title " + direction
	default:
		// Relevance ranks descending regardless of the requested direction.
		return "ORDER BY score DESC"
	}
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

func scanDocument(scan func(...any) error) (Document, error) {
	var doc Document
	var description sql.NullString
	var updatedAt sql.NullTime
	if err := scan(&doc.ID, &doc.Title, &description, &doc.Category, &doc.Tags,
		&doc.DepartmentID, &doc.DepartmentName, &doc.IsDeleted, &doc.CreatedAt,
		&updatedAt, &doc.LastSyncedAt); err != nil {
		return Document{}, err
	}
	if description.Valid {
		doc.Description = &description.String
	}
	if updatedAt.Valid {
		doc.UpdatedAt = &updatedAt.Time
	}
	return doc, nil
}
