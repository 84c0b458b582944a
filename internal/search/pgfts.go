package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS searches blog_posts.fts with plainto_tsquery.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	where := "organization_id = $2 AND fts @@ plainto_tsquery('english', $1)"
	args := []any{q.Text, q.OrganizationID}
	if q.Status != "" {
		where += " AND status = $3"
		args = append(args, q.Status)
	}

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM blog_posts WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, title, slug,
			ts_headline('english', coalesce(NULLIF(excerpt, ''), content), plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			status
		FROM blog_posts
		WHERE %s
		ORDER BY ts_rank(fts, plainto_tsquery('english', $1)) DESC, updated_at DESC
		LIMIT %d OFFSET %d`, where, q.Limit, q.Offset), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Slug, &r.Snippet, &r.Status); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}
