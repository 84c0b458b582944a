package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const postColumns = `id, organization_id, COALESCE(created_by, ''), title, slug, content, excerpt, status, keywords,
	metadata, seo_score, word_count, featured_image_url, published_url, published_at, created_at, updated_at`

func scanPost(row rowScanner) (BlogPost, error) {
	var (
		post        BlogPost
		keywords    []byte
		metadata    []byte
		publishedAt sql.NullTime
	)
	err := row.Scan(
		&post.ID, &post.OrganizationID, &post.CreatedBy, &post.Title, &post.Slug, &post.Content, &post.Excerpt,
		&post.Status, &keywords, &metadata, &post.SEOScore, &post.WordCount, &post.FeaturedImageURL,
		&post.PublishedURL, &publishedAt, &post.CreatedAt, &post.UpdatedAt,
	)
	if err != nil {
		return BlogPost{}, err
	}
	post.Keywords = decodeList(keywords)
	post.Metadata = jsonOr(metadata, "{}")
	post.PublishedAt = timePtr(publishedAt)
	return post, nil
}

func (s *PostgresStore) InsertPost(ctx context.Context, post BlogPost) error {
	status := post.Status
	if status == "" {
		status = PostStatusDraft
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blog_posts (id, organization_id, created_by, title, slug, content, excerpt, status, keywords,
			metadata, seo_score, word_count, featured_image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, post.ID, post.OrganizationID, nullString(post.CreatedBy), post.Title, post.Slug, post.Content, post.Excerpt,
		status, encodeList(post.Keywords), jsonOr(post.Metadata, "{}"), post.SEOScore, post.WordCount, post.FeaturedImageURL)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPost(ctx context.Context, orgID, postID string) (BlogPost, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM blog_posts WHERE organization_id=$1 AND id=$2`, orgID, postID)
	return scanPost(row)
}

func (s *PostgresStore) ListPosts(ctx context.Context, orgID string, filter PostFilter) ([]BlogPost, error) {
	limit := clampLimit(filter.Limit, 50, 200)
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + postColumns + ` FROM blog_posts WHERE organization_id=$1`
	args := []any{orgID}
	if status := strings.TrimSpace(filter.Status); status != "" {
		args = append(args, status)
		query += fmt.Sprintf(` AND status=$%d`, len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(` ORDER BY updated_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	return s.queryPosts(ctx, query, args...)
}

// ListAllPosts returns every post of the org, oldest first.
func (s *PostgresStore) ListAllPosts(ctx context.Context, orgID string) ([]BlogPost, error) {
	return s.queryPosts(ctx, `SELECT `+postColumns+` FROM blog_posts WHERE organization_id=$1 ORDER BY created_at ASC, id ASC`, orgID)
}

// ListPostsForIndex returns posts across all orgs for search reindexing.
func (s *PostgresStore) ListPostsForIndex(ctx context.Context) ([]BlogPost, error) {
	return s.queryPosts(ctx, `SELECT `+postColumns+` FROM blog_posts WHERE status <> 'archived' ORDER BY updated_at DESC`)
}

func (s *PostgresStore) queryPosts(ctx context.Context, query string, args ...any) ([]BlogPost, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	posts := []BlogPost{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// UpdatePost writes the editable columns of post back to its row.
func (s *PostgresStore) UpdatePost(ctx context.Context, post BlogPost) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE blog_posts
		SET title=$3, slug=$4, content=$5, excerpt=$6, status=$7, keywords=$8, metadata=$9, seo_score=$10,
			word_count=$11, featured_image_url=$12, updated_at=NOW()
		WHERE organization_id=$1 AND id=$2
	`, post.OrganizationID, post.ID, post.Title, post.Slug, post.Content, post.Excerpt, post.Status,
		encodeList(post.Keywords), jsonOr(post.Metadata, "{}"), post.SEOScore, post.WordCount, post.FeaturedImageURL)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	return expectAffected(result, "update post")
}

func (s *PostgresStore) UpdatePostStatus(ctx context.Context, orgID, postID, status string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE blog_posts SET status=$3, updated_at=NOW() WHERE organization_id=$1 AND id=$2
	`, orgID, postID, status)
	if err != nil {
		return fmt.Errorf("update post status: %w", err)
	}
	return expectAffected(result, "update post status")
}

func (s *PostgresStore) MarkPostPublished(ctx context.Context, orgID, postID, url string, publishedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE blog_posts
		SET status='published', published_url=$3, published_at=$4, updated_at=NOW()
		WHERE organization_id=$1 AND id=$2
	`, orgID, postID, url, publishedAt)
	if err != nil {
		return fmt.Errorf("mark post published: %w", err)
	}
	return expectAffected(result, "mark post published")
}

func (s *PostgresStore) DeletePost(ctx context.Context, orgID, postID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM blog_posts WHERE organization_id=$1 AND id=$2`, orgID, postID)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return expectAffected(result, "delete post")
}
