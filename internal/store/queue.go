package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const queueColumns = `id, organization_id, COALESCE(created_by, ''), COALESCE(post_id, ''), topic, keywords, status, job_id,
	progress, request, result, error, started_at, completed_at, created_at, updated_at`

func scanQueueItem(row rowScanner) (QueueItem, error) {
	var (
		item      QueueItem
		keywords  []byte
		request   []byte
		result    []byte
		started   sql.NullTime
		completed sql.NullTime
	)
	err := row.Scan(&item.ID, &item.OrganizationID, &item.CreatedBy, &item.PostID, &item.Topic, &keywords,
		&item.Status, &item.JobID, &item.Progress, &request, &result, &item.Error, &started, &completed,
		&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return QueueItem{}, err
	}
	item.Keywords = decodeList(keywords)
	item.Request = jsonOr(request, "{}")
	if len(result) > 0 {
		item.Result = result
	}
	item.StartedAt = timePtr(started)
	item.CompletedAt = timePtr(completed)
	return item, nil
}

func (s *PostgresStore) InsertQueueItem(ctx context.Context, item QueueItem) error {
	status := item.Status
	if status == "" {
		status = QueueStatusQueued
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blog_generation_queue (id, organization_id, created_by, post_id, topic, keywords, status, request)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, item.ID, item.OrganizationID, nullString(item.CreatedBy), nullString(item.PostID), item.Topic,
		encodeList(item.Keywords), status, jsonOr(item.Request, "{}"))
	if err != nil {
		return fmt.Errorf("insert queue item: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetQueueItem(ctx context.Context, orgID, itemID string) (QueueItem, error) {
	return scanQueueItem(s.db.QueryRowContext(ctx, `
		SELECT `+queueColumns+` FROM blog_generation_queue WHERE organization_id=$1 AND id=$2
	`, orgID, itemID))
}

func (s *PostgresStore) GetQueueItemByJob(ctx context.Context, orgID, jobID string) (QueueItem, error) {
	return scanQueueItem(s.db.QueryRowContext(ctx, `
		SELECT `+queueColumns+` FROM blog_generation_queue WHERE organization_id=$1 AND job_id=$2
	`, orgID, jobID))
}

func (s *PostgresStore) ListQueue(ctx context.Context, orgID, status string, limit int) ([]QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM blog_generation_queue WHERE organization_id=$1`
	args := []any{orgID}
	if status = strings.TrimSpace(status); status != "" {
		args = append(args, status)
		query += fmt.Sprintf(` AND status=$%d`, len(args))
	}
	args = append(args, clampLimit(limit, 50, 200))
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	defer rows.Close()

	items := []QueueItem{}
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SetQueueStatus applies a status without transition checks. Entering
// generating stamps started_at and terminal statuses stamp completed_at.
func (s *PostgresStore) SetQueueStatus(ctx context.Context, orgID, itemID, status string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE blog_generation_queue
		SET status=$3,
			started_at=CASE WHEN $3='generating' THEN COALESCE(started_at, NOW()) ELSE started_at END,
			completed_at=CASE WHEN $3 IN ('generated', 'published', 'failed', 'cancelled') THEN NOW() ELSE completed_at END,
			updated_at=NOW()
		WHERE organization_id=$1 AND id=$2
	`, orgID, itemID, status)
	if err != nil {
		return fmt.Errorf("set queue status: %w", err)
	}
	return expectAffected(result, "set queue status")
}

func (s *PostgresStore) MarkQueueGenerating(ctx context.Context, orgID, itemID, jobID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE blog_generation_queue
		SET status='generating', job_id=$3, started_at=COALESCE(started_at, NOW()), updated_at=NOW()
		WHERE organization_id=$1 AND id=$2
	`, orgID, itemID, jobID)
	if err != nil {
		return fmt.Errorf("mark queue generating: %w", err)
	}
	return expectAffected(result, "mark queue generating")
}

func (s *PostgresStore) UpdateQueueProgress(ctx context.Context, orgID, itemID string, progress int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE blog_generation_queue SET progress=$3, updated_at=NOW() WHERE organization_id=$1 AND id=$2
	`, orgID, itemID, progress)
	if err != nil {
		return fmt.Errorf("update queue progress: %w", err)
	}
	return nil
}

func (s *PostgresStore) CompleteQueueItem(ctx context.Context, orgID, itemID, postID string, result []byte) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE blog_generation_queue
		SET status='generated', progress=100, post_id=$3, result=$4, error='', completed_at=NOW(), updated_at=NOW()
		WHERE organization_id=$1 AND id=$2
	`, orgID, itemID, nullString(postID), nullJSON(result))
	if err != nil {
		return fmt.Errorf("complete queue item: %w", err)
	}
	return expectAffected(res, "complete queue item")
}

func (s *PostgresStore) FailQueueItem(ctx context.Context, orgID, itemID, message string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE blog_generation_queue
		SET status='failed', error=$3, completed_at=NOW(), updated_at=NOW()
		WHERE organization_id=$1 AND id=$2
	`, orgID, itemID, message)
	if err != nil {
		return fmt.Errorf("fail queue item: %w", err)
	}
	return expectAffected(result, "fail queue item")
}

// FailStaleQueueItems marks queued or generating rows older than cutoff as failed.
func (s *PostgresStore) FailStaleQueueItems(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE blog_generation_queue
		SET status='failed', error='generation timed out', completed_at=NOW(), updated_at=NOW()
		WHERE status IN ('queued', 'generating') AND updated_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("fail stale queue items: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
