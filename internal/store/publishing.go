package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const publishColumns = `id, organization_id, post_id, COALESCE(integration_id, ''), platform, status, external_id,
	external_url, error, published_at, created_at, updated_at`

func (s *PostgresStore) InsertPublishRecord(ctx context.Context, record PublishRecord) error {
	status := record.Status
	if status == "" {
		status = PublishPending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blog_platform_publishing (id, organization_id, post_id, integration_id, platform, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, record.ID, record.OrganizationID, record.PostID, nullString(record.IntegrationID), record.Platform, status)
	if err != nil {
		return fmt.Errorf("insert publish record: %w", err)
	}
	return nil
}

func (s *PostgresStore) CompletePublishRecord(ctx context.Context, recordID, externalID, externalURL string, publishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE blog_platform_publishing
		SET status='published', external_id=$2, external_url=$3, error='', published_at=$4, updated_at=NOW()
		WHERE id=$1
	`, recordID, externalID, externalURL, publishedAt)
	if err != nil {
		return fmt.Errorf("complete publish record: %w", err)
	}
	return nil
}

func (s *PostgresStore) FailPublishRecord(ctx context.Context, recordID, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE blog_platform_publishing SET status='failed', error=$2, updated_at=NOW() WHERE id=$1
	`, recordID, message)
	if err != nil {
		return fmt.Errorf("fail publish record: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPublishRecords(ctx context.Context, orgID, postID string) ([]PublishRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+publishColumns+`
		FROM blog_platform_publishing
		WHERE organization_id=$1 AND post_id=$2
		ORDER BY created_at DESC
	`, orgID, postID)
	if err != nil {
		return nil, fmt.Errorf("list publish records: %w", err)
	}
	defer rows.Close()

	items := []PublishRecord{}
	for rows.Next() {
		var (
			item      PublishRecord
			published sql.NullTime
		)
		if err := rows.Scan(&item.ID, &item.OrganizationID, &item.PostID, &item.IntegrationID, &item.Platform,
			&item.Status, &item.ExternalID, &item.ExternalURL, &item.Error, &published, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan publish record: %w", err)
		}
		item.PublishedAt = timePtr(published)
		items = append(items, item)
	}
	return items, rows.Err()
}
