package store

import (
	"context"
	"fmt"
)

const mediaColumns = `id, organization_id, COALESCE(uploaded_by, ''), provider, public_id, url, file_name, mime_type, bytes,
	width, height, folder, created_at`

func scanMediaAsset(row rowScanner) (MediaAsset, error) {
	var item MediaAsset
	err := row.Scan(&item.ID, &item.OrganizationID, &item.UploadedBy, &item.Provider, &item.PublicID, &item.URL,
		&item.FileName, &item.MimeType, &item.Bytes, &item.Width, &item.Height, &item.Folder, &item.CreatedAt)
	return item, err
}

func (s *PostgresStore) InsertMediaAsset(ctx context.Context, item MediaAsset) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO media_assets (id, organization_id, uploaded_by, provider, public_id, url, file_name, mime_type,
			bytes, width, height, folder)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, item.ID, item.OrganizationID, nullString(item.UploadedBy), item.Provider, item.PublicID, item.URL,
		item.FileName, item.MimeType, item.Bytes, item.Width, item.Height, item.Folder)
	if err != nil {
		return fmt.Errorf("insert media asset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMediaAsset(ctx context.Context, orgID, assetID string) (MediaAsset, error) {
	return scanMediaAsset(s.db.QueryRowContext(ctx, `
		SELECT `+mediaColumns+` FROM media_assets WHERE organization_id=$1 AND id=$2
	`, orgID, assetID))
}

func (s *PostgresStore) ListMediaAssets(ctx context.Context, orgID string, limit int) ([]MediaAsset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+mediaColumns+` FROM media_assets WHERE organization_id=$1 ORDER BY created_at DESC LIMIT $2
	`, orgID, clampLimit(limit, 100, 500))
	if err != nil {
		return nil, fmt.Errorf("list media assets: %w", err)
	}
	defer rows.Close()

	items := []MediaAsset{}
	for rows.Next() {
		item, err := scanMediaAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media asset: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) DeleteMediaAsset(ctx context.Context, orgID, assetID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM media_assets WHERE organization_id=$1 AND id=$2`, orgID, assetID)
	if err != nil {
		return fmt.Errorf("delete media asset: %w", err)
	}
	return expectAffected(result, "delete media asset")
}
