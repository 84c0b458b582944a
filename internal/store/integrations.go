package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const integrationColumns = `id, organization_id, provider, name, config, is_default, status, last_tested_at, created_at, updated_at`

func scanIntegration(row rowScanner) (Integration, error) {
	var (
		item   Integration
		config []byte
		tested sql.NullTime
	)
	err := row.Scan(&item.ID, &item.OrganizationID, &item.Provider, &item.Name, &config, &item.IsDefault,
		&item.Status, &tested, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Integration{}, err
	}
	item.Config = jsonOr(config, "{}")
	item.LastTestedAt = timePtr(tested)
	return item, nil
}

func (s *PostgresStore) ListIntegrations(ctx context.Context, orgID string) ([]Integration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+integrationColumns+` FROM integrations WHERE organization_id=$1 ORDER BY is_default DESC, name ASC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	defer rows.Close()

	items := []Integration{}
	for rows.Next() {
		item, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan integration: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetIntegration(ctx context.Context, orgID, integrationID string) (Integration, error) {
	return scanIntegration(s.db.QueryRowContext(ctx, `
		SELECT `+integrationColumns+` FROM integrations WHERE organization_id=$1 AND id=$2
	`, orgID, integrationID))
}

func (s *PostgresStore) GetDefaultIntegration(ctx context.Context, orgID string) (Integration, error) {
	return scanIntegration(s.db.QueryRowContext(ctx, `
		SELECT `+integrationColumns+` FROM integrations WHERE organization_id=$1 AND is_default
	`, orgID))
}

func (s *PostgresStore) InsertIntegration(ctx context.Context, item Integration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO integrations (id, organization_id, provider, name, config, status)
		VALUES ($1, $2, $3, $4, $5, 'untested')
	`, item.ID, item.OrganizationID, item.Provider, item.Name, jsonOr(item.Config, "{}"))
	if err != nil {
		return fmt.Errorf("insert integration: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateIntegration(ctx context.Context, item Integration) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE integrations SET name=$3, config=$4, status='untested', updated_at=NOW()
		WHERE organization_id=$1 AND id=$2
	`, item.OrganizationID, item.ID, item.Name, jsonOr(item.Config, "{}"))
	if err != nil {
		return fmt.Errorf("update integration: %w", err)
	}
	return expectAffected(result, "update integration")
}

func (s *PostgresStore) DeleteIntegration(ctx context.Context, orgID, integrationID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM integrations WHERE organization_id=$1 AND id=$2`, orgID, integrationID)
	if err != nil {
		return fmt.Errorf("delete integration: %w", err)
	}
	return expectAffected(result, "delete integration")
}

// SetDefaultIntegration clears the org's other defaults before marking integrationID.
func (s *PostgresStore) SetDefaultIntegration(ctx context.Context, orgID, integrationID string) error {
	return s.withTx(ctx, "default integration", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE integrations SET is_default=FALSE, updated_at=NOW() WHERE organization_id=$1 AND is_default AND id <> $2
		`, orgID, integrationID); err != nil {
			return fmt.Errorf("clear default integration: %w", err)
		}
		result, err := tx.ExecContext(ctx, `
			UPDATE integrations SET is_default=TRUE, updated_at=NOW() WHERE organization_id=$1 AND id=$2
		`, orgID, integrationID)
		if err != nil {
			return fmt.Errorf("set default integration: %w", err)
		}
		return expectAffected(result, "set default integration")
	})
}

func (s *PostgresStore) RecordIntegrationTest(ctx context.Context, orgID, integrationID, status string, testedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE integrations SET status=$3, last_tested_at=$4, updated_at=NOW() WHERE organization_id=$1 AND id=$2
	`, orgID, integrationID, status, testedAt)
	if err != nil {
		return fmt.Errorf("record integration test: %w", err)
	}
	return nil
}
