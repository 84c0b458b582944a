package store

import (
	"context"
	"database/sql"
	"fmt"
)

const organizationColumns = `id, name, slug, plan, settings, created_at, updated_at`

func scanOrganization(row rowScanner) (Organization, error) {
	var (
		org      Organization
		settings []byte
	)
	if err := row.Scan(&org.ID, &org.Name, &org.Slug, &org.Plan, &settings, &org.CreatedAt, &org.UpdatedAt); err != nil {
		return Organization{}, err
	}
	org.Settings = jsonOr(settings, "{}")
	return org, nil
}

func insertOrganization(ctx context.Context, exec interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, org Organization) error {
	plan := org.Plan
	if plan == "" {
		plan = "free"
	}
	_, err := exec.ExecContext(ctx, `
		INSERT INTO organizations (id, name, slug, plan, settings)
		VALUES ($1, $2, $3, $4, $5)
	`, org.ID, org.Name, org.Slug, plan, jsonOr(org.Settings, "{}"))
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert organization: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertOrganization(ctx context.Context, org Organization) error {
	return insertOrganization(ctx, s.db, org)
}

func (s *PostgresStore) GetOrganization(ctx context.Context, orgID string) (Organization, error) {
	return scanOrganization(s.db.QueryRowContext(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE id=$1`, orgID))
}

func (s *PostgresStore) ListOrganizations(ctx context.Context) ([]Organization, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+organizationColumns+` FROM organizations ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	orgs := []Organization{}
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

func (s *PostgresStore) UpdateOrganization(ctx context.Context, org Organization) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE organizations SET name=$2, plan=$3, settings=$4, updated_at=NOW() WHERE id=$1
	`, org.ID, org.Name, org.Plan, jsonOr(org.Settings, "{}"))
	if err != nil {
		return fmt.Errorf("update organization: %w", err)
	}
	return expectAffected(result, "update organization")
}

func (s *PostgresStore) DeleteOrganization(ctx context.Context, orgID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM organizations WHERE id=$1`, orgID)
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	return expectAffected(result, "delete organization")
}
