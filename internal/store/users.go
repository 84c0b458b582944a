package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const userColumns = `id, organization_id, email, display_name, role, password_hash, is_email_verified,
	COALESCE(verification_token, ''), verification_expires_at, deactivated_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var (
		user        User
		verifyUntil sql.NullTime
		deactivated sql.NullTime
	)
	err := row.Scan(
		&user.ID, &user.OrganizationID, &user.Email, &user.DisplayName, &user.Role, &user.PasswordHash,
		&user.IsEmailVerified, &user.VerificationToken, &verifyUntil, &deactivated, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	user.VerificationExpiresAt = timePtr(verifyUntil)
	user.DeactivatedAt = timePtr(deactivated)
	return user, nil
}

func insertUser(ctx context.Context, exec interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, user User) error {
	_, err := exec.ExecContext(ctx, `
		INSERT INTO users (id, organization_id, email, display_name, role, password_hash, is_email_verified,
			verification_token, verification_expires_at)
		VALUES ($1, $2, LOWER($3), $4, $5, $6, $7, $8, $9)
	`, user.ID, user.OrganizationID, user.Email, user.DisplayName, user.Role, user.PasswordHash,
		user.IsEmailVerified, nullString(user.VerificationToken), nullTime(user.VerificationExpiresAt))
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	return insertUser(ctx, s.db, user)
}

// CreateOrganizationWithOwner creates the organization and its first user together.
func (s *PostgresStore) CreateOrganizationWithOwner(ctx context.Context, org Organization, user User) error {
	return s.withTx(ctx, "signup", func(tx *sql.Tx) error {
		if err := insertOrganization(ctx, tx, org); err != nil {
			return err
		}
		return insertUser(ctx, tx, user)
	})
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	return scanUser(row)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=LOWER($1)`, strings.TrimSpace(email))
	return scanUser(row)
}

func (s *PostgresStore) GetOrgUser(ctx context.Context, orgID, userID string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE organization_id=$1 AND id=$2`, orgID, userID)
	return scanUser(row)
}

func (s *PostgresStore) ListUsers(ctx context.Context, orgID string) ([]User, error) {
	return s.queryUsers(ctx, `SELECT `+userColumns+` FROM users WHERE organization_id=$1 ORDER BY created_at ASC`, orgID)
}

// ListActiveUsersByRole returns active members of the org holding one of roles.
func (s *PostgresStore) ListActiveUsersByRole(ctx context.Context, orgID string, roles []string) ([]User, error) {
	return s.queryUsers(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE organization_id=$1
			AND deactivated_at IS NULL
			AND role IN (SELECT jsonb_array_elements_text($2::jsonb))
		ORDER BY created_at ASC
	`, orgID, encodeList(roles))
}

func (s *PostgresStore) queryUsers(ctx context.Context, query string, args ...any) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *PostgresStore) UpdateUserRole(ctx context.Context, orgID, userID, role string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET role=$3, updated_at=NOW() WHERE organization_id=$1 AND id=$2`, orgID, userID, role)
	if err != nil {
		return fmt.Errorf("update user role: %w", err)
	}
	return expectAffected(result, "update user role")
}

func (s *PostgresStore) DeactivateUser(ctx context.Context, orgID, userID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET deactivated_at=COALESCE(deactivated_at, NOW()), updated_at=NOW()
		WHERE organization_id=$1 AND id=$2
	`, orgID, userID)
	if err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	return expectAffected(result, "deactivate user")
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW() WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

// VerifyUserEmail consumes an unexpired verification token.
func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	return expectAffected(result, "verify email")
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return expectAffected(result, "update password")
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO password_resets (token, user_id, expires_at) VALUES ($1, $2, $3)`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// LookupRefreshSession returns the user id owning a live refresh session.
func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM refresh_sessions
		WHERE token_hash=$1 AND revoked_at IS NULL AND expires_at > NOW()
	`, tokenHash).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return exists, nil
}

// PurgeExpiredAuth drops revoked tokens and refresh sessions past their expiry.
func (s *PostgresStore) PurgeExpiredAuth(ctx context.Context) (int64, error) {
	var total int64
	for _, query := range []string{
		`DELETE FROM revoked_access_tokens WHERE expires_at < NOW()`,
		`DELETE FROM refresh_sessions WHERE expires_at < NOW()`,
		`DELETE FROM password_resets WHERE expires_at < NOW()`,
	} {
		result, err := s.db.ExecContext(ctx, query)
		if err != nil {
			return total, fmt.Errorf("purge expired auth: %w", err)
		}
		n, _ := result.RowsAffected()
		total += n
	}
	return total, nil
}

func (s *PostgresStore) GetUserByVerificationToken(ctx context.Context, token string) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	return scanUser(row)
}
