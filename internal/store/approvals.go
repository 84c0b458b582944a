package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const approvalColumns = `a.id, a.organization_id, a.post_id, COALESCE(p.title, ''), a.requested_by, COALESCE(a.reviewer_id, ''),
	a.status, a.comment, a.decided_at, a.created_at, a.updated_at`

func scanApproval(row rowScanner) (Approval, error) {
	var (
		item    Approval
		decided sql.NullTime
	)
	err := row.Scan(&item.ID, &item.OrganizationID, &item.PostID, &item.PostTitle, &item.RequestedBy, &item.ReviewerID,
		&item.Status, &item.Comment, &decided, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Approval{}, err
	}
	item.DecidedAt = timePtr(decided)
	return item, nil
}

// RequestApproval inserts a pending approval and moves the post into review.
func (s *PostgresStore) RequestApproval(ctx context.Context, approval Approval) error {
	return s.withTx(ctx, "request approval", func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE blog_posts SET status='in_review', updated_at=NOW() WHERE organization_id=$1 AND id=$2
		`, approval.OrganizationID, approval.PostID)
		if err != nil {
			return fmt.Errorf("mark post in review: %w", err)
		}
		if err := expectAffected(result, "mark post in review"); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO blog_approvals (id, organization_id, post_id, requested_by, reviewer_id, status, comment)
			VALUES ($1, $2, $3, $4, $5, 'pending', $6)
		`, approval.ID, approval.OrganizationID, approval.PostID, approval.RequestedBy, nullString(approval.ReviewerID), approval.Comment)
		if err != nil {
			return fmt.Errorf("insert approval: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) GetApproval(ctx context.Context, orgID, approvalID string) (Approval, error) {
	return scanApproval(s.db.QueryRowContext(ctx, `
		SELECT `+approvalColumns+`
		FROM blog_approvals a
		LEFT JOIN blog_posts p ON p.id = a.post_id
		WHERE a.organization_id=$1 AND a.id=$2
	`, orgID, approvalID))
}

func (s *PostgresStore) ListApprovals(ctx context.Context, orgID, status string) ([]Approval, error) {
	query := `
		SELECT ` + approvalColumns + `
		FROM blog_approvals a
		LEFT JOIN blog_posts p ON p.id = a.post_id
		WHERE a.organization_id=$1`
	args := []any{orgID}
	if status = strings.TrimSpace(status); status != "" {
		args = append(args, status)
		query += ` AND a.status=$2`
	}
	query += ` ORDER BY a.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	items := []Approval{}
	for rows.Next() {
		item, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// DecideApproval records the decision and moves the post to postStatus.
func (s *PostgresStore) DecideApproval(ctx context.Context, orgID, approvalID, reviewerID, status, comment, postStatus string) error {
	return s.withTx(ctx, "decide approval", func(tx *sql.Tx) error {
		var postID string
		err := tx.QueryRowContext(ctx, `
			UPDATE blog_approvals
			SET status=$3, comment=$4, reviewer_id=$5, decided_at=NOW(), updated_at=NOW()
			WHERE organization_id=$1 AND id=$2
			RETURNING post_id
		`, orgID, approvalID, status, comment, reviewerID).Scan(&postID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE blog_posts SET status=$3, updated_at=NOW() WHERE organization_id=$1 AND id=$2
		`, orgID, postID, postStatus); err != nil {
			return fmt.Errorf("update post status: %w", err)
		}
		return nil
	})
}
