package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ReplaceClusters swaps the org's content clusters for clusters in one transaction.
func (s *PostgresStore) ReplaceClusters(ctx context.Context, orgID string, clusters []ContentCluster) error {
	return s.withTx(ctx, "replace clusters", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM content_clusters WHERE organization_id=$1`, orgID); err != nil {
			return fmt.Errorf("clear clusters: %w", err)
		}
		for _, cluster := range clusters {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO content_clusters (id, organization_id, name, pillar_post_id, topic_terms, post_ids, coherence)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, cluster.ID, orgID, cluster.Name, nullString(cluster.PillarPostID), encodeList(cluster.TopicTerms),
				encodeList(cluster.PostIDs), cluster.Coherence)
			if err != nil {
				return fmt.Errorf("insert cluster %s: %w", cluster.Name, err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) ListClusters(ctx context.Context, orgID string) ([]ContentCluster, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, name, COALESCE(pillar_post_id, ''), topic_terms, post_ids, coherence, created_at
		FROM content_clusters
		WHERE organization_id=$1
		ORDER BY jsonb_array_length(post_ids) DESC, name ASC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}
	defer rows.Close()

	items := []ContentCluster{}
	for rows.Next() {
		var (
			item  ContentCluster
			terms []byte
			posts []byte
		)
		if err := rows.Scan(&item.ID, &item.OrganizationID, &item.Name, &item.PillarPostID, &terms, &posts,
			&item.Coherence, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cluster: %w", err)
		}
		item.TopicTerms = decodeList(terms)
		item.PostIDs = decodeList(posts)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) ListLinks(ctx context.Context, orgID string) ([]InternalLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, source_post_id, target_post_id, anchor_text, score, status, created_at, updated_at
		FROM internal_link_graph
		WHERE organization_id=$1
		ORDER BY score DESC, created_at ASC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	items := []InternalLink{}
	for rows.Next() {
		var item InternalLink
		if err := rows.Scan(&item.ID, &item.OrganizationID, &item.SourcePostID, &item.TargetPostID, &item.AnchorText,
			&item.Score, &item.Status, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpsertLink records a link keyed on (source, target), returning the stored row id.
func (s *PostgresStore) UpsertLink(ctx context.Context, link InternalLink) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO internal_link_graph (id, organization_id, source_post_id, target_post_id, anchor_text, score, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source_post_id, target_post_id)
		DO UPDATE SET anchor_text=EXCLUDED.anchor_text, score=EXCLUDED.score, status=EXCLUDED.status, updated_at=NOW()
		RETURNING id
	`, link.ID, link.OrganizationID, link.SourcePostID, link.TargetPostID, link.AnchorText, link.Score, link.Status).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert link: %w", err)
	}
	return id, nil
}
