package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// GetKeywordCache returns the cached payload for key when it has not expired.
func (s *PostgresStore) GetKeywordCache(ctx context.Context, key KeywordCacheKey) (KeywordCacheEntry, error) {
	var (
		entry KeywordCacheEntry
		data  []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT keyword, location, language, search_type, data, expires_at, updated_at
		FROM keyword_cache
		WHERE keyword=$1 AND location=$2 AND language=$3 AND search_type=$4 AND expires_at > NOW()
	`, key.Keyword, key.Location, key.Language, key.SearchType).Scan(
		&entry.Keyword, &entry.Location, &entry.Language, &entry.SearchType, &data, &entry.ExpiresAt, &entry.UpdatedAt,
	)
	if err != nil {
		return KeywordCacheEntry{}, err
	}
	entry.Data = data
	return entry, nil
}

func (s *PostgresStore) PutKeywordCache(ctx context.Context, key KeywordCacheKey, data []byte, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO keyword_cache (keyword, location, language, search_type, data, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (keyword, location, language, search_type)
		DO UPDATE SET data=EXCLUDED.data, expires_at=EXCLUDED.expires_at, updated_at=NOW()
	`, key.Keyword, key.Location, key.Language, key.SearchType, data, expiresAt)
	if err != nil {
		return fmt.Errorf("put keyword cache: %w", err)
	}
	return nil
}

func (s *PostgresStore) PurgeExpiredKeywordCache(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM keyword_cache WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("purge keyword cache: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// SaveKeywordResearch stores the research row and its terms atomically.
func (s *PostgresStore) SaveKeywordResearch(ctx context.Context, research KeywordResearch) error {
	return s.withTx(ctx, "keyword research", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO keyword_research_results (id, organization_id, created_by, name, seed_keywords, location,
				language, search_type, summary)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, research.ID, research.OrganizationID, nullString(research.CreatedBy), research.Name,
			encodeList(research.SeedKeywords), research.Location, research.Language, research.SearchType,
			jsonOr(research.Summary, "{}"))
		if err != nil {
			return fmt.Errorf("insert keyword research: %w", err)
		}
		for _, term := range research.Terms {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO keyword_terms (id, research_id, organization_id, keyword, search_volume, cpc, competition,
					competition_index, difficulty, search_intent, trend)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			`, term.ID, research.ID, research.OrganizationID, term.Keyword, term.SearchVolume, term.CPC,
				term.Competition, term.CompetitionIndex, term.Difficulty, term.SearchIntent, jsonOr(term.Trend, "[]"))
			if err != nil {
				return fmt.Errorf("insert keyword term %q: %w", term.Keyword, err)
			}
		}
		return nil
	})
}

const researchColumns = `id, organization_id, COALESCE(created_by, ''), name, seed_keywords, location, language,
	search_type, summary, created_at`

func scanResearch(row rowScanner) (KeywordResearch, error) {
	var (
		item    KeywordResearch
		seeds   []byte
		summary []byte
	)
	err := row.Scan(&item.ID, &item.OrganizationID, &item.CreatedBy, &item.Name, &seeds, &item.Location,
		&item.Language, &item.SearchType, &summary, &item.CreatedAt)
	if err != nil {
		return KeywordResearch{}, err
	}
	item.SeedKeywords = decodeList(seeds)
	item.Summary = jsonOr(summary, "{}")
	return item, nil
}

func (s *PostgresStore) ListKeywordResearch(ctx context.Context, orgID string, limit int) ([]KeywordResearch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+researchColumns+`
		FROM keyword_research_results
		WHERE organization_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, orgID, clampLimit(limit, 50, 200))
	if err != nil {
		return nil, fmt.Errorf("list keyword research: %w", err)
	}
	defer rows.Close()

	items := []KeywordResearch{}
	for rows.Next() {
		item, err := scanResearch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan keyword research: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetKeywordResearch loads the research row together with its terms.
func (s *PostgresStore) GetKeywordResearch(ctx context.Context, orgID, researchID string) (KeywordResearch, error) {
	item, err := scanResearch(s.db.QueryRowContext(ctx, `
		SELECT `+researchColumns+` FROM keyword_research_results WHERE organization_id=$1 AND id=$2
	`, orgID, researchID))
	if err != nil {
		return KeywordResearch{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, research_id, organization_id, keyword, search_volume, cpc, competition, competition_index,
			difficulty, search_intent, trend
		FROM keyword_terms
		WHERE research_id=$1
		ORDER BY search_volume DESC, keyword ASC
	`, researchID)
	if err != nil {
		return KeywordResearch{}, fmt.Errorf("list keyword terms: %w", err)
	}
	defer rows.Close()

	item.Terms = []KeywordTerm{}
	for rows.Next() {
		var (
			term  KeywordTerm
			trend []byte
		)
		if err := rows.Scan(&term.ID, &term.ResearchID, &term.OrganizationID, &term.Keyword, &term.SearchVolume,
			&term.CPC, &term.Competition, &term.CompetitionIndex, &term.Difficulty, &term.SearchIntent, &trend); err != nil {
			return KeywordResearch{}, fmt.Errorf("scan keyword term: %w", err)
		}
		term.Trend = jsonOr(trend, "[]")
		item.Terms = append(item.Terms, term)
	}
	return item, rows.Err()
}

func (s *PostgresStore) DeleteKeywordResearch(ctx context.Context, orgID, researchID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM keyword_research_results WHERE organization_id=$1 AND id=$2`, orgID, researchID)
	if err != nil {
		return fmt.Errorf("delete keyword research: %w", err)
	}
	return expectAffected(result, "delete keyword research")
}
