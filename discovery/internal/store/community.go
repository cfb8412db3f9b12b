package store

import (
	"context"
	"database/sql"
	"errors"
)

// InsertCommunity adds a discovered community. A duplicate (query, name)
// pair is a no-op — the first-seen record wins. Returns true when a new row
// was inserted.
func (s *Store) InsertCommunity(ctx context.Context, c *Community) (bool, error) {
	if c.DiscoveredAt == 0 {
		c.DiscoveredAt = nowMilli()
	}
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO communities (id, query_id, name, description, url, members_count,
		 relevance_score, is_trackable, discovered_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (query_id, name) DO NOTHING`,
		c.ID, c.QueryID, c.Name, c.Description, c.URL, c.MembersCount,
		c.RelevanceScore, c.IsTrackable, c.DiscoveredAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetCommunity retrieves a community by ID. Returns nil, nil if absent.
func (s *Store) GetCommunity(ctx context.Context, id string) (*Community, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, query_id, name, description, url, members_count,
		 relevance_score, is_trackable, discovered_at
		 FROM communities WHERE id = ?`, id)
	return scanCommunity(row)
}

// ListCommunitiesByQuery returns a query's communities, best score first.
func (s *Store) ListCommunitiesByQuery(ctx context.Context, queryID string) ([]*Community, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, query_id, name, description, url, members_count,
		 relevance_score, is_trackable, discovered_at
		 FROM communities WHERE query_id = ? ORDER BY relevance_score DESC, name`, queryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var communities []*Community
	for rows.Next() {
		c, err := scanCommunityRows(rows)
		if err != nil {
			return nil, err
		}
		communities = append(communities, c)
	}
	return communities, rows.Err()
}

// UpdateCommunityScore sets the relevance score and the trackability hint.
func (s *Store) UpdateCommunityScore(ctx context.Context, id string, score float64, trackable bool) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE communities SET relevance_score = ?, is_trackable = ? WHERE id = ?`,
		score, trackable, id)
	return err
}

// SetCommunityTrackable toggles the user-facing trackability flag.
func (s *Store) SetCommunityTrackable(ctx context.Context, id string, trackable bool) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE communities SET is_trackable = ? WHERE id = ?`, trackable, id)
	return err
}

// CountPostsByCommunity returns the number of ingested posts for a community.
func (s *Store) CountPostsByCommunity(ctx context.Context, communityID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts WHERE community_id = ?`, communityID).Scan(&n)
	return n, err
}

// DeleteCommunity removes a community with its posts, snapshots and tracking
// record in one explicit-cascade transaction.
func (s *Store) DeleteCommunity(ctx context.Context, id string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := deleteCommunityTx(tx, id); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func deleteCommunityTx(tx *sql.Tx, communityID string) error {
	for _, stmt := range []string{
		`DELETE FROM posts WHERE community_id = ?`,
		`DELETE FROM snapshots WHERE community_id = ?`,
		`DELETE FROM trackable_items WHERE community_id = ?`,
		`DELETE FROM communities WHERE id = ?`,
	} {
		if _, err := tx.Exec(stmt, communityID); err != nil {
			return err
		}
	}
	return nil
}

func scanCommunity(row *sql.Row) (*Community, error) {
	var c Community
	err := row.Scan(&c.ID, &c.QueryID, &c.Name, &c.Description, &c.URL,
		&c.MembersCount, &c.RelevanceScore, &c.IsTrackable, &c.DiscoveredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanCommunityRows(rows *sql.Rows) (*Community, error) {
	var c Community
	err := rows.Scan(&c.ID, &c.QueryID, &c.Name, &c.Description, &c.URL,
		&c.MembersCount, &c.RelevanceScore, &c.IsTrackable, &c.DiscoveredAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
