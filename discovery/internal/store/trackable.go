package store

import (
	"context"
	"database/sql"
	"errors"
)

// InsertTrackable promotes a community into tracking. A community already
// tracked (by anyone — tracking is one-to-one with the community) is a
// conflict: no row is written and false is returned.
func (s *Store) InsertTrackable(ctx context.Context, item *TrackableItem) (bool, error) {
	if item.CreatedAt == 0 {
		item.CreatedAt = nowMilli()
	}
	if item.ScrapeFrequencyHours <= 0 {
		item.ScrapeFrequencyHours = 24
	}
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO trackable_items (id, community_id, user_id, tracking_enabled,
		 last_scraped_at, scrape_frequency_hours, created_at)
		 VALUES (?, ?, ?, ?, NULL, ?, ?)
		 ON CONFLICT DO NOTHING`,
		item.ID, item.CommunityID, item.UserID, item.TrackingEnabled,
		item.ScrapeFrequencyHours, item.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetTrackable retrieves a tracking record by ID. Returns nil, nil if absent.
func (s *Store) GetTrackable(ctx context.Context, id string) (*TrackableItem, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, community_id, user_id, tracking_enabled, last_scraped_at,
		 scrape_frequency_hours, created_at
		 FROM trackable_items WHERE id = ?`, id)
	return scanTrackable(row)
}

// GetTrackableByCommunity returns the tracking record for a community, or
// nil, nil when the community is not tracked.
func (s *Store) GetTrackableByCommunity(ctx context.Context, communityID string) (*TrackableItem, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, community_id, user_id, tracking_enabled, last_scraped_at,
		 scrape_frequency_hours, created_at
		 FROM trackable_items WHERE community_id = ?`, communityID)
	return scanTrackable(row)
}

// ListTrackablesByUser returns a user's tracking records, newest first.
func (s *Store) ListTrackablesByUser(ctx context.Context, userID string) ([]*TrackableItem, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, community_id, user_id, tracking_enabled, last_scraped_at,
		 scrape_frequency_hours, created_at
		 FROM trackable_items WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*TrackableItem
	for rows.Next() {
		item, err := scanTrackableRows(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SetTrackingEnabled flips tracking on or off. Idempotent; history is kept.
func (s *Store) SetTrackingEnabled(ctx context.Context, id string, enabled bool) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE trackable_items SET tracking_enabled = ? WHERE id = ?`, enabled, id)
	return err
}

// DueTrackables returns enabled items whose next scrape time has passed at
// the given instant: never scraped, or last scraped at least
// scrape_frequency_hours ago.
func (s *Store) DueTrackables(ctx context.Context, now int64) ([]*TrackableItem, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, community_id, user_id, tracking_enabled, last_scraped_at,
		 scrape_frequency_hours, created_at
		 FROM trackable_items
		 WHERE tracking_enabled = 1
		   AND (last_scraped_at IS NULL OR ? - last_scraped_at >= scrape_frequency_hours * 3600000)
		 ORDER BY last_scraped_at ASC NULLS FIRST`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*TrackableItem
	for rows.Next() {
		item, err := scanTrackableRows(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanTrackable(row *sql.Row) (*TrackableItem, error) {
	var item TrackableItem
	err := row.Scan(&item.ID, &item.CommunityID, &item.UserID, &item.TrackingEnabled,
		&item.LastScrapedAt, &item.ScrapeFrequencyHours, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func scanTrackableRows(rows *sql.Rows) (*TrackableItem, error) {
	var item TrackableItem
	err := rows.Scan(&item.ID, &item.CommunityID, &item.UserID, &item.TrackingEnabled,
		&item.LastScrapedAt, &item.ScrapeFrequencyHours, &item.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &item, nil
}
