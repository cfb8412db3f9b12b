package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/hazyhaar/redveille/dbopen"
)

// ClaimSnapshot atomically creates a pending snapshot for a community iff no
// snapshot for that community is currently pending or in_progress. This is
// the only cross-worker coordination point: concurrent scheduler passes race
// here and exactly one wins. Returns nil, nil when the claim is lost.
func (s *Store) ClaimSnapshot(ctx context.Context, id, communityID string) (*Snapshot, error) {
	now := nowMilli()
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO snapshots (id, community_id, status, started_at)
		 SELECT ?, ?, ?, ?
		 WHERE NOT EXISTS (
		     SELECT 1 FROM snapshots
		     WHERE community_id = ? AND status IN (?, ?))`,
		id, communityID, SnapshotPending, now,
		communityID, SnapshotPending, SnapshotInProgress)
	if err != nil {
		// The partial unique index backstops the NOT EXISTS under races;
		// losing that way is still just a lost claim.
		if isUniqueViolation(err) {
			return nil, nil
		}
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return &Snapshot{
		ID:          id,
		CommunityID: communityID,
		Status:      SnapshotPending,
		StartedAt:   now,
	}, nil
}

// StartSnapshot moves a pending snapshot to in_progress. Returns false if
// the snapshot was not pending (already started, swept, or terminal).
func (s *Store) StartSnapshot(ctx context.Context, id string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE snapshots SET status = ? WHERE id = ? AND status = ?`,
		SnapshotInProgress, id, SnapshotPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CompleteSnapshot terminally completes a snapshot and advances the owning
// community's last_scraped_at to the snapshot's completion time. Both writes
// happen in one transaction: there is no window where the snapshot reads
// completed but the tracking record still looks due. Returns false when the
// snapshot was not pending/in_progress (terminal rows never move).
func (s *Store) CompleteSnapshot(ctx context.Context, id string, postsScraped int) (bool, error) {
	now := nowMilli()
	var moved bool
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		moved = false
		res, err := tx.Exec(
			`UPDATE snapshots SET status = ?, completed_at = ?, posts_scraped = ?
			 WHERE id = ? AND status IN (?, ?)`,
			SnapshotCompleted, now, postsScraped, id, SnapshotPending, SnapshotInProgress)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		moved = true
		_, err = tx.Exec(
			`UPDATE trackable_items SET last_scraped_at = ?
			 WHERE community_id = (SELECT community_id FROM snapshots WHERE id = ?)`,
			now, id)
		return err
	})
	return moved, err
}

// FailSnapshot terminally fails a snapshot, recording the error message.
// last_scraped_at is deliberately left untouched so the item stays due and
// self-heals on the next scheduling pass. Returns false when the snapshot
// was already terminal.
func (s *Store) FailSnapshot(ctx context.Context, id, errMsg string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE snapshots SET status = ?, completed_at = ?, error_message = ?
		 WHERE id = ? AND status IN (?, ?)`,
		SnapshotFailed, nowMilli(), errMsg, id, SnapshotPending, SnapshotInProgress)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SweepStaleSnapshots force-fails snapshots stuck in pending/in_progress
// longer than timeout (timeout-as-cancellation — no signal is sent to the
// worker). Returns the IDs of the swept snapshots.
func (s *Store) SweepStaleSnapshots(ctx context.Context, timeout time.Duration) ([]string, error) {
	cutoff := nowMilli() - timeout.Milliseconds()
	rows, err := s.DB.QueryContext(ctx,
		`UPDATE snapshots SET status = ?, completed_at = ?, error_message = ?
		 WHERE status IN (?, ?) AND started_at < ?
		 RETURNING id`,
		SnapshotFailed, nowMilli(), "snapshot timed out", SnapshotPending, SnapshotInProgress, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkWebhookDelivered flips webhook_delivered false→true, only for terminal
// snapshots. Returns false when the snapshot is still running or already
// marked — the flag transitions exactly once.
func (s *Store) MarkWebhookDelivered(ctx context.Context, id string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE snapshots SET webhook_delivered = 1
		 WHERE id = ? AND webhook_delivered = 0 AND status IN (?, ?)`,
		id, SnapshotCompleted, SnapshotFailed)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetSnapshot retrieves a snapshot by ID. Returns nil, nil if absent.
func (s *Store) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, community_id, status, started_at, completed_at,
		 posts_scraped, error_message, webhook_delivered
		 FROM snapshots WHERE id = ?`, id)
	return scanSnapshot(row)
}

// ListSnapshotsByCommunity returns a community's snapshots, newest first.
func (s *Store) ListSnapshotsByCommunity(ctx context.Context, communityID string) ([]*Snapshot, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, community_id, status, started_at, completed_at,
		 posts_scraped, error_message, webhook_delivered
		 FROM snapshots WHERE community_id = ? ORDER BY started_at DESC`, communityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []*Snapshot
	for rows.Next() {
		var sn Snapshot
		if err := rows.Scan(&sn.ID, &sn.CommunityID, &sn.Status, &sn.StartedAt,
			&sn.CompletedAt, &sn.PostsScraped, &sn.ErrorMessage, &sn.WebhookDelivered); err != nil {
			return nil, err
		}
		snaps = append(snaps, &sn)
	}
	return snaps, rows.Err()
}

// ListUndeliveredSnapshots returns terminal snapshots whose webhook has not
// been delivered yet, oldest first — the administrative retry surface.
func (s *Store) ListUndeliveredSnapshots(ctx context.Context, limit int) ([]*Snapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, community_id, status, started_at, completed_at,
		 posts_scraped, error_message, webhook_delivered
		 FROM snapshots
		 WHERE webhook_delivered = 0 AND status IN (?, ?)
		 ORDER BY started_at ASC LIMIT ?`,
		SnapshotCompleted, SnapshotFailed, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []*Snapshot
	for rows.Next() {
		var sn Snapshot
		if err := rows.Scan(&sn.ID, &sn.CommunityID, &sn.Status, &sn.StartedAt,
			&sn.CompletedAt, &sn.PostsScraped, &sn.ErrorMessage, &sn.WebhookDelivered); err != nil {
			return nil, err
		}
		snaps = append(snaps, &sn)
	}
	return snaps, rows.Err()
}

func scanSnapshot(row *sql.Row) (*Snapshot, error) {
	var sn Snapshot
	err := row.Scan(&sn.ID, &sn.CommunityID, &sn.Status, &sn.StartedAt,
		&sn.CompletedAt, &sn.PostsScraped, &sn.ErrorMessage, &sn.WebhookDelivered)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sn, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
