package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hazyhaar/redveille/dbopen"
)

// InsertQuery adds a new query in pending status.
func (s *Store) InsertQuery(ctx context.Context, q *Query) error {
	now := nowMilli()
	if q.CreatedAt == 0 {
		q.CreatedAt = now
	}
	if q.UpdatedAt == 0 {
		q.UpdatedAt = now
	}
	if q.Status == "" {
		q.Status = QueryPending
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO queries (id, user_id, search_text, status, created_at, updated_at, completed_at, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.UserID, q.SearchText, q.Status, q.CreatedAt, q.UpdatedAt, q.CompletedAt, q.ErrorMessage)
	return err
}

// GetQuery retrieves a query by ID. Returns nil, nil if absent.
func (s *Store) GetQuery(ctx context.Context, id string) (*Query, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, user_id, search_text, status, created_at, updated_at, completed_at, error_message
		 FROM queries WHERE id = ?`, id)
	return scanQuery(row)
}

// ListQueriesByUser returns a user's queries, newest first.
func (s *Store) ListQueriesByUser(ctx context.Context, userID string) ([]*Query, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, user_id, search_text, status, created_at, updated_at, completed_at, error_message
		 FROM queries WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var queries []*Query
	for rows.Next() {
		q, err := scanQueryRows(rows)
		if err != nil {
			return nil, err
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

// MarkQueryProcessing moves a query from pending to processing. Returns
// false if the query was not pending — terminal rows never move.
func (s *Store) MarkQueryProcessing(ctx context.Context, id string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE queries SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		QueryProcessing, nowMilli(), id, QueryPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CompleteQuery moves a processing query to completed and stamps
// completed_at. Returns false if the query was not processing.
func (s *Store) CompleteQuery(ctx context.Context, id string) (bool, error) {
	now := nowMilli()
	res, err := s.DB.ExecContext(ctx,
		`UPDATE queries SET status = ?, completed_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		QueryCompleted, now, now, id, QueryProcessing)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// FailQuery moves a non-terminal query to failed, stamping completed_at and
// error_message. Returns false if the query was already terminal.
func (s *Store) FailQuery(ctx context.Context, id, errMsg string) (bool, error) {
	now := nowMilli()
	res, err := s.DB.ExecContext(ctx,
		`UPDATE queries SET status = ?, completed_at = ?, updated_at = ?, error_message = ?
		 WHERE id = ? AND status IN (?, ?)`,
		QueryFailed, now, now, errMsg, id, QueryPending, QueryProcessing)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteQuery removes a query and its communities (with their posts,
// snapshots and tracking records) in one explicit-cascade transaction.
func (s *Store) DeleteQuery(ctx context.Context, id string) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		return deleteQueryTx(tx, id)
	})
}

func deleteQueryTx(tx *sql.Tx, queryID string) error {
	rows, err := tx.Query(`SELECT id FROM communities WHERE query_id = ?`, queryID)
	if err != nil {
		return err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, cid := range ids {
		if err := deleteCommunityTx(tx, cid); err != nil {
			return err
		}
	}
	_, err = tx.Exec(`DELETE FROM queries WHERE id = ?`, queryID)
	return err
}

func scanQuery(row *sql.Row) (*Query, error) {
	var q Query
	err := row.Scan(&q.ID, &q.UserID, &q.SearchText, &q.Status,
		&q.CreatedAt, &q.UpdatedAt, &q.CompletedAt, &q.ErrorMessage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func scanQueryRows(rows *sql.Rows) (*Query, error) {
	var q Query
	err := rows.Scan(&q.ID, &q.UserID, &q.SearchText, &q.Status,
		&q.CreatedAt, &q.UpdatedAt, &q.CompletedAt, &q.ErrorMessage)
	if err != nil {
		return nil, err
	}
	return &q, nil
}
