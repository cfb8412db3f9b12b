package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hazyhaar/redveille/dbopen"
)

// InsertUser adds a user. Duplicate usernames fail on the UNIQUE constraint.
func (s *Store) InsertUser(ctx context.Context, u *User) error {
	if u.CreatedAt == 0 {
		u.CreatedAt = nowMilli()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO users (id, username, created_at) VALUES (?, ?, ?)`,
		u.ID, u.Username, u.CreatedAt)
	return err
}

// GetUser retrieves a user by ID. Returns nil, nil if absent.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, username, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Username, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// DeleteUser removes a user and everything the user owns: queries (with
// their communities, posts, snapshots) and tracking records. The cascade is
// explicit — one transaction, children first — so it holds even when the
// foreign_keys pragma is off.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if err := deleteQueriesOwnedBy(tx, id); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM trackable_items WHERE user_id = ?`, id); err != nil {
			return err
		}
		_, err := tx.Exec(`DELETE FROM users WHERE id = ?`, id)
		return err
	})
}

func deleteQueriesOwnedBy(tx *sql.Tx, userID string) error {
	rows, err := tx.Query(`SELECT id FROM queries WHERE user_id = ?`, userID)
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
	for _, qid := range ids {
		if err := deleteQueryTx(tx, qid); err != nil {
			return err
		}
	}
	return nil
}
