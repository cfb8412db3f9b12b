package store

import (
	"context"
	"database/sql"
	"errors"
)

// RecordTaskStart appends a started task_log entry. The log is append-only:
// a second start with the same taskID is a duplicate dispatch and returns
// false without touching the existing entry.
func (s *Store) RecordTaskStart(ctx context.Context, id, taskType, taskID, relatedObject string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO task_log (id, task_type, task_id, related_object, started_at, status)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (task_id) DO NOTHING`,
		id, taskType, taskID, relatedObject, nowMilli(), TaskStarted)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RecordTaskCompletion records the terminal outcome for taskID. At-least-once
// dispatch means completions can arrive twice: the guard makes the second
// write a no-op, so the first recorded outcome wins. Returns false when no
// started entry matched (unknown task_id or already completed).
func (s *Store) RecordTaskCompletion(ctx context.Context, taskID, status, resultJSON, errMsg string) (bool, error) {
	if resultJSON == "" {
		resultJSON = "{}"
	}
	res, err := s.DB.ExecContext(ctx,
		`UPDATE task_log SET completed_at = ?, status = ?, result_json = ?, error = ?
		 WHERE task_id = ? AND status = ?`,
		nowMilli(), status, resultJSON, errMsg, taskID, TaskStarted)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetTaskLog retrieves an entry by its external task_id. Returns nil, nil
// when absent.
func (s *Store) GetTaskLog(ctx context.Context, taskID string) (*TaskLog, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, task_type, task_id, related_object, started_at,
		 completed_at, status, result_json, error
		 FROM task_log WHERE task_id = ?`, taskID)
	var tl TaskLog
	err := row.Scan(&tl.ID, &tl.TaskType, &tl.TaskID, &tl.RelatedObject,
		&tl.StartedAt, &tl.CompletedAt, &tl.Status, &tl.ResultJSON, &tl.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tl, nil
}

// ListTaskLogs returns entries of one type, newest first. An empty taskType
// lists across all types.
func (s *Store) ListTaskLogs(ctx context.Context, taskType string, limit int) ([]*TaskLog, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, task_type, task_id, related_object, started_at,
	 completed_at, status, result_json, error
	 FROM task_log`
	args := []any{}
	if taskType != "" {
		query += ` WHERE task_type = ?`
		args = append(args, taskType)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*TaskLog
	for rows.Next() {
		var tl TaskLog
		if err := rows.Scan(&tl.ID, &tl.TaskType, &tl.TaskID, &tl.RelatedObject,
			&tl.StartedAt, &tl.CompletedAt, &tl.Status, &tl.ResultJSON, &tl.Error); err != nil {
			return nil, err
		}
		logs = append(logs, &tl)
	}
	return logs, rows.Err()
}
