package discovery

import "errors"

// ErrInvalidInput is returned when request input fails validation.
var ErrInvalidInput = errors.New("discovery: invalid input")

// ErrNotFound is returned when a referenced entity does not exist.
var ErrNotFound = errors.New("discovery: not found")

// ErrAlreadyTracked is returned when a tracking record already exists for
// the community.
var ErrAlreadyTracked = errors.New("discovery: community already tracked")

// ErrTerminalState is returned when an operation targets a query that has
// already completed or failed. Terminal queries are immutable; re-running
// requires a new query.
var ErrTerminalState = errors.New("discovery: query is in a terminal state")

// ErrDuplicateTaskID is returned when a task start is recorded twice with
// the same task id.
var ErrDuplicateTaskID = errors.New("discovery: duplicate task id")

// ErrUnknownTaskID is returned when a completion arrives for a task id that
// was never started or is already completed.
var ErrUnknownTaskID = errors.New("discovery: unknown task id")
