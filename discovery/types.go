package discovery

import "github.com/hazyhaar/redveille/discovery/internal/store"

// Aliases re-exporting the storage entities so callers never import the
// internal store package.
type (
	User          = store.User
	Query         = store.Query
	Community     = store.Community
	Post          = store.Post
	TrackableItem = store.TrackableItem
	Snapshot      = store.Snapshot
	TaskLog       = store.TaskLog
)

// Query lifecycle statuses.
const (
	QueryPending    = store.QueryPending
	QueryProcessing = store.QueryProcessing
	QueryCompleted  = store.QueryCompleted
	QueryFailed     = store.QueryFailed
)

// Snapshot lifecycle statuses.
const (
	SnapshotPending    = store.SnapshotPending
	SnapshotInProgress = store.SnapshotInProgress
	SnapshotCompleted  = store.SnapshotCompleted
	SnapshotFailed     = store.SnapshotFailed
)

// Task types and statuses.
const (
	TaskScrape  = store.TaskScrape
	TaskProcess = store.TaskProcess
	TaskNotify  = store.TaskNotify

	TaskStarted = store.TaskStarted
	TaskSuccess = store.TaskSuccess
	TaskFailure = store.TaskFailure
)

// QueryDetail is a query with its discovered communities nested, the shape
// the API serves for a single query.
type QueryDetail struct {
	*Query
	Communities []*Community `json:"communities"`
}

// CommunityDetail is a community with its stored post count.
type CommunityDetail struct {
	*Community
	PostsCount int `json:"posts_count"`
}

// TrackableDetail is a tracking record with its community's name resolved.
type TrackableDetail struct {
	*TrackableItem
	CommunityName string `json:"community_name"`
}

// SnapshotDetail is a snapshot with its community's name resolved.
type SnapshotDetail struct {
	*Snapshot
	CommunityName string `json:"community_name"`
}
