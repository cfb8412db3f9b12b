// Package scrape executes snapshot jobs: fetch posts, ingest them deduped,
// close the snapshot, queue the webhook notification.
package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/redveille/discovery/internal/store"
	"github.com/hazyhaar/redveille/idgen"
	"github.com/hazyhaar/redveille/vtq"
)

// RawPost is an unvalidated post handed to the worker by the fetcher.
type RawPost struct {
	PostID        string
	Title         string
	Content       string
	Author        string
	Upvotes       int64
	CommentsCount int64
	URL           string
	PostedAt      int64
}

// FetchFunc retrieves recent posts for a community by name.
type FetchFunc func(ctx context.Context, communityName string) ([]RawPost, error)

// Job is the scrape task payload, matching what the service publishes.
type Job struct {
	SnapshotID    string `json:"snapshot_id"`
	CommunityID   string `json:"community_id"`
	CommunityName string `json:"community_name"`
	TaskID        string `json:"task_id"`
}

// NotifyJob is the webhook-delivery task payload.
type NotifyJob struct {
	SnapshotID string `json:"snapshot_id"`
	TaskID     string `json:"task_id"`
}

// Worker consumes scrape jobs from the queue.
type Worker struct {
	store   *store.Store
	fetch   FetchFunc
	notifyQ *vtq.Q
	logger  *slog.Logger
	newID   func() string
}

// New creates a Worker. notifyQ may be nil to disable webhook dispatch.
func New(st *store.Store, fetch FetchFunc, notifyQ *vtq.Q, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:   st,
		fetch:   fetch,
		notifyQ: notifyQ,
		logger:  logger,
		newID:   idgen.New,
	}
}

// Handler returns the vtq handler executing scrape jobs. A fetch failure
// fails the snapshot and acks the job: the item stays due and self-heals on
// the next scheduling pass, there is no redelivery path.
func (w *Worker) Handler() vtq.Handler {
	return func(ctx context.Context, job *vtq.Job) error {
		var j Job
		if err := json.Unmarshal(job.Payload, &j); err != nil {
			return fmt.Errorf("decode scrape job: %w", err)
		}
		w.run(ctx, &j)
		return nil
	}
}

func (w *Worker) run(ctx context.Context, j *Job) {
	moved, err := w.store.StartSnapshot(ctx, j.SnapshotID)
	if err != nil {
		w.logger.Error("scrape: start snapshot", "snapshot_id", j.SnapshotID, "error", err)
		return
	}
	if !moved {
		// Swept by the scheduler or already running elsewhere. The claim is
		// gone; whoever owns the snapshot records the task outcome. Writing
		// a terminal record here would beat the real worker's result.
		w.logger.Warn("scrape: snapshot not pending, skipping", "snapshot_id", j.SnapshotID)
		return
	}

	if w.fetch == nil {
		w.fail(ctx, j, "no post fetcher configured")
		return
	}
	raw, err := w.fetch(ctx, j.CommunityName)
	if err != nil {
		w.fail(ctx, j, err.Error())
		return
	}

	now := time.Now().UnixMilli()
	posts := make([]*store.Post, 0, len(raw))
	for _, rp := range raw {
		if rp.PostID == "" || rp.Title == "" {
			continue
		}
		posts = append(posts, &store.Post{
			ID:            w.newID(),
			CommunityID:   j.CommunityID,
			PostID:        rp.PostID,
			Title:         rp.Title,
			Content:       rp.Content,
			Author:        rp.Author,
			Upvotes:       rp.Upvotes,
			CommentsCount: rp.CommentsCount,
			PostURL:       rp.URL,
			PostedAt:      rp.PostedAt,
			ScrapedAt:     now,
		})
	}

	inserted, err := w.store.InsertPosts(ctx, posts)
	if err != nil {
		w.fail(ctx, j, "ingest posts: "+err.Error())
		return
	}
	if _, err := w.store.CompleteSnapshot(ctx, j.SnapshotID, inserted); err != nil {
		w.logger.Error("scrape: complete snapshot", "snapshot_id", j.SnapshotID, "error", err)
		return
	}

	result, _ := json.Marshal(map[string]int{"posts_scraped": inserted})
	w.store.RecordTaskCompletion(ctx, j.TaskID, store.TaskSuccess, string(result), "")
	w.queueNotify(ctx, j.SnapshotID)

	w.logger.Info("scrape: snapshot completed",
		"snapshot_id", j.SnapshotID, "community", j.CommunityName,
		"fetched", len(raw), "ingested", inserted)
}

// fail moves the snapshot to failed, records the task outcome and still
// queues the webhook: failure notifications are part of the contract.
func (w *Worker) fail(ctx context.Context, j *Job, msg string) {
	if _, err := w.store.FailSnapshot(ctx, j.SnapshotID, msg); err != nil {
		w.logger.Error("scrape: fail snapshot", "snapshot_id", j.SnapshotID, "error", err)
	}
	w.store.RecordTaskCompletion(ctx, j.TaskID, store.TaskFailure, "", msg)
	w.queueNotify(ctx, j.SnapshotID)
	w.logger.Warn("scrape: snapshot failed",
		"snapshot_id", j.SnapshotID, "community", j.CommunityName, "error", msg)
}

// queueNotify publishes a webhook-delivery task for a terminal snapshot.
func (w *Worker) queueNotify(ctx context.Context, snapshotID string) {
	if w.notifyQ == nil {
		return
	}
	taskID := w.newID()
	payload, err := json.Marshal(NotifyJob{SnapshotID: snapshotID, TaskID: taskID})
	if err != nil {
		return
	}
	if err := w.notifyQ.Publish(ctx, taskID, payload); err != nil {
		w.logger.Warn("scrape: queue notify", "snapshot_id", snapshotID, "error", err)
		return
	}
	w.store.RecordTaskStart(ctx, w.newID(), store.TaskNotify, taskID, "snapshot:"+snapshotID)
}
