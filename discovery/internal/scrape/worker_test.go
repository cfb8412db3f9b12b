package scrape

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hazyhaar/redveille/discovery/internal/store"
	"github.com/hazyhaar/redveille/vtq"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.Exec("PRAGMA foreign_keys=ON")
	t.Cleanup(func() { db.Close() })
	return db
}

// fixture seeds a tracked community with a claimed snapshot and a started
// scrape task, returning the store and queue ready for the worker.
type fixture struct {
	store   *store.Store
	notifyQ *vtq.Q
	job     *vtq.Job
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := openTestDB(t)
	s := store.NewStore(db)
	if err := s.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	notifyQ := vtq.New(db, vtq.Options{Queue: "notify"})
	if err := notifyQ.EnsureTable(ctx); err != nil {
		t.Fatalf("ensure table: %v", err)
	}

	now := time.Now().UnixMilli()
	s.InsertUser(ctx, &store.User{ID: "u1", Username: "alice", CreatedAt: now})
	s.InsertQuery(ctx, &store.Query{ID: "q1", UserID: "u1", SearchText: "x", Status: store.QueryPending, CreatedAt: now, UpdatedAt: now})
	s.InsertCommunity(ctx, &store.Community{ID: "c1", QueryID: "q1", Name: "r/golang", DiscoveredAt: now})
	s.InsertTrackable(ctx, &store.TrackableItem{ID: "t1", CommunityID: "c1", UserID: "u1", TrackingEnabled: true, ScrapeFrequencyHours: 24, CreatedAt: now})

	sn, err := s.ClaimSnapshot(ctx, "sn1", "c1")
	if err != nil || sn == nil {
		t.Fatalf("claim: sn=%v err=%v", sn, err)
	}
	s.RecordTaskStart(ctx, "tl1", store.TaskScrape, "task-1", "snapshot:sn1")

	payload, _ := json.Marshal(Job{SnapshotID: "sn1", CommunityID: "c1", CommunityName: "r/golang", TaskID: "task-1"})
	return &fixture{
		store:   s,
		notifyQ: notifyQ,
		job:     &vtq.Job{ID: "task-1", Payload: payload},
	}
}

func TestWorkerCompletesSnapshot(t *testing.T) {
	// WHAT: A successful scrape ingests valid posts, counts only new rows,
	// completes the snapshot and queues the webhook.
	// WHY: This is the whole snapshot happy path.
	fx := setupFixture(t)
	ctx := context.Background()

	fetch := func(ctx context.Context, name string) ([]RawPost, error) {
		return []RawPost{
			{PostID: "t3_a", Title: "first", Content: "body", Author: "x", Upvotes: 10},
			{PostID: "t3_b", Title: "second"},
			{PostID: "", Title: "no id"},     // dropped: post_id required
			{PostID: "t3_c", Title: ""},      // dropped: title required
			{PostID: "t3_a", Title: "again"}, // duplicate post_id
		}, nil
	}
	w := New(fx.store, fetch, fx.notifyQ, nil)

	if err := w.Handler()(ctx, fx.job); err != nil {
		t.Fatalf("handle: %v", err)
	}

	sn, _ := fx.store.GetSnapshot(ctx, "sn1")
	if sn.Status != store.SnapshotCompleted {
		t.Errorf("status: got %q, want completed", sn.Status)
	}
	if sn.PostsScraped != 2 {
		t.Errorf("posts_scraped: got %d, want 2", sn.PostsScraped)
	}

	item, _ := fx.store.GetTrackable(ctx, "t1")
	if item.LastScrapedAt == nil {
		t.Error("last_scraped_at should be advanced")
	}

	tl, _ := fx.store.GetTaskLog(ctx, "task-1")
	if tl.Status != store.TaskSuccess {
		t.Errorf("task status: got %q, want success", tl.Status)
	}

	n, _ := fx.notifyQ.Len(ctx)
	if n != 1 {
		t.Errorf("notify queue: got %d jobs, want 1", n)
	}
}

func TestWorkerReingestIsNoOp(t *testing.T) {
	// WHAT: A second scrape returning already-seen post_ids completes with
	// posts_scraped=0 and no duplicate rows.
	// WHY: post_id is the dedup key across all runs.
	fx := setupFixture(t)
	ctx := context.Background()

	fetch := func(ctx context.Context, name string) ([]RawPost, error) {
		return []RawPost{{PostID: "t3_a", Title: "first"}}, nil
	}
	w := New(fx.store, fetch, fx.notifyQ, nil)
	if err := w.Handler()(ctx, fx.job); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Second snapshot for the same community, same fetch result.
	sn, err := fx.store.ClaimSnapshot(ctx, "sn2", "c1")
	if err != nil || sn == nil {
		t.Fatalf("second claim: sn=%v err=%v", sn, err)
	}
	fx.store.RecordTaskStart(ctx, "tl2", store.TaskScrape, "task-2", "snapshot:sn2")
	payload, _ := json.Marshal(Job{SnapshotID: "sn2", CommunityID: "c1", CommunityName: "r/golang", TaskID: "task-2"})
	if err := w.Handler()(ctx, &vtq.Job{ID: "task-2", Payload: payload}); err != nil {
		t.Fatalf("second run: %v", err)
	}

	sn2, _ := fx.store.GetSnapshot(ctx, "sn2")
	if sn2.Status != store.SnapshotCompleted {
		t.Errorf("status: got %q", sn2.Status)
	}
	if sn2.PostsScraped != 0 {
		t.Errorf("posts_scraped: got %d, want 0", sn2.PostsScraped)
	}
	posts, _ := fx.store.ListPostsByCommunity(ctx, "c1", 10)
	if len(posts) != 1 {
		t.Errorf("stored posts: got %d, want 1", len(posts))
	}
}

func TestWorkerFetchFailureFailsSnapshot(t *testing.T) {
	// WHAT: A fetch error fails the snapshot, records the task failure,
	// leaves last_scraped_at untouched and still queues the webhook.
	// WHY: Failures must stay visible and the item must stay due.
	fx := setupFixture(t)
	ctx := context.Background()

	fetch := func(ctx context.Context, name string) ([]RawPost, error) {
		return nil, fmt.Errorf("reddit unreachable")
	}
	w := New(fx.store, fetch, fx.notifyQ, nil)
	if err := w.Handler()(ctx, fx.job); err != nil {
		t.Fatalf("handle: %v", err)
	}

	sn, _ := fx.store.GetSnapshot(ctx, "sn1")
	if sn.Status != store.SnapshotFailed {
		t.Errorf("status: got %q, want failed", sn.Status)
	}
	if sn.ErrorMessage != "reddit unreachable" {
		t.Errorf("error_message: got %q", sn.ErrorMessage)
	}

	item, _ := fx.store.GetTrackable(ctx, "t1")
	if item.LastScrapedAt != nil {
		t.Error("last_scraped_at must stay untouched on failure")
	}

	tl, _ := fx.store.GetTaskLog(ctx, "task-1")
	if tl.Status != store.TaskFailure {
		t.Errorf("task status: got %q, want failure", tl.Status)
	}
	n, _ := fx.notifyQ.Len(ctx)
	if n != 1 {
		t.Errorf("notify queue: got %d jobs, want 1 (failure is notified too)", n)
	}
}

func TestWorkerSkipsSweptSnapshot(t *testing.T) {
	// WHAT: A job whose snapshot was already swept to failed is skipped
	// without resurrecting it and without touching the task log.
	// WHY: Terminal snapshots never move; and a skip is not an outcome —
	// recording one would claim the task ran when it never did.
	fx := setupFixture(t)
	ctx := context.Background()
	fx.store.FailSnapshot(ctx, "sn1", "snapshot timed out")

	w := New(fx.store, func(ctx context.Context, name string) ([]RawPost, error) {
		t.Fatal("fetch should not be called")
		return nil, nil
	}, fx.notifyQ, nil)
	if err := w.Handler()(ctx, fx.job); err != nil {
		t.Fatalf("handle: %v", err)
	}

	sn, _ := fx.store.GetSnapshot(ctx, "sn1")
	if sn.Status != store.SnapshotFailed || sn.ErrorMessage != "snapshot timed out" {
		t.Errorf("snapshot mutated: %+v", sn)
	}
	tl, _ := fx.store.GetTaskLog(ctx, "task-1")
	if tl.Status != store.TaskStarted {
		t.Errorf("task status: got %q, want started (skip is not an outcome)", tl.Status)
	}
}

func TestWorkerRedeliveryDoesNotOverrideOwner(t *testing.T) {
	// WHAT: A redelivered job whose snapshot is already in_progress leaves
	// the task log alone, so the first claim's eventual result still lands.
	// WHY: If the second claim wrote a terminal record it would win the
	// first-completion-wins guard and the real worker's outcome would be
	// rejected.
	fx := setupFixture(t)
	ctx := context.Background()
	fx.store.StartSnapshot(ctx, "sn1") // first claim is mid-run

	w := New(fx.store, func(ctx context.Context, name string) ([]RawPost, error) {
		t.Fatal("fetch should not be called")
		return nil, nil
	}, fx.notifyQ, nil)
	if err := w.Handler()(ctx, fx.job); err != nil {
		t.Fatalf("handle: %v", err)
	}

	tl, _ := fx.store.GetTaskLog(ctx, "task-1")
	if tl.Status != store.TaskStarted {
		t.Fatalf("task status: got %q, want started", tl.Status)
	}

	// The owning worker finishes and its outcome is the one recorded.
	fx.store.CompleteSnapshot(ctx, "sn1", 4)
	ok, err := fx.store.RecordTaskCompletion(ctx, "task-1", store.TaskSuccess, `{"posts_scraped": 4}`, "")
	if err != nil || !ok {
		t.Fatalf("owner completion rejected: ok=%v err=%v", ok, err)
	}
}

func TestNotifierDeliversOnce(t *testing.T) {
	// WHAT: Delivery posts the payload, flips webhook_delivered on 2xx, and
	// a repeat delivery is a no-op.
	// WHY: Downstream consumers must see exactly one notification.
	fx := setupFixture(t)
	ctx := context.Background()
	fx.store.StartSnapshot(ctx, "sn1")
	fx.store.CompleteSnapshot(ctx, "sn1", 3)

	var got notification
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(fx.store, srv.URL, nil)
	n.SetValidator(func(string) error { return nil })

	if err := n.Deliver(ctx, "sn1"); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if got.SnapshotID != "sn1" || got.Status != store.SnapshotCompleted || got.PostsScraped != 3 {
		t.Errorf("payload: %+v", got)
	}

	sn, _ := fx.store.GetSnapshot(ctx, "sn1")
	if !sn.WebhookDelivered {
		t.Error("webhook_delivered should be true")
	}

	// Repeat delivery: no second POST.
	if err := n.Deliver(ctx, "sn1"); err != nil {
		t.Fatalf("repeat: %v", err)
	}
	if hits != 1 {
		t.Errorf("hits: got %d, want 1", hits)
	}
}

func TestNotifierFailureLeavesUndelivered(t *testing.T) {
	// WHAT: A non-2xx response leaves webhook_delivered false and the
	// snapshot on the undelivered list.
	// WHY: Failed deliveries stay visible for administrative retry.
	fx := setupFixture(t)
	ctx := context.Background()
	fx.store.StartSnapshot(ctx, "sn1")
	fx.store.CompleteSnapshot(ctx, "sn1", 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewNotifier(fx.store, srv.URL, nil)
	n.SetValidator(func(string) error { return nil })

	if err := n.Deliver(ctx, "sn1"); err == nil {
		t.Fatal("deliver should report the 502")
	}

	sn, _ := fx.store.GetSnapshot(ctx, "sn1")
	if sn.WebhookDelivered {
		t.Error("webhook_delivered should stay false")
	}
	undelivered, _ := fx.store.ListUndeliveredSnapshots(ctx, 10)
	if len(undelivered) != 1 || undelivered[0].ID != "sn1" {
		t.Errorf("undelivered: got %+v", undelivered)
	}
}

func TestNotifierRejectsNonTerminal(t *testing.T) {
	// WHAT: Delivery for a snapshot still in flight is an error.
	// WHY: webhook_delivered can only become true after a terminal state.
	fx := setupFixture(t)
	ctx := context.Background()

	n := NewNotifier(fx.store, "https://example.com/hook", nil)
	if err := n.Deliver(ctx, "sn1"); err == nil {
		t.Fatal("deliver should reject a pending snapshot")
	}
	sn, _ := fx.store.GetSnapshot(ctx, "sn1")
	if sn.WebhookDelivered {
		t.Error("webhook_delivered must stay false")
	}
}
