package vtq_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/redveille/dbopen"
	"github.com/hazyhaar/redveille/vtq"
)

func newQueue(t *testing.T, opts vtq.Options) *vtq.Q {
	t.Helper()
	db := dbopen.OpenMemory(t)
	q := vtq.New(db, opts)
	if err := q.EnsureTable(context.Background()); err != nil {
		t.Fatalf("ensure table: %v", err)
	}
	return q
}

func TestPublishClaim_RoundTrip(t *testing.T) {
	// WHAT: A published job is claimable exactly once within the visibility window.
	// WHY: Double delivery would mean two workers scraping the same snapshot.
	q := newQueue(t, vtq.Options{Queue: "scrape", Visibility: time.Minute})
	ctx := context.Background()

	if err := q.Publish(ctx, "task-1", []byte(`{"community_id":"c1"}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	job, err := q.Claim(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if job == nil || job.ID != "task-1" {
		t.Fatalf("expected task-1, got %+v", job)
	}

	// Second claim sees nothing — the job is invisible.
	again, err := q.Claim(ctx)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if again != nil {
		t.Errorf("job claimed twice: %+v", again)
	}
}

func TestPublishAfter_DelaysVisibility(t *testing.T) {
	// WHAT: PublishAfter hides a job until the delay elapses.
	// WHY: schedule(job, delay) is the dispatcher contract.
	q := newQueue(t, vtq.Options{Queue: "scrape"})
	ctx := context.Background()

	if err := q.PublishAfter(ctx, "task-1", nil, time.Hour); err != nil {
		t.Fatalf("publish after: %v", err)
	}

	job, err := q.Claim(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if job != nil {
		t.Errorf("delayed job should not be claimable yet, got %+v", job)
	}
}

func TestPublish_DuplicateID_Fails(t *testing.T) {
	// WHAT: Publishing the same task id twice fails.
	// WHY: Task ids are unique; the task log relies on it.
	q := newQueue(t, vtq.Options{})
	ctx := context.Background()

	if err := q.Publish(ctx, "dup", nil); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if err := q.Publish(ctx, "dup", nil); err == nil {
		t.Error("expected UNIQUE violation on duplicate id")
	}
}

func TestNack_MakesJobVisibleAgain(t *testing.T) {
	// WHAT: A nacked job can be claimed again immediately.
	q := newQueue(t, vtq.Options{Visibility: time.Minute})
	ctx := context.Background()

	if err := q.Publish(ctx, "task-1", nil); err != nil {
		t.Fatalf("publish: %v", err)
	}
	job, _ := q.Claim(ctx)
	if job == nil {
		t.Fatal("first claim returned nil")
	}
	if err := q.Nack(ctx, job.ID); err != nil {
		t.Fatalf("nack: %v", err)
	}

	again, err := q.Claim(ctx)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if again == nil {
		t.Fatal("nacked job not reclaimable")
	}
	if again.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", again.Attempts)
	}
}

func TestAck_RemovesJob(t *testing.T) {
	// WHAT: Ack deletes the job permanently.
	q := newQueue(t, vtq.Options{})
	ctx := context.Background()

	if err := q.Publish(ctx, "task-1", nil); err != nil {
		t.Fatalf("publish: %v", err)
	}
	job, _ := q.Claim(ctx)
	if err := q.Ack(ctx, job.ID); err != nil {
		t.Fatalf("ack: %v", err)
	}

	n, err := q.Len(ctx)
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if n != 0 {
		t.Errorf("len = %d, want 0", n)
	}
}

func TestQueues_AreIsolated(t *testing.T) {
	// WHAT: Jobs in the scrape queue are invisible to the notify consumer.
	db := dbopen.OpenMemory(t)
	ctx := context.Background()
	scrape := vtq.New(db, vtq.Options{Queue: "scrape"})
	notify := vtq.New(db, vtq.Options{Queue: "notify"})
	if err := scrape.EnsureTable(ctx); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	if err := scrape.Publish(ctx, "task-1", nil); err != nil {
		t.Fatalf("publish: %v", err)
	}
	job, err := notify.Claim(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if job != nil {
		t.Errorf("notify queue claimed a scrape job: %+v", job)
	}
}

func TestRun_ProcessesAndAcks(t *testing.T) {
	// WHAT: The Run loop delivers each job to the handler once and acks it.
	q := newQueue(t, vtq.Options{PollInterval: 10 * time.Millisecond, Visibility: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	got := make(map[string]int)

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Publish(ctx, id, nil); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}

	done := make(chan struct{})
	go func() {
		q.Run(ctx, func(_ context.Context, job *vtq.Job) error {
			mu.Lock()
			got[job.ID]++
			if len(got) == 3 {
				close(done)
			}
			mu.Unlock()
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for jobs")
	}
	cancel()

	mu.Lock()
	defer mu.Unlock()
	for id, n := range got {
		if n != 1 {
			t.Errorf("job %s delivered %d times", id, n)
		}
	}
}

func TestRun_NacksFailedHandler(t *testing.T) {
	// WHAT: A failing handler gets the job redelivered after nack.
	// WHY: Transient scrape errors self-heal through redelivery.
	q := newQueue(t, vtq.Options{PollInterval: 10 * time.Millisecond, Visibility: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := q.Publish(ctx, "flaky", nil); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var calls int
	done := make(chan struct{})
	go func() {
		q.Run(ctx, func(_ context.Context, job *vtq.Job) error {
			calls++
			if calls == 1 {
				return errors.New("transient")
			}
			close(done)
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for redelivery")
	}
	cancel()

	if calls < 2 {
		t.Errorf("calls = %d, want >= 2", calls)
	}
}
