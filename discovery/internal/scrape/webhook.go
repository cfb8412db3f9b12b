package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/redveille/discovery/internal/store"
	"github.com/hazyhaar/redveille/safeurl"
	"github.com/hazyhaar/redveille/vtq"
)

// Notifier delivers webhook notifications for terminal snapshots. A failed
// delivery leaves webhook_delivered false: the snapshot stays visible on the
// undelivered list for administrative retry, nothing redelivers
// automatically.
type Notifier struct {
	store    *store.Store
	url      string
	client   *http.Client
	logger   *slog.Logger
	validate func(string) error
}

// NewNotifier creates a Notifier posting to url. An empty url disables
// delivery.
func NewNotifier(st *store.Store, url string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		store:    st,
		url:      url,
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   logger,
		validate: safeurl.Validate,
	}
}

// notification is the webhook payload.
type notification struct {
	SnapshotID   string `json:"snapshot_id"`
	CommunityID  string `json:"community_id"`
	Status       string `json:"status"`
	PostsScraped int    `json:"posts_scraped"`
	ErrorMessage string `json:"error_message,omitempty"`
	CompletedAt  *int64 `json:"completed_at,omitempty"`
}

// Handler returns the vtq handler executing notify jobs. Delivery failures
// ack the job after recording the outcome; retry is administrative.
func (n *Notifier) Handler() vtq.Handler {
	return func(ctx context.Context, job *vtq.Job) error {
		var j NotifyJob
		if err := json.Unmarshal(job.Payload, &j); err != nil {
			return fmt.Errorf("decode notify job: %w", err)
		}
		if err := n.Deliver(ctx, j.SnapshotID); err != nil {
			n.store.RecordTaskCompletion(ctx, j.TaskID, store.TaskFailure, "", err.Error())
			n.logger.Warn("notify: delivery failed",
				"snapshot_id", j.SnapshotID, "error", err)
			return nil
		}
		n.store.RecordTaskCompletion(ctx, j.TaskID, store.TaskSuccess, "{}", "")
		return nil
	}
}

// Deliver posts the notification for a snapshot and flips webhook_delivered
// on 2xx. Skips silently when delivery is disabled, the snapshot is gone,
// or it was already delivered.
func (n *Notifier) Deliver(ctx context.Context, snapshotID string) error {
	if n.url == "" {
		return nil
	}
	sn, err := n.store.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return err
	}
	if sn == nil || sn.WebhookDelivered {
		return nil
	}
	if sn.Status != store.SnapshotCompleted && sn.Status != store.SnapshotFailed {
		return fmt.Errorf("snapshot %s is not terminal", snapshotID)
	}

	if err := n.validate(n.url); err != nil {
		return fmt.Errorf("webhook url: %w", err)
	}

	body, err := json.Marshal(notification{
		SnapshotID:   sn.ID,
		CommunityID:  sn.CommunityID,
		Status:       sn.Status,
		PostsScraped: sn.PostsScraped,
		ErrorMessage: sn.ErrorMessage,
		CompletedAt:  sn.CompletedAt,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	safeurl.LimitedReadAll(resp.Body, 4096)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}

	if _, err := n.store.MarkWebhookDelivered(ctx, snapshotID); err != nil {
		return err
	}
	n.logger.Info("notify: webhook delivered", "snapshot_id", snapshotID)
	return nil
}

// SetClient overrides the HTTP client. Used in tests.
func (n *Notifier) SetClient(c *http.Client) { n.client = c }

// SetValidator overrides URL validation. Used in tests with httptest
// servers that listen on loopback addresses.
func (n *Notifier) SetValidator(fn func(string) error) { n.validate = fn }
