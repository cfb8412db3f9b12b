// Package discovery is the data-management core of redveille: query
// lifecycle, community registry, tracking, snapshots and the task log.
// External providers (LLM, search, Reddit) are injected as collaborators.
package discovery

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/redveille/discovery/internal/scheduler"
	"github.com/hazyhaar/redveille/discovery/internal/scrape"
	"github.com/hazyhaar/redveille/discovery/internal/store"
	"github.com/hazyhaar/redveille/idgen"
	"github.com/hazyhaar/redveille/vtq"
)

// Queue names for background dispatch.
const (
	QueueProcess = "process"
	QueueScrape  = "scrape"
	QueueNotify  = "notify"
)

// ProcessJob is the payload of a query-processing task.
type ProcessJob struct {
	QueryID string `json:"query_id"`
	TaskID  string `json:"task_id"`
}

// ScrapeJob is the payload of a snapshot-scrape task.
type ScrapeJob struct {
	SnapshotID    string `json:"snapshot_id"`
	CommunityID   string `json:"community_id"`
	CommunityName string `json:"community_name"`
	TaskID        string `json:"task_id"`
}

// Service is the discovery orchestrator.
type Service struct {
	store    *store.Store
	cfg      *Config
	logger   *slog.Logger
	newID    func() string
	topics   TopicExtractor
	scorer   RelevanceScorer
	searcher CommunitySearcher
	fetcher  PostFetcher

	processQ *vtq.Q
	scrapeQ  *vtq.Q
	notifyQ  *vtq.Q

	sched    *scheduler.Scheduler
	worker   *scrape.Worker
	notifier *scrape.Notifier
}

// New creates a discovery Service over db. Collaborators are optional: a
// missing extractor or scorer degrades per policy, a missing searcher fails
// queries at run time, missing queues disable background dispatch.
func New(db *sql.DB, cfg *Config, logger *slog.Logger, opts ...ServiceOption) *Service {
	if cfg == nil {
		cfg = defaultConfig()
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	// Process and scrape jobs get the snapshot timeout as their visibility
	// window: a job must never become claimable again while its worker is
	// still inside the work budget, or a second claim races the first and
	// the task log records the loser's outcome. The sweeper owns anything
	// that outlives the budget. Notify jobs are quick HTTP posts and keep
	// the short default.
	svc := &Service{
		store:    store.NewStore(db),
		cfg:      cfg,
		logger:   logger,
		newID:    idgen.New,
		processQ: vtq.New(db, vtq.Options{Queue: QueueProcess, Visibility: cfg.SnapshotTimeout, Logger: logger}),
		scrapeQ:  vtq.New(db, vtq.Options{Queue: QueueScrape, Visibility: cfg.SnapshotTimeout, Logger: logger}),
		notifyQ:  vtq.New(db, vtq.Options{Queue: QueueNotify, Logger: logger}),
	}
	for _, opt := range opts {
		opt(svc)
	}

	// Background machinery. The fetch adapter converts the collaborator's
	// raw posts into the worker's shape.
	var fetch scrape.FetchFunc
	if svc.fetcher != nil {
		fetch = func(ctx context.Context, name string) ([]scrape.RawPost, error) {
			raw, err := svc.fetcher.FetchPosts(ctx, name)
			if err != nil {
				return nil, err
			}
			out := make([]scrape.RawPost, len(raw))
			for i, rp := range raw {
				out[i] = scrape.RawPost{
					PostID:        rp.PostID,
					Title:         rp.Title,
					Content:       rp.Content,
					Author:        rp.Author,
					Upvotes:       rp.Upvotes,
					CommentsCount: rp.CommentsCount,
					URL:           rp.URL,
					PostedAt:      rp.PostedAt,
				}
			}
			return out, nil
		}
	}
	svc.worker = scrape.New(svc.store, fetch, svc.notifyQ, logger)
	svc.notifier = scrape.NewNotifier(svc.store, cfg.WebhookURL, logger)
	svc.sched = scheduler.New(svc.store, svc.ScheduleScrape, scheduler.Config{
		CheckInterval:   cfg.SchedulerInterval,
		SnapshotTimeout: cfg.SnapshotTimeout,
	}, logger)

	return svc
}

// Start launches the scheduler and the queue consumers. Non-blocking; all
// goroutines stop when ctx is cancelled.
func (svc *Service) Start(ctx context.Context) {
	go svc.sched.Run(ctx)
	go svc.processQ.Run(ctx, svc.ProcessHandler())
	go svc.scrapeQ.Run(ctx, svc.worker.Handler())
	go svc.notifyQ.Run(ctx, svc.notifier.Handler())
	svc.logger.Info("discovery: started")
}

// SchedulePass runs one scheduling pass synchronously, returning the number
// of scrapes dispatched. Exposed for administrative triggering and tests.
func (svc *Service) SchedulePass(ctx context.Context) int {
	return svc.sched.Pass(ctx)
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*Service)

// WithTopicExtractor sets the topic extraction collaborator.
func WithTopicExtractor(t TopicExtractor) ServiceOption {
	return func(svc *Service) { svc.topics = t }
}

// WithScorer sets the relevance scoring collaborator.
func WithScorer(s RelevanceScorer) ServiceOption {
	return func(svc *Service) { svc.scorer = s }
}

// WithSearcher sets the community search collaborator.
func WithSearcher(s CommunitySearcher) ServiceOption {
	return func(svc *Service) { svc.searcher = s }
}

// WithPostFetcher sets the post fetching collaborator used by the scrape
// worker.
func WithPostFetcher(f PostFetcher) ServiceOption {
	return func(svc *Service) { svc.fetcher = f }
}

// WithIDFunc overrides ID generation. Used in tests for stable IDs.
func WithIDFunc(fn func() string) ServiceOption {
	return func(svc *Service) { svc.newID = fn }
}

// Init applies the schema and creates the dispatch queue table.
func (svc *Service) Init(ctx context.Context) error {
	if err := svc.store.Init(ctx); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return svc.processQ.EnsureTable(ctx)
}

// Store exposes the data layer to the internal scheduler and workers.
func (svc *Service) Store() *store.Store { return svc.store }

// Config returns the effective configuration.
func (svc *Service) Config() *Config { return svc.cfg }

// ProcessQueue returns the query-processing dispatch queue.
func (svc *Service) ProcessQueue() *vtq.Q { return svc.processQ }

// ScrapeQueue returns the snapshot-scrape dispatch queue.
func (svc *Service) ScrapeQueue() *vtq.Q { return svc.scrapeQ }

// NotifyQueue returns the webhook-delivery dispatch queue.
func (svc *Service) NotifyQueue() *vtq.Q { return svc.notifyQ }

// --- Users ---

// CreateUser registers an owning user.
func (svc *Service) CreateUser(ctx context.Context, username string) (*User, error) {
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	u := &store.User{
		ID:        svc.newID(),
		Username:  username,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := svc.store.InsertUser(ctx, u); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// GetUser retrieves a user. ErrNotFound when absent.
func (svc *Service) GetUser(ctx context.Context, id string) (*User, error) {
	u, err := svc.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	return u, nil
}

// DeleteUser removes a user and everything they own: queries, the
// communities discovered for them, posts, snapshots and tracking records.
func (svc *Service) DeleteUser(ctx context.Context, id string) error {
	if _, err := svc.GetUser(ctx, id); err != nil {
		return err
	}
	return svc.store.DeleteUser(ctx, id)
}

// --- Queries ---

// SubmitQuery creates a pending query and, when dispatch is enabled, queues
// its processing task.
func (svc *Service) SubmitQuery(ctx context.Context, userID, text string) (*Query, error) {
	if err := validateQueryText(text, svc.cfg.MaxQueryLength); err != nil {
		return nil, err
	}
	if _, err := svc.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	q := &store.Query{
		ID:         svc.newID(),
		UserID:     userID,
		SearchText: text,
		Status:     store.QueryPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := svc.store.InsertQuery(ctx, q); err != nil {
		return nil, fmt.Errorf("insert query: %w", err)
	}

	if err := svc.dispatchProcess(ctx, q.ID); err != nil {
		// Nothing re-dispatches a pending query, so a query whose job never
		// made it into the queue would stay pending forever. Fail it with a
		// user-visible message instead.
		msg := "dispatch failed: " + err.Error()
		if _, ferr := svc.store.FailQuery(ctx, q.ID, msg); ferr != nil {
			svc.logger.Error("discovery: fail undispatched query",
				"query_id", q.ID, "error", ferr)
		}
		q.Status = store.QueryFailed
		q.ErrorMessage = msg
		svc.logger.Warn("discovery: process dispatch failed",
			"query_id", q.ID, "error", err)
	}

	svc.logger.Info("discovery: query submitted",
		"query_id", q.ID, "user_id", userID)
	return q, nil
}

// dispatchProcess queues the processing task for a query and records its
// start in the task log.
func (svc *Service) dispatchProcess(ctx context.Context, queryID string) error {
	taskID := svc.newID()
	payload, err := json.Marshal(ProcessJob{QueryID: queryID, TaskID: taskID})
	if err != nil {
		return err
	}
	if err := svc.processQ.Publish(ctx, taskID, payload); err != nil {
		return err
	}
	return svc.recordStart(ctx, store.TaskProcess, taskID, "query:"+queryID)
}

// RunQuery drives a query through its lifecycle: topic extraction,
// candidate search, scoring, community persistence. Terminal queries are
// immutable and return ErrTerminalState; a query already being processed by
// another worker is a silent no-op.
func (svc *Service) RunQuery(ctx context.Context, queryID string) error {
	q, err := svc.store.GetQuery(ctx, queryID)
	if err != nil {
		return err
	}
	if q == nil {
		return fmt.Errorf("%w: query %s", ErrNotFound, queryID)
	}

	moved, err := svc.store.MarkQueryProcessing(ctx, queryID)
	if err != nil {
		return err
	}
	if !moved {
		cur, err := svc.store.GetQuery(ctx, queryID)
		if err != nil {
			return err
		}
		if cur == nil {
			return fmt.Errorf("%w: query %s", ErrNotFound, queryID)
		}
		if cur.Status == store.QueryProcessing {
			return nil // another worker owns it
		}
		return fmt.Errorf("%w: query %s is %s", ErrTerminalState, queryID, cur.Status)
	}

	// Topics must be extracted before any scoring call is issued.
	topics := svc.extractTopics(ctx, q.SearchText)

	if svc.searcher == nil {
		svc.store.FailQuery(ctx, queryID, "no community searcher configured")
		return fmt.Errorf("discovery: no community searcher configured")
	}
	candidates, err := svc.searcher.SearchCommunities(ctx, topics)
	if err != nil {
		svc.store.FailQuery(ctx, queryID, err.Error())
		return fmt.Errorf("search communities: %w", err)
	}

	stored := 0
	for _, cand := range candidates {
		if cand.Name == "" {
			continue
		}
		c := &store.Community{
			ID:           svc.newID(),
			QueryID:      queryID,
			Name:         cand.Name,
			Description:  cand.Description,
			URL:          cand.URL,
			MembersCount: cand.MembersCount,
			DiscoveredAt: time.Now().UnixMilli(),
		}
		inserted, err := svc.store.InsertCommunity(ctx, c)
		if err != nil {
			svc.store.FailQuery(ctx, queryID, err.Error())
			return fmt.Errorf("insert community: %w", err)
		}
		if !inserted {
			continue // first-seen record wins within a query
		}
		score := svc.scoreCandidate(ctx, cand.Name, cand.Description, topics)
		trackable := score >= svc.cfg.TrackableThreshold
		if err := svc.store.UpdateCommunityScore(ctx, c.ID, score, trackable); err != nil {
			svc.store.FailQuery(ctx, queryID, err.Error())
			return fmt.Errorf("update score: %w", err)
		}
		stored++
	}

	if _, err := svc.store.CompleteQuery(ctx, queryID); err != nil {
		return err
	}
	svc.logger.Info("discovery: query completed",
		"query_id", queryID, "topics", len(topics), "communities", stored)
	return nil
}

// GetQueryDetail returns a query with its communities nested, highest
// relevance first.
func (svc *Service) GetQueryDetail(ctx context.Context, queryID string) (*QueryDetail, error) {
	q, err := svc.store.GetQuery(ctx, queryID)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, fmt.Errorf("%w: query %s", ErrNotFound, queryID)
	}
	communities, err := svc.store.ListCommunitiesByQuery(ctx, queryID)
	if err != nil {
		return nil, err
	}
	if communities == nil {
		communities = []*store.Community{}
	}
	return &QueryDetail{Query: q, Communities: communities}, nil
}

// ListQueries returns a user's queries, newest first.
func (svc *Service) ListQueries(ctx context.Context, userID string) ([]*Query, error) {
	return svc.store.ListQueriesByUser(ctx, userID)
}

// DeleteQuery removes a query and its communities, posts, snapshots and
// tracking records.
func (svc *Service) DeleteQuery(ctx context.Context, queryID string) error {
	q, err := svc.store.GetQuery(ctx, queryID)
	if err != nil {
		return err
	}
	if q == nil {
		return fmt.Errorf("%w: query %s", ErrNotFound, queryID)
	}
	return svc.store.DeleteQuery(ctx, queryID)
}

// --- Communities ---

// GetCommunityDetail returns a community with its stored post count.
func (svc *Service) GetCommunityDetail(ctx context.Context, communityID string) (*CommunityDetail, error) {
	c, err := svc.store.GetCommunity(ctx, communityID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: community %s", ErrNotFound, communityID)
	}
	count, err := svc.store.CountPostsByCommunity(ctx, communityID)
	if err != nil {
		return nil, err
	}
	return &CommunityDetail{Community: c, PostsCount: count}, nil
}

// SetCommunityTrackable manually toggles the trackability hint.
func (svc *Service) SetCommunityTrackable(ctx context.Context, communityID string, trackable bool) error {
	c, err := svc.store.GetCommunity(ctx, communityID)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("%w: community %s", ErrNotFound, communityID)
	}
	return svc.store.SetCommunityTrackable(ctx, communityID, trackable)
}

// ListPosts returns a community's stored posts, newest first.
func (svc *Service) ListPosts(ctx context.Context, communityID string, limit int) ([]*Post, error) {
	return svc.store.ListPostsByCommunity(ctx, communityID, limit)
}

// DeleteCommunity removes a community and its posts, snapshots and tracking
// records. The owning query survives.
func (svc *Service) DeleteCommunity(ctx context.Context, communityID string) error {
	c, err := svc.store.GetCommunity(ctx, communityID)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("%w: community %s", ErrNotFound, communityID)
	}
	return svc.store.DeleteCommunity(ctx, communityID)
}

// --- Tracking ---

// Promote opts a user into continuous tracking of a community. A community
// carries at most one active tracking record; duplicates return
// ErrAlreadyTracked.
func (svc *Service) Promote(ctx context.Context, communityID, userID string, freqHours int) (*TrackableItem, error) {
	if freqHours == 0 {
		freqHours = svc.cfg.DefaultFrequencyHours
	}
	if err := validateFrequency(freqHours); err != nil {
		return nil, err
	}
	c, err := svc.store.GetCommunity(ctx, communityID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: community %s", ErrNotFound, communityID)
	}
	if _, err := svc.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	item := &store.TrackableItem{
		ID:                   svc.newID(),
		CommunityID:          communityID,
		UserID:               userID,
		TrackingEnabled:      true,
		ScrapeFrequencyHours: freqHours,
		CreatedAt:            time.Now().UnixMilli(),
	}
	inserted, err := svc.store.InsertTrackable(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("insert trackable: %w", err)
	}
	if !inserted {
		return nil, fmt.Errorf("%w: community %s", ErrAlreadyTracked, communityID)
	}
	svc.logger.Info("discovery: community promoted to tracking",
		"community_id", communityID, "user_id", userID, "frequency_hours", freqHours)
	return item, nil
}

// EnableTracking re-enables a tracking record. Idempotent.
func (svc *Service) EnableTracking(ctx context.Context, itemID string) error {
	return svc.setTracking(ctx, itemID, true)
}

// DisableTracking disables a tracking record without deleting its history.
// Idempotent.
func (svc *Service) DisableTracking(ctx context.Context, itemID string) error {
	return svc.setTracking(ctx, itemID, false)
}

func (svc *Service) setTracking(ctx context.Context, itemID string, enabled bool) error {
	item, err := svc.store.GetTrackable(ctx, itemID)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("%w: trackable %s", ErrNotFound, itemID)
	}
	return svc.store.SetTrackingEnabled(ctx, itemID, enabled)
}

// ListTracked returns a user's tracking records with community names
// resolved.
func (svc *Service) ListTracked(ctx context.Context, userID string) ([]*TrackableDetail, error) {
	items, err := svc.store.ListTrackablesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	details := make([]*TrackableDetail, 0, len(items))
	for _, item := range items {
		name := ""
		if c, err := svc.store.GetCommunity(ctx, item.CommunityID); err == nil && c != nil {
			name = c.Name
		}
		details = append(details, &TrackableDetail{TrackableItem: item, CommunityName: name})
	}
	return details, nil
}

// --- Snapshots & scraping ---

// ScheduleScrape claims a snapshot for a community and queues the scrape
// task after delay, returning the task id. When another snapshot for the
// community is already in flight the claim is lost and the call is a
// transparent no-op returning an empty task id.
func (svc *Service) ScheduleScrape(ctx context.Context, communityID string, delay time.Duration) (string, error) {
	// The sweep clock starts at claim time. A delay at or past the timeout
	// would get the snapshot swept to failed before its job is even visible.
	if delay < 0 || delay >= svc.cfg.SnapshotTimeout {
		return "", fmt.Errorf("%w: scrape delay %s outside [0, %s)",
			ErrInvalidInput, delay, svc.cfg.SnapshotTimeout)
	}
	c, err := svc.store.GetCommunity(ctx, communityID)
	if err != nil {
		return "", err
	}
	if c == nil {
		return "", fmt.Errorf("%w: community %s", ErrNotFound, communityID)
	}

	sn, err := svc.store.ClaimSnapshot(ctx, svc.newID(), communityID)
	if err != nil {
		return "", fmt.Errorf("claim snapshot: %w", err)
	}
	if sn == nil {
		return "", nil // lost the claim, another snapshot is in flight
	}

	taskID := svc.newID()
	payload, err := json.Marshal(ScrapeJob{
		SnapshotID:    sn.ID,
		CommunityID:   communityID,
		CommunityName: c.Name,
		TaskID:        taskID,
	})
	if err != nil {
		return "", err
	}
	if err := svc.scrapeQ.PublishAfter(ctx, taskID, payload, delay); err != nil {
		// Release the claim so the next pass can retry.
		svc.store.FailSnapshot(ctx, sn.ID, "dispatch failed: "+err.Error())
		return "", fmt.Errorf("publish scrape: %w", err)
	}
	if err := svc.recordStart(ctx, store.TaskScrape, taskID, "snapshot:"+sn.ID); err != nil {
		return "", err
	}
	svc.logger.Info("discovery: scrape scheduled",
		"community_id", communityID, "snapshot_id", sn.ID, "task_id", taskID)
	return taskID, nil
}

// GetSnapshot returns a snapshot with its community name resolved.
func (svc *Service) GetSnapshot(ctx context.Context, snapshotID string) (*SnapshotDetail, error) {
	sn, err := svc.store.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	if sn == nil {
		return nil, fmt.Errorf("%w: snapshot %s", ErrNotFound, snapshotID)
	}
	name := ""
	if c, err := svc.store.GetCommunity(ctx, sn.CommunityID); err == nil && c != nil {
		name = c.Name
	}
	return &SnapshotDetail{Snapshot: sn, CommunityName: name}, nil
}

// ListSnapshots returns a community's snapshots, newest first.
func (svc *Service) ListSnapshots(ctx context.Context, communityID string) ([]*Snapshot, error) {
	return svc.store.ListSnapshotsByCommunity(ctx, communityID)
}

// ListUndelivered returns terminal snapshots whose webhook is still
// undelivered, the administrative retry surface.
func (svc *Service) ListUndelivered(ctx context.Context, limit int) ([]*Snapshot, error) {
	return svc.store.ListUndeliveredSnapshots(ctx, limit)
}

// RetryWebhook re-attempts webhook delivery for a terminal snapshot whose
// flag is still false. This is the administrative retry path; nothing
// retries automatically.
func (svc *Service) RetryWebhook(ctx context.Context, snapshotID string) error {
	sn, err := svc.store.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return err
	}
	if sn == nil {
		return fmt.Errorf("%w: snapshot %s", ErrNotFound, snapshotID)
	}
	return svc.notifier.Deliver(ctx, snapshotID)
}

// MarkWebhookDelivered flips the delivery flag exactly once. Marking a
// snapshot that is already delivered is idempotent; marking a non-terminal
// snapshot is rejected.
func (svc *Service) MarkWebhookDelivered(ctx context.Context, snapshotID string) error {
	ok, err := svc.store.MarkWebhookDelivered(ctx, snapshotID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	sn, err := svc.store.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return err
	}
	if sn == nil {
		return fmt.Errorf("%w: snapshot %s", ErrNotFound, snapshotID)
	}
	if sn.Status != store.SnapshotCompleted && sn.Status != store.SnapshotFailed {
		return fmt.Errorf("%w: snapshot %s is not terminal", ErrInvalidInput, snapshotID)
	}
	return nil // already delivered
}

// --- Task log ---

// recordStart appends a task start, mapping the duplicate-id constraint to
// ErrDuplicateTaskID.
func (svc *Service) recordStart(ctx context.Context, taskType, taskID, related string) error {
	ok, err := svc.store.RecordTaskStart(ctx, svc.newID(), taskType, taskID, related)
	if err != nil {
		return fmt.Errorf("record task start: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTaskID, taskID)
	}
	return nil
}

// RecordTaskStart appends a task start for an externally issued task id.
func (svc *Service) RecordTaskStart(ctx context.Context, taskType, taskID, related string) error {
	return svc.recordStart(ctx, taskType, taskID, related)
}

// RecordTaskCompletion records a task's terminal outcome. Completing an
// unknown task id returns ErrUnknownTaskID; completing an already-completed
// task is idempotently ignored.
func (svc *Service) RecordTaskCompletion(ctx context.Context, taskID, status, resultJSON, errMsg string) error {
	ok, err := svc.store.RecordTaskCompletion(ctx, taskID, status, resultJSON, errMsg)
	if err != nil {
		return fmt.Errorf("record task completion: %w", err)
	}
	if ok {
		return nil
	}
	existing, err := svc.store.GetTaskLog(ctx, taskID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%w: %s", ErrUnknownTaskID, taskID)
	}
	return nil // already completed, first outcome wins
}

// ListTaskLogs returns task log entries, newest first. Empty taskType lists
// all types.
func (svc *Service) ListTaskLogs(ctx context.Context, taskType string, limit int) ([]*TaskLog, error) {
	return svc.store.ListTaskLogs(ctx, taskType, limit)
}

// ProcessHandler returns the vtq handler that executes queued
// query-processing jobs and records their task log outcome. Jobs whose
// query can no longer make progress (missing or terminal) are acked even on
// error: nacking them would put the job back at the head of the queue and
// redeliver it forever, starving every query behind it.
func (svc *Service) ProcessHandler() vtq.Handler {
	return func(ctx context.Context, job *vtq.Job) error {
		var pj ProcessJob
		if err := json.Unmarshal(job.Payload, &pj); err != nil {
			return fmt.Errorf("decode process job: %w", err)
		}
		if err := svc.RunQuery(ctx, pj.QueryID); err != nil {
			svc.RecordTaskCompletion(ctx, pj.TaskID, store.TaskFailure, "", err.Error())
			if q, qerr := svc.store.GetQuery(ctx, pj.QueryID); qerr == nil &&
				(q == nil || q.Status == store.QueryCompleted || q.Status == store.QueryFailed) {
				return nil // terminal: the job is spent, let it leave the queue
			}
			return err
		}
		// RunQuery also returns nil when another worker owns the query; only
		// the run that actually completed it records the success.
		q, err := svc.store.GetQuery(ctx, pj.QueryID)
		if err != nil || q == nil || q.Status != store.QueryCompleted {
			return nil
		}
		result, _ := json.Marshal(map[string]string{"query_id": pj.QueryID})
		return svc.RecordTaskCompletion(ctx, pj.TaskID, store.TaskSuccess, string(result), "")
	}
}
