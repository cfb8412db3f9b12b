package discovery

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// RegisterHTTP mounts the discovery API on a chi router.
func (svc *Service) RegisterHTTP(r chi.Router) {
	r.Post("/api/v1/users", svc.handleCreateUser)
	r.Delete("/api/v1/users/{user_id}", svc.handleDeleteUser)

	r.Post("/api/v1/queries", svc.handleSubmitQuery)
	r.Get("/api/v1/queries", svc.handleListQueries)
	r.Get("/api/v1/queries/{query_id}", svc.handleGetQuery)
	r.Delete("/api/v1/queries/{query_id}", svc.handleDeleteQuery)

	r.Get("/api/v1/communities/{community_id}", svc.handleGetCommunity)
	r.Delete("/api/v1/communities/{community_id}", svc.handleDeleteCommunity)
	r.Post("/api/v1/communities/{community_id}/trackable", svc.handleSetTrackable)
	r.Get("/api/v1/communities/{community_id}/posts", svc.handleListPosts)
	r.Get("/api/v1/communities/{community_id}/snapshots", svc.handleListSnapshots)
	r.Post("/api/v1/communities/{community_id}/track", svc.handlePromote)
	r.Post("/api/v1/communities/{community_id}/scrape", svc.handleScheduleScrape)

	r.Get("/api/v1/tracked", svc.handleListTracked)
	r.Post("/api/v1/tracked/{item_id}/enable", svc.handleEnableTracking)
	r.Post("/api/v1/tracked/{item_id}/disable", svc.handleDisableTracking)

	r.Get("/api/v1/snapshots/undelivered", svc.handleListUndelivered)
	r.Get("/api/v1/snapshots/{snapshot_id}", svc.handleGetSnapshot)
	r.Post("/api/v1/snapshots/{snapshot_id}/delivered", svc.handleMarkDelivered)
	r.Post("/api/v1/snapshots/{snapshot_id}/notify", svc.handleRetryWebhook)

	r.Get("/api/v1/tasks", svc.handleListTasks)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the service's sentinel errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnknownTaskID):
		status = http.StatusNotFound
	case errors.Is(err, ErrAlreadyTracked),
		errors.Is(err, ErrTerminalState),
		errors.Is(err, ErrDuplicateTaskID):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (svc *Service) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ErrInvalidInput)
		return
	}
	u, err := svc.CreateUser(r.Context(), req.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (svc *Service) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := svc.DeleteUser(r.Context(), chi.URLParam(r, "user_id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (svc *Service) handleSubmitQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID     string `json:"user_id"`
		SearchText string `json:"search_text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ErrInvalidInput)
		return
	}
	q, err := svc.SubmitQuery(r.Context(), req.UserID, req.SearchText)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (svc *Service) handleListQueries(w http.ResponseWriter, r *http.Request) {
	queries, err := svc.ListQueries(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if queries == nil {
		queries = []*Query{}
	}
	writeJSON(w, http.StatusOK, queries)
}

func (svc *Service) handleGetQuery(w http.ResponseWriter, r *http.Request) {
	detail, err := svc.GetQueryDetail(r.Context(), chi.URLParam(r, "query_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (svc *Service) handleDeleteQuery(w http.ResponseWriter, r *http.Request) {
	if err := svc.DeleteQuery(r.Context(), chi.URLParam(r, "query_id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (svc *Service) handleGetCommunity(w http.ResponseWriter, r *http.Request) {
	detail, err := svc.GetCommunityDetail(r.Context(), chi.URLParam(r, "community_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (svc *Service) handleDeleteCommunity(w http.ResponseWriter, r *http.Request) {
	if err := svc.DeleteCommunity(r.Context(), chi.URLParam(r, "community_id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (svc *Service) handleSetTrackable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Trackable bool `json:"trackable"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ErrInvalidInput)
		return
	}
	if err := svc.SetCommunityTrackable(r.Context(), chi.URLParam(r, "community_id"), req.Trackable); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (svc *Service) handleListPosts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	posts, err := svc.ListPosts(r.Context(), chi.URLParam(r, "community_id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if posts == nil {
		posts = []*Post{}
	}
	writeJSON(w, http.StatusOK, posts)
}

func (svc *Service) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := svc.ListSnapshots(r.Context(), chi.URLParam(r, "community_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if snaps == nil {
		snaps = []*Snapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (svc *Service) handlePromote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID               string `json:"user_id"`
		ScrapeFrequencyHours int    `json:"scrape_frequency_hours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ErrInvalidInput)
		return
	}
	item, err := svc.Promote(r.Context(), chi.URLParam(r, "community_id"), req.UserID, req.ScrapeFrequencyHours)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (svc *Service) handleScheduleScrape(w http.ResponseWriter, r *http.Request) {
	var delay time.Duration
	if s := r.URL.Query().Get("delay_ms"); s != "" {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil || ms < 0 {
			writeError(w, ErrInvalidInput)
			return
		}
		delay = time.Duration(ms) * time.Millisecond
	}
	taskID, err := svc.ScheduleScrape(r.Context(), chi.URLParam(r, "community_id"), delay)
	if err != nil {
		writeError(w, err)
		return
	}
	if taskID == "" {
		// Another snapshot is in flight; nothing was scheduled.
		writeJSON(w, http.StatusOK, map[string]string{"status": "in_flight"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

func (svc *Service) handleListTracked(w http.ResponseWriter, r *http.Request) {
	items, err := svc.ListTracked(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (svc *Service) handleEnableTracking(w http.ResponseWriter, r *http.Request) {
	if err := svc.EnableTracking(r.Context(), chi.URLParam(r, "item_id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (svc *Service) handleDisableTracking(w http.ResponseWriter, r *http.Request) {
	if err := svc.DisableTracking(r.Context(), chi.URLParam(r, "item_id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (svc *Service) handleListUndelivered(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	snaps, err := svc.ListUndelivered(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if snaps == nil {
		snaps = []*Snapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (svc *Service) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	detail, err := svc.GetSnapshot(r.Context(), chi.URLParam(r, "snapshot_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (svc *Service) handleMarkDelivered(w http.ResponseWriter, r *http.Request) {
	if err := svc.MarkWebhookDelivered(r.Context(), chi.URLParam(r, "snapshot_id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (svc *Service) handleRetryWebhook(w http.ResponseWriter, r *http.Request) {
	if err := svc.RetryWebhook(r.Context(), chi.URLParam(r, "snapshot_id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (svc *Service) handleListTasks(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := svc.ListTaskLogs(r.Context(), r.URL.Query().Get("type"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if logs == nil {
		logs = []*TaskLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}
