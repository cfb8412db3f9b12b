package store

// Query lifecycle statuses. pending is initial; completed and failed are
// terminal and never left.
const (
	QueryPending    = "pending"
	QueryProcessing = "processing"
	QueryCompleted  = "completed"
	QueryFailed     = "failed"
)

// Snapshot lifecycle statuses.
const (
	SnapshotPending    = "pending"
	SnapshotInProgress = "in_progress"
	SnapshotCompleted  = "completed"
	SnapshotFailed     = "failed"
)

// Task log task types.
const (
	TaskScrape  = "scrape"
	TaskProcess = "process"
	TaskNotify  = "notify"
)

// Task log statuses. started is initial; success and failure are terminal.
const (
	TaskStarted = "started"
	TaskSuccess = "success"
	TaskFailure = "failure"
)

// User is an owning user reference.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	CreatedAt int64  `json:"created_at"`
}

// Query is a user's discovery request and its processing lifecycle.
type Query struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	SearchText   string `json:"search_text"`
	Status       string `json:"status"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
	CompletedAt  *int64 `json:"completed_at,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Community is a subreddit discovered for a query, scored for relevance.
type Community struct {
	ID             string  `json:"id"`
	QueryID        string  `json:"query_id"`
	Name           string  `json:"name"` // e.g. r/python
	Description    string  `json:"description"`
	URL            string  `json:"url"`
	MembersCount   int64   `json:"members_count"`
	RelevanceScore float64 `json:"relevance_score"` // always in [0,1]
	IsTrackable    bool    `json:"is_trackable"`
	DiscoveredAt   int64   `json:"discovered_at"`
}

// Post is one piece of content ingested during a snapshot.
type Post struct {
	ID            string `json:"id"`
	CommunityID   string `json:"community_id"`
	PostID        string `json:"post_id"` // externally-sourced, globally unique
	Title         string `json:"title"`
	Content       string `json:"content"`
	Author        string `json:"author"`
	Upvotes       int64  `json:"upvotes"`
	CommentsCount int64  `json:"comments_count"`
	PostURL       string `json:"post_url"`
	PostedAt      int64  `json:"posted_at"`
	ScrapedAt     int64  `json:"scraped_at"`
}

// TrackableItem is a user's opt-in to continuous monitoring of a community.
type TrackableItem struct {
	ID                   string `json:"id"`
	CommunityID          string `json:"community_id"`
	UserID               string `json:"user_id"`
	TrackingEnabled      bool   `json:"tracking_enabled"`
	LastScrapedAt        *int64 `json:"last_scraped_at,omitempty"`
	ScrapeFrequencyHours int    `json:"scrape_frequency_hours"`
	CreatedAt            int64  `json:"created_at"`
}

// Snapshot is one scraping attempt against a tracked community.
type Snapshot struct {
	ID               string `json:"id"`
	CommunityID      string `json:"community_id"`
	Status           string `json:"status"`
	StartedAt        int64  `json:"started_at"`
	CompletedAt      *int64 `json:"completed_at,omitempty"`
	PostsScraped     int    `json:"posts_scraped"`
	ErrorMessage     string `json:"error_message,omitempty"`
	WebhookDelivered bool   `json:"webhook_delivered"`
}

// TaskLog is one background task attempt, correlated by task_id.
type TaskLog struct {
	ID            string `json:"id"`
	TaskType      string `json:"task_type"`
	TaskID        string `json:"task_id"`
	RelatedObject string `json:"related_object"`
	StartedAt     int64  `json:"started_at"`
	CompletedAt   *int64 `json:"completed_at,omitempty"`
	Status        string `json:"status"`
	ResultJSON    string `json:"result"`
	Error         string `json:"error,omitempty"`
}
