package store

// Schema is the complete discovery schema. All timestamps are INTEGER
// milliseconds since epoch (UTC); all primary keys are TEXT UUIDs.
//
// Foreign keys carry ON DELETE CASCADE as a backstop, but deletion goes
// through the explicit cascade methods on Store so the ownership graph does
// not depend on the pragma being active.
const Schema = `
-- Owning users (ownership references only; auth lives elsewhere)
CREATE TABLE IF NOT EXISTS users (
    id         TEXT PRIMARY KEY,
    username   TEXT NOT NULL UNIQUE,
    created_at INTEGER NOT NULL
);

-- User search queries and their lifecycle
CREATE TABLE IF NOT EXISTS queries (
    id            TEXT PRIMARY KEY,
    user_id       TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    search_text   TEXT NOT NULL,
    status        TEXT NOT NULL DEFAULT 'pending',
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL,
    completed_at  INTEGER,
    error_message TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_queries_user ON queries(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_queries_status ON queries(status);

-- Communities discovered for a query, at most once per (query, name)
CREATE TABLE IF NOT EXISTS communities (
    id              TEXT PRIMARY KEY,
    query_id        TEXT NOT NULL REFERENCES queries(id) ON DELETE CASCADE,
    name            TEXT NOT NULL,
    description     TEXT NOT NULL DEFAULT '',
    url             TEXT NOT NULL DEFAULT '',
    members_count   INTEGER NOT NULL DEFAULT 0,
    relevance_score REAL NOT NULL DEFAULT 0,
    is_trackable    INTEGER NOT NULL DEFAULT 0,
    discovered_at   INTEGER NOT NULL,
    UNIQUE (query_id, name)
);
CREATE INDEX IF NOT EXISTS idx_communities_name ON communities(name);
CREATE INDEX IF NOT EXISTS idx_communities_trackable ON communities(is_trackable);

-- Posts ingested from snapshots, deduplicated globally by post_id
CREATE TABLE IF NOT EXISTS posts (
    id             TEXT PRIMARY KEY,
    community_id   TEXT NOT NULL REFERENCES communities(id) ON DELETE CASCADE,
    post_id        TEXT NOT NULL UNIQUE,
    title          TEXT NOT NULL,
    content        TEXT NOT NULL DEFAULT '',
    author         TEXT NOT NULL DEFAULT '',
    upvotes        INTEGER NOT NULL DEFAULT 0,
    comments_count INTEGER NOT NULL DEFAULT 0,
    post_url       TEXT NOT NULL DEFAULT '',
    posted_at      INTEGER NOT NULL DEFAULT 0,
    scraped_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_posts_community ON posts(community_id, posted_at DESC);

-- Opt-in continuous tracking; one active record per community
CREATE TABLE IF NOT EXISTS trackable_items (
    id                     TEXT PRIMARY KEY,
    community_id           TEXT NOT NULL REFERENCES communities(id) ON DELETE CASCADE,
    user_id                TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    tracking_enabled       INTEGER NOT NULL DEFAULT 1,
    last_scraped_at        INTEGER,
    scrape_frequency_hours INTEGER NOT NULL DEFAULT 24,
    created_at             INTEGER NOT NULL,
    UNIQUE (community_id),
    UNIQUE (community_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_trackable_user ON trackable_items(user_id, tracking_enabled);

-- One scraping attempt against a tracked community
CREATE TABLE IF NOT EXISTS snapshots (
    id                TEXT PRIMARY KEY,
    community_id      TEXT NOT NULL REFERENCES communities(id) ON DELETE CASCADE,
    status            TEXT NOT NULL DEFAULT 'pending',
    started_at        INTEGER NOT NULL,
    completed_at      INTEGER,
    posts_scraped     INTEGER NOT NULL DEFAULT 0,
    error_message     TEXT NOT NULL DEFAULT '',
    webhook_delivered INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_snapshots_community ON snapshots(community_id, status);
CREATE INDEX IF NOT EXISTS idx_snapshots_started ON snapshots(started_at DESC);

-- At most one snapshot per community may be pending or in_progress.
-- Backstop for the claim's WHERE NOT EXISTS under concurrent schedulers.
CREATE UNIQUE INDEX IF NOT EXISTS idx_snapshots_inflight
    ON snapshots(community_id) WHERE status IN ('pending', 'in_progress');

-- Append-only background task audit trail
CREATE TABLE IF NOT EXISTS task_log (
    id             TEXT PRIMARY KEY,
    task_type      TEXT NOT NULL,
    task_id        TEXT NOT NULL UNIQUE,
    related_object TEXT NOT NULL DEFAULT '',
    started_at     INTEGER NOT NULL,
    completed_at   INTEGER,
    status         TEXT NOT NULL DEFAULT 'started',
    result_json    TEXT NOT NULL DEFAULT '{}',
    error          TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_task_log_type ON task_log(task_type, status);
`
