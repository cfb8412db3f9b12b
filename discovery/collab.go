package discovery

import "context"

// Candidate is a community candidate returned by a CommunitySearcher before
// it is scored and persisted.
type Candidate struct {
	Name         string // e.g. r/python
	Description  string
	URL          string
	MembersCount int64
}

// RawPost is an unvalidated post returned by a PostFetcher. Validation and
// reshaping happen at ingestion.
type RawPost struct {
	PostID        string
	Title         string
	Content       string
	Author        string
	Upvotes       int64
	CommentsCount int64
	URL           string
	PostedAt      int64 // milliseconds since epoch; 0 when unknown
}

// TopicExtractor derives search topics from free query text. Failures are
// degraded by the caller: the whole text becomes the single topic.
type TopicExtractor interface {
	ExtractTopics(ctx context.Context, text string) ([]string, error)
}

// RelevanceScorer rates a candidate against the extracted topics. The
// returned value is clamped to [0,1] by the caller; failures degrade to a
// neutral 0.5.
type RelevanceScorer interface {
	Score(ctx context.Context, name, description string, topics []string) (float64, error)
}

// CommunitySearcher finds candidate communities for a set of topics.
type CommunitySearcher interface {
	SearchCommunities(ctx context.Context, topics []string) ([]Candidate, error)
}

// PostFetcher retrieves recent posts for a community by name. A failure
// fails the enclosing snapshot.
type PostFetcher interface {
	FetchPosts(ctx context.Context, communityName string) ([]RawPost, error)
}
