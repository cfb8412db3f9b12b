package store

import (
	"context"
	"database/sql"

	"github.com/hazyhaar/redveille/dbopen"
)

// InsertPosts ingests a batch of posts in one transaction, deduplicated by
// the externally-sourced post_id. Re-ingesting an already-seen post_id is a
// no-op (posts are immutable after ingestion). Returns the number of newly
// inserted rows.
func (s *Store) InsertPosts(ctx context.Context, posts []*Post) (int, error) {
	var inserted int64
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		inserted = 0
		for _, p := range posts {
			if p.ScrapedAt == 0 {
				p.ScrapedAt = nowMilli()
			}
			res, err := tx.Exec(
				`INSERT INTO posts (id, community_id, post_id, title, content, author,
				 upvotes, comments_count, post_url, posted_at, scraped_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT (post_id) DO NOTHING`,
				p.ID, p.CommunityID, p.PostID, p.Title, p.Content, p.Author,
				p.Upvotes, p.CommentsCount, p.PostURL, p.PostedAt, p.ScrapedAt)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			inserted += n
		}
		return nil
	})
	return int(inserted), err
}

// ListPostsByCommunity returns a community's posts, newest on Reddit first.
func (s *Store) ListPostsByCommunity(ctx context.Context, communityID string, limit int) ([]*Post, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, community_id, post_id, title, content, author,
		 upvotes, comments_count, post_url, posted_at, scraped_at
		 FROM posts WHERE community_id = ?
		 ORDER BY posted_at DESC LIMIT ?`, communityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []*Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.CommunityID, &p.PostID, &p.Title, &p.Content,
			&p.Author, &p.Upvotes, &p.CommentsCount, &p.PostURL, &p.PostedAt, &p.ScrapedAt); err != nil {
			return nil, err
		}
		posts = append(posts, &p)
	}
	return posts, rows.Err()
}
