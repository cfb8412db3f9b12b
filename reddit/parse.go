package reddit

import (
	"html"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/redveille/discovery"
)

// listing mirrors the subset of a Reddit JSON API listing we consume.
type listing struct {
	Data struct {
		Children []struct {
			Data postData `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type postData struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Selftext     string  `json:"selftext"`
	SelftextHTML string  `json:"selftext_html"`
	Author       string  `json:"author"`
	Score        int64   `json:"score"`
	NumComments  int64   `json:"num_comments"`
	Permalink    string  `json:"permalink"`
	URL          string  `json:"url"`
	CreatedUTC   float64 `json:"created_utc"`
}

var (
	htmlPolicy  = bluemonday.UGCPolicy()
	mdConverter = converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
		),
	)
)

// parsePost reshapes one listing entry into a RawPost. Entries without an id
// or title are rejected. Plain selftext is preferred; when only the HTML
// body is present it is sanitized and converted to markdown.
func parsePost(d *postData) (discovery.RawPost, bool) {
	if d.ID == "" || strings.TrimSpace(d.Title) == "" {
		return discovery.RawPost{}, false
	}

	content := strings.TrimSpace(d.Selftext)
	if content == "" && d.SelftextHTML != "" {
		content = htmlToMarkdown(d.SelftextHTML)
	}

	url := d.URL
	if url == "" && d.Permalink != "" {
		url = "https://www.reddit.com" + d.Permalink
	}

	return discovery.RawPost{
		PostID:        d.ID,
		Title:         strings.TrimSpace(d.Title),
		Content:       content,
		Author:        d.Author,
		Upvotes:       d.Score,
		CommentsCount: d.NumComments,
		URL:           url,
		PostedAt:      int64(d.CreatedUTC * 1000),
	}, true
}

// htmlToMarkdown sanitizes untrusted HTML and converts it to markdown.
// Returns "" when nothing survives. The API entity-escapes selftext_html,
// so it is unescaped first.
func htmlToMarkdown(raw string) string {
	clean := htmlPolicy.Sanitize(html.UnescapeString(raw))
	if strings.TrimSpace(clean) == "" {
		return ""
	}
	md, err := mdConverter.ConvertString(clean)
	if err != nil {
		return strings.TrimSpace(clean)
	}
	return strings.TrimSpace(md)
}
