package github

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

const atomBaseURL = "https://github.com"

// AtomFetcher reads releases and commits from a repository's public Atom
// feeds. It needs no token, so it backs the unauthenticated path of Client.
// The feeds carry less detail than the REST API (no release body markdown
// beyond the rendered HTML, default branch only) but are enough for event
// detection.
type AtomFetcher struct {
	parser  *gofeed.Parser
	baseURL string
}

// NewAtomFetcher creates an Atom feed fetcher sharing the given HTTP client.
func NewAtomFetcher(client *http.Client) *AtomFetcher {
	parser := gofeed.NewParser()
	parser.Client = client
	return &AtomFetcher{parser: parser, baseURL: atomBaseURL}
}

// ReleasesSince parses releases.atom and returns entries published after
// since (RFC 3339, empty for all).
func (a *AtomFetcher) ReleasesSince(ctx context.Context, fullName, since string) ([]Release, error) {
	feed, err := a.parse(ctx, fullName+"/releases.atom")
	if err != nil {
		return nil, err
	}

	var releases []Release
	for _, item := range feed.Items {
		published := itemTime(item)
		if published == "" {
			continue
		}
		if since != "" && published <= since {
			continue
		}
		releases = append(releases, Release{
			Tag:         lastPathSegment(item.Link),
			Name:        strings.TrimSpace(item.Title),
			Body:        item.Content,
			PublishedAt: published,
			URL:         item.Link,
		})
	}
	return releases, nil
}

// CommitsSince parses commits.atom (default branch) and returns commits after
// since, newest first, up to limit.
func (a *AtomFetcher) CommitsSince(ctx context.Context, fullName, since string, limit int) ([]Commit, error) {
	feed, err := a.parse(ctx, fullName+"/commits.atom")
	if err != nil {
		return nil, err
	}

	var commits []Commit
	for _, item := range feed.Items {
		if limit > 0 && len(commits) >= limit {
			break
		}
		date := itemTime(item)
		if date == "" {
			continue
		}
		if since != "" && date <= since {
			continue
		}
		commits = append(commits, Commit{
			SHA:     lastPathSegment(item.Link),
			Message: firstLine(strings.TrimSpace(item.Title)),
			Date:    date,
		})
	}
	return commits, nil
}

func (a *AtomFetcher) parse(ctx context.Context, path string) (*gofeed.Feed, error) {
	feed, err := a.parser.ParseURLWithContext(a.baseURL+"/"+path, ctx)
	if err != nil {
		if he, ok := err.(gofeed.HTTPError); ok && he.StatusCode == 404 {
			return nil, ErrNotFound
		}
		return nil, &TransientError{Err: err}
	}
	return feed, nil
}

func itemTime(item *gofeed.Item) string {
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed.UTC().Format(time.RFC3339)
	}
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC().Format(time.RFC3339)
	}
	return ""
}

func lastPathSegment(link string) string {
	link = strings.TrimSuffix(link, "/")
	if i := strings.LastIndexByte(link, '/'); i >= 0 {
		return link[i+1:]
	}
	return link
}
