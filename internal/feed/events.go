// Package feed is the polling engine: it turns upstream repository
// activity into deduplicated, relevance-scored feed events and ranks
// discovery candidates.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lkraemer/gitscout/internal/github"
	"github.com/lkraemer/gitscout/internal/summarize"
)

// Event kinds stored in feed_events.event_type.
const (
	EventRelease      = "release"
	EventCommitBurst  = "commit_burst"
	EventReadmeChange = "readme_change"
	EventNewRepo      = "new_repo"
)

// watchDedupKey is the fixed dedup key for new_repo events: a repo is
// only ever new to the watch list once.
const watchDedupKey = "watch"

const scoringExcerptLimit = 500

// candidate is one classified change, not yet deduplicated or scored.
type candidate struct {
	eventType   string
	dedupKey    string
	eventAt     string
	title       string
	scoringText string
	rawData     string
	summarize   func(ctx context.Context, s *summarize.Summarizer, projectContext string) (string, error)
}

func releaseCandidate(repoFullName string, rel github.Release) candidate {
	title := rel.Tag
	if rel.Name != "" && rel.Name != rel.Tag {
		title = fmt.Sprintf("%s (%s)", rel.Name, rel.Tag)
	}
	return candidate{
		eventType:   EventRelease,
		dedupKey:    rel.Tag,
		eventAt:     rel.PublishedAt,
		title:       "Release " + title,
		scoringText: scoringText(repoFullName+" release "+title, rel.Body),
		rawData:     mustJSON(rel),
		summarize: func(ctx context.Context, s *summarize.Summarizer, projectContext string) (string, error) {
			return s.Release(ctx, repoFullName, rel.Tag, rel.Body, projectContext)
		},
	}
}

// commitBurstCandidate coalesces a burst into one event keyed by the
// UTC day of its newest commit, so re-polls within the same day never
// produce a second event and a burst spanning midnight yields at most
// one event per day.
func commitBurstCandidate(repoFullName string, commits []github.Commit) candidate {
	newest := commits[0]
	day := newest.Date
	if t, err := time.Parse(time.RFC3339, newest.Date); err == nil {
		day = t.UTC().Format("2006-01-02")
	}

	var messages []string
	for _, c := range commits {
		messages = append(messages, c.Message)
	}
	return candidate{
		eventType:   EventCommitBurst,
		dedupKey:    day,
		eventAt:     newest.Date,
		title:       fmt.Sprintf("%d commits", len(commits)),
		scoringText: scoringText(repoFullName+" commit activity", strings.Join(messages, "\n")),
		rawData:     mustJSON(commits),
		summarize: func(ctx context.Context, s *summarize.Summarizer, projectContext string) (string, error) {
			return s.CommitBurst(ctx, repoFullName, messages, projectContext)
		},
	}
}

func readmeCandidate(repoFullName string, readme *github.Readme, eventAt string) candidate {
	return candidate{
		eventType:   EventReadmeChange,
		dedupKey:    readme.Hash,
		eventAt:     eventAt,
		title:       "README updated",
		scoringText: scoringText(repoFullName+" README updated", readme.Content),
		rawData:     mustJSON(map[string]string{"hash": readme.Hash}),
		summarize: func(ctx context.Context, s *summarize.Summarizer, projectContext string) (string, error) {
			return s.ReadmeChange(ctx, repoFullName, readme.Content, projectContext)
		},
	}
}

func newRepoCandidate(repoFullName, description, eventAt string) candidate {
	return candidate{
		eventType:   EventNewRepo,
		dedupKey:    watchDedupKey,
		eventAt:     eventAt,
		title:       "Now watching " + repoFullName,
		scoringText: scoringText(repoFullName, description),
		rawData:     mustJSON(map[string]string{"description": description}),
		summarize: func(ctx context.Context, s *summarize.Summarizer, projectContext string) (string, error) {
			return s.Repo(ctx, repoFullName, description, "", projectContext)
		},
	}
}

// scoringText builds the text handed to the relevance engine: the title
// plus a short excerpt of the payload.
func scoringText(title, body string) string {
	body = strings.TrimSpace(body)
	if len(body) > scoringExcerptLimit {
		body = body[:scoringExcerptLimit]
	}
	if body == "" {
		return title
	}
	return title + "\n" + body
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
