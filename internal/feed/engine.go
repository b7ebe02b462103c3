package feed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lkraemer/gitscout/internal/config"
	"github.com/lkraemer/gitscout/internal/database"
	"github.com/lkraemer/gitscout/internal/github"
	"github.com/lkraemer/gitscout/internal/relevance"
	"github.com/lkraemer/gitscout/internal/summarize"
)

// Engine runs poll sweeps over the watch list and ranks discovery
// candidates. Repositories are polled concurrently; the feed_events
// uniqueness constraint is what keeps concurrent writers idempotent.
type Engine struct {
	db         *database.DB
	source     github.Source
	scorer     *relevance.Scorer
	summarizer *summarize.Summarizer
	cfg        *config.Config

	// Injectable for tests.
	now   func() time.Time
	sleep func(time.Duration)
}

// NewEngine creates a feed engine. summarizer may be nil to disable
// event summaries.
func NewEngine(db *database.DB, source github.Source, scorer *relevance.Scorer,
	summarizer *summarize.Summarizer, cfg *config.Config) *Engine {
	return &Engine{
		db:         db,
		source:     source,
		scorer:     scorer,
		summarizer: summarizer,
		cfg:        cfg,
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

// RepoFailure records one repository that could not be polled.
type RepoFailure struct {
	Repo string
	Err  error
}

// SweepResult aggregates one poll sweep across the whole watch list.
type SweepResult struct {
	ReposChecked  int
	NewEvents     int
	Releases      int
	CommitBursts  int
	ReadmeChanges int
	NewRepos      int
	Failures      []RepoFailure
}

// PollAll polls every watched repository. Per-repository failures are
// collected in the result, never escalated to fail the sweep.
func (e *Engine) PollAll(ctx context.Context) (*SweepResult, error) {
	repos, err := e.db.GetWatchedRepos()
	if err != nil {
		return nil, err
	}

	workers := e.cfg.Poll.Workers
	if workers <= 0 {
		workers = 4
	}

	result := &SweepResult{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, repo := range repos {
		repo := repo
		g.Go(func() error {
			inserted, pollErr := e.pollRepo(gctx, repo)

			mu.Lock()
			defer mu.Unlock()
			result.ReposChecked++
			if pollErr != nil {
				result.Failures = append(result.Failures, RepoFailure{Repo: repo.FullName, Err: pollErr})
				log.Printf("Polling %s failed: %v", repo.FullName, pollErr)
				return nil
			}
			for _, ev := range inserted {
				result.NewEvents++
				switch ev.eventType {
				case EventRelease:
					result.Releases++
				case EventCommitBurst:
					result.CommitBursts++
				case EventReadmeChange:
					result.ReadmeChanges++
				case EventNewRepo:
					result.NewRepos++
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

// PollRepo polls a single repository by name.
func (e *Engine) PollRepo(ctx context.Context, fullName string) (*SweepResult, error) {
	repo, err := e.db.GetWatchedRepo(fullName)
	if err != nil {
		return nil, err
	}
	if repo == nil {
		return nil, fmt.Errorf("not watching %s", fullName)
	}

	result := &SweepResult{ReposChecked: 1}
	inserted, err := e.pollRepo(ctx, *repo)
	if err != nil {
		result.Failures = append(result.Failures, RepoFailure{Repo: fullName, Err: err})
		return result, nil
	}
	for _, ev := range inserted {
		result.NewEvents++
		switch ev.eventType {
		case EventRelease:
			result.Releases++
		case EventCommitBurst:
			result.CommitBursts++
		case EventReadmeChange:
			result.ReadmeChanges++
		case EventNewRepo:
			result.NewRepos++
		}
	}
	return result, nil
}

// pollRepo runs one poll cycle: fetch, classify, dedup-check, score,
// persist, then advance last_checked. A crash after persist but before
// last_checked is safe: the next cycle re-derives the same dedup keys
// and finds them stored.
func (e *Engine) pollRepo(ctx context.Context, repo database.WatchedRepo) ([]candidate, error) {
	now := e.now().UTC()
	nowStr := now.Format(time.RFC3339)

	lookback := e.cfg.Poll.LookbackDays
	if lookback <= 0 {
		lookback = 7
	}
	since := now.AddDate(0, 0, -lookback).Format(time.RFC3339)
	if repo.LastChecked != nil && *repo.LastChecked > since {
		since = *repo.LastChecked
	}

	candidates, newReadmeHash, err := e.classify(ctx, repo, since, nowStr)
	if err != nil {
		return nil, err
	}

	// Dedup against the store before scoring so already-recorded changes
	// cost no embedding calls.
	var fresh []candidate
	for _, c := range candidates {
		exists, err := e.db.HasFeedEvent(repo.FullName, c.eventType, c.dedupKey)
		if err != nil {
			return nil, err
		}
		if !exists {
			fresh = append(fresh, c)
		}
	}

	var inserted []candidate
	if len(fresh) > 0 {
		texts := make([]string, len(fresh))
		for i, c := range fresh {
			texts[i] = c.scoringText
		}
		matches, err := e.scorer.ScoreMany(ctx, texts)
		if err != nil {
			return nil, err
		}

		lastSummary := ""
		for i, c := range fresh {
			summary := e.summarizeCandidate(ctx, repo.FullName, c, matches[i].Context)

			ev := database.FeedEvent{
				RepoFullName:   repo.FullName,
				EventType:      c.eventType,
				DedupKey:       c.dedupKey,
				EventAt:        c.eventAt,
				Title:          c.title,
				RelevanceScore: matches[i].Score,
				ScoreDegraded:  matches[i].Degraded,
			}
			if summary != "" {
				ev.Summary = &summary
			}
			if matches[i].Context != "" {
				name := matches[i].Context
				ev.MatchedContext = &name
			}
			if c.rawData != "" {
				raw := c.rawData
				ev.RawData = &raw
			}

			id, err := e.db.InsertFeedEvent(ev)
			if err != nil {
				return nil, err
			}
			if id != 0 {
				inserted = append(inserted, c)
				if summary != "" {
					lastSummary = summary
				}
			}
		}

		if lastSummary != "" {
			if err := e.db.UpdateRepoSummary(repo.FullName, lastSummary); err != nil {
				return nil, err
			}
		}
	}

	if newReadmeHash != "" {
		if err := e.db.UpdateRepoReadmeHash(repo.FullName, newReadmeHash); err != nil {
			return nil, err
		}
	}
	if err := e.db.MarkRepoChecked(repo.FullName, nowStr); err != nil {
		return nil, err
	}
	return inserted, nil
}

// classify fetches upstream activity and turns it into event candidates.
// Returns the new README hash to record, if it changed or was baselined.
func (e *Engine) classify(ctx context.Context, repo database.WatchedRepo, since, nowStr string) ([]candidate, string, error) {
	maxRetries := e.cfg.Poll.MaxRetries
	maxWait := time.Duration(e.cfg.Poll.MaxRateLimitWaitSecs) * time.Second
	if maxWait <= 0 {
		maxWait = 60 * time.Second
	}
	retry := func(fn func() error) error {
		return withRetry(ctx, repo.FullName, maxRetries, maxWait, e.sleep, fn)
	}

	var candidates []candidate

	// A discovered repo's first poll announces it on the feed.
	if repo.Origin == database.OriginDiscovered && repo.LastChecked == nil {
		description := ""
		var meta *github.Repo
		err := retry(func() error {
			var err error
			meta, err = e.source.GetRepo(ctx, repo.FullName)
			return err
		})
		if err == nil {
			description = meta.Description
		} else if !errors.Is(err, github.ErrNotFound) {
			return nil, "", err
		}
		candidates = append(candidates, newRepoCandidate(repo.FullName, description, nowStr))
	}

	var releases []github.Release
	err := retry(func() error {
		var err error
		releases, err = e.source.ReleasesSince(ctx, repo.FullName, since)
		return err
	})
	if err != nil && !errors.Is(err, github.ErrNotFound) {
		return nil, "", err
	}
	for _, rel := range releases {
		candidates = append(candidates, releaseCandidate(repo.FullName, rel))
	}

	var commits []github.Commit
	err = retry(func() error {
		var err error
		commits, err = e.source.CommitsSince(ctx, repo.FullName, since, 100)
		return err
	})
	if err != nil && !errors.Is(err, github.ErrNotFound) {
		return nil, "", err
	}
	threshold := e.cfg.Poll.CommitBurstThreshold
	if threshold <= 0 {
		threshold = 3
	}
	if len(commits) >= threshold {
		candidates = append(candidates, commitBurstCandidate(repo.FullName, commits))
	}

	var readme *github.Readme
	err = retry(func() error {
		var err error
		readme, err = e.source.GetReadme(ctx, repo.FullName)
		return err
	})
	newReadmeHash := ""
	if err != nil {
		if !errors.Is(err, github.ErrNotFound) {
			return nil, "", err
		}
	} else {
		switch {
		case repo.ReadmeHash == nil:
			// First observation is the baseline, not a change.
			newReadmeHash = readme.Hash
		case *repo.ReadmeHash != readme.Hash:
			candidates = append(candidates, readmeCandidate(repo.FullName, readme, nowStr))
			newReadmeHash = readme.Hash
		}
	}

	return candidates, newReadmeHash, nil
}

func (e *Engine) summarizeCandidate(ctx context.Context, repoFullName string, c candidate, matchedContext string) string {
	if e.summarizer == nil || !e.summarizer.IsConfigured() || c.summarize == nil {
		return ""
	}
	summary, err := c.summarize(ctx, e.summarizer, matchedContext)
	if err != nil {
		log.Printf("Summarizing %s %s failed: %v", repoFullName, c.eventType, err)
		return ""
	}
	return summary
}
