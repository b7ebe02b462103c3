package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lkraemer/gitscout/internal/database"
	"github.com/lkraemer/gitscout/internal/github"
)

// ErrScoringUnavailable reports that the embedding provider was down
// while ranking search results. Discovery aborts without recording
// candidates rather than persisting degraded zero scores.
var ErrScoringUnavailable = errors.New("embedding provider unavailable, candidates not ranked")

// Discover searches for repositories matching query, scores them against
// the stored project contexts (or the query itself when no contexts
// exist), and records candidates above the configured score floor.
// Returns the surviving candidates, best score first, up to limit.
func (e *Engine) Discover(ctx context.Context, query string, limit int) ([]database.DiscoveryCandidate, error) {
	if limit <= 0 {
		limit = 10
	}

	filters := github.ListFilters{MinStars: e.cfg.Discovery.MinStars}
	maxWait := time.Duration(e.cfg.Poll.MaxRateLimitWaitSecs) * time.Second
	if maxWait <= 0 {
		maxWait = 60 * time.Second
	}

	// Over-fetch so the score floor and watched-repo filter still leave
	// enough survivors.
	var results []github.Repo
	err := withRetry(ctx, "search", e.cfg.Poll.MaxRetries, maxWait, e.sleep, func() error {
		var err error
		results, err = e.source.Search(ctx, query, filters, limit*2)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("searching repositories: %w", err)
	}

	watched, err := e.db.GetWatchedRepos()
	if err != nil {
		return nil, err
	}
	watchedSet := make(map[string]struct{}, len(watched))
	for _, w := range watched {
		watchedSet[w.FullName] = struct{}{}
	}

	var repos []github.Repo
	var texts []string
	for _, r := range results {
		if _, ok := watchedSet[r.FullName]; ok {
			continue
		}
		repos = append(repos, r)
		texts = append(texts, candidateText(r))
	}
	if len(repos) == 0 {
		return nil, nil
	}

	// One batched embedding call covers the query and every candidate.
	contexts, err := e.db.GetProjectContexts()
	if err != nil {
		return nil, err
	}
	var matches []relevanceMatches
	if hasEmbeddedContext(contexts) {
		scored, err := e.scorer.ScoreMany(ctx, texts)
		if err != nil {
			return nil, err
		}
		for _, m := range scored {
			if m.Degraded {
				return nil, ErrScoringUnavailable
			}
			matches = append(matches, relevanceMatches{score: m.Score, context: m.Context})
		}
	} else {
		scored, err := e.scorer.ScoreAgainstQuery(ctx, query, texts)
		if err != nil {
			return nil, err
		}
		for _, m := range scored {
			if m.Degraded {
				return nil, ErrScoringUnavailable
			}
			matches = append(matches, relevanceMatches{score: m.Score})
		}
	}

	now := e.now().UTC().Format(time.RFC3339)
	var survivors []database.DiscoveryCandidate
	for i, r := range repos {
		if matches[i].score < e.cfg.Discovery.MinScore {
			continue
		}
		c := database.DiscoveryCandidate{
			FullName:        r.FullName,
			DiscoveredAt:    now,
			SimilarityScore: matches[i].score,
			Stars:           r.Stars,
		}
		if matches[i].context != "" {
			name := matches[i].context
			c.MatchedContext = &name
		}
		if r.Description != "" {
			desc := r.Description
			c.Description = &desc
		}
		if r.Language != "" {
			lang := r.Language
			c.Language = &lang
		}
		if err := e.db.UpsertCandidate(c); err != nil {
			return nil, err
		}
		survivors = append(survivors, c)
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].SimilarityScore > survivors[j].SimilarityScore
	})
	if len(survivors) > limit {
		survivors = survivors[:limit]
	}
	return survivors, nil
}

type relevanceMatches struct {
	score   float64
	context string
}

func hasEmbeddedContext(contexts []database.ProjectContext) bool {
	for _, c := range contexts {
		if len(c.Embedding) > 0 {
			return true
		}
	}
	return false
}

func candidateText(r github.Repo) string {
	parts := []string{r.FullName}
	if r.Description != "" {
		parts = append(parts, r.Description)
	}
	if r.Language != "" {
		parts = append(parts, r.Language)
	}
	if len(r.Topics) > 0 {
		parts = append(parts, strings.Join(r.Topics, " "))
	}
	return strings.Join(parts, "\n")
}
