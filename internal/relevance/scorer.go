package relevance

import (
	"context"
	"errors"
	"fmt"

	"github.com/lkraemer/gitscout/internal/database"
	"github.com/lkraemer/gitscout/internal/embed"
)

// Match is the result of scoring one text against all project contexts.
// Degraded marks a fallback score recorded while the embedding provider
// was unavailable: the score is 0.0 with no matched context, so the
// event is kept but ranked last instead of being dropped or faked.
type Match struct {
	Score    float64
	Context  string
	Degraded bool
}

// Scorer scores texts against the registered project contexts.
type Scorer struct {
	db    *database.DB
	cache *embed.Cache
}

// NewScorer creates a scorer over the context store and embedding cache.
func NewScorer(db *database.DB, cache *embed.Cache) *Scorer {
	return &Scorer{db: db, cache: cache}
}

// contextCandidates loads all contexts that have an embedding, in
// insertion order. Contexts without a vector never participate.
func (s *Scorer) contextCandidates() ([]Candidate, error) {
	contexts, err := s.db.GetProjectContexts()
	if err != nil {
		return nil, fmt.Errorf("loading contexts: %w", err)
	}
	var candidates []Candidate
	for _, pc := range contexts {
		if len(pc.Embedding) == 0 {
			continue
		}
		candidates = append(candidates, Candidate{ID: pc.Name, Vector: pc.Embedding})
	}
	return candidates, nil
}

// ScoreAgainstContexts embeds text and returns its best context match.
// With no scorable contexts the match is neutral (score 0, no context,
// not degraded). Embedding provider outages produce a degraded match.
func (s *Scorer) ScoreAgainstContexts(ctx context.Context, text string) (Match, error) {
	matches, err := s.ScoreMany(ctx, []string{text})
	if err != nil {
		return Match{}, err
	}
	return matches[0], nil
}

// ScoreMany scores several texts in one pass, embedding all of them with
// a single batched cache call. Returns one match per input, in order.
func (s *Scorer) ScoreMany(ctx context.Context, texts []string) ([]Match, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	candidates, err := s.contextCandidates()
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return make([]Match, len(texts)), nil
	}

	vectors, err := s.cache.EmbedMany(ctx, texts)
	if err != nil {
		var ue *embed.UnavailableError
		if errors.As(err, &ue) {
			degraded := make([]Match, len(texts))
			for i := range degraded {
				degraded[i].Degraded = true
			}
			return degraded, nil
		}
		return nil, err
	}

	matches := make([]Match, len(texts))
	for i, vec := range vectors {
		name, score, err := BestMatch(vec, candidates)
		if err != nil {
			return nil, err
		}
		matches[i] = Match{Score: clampScore(score), Context: name}
	}
	return matches, nil
}

// ScoreAgainstQuery scores texts against an ad-hoc query instead of the
// stored contexts. The query and all texts are embedded in one batched
// cache call. Used by discovery when ranking search results.
func (s *Scorer) ScoreAgainstQuery(ctx context.Context, query string, texts []string) ([]Match, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := s.cache.EmbedMany(ctx, append([]string{query}, texts...))
	if err != nil {
		var ue *embed.UnavailableError
		if errors.As(err, &ue) {
			degraded := make([]Match, len(texts))
			for i := range degraded {
				degraded[i].Degraded = true
			}
			return degraded, nil
		}
		return nil, err
	}

	queryVec := vectors[0]
	matches := make([]Match, len(texts))
	for i, vec := range vectors[1:] {
		score, err := Cosine(queryVec, vec)
		if err != nil {
			return nil, err
		}
		matches[i] = Match{Score: clampScore(score)}
	}
	return matches, nil
}

// clampScore maps cosine similarity onto the stored 0..1 relevance
// range. Negative similarity carries no ranking signal for this use.
func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
