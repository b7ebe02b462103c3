// Package summarize generates the short natural-language summaries
// attached to feed events, repositories, and digests.
package summarize

import (
	"context"
	"fmt"
	"strings"

	"github.com/lkraemer/gitscout/internal/database"
	"github.com/lkraemer/gitscout/internal/llm"
)

const (
	repoMaxTokens   = 300
	eventMaxTokens  = 150
	digestMaxTokens = 400

	readmeExcerptLimit = 3000
	notesExcerptLimit  = 2000
	maxCommitLines     = 20
	maxDigestEvents    = 30
)

// Summarizer wraps a text provider with the prompt templates for each
// event kind. All methods return the trimmed summary text.
type Summarizer struct {
	provider llm.Provider
}

// New creates a summarizer over provider.
func New(provider llm.Provider) *Summarizer {
	return &Summarizer{provider: provider}
}

// IsConfigured reports whether the underlying provider can be used.
func (s *Summarizer) IsConfigured() bool {
	return s.provider.IsConfigured()
}

func (s *Summarizer) generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	out, err := s.provider.Generate(ctx, prompt, maxTokens)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Repo produces a 2-3 sentence summary of a repository, optionally
// framed against a project context description.
func (s *Summarizer) Repo(ctx context.Context, repoName, description, readmeExcerpt, projectContext string) (string, error) {
	parts := []string{"Repository: " + repoName}
	if description != "" {
		parts = append(parts, "Description: "+description)
	}
	if readmeExcerpt != "" {
		parts = append(parts, "README excerpt:\n"+truncate(readmeExcerpt, readmeExcerptLimit))
	}

	contextHint := ""
	if projectContext != "" {
		contextHint = "\nFrame the summary in terms of relevance to: " + projectContext
	}

	prompt := fmt.Sprintf(`Summarize this GitHub repository in 2-3 sentences. Be specific about what it does and who would use it.%s

%s

Summary:`, contextHint, strings.Join(parts, "\n"))

	return s.generate(ctx, prompt, repoMaxTokens)
}

// Release produces a 1-2 sentence summary of a release.
func (s *Summarizer) Release(ctx context.Context, repoName, version, releaseNotes, projectContext string) (string, error) {
	notes := releaseNotes
	if notes == "" {
		notes = "No release notes provided."
	}

	contextHint := ""
	if projectContext != "" {
		contextHint = " Focus on what matters for: " + projectContext + "."
	}

	prompt := fmt.Sprintf(`Summarize this GitHub release in 1-2 sentences. What changed and why does it matter?%s

Repository: %s
Version: %s
Release notes:
%s

Summary:`, contextHint, repoName, version, truncate(notes, notesExcerptLimit))

	return s.generate(ctx, prompt, eventMaxTokens)
}

// CommitBurst produces a 1-2 sentence summary of a batch of commits.
func (s *Summarizer) CommitBurst(ctx context.Context, repoName string, commitMessages []string, projectContext string) (string, error) {
	if len(commitMessages) > maxCommitLines {
		commitMessages = commitMessages[:maxCommitLines]
	}
	var lines []string
	for _, m := range commitMessages {
		lines = append(lines, "- "+m)
	}

	contextHint := ""
	if projectContext != "" {
		contextHint = " Frame relevance to: " + projectContext + "."
	}

	prompt := fmt.Sprintf(`Summarize these recent commits to %s in 1-2 sentences. What's the overall direction of recent work?%s

Recent commits:
%s

Summary:`, repoName, contextHint, strings.Join(lines, "\n"))

	return s.generate(ctx, prompt, eventMaxTokens)
}

// ReadmeChange produces a 1-2 sentence summary of an updated README.
func (s *Summarizer) ReadmeChange(ctx context.Context, repoName, readmeExcerpt, projectContext string) (string, error) {
	contextHint := ""
	if projectContext != "" {
		contextHint = " Focus on what matters for: " + projectContext + "."
	}

	prompt := fmt.Sprintf(`The README of %s changed. Summarize what the project now describes itself as, in 1-2 sentences.%s

README excerpt:
%s

Summary:`, repoName, contextHint, truncate(readmeExcerpt, readmeExcerptLimit))

	return s.generate(ctx, prompt, eventMaxTokens)
}

// Digest produces a 3-5 sentence overview of a batch of feed events.
// An empty event list yields a fixed no-activity message without
// calling the provider.
func (s *Summarizer) Digest(ctx context.Context, events []database.FeedEvent, projectContext string) (string, error) {
	if len(events) == 0 {
		return "No new activity in the feed for this period.", nil
	}
	if len(events) > maxDigestEvents {
		events = events[:maxDigestEvents]
	}

	var lines []string
	for _, e := range events {
		marker := "->"
		if e.RelevanceScore >= 0.7 {
			marker = "**"
		}
		summary := ""
		if e.Summary != nil {
			summary = *e.Summary
		}
		lines = append(lines, fmt.Sprintf("%s [%s] %s: %s", marker, e.RepoFullName, e.Title, summary))
	}

	contextHint := ""
	if projectContext != "" {
		contextHint = " for " + projectContext + " research"
	}

	prompt := fmt.Sprintf(`Here are recent GitHub feed events%s. Write a 3-5 sentence digest highlighting the most significant developments and any patterns worth noting.

Events:
%s

Digest:`, contextHint, strings.Join(lines, "\n"))

	return s.generate(ctx, prompt, digestMaxTokens)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
