// Package digest assembles the user-facing research feed digest from
// stored events, with optional LLM overview text.
package digest

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/lkraemer/gitscout/internal/database"
	"github.com/lkraemer/gitscout/internal/summarize"
)

// Score bands are a presentation concern layered over raw scores.
const (
	BandHigh   = "high"
	BandMedium = "medium"
	BandLow    = "low"
)

// Band maps a relevance score to its presentation band.
func Band(score float64) string {
	switch {
	case score >= 0.7:
		return BandHigh
	case score >= 0.4:
		return BandMedium
	default:
		return BandLow
	}
}

// Digest is a filtered slice of the feed plus an optional overview.
type Digest struct {
	Events   []database.FeedEvent
	Overview string
	Filter   database.EventFilter
}

// Builder queries events and generates digests.
type Builder struct {
	db         *database.DB
	summarizer *summarize.Summarizer
}

// NewBuilder creates a digest builder. summarizer may be nil to skip
// overview generation.
func NewBuilder(db *database.DB, summarizer *summarize.Summarizer) *Builder {
	return &Builder{db: db, summarizer: summarizer}
}

// Build queries events matching f and, when withOverview is set and a
// provider is configured, generates the overview text. Overview
// failures are logged and leave the digest usable without one.
func (b *Builder) Build(ctx context.Context, f database.EventFilter, withOverview bool) (*Digest, error) {
	events, err := b.db.GetFeedEvents(f)
	if err != nil {
		return nil, fmt.Errorf("querying feed events: %w", err)
	}

	d := &Digest{Events: events, Filter: f}
	if withOverview && b.summarizer != nil && b.summarizer.IsConfigured() {
		overview, err := b.summarizer.Digest(ctx, events, f.Context)
		if err != nil {
			log.Printf("Digest overview generation failed: %v", err)
		} else {
			d.Overview = overview
		}
	}
	return d, nil
}

// RenderText formats the digest for terminal output, grouped by score
// band, most relevant first within each band.
func (d *Digest) RenderText() string {
	var sb strings.Builder

	days := d.Filter.DaysBack
	if days <= 0 {
		days = 7
	}
	fmt.Fprintf(&sb, "Research feed digest (last %d days)\n", days)
	if d.Filter.Context != "" {
		fmt.Fprintf(&sb, "Context: %s\n", d.Filter.Context)
	}
	sb.WriteString("\n")

	if d.Overview != "" {
		sb.WriteString(d.Overview)
		sb.WriteString("\n\n")
	}

	if len(d.Events) == 0 {
		sb.WriteString("No events matched.\n")
		return sb.String()
	}

	bands := map[string][]database.FeedEvent{}
	for _, ev := range d.Events {
		band := Band(ev.RelevanceScore)
		bands[band] = append(bands[band], ev)
	}

	for _, band := range []string{BandHigh, BandMedium, BandLow} {
		events := bands[band]
		if len(events) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "== %s relevance ==\n", band)
		for _, ev := range events {
			degraded := ""
			if ev.ScoreDegraded {
				degraded = " (score unavailable)"
			}
			fmt.Fprintf(&sb, "[%.2f]%s %s: %s (%s)\n",
				ev.RelevanceScore, degraded, ev.RepoFullName, ev.Title, ev.EventType)
			if ev.Summary != nil && *ev.Summary != "" {
				fmt.Fprintf(&sb, "       %s\n", *ev.Summary)
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
