package feed

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lkraemer/gitscout/internal/config"
	"github.com/lkraemer/gitscout/internal/database"
	"github.com/lkraemer/gitscout/internal/embed"
	"github.com/lkraemer/gitscout/internal/github"
	"github.com/lkraemer/gitscout/internal/relevance"
)

// fakeSource is an in-memory Source with scriptable per-repo state and
// optional error injection.
type fakeSource struct {
	mu       sync.Mutex
	releases map[string][]github.Release
	commits  map[string][]github.Commit
	readmes  map[string]*github.Readme
	repos    map[string]*github.Repo
	searched []github.Repo

	// errs are consumed one per matching call, FIFO.
	errs map[string][]error

	releaseCalls int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		releases: make(map[string][]github.Release),
		commits:  make(map[string][]github.Commit),
		readmes:  make(map[string]*github.Readme),
		repos:    make(map[string]*github.Repo),
		errs:     make(map[string][]error),
	}
}

func (f *fakeSource) nextErr(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	queue := f.errs[op]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	f.errs[op] = queue[1:]
	return err
}

func (f *fakeSource) GetRepo(ctx context.Context, fullName string) (*github.Repo, error) {
	if err := f.nextErr("getrepo:" + fullName); err != nil {
		return nil, err
	}
	if r, ok := f.repos[fullName]; ok {
		return r, nil
	}
	return &github.Repo{FullName: fullName}, nil
}

func (f *fakeSource) ListStarred(ctx context.Context, username string, limit int) ([]github.Repo, error) {
	return nil, nil
}

func (f *fakeSource) ListOrgRepos(ctx context.Context, org string, fl github.ListFilters, limit int) ([]github.Repo, error) {
	return nil, nil
}

func (f *fakeSource) ReleasesSince(ctx context.Context, fullName, since string) ([]github.Release, error) {
	f.mu.Lock()
	f.releaseCalls++
	f.mu.Unlock()
	if err := f.nextErr("releases:" + fullName); err != nil {
		return nil, err
	}
	var out []github.Release
	for _, r := range f.releases[fullName] {
		if since == "" || r.PublishedAt > since {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeSource) CommitsSince(ctx context.Context, fullName, since string, limit int) ([]github.Commit, error) {
	if err := f.nextErr("commits:" + fullName); err != nil {
		return nil, err
	}
	var out []github.Commit
	for _, c := range f.commits[fullName] {
		if since == "" || c.Date > since {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeSource) GetReadme(ctx context.Context, fullName string) (*github.Readme, error) {
	if err := f.nextErr("readme:" + fullName); err != nil {
		return nil, err
	}
	if r, ok := f.readmes[fullName]; ok {
		return r, nil
	}
	return nil, github.ErrNotFound
}

func (f *fakeSource) Search(ctx context.Context, query string, fl github.ListFilters, limit int) ([]github.Repo, error) {
	if err := f.nextErr("search"); err != nil {
		return nil, err
	}
	if limit < len(f.searched) {
		return f.searched[:limit], nil
	}
	return f.searched, nil
}

// flatProvider embeds every text to the same unit vector, so all scores
// against any context are 1.0 and tests control relevance via contexts.
type flatProvider struct {
	mu    sync.Mutex
	calls int
}

func (p *flatProvider) Model() string { return "flat-test" }

func (p *flatProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{1, 0}
	}
	return out, nil
}

type testEnv struct {
	engine   *Engine
	db       *database.DB
	source   *fakeSource
	provider *flatProvider
	cfg      *config.Config
	slept    []time.Duration
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	source := newFakeSource()
	provider := &flatProvider{}
	cfg := &config.Config{}
	cfg.Poll.LookbackDays = 7
	cfg.Poll.CommitBurstThreshold = 3
	cfg.Poll.MaxRetries = 2
	cfg.Poll.MaxRateLimitWaitSecs = 5
	cfg.Poll.Workers = 2

	scorer := relevance.NewScorer(db, embed.NewCache(db, provider))
	env := &testEnv{db: db, source: source, provider: provider, cfg: cfg}
	env.engine = NewEngine(db, source, scorer, nil, cfg)
	env.engine.now = func() time.Time {
		return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	}
	env.engine.sleep = func(d time.Duration) { env.slept = append(env.slept, d) }
	return env
}

func (env *testEnv) watch(t *testing.T, fullName, origin string) {
	t.Helper()
	if _, err := env.db.UpsertWatchedRepo(fullName, origin); err != nil {
		t.Fatalf("watching %s: %v", fullName, err)
	}
}

func (env *testEnv) addContext(t *testing.T, name string) {
	t.Helper()
	if err := env.db.UpsertProjectContext(name, "about "+name, []float64{1, 0}); err != nil {
		t.Fatalf("adding context: %v", err)
	}
}

func TestPollDetectsRelease(t *testing.T) {
	env := newTestEnv(t)
	env.watch(t, "alice/widgets", database.OriginManual)
	env.addContext(t, "widgets")
	env.source.releases["alice/widgets"] = []github.Release{
		{Tag: "v2.0.0", PublishedAt: "2026-08-27T10:00:00Z", Body: "notes"},
	}

	result, err := env.engine.PollAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Releases != 1 || result.NewEvents != 1 {
		t.Fatalf("expected 1 release event, got %+v", result)
	}

	events, err := env.db.GetRepoEvents("alice/widgets", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || events[0].EventType != EventRelease || events[0].DedupKey != "v2.0.0" {
		t.Errorf("unexpected events %+v", events)
	}
	if events[0].MatchedContext == nil || *events[0].MatchedContext != "widgets" {
		t.Errorf("expected matched context, got %+v", events[0].MatchedContext)
	}
}

func TestPollIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.watch(t, "alice/widgets", database.OriginManual)
	// Activity timestamps sit after the fixed poll time, so every poll
	// re-fetches the same changes and idempotence rests entirely on the
	// dedup keys, mirroring a run where last_checked failed to advance.
	env.source.releases["alice/widgets"] = []github.Release{
		{Tag: "v2.0.0", PublishedAt: "2026-08-28T13:00:00Z"},
	}
	env.source.commits["alice/widgets"] = []github.Commit{
		{SHA: "c3", Message: "three", Date: "2026-08-28T13:03:00Z"},
		{SHA: "c2", Message: "two", Date: "2026-08-28T13:02:00Z"},
		{SHA: "c1", Message: "one", Date: "2026-08-28T13:01:00Z"},
	}

	first, err := env.engine.PollAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.NewEvents != 2 {
		t.Fatalf("expected 2 events on first poll, got %d", first.NewEvents)
	}

	second, err := env.engine.PollAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.NewEvents != 0 {
		t.Errorf("second poll must produce no events, got %d", second.NewEvents)
	}
}

func TestCommitBurstThresholdBoundary(t *testing.T) {
	env := newTestEnv(t)
	env.watch(t, "alice/quiet", database.OriginManual)
	env.watch(t, "alice/busy", database.OriginManual)

	// threshold-1 commits: no event. Exactly threshold: one event.
	env.source.commits["alice/quiet"] = []github.Commit{
		{SHA: "q2", Message: "two", Date: "2026-08-27T02:00:00Z"},
		{SHA: "q1", Message: "one", Date: "2026-08-27T01:00:00Z"},
	}
	env.source.commits["alice/busy"] = []github.Commit{
		{SHA: "b3", Message: "three", Date: "2026-08-27T03:00:00Z"},
		{SHA: "b2", Message: "two", Date: "2026-08-27T02:00:00Z"},
		{SHA: "b1", Message: "one", Date: "2026-08-27T01:00:00Z"},
	}

	result, err := env.engine.PollAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.CommitBursts != 1 {
		t.Fatalf("expected exactly the at-threshold repo to fire, got %+v", result)
	}

	if events, _ := env.db.GetRepoEvents("alice/quiet", 10); len(events) != 0 {
		t.Errorf("below-threshold repo produced events: %+v", events)
	}
	events, _ := env.db.GetRepoEvents("alice/busy", 10)
	if len(events) != 1 || events[0].DedupKey != "2026-08-27" {
		t.Errorf("expected burst keyed by newest commit day, got %+v", events)
	}
}

func TestReadmeBaselineThenChange(t *testing.T) {
	env := newTestEnv(t)
	env.watch(t, "alice/widgets", database.OriginManual)
	env.source.readmes["alice/widgets"] = &github.Readme{
		Content: "original", Hash: github.HashContent("original"),
	}

	// First observation records the baseline without an event.
	result, err := env.engine.PollAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ReadmeChanges != 0 {
		t.Fatalf("baseline must not produce an event, got %+v", result)
	}

	repo, err := env.db.GetWatchedRepo("alice/widgets")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.ReadmeHash == nil || *repo.ReadmeHash != github.HashContent("original") {
		t.Fatal("expected baseline hash recorded")
	}

	// A changed README produces exactly one event, keyed by content hash.
	env.source.readmes["alice/widgets"] = &github.Readme{
		Content: "rewritten", Hash: github.HashContent("rewritten"),
	}
	result, err = env.engine.PollAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ReadmeChanges != 1 {
		t.Fatalf("expected 1 readme event, got %+v", result)
	}

	// Re-poll with the same content is a no-op.
	result, err = env.engine.PollAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ReadmeChanges != 0 {
		t.Errorf("unchanged readme re-fired, got %+v", result)
	}
}

func TestNewRepoEventForDiscoveredOrigin(t *testing.T) {
	env := newTestEnv(t)
	env.watch(t, "carol/vecstore", database.OriginDiscovered)
	env.source.repos["carol/vecstore"] = &github.Repo{
		FullName: "carol/vecstore", Description: "a vector store",
	}

	result, err := env.engine.PollAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.NewRepos != 1 {
		t.Fatalf("expected new_repo event, got %+v", result)
	}

	// Second poll: last_checked is set, no repeat.
	result, err = env.engine.PollAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.NewRepos != 0 {
		t.Errorf("new_repo fired twice, got %+v", result)
	}

	// Manually watched repos never announce themselves.
	env.watch(t, "alice/widgets", database.OriginManual)
	result, err = env.engine.PollAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.NewRepos != 0 {
		t.Errorf("manual origin produced new_repo, got %+v", result)
	}
}

func TestLastCheckedAdvancesAndLastSummaryPreserved(t *testing.T) {
	env := newTestEnv(t)
	env.watch(t, "alice/widgets", database.OriginManual)
	if err := env.db.UpdateRepoSummary("alice/widgets", "an earlier summary"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A poll with no activity advances last_checked but keeps the summary.
	if _, err := env.engine.PollAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	repo, err := env.db.GetWatchedRepo("alice/widgets")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.LastChecked == nil || *repo.LastChecked != "2026-08-28T12:00:00Z" {
		t.Errorf("expected last_checked advanced, got %v", repo.LastChecked)
	}
	if repo.LastSummary == nil || *repo.LastSummary != "an earlier summary" {
		t.Errorf("empty poll must not erase last_summary, got %v", repo.LastSummary)
	}
}

func TestRateLimitRetries(t *testing.T) {
	env := newTestEnv(t)
	env.watch(t, "alice/widgets", database.OriginManual)
	env.source.releases["alice/widgets"] = []github.Release{
		{Tag: "v1.0.0", PublishedAt: "2026-08-27T10:00:00Z"},
	}
	// One rate limit, then success. Reset far in the future to exercise
	// the wait cap.
	env.source.errs["releases:alice/widgets"] = []error{
		&github.RateLimitedError{ResetAt: time.Now().Add(10 * time.Minute)},
	}

	result, err := env.engine.PollAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Failures) != 0 {
		t.Fatalf("rate limit must be retried, got failures %+v", result.Failures)
	}
	if result.Releases != 1 {
		t.Errorf("expected release after retry, got %+v", result)
	}
	if len(env.slept) != 1 || env.slept[0] != 5*time.Second {
		t.Errorf("expected one capped 5s wait, got %v", env.slept)
	}
}

func TestSourceUnavailableAfterRetryBudget(t *testing.T) {
	env := newTestEnv(t)
	env.watch(t, "alice/widgets", database.OriginManual)
	rl := &github.RateLimitedError{ResetAt: time.Now().Add(time.Minute)}
	env.source.errs["releases:alice/widgets"] = []error{rl, rl, rl}

	result, err := env.engine.PollAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("expected one failure, got %+v", result.Failures)
	}
	var su *SourceUnavailableError
	if !errors.As(result.Failures[0].Err, &su) {
		t.Errorf("expected SourceUnavailableError, got %v", result.Failures[0].Err)
	}

	// The failed repo's last_checked must not advance.
	repo, _ := env.db.GetWatchedRepo("alice/widgets")
	if repo.LastChecked != nil {
		t.Errorf("failed poll advanced last_checked to %v", *repo.LastChecked)
	}
}

func TestPartialFailureIsolation(t *testing.T) {
	env := newTestEnv(t)
	env.watch(t, "alice/broken", database.OriginManual)
	env.watch(t, "bob/healthy", database.OriginManual)
	env.source.errs["releases:alice/broken"] = []error{
		&github.TransientError{Err: context.DeadlineExceeded},
		&github.TransientError{Err: context.DeadlineExceeded},
		&github.TransientError{Err: context.DeadlineExceeded},
	}
	env.source.releases["bob/healthy"] = []github.Release{
		{Tag: "v1.0.0", PublishedAt: "2026-08-27T10:00:00Z"},
	}

	result, err := env.engine.PollAll(context.Background())
	if err != nil {
		t.Fatalf("sweep must not fail outright: %v", err)
	}
	if result.ReposChecked != 2 {
		t.Errorf("expected both repos attempted, got %d", result.ReposChecked)
	}
	if len(result.Failures) != 1 || result.Failures[0].Repo != "alice/broken" {
		t.Errorf("expected isolated failure for alice/broken, got %+v", result.Failures)
	}
	if result.Releases != 1 {
		t.Errorf("healthy repo must still produce its event, got %+v", result)
	}
}

func TestPollBatchesScoring(t *testing.T) {
	env := newTestEnv(t)
	env.watch(t, "alice/widgets", database.OriginManual)
	env.addContext(t, "ctx")
	env.source.releases["alice/widgets"] = []github.Release{
		{Tag: "v2.0.0", PublishedAt: "2026-08-27T10:00:00Z"},
		{Tag: "v2.1.0", PublishedAt: "2026-08-27T11:00:00Z"},
	}
	env.source.commits["alice/widgets"] = []github.Commit{
		{SHA: "c3", Message: "three", Date: "2026-08-27T03:00:00Z"},
		{SHA: "c2", Message: "two", Date: "2026-08-27T02:00:00Z"},
		{SHA: "c1", Message: "one", Date: "2026-08-27T01:00:00Z"},
	}

	if _, err := env.engine.PollAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Three candidates (two releases, one burst) must share one provider
	// call; the context vector was seeded directly so only event texts
	// need embedding.
	if env.provider.calls != 1 {
		t.Errorf("expected one batched embedding call, got %d", env.provider.calls)
	}
}

func TestPollRepoUnwatched(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.PollRepo(context.Background(), "nobody/unwatched")
	if err == nil {
		t.Fatal("expected error for repo not on the watch list")
	}
	if !strings.Contains(err.Error(), "not watching") {
		t.Errorf("unexpected error: %v", err)
	}
}
