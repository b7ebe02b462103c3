package database

// Repo origin tags.
const (
	OriginManual     = "manual"
	OriginStarred    = "starred"
	OriginOrg        = "org"
	OriginDiscovered = "discovered"
)

// WatchedRepo is a repository on the watch list.
type WatchedRepo struct {
	ID          int64
	FullName    string // canonical owner/name
	Origin      string // manual | starred | org | discovered
	AddedAt     string
	LastChecked *string
	LastSummary *string
	ReadmeHash  *string
	Embedding   []float64 // nil until computed
}

// ProjectContext is a named project description used for relevance scoring.
type ProjectContext struct {
	ID          int64
	Name        string
	Description string
	Embedding   []float64 // nil until embedded; excluded from scoring while nil
	CreatedAt   string
	UpdatedAt   string
}

// FeedEvent is a single recorded activity event. Rows are immutable once
// inserted; the (repo, type, dedup_key) constraint makes re-polling idempotent.
type FeedEvent struct {
	ID             int64
	RepoFullName   string
	EventType      string // release | commit_burst | readme_change | new_repo
	DedupKey       string
	EventAt        string
	Title          string
	Summary        *string
	RelevanceScore float64
	ScoreDegraded  bool // true when scoring fell back after an embedding failure
	MatchedContext *string
	RawData        *string
	CreatedAt      *string
}

// DiscoveryCandidate is a repo found via search, pending review or dismissal.
type DiscoveryCandidate struct {
	ID              int64
	FullName        string
	DiscoveredAt    string
	SimilarityScore float64
	MatchedContext  *string
	Description     *string
	Stars           int
	Language        *string
	Dismissed       bool
}

// Stats contains aggregate database statistics.
type Stats struct {
	WatchedRepos      int
	FeedEvents        int
	ProjectContexts   int
	PendingCandidates int
	CachedEmbeddings  int
}
