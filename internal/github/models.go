package github

import "context"

// Repo is repository metadata as returned by the adapter.
type Repo struct {
	FullName    string
	Description string
	Stars       int
	Language    string
	Topics      []string
	Homepage    string
	UpdatedAt   string
}

// Release is a published release.
type Release struct {
	Tag         string
	Name        string
	Body        string
	PublishedAt string
	URL         string
}

// Commit is a single commit summary.
type Commit struct {
	SHA     string
	Message string // first line only
	Date    string
}

// Readme is README content with its content hash, used for change detection.
type Readme struct {
	Content string
	Hash    string
}

// ListFilters narrow listing and search calls. Filters are applied per page
// so a limit of N yields the first N matching items.
type ListFilters struct {
	Language string
	MinStars int
}

// Source is the upstream activity adapter consumed by the feed engine.
// Implementations return ErrNotFound, *RateLimitedError, or *TransientError;
// only rate limits are auto-retried by the engine.
type Source interface {
	GetRepo(ctx context.Context, fullName string) (*Repo, error)
	ListStarred(ctx context.Context, username string, limit int) ([]Repo, error)
	ListOrgRepos(ctx context.Context, org string, f ListFilters, limit int) ([]Repo, error)
	ReleasesSince(ctx context.Context, fullName, since string) ([]Release, error)
	CommitsSince(ctx context.Context, fullName, since string, limit int) ([]Commit, error)
	GetReadme(ctx context.Context, fullName string) (*Readme, error)
	Search(ctx context.Context, query string, f ListFilters, limit int) ([]Repo, error)
}
