package github

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.github.com"

// Client is a rate-limit-aware GitHub REST client implementing Source.
// Without a token, releases and commits fall back to the public Atom feeds.
type Client struct {
	token   string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	atom    *AtomFetcher
}

// NewClient creates a GitHub client. token may be empty for unauthenticated
// access.
func NewClient(token string) *Client {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	return &Client{
		token:   token,
		baseURL: defaultBaseURL,
		client:  httpClient,
		// Authenticated REST allows 5000 req/h; pace well below that so a
		// large sweep leaves headroom for interactive commands.
		limiter: rate.NewLimiter(rate.Limit(1), 5),
		atom:    NewAtomFetcher(httpClient),
	}
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &TransientError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case isRateLimitResponse(resp):
		return &RateLimitedError{ResetAt: rateLimitReset(resp)}
	case resp.StatusCode >= 500:
		return &TransientError{Err: fmt.Errorf("status %d", resp.StatusCode)}
	default:
		return fmt.Errorf("github: unexpected status %d for %s", resp.StatusCode, path)
	}
}

func isRateLimitResponse(resp *http.Response) bool {
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusTooManyRequests {
		return false
	}
	return resp.Header.Get("X-RateLimit-Remaining") == "0" ||
		resp.StatusCode == http.StatusTooManyRequests
}

func rateLimitReset(resp *http.Response) time.Time {
	if v := resp.Header.Get("X-RateLimit-Reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(epoch, 0)
		}
	}
	// No reset header: assume a minute.
	return time.Now().Add(time.Minute)
}

type repoJSON struct {
	FullName    string   `json:"full_name"`
	Description string   `json:"description"`
	Stars       int      `json:"stargazers_count"`
	Language    string   `json:"language"`
	Topics      []string `json:"topics"`
	Homepage    string   `json:"homepage"`
	UpdatedAt   string   `json:"updated_at"`
}

func (r repoJSON) toRepo() Repo {
	return Repo{
		FullName:    r.FullName,
		Description: r.Description,
		Stars:       r.Stars,
		Language:    r.Language,
		Topics:      r.Topics,
		Homepage:    r.Homepage,
		UpdatedAt:   r.UpdatedAt,
	}
}

// GetRepo fetches repository metadata including topics.
func (c *Client) GetRepo(ctx context.Context, fullName string) (*Repo, error) {
	var data repoJSON
	if err := c.get(ctx, "/repos/"+fullName, nil, &data); err != nil {
		return nil, err
	}
	repo := data.toRepo()
	return &repo, nil
}

// ListStarred fetches a user's starred repos, newest star first, up to limit.
func (c *Client) ListStarred(ctx context.Context, username string, limit int) ([]Repo, error) {
	raw, err := collectPages(limit, 100, nil, func(page, perPage int) ([]repoJSON, error) {
		var batch []repoJSON
		params := url.Values{
			"per_page": {strconv.Itoa(perPage)},
			"page":     {strconv.Itoa(page)},
		}
		if err := c.get(ctx, "/users/"+username+"/starred", params, &batch); err != nil {
			return nil, err
		}
		return batch, nil
	})
	if err != nil {
		return nil, err
	}
	return toRepos(raw), nil
}

// ListOrgRepos fetches an org's repos filtered by language and star floor.
// Filters are applied per page so the limit counts matching repos only.
func (c *Client) ListOrgRepos(ctx context.Context, org string, f ListFilters, limit int) ([]Repo, error) {
	keep := func(r repoJSON) bool { return matchesFilters(r, f) }
	raw, err := collectPages(limit, 100, keep, func(page, perPage int) ([]repoJSON, error) {
		var batch []repoJSON
		params := url.Values{
			"per_page": {strconv.Itoa(perPage)},
			"page":     {strconv.Itoa(page)},
			"sort":     {"updated"},
		}
		if err := c.get(ctx, "/orgs/"+org+"/repos", params, &batch); err != nil {
			return nil, err
		}
		return batch, nil
	})
	if err != nil {
		return nil, err
	}
	return toRepos(raw), nil
}

func matchesFilters(r repoJSON, f ListFilters) bool {
	if r.Stars < f.MinStars {
		return false
	}
	if f.Language != "" && !strings.EqualFold(r.Language, f.Language) {
		return false
	}
	return true
}

// ReleasesSince returns releases published strictly after since (RFC 3339).
// An empty since returns all recent releases.
func (c *Client) ReleasesSince(ctx context.Context, fullName, since string) ([]Release, error) {
	if c.token == "" {
		return c.atom.ReleasesSince(ctx, fullName, since)
	}

	var data []struct {
		TagName     string `json:"tag_name"`
		Name        string `json:"name"`
		Body        string `json:"body"`
		PublishedAt string `json:"published_at"`
		HTMLURL     string `json:"html_url"`
		Draft       bool   `json:"draft"`
	}
	params := url.Values{"per_page": {"20"}}
	if err := c.get(ctx, "/repos/"+fullName+"/releases", params, &data); err != nil {
		return nil, err
	}

	var releases []Release
	for _, r := range data {
		if r.Draft || r.PublishedAt == "" {
			continue
		}
		if since != "" && r.PublishedAt <= since {
			continue
		}
		releases = append(releases, Release{
			Tag:         r.TagName,
			Name:        r.Name,
			Body:        r.Body,
			PublishedAt: r.PublishedAt,
			URL:         r.HTMLURL,
		})
	}
	return releases, nil
}

// CommitsSince returns default-branch commits after since, newest first.
func (c *Client) CommitsSince(ctx context.Context, fullName, since string, limit int) ([]Commit, error) {
	if c.token == "" {
		return c.atom.CommitsSince(ctx, fullName, since, limit)
	}

	if limit <= 0 || limit > 100 {
		limit = 100
	}
	var data []struct {
		SHA    string `json:"sha"`
		Commit struct {
			Message string `json:"message"`
			Author  struct {
				Date string `json:"date"`
			} `json:"author"`
		} `json:"commit"`
	}
	params := url.Values{"per_page": {strconv.Itoa(limit)}}
	if since != "" {
		params.Set("since", since)
	}
	if err := c.get(ctx, "/repos/"+fullName+"/commits", params, &data); err != nil {
		return nil, err
	}

	var commits []Commit
	for _, cm := range data {
		commits = append(commits, Commit{
			SHA:     cm.SHA,
			Message: firstLine(cm.Commit.Message),
			Date:    cm.Commit.Author.Date,
		})
	}
	return commits, nil
}

// GetReadme fetches the README and its content hash.
func (c *Client) GetReadme(ctx context.Context, fullName string) (*Readme, error) {
	var data struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := c.get(ctx, "/repos/"+fullName+"/readme", nil, &data); err != nil {
		return nil, err
	}

	content := data.Content
	if data.Encoding == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(
			strings.ReplaceAll(data.Content, "\n", ""))
		if err != nil {
			return nil, fmt.Errorf("decoding readme: %w", err)
		}
		content = string(decoded)
	}

	return &Readme{Content: content, Hash: HashContent(content)}, nil
}

// Search queries the repository search API with star and language filters
// folded into the query string.
func (c *Client) Search(ctx context.Context, query string, f ListFilters, limit int) ([]Repo, error) {
	q := query
	if f.MinStars > 0 {
		q += fmt.Sprintf(" stars:>=%d", f.MinStars)
	}
	if f.Language != "" {
		q += " language:" + f.Language
	}
	if limit <= 0 || limit > 30 {
		limit = 30
	}

	var data struct {
		Items []repoJSON `json:"items"`
	}
	params := url.Values{
		"q":        {q},
		"sort":     {"stars"},
		"order":    {"desc"},
		"per_page": {strconv.Itoa(limit)},
	}
	if err := c.get(ctx, "/search/repositories", params, &data); err != nil {
		return nil, err
	}
	return toRepos(data.Items), nil
}

// HashContent returns the hex SHA-256 of content, the dedup identity for
// README changes.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func toRepos(raw []repoJSON) []Repo {
	var repos []Repo
	for _, r := range raw {
		repos = append(repos, r.toRepo())
	}
	return repos
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
