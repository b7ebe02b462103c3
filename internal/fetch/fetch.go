// Package fetch extracts readable text from project homepages, used to
// enrich repository summaries beyond the README.
package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

const excerptLimit = 3000

// ExcerptFetcher fetches a project homepage and extracts its main text
// via readability.
type ExcerptFetcher struct {
	client *http.Client
}

// NewExcerptFetcher creates an excerpt fetcher.
func NewExcerptFetcher(timeout time.Duration) *ExcerptFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &ExcerptFetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// HomepageExcerpt fetches pageURL and returns up to 3000 characters of
// extracted text. Unreachable pages and pages with no extractable
// content return an empty string without error; enrichment is best
// effort and must never fail the caller.
func (f *ExcerptFetcher) HomepageExcerpt(ctx context.Context, pageURL string) string {
	if pageURL == "" {
		return ""
	}

	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", "gitscout/1.0 (research feed)")

	resp, err := f.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return ""
	}

	parsedURL, _ := url.Parse(pageURL)
	article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL)
	if err != nil {
		return ""
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) < 100 {
		return ""
	}
	if len(text) > excerptLimit {
		text = text[:excerptLimit]
	}
	return text
}
