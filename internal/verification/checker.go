package verification

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultSiteURL = "https://maypole.app"

// maxBodyBytes bounds how much of the page is read for substring checks.
const maxBodyBytes = 256 * 1024

// contentSnippetLen bounds the content echoed back in the diagnostic result.
const contentSnippetLen = 500

// Checker fetches the production site and verifies it serves expected content.
type Checker struct {
	httpClient *http.Client
	url        string
	expect     []string
}

// NewChecker creates a site checker. url defaults to the production domain
// when empty; expect lists the substrings the page must contain.
func NewChecker(url string, expect []string) *Checker {
	if strings.TrimSpace(url) == "" {
		url = defaultSiteURL
	}
	return &Checker{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		url:        url,
		expect:     expect,
	}
}

// Result is the diagnostic object returned by a site check.
type Result struct {
	Accessible bool            `json:"accessible"`
	Status     int             `json:"status"`
	Content    string          `json:"content"`
	URL        string          `json:"url"`
	Timestamp  time.Time       `json:"timestamp"`
	Checks     map[string]bool `json:"checks"`
}

// Check fetches the configured URL and reports reachability, HTTP status and
// which expected substrings were present. A fetch failure is reported in the
// result, never as an error: the endpoint is diagnostic.
func (c *Checker) Check(ctx context.Context) Result {
	result := Result{
		URL:       c.url,
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]bool, len(c.expect)),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		result.Content = err.Error()
		return result
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		result.Content = err.Error()
		return result
	}
	defer resp.Body.Close()

	result.Status = resp.StatusCode
	result.Accessible = resp.StatusCode >= 200 && resp.StatusCode < 400

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		result.Content = err.Error()
		return result
	}

	page := string(body)
	for _, want := range c.expect {
		result.Checks[want] = strings.Contains(page, want)
	}
	result.Content = snippet(page)
	return result
}

func snippet(page string) string {
	if len(page) <= contentSnippetLen {
		return page
	}
	return page[:contentSnippetLen]
}
