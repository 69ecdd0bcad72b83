package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

var (
	blobURLPattern = regexp.MustCompile(`^https?://github\.com/([^/]+)/([^/]+)/blob/([^/]+)/(.+)$`)
	rawURLPattern  = regexp.MustCompile(`^https?://raw\.githubusercontent\.com/([^/]+)/([^/]+)/([^/]+)/(.+)$`)
)

// GitHubFile identifies a file in a GitHub repository.
type GitHubFile struct {
	Owner string
	Repo  string
	Ref   string
	Path  string
}

// ParseGitHubURL accepts blob and raw GitHub URLs.
func ParseGitHubURL(locator string) (GitHubFile, bool) {
	for _, re := range []*regexp.Regexp{blobURLPattern, rawURLPattern} {
		if m := re.FindStringSubmatch(strings.TrimSpace(locator)); m != nil {
			return GitHubFile{Owner: m[1], Repo: m[2], Ref: m[3], Path: m[4]}, true
		}
	}
	return GitHubFile{}, false
}

// RawURL returns the raw-content URL for the file at commit.
func (f GitHubFile) RawURL(commit string) string {
	return fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s/%s", f.Owner, f.Repo, commit, f.Path)
}

// BlobURL returns the browsable URL for the file at commit.
func BlobURL(owner, repo, commit, path string) string {
	return fmt.Sprintf("https://github.com/%s/%s/blob/%s/%s", owner, repo, commit, path)
}

// RawURL converts a GitHub locator to a raw URL pinned at commit. ok is false
// when the locator is not a recognised GitHub URL.
func RawURL(locator, commit string) (string, bool) {
	f, ok := ParseGitHubURL(locator)
	if !ok {
		return "", false
	}
	return f.RawURL(commit), true
}

// IsRemote reports whether the locator is an http(s) URL.
func IsRemote(locator string) bool {
	return strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://")
}

// Fetcher downloads remote source files. Successful responses are cached by
// URL for the lifetime of the Fetcher.
type Fetcher struct {
	client *http.Client

	mu    sync.Mutex
	cache map[string]string
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		cache:  make(map[string]string),
	}
}

// NewFetcherWithClient is used by tests to point the fetcher at a local server.
func NewFetcherWithClient(client *http.Client) *Fetcher {
	return &Fetcher{client: client, cache: make(map[string]string)}
}

// Fetch returns the body at url. Non-2xx responses and content that is not
// valid UTF-8 are errors.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	if body, ok := f.cache[url]; ok {
		f.mu.Unlock()
		return body, nil
	}
	f.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("GET %s: content is not valid UTF-8", url)
	}

	body := string(raw)
	f.mu.Lock()
	f.cache[url] = body
	f.mu.Unlock()
	return body, nil
}
