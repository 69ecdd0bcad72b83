package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsync/internal/apperr"
	"docsync/internal/logging"
)

func TestParse_Valid(t *testing.T) {
	spec, err := Parse([]byte(`
repositories:
  - url: https://github.com/acme/widgets.git
    include: ["*.go", "docs/**/*.md"]
    exclude: ["**/*_test.go", "vendor/"]
metadata:
  purpose: API guide
`))
	require.NoError(t, err)
	require.Len(t, spec.Repositories, 1)

	repo := spec.Repositories[0]
	assert.Equal(t, "widgets", repo.Name())
	assert.Equal(t, "API guide", spec.Metadata.Purpose)

	assert.True(t, repo.Matches("main.go"))
	assert.True(t, repo.Matches("pkg/server/server.go"))
	assert.True(t, repo.Matches("docs/guide/intro.md"))
	assert.False(t, repo.Matches("pkg/server/server_test.go"))
	assert.False(t, repo.Matches("vendor/lib/lib.go"))
	assert.False(t, repo.Matches("README.md"))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		message string
	}{
		{"no repositories", "metadata: {}\n", "missing 'repositories'"},
		{"not a list", "repositories: {url: x}\n", "must be a list"},
		{"missing url", "repositories:\n  - include: ['*.go']\n", "repository #1: missing 'url'"},
		{"bad url", "repositories:\n  - url: widgets\n    include: ['*.go']\n", "invalid repository URL"},
		{"no include", "repositories:\n  - url: https://github.com/a/b.git\n  - url: https://github.com/a/c.git\n", "repository #1"},
		{"bad yaml", "repositories: [", "parse sources.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
			assert.True(t, apperr.Is(err, apperr.KindSourceSpec))
		})
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), FileName))
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestWriteTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta", FileName)
	require.NoError(t, WriteTemplate(path, "Explain auth", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))

	spec, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Explain auth", spec.Metadata.Purpose)
	assert.Equal(t, "2024-05-01", spec.Metadata.LastUpdated)

	assert.Error(t, WriteTemplate(path, "again", time.Now()))
}

func TestParseGitHubURL(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		want GitHubFile
	}{
		{"https://github.com/acme/api/blob/main/pkg/auth.go", true, GitHubFile{"acme", "api", "main", "pkg/auth.go"}},
		{"http://github.com/acme/api/blob/abc123/README.md", true, GitHubFile{"acme", "api", "abc123", "README.md"}},
		{"https://raw.githubusercontent.com/acme/api/abc123/a/b.py", true, GitHubFile{"acme", "api", "abc123", "a/b.py"}},
		{"https://github.com/acme/api/tree/main/pkg", false, GitHubFile{}},
		{"https://gitlab.com/acme/api/blob/main/x.go", false, GitHubFile{}},
	}
	for _, tt := range tests {
		got, ok := ParseGitHubURL(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	raw, ok := RawURL("https://github.com/acme/api/blob/main/pkg/auth.go", "deadbeef")
	require.True(t, ok)
	assert.Equal(t, "https://raw.githubusercontent.com/acme/api/deadbeef/pkg/auth.go", raw)
}

func TestFetcher(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte("package main\n"))
		case "/binary":
			_, _ = w.Write([]byte{0xff, 0xfe, 0x00})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewFetcherWithClient(srv.Client())
	ctx := context.Background()

	body, err := f.Fetch(ctx, srv.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, "package main\n", body)

	_, err = f.Fetch(ctx, srv.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, 1, hits)

	_, err = f.Fetch(ctx, srv.URL+"/binary")
	assert.Error(t, err)
	_, err = f.Fetch(ctx, srv.URL+"/missing")
	assert.Error(t, err)
}

type fakeCheckout struct {
	root   string
	files  []string
	hashes map[string]string
	cloned []string
}

func (f *fakeCheckout) Clone(_ context.Context, url string) (string, error) {
	f.cloned = append(f.cloned, url)
	return f.root, nil
}

func (f *fakeCheckout) LatestCommitHash(_ context.Context, _, file string) (string, bool, error) {
	h, ok := f.hashes[file]
	return h, ok, nil
}

func (f *fakeCheckout) TrackedFiles(context.Context, string) ([]string, error) {
	return f.files, nil
}

func TestCollector_Collect(t *testing.T) {
	root := t.TempDir()
	write := func(rel string, data []byte) {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, data, 0o644))
	}
	write("main.go", []byte("package main\n"))
	write("pkg/util.go", []byte("package pkg\n"))
	write("pkg/util_test.go", []byte("package pkg\n"))
	write("logo.go", []byte{0x00, 0x01})

	checkout := &fakeCheckout{
		root:   root,
		files:  []string{"pkg/util.go", "main.go", "pkg/util_test.go", "logo.go", "README.md"},
		hashes: map[string]string{"main.go": "h1", "pkg/util.go": "h2", "logo.go": "h3"},
	}
	spec, err := Parse([]byte("repositories:\n  - url: https://github.com/acme/widgets.git\n    include: ['*.go']\n    exclude: ['*_test.go']\n"))
	require.NoError(t, err)

	c := NewCollector(checkout, checkout, logging.Discard())
	col, err := c.Collect(context.Background(), spec)
	require.NoError(t, err)

	require.Len(t, col.Files, 2)
	assert.Equal(t, "main.go", col.Files[0].Path)
	assert.Equal(t, "pkg/util.go", col.Files[1].Path)
	assert.Equal(t, "h1", col.Files[0].Commit)
	assert.Equal(t, "widgets/pkg/util.go", col.Files[1].Key())
	assert.Equal(t, "h2", col.Files[1].Commit)
	assert.Equal(t, map[string]string{"widgets": root}, col.RepoPaths)
}

func TestPinResolver(t *testing.T) {
	checkout := &fakeCheckout{root: "/clone", hashes: map[string]string{"pkg/auth.go": "cafe"}}
	r := NewPinResolver(checkout, checkout)

	hash, err := r.ResolvePin(context.Background(), "https://github.com/acme/api/blob/main/pkg/auth.go")
	require.NoError(t, err)
	assert.Equal(t, "cafe", hash)
	assert.Equal(t, []string{"https://github.com/acme/api.git"}, checkout.cloned)

	_, err = r.ResolvePin(context.Background(), "https://github.com/acme/api/blob/main/missing.go")
	assert.Error(t, err)
	_, err = r.ResolvePin(context.Background(), "local/file.go")
	assert.Error(t, err)
}
