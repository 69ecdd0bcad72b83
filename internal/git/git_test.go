package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsync/internal/logging"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func gitCmd(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
	return string(out)
}

func commitFile(t *testing.T, dir, name, content, message string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	gitCmd(t, dir, "add", name)
	gitCmd(t, dir, "commit", "-q", "-m", message)
}

func initRepo(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "widgets")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	gitCmd(t, dir, "init", "-q")
	return dir
}

func TestRepoName(t *testing.T) {
	tests := map[string]string{
		"https://github.com/acme/widgets.git": "widgets",
		"https://github.com/acme/widgets/":    "widgets",
		"git@github.com:acme/widgets.git":     "widgets",
		"git@github.com:widgets.git":          "widgets",
		"/local/path/to/widgets":              "widgets",
	}
	for in, want := range tests {
		assert.Equal(t, want, RepoName(in), in)
	}
}

func TestHistoryQueries(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)
	commitFile(t, dir, "a.go", "package a\n", "feat: add a")
	commitFile(t, dir, "pkg/b.go", "package b\n", "fix: bug\n\nlonger body")

	repo, err := NewRepository(t.TempDir(), true, logging.Discard())
	require.NoError(t, err)
	ctx := context.Background()

	hash, ok, err := repo.LatestCommitHash(ctx, dir, "pkg/b.go")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, hash, 40)

	head, err := repo.HeadCommit(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, head, hash)

	_, ok, err = repo.LatestCommitHash(ctx, dir, "missing.go")
	require.NoError(t, err)
	assert.False(t, ok)

	msg, err := repo.CommitMessage(ctx, dir, "pkg/b.go")
	require.NoError(t, err)
	assert.Equal(t, "fix: bug\n\nlonger body", msg)

	files, err := repo.TrackedFiles(ctx, dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.go", "pkg/b.go"}, files)
}

func TestLatestCommitHash_EmptyRepository(t *testing.T) {
	requireGit(t)
	dir := initRepo(t)

	repo, err := NewRepository(t.TempDir(), true, logging.Discard())
	require.NoError(t, err)

	_, ok, err := repo.LatestCommitHash(context.Background(), dir, "a.go")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClone_CachesByName(t *testing.T) {
	requireGit(t)
	src := initRepo(t)
	commitFile(t, src, "README.md", "# hi\n", "init")

	repo, err := NewRepository("", false, logging.Discard())
	require.NoError(t, err)
	defer repo.Close()

	ctx := context.Background()
	first, err := repo.Clone(ctx, src)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(first, "README.md"))

	second, err := repo.Clone(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	p, ok := repo.Path("widgets")
	assert.True(t, ok)
	assert.Equal(t, first, p)

	assert.Equal(t, src, repo.OriginURL(ctx, first))
}

func TestClose_RemovesOwnedDir(t *testing.T) {
	repo, err := NewRepository("", true, logging.Discard())
	require.NoError(t, err)
	dir := repo.cacheDir
	require.NoError(t, repo.Close())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	kept := t.TempDir()
	repo, err = NewRepository(kept, true, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, repo.Close())
	assert.DirExists(t, kept)
}
