package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"docsync/internal/logging"
)

// Repository clones remote repositories into a working directory and answers
// history questions about files inside them. Clones are cached by repository
// name for the lifetime of the value.
type Repository struct {
	cacheDir string
	ownsDir  bool
	shallow  bool
	logger   *logging.Logger

	mu     sync.Mutex
	clones map[string]string
}

// NewRepository uses cacheDir for clones. An empty cacheDir means a fresh
// temporary directory that Close removes.
func NewRepository(cacheDir string, shallow bool, logger *logging.Logger) (*Repository, error) {
	owns := false
	if strings.TrimSpace(cacheDir) == "" {
		dir, err := os.MkdirTemp("", "docsync-repos-")
		if err != nil {
			return nil, fmt.Errorf("create clone dir: %w", err)
		}
		cacheDir, owns = dir, true
	} else if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create clone dir: %w", err)
	}
	return &Repository{
		cacheDir: cacheDir,
		ownsDir:  owns,
		shallow:  shallow,
		logger:   logger,
		clones:   make(map[string]string),
	}, nil
}

// Close removes the clone directory if it was created by NewRepository.
func (r *Repository) Close() error {
	if !r.ownsDir {
		return nil
	}
	return os.RemoveAll(r.cacheDir)
}

// RepoName derives the repository name from its URL: the last path element
// without a ".git" suffix.
func RepoName(url string) string {
	url = strings.TrimRight(strings.TrimSpace(url), "/")
	if i := strings.LastIndexAny(url, "/:"); i >= 0 {
		url = url[i+1:]
	}
	return strings.TrimSuffix(url, ".git")
}

// Clone returns a local checkout of url, cloning it on first use. A directory
// that already holds a checkout is fetched and reset instead of re-cloned.
func (r *Repository) Clone(ctx context.Context, url string) (string, error) {
	name := RepoName(url)
	if name == "" {
		return "", fmt.Errorf("cannot derive repository name from %q", url)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if path, ok := r.clones[name]; ok {
		return path, nil
	}

	dest := filepath.Join(r.cacheDir, name)
	if _, err := os.Stat(filepath.Join(dest, ".git")); err == nil {
		r.logger.Debugf("updating cached clone %s", dest)
		if err := r.update(ctx, dest); err != nil {
			return "", err
		}
	} else {
		r.logger.Infof("📥 Cloning %s...", url)
		args := []string{"clone", "--quiet"}
		if r.shallow {
			args = append(args, "--depth", "1")
		}
		args = append(args, url, dest)
		if _, err := run(ctx, "", args...); err != nil {
			return "", fmt.Errorf("clone %s: %w", url, err)
		}
	}

	r.clones[name] = dest
	return dest, nil
}

func (r *Repository) update(ctx context.Context, dir string) error {
	args := []string{"fetch", "--quiet", "origin"}
	if r.shallow {
		args = append(args, "--depth", "1")
	}
	if _, err := run(ctx, dir, args...); err != nil {
		return fmt.Errorf("fetch %s: %w", dir, err)
	}
	if _, err := run(ctx, dir, "reset", "--quiet", "--hard", "FETCH_HEAD"); err != nil {
		return fmt.Errorf("reset %s: %w", dir, err)
	}
	return nil
}

// LatestCommitHash returns the newest commit touching file. ok is false when
// the file has no history in the checkout.
func (r *Repository) LatestCommitHash(ctx context.Context, repoPath, file string) (string, bool, error) {
	out, err := run(ctx, repoPath, "log", "-1", "--format=%H", "--", file)
	if err != nil {
		if isEmptyHistory(err) {
			return "", false, nil
		}
		return "", false, err
	}
	hash := strings.TrimSpace(out)
	return hash, hash != "", nil
}

// CommitMessage returns the full message of the newest commit touching file.
func (r *Repository) CommitMessage(ctx context.Context, repoPath, file string) (string, error) {
	out, err := run(ctx, repoPath, "log", "-1", "--format=%B", "--", file)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// TrackedFiles lists every file in the index, relative to the repository root.
func (r *Repository) TrackedFiles(ctx context.Context, repoPath string) ([]string, error) {
	out, err := run(ctx, repoPath, "ls-files", "-z")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, f := range strings.Split(out, "\x00") {
		if f != "" {
			files = append(files, f)
		}
	}
	return files, nil
}

// HeadCommit returns the commit checked out in repoPath.
func (r *Repository) HeadCommit(ctx context.Context, repoPath string) (string, error) {
	out, err := run(ctx, repoPath, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// OriginURL returns the fetch URL of the origin remote, or "" when unset.
func (r *Repository) OriginURL(ctx context.Context, repoPath string) string {
	out, err := run(ctx, repoPath, "remote", "get-url", "origin")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// Path returns the checkout for a repository cloned earlier in this run.
func (r *Repository) Path(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.clones[name]
	return p, ok
}

func run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("git %s failed: %w", args[0], err)
		}
		return "", fmt.Errorf("git %s failed: %w: %s", args[0], err, msg)
	}
	return string(out), nil
}

func isEmptyHistory(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "does not have any commits") || strings.Contains(msg, "bad default revision")
}
