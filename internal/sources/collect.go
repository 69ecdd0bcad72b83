package sources

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"unicode/utf8"

	"docsync/internal/apperr"
	"docsync/internal/detector"
	"docsync/internal/logging"
)

// Cloner produces a local checkout for a repository URL.
type Cloner interface {
	Clone(ctx context.Context, url string) (string, error)
}

// HistoryReader answers which commit last touched a file.
type HistoryReader interface {
	LatestCommitHash(ctx context.Context, repoPath, file string) (string, bool, error)
	TrackedFiles(ctx context.Context, repoPath string) ([]string, error)
}

// File is a matched source file read from a checkout.
type File struct {
	Repo    string // repository name
	URL     string // repository URL as written in sources.yaml
	Path    string // relative to the repository root
	Commit  string
	Content string
}

// Key is the snapshot key for the file.
func (f File) Key() string { return detector.Key(f.Repo, f.Path) }

// Collection is the result of resolving a Spec against live checkouts.
type Collection struct {
	Files     []File
	RepoPaths map[string]string // repository name -> checkout
}

// Collector resolves a Spec into concrete files.
type Collector struct {
	cloner  Cloner
	history HistoryReader
	logger  *logging.Logger
}

func NewCollector(cloner Cloner, history HistoryReader, logger *logging.Logger) *Collector {
	return &Collector{cloner: cloner, history: history, logger: logger}
}

// Clone checks out every repository in spec and returns name -> path.
func (c *Collector) Clone(ctx context.Context, spec *Spec) (map[string]string, error) {
	paths := make(map[string]string, len(spec.Repositories))
	for _, repo := range spec.Repositories {
		p, err := c.cloner.Clone(ctx, repo.URL)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindRepository, err)
		}
		paths[repo.Name()] = p
	}
	return paths, nil
}

// Collect clones the repositories and reads every tracked file matching the
// include/exclude patterns. Binary or unreadable files are skipped.
func (c *Collector) Collect(ctx context.Context, spec *Spec) (*Collection, error) {
	paths, err := c.Clone(ctx, spec)
	if err != nil {
		return nil, err
	}

	out := &Collection{RepoPaths: paths}
	for _, repo := range spec.Repositories {
		root := paths[repo.Name()]
		tracked, err := c.history.TrackedFiles(ctx, root)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindRepository, err)
		}
		sort.Strings(tracked)

		matched := 0
		for _, rel := range tracked {
			if !repo.Matches(rel) {
				continue
			}
			content, ok := readText(filepath.Join(root, filepath.FromSlash(rel)))
			if !ok {
				c.logger.Debugf("skipping non-text file %s/%s", repo.Name(), rel)
				continue
			}
			hash, found, err := c.history.LatestCommitHash(ctx, root, rel)
			if err != nil || !found {
				c.logger.Warnf("no commit found for %s/%s, skipping", repo.Name(), rel)
				continue
			}
			f := File{Repo: repo.Name(), URL: repo.URL, Path: rel, Commit: hash, Content: content}
			out.Files = append(out.Files, f)
			matched++
		}
		c.logger.Infof("   %s: %d file(s) matched", repo.Name(), matched)
	}
	return out, nil
}

func readText(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	if bytes.IndexByte(data, 0) >= 0 || !utf8.Valid(data) {
		return "", false
	}
	return string(data), true
}
