// Package detector compares a document's commit-hash snapshot against the
// live repositories to decide whether the document is stale.
package detector

import (
	"context"
	"path"
	"sort"
	"strings"

	"docsync/internal/logging"
)

// RepositoryProvider answers history questions about a local checkout.
type RepositoryProvider interface {
	LatestCommitHash(ctx context.Context, repoPath, file string) (string, bool, error)
	CommitMessage(ctx context.Context, repoPath, file string) (string, error)
	TrackedFiles(ctx context.Context, repoPath string) ([]string, error)
}

// FileChange is a source file whose latest commit moved since the snapshot.
type FileChange struct {
	File          string `json:"file"`
	OldHash       string `json:"old_hash"`
	NewHash       string `json:"new_hash"`
	CommitMessage string `json:"commit_message"`
}

type ChangeReport struct {
	DocPath   string       `json:"doc_path"`
	Changed   []FileChange `json:"changed"`
	New       []string     `json:"new"`
	Removed   []string     `json:"removed"`
	Unchanged []string     `json:"unchanged"`
}

// NeedsRegeneration is true when anything other than unchanged files was found.
func (r ChangeReport) NeedsRegeneration() bool {
	return r.TotalChanges() > 0
}

func (r ChangeReport) TotalChanges() int {
	return len(r.Changed) + len(r.New) + len(r.Removed)
}

type Detector struct {
	repos  RepositoryProvider
	logger *logging.Logger
	filter func(repoName, file string) bool
}

func New(repos RepositoryProvider, logger *logging.Logger) *Detector {
	return &Detector{repos: repos, logger: logger}
}

// WithFilter limits new-file discovery and snapshots to tracked files for
// which keep returns true. Snapshot keys are always checked.
func (d *Detector) WithFilter(keep func(repoName, file string) bool) *Detector {
	d.filter = keep
	return d
}

func (d *Detector) tracked(repoName, file string) bool {
	return d.filter == nil || d.filter(repoName, file)
}

// CheckChanges classifies every snapshot key and every live tracked file.
// repoPaths maps repository name to local checkout. Lookup failures are never
// returned; the affected file is reported as removed.
func (d *Detector) CheckChanges(ctx context.Context, snapshot map[string]string, repoPaths map[string]string, docPath string) ChangeReport {
	report := ChangeReport{DocPath: docPath}

	for key, oldHash := range snapshot {
		repoName, rel := SplitKey(key)
		repoPath, ok := repoPaths[repoName]
		if !ok || rel == "" {
			// Repository absent from this run: cannot verify, so treat as stale.
			report.Removed = append(report.Removed, key)
			continue
		}

		newHash, found, err := d.repos.LatestCommitHash(ctx, repoPath, rel)
		if err != nil {
			d.logger.Warnf("commit lookup failed for %s: %v", key, err)
			report.Removed = append(report.Removed, key)
			continue
		}
		if !found {
			report.Removed = append(report.Removed, key)
			continue
		}
		if newHash == oldHash {
			report.Unchanged = append(report.Unchanged, key)
			continue
		}

		msg, err := d.repos.CommitMessage(ctx, repoPath, rel)
		if err != nil {
			d.logger.Debugf("commit message lookup failed for %s: %v", key, err)
		}
		report.Changed = append(report.Changed, FileChange{
			File:          key,
			OldHash:       ShortHash(oldHash),
			NewHash:       ShortHash(newHash),
			CommitMessage: Subject(msg),
		})
	}

	for _, repoName := range sortedKeys(repoPaths) {
		files, err := d.repos.TrackedFiles(ctx, repoPaths[repoName])
		if err != nil {
			d.logger.Warnf("cannot list files in %s: %v", repoName, err)
			continue
		}
		for _, f := range files {
			if !d.tracked(repoName, f) {
				continue
			}
			key := Key(repoName, f)
			if _, ok := snapshot[key]; !ok {
				report.New = append(report.New, key)
			}
		}
	}

	sort.Slice(report.Changed, func(i, j int) bool { return report.Changed[i].File < report.Changed[j].File })
	sort.Strings(report.New)
	sort.Strings(report.Removed)
	sort.Strings(report.Unchanged)
	return report
}

// Snapshot records the latest commit of every tracked file in repoPaths.
// Files without history are left out.
func (d *Detector) Snapshot(ctx context.Context, repoPaths map[string]string) (map[string]string, error) {
	snap := make(map[string]string)
	for _, repoName := range sortedKeys(repoPaths) {
		repoPath := repoPaths[repoName]
		files, err := d.repos.TrackedFiles(ctx, repoPath)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if !d.tracked(repoName, f) {
				continue
			}
			hash, ok, err := d.repos.LatestCommitHash(ctx, repoPath, f)
			if err != nil {
				return nil, err
			}
			if ok {
				snap[Key(repoName, f)] = hash
			}
		}
	}
	return snap, nil
}

// Key qualifies a repository-relative path with its repository name.
func Key(repoName, file string) string {
	return repoName + "/" + path.Clean(strings.TrimPrefix(file, "./"))
}

// SplitKey splits "repo/rest" on the first slash.
func SplitKey(key string) (repoName, rel string) {
	repoName, rel, _ = strings.Cut(key, "/")
	return repoName, rel
}

// ShortHash returns the 7-character abbreviation of a commit hash.
func ShortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}

// Subject returns the first line of a commit message.
func Subject(msg string) string {
	first, _, _ := strings.Cut(strings.TrimSpace(msg), "\n")
	return strings.TrimSpace(first)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
