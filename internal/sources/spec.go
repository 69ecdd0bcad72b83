// Package sources reads a document's source specification, collects the
// matching files from cloned repositories and fetches pinned remote files.
package sources

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"
	"gopkg.in/yaml.v3"

	"docsync/internal/apperr"
	"docsync/internal/git"
)

// FileName is the source specification file inside a document's metadata dir.
const FileName = "sources.yaml"

// Repository is one repository entry of sources.yaml.
type Repository struct {
	URL     string   `yaml:"url"`
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude,omitempty"`

	include *ignore.GitIgnore
	exclude *ignore.GitIgnore
}

type Metadata struct {
	Purpose     string `yaml:"purpose,omitempty"`
	LastUpdated string `yaml:"last_updated,omitempty"`
}

// Spec is a parsed sources.yaml.
type Spec struct {
	Repositories []*Repository `yaml:"repositories"`
	Metadata     Metadata      `yaml:"metadata,omitempty"`
}

// Name is the repository name used in snapshot keys.
func (r *Repository) Name() string {
	return git.RepoName(r.URL)
}

// Validate checks the URL and that at least one include pattern is present.
func (r *Repository) Validate() error {
	u, err := url.Parse(strings.TrimSpace(r.URL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid repository URL: %s (expected format: https://github.com/owner/repo.git)", r.URL)
	}
	if len(r.Include) == 0 {
		return fmt.Errorf("repository %s has no include patterns; specify at least one pattern (e.g. '*.py')", r.Name())
	}
	return nil
}

// Matches reports whether a repository-relative path is included and not
// excluded. Patterns use gitignore syntax.
func (r *Repository) Matches(path string) bool {
	if r.include == nil {
		r.compile()
	}
	path = filepath.ToSlash(path)
	if !r.include.MatchesPath(path) {
		return false
	}
	return r.exclude == nil || !r.exclude.MatchesPath(path)
}

func (r *Repository) compile() {
	r.include = ignore.CompileIgnoreLines(r.Include...)
	if len(r.Exclude) > 0 {
		r.exclude = ignore.CompileIgnoreLines(r.Exclude...)
	}
}

// Parse decodes and validates sources.yaml content.
func Parse(data []byte) (*Spec, error) {
	var raw struct {
		Repositories yaml.Node `yaml:"repositories"`
		Metadata     Metadata  `yaml:"metadata"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, apperr.New(apperr.KindSourceSpec, "parse sources.yaml: %v", err)
	}
	if raw.Repositories.Kind == 0 {
		return nil, apperr.New(apperr.KindSourceSpec,
			"missing 'repositories' key\nexpected structure:\n  repositories:\n    - url: https://github.com/...\n      include: ['*.py']")
	}
	if raw.Repositories.Kind != yaml.SequenceNode {
		return nil, apperr.New(apperr.KindSourceSpec, "'repositories' must be a list")
	}

	spec := &Spec{Metadata: raw.Metadata}
	for i, node := range raw.Repositories.Content {
		var repo Repository
		if err := node.Decode(&repo); err != nil {
			return nil, apperr.New(apperr.KindSourceSpec, "error in repository #%d: %v", i+1, err)
		}
		if strings.TrimSpace(repo.URL) == "" {
			return nil, apperr.New(apperr.KindSourceSpec, "error in repository #%d: missing 'url' field", i+1)
		}
		if err := repo.Validate(); err != nil {
			return nil, apperr.New(apperr.KindSourceSpec, "error in repository #%d: %v", i+1, err)
		}
		repo.compile()
		spec.Repositories = append(spec.Repositories, &repo)
	}
	return spec, nil
}

// Load reads sources.yaml from path.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.New(apperr.KindNotFound, "sources.yaml not found: %s", path)
		}
		return nil, apperr.New(apperr.KindSourceSpec, "read %s: %v", path, err)
	}
	spec, err := Parse(data)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindSourceSpec, fmt.Errorf("%s: %w", path, err))
	}
	return spec, nil
}

// Template is written by `docsync init` for the user to fill in.
const Template = `# Source repositories for this document.
# Patterns use gitignore syntax.
repositories:
  - url: https://github.com/owner/repo.git
    include:
      - "*.md"
      - "src/**/*.go"
    exclude:
      - "**/*_test.go"

metadata:
  purpose: "%s"
  last_updated: "%s"
`

// WriteTemplate creates a starter sources.yaml at path. It refuses to
// overwrite an existing file.
func WriteTemplate(path, purpose string, now time.Time) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	content := fmt.Sprintf(Template, strings.ReplaceAll(purpose, `"`, `'`), now.Format("2006-01-02"))
	return os.WriteFile(path, []byte(content), 0o644)
}
