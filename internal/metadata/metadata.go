// Package metadata maps a document path to its working files under
// .docsync/metadata: sources.yaml, outline.json and the staging copy.
package metadata

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"docsync/internal/apperr"
	"docsync/internal/config"
	"docsync/internal/outline"
	"docsync/internal/sources"
)

const (
	OutlineFile    = "outline.json"
	ValidationFile = "validation.json"
	ReportFile     = "generation_report.json"
)

// Manager resolves the metadata paths of one document. DocPath is relative
// to Root, e.g. "docs/modules/auth.md".
type Manager struct {
	Root    string
	DocPath string
}

func New(root, docPath string) *Manager {
	return &Manager{Root: root, DocPath: filepath.Clean(docPath)}
}

// Dir is <root>/.docsync/metadata/<doc dir>/<doc stem>.
func (m *Manager) Dir() string {
	stem := strings.TrimSuffix(filepath.Base(m.DocPath), filepath.Ext(m.DocPath))
	return filepath.Join(MetadataRoot(m.Root), filepath.Dir(m.DocPath), stem)
}

func (m *Manager) SourcesPath() string { return filepath.Join(m.Dir(), sources.FileName) }
func (m *Manager) OutlinePath() string { return filepath.Join(m.Dir(), OutlineFile) }
func (m *Manager) StagingDir() string  { return filepath.Join(m.Dir(), "staging") }

// StagingPath is where generated documents wait for review.
func (m *Manager) StagingPath() string {
	return filepath.Join(m.StagingDir(), filepath.Base(m.DocPath))
}

func (m *Manager) ValidationPath() string { return filepath.Join(m.StagingDir(), ValidationFile) }
func (m *Manager) ReportPath() string     { return filepath.Join(m.StagingDir(), ReportFile) }

// LivePath is the promoted document.
func (m *Manager) LivePath() string { return filepath.Join(m.Root, m.DocPath) }

// InitSources writes a starter sources.yaml.
func (m *Manager) InitSources(purpose string) error {
	if purpose == "" {
		purpose = "Document the " + strings.TrimSuffix(filepath.Base(m.DocPath), filepath.Ext(m.DocPath)) + " functionality"
	}
	return sources.WriteTemplate(m.SourcesPath(), purpose, time.Now())
}

// ReadSources loads the document's source specification.
func (m *Manager) ReadSources() (*sources.Spec, error) {
	spec, err := sources.Load(m.SourcesPath())
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "sources not found: %s\ninitialize with: docsync init %s", m.SourcesPath(), m.DocPath)
	}
	return spec, err
}

// ReadOutline loads the document's outline.
func (m *Manager) ReadOutline() (*outline.Outline, error) {
	o, err := outline.Load(m.OutlinePath())
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "outline not found: %s\ngenerate with: docsync generate-outline %s", m.OutlinePath(), m.DocPath)
	}
	return o, err
}

// SaveOutline writes o to the document's outline path and records the path
// on o.
func (m *Manager) SaveOutline(o *outline.Outline) error {
	o.Path = m.OutlinePath()
	return o.Save(o.Path)
}

// HasStaging reports whether a staged document exists.
func (m *Manager) HasStaging() bool {
	_, err := os.Stat(m.StagingPath())
	return err == nil
}

// MetadataRoot is <root>/.docsync/metadata.
func MetadataRoot(root string) string {
	return filepath.Join(root, config.Dir, "metadata")
}

// FindAllDocs lists every initialised document (one per sources.yaml),
// sorted, as paths relative to root with a .md extension.
func FindAllDocs(root string) ([]string, error) {
	base := MetadataRoot(root)
	var docs []string
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == base {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() && d.Name() == "staging" {
			return filepath.SkipDir
		}
		if d.IsDir() || d.Name() != sources.FileName {
			return nil
		}
		rel, err := filepath.Rel(base, filepath.Dir(path))
		if err != nil {
			return err
		}
		docs = append(docs, rel+".md")
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(docs)
	return docs, nil
}
