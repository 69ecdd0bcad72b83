package outline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"docsync/internal/apperr"
)

// Defaults applied when an outline file omits generation parameters.
const (
	DefaultModel       = "claude-3-5-sonnet-20241022"
	DefaultMaxTokens   = 8000
	DefaultTemperature = 0.3
)

// SourceReference points at one source file, optionally pinned to a commit.
type SourceReference struct {
	File      string `json:"file"`
	Reasoning string `json:"reasoning"`
	Commit    string `json:"commit,omitempty"`
}

// Pinned reports whether the reference carries a commit identifier.
func (r SourceReference) Pinned() bool { return r.Commit != "" }

// Section is one node of the outline tree. Children are generated after the
// parent's own content, in slice order.
type Section struct {
	Heading  string            `json:"heading"`
	Level    int               `json:"level"`
	Prompt   string            `json:"prompt"`
	Sources  []SourceReference `json:"sources"`
	Sections []Section         `json:"sections"`
}

// Outline is the root of a document specification.
type Outline struct {
	Name                string
	DocumentInstruction string
	Model               string
	MaxTokens           int
	Temperature         float64

	Title    string
	Output   string
	Sections []Section

	// CommitHashes is the change-tracking snapshot: "repo/path" -> commit.
	CommitHashes map[string]string

	// Path is the file the outline was loaded from, if any.
	Path string
}

type fileMeta struct {
	Name                string   `json:"name"`
	DocumentInstruction string   `json:"document_instruction"`
	Model               *string  `json:"model,omitempty"`
	MaxResponseTokens   *int     `json:"max_response_tokens,omitempty"`
	Temperature         *float64 `json:"temperature,omitempty"`
}

type fileDocument struct {
	Title    string    `json:"title"`
	Output   string    `json:"output"`
	Sections []Section `json:"sections"`
}

type fileOutline struct {
	Meta         fileMeta          `json:"_meta"`
	Document     fileDocument      `json:"document"`
	CommitHashes map[string]string `json:"_commit_hashes,omitempty"`
}

// Parse decodes and schema-checks outline JSON.
func Parse(data []byte) (*Outline, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var f fileOutline
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode outline: %w", err)
	}

	o := &Outline{
		Name:                f.Meta.Name,
		DocumentInstruction: f.Meta.DocumentInstruction,
		Model:               DefaultModel,
		MaxTokens:           DefaultMaxTokens,
		Temperature:         DefaultTemperature,
		Title:               f.Document.Title,
		Output:              f.Document.Output,
		Sections:            f.Document.Sections,
		CommitHashes:        f.CommitHashes,
	}
	if f.Meta.Model != nil {
		o.Model = *f.Meta.Model
	}
	if f.Meta.MaxResponseTokens != nil {
		o.MaxTokens = *f.Meta.MaxResponseTokens
	}
	if f.Meta.Temperature != nil {
		o.Temperature = *f.Meta.Temperature
	}
	return o, nil
}

// Load reads the outline at path.
func Load(path string) (*Outline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.New(apperr.KindNotFound, "outline not found: %s", path)
		}
		return nil, err
	}
	o, err := Parse(data)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, fmt.Errorf("%s: %w", path, err))
	}
	o.Path = path
	return o, nil
}

// Marshal encodes the outline in its on-disk layout.
func (o *Outline) Marshal() ([]byte, error) {
	temperature := o.Temperature
	f := fileOutline{
		Meta: fileMeta{
			Name:                o.Name,
			DocumentInstruction: o.DocumentInstruction,
			Temperature:         &temperature,
		},
		Document: fileDocument{
			Title:    o.Title,
			Output:   o.Output,
			Sections: normalize(o.Sections),
		},
	}
	// Unset generation parameters are omitted so Parse applies its defaults.
	if o.Model != "" {
		model := o.Model
		f.Meta.Model = &model
	}
	if o.MaxTokens > 0 {
		maxTokens := o.MaxTokens
		f.Meta.MaxResponseTokens = &maxTokens
	}
	if len(o.CommitHashes) > 0 {
		f.CommitHashes = o.CommitHashes
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the outline to path, creating parent directories.
func (o *Outline) Save(path string) error {
	data, err := o.Marshal()
	if err != nil {
		return fmt.Errorf("encode outline: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// normalize replaces nil slices so they encode as [] rather than null.
func normalize(sections []Section) []Section {
	out := make([]Section, len(sections))
	for i, s := range sections {
		if s.Sources == nil {
			s.Sources = []SourceReference{}
		}
		s.Sections = normalize(s.Sections)
		out[i] = s
	}
	return out
}

// Walk visits every section in pre-order. depth is 0 for top-level sections.
// Returning an error stops the walk.
func Walk(sections []Section, fn func(s *Section, depth int) error) error {
	return walk(sections, 0, fn)
}

func walk(sections []Section, depth int, fn func(s *Section, depth int) error) error {
	for i := range sections {
		if err := fn(&sections[i], depth); err != nil {
			return err
		}
		if err := walk(sections[i].Sections, depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

// CountSections returns the number of sections in the tree.
func CountSections(sections []Section) int {
	n := len(sections)
	for _, s := range sections {
		n += CountSections(s.Sections)
	}
	return n
}

// Headings returns every heading in pre-order.
func (o *Outline) Headings() []string {
	var out []string
	_ = Walk(o.Sections, func(s *Section, _ int) error {
		out = append(out, s.Heading)
		return nil
	})
	return out
}

// SourceFiles returns every source reference in the outline, deduplicated by
// locator, in first-seen pre-order.
func (o *Outline) SourceFiles() []SourceReference {
	seen := make(map[string]bool)
	var out []SourceReference
	_ = Walk(o.Sections, func(s *Section, _ int) error {
		for _, src := range s.Sources {
			if seen[src.File] {
				continue
			}
			seen[src.File] = true
			out = append(out, src)
		}
		return nil
	})
	return out
}
