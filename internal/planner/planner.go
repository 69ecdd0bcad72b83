// Package planner asks the generation service for a document outline built
// from the collected source files and pins every source to the commit it was
// read at.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"docsync/internal/apperr"
	"docsync/internal/excerpt"
	"docsync/internal/llm"
	"docsync/internal/logging"
	"docsync/internal/outline"
	"docsync/internal/sources"
)

const (
	perFileBudget = 8000
	promptBudget  = 120000
	temperature   = 0.7
	maxTokens     = 8000
	maxLevel      = 6
)

// Request describes the document to plan.
type Request struct {
	Name    string // outline _meta.name
	Purpose string // sources.yaml metadata.purpose
	Output  string // document path written into the outline
	Files   []sources.File
	Hashes  map[string]string // becomes _commit_hashes
}

// Result is a planned outline and the tokens spent producing it.
type Result struct {
	Outline    *outline.Outline
	TokensUsed int
	Dropped    []string // source keys the model cited that were not collected
}

type Planner struct {
	client llm.Client
	model  string
	logger *logging.Logger
}

// New returns a planner. model is the generation model stored in the outline
// for later document generation; empty keeps the outline default.
func New(client llm.Client, model string, logger *logging.Logger) *Planner {
	return &Planner{client: client, model: model, logger: logger}
}

type plannedSource struct {
	File      string `json:"file"`
	Reasoning string `json:"reasoning"`
}

type plannedSection struct {
	Heading  string           `json:"heading"`
	Level    int              `json:"level"`
	Prompt   string           `json:"prompt"`
	Sources  []plannedSource  `json:"sources"`
	Sections []plannedSection `json:"sections"`
}

type plannedOutline struct {
	Title               string           `json:"title"`
	DocumentInstruction string           `json:"document_instruction"`
	Sections            []plannedSection `json:"sections"`
}

// Plan generates an outline for req.
func (p *Planner) Plan(ctx context.Context, req Request) (*Result, error) {
	if len(req.Files) == 0 {
		return nil, apperr.New(apperr.KindSourceSpec, "no source files matched the include patterns")
	}

	p.logger.Infof("🧭 Planning outline from %d source file(s)...", len(req.Files))
	resp, err := p.client.Generate(ctx, llm.Request{
		Prompt:       buildPrompt(req),
		SystemPrompt: systemPrompt,
		Temperature:  temperature,
		MaxTokens:    maxTokens,
		JSONMode:     true,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindLLM, fmt.Errorf("generate outline: %w", err))
	}

	planned, err := parsePlan(resp.Content)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err)
	}

	files := make(map[string]sources.File, len(req.Files))
	for _, f := range req.Files {
		files[f.Key()] = f
	}

	res := &Result{TokensUsed: resp.TokensUsed}
	o := &outline.Outline{
		Name:                req.Name,
		DocumentInstruction: planned.DocumentInstruction,
		Model:               outline.DefaultModel,
		MaxTokens:           outline.DefaultMaxTokens,
		Temperature:         outline.DefaultTemperature,
		Title:               planned.Title,
		Output:              req.Output,
		Sections:            convertSections(planned.Sections, 1, files, &res.Dropped),
		CommitHashes:        req.Hashes,
	}
	if p.model != "" {
		o.Model = p.model
	}
	if o.Name == "" {
		o.Name = o.Title
	}
	for _, key := range res.Dropped {
		p.logger.Warnf("outline cites unknown source %s, dropped", key)
	}

	// Round-trip through the schema so a planned outline is always loadable.
	data, err := o.Marshal()
	if err != nil {
		return nil, err
	}
	if _, err := outline.Parse(data); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, fmt.Errorf("planned outline: %w", err))
	}

	res.Outline = o
	p.logger.Infof("✅ Outline planned: %d section(s), %d tokens", outline.CountSections(o.Sections), resp.TokensUsed)
	return res, nil
}

func parsePlan(content string) (*plannedOutline, error) {
	text := llm.StripFences(content)
	var planned plannedOutline
	if err := json.Unmarshal([]byte(text), &planned); err != nil {
		return nil, fmt.Errorf("generated outline is not valid JSON: %w\nresponse: %s", err, excerpt.Head(text, 500))
	}
	if strings.TrimSpace(planned.Title) == "" {
		return nil, fmt.Errorf("generated outline is missing a title")
	}
	if len(planned.Sections) == 0 {
		return nil, fmt.Errorf("generated outline has no sections")
	}
	var check func(ss []plannedSection, path string) error
	check = func(ss []plannedSection, path string) error {
		for i, s := range ss {
			where := fmt.Sprintf("%s%d", path, i+1)
			if strings.TrimSpace(s.Heading) == "" {
				return fmt.Errorf("section %s is missing a heading", where)
			}
			if err := check(s.Sections, where+"."); err != nil {
				return err
			}
		}
		return nil
	}
	if err := check(planned.Sections, ""); err != nil {
		return nil, err
	}
	return &planned, nil
}

func convertSections(in []plannedSection, depth int, files map[string]sources.File, dropped *[]string) []outline.Section {
	out := make([]outline.Section, 0, len(in))
	for _, ps := range in {
		level := ps.Level
		if level < 1 || level > maxLevel {
			level = min(depth+1, maxLevel)
		}
		s := outline.Section{
			Heading:  markdownHeading(ps.Heading, level),
			Level:    level,
			Prompt:   ps.Prompt,
			Sources:  []outline.SourceReference{},
			Sections: convertSections(ps.Sections, depth+1, files, dropped),
		}
		for _, src := range ps.Sources {
			f, ok := files[src.File]
			if !ok {
				*dropped = append(*dropped, src.File)
				continue
			}
			s.Sources = append(s.Sources, outline.SourceReference{
				File:      locator(f),
				Reasoning: src.Reasoning,
				Commit:    f.Commit,
			})
		}
		out = append(out, s)
	}
	return out
}

func markdownHeading(heading string, level int) string {
	heading = strings.TrimSpace(heading)
	if strings.HasPrefix(heading, "#") {
		return heading
	}
	return strings.Repeat("#", level) + " " + heading
}

// locator is the pinned GitHub blob URL of f, or its snapshot key when the
// repository is not hosted on GitHub.
func locator(f sources.File) string {
	u, err := url.Parse(f.URL)
	if err != nil || u.Host != "github.com" {
		return f.Key()
	}
	parts := strings.Split(strings.Trim(strings.TrimSuffix(u.Path, ".git"), "/"), "/")
	if len(parts) != 2 {
		return f.Key()
	}
	return sources.BlobURL(parts[0], parts[1], f.Commit, f.Path)
}
