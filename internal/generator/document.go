package generator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docsync/internal/apperr"
	"docsync/internal/excerpt"
	"docsync/internal/llm"
	"docsync/internal/logging"
	"docsync/internal/outline"
	"docsync/internal/sources"
)

const (
	// SectionSeparator joins headings, bodies and sibling sections.
	SectionSeparator = "\n\n"
	// DefaultContextWindow is how much of the document-so-far each prompt sees.
	DefaultContextWindow = 5000
	truncationPrefix     = "...\n\n"
)

// Fetcher downloads remote file content.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// PinResolver looks up the current commit for an unpinned locator.
type PinResolver interface {
	ResolvePin(ctx context.Context, locator string) (string, error)
}

type Options struct {
	ContextWindow int
	// Pins, when set, fills in missing commits before generation starts.
	Pins PinResolver
	// ReportPath, when set, receives the JSON generation report.
	ReportPath string
}

// Stats summarises one GenerateFromOutline call.
type Stats struct {
	Sections     int           `json:"sections"`
	Calls        int           `json:"calls"`
	TokensUsed   int           `json:"tokens_used"`
	Placeholders int           `json:"placeholders"`
	Duration     time.Duration `json:"duration"`
}

type Result struct {
	Content        string
	Stats          Stats
	OutlineUpdated bool
	Report         *Report
}

// Generator writes a document from an outline, one generation call per section.
type Generator struct {
	client  llm.Client
	fetcher Fetcher
	logger  *logging.Logger
	opts    Options
}

func NewGenerator(client llm.Client, fetcher Fetcher, logger *logging.Logger, opts Options) *Generator {
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = DefaultContextWindow
	}
	return &Generator{client: client, fetcher: fetcher, logger: logger, opts: opts}
}

// GenerateFromOutline walks the outline depth-first, writes the assembled
// document to outputTarget (o.Output when empty) and returns it.
func (g *Generator) GenerateFromOutline(ctx context.Context, o *outline.Outline, outputTarget string) (*Result, error) {
	start := time.Now()
	if outputTarget == "" {
		outputTarget = o.Output
	}
	report := NewReport(o.Name, outputTarget)
	res := &Result{Report: report}

	if g.opts.Pins != nil {
		h := report.BeginStage("resolve_pins")
		resolved := g.resolvePins(ctx, o)
		report.EndStage(h, map[string]float64{"resolved": float64(resolved)}, nil)
		if resolved > 0 {
			res.OutlineUpdated = true
			if o.Path != "" {
				g.logger.Infof("💾 Updating outline with %d resolved commit pin(s)...", resolved)
				if err := o.Save(o.Path); err != nil {
					return nil, fmt.Errorf("save outline pins: %w", err)
				}
			}
		}
	}

	t := &traversal{
		gen:    g,
		doc:    o,
		total:  outline.CountSections(o.Sections),
		report: report,
	}
	if t.total > 0 {
		g.logger.Infof("📝 Generating %d sections...", t.total)
	}

	h := report.BeginStage("generate_sections")
	parts := make([]string, 0, len(o.Sections))
	for i := range o.Sections {
		text, err := t.section(ctx, &o.Sections[i], 0)
		if err != nil {
			report.EndStage(h, nil, err)
			g.saveReport(report)
			return nil, err
		}
		parts = append(parts, text)
	}
	report.EndStage(h, map[string]float64{"sections": float64(t.stats.Sections), "calls": float64(t.stats.Calls)}, nil)

	content := strings.Join(parts, SectionSeparator)

	h = report.BeginStage("write")
	err := writeFile(outputTarget, content)
	report.EndStage(h, map[string]float64{"bytes": float64(len(content))}, err)
	if err != nil {
		g.saveReport(report)
		return nil, fmt.Errorf("write document: %w", err)
	}
	g.logger.Infof("✅ Document written to: %s", outputTarget)

	t.stats.Duration = time.Since(start)
	res.Content = content
	res.Stats = t.stats
	g.saveReport(report)
	return res, nil
}

func (g *Generator) saveReport(r *Report) {
	if g.opts.ReportPath == "" {
		return
	}
	if err := r.Save(g.opts.ReportPath); err != nil {
		g.logger.Warnf("failed to save generation report: %v", err)
	}
}

// resolvePins fills in the commit of every unpinned GitHub source.
func (g *Generator) resolvePins(ctx context.Context, o *outline.Outline) int {
	resolved := 0
	_ = outline.Walk(o.Sections, func(s *outline.Section, _ int) error {
		for i := range s.Sources {
			src := &s.Sources[i]
			if src.Pinned() || !sources.IsRemote(src.File) {
				continue
			}
			if _, ok := sources.ParseGitHubURL(src.File); !ok {
				continue
			}
			commit, err := g.opts.Pins.ResolvePin(ctx, src.File)
			if err != nil {
				g.logger.Warnf("could not resolve commit for %s: %v", src.File, err)
				continue
			}
			src.Commit = commit
			resolved++
		}
		return nil
	})
	return resolved
}

// traversal carries the mutable state of one depth-first generation pass.
type traversal struct {
	gen    *Generator
	doc    *outline.Outline
	report *Report

	// written is every heading and body emitted so far, in order.
	written []string
	// stack holds the headings of the sections currently being generated.
	stack []string

	total int
	done  int
	stats Stats
}

func (t *traversal) section(ctx context.Context, s *outline.Section, depth int) (string, error) {
	t.stack = append(t.stack, s.Heading)
	defer func() { t.stack = t.stack[:len(t.stack)-1] }()

	t.done++
	indent := strings.Repeat("  ", depth)
	t.gen.logger.Infof("%s[%d/%d] Generating: %s", indent, t.done, t.total, s.Heading)
	t.gen.logger.Infof("%s    Sources: %d file%s", indent, len(s.Sources), plural(len(s.Sources)))
	t.gen.logger.Debugf("%s    path: %s", indent, strings.Join(t.stack, " > "))

	t.written = append(t.written, s.Heading)
	soFar := t.documentSoFar()

	srcText, fetched, placeholders := t.gen.readSources(ctx, s.Sources)
	prompt := buildSectionPrompt(t.doc.DocumentInstruction, s, srcText, soFar)

	started := time.Now()
	resp, err := t.gen.client.Generate(ctx, llm.Request{
		Prompt:       prompt,
		SystemPrompt: systemPrompt,
		Model:        t.doc.Model,
		Temperature:  t.doc.Temperature,
		MaxTokens:    t.doc.MaxTokens,
	})
	if err != nil {
		return "", apperr.Wrap(apperr.KindLLM, fmt.Errorf("generate section %q: %w", s.Heading, err))
	}
	content := strings.TrimSpace(resp.Content)

	t.written = append(t.written, content)
	t.stats.Sections++
	t.stats.Calls++
	t.stats.TokensUsed += resp.TokensUsed
	t.stats.Placeholders += placeholders
	t.report.AddSection(SectionMetric{
		Heading:      s.Heading,
		Depth:        depth,
		SourceCount:  len(s.Sources),
		Fetched:      fetched,
		Placeholders: placeholders,
		ContextChars: len(soFar),
		ContentChars: len(content),
		Tokens:       resp.TokensUsed,
		DurationMS:   time.Since(started).Milliseconds(),
	})
	if placeholders > 0 {
		t.report.AddSignal("source_unavailable", "generate_sections", "warning",
			fmt.Sprintf("%s: %d of %d source(s) replaced by placeholders", s.Heading, placeholders, len(s.Sources)))
	}
	for _, issue := range assessSection(content) {
		t.report.AddSignal(issue, "generate_sections", "warning", s.Heading)
		t.gen.logger.Debugf("%s    quality: %s", indent, issue)
	}
	t.gen.logger.Infof("%s    ✓ Complete (%d chars)", indent, len(content))

	parts := []string{s.Heading, content}
	if len(s.Sections) > 0 {
		children := make([]string, 0, len(s.Sections))
		for i := range s.Sections {
			text, err := t.section(ctx, &s.Sections[i], depth+1)
			if err != nil {
				return "", err
			}
			children = append(children, text)
		}
		parts = append(parts, strings.Join(children, SectionSeparator))
	}
	return strings.Join(parts, SectionSeparator), nil
}

// documentSoFar returns the tail of everything written, prefixed with an
// ellipsis marker when it had to be cut.
func (t *traversal) documentSoFar() string {
	full := strings.Join(t.written, SectionSeparator)
	tail, cut := excerpt.Tail(full, t.gen.opts.ContextWindow)
	if cut {
		return truncationPrefix + tail
	}
	return tail
}

// readSources renders every reference of a section. References that cannot
// be fetched become a one-line placeholder naming the reason.
func (g *Generator) readSources(ctx context.Context, refs []outline.SourceReference) (string, int, int) {
	if len(refs) == 0 {
		return noSources, 0, 0
	}

	fetched, placeholders := 0, 0
	parts := make([]string, 0, len(refs))
	for _, ref := range refs {
		body, reason := g.fetchSource(ctx, ref)
		if reason != "" {
			placeholders++
			parts = append(parts, fmt.Sprintf("**%s** (%s)", ref.File, reason))
			continue
		}
		fetched++
		entry := []string{"**File: " + ref.File + "**"}
		if ref.Reasoning != "" {
			entry = append(entry, "**Why this file is relevant:** "+ref.Reasoning)
		}
		entry = append(entry, "```\n"+body+"\n```")
		parts = append(parts, strings.Join(entry, "\n"))
	}
	return strings.Join(parts, SectionSeparator), fetched, placeholders
}

// fetchSource returns the file body, or a non-empty reason when the
// reference cannot be used.
func (g *Generator) fetchSource(ctx context.Context, ref outline.SourceReference) (string, string) {
	if !sources.IsRemote(ref.File) {
		return "", "must be a GitHub URL"
	}
	if !ref.Pinned() {
		return "", "requires commit hash"
	}
	raw, ok := sources.RawURL(ref.File, ref.Commit)
	if !ok {
		return "", "invalid GitHub URL"
	}
	body, err := g.fetcher.Fetch(ctx, raw)
	if err != nil {
		g.logger.Debugf("fetch %s failed: %v", raw, err)
		return "", "failed to fetch from GitHub"
	}
	return body, ""
}

func writeFile(path, content string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
