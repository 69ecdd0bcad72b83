// Package validator reviews a generated document against its outline and
// sources, asking the generation service to fill gaps until the review
// passes or the iteration ceiling is hit.
package validator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"docsync/internal/apperr"
	"docsync/internal/excerpt"
	"docsync/internal/llm"
	"docsync/internal/logging"
	"docsync/internal/outline"
	"docsync/internal/sources"
)

// MaxIterations bounds the check/fix loop.
const MaxIterations = 5

type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

type Status string

const (
	StatusPassed      Status = "PASSED"
	StatusNeedsReview Status = "NEEDS_REVIEW"
)

// Issue is one gap reported by the check phase.
type Issue struct {
	Priority       Priority `json:"priority"`
	Section        string   `json:"section"`
	Description    string   `json:"description"`
	Sources        []string `json:"sources"`
	Recommendation string   `json:"recommendation"`
}

// Check is the parsed judgment of one check phase.
type Check struct {
	Iteration   int     `json:"iteration"`
	NeedsFixing bool    `json:"needs_fixing"`
	TotalIssues int     `json:"total_issues"`
	High        int     `json:"high_priority_count"`
	Medium      int     `json:"medium_priority_count"`
	Low         int     `json:"low_priority_count"`
	Issues      []Issue `json:"issues"`
	ParseError  string  `json:"parse_error,omitempty"`
}

// Blocking reports whether the check should trigger a fix phase.
func (c Check) Blocking() bool {
	return c.NeedsFixing && c.High+c.Medium > 0
}

// Iteration is one entry of the loop history.
type Iteration struct {
	Iteration    int   `json:"iteration"`
	Check        Check `json:"check"`
	FixesApplied bool  `json:"fixes_applied"`
}

type Result struct {
	Status     Status      `json:"status"`
	Iterations int         `json:"iterations"`
	History    []Iteration `json:"history"`
	Message    string      `json:"message,omitempty"`
	TokensUsed int         `json:"tokens_used"`

	// Document is the final text after all applied fixes.
	Document string `json:"-"`
}

// Save writes the result as indented JSON.
func (r *Result) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// Fetcher downloads remote source content.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

type Validator struct {
	client  llm.Client
	fetcher Fetcher
	logger  *logging.Logger
}

func New(client llm.Client, fetcher Fetcher, logger *logging.Logger) *Validator {
	return &Validator{client: client, fetcher: fetcher, logger: logger}
}

type state int

const (
	stateChecking state = iota
	stateFixing
	statePassed
	stateNeedsReview
)

type fetchedSource struct {
	Locator string
	Content string
}

// ValidateAndFix runs the check/fix loop over document. Sources are fetched
// once up front. Generation-service failures abort the loop.
func (v *Validator) ValidateAndFix(ctx context.Context, document string, o *outline.Outline) (*Result, error) {
	v.logger.Infof("📚 Fetching source files...")
	srcs := v.fetchSources(ctx, o)
	v.logger.Infof("✓ Loaded %d source files", len(srcs))

	outlineJSON, err := o.Marshal()
	if err != nil {
		return nil, fmt.Errorf("encode outline: %w", err)
	}

	res := &Result{Document: document}
	st := stateChecking
	var last Check
	for {
		switch st {
		case stateChecking:
			iteration := len(res.History) + 1
			v.logger.Infof("🔍 Iteration %d: checking completeness...", iteration)
			last, err = v.check(ctx, iteration, res, string(outlineJSON), o, srcs)
			if err != nil {
				return nil, err
			}
			res.History = append(res.History, Iteration{Iteration: iteration, Check: last})
			res.Iterations = iteration
			v.logger.Infof("📊 Iteration %d: %d issue(s) (HIGH %d, MEDIUM %d, LOW %d)",
				iteration, last.TotalIssues, last.High, last.Medium, last.Low)
			if last.Blocking() {
				st = stateFixing
			} else {
				st = statePassed
			}

		case stateFixing:
			fixed, err := v.fix(ctx, res, last, o, srcs)
			if err != nil {
				return nil, err
			}
			if strings.TrimSpace(fixed) == strings.TrimSpace(res.Document) {
				v.logger.Infof("✓ Fix produced no changes")
				st = statePassed
				continue
			}
			res.Document = fixed
			res.History[len(res.History)-1].FixesApplied = true
			if res.Iterations >= MaxIterations {
				st = stateNeedsReview
			} else {
				st = stateChecking
			}

		case statePassed:
			res.Status = StatusPassed
			v.logger.Infof("✅ PASSED at iteration %d", res.Iterations)
			return res, nil

		case stateNeedsReview:
			res.Status = StatusNeedsReview
			res.Message = fmt.Sprintf("Document still has issues after %d iterations", MaxIterations)
			v.logger.Warnf("Reached maximum iterations (%d); human review required", MaxIterations)
			return res, nil
		}
	}
}

// ValidateFile validates the staged document at path and writes the final
// text back when fixes were applied.
func (v *Validator) ValidateFile(ctx context.Context, path string, o *outline.Outline) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.New(apperr.KindNotFound, "staged document not found: %s", path)
		}
		return nil, err
	}
	res, err := v.ValidateAndFix(ctx, string(data), o)
	if err != nil {
		return nil, err
	}
	if res.Document != string(data) {
		if err := os.WriteFile(path, []byte(res.Document), 0o644); err != nil {
			return nil, fmt.Errorf("write fixed document: %w", err)
		}
	}
	return res, nil
}

func (v *Validator) check(ctx context.Context, iteration int, res *Result, outlineJSON string, o *outline.Outline, srcs []fetchedSource) (Check, error) {
	prompt := buildCheckPrompt(iteration, res.Document, outlineJSON, o.DocumentInstruction, srcs)
	resp, err := v.client.Generate(ctx, llm.Request{
		Prompt:      prompt,
		Model:       o.Model,
		Temperature: 0.1,
		MaxTokens:   4096,
		JSONMode:    true,
	})
	if err != nil {
		return Check{}, apperr.Wrap(apperr.KindLLM, fmt.Errorf("validation check: %w", err))
	}
	res.TokensUsed += resp.TokensUsed

	check, perr := parseCheck(resp.Content)
	check.Iteration = iteration
	if perr != nil {
		v.logger.Warnf("Failed to parse validation response as JSON: %v", perr)
		v.logger.Debugf("response was: %s", excerpt.Head(resp.Content, 500))
		check.ParseError = perr.Error()
	}
	return check, nil
}

func (v *Validator) fix(ctx context.Context, res *Result, c Check, o *outline.Outline, srcs []fetchedSource) (string, error) {
	var toFix []Issue
	for _, is := range c.Issues {
		if is.Priority == PriorityHigh || is.Priority == PriorityMedium {
			toFix = append(toFix, is)
		}
	}
	v.logger.Infof("🔧 Fixing %d issue(s)...", len(toFix))

	issuesJSON, err := json.MarshalIndent(toFix, "", "  ")
	if err != nil {
		return "", err
	}
	resp, err := v.client.Generate(ctx, llm.Request{
		Prompt:      buildFixPrompt(c.Iteration, res.Document, string(issuesJSON), srcs),
		Model:       o.Model,
		Temperature: 0.2,
		MaxTokens:   8000,
	})
	if err != nil {
		return "", apperr.Wrap(apperr.KindLLM, fmt.Errorf("validation fix: %w", err))
	}
	res.TokensUsed += resp.TokensUsed
	return llm.StripFences(resp.Content), nil
}

// parseCheck decodes the check response. On error the returned Check is
// empty, which counts as "no issues".
func parseCheck(content string) (Check, error) {
	var raw struct {
		NeedsFixing bool    `json:"needs_fixing"`
		Issues      []Issue `json:"issues"`
	}
	if err := json.Unmarshal([]byte(llm.StripFences(content)), &raw); err != nil {
		return Check{Issues: []Issue{}}, err
	}

	c := Check{NeedsFixing: raw.NeedsFixing, Issues: make([]Issue, 0, len(raw.Issues))}
	for _, is := range raw.Issues {
		is.Priority = Priority(strings.ToUpper(strings.TrimSpace(string(is.Priority))))
		switch is.Priority {
		case PriorityHigh:
			c.High++
		case PriorityMedium:
			c.Medium++
		default:
			is.Priority = PriorityLow
			c.Low++
		}
		if is.Sources == nil {
			is.Sources = []string{}
		}
		c.Issues = append(c.Issues, is)
	}
	c.TotalIssues = len(c.Issues)
	return c, nil
}

// fetchSources downloads every remote source in the outline once, in
// first-seen order. Unfetchable sources are skipped with a warning.
func (v *Validator) fetchSources(ctx context.Context, o *outline.Outline) []fetchedSource {
	var out []fetchedSource
	for _, ref := range o.SourceFiles() {
		url := fetchURL(ref)
		if url == "" {
			v.logger.Debugf("skipping non-remote source %s", ref.File)
			continue
		}
		v.logger.Infof("  📥 Fetching: %s", ref.File)
		body, err := v.fetcher.Fetch(ctx, url)
		if err != nil || body == "" {
			v.logger.Warnf("Failed to fetch: %s", ref.File)
			continue
		}
		out = append(out, fetchedSource{Locator: ref.File, Content: body})
	}
	return out
}

// fetchURL picks the raw URL for a reference: the pinned commit when known,
// otherwise the ref named in the blob URL.
func fetchURL(ref outline.SourceReference) string {
	if !sources.IsRemote(ref.File) {
		return ""
	}
	f, ok := sources.ParseGitHubURL(ref.File)
	if !ok {
		return ref.File
	}
	if ref.Pinned() {
		return f.RawURL(ref.Commit)
	}
	return f.RawURL(f.Ref)
}
