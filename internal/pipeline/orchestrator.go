// Package pipeline regenerates every stale document in a project and
// aggregates the outcome into a batch report.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"docsync/internal/apperr"
	"docsync/internal/detector"
	"docsync/internal/logging"
	"docsync/internal/metadata"
	"docsync/internal/storage"
)

// DefaultCostPer1KTokens is the estimated USD price of 1000 tokens.
const DefaultCostPer1KTokens = 0.02

// Usage is what one regeneration spent.
type Usage struct {
	OutlineTokens    int
	DocTokens        int
	ValidationStatus string
}

// Regenerator rebuilds one document from its sources.
type Regenerator interface {
	Regenerate(ctx context.Context, docPath string) (Usage, error)
}

// StalenessChecker decides whether one document needs regeneration.
type StalenessChecker interface {
	CheckDocument(ctx context.Context, docPath string) (detector.ChangeReport, error)
}

// RegenerationResult is the outcome of one document.
type RegenerationResult struct {
	DocPath          string        `json:"doc_path"`
	Success          bool          `json:"success"`
	Error            string        `json:"error,omitempty"`
	OutlineTokens    int           `json:"outline_tokens"`
	DocTokens        int           `json:"doc_tokens"`
	Duration         time.Duration `json:"duration"`
	ValidationStatus string        `json:"validation_status,omitempty"`
	Resumed          bool          `json:"resumed,omitempty"`
}

func (r RegenerationResult) Tokens() int { return r.OutlineTokens + r.DocTokens }

// BatchReport aggregates a regeneration run.
type BatchReport struct {
	RunID         string               `json:"run_id,omitempty"`
	TotalDocs     int                  `json:"total_docs"`
	Successful    int                  `json:"successful"`
	Failed        int                  `json:"failed"`
	TotalTokens   int                  `json:"total_tokens"`
	TotalDuration time.Duration        `json:"total_duration"`
	EstimatedCost float64              `json:"estimated_cost_usd"`
	Results       []RegenerationResult `json:"results"`
}

// SuccessRate is the percentage of successful documents, 0 for an empty batch.
func (b *BatchReport) SuccessRate() float64 {
	if b.TotalDocs == 0 {
		return 0.0
	}
	return float64(b.Successful) / float64(b.TotalDocs) * 100.0
}

func (b *BatchReport) add(r RegenerationResult) {
	b.Results = append(b.Results, r)
	b.TotalDocs++
	if r.Success {
		b.Successful++
	} else {
		b.Failed++
	}
	b.TotalTokens += r.Tokens()
	b.TotalDuration += r.Duration
}

type Options struct {
	// Workers > 1 regenerates documents in parallel. Parallel runs are not
	// checkpointed.
	Workers         int
	CostPer1KTokens float64
	// Store, when set, checkpoints sequential runs.
	Store storage.CheckpointStore
	// ResumeRunID replays the document list of an earlier run, skipping
	// documents that already have a recorded result.
	ResumeRunID string
}

type Orchestrator struct {
	root    string
	checker StalenessChecker
	regen   Regenerator
	logger  *logging.Logger
	opts    Options
}

// New returns an orchestrator over the documents initialised under root.
func New(root string, checker StalenessChecker, regen Regenerator, logger *logging.Logger, opts Options) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.CostPer1KTokens <= 0 {
		opts.CostPer1KTokens = DefaultCostPer1KTokens
	}
	return &Orchestrator{root: root, checker: checker, regen: regen, logger: logger, opts: opts}
}

// FindChanged returns, in stable order, every document whose sources moved.
// Documents whose metadata cannot be read are skipped with a warning.
func (o *Orchestrator) FindChanged(ctx context.Context) ([]string, error) {
	docs, err := metadata.FindAllDocs(o.root)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	o.logger.Infof("🔍 Checking %d document(s) for changes...", len(docs))

	var changed []string
	for _, doc := range docs {
		report, err := o.checker.CheckDocument(ctx, doc)
		if err != nil {
			o.logger.Warnf("skipping %s: %v", doc, err)
			continue
		}
		if report.NeedsRegeneration() {
			o.logger.Infof("   %s: %d change(s)", doc, report.TotalChanges())
			changed = append(changed, doc)
		} else {
			o.logger.Debugf("   %s: up to date", doc)
		}
	}
	return changed, nil
}

// RegenerateChanged finds stale documents and regenerates them. With a
// resume ID the stored document list is replayed instead of re-detecting.
func (o *Orchestrator) RegenerateChanged(ctx context.Context) (*BatchReport, error) {
	if o.opts.ResumeRunID != "" {
		return o.resume(ctx)
	}

	docs, err := o.FindChanged(ctx)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		o.logger.Infof("✅ All documents are up to date.")
		return o.finalize(&BatchReport{}), nil
	}

	if o.opts.Workers > 1 {
		return o.runParallel(ctx, docs)
	}

	var runID string
	if o.opts.Store != nil {
		run, err := o.opts.Store.CreateRun(ctx, docs)
		if err != nil {
			return nil, fmt.Errorf("create checkpoint: %w", err)
		}
		runID = run.ID
		o.logger.Infof("🧾 Run %s (resume with --resume %s)", runID, runID)
	}
	return o.runSequential(ctx, runID, docs, nil)
}

func (o *Orchestrator) resume(ctx context.Context) (*BatchReport, error) {
	if o.opts.Store == nil {
		return nil, apperr.New(apperr.KindConfig, "resume requires a checkpoint store")
	}
	run, err := o.opts.Store.LoadRun(ctx, o.opts.ResumeRunID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNotFound, err)
	}
	done, err := o.opts.Store.CompletedResults(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	o.logger.Infof("🔁 Resuming run %s: %d of %d document(s) already done", run.ID, len(done), len(run.Documents))
	return o.runSequential(ctx, run.ID, run.Documents, done)
}

func (o *Orchestrator) runSequential(ctx context.Context, runID string, docs []string, done map[string]storage.DocResult) (*BatchReport, error) {
	report := &BatchReport{RunID: runID}
	for i, doc := range docs {
		if prev, ok := done[doc]; ok {
			report.add(fromCheckpoint(prev))
			continue
		}
		if ctx.Err() != nil {
			return o.interrupted(ctx, runID, report, len(docs)-i)
		}

		o.logger.Infof("\n[%d/%d] Regenerating %s", i+1, len(docs), doc)
		res := o.regenerateOne(ctx, doc)
		if !res.Success && ctx.Err() != nil {
			// Cut short by cancellation: left unrecorded so a resume retries it.
			return o.interrupted(ctx, runID, report, len(docs)-i)
		}
		report.add(res)

		if runID != "" {
			if err := o.opts.Store.RecordResult(ctx, runID, toCheckpoint(res)); err != nil {
				o.logger.Warnf("checkpoint for %s not saved: %v", doc, err)
			}
		}
	}

	if runID != "" {
		if err := o.opts.Store.FinishRun(ctx, runID, storage.RunCompleted); err != nil {
			o.logger.Warnf("could not close run %s: %v", runID, err)
		}
	}
	return o.finalize(report), nil
}

// interrupted marks the run as interrupted and returns the partial report
// together with the cancellation error.
func (o *Orchestrator) interrupted(ctx context.Context, runID string, report *BatchReport, remaining int) (*BatchReport, error) {
	o.logger.Warnf("Interrupted with %d document(s) not regenerated", remaining)
	if runID == "" {
		return o.finalize(report), fmt.Errorf("batch interrupted: %w", ctx.Err())
	}
	if err := o.opts.Store.FinishRun(context.WithoutCancel(ctx), runID, storage.RunInterrupted); err != nil {
		o.logger.Warnf("could not mark run %s interrupted: %v", runID, err)
	}
	return o.finalize(report), fmt.Errorf("batch interrupted, resume with: docsync regenerate-changed --resume %s: %w", runID, ctx.Err())
}

// runParallel dispatches documents to a fixed pool. Results keep input order.
// Documents not yet dispatched when ctx is cancelled are left out.
func (o *Orchestrator) runParallel(ctx context.Context, docs []string) (*BatchReport, error) {
	results := make([]RegenerationResult, len(docs))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < min(o.opts.Workers, len(docs)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				o.logger.Infof("⚙️  Regenerating %s", docs[i])
				results[i] = o.regenerateOne(ctx, docs[i])
			}
		}()
	}
dispatch:
	for i := range docs {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	report := &BatchReport{}
	for _, r := range results {
		if r.DocPath == "" {
			continue
		}
		report.add(r)
	}
	if err := ctx.Err(); err != nil {
		return o.finalize(report), fmt.Errorf("batch interrupted: %w", err)
	}
	return o.finalize(report), nil
}

func (o *Orchestrator) regenerateOne(ctx context.Context, doc string) RegenerationResult {
	start := time.Now()
	usage, err := o.regen.Regenerate(ctx, doc)
	res := RegenerationResult{
		DocPath:          doc,
		Success:          err == nil,
		OutlineTokens:    usage.OutlineTokens,
		DocTokens:        usage.DocTokens,
		Duration:         time.Since(start),
		ValidationStatus: usage.ValidationStatus,
	}
	if err != nil {
		res.Error = err.Error()
		o.logger.Warnf("%s failed: %s", doc, res.Error)
	} else {
		o.logger.Infof("✅ %s regenerated (%d tokens)", doc, res.Tokens())
	}
	return res
}

func (o *Orchestrator) finalize(r *BatchReport) *BatchReport {
	if r.Results == nil {
		r.Results = []RegenerationResult{}
	}
	r.EstimatedCost = EstimateCost(r.TotalTokens, o.opts.CostPer1KTokens)
	return r
}

// EstimateCost is linear in tokens.
func EstimateCost(tokens int, costPer1K float64) float64 {
	return float64(tokens) / 1000 * costPer1K
}

func toCheckpoint(r RegenerationResult) storage.DocResult {
	return storage.DocResult{
		DocPath:          r.DocPath,
		Success:          r.Success,
		Error:            r.Error,
		OutlineTokens:    r.OutlineTokens,
		DocTokens:        r.DocTokens,
		Duration:         r.Duration,
		ValidationStatus: r.ValidationStatus,
	}
}

func fromCheckpoint(r storage.DocResult) RegenerationResult {
	return RegenerationResult{
		DocPath:          r.DocPath,
		Success:          r.Success,
		Error:            r.Error,
		OutlineTokens:    r.OutlineTokens,
		DocTokens:        r.DocTokens,
		Duration:         r.Duration,
		ValidationStatus: r.ValidationStatus,
		Resumed:          true,
	}
}
