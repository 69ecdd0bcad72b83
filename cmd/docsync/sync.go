package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"docsync/internal/apperr"
	"docsync/internal/config"
	"docsync/internal/detector"
	"docsync/internal/metadata"
	"docsync/internal/pipeline"
	"docsync/internal/promotion"
	"docsync/internal/review"
	"docsync/internal/storage"

	"github.com/spf13/cobra"
)

var (
	jsonOutput bool
	noColor    bool
	workers    int
	resumeRun  string
	runsLimit  int
)

func init() {
	checkChangesCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print change reports as JSON")
	reviewCmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored diff output")
	regenerateChangedCmd.Flags().IntVarP(&workers, "workers", "w", 0, "Parallel workers (default from config; >1 disables checkpointing)")
	regenerateChangedCmd.Flags().StringVar(&resumeRun, "resume", "", "Resume an interrupted run by ID")
	regenerateChangedCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the batch report as JSON")
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 10, "Number of runs to list")
}

func (e *env) workspace(cmd *cobra.Command, needLLM bool) (*pipeline.Workspace, error) {
	repos, err := e.repositories()
	if err != nil {
		return nil, err
	}
	w := &pipeline.Workspace{
		Root:     projectRoot,
		Repos:    repos,
		Fetcher:  e.fetcher(),
		Logger:   e.logger,
		Model:    e.cfg.LLM.Model,
		Validate: e.cfg.Batch.Validate,
	}
	if needLLM {
		client, err := e.client(cmd.Context())
		if err != nil {
			return nil, err
		}
		w.Client = client
	}
	return w, nil
}

var checkChangesCmd = &cobra.Command{
	Use:   "check-changes [doc-path...]",
	Short: "Report source changes since each document's outline was generated",
	Long:  "Exits 0 when every document is up to date and 1 when any document needs regeneration.",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.close()

		docs := args
		if len(docs) == 0 {
			if docs, err = metadata.FindAllDocs(projectRoot); err != nil {
				return err
			}
		}
		w, err := e.workspace(cmd, false)
		if err != nil {
			return err
		}

		stale := 0
		reports := make([]detector.ChangeReport, 0, len(docs))
		for _, doc := range docs {
			report, err := w.CheckDocument(cmd.Context(), doc)
			if err != nil {
				return err
			}
			reports = append(reports, report)
			if report.NeedsRegeneration() {
				stale++
			}
			if !jsonOutput {
				printChangeReport(e, report)
			}
		}
		if jsonOutput {
			if err := printJSON(reports); err != nil {
				return err
			}
		}
		if stale > 0 {
			return exitCode(1)
		}
		return nil
	},
}

func printChangeReport(e *env, r detector.ChangeReport) {
	if !r.NeedsRegeneration() {
		e.logger.Infof("✅ %s: up to date (%d file(s) unchanged)", r.DocPath, len(r.Unchanged))
		return
	}
	e.logger.Infof("🔄 %s: %d change(s)", r.DocPath, r.TotalChanges())
	for _, c := range r.Changed {
		e.logger.Infof("   M %s (%s → %s) %s", c.File, c.OldHash, c.NewHash, c.CommitMessage)
	}
	for _, f := range r.New {
		e.logger.Infof("   A %s", f)
	}
	for _, f := range r.Removed {
		e.logger.Infof("   D %s", f)
	}
}

var reviewCmd = &cobra.Command{
	Use:   "review <doc-path>",
	Short: "Show the diff between the staged and the live document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.close()

		m := metadata.New(projectRoot, args[0])
		if !m.HasStaging() {
			return apperr.New(apperr.KindPromotion, "staging document not found: %s\ngenerate staging first: docsync generate-doc %s", m.StagingPath(), args[0])
		}
		d, err := review.Compare(m.StagingPath(), m.LivePath())
		if err != nil {
			return err
		}
		if d.Empty() {
			e.logger.Infof("✅ No differences between staging and %s", m.LivePath())
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), d.Render(!noColor))
		e.logger.Infof("\n📊 +%d -%d ~%d", d.Stats.Added, d.Stats.Removed, d.Stats.Modified)
		e.logger.Infof("   Promote with: docsync promote %s", args[0])
		return nil
	},
}

var promoteCmd = &cobra.Command{
	Use:   "promote <doc-path>",
	Short: "Copy the staged document over the live one, keeping a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.close()

		m := metadata.New(projectRoot, args[0])
		res, err := promotion.New(filepath.Join(projectRoot, config.Dir, "backups")).Promote(m.StagingPath(), m.LivePath())
		if err != nil {
			return err
		}
		if res.BackupPath != "" {
			e.logger.Infof("💾 Backup: %s", res.BackupPath)
		}
		e.logger.Infof("✅ Promoted %s → %s at %s", res.StagingPath, res.LivePath, res.PromotedAt.Format(time.RFC3339))
		return nil
	},
}

var regenerateChangedCmd = &cobra.Command{
	Use:   "regenerate-changed",
	Short: "Regenerate every document whose sources changed",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.close()

		w, err := e.workspace(cmd, true)
		if err != nil {
			return err
		}

		n := workers
		if n <= 0 {
			n = e.cfg.Batch.Workers
		}
		opts := pipeline.Options{Workers: n, CostPer1KTokens: e.cfg.Batch.CostPer1KTokens, ResumeRunID: resumeRun}
		if n <= 1 {
			store, err := storage.NewSQLiteStore(rootPath(e.cfg.Store.Path))
			if err != nil {
				return fmt.Errorf("open checkpoint store: %w", err)
			}
			defer store.Close()
			opts.Store = store
		} else if resumeRun != "" {
			return apperr.New(apperr.KindConfig, "--resume cannot be combined with --workers > 1")
		}

		report, err := pipeline.New(projectRoot, w, w, e.logger, opts).RegenerateChanged(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			if err := printJSON(report); err != nil {
				return err
			}
		} else {
			printBatchReport(e, report)
		}
		if report.Failed > 0 {
			return exitCode(1)
		}
		return nil
	},
}

func printBatchReport(e *env, r *pipeline.BatchReport) {
	if r.TotalDocs == 0 {
		return
	}
	e.logger.Infof("\n%s", strings.Repeat("=", 60))
	e.logger.Infof("📊 Batch summary")
	e.logger.Infof("   Documents: %d (✅ %d, ❌ %d, %.1f%% success)", r.TotalDocs, r.Successful, r.Failed, r.SuccessRate())
	e.logger.Infof("   Tokens:    %d (≈ $%.4f)", r.TotalTokens, r.EstimatedCost)
	e.logger.Infof("   Duration:  %s", r.TotalDuration.Round(time.Millisecond))
	for _, res := range r.Results {
		if !res.Success {
			e.logger.Infof("   ❌ %s: %s", res.DocPath, res.Error)
		}
	}
	if r.RunID != "" {
		e.logger.Infof("   Run ID:    %s", r.RunID)
	}
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent regenerate-changed runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.close()

		store, err := storage.NewSQLiteStore(rootPath(e.cfg.Store.Path))
		if err != nil {
			return fmt.Errorf("open checkpoint store: %w", err)
		}
		defer store.Close()

		runs, err := store.ListRuns(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			e.logger.Infof("No runs recorded.")
			return nil
		}
		for _, run := range runs {
			done, err := store.CompletedResults(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			e.logger.Infof("%s  %-11s  %s  %d/%d document(s)",
				run.ID, run.Status, run.StartedAt.Local().Format("2006-01-02 15:04:05"), len(done), len(run.Documents))
		}
		return nil
	},
}
