package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"docsync/internal/apperr"
	"docsync/internal/config"
	"docsync/internal/generator"
	"docsync/internal/llm"
	"docsync/internal/metadata"
	"docsync/internal/outline"
	"docsync/internal/pipeline"
	"docsync/internal/planner"
	"docsync/internal/sources"
	"docsync/internal/validator"

	"github.com/spf13/cobra"
)

var (
	initPurpose      string
	resolvePins      bool
	validateAfterGen bool
)

func init() {
	initCmd.Flags().StringVar(&initPurpose, "purpose", "", "Purpose written into sources.yaml")
	generateDocCmd.Flags().BoolVar(&resolvePins, "resolve-pins", false, "Look up commits for unpinned GitHub sources and save them to the outline")
	generateDocCmd.Flags().BoolVar(&validateAfterGen, "validate", false, "Run the validate-and-fix loop on the staged document")
}

var initCmd = &cobra.Command{
	Use:   "init <doc-path>",
	Short: "Create the metadata directory and a starter sources.yaml for a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.close()

		path := configPath
		if path == "" {
			path = filepath.Join(projectRoot, config.DefaultPath)
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := config.Default().Save(path); err != nil {
				return apperr.Wrap(apperr.KindConfig, err)
			}
			e.logger.Infof("📄 Created config template at %s", path)
			e.logger.Infof("   Add your API key there or export ANTHROPIC_API_KEY / OPENAI_API_KEY / GEMINI_API_KEY")
		}

		m := metadata.New(projectRoot, args[0])
		if err := m.InitSources(initPurpose); err != nil {
			return apperr.Wrap(apperr.KindSourceSpec, err)
		}
		e.logger.Infof("✓ Initialized sources for %s", args[0])
		e.logger.Infof("✓ Edit: %s", m.SourcesPath())
		e.logger.Infof("\nNext steps:")
		e.logger.Infof("  1. Edit sources.yaml to define repositories")
		e.logger.Infof("  2. Run: docsync generate-outline %s", args[0])
		return nil
	},
}

var generateOutlineCmd = &cobra.Command{
	Use:   "generate-outline <doc-path>",
	Short: "Collect source files and plan an outline with the generation service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.close()

		m := metadata.New(projectRoot, args[0])
		spec, err := m.ReadSources()
		if err != nil {
			return err
		}
		client, err := e.client(ctx)
		if err != nil {
			return err
		}
		repos, err := e.repositories()
		if err != nil {
			return err
		}

		e.logger.Infof("📦 Collecting sources from %d repositor(ies)...", len(spec.Repositories))
		collection, err := sources.NewCollector(repos, repos, e.logger).Collect(ctx, spec)
		if err != nil {
			return err
		}

		snapshot, err := pipeline.CommitSnapshot(ctx, repos, spec, collection.RepoPaths, e.logger)
		if err != nil {
			return err
		}

		res, err := planner.New(client, e.cfg.LLM.Model, e.logger).Plan(ctx, planner.Request{
			Name:    args[0],
			Purpose: spec.Metadata.Purpose,
			Output:  args[0],
			Files:   collection.Files,
			Hashes:  snapshot,
		})
		if err != nil {
			return err
		}
		if err := m.SaveOutline(res.Outline); err != nil {
			return fmt.Errorf("save outline: %w", err)
		}
		e.logger.Infof("💾 Outline saved to %s", m.OutlinePath())
		e.logger.Infof("   Next: docsync generate-doc %s", args[0])
		return nil
	},
}

var generateDocCmd = &cobra.Command{
	Use:   "generate-doc <doc-path>",
	Short: "Generate the document from its outline into staging",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.close()

		m := metadata.New(projectRoot, args[0])
		o, err := m.ReadOutline()
		if err != nil {
			return err
		}
		client, err := e.client(ctx)
		if err != nil {
			return err
		}

		fetcher := e.fetcher()
		opts := generator.Options{ReportPath: m.ReportPath()}
		if resolvePins {
			repos, err := e.repositories()
			if err != nil {
				return err
			}
			opts.Pins = sources.NewPinResolver(repos, repos)
		}

		start := time.Now()
		res, err := generator.NewGenerator(client, fetcher, e.logger, opts).GenerateFromOutline(ctx, o, m.StagingPath())
		if err != nil {
			return err
		}
		e.logger.Infof("📊 %d section(s), %d call(s), %d tokens, %d placeholder(s) in %s",
			res.Stats.Sections, res.Stats.Calls, res.Stats.TokensUsed, res.Stats.Placeholders, time.Since(start).Round(time.Millisecond))

		if validateAfterGen {
			return runValidation(cmd, e, m, o, client, fetcher)
		}
		e.logger.Infof("   Next: docsync validate %s, then docsync review %s", args[0], args[0])
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <doc-path>",
	Short: "Check the staged document against its outline and sources, fixing issues",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.close()

		m := metadata.New(projectRoot, args[0])
		o, err := m.ReadOutline()
		if err != nil {
			return err
		}
		if !m.HasStaging() {
			return apperr.New(apperr.KindNotFound, "staged document not found: %s\ngenerate it first: docsync generate-doc %s", m.StagingPath(), args[0])
		}
		client, err := e.client(cmd.Context())
		if err != nil {
			return err
		}
		return runValidation(cmd, e, m, o, client, e.fetcher())
	},
}

func runValidation(cmd *cobra.Command, e *env, m *metadata.Manager, o *outline.Outline, client llm.Client, fetcher validator.Fetcher) error {
	res, err := validator.New(client, fetcher, e.logger).ValidateFile(cmd.Context(), m.StagingPath(), o)
	if err != nil {
		return err
	}
	if err := res.Save(m.ValidationPath()); err != nil {
		e.logger.Warnf("validation history not saved: %v", err)
	}

	e.logger.Infof("📋 Validation %s after %d iteration(s), %d tokens", res.Status, res.Iterations, res.TokensUsed)
	e.logger.Infof("   History: %s", m.ValidationPath())
	if res.Status == validator.StatusNeedsReview {
		e.logger.Warnf("%s", res.Message)
		return exitCode(1)
	}
	return nil
}
