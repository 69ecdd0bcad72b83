package pipeline

import (
	"context"
	"fmt"

	"docsync/internal/apperr"
	"docsync/internal/detector"
	"docsync/internal/generator"
	"docsync/internal/llm"
	"docsync/internal/logging"
	"docsync/internal/metadata"
	"docsync/internal/planner"
	"docsync/internal/sources"
	"docsync/internal/validator"
)

// Repositories clones and inspects source repositories. *git.Repository
// satisfies it.
type Repositories interface {
	sources.Cloner
	detector.RepositoryProvider
}

// Fetcher downloads pinned remote sources.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Workspace is the project-backed implementation of StalenessChecker and
// Regenerator: it reads each document's metadata directory, clones the
// repositories named in sources.yaml and drives planner, generator and
// validator.
type Workspace struct {
	Root     string
	Repos    Repositories
	Client   llm.Client
	Fetcher  Fetcher
	Logger   *logging.Logger
	Model    string // generation model written into planned outlines
	Validate bool   // run the validate-and-fix loop on every staged document
}

var (
	_ StalenessChecker = (*Workspace)(nil)
	_ Regenerator      = (*Workspace)(nil)
)

// CheckDocument compares the outline's commit snapshot with the live
// repositories.
func (w *Workspace) CheckDocument(ctx context.Context, docPath string) (detector.ChangeReport, error) {
	m := metadata.New(w.Root, docPath)
	o, err := m.ReadOutline()
	if err != nil {
		return detector.ChangeReport{}, err
	}
	spec, err := m.ReadSources()
	if err != nil {
		return detector.ChangeReport{}, err
	}

	repoPaths, err := sources.NewCollector(w.Repos, w.Repos, w.Logger).Clone(ctx, spec)
	if err != nil {
		return detector.ChangeReport{}, err
	}
	d := detector.New(w.Repos, w.Logger).WithFilter(SpecFilter(spec))
	return d.CheckChanges(ctx, o.CommitHashes, repoPaths, docPath), nil
}

// Regenerate re-plans the outline from current sources, writes the document
// to staging, optionally validates it and saves the outline with the fresh
// commit snapshot.
func (w *Workspace) Regenerate(ctx context.Context, docPath string) (Usage, error) {
	var usage Usage
	m := metadata.New(w.Root, docPath)

	spec, err := m.ReadSources()
	if err != nil {
		return usage, err
	}
	collection, err := sources.NewCollector(w.Repos, w.Repos, w.Logger).Collect(ctx, spec)
	if err != nil {
		return usage, err
	}

	snapshot, err := CommitSnapshot(ctx, w.Repos, spec, collection.RepoPaths, w.Logger)
	if err != nil {
		return usage, err
	}

	planned, err := planner.New(w.Client, w.Model, w.Logger).Plan(ctx, planner.Request{
		Name:    docPath,
		Purpose: spec.Metadata.Purpose,
		Output:  docPath,
		Files:   collection.Files,
		Hashes:  snapshot,
	})
	if err != nil {
		return usage, err
	}
	usage.OutlineTokens = planned.TokensUsed
	o := planned.Outline

	gen := generator.NewGenerator(w.Client, w.Fetcher, w.Logger, generator.Options{ReportPath: m.ReportPath()})
	res, err := gen.GenerateFromOutline(ctx, o, m.StagingPath())
	if err != nil {
		return usage, err
	}
	usage.DocTokens = res.Stats.TokensUsed

	if w.Validate {
		vres, err := validator.New(w.Client, w.Fetcher, w.Logger).ValidateFile(ctx, m.StagingPath(), o)
		if err != nil {
			return usage, err
		}
		usage.DocTokens += vres.TokensUsed
		usage.ValidationStatus = string(vres.Status)
		if err := vres.Save(m.ValidationPath()); err != nil {
			w.Logger.Warnf("validation history not saved: %v", err)
		}
	}

	if err := m.SaveOutline(o); err != nil {
		return usage, fmt.Errorf("save outline: %w", err)
	}
	return usage, nil
}

// CommitSnapshot records the latest commit of every tracked file the sources
// select. It covers the same files CheckDocument inspects for new files,
// including ones too large or binary to be read into a prompt.
func CommitSnapshot(ctx context.Context, repos detector.RepositoryProvider, spec *sources.Spec, repoPaths map[string]string, logger *logging.Logger) (map[string]string, error) {
	snap, err := detector.New(repos, logger).WithFilter(SpecFilter(spec)).Snapshot(ctx, repoPaths)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRepository, fmt.Errorf("snapshot commit hashes: %w", err))
	}
	return snap, nil
}

// SpecFilter keeps files that match the include/exclude patterns of the
// repository they belong to.
func SpecFilter(spec *sources.Spec) func(repoName, file string) bool {
	return func(repoName, file string) bool {
		for _, repo := range spec.Repositories {
			if repo.Name() == repoName && repo.Matches(file) {
				return true
			}
		}
		return false
	}
}
