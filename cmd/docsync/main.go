package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"docsync/internal/apperr"
	"docsync/internal/config"
	"docsync/internal/git"
	"docsync/internal/llm"
	"docsync/internal/logging"
	"docsync/internal/sources"

	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:           "docsync",
		Short:         "Keep long-form documentation in sync with source repositories",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	configPath  string
	projectRoot string
	debug       bool
)

// exitCode ends the process with a status but no error output.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	os.Exit(reportError(err))
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config.yaml (default <root>/.docsync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&projectRoot, "root", ".", "Project root holding the .docsync directory")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Print debug output")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(generateOutlineCmd)
	rootCmd.AddCommand(generateDocCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(checkChangesCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(promoteCmd)
	rootCmd.AddCommand(regenerateChangedCmd)
	rootCmd.AddCommand(runsCmd)
}

// reportError prints err for the user and returns the process exit code.
func reportError(err error) int {
	if err == nil {
		return 0
	}
	var code exitCode
	if errors.As(err, &code) {
		return int(code)
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		fmt.Fprintf(os.Stderr, "❌ %s\n💡 %s\n", ae.UserMessage(), ae.Suggestion())
		return ae.ExitCode()
	}
	fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)
	return 1
}

// env is what every command needs: settings, a logger and lazily created
// repository and generation-service handles.
type env struct {
	cfg    *config.Config
	logger *logging.Logger
	repos  *git.Repository
}

func loadEnv() (*env, error) {
	path := configPath
	if path == "" {
		path = filepath.Join(projectRoot, config.DefaultPath)
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	logger := logging.New(os.Stdout, debug || cfg.Log.Debug)
	if cfg.Log.File != "" {
		if err := logger.AttachFile(rootPath(cfg.Log.File)); err != nil {
			logger.Warnf("%v", err)
		}
	}
	return &env{cfg: cfg, logger: logger}, nil
}

func (e *env) close() {
	if e.repos != nil {
		if err := e.repos.Close(); err != nil {
			e.logger.Debugf("clone cleanup: %v", err)
		}
	}
	_ = e.logger.Close()
}

func (e *env) repositories() (*git.Repository, error) {
	if e.repos != nil {
		return e.repos, nil
	}
	cacheDir := e.cfg.Repositories.CacheDir
	if cacheDir != "" {
		cacheDir = rootPath(cacheDir)
	}
	repos, err := git.NewRepository(cacheDir, e.cfg.Repositories.Shallow, e.logger)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRepository, err)
	}
	e.repos = repos
	return repos, nil
}

func (e *env) client(ctx context.Context) (llm.Client, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	c, err := llm.NewClient(ctx, llm.Options{
		Provider: e.cfg.LLM.Provider,
		APIKey:   e.cfg.LLM.APIKey,
		Model:    e.cfg.LLM.Model,
		BaseURL:  e.cfg.LLM.BaseURL,
		Timeout:  e.cfg.Timeout(),
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfig, err)
	}
	return c, nil
}

func (e *env) fetcher() *sources.Fetcher {
	return sources.NewFetcher(e.cfg.Timeout())
}

// rootPath resolves p against the project root unless it is absolute.
func rootPath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(projectRoot, p)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
