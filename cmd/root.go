package cmd

import (
	"context"
	"fmt"

	"github.com/abhisek/examprep/internal/app"
	"github.com/abhisek/examprep/internal/config"
	"github.com/abhisek/examprep/internal/logger"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "examprep",
	Short: "Turn parsed syllabi into personal study plans",
	Long: "examprep ingests a parsed syllabus, indexes its knowledge chunks, asks an LLM\n" +
		"for a day-by-day study plan and keeps each learner's plan in sync with the\n" +
		"topic catalog.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides EXAMPREP_DB env var)")
	rootCmd.PersistentFlags().String("config", "", "Config file (yaml, json or toml)")
	rootCmd.PersistentFlags().String("store", "", "Store backend: sqlite, mongo or memory")
	rootCmd.PersistentFlags().String("env-file", ".env", "Dotenv file to load when present")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(topicsCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig resolves configuration, letting explicitly set flags win over
// the environment and the config file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	file, _ := cmd.Flags().GetString("config")
	dotEnv, _ := cmd.Flags().GetString("env-file")

	overrides := map[string]any{}
	if f := cmd.Flags().Lookup("db"); f != nil && f.Changed {
		overrides[config.KeyDB] = f.Value.String()
	}
	if f := cmd.Flags().Lookup("store"); f != nil && f.Changed {
		overrides[config.KeyStoreBackend] = f.Value.String()
	}

	return config.Load(config.LoadOptions{File: file, DotEnv: dotEnv, Overrides: overrides})
}

// session is an open App plus the request-scoped context every command runs
// under.
type session struct {
	*app.App
	ctx    context.Context
	cancel context.CancelFunc
}

func (s *session) Close() {
	if err := s.App.Close(context.Background()); err != nil {
		s.Log.Warn("failed to close backends", "error", err)
	}
	s.cancel()
	s.Log.Sync()
}

func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RequestTimeout)
	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		cancel()
		return nil, err
	}
	return &session{App: a, ctx: ctx, cancel: cancel}, nil
}

// userFlag registers the --user flag every plan-facing command takes.
func userFlag(c *cobra.Command) {
	c.Flags().StringP("user", "u", "", "Learner id")
	_ = c.MarkFlagRequired("user")
}
