package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/himanishpuri/AccentAB/pkg/accentab"
	"github.com/himanishpuri/AccentAB/pkg/logger"
	"github.com/himanishpuri/AccentAB/pkg/models"
)

// globals are the flags every subcommand shares.
type globals struct {
	storePath string
	backend   string
	logLevel  string
}

func (g *globals) service() (accentab.Service, error) {
	return accentab.NewService(
		accentab.WithStorePath(g.storePath),
		accentab.WithBackend(g.backend),
		accentab.WithLogger(logger.GetLogger().With("cli")),
	)
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:          "accentab",
		Short:        "Generate and serve XAB/MOS accent listening-test assignments",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if g.logLevel == "" {
				return nil
			}
			lvl, ok := logger.ParseLevel(g.logLevel)
			if !ok {
				return fmt.Errorf("unknown log level %q", g.logLevel)
			}
			logger.SetLevel(lvl)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&g.storePath, "store", getEnvOrDefault("ACCENTAB_STORE", "."),
		"CSV directory or SQLite database file (env: ACCENTAB_STORE)")
	cmd.PersistentFlags().StringVar(&g.backend, "backend", getEnvOrDefault("ACCENTAB_BACKEND", accentab.BackendCSV),
		"Store backend: csv or sqlite (env: ACCENTAB_BACKEND)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "DEBUG, INFO, WARN or ERROR (default from LOG_LEVEL)")

	cmd.AddCommand(newGenerateCmd(g))
	cmd.AddCommand(newRowCmd(g))
	cmd.AddCommand(newTotalCmd(g))
	cmd.AddCommand(newAnswerCmd(g))
	cmd.AddCommand(newProgressCmd(g))
	cmd.AddCommand(newRunsCmd(g))

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	return cmd
}

func parseTable(s string) (models.Table, error) {
	t, ok := models.ParseTable(strings.ToLower(s))
	if !ok {
		return "", fmt.Errorf("%q: %w", s, models.ErrUnknownTable)
	}
	return t, nil
}
