package main

import (
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/himanishpuri/AccentAB/pkg/accentab"
	"github.com/himanishpuri/AccentAB/pkg/accentab/batch"
	"github.com/himanishpuri/AccentAB/pkg/logger"
	"github.com/himanishpuri/AccentAB/pkg/models"
)

func newGenerateCmd(g *globals) *cobra.Command {
	var (
		planPath string
		seed     uint64
		dryRun   bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Build both assignment tables from a plan and write them to the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := accentab.LoadPlan(planPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("seed") {
				plan.Seed = seed
			}

			out := cmd.OutOrStdout()
			if dryRun {
				cfg, err := plan.BatchConfig()
				if err != nil {
					return err
				}
				b, err := batch.NewBuilder(cfg, plan.Source(), logger.GetLogger().With("generate"))
				if err != nil {
					return err
				}
				res, err := b.Run(cmd.Context(), nil)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "🧪 Dry run, nothing written")
				printResult(cmd, res)
				return nil
			}

			svc, err := g.service()
			if err != nil {
				return err
			}
			defer svc.Close()

			report, err := svc.Generate(cmd.Context(), plan)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "✅ Run %s (seed %d)\n", report.Run.ID, report.Run.Seed)
			printResult(cmd, report.Result)
			return nil
		},
	}

	cmd.Flags().StringVar(&planPath, "plan", getEnvOrDefault("ACCENTAB_PLAN", "plan.yaml"), "Plan file (env: ACCENTAB_PLAN)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Override the plan's seed")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Generate in memory and print a summary only")
	return cmd
}

func printResult(cmd *cobra.Command, res *batch.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "   MOS rows: %s\n", humanize.Comma(int64(len(res.MOS))))
	fmt.Fprintf(out, "   XAB rows: %s\n", humanize.Comma(int64(len(res.XAB))))
	for _, acc := range slices.Sorted(maps.Keys(res.MOSRefs)) {
		fmt.Fprintf(out, "   %s: %d MOS references, %d XAB pairings\n", acc, res.MOSRefs[acc], res.XABPairings[acc])
	}
	for _, acc := range slices.Sorted(maps.Keys(res.Excluded)) {
		fmt.Fprintf(out, "   ⚠️  %s excluded: %v\n", acc, res.Excluded[acc])
	}
	if n := len(res.SoftErrors); n > 0 {
		fmt.Fprintf(out, "   %s skipped with warnings (see log)\n", humanize.Comma(int64(n)))
	}
}

func newRowCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "row <mos|xab> <email> <index>",
		Short: "Show one participant row (1-based)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := parseTable(args[0])
			if err != nil {
				return err
			}
			index, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid index %q: %w", args[2], err)
			}

			svc, err := g.service()
			if err != nil {
				return err
			}
			defer svc.Close()

			out := cmd.OutOrStdout()
			switch table {
			case models.TableMOS:
				row, err := svc.MOSRow(cmd.Context(), args[1], index)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Audio:   %s\nNatural: %s\nAnswer:  %s\n", row.AudioFile, row.Natural, orDash(row.Answer))
			default:
				row, err := svc.XABRow(cmd.Context(), args[1], index)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "X: %s (%s)\nA: %s (%s)\nB: %s (%s)\nNatural: %s\nAnswer:  %s\n",
					row.AudioX, row.AccentX, row.AudioA, row.AccentA, row.AudioB, row.AccentB,
					row.Natural, orDash(row.Answer))
			}
			return nil
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newTotalCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "total <mos|xab> <email>",
		Short: "Count a participant's rows",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := parseTable(args[0])
			if err != nil {
				return err
			}
			svc, err := g.service()
			if err != nil {
				return err
			}
			defer svc.Close()

			n, err := svc.TotalRows(cmd.Context(), table, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func newAnswerCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "answer <mos|xab> <email> <index> <value>",
		Short: "Record an answer (MOS 1-5, XAB a or b)",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := parseTable(args[0])
			if err != nil {
				return err
			}
			index, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid index %q: %w", args[2], err)
			}

			svc, err := g.service()
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.SetAnswer(cmd.Context(), table, args[1], index, args[3]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Recorded %s #%d for %s\n", table, index, args[1])
			return nil
		},
	}
}

func newProgressCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "progress <email>",
		Short: "Show how far a participant is through both tables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := g.service()
			if err != nil {
				return err
			}
			defer svc.Close()

			progress, err := svc.Progress(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range progress {
				next := "done"
				if p.Next > 0 {
					next = "next " + humanize.Ordinal(p.Next)
				}
				fmt.Fprintf(out, "%s: %d/%d answered, %s\n", p.Table, p.Answered, p.Total, next)
			}
			return nil
		},
	}
}

func newRunsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List recorded generation runs (sqlite backend)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := g.service()
			if err != nil {
				return err
			}
			defer svc.Close()

			runs, err := svc.Runs(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "📭 No runs recorded")
				return nil
			}
			for _, r := range runs {
				fmt.Fprintf(out, "%s  %-16s seed=%-6d mos=%s xab=%s  %s\n",
					r.ID, r.PlanName, r.Seed, humanize.Comma(int64(r.MosRows)),
					humanize.Comma(int64(r.XabRows)), humanize.Time(r.CreatedAt))
			}
			return nil
		},
	}
}
