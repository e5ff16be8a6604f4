package cmd

import (
	"fmt"

	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	"github.com/martinhoang/urdf2mjcf/internal/runlog"
)

var (
	historyLimit  int
	historyJSON   bool
	historyLedger string
)

var historyCmd = &cobra.Command{
	Use:          "history",
	Short:        "List recent conversion runs from the ledger",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger, err := runlog.Open(absPath(historyLedger))
		if err != nil {
			return err
		}
		defer func() { _ = ledger.Close() }()

		runs, err := ledger.Recent(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if historyJSON {
			data, err := oj.Marshal(runs, 2)
			if err != nil {
				return fmt.Errorf("encode history: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, "No recorded runs.")
			return nil
		}
		for _, r := range runs {
			fmt.Fprintf(out, "#%d  %s\n", r.ID, r.StartedAt)
			fmt.Fprintf(out, "    %s -> %s\n", r.Input, r.Output)
			fmt.Fprintf(out, "    actuators=%d fragments=%d warnings=%d\n", r.Actuators, r.Fragments, r.Warnings)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Maximum number of runs to list")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Emit the runs as JSON")
	historyCmd.Flags().StringVar(&historyLedger, "ledger", "urdf2mjcf.db", "Run ledger database to read")
	rootCmd.AddCommand(historyCmd)
}
