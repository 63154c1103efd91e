package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/simaogato/wealthflow-ldi/internal/domain"
	"github.com/simaogato/wealthflow-ldi/internal/usecase/run"
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	var (
		asOfRaw   string
		portfolio string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the engine once and print the reports as JSON",
		Long: `Run every stage for one portfolio, or for every portfolio in the snapshot,
and print the results as JSON. A failing portfolio is reported with its error
kind (INPUT, INFEASIBLE or NUMERICAL) and does not stop the others.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf, err := parseAsOf(asOfRaw, time.Now)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), flags, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Run.Timeout)
			defer cancel()

			outcomes, err := runOnce(ctx, a.runner, portfolio, asOf)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), outcomes)
		},
	}

	cmd.Flags().StringVar(&asOfRaw, "as-of", "", "Valuation date, YYYY-MM-DD (default today, UTC)")
	cmd.Flags().StringVar(&portfolio, "portfolio", "", "Run a single portfolio instead of all of them")
	return cmd
}

// runOnce runs one portfolio, or all of them when portfolioID is empty
func runOnce(ctx context.Context, runner *run.Runner, portfolioID string, asOf time.Time) ([]run.Outcome, error) {
	if portfolioID == "" {
		return runner.RunAll(ctx, asOf)
	}

	report, err := runner.RunPortfolio(ctx, portfolioID, asOf)
	outcome := run.Outcome{PortfolioID: portfolioID, Report: report, Err: err}
	if err != nil {
		outcome.Error = err.Error()
		outcome.Kind = string(domain.KindOf(err))
	}
	return []run.Outcome{outcome}, nil
}

func parseAsOf(raw string, now func() time.Time) (time.Time, error) {
	if raw == "" {
		y, m, d := now().UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	asOf, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of %q: want YYYY-MM-DD", raw)
	}
	return asOf, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
