package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/projector/internal/validation/calibration"
	"github.com/okian/projector/internal/validation/xgeval"
)

func backtestCmd(c *cli) *cobra.Command {
	var (
		dates dateRange
		out   string
	)
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay completed games and measure projection accuracy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			from, to, err := dates.parse()
			if err != nil {
				return err
			}
			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := c.newBacktest(store, c.newService(store)).Run(ctx, from, to)
			if err != nil {
				return err
			}
			return writeReport(cmd, out, res.Report(time.Now()))
		},
	}
	dates.bind(cmd)
	cmd.Flags().StringVar(&out, "out", "", "write the report here instead of stdout")
	return cmd
}

func validateXGCmd(c *cli) *cobra.Command {
	var (
		dates dateRange
		slice string
		out   string
	)
	cmd := &cobra.Command{
		Use:   "validate-xg",
		Short: "Score expected-goals values against shot outcomes and audit a held-out date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			from, to, err := dates.parse()
			if err != nil {
				return err
			}
			req := xgeval.Request{From: from, To: to}
			if slice != "" {
				if req.SliceDate, err = parseDate("slice-date", slice); err != nil {
					return err
				}
			}
			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			v := xgeval.New(store, c.newBacktest(store, c.newService(store)),
				xgeval.WithThresholds(c.thresholds()),
				xgeval.WithLogger(c.log.Named("xgeval")),
			)
			res, err := v.Run(ctx, req)
			if err != nil {
				return err
			}
			return writeReport(cmd, out, res.Report(time.Now()))
		},
	}
	dates.bind(cmd)
	cmd.Flags().StringVar(&slice, "slice-date", "", "held-out date for the leakage audit; defaults to --to")
	cmd.Flags().StringVar(&out, "out", "", "write the report here instead of stdout")
	return cmd
}

func calibrateCmd(c *cli) *cobra.Command {
	var (
		dates dateRange
		out   string
	)
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Audit projection calibration by position and expected-goals calibration by shot zone",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			from, to, err := dates.parse()
			if err != nil {
				return err
			}
			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			a := calibration.NewAuditor(c.newBacktest(store, c.newService(store)), store, c.log.Named("calibration"))
			res, err := a.Run(ctx, from, to)
			if err != nil {
				return err
			}
			return writeReport(cmd, out, res.Report(time.Now()))
		},
	}
	dates.bind(cmd)
	cmd.Flags().StringVar(&out, "out", "", "write the report here instead of stdout")
	return cmd
}
