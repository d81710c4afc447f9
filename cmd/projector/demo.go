package main

import (
	"time"

	"github.com/spf13/cobra"

	service "github.com/okian/projector/internal/app"
	"github.com/okian/projector/internal/testkit"
	"github.com/okian/projector/internal/validation"
	"github.com/okian/projector/internal/validation/calibration"
	"github.com/okian/projector/internal/validation/xgeval"
)

// demoResult bundles one pass of every command over a synthetic league.
type demoResult struct {
	League      leagueInfo        `json:"league"`
	Projection  service.Summary   `json:"projection"`
	Backtest    validation.Report `json:"backtest"`
	XG          validation.Report `json:"xg_validation"`
	Calibration validation.Report `json:"calibration"`
}

func demoCmd(c *cli) *cobra.Command {
	cfg := testkit.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run projection and every validator over an in-memory synthetic league",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, league, err := testkit.NewStore(ctx, cfg)
			if err != nil {
				return err
			}
			svc := c.newService(store)
			now := time.Now()
			out := demoResult{League: leagueSummary(league)}

			if len(league.Upcoming) > 0 {
				day := league.Upcoming[0]
				if out.Projection, err = svc.Run(ctx, service.Request{From: day, To: day}); err != nil {
					return err
				}
			}

			bt := c.newBacktest(store, svc)
			res, err := bt.Run(ctx, league.First(), league.Last())
			if err != nil {
				return err
			}
			out.Backtest = res.Report(now)

			xg, err := xgeval.New(store, bt, xgeval.WithThresholds(c.thresholds())).
				Run(ctx, xgeval.Request{From: league.First(), To: league.Last()})
			if err != nil {
				return err
			}
			out.XG = xg.Report(now)

			cal, err := calibration.NewAuditor(bt, store, c.log.Named("calibration")).Run(ctx, league.First(), league.Last())
			if err != nil {
				return err
			}
			out.Calibration = cal.Report(now)

			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	bindLeague(cmd, &cfg)
	return cmd
}
