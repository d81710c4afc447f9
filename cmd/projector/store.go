package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/projector/internal/testkit"
	"github.com/okian/projector/pkg/logger"
)

func migrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the store schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			return store.Migrate(cmd.Context())
		},
	}
}

func seedCmd(c *cli) *cobra.Command {
	cfg := testkit.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a synthetic league into the store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(ctx); err != nil {
				return err
			}
			league, err := testkit.Seed(ctx, store, cfg)
			if err != nil {
				return err
			}
			c.log.Info(ctx, "synthetic league loaded",
				logger.String("first", league.First().Format(time.DateOnly)),
				logger.String("last", league.Last().Format(time.DateOnly)),
				logger.Int("completed_dates", len(league.Completed)),
				logger.Int("upcoming_dates", len(league.Upcoming)),
			)
			return writeJSON(cmd.OutOrStdout(), leagueSummary(league))
		},
	}
	bindLeague(cmd, &cfg)
	return cmd
}

func bindLeague(cmd *cobra.Command, cfg *testkit.Config) {
	cmd.Flags().Uint64Var(&cfg.Seed, "league-seed", cfg.Seed, "synthetic league seed")
	cmd.Flags().IntVar(&cfg.Days, "days", cfg.Days, "completed game days")
	cmd.Flags().IntVar(&cfg.UpcomingDays, "upcoming-days", cfg.UpcomingDays, "scheduled game days after the completed ones")
	cmd.Flags().IntVar(&cfg.Teams, "teams", cfg.Teams, "number of teams (even)")
}

type leagueInfo struct {
	First     string   `json:"first"`
	Last      string   `json:"last"`
	Completed []string `json:"completed"`
	Upcoming  []string `json:"upcoming"`
}

func leagueSummary(l testkit.League) leagueInfo {
	info := leagueInfo{First: l.First().Format(time.DateOnly), Last: l.Last().Format(time.DateOnly)}
	for _, d := range l.Completed {
		info.Completed = append(info.Completed, d.Format(time.DateOnly))
	}
	for _, d := range l.Upcoming {
		info.Upcoming = append(info.Upcoming, d.Format(time.DateOnly))
	}
	return info
}
