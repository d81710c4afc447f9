package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	service "github.com/okian/projector/internal/app"
)

func projectCmd(c *cli) *cobra.Command {
	var (
		dates dateRange
		asOf  string
		out   string
	)
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Project every scheduled player-game in a date range and persist the results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			from, to, err := dates.parse()
			if err != nil {
				return err
			}
			req := service.Request{From: from, To: to}
			if asOf != "" {
				if req.AsOf, err = parseDate("as-of", asOf); err != nil {
					return err
				}
			}

			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			var opts []service.Option
			if c.cfg.FlagLogPath != "" {
				f, err := os.OpenFile(c.cfg.FlagLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
				if err != nil {
					return fmt.Errorf("open flag log: %w", err)
				}
				defer f.Close()
				opts = append(opts, service.WithFlagLog(f))
			}

			sum, runErr := c.newService(store, opts...).Run(ctx, req)
			w, closeFn, err := output(cmd, out)
			if err != nil {
				return err
			}
			if err := writeJSON(w, sum); err != nil {
				_ = closeFn()
				return err
			}
			if err := closeFn(); err != nil {
				return err
			}
			return runErr
		},
	}
	dates.bind(cmd)
	cmd.Flags().StringVar(&asOf, "as-of", "", "snapshot date (YYYY-MM-DD); defaults to --from")
	cmd.Flags().StringVar(&out, "out", "", "write the run summary here instead of stdout")
	return cmd
}
