package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/projector/internal/adapters/repository"
	service "github.com/okian/projector/internal/app"
	"github.com/okian/projector/internal/config"
	"github.com/okian/projector/internal/domain/gate"
	"github.com/okian/projector/internal/domain/goalie"
	"github.com/okian/projector/internal/domain/projection"
	"github.com/okian/projector/internal/domain/scoring"
	"github.com/okian/projector/internal/validation"
	"github.com/okian/projector/internal/validation/backtest"
	"github.com/okian/projector/internal/validation/measure"
	"github.com/okian/projector/pkg/logger"
	"github.com/okian/projector/pkg/metrics"
)

// cli carries what every subcommand shares once the configuration is loaded.
type cli struct {
	cfg     *config.Config
	scoring scoring.Config
	log     logger.Logger
}

// Execute runs the command line with args.
func Execute(ctx context.Context, args []string) error {
	root := newRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "projector",
		Short:         "Fantasy hockey projection engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd.Context(), cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return metrics.WriteTextfile(c.cfg.MetricsTextfile)
		},
	}
	root.AddCommand(
		migrateCmd(c),
		seedCmd(c),
		projectCmd(c),
		backtestCmd(c),
		validateXGCmd(c),
		calibrateCmd(c),
		demoCmd(c),
	)
	return root
}

// load layers the configuration and applies the logging settings.
func (c *cli) load(ctx context.Context, logOut io.Writer) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithOutput(logOut)); err != nil {
		return err
	}
	c.log = logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		c.log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	sc, unknown := scoring.Merge(cfg.ScoringWeights)
	if len(unknown) > 0 {
		c.log.Warn(ctx, "ignoring unknown scoring weights", logger.Any("stats", unknown))
	}
	c.cfg, c.scoring = cfg, sc
	return nil
}

func (c *cli) openStore(ctx context.Context) (*repository.SQLStore, error) {
	return repository.Open(ctx, c.cfg.DBDriver, c.cfg.DBDSN,
		repository.WithPool(c.cfg.DBMaxOpenConns, c.cfg.DBMaxIdleConns, time.Duration(c.cfg.DBConnMaxLifetimeSec)*time.Second),
		repository.WithQueryTimeout(time.Duration(c.cfg.DBQueryTimeoutMS)*time.Millisecond),
		repository.WithLogger(c.log.Named("store")),
	)
}

func (c *cli) newService(store service.Store, opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithLogger(c.log.Named("service")),
		service.WithWorkerCount(c.cfg.WorkerCount),
		service.WithQueueSize(c.cfg.QueueSize),
		service.WithDedupeSize(c.cfg.DedupeSize),
		service.WithWriteBatchSize(c.cfg.WriteBatchSize),
		service.WithWriteConcurrency(c.cfg.WriteConcurrency),
		service.WithComposer(projection.New(
			projection.WithScoring(c.scoring),
			projection.WithStandardizedVOPA(c.cfg.StandardizeVOPA),
		)),
		service.WithGoalieModel(goalie.New(
			goalie.WithScoring(c.scoring),
			goalie.WithStandardizedVOPA(c.cfg.StandardizeVOPA),
		)),
		service.WithGate(gate.New(
			gate.WithThresholds(gate.Thresholds{
				WarnPoints:   c.cfg.GateWarnPoints,
				RejectPoints: c.cfg.GateRejectPoints,
				ZScore:       c.cfg.GateZScore,
			}),
			gate.WithLogger(c.log.Named("gate")),
		)),
	}
	return service.New(store, append(base, opts...)...)
}

func (c *cli) thresholds() validation.LeakageThresholds {
	return validation.LeakageThresholds{Leakage: c.cfg.LeakageThreshold, Caution: c.cfg.CautionThreshold}
}

func (c *cli) newBacktest(store backtest.Store, computer backtest.Computer) *backtest.Engine {
	return backtest.New(store, computer,
		backtest.WithScoring(c.scoring),
		backtest.WithBootstrap(measure.BootstrapConfig{
			Samples:       c.cfg.BootstrapSamples,
			MinSuccessful: c.cfg.BootstrapMinSuccessful,
			Seed:          c.cfg.Seed,
		}),
		backtest.WithThresholds(c.thresholds()),
		backtest.WithLogger(c.log.Named("backtest")),
	)
}

// dateRange holds the --from/--to flags of a command.
type dateRange struct {
	from, to string
}

func (r *dateRange) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.from, "from", "", "first game date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&r.to, "to", "", "last game date (YYYY-MM-DD); defaults to --from")
	_ = cmd.MarkFlagRequired("from")
}

func (r dateRange) parse() (time.Time, time.Time, error) {
	from, err := parseDate("from", r.from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if r.to == "" {
		return from, from, nil
	}
	to, err := parseDate("to", r.to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

func parseDate(flag, v string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", flag, err)
	}
	return t, nil
}

// output resolves --out: a file path, or stdout when empty.
func output(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", path, err)
	}
	return f, f.Close, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeReport(cmd *cobra.Command, path string, r validation.Report) error {
	w, closeFn, err := output(cmd, path)
	if err != nil {
		return err
	}
	if err := r.WriteJSON(w); err != nil {
		_ = closeFn()
		return err
	}
	return closeFn()
}
