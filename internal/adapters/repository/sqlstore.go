package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	_ "modernc.org/sqlite"

	"github.com/okian/projector/internal/domain/model"
	"github.com/okian/projector/pkg/logger"
	"github.com/okian/projector/pkg/metrics"
)

// Driver names accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	defaultQueryTimeout    = 5 * time.Second
	defaultMaxOpenConns    = 8
	defaultMaxIdleConns    = 4
	defaultConnMaxLifetime = 5 * time.Minute
	pingTimeout            = 10 * time.Second
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// SQLStore is the relational Store over PostgreSQL or SQLite. Queries are
// written with ? placeholders and rebound for the active driver.
type SQLStore struct {
	db              *sqlx.DB
	logger          logger.Logger
	queryTimeout    time.Duration
	maxOpen         int
	maxIdle         int
	connMaxLifetime time.Duration
}

var _ Store = (*SQLStore)(nil)

// Open connects to dsn, applies pool settings and pings the database.
// SQLite allows a single writer, so its pool is capped at one connection.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*SQLStore, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	s := NewSQLStore(db, opts...)
	if driver == DriverSQLite {
		s.maxOpen, s.maxIdle = 1, 1
	}
	db.SetMaxOpenConns(s.maxOpen)
	db.SetMaxIdleConns(s.maxIdle)
	db.SetConnMaxLifetime(s.connMaxLifetime)

	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, classify("ping", err)
	}
	s.logger.Info(ctx, "store connected",
		logger.String("driver", driver),
		logger.Int("max_open_conns", s.maxOpen))
	return s, nil
}

// NewSQLStore wraps an open handle without touching its pool settings.
func NewSQLStore(db *sqlx.DB, opts ...Option) *SQLStore {
	s := &SQLStore{
		db:              db,
		logger:          logger.Get().Named("repository"),
		queryTimeout:    defaultQueryTimeout,
		maxOpen:         defaultMaxOpenConns,
		maxIdle:         defaultMaxIdleConns,
		connMaxLifetime: defaultConnMaxLifetime,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates every table and index that does not exist yet.
func (s *SQLStore) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout*time.Duration(len(allTables)+len(indexes)))
	defer cancel()

	for _, t := range allTables {
		if _, err := s.db.ExecContext(ctx, t.ddl); err != nil {
			return classify("migrate "+t.name, err)
		}
	}
	for _, ix := range indexes {
		if _, err := s.db.ExecContext(ctx, ix); err != nil {
			return classify("migrate index", err)
		}
	}
	return nil
}

// converter is a scanned row that maps onto a domain value.
type converter[M any] interface {
	model() (M, error)
}

// selectRows runs query with a per-call timeout and converts every row.
func selectRows[M any, R converter[M]](ctx context.Context, s *SQLStore, op, query string, args ...any) ([]M, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var rows []R
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, classify(op, err)
	}
	out := make([]M, 0, len(rows))
	for _, r := range rows {
		m, err := r.model()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *SQLStore) RateProfiles(ctx context.Context, asOf time.Time) ([]model.RateProfile, error) {
	return selectRows[model.RateProfile, profileRow](ctx, s, "rate profiles", rateProfiles.asOfQuery(), fmtDate(asOf))
}

func (s *SQLStore) LeagueBaselines(ctx context.Context, asOf time.Time) ([]model.LeagueBaseline, error) {
	return selectRows[model.LeagueBaseline, baselineRow](ctx, s, "league baselines", leagueBaselines.asOfQuery(), fmtDate(asOf))
}

func (s *SQLStore) ShotAggregates(ctx context.Context, asOf time.Time) ([]model.ShotAggregate, error) {
	return selectRows[model.ShotAggregate, shotAggRow](ctx, s, "shot aggregates", shotAggregates.asOfQuery(), fmtDate(asOf))
}

func (s *SQLStore) TeamAggregates(ctx context.Context, asOf time.Time) ([]model.TeamAggregate, error) {
	return selectRows[model.TeamAggregate, teamRow](ctx, s, "team aggregates", teamAggregates.asOfQuery(), fmtDate(asOf))
}

func (s *SQLStore) GoalieAggregates(ctx context.Context, asOf time.Time) ([]model.GoalieAggregate, error) {
	return selectRows[model.GoalieAggregate, goalieRow](ctx, s, "goalie aggregates", goalieAggregates.asOfQuery(), fmtDate(asOf))
}

func (s *SQLStore) LeagueContexts(ctx context.Context, asOf time.Time) ([]model.LeagueContext, error) {
	return selectRows[model.LeagueContext, leagueRow](ctx, s, "league contexts", leagueContexts.asOfQuery(), fmtDate(asOf))
}

// Games returns games dated within [from, to] ordered by date then id.
func (s *SQLStore) Games(ctx context.Context, from, to time.Time) ([]model.GameContext, error) {
	return selectRows[model.GameContext, gameRow](ctx, s, "games",
		games.rangeQuery("game_date", "game_date", "game_id"), fmtDate(from), fmtDate(to))
}

// Projections returns stored projections within [from, to] ordered by key.
func (s *SQLStore) Projections(ctx context.Context, from, to time.Time) ([]model.Projection, error) {
	return selectRows[model.Projection, projectionRow](ctx, s, "projections",
		projections.rangeQuery("projection_date", "projection_date", "game_id", "player_id"), fmtDate(from), fmtDate(to))
}

// Outcomes returns realized results within [from, to] ordered by date, game and player.
func (s *SQLStore) Outcomes(ctx context.Context, from, to time.Time) ([]model.Outcome, error) {
	return selectRows[model.Outcome, outcomeRow](ctx, s, "outcomes",
		outcomes.rangeQuery("game_date", "game_date", "game_id", "player_id"), fmtDate(from), fmtDate(to))
}

// Shots returns shot events within [from, to] ordered by id.
func (s *SQLStore) Shots(ctx context.Context, from, to time.Time) ([]model.Shot, error) {
	return selectRows[model.Shot, shotRow](ctx, s, "shots",
		shots.rangeQuery("game_date", "shot_id"), fmtDate(from), fmtDate(to))
}

// UpsertBatch writes batch in one transaction. A failure rolls back the whole
// batch; rewriting the same keys replaces the previous rows.
func (s *SQLStore) UpsertBatch(ctx context.Context, batch []model.Projection) error {
	if len(batch) == 0 {
		return nil
	}
	rows := make([]projectionRow, 0, len(batch))
	for _, p := range batch {
		r, err := toProjectionRow(p)
		if err != nil {
			return err
		}
		rows = append(rows, r)
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout*time.Duration(len(rows)/100+1))
	defer cancel()

	err := s.inTx(ctx, "upsert projections", func(tx *sqlx.Tx) error {
		return execAll(ctx, tx, projections, rows)
	})
	if err != nil {
		metrics.RecordUpsertError()
		return err
	}
	metrics.RecordUpsertBatch(len(rows), float64(time.Since(start).Milliseconds()))
	return nil
}

// Import loads d in a single transaction, replacing rows with the same key.
func (s *SQLStore) Import(ctx context.Context, d Dataset) error {
	n := len(d.Profiles) + len(d.Baselines) + len(d.Shots) + len(d.Teams) + len(d.Goalies) +
		len(d.Leagues) + len(d.Games) + len(d.Outcomes) + len(d.ShotLog)
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout*time.Duration(n/100+1))
	defer cancel()

	err := s.inTx(ctx, "import", func(tx *sqlx.Tx) error {
		steps := []func() error{
			func() error { return execAll(ctx, tx, rateProfiles, mapRows(d.Profiles, toProfileRow)) },
			func() error { return execAll(ctx, tx, leagueBaselines, mapRows(d.Baselines, toBaselineRow)) },
			func() error { return execAll(ctx, tx, shotAggregates, mapRows(d.Shots, toShotAggRow)) },
			func() error { return execAll(ctx, tx, teamAggregates, mapRows(d.Teams, toTeamRow)) },
			func() error { return execAll(ctx, tx, goalieAggregates, mapRows(d.Goalies, toGoalieRow)) },
			func() error { return execAll(ctx, tx, leagueContexts, mapRows(d.Leagues, toLeagueRow)) },
			func() error { return execAll(ctx, tx, games, mapRows(d.Games, toGameRow)) },
			func() error { return execAll(ctx, tx, outcomes, mapRows(d.Outcomes, toOutcomeRow)) },
			func() error { return execAll(ctx, tx, shots, mapRows(d.ShotLog, toShotRow)) },
		}
		for _, step := range steps {
			if err := step(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "dataset imported", logger.Int("rows", n))
	return nil
}

// Close releases the connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// DB exposes the handle for migrations and tests.
func (s *SQLStore) DB() *sqlx.DB { return s.db }

func (s *SQLStore) inTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(op+": begin", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return classify(op, err)
	}
	if err := tx.Commit(); err != nil {
		return classify(op+": commit", err)
	}
	return nil
}

// execAll upserts rows through one prepared named statement.
func execAll[R any](ctx context.Context, tx *sqlx.Tx, t table, rows []R) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.PrepareNamedContext(ctx, t.upsertQuery())
	if err != nil {
		return fmt.Errorf("prepare %s: %w", t.name, err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r); err != nil {
			return fmt.Errorf("write %s: %w", t.name, err)
		}
	}
	return nil
}

func mapRows[T, R any](in []T, f func(T) R) []R {
	out := make([]R, len(in))
	for i, v := range in {
		out[i] = f(v)
	}
	return out
}
