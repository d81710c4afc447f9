package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/projector/internal/adapters/repository"
	"github.com/okian/projector/internal/domain/model"
)

func newMockStore(t *testing.T) (*repository.SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return repository.NewSQLStore(sqlx.NewDb(db, "postgres"), repository.WithQueryTimeout(time.Second)), mock
}

var upsertProjection = regexp.QuoteMeta("INSERT INTO projections (player_id, game_id, projection_date")

func TestSQLStoreUpsertBatchCommits(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(upsertProjection)
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.UpsertBatch(context.Background(), []model.Projection{
		projection("p1", "g-2", day("2024-01-11"), 2),
		projection("p2", "g-2", day("2024-01-11"), 3),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreUpsertBatchRollsBackOnFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(upsertProjection)
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnError(errors.New("check constraint violated"))
	mock.ExpectRollback()

	err := store.UpsertBatch(context.Background(), []model.Projection{
		projection("p1", "g-2", day("2024-01-11"), 2),
		projection("p2", "g-2", day("2024-01-11"), 3),
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrTransient)
	assert.Contains(t, err.Error(), "upsert projections")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreUpsertBatchMarksTransientFailures(t *testing.T) {
	t.Run("serialization failure", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		prep := mock.ExpectPrepare(upsertProjection)
		prep.ExpectExec().WillReturnError(&pq.Error{Code: "40001"})
		mock.ExpectRollback()

		err := store.UpsertBatch(context.Background(), []model.Projection{projection("p1", "g-2", day("2024-01-11"), 2)})
		assert.ErrorIs(t, err, repository.ErrTransient)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("connection lost on begin", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin().WillReturnError(&pq.Error{Code: "08006"})

		err := store.UpsertBatch(context.Background(), []model.Projection{projection("p1", "g-2", day("2024-01-11"), 2)})
		assert.ErrorIs(t, err, repository.ErrTransient)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSQLStoreUpsertEmptyBatch(t *testing.T) {
	store, mock := newMockStore(t)
	require.NoError(t, store.UpsertBatch(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreAsOfReadRebindsPlaceholder(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"team", "as_of_date", "xga_per60", "shots_for_per60", "win_rate", "window_games"}).
		AddRow("BOS", "2024-01-05", 2.4, 31.0, 0.6, 10).
		AddRow("TOR", "2024-01-08", 2.9, 28.0, 0.45, 10)
	mock.ExpectQuery(regexp.QuoteMeta("FROM team_aggregates WHERE as_of_date <= $1 GROUP BY team")).
		WithArgs("2024-01-09").
		WillReturnRows(rows)

	teams, err := store.TeamAggregates(context.Background(), day("2024-01-09").Add(20*time.Hour))
	require.NoError(t, err)
	require.Len(t, teams, 2)
	assert.Equal(t, "BOS", teams[0].Team)
	assert.Equal(t, 2.4, teams[0].XGAPer60)
	assert.True(t, teams[1].AsOf.Equal(day("2024-01-08")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreReadErrors(t *testing.T) {
	t.Run("timeout is transient", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("FROM games").WillReturnError(context.DeadlineExceeded)

		_, err := store.Games(context.Background(), day("2024-01-01"), day("2024-01-31"))
		assert.ErrorIs(t, err, repository.ErrTransient)
	})

	t.Run("bad stored position is invalid input", func(t *testing.T) {
		store, mock := newMockStore(t)
		rows := sqlmock.NewRows([]string{"player_id", "game_id", "game_date", "position", "goalie_win"}).
			AddRow("p1", "g-1", "2024-01-10", "XX", nil)
		mock.ExpectQuery("FROM outcomes").WillReturnRows(rows)

		_, err := store.Outcomes(context.Background(), day("2024-01-01"), day("2024-01-31"))
		assert.ErrorIs(t, err, model.ErrInvalidInput)
	})
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := repository.Open(context.Background(), "mysql", "dsn")
	assert.ErrorIs(t, err, repository.ErrUnsupportedDriver)
}

func openSQLite(t *testing.T) *repository.SQLStore {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "projector.db") + "?_pragma=busy_timeout(5000)"
	store, err := repository.Open(context.Background(), repository.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openSQLite(t)
	require.NoError(t, store.Import(ctx, fixture()))

	t.Run("as-of reads pick the newest visible version", func(t *testing.T) {
		ps, err := store.RateProfiles(ctx, day("2024-01-09"))
		require.NoError(t, err)
		require.Len(t, ps, 2)
		assert.Equal(t, "p1", ps[0].PlayerID)
		assert.Equal(t, 10, ps[0].GamesPlayed)
		assert.Equal(t, 4.0, ps[0].Totals.Get(model.Goals))
		assert.Equal(t, model.Defenseman, ps[1].Position)
		assert.Equal(t, 22.5, ps[1].TOIPerGame)

		ps, err = store.RateProfiles(ctx, day("2024-01-10"))
		require.NoError(t, err)
		assert.Equal(t, 12, ps[0].GamesPlayed)

		bs, err := store.LeagueBaselines(ctx, day("2024-01-10"))
		require.NoError(t, err)
		require.Len(t, bs, 1)
		assert.Equal(t, 0.5, bs[0].AvgPerGame.Get(model.Assists))

		sa, err := store.ShotAggregates(ctx, day("2024-01-10"))
		require.NoError(t, err)
		require.Len(t, sa, 1)
		assert.Equal(t, model.XGTalent, sa[0].XGSource)

		gs, err := store.GoalieAggregates(ctx, day("2024-01-04"))
		require.NoError(t, err)
		assert.Empty(t, gs)

		lc, err := store.LeagueContexts(ctx, day("2024-01-10"))
		require.NoError(t, err)
		require.Len(t, lc, 1)
		assert.Equal(t, 0.905, lc[0].AvgSavePct)
	})

	t.Run("games keep optional fields", func(t *testing.T) {
		games, err := store.Games(ctx, day("2024-01-10"), day("2024-01-11"))
		require.NoError(t, err)
		require.Len(t, games, 2)
		assert.Equal(t, "g-1", games[0].GameID)
		assert.True(t, games[0].Completed)
		assert.Nil(t, games[0].MarketWinProbHome)
		assert.Empty(t, games[0].HomeGoalieID)
		require.NotNil(t, games[1].MarketWinProbHome)
		assert.Equal(t, 0.55, *games[1].MarketWinProbHome)
		assert.Equal(t, "g1", games[1].HomeGoalieID)
	})

	t.Run("outcome and shot logs", func(t *testing.T) {
		outs, err := store.Outcomes(ctx, day("2024-01-10"), day("2024-01-10"))
		require.NoError(t, err)
		require.Len(t, outs, 2)
		assert.Equal(t, "g1", outs[0].PlayerID)
		require.NotNil(t, outs[0].GoalieWin)
		assert.True(t, *outs[0].GoalieWin)
		assert.Nil(t, outs[1].GoalieWin)
		assert.Equal(t, 4.0, outs[1].Stats.Get(model.ShotsOnGoal))

		shots, err := store.Shots(ctx, day("2024-01-10"), day("2024-01-10"))
		require.NoError(t, err)
		require.Len(t, shots, 2)
		assert.Equal(t, "s1", shots[0].ShotID)
		assert.True(t, shots[0].Blocked)
		assert.Nil(t, shots[0].XGBase)
		require.NotNil(t, shots[1].XGBase)
		assert.Equal(t, 0.3, *shots[1].XGBase)
	})

	t.Run("upserts are idempotent", func(t *testing.T) {
		d := day("2024-01-11")
		batch := []model.Projection{projection("p1", "g-2", d, 2), projection("p2", "g-2", d, 3)}
		require.NoError(t, store.UpsertBatch(ctx, batch))
		require.NoError(t, store.UpsertBatch(ctx, batch))

		got, err := store.Projections(ctx, d, d)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, batch[0].Key, got[0].Key)
		assert.Equal(t, batch[0].Stats, got[0].Stats)
		assert.Equal(t, batch[0].Breakdown, got[0].Breakdown)
		assert.Equal(t, model.StatusValid, got[0].Status)
		assert.True(t, got[0].Home)

		batch[1].TotalPoints = 4
		batch[1].Status = model.StatusReview
		require.NoError(t, store.UpsertBatch(ctx, batch[1:]))
		got, err = store.Projections(ctx, d, d)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, 4.0, got[1].TotalPoints)
		assert.Equal(t, model.StatusReview, got[1].Status)
	})

	t.Run("migrate is repeatable", func(t *testing.T) {
		assert.NoError(t, store.Migrate(ctx))
	})
}
