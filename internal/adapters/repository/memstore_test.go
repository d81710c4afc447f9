package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/projector/internal/adapters/repository"
	"github.com/okian/projector/internal/domain/model"
	"github.com/okian/projector/internal/domain/snapshot"
	logging "github.com/okian/projector/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logging.Init(); err != nil {
		panic(err)
	}
}

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr[T any](v T) *T { return &v }

// fixture returns two versions of one profile, a second player, a schedule
// spanning three days, outcomes and shots.
func fixture() repository.Dataset {
	return repository.Dataset{
		Data: snapshot.Data{
			Profiles: []model.RateProfile{
				{PlayerID: "p1", Season: "2024", Team: "BOS", Position: model.Center, GamesPlayed: 10,
					Totals: model.StatLine{}.With(model.Goals, 4), AsOf: day("2024-01-05")},
				{PlayerID: "p1", Season: "2024", Team: "BOS", Position: model.Center, GamesPlayed: 12,
					Totals: model.StatLine{}.With(model.Goals, 6), AsOf: day("2024-01-10")},
				{PlayerID: "p2", Season: "2024", Team: "TOR", Position: model.Defenseman, GamesPlayed: 3,
					TOIPerGame: 22.5, DefensiveValue: 0.4, AsOf: day("2024-01-07")},
			},
			Baselines: []model.LeagueBaseline{
				{Position: model.Center, Season: "2024", ReplacementFPtsPer60: 1.1, StdDevFPtsPer60: 0.3,
					AvgFPtsPer60: 1.8, AvgPerGame: model.StatLine{}.With(model.Assists, 0.5), AsOf: day("2024-01-01")},
			},
			Shots: []model.ShotAggregate{
				{PlayerID: "p1", CumulativeXG: 3.2, CumulativeGoals: 4, ShotCount: 30, XGSource: model.XGTalent, AsOf: day("2024-01-05")},
			},
			Teams: []model.TeamAggregate{
				{Team: "BOS", XGAPer60: 2.4, ShotsForPer60: 31, WinRate: 0.6, WindowGames: 10, AsOf: day("2024-01-05")},
			},
			Goalies: []model.GoalieAggregate{
				{GoalieID: "g1", Team: "TOR", GamesPlayed: 8, ShotsFaced: 240, Saves: 220, RegressedGSAx: 1.5, AsOf: day("2024-01-05")},
			},
			Leagues: []model.LeagueContext{
				{Season: "2024", AvgXGAPer60: 2.6, AvgSavePct: 0.905, AvgShotsPer60: 30, AsOf: day("2024-01-01")},
			},
			Games: []model.GameContext{
				{GameID: "g-2", Season: "2024", Date: day("2024-01-11"), HomeTeam: "TOR", AwayTeam: "BOS",
					MarketWinProbHome: ptr(0.55), MarketWinProbAway: ptr(0.45), HomeGoalieID: "g1"},
				{GameID: "g-1", Season: "2024", Date: day("2024-01-10"), HomeTeam: "BOS", AwayTeam: "TOR", Completed: true},
				{GameID: "g-3", Season: "2024", Date: day("2024-01-12"), HomeTeam: "BOS", AwayTeam: "MTL"},
			},
		},
		Outcomes: []model.Outcome{
			{PlayerID: "p1", GameID: "g-1", Date: day("2024-01-10"), Position: model.Center,
				Stats: model.StatLine{}.With(model.Goals, 1).With(model.ShotsOnGoal, 4)},
			{PlayerID: "g1", GameID: "g-1", Date: day("2024-01-10"), Position: model.Goalie,
				Stats: model.StatLine{}.With(model.Saves, 28), GoalieWin: ptr(true)},
		},
		ShotLog: []model.Shot{
			{ShotID: "s2", GameID: "g-1", Date: day("2024-01-10"), ShooterID: "p1", Distance: 12, Angle: 10, IsGoal: true, XGBase: ptr(0.3)},
			{ShotID: "s1", GameID: "g-1", Date: day("2024-01-10"), ShooterID: "p1", Distance: 50, Angle: 60, Blocked: true},
		},
	}
}

func projection(player, game string, date time.Time, total float64) model.Projection {
	return model.Projection{
		Key:         model.Key{PlayerID: player, GameID: game, Date: date},
		Position:    model.Center,
		Team:        "BOS",
		Opponent:    "TOR",
		Home:        true,
		Stats:       model.StatLine{}.With(model.Goals, 0.4).With(model.ShotsOnGoal, 3),
		TotalPoints: total,
		VOPA:        0.8,
		Confidence:  0.4,
		Breakdown:   model.Breakdown{ShrinkageWeight: 0.3, DDR: 1.1, Defaulted: []string{"goalie"}},
		Status:      model.StatusValid,
	}
}

func TestMemStore(t *testing.T) {
	Convey("Given a store loaded with a versioned dataset", t, func() {
		ctx := context.Background()
		s := repository.NewMemStore()
		So(s.Import(ctx, fixture()), ShouldBeNil)

		Convey("Aggregate reads return the newest version on or before the as-of date", func() {
			early, err := s.RateProfiles(ctx, day("2024-01-09"))
			So(err, ShouldBeNil)
			So(early, ShouldHaveLength, 2)
			So(early[0].PlayerID, ShouldEqual, "p1")
			So(early[0].GamesPlayed, ShouldEqual, 10)

			late, err := s.RateProfiles(ctx, day("2024-01-10"))
			So(err, ShouldBeNil)
			So(late[0].GamesPlayed, ShouldEqual, 12)
			So(late[0].Totals.Get(model.Goals), ShouldEqual, 6)
		})

		Convey("Rows stamped after the as-of date are invisible", func() {
			ps, err := s.RateProfiles(ctx, day("2024-01-06"))
			So(err, ShouldBeNil)
			So(ps, ShouldHaveLength, 1)
			So(ps[0].PlayerID, ShouldEqual, "p1")

			none, err := s.GoalieAggregates(ctx, day("2024-01-04"))
			So(err, ShouldBeNil)
			So(none, ShouldBeEmpty)
		})

		Convey("Re-importing the same key and date replaces the version", func() {
			d := repository.Dataset{}
			d.Teams = []model.TeamAggregate{{Team: "BOS", XGAPer60: 3.0, AsOf: day("2024-01-05")}}
			So(s.Import(ctx, d), ShouldBeNil)

			teams, err := s.TeamAggregates(ctx, day("2024-02-01"))
			So(err, ShouldBeNil)
			So(teams, ShouldHaveLength, 1)
			So(teams[0].XGAPer60, ShouldEqual, 3.0)
		})

		Convey("Games are filtered by date and ordered", func() {
			gs, err := s.Games(ctx, day("2024-01-10"), day("2024-01-11"))
			So(err, ShouldBeNil)
			So(gs, ShouldHaveLength, 2)
			So(gs[0].GameID, ShouldEqual, "g-1")
			So(gs[1].GameID, ShouldEqual, "g-2")
			So(*gs[1].MarketWinProbHome, ShouldEqual, 0.55)
		})

		Convey("Outcomes and shots are range reads", func() {
			os, err := s.Outcomes(ctx, day("2024-01-10"), day("2024-01-10"))
			So(err, ShouldBeNil)
			So(os, ShouldHaveLength, 2)
			So(os[0].PlayerID, ShouldEqual, "g1")
			So(*os[0].GoalieWin, ShouldBeTrue)

			shots, err := s.Shots(ctx, day("2024-01-01"), day("2024-01-31"))
			So(err, ShouldBeNil)
			So(shots, ShouldHaveLength, 2)
			So(shots[0].ShotID, ShouldEqual, "s1")

			empty, err := s.Shots(ctx, day("2024-02-01"), day("2024-02-28"))
			So(err, ShouldBeNil)
			So(empty, ShouldBeEmpty)
		})

		Convey("Upserting the same key twice keeps one row with the latest values", func() {
			d := day("2024-01-11")
			So(s.UpsertBatch(ctx, []model.Projection{projection("p1", "g-2", d, 2.0)}), ShouldBeNil)
			So(s.UpsertBatch(ctx, []model.Projection{projection("p1", "g-2", d.Add(5*time.Hour), 2.5)}), ShouldBeNil)
			So(s.Len(), ShouldEqual, 1)

			ps, err := s.Projections(ctx, d, d)
			So(err, ShouldBeNil)
			So(ps, ShouldHaveLength, 1)
			So(ps[0].TotalPoints, ShouldEqual, 2.5)
			So(ps[0].Date.Equal(d), ShouldBeTrue)
		})

		Convey("Projections come back ordered by key", func() {
			batch := []model.Projection{
				projection("p2", "g-2", day("2024-01-11"), 1),
				projection("p1", "g-2", day("2024-01-11"), 1),
				projection("p9", "g-1", day("2024-01-10"), 1),
			}
			So(s.UpsertBatch(ctx, batch), ShouldBeNil)
			ps, err := s.Projections(ctx, day("2024-01-01"), day("2024-01-31"))
			So(err, ShouldBeNil)
			So(ps, ShouldHaveLength, 3)
			So(ps[0].PlayerID, ShouldEqual, "p9")
			So(ps[1].PlayerID, ShouldEqual, "p1")
			So(ps[2].PlayerID, ShouldEqual, "p2")
		})

		So(s.Close(), ShouldBeNil)
	})
}

func TestMemStoreFeedsSnapshotLoad(t *testing.T) {
	Convey("Given a store, snapshot.Load builds a point-in-time view", t, func() {
		ctx := context.Background()
		s := repository.NewMemStore()
		So(s.Import(ctx, fixture()), ShouldBeNil)

		snap, err := snapshot.Load(ctx, s, day("2024-01-09"), day("2024-01-11"), day("2024-01-11"))
		So(err, ShouldBeNil)

		p, ok := snap.Profile("p1")
		So(ok, ShouldBeTrue)
		So(p.GamesPlayed, ShouldEqual, 10)
		So(snap.Window(), ShouldHaveLength, 1)
	})
}
