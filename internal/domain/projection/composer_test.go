package projection_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/projector/internal/domain/matchup"
	"github.com/okian/projector/internal/domain/model"
	"github.com/okian/projector/internal/domain/projection"
	"github.com/okian/projector/internal/domain/scoring"
	"github.com/okian/projector/internal/domain/snapshot"
	"github.com/okian/projector/internal/domain/talent"
	. "github.com/smartystreets/goconvey/convey"
)

var gameDay = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

func fixture() snapshot.Data {
	return snapshot.Data{
		Profiles: []model.RateProfile{
			{
				PlayerID: "p1", Season: "2023", Team: "BOS", Position: model.Center, GamesPlayed: 20, TOIPerGame: 18,
				Totals: model.StatLine{}.With(model.Goals, 10).With(model.Assists, 10).With(model.ShotsOnGoal, 60),
			},
			{PlayerID: "rookie", Season: "2023", Team: "TOR", Position: model.Defenseman},
			{PlayerID: "mtl", Season: "2023", Team: "MTL", Position: model.Center, GamesPlayed: 5},
			{PlayerID: "wing", Season: "2023", Team: "BOS", Position: model.RightWing, GamesPlayed: 40},
		},
		Baselines: []model.LeagueBaseline{
			{Position: model.Center, Season: "2023", ReplacementFPtsPer60: 4, StdDevFPtsPer60: 2,
				AvgPerGame: model.StatLine{}.With(model.Goals, 0.3).With(model.Assists, 0.4).With(model.ShotsOnGoal, 2.5)},
			{Position: model.Defenseman, Season: "2023", ReplacementFPtsPer60: 3,
				AvgPerGame: model.StatLine{}.With(model.Goals, 0.1).With(model.Blocks, 1.5).With(model.ShotsOnGoal, 1.8)},
		},
		Leagues: []model.LeagueContext{{Season: "2023", AvgXGAPer60: 2.5, AvgSavePct: 0.905}},
		Games: []model.GameContext{
			{GameID: "g1", Season: "2023", Date: gameDay, HomeTeam: "BOS", AwayTeam: "TOR"},
		},
	}
}

func build(d snapshot.Data) *snapshot.Snapshot {
	return snapshot.New(gameDay, gameDay, gameDay, d)
}

func TestSkaterBase(t *testing.T) {
	Convey("Given a home center with 20 games and no optional aggregates", t, func() {
		snap := build(fixture())
		c := projection.New()

		Convey("When composing", func() {
			p, err := c.Skater(snap, model.Request{PlayerID: "p1", GameID: "g1"})
			So(err, ShouldBeNil)

			Convey("Then base goals of 0.410 are only scaled by the home factor", func() {
				So(p.Breakdown.ShrinkageWeight, ShouldAlmostEqual, 0.55, 1e-12)
				So(p.Breakdown.TalentMultiplier, ShouldEqual, 1.0)
				So(p.Breakdown.DDR, ShouldEqual, 1.0)
				So(p.Breakdown.HomeAway, ShouldEqual, 1.05)
				So(p.Stats.Get(model.Goals), ShouldAlmostEqual, 0.410*1.05, 1e-12)
			})

			Convey("Then neutral components are listed", func() {
				So(p.Breakdown.Defaulted, ShouldContain, "finishing_talent")
				So(p.Breakdown.Defaulted, ShouldContain, "team_defense")
				So(p.Breakdown.Defaulted, ShouldContain, "opposing_goalie")
				So(p.Breakdown.Defaulted, ShouldNotContain, "toi")
			})

			Convey("Then the key, teams and scores are filled in", func() {
				So(p.Key.PlayerID, ShouldEqual, "p1")
				So(p.Key.GameID, ShouldEqual, "g1")
				So(p.Key.Date.Equal(gameDay), ShouldBeTrue)
				So(p.Opponent, ShouldEqual, "TOR")
				So(p.Home, ShouldBeTrue)
				So(p.Status, ShouldEqual, model.StatusValid)
				So(p.TotalPoints, ShouldAlmostEqual, scoring.Default().Points(p.Stats), 1e-12)
				So(p.Confidence, ShouldAlmostEqual, 20.0/30.0, 1e-12)
				So(p.Stats.Get(model.Wins), ShouldEqual, 0)
			})
		})
	})
}

func TestSkaterFullPipeline(t *testing.T) {
	Convey("Given talent, team defense and a named opposing starter", t, func() {
		d := fixture()
		d.Shots = []model.ShotAggregate{{PlayerID: "p1", CumulativeGoals: 8, CumulativeXG: 10, ShotCount: 25}}
		d.Teams = []model.TeamAggregate{{Team: "TOR", XGAPer60: 3.0}}
		d.Goalies = []model.GoalieAggregate{{GoalieID: "tg", Team: "TOR", GamesPlayed: 30, ShotsFaced: 900, Saves: 795}}
		d.Games[0].AwayGoalieID = "tg"
		snap := build(d)

		p, err := projection.New().Skater(snap, model.Request{PlayerID: "p1", GameID: "g1"})
		So(err, ShouldBeNil)

		sv := talent.SavePct(795, 900, 0.905)
		ddr := matchup.DDR(1.2, 0.905/sv)

		Convey("Then talent applies to goals only and DDR to every stat", func() {
			So(p.Breakdown.TalentMultiplier, ShouldAlmostEqual, 0.9, 1e-12)
			So(p.Breakdown.TeamMultiplier, ShouldAlmostEqual, 1.2, 1e-12)
			So(p.Breakdown.DDR, ShouldAlmostEqual, ddr, 1e-12)
			So(p.Stats.Get(model.Goals), ShouldAlmostEqual, 0.41*0.9*ddr*1.05, 1e-12)

			assists := 0.55*0.5 + 0.45*0.4
			So(p.Stats.Get(model.Assists), ShouldAlmostEqual, assists*ddr*1.05, 1e-12)
		})

		Convey("Then derived xG backs the talent multiplier out of projected goals", func() {
			So(p.Breakdown.ExpectedGoals, ShouldAlmostEqual, p.Stats.Get(model.Goals)/0.9, 1e-12)
			So(p.Breakdown.ExpectedGoals, ShouldAlmostEqual, 0.41*ddr*1.05, 1e-12)
		})

		Convey("Then nothing was defaulted", func() {
			So(p.Breakdown.Defaulted, ShouldBeEmpty)
		})
	})

	Convey("Given no named starter", t, func() {
		d := fixture()
		d.Goalies = []model.GoalieAggregate{
			{GoalieID: "backup", Team: "TOR", GamesPlayed: 8, ShotsFaced: 200, Saves: 170},
			{GoalieID: "starter", Team: "TOR", GamesPlayed: 30, ShotsFaced: 900, Saves: 830},
		}
		p, err := projection.New().Skater(build(d), model.Request{PlayerID: "p1", GameID: "g1"})
		So(err, ShouldBeNil)

		Convey("Then the busiest goaltender is used", func() {
			So(p.Breakdown.GoalieMultiplier, ShouldAlmostEqual, 0.905/talent.SavePct(830, 900, 0.905), 1e-12)
		})
	})
}

func TestSkaterSituational(t *testing.T) {
	Convey("Given a team on the second night of a back-to-back", t, func() {
		d := fixture()
		d.Games = append(d.Games, model.GameContext{GameID: "g0", Season: "2023", Date: gameDay.AddDate(0, 0, -1), HomeTeam: "MTL", AwayTeam: "BOS"})
		snap := build(d)

		p, err := projection.New().Skater(snap, model.Request{PlayerID: "p1", GameID: "g1"})
		So(err, ShouldBeNil)
		So(p.Breakdown.BackToBack, ShouldEqual, 0.95)
		So(p.Stats.Get(model.Goals), ShouldAlmostEqual, 0.41*0.95*1.05, 1e-12)

		Convey("Then the rested opponent is unaffected and away", func() {
			r, err := projection.New().Skater(snap, model.Request{PlayerID: "rookie", GameID: "g1"})
			So(err, ShouldBeNil)
			So(r.Breakdown.BackToBack, ShouldEqual, 1.0)
			So(r.Breakdown.HomeAway, ShouldEqual, 1.0)
		})
	})
}

func TestSkaterNoGames(t *testing.T) {
	Convey("Given a defenseman with no games played", t, func() {
		p, err := projection.New().Skater(build(fixture()), model.Request{PlayerID: "rookie", GameID: "g1"})
		So(err, ShouldBeNil)

		Convey("Then rates are 0.8 of league and confidence is floored", func() {
			So(p.Breakdown.ShrinkageWeight, ShouldEqual, 0.2)
			So(p.Stats.Get(model.Blocks), ShouldAlmostEqual, 0.8*1.5, 1e-12)
			So(p.Confidence, ShouldEqual, 0.1)
		})

		Convey("Then the position's default TOI is used", func() {
			So(p.Breakdown.ProjectedTOI, ShouldEqual, 21.0)
			So(p.Breakdown.Defaulted, ShouldContain, "toi")
		})
	})
}

func TestSkaterMissing(t *testing.T) {
	Convey("Given requests that cannot be satisfied", t, func() {
		snap := build(fixture())
		c := projection.New()

		cases := map[string]model.Request{
			"unknown player":        {PlayerID: "nobody", GameID: "g1"},
			"unknown game":          {PlayerID: "p1", GameID: "g9"},
			"player not in game":    {PlayerID: "mtl", GameID: "g1"},
			"no position baseline":  {PlayerID: "wing", GameID: "g1"},
			"season with no tables": {PlayerID: "p1", GameID: "g1", Season: "1999"},
		}
		for name, req := range cases {
			Convey("When the "+name, func() {
				_, err := c.Skater(snap, req)

				Convey("Then a skippable missing-entity error is returned", func() {
					So(errors.Is(err, model.ErrMissingEntity), ShouldBeTrue)
					So(model.KindOf(err), ShouldEqual, model.KindSkip)
				})
			})
		}
	})
}

func TestSkaterInvalidBaseline(t *testing.T) {
	Convey("Given a baseline whose replacement level exceeds the league average", t, func() {
		d := fixture()
		d.Baselines[0].ReplacementFPtsPer60 = 9
		d.Baselines[0].AvgFPtsPer60 = 2
		snap := build(d)

		Convey("Then the skater is skipped instead of projected", func() {
			p, err := projection.New().Skater(snap, model.Request{PlayerID: "p1", GameID: "g1"})
			So(errors.Is(err, model.ErrMissingEntity), ShouldBeTrue)
			So(model.KindOf(err), ShouldEqual, model.KindSkip)
			So(p.VOPA, ShouldEqual, 0)
			So(snap.Invalid(), ShouldHaveLength, 1)
		})
	})
}

func TestSkaterIdempotent(t *testing.T) {
	Convey("Given the same snapshot twice", t, func() {
		d := fixture()
		d.Shots = []model.ShotAggregate{{PlayerID: "p1", CumulativeGoals: 12, CumulativeXG: 9, ShotCount: 80}}
		d.Teams = []model.TeamAggregate{{Team: "TOR", XGAPer60: 2.8}}
		snap := build(d)
		c := projection.New(projection.WithStandardizedVOPA(true))

		a, errA := c.Skater(snap, model.Request{PlayerID: "p1", GameID: "g1"})
		b, errB := c.Skater(snap, model.Request{PlayerID: "p1", GameID: "g1"})

		So(errA, ShouldBeNil)
		So(errB, ShouldBeNil)
		So(a, ShouldResemble, b)
	})
}

func TestVOPA(t *testing.T) {
	b := model.LeagueBaseline{ReplacementFPtsPer60: 4, StdDevFPtsPer60: 2}

	Convey("Given a projected total over known ice time", t, func() {
		Convey("Then raw VOPA is the per-60 surplus scaled to hours", func() {
			// 3 points in 18 minutes is 10/60; surplus 6 over 0.3 hours.
			So(projection.VOPA(3, 18, b, 0, false), ShouldAlmostEqual, 1.8, 1e-12)
		})

		Convey("Then standardized VOPA divides the surplus by the std dev", func() {
			So(projection.VOPA(3, 18, b, 0, true), ShouldAlmostEqual, 0.9, 1e-12)
		})

		Convey("Then defensive value adds per hour", func() {
			So(projection.VOPA(3, 18, b, 1, false), ShouldAlmostEqual, 2.1, 1e-12)
		})

		Convey("Then zero ice time yields zero", func() {
			So(projection.VOPA(3, 0, b, 1, false), ShouldEqual, 0)
		})

		Convey("Then VOPA strictly increases with the projected rate", func() {
			for _, std := range []bool{false, true} {
				prev := projection.VOPA(0, 18, b, 0.5, std)
				for total := 0.25; total <= 6; total += 0.25 {
					v := projection.VOPA(total, 18, b, 0.5, std)
					So(v, ShouldBeGreaterThan, prev)
					prev = v
				}
			}
		})
	})
}

func TestConfidence(t *testing.T) {
	Convey("Given games played", t, func() {
		So(projection.Confidence(0), ShouldEqual, 0.1)
		So(projection.Confidence(2), ShouldEqual, 0.1)
		So(projection.Confidence(15), ShouldEqual, 0.5)
		So(projection.Confidence(30), ShouldEqual, 1.0)
		So(projection.Confidence(82), ShouldEqual, 1.0)
	})
}
