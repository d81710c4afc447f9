package testkit_test

import (
	"testing"

	"github.com/okian/projector/internal/domain/model"
	"github.com/okian/projector/internal/testkit"
	. "github.com/smartystreets/goconvey/convey"
)

func TestGenerate(t *testing.T) {
	Convey("Given the default league", t, func() {
		cfg := testkit.DefaultConfig()
		l := testkit.Generate(cfg)

		Convey("the same seed yields the same league", func() {
			So(testkit.Generate(cfg), ShouldResemble, l)
			cfg.Seed++
			So(testkit.Generate(cfg).Dataset.Outcomes, ShouldNotResemble, l.Dataset.Outcomes)
		})

		Convey("the calendar splits into completed and upcoming days", func() {
			So(l.Completed, ShouldHaveLength, cfg.Days)
			So(l.Upcoming, ShouldHaveLength, cfg.UpcomingDays)
			So(l.First().Equal(cfg.Start), ShouldBeTrue)
			So(l.Last().Before(l.Upcoming[0]), ShouldBeTrue)
		})

		Convey("completed games name starters and upcoming games carry a market line", func() {
			for _, g := range l.Dataset.Games {
				if g.Completed {
					So(g.HomeGoalieID, ShouldNotBeEmpty)
					So(g.AwayGoalieID, ShouldNotBeEmpty)
					continue
				}
				So(g.HomeGoalieID, ShouldBeEmpty)
				So(g.MarketWinProbHome, ShouldNotBeNil)
				So(*g.MarketWinProbHome+*g.MarketWinProbAway, ShouldAlmostEqual, 1, 1e-9)
			}
		})

		Convey("outcomes and shots belong to completed games", func() {
			completed := map[string]bool{}
			for _, g := range l.Dataset.Games {
				if g.Completed {
					completed[g.GameID] = true
				}
			}
			for _, o := range l.Dataset.Outcomes {
				So(completed[o.GameID], ShouldBeTrue)
			}
			for _, s := range l.Dataset.ShotLog {
				So(completed[s.GameID], ShouldBeTrue)
			}
		})

		Convey("replacement never exceeds the league average", func() {
			So(l.Dataset.Baselines, ShouldNotBeEmpty)
			for _, b := range l.Dataset.Baselines {
				So(b.ReplacementFPtsPer60, ShouldBeLessThanOrEqualTo, b.AvgFPtsPer60)
			}
		})

		Convey("every position is rostered", func() {
			seen := map[model.Position]bool{}
			for _, p := range l.Dataset.Profiles {
				seen[p.Position] = true
			}
			for _, pos := range []model.Position{model.Center, model.LeftWing, model.RightWing, model.Defenseman} {
				So(seen[pos], ShouldBeTrue)
			}
		})
	})
}
