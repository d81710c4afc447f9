package scoring_test

import (
	"testing"

	"github.com/okian/projector/internal/domain/model"
	"github.com/okian/projector/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDefaults(t *testing.T) {
	Convey("Given the default scoring configuration", t, func() {
		c := scoring.Default()

		Convey("Then every category has a documented weight", func() {
			So(c.Weight(model.Goals), ShouldEqual, 3)
			So(c.Weight(model.Assists), ShouldEqual, 2)
			So(c.Weight(model.GoalsAgainst), ShouldEqual, -1)
			So(c.Weight(model.Shutouts), ShouldEqual, 3)
			for _, s := range model.AllStats() {
				So(c.Weight(s), ShouldNotEqual, 0)
			}
		})

		Convey("Then points are the weighted sum", func() {
			line := model.StatLine{}.With(model.Goals, 1).With(model.Assists, 1).With(model.ShotsOnGoal, 4)
			So(c.Points(line), ShouldEqual, 7)
		})
	})
}

func TestMerge(t *testing.T) {
	Convey("Given a partial league configuration", t, func() {
		c, unknown := scoring.Merge(map[string]float64{
			"goals":    5,
			"ppp":      0.5,
			"faceoffs": 0.1,
			"takeaway": 0.2,
		})

		Convey("Then known categories are overridden", func() {
			So(c.Weight(model.Goals), ShouldEqual, 5)
			So(c.Weight(model.PowerPlayPoints), ShouldEqual, 0.5)
		})

		Convey("Then missing categories keep their defaults", func() {
			So(c.Weight(model.Assists), ShouldEqual, scoring.Default().Weight(model.Assists))
		})

		Convey("Then unknown names are reported in order", func() {
			So(unknown, ShouldResemble, []string{"faceoffs", "takeaway"})
		})
	})

	Convey("Given a nil configuration", t, func() {
		c, unknown := scoring.Merge(nil)
		So(c, ShouldResemble, scoring.Default())
		So(unknown, ShouldBeEmpty)
	})
}

func TestOptions(t *testing.T) {
	Convey("Given scoring options", t, func() {
		c := scoring.New(
			scoring.WithWeightsFromConfig(map[string]float64{"hits": 1, "bogus": 9}),
			scoring.WithWeightsFromConfig(map[string]float64{"saves": 0.1}),
		)
		So(c.Weight(model.Hits), ShouldEqual, 1)
		So(c.Weight(model.Saves), ShouldEqual, 0.1)
		So(c.Weight(model.Goals), ShouldEqual, scoring.Default().Weight(model.Goals))
		So(c.Map()["hits"], ShouldEqual, 1)
	})
}
