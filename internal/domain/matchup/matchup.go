// Package matchup rates opponent difficulty and the schedule and venue
// effects applied after the talent stage.
package matchup

import (
	"math"
	"time"

	"github.com/okian/projector/internal/domain/model"
)

// Rating bounds and situational factors.
const (
	MinDDR          = 0.7
	MaxDDR          = 1.3
	BackToBackPen   = 0.95
	HomeBoost       = 1.05
	AwayFactor      = 1.0
	neutral         = 1.0
	componentTeam   = "team_defense"
	componentGoalie = "opposing_goalie"
)

// Inputs carries everything needed to rate one matchup. Nil pointers mean
// the aggregate is unavailable.
type Inputs struct {
	OpponentXGAPer60 *float64
	OpposingSavePct  *float64
	League           model.LeagueContext
	BackToBack       bool
	Home             bool
}

// Result holds each factor so it can be reported in the breakdown.
type Result struct {
	Team       float64
	Goalie     float64
	DDR        float64
	BackToBack float64
	HomeAway   float64
	// Defaulted lists components that fell back to neutral.
	Defaulted []string
}

// Situational returns the product of the post-DDR factors.
func (r Result) Situational() float64 { return r.BackToBack * r.HomeAway }

// Combined returns DDR × back-to-back × home/away.
func (r Result) Combined() float64 { return r.DDR * r.Situational() }

// TeamMultiplier is opponent xGA/60 over league xGA/60.
func TeamMultiplier(oppXGA, leagueXGA float64) (float64, bool) {
	if oppXGA <= 0 || leagueXGA <= 0 {
		return neutral, false
	}
	return oppXGA / leagueXGA, true
}

// GoalieMultiplier is league save% over the opposing goaltender's save%.
func GoalieMultiplier(leagueSv, oppSv float64) (float64, bool) {
	if oppSv <= 0 || leagueSv <= 0 {
		return neutral, false
	}
	return leagueSv / oppSv, true
}

// DDR combines the components and clamps the product.
func DDR(team, goalie float64) float64 {
	return math.Max(MinDDR, math.Min(MaxDDR, team*goalie))
}

// Rate computes the full matchup adjustment. Missing components default to
// neutral and are listed in Defaulted rather than failing.
func Rate(in Inputs) Result {
	r := Result{Team: neutral, Goalie: neutral, BackToBack: neutral, HomeAway: AwayFactor}

	if in.OpponentXGAPer60 != nil {
		if m, ok := TeamMultiplier(*in.OpponentXGAPer60, in.League.AvgXGAPer60); ok {
			r.Team = m
		} else {
			r.Defaulted = append(r.Defaulted, componentTeam)
		}
	} else {
		r.Defaulted = append(r.Defaulted, componentTeam)
	}

	if in.OpposingSavePct != nil {
		if m, ok := GoalieMultiplier(in.League.AvgSavePct, *in.OpposingSavePct); ok {
			r.Goalie = m
		} else {
			r.Defaulted = append(r.Defaulted, componentGoalie)
		}
	} else {
		r.Defaulted = append(r.Defaulted, componentGoalie)
	}

	r.DDR = DDR(r.Team, r.Goalie)
	if in.BackToBack {
		r.BackToBack = BackToBackPen
	}
	if in.Home {
		r.HomeAway = HomeBoost
	}
	return r
}

// PlayedPreviousDay reports whether team has a game on the calendar day
// before date.
func PlayedPreviousDay(games []model.GameContext, team string, date time.Time) bool {
	prev := model.Day(date).AddDate(0, 0, -1)
	for _, g := range games {
		if g.Involves(team) && model.Day(g.Date).Equal(prev) {
			return true
		}
	}
	return false
}
