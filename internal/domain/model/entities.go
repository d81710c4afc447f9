package model

import (
	"fmt"
	"time"
)

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// RateProfile is one player's season totals as of a date.
type RateProfile struct {
	PlayerID    string
	Season      string
	Team        string
	Position    Position
	GamesPlayed int
	Totals      StatLine
	// TOIPerGame is season-to-date average ice time in minutes; zero when unknown.
	TOIPerGame float64
	// DefensiveValue is an upstream per-60 defensive contribution added to VOPA.
	DefensiveValue float64
	AsOf           time.Time
}

// PerGame returns per-game rates. A player without games has zero rates.
func (p RateProfile) PerGame() StatLine {
	if p.GamesPlayed <= 0 {
		return StatLine{}
	}
	return p.Totals.Div(float64(p.GamesPlayed))
}

// LeagueBaseline is one position's league averages for a season.
type LeagueBaseline struct {
	Position   Position
	Season     string
	AvgPerGame StatLine
	// ReplacementFPtsPer60 is the per-60 rate of a readily available substitute.
	ReplacementFPtsPer60 float64
	// StdDevFPtsPer60 is used to standardize VOPA across positions.
	StdDevFPtsPer60 float64
	// AvgFPtsPer60 is the position mean per-60 rate; zero when unknown.
	AvgFPtsPer60 float64
	AsOf         time.Time
}

// Validate checks that the replacement level does not exceed the league average.
func (b LeagueBaseline) Validate() error {
	if b.AvgFPtsPer60 > 0 && b.ReplacementFPtsPer60 > b.AvgFPtsPer60 {
		return fmt.Errorf("%w: replacement %.3f exceeds league average %.3f",
			ErrInvalidInput, b.ReplacementFPtsPer60, b.AvgFPtsPer60)
	}
	if b.StdDevFPtsPer60 < 0 {
		return fmt.Errorf("%w: negative standard deviation %.3f", ErrInvalidInput, b.StdDevFPtsPer60)
	}
	return nil
}

// XGSource records which expected-goals value a coalesce picked.
type XGSource string

// Expected-goals provenance, most to least refined.
const (
	XGTalent XGSource = "talent"
	XGFlurry XGSource = "flurry"
	XGBase   XGSource = "base"
	XGNone   XGSource = "none"
)

// ShotAggregate is one player's cumulative shot-quality totals.
type ShotAggregate struct {
	PlayerID        string
	CumulativeXG    float64
	CumulativeGoals int
	ShotCount       int
	XGSource        XGSource
	AsOf            time.Time
}

// TeamAggregate is one team's trailing-window rates.
type TeamAggregate struct {
	Team          string
	XGAPer60      float64
	ShotsForPer60 float64
	// WinRate is the trailing fraction of games won.
	WinRate     float64
	WindowGames int
	AsOf        time.Time
}

// GoalieAggregate is one goaltender's season save totals.
type GoalieAggregate struct {
	GoalieID      string
	Team          string
	GamesPlayed   int
	ShotsFaced    int
	Saves         int
	RegressedGSAx float64
	AsOf          time.Time
}

// RawSavePct returns saves over shots faced, or ok=false without shots.
func (g GoalieAggregate) RawSavePct() (float64, bool) {
	if g.ShotsFaced <= 0 {
		return 0, false
	}
	return float64(g.Saves) / float64(g.ShotsFaced), true
}

// LeagueContext holds league-wide rates for a season.
type LeagueContext struct {
	Season        string
	AvgXGAPer60   float64
	AvgSavePct    float64
	AvgShotsPer60 float64
	AsOf          time.Time
}

// GameContext is one scheduled game.
type GameContext struct {
	GameID   string
	Season   string
	Date     time.Time
	HomeTeam string
	AwayTeam string
	// Market-implied win probabilities; nil when no line is available.
	MarketWinProbHome *float64
	MarketWinProbAway *float64
	// Probable starting goaltenders; empty when unknown.
	HomeGoalieID string
	AwayGoalieID string
	Completed    bool
}

// Involves reports whether team plays in g.
func (g GameContext) Involves(team string) bool {
	return team != "" && (team == g.HomeTeam || team == g.AwayTeam)
}

// Opponent returns the other team and whether team is at home.
func (g GameContext) Opponent(team string) (opponent string, home bool, ok bool) {
	switch team {
	case g.HomeTeam:
		return g.AwayTeam, true, true
	case g.AwayTeam:
		return g.HomeTeam, false, true
	}
	return "", false, false
}

// MarketWinProb returns the market-implied win probability for team.
func (g GameContext) MarketWinProb(team string) (float64, bool) {
	var p *float64
	switch team {
	case g.HomeTeam:
		p = g.MarketWinProbHome
	case g.AwayTeam:
		p = g.MarketWinProbAway
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// StartingGoalie returns the probable starter for team, if named.
func (g GameContext) StartingGoalie(team string) string {
	switch team {
	case g.HomeTeam:
		return g.HomeGoalieID
	case g.AwayTeam:
		return g.AwayGoalieID
	}
	return ""
}

// Outcome is one player's realized box score for one game.
type Outcome struct {
	PlayerID string
	GameID   string
	Date     time.Time
	Position Position
	Stats    StatLine
	// GoalieWin is set only for goaltenders with a decided result.
	GoalieWin *bool
}

// Shot is one unblocked or blocked shot attempt with its upstream xG values.
type Shot struct {
	ShotID    string
	GameID    string
	Date      time.Time
	ShooterID string
	Distance  float64
	Angle     float64
	Blocked   bool
	IsGoal    bool
	XGBase    *float64
	XGFlurry  *float64
	XGTalent  *float64
}

// XG coalesces the most refined available expected-goals value and reports
// which one it used.
func (s Shot) XG() (float64, XGSource, bool) {
	switch {
	case s.XGTalent != nil:
		return *s.XGTalent, XGTalent, true
	case s.XGFlurry != nil:
		return *s.XGFlurry, XGFlurry, true
	case s.XGBase != nil:
		return *s.XGBase, XGBase, true
	}
	return 0, XGNone, false
}
