// Package projection composes per-game skater projections from blended base
// rates, finishing talent and matchup difficulty, and scores them as fantasy
// points and value over replacement.
package projection

import (
	"fmt"
	"math"

	"github.com/okian/projector/internal/domain/matchup"
	"github.com/okian/projector/internal/domain/model"
	"github.com/okian/projector/internal/domain/scoring"
	"github.com/okian/projector/internal/domain/shrinkage"
	"github.com/okian/projector/internal/domain/talent"
)

// Composer constants.
const (
	minConfidence   = 0.1
	confidenceGames = 30.0

	defaultedTalent = "finishing_talent"
	defaultedLeague = "league_context"
	defaultedTOI    = "toi"
)

// Source is the read-only data a composer needs. *snapshot.Snapshot
// implements it.
type Source interface {
	Profile(playerID string) (model.RateProfile, bool)
	Baseline(pos model.Position, season string) (model.LeagueBaseline, bool)
	Shots(playerID string) *model.ShotAggregate
	Team(team string) *model.TeamAggregate
	Goalie(goalieID string) *model.GoalieAggregate
	Goaltenders(team string) []model.GoalieAggregate
	League(season string) (model.LeagueContext, bool)
	Game(gameID string) (model.GameContext, bool)
	Schedule() []model.GameContext
}

// Composer turns one skater request into a Projection. It holds no mutable
// state and is safe for concurrent use.
type Composer struct {
	scoring     scoring.Config
	standardize bool
	defaultTOI  map[model.Position]float64
}

// New creates a Composer with default scoring and TOI defaults.
func New(opts ...Option) *Composer {
	c := &Composer{
		scoring:    scoring.Default(),
		defaultTOI: DefaultTOI(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Scoring returns the scoring configuration in use.
func (c *Composer) Scoring() scoring.Config { return c.scoring }

// Skater projects one skater in one game. Missing player, game or baseline
// rows return a *model.UnitError wrapping model.ErrMissingEntity; missing
// optional aggregates fall back to neutral multipliers and are listed in the
// breakdown.
func (c *Composer) Skater(src Source, req model.Request) (model.Projection, error) {
	g, ok := src.Game(req.GameID)
	if !ok {
		return model.Projection{}, model.Missing(req.PlayerID, req.GameID, "game")
	}
	p, ok := src.Profile(req.PlayerID)
	if !ok {
		return model.Projection{}, model.Missing(req.PlayerID, req.GameID, "rate profile")
	}
	if p.Position.IsGoalie() {
		return model.Projection{}, model.Skip(req.PlayerID, req.GameID, fmt.Errorf("%w: goaltender passed to skater composer", model.ErrInvalidInput))
	}
	opponent, home, ok := g.Opponent(p.Team)
	if !ok {
		return model.Projection{}, model.Missing(req.PlayerID, req.GameID, "team "+p.Team+" in game")
	}

	season := firstNonEmpty(req.Season, g.Season, p.Season)
	baseline, ok := src.Baseline(p.Position, season)
	if !ok {
		return model.Projection{}, model.Missing(req.PlayerID, req.GameID, "league baseline "+string(p.Position)+"/"+season)
	}

	var defaulted []string
	league, ok := src.League(season)
	if !ok {
		defaulted = append(defaulted, defaultedLeague)
	}

	// Base
	base, weight := shrinkage.Base(p, baseline)

	// Talent, goals only
	talentMult, err := talent.Finishing(src.Shots(p.PlayerID))
	if err != nil {
		defaulted = append(defaulted, defaultedTalent)
	}

	// DDR, back-to-back, home/away
	in := matchup.Inputs{
		League:     league,
		Home:       home,
		BackToBack: matchup.PlayedPreviousDay(src.Schedule(), p.Team, g.Date),
	}
	if t := src.Team(opponent); t != nil {
		in.OpponentXGAPer60 = &t.XGAPer60
	}
	if sv, ok := opposingSavePct(src, g, opponent, league); ok {
		in.OpposingSavePct = &sv
	}
	mr := matchup.Rate(in)
	defaulted = append(defaulted, mr.Defaulted...)

	var stats model.StatLine
	for _, s := range model.SkaterStats {
		v := base.Get(s)
		if s == model.Goals {
			v *= talentMult
		}
		stats = stats.With(s, v*mr.Combined())
	}

	total := c.scoring.Points(stats)
	toi, toiDefaulted := c.projectedTOI(p)
	if toiDefaulted {
		defaulted = append(defaulted, defaultedTOI)
	}

	date := model.Day(g.Date)
	if !req.GameDate.IsZero() {
		date = model.Day(req.GameDate)
	}

	return model.Projection{
		Key:         model.Key{PlayerID: p.PlayerID, GameID: g.GameID, Date: date},
		Position:    p.Position,
		Team:        p.Team,
		Opponent:    opponent,
		Home:        home,
		Stats:       stats,
		TotalPoints: total,
		VOPA:        VOPA(total, toi, baseline, p.DefensiveValue, c.standardize),
		Confidence:  Confidence(p.GamesPlayed),
		Breakdown: model.Breakdown{
			ShrinkageWeight:  weight,
			TalentMultiplier: talentMult,
			TeamMultiplier:   mr.Team,
			GoalieMultiplier: mr.Goalie,
			DDR:              mr.DDR,
			BackToBack:       mr.BackToBack,
			HomeAway:         mr.HomeAway,
			ExpectedGoals:    stats.Get(model.Goals) / talentMult,
			ProjectedTOI:     toi,
			Defaulted:        defaulted,
		},
		Status: model.StatusValid,
	}, nil
}

// opposingSavePct returns the regressed save percentage of the opponent's
// probable starter, or of its busiest goaltender when no starter is named.
func opposingSavePct(src Source, g model.GameContext, opponent string, league model.LeagueContext) (float64, bool) {
	var agg *model.GoalieAggregate
	if id := g.StartingGoalie(opponent); id != "" {
		agg = src.Goalie(id)
	} else {
		for _, cand := range src.Goaltenders(opponent) {
			if agg == nil || cand.GamesPlayed > agg.GamesPlayed {
				c := cand
				agg = &c
			}
		}
	}
	if agg == nil {
		return 0, false
	}
	if league.AvgSavePct > 0 {
		return talent.SavePct(agg.Saves, agg.ShotsFaced, league.AvgSavePct), true
	}
	return agg.RawSavePct()
}

func (c *Composer) projectedTOI(p model.RateProfile) (float64, bool) {
	if p.TOIPerGame > 0 {
		return p.TOIPerGame, false
	}
	return c.defaultTOI[p.Position], true
}

// Confidence is min(gp/30, 1) floored at 0.1.
func Confidence(gp int) float64 {
	return math.Max(minConfidence, math.Min(float64(gp)/confidenceGames, 1.0))
}

// DefaultTOI returns the per-position ice time, in minutes, used when a
// player's season TOI is unknown.
func DefaultTOI() map[model.Position]float64 {
	return map[model.Position]float64{
		model.Center:     17.5,
		model.LeftWing:   16.5,
		model.RightWing:  16.5,
		model.Defenseman: 21.0,
		model.Goalie:     60.0,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
