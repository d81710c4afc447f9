// Package goalie projects goaltender fantasy lines from save volume, win
// probability and a GSAx-scaled shutout rate.
package goalie

import (
	"math"

	"github.com/okian/projector/internal/domain/matchup"
	"github.com/okian/projector/internal/domain/model"
	"github.com/okian/projector/internal/domain/projection"
	"github.com/okian/projector/internal/domain/scoring"
	"github.com/okian/projector/internal/domain/talent"
)

// Model constants.
const (
	// BackToBackWinFactor reflects the starter resting on the second night.
	BackToBackWinFactor = 0.85
	// BaseShutoutRate is scaled by the GSAx factor and capped at MaxShutoutRate.
	BaseShutoutRate = 0.05
	MaxShutoutRate  = 0.25
	fullGameMinutes = 60.0

	// Fallbacks when the league context is missing.
	defaultLeagueSavePct    = 0.905
	defaultLeagueShotsPer60 = 30.0
	defaultWinProb          = 0.5

	winSourceMarket  = "market"
	winSourceTeam    = "team_win_rate"
	winSourceDefault = "default"

	defaultedLeague  = "league_context"
	defaultedVolume  = "opponent_volume"
	defaultedWinProb = "win_probability"
	defaultedBase    = "goalie_baseline"
)

// Source is the read-only data the goalie model needs. *snapshot.Snapshot
// implements it.
type Source interface {
	Goalie(goalieID string) *model.GoalieAggregate
	Team(team string) *model.TeamAggregate
	Baseline(pos model.Position, season string) (model.LeagueBaseline, bool)
	League(season string) (model.LeagueContext, bool)
	Game(gameID string) (model.GameContext, bool)
	Schedule() []model.GameContext
}

// Model projects goaltenders. It holds no mutable state.
type Model struct {
	scoring     scoring.Config
	standardize bool
}

// Option applies a configuration option to the Model.
type Option func(*Model)

// WithScoring sets the league scoring configuration.
func WithScoring(cfg scoring.Config) Option {
	return func(m *Model) { m.scoring = cfg }
}

// WithStandardizedVOPA standardizes goalie VOPA like the skater composer.
func WithStandardizedVOPA(on bool) Option {
	return func(m *Model) { m.standardize = on }
}

// New creates a Model with default scoring.
func New(opts ...Option) *Model {
	m := &Model{scoring: scoring.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Project computes one goaltender's line for one game. A missing goalie
// season row aborts only this goaltender.
func (m *Model) Project(src Source, req model.Request) (model.Projection, error) {
	g, ok := src.Game(req.GameID)
	if !ok {
		return model.Projection{}, model.Missing(req.PlayerID, req.GameID, "game")
	}
	agg := src.Goalie(req.PlayerID)
	if agg == nil {
		return model.Projection{}, model.Missing(req.PlayerID, req.GameID, "goalie season stats")
	}
	opponent, home, ok := g.Opponent(agg.Team)
	if !ok {
		return model.Projection{}, model.Missing(req.PlayerID, req.GameID, "team "+agg.Team+" in game")
	}

	season := req.Season
	if season == "" {
		season = g.Season
	}

	var defaulted []string
	league, ok := src.League(season)
	if !ok || league.AvgSavePct <= 0 {
		defaulted = append(defaulted, defaultedLeague)
		league.AvgSavePct = defaultLeagueSavePct
	}

	// (a) save percentage
	sv := talent.SavePct(agg.Saves, agg.ShotsFaced, league.AvgSavePct)

	// (b) volume
	toi := 0.0
	if agg.GamesPlayed > 0 {
		toi = fullGameMinutes
	}
	shotsFor60 := league.AvgShotsPer60
	if opp := src.Team(opponent); opp != nil && opp.ShotsForPer60 > 0 {
		shotsFor60 = opp.ShotsForPer60
	} else {
		defaulted = append(defaulted, defaultedVolume)
	}
	if shotsFor60 <= 0 {
		shotsFor60 = defaultLeagueShotsPer60
	}
	shots := shotsFor60 / 60 * toi
	saves := shots * sv
	ga := shots * (1 - sv)
	gaa := 0.0
	if toi > 0 {
		gaa = ga / (toi / 60)
	}

	// (c) wins
	b2b := matchup.PlayedPreviousDay(src.Schedule(), agg.Team, g.Date)
	winProb, winSource := winProbability(src, g, agg.Team)
	if winSource == winSourceDefault {
		defaulted = append(defaulted, defaultedWinProb)
	}
	b2bFactor := 1.0
	if b2b {
		b2bFactor = BackToBackWinFactor
	}
	played := toi / fullGameMinutes
	wins := winProb * b2bFactor * played

	// (d) shutouts
	gsaxFactor := talent.GoalieFactor(agg.RegressedGSAx)
	shutouts := math.Min(BaseShutoutRate*gsaxFactor, MaxShutoutRate) * played

	var stats model.StatLine
	stats = stats.With(model.Wins, wins).
		With(model.Saves, saves).
		With(model.GoalsAgainst, ga).
		With(model.Shutouts, shutouts)
	total := m.scoring.Points(stats)

	vopa := 0.0
	if b, ok := src.Baseline(model.Goalie, season); ok {
		vopa = projection.VOPA(total, toi, b, 0, m.standardize)
	} else {
		defaulted = append(defaulted, defaultedBase)
	}

	date := model.Day(g.Date)
	if !req.GameDate.IsZero() {
		date = model.Day(req.GameDate)
	}

	return model.Projection{
		Key:         model.Key{PlayerID: agg.GoalieID, GameID: g.GameID, Date: date},
		Position:    model.Goalie,
		Team:        agg.Team,
		Opponent:    opponent,
		Home:        home,
		Stats:       stats,
		TotalPoints: total,
		VOPA:        vopa,
		Confidence:  projection.Confidence(agg.GamesPlayed),
		Breakdown: model.Breakdown{
			ShrinkageWeight:  float64(agg.ShotsFaced) / (float64(agg.ShotsFaced) + talent.SavePriorShots),
			TalentMultiplier: 1,
			TeamMultiplier:   1,
			GoalieMultiplier: 1,
			DDR:              1,
			BackToBack:       b2bFactor,
			HomeAway:         1,
			ProjectedTOI:     toi,
			SavePct:          sv,
			GAA:              gaa,
			GSAxFactor:       gsaxFactor,
			WinProbSource:    winSource,
			Defaulted:        defaulted,
		},
		Status: model.StatusValid,
	}, nil
}

// winProbability prefers the market line, then the trailing team win rate.
func winProbability(src Source, g model.GameContext, team string) (float64, string) {
	if p, ok := g.MarketWinProb(team); ok && p >= 0 && p <= 1 {
		return p, winSourceMarket
	}
	if t := src.Team(team); t != nil && t.WindowGames > 0 {
		return t.WinRate, winSourceTeam
	}
	return defaultWinProb, winSourceDefault
}
