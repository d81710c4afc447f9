// Package testkit generates a deterministic synthetic league: rosters,
// a schedule, point-in-time aggregates, box scores and a shot log. The
// runner, backtest and validator tests use it, and so does the demo
// command.
package testkit

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/okian/projector/internal/adapters/repository"
	"github.com/okian/projector/internal/domain/model"
	"github.com/okian/projector/internal/domain/scoring"
)

var teamNames = []string{"BOS", "TOR", "MTL", "NYR", "PIT", "CHI", "DET", "EDM", "CGY", "VAN", "SEA", "DAL"}

var lineup = []model.Position{
	model.Center, model.LeftWing, model.RightWing, model.Defenseman,
	model.Center, model.LeftWing, model.RightWing, model.Defenseman,
	model.Center, model.Defenseman,
}

const (
	eloHomeIce   = 50.0
	teamWindow   = 10
	gsaxPrior    = 20.0
	blockRate    = 0.25
	onTargetRate = 0.7
)

// Config sizes the league.
type Config struct {
	Seed   uint64
	Season string
	// Start is the first day with recorded games.
	Start time.Time
	// Days of completed games, followed by UpcomingDays of scheduled ones.
	Days         int
	UpcomingDays int
	Teams        int
	// SkatersPerTeam is capped at the lineup size.
	SkatersPerTeam int
	// WarmupGames are played before Start and only feed the opening
	// aggregates.
	WarmupGames int
}

// DefaultConfig returns a six-team league with two weeks of results.
func DefaultConfig() Config {
	return Config{
		Seed:           7,
		Season:         "2024",
		Start:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Days:           14,
		UpcomingDays:   2,
		Teams:          6,
		SkatersPerTeam: 8,
		WarmupGames:    12,
	}
}

// League is a generated dataset with its calendar.
type League struct {
	Dataset   repository.Dataset
	Teams     []string
	Completed []time.Time
	Upcoming  []time.Time
}

// First returns the first day with results.
func (l League) First() time.Time { return l.Completed[0] }

// Last returns the last day with results.
func (l League) Last() time.Time { return l.Completed[len(l.Completed)-1] }

// Seed generates a league and imports it.
func Seed(ctx context.Context, dst repository.Importer, cfg Config) (League, error) {
	l := Generate(cfg)
	if err := dst.Import(ctx, l.Dataset); err != nil {
		return League{}, fmt.Errorf("import synthetic league: %w", err)
	}
	return l, nil
}

// NewStore returns a memory store populated with a generated league.
func NewStore(ctx context.Context, cfg Config) (*repository.MemStore, League, error) {
	s := repository.NewMemStore()
	l, err := Seed(ctx, s, cfg)
	return s, l, err
}

type skater struct {
	id        string
	team      *team
	pos       model.Position
	shotRate  float64
	finish    float64
	assists   float64
	blocks    float64
	hits      float64
	toi       float64
	defensive float64

	gp     int
	totals model.StatLine
	xg     float64
	goals  int
	shots  int
}

type goalie struct {
	id    string
	team  *team
	skill float64

	gp    int
	faced int
	saves int
	xga   float64
	ga    int
}

type teamGame struct {
	xga      float64
	shotsFor int
	won      bool
}

type team struct {
	name    string
	elo     float64
	skaters []*skater
	goalies [2]*goalie
	recent  []teamGame
}

type sideResult struct {
	goals   int
	onGoal  int
	xg      float64
	lines   map[*skater]model.StatLine
	shotLog []model.Shot
}

type generator struct {
	cfg    Config
	rng    *rand.Rand
	teams  []*team
	skate  []*skater
	keeps  []*goalie
	scorer scoring.Config
	out    League

	// league-wide running totals for the context row
	teamGames int
	xgaSum    float64
	sogSum    int
	faced     int
	saves     int
	shotSeq   int
}

// Generate builds a league. The same Config always yields the same data.
func Generate(cfg Config) League {
	def := DefaultConfig()
	if cfg.Teams < 2 {
		cfg.Teams = def.Teams
	}
	cfg.Teams = min(cfg.Teams, len(teamNames))
	if cfg.SkatersPerTeam <= 0 {
		cfg.SkatersPerTeam = def.SkatersPerTeam
	}
	cfg.SkatersPerTeam = min(cfg.SkatersPerTeam, len(lineup))
	if cfg.Days <= 0 {
		cfg.Days = def.Days
	}
	if cfg.Start.IsZero() {
		cfg.Start = def.Start
	}
	if cfg.Season == "" {
		cfg.Season = def.Season
	}
	cfg.Start = model.Day(cfg.Start)

	g := &generator{
		cfg:    cfg,
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5eed)),
		scorer: scoring.Default(),
	}
	g.roster()
	for i := 0; i < cfg.WarmupGames; i++ {
		g.playDay(time.Time{}, false)
	}
	g.baselines(cfg.Start)
	g.stamp(cfg.Start)

	for d := 0; d < cfg.Days; d++ {
		date := cfg.Start.AddDate(0, 0, d)
		g.playDay(date, true)
		g.out.Completed = append(g.out.Completed, date)
		g.stamp(date.AddDate(0, 0, 1))
	}
	for d := 0; d < cfg.UpcomingDays; d++ {
		date := cfg.Start.AddDate(0, 0, cfg.Days+d)
		g.schedule(date)
		g.out.Upcoming = append(g.out.Upcoming, date)
	}
	for _, t := range g.teams {
		g.out.Teams = append(g.out.Teams, t.name)
	}
	return g.out
}

func (g *generator) roster() {
	for i := 0; i < g.cfg.Teams; i++ {
		t := &team{name: teamNames[i], elo: 1500 + (g.rng.Float64()*2-1)*100}
		for j := 0; j < g.cfg.SkatersPerTeam; j++ {
			pos := lineup[j]
			talent := 0.6 + g.rng.Float64()*0.9
			s := &skater{
				id:     fmt.Sprintf("%s-%s%d", t.name, pos, j+1),
				team:   t,
				pos:    pos,
				finish: 0.8 + g.rng.Float64()*0.45,
				hits:   0.8 + g.rng.Float64()*1.2,
			}
			if pos == model.Defenseman {
				s.shotRate, s.assists, s.blocks = 1.6*talent, 0.3*talent, 1.2+g.rng.Float64()*0.8
				s.toi, s.defensive = 20+g.rng.Float64()*4, 0.2+g.rng.Float64()*0.3
			} else {
				s.shotRate, s.assists, s.blocks = 2.3*talent, 0.45*talent, 0.3+g.rng.Float64()*0.4
				s.toi, s.defensive = 15+g.rng.Float64()*4, g.rng.Float64()*0.15
			}
			t.skaters = append(t.skaters, s)
			g.skate = append(g.skate, s)
		}
		for j := range t.goalies {
			gl := &goalie{id: fmt.Sprintf("%s-G%d", t.name, j+1), team: t, skill: (g.rng.Float64()*2 - 1) * 0.08}
			t.goalies[j] = gl
			g.keeps = append(g.keeps, gl)
		}
		g.teams = append(g.teams, t)
	}
}

// pairings splits the teams into home/away pairs for one day.
func (g *generator) pairings() [][2]*team {
	perm := g.rng.Perm(len(g.teams))
	var out [][2]*team
	for i := 0; i+1 < len(perm); i += 2 {
		out = append(out, [2]*team{g.teams[perm[i]], g.teams[perm[i+1]]})
	}
	return out
}

func homeWinProb(home, away *team) float64 {
	diff := home.elo + eloHomeIce - away.elo
	return 1 / (math.Pow(10, -diff/400) + 1)
}

func (g *generator) gameContext(date time.Time, i int, home, away *team) model.GameContext {
	ph := homeWinProb(home, away)
	pa := 1 - ph
	return model.GameContext{
		GameID:            fmt.Sprintf("%s-%02d", date.Format("20060102"), i+1),
		Season:            g.cfg.Season,
		Date:              date,
		HomeTeam:          home.name,
		AwayTeam:          away.name,
		MarketWinProbHome: &ph,
		MarketWinProbAway: &pa,
	}
}

// schedule adds unplayed games with no named starters.
func (g *generator) schedule(date time.Time) {
	for i, p := range g.pairings() {
		g.out.Dataset.Games = append(g.out.Dataset.Games, g.gameContext(date, i, p[0], p[1]))
	}
}

// playDay simulates one round. Unrecorded rounds only move the running
// totals.
func (g *generator) playDay(date time.Time, record bool) {
	for i, p := range g.pairings() {
		home, away := p[0], p[1]
		starter := 0
		if date.Day()%4 == 3 {
			starter = 1
		}
		hg, ag := home.goalies[starter], away.goalies[starter]

		ctx := g.gameContext(date, i, home, away)
		hr := g.side(ctx, home, ag, away.elo-home.elo-eloHomeIce)
		ar := g.side(ctx, away, hg, home.elo+eloHomeIce-away.elo)

		homeWon := hr.goals > ar.goals
		if hr.goals == ar.goals {
			homeWon = distuv.Bernoulli{P: homeWinProb(home, away), Src: g.rng}.Rand() == 1
		}

		g.settle(home, hg, hr, ar, homeWon)
		g.settle(away, ag, ar, hr, !homeWon)

		if !record {
			continue
		}
		ctx.HomeGoalieID, ctx.AwayGoalieID = hg.id, ag.id
		ctx.Completed = true
		g.out.Dataset.Games = append(g.out.Dataset.Games, ctx)
		g.out.Dataset.ShotLog = append(g.out.Dataset.ShotLog, hr.shotLog...)
		g.out.Dataset.ShotLog = append(g.out.Dataset.ShotLog, ar.shotLog...)
		g.outcomes(ctx, home, hr, hg, ar, homeWon)
		g.outcomes(ctx, away, ar, ag, hr, !homeWon)
	}
}

// side simulates one team's skaters against the opposing goaltender.
// eloGap is the opponent's edge.
func (g *generator) side(ctx model.GameContext, t *team, opp *goalie, eloGap float64) sideResult {
	res := sideResult{lines: make(map[*skater]model.StatLine, len(t.skaters))}
	pace := math.Max(0.5, 1-eloGap/2000)

	for _, s := range t.skaters {
		var line model.StatLine
		attempts := int(distuv.Poisson{Lambda: s.shotRate * pace / ((1 - blockRate) * onTargetRate), Src: g.rng}.Rand())
		goals, onGoal := 0, 0
		for a := 0; a < attempts; a++ {
			dist := 5 + g.rng.Float64()*55
			angle := -85 + g.rng.Float64()*170
			base := 1 / (1 + math.Exp(0.09*dist-1.2+0.01*math.Abs(angle)))
			shot := model.Shot{
				ShotID:    fmt.Sprintf("s%06d", g.shotSeq),
				GameID:    ctx.GameID,
				Date:      ctx.Date,
				ShooterID: s.id,
				Distance:  math.Round(dist*10) / 10,
				Angle:     math.Round(angle*10) / 10,
				XGBase:    ptr(base),
			}
			g.shotSeq++
			if g.rng.Float64() < blockRate {
				shot.Blocked = true
				res.shotLog = append(res.shotLog, shot)
				continue
			}
			p := math.Min(base*s.finish*(1-opp.skill), 0.95)
			switch u := g.rng.Float64(); {
			case u < 0.4:
				shot.XGTalent = ptr(p)
			case u < 0.7:
				shot.XGFlurry = ptr(math.Min(base*1.05, 0.95))
			}
			xg, _, _ := shot.XG()
			res.xg += xg
			s.xg += xg
			s.shots++
			if g.rng.Float64() < p {
				shot.IsGoal = true
				goals++
				onGoal++
				s.goals++
			} else if g.rng.Float64() < onTargetRate {
				onGoal++
			}
			res.shotLog = append(res.shotLog, shot)
		}
		res.goals += goals
		res.onGoal += onGoal

		assists := g.poisson(s.assists * pace)
		points := float64(goals) + assists
		ppp := math.Min(g.poisson(0.12*points+0.05), points)
		shp := math.Min(g.poisson(0.01), points-ppp)
		line = line.
			With(model.Goals, float64(goals)).
			With(model.Assists, assists).
			With(model.ShotsOnGoal, float64(onGoal)).
			With(model.Blocks, g.poisson(s.blocks)).
			With(model.PowerPlayPoints, ppp).
			With(model.ShortHandedPoints, shp).
			With(model.Hits, g.poisson(s.hits)).
			With(model.PenaltyMinutes, 2*g.poisson(0.3))
		res.lines[s] = line
	}
	return res
}

func (g *generator) poisson(lambda float64) float64 {
	if lambda <= 0 {
		return 0
	}
	return distuv.Poisson{Lambda: lambda, Src: g.rng}.Rand()
}

// settle folds one side's game into the running totals.
func (g *generator) settle(t *team, gl *goalie, own, opp sideResult, won bool) {
	for s, line := range own.lines {
		s.gp++
		s.totals = s.totals.Add(line)
	}
	gl.gp++
	gl.faced += opp.onGoal
	gl.saves += opp.onGoal - opp.goals
	gl.xga += opp.xg
	gl.ga += opp.goals

	t.recent = append(t.recent, teamGame{xga: opp.xg, shotsFor: own.onGoal, won: won})
	if len(t.recent) > teamWindow {
		t.recent = t.recent[len(t.recent)-teamWindow:]
	}

	g.teamGames++
	g.xgaSum += opp.xg
	g.sogSum += own.onGoal
	g.faced += opp.onGoal
	g.saves += opp.onGoal - opp.goals
}

func (g *generator) outcomes(ctx model.GameContext, t *team, own sideResult, gl *goalie, opp sideResult, won bool) {
	for _, s := range t.skaters {
		g.out.Dataset.Outcomes = append(g.out.Dataset.Outcomes, model.Outcome{
			PlayerID: s.id, GameID: ctx.GameID, Date: ctx.Date, Position: s.pos, Stats: own.lines[s],
		})
	}
	line := model.StatLine{}.
		With(model.Saves, float64(opp.onGoal-opp.goals)).
		With(model.GoalsAgainst, float64(opp.goals))
	if won {
		line = line.With(model.Wins, 1)
	}
	if opp.goals == 0 {
		line = line.With(model.Shutouts, 1)
	}
	g.out.Dataset.Outcomes = append(g.out.Dataset.Outcomes, model.Outcome{
		PlayerID: gl.id, GameID: ctx.GameID, Date: ctx.Date, Position: model.Goalie, Stats: line, GoalieWin: ptr(won),
	})
}

// stamp records every aggregate as of date: totals through the day before.
func (g *generator) stamp(date time.Time) {
	d := &g.out.Dataset
	for _, s := range g.skate {
		d.Profiles = append(d.Profiles, model.RateProfile{
			PlayerID: s.id, Season: g.cfg.Season, Team: s.team.name, Position: s.pos,
			GamesPlayed: s.gp, Totals: s.totals, TOIPerGame: math.Round(s.toi*10) / 10,
			DefensiveValue: s.defensive, AsOf: date,
		})
		d.Shots = append(d.Shots, model.ShotAggregate{
			PlayerID: s.id, CumulativeXG: s.xg, CumulativeGoals: s.goals, ShotCount: s.shots,
			XGSource: model.XGTalent, AsOf: date,
		})
	}
	for _, t := range g.teams {
		agg := model.TeamAggregate{Team: t.name, WindowGames: len(t.recent), AsOf: date}
		for _, r := range t.recent {
			agg.XGAPer60 += r.xga
			agg.ShotsForPer60 += float64(r.shotsFor)
			if r.won {
				agg.WinRate++
			}
		}
		if n := float64(len(t.recent)); n > 0 {
			agg.XGAPer60 /= n
			agg.ShotsForPer60 /= n
			agg.WinRate /= n
		}
		d.Teams = append(d.Teams, agg)
	}
	for _, gl := range g.keeps {
		d.Goalies = append(d.Goalies, model.GoalieAggregate{
			GoalieID: gl.id, Team: gl.team.name, GamesPlayed: gl.gp, ShotsFaced: gl.faced, Saves: gl.saves,
			RegressedGSAx: (gl.xga - float64(gl.ga)) * float64(gl.gp) / (float64(gl.gp) + gsaxPrior),
			AsOf:          date,
		})
	}
	if g.teamGames > 0 && g.faced > 0 {
		d.Leagues = append(d.Leagues, model.LeagueContext{
			Season:        g.cfg.Season,
			AvgXGAPer60:   g.xgaSum / float64(g.teamGames),
			AvgSavePct:    float64(g.saves) / float64(g.faced),
			AvgShotsPer60: float64(g.sogSum) / float64(g.teamGames),
			AsOf:          date,
		})
	}
}

// baselines derives positional averages from the warm-up totals. The
// replacement level is the positional 25th percentile, so it never exceeds
// the mean.
func (g *generator) baselines(date time.Time) {
	byPos := make(map[model.Position][]*skater)
	for _, s := range g.skate {
		byPos[s.pos] = append(byPos[s.pos], s)
	}
	positions := make([]model.Position, 0, len(byPos))
	for pos := range byPos {
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })

	for _, pos := range positions {
		var avg model.StatLine
		var rates []float64
		n := 0
		for _, s := range byPos[pos] {
			if s.gp == 0 {
				continue
			}
			perGame := s.totals.Div(float64(s.gp))
			avg = avg.Add(perGame)
			rates = append(rates, g.scorer.Points(perGame)/s.toi*60)
			n++
		}
		if n == 0 {
			continue
		}
		g.out.Dataset.Baselines = append(g.out.Dataset.Baselines, baseline(pos, g.cfg.Season, avg.Div(float64(n)), rates, date))
	}

	var rates []float64
	for _, gl := range g.keeps {
		if gl.gp == 0 {
			continue
		}
		line := model.StatLine{}.
			With(model.Saves, float64(gl.saves)/float64(gl.gp)).
			With(model.GoalsAgainst, float64(gl.ga)/float64(gl.gp))
		rates = append(rates, g.scorer.Points(line))
	}
	if len(rates) > 0 {
		g.out.Dataset.Baselines = append(g.out.Dataset.Baselines, baseline(model.Goalie, g.cfg.Season, model.StatLine{}, rates, date))
	}
}

func baseline(pos model.Position, season string, avg model.StatLine, rates []float64, date time.Time) model.LeagueBaseline {
	sort.Float64s(rates)
	mean, std := stat.MeanStdDev(rates, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return model.LeagueBaseline{
		Position:             pos,
		Season:               season,
		AvgPerGame:           avg,
		ReplacementFPtsPer60: math.Min(stat.Quantile(0.25, stat.Empirical, rates, nil), mean),
		StdDevFPtsPer60:      std,
		AvgFPtsPer60:         mean,
		AsOf:                 date,
	}
}

func ptr[T any](v T) *T { return &v }
