package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/okian/projector/internal/domain/model"
)

// Dates are stored as ISO text so comparisons behave the same on every driver.
const dateLayout = time.DateOnly

func fmtDate(t time.Time) string { return model.Day(t).Format(dateLayout) }

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", model.ErrInvalidInput, s)
	}
	return t, nil
}

// StatColumns maps a StatLine onto one column per category.
type StatColumns struct {
	Goals             float64 `db:"goals"`
	Assists           float64 `db:"assists"`
	ShotsOnGoal       float64 `db:"shots_on_goal"`
	Blocks            float64 `db:"blocks"`
	PowerPlayPoints   float64 `db:"power_play_points"`
	ShortHandedPoints float64 `db:"short_handed_points"`
	Hits              float64 `db:"hits"`
	PenaltyMinutes    float64 `db:"penalty_minutes"`
	Wins              float64 `db:"wins"`
	Saves             float64 `db:"saves"`
	GoalsAgainst      float64 `db:"goals_against"`
	Shutouts          float64 `db:"shutouts"`
}

func columnsOf(l model.StatLine) StatColumns {
	return StatColumns{
		Goals:             l.Get(model.Goals),
		Assists:           l.Get(model.Assists),
		ShotsOnGoal:       l.Get(model.ShotsOnGoal),
		Blocks:            l.Get(model.Blocks),
		PowerPlayPoints:   l.Get(model.PowerPlayPoints),
		ShortHandedPoints: l.Get(model.ShortHandedPoints),
		Hits:              l.Get(model.Hits),
		PenaltyMinutes:    l.Get(model.PenaltyMinutes),
		Wins:              l.Get(model.Wins),
		Saves:             l.Get(model.Saves),
		GoalsAgainst:      l.Get(model.GoalsAgainst),
		Shutouts:          l.Get(model.Shutouts),
	}
}

func (c StatColumns) line() model.StatLine {
	return model.StatLine{}.
		With(model.Goals, c.Goals).
		With(model.Assists, c.Assists).
		With(model.ShotsOnGoal, c.ShotsOnGoal).
		With(model.Blocks, c.Blocks).
		With(model.PowerPlayPoints, c.PowerPlayPoints).
		With(model.ShortHandedPoints, c.ShortHandedPoints).
		With(model.Hits, c.Hits).
		With(model.PenaltyMinutes, c.PenaltyMinutes).
		With(model.Wins, c.Wins).
		With(model.Saves, c.Saves).
		With(model.GoalsAgainst, c.GoalsAgainst).
		With(model.Shutouts, c.Shutouts)
}

type profileRow struct {
	PlayerID       string  `db:"player_id"`
	AsOf           string  `db:"as_of_date"`
	Season         string  `db:"season"`
	Team           string  `db:"team"`
	Position       string  `db:"position"`
	GamesPlayed    int     `db:"games_played"`
	TOIPerGame     float64 `db:"toi_per_game"`
	DefensiveValue float64 `db:"defensive_value"`
	StatColumns
}

func toProfileRow(p model.RateProfile) profileRow {
	return profileRow{
		PlayerID: p.PlayerID, AsOf: fmtDate(p.AsOf), Season: p.Season, Team: p.Team,
		Position: string(p.Position), GamesPlayed: p.GamesPlayed, TOIPerGame: p.TOIPerGame,
		DefensiveValue: p.DefensiveValue, StatColumns: columnsOf(p.Totals),
	}
}

func (r profileRow) model() (model.RateProfile, error) {
	pos, err := model.ParsePosition(r.Position)
	if err != nil {
		return model.RateProfile{}, err
	}
	at, err := parseDate(r.AsOf)
	if err != nil {
		return model.RateProfile{}, err
	}
	return model.RateProfile{
		PlayerID: r.PlayerID, Season: r.Season, Team: r.Team, Position: pos,
		GamesPlayed: r.GamesPlayed, Totals: r.line(), TOIPerGame: r.TOIPerGame,
		DefensiveValue: r.DefensiveValue, AsOf: at,
	}, nil
}

type baselineRow struct {
	Position    string  `db:"position"`
	Season      string  `db:"season"`
	AsOf        string  `db:"as_of_date"`
	Replacement float64 `db:"replacement_fpts_per60"`
	StdDev      float64 `db:"std_dev_fpts_per60"`
	Average     float64 `db:"avg_fpts_per60"`
	StatColumns
}

func toBaselineRow(b model.LeagueBaseline) baselineRow {
	return baselineRow{
		Position: string(b.Position), Season: b.Season, AsOf: fmtDate(b.AsOf),
		Replacement: b.ReplacementFPtsPer60, StdDev: b.StdDevFPtsPer60, Average: b.AvgFPtsPer60,
		StatColumns: columnsOf(b.AvgPerGame),
	}
}

func (r baselineRow) model() (model.LeagueBaseline, error) {
	pos, err := model.ParsePosition(r.Position)
	if err != nil {
		return model.LeagueBaseline{}, err
	}
	at, err := parseDate(r.AsOf)
	if err != nil {
		return model.LeagueBaseline{}, err
	}
	return model.LeagueBaseline{
		Position: pos, Season: r.Season, AvgPerGame: r.line(),
		ReplacementFPtsPer60: r.Replacement, StdDevFPtsPer60: r.StdDev, AvgFPtsPer60: r.Average, AsOf: at,
	}, nil
}

type shotAggRow struct {
	PlayerID string  `db:"player_id"`
	AsOf     string  `db:"as_of_date"`
	XG       float64 `db:"cumulative_xg"`
	Goals    int     `db:"cumulative_goals"`
	Shots    int     `db:"shot_count"`
	Source   string  `db:"xg_source"`
}

func toShotAggRow(a model.ShotAggregate) shotAggRow {
	return shotAggRow{
		PlayerID: a.PlayerID, AsOf: fmtDate(a.AsOf), XG: a.CumulativeXG,
		Goals: a.CumulativeGoals, Shots: a.ShotCount, Source: string(a.XGSource),
	}
}

func (r shotAggRow) model() (model.ShotAggregate, error) {
	at, err := parseDate(r.AsOf)
	return model.ShotAggregate{
		PlayerID: r.PlayerID, CumulativeXG: r.XG, CumulativeGoals: r.Goals,
		ShotCount: r.Shots, XGSource: model.XGSource(r.Source), AsOf: at,
	}, err
}

type teamRow struct {
	Team          string  `db:"team"`
	AsOf          string  `db:"as_of_date"`
	XGAPer60      float64 `db:"xga_per60"`
	ShotsForPer60 float64 `db:"shots_for_per60"`
	WinRate       float64 `db:"win_rate"`
	WindowGames   int     `db:"window_games"`
}

func toTeamRow(t model.TeamAggregate) teamRow {
	return teamRow{
		Team: t.Team, AsOf: fmtDate(t.AsOf), XGAPer60: t.XGAPer60,
		ShotsForPer60: t.ShotsForPer60, WinRate: t.WinRate, WindowGames: t.WindowGames,
	}
}

func (r teamRow) model() (model.TeamAggregate, error) {
	at, err := parseDate(r.AsOf)
	return model.TeamAggregate{
		Team: r.Team, XGAPer60: r.XGAPer60, ShotsForPer60: r.ShotsForPer60,
		WinRate: r.WinRate, WindowGames: r.WindowGames, AsOf: at,
	}, err
}

type goalieRow struct {
	GoalieID    string  `db:"goalie_id"`
	AsOf        string  `db:"as_of_date"`
	Team        string  `db:"team"`
	GamesPlayed int     `db:"games_played"`
	ShotsFaced  int     `db:"shots_faced"`
	Saves       int     `db:"saves"`
	GSAx        float64 `db:"regressed_gsax"`
}

func toGoalieRow(g model.GoalieAggregate) goalieRow {
	return goalieRow{
		GoalieID: g.GoalieID, AsOf: fmtDate(g.AsOf), Team: g.Team, GamesPlayed: g.GamesPlayed,
		ShotsFaced: g.ShotsFaced, Saves: g.Saves, GSAx: g.RegressedGSAx,
	}
}

func (r goalieRow) model() (model.GoalieAggregate, error) {
	at, err := parseDate(r.AsOf)
	return model.GoalieAggregate{
		GoalieID: r.GoalieID, Team: r.Team, GamesPlayed: r.GamesPlayed,
		ShotsFaced: r.ShotsFaced, Saves: r.Saves, RegressedGSAx: r.GSAx, AsOf: at,
	}, err
}

type leagueRow struct {
	Season        string  `db:"season"`
	AsOf          string  `db:"as_of_date"`
	AvgXGAPer60   float64 `db:"avg_xga_per60"`
	AvgSavePct    float64 `db:"avg_save_pct"`
	AvgShotsPer60 float64 `db:"avg_shots_per60"`
}

func toLeagueRow(l model.LeagueContext) leagueRow {
	return leagueRow{
		Season: l.Season, AsOf: fmtDate(l.AsOf), AvgXGAPer60: l.AvgXGAPer60,
		AvgSavePct: l.AvgSavePct, AvgShotsPer60: l.AvgShotsPer60,
	}
}

func (r leagueRow) model() (model.LeagueContext, error) {
	at, err := parseDate(r.AsOf)
	return model.LeagueContext{
		Season: r.Season, AvgXGAPer60: r.AvgXGAPer60, AvgSavePct: r.AvgSavePct,
		AvgShotsPer60: r.AvgShotsPer60, AsOf: at,
	}, err
}

type gameRow struct {
	GameID       string   `db:"game_id"`
	Season       string   `db:"season"`
	Date         string   `db:"game_date"`
	HomeTeam     string   `db:"home_team"`
	AwayTeam     string   `db:"away_team"`
	MarketHome   *float64 `db:"market_win_prob_home"`
	MarketAway   *float64 `db:"market_win_prob_away"`
	HomeGoalieID *string  `db:"home_goalie_id"`
	AwayGoalieID *string  `db:"away_goalie_id"`
	Completed    bool     `db:"completed"`
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toGameRow(g model.GameContext) gameRow {
	return gameRow{
		GameID: g.GameID, Season: g.Season, Date: fmtDate(g.Date), HomeTeam: g.HomeTeam, AwayTeam: g.AwayTeam,
		MarketHome: g.MarketWinProbHome, MarketAway: g.MarketWinProbAway,
		HomeGoalieID: optString(g.HomeGoalieID), AwayGoalieID: optString(g.AwayGoalieID),
		Completed: g.Completed,
	}
}

func (r gameRow) model() (model.GameContext, error) {
	d, err := parseDate(r.Date)
	return model.GameContext{
		GameID: r.GameID, Season: r.Season, Date: d, HomeTeam: r.HomeTeam, AwayTeam: r.AwayTeam,
		MarketWinProbHome: r.MarketHome, MarketWinProbAway: r.MarketAway,
		HomeGoalieID: derefString(r.HomeGoalieID), AwayGoalieID: derefString(r.AwayGoalieID),
		Completed: r.Completed,
	}, err
}

type outcomeRow struct {
	PlayerID  string `db:"player_id"`
	GameID    string `db:"game_id"`
	Date      string `db:"game_date"`
	Position  string `db:"position"`
	GoalieWin *bool  `db:"goalie_win"`
	StatColumns
}

func toOutcomeRow(o model.Outcome) outcomeRow {
	return outcomeRow{
		PlayerID: o.PlayerID, GameID: o.GameID, Date: fmtDate(o.Date), Position: string(o.Position),
		GoalieWin: o.GoalieWin, StatColumns: columnsOf(o.Stats),
	}
}

func (r outcomeRow) model() (model.Outcome, error) {
	pos, err := model.ParsePosition(r.Position)
	if err != nil {
		return model.Outcome{}, err
	}
	d, err := parseDate(r.Date)
	return model.Outcome{
		PlayerID: r.PlayerID, GameID: r.GameID, Date: d, Position: pos,
		Stats: r.line(), GoalieWin: r.GoalieWin,
	}, err
}

type shotRow struct {
	ShotID    string   `db:"shot_id"`
	GameID    string   `db:"game_id"`
	Date      string   `db:"game_date"`
	ShooterID string   `db:"shooter_id"`
	Distance  float64  `db:"distance"`
	Angle     float64  `db:"angle"`
	Blocked   bool     `db:"blocked"`
	IsGoal    bool     `db:"is_goal"`
	XGBase    *float64 `db:"xg_base"`
	XGFlurry  *float64 `db:"xg_flurry"`
	XGTalent  *float64 `db:"xg_talent"`
}

func toShotRow(s model.Shot) shotRow {
	return shotRow{
		ShotID: s.ShotID, GameID: s.GameID, Date: fmtDate(s.Date), ShooterID: s.ShooterID,
		Distance: s.Distance, Angle: s.Angle, Blocked: s.Blocked, IsGoal: s.IsGoal,
		XGBase: s.XGBase, XGFlurry: s.XGFlurry, XGTalent: s.XGTalent,
	}
}

func (r shotRow) model() (model.Shot, error) {
	d, err := parseDate(r.Date)
	return model.Shot{
		ShotID: r.ShotID, GameID: r.GameID, Date: d, ShooterID: r.ShooterID,
		Distance: r.Distance, Angle: r.Angle, Blocked: r.Blocked, IsGoal: r.IsGoal,
		XGBase: r.XGBase, XGFlurry: r.XGFlurry, XGTalent: r.XGTalent,
	}, err
}

type projectionRow struct {
	PlayerID    string  `db:"player_id"`
	GameID      string  `db:"game_id"`
	Date        string  `db:"projection_date"`
	Position    string  `db:"position"`
	Team        string  `db:"team"`
	Opponent    string  `db:"opponent"`
	Home        bool    `db:"home"`
	TotalPoints float64 `db:"total_points"`
	VOPA        float64 `db:"vopa"`
	Confidence  float64 `db:"confidence"`
	Breakdown   string  `db:"breakdown"`
	Status      string  `db:"status"`
	StatColumns
}

func toProjectionRow(p model.Projection) (projectionRow, error) {
	bd, err := json.Marshal(p.Breakdown)
	if err != nil {
		return projectionRow{}, fmt.Errorf("encode breakdown %s: %w", p.Key, err)
	}
	status := p.Status
	if status == "" {
		status = model.StatusValid
	}
	return projectionRow{
		PlayerID: p.PlayerID, GameID: p.GameID, Date: fmtDate(p.Date), Position: string(p.Position),
		Team: p.Team, Opponent: p.Opponent, Home: p.Home, TotalPoints: p.TotalPoints, VOPA: p.VOPA,
		Confidence: p.Confidence, Breakdown: string(bd), Status: string(status), StatColumns: columnsOf(p.Stats),
	}, nil
}

func (r projectionRow) model() (model.Projection, error) {
	pos, err := model.ParsePosition(r.Position)
	if err != nil {
		return model.Projection{}, err
	}
	d, err := parseDate(r.Date)
	if err != nil {
		return model.Projection{}, err
	}
	var bd model.Breakdown
	if r.Breakdown != "" {
		if err := json.Unmarshal([]byte(r.Breakdown), &bd); err != nil {
			return model.Projection{}, fmt.Errorf("%w: breakdown: %w", model.ErrInvalidInput, err)
		}
	}
	return model.Projection{
		Key:      model.Key{PlayerID: r.PlayerID, GameID: r.GameID, Date: d},
		Position: pos, Team: r.Team, Opponent: r.Opponent, Home: r.Home,
		Stats: r.line(), TotalPoints: r.TotalPoints, VOPA: r.VOPA, Confidence: r.Confidence,
		Breakdown: bd, Status: model.Status(r.Status),
	}, nil
}
