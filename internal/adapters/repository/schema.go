package repository

import (
	"fmt"
	"strings"

	"github.com/okian/projector/internal/domain/model"
)

// table describes one relation for query generation. For versioned tables
// the last key column is as_of_date.
type table struct {
	name string
	key  []string
	cols []string
	ddl  string
}

func statColumnNames() []string {
	out := make([]string, 0, len(model.AllStats()))
	for _, s := range model.AllStats() {
		out = append(out, s.String())
	}
	return out
}

func statColumnsDDL() string {
	var b strings.Builder
	for _, c := range statColumnNames() {
		fmt.Fprintf(&b, "\t%s DOUBLE PRECISION NOT NULL DEFAULT 0,\n", c)
	}
	return b.String()
}

func withStats(cols ...string) []string { return append(cols, statColumnNames()...) }

var (
	rateProfiles = table{
		name: "rate_profiles",
		key:  []string{"player_id", "as_of_date"},
		cols: withStats("season", "team", "position", "games_played", "toi_per_game", "defensive_value"),
		ddl: `CREATE TABLE IF NOT EXISTS rate_profiles (
	player_id TEXT NOT NULL,
	as_of_date TEXT NOT NULL,
	season TEXT NOT NULL,
	team TEXT NOT NULL,
	position TEXT NOT NULL,
	games_played INTEGER NOT NULL DEFAULT 0,
	toi_per_game DOUBLE PRECISION NOT NULL DEFAULT 0,
	defensive_value DOUBLE PRECISION NOT NULL DEFAULT 0,
` + statColumnsDDL() + `	PRIMARY KEY (player_id, as_of_date)
)`,
	}

	leagueBaselines = table{
		name: "league_baselines",
		key:  []string{"position", "season", "as_of_date"},
		cols: withStats("replacement_fpts_per60", "std_dev_fpts_per60", "avg_fpts_per60"),
		ddl: `CREATE TABLE IF NOT EXISTS league_baselines (
	position TEXT NOT NULL,
	season TEXT NOT NULL,
	as_of_date TEXT NOT NULL,
	replacement_fpts_per60 DOUBLE PRECISION NOT NULL DEFAULT 0,
	std_dev_fpts_per60 DOUBLE PRECISION NOT NULL DEFAULT 0,
	avg_fpts_per60 DOUBLE PRECISION NOT NULL DEFAULT 0,
` + statColumnsDDL() + `	PRIMARY KEY (position, season, as_of_date)
)`,
	}

	shotAggregates = table{
		name: "shot_aggregates",
		key:  []string{"player_id", "as_of_date"},
		cols: []string{"cumulative_xg", "cumulative_goals", "shot_count", "xg_source"},
		ddl: `CREATE TABLE IF NOT EXISTS shot_aggregates (
	player_id TEXT NOT NULL,
	as_of_date TEXT NOT NULL,
	cumulative_xg DOUBLE PRECISION NOT NULL DEFAULT 0,
	cumulative_goals INTEGER NOT NULL DEFAULT 0,
	shot_count INTEGER NOT NULL DEFAULT 0,
	xg_source TEXT NOT NULL DEFAULT 'none',
	PRIMARY KEY (player_id, as_of_date)
)`,
	}

	teamAggregates = table{
		name: "team_aggregates",
		key:  []string{"team", "as_of_date"},
		cols: []string{"xga_per60", "shots_for_per60", "win_rate", "window_games"},
		ddl: `CREATE TABLE IF NOT EXISTS team_aggregates (
	team TEXT NOT NULL,
	as_of_date TEXT NOT NULL,
	xga_per60 DOUBLE PRECISION NOT NULL DEFAULT 0,
	shots_for_per60 DOUBLE PRECISION NOT NULL DEFAULT 0,
	win_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
	window_games INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (team, as_of_date)
)`,
	}

	goalieAggregates = table{
		name: "goalie_aggregates",
		key:  []string{"goalie_id", "as_of_date"},
		cols: []string{"team", "games_played", "shots_faced", "saves", "regressed_gsax"},
		ddl: `CREATE TABLE IF NOT EXISTS goalie_aggregates (
	goalie_id TEXT NOT NULL,
	as_of_date TEXT NOT NULL,
	team TEXT NOT NULL,
	games_played INTEGER NOT NULL DEFAULT 0,
	shots_faced INTEGER NOT NULL DEFAULT 0,
	saves INTEGER NOT NULL DEFAULT 0,
	regressed_gsax DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (goalie_id, as_of_date)
)`,
	}

	leagueContexts = table{
		name: "league_contexts",
		key:  []string{"season", "as_of_date"},
		cols: []string{"avg_xga_per60", "avg_save_pct", "avg_shots_per60"},
		ddl: `CREATE TABLE IF NOT EXISTS league_contexts (
	season TEXT NOT NULL,
	as_of_date TEXT NOT NULL,
	avg_xga_per60 DOUBLE PRECISION NOT NULL DEFAULT 0,
	avg_save_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
	avg_shots_per60 DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (season, as_of_date)
)`,
	}

	games = table{
		name: "games",
		key:  []string{"game_id"},
		cols: []string{"season", "game_date", "home_team", "away_team", "market_win_prob_home",
			"market_win_prob_away", "home_goalie_id", "away_goalie_id", "completed"},
		ddl: `CREATE TABLE IF NOT EXISTS games (
	game_id TEXT PRIMARY KEY,
	season TEXT NOT NULL,
	game_date TEXT NOT NULL,
	home_team TEXT NOT NULL,
	away_team TEXT NOT NULL,
	market_win_prob_home DOUBLE PRECISION,
	market_win_prob_away DOUBLE PRECISION,
	home_goalie_id TEXT,
	away_goalie_id TEXT,
	completed BOOLEAN NOT NULL DEFAULT FALSE
)`,
	}

	outcomes = table{
		name: "outcomes",
		key:  []string{"player_id", "game_id"},
		cols: withStats("game_date", "position", "goalie_win"),
		ddl: `CREATE TABLE IF NOT EXISTS outcomes (
	player_id TEXT NOT NULL,
	game_id TEXT NOT NULL,
	game_date TEXT NOT NULL,
	position TEXT NOT NULL,
	goalie_win BOOLEAN,
` + statColumnsDDL() + `	PRIMARY KEY (player_id, game_id)
)`,
	}

	shots = table{
		name: "shots",
		key:  []string{"shot_id"},
		cols: []string{"game_id", "game_date", "shooter_id", "distance", "angle", "blocked", "is_goal",
			"xg_base", "xg_flurry", "xg_talent"},
		ddl: `CREATE TABLE IF NOT EXISTS shots (
	shot_id TEXT PRIMARY KEY,
	game_id TEXT NOT NULL,
	game_date TEXT NOT NULL,
	shooter_id TEXT NOT NULL,
	distance DOUBLE PRECISION NOT NULL DEFAULT 0,
	angle DOUBLE PRECISION NOT NULL DEFAULT 0,
	blocked BOOLEAN NOT NULL DEFAULT FALSE,
	is_goal BOOLEAN NOT NULL DEFAULT FALSE,
	xg_base DOUBLE PRECISION,
	xg_flurry DOUBLE PRECISION,
	xg_talent DOUBLE PRECISION
)`,
	}

	projections = table{
		name: "projections",
		key:  []string{"player_id", "game_id", "projection_date"},
		cols: withStats("position", "team", "opponent", "home", "total_points", "vopa", "confidence",
			"breakdown", "status"),
		ddl: `CREATE TABLE IF NOT EXISTS projections (
	player_id TEXT NOT NULL,
	game_id TEXT NOT NULL,
	projection_date TEXT NOT NULL,
	position TEXT NOT NULL,
	team TEXT NOT NULL,
	opponent TEXT NOT NULL,
	home BOOLEAN NOT NULL DEFAULT FALSE,
	total_points DOUBLE PRECISION NOT NULL,
	vopa DOUBLE PRECISION NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	breakdown TEXT NOT NULL,
	status TEXT NOT NULL,
` + statColumnsDDL() + `	PRIMARY KEY (player_id, game_id, projection_date)
)`,
	}

	allTables = []table{
		rateProfiles, leagueBaselines, shotAggregates, teamAggregates, goalieAggregates,
		leagueContexts, games, outcomes, shots, projections,
	}

	indexes = []string{
		`CREATE INDEX IF NOT EXISTS idx_games_date ON games (game_date)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_date ON outcomes (game_date)`,
		`CREATE INDEX IF NOT EXISTS idx_shots_date ON shots (game_date)`,
		`CREATE INDEX IF NOT EXISTS idx_projections_date ON projections (projection_date)`,
	}
)

// upsertQuery builds a named INSERT ... ON CONFLICT DO UPDATE statement,
// understood by both PostgreSQL and SQLite.
func (t table) upsertQuery() string {
	all := append(append([]string{}, t.key...), t.cols...)
	named := make([]string, len(all))
	for i, c := range all {
		named[i] = ":" + c
	}
	set := make([]string, len(t.cols))
	for i, c := range t.cols {
		set[i] = c + " = excluded." + c
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		t.name, strings.Join(all, ", "), strings.Join(named, ", "),
		strings.Join(t.key, ", "), strings.Join(set, ", "))
}

// asOfQuery selects, per entity key, the newest row stamped on or before
// the single bind parameter.
func (t table) asOfQuery() string {
	ids := t.key[:len(t.key)-1]
	on := make([]string, 0, len(t.key))
	order := make([]string, 0, len(ids))
	for _, k := range ids {
		on = append(on, fmt.Sprintf("t.%s = l.%s", k, k))
		order = append(order, "t."+k)
	}
	on = append(on, "t.as_of_date = l.as_of_date")
	return fmt.Sprintf(`SELECT t.* FROM %s t JOIN (
	SELECT %s, MAX(as_of_date) AS as_of_date FROM %s WHERE as_of_date <= ? GROUP BY %s
) l ON %s ORDER BY %s`,
		t.name, strings.Join(ids, ", "), t.name, strings.Join(ids, ", "),
		strings.Join(on, " AND "), strings.Join(order, ", "))
}

// rangeQuery selects rows whose date column lies within two bind parameters.
func (t table) rangeQuery(dateCol string, order ...string) string {
	return fmt.Sprintf("SELECT * FROM %s WHERE %s >= ? AND %s <= ? ORDER BY %s",
		t.name, dateCol, dateCol, strings.Join(order, ", "))
}
