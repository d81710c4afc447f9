// Package snapshot provides the immutable, point-in-time view of every
// aggregate a batch needs. A Snapshot is built once, shared by pointer
// between workers and never mutated afterwards.
package snapshot

import (
	"sort"
	"time"

	"github.com/okian/projector/internal/domain/model"
)

type baselineKey struct {
	position model.Position
	season   string
}

// Data is the raw material for a Snapshot.
type Data struct {
	Profiles  []model.RateProfile
	Baselines []model.LeagueBaseline
	Shots     []model.ShotAggregate
	Teams     []model.TeamAggregate
	Goalies   []model.GoalieAggregate
	Leagues   []model.LeagueContext
	Games     []model.GameContext
}

// Snapshot is a read-only, indexed view of Data as of one date.
type Snapshot struct {
	asOf time.Time
	from time.Time
	to   time.Time

	profiles  map[string]model.RateProfile
	baselines map[baselineKey]model.LeagueBaseline
	shots     map[string]model.ShotAggregate
	teams     map[string]model.TeamAggregate
	goalies   map[string]model.GoalieAggregate
	leagues   map[string]model.LeagueContext
	games     map[string]model.GameContext

	// schedule is every loaded game ordered by date then id.
	schedule []model.GameContext
	// stale lists rows stamped after asOf.
	stale []string
	// invalid lists rows that failed validation and were not indexed.
	invalid  []string
	rejected map[baselineKey]struct{}
}

// New indexes d. Games outside [from, to] are kept for back-to-back lookups
// but are not returned by Window. Later duplicates of the same key win.
// Baselines that fail validation are withheld and listed by Invalid.
func New(asOf, from, to time.Time, d Data) *Snapshot {
	s := &Snapshot{
		asOf:      model.Day(asOf),
		from:      model.Day(from),
		to:        model.Day(to),
		profiles:  make(map[string]model.RateProfile, len(d.Profiles)),
		baselines: make(map[baselineKey]model.LeagueBaseline, len(d.Baselines)),
		shots:     make(map[string]model.ShotAggregate, len(d.Shots)),
		teams:     make(map[string]model.TeamAggregate, len(d.Teams)),
		goalies:   make(map[string]model.GoalieAggregate, len(d.Goalies)),
		leagues:   make(map[string]model.LeagueContext, len(d.Leagues)),
		games:     make(map[string]model.GameContext, len(d.Games)),
		rejected:  make(map[baselineKey]struct{}),
	}

	for _, p := range d.Profiles {
		s.profiles[p.PlayerID] = p
		s.checkStamp("rate_profile", p.PlayerID, p.AsOf)
	}
	for _, b := range d.Baselines {
		key := baselineKey{b.Position, b.Season}
		id := string(b.Position) + "/" + b.Season
		s.checkStamp("league_baseline", id, b.AsOf)
		if err := b.Validate(); err != nil {
			delete(s.baselines, key)
			s.rejected[key] = struct{}{}
			s.invalid = append(s.invalid, "league_baseline:"+id+": "+err.Error())
			continue
		}
		delete(s.rejected, key)
		s.baselines[key] = b
	}
	for _, a := range d.Shots {
		s.shots[a.PlayerID] = a
		s.checkStamp("shot_aggregate", a.PlayerID, a.AsOf)
	}
	for _, t := range d.Teams {
		s.teams[t.Team] = t
		s.checkStamp("team_aggregate", t.Team, t.AsOf)
	}
	for _, g := range d.Goalies {
		s.goalies[g.GoalieID] = g
		s.checkStamp("goalie_aggregate", g.GoalieID, g.AsOf)
	}
	for _, l := range d.Leagues {
		s.leagues[l.Season] = l
		s.checkStamp("league_context", l.Season, l.AsOf)
	}
	for _, g := range d.Games {
		s.games[g.GameID] = g
	}

	s.schedule = make([]model.GameContext, 0, len(s.games))
	for _, g := range s.games {
		s.schedule = append(s.schedule, g)
	}
	sort.Slice(s.schedule, func(i, j int) bool {
		a, b := s.schedule[i], s.schedule[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.GameID < b.GameID
	})
	sort.Strings(s.stale)
	sort.Strings(s.invalid)
	return s
}

func (s *Snapshot) checkStamp(kind, id string, at time.Time) {
	if !at.IsZero() && model.Day(at).After(s.asOf) {
		s.stale = append(s.stale, kind+":"+id+"@"+at.Format(time.DateOnly))
	}
}

// AsOf returns the point-in-time date of the snapshot.
func (s *Snapshot) AsOf() time.Time { return s.asOf }

// Profile returns a player's rate profile.
func (s *Snapshot) Profile(playerID string) (model.RateProfile, bool) {
	p, ok := s.profiles[playerID]
	return p, ok
}

// Baseline returns the league baseline for a position and season. Wings
// share a baseline when only one of them is present. A position whose own
// baseline was rejected has none.
func (s *Snapshot) Baseline(pos model.Position, season string) (model.LeagueBaseline, bool) {
	if _, bad := s.rejected[baselineKey{pos, season}]; bad {
		return model.LeagueBaseline{}, false
	}
	if b, ok := s.baselines[baselineKey{pos, season}]; ok {
		return b, true
	}
	if pos.IsWing() {
		for _, alt := range []model.Position{model.LeftWing, model.RightWing} {
			if b, ok := s.baselines[baselineKey{alt, season}]; ok {
				return b, true
			}
		}
	}
	return model.LeagueBaseline{}, false
}

// Shots returns a player's shot aggregate, or nil.
func (s *Snapshot) Shots(playerID string) *model.ShotAggregate {
	a, ok := s.shots[playerID]
	if !ok {
		return nil
	}
	return &a
}

// Team returns a team's trailing aggregate, or nil.
func (s *Snapshot) Team(team string) *model.TeamAggregate {
	t, ok := s.teams[team]
	if !ok {
		return nil
	}
	return &t
}

// Goalie returns a goaltender's aggregate, or nil.
func (s *Snapshot) Goalie(goalieID string) *model.GoalieAggregate {
	g, ok := s.goalies[goalieID]
	if !ok {
		return nil
	}
	return &g
}

// League returns the league context for a season.
func (s *Snapshot) League(season string) (model.LeagueContext, bool) {
	l, ok := s.leagues[season]
	return l, ok
}

// Game returns one scheduled game.
func (s *Snapshot) Game(gameID string) (model.GameContext, bool) {
	g, ok := s.games[gameID]
	return g, ok
}

// Schedule returns every loaded game in date order. The slice is shared and
// must not be modified.
func (s *Snapshot) Schedule() []model.GameContext { return s.schedule }

// Window returns the games dated within the batch range.
func (s *Snapshot) Window() []model.GameContext {
	var out []model.GameContext
	for _, g := range s.schedule {
		d := model.Day(g.Date)
		if !d.Before(s.from) && !d.After(s.to) {
			out = append(out, g)
		}
	}
	return out
}

// Roster returns skater profiles on team, ordered by player id.
func (s *Snapshot) Roster(team string) []model.RateProfile {
	var out []model.RateProfile
	for _, p := range s.profiles {
		if p.Team == team && !p.Position.IsGoalie() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out
}

// Goaltenders returns goalie aggregates on team, ordered by goalie id.
func (s *Snapshot) Goaltenders(team string) []model.GoalieAggregate {
	var out []model.GoalieAggregate
	for _, g := range s.goalies {
		if g.Team == team {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GoalieID < out[j].GoalieID })
	return out
}

// Stale lists rows stamped after the snapshot date. A non-empty result
// means the source leaked future data into a point-in-time read.
func (s *Snapshot) Stale() []string {
	out := make([]string, len(s.stale))
	copy(out, s.stale)
	return out
}

// Invalid lists rows withheld because they failed validation.
func (s *Snapshot) Invalid() []string {
	out := make([]string, len(s.invalid))
	copy(out, s.invalid)
	return out
}

// Size returns the number of indexed rows, for logging.
func (s *Snapshot) Size() int {
	return len(s.profiles) + len(s.baselines) + len(s.shots) + len(s.teams) +
		len(s.goalies) + len(s.leagues) + len(s.games)
}
