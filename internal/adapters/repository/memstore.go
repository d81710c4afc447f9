package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/projector/internal/domain/model"
)

// versions keeps every stamped version of each keyed row, oldest first.
type versions[T any] struct {
	key  func(T) string
	asOf func(T) time.Time
	rows map[string][]T
}

func newVersions[T any](key func(T) string, asOf func(T) time.Time) *versions[T] {
	return &versions[T]{key: key, asOf: asOf, rows: make(map[string][]T)}
}

// put inserts r, replacing a version with the same key and date.
func (v *versions[T]) put(r T) {
	k, at := v.key(r), model.Day(v.asOf(r))
	list := v.rows[k]
	i := sort.Search(len(list), func(i int) bool { return !model.Day(v.asOf(list[i])).Before(at) })
	if i < len(list) && model.Day(v.asOf(list[i])).Equal(at) {
		list[i] = r
		return
	}
	list = append(list, r)
	copy(list[i+1:], list[i:])
	list[i] = r
	v.rows[k] = list
}

// at returns the newest version of every key stamped on or before asOf,
// ordered by key.
func (v *versions[T]) at(asOf time.Time) []T {
	day := model.Day(asOf)
	keys := make([]string, 0, len(v.rows))
	for k := range v.rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]T, 0, len(keys))
	for _, k := range keys {
		list := v.rows[k]
		i := sort.Search(len(list), func(i int) bool { return model.Day(v.asOf(list[i])).After(day) })
		if i > 0 {
			out = append(out, list[i-1])
		}
	}
	return out
}

// MemStore is an in-memory Store. Aggregates are versioned by their as-of
// date so point-in-time reads behave like the SQL store.
type MemStore struct {
	mu sync.RWMutex

	profiles  *versions[model.RateProfile]
	baselines *versions[model.LeagueBaseline]
	shotAggs  *versions[model.ShotAggregate]
	teams     *versions[model.TeamAggregate]
	goalies   *versions[model.GoalieAggregate]
	leagues   *versions[model.LeagueContext]

	games       map[string]model.GameContext
	outcomes    map[string]model.Outcome
	shots       map[string]model.Shot
	projections map[string]model.Projection
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		profiles: newVersions(
			func(r model.RateProfile) string { return r.PlayerID },
			func(r model.RateProfile) time.Time { return r.AsOf }),
		baselines: newVersions(
			func(r model.LeagueBaseline) string { return string(r.Position) + "|" + r.Season },
			func(r model.LeagueBaseline) time.Time { return r.AsOf }),
		shotAggs: newVersions(
			func(r model.ShotAggregate) string { return r.PlayerID },
			func(r model.ShotAggregate) time.Time { return r.AsOf }),
		teams: newVersions(
			func(r model.TeamAggregate) string { return r.Team },
			func(r model.TeamAggregate) time.Time { return r.AsOf }),
		goalies: newVersions(
			func(r model.GoalieAggregate) string { return r.GoalieID },
			func(r model.GoalieAggregate) time.Time { return r.AsOf }),
		leagues: newVersions(
			func(r model.LeagueContext) string { return r.Season },
			func(r model.LeagueContext) time.Time { return r.AsOf }),
		games:       make(map[string]model.GameContext),
		outcomes:    make(map[string]model.Outcome),
		shots:       make(map[string]model.Shot),
		projections: make(map[string]model.Projection),
	}
}

// Import loads d.
func (s *MemStore) Import(_ context.Context, d Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range d.Profiles {
		s.profiles.put(r)
	}
	for _, r := range d.Baselines {
		s.baselines.put(r)
	}
	for _, r := range d.Shots {
		s.shotAggs.put(r)
	}
	for _, r := range d.Teams {
		s.teams.put(r)
	}
	for _, r := range d.Goalies {
		s.goalies.put(r)
	}
	for _, r := range d.Leagues {
		s.leagues.put(r)
	}
	for _, g := range d.Games {
		s.games[g.GameID] = g
	}
	for _, o := range d.Outcomes {
		s.outcomes[o.PlayerID+"|"+o.GameID] = o
	}
	for _, sh := range d.ShotLog {
		s.shots[sh.ShotID] = sh
	}
	return nil
}

func (s *MemStore) RateProfiles(_ context.Context, asOf time.Time) ([]model.RateProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profiles.at(asOf), nil
}

func (s *MemStore) LeagueBaselines(_ context.Context, asOf time.Time) ([]model.LeagueBaseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baselines.at(asOf), nil
}

func (s *MemStore) ShotAggregates(_ context.Context, asOf time.Time) ([]model.ShotAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shotAggs.at(asOf), nil
}

func (s *MemStore) TeamAggregates(_ context.Context, asOf time.Time) ([]model.TeamAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.teams.at(asOf), nil
}

func (s *MemStore) GoalieAggregates(_ context.Context, asOf time.Time) ([]model.GoalieAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.goalies.at(asOf), nil
}

func (s *MemStore) LeagueContexts(_ context.Context, asOf time.Time) ([]model.LeagueContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.leagues.at(asOf), nil
}

// Games returns games dated within [from, to] ordered by date then id.
func (s *MemStore) Games(_ context.Context, from, to time.Time) ([]model.GameContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.GameContext
	for _, g := range s.games {
		if inRange(g.Date, from, to) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].GameID < out[j].GameID
	})
	return out, nil
}

// UpsertBatch stores every projection, replacing rows with the same key.
func (s *MemStore) UpsertBatch(_ context.Context, batch []model.Projection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range batch {
		p.Date = model.Day(p.Date)
		s.projections[p.Key.String()] = p
	}
	return nil
}

// Projections returns stored projections within [from, to] ordered by key.
func (s *MemStore) Projections(_ context.Context, from, to time.Time) ([]model.Projection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Projection
	for _, p := range s.projections {
		if inRange(p.Date, from, to) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out, nil
}

// Outcomes returns realized results within [from, to] ordered by date, game and player.
func (s *MemStore) Outcomes(_ context.Context, from, to time.Time) ([]model.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Outcome
	for _, o := range s.outcomes {
		if inRange(o.Date, from, to) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a := model.Key{PlayerID: out[i].PlayerID, GameID: out[i].GameID, Date: out[i].Date}
		b := model.Key{PlayerID: out[j].PlayerID, GameID: out[j].GameID, Date: out[j].Date}
		return a.Less(b)
	})
	return out, nil
}

// Shots returns shot events within [from, to] ordered by id.
func (s *MemStore) Shots(_ context.Context, from, to time.Time) ([]model.Shot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Shot
	for _, sh := range s.shots {
		if inRange(sh.Date, from, to) {
			out = append(out, sh)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShotID < out[j].ShotID })
	return out, nil
}

// Len returns the number of stored projections.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.projections)
}

// Close is a no-op.
func (s *MemStore) Close() error { return nil }
