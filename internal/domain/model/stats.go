// Package model defines the core value types shared by the projection engine,
// the batch runner and the validators.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Stat identifies one tracked fantasy category.
type Stat int

// Tracked categories. Skater stats come first, goalie stats last.
const (
	Goals Stat = iota
	Assists
	ShotsOnGoal
	Blocks
	PowerPlayPoints
	ShortHandedPoints
	Hits
	PenaltyMinutes
	Wins
	Saves
	GoalsAgainst
	Shutouts

	numStats
)

var statNames = [numStats]string{
	Goals:             "goals",
	Assists:           "assists",
	ShotsOnGoal:       "shots_on_goal",
	Blocks:            "blocks",
	PowerPlayPoints:   "power_play_points",
	ShortHandedPoints: "short_handed_points",
	Hits:              "hits",
	PenaltyMinutes:    "penalty_minutes",
	Wins:              "wins",
	Saves:             "saves",
	GoalsAgainst:      "goals_against",
	Shutouts:          "shutouts",
}

// SkaterStats lists the categories a skater accrues.
var SkaterStats = []Stat{Goals, Assists, ShotsOnGoal, Blocks, PowerPlayPoints, ShortHandedPoints, Hits, PenaltyMinutes}

// GoalieStats lists the categories a goaltender accrues.
var GoalieStats = []Stat{Wins, Saves, GoalsAgainst, Shutouts}

// AllStats lists every category in declaration order.
func AllStats() []Stat {
	out := make([]Stat, 0, numStats)
	for s := Stat(0); s < numStats; s++ {
		out = append(out, s)
	}
	return out
}

// String returns the stable snake_case name used in configs and tables.
func (s Stat) String() string {
	if s < 0 || s >= numStats {
		return fmt.Sprintf("stat(%d)", int(s))
	}
	return statNames[s]
}

// ParseStat resolves a category name. Common short aliases are accepted.
func ParseStat(name string) (Stat, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "g":
		return Goals, true
	case "a":
		return Assists, true
	case "sog", "shots":
		return ShotsOnGoal, true
	case "blk":
		return Blocks, true
	case "ppp":
		return PowerPlayPoints, true
	case "shp":
		return ShortHandedPoints, true
	case "pim":
		return PenaltyMinutes, true
	case "w":
		return Wins, true
	case "sv":
		return Saves, true
	case "ga":
		return GoalsAgainst, true
	case "so":
		return Shutouts, true
	}
	for i, s := range statNames {
		if s == n {
			return Stat(i), true
		}
	}
	return 0, false
}

// StatLine holds one value per tracked category. It is a plain value type;
// every operation returns a new line.
type StatLine [numStats]float64

// Get returns the value for s.
func (l StatLine) Get(s Stat) float64 { return l[s] }

// With returns a copy of l with s set to v.
func (l StatLine) With(s Stat, v float64) StatLine {
	l[s] = v
	return l
}

// Scale multiplies every category by f.
func (l StatLine) Scale(f float64) StatLine {
	for i := range l {
		l[i] *= f
	}
	return l
}

// Div divides every category by d. Division by zero yields a zero line.
func (l StatLine) Div(d float64) StatLine {
	if d == 0 {
		return StatLine{}
	}
	return l.Scale(1 / d)
}

// Add sums two lines category by category.
func (l StatLine) Add(o StatLine) StatLine {
	for i := range l {
		l[i] += o[i]
	}
	return l
}

// Dot returns the weighted sum of the line against weights.
func (l StatLine) Dot(weights StatLine) float64 {
	var total float64
	for i := range l {
		total += l[i] * weights[i]
	}
	return total
}

// Negative returns the first category with a negative value.
func (l StatLine) Negative() (Stat, bool) {
	for i, v := range l {
		if v < 0 {
			return Stat(i), true
		}
	}
	return 0, false
}

// Map returns the line as a name-keyed map, used for JSON reports.
func (l StatLine) Map() map[string]float64 {
	out := make(map[string]float64, numStats)
	for i, v := range l {
		out[statNames[i]] = v
	}
	return out
}

// MarshalJSON encodes the line as an object keyed by category name.
func (l StatLine) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Map())
}

// UnmarshalJSON decodes an object keyed by category name. Unknown keys are rejected.
func (l *StatLine) UnmarshalJSON(b []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	var out StatLine
	for k, v := range m {
		s, ok := ParseStat(k)
		if !ok {
			return fmt.Errorf("%w: unknown stat %q", ErrInvalidInput, k)
		}
		out[s] = v
	}
	*l = out
	return nil
}

// Position is a roster position.
type Position string

// Known positions.
const (
	Center     Position = "C"
	LeftWing   Position = "LW"
	RightWing  Position = "RW"
	Defenseman Position = "D"
	Goalie     Position = "G"
)

// ParsePosition normalizes a position code. A bare "W" or "F" maps to left wing.
func ParsePosition(s string) (Position, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "C":
		return Center, nil
	case "LW", "L", "W", "F":
		return LeftWing, nil
	case "RW", "R":
		return RightWing, nil
	case "D":
		return Defenseman, nil
	case "G":
		return Goalie, nil
	}
	return "", fmt.Errorf("%w: position %q", ErrInvalidInput, s)
}

// IsGoalie reports whether p is the goaltender position.
func (p Position) IsGoalie() bool { return p == Goalie }

// IsWing reports whether p is either wing.
func (p Position) IsWing() bool { return p == LeftWing || p == RightWing }
