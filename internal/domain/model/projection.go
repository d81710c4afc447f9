package model

import (
	"strings"
	"time"
)

// Key identifies one projection row.
type Key struct {
	PlayerID string    `json:"player_id"`
	GameID   string    `json:"game_id"`
	Date     time.Time `json:"projection_date"`
}

// Less orders keys by date, game and player.
func (k Key) Less(o Key) bool {
	if !k.Date.Equal(o.Date) {
		return k.Date.Before(o.Date)
	}
	if k.GameID != o.GameID {
		return k.GameID < o.GameID
	}
	return k.PlayerID < o.PlayerID
}

// String renders the key for logs and dedupe.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(k.PlayerID)
	b.WriteByte('|')
	b.WriteString(k.GameID)
	b.WriteByte('|')
	b.WriteString(k.Date.Format(time.DateOnly))
	return b.String()
}

// Request asks for one player's projection in one game. Season defaults to
// the game's season when empty.
type Request struct {
	PlayerID string
	GameID   string
	GameDate time.Time
	Season   string
}

// Status is the gate decision attached to a persisted projection.
type Status string

// Gate tiers.
const (
	StatusValid    Status = "valid"
	StatusReview   Status = "review"
	StatusRejected Status = "rejected"
)

// Breakdown records every multiplier applied to a projection.
type Breakdown struct {
	ShrinkageWeight  float64 `json:"shrinkage_weight"`
	TalentMultiplier float64 `json:"talent_multiplier"`
	TeamMultiplier   float64 `json:"team_multiplier"`
	GoalieMultiplier float64 `json:"goalie_multiplier"`
	DDR              float64 `json:"ddr"`
	BackToBack       float64 `json:"back_to_back"`
	HomeAway         float64 `json:"home_away"`
	ExpectedGoals    float64 `json:"expected_goals"`
	ProjectedTOI     float64 `json:"projected_toi"`
	SavePct          float64 `json:"save_pct,omitempty"`
	GAA              float64 `json:"gaa,omitempty"`
	GSAxFactor       float64 `json:"gsax_factor,omitempty"`
	WinProbSource    string  `json:"win_prob_source,omitempty"`
	// Defaulted names the components that fell back to a neutral value.
	Defaulted []string `json:"defaulted,omitempty"`
}

// Projection is the per-player, per-game engine output.
type Projection struct {
	Key
	Position    Position  `json:"position"`
	Team        string    `json:"team"`
	Opponent    string    `json:"opponent"`
	Home        bool      `json:"home"`
	Stats       StatLine  `json:"stats"`
	TotalPoints float64   `json:"total_points"`
	VOPA        float64   `json:"vopa"`
	Confidence  float64   `json:"confidence"`
	Breakdown   Breakdown `json:"breakdown"`
	Status      Status    `json:"status"`
}

// WinProbability returns the projected win probability for goaltenders.
func (p Projection) WinProbability() float64 { return p.Stats.Get(Wins) }

// Job is one (player, game) unit of batch work.
type Job struct {
	Request
	Goalie bool
}

// Key returns the key of the projection the job produces.
func (j Job) Key() Key {
	return Key{PlayerID: j.PlayerID, GameID: j.GameID, Date: Day(j.GameDate)}
}
