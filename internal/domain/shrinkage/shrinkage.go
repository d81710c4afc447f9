// Package shrinkage blends a player's observed rates toward league averages
// with a weight that grows with sample size.
package shrinkage

import (
	"github.com/okian/projector/internal/domain/model"
)

// Weight curve constants.
const (
	MinWeight     = 0.20
	MaxWeight     = 0.90
	minGames      = 10
	fullGames     = 30
	weightPerGame = 0.035
)

// Weight returns the player's share of the blend for gp games played.
// It is 0.20 below 10 games, 0.90 from 30 games, and linear in between.
func Weight(gp int) float64 {
	switch {
	case gp < minGames:
		return MinWeight
	case gp >= fullGames:
		return MaxWeight
	}
	return MinWeight + float64(gp-minGames)*weightPerGame
}

// Blend mixes one player rate with one league rate.
func Blend(player, league, w float64) float64 {
	return w*player + (1-w)*league
}

// BlendLine applies Blend to every category.
func BlendLine(player, league model.StatLine, w float64) model.StatLine {
	var out model.StatLine
	for i := range out {
		out[i] = Blend(player[i], league[i], w)
	}
	return out
}

// Base returns the blended per-game rates for a profile and the weight used.
// A player without games contributes zero, so the result is (1-w) of league.
func Base(p model.RateProfile, league model.LeagueBaseline) (model.StatLine, float64) {
	w := Weight(p.GamesPlayed)
	return BlendLine(p.PerGame(), league.AvgPerGame, w), w
}
