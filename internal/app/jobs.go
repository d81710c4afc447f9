package service

import (
	"github.com/okian/projector/internal/domain/model"
	"github.com/okian/projector/internal/domain/snapshot"
)

// Jobs enumerates the (player, game) units for every game in the snapshot
// window: each rostered skater of both teams, plus the probable starting
// goaltender of each side or, when no starter is named, every goaltender on
// that team. Keys may repeat; the caller de-duplicates.
func Jobs(snap *snapshot.Snapshot) []model.Job {
	var jobs []model.Job
	for _, g := range snap.Window() {
		for _, team := range []string{g.HomeTeam, g.AwayTeam} {
			req := func(player string) model.Request {
				return model.Request{PlayerID: player, GameID: g.GameID, GameDate: g.Date, Season: g.Season}
			}
			for _, p := range snap.Roster(team) {
				jobs = append(jobs, model.Job{Request: req(p.PlayerID)})
			}
			if starter := g.StartingGoalie(team); starter != "" {
				jobs = append(jobs, model.Job{Request: req(starter), Goalie: true})
				continue
			}
			for _, gl := range snap.Goaltenders(team) {
				jobs = append(jobs, model.Job{Request: req(gl.GoalieID), Goalie: true})
			}
		}
	}
	return jobs
}
