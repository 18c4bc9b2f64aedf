// services/resolver.go
package services

import (
	"context"
	"log"
	"sync"

	"duel-arena-system/models"

	"golang.org/x/sync/errgroup"
)

// Reasons recorded on a state change.
const (
	ReasonSolved   = "solved"
	ReasonTieBreak = "tie_break"
	ReasonOverride = "override"
)

// StateChange describes one match decision produced by a poll or an override.
type StateChange struct {
	MatchID string `json:"match_id"`
	Winner  string `json:"winner"`
	Loser   string `json:"loser"`
	Reason  string `json:"reason"`
}

// MatchResolver infers match outcomes from fresh judge data.
type MatchResolver struct {
	Judge SubmissionSource
}

func NewMatchResolver(judge SubmissionSource) *MatchResolver {
	return &MatchResolver{Judge: judge}
}

// FetchRoundSets fetches the accepted-submission set for every distinct
// contestant with an in-progress match, fanned out in parallel and joined
// before evaluation. Submissions are fetched from the round start, so solves
// predating the round never count. Individual failures degrade to empty sets.
func (mr *MatchResolver) FetchRoundSets(ctx context.Context, round *models.Round) map[string]map[string]int64 {
	distinct := make(map[string]bool)
	for _, m := range round.Matches {
		if m.Status != models.MatchInProgress {
			continue
		}
		distinct[m.SideA.JudgeID] = true
		distinct[m.SideB.JudgeID] = true
	}

	sets := make(map[string]map[string]int64, len(distinct))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for judgeID := range distinct {
		judgeID := judgeID
		g.Go(func() error {
			accepted := mr.Judge.FetchAcceptedProblemIDs(gctx, judgeID, round.StartedAt)
			mu.Lock()
			sets[judgeID] = accepted
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // fetches never return errors, they fail soft
	return sets
}

// Evaluate applies fetched submission sets to the round's in-progress matches
// and decides winners. The caller must hold the aggregate lock.
//
// Winner rule, checked each poll: exactly one side solved wins immediately;
// both solved compares elapsed time; equal elapsed goes to side A, the
// first-checked side.
func (mr *MatchResolver) Evaluate(t *models.Tournament, round *models.Round, sets map[string]map[string]int64) []StateChange {
	var changes []StateChange
	for _, m := range round.Matches {
		if m.Status != models.MatchInProgress || m.Problem == nil {
			continue
		}

		markSolved(&m.SideA, m.Problem.ID, round.StartedAt, sets[m.SideA.JudgeID])
		markSolved(&m.SideB, m.Problem.ID, round.StartedAt, sets[m.SideB.JudgeID])

		switch {
		case m.SideA.Solved && m.SideB.Solved:
			winner := m.SideA.Handle
			if m.SideB.ElapsedSeconds < m.SideA.ElapsedSeconds {
				winner = m.SideB.Handle
			}
			changes = append(changes, mr.Resolve(t, m, winner, ReasonTieBreak))
		case m.SideA.Solved:
			changes = append(changes, mr.Resolve(t, m, m.SideA.Handle, ReasonSolved))
		case m.SideB.Solved:
			changes = append(changes, mr.Resolve(t, m, m.SideB.Handle, ReasonSolved))
		}
	}
	return changes
}

// Resolve transitions a match to completed and updates both contestants'
// running stats. Manual overrides go through this same path, so a forced
// result is indistinguishable from a detected one. Resolving an already
// completed match is a no-op: repeated polls never re-increment stats.
func (mr *MatchResolver) Resolve(t *models.Tournament, m *models.Match, winnerHandle, reason string) StateChange {
	if m.Status == models.MatchCompleted {
		return StateChange{MatchID: m.ID, Winner: m.Winner, Loser: m.Loser, Reason: reason}
	}

	loserHandle := m.SideA.Handle
	if winnerHandle == m.SideA.Handle {
		loserHandle = m.SideB.Handle
	}

	m.Status = models.MatchCompleted
	m.Winner = winnerHandle
	m.Loser = loserHandle

	if winner := t.ContestantByHandle(winnerHandle); winner != nil {
		winner.Wins++
		winner.Matches++
		winner.Rating += models.RatingIncrement
	}
	if loser := t.ContestantByHandle(loserHandle); loser != nil {
		loser.Losses++
		loser.Matches++
		if t.Mode == models.ModeKnockout {
			loser.Active = false
		}
	}

	log.Printf("[RESOLVE] 🏁 match %s: %s beats %s (%s)", m.ID, winnerHandle, loserHandle, reason)
	return StateChange{MatchID: m.ID, Winner: winnerHandle, Loser: loserHandle, Reason: reason}
}

// markSolved flips a side to solved the first time its accepted set contains
// the match problem at or after the round start.
func markSolved(side *models.MatchSide, problemID string, roundStart int64, accepted map[string]int64) {
	if side.Solved || accepted == nil {
		return
	}
	epoch, ok := accepted[problemID]
	if !ok || epoch < roundStart {
		return
	}
	side.Solved = true
	side.SolvedAt = epoch
	side.ElapsedSeconds = epoch - roundStart
}
