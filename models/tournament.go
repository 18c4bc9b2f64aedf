package models

import (
	"fmt"
	"sort"
)

// Match lifecycle statuses.
const (
	MatchLoading    = "loading"
	MatchInProgress = "in_progress"
	MatchCompleted  = "completed"
)

// Bracket tags for later-round sub-brackets.
const (
	BracketWinners = "winners"
	BracketLosers  = "losers"
)

// Tournament states.
const (
	StateSetup         = "setup"
	StateRoundActive   = "round_active"
	StateRoundComplete = "round_complete"
	StateFinished      = "finished"
)

// Tournament modes.
const (
	// ModeContinuous keeps everyone playing: losers meet losers in a
	// consolation sub-bracket and standings decide the outcome.
	ModeContinuous = "continuous"
	// ModeKnockout deactivates losers; only winners advance.
	ModeKnockout = "knockout"
)

// MatchSide is one contestant's view of a match. Handle and judge id are
// denormalized from the roster at pairing time.
type MatchSide struct {
	Handle         string `json:"handle"`
	JudgeID        string `json:"judge_id"`
	Solved         bool   `json:"solved"`
	SolvedAt       int64  `json:"solved_at,omitempty"`
	ElapsedSeconds int64  `json:"elapsed_seconds,omitempty"`
}

// Match is an ordered pair of contestants racing on one problem. The pairing
// is immutable once created; only status, solved/time fields, and the winner
// mutate.
type Match struct {
	ID      string    `json:"id"`
	SideA   MatchSide `json:"side_a"`
	SideB   MatchSide `json:"side_b"`
	Problem *Problem  `json:"problem"`
	Status  string    `json:"status"`
	Bracket string    `json:"bracket,omitempty"`
	Winner  string    `json:"winner,omitempty"`
	Loser   string    `json:"loser,omitempty"`
}

// HasSide reports whether handle plays in this match.
func (m *Match) HasSide(handle string) bool {
	return m.SideA.Handle == handle || m.SideB.Handle == handle
}

// Round is an ordered list of matches plus its start time, the reference
// point for solve detection.
type Round struct {
	Index     int      `json:"index"`
	StartedAt int64    `json:"started_at"`
	Matches   []*Match `json:"matches"`
	// Bye is the handle granted an automatic advance when the eligible
	// roster was odd. Empty otherwise.
	Bye string `json:"bye,omitempty"`
}

// Completed reports whether every match in the round is decided.
func (r *Round) Completed() bool {
	for _, m := range r.Matches {
		if m.Status != MatchCompleted {
			return false
		}
	}
	return true
}

// MatchByID returns the match with the given id, or nil.
func (r *Round) MatchByID(id string) *Match {
	for _, m := range r.Matches {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// Tournament is the single active aggregate: roster, round history, and the
// problem ids already handed out this event.
type Tournament struct {
	Name             string          `json:"name"`
	Slug             string          `json:"slug"`
	Mode             string          `json:"mode"`
	State            string          `json:"state"`
	MaxRounds        int             `json:"max_rounds"`
	CurrentRound     int             `json:"current_round"`
	Completed        bool            `json:"completed"`
	StartedAt        int64           `json:"started_at"`
	Contestants      []*Contestant   `json:"contestants"`
	Rounds           []*Round        `json:"rounds"`
	AssignedProblems map[string]bool `json:"assigned_problems"`
}

// Current returns the round pointed at by CurrentRound, or nil before the
// first round exists.
func (t *Tournament) Current() *Round {
	if t.CurrentRound < 0 || t.CurrentRound >= len(t.Rounds) {
		return nil
	}
	return t.Rounds[t.CurrentRound]
}

// ContestantByHandle returns the roster entry for handle, or nil.
func (t *Tournament) ContestantByHandle(handle string) *Contestant {
	for _, c := range t.Contestants {
		if c.Handle == handle {
			return c
		}
	}
	return nil
}

// Standings returns the roster ranked for the leaderboard: rating descending,
// then wins, then registration order.
func (t *Tournament) Standings() []*Contestant {
	ranked := make([]*Contestant, len(t.Contestants))
	copy(ranked, t.Contestants)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Rating != ranked[j].Rating {
			return ranked[i].Rating > ranked[j].Rating
		}
		if ranked[i].Wins != ranked[j].Wins {
			return ranked[i].Wins > ranked[j].Wins
		}
		return ranked[i].Seed < ranked[j].Seed
	})
	return ranked
}

// Validate checks the aggregate invariants. Called after a snapshot load
// before polling resumes.
func (t *Tournament) Validate() error {
	if len(t.Contestants) < 2 {
		return fmt.Errorf("roster has %d contestants, need at least 2", len(t.Contestants))
	}
	if t.MaxRounds < 1 {
		return fmt.Errorf("invalid round count %d", t.MaxRounds)
	}
	switch t.State {
	case StateSetup, StateRoundActive, StateRoundComplete, StateFinished:
	default:
		return fmt.Errorf("unknown state %q", t.State)
	}
	if t.State != StateSetup {
		if t.CurrentRound < 0 || t.CurrentRound >= len(t.Rounds) {
			return fmt.Errorf("current round %d out of range (%d rounds)", t.CurrentRound, len(t.Rounds))
		}
	}
	for _, r := range t.Rounds {
		for _, m := range r.Matches {
			if m.Problem == nil && m.Status != MatchLoading {
				return fmt.Errorf("match %s in round %d has no problem", m.ID, r.Index)
			}
			if t.ContestantByHandle(m.SideA.Handle) == nil || t.ContestantByHandle(m.SideB.Handle) == nil {
				return fmt.Errorf("match %s references an unknown contestant", m.ID)
			}
		}
	}
	// Every round before the current one must be closed out.
	for i := 0; i < t.CurrentRound; i++ {
		if !t.Rounds[i].Completed() {
			return fmt.Errorf("round %d is not completed but round %d exists", i, t.CurrentRound)
		}
	}
	if t.AssignedProblems == nil {
		t.AssignedProblems = make(map[string]bool)
	}
	return nil
}
