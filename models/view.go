package models

// TournamentView is the render-model snapshot handed to the UI after every
// state change. The UI renders it as-is; it never reaches back into the
// aggregate.
type TournamentView struct {
	Name         string          `json:"name"`
	Mode         string          `json:"mode"`
	State        string          `json:"state"`
	CurrentRound int             `json:"current_round"`
	MaxRounds    int             `json:"max_rounds"`
	Completed    bool            `json:"completed"`
	Rounds       []*Round        `json:"rounds"`
	Leaderboard  []StandingEntry `json:"leaderboard"`
	Champion     string          `json:"champion,omitempty"`
	Version      int64           `json:"version"`
}

// StandingEntry is one leaderboard row.
type StandingEntry struct {
	Rank    int    `json:"rank"`
	Handle  string `json:"handle"`
	JudgeID string `json:"judge_id"`
	Wins    int    `json:"wins"`
	Losses  int    `json:"losses"`
	Matches int    `json:"matches"`
	Rating  int    `json:"rating"`
	Active  bool   `json:"active"`
}

// View builds the render snapshot. version is stamped by the caller so SSE
// consumers can de-duplicate.
//
// The snapshot is detached: rounds and matches are copied, so handlers and
// the SSE stream can marshal it after the aggregate lock is released while
// polling keeps mutating the originals. Problem pointers stay shared since a
// Problem never changes after allocation.
func (t *Tournament) View(version int64) *TournamentView {
	rounds := make([]*Round, len(t.Rounds))
	for i, r := range t.Rounds {
		rc := *r
		rc.Matches = make([]*Match, len(r.Matches))
		for j, m := range r.Matches {
			mc := *m
			rc.Matches[j] = &mc
		}
		rounds[i] = &rc
	}

	v := &TournamentView{
		Name:         t.Name,
		Mode:         t.Mode,
		State:        t.State,
		CurrentRound: t.CurrentRound,
		MaxRounds:    t.MaxRounds,
		Completed:    t.Completed,
		Rounds:       rounds,
		Version:      version,
	}
	for i, c := range t.Standings() {
		v.Leaderboard = append(v.Leaderboard, StandingEntry{
			Rank:    i + 1,
			Handle:  c.Handle,
			JudgeID: c.JudgeID,
			Wins:    c.Wins,
			Losses:  c.Losses,
			Matches: c.Matches,
			Rating:  c.Rating,
			Active:  c.Active,
		})
	}
	if t.Completed && len(v.Leaderboard) > 0 {
		v.Champion = v.Leaderboard[0].Handle
	}
	return v
}
