// services/bracket.go
package services

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"duel-arena-system/models"

	"github.com/google/uuid"
)

// BracketBuilder produces the matches for one round. Round 1 pairs a shuffled
// roster; later rounds pair by sorted adjacency so closest standings meet.
//
// Odd rosters: the leftover contestant gets a bye, an automatic advance with
// no stat changes. Silently dropping a registrant is not an option.
type BracketBuilder struct {
	Allocator *ProblemAllocator
	// shuffle is swappable for deterministic tests.
	shuffle func(n int, swap func(i, j int))
}

func NewBracketBuilder(allocator *ProblemAllocator) *BracketBuilder {
	return &BracketBuilder{Allocator: allocator, shuffle: rand.Shuffle}
}

// BuildRound creates the round at roundIndex for the tournament. Every match
// has its problem allocated (or the documented fallback) before the round is
// returned; the state machine never sees a half-built round.
func (bb *BracketBuilder) BuildRound(ctx context.Context, t *models.Tournament, roundIndex int) *models.Round {
	roster := bb.eligible(t, roundIndex)

	round := &models.Round{
		Index:     roundIndex,
		StartedAt: time.Now().Unix(),
	}

	if len(roster)%2 != 0 && len(roster) > 0 {
		// Last position after shuffling/sorting sits out with a bye.
		round.Bye = roster[len(roster)-1].Handle
		roster = roster[:len(roster)-1]
	}

	maxWins := 0
	for _, c := range t.Contestants {
		if c.Wins > maxWins {
			maxWins = c.Wins
		}
	}

	for i := 0; i+1 < len(roster); i += 2 {
		a, b := roster[i], roster[i+1]
		match := &models.Match{
			ID:     uuid.NewString(),
			SideA:  models.MatchSide{Handle: a.Handle, JudgeID: a.JudgeID},
			SideB:  models.MatchSide{Handle: b.Handle, JudgeID: b.JudgeID},
			Status: models.MatchLoading,
		}
		if roundIndex > 0 {
			if a.Wins == maxWins && b.Wins == maxWins {
				match.Bracket = models.BracketWinners
			} else {
				match.Bracket = models.BracketLosers
			}
		}
		match.Problem = bb.Allocator.Allocate(ctx, a, b, roundIndex, t.MaxRounds, t.AssignedProblems)
		match.Status = models.MatchInProgress
		round.Matches = append(round.Matches, match)
	}

	return round
}

// eligible returns the contestants playing this round in pairing order.
func (bb *BracketBuilder) eligible(t *models.Tournament, roundIndex int) []*models.Contestant {
	var roster []*models.Contestant
	for _, c := range t.Contestants {
		if roundIndex == 0 || t.Mode == models.ModeContinuous || c.Active {
			roster = append(roster, c)
		}
	}

	if roundIndex == 0 {
		shuffled := make([]*models.Contestant, len(roster))
		copy(shuffled, roster)
		bb.shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		return shuffled
	}

	// Later rounds: wins first so winners meet winners, rating as the
	// adjacency measure, registration order as the stable tie-break.
	sort.SliceStable(roster, func(i, j int) bool {
		if roster[i].Wins != roster[j].Wins {
			return roster[i].Wins > roster[j].Wins
		}
		if roster[i].Rating != roster[j].Rating {
			return roster[i].Rating > roster[j].Rating
		}
		return roster[i].Seed < roster[j].Seed
	})
	return roster
}
