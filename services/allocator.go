// services/allocator.go
package services

import (
	"context"
	"log"

	"duel-arena-system/models"
)

// FallbackProblem is handed out when every catalog problem has been solved by
// both contestants. A match must always have something to attempt, even if
// imperfectly fair.
var FallbackProblem = models.Problem{
	ID:        "abc086_a",
	ContestID: "abc086",
	Title:     "Product",
	Tier:      models.TierA,
	URL:       models.TaskURL("atcoder.jp", "abc086", "abc086_a"),
}

// ProblemAllocator picks a problem neither contestant has solved and that has
// not been handed out earlier in the tournament. Allocation for a round runs
// sequentially, so the assigned set is marked before the next pairing is
// considered.
type ProblemAllocator struct {
	Judge   SubmissionSource
	Catalog *ProblemCatalog
}

func NewProblemAllocator(judge SubmissionSource, catalog *ProblemCatalog) *ProblemAllocator {
	return &ProblemAllocator{Judge: judge, Catalog: catalog}
}

// Allocate selects a problem for the pairing and marks it assigned. The
// accepted sets are fetched fresh here, not reused from an earlier round:
// contestants solve problems between rounds too.
//
// Fallback ladder: target tier → other tier → relax the already-assigned
// constraint → FallbackProblem.
func (pa *ProblemAllocator) Allocate(ctx context.Context, a, b *models.Contestant, roundIndex, totalRounds int, assigned map[string]bool) *models.Problem {
	solvedA := pa.Judge.FetchAcceptedProblemIDs(ctx, a.JudgeID, 0)
	solvedB := pa.Judge.FetchAcceptedProblemIDs(ctx, b.JudgeID, 0)

	eligible := func(p models.Problem, skipAssigned bool) bool {
		if skipAssigned && assigned[p.ID] {
			return false
		}
		if _, ok := solvedA[p.ID]; ok {
			return false
		}
		if _, ok := solvedB[p.ID]; ok {
			return false
		}
		return true
	}

	target := models.TierForRound(roundIndex, totalRounds)
	other := models.TierB
	if target == models.TierB {
		other = models.TierA
	}

	for _, tier := range []models.Tier{target, other} {
		for _, p := range pa.Catalog.ByTier(tier) {
			if eligible(p, true) {
				assigned[p.ID] = true
				return &p
			}
		}
	}

	// Every unassigned problem is solved by one of the two; reuse an
	// assigned id rather than leaving the match without a problem.
	for _, p := range pa.Catalog.All() {
		if eligible(p, false) {
			assigned[p.ID] = true
			return &p
		}
	}

	log.Printf("[ALLOC] ⚠️ no unsolved problem for %s vs %s, using fallback %s", a.Handle, b.Handle, FallbackProblem.ID)
	fb := FallbackProblem
	assigned[fb.ID] = true
	return &fb
}
