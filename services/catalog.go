// services/catalog.go
package services

import (
	"sync"

	"duel-arena-system/models"
)

// ProblemCatalog is the in-memory copy of the judge's problem list, shared by
// the allocator and refreshed by the catalog sync worker. The stored order is
// the stable catalog order (ascending id) that allocation enumerates.
type ProblemCatalog struct {
	mu       sync.RWMutex
	problems []models.Problem
}

func NewProblemCatalog() *ProblemCatalog {
	return &ProblemCatalog{}
}

// Replace swaps in a freshly fetched catalog.
func (pc *ProblemCatalog) Replace(problems []models.Problem) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.problems = problems
}

// Len reports the number of known problems.
func (pc *ProblemCatalog) Len() int {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return len(pc.problems)
}

// ByTier returns the problems of one tier in catalog order.
func (pc *ProblemCatalog) ByTier(tier models.Tier) []models.Problem {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	var out []models.Problem
	for _, p := range pc.problems {
		if p.Tier == tier {
			out = append(out, p)
		}
	}
	return out
}

// All returns every problem in catalog order.
func (pc *ProblemCatalog) All() []models.Problem {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	out := make([]models.Problem, len(pc.problems))
	copy(out, pc.problems)
	return out
}
