package models

import (
	"fmt"
	"strings"
)

// Tier is the coarse difficulty bucket derived from a problem id suffix.
type Tier string

const (
	TierA Tier = "a" // easier, first half of the tournament
	TierB Tier = "b" // harder, second half
)

// Problem is an external judge task. Immutable once fetched; identity is the
// judge's problem id.
type Problem struct {
	ID        string `json:"id"`
	ContestID string `json:"contest_id"`
	Title     string `json:"title"`
	Tier      Tier   `json:"tier"`
	URL       string `json:"url"`
}

// TierOf derives the difficulty tier from a problem id. Only beginner-contest
// A/B tasks (abc*_a, abc*_b) are eligible; everything else is filtered out of
// the catalog.
func TierOf(id string) (Tier, bool) {
	lower := strings.ToLower(id)
	if !strings.HasPrefix(lower, "abc") {
		return "", false
	}
	switch {
	case strings.HasSuffix(lower, "_a"):
		return TierA, true
	case strings.HasSuffix(lower, "_b"):
		return TierB, true
	}
	return "", false
}

// TaskURL builds the judge's problem page link. The format must match the
// judge exactly or the "view problem" link breaks.
func TaskURL(host, contestID, problemID string) string {
	return fmt.Sprintf("https://%s/contests/%s/tasks/%s", host, contestID, problemID)
}

// TierForRound maps a round index to its target tier: the first half of the
// rounds (rounded up for odd counts) uses the easier tier.
func TierForRound(roundIndex, totalRounds int) Tier {
	easierRounds := (totalRounds + 1) / 2
	if roundIndex < easierRounds {
		return TierA
	}
	return TierB
}
