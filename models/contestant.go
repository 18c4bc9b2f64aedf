package models

const (
	// BaseRating is assigned at registration.
	BaseRating = 1500
	// RatingIncrement is added per win. Flat, not Elo.
	RatingIncrement = 25
)

// Contestant is a registered participant. Created at registration, mutated
// only by the match resolver on win/loss, never deleted; eliminated players
// stay on the leaderboard.
type Contestant struct {
	Handle  string `json:"handle"`
	JudgeID string `json:"judge_id"`
	Wins    int    `json:"wins"`
	Losses  int    `json:"losses"`
	Matches int    `json:"matches"`
	Rating  int    `json:"rating"`
	// Active is false once eliminated in knockout mode.
	Active bool `json:"active"`
	// Seed is the registration order, used as the stable tie-break.
	Seed int `json:"seed"`
}

// NewContestant registers a contestant at the given roster position.
func NewContestant(handle, judgeID string, seed int) *Contestant {
	return &Contestant{
		Handle:  handle,
		JudgeID: judgeID,
		Rating:  BaseRating,
		Active:  true,
		Seed:    seed,
	}
}
