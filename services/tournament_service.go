// services/tournament_service.go
package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"duel-arena-system/models"

	"github.com/go-co-op/gocron/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gosimple/slug"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// TournamentService owns the single active tournament aggregate and drives
// the state machine: setup → round_active → round_complete → (round_active |
// finished). All aggregate access goes through its mutex; judge I/O happens
// outside the lock.
type TournamentService struct {
	DB           *gorm.DB
	Judge        *JudgeClient
	Catalog      *ProblemCatalog
	Builder      *BracketBuilder
	Resolver     *MatchResolver
	PollInterval time.Duration

	mu         sync.Mutex
	tournament *models.Tournament
	version    int64
	// advancing serializes round builds: only one advance may run BuildRound
	// outside the lock at a time, or two calls would race on the aggregate's
	// assigned-problem map.
	advancing bool

	sched     gocron.Scheduler
	pollGroup singleflight.Group
}

func NewTournamentService(db *gorm.DB, judge *JudgeClient, catalog *ProblemCatalog, pollInterval time.Duration) *TournamentService {
	allocator := NewProblemAllocator(judge, catalog)
	return &TournamentService{
		DB:           db,
		Judge:        judge,
		Catalog:      catalog,
		Builder:      NewBracketBuilder(allocator),
		Resolver:     NewMatchResolver(judge),
		PollInterval: pollInterval,
	}
}

// StartRequest is the operator's setup payload.
type StartRequest struct {
	Name        string `json:"name"`
	Mode        string `json:"mode"`
	MaxRounds   int    `json:"max_rounds"`
	Contestants []struct {
		Handle  string `json:"handle"`
		JudgeID string `json:"judge_id"`
	} `json:"contestants"`
}

// start validates setup input, builds round 1, and begins polling. Rejected
// input mutates nothing.
func (s *TournamentService) start(ctx context.Context, req StartRequest) (*models.TournamentView, error) {
	s.mu.Lock()
	running := s.tournament != nil && !s.tournament.Completed
	s.mu.Unlock()
	if running {
		return nil, fiber.NewError(fiber.StatusConflict, "a tournament is already running; reset it first")
	}

	if len(req.Contestants) < 2 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "at least 2 contestants are required")
	}
	if req.MaxRounds < 1 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "max_rounds must be at least 1")
	}
	mode := req.Mode
	if mode == "" {
		mode = models.ModeContinuous
	}
	if mode != models.ModeContinuous && mode != models.ModeKnockout {
		return nil, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("unknown mode %q", mode))
	}

	seenHandle := make(map[string]bool)
	for _, c := range req.Contestants {
		handle := strings.TrimSpace(c.Handle)
		judgeID := strings.TrimSpace(c.JudgeID)
		if handle == "" || judgeID == "" {
			return nil, fiber.NewError(fiber.StatusBadRequest, "every contestant needs a handle and a judge id")
		}
		if seenHandle[handle] {
			return nil, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("duplicate handle %q", handle))
		}
		seenHandle[handle] = true
	}

	var invalid []string
	for _, c := range req.Contestants {
		ok, err := s.Judge.VerifyUser(ctx, strings.TrimSpace(c.JudgeID))
		if err != nil {
			log.Printf("[SETUP] ⚠️ judge lookup for %s failed: %v", c.JudgeID, err)
			return nil, fiber.NewError(fiber.StatusBadGateway, "judge user lookup unavailable")
		}
		if !ok {
			invalid = append(invalid, c.JudgeID)
		}
	}
	if len(invalid) > 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "unknown judge user ids: "+strings.Join(invalid, ", "))
	}

	if s.Catalog.Len() == 0 {
		problems, err := s.Judge.FetchProblemCatalog(ctx)
		if err != nil {
			return nil, fiber.NewError(fiber.StatusBadGateway, "problem catalog unavailable")
		}
		s.Catalog.Replace(problems)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "New Tournament"
	}

	t := &models.Tournament{
		Name:             name,
		Slug:             slug.Make(name),
		Mode:             mode,
		State:            models.StateSetup,
		MaxRounds:        req.MaxRounds,
		AssignedProblems: make(map[string]bool),
	}
	for i, c := range req.Contestants {
		t.Contestants = append(t.Contestants, models.NewContestant(strings.TrimSpace(c.Handle), strings.TrimSpace(c.JudgeID), i))
	}

	// Allocation fetches solved sets per pairing, so round 1 takes a few
	// judge round-trips. Nothing is published until it succeeds.
	round := s.Builder.BuildRound(ctx, t, 0)
	if len(round.Matches) == 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "roster produced no matches")
	}
	t.Rounds = append(t.Rounds, round)
	t.CurrentRound = 0
	t.StartedAt = round.StartedAt
	t.State = models.StateRoundActive

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tournament != nil && !s.tournament.Completed {
		return nil, fiber.NewError(fiber.StatusConflict, "a tournament is already running; reset it first")
	}
	s.tournament = t
	s.startSchedulerLocked()
	s.bumpLocked()
	log.Printf("[TOURNAMENT] ✅ %q started: %d contestants, %d rounds, mode=%s", t.Name, len(t.Contestants), t.MaxRounds, t.Mode)
	return t.View(s.version), nil
}

// advance moves a completed round forward: builds the next round or finishes
// the tournament when no further matches are possible.
func (s *TournamentService) advance(ctx context.Context) (*models.TournamentView, error) {
	s.mu.Lock()
	t := s.tournament
	if t == nil {
		s.mu.Unlock()
		return nil, fiber.NewError(fiber.StatusNotFound, "no active tournament")
	}
	if t.State != models.StateRoundComplete {
		s.mu.Unlock()
		return nil, fiber.NewError(fiber.StatusConflict, "current round is not complete")
	}
	if s.advancing {
		s.mu.Unlock()
		return nil, fiber.NewError(fiber.StatusConflict, "an advance is already in progress")
	}
	s.advancing = true
	nextIndex := t.CurrentRound + 1
	s.mu.Unlock()

	// Building a round talks to the judge; keep it outside the lock. The
	// advancing flag guarantees this is the only builder touching the
	// aggregate's assigned-problem set, and the state is re-checked below
	// before the round is published.
	round := s.Builder.BuildRound(ctx, t, nextIndex)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.advancing = false
	if s.tournament != t || t.State != models.StateRoundComplete {
		return nil, fiber.NewError(fiber.StatusConflict, "tournament changed while advancing")
	}
	if len(round.Matches) == 0 {
		s.finishLocked()
		return t.View(s.version), nil
	}
	t.Rounds = append(t.Rounds, round)
	t.CurrentRound = nextIndex
	t.State = models.StateRoundActive
	s.bumpLocked()
	log.Printf("[TOURNAMENT] ▶️ round %d started with %d matches", nextIndex+1, len(round.Matches))
	return t.View(s.version), nil
}

// RunPoll executes one resolver pass. Timer ticks and manual refreshes share
// the same single-flight key, so overlapping polls collapse into one and
// stats can never double-increment from concurrent passes.
func (s *TournamentService) RunPoll(ctx context.Context) {
	_, _, _ = s.pollGroup.Do("poll", func() (interface{}, error) {
		s.pollOnce(ctx)
		return nil, nil
	})
}

func (s *TournamentService) pollOnce(ctx context.Context) {
	s.mu.Lock()
	t := s.tournament
	if t == nil || t.State != models.StateRoundActive {
		s.mu.Unlock()
		return
	}
	round := t.Current()
	s.mu.Unlock()

	sets := s.Resolver.FetchRoundSets(ctx, round)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tournament != t || t.Current() != round {
		// Reset or load raced the fetch; the data belongs to a dead round.
		return
	}
	changes := s.Resolver.Evaluate(t, round, sets)
	if len(changes) > 0 {
		s.bumpLocked()
	}
	if t.State == models.StateRoundActive && round.Completed() {
		s.completeRoundLocked()
	}
}

// overrideWinner force-declares a winner for an incomplete match. The
// operator-secret middleware has already vetted the caller; the transition
// itself is the same path that detected solves take. An actual acceptance by
// the declared winner, if one exists, is looked up so the bracket shows the
// real solve time instead of a blank.
func (s *TournamentService) overrideWinner(ctx context.Context, matchID, winnerHandle string) (*models.TournamentView, error) {
	s.mu.Lock()
	t := s.tournament
	if t == nil {
		s.mu.Unlock()
		return nil, fiber.NewError(fiber.StatusNotFound, "no active tournament")
	}
	round := t.Current()
	if round == nil {
		s.mu.Unlock()
		return nil, fiber.NewError(fiber.StatusConflict, "no round in progress")
	}
	match := round.MatchByID(matchID)
	if match == nil {
		s.mu.Unlock()
		return nil, fiber.NewError(fiber.StatusNotFound, "match not found in current round")
	}
	if match.Status == models.MatchCompleted {
		s.mu.Unlock()
		return nil, fiber.NewError(fiber.StatusConflict, "match is already completed")
	}
	if !match.HasSide(winnerHandle) {
		s.mu.Unlock()
		return nil, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("%q does not play in this match", winnerHandle))
	}
	winnerJudgeID := match.SideA.JudgeID
	if winnerHandle == match.SideB.Handle {
		winnerJudgeID = match.SideB.JudgeID
	}
	problemID := match.Problem.ID
	roundStart := round.StartedAt
	s.mu.Unlock()

	// Judge lookup outside the lock; soft-fail means the override proceeds
	// without a recorded time.
	solvedAt, hasSolve := s.Judge.FetchLatestAcceptedSubmission(ctx, winnerJudgeID, problemID, roundStart)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tournament != t || t.Current() != round {
		return nil, fiber.NewError(fiber.StatusConflict, "tournament changed while overriding")
	}
	if match.Status == models.MatchCompleted {
		// A poll decided the match while we were querying the judge.
		return nil, fiber.NewError(fiber.StatusConflict, "match is already completed")
	}

	if hasSolve {
		side := &match.SideA
		if winnerHandle == match.SideB.Handle {
			side = &match.SideB
		}
		side.Solved = true
		side.SolvedAt = solvedAt
		side.ElapsedSeconds = solvedAt - roundStart
	}

	s.Resolver.Resolve(t, match, winnerHandle, ReasonOverride)
	if t.State == models.StateRoundActive && round.Completed() {
		s.completeRoundLocked()
	} else {
		s.bumpLocked()
	}
	return t.View(s.version), nil
}

// completeRoundLocked transitions round_active → round_complete, and straight
// to finished when this was the final round. Caller holds the lock.
func (s *TournamentService) completeRoundLocked() {
	t := s.tournament
	t.State = models.StateRoundComplete
	log.Printf("[TOURNAMENT] ✅ round %d complete", t.CurrentRound+1)
	if t.CurrentRound >= t.MaxRounds-1 {
		s.finishLocked()
		return
	}
	s.bumpLocked()
}

// finishLocked closes out the tournament: no further match mutation, polling
// stops, final standings go out to object storage if configured.
func (s *TournamentService) finishLocked() {
	t := s.tournament
	t.State = models.StateFinished
	t.Completed = true
	s.stopSchedulerLocked()
	s.bumpLocked()
	log.Printf("[TOURNAMENT] 🏆 %q finished after %d rounds", t.Name, len(t.Rounds))
	go s.exportResults(t.Slug, t.View(s.version))
}

// reset clears the aggregate and its timer so no orphaned poll can touch a
// dead tournament. The assigned-problem set dies with the aggregate.
func (s *TournamentService) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopSchedulerLocked()
	s.tournament = nil
	s.bumpLocked()
	log.Println("[TOURNAMENT] 🔄 reset")
}

// currentView returns the render snapshot of the active tournament.
func (s *TournamentService) currentView() (*models.TournamentView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tournament == nil {
		return nil, false
	}
	return s.tournament.View(s.version), true
}

func (s *TournamentService) bumpLocked() {
	s.version++
}

// --- Fiber handlers ---

func (s *TournamentService) StartTournament(c *fiber.Ctx) error {
	var req StartRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	view, err := s.start(c.Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(201).JSON(view)
}

func (s *TournamentService) AdvanceRound(c *fiber.Ctx) error {
	view, err := s.advance(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}

// RefreshNow triggers an out-of-band poll, sharing the timer's single-flight
// guard.
func (s *TournamentService) RefreshNow(c *fiber.Ctx) error {
	s.RunPoll(c.Context())
	view, ok := s.currentView()
	if !ok {
		return c.Status(404).JSON(fiber.Map{"error": "no active tournament"})
	}
	return c.JSON(view)
}

func (s *TournamentService) OverrideWinner(c *fiber.Ctx) error {
	type Req struct {
		Winner string `json:"winner"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if req.Winner == "" {
		return c.Status(400).JSON(fiber.Map{"error": "winner is required"})
	}
	view, err := s.overrideWinner(c.Context(), c.Params("match_id"), req.Winner)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}

func (s *TournamentService) GetTournament(c *fiber.Ctx) error {
	view, ok := s.currentView()
	if !ok {
		return c.Status(404).JSON(fiber.Map{"error": "no active tournament"})
	}
	return c.JSON(view)
}

func (s *TournamentService) GetLeaderboard(c *fiber.Ctx) error {
	view, ok := s.currentView()
	if !ok {
		return c.Status(404).JSON(fiber.Map{"error": "no active tournament"})
	}
	return c.JSON(fiber.Map{
		"name":        view.Name,
		"completed":   view.Completed,
		"champion":    view.Champion,
		"leaderboard": view.Leaderboard,
	})
}

func (s *TournamentService) ResetTournament(c *fiber.Ctx) error {
	s.reset()
	return c.JSON(fiber.Map{"message": "tournament reset"})
}

// VerifyJudgeUser backs the setup screen, which checks ids as they are typed.
func (s *TournamentService) VerifyJudgeUser(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Query("user"))
	if userID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "user query parameter required"})
	}
	ok, err := s.Judge.VerifyUser(c.Context(), userID)
	if err != nil {
		return c.Status(502).JSON(fiber.Map{"error": "judge lookup unavailable"})
	}
	return c.JSON(fiber.Map{"user": userID, "valid": ok})
}

func respondError(c *fiber.Ctx, err error) error {
	if fe, ok := err.(*fiber.Error); ok {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	return c.Status(500).JSON(fiber.Map{"error": err.Error()})
}
