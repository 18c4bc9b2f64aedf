package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"duel-arena-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeJudgeServer is a mutable stand-in for the judge API. Tests register
// users up front and inject accepted submissions as the scenario unfolds.
type fakeJudgeServer struct {
	mu    sync.Mutex
	users map[string]bool
	subs  map[string][]map[string]interface{}
}

func newFakeJudgeServer(t *testing.T, users ...string) (*fakeJudgeServer, *JudgeClient) {
	t.Helper()
	f := &fakeJudgeServer{
		users: make(map[string]bool),
		subs:  make(map[string][]map[string]interface{}),
	}
	for _, u := range users {
		f.users[u] = true
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch r.URL.Path {
		case "/atcoder-api/v3/user/detail":
			if f.users[r.URL.Query().Get("user")] {
				w.WriteHeader(http.StatusOK)
			} else {
				w.WriteHeader(http.StatusNotFound)
			}
		case "/atcoder-api/v3/user/submissions":
			subs := f.subs[r.URL.Query().Get("user")]
			if subs == nil {
				subs = []map[string]interface{}{}
			}
			json.NewEncoder(w).Encode(subs)
		case "/resources/merged-problems.json":
			json.NewEncoder(w).Encode([]map[string]string{
				{"id": "abc001_a", "contest_id": "abc001", "title": "A1"},
				{"id": "abc001_b", "contest_id": "abc001", "title": "B1"},
				{"id": "abc002_a", "contest_id": "abc002", "title": "A2"},
				{"id": "abc002_b", "contest_id": "abc002", "title": "B2"},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	return f, NewJudgeClient(srv.URL, "atcoder.jp")
}

func (f *fakeJudgeServer) addAC(user, problemID string, epoch int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[user] = append(f.subs[user], map[string]interface{}{
		"problem_id":   problemID,
		"result":       "AC",
		"epoch_second": epoch,
	})
}

func newTestService(t *testing.T, users ...string) (*TournamentService, *fakeJudgeServer) {
	t.Helper()
	fake, jc := newFakeJudgeServer(t, users...)
	svc := NewTournamentService(nil, jc, NewProblemCatalog(), time.Hour)
	svc.Builder.shuffle = func(n int, swap func(i, j int)) {}
	t.Cleanup(svc.reset)
	return svc, fake
}

func fourPlayerRequest() StartRequest {
	req := StartRequest{Name: "Spring Duels", MaxRounds: 2}
	for _, h := range []string{"alice", "bob", "carol", "dave"} {
		req.Contestants = append(req.Contestants, struct {
			Handle  string `json:"handle"`
			JudgeID string `json:"judge_id"`
		}{Handle: h, JudgeID: h + "_j"})
	}
	return req
}

func TestStartValidation(t *testing.T) {
	svc, _ := newTestService(t, "alice_j", "bob_j")
	ctx := context.Background()

	_, err := svc.start(ctx, StartRequest{MaxRounds: 1})
	require.Error(t, err)
	assert.Equal(t, fiber.StatusBadRequest, err.(*fiber.Error).Code)

	req := fourPlayerRequest()
	req.MaxRounds = 0
	_, err = svc.start(ctx, req)
	require.Error(t, err)

	dup := fourPlayerRequest()
	dup.Contestants[1].Handle = "alice"
	_, err = svc.start(ctx, dup)
	require.Error(t, err)
	assert.Contains(t, err.(*fiber.Error).Message, "duplicate")

	// carol_j and dave_j are not registered on the fake judge.
	_, err = svc.start(ctx, fourPlayerRequest())
	require.Error(t, err)
	assert.Contains(t, err.(*fiber.Error).Message, "unknown judge user ids")
}

func TestFullTournamentLifecycle(t *testing.T) {
	svc, fake := newTestService(t, "alice_j", "bob_j", "carol_j", "dave_j")
	ctx := context.Background()

	view, err := svc.start(ctx, fourPlayerRequest())
	require.NoError(t, err)
	assert.Equal(t, models.StateRoundActive, view.State)
	assert.Equal(t, models.ModeContinuous, view.Mode)

	round1 := svc.tournament.Current()
	require.Len(t, round1.Matches, 2)
	m0, m1 := round1.Matches[0], round1.Matches[1]
	assert.Equal(t, models.TierA, m0.Problem.Tier, "first half of the rounds uses the easier tier")
	assert.NotEqual(t, m0.Problem.ID, m1.Problem.ID)
	// Identity shuffle keeps registration order.
	assert.Equal(t, "alice", m0.SideA.Handle)
	assert.Equal(t, "bob", m0.SideB.Handle)

	// A poll with no submissions changes nothing.
	svc.pollOnce(ctx)
	assert.Equal(t, models.StateRoundActive, svc.tournament.State)
	assert.Equal(t, models.MatchInProgress, m0.Status)

	// bob solves first match; carol and dave both solve, dave faster.
	start := round1.StartedAt
	fake.addAC("bob_j", m0.Problem.ID, start+42)
	fake.addAC("carol_j", m1.Problem.ID, start+58)
	fake.addAC("dave_j", m1.Problem.ID, start+42)
	svc.pollOnce(ctx)

	assert.Equal(t, models.MatchCompleted, m0.Status)
	assert.Equal(t, "bob", m0.Winner)
	assert.Equal(t, models.MatchCompleted, m1.Status)
	assert.Equal(t, "dave", m1.Winner, "both solved, smaller elapsed wins")
	assert.Equal(t, models.StateRoundComplete, svc.tournament.State)

	// Repeated poll after completion does not touch stats.
	svc.pollOnce(ctx)
	assert.Equal(t, 1, svc.tournament.ContestantByHandle("bob").Wins)

	view, err = svc.advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StateRoundActive, view.State)
	assert.Equal(t, 1, view.CurrentRound)

	round2 := svc.tournament.Current()
	require.Len(t, round2.Matches, 2)
	w, l := round2.Matches[0], round2.Matches[1]
	assert.Equal(t, models.BracketWinners, w.Bracket)
	assert.True(t, w.HasSide("bob"))
	assert.True(t, w.HasSide("dave"))
	assert.Equal(t, models.BracketLosers, l.Bracket)
	assert.Equal(t, models.TierB, w.Problem.Tier, "second half moves to the harder tier")

	start2 := round2.StartedAt
	fake.addAC("bob_j", w.Problem.ID, start2+30)
	fake.addAC("carol_j", l.Problem.ID, start2+10)
	svc.pollOnce(ctx)

	assert.Equal(t, models.StateFinished, svc.tournament.State)
	assert.True(t, svc.tournament.Completed)

	final, ok := svc.currentView()
	require.True(t, ok)
	assert.Equal(t, "bob", final.Champion)
	assert.Equal(t, 2, final.Leaderboard[0].Wins)
	assert.Equal(t, models.BaseRating+2*models.RatingIncrement, final.Leaderboard[0].Rating)
}

func TestAdvanceRequiresCompleteRound(t *testing.T) {
	svc, _ := newTestService(t, "alice_j", "bob_j", "carol_j", "dave_j")
	ctx := context.Background()

	_, err := svc.advance(ctx)
	require.Error(t, err)
	assert.Equal(t, fiber.StatusNotFound, err.(*fiber.Error).Code)

	_, err = svc.start(ctx, fourPlayerRequest())
	require.NoError(t, err)

	_, err = svc.advance(ctx)
	require.Error(t, err)
	assert.Equal(t, fiber.StatusConflict, err.(*fiber.Error).Code)
}

func TestOverrideWinner(t *testing.T) {
	svc, _ := newTestService(t, "alice_j", "bob_j", "carol_j", "dave_j")
	ctx := context.Background()

	_, err := svc.start(ctx, fourPlayerRequest())
	require.NoError(t, err)
	match := svc.tournament.Current().Matches[0]

	_, err = svc.overrideWinner(ctx, "missing", "alice")
	require.Error(t, err)
	assert.Equal(t, fiber.StatusNotFound, err.(*fiber.Error).Code)

	_, err = svc.overrideWinner(ctx, match.ID, "carol")
	require.Error(t, err)
	assert.Equal(t, fiber.StatusBadRequest, err.(*fiber.Error).Code)

	view, err := svc.overrideWinner(ctx, match.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.MatchCompleted, match.Status)
	assert.Equal(t, "alice", match.Winner)
	assert.False(t, match.SideA.Solved, "no acceptance on record, no solve time")
	assert.Equal(t, 1, svc.tournament.ContestantByHandle("alice").Wins)
	assert.Equal(t, models.StateRoundActive, view.State, "one match still open")

	_, err = svc.overrideWinner(ctx, match.ID, "bob")
	require.Error(t, err)
	assert.Equal(t, fiber.StatusConflict, err.(*fiber.Error).Code)
}

func TestOverrideRecordsSolveTimeWhenPresent(t *testing.T) {
	svc, fake := newTestService(t, "alice_j", "bob_j", "carol_j", "dave_j")
	ctx := context.Background()

	_, err := svc.start(ctx, fourPlayerRequest())
	require.NoError(t, err)
	round := svc.tournament.Current()
	match := round.Matches[0]

	fake.addAC("alice_j", match.Problem.ID, round.StartedAt+17)

	_, err = svc.overrideWinner(ctx, match.ID, "alice")
	require.NoError(t, err)
	assert.True(t, match.SideA.Solved)
	assert.EqualValues(t, 17, match.SideA.ElapsedSeconds)
	assert.Equal(t, "alice", match.Winner)
}

func TestOddRosterGetsByeThroughService(t *testing.T) {
	svc, _ := newTestService(t, "alice_j", "bob_j", "carol_j")
	ctx := context.Background()

	req := fourPlayerRequest()
	req.Contestants = req.Contestants[:3]
	_, err := svc.start(ctx, req)
	require.NoError(t, err)

	round := svc.tournament.Current()
	assert.Len(t, round.Matches, 1)
	assert.Equal(t, "carol", round.Bye)
}

func TestResetClearsAggregate(t *testing.T) {
	svc, _ := newTestService(t, "alice_j", "bob_j", "carol_j", "dave_j")
	ctx := context.Background()

	_, err := svc.start(ctx, fourPlayerRequest())
	require.NoError(t, err)
	_, ok := svc.currentView()
	require.True(t, ok)

	svc.reset()
	_, ok = svc.currentView()
	assert.False(t, ok)

	// A fresh start after reset is allowed.
	_, err = svc.start(ctx, fourPlayerRequest())
	require.NoError(t, err)
}

func TestViewMarshalsSafelyDuringPoll(t *testing.T) {
	svc, fake := newTestService(t, "alice_j", "bob_j", "carol_j", "dave_j")
	ctx := context.Background()

	_, err := svc.start(ctx, fourPlayerRequest())
	require.NoError(t, err)
	round := svc.tournament.Current()

	// Spectator reads marshal snapshots while polls resolve matches. The
	// race detector flags this if the snapshot shares live match state.
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			if view, ok := svc.currentView(); ok {
				_, err := json.Marshal(view)
				assert.NoError(t, err)
			}
		}
	}()

	fake.addAC("bob_j", round.Matches[0].Problem.ID, round.StartedAt+42)
	fake.addAC("dave_j", round.Matches[1].Problem.ID, round.StartedAt+58)
	svc.pollOnce(ctx)
	close(done)
	wg.Wait()

	assert.Equal(t, models.StateRoundComplete, svc.tournament.State)
}

func TestConcurrentAdvanceBuildsOneRound(t *testing.T) {
	svc, _ := newTestService(t, "alice_j", "bob_j", "carol_j", "dave_j")
	ctx := context.Background()

	_, err := svc.start(ctx, fourPlayerRequest())
	require.NoError(t, err)
	for _, m := range svc.tournament.Current().Matches {
		_, err := svc.overrideWinner(ctx, m.ID, m.SideA.Handle)
		require.NoError(t, err)
	}
	require.Equal(t, models.StateRoundComplete, svc.tournament.State)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.advance(ctx)
		}()
	}
	wg.Wait()

	var failures int
	for _, err := range errs {
		if err != nil {
			failures++
			assert.Equal(t, fiber.StatusConflict, err.(*fiber.Error).Code)
		}
	}
	assert.Equal(t, 1, failures, "exactly one advance wins")
	assert.Len(t, svc.tournament.Rounds, 2)
	assert.Equal(t, 1, svc.tournament.CurrentRound)
}

func TestStartRejectsSecondTournament(t *testing.T) {
	svc, _ := newTestService(t, "alice_j", "bob_j", "carol_j", "dave_j")
	ctx := context.Background()

	_, err := svc.start(ctx, fourPlayerRequest())
	require.NoError(t, err)

	_, err = svc.start(ctx, fourPlayerRequest())
	require.Error(t, err)
	assert.Equal(t, fiber.StatusConflict, err.(*fiber.Error).Code)
}
