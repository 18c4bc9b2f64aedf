package services

import (
	"testing"
	"time"

	"duel-arena-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newSnapshotService(t *testing.T) *TournamentService {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	// Every pooled connection would get its own in-memory database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Snapshot{}))

	svc := NewTournamentService(db, NewJudgeClient("http://judge.invalid", "atcoder.jp"), NewProblemCatalog(), time.Hour)
	t.Cleanup(svc.reset)
	return svc
}

func snapshotTournament() *models.Tournament {
	return &models.Tournament{
		Name:             "Spring Duels",
		Slug:             "spring-duels",
		Mode:             models.ModeContinuous,
		State:            models.StateRoundActive,
		MaxRounds:        2,
		AssignedProblems: map[string]bool{"abc001_a": true},
		Contestants: []*models.Contestant{
			models.NewContestant("alice", "alice_j", 0),
			models.NewContestant("bob", "bob_j", 1),
		},
		Rounds: []*models.Round{{
			Index:     0,
			StartedAt: 1000,
			Matches: []*models.Match{{
				ID:      "m1",
				SideA:   models.MatchSide{Handle: "alice", JudgeID: "alice_j"},
				SideB:   models.MatchSide{Handle: "bob", JudgeID: "bob_j"},
				Problem: &models.Problem{ID: "abc001_a", Tier: models.TierA},
				Status:  models.MatchInProgress,
			}},
		}},
	}
}

func TestSaveSnapshotRequiresTournament(t *testing.T) {
	svc := newSnapshotService(t)

	err := svc.saveSnapshot()
	require.Error(t, err)
	assert.Equal(t, fiber.StatusNotFound, err.(*fiber.Error).Code)
}

func TestSnapshotRoundTrip(t *testing.T) {
	svc := newSnapshotService(t)
	svc.tournament = snapshotTournament()

	require.NoError(t, svc.saveSnapshot())

	// Drop the in-memory aggregate, then restore from the row.
	svc.tournament = nil
	view, err := svc.loadSnapshot()
	require.NoError(t, err)
	assert.Equal(t, "Spring Duels", view.Name)
	assert.Equal(t, models.StateRoundActive, view.State)

	restored := svc.tournament
	require.NotNil(t, restored)
	assert.Equal(t, "spring-duels", restored.Slug)
	assert.True(t, restored.AssignedProblems["abc001_a"])
	require.Len(t, restored.Rounds, 1)
	assert.Equal(t, "abc001_a", restored.Rounds[0].Matches[0].Problem.ID)

	// An active round resumes polling on load.
	svc.mu.Lock()
	armed := svc.sched != nil
	svc.mu.Unlock()
	assert.True(t, armed)
}

func TestSaveSnapshotUpsertsFixedKey(t *testing.T) {
	svc := newSnapshotService(t)
	svc.tournament = snapshotTournament()
	require.NoError(t, svc.saveSnapshot())

	svc.tournament.Name = "Autumn Duels"
	require.NoError(t, svc.saveSnapshot())

	var count int64
	require.NoError(t, svc.DB.Model(&models.Snapshot{}).Count(&count).Error)
	assert.EqualValues(t, 1, count, "one fixed key, last write wins")

	svc.tournament = nil
	view, err := svc.loadSnapshot()
	require.NoError(t, err)
	assert.Equal(t, "Autumn Duels", view.Name)
}

func TestLoadSnapshotMissing(t *testing.T) {
	svc := newSnapshotService(t)

	_, err := svc.loadSnapshot()
	require.Error(t, err)
	assert.Equal(t, fiber.StatusNotFound, err.(*fiber.Error).Code)
}

func TestLoadSnapshotRejectsCorruptPayload(t *testing.T) {
	svc := newSnapshotService(t)
	require.NoError(t, svc.DB.Create(&models.Snapshot{
		Name:    models.SnapshotKey,
		Payload: "{not json",
	}).Error)

	_, err := svc.loadSnapshot()
	require.Error(t, err)
	assert.Equal(t, fiber.StatusUnprocessableEntity, err.(*fiber.Error).Code)
	assert.Nil(t, svc.tournament, "rejected payload leaves the aggregate untouched")
}

func TestLoadSnapshotRejectsInconsistentAggregate(t *testing.T) {
	svc := newSnapshotService(t)
	running := snapshotTournament()
	svc.tournament = running

	// One contestant fails the roster invariant.
	bad := snapshotTournament()
	bad.Contestants = bad.Contestants[:1]
	withBad := &TournamentService{DB: svc.DB, tournament: bad}
	require.NoError(t, withBad.saveSnapshot())

	_, err := svc.loadSnapshot()
	require.Error(t, err)
	assert.Equal(t, fiber.StatusUnprocessableEntity, err.(*fiber.Error).Code)
	assert.Same(t, running, svc.tournament, "current aggregate survives a bad load")
}
