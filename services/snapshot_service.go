// services/snapshot_service.go
package services

import (
	"encoding/json"
	"log"

	"duel-arena-system/models"
	"duel-arena-system/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm/clause"
)

// saveSnapshot serializes the whole aggregate into a single row. One fixed
// key, last write wins, exactly the shape the poll resumes from.
func (s *TournamentService) saveSnapshot() error {
	s.mu.Lock()
	t := s.tournament
	if t == nil {
		s.mu.Unlock()
		return fiber.NewError(fiber.StatusNotFound, "no active tournament to save")
	}
	payload, err := json.Marshal(t)
	s.mu.Unlock()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to serialize tournament")
	}

	row := models.Snapshot{Name: models.SnapshotKey, Payload: string(payload)}
	err = s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "saved_at"}),
	}).Create(&row).Error
	if err != nil {
		log.Printf("[SNAPSHOT] ❌ save failed: %v", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to persist snapshot")
	}
	log.Printf("[SNAPSHOT] 💾 saved %q (%d bytes)", models.SnapshotKey, len(payload))
	return nil
}

// loadSnapshot restores the aggregate from the stored row, replacing whatever
// is in memory. A corrupt or inconsistent payload is rejected and the current
// aggregate stays untouched.
func (s *TournamentService) loadSnapshot() (*models.TournamentView, error) {
	var row models.Snapshot
	if err := s.DB.First(&row, "name = ?", models.SnapshotKey).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "no saved tournament")
	}

	var t models.Tournament
	if err := json.Unmarshal([]byte(row.Payload), &t); err != nil {
		log.Printf("[SNAPSHOT] ❌ corrupt payload: %v", err)
		return nil, fiber.NewError(fiber.StatusUnprocessableEntity, "saved tournament is corrupt")
	}
	if err := t.Validate(); err != nil {
		log.Printf("[SNAPSHOT] ❌ inconsistent snapshot: %v", err)
		return nil, fiber.NewError(fiber.StatusUnprocessableEntity, "saved tournament is inconsistent")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopSchedulerLocked()
	s.tournament = &t
	if t.State == models.StateRoundActive {
		s.startSchedulerLocked()
	}
	s.bumpLocked()
	log.Printf("[SNAPSHOT] ✅ restored %q at round %d (%s)", t.Name, t.CurrentRound+1, t.State)
	return t.View(s.version), nil
}

// exportResults pushes final standings to object storage. Fire-and-forget;
// a missing or failing bucket never blocks the finish transition.
func (s *TournamentService) exportResults(tournamentSlug string, view *models.TournamentView) {
	if !utils.R2Enabled() {
		return
	}
	payload, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		log.Printf("[EXPORT] ❌ serialize failed: %v", err)
		return
	}
	url, err := utils.UploadJSONToR2("results/"+tournamentSlug+".json", payload)
	if err != nil {
		log.Printf("[EXPORT] ⚠️ upload failed: %v", err)
		return
	}
	log.Printf("[EXPORT] ✅ standings published: %s", url)
}

// --- Fiber handlers ---

func (s *TournamentService) SaveSnapshot(c *fiber.Ctx) error {
	if err := s.saveSnapshot(); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "tournament saved"})
}

func (s *TournamentService) LoadSnapshot(c *fiber.Ctx) error {
	view, err := s.loadSnapshot()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}
