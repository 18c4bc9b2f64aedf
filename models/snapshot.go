package models

import "time"

// SnapshotKey is the fixed storage name for the single active tournament,
// kept identical to the key the browser prototype used so exported saves stay
// recognizable.
const SnapshotKey = "knockout-tournament"

// Snapshot is the persisted form of the Tournament aggregate.
type Snapshot struct {
	Name      string    `json:"name" gorm:"primaryKey"`
	Payload   string    `json:"payload" gorm:"type:text;not null"`
	SavedAt   time.Time `json:"saved_at" gorm:"autoUpdateTime"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
