package model

import (
	"time"

	"gorm.io/datatypes"
)

// CombatantStats persists the combat record a combatant's play profile is
// derived from.
type CombatantStats struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Level     string         `gorm:"uniqueIndex:idx_stats_owner;size:64;not null" json:"level"`
	Combatant int64          `gorm:"uniqueIndex:idx_stats_owner;not null" json:"combatant"`
	Deaths    float64        `json:"deaths"`
	Kills     float64        `json:"kills"`
	Stats     datatypes.JSON `json:"stats"`
	UpdatedAt time.Time      `json:"updated_at"`
}
