package model

import (
	"time"

	"gorm.io/datatypes"
)

// PickupDecision is one journaled pickup evaluation.
type PickupDecision struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	DecisionID string         `gorm:"uniqueIndex;size:36;not null" json:"decision_id"`
	Level      string         `gorm:"index:idx_decision_level;size:64;not null" json:"level"`
	Combatant  int64          `gorm:"index:idx_decision_combatant" json:"combatant"`
	GameTime   float64        `json:"game_time"`
	FastPath   bool           `json:"fast_path"`
	Candidates int            `json:"candidates"`
	Baseline   float64        `json:"baseline"`
	ScoreRate  float64        `json:"score_rate"`
	Target     int64          `json:"target"`
	Chain      datatypes.JSON `json:"chain"`
	Options    datatypes.JSON `json:"options"`
	CreatedAt  time.Time      `gorm:"index:idx_decision_created;autoCreateTime:milli" json:"created_at"`
}
