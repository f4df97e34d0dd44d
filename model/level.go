package model

import (
	"time"

	"gorm.io/datatypes"
)

// LevelRecord remembers every level a host has set up.
type LevelRecord struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name     string `gorm:"uniqueIndex;size:64;not null" json:"name"`
	Checksum string `gorm:"size:64;not null" json:"checksum"`
	GameType string `gorm:"size:16" json:"game_type"`
	Items    int    `json:"items"`
	Clusters int    `json:"clusters"`
	Regions  int    `json:"regions"`
	// Values maps item class to its computed value.
	Values    datatypes.JSON `json:"values"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
