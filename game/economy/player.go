// Package economy simulates how a combatant's health, armor, ammo and
// powerups evolve under fire, and prices items by the score they add.
package economy

import (
	"github.com/kasuganosora/arenabot/game/geom"
	"github.com/kasuganosora/arenabot/game/item"
	"github.com/kasuganosora/arenabot/resource"
)

// Player is the host's view of one combatant this tick.
type Player struct {
	ID        item.EntityID `json:"id"`
	Team      resource.Team `json:"team"`
	Origin    geom.Vec3     `json:"origin"`
	Health    int           `json:"health"`
	Armor     int           `json:"armor"`
	MaxHealth int           `json:"max_health"`
	// Weapons has bit w set for every weapon w held.
	Weapons uint32                   `json:"weapons"`
	Ammo    [resource.NumWeapons]int `json:"ammo"`
	// Powerups holds seconds remaining, -1 for powerups held until death.
	Powerups [resource.NumPowerups]float64 `json:"powerups"`
	Holdable resource.Holdable             `json:"holdable"`
}

// HasWeapon reports whether w is held.
func (p *Player) HasWeapon(w resource.Weapon) bool {
	return w > resource.WeaponNone && w < resource.NumWeapons && p.Weapons&(1<<uint(w)) != 0
}

// Give adds weapon w with the given ammo.
func (p *Player) Give(w resource.Weapon, ammo int) {
	p.Weapons |= 1 << uint(w)
	p.Ammo[w] = ammo
}

// HasPowerup reports whether the powerup is active.
func (p *Player) HasPowerup(pw resource.Powerup) bool {
	return p.Powerups[pw] != 0
}

// Persistent returns the powerup held until death, PowerupNone if none.
func (p *Player) Persistent() resource.Powerup {
	for pw := resource.PowerupScout; pw <= resource.PowerupAmmoRegen; pw++ {
		if p.HasPowerup(pw) {
			return pw
		}
	}
	return resource.PowerupNone
}

// Carrier reports whether the player holds a flag.
func (p *Player) Carrier() bool {
	return p.HasPowerup(resource.PowerupRedFlag) ||
		p.HasPowerup(resource.PowerupBlueFlag) ||
		p.HasPowerup(resource.PowerupNeutralFlag)
}

// Alive reports whether the player is in play.
func (p *Player) Alive() bool {
	return p.Health > 0 && p.Team != resource.TeamSpectator
}

func (p *Player) maxHealth() float64 {
	if p == nil || p.MaxHealth <= 0 {
		return defaultMaxHealth
	}
	return float64(p.MaxHealth)
}

// NewSpawnedPlayer returns a player as the host spawns it: 125 health
// counting down to 100, gauntlet and machinegun.
func NewSpawnedPlayer(id item.EntityID, team resource.Team, wt *resource.WeaponTable) *Player {
	p := &Player{ID: id, Team: team, Health: 125, MaxHealth: defaultMaxHealth}
	for w := resource.WeaponGauntlet; w < resource.NumWeapons; w++ {
		if start := wt.Weapon(w).StartAmmo; start != 0 {
			p.Give(w, start)
		}
	}
	return p
}
