package economy

import (
	"github.com/kasuganosora/arenabot/game/item"
	"github.com/kasuganosora/arenabot/resource"
)

// ItemUtility is the share of it's quantity the player would actually
// receive by picking it up now: 1 for full use, 0 when it cannot be taken.
func ItemUtility(p *Player, it *item.Instance, gt resource.GameType) float64 {
	def := it.Def
	provide := it.Count
	if provide == 0 {
		provide = def.Quantity
	}
	received := -1
	var cur, limit int

	switch def.Type {
	case resource.ItemWeapon:
		w := resource.Weapon(def.Tag)
		if !p.HasWeapon(w) {
			return 1
		}
		cur = p.Ammo[w]
		if cur < 0 {
			return 0
		}
		limit = AmmoMax
		switch {
		case cur >= limit:
			received = 0
		case cur < provide:
			received = provide - cur
		default:
			received = 1
		}

	case resource.ItemAmmo:
		cur = p.Ammo[def.Tag]
		if cur < 0 {
			return 0
		}
		limit = AmmoMax

	case resource.ItemArmor:
		if p.Persistent() == resource.PowerupScout {
			return 0
		}
		limit = int(p.maxHealth()) * 2
		cur = p.Armor

	case resource.ItemHealth:
		limit = int(p.healthLimit(provide))
		cur = p.Health

	case resource.ItemPowerup:
		return 1

	case resource.ItemHoldable:
		if p.Holdable != resource.HoldableNone {
			return 0
		}
		return 1

	case resource.ItemTeam:
		if canTakeFlag(p, it, gt) {
			return 1
		}
		return 0

	case resource.ItemPersistent:
		if canTakePersistent(p, it) {
			return 1
		}
		return 0

	default:
		return 0
	}

	if cur >= limit || provide <= 0 {
		return 0
	}
	if received < 0 {
		received = min(provide, limit-cur)
	}
	return float64(received) / float64(provide)
}

// CanGrab reports whether the host would let p touch it right now.
func CanGrab(p *Player, it *item.Instance, gt resource.GameType) bool {
	def := it.Def
	switch def.Type {
	case resource.ItemWeapon, resource.ItemPowerup:
		return true
	case resource.ItemAmmo:
		return p.Ammo[def.Tag] < AmmoMax
	case resource.ItemArmor:
		return float64(p.Armor) < p.maxHealth()*2 && p.Persistent() != resource.PowerupScout
	case resource.ItemHealth:
		return float64(p.Health) < p.healthLimit(it.Quantity())
	case resource.ItemHoldable:
		return p.Holdable == resource.HoldableNone
	case resource.ItemTeam:
		return canTakeFlag(p, it, gt)
	case resource.ItemPersistent:
		return canTakePersistent(p, it)
	}
	return false
}

// healthLimit is the most health an item of this size can bring a player
// to: small balls and mega health go to double the maximum.
func healthLimit(maxHealth float64, quantity int) float64 {
	if quantity == 5 || quantity == 100 {
		return maxHealth * 2
	}
	return maxHealth
}

// healthLimit is the most health an item of this size can bring p to.
// Guards take any health item up to double the maximum.
func (p *Player) healthLimit(quantity int) float64 {
	if p.Persistent() == resource.PowerupGuard {
		return p.maxHealth() * 2
	}
	return healthLimit(p.maxHealth(), quantity)
}

// canTakePersistent allows one persistent powerup per life. Team owned
// ones only go to that team.
func canTakePersistent(p *Player, it *item.Instance) bool {
	if p.Persistent() != resource.PowerupNone {
		return false
	}
	if it.Team == resource.TeamRed || it.Team == resource.TeamBlue {
		return it.Team == p.Team
	}
	return true
}

// canTakeFlag applies capture the flag touch rules: the enemy flag can
// always be taken, the own flag only when dropped or when capturing.
func canTakeFlag(p *Player, it *item.Instance, gt resource.GameType) bool {
	if !gt.HasFlags() {
		return false
	}
	if p.Team != resource.TeamRed && p.Team != resource.TeamBlue {
		return false
	}
	flag := resource.Powerup(it.Def.Tag)
	own := resource.TeamFlag(p.Team)
	enemy := resource.TeamFlag(p.Team.Opponent())
	switch flag {
	case enemy:
		return true
	case own:
		return it.Dropped || p.HasPowerup(enemy)
	}
	return false
}
