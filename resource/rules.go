package resource

// Respawn delays in seconds by item type.
const (
	RespawnArmor      = 25
	RespawnHealth     = 35
	RespawnMegaHealth = 35
	RespawnAmmo       = 40
	RespawnHoldable   = 60
	RespawnPowerup    = 120
)

// Rules are the match settings that change item behavior.
type Rules struct {
	GameType          GameType
	WeaponRespawn     float64
	TeamWeaponRespawn float64
	QuadFactor        float64
}

// DefaultRules returns the stock settings for a game type.
func DefaultRules(gt GameType) Rules {
	return Rules{
		GameType:          gt,
		WeaponRespawn:     5,
		TeamWeaponRespawn: 30,
		QuadFactor:        3,
	}
}

// BaseRespawn is how long an item of this kind normally takes to respawn.
func (r Rules) BaseRespawn(def *ItemDef) float64 {
	switch def.Type {
	case ItemArmor:
		return RespawnArmor
	case ItemAmmo:
		return RespawnAmmo
	case ItemHoldable:
		return RespawnHoldable
	case ItemPowerup:
		return RespawnPowerup
	case ItemHealth:
		if def.Quantity == 100 {
			return RespawnMegaHealth
		}
		return RespawnHealth
	case ItemWeapon:
		if r.GameType == GameTeam {
			return r.TeamWeaponRespawn
		}
		return r.WeaponRespawn
	}
	return 0
}
