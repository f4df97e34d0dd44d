package economy

import (
	"sort"

	"github.com/kasuganosora/arenabot/resource"
)

// accuracyPadTime is the seconds of default weapon data blended into
// records with little history.
const accuracyPadTime = 8.0

// PlayInfo is the constant part of a prediction: how well a combatant
// deals and takes damage.
type PlayInfo struct {
	Model *Model
	// Player limits pickups to what the host would allow; nil during
	// valuation.
	Player *Player

	// LeaderPointShare is the share of opponent points held by the leader.
	LeaderPointShare float64
	MaxHealth        float64
	// Received is damage taken per second of enemy attack.
	Received float64
	// Reload is the seconds between firings in combat; Dealt the damage
	// per firing.
	Reload      [resource.NumWeapons]float64
	Dealt       [resource.NumWeapons]float64
	WeaponOrder [resource.NumWeapons]resource.Weapon

	DeathsPerDamage float64
	KillsPerDamage  float64
}

// WeaponRecord accumulates a combatant's use of one weapon.
type WeaponRecord struct {
	Shots        float64 `json:"shots"`
	Time         float64 `json:"time"`
	DirectHits   float64 `json:"direct_hits"`
	DirectDamage float64 `json:"direct_damage"`
	SplashHits   float64 `json:"splash_hits"`
	SplashDamage float64 `json:"splash_damage"`
	// AttackActual of AttackPotential seconds were spent firing.
	AttackActual    float64 `json:"attack_actual"`
	AttackPotential float64 `json:"attack_potential"`
}

func (r *WeaponRecord) add(o WeaponRecord, scale float64) {
	r.Shots += o.Shots * scale
	r.Time += o.Time * scale
	r.DirectHits += o.DirectHits * scale
	r.DirectDamage += o.DirectDamage * scale
	r.SplashHits += o.SplashHits * scale
	r.SplashDamage += o.SplashDamage * scale
	r.AttackActual += o.AttackActual * scale
	r.AttackPotential += o.AttackPotential * scale
}

// CombatStats are the running totals a PlayInfo is derived from.
type CombatStats struct {
	Deaths          float64                           `json:"deaths"`
	Kills           float64                           `json:"kills"`
	DamageReceived  float64                           `json:"damage_received"`
	DamageDealt     float64                           `json:"damage_dealt"`
	EnemyAttackTime float64                           `json:"enemy_attack_time"`
	Weapons         [resource.NumWeapons]WeaponRecord `json:"weapons"`
}

// NewCombatStats returns the prior every combatant starts with.
func NewCombatStats() CombatStats {
	return CombatStats{
		Deaths:          2,
		DamageReceived:  400,
		Kills:           2,
		DamageDealt:     400,
		EnemyAttackTime: 40,
	}
}

// Merge adds a delta reported by the host.
func (c *CombatStats) Merge(d CombatStats) {
	c.Deaths += d.Deaths
	c.Kills += d.Kills
	c.DamageReceived += d.DamageReceived
	c.DamageDealt += d.DamageDealt
	c.EnemyAttackTime += d.EnemyAttackTime
	for w := range c.Weapons {
		c.Weapons[w].add(d.Weapons[w], 1)
	}
}

// defaultRecord estimates one second of fire with a weapon.
func defaultRecord(ws *resource.WeaponStats) WeaponRecord {
	if ws.Reload <= 0 || ws.Shots <= 0 {
		return WeaponRecord{}
	}
	shots := float64(ws.Shots) / ws.Reload
	direct, splash := ws.Accuracy, 0.0
	if ws.SplashRadius >= 100 {
		direct, splash = ws.Accuracy*.5, ws.Accuracy
	}
	directHits := shots * direct
	splashHits := shots * splash
	if shots < directHits+splashHits {
		splashHits = shots - directHits
	}
	attackRate := .55
	if ws.Careless() {
		attackRate = .65
	}
	return WeaponRecord{
		Shots:           shots,
		Time:            1,
		DirectHits:      directHits,
		DirectDamage:    directHits * ws.Damage,
		SplashHits:      splashHits,
		SplashDamage:    splashHits * ws.SplashDamage * .5,
		AttackActual:    1,
		AttackPotential: 1 / attackRate,
	}
}

// record returns the stats for w padded with default data.
func (m *Model) record(stats *CombatStats, w resource.Weapon) WeaponRecord {
	r := stats.Weapons[w]
	if pad := accuracyPadTime - r.Time; pad > 0 {
		r.add(defaultRecord(m.Weapons.Weapon(w)), pad)
	}
	return r
}

// Opponents is how many sides compete for points against one combatant.
func Opponents(gt resource.GameType, players int) int {
	if gt.IsTeam() {
		return 1
	}
	return max(players-1, 1)
}

// PlayInfo derives prediction constants from a combatant's statistics.
func (m *Model) PlayInfo(stats *CombatStats, p *Player, opponents int) *PlayInfo {
	info := &PlayInfo{
		Model:            m,
		Player:           p,
		LeaderPointShare: 1 / float64(max(opponents, 1)),
		MaxHealth:        p.maxHealth(),
		Received:         safeDiv(stats.DamageReceived, stats.EnemyAttackTime),
		DeathsPerDamage:  safeDiv(stats.Deaths, stats.DamageReceived),
		KillsPerDamage:   safeDiv(stats.Kills, stats.DamageDealt),
	}
	for w := resource.WeaponNone; w < resource.NumWeapons; w++ {
		ws := m.Weapons.Weapon(w)
		r := m.record(stats, w)
		info.Dealt[w] = safeDiv((r.DirectDamage+r.SplashDamage)*float64(ws.Shots), r.Shots)
		attackRate := 1.0
		if r.AttackPotential > 0 {
			attackRate = r.AttackActual / r.AttackPotential
		}
		info.Reload[w] = ws.Reload * attackRate
	}
	info.sortWeapons()
	return info
}

// sortWeapons discounts reload time by the chance a firing is not the
// killing shot, then orders weapons by damage rate.
func (info *PlayInfo) sortWeapons() {
	rates := make([]float64, resource.NumWeapons)
	for w := range info.Reload {
		survive := max(1-info.KillsPerDamage*info.Dealt[w], .1)
		info.Reload[w] *= survive
		rates[w] = safeDiv(info.Dealt[w], info.Reload[w])
		info.WeaponOrder[w] = resource.Weapon(w)
	}
	sort.SliceStable(info.WeaponOrder[:], func(i, j int) bool {
		return rates[info.WeaponOrder[i]] > rates[info.WeaponOrder[j]]
	})
}

// DamageRate is the expected damage per second of attack with w.
func (info *PlayInfo) DamageRate(w resource.Weapon) float64 {
	return safeDiv(info.Dealt[w], info.Reload[w])
}

func safeDiv(a, b float64) float64 {
	if b <= 0 {
		return 0
	}
	return a / b
}
