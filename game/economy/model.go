package economy

import (
	"math"

	"go.uber.org/zap"

	"github.com/kasuganosora/arenabot/game/item"
	"github.com/kasuganosora/arenabot/resource"
)

const (
	// EncounterRateDefault is the share of time a typical player spends in
	// combat.
	EncounterRateDefault = .3
	// LifeExpectancy is the valuation horizon in seconds.
	LifeExpectancy = 600.0
	// PickupTimeMinimum bounds how often anyone bothers to take an item.
	PickupTimeMinimum = 5.0
)

// archetype is a typical player used to price items.
type archetype struct {
	name   string
	share  float64
	health float64
	armor  float64
	// weapons is how many weapon pickups worth of ammo the player holds.
	weapons int
	// ammo is how many ammo boxes the player holds.
	ammo float64
}

var archetypes = [...]archetype{
	{name: "spawned", share: .2, health: 125},
	{name: "powered", share: .3, health: 100, armor: 100, weapons: 6, ammo: 6},
	{name: "wounded", share: .1, health: 60, weapons: 4},
	{name: "average", share: .4, health: 100, armor: 25, weapons: 2, ammo: 5},
}

const poweredWeapons = 6

// Model prices every item type present on a level.
type Model struct {
	Rules   resource.Rules
	Weapons *resource.WeaponTable
	// Horizon is the length of each valuation prediction.
	Horizon float64

	logger        *zap.Logger
	values        []float64
	pickupAverage float64
	important     []*item.Cluster
}

// NewModel returns a model with every item marked absent.
func NewModel(rules resource.Rules, weapons *resource.WeaponTable, logger *zap.Logger) *Model {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Model{Rules: rules, Weapons: weapons, Horizon: LifeExpectancy, logger: logger}
	m.Reset()
	return m
}

// Reset marks every item absent.
func (m *Model) Reset() {
	m.values = make([]float64, resource.NumItems())
	for i := range m.values {
		m.values[i] = -1
	}
	m.pickupAverage = 0
	m.important = nil
}

// Value is the base value of def over not taking it, -1 when def is not on
// the level.
func (m *Model) Value(def *resource.ItemDef) float64 {
	if def == nil || def.Index < 0 || def.Index >= len(m.values) {
		return -1
	}
	return m.values[def.Index]
}

// Values returns the value of every item type present, by class name.
func (m *Model) Values() map[string]float64 {
	out := make(map[string]float64)
	for i, v := range m.values {
		if v >= 0 {
			out[resource.ItemByIndex(i).ClassName] = v
		}
	}
	return out
}

// PickupAverage is the value of a typical cluster pickup on the level.
func (m *Model) PickupAverage() float64 { return m.pickupAverage }

// Important returns the static clusters worth more than an average pickup.
func (m *Model) Important() []*item.Cluster { return m.important }

// UtilityDuration estimates how long a player takes to use up def under
// typical conditions, 0 when that cannot be estimated.
func (m *Model) UtilityDuration(def *resource.ItemDef) float64 {
	quantity := float64(def.Quantity)
	switch def.Type {
	case resource.ItemArmor, resource.ItemHealth:
		return safeDiv(quantity, m.Weapons.TypicalDamageRate*EncounterRateDefault)
	case resource.ItemAmmo, resource.ItemWeapon:
		return quantity * m.Weapons.Weapon(resource.Weapon(def.Tag)).Reload / EncounterRateDefault
	case resource.ItemPowerup:
		return quantity
	}
	return 0
}

// PickupInterval is how often players want to take def.
func (m *Model) PickupInterval(def *resource.ItemDef) float64 {
	pickup := math.Max(m.Rules.BaseRespawn(def), m.UtilityDuration(def))
	return math.Max(pickup, PickupTimeMinimum)
}

// baseInfo returns the play constants of a generic player.
func (m *Model) baseInfo(opponents int) *PlayInfo {
	info := &PlayInfo{
		Model:            m,
		LeaderPointShare: 1 / float64(max(opponents, 1)),
		MaxHealth:        defaultMaxHealth,
		Received:         10,
		DeathsPerDamage:  1.0 / 150,
		KillsPerDamage:   1.0 / 150,
	}
	for w := resource.WeaponNone; w < resource.NumWeapons; w++ {
		ws := m.Weapons.Weapon(w)
		info.Reload[w] = ws.Reload * .7
		info.Dealt[w] = ws.Accuracy * ws.Damage * float64(ws.Shots)
	}
	info.sortWeapons()
	return info
}

// Compute prices every item type in items by simulating each archetype
// with and without one pickup of it.
func (m *Model) Compute(items []*item.Instance, opponents int) {
	m.Reset()

	var weaponFreq, ammoFreq [resource.NumWeapons]int
	numWeapons, numAmmo := 0, 0
	for _, it := range items {
		m.values[it.Def.Index] = 0
		switch it.Def.Type {
		case resource.ItemWeapon:
			weaponFreq[it.Def.Tag]++
			numWeapons++
		case resource.ItemAmmo:
			ammoFreq[it.Def.Tag]++
			numAmmo++
		}
	}
	numWeapons = max(numWeapons, 1)
	numAmmo = max(numAmmo, 1)

	info := m.baseInfo(opponents)
	var players [len(archetypes)]State
	for i, a := range archetypes {
		s := State{Info: info, Health: a.health, Armor: a.armor}
		for w := resource.WeaponGauntlet; w < resource.NumWeapons; w++ {
			start := m.Weapons.Weapon(w).StartAmmo
			if start == 0 {
				continue
			}
			s.Weapons |= 1 << uint(w)
			s.Ammo[w] = float64(start)
		}
		if a.weapons > 0 {
			weight := float64(a.weapons) / poweredWeapons
			for w := range s.Ammo {
				if s.Ammo[w] > 0 {
					s.Ammo[w] *= weight
				}
			}
		}
		players[i] = s
	}

	// Hand out the weapons and ammo the level offers.
	for _, def := range resource.Items() {
		isWeapon := def.Type == resource.ItemWeapon
		if (!isWeapon && def.Type != resource.ItemAmmo) || m.values[def.Index] < 0 {
			continue
		}
		weight := float64(ammoFreq[def.Tag]) / float64(numAmmo)
		if isWeapon {
			weight = float64(weaponFreq[def.Tag]) / float64(numWeapons)
		}
		for i, a := range archetypes {
			s := &players[i]
			boxes := a.ammo * weight
			if isWeapon {
				if a.weapons > 0 {
					s.Weapons |= 1 << uint(def.Tag)
				}
				boxes = float64(a.weapons) * weight
			}
			if s.Ammo[def.Tag] >= 0 {
				s.Ammo[def.Tag] += float64(def.Quantity) * boxes
			}
		}
	}

	var base [len(archetypes)]float64
	for i := range players {
		s := &players[i]
		for w := resource.WeaponGauntlet; w < resource.NumWeapons; w++ {
			s.Ammo[w] = math.Min(s.Ammo[w], AmmoMax)
		}
		s.refresh()

		rs := *s
		rs.PredictEncounter(m.Horizon, 1, EncounterRateDefault, EncounterRateDefault)
		base[i] = rs.Score
	}

	for _, def := range resource.Items() {
		if m.values[def.Index] < 0 {
			continue
		}
		// Items that never respawn add nothing to the level economy and
		// holdables have no clear demand.
		respawn := m.Rules.BaseRespawn(def)
		if respawn <= 0 || def.Type == resource.ItemHoldable {
			continue
		}
		generic := &item.Instance{Def: def, InUse: true, Spawned: true}
		isAmmo := def.Type == resource.ItemAmmo
		weight := float64(weaponFreq[def.Tag]) / float64(numWeapons)

		value := 0.0
		for i, a := range archetypes {
			rs := players[i]
			rs.Pickup(generic)
			rs.PredictEncounter(m.Horizon, 1, EncounterRateDefault, EncounterRateDefault)
			gain := rs.Score - base[i]
			if gain < 0 {
				continue
			}
			// Ammo only helps players holding the matching weapon.
			if isAmmo {
				hasWeapon := 0.0
				switch {
				case a.weapons > 0:
					hasWeapon = 1 - math.Pow(1-weight, float64(a.weapons))
				case m.Weapons.Weapon(resource.Weapon(def.Tag)).StartAmmo != 0:
					hasWeapon = 1
				}
				gain *= hasWeapon
			}
			value += gain * a.share
		}

		if pickup := m.PickupInterval(def); respawn < pickup {
			value *= respawn / pickup
		}
		m.values[def.Index] = value
	}

	m.logger.Debug("item values computed", zap.Any("values", m.Values()))
}

// Finalize derives the average cluster pickup value and keeps only the
// value above average on static clusters.
func (m *Model) Finalize(static, mobile []*item.Cluster) {
	points, pickups := 0.0, 0.0
	for _, list := range [][]*item.Cluster{static, mobile} {
		for _, c := range list {
			for _, it := range c.Items {
				pickup := m.PickupInterval(it.Def)
				points += m.Value(it.Def) / pickup
				pickups += it.Contribution / pickup
			}
		}
	}
	m.pickupAverage = safeDiv(points, pickups)

	m.important = m.important[:0]
	for _, c := range static {
		if c.Value < m.pickupAverage {
			c.Value = 0
			continue
		}
		c.Value -= m.pickupAverage
		m.important = append(m.important, c)
	}
	m.logger.Info("item valuation ready",
		zap.Float64("pickup_average", m.pickupAverage),
		zap.Int("important_clusters", len(m.important)))
}
