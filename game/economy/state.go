package economy

import (
	"math"
	"sort"

	"github.com/kasuganosora/arenabot/game/item"
	"github.com/kasuganosora/arenabot/resource"
)

const (
	// AmmoMax is the most ammo a weapon can hold.
	AmmoMax = 200
	// ArmorProtection is the share of damage armor absorbs.
	ArmorProtection  = .66
	defaultMaxHealth = 100

	// Score of common events, in frags.
	ValueFrag = 1.0
	ValueFlag = 7.0

	maxHealthMods = 4
	maxDamageMods = 3
)

// healthMod holds the rules for health change until a powerup boundary.
type healthMod struct {
	until        float64 // -1 for forever
	damageFactor float64
	healthLow    float64 // gain per second at or below max health
	healthHigh   float64 // gain per second above max health
}

// damageMod holds the rules for damage dealt until a powerup boundary.
type damageMod struct {
	until        float64
	damageFactor float64
	fireFactor   float64
	ammoRegen    bool
}

// change flags what a pickup altered in a State.
type change uint8

const (
	changePickup change = 1 << iota
	changeHealth
	changeWeapon
	changeHealthMod
	changeDamageMod
)

// State is a predicted snapshot of one combatant's resources. It is a
// plain value: assigning it clones it.
type State struct {
	Info *PlayInfo

	Health  float64
	Armor   float64
	Weapons uint32
	Ammo    [resource.NumWeapons]float64
	// Powerups holds the state time each powerup runs out, -1 for never
	// and 0 for not held.
	Powerups   [resource.NumPowerups]float64
	Holdable   resource.Holdable
	CarryValue float64
	// Persistent is the powerup held until death, PowerupNone if none.
	Persistent resource.Powerup

	Score float64
	Time  float64

	healthMods  [maxHealthMods]healthMod
	damageMods  [maxDamageMods]damageMod
	firstWeapon int
}

// FromPlayer builds the starting state of a prediction for p.
func FromPlayer(p *Player, info *PlayInfo) State {
	s := State{
		Info:     info,
		Health:   float64(p.Health),
		Armor:    float64(p.Armor),
		Weapons:  p.Weapons,
		Holdable: p.Holdable,
	}
	for w := range s.Ammo {
		s.Ammo[w] = float64(p.Ammo[w])
	}
	for pw, left := range p.Powerups {
		switch {
		case left > 0:
			s.Powerups[pw] = left
		case left < 0:
			s.Powerups[pw] = -1
		}
	}
	if s.Persistent = p.Persistent(); s.Persistent != resource.PowerupNone {
		s.Powerups[s.Persistent] = -1
	}
	if p.Carrier() {
		s.CarryValue = ValueFlag
	}
	s.refresh()
	return s
}

func (s *State) refresh() {
	s.computeFirstWeapon()
	s.computeHealthMods()
	s.computeDamageMods()
}

// HasWeapon reports whether w is held.
func (s *State) HasWeapon(w resource.Weapon) bool {
	return w > resource.WeaponNone && w < resource.NumWeapons && s.Weapons&(1<<uint(w)) != 0
}

// HasPowerup reports whether pw is active at state time t.
func (s *State) HasPowerup(pw resource.Powerup, t float64) bool {
	return s.Powerups[pw] < 0 || t < s.Powerups[pw]
}

// ScoreRate is the score earned per second of prediction.
func (s *State) ScoreRate() float64 {
	if s.Time <= 0 {
		return 0
	}
	return s.Score / s.Time
}

// HealthArmorToDamage is the damage needed to kill a player with this much
// health and armor.
func HealthArmorToDamage(health, armor float64) float64 {
	maxArmor := health * (ArmorProtection / (1 - ArmorProtection))
	return health + math.Min(armor, maxArmor)
}

// healthChangeScore charges the score for the kill value opponents gain or
// lose when health and armor change.
func (s *State) healthChangeScore(oldHealth, oldArmor float64) {
	change := HealthArmorToDamage(s.Health, s.Armor) - HealthArmorToDamage(oldHealth, oldArmor)
	s.Score += change * s.Info.DeathsPerDamage * s.Info.LeaderPointShare
}

func (s *State) computeFirstWeapon() {
	for s.firstWeapon = 0; s.firstWeapon < int(resource.NumWeapons); s.firstWeapon++ {
		w := s.Info.WeaponOrder[s.firstWeapon]
		if s.Ammo[w] != 0 && s.HasWeapon(w) {
			break
		}
	}
}

// powerupTimeouts returns the distinct future timeouts of the listed
// powerups in ascending order followed by -1.
func (s *State) powerupTimeouts(ids ...resource.Powerup) []float64 {
	times := make([]float64, 0, len(ids)+1)
	for _, id := range ids {
		if s.Time < s.Powerups[id] {
			times = append(times, s.Powerups[id])
		}
	}
	sort.Float64s(times)
	out := times[:0]
	for i, t := range times {
		if i > 0 && t == times[i-1] {
			continue
		}
		out = append(out, t)
	}
	return append(out, -1)
}

func (s *State) computeHealthMods() {
	start := s.Time
	for i, until := range s.powerupTimeouts(resource.PowerupInvis, resource.PowerupBattlesuit, resource.PowerupRegen) {
		hm := &s.healthMods[i]
		hm.until = until
		hm.damageFactor = 1
		if s.HasPowerup(resource.PowerupInvis, start) {
			hm.damageFactor *= .4
		}
		if s.HasPowerup(resource.PowerupBattlesuit, start) {
			hm.damageFactor *= .35
		}
		switch {
		case s.HasPowerup(resource.PowerupRegen, start):
			hm.healthLow, hm.healthHigh = 15, 5
		case s.Persistent == resource.PowerupGuard:
			hm.healthLow, hm.healthHigh = 15, 0
		default:
			hm.healthLow, hm.healthHigh = 0, -1
		}
		start = until
	}
}

func (s *State) computeDamageMods() {
	timed := []resource.Powerup{resource.PowerupQuad, resource.PowerupHaste}
	// Scout and ammo regen already fire faster than haste.
	if s.Persistent == resource.PowerupScout || s.Persistent == resource.PowerupAmmoRegen {
		timed = timed[:1]
	}
	start := s.Time
	for i, until := range s.powerupTimeouts(timed...) {
		dm := &s.damageMods[i]
		dm.until = until
		dm.damageFactor = 1
		if s.HasPowerup(resource.PowerupQuad, start) {
			dm.damageFactor *= s.Info.Model.Rules.QuadFactor
		}
		if s.Persistent == resource.PowerupDoubler {
			dm.damageFactor *= 2
		}
		dm.fireFactor, dm.ammoRegen = 1, false
		switch {
		case s.Persistent == resource.PowerupScout:
			dm.fireFactor = scoutFactor
		case s.Persistent == resource.PowerupAmmoRegen:
			dm.fireFactor, dm.ammoRegen = hasteFactor, true
		case s.HasPowerup(resource.PowerupHaste, start):
			dm.fireFactor = hasteFactor
		}
		start = until
	}
}

// AddItem applies picking up it. Only items the player could touch right
// now are added.
func (s *State) AddItem(it *item.Instance) change {
	gt := s.Info.Model.Rules.GameType
	if p := s.Info.Player; p != nil && !CanGrab(p, it, gt) {
		return 0
	}
	switch it.Def.Type {
	case resource.ItemWeapon:
		return s.addWeapon(it)
	case resource.ItemAmmo:
		return s.addAmmo(it)
	case resource.ItemArmor:
		return s.addArmor(it)
	case resource.ItemHealth:
		return s.addHealth(it)
	case resource.ItemPowerup:
		return s.addPowerup(it)
	case resource.ItemTeam:
		return s.addTeam(it)
	case resource.ItemHoldable:
		return s.addHoldable(it)
	case resource.ItemPersistent:
		return s.addPersistent(it)
	}
	return 0
}

func (s *State) addWeapon(it *item.Instance) change {
	w := resource.Weapon(it.Def.Tag)
	had := s.HasWeapon(w)
	s.Weapons |= 1 << uint(w)
	if it.Count < 0 {
		return changePickup
	}

	ammo := &s.Ammo[w]
	if *ammo < 0 {
		return changePickup
	}
	hadAmmo := *ammo != 0
	quantity := float64(it.Quantity())
	// Placed weapons top up to their quantity outside team deathmatch.
	if !it.Dropped && s.Info.Model.Rules.GameType != resource.GameTeam {
		if *ammo < quantity {
			quantity -= *ammo
		} else {
			quantity = 1
		}
	}
	*ammo = math.Min(*ammo+quantity, AmmoMax)
	if had && hadAmmo {
		return changePickup
	}
	return changePickup | changeWeapon
}

func (s *State) addAmmo(it *item.Instance) change {
	ammo := &s.Ammo[it.Def.Tag]
	if *ammo >= AmmoMax || *ammo < 0 {
		return 0
	}
	hadAmmo := *ammo != 0
	*ammo = math.Min(*ammo+float64(it.Quantity()), AmmoMax)
	if hadAmmo {
		return changePickup
	}
	return changePickup | changeWeapon
}

func (s *State) addArmor(it *item.Instance) change {
	limit := s.Info.MaxHealth * 2
	if s.Armor >= limit || s.Persistent == resource.PowerupScout {
		return 0
	}
	s.Armor = math.Min(s.Armor+float64(it.Quantity()), limit)
	return changePickup | changeHealth
}

func (s *State) addHealth(it *item.Instance) change {
	quantity := it.Quantity()
	limit := healthLimit(s.Info.MaxHealth, quantity)
	if s.Persistent == resource.PowerupGuard {
		limit = s.Info.MaxHealth * 2
	}
	if s.Health >= limit {
		return 0
	}
	s.Health = math.Min(s.Health+float64(quantity), limit)
	return changePickup | changeHealth
}

func (s *State) addPowerup(it *item.Instance) change {
	pw := resource.Powerup(it.Def.Tag)
	timeout := &s.Powerups[pw]
	if *timeout < 0 {
		return 0
	}
	duration := float64(it.Quantity())
	switch {
	case it.Count < 0:
		*timeout = -1
	case *timeout < s.Time:
		*timeout = s.Time + duration
	default:
		*timeout += duration
	}

	switch pw {
	case resource.PowerupInvis, resource.PowerupRegen, resource.PowerupBattlesuit:
		return changePickup | changeHealthMod
	case resource.PowerupQuad, resource.PowerupHaste:
		return changePickup | changeDamageMod
	}
	return changePickup
}

// addPersistent gives a powerup held until death. Guard tops health up
// to double the maximum and Scout drops all armor.
func (s *State) addPersistent(it *item.Instance) change {
	if s.Persistent != resource.PowerupNone {
		return 0
	}
	pw := resource.Powerup(it.Def.Tag)
	s.Persistent = pw
	s.Powerups[pw] = -1

	switch pw {
	case resource.PowerupGuard:
		s.Health = s.Info.MaxHealth * 2
		return changePickup | changeHealth | changeHealthMod
	case resource.PowerupScout:
		s.Armor = 0
		return changePickup | changeHealth | changeDamageMod
	case resource.PowerupDoubler, resource.PowerupAmmoRegen:
		return changePickup | changeDamageMod
	}
	return changePickup
}

func (s *State) addTeam(it *item.Instance) change {
	p := s.Info.Player
	if p == nil || !s.Info.Model.Rules.GameType.HasFlags() {
		return 0
	}
	if it.Team == resource.TeamSpectator {
		return 0
	}
	if it.Team != p.Team {
		s.Powerups[it.Def.Tag] = -1
		s.CarryValue = ValueFlag
		s.Score += ValueFlag
		return changePickup
	}
	// The own flag only counts when it lies out in the level.
	if !it.Dropped {
		return 0
	}
	s.Score += ValueFlag
	return changePickup
}

var holdableScore = map[resource.Holdable]float64{
	resource.HoldableTeleporter:      .5,
	resource.HoldableMedkit:          .6,
	resource.HoldableKamikaze:        .9,
	resource.HoldableInvulnerability: 1,
}

func (s *State) addHoldable(it *item.Instance) change {
	if s.Holdable != resource.HoldableNone {
		return 0
	}
	h := resource.Holdable(it.Def.Tag)
	s.Score += holdableScore[h]
	s.Holdable = h
	return changePickup
}

// itemChange refreshes derived data after pickups and reports whether
// anything was picked up.
func (s *State) itemChange(result change, oldHealth, oldArmor float64) bool {
	if result&changeHealth != 0 {
		s.healthChangeScore(oldHealth, oldArmor)
	}
	if result&changeWeapon != 0 {
		s.computeFirstWeapon()
	}
	if result&changeHealthMod != 0 {
		s.computeHealthMods()
	}
	if result&changeDamageMod != 0 {
		s.computeDamageMods()
	}
	return result&changePickup != 0
}

// Pickup adds a single item and refreshes the state. It reports whether
// the item was picked up.
func (s *State) Pickup(it *item.Instance) bool {
	health, armor := s.Health, s.Armor
	return s.itemChange(s.AddItem(it), health, armor)
}

// AddCluster adds the members of c that will be present travel seconds
// after now, in cluster order. Taking valuable items also scores for
// denying them to enemies and costs for taking them from teammates. It
// reports whether anything was picked up.
func (s *State) AddCluster(c *item.Cluster, now, travel, seeTeammate, seeEnemy float64) bool {
	if s.Health <= 0 {
		return false
	}
	model := s.Info.Model
	health, armor := s.Health, s.Armor

	var result change
	total := 0.0
	respawn := 0
	for _, it := range c.Items {
		if !it.Available(now, now+travel) {
			continue
		}
		flags := s.AddItem(it)
		result |= flags

		respawn = int(it.Respawn(model.Rules))
		value := model.Value(it.Def)
		if flags&changePickup == 0 || respawn <= 0 || value <= 0 || (seeEnemy == 0 && seeTeammate == 0) {
			continue
		}
		total += value
	}

	if average := model.PickupAverage(); total > average {
		total -= average
		// Every four seconds each side gets another chance at the item.
		opportunities := respawn / 4
		noPickup := (1 - seeTeammate) * (1 - seeEnemy)
		scalar := float64(opportunities+1) * (seeEnemy - seeTeammate)
		if noPickup != 1 {
			scalar = (seeEnemy - seeTeammate) * (math.Pow(noPickup, float64(opportunities+1)) - 1) / (noPickup - 1)
		}
		s.Score += scalar * total
	}

	return s.itemChange(result, health, armor)
}
