package economy

import (
	"math"

	"github.com/kasuganosora/arenabot/resource"
)

const (
	hasteFactor = 1.3
	scoutFactor = 1.5
)

// ammoRegenMax is the ammo level ammo regen refills each weapon to, and
// ammoRegenRate the ammo it restores per second below that level.
var (
	ammoRegenMax = [resource.NumWeapons]float64{
		resource.WeaponMachinegun: 50,
		resource.WeaponShotgun:    10,
		resource.WeaponGrenade:    10,
		resource.WeaponRocket:     10,
		resource.WeaponLightning:  50,
		resource.WeaponRailgun:    10,
		resource.WeaponPlasma:     50,
		resource.WeaponBFG:        10,
	}
	ammoRegenRate = [resource.NumWeapons]float64{
		resource.WeaponMachinegun: 4,
		resource.WeaponShotgun:    1 / 1.5,
		resource.WeaponGrenade:    .5,
		resource.WeaponRocket:     1 / 1.75,
		resource.WeaponLightning:  1 / .3,
		resource.WeaponRailgun:    1 / 1.75,
		resource.WeaponPlasma:     1 / .3,
		resource.WeaponBFG:        .25,
	}
)

// PredictEncounter advances the state by duration seconds during which the
// player spends playerRate of its time attacking and enemies spend
// enemyRate of theirs attacking it. score is the value of a kill. Health
// and armor change in closed form between powerup boundaries. A player
// predicted to die stops dealing damage but the clock still advances. It
// returns the seconds the player stayed alive.
func (s *State) PredictEncounter(duration, score, playerRate, enemyRate float64) float64 {
	haste := s.Powerups[resource.PowerupHaste]
	switch {
	case s.Persistent == resource.PowerupScout:
		duration /= scoutFactor
	case haste < 0:
		duration /= hasteFactor
	case haste > s.Time:
		left := haste - s.Time
		if left*hasteFactor > duration {
			duration /= hasteFactor
		} else {
			duration -= left * (hasteFactor - 1)
		}
	}

	health, armor := s.Health, s.Armor
	start := s.Time
	receive := s.Info.Received * enemyRate

	end := s.Time + duration
	live := s.Time
	for i := range s.healthMods {
		hm := &s.healthMods[i]
		if hm.until < 0 || end <= hm.until {
			live += s.modifyHealthArmor(hm, end-live, receive)
			break
		}
		live += s.modifyHealthArmor(hm, hm.until-live, receive)
		if s.Health <= 0 {
			break
		}
	}

	s.healthChangeScore(health, armor)
	// Carried objects score every ten seconds.
	s.Score += (live - s.Time) * s.CarryValue * .1

	damage := 0.0
	for i := 0; i < maxDamageMods && s.Time < live; i++ {
		dm := &s.damageMods[i]
		until := live
		if dm.until >= 0 && dm.until < live {
			until = dm.until
		}
		damage += s.modifyDamage(dm, until-s.Time, playerRate)
		s.Time = until
	}
	s.Score += score * damage * s.Info.KillsPerDamage

	s.Time = end
	if until := s.healthMods[0].until; until >= 0 && until <= s.Time {
		s.computeHealthMods()
	}
	if until := s.damageMods[0].until; until >= 0 && until <= s.Time {
		s.computeDamageMods()
	}
	return live - start
}

// modifyHealth applies damageRate for maxTime seconds, less the health
// rates of hm, to health alone. Health changes linearly on each side of
// max health. It returns the seconds until death or maxTime.
func (s *State) modifyHealth(hm *healthMod, maxTime, damageRate float64) float64 {
	maxHealth := s.Info.MaxHealth
	below := s.Health <= maxHealth
	lossRate := damageRate - hm.healthHigh
	if below {
		lossRate = damageRate - hm.healthLow
	}

	t := maxTime
	if lossRate != 0 && below != (lossRate > 0) {
		// Health heads toward max health; find where it crosses.
		t -= (s.Health - maxHealth) / lossRate
		if t <= 0 {
			s.Health -= lossRate * maxTime
			return maxTime
		}
		s.Health = maxHealth

		lossRate = damageRate - hm.healthLow
		if below {
			lossRate = damageRate - hm.healthHigh
		}
		// Opposite rates on the far side pin health at max.
		if below != (lossRate < 0) {
			return maxTime
		}
	}

	loss := lossRate * t
	if loss > s.Health {
		t = maxTime - (1-s.Health/loss)*t
		s.Health = 0
		return t
	}
	s.Health = math.Min(s.Health-loss, maxHealth*2)
	return maxTime
}

// modifyHealthArmor applies damageRate for maxTime seconds, letting armor
// absorb its share while it lasts. Armor above max health also decays by
// one point per second. It returns the seconds until death or maxTime.
func (s *State) modifyHealthArmor(hm *healthMod, maxTime, damageRate float64) float64 {
	maxHealth := s.Info.MaxHealth
	damageRate *= hm.damageFactor

	if s.Armor <= 0 || damageRate <= 0 {
		t := s.modifyHealth(hm, maxTime, damageRate)
		if s.Armor > maxHealth {
			s.Armor -= math.Min(t, s.Armor-maxHealth)
		}
		return t
	}

	armorRate := damageRate * ArmorProtection
	var decayTime, armorTime float64
	if s.Armor <= maxHealth {
		armorTime = s.Armor / armorRate
	} else {
		decayTime = (s.Armor - maxHealth) / (armorRate + 1)
		armorTime = decayTime + maxHealth/armorRate
	}

	t := math.Min(maxTime, armorTime)
	t = s.modifyHealth(hm, t, damageRate*(1-ArmorProtection))

	// Armor survives the interval, or the player died behind it.
	if maxTime <= armorTime || s.Health <= 0 {
		s.Armor -= armorRate * t
		s.Armor -= math.Min(t, decayTime)
		s.Armor = math.Max(s.Armor, 0)
		return t
	}

	s.Armor = 0
	t += s.modifyHealth(hm, maxTime-t, damageRate)
	if s.Health <= 0 {
		return t
	}
	return maxTime
}

// fireWeapon spends up to *t seconds firing w, consuming ammo at
// consumeRate until threshold is reached. It reports whether all the time
// was used.
func (s *State) fireWeapon(w resource.Weapon, t *float64, consumeRate, threshold float64, damage *float64, damageRate float64) bool {
	spent := *t
	if consumeRate != 0 {
		converge := (s.Ammo[w] - threshold) / consumeRate
		if converge <= spent {
			spent = converge
			s.Ammo[w] = threshold
		} else {
			s.Ammo[w] -= consumeRate * spent
		}
	}
	*damage += damageRate * spent
	*t -= spent
	return *t <= 0
}

// modifyDamage estimates the damage dealt in t seconds, using weapons in
// descending damage rate order until time or ammo runs out. Under ammo
// regen a weapon fires down to its regen level and then settles there if
// regen outpaces firing.
func (s *State) modifyDamage(dm *damageMod, t, playerRate float64) float64 {
	attackRate := playerRate * dm.fireFactor
	damage := 0.0
	for ; s.firstWeapon < int(resource.NumWeapons); s.firstWeapon++ {
		w := s.Info.WeaponOrder[s.firstWeapon]
		if s.Ammo[w] == 0 || !s.HasWeapon(w) {
			continue
		}
		reload := s.Info.Reload[w]
		if reload <= 0 {
			continue
		}
		damageRate := attackRate * s.Info.Dealt[w] / reload
		if s.Ammo[w] < 0 {
			damage += damageRate * t
			break
		}
		consumeRate := attackRate / reload
		if dm.ammoRegen && ammoRegenMax[w] > 0 {
			regenMax := ammoRegenMax[w]
			if s.Ammo[w] > regenMax && s.fireWeapon(w, &t, consumeRate, regenMax, &damage, damageRate) {
				break
			}
			consumeRate -= ammoRegenRate[w]
			if consumeRate < 0 {
				s.fireWeapon(w, &t, consumeRate, regenMax, &damage, damageRate)
				// Ammo holds at the regen level for the rest of the time.
				damage += damageRate * t
				break
			}
		}
		if s.fireWeapon(w, &t, consumeRate, 0, &damage, damageRate) {
			break
		}
	}
	return damage * dm.damageFactor
}
