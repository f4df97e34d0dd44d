package resource

import (
	"math"
	"sort"
)

// ServerFrame is the duration of one host simulation frame in seconds.
const ServerFrame = 0.05

const (
	machinegunDamage        = 7
	machinegunTeamDamage    = 5
	machinegunStartAmmo     = 100
	machinegunStartTeamAmmo = 50
	carelessReload          = 0.5
	typicalNearDistance     = 384.0
	typicalFarDistance      = 768.0
	playerWidth             = 30.0
)

// WeaponStats describes the firing model of a weapon.
type WeaponStats struct {
	Name         string
	Reload       float64 // seconds between shots
	Shots        int     // projectiles per shot
	Damage       float64 // per direct hit
	SplashDamage float64
	SplashRadius float64
	Speed        float64 // 0 for instant hit
	Range        float64 // 0 for unlimited
	Spread       float64 // degrees
	StartAmmo    int     // -1 infinite, 0 not a starting weapon
	Accuracy     float64
}

// WeaponTable holds one row per Weapon for a specific game type.
type WeaponTable struct {
	Stats [NumWeapons]WeaponStats
	// TypicalDamageRate is the median damage per second over damaging weapons.
	TypicalDamageRate float64
}

var baseWeapons = [NumWeapons]WeaponStats{
	WeaponNone:       {Name: "No Weapon", Reload: ServerFrame, Shots: 1, Accuracy: .5},
	WeaponGauntlet:   {Name: "Gauntlet", Reload: .4, Shots: 1, Damage: 25, Range: 32 + 35, StartAmmo: -1, Accuracy: .5},
	WeaponMachinegun: {Name: "Machinegun", Reload: .1, Shots: 1, Damage: machinegunDamage, Spread: 1.4, StartAmmo: machinegunStartAmmo, Accuracy: .5},
	WeaponShotgun:    {Name: "Shotgun", Reload: 1.0, Shots: 11, Damage: 10, Spread: 4.9, Accuracy: .5},
	WeaponGrenade:    {Name: "Grenade Launcher", Reload: .8, Shots: 1, Damage: 100, SplashDamage: 100, SplashRadius: 150, Speed: 700, Range: 512 + 35, Accuracy: .5},
	WeaponRocket:     {Name: "Rocket Launcher", Reload: .8, Shots: 1, Damage: 100, SplashDamage: 100, SplashRadius: 120, Speed: 900, Accuracy: .5},
	WeaponLightning:  {Name: "Lightning Gun", Reload: .05, Shots: 1, Damage: 8, Range: 768 + 35, Accuracy: .5},
	WeaponRailgun:    {Name: "Railgun", Reload: 1.5, Shots: 1, Damage: 100, Accuracy: .5},
	WeaponPlasma:     {Name: "Plasma Gun", Reload: .1, Shots: 1, Damage: 20, SplashDamage: 15, SplashRadius: 20, Speed: 2000, Accuracy: .5},
	WeaponBFG:        {Name: "BFG10K", Reload: .2, Shots: 1, Damage: 100, SplashDamage: 100, SplashRadius: 120, Speed: 2000, Accuracy: .5},
	WeaponGrapple:    {Name: "Grappling Hook", Reload: .4, Shots: 1, Speed: 800, Accuracy: .5},
}

// NewWeaponTable builds the weapon table for a game type and estimates
// accuracies and the typical damage rate.
func NewWeaponTable(gt GameType) *WeaponTable {
	wt := &WeaponTable{Stats: baseWeapons}
	if gt.IsTeam() {
		wt.Stats[WeaponMachinegun].Damage = machinegunTeamDamage
		wt.Stats[WeaponMachinegun].StartAmmo = machinegunStartTeamAmmo
	}
	wt.estimateAccuracy()
	return wt
}

// Weapon returns the stats row for w.
func (wt *WeaponTable) Weapon(w Weapon) *WeaponStats {
	if w < 0 || w >= NumWeapons {
		return &wt.Stats[WeaponNone]
	}
	return &wt.Stats[w]
}

// Careless reports whether a weapon reloads fast enough that aim matters little.
func (ws *WeaponStats) Careless() bool {
	return ws.Reload <= carelessReload
}

// EnemyAngle is the angular width in degrees of a combatant at a typical
// engagement distance.
func EnemyAngle() float64 {
	return 2 * math.Atan2(playerWidth/2, (typicalNearDistance+typicalFarDistance)/2) * 180 / math.Pi
}

func (wt *WeaponTable) estimateAccuracy() {
	angle := EnemyAngle()
	var rates []float64
	for w := WeaponNone + 1; w < NumWeapons; w++ {
		ws := &wt.Stats[w]
		acc := 0.95
		if ws.SplashRadius < 100 {
			acc *= .8 + .2*(ws.SplashRadius/100)
		}
		if ws.Speed > 0 && ws.Speed < 2500 {
			acc *= .5 + .5*(ws.Speed/2500)
		}
		if ws.Range > 0 && ws.Range < 768 {
			acc *= ws.Range / 768
		}
		if ws.Spread > angle {
			acc *= angle / ws.Spread
		}
		if ws.Careless() {
			acc *= .4
		}
		ws.Accuracy = acc

		dmg := math.Max(ws.Damage, ws.SplashDamage)
		dmg *= acc * float64(ws.Shots) / ws.Reload
		if dmg > 0 {
			rates = append(rates, dmg)
		}
	}
	if len(rates) == 0 {
		return
	}
	sort.Float64s(rates)
	wt.TypicalDamageRate = rates[len(rates)/2]
}
