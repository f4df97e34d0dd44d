package resource

import "strings"

// ItemType classifies what a pickup gives to a combatant.
type ItemType int

const (
	ItemBad ItemType = iota
	ItemWeapon
	ItemAmmo
	ItemArmor
	ItemHealth
	ItemPowerup
	ItemHoldable
	ItemTeam
	// ItemPersistent powerups last until death and only one can be held.
	ItemPersistent
)

var itemTypeNames = [...]string{"bad", "weapon", "ammo", "armor", "health", "powerup", "holdable", "team", "persistent"}

func (t ItemType) String() string {
	if t < 0 || int(t) >= len(itemTypeNames) {
		return "unknown"
	}
	return itemTypeNames[t]
}

// Weapon identifies a weapon slot.
type Weapon int

const (
	WeaponNone Weapon = iota
	WeaponGauntlet
	WeaponMachinegun
	WeaponShotgun
	WeaponGrenade
	WeaponRocket
	WeaponLightning
	WeaponRailgun
	WeaponPlasma
	WeaponBFG
	WeaponGrapple
	NumWeapons
)

// Powerup identifies a timed effect slot. Flags are carried as powerups.
type Powerup int

const (
	PowerupNone Powerup = iota
	PowerupQuad
	PowerupBattlesuit
	PowerupHaste
	PowerupInvis
	PowerupRegen
	PowerupFlight
	PowerupRedFlag
	PowerupBlueFlag
	PowerupNeutralFlag
	PowerupScout
	PowerupGuard
	PowerupDoubler
	PowerupAmmoRegen
	NumPowerups
)

// IsPersistent reports whether p is one of the powerups held until death.
func (p Powerup) IsPersistent() bool {
	return p >= PowerupScout && p <= PowerupAmmoRegen
}

// Holdable identifies the single usable-item slot.
type Holdable int

const (
	HoldableNone Holdable = iota
	HoldableTeleporter
	HoldableMedkit
	HoldableKamikaze
	HoldablePortal
	HoldableInvulnerability
)

// Team of a combatant or a flag.
type Team int

const (
	TeamFree Team = iota
	TeamRed
	TeamBlue
	TeamSpectator
	NumTeams
)

// ParseTeam maps "red", "blue", "spectator" and anything else to TeamFree.
func ParseTeam(s string) Team {
	switch strings.ToLower(s) {
	case "red":
		return TeamRed
	case "blue":
		return TeamBlue
	case "spectator":
		return TeamSpectator
	}
	return TeamFree
}

// Opponent returns the opposing team for red and blue, TeamFree otherwise.
func (t Team) Opponent() Team {
	switch t {
	case TeamRed:
		return TeamBlue
	case TeamBlue:
		return TeamRed
	}
	return TeamFree
}

// GameType is the match mode.
type GameType int

const (
	GameFFA GameType = iota
	GameTournament
	GameSingle
	GameTeam
	GameCTF
)

// ParseGameType accepts "ffa", "tournament", "single", "team" and "ctf".
func ParseGameType(s string) (GameType, bool) {
	switch strings.ToLower(s) {
	case "", "ffa":
		return GameFFA, true
	case "tournament":
		return GameTournament, true
	case "single":
		return GameSingle, true
	case "team", "tdm":
		return GameTeam, true
	case "ctf":
		return GameCTF, true
	}
	return GameFFA, false
}

// IsTeam reports whether combatants are split into red and blue.
func (g GameType) IsTeam() bool { return g >= GameTeam }

// HasFlags reports whether the mode uses capturable flags.
func (g GameType) HasFlags() bool { return g == GameCTF }

// ItemDef is one entry of the item catalog.
type ItemDef struct {
	Index     int
	ClassName string
	Name      string
	Type      ItemType
	// Tag is the weapon for weapons and ammo, the powerup for powerups
	// and flags, the holdable for holdables. Unused otherwise.
	Tag      int
	Quantity int
}

var itemDefs = []*ItemDef{
	{ClassName: "item_armor_shard", Name: "Armor Shard", Type: ItemArmor, Quantity: 5},
	{ClassName: "item_armor_combat", Name: "Armor", Type: ItemArmor, Quantity: 50},
	{ClassName: "item_armor_body", Name: "Heavy Armor", Type: ItemArmor, Quantity: 100},
	{ClassName: "item_health_small", Name: "5 Health", Type: ItemHealth, Quantity: 5},
	{ClassName: "item_health", Name: "25 Health", Type: ItemHealth, Quantity: 25},
	{ClassName: "item_health_large", Name: "50 Health", Type: ItemHealth, Quantity: 50},
	{ClassName: "item_health_mega", Name: "Mega Health", Type: ItemHealth, Quantity: 100},

	{ClassName: "weapon_gauntlet", Name: "Gauntlet", Type: ItemWeapon, Tag: int(WeaponGauntlet)},
	{ClassName: "weapon_shotgun", Name: "Shotgun", Type: ItemWeapon, Tag: int(WeaponShotgun), Quantity: 10},
	{ClassName: "weapon_machinegun", Name: "Machinegun", Type: ItemWeapon, Tag: int(WeaponMachinegun), Quantity: 40},
	{ClassName: "weapon_grenadelauncher", Name: "Grenade Launcher", Type: ItemWeapon, Tag: int(WeaponGrenade), Quantity: 10},
	{ClassName: "weapon_rocketlauncher", Name: "Rocket Launcher", Type: ItemWeapon, Tag: int(WeaponRocket), Quantity: 10},
	{ClassName: "weapon_lightning", Name: "Lightning Gun", Type: ItemWeapon, Tag: int(WeaponLightning), Quantity: 100},
	{ClassName: "weapon_railgun", Name: "Railgun", Type: ItemWeapon, Tag: int(WeaponRailgun), Quantity: 10},
	{ClassName: "weapon_plasmagun", Name: "Plasma Gun", Type: ItemWeapon, Tag: int(WeaponPlasma), Quantity: 50},
	{ClassName: "weapon_bfg", Name: "BFG10K", Type: ItemWeapon, Tag: int(WeaponBFG), Quantity: 20},
	{ClassName: "weapon_grapplinghook", Name: "Grappling Hook", Type: ItemWeapon, Tag: int(WeaponGrapple)},

	{ClassName: "ammo_shells", Name: "Shells", Type: ItemAmmo, Tag: int(WeaponShotgun), Quantity: 10},
	{ClassName: "ammo_bullets", Name: "Bullets", Type: ItemAmmo, Tag: int(WeaponMachinegun), Quantity: 50},
	{ClassName: "ammo_grenades", Name: "Grenades", Type: ItemAmmo, Tag: int(WeaponGrenade), Quantity: 5},
	{ClassName: "ammo_cells", Name: "Cells", Type: ItemAmmo, Tag: int(WeaponPlasma), Quantity: 30},
	{ClassName: "ammo_lightning", Name: "Lightning", Type: ItemAmmo, Tag: int(WeaponLightning), Quantity: 60},
	{ClassName: "ammo_rockets", Name: "Rockets", Type: ItemAmmo, Tag: int(WeaponRocket), Quantity: 5},
	{ClassName: "ammo_slugs", Name: "Slugs", Type: ItemAmmo, Tag: int(WeaponRailgun), Quantity: 10},
	{ClassName: "ammo_bfg", Name: "Bfg Ammo", Type: ItemAmmo, Tag: int(WeaponBFG), Quantity: 15},

	{ClassName: "holdable_teleporter", Name: "Personal Teleporter", Type: ItemHoldable, Tag: int(HoldableTeleporter), Quantity: 60},
	{ClassName: "holdable_medkit", Name: "Medkit", Type: ItemHoldable, Tag: int(HoldableMedkit), Quantity: 60},

	{ClassName: "item_quad", Name: "Quad Damage", Type: ItemPowerup, Tag: int(PowerupQuad), Quantity: 30},
	{ClassName: "item_enviro", Name: "Battle Suit", Type: ItemPowerup, Tag: int(PowerupBattlesuit), Quantity: 30},
	{ClassName: "item_haste", Name: "Speed", Type: ItemPowerup, Tag: int(PowerupHaste), Quantity: 30},
	{ClassName: "item_invis", Name: "Invisibility", Type: ItemPowerup, Tag: int(PowerupInvis), Quantity: 30},
	{ClassName: "item_regen", Name: "Regeneration", Type: ItemPowerup, Tag: int(PowerupRegen), Quantity: 30},
	{ClassName: "item_flight", Name: "Flight", Type: ItemPowerup, Tag: int(PowerupFlight), Quantity: 60},

	{ClassName: "item_scout", Name: "Scout", Type: ItemPersistent, Tag: int(PowerupScout)},
	{ClassName: "item_guard", Name: "Guard", Type: ItemPersistent, Tag: int(PowerupGuard)},
	{ClassName: "item_doubler", Name: "Doubler", Type: ItemPersistent, Tag: int(PowerupDoubler)},
	{ClassName: "item_ammoregen", Name: "Ammo Regen", Type: ItemPersistent, Tag: int(PowerupAmmoRegen)},

	{ClassName: "team_CTF_redflag", Name: "Red Flag", Type: ItemTeam, Tag: int(PowerupRedFlag)},
	{ClassName: "team_CTF_blueflag", Name: "Blue Flag", Type: ItemTeam, Tag: int(PowerupBlueFlag)},
}

var itemsByClass map[string]*ItemDef

func init() {
	itemsByClass = make(map[string]*ItemDef, len(itemDefs))
	for i, def := range itemDefs {
		def.Index = i
		itemsByClass[strings.ToLower(def.ClassName)] = def
	}
}

// Items returns the whole catalog, indexed by ItemDef.Index.
func Items() []*ItemDef { return itemDefs }

// NumItems is the size of the catalog.
func NumItems() int { return len(itemDefs) }

// ItemByIndex returns nil for out-of-range indices.
func ItemByIndex(i int) *ItemDef {
	if i < 0 || i >= len(itemDefs) {
		return nil
	}
	return itemDefs[i]
}

// ItemByClass looks up a spawn class name, case-insensitively.
func ItemByClass(class string) *ItemDef {
	return itemsByClass[strings.ToLower(class)]
}

// WeaponItem returns the pickup that gives weapon w.
func WeaponItem(w Weapon) *ItemDef {
	for _, def := range itemDefs {
		if def.Type == ItemWeapon && Weapon(def.Tag) == w {
			return def
		}
	}
	return nil
}

// FlagTeam returns the team owning a flag powerup, TeamFree for other powerups.
func FlagTeam(p Powerup) Team {
	switch p {
	case PowerupRedFlag:
		return TeamRed
	case PowerupBlueFlag:
		return TeamBlue
	}
	return TeamFree
}

// TeamFlag returns the flag powerup for team t.
func TeamFlag(t Team) Powerup {
	switch t {
	case TeamRed:
		return PowerupRedFlag
	case TeamBlue:
		return PowerupBlueFlag
	}
	return PowerupNeutralFlag
}
