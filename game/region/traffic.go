package region

import (
	"math"

	"github.com/kasuganosora/arenabot/game/geom"
	"github.com/kasuganosora/arenabot/game/item"
	"github.com/kasuganosora/arenabot/resource"
)

// PlayerSample is one combatant's position this tick.
type PlayerSample struct {
	ID     item.EntityID
	Team   resource.Team
	Origin geom.Vec3
}

// noTraffic stands in for teammates in free for all.
var noTraffic = Traffic{Actual: 0, Potential: 1}

// UpdatePlayers records which region every player is in and counts, per
// team, the sightings each region could have made this tick.
func (x *Index) UpdatePlayers(players []PlayerSample) {
	clear(x.players)
	if len(x.regions) == 0 {
		return
	}

	var counts [resource.NumTeams]float64
	for _, p := range players {
		if p.Team == resource.TeamSpectator || p.Team < 0 || p.Team >= resource.NumTeams {
			x.players[p.ID] = -1
			continue
		}
		counts[p.Team]++

		ri := x.Nearest(p.Origin)
		x.players[p.ID] = ri
		r := x.Region(ri)
		if r == nil {
			continue
		}
		for i, n := range r.Local {
			if r.Visible&(1<<uint(i)) == 0 {
				continue
			}
			x.regions[n].Traffic[p.Team].Actual++
		}
	}

	for _, r := range x.regions {
		for team := range r.Traffic {
			r.Traffic[team].Potential += counts[team]
		}
	}
}

// PlayerRegion returns the region a player was in at the last update, -1
// when unknown.
func (x *Index) PlayerRegion(id item.EntityID) int {
	ri, ok := x.players[id]
	if !ok {
		return -1
	}
	return ri
}

// TrafficAt blends the traffic of the regions nearest p, weighted by
// inverse distance, into teammate and enemy traffic for a member of team.
// It returns the closest region, -1 when there are no regions.
func (x *Index) TrafficAt(p geom.Vec3, team resource.Team) (teammate, enemy Traffic, closest int) {
	ids, dists := x.NearestN(p, x.cfg.TrafficNeighbors)
	if len(ids) == 0 {
		return Traffic{}, Traffic{}, -1
	}

	weights := make([]float64, len(ids))
	total := 0.0
	closest = -1
	minDist := 0.0
	for i, d := range dists {
		if d <= 0 {
			clear(weights)
			weights[i] = 1
			total = 1
			closest = ids[i]
			break
		}
		weights[i] = 1 / d
		total += weights[i]
		if closest < 0 || d < minDist {
			closest, minDist = ids[i], d
		}
	}
	if total > 0 {
		for i := range weights {
			weights[i] /= total
		}
	}

	for i, id := range ids {
		traffic := &x.regions[id].Traffic
		var own, other Traffic
		switch team {
		case resource.TeamRed, resource.TeamBlue:
			own, other = traffic[team], traffic[team.Opponent()]
		default:
			own, other = noTraffic, traffic[resource.TeamFree]
		}
		teammate.Actual += weights[i] * own.Actual
		teammate.Potential += weights[i] * own.Potential
		enemy.Actual += weights[i] * other.Actual
		enemy.Potential += weights[i] * other.Potential
	}
	return teammate, enemy, closest
}

// Rates are the chances of meeting other players near a location.
type Rates struct {
	SeeTeammate float64 `json:"see_teammate"`
	SeeEnemy    float64 `json:"see_enemy"`
	// EnemyAttack is the share of enemy attention directed at the combatant.
	EnemyAttack float64 `json:"enemy_attack"`
}

// Exposure describes the combatant whose encounter rates are estimated.
type Exposure struct {
	Team     resource.Team
	TeamGame bool
	Carrier  bool
	// Nearby means the known counts below describe the location.
	Nearby         bool
	Teammates      int
	Enemies        int
	KnownTeammates int
	KnownEnemies   int
}

// EncounterRates estimates the rates at p. It returns the region nearest p,
// or -1 with zero rates when there are no regions.
func (x *Index) EncounterRates(p geom.Vec3, e Exposure) (Rates, int) {
	teammate, enemy, closest := x.TrafficAt(p, e.Team)
	if closest < 0 {
		return Rates{}, -1
	}

	knownT, knownE := 0, 0
	if e.Nearby {
		knownT, knownE = e.KnownTeammates, e.KnownEnemies
	}
	unknownT := max(e.Teammates-knownT, 0)
	unknownE := max(e.Enemies-knownE, 0)

	var rates Rates
	enemySeen := enemy.Rate()
	if knownE > 0 {
		rates.SeeEnemy = 1
	} else {
		rates.SeeEnemy = 1 - math.Pow(1-enemySeen, float64(unknownE))
	}

	if !e.TeamGame {
		rates.SeeTeammate = 0
		rates.EnemyAttack = rates.SeeEnemy
		return rates, closest
	}

	teammateSeen := teammate.Rate()
	if knownT > 0 {
		rates.SeeTeammate = 1
	} else {
		rates.SeeTeammate = 1 - math.Pow(1-teammateSeen, float64(unknownT))
	}
	rates.EnemyAttack = enemySeen*float64(unknownE) + float64(knownE)
	if !e.Carrier {
		rates.EnemyAttack /= teammateSeen*float64(unknownT) + float64(knownT) + 1
	}
	return rates, closest
}
