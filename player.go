package main

import "time"

// Player represents one blob in a running match
type Player struct {
	ID       string // connection identifier
	X, Y     float64
	Angle    float64 // aim angle in radians
	LastShot time.Time
}

// NewPlayer creates a player at the spawn point for its slot
func NewPlayer(id string, slot int) *Player {
	x, y := SpawnPosition(slot)
	return &Player{
		ID:    id,
		X:     x,
		Y:     y,
		Angle: SpawnAngle(slot),
	}
}

// ApplyMove processes one movement/aim input. Directional keys are
// combined into a unit vector so diagonal movement is no faster than
// axis-aligned movement. Each axis is accepted independently: an axis
// update is applied only if it stays inside the arena margin and does
// not push the blob into an obstacle, which lets players slide along
// obstacle edges instead of sticking at corners.
func (p *Player) ApplyMove(in InputMsg) {
	var dx, dy float64
	if in.Up {
		dy--
	}
	if in.Down {
		dy++
	}
	if in.Left {
		dx--
	}
	if in.Right {
		dx++
	}
	dx, dy = Normalize(dx, dy)

	newX := p.X + dx*PlayerSpeed
	newY := p.Y + dy*PlayerSpeed

	if newX > PlayerRadius && newX < ArenaWidth-PlayerRadius &&
		!obstacleHit(newX, p.Y, PlayerRadius) {
		p.X = newX
	}
	if newY > PlayerRadius && newY < ArenaHeight-PlayerRadius &&
		!obstacleHit(p.X, newY, PlayerRadius) {
		p.Y = newY
	}

	// Aim follows the pointer on every input, moving or not
	p.Angle = AngleTo(p.X, p.Y, in.AimX, in.AimY)
}

// Respawn sends the player back to its slot's spawn point. Aim angle
// is deliberately left as-is.
func (p *Player) Respawn(slot int) {
	p.X, p.Y = SpawnPosition(slot)
}

// CanShoot reports whether the cooldown has elapsed
func (p *Player) CanShoot(now time.Time) bool {
	return now.Sub(p.LastShot) >= ShootCooldown
}

// ToState converts to protocol state
func (p *Player) ToState(slot int) PlayerState {
	return PlayerState{
		ID:    p.ID,
		Slot:  slot,
		X:     round1(p.X),
		Y:     round1(p.Y),
		Angle: round1(p.Angle),
	}
}
