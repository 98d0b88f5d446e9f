package main

import (
	"math"
	"time"
)

// Game tuning. These values are mirrored by the rendering client and
// must stay in sync with it.
const (
	PlayerSpeed   = 5.0  // pixels per input event
	BulletSpeed   = 10.0 // pixels per tick
	PlayerRadius  = 25.0
	BulletRadius  = 6.0
	ArenaWidth    = 800.0
	ArenaHeight   = 600.0
	ShootCooldown = 300 * time.Millisecond
	PointsToWin   = 5
	TickRate      = 30 // ticks per second
)

// TickInterval is a variable so tests can stop the clock and drive
// ticks by hand.
var TickInterval = time.Second / TickRate

// Obstacles is the fixed arena layout, identical on the client.
var Obstacles = []Rect{
	{X: 350, Y: 250, W: 100, H: 100}, // center block
	{X: 100, Y: 100, W: 80, H: 80},
	{X: 620, Y: 100, W: 80, H: 80},
	{X: 100, Y: 420, W: 80, H: 80},
	{X: 620, Y: 420, W: 80, H: 80},
}

// obstacleHit reports whether a circle at (x, y) overlaps any obstacle.
func obstacleHit(x, y, r float64) bool {
	for _, obs := range Obstacles {
		if CircleRectOverlap(x, y, r, obs) {
			return true
		}
	}
	return false
}

// SpawnPosition returns the spawn point for a member slot.
// Slot 0 spawns on the left margin, slot 1 on the right.
func SpawnPosition(slot int) (float64, float64) {
	if slot == 0 {
		return 100, 300
	}
	return 700, 300
}

// SpawnAngle returns the initial facing for a member slot: slot 0
// faces right, slot 1 faces left.
func SpawnAngle(slot int) float64 {
	if slot == 0 {
		return 0
	}
	return math.Pi
}
