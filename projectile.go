package main

import "math"

// Bullet is a live projectile. Bullets are never mutated after they
// are dropped; dead ones are filtered out of the room's live slice.
type Bullet struct {
	ID      string
	OwnerID string
	X, Y    float64
	VX, VY  float64
}

// NewBullet creates a bullet from a shot origin and angle
func NewBullet(ownerID string, x, y, angle float64) *Bullet {
	return &Bullet{
		ID:      GenerateID(3),
		OwnerID: ownerID,
		X:       x,
		Y:       y,
		VX:      math.Cos(angle) * BulletSpeed,
		VY:      math.Sin(angle) * BulletSpeed,
	}
}

// Advance moves the bullet one tick
func (b *Bullet) Advance() {
	b.X += b.VX
	b.Y += b.VY
}

// OutOfBounds reports whether the bullet has left the arena
func (b *Bullet) OutOfBounds() bool {
	return b.X < 0 || b.X > ArenaWidth || b.Y < 0 || b.Y > ArenaHeight
}

// HitsObstacle reports whether the bullet overlaps any obstacle
func (b *Bullet) HitsObstacle() bool {
	return obstacleHit(b.X, b.Y, BulletRadius)
}

// Hits reports whether the bullet overlaps a player
func (b *Bullet) Hits(p *Player) bool {
	return Distance(b.X, b.Y, p.X, p.Y) < PlayerRadius+BulletRadius
}

// ToState converts to protocol state
func (b *Bullet) ToState() BulletState {
	return BulletState{
		ID:    b.ID,
		X:     round1(b.X),
		Y:     round1(b.Y),
		Owner: b.OwnerID,
	}
}
