package main

import (
	"log"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// RoomPhase is the room lifecycle state
type RoomPhase int

const (
	PhaseWaiting RoomPhase = 0 // 0 or 1 member, no simulation
	PhaseRunning RoomPhase = 1 // tick loop live
	PhaseEnded   RoomPhase = 2 // win reached, waiting for rematch votes
)

// Broadcaster is the outbound half of a member's connection
type Broadcaster interface {
	SendJSON(msg interface{})
	SendBinary(data []byte)
}

// Room holds one two-player match. Members are kept in join order:
// index 0 is the host and index 1 the challenger. Slot order drives
// spawn side and score bucket.
//
// All state is guarded by mu. The tick loop is a single goroutine per
// room, so successive ticks of one room never overlap; exactly one
// loop may be scheduled at a time and every transition out of Running
// cancels it before doing anything else.
type Room struct {
	Code string

	mu           sync.Mutex
	members      []string // connection ids, join order = slot order
	clients      map[string]Broadcaster
	phase        RoomPhase
	players      map[string]*Player // present iff phase != Waiting
	bullets      []*Bullet
	scores       [2]int
	rematchVotes map[string]bool
	stopTick     chan struct{} // non-nil iff a tick loop is scheduled
	tick         uint64
	createdAt    time.Time

	// onEnded is invoked (in its own goroutine) when a match finishes,
	// for win/loss persistence. May be nil.
	onEnded func(code, winnerID, loserID string, scores [2]int)
}

// NewRoom creates a Waiting room with the host as sole member
func NewRoom(code, hostID string, host Broadcaster) *Room {
	return &Room{
		Code:      code,
		members:   []string{hostID},
		clients:   map[string]Broadcaster{hostID: host},
		phase:     PhaseWaiting,
		createdAt: time.Now(),
	}
}

// AddMember appends a second member. Returns false if the room is
// full. The second join is exactly what starts the match.
func (r *Room) AddMember(id string, c Broadcaster) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.members) >= 2 {
		return false
	}
	r.members = append(r.members, id)
	r.clients[id] = c

	if len(r.members) == 2 {
		r.initSimLocked()
		r.phase = PhaseRunning
		r.startTickLocked()
		r.broadcastLocked(Envelope{T: MsgGameStart, Data: RoomCodeMsg{RoomCode: r.Code}})
		log.Printf("match started in room %s", r.Code)
	}
	return true
}

// removeMember drops a member from the room. Reports whether the id
// was a member and whether the room is now empty. A running match
// cannot continue short-handed, so the tick loop stops too.
func (r *Room) removeMember(id string) (found, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, m := range r.members {
		if m == id {
			r.members = append(r.members[:i], r.members[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return false, false
	}
	delete(r.clients, id)
	delete(r.players, id)
	if len(r.members) < 2 {
		r.stopTickLocked()
	}
	return true, len(r.members) == 0
}

// Teardown cancels the tick loop and notifies every member except the
// leaver. Safe to call more than once; the registry erases the room
// afterwards.
func (r *Room) Teardown(leaverID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopTickLocked()
	for id, c := range r.clients {
		if id != leaverID {
			c.SendJSON(Envelope{T: MsgOpponentLeft})
		}
	}
}

// Stop cancels the tick loop. Idempotent.
func (r *Room) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopTickLocked()
}

// initSimLocked (re)initializes the simulation: players at mirrored
// spawn points, zero scores, no bullets.
func (r *Room) initSimLocked() {
	r.players = make(map[string]*Player, len(r.members))
	for slot, id := range r.members {
		r.players[id] = NewPlayer(id, slot)
	}
	r.bullets = nil
	r.scores = [2]int{}
	r.rematchVotes = make(map[string]bool)
}

// startTickLocked schedules the tick loop. Re-entrant scheduling is
// forbidden: a second call while a loop is live is a no-op.
func (r *Room) startTickLocked() {
	if r.stopTick != nil {
		return
	}
	stop := make(chan struct{})
	r.stopTick = stop
	go r.run(stop)
}

// stopTickLocked cancels the tick loop. Cancelling an absent loop is
// a no-op, never an error: an explicit leave and the trailing
// disconnect can both race to tear the same room down.
func (r *Room) stopTickLocked() {
	if r.stopTick != nil {
		close(r.stopTick)
		r.stopTick = nil
	}
}

func (r *Room) run(stop <-chan struct{}) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.update()
		case <-stop:
			return
		}
	}
}

// update runs one tick: advance bullets, resolve collisions and
// scoring, then either end the match or broadcast a snapshot.
//
// Bullets are processed in sequence order and players in slot order
// within a bullet; each bullet scores at most once and is dropped the
// moment it hits anything. Two crossing bullets can therefore both
// score in the same tick.
func (r *Room) update() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseRunning {
		return
	}
	r.tick++

	live := r.bullets[:0]
	for _, b := range r.bullets {
		b.Advance()
		if b.OutOfBounds() || b.HitsObstacle() {
			continue
		}
		hit := false
		for slot, id := range r.members {
			if id == b.OwnerID {
				continue
			}
			p := r.players[id]
			if p == nil || !b.Hits(p) {
				continue
			}
			if owner := r.slotOfLocked(b.OwnerID); owner >= 0 {
				r.scores[owner]++
			}
			p.Respawn(slot)
			hit = true
			break
		}
		if !hit {
			live = append(live, b)
		}
	}
	r.bullets = live

	for slot, score := range r.scores {
		if score >= PointsToWin {
			r.endLocked(slot)
			return
		}
	}
	r.broadcastSnapshotLocked()
}

// endLocked transitions Running -> Ended: the loop is cancelled first,
// simulation values are kept for end-of-match display.
func (r *Room) endLocked(winnerSlot int) {
	r.stopTickLocked()
	r.phase = PhaseEnded
	r.rematchVotes = make(map[string]bool)

	winnerID := r.members[winnerSlot]
	r.broadcastLocked(Envelope{T: MsgGameOver, Data: GameOverMsg{
		Winner: winnerID,
		Scores: r.scores,
	}})
	log.Printf("match ended in room %s, winner %s (%d-%d)", r.Code, winnerID, r.scores[0], r.scores[1])

	if r.onEnded != nil && len(r.members) == 2 {
		loserID := r.members[1-winnerSlot]
		go r.onEnded(r.Code, winnerID, loserID, r.scores)
	}
}

// HandleInput applies a movement/aim command. Silently ignored unless
// the sender is a bound player in a running match.
func (r *Room) HandleInput(playerID string, in InputMsg) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseRunning {
		return
	}
	p := r.players[playerID]
	if p == nil {
		return
	}
	p.ApplyMove(in)
}

// HandleShoot applies a shot command, subject to the cooldown. The
// shot origin and angle are taken from the client as-is, matching the
// aim state it rendered; the cooldown and ownership checks are the
// authoritative part.
func (r *Room) HandleShoot(playerID string, s ShootMsg) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseRunning {
		return
	}
	p := r.players[playerID]
	if p == nil {
		return
	}
	now := time.Now()
	if !p.CanShoot(now) {
		return
	}
	p.LastShot = now
	r.bullets = append(r.bullets, NewBullet(playerID, s.X, s.Y, s.Angle))
}

// HandleRematch registers a rematch vote. The first vote notifies the
// opponent; once both members have voted, the simulation is reset and
// the match restarts.
func (r *Room) HandleRematch(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseEnded || r.slotOfLocked(playerID) < 0 {
		return
	}
	r.rematchVotes[playerID] = true

	for id, c := range r.clients {
		if id != playerID {
			c.SendJSON(Envelope{T: MsgRematchPending})
		}
	}

	if len(r.members) == 2 && len(r.rematchVotes) == 2 {
		r.initSimLocked()
		r.phase = PhaseRunning
		r.startTickLocked()
		r.broadcastLocked(Envelope{T: MsgGameRestart, Data: RoomCodeMsg{RoomCode: r.Code}})
		log.Printf("match restarted in room %s", r.Code)
	}
}

func (r *Room) broadcastSnapshotLocked() {
	snap := Snapshot{
		Players: make([]PlayerState, 0, len(r.members)),
		Bullets: make([]BulletState, 0, len(r.bullets)),
		Scores:  r.scores,
		Tick:    r.tick,
	}
	for slot, id := range r.members {
		if p := r.players[id]; p != nil {
			snap.Players = append(snap.Players, p.ToState(slot))
		}
	}
	for _, b := range r.bullets {
		snap.Bullets = append(snap.Bullets, b.ToState())
	}

	data, err := msgpack.Marshal(snap)
	if err != nil {
		log.Printf("snapshot marshal: %v", err)
		return
	}
	for _, c := range r.clients {
		c.SendBinary(data)
	}
}

func (r *Room) broadcastLocked(msg Envelope) {
	for _, c := range r.clients {
		c.SendJSON(msg)
	}
}

func (r *Room) slotOfLocked(id string) int {
	for slot, m := range r.members {
		if m == id {
			return slot
		}
	}
	return -1
}

// Phase returns the current lifecycle state
func (r *Room) Phase() RoomPhase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// MemberCount returns the number of bound members
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Members returns the member ids in slot order
func (r *Room) Members() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.members))
	copy(out, r.members)
	return out
}

// idleInWaiting reports whether the room has sat in Waiting longer
// than maxAge.
func (r *Room) idleInWaiting(maxAge time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase == PhaseWaiting && time.Since(r.createdAt) > maxAge
}
