package main

import (
	"crypto/rand"
	"errors"
	"log"
	"strings"
	"sync"
	"time"
)

// Room codes are 4 characters from an alphabet without I and O, which
// read ambiguously on a shared screen.
const (
	roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	roomCodeLen      = 4
)

// WaitingTimeout bounds how long a room may sit in Waiting with a
// single member before the janitor evicts it. A variable so tests can
// shorten it.
var WaitingTimeout = 10 * time.Minute

var (
	errRoomNotFound = errors.New("room not found")
	errRoomFull     = errors.New("room is full")
)

// RoomManager owns the code -> Room mapping. It is the only component
// that creates or destroys rooms.
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	// OnMatchEnded is copied into rooms at creation for win/loss
	// persistence. Set it before creating any room. May be nil.
	OnMatchEnded func(code, winnerID, loserID string, scores [2]int)
}

// NewRoomManager creates an empty registry
func NewRoomManager() *RoomManager {
	return &RoomManager{
		rooms: make(map[string]*Room),
	}
}

func generateCode() string {
	b := make([]byte, roomCodeLen)
	rand.Read(b)
	for i := range b {
		b[i] = roomCodeAlphabet[int(b[i])%len(roomCodeAlphabet)]
	}
	return string(b)
}

// CreateRoom registers a new Waiting room with hostID as sole member
// and returns it. Code generation retries until the candidate does
// not collide with a live room.
func (rm *RoomManager) CreateRoom(hostID string, host Broadcaster) *Room {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	for {
		code := generateCode()
		if _, exists := rm.rooms[code]; exists {
			continue
		}
		room := NewRoom(code, hostID, host)
		room.onEnded = rm.OnMatchEnded
		rm.rooms[code] = room
		log.Printf("room %s created by %s", code, hostID)
		return room
	}
}

// JoinRoom binds playerID as the second member of the room. The
// successful append is what transitions the room to Running.
func (rm *RoomManager) JoinRoom(code, playerID string, c Broadcaster) (*Room, error) {
	room := rm.GetRoom(code)
	if room == nil {
		return nil, errRoomNotFound
	}
	if !room.AddMember(playerID, c) {
		return nil, errRoomFull
	}
	return room, nil
}

// GetRoom looks a room up by code, case-insensitively
func (rm *RoomManager) GetRoom(code string) *Room {
	code = normalizeCode(code)
	if code == "" {
		return nil
	}
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.rooms[code]
}

// RemoveRoom cancels the room's tick loop and evicts it. Idempotent.
func (rm *RoomManager) RemoveRoom(code string) {
	code = normalizeCode(code)
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if room, ok := rm.rooms[code]; ok {
		room.Stop()
		delete(rm.rooms, code)
		log.Printf("room %s destroyed", code)
	}
}

// RemovePlayer scans all rooms for the player, removes them from their
// room's member list and deletes the room if it became empty. Returns
// the code the player was removed from.
func (rm *RoomManager) RemovePlayer(playerID string) (string, bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	for code, room := range rm.rooms {
		found, empty := room.removeMember(playerID)
		if !found {
			continue
		}
		if empty {
			room.Stop()
			delete(rm.rooms, code)
			log.Printf("room %s destroyed", code)
		}
		return code, true
	}
	return "", false
}

// RoomCount returns the number of live rooms
func (rm *RoomManager) RoomCount() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.rooms)
}

// SweepWaiting evicts rooms stuck in Waiting longer than maxAge and
// returns how many were removed. The lone member, if connected, is
// told the room expired.
func (rm *RoomManager) SweepWaiting(maxAge time.Duration) int {
	rm.mu.RLock()
	var stale []*Room
	for _, room := range rm.rooms {
		if room.idleInWaiting(maxAge) {
			stale = append(stale, room)
		}
	}
	rm.mu.RUnlock()

	swept := 0
	for _, room := range stale {
		// A player may have joined since the scan
		if !room.idleInWaiting(maxAge) {
			continue
		}
		room.mu.Lock()
		for _, c := range room.clients {
			c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: "room expired"}})
		}
		room.mu.Unlock()
		rm.RemoveRoom(room.Code)
		swept++
	}
	return swept
}

// Janitor periodically sweeps idle Waiting rooms until stop is closed.
// A nil stop channel runs it forever.
func (rm *RoomManager) Janitor(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := rm.SweepWaiting(WaitingTimeout); n > 0 {
				log.Printf("swept %d idle waiting room(s)", n)
			}
		case <-stop:
			return
		}
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
