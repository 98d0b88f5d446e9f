package main

import (
	"log"
	"sync"
)

const (
	maxConnsPerIP = 5
	maxTotalConns = 1000
)

// Hub tracks connected clients and binds them to rooms through the
// registry. The registry is injected so it stays testable on its own.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client // connection id -> client

	register   chan *Client
	unregister chan *Client

	rooms *RoomManager

	// Connection limiting (mutex-protected, accessed from HTTP handlers)
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int

	// Auth & DB (nil when persistence is disabled)
	db   *DB
	auth *Auth
}

// NewHub creates a Hub. db may be nil, in which case accounts and
// match recording are disabled.
func NewHub(db *DB) *Hub {
	h := &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		rooms:      NewRoomManager(),
		ipConns:    make(map[string]int),
		db:         db,
	}
	if db != nil {
		h.auth = NewAuth(db)
	}
	h.rooms.OnMatchEnded = h.recordMatch
	return h
}

func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= maxTotalConns {
		return false
	}
	if h.ipConns[ip] >= maxConnsPerIP {
		return false
	}
	return true
}

func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// Run processes register/unregister events
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()
			// Disconnect is an implicit leave
			h.dropFromRoom(client)
		}
	}
}

// dropFromRoom tears down the client's room. Safe when the client is
// not in a room, and safe when an explicit leave already destroyed it.
// Every member is unbound before the leave notification goes out, so
// the remaining player is back in a pre-match state by the time they
// hear the opponent left.
func (h *Hub) dropFromRoom(c *Client) {
	code := c.takeRoomCode()
	if code == "" {
		return
	}
	room := h.rooms.GetRoom(code)
	if room == nil {
		return
	}
	for _, id := range room.Members() {
		if id == c.id {
			continue
		}
		h.mu.RLock()
		member := h.clients[id]
		h.mu.RUnlock()
		if member != nil {
			member.clearRoomCode(code)
		}
	}
	room.Teardown(c.id)
	h.rooms.RemoveRoom(code)
}

// recordMatch persists the outcome of a finished match. Only members
// playing on an account get stats; guests are skipped.
func (h *Hub) recordMatch(code, winnerID, loserID string, scores [2]int) {
	if h.db == nil {
		return
	}
	if err := h.db.RecordMatch(code, scores[0], scores[1]); err != nil {
		log.Printf("record match: %v", err)
	}

	h.mu.RLock()
	winner := h.clients[winnerID]
	loser := h.clients[loserID]
	h.mu.RUnlock()

	if winner != nil {
		if pid := winner.authID(); pid != 0 {
			if err := h.db.AddWin(pid); err != nil {
				log.Printf("record win: %v", err)
			}
		}
	}
	if loser != nil {
		if pid := loser.authID(); pid != 0 {
			if err := h.db.AddLoss(pid); err != nil {
				log.Printf("record loss: %v", err)
			}
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
