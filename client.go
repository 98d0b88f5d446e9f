package main

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	sendBufSize       = 256
	maxMessagesPerSec = 60
)

// Client represents one WebSocket connection. Its id is the connection
// identifier rooms key members by.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	id         string
	remoteAddr string
	msgCount   int
	msgResetAt time.Time

	// mu guards roomCode and auth state: the read pump writes them,
	// the hub teardown and match recording paths read them.
	mu           sync.Mutex
	roomCode     string
	authPlayerID int64  // 0 = guest
	authUsername string // "" = guest
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		id:         GenerateID(8),
		remoteAddr: remoteAddr,
	}
}

func (c *Client) getRoomCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomCode
}

func (c *Client) setRoomCode(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomCode = code
}

// takeRoomCode clears the binding and returns what it was
func (c *Client) takeRoomCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	code := c.roomCode
	c.roomCode = ""
	return code
}

// clearRoomCode drops the binding only if it still points at code, so
// a binding to a newer room is never clobbered.
func (c *Client) clearRoomCode(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.roomCode == code {
		c.roomCode = ""
	}
}

// boundRoomCode returns the client's room binding. A binding to a room
// that no longer exists (torn down or swept) counts as unbound and is
// cleared.
func (c *Client) boundRoomCode() string {
	code := c.getRoomCode()
	if code == "" {
		return ""
	}
	if c.hub.rooms.GetRoom(code) == nil {
		c.clearRoomCode(code)
		return ""
	}
	return code
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws error: %v", err)
			}
			break
		}

		// Rate limiting
		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			log.Printf("rate limit exceeded for %s, disconnecting", c.remoteAddr)
			break
		}

		c.handleMessage(message)
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// 0xFF prefix marks binary frames (snapshots)
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON sends a JSON message to the client
func (c *Client) SendJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("marshal error: %v", err)
		return
	}
	c.SendRaw(data)
}

// SendRaw sends pre-marshaled bytes as a text message to the client
func (c *Client) SendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
		// Client too slow, drop message
	}
}

// SendBinary sends pre-marshaled bytes as a binary WebSocket message.
// Prefixes with 0xFF so WritePump can distinguish from text.
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

// handleMessage routes incoming messages (single-pass decode via InEnvelope)
func (c *Client) handleMessage(raw []byte) {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("unmarshal error: %v", err)
		return
	}

	switch env.T {
	case MsgCreateRoom:
		c.handleCreateRoom()
	case MsgJoinRoom:
		c.handleJoinRoom(env.D)
	case MsgInput:
		c.handleInput(env.D)
	case MsgShoot:
		c.handleShoot(env.D)
	case MsgLeaveRoom:
		c.hub.dropFromRoom(c)
	case MsgPlayAgain:
		c.handlePlayAgain()
	case MsgRegister:
		c.handleRegister(env.D)
	case MsgLogin:
		c.handleLogin(env.D)
	case MsgAuth:
		c.handleAuth(env.D)
	case MsgProfile:
		c.handleProfile()
	}
}

func (c *Client) handleCreateRoom() {
	if c.boundRoomCode() != "" {
		c.SendJSON(Envelope{T: MsgRoomCreated, Data: RoomResultMsg{Success: false, Error: "already in a room"}})
		return
	}
	room := c.hub.rooms.CreateRoom(c.id, c)
	c.setRoomCode(room.Code)
	c.SendJSON(Envelope{T: MsgRoomCreated, Data: RoomResultMsg{Success: true, RoomCode: room.Code}})
}

func (c *Client) handleJoinRoom(data json.RawMessage) {
	var msg JoinRoomMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if c.boundRoomCode() != "" {
		c.SendJSON(Envelope{T: MsgJoinResult, Data: RoomResultMsg{Success: false, Error: "already in a room"}})
		return
	}
	room, err := c.hub.rooms.JoinRoom(msg.RoomCode, c.id, c)
	if err != nil {
		c.SendJSON(Envelope{T: MsgJoinResult, Data: RoomResultMsg{Success: false, Error: err.Error()}})
		return
	}
	c.setRoomCode(room.Code)
	c.SendJSON(Envelope{T: MsgJoinResult, Data: RoomResultMsg{Success: true, RoomCode: room.Code}})
}

func (c *Client) handleInput(data json.RawMessage) {
	var input InputMsg
	if err := json.Unmarshal(data, &input); err != nil {
		return
	}
	room := c.hub.rooms.GetRoom(c.getRoomCode())
	if room == nil {
		return
	}
	room.HandleInput(c.id, input)
}

func (c *Client) handleShoot(data json.RawMessage) {
	var msg ShootMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	room := c.hub.rooms.GetRoom(c.getRoomCode())
	if room == nil {
		return
	}
	room.HandleShoot(c.id, msg)
}

func (c *Client) handlePlayAgain() {
	room := c.hub.rooms.GetRoom(c.getRoomCode())
	if room == nil {
		return
	}
	room.HandleRematch(c.id)
}

func (c *Client) authID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authPlayerID
}

func (c *Client) setAuth(id int64, username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authPlayerID = id
	c.authUsername = username
}

func (c *Client) handleRegister(data json.RawMessage) {
	if c.hub.auth == nil {
		return
	}
	var msg RegisterMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Register(msg.Username, msg.Password)
	if err != nil {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: err.Error()}})
		return
	}
	c.setAuth(id, msg.Username)
	c.SendJSON(Envelope{T: MsgAuthOK, Data: AuthOKMsg{Token: token, Username: msg.Username, PlayerID: id}})
}

func (c *Client) handleLogin(data json.RawMessage) {
	if c.hub.auth == nil {
		return
	}
	var msg LoginMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Login(msg.Username, msg.Password, c.remoteAddr)
	if err != nil {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: err.Error()}})
		return
	}
	c.setAuth(id, msg.Username)
	c.SendJSON(Envelope{T: MsgAuthOK, Data: AuthOKMsg{Token: token, Username: msg.Username, PlayerID: id}})
}

func (c *Client) handleAuth(data json.RawMessage) {
	if c.hub.auth == nil {
		return
	}
	var msg AuthMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, username, err := c.hub.auth.ValidateToken(msg.Token)
	if err != nil {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: "invalid token"}})
		return
	}
	c.setAuth(id, username)
	c.SendJSON(Envelope{T: MsgAuthOK, Data: AuthOKMsg{Token: msg.Token, Username: username, PlayerID: id}})
}

func (c *Client) handleProfile() {
	c.mu.Lock()
	pid := c.authPlayerID
	username := c.authUsername
	c.mu.Unlock()

	if c.hub.db == nil || pid == 0 {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: "not authenticated"}})
		return
	}
	stats, err := c.hub.db.GetStats(pid)
	if err != nil || stats == nil {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: "profile not found"}})
		return
	}
	c.SendJSON(Envelope{T: MsgProfileData, Data: ProfileDataMsg{
		Username: username,
		Wins:     stats.Wins,
		Losses:   stats.Losses,
	}})
}
