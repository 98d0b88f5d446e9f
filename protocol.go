package main

import "encoding/json"

// Client -> Server message types
const (
	MsgCreateRoom = "createRoom"
	MsgJoinRoom   = "joinRoom"
	MsgInput      = "input"
	MsgShoot      = "shoot"
	MsgLeaveRoom  = "leaveRoom"
	MsgPlayAgain  = "playAgain"
	MsgRegister   = "register"
	MsgLogin      = "login"
	MsgAuth       = "auth" // resume with a stored token
	MsgProfile    = "profile"
)

// Server -> Client message types. State snapshots are not enveloped:
// they are sent as binary WebSocket frames containing a msgpack-encoded
// Snapshot, everything else is a JSON Envelope on a text frame.
const (
	MsgRoomCreated    = "roomCreated"
	MsgJoinResult     = "joinResult"
	MsgGameStart      = "gameStart"
	MsgGameOver       = "gameOver"
	MsgOpponentLeft   = "opponentDisconnect"
	MsgRematchPending = "rematchPending"
	MsgGameRestart    = "gameRestart"
	MsgError          = "error"
	MsgAuthOK         = "authOk"
	MsgProfileData    = "profileData"
)

// Envelope wraps all outgoing JSON messages with a type field
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages — json.RawMessage avoids double-unmarshal
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// JoinRoomMsg asks to join an existing room by code
type JoinRoomMsg struct {
	RoomCode string `json:"roomCode"`
}

// RoomResultMsg answers createRoom and joinRoom requests
type RoomResultMsg struct {
	Success  bool   `json:"success"`
	RoomCode string `json:"roomCode,omitempty"`
	Error    string `json:"error,omitempty"`
}

// InputMsg carries one movement/aim input
type InputMsg struct {
	Up    bool    `json:"up"`
	Down  bool    `json:"down"`
	Left  bool    `json:"left"`
	Right bool    `json:"right"`
	AimX  float64 `json:"aimX"`
	AimY  float64 `json:"aimY"`
}

// ShootMsg carries one shot request. Origin and angle come from the
// client; see the trust note in room.go.
type ShootMsg struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Angle float64 `json:"angle"`
}

// RoomCodeMsg names the room for gameStart and gameRestart
type RoomCodeMsg struct {
	RoomCode string `json:"roomCode"`
}

// GameOverMsg names the winner by connection id
type GameOverMsg struct {
	Winner string `json:"winner"`
	Scores [2]int `json:"scores"`
}

// PlayerState is broadcast per player each tick
type PlayerState struct {
	ID    string  `msgpack:"id"`
	Slot  int     `msgpack:"s"`
	X     float64 `msgpack:"x"`
	Y     float64 `msgpack:"y"`
	Angle float64 `msgpack:"r"`
}

// BulletState is broadcast per live bullet
type BulletState struct {
	ID    string  `msgpack:"id"`
	X     float64 `msgpack:"x"`
	Y     float64 `msgpack:"y"`
	Owner string  `msgpack:"o"`
}

// Snapshot is the full per-tick state broadcast, msgpack-encoded
type Snapshot struct {
	Players []PlayerState `msgpack:"p"`
	Bullets []BulletState `msgpack:"b"`
	Scores  [2]int        `msgpack:"sc"`
	Tick    uint64        `msgpack:"t"`
}

// RegisterMsg creates an account
type RegisterMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginMsg authenticates with credentials
type LoginMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthMsg resumes a session with a stored token
type AuthMsg struct {
	Token string `json:"token"`
}

// AuthOKMsg confirms successful authentication
type AuthOKMsg struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	PlayerID int64  `json:"playerId"`
}

// ProfileDataMsg returns account stats
type ProfileDataMsg struct {
	Username string `json:"username"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
}

// ErrorMsg sends an error to the client
type ErrorMsg struct {
	Msg string `json:"msg"`
}
