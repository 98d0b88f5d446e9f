package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// ---------- helpers ----------

var roomCodeRegex = regexp.MustCompile(`^[A-HJ-NP-Z]{4}$`)

// startTestServer spins up an httptest.Server with a Hub (no database)
// and returns the server, its WebSocket URL, and a cleanup func.
func startTestServer(t *testing.T) (*httptest.Server, string, func()) {
	t.Helper()

	hub := NewHub(nil)
	go hub.Run()

	mux := SetupRoutes(hub, "")
	srv := httptest.NewServer(mux)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return srv, wsURL, srv.Close
}

// dialWS opens a WebSocket connection to the test server.
func dialWS(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial WS: %v", err)
	}
	return conn
}

func sendMsg(t *testing.T, conn *websocket.Conn, typ string, data interface{}) {
	t.Helper()
	b, err := json.Marshal(Envelope{T: typ, Data: data})
	if err != nil {
		t.Fatalf("marshal %s: %v", typ, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// pendingEnvelopes holds JSON envelopes a waitForType call read but was
// not looking for, per connection. Event order across types is
// unordered (e.g. the joiner may see gameStart before joinResult), so
// skipped envelopes are buffered for later waits instead of dropped.
var pendingEnvelopes = map[*websocket.Conn][]InEnvelope{}

// waitForType reads frames until a JSON envelope of the wanted type
// arrives, skipping snapshots and buffering unrelated messages.
func waitForType(t *testing.T, conn *websocket.Conn, typ string) json.RawMessage {
	t.Helper()
	for i, env := range pendingEnvelopes[conn] {
		if env.T == typ {
			pendingEnvelopes[conn] = append(pendingEnvelopes[conn][:i], pendingEnvelopes[conn][i+1:]...)
			return env.D
		}
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < 200; i++ {
		mt, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read waiting for %s: %v", typ, err)
		}
		if mt != websocket.TextMessage {
			continue
		}
		var env InEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		if env.T == typ {
			return env.D
		}
		pendingEnvelopes[conn] = append(pendingEnvelopes[conn], env)
	}
	t.Fatalf("never received %s", typ)
	return nil
}

// readSnapshot reads frames until a binary msgpack snapshot arrives.
func readSnapshot(t *testing.T, conn *websocket.Conn) Snapshot {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < 200; i++ {
		mt, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read waiting for snapshot: %v", err)
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		var snap Snapshot
		if err := msgpack.Unmarshal(raw, &snap); err != nil {
			t.Fatalf("msgpack unmarshal: %v", err)
		}
		return snap
	}
	t.Fatal("never received a snapshot")
	return Snapshot{}
}

func createRoom(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	sendMsg(t, conn, MsgCreateRoom, nil)
	var res RoomResultMsg
	if err := json.Unmarshal(waitForType(t, conn, MsgRoomCreated), &res); err != nil {
		t.Fatalf("unmarshal roomCreated: %v", err)
	}
	if !res.Success {
		t.Fatalf("create failed: %s", res.Error)
	}
	return res.RoomCode
}

func joinRoom(t *testing.T, conn *websocket.Conn, code string) RoomResultMsg {
	t.Helper()
	sendMsg(t, conn, MsgJoinRoom, JoinRoomMsg{RoomCode: code})
	var res RoomResultMsg
	if err := json.Unmarshal(waitForType(t, conn, MsgJoinResult), &res); err != nil {
		t.Fatalf("unmarshal joinResult: %v", err)
	}
	return res
}

// ---------- tests ----------

func TestCreateRoomReturnsValidCode(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	c1 := dialWS(t, wsURL)
	defer c1.Close()

	code := createRoom(t, c1)
	if !roomCodeRegex.MatchString(code) {
		t.Errorf("room code %q is not 4 chars from the non-ambiguous alphabet", code)
	}
}

func TestJoinStartsMatchAndStreamsSnapshots(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	c1 := dialWS(t, wsURL)
	defer c1.Close()
	c2 := dialWS(t, wsURL)
	defer c2.Close()

	code := createRoom(t, c1)
	if res := joinRoom(t, c2, code); !res.Success {
		t.Fatalf("join failed: %s", res.Error)
	}

	waitForType(t, c1, MsgGameStart)
	waitForType(t, c2, MsgGameStart)

	snap := readSnapshot(t, c1)
	if len(snap.Players) != 2 {
		t.Fatalf("expected 2 players in snapshot, got %d", len(snap.Players))
	}
	if snap.Scores != [2]int{} {
		t.Errorf("fresh match should have zero scores, got %v", snap.Scores)
	}
	if snap.Players[0].Slot != 0 || snap.Players[1].Slot != 1 {
		t.Error("snapshot players should be in slot order")
	}
}

func TestJoinNonexistentRoom(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	c1 := dialWS(t, wsURL)
	defer c1.Close()

	res := joinRoom(t, c1, "QQQQ")
	if res.Success {
		t.Fatal("joining a nonexistent room should fail")
	}
	if res.Error != "room not found" {
		t.Errorf("unexpected error: %q", res.Error)
	}
}

func TestJoinFullRoom(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	c1 := dialWS(t, wsURL)
	defer c1.Close()
	c2 := dialWS(t, wsURL)
	defer c2.Close()
	c3 := dialWS(t, wsURL)
	defer c3.Close()

	code := createRoom(t, c1)
	if res := joinRoom(t, c2, code); !res.Success {
		t.Fatalf("second join failed: %s", res.Error)
	}
	if res := joinRoom(t, c3, code); res.Success || res.Error != "room is full" {
		t.Errorf("third join should fail with room is full, got %+v", res)
	}
}

func TestInputAndShootReflectedInSnapshots(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	c1 := dialWS(t, wsURL)
	defer c1.Close()
	c2 := dialWS(t, wsURL)
	defer c2.Close()

	code := createRoom(t, c1)
	joinRoom(t, c2, code)
	waitForType(t, c1, MsgGameStart)

	sendMsg(t, c1, MsgInput, InputMsg{Right: true, AimX: 400, AimY: 300})
	sendMsg(t, c1, MsgShoot, ShootMsg{X: 100, Y: 200, Angle: 0})

	deadline := time.Now().Add(2 * time.Second)
	var moved, shot bool
	for time.Now().Before(deadline) && !(moved && shot) {
		snap := readSnapshot(t, c1)
		for _, p := range snap.Players {
			if p.Slot == 0 && p.X > 100 {
				moved = true
			}
		}
		if len(snap.Bullets) > 0 {
			shot = true
		}
	}
	if !moved {
		t.Error("host movement never showed up in a snapshot")
	}
	if !shot {
		t.Error("bullet never showed up in a snapshot")
	}
}

func TestDisconnectNotifiesOpponentAndDestroysRoom(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	c1 := dialWS(t, wsURL)
	defer c1.Close()
	c2 := dialWS(t, wsURL)

	code := createRoom(t, c1)
	joinRoom(t, c2, code)
	waitForType(t, c1, MsgGameStart)

	c2.Close()
	waitForType(t, c1, MsgOpponentLeft)

	c3 := dialWS(t, wsURL)
	defer c3.Close()
	if res := joinRoom(t, c3, code); res.Success || res.Error != "room not found" {
		t.Errorf("destroyed room should not be joinable, got %+v", res)
	}
}

func TestRemainingMemberCanStartNewRoom(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	c1 := dialWS(t, wsURL)
	defer c1.Close()
	c2 := dialWS(t, wsURL)

	code := createRoom(t, c1)
	joinRoom(t, c2, code)
	waitForType(t, c1, MsgGameStart)

	c2.Close()
	waitForType(t, c1, MsgOpponentLeft)

	// The survivor is back in a pre-match state and may host again
	newCode := createRoom(t, c1)
	if !roomCodeRegex.MatchString(newCode) {
		t.Errorf("second room code %q is invalid", newCode)
	}
}

func TestLeaveRoomNotifiesOpponent(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	c1 := dialWS(t, wsURL)
	defer c1.Close()
	c2 := dialWS(t, wsURL)
	defer c2.Close()

	code := createRoom(t, c1)
	joinRoom(t, c2, code)
	waitForType(t, c2, MsgGameStart)

	sendMsg(t, c1, MsgLeaveRoom, nil)
	waitForType(t, c2, MsgOpponentLeft)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, cleanup := startTestServer(t)
	defer cleanup()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("unexpected health body: %v", body)
	}
}

func TestQRCodeEndpoint(t *testing.T) {
	srv, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	c1 := dialWS(t, wsURL)
	defer c1.Close()
	code := createRoom(t, c1)

	resp, err := http.Get(srv.URL + "/qr/" + code)
	if err != nil {
		t.Fatalf("get qr: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %s", ct)
	}

	// Digits are outside the code alphabet, so this can never exist
	resp2, err := http.Get(srv.URL + "/qr/1234")
	if err != nil {
		t.Fatalf("get qr: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown code, got %d", resp2.StatusCode)
	}
}
