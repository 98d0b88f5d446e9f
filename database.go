package main

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection. Room state is never
// persisted; only accounts, their win/loss stats and finished match
// results live here.
type DB struct {
	conn *sql.DB
}

// PlayerRow represents an account record
type PlayerRow struct {
	ID        int64
	Username  string
	PassHash  string
	CreatedAt time.Time
}

// StatsRow represents per-account win/loss stats
type StatsRow struct {
	PlayerID int64
	Wins     int
	Losses   int
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// WAL for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS players (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	username   TEXT NOT NULL UNIQUE COLLATE NOCASE,
	pass_hash  TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS stats (
	player_id INTEGER PRIMARY KEY REFERENCES players(id),
	wins      INTEGER NOT NULL DEFAULT 0,
	losses    INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS matches (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	room_code   TEXT NOT NULL,
	score0      INTEGER NOT NULL,
	score1      INTEGER NOT NULL,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database
func (db *DB) Close() error {
	return db.conn.Close()
}

// GetSetting returns a settings value, or "" if absent
func (db *DB) GetSetting(key string) string {
	var value string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		return ""
	}
	return value
}

// SetSetting stores a settings value
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	return err
}

// CreatePlayer inserts a new account plus its empty stats row
func (db *DB) CreatePlayer(username, passHash string) (int64, error) {
	res, err := db.conn.Exec(
		"INSERT INTO players (username, pass_hash) VALUES (?, ?)",
		username, passHash)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if _, err := db.conn.Exec("INSERT INTO stats (player_id) VALUES (?)", id); err != nil {
		return 0, err
	}
	return id, nil
}

// GetPlayerByUsername returns the account or nil if not found
func (db *DB) GetPlayerByUsername(username string) (*PlayerRow, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, pass_hash, created_at FROM players WHERE username = ?",
		username)
	var p PlayerRow
	err := row.Scan(&p.ID, &p.Username, &p.PassHash, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UsernameExists checks if a username is taken
func (db *DB) UsernameExists(username string) (bool, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM players WHERE username = ?", username).Scan(&n)
	return n > 0, err
}

// GetStats returns the stats row for an account, or nil if absent
func (db *DB) GetStats(playerID int64) (*StatsRow, error) {
	row := db.conn.QueryRow(
		"SELECT player_id, wins, losses FROM stats WHERE player_id = ?",
		playerID)
	var s StatsRow
	err := row.Scan(&s.PlayerID, &s.Wins, &s.Losses)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// AddWin increments an account's win count
func (db *DB) AddWin(playerID int64) error {
	_, err := db.conn.Exec("UPDATE stats SET wins = wins + 1 WHERE player_id = ?", playerID)
	return err
}

// AddLoss increments an account's loss count
func (db *DB) AddLoss(playerID int64) error {
	_, err := db.conn.Exec("UPDATE stats SET losses = losses + 1 WHERE player_id = ?", playerID)
	return err
}

// RecordMatch stores a finished match result
func (db *DB) RecordMatch(roomCode string, score0, score1 int) error {
	_, err := db.conn.Exec(
		"INSERT INTO matches (room_code, score0, score1) VALUES (?, ?, ?)",
		roomCode, score0, score1)
	return err
}
