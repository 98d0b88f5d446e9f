package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenTTL       = 7 * 24 * time.Hour
	bcryptCost     = 12
	minPasswordLen = 4
	minUsernameLen = 2
	maxUsernameLen = 16

	loginWindow     = time.Minute
	loginsPerWindow = 10
)

// Auth issues and validates account tokens. Accounts are optional;
// the Hub only constructs an Auth when a database is configured.
type Auth struct {
	db     *DB
	secret []byte

	attemptMu sync.Mutex
	attempts  map[string]*loginCounter // keyed by IP
}

type loginCounter struct {
	count   int
	resetAt time.Time
}

func NewAuth(db *DB) *Auth {
	return &Auth{
		db:       db,
		secret:   signingSecret(db),
		attempts: make(map[string]*loginCounter),
	}
}

// signingSecret returns the persisted JWT secret, minting one on first
// run. Tokens survive restarts as long as the database does.
func signingSecret(db *DB) []byte {
	if db != nil {
		if h := db.GetSetting("jwt_secret"); h != "" {
			if b, err := hex.DecodeString(h); err == nil && len(b) == 32 {
				return b
			}
		}
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic("generate jwt secret: " + err.Error())
	}
	if db != nil {
		if err := db.SetSetting("jwt_secret", hex.EncodeToString(secret)); err != nil {
			log.Printf("persist jwt secret: %v", err)
		}
	}
	return secret
}

func validUsername(name string) bool {
	return len(name) >= minUsernameLen && len(name) <= maxUsernameLen
}

// Register creates an account and returns its id and a fresh token.
func (a *Auth) Register(username, password string) (int64, string, error) {
	username = strings.TrimSpace(username)
	if !validUsername(username) {
		return 0, "", fmt.Errorf("username must be %d-%d characters", minUsernameLen, maxUsernameLen)
	}
	if len(password) < minPasswordLen {
		return 0, "", fmt.Errorf("password must be at least %d characters", minPasswordLen)
	}

	taken, err := a.db.UsernameExists(username)
	if err != nil {
		return 0, "", fmt.Errorf("database error")
	}
	if taken {
		return 0, "", fmt.Errorf("username already taken")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return 0, "", fmt.Errorf("internal error")
	}
	id, err := a.db.CreatePlayer(username, string(hash))
	if err != nil {
		return 0, "", fmt.Errorf("failed to create account")
	}

	token, err := a.issueToken(id, username)
	if err != nil {
		return 0, "", fmt.Errorf("internal error")
	}
	return id, token, nil
}

// Login checks the credentials and returns the account id and a fresh
// token. Attempts are rate limited per IP.
func (a *Auth) Login(username, password, ip string) (int64, string, error) {
	if !a.allowLogin(ip) {
		return 0, "", fmt.Errorf("too many login attempts, try again later")
	}

	player, err := a.db.GetPlayerByUsername(username)
	if err != nil {
		return 0, "", fmt.Errorf("database error")
	}
	if player == nil || player.PassHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(player.PassHash), []byte(password)) != nil {
		return 0, "", fmt.Errorf("invalid username or password")
	}

	token, err := a.issueToken(player.ID, player.Username)
	if err != nil {
		return 0, "", fmt.Errorf("internal error")
	}
	return player.ID, token, nil
}

// ValidateToken resumes a session from a stored token.
func (a *Auth) ValidateToken(tokenStr string) (int64, string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return 0, "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, "", fmt.Errorf("invalid token")
	}
	id, ok := claims["sub"].(float64)
	if !ok {
		return 0, "", fmt.Errorf("invalid token claims")
	}
	username, ok := claims["name"].(string)
	if !ok {
		return 0, "", fmt.Errorf("invalid token claims")
	}
	return int64(id), username, nil
}

func (a *Auth) issueToken(playerID int64, username string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  playerID,
		"name": username,
		"iat":  now.Unix(),
		"exp":  now.Add(tokenTTL).Unix(),
	})
	return token.SignedString(a.secret)
}

func (a *Auth) allowLogin(ip string) bool {
	a.attemptMu.Lock()
	defer a.attemptMu.Unlock()

	now := time.Now()
	c, ok := a.attempts[ip]
	if !ok || now.After(c.resetAt) {
		a.attempts[ip] = &loginCounter{count: 1, resetAt: now.Add(loginWindow)}
		return true
	}
	c.count++
	return c.count <= loginsPerWindow
}
