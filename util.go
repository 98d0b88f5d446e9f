package main

import (
	"crypto/rand"
	"encoding/hex"
	"math"
)

// GenerateID returns a random hex string of the given byte length
func GenerateID(byteLen int) string {
	b := make([]byte, byteLen)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// round1 rounds to one decimal place to keep snapshots compact
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
