package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	DefaultCodeLength = 6
	codeAlphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewID returns an opaque unique identifier for rooms, users, polls and options.
func NewID() string {
	return uuid.NewString()
}

// NewRoomCode returns a random human-shareable code of the given length.
func NewRoomCode(length int) (RoomCode, error) {
	if length <= 0 {
		length = DefaultCodeLength
	}
	max := big.NewInt(int64(len(codeAlphabet)))
	var sb strings.Builder
	sb.Grow(length)
	for range length {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("room code: %w", err)
		}
		sb.WriteByte(codeAlphabet[n.Int64()])
	}
	return RoomCode(sb.String()), nil
}

// NormalizeCode makes user-typed codes comparable with generated ones.
func NormalizeCode(raw string) RoomCode {
	return RoomCode(strings.ToUpper(strings.TrimSpace(raw)))
}
