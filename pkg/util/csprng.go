package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/pkg/errors"
)

// NewCSPRNG returns a slice of cryptographically random bytes
func NewCSPRNG(nbytes int) ([]byte, error) {
	buf := make([]byte, nbytes)

	if _, err := rand.Read(buf); err != nil {
		return nil, errors.Wrap(err, "failed to read random bytes")
	}

	return buf, nil
}

// NewCSPRNGHex is a hex string wrapper around NewCSPRNG
func NewCSPRNGHex(nbytes int) (string, error) {
	buf, err := NewCSPRNG(nbytes)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(buf), nil
}
