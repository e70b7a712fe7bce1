package util_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/resourcekeep/keep/pkg/util"
)

func TestNewULID(t *testing.T) {
	a := assert.New(t)

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := util.NewULID().String()
		a.Len(id, 26)
		a.False(seen[id])
		seen[id] = true
	}
}

func TestNewCSPRNG(t *testing.T) {
	a := assert.New(t)

	buf, err := util.NewCSPRNG(32)
	a.NoError(err)
	a.Len(buf, 32)

	s, err := util.NewCSPRNGHex(32)
	a.NoError(err)
	a.Len(s, 64)

	s2, err := util.NewCSPRNGHex(32)
	a.NoError(err)
	a.NotEqual(s, s2)
}
