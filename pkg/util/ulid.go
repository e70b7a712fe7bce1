package util

import (
	"math/rand"
	"time"

	"github.com/oklog/ulid"
)

// ulidChannel is fed by a single generator goroutine so that concurrent
// callers never contend for the monotonic entropy source
var ulidChannel chan ulid.ULID

func initULIDChannel() {
	if ulidChannel != nil {
		return
	}

	ulidChannel = make(chan ulid.ULID, 100)

	go func() {
		t := time.Now()
		entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
		for {
			ulidChannel <- ulid.MustNew(ulid.Timestamp(t), entropy)
		}
	}()
}

// NewULID returns a new ulid.ULID
func NewULID() ulid.ULID {
	return <-ulidChannel
}

func init() {
	initULIDChannel()
}
