package gopenslide

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// quickhash accumulates openslide.quickhash-1. A disabled hash yields no
// property.
type quickhash struct {
	h        hash.Hash
	disabled bool
}

func newQuickhash(disabled bool) *quickhash {
	return &quickhash{h: sha256.New(), disabled: disabled}
}

func (q *quickhash) disable() { q.disabled = true }

func (q *quickhash) writeString(s string) {
	if q.disabled {
		return
	}
	q.h.Write([]byte(s))
	q.h.Write([]byte{0})
}

func (q *quickhash) write(b []byte) {
	if q.disabled {
		return
	}
	q.h.Write(b)
}

func (q *quickhash) sum() (string, bool) {
	if q.disabled {
		return "", false
	}
	return hex.EncodeToString(q.h.Sum(nil)), true
}
