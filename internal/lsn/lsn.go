// Package lsn generates monotonically increasing, lexicographically
// comparable tokens used both as log sequence numbers and as sorted-table
// file ids.
//
// No third-party time-sortable id generator (ulid, ksuid, xid, ...) turns
// up anywhere in the retrieved reference pack, so this is one of the rare
// corners of the engine that leans on the standard library alone
// (crypto/rand, time) rather than an ecosystem dependency.
package lsn

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"
)

// encoding is Crockford's base32 alphabet, the same one ULID uses. It has
// no ambiguous characters and sorts consistently with byte order.
const encoding = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// Length is the size, in characters, of every token this package produces.
const Length = 26

// Min is the smallest possible token: nothing can ever sort before it.
const Min = "00000000000000000000000000"

// Max is the largest possible token: nothing can ever sort after it.
const Max = "ZZZZZZZZZZZZZZZZZZZZZZZZZZ"

// randBytes is the width of the random payload: 80 bits, which base32
// encodes to exactly 16 characters with no padding.
const randBytes = 10

// Issuer produces strictly increasing tokens within one process lifetime.
type Issuer struct {
	mu       sync.Mutex
	lastMS   int64
	lastRand [randBytes]byte
}

// NewIssuer returns a ready-to-use Issuer.
func NewIssuer() *Issuer {
	return &Issuer{}
}

// Next returns a fresh token. Tokens generated by the same Issuer are
// strictly increasing in plain string order, even when Next is called
// faster than the clock's millisecond resolution: a repeated millisecond
// increments the random tail instead of colliding.
func (iss *Issuer) Next() string {
	iss.mu.Lock()
	defer iss.mu.Unlock()

	ms := time.Now().UnixMilli()
	if ms <= iss.lastMS {
		ms = iss.lastMS
		incrementTail(&iss.lastRand)
	} else {
		iss.lastMS = ms
		if _, err := rand.Read(iss.lastRand[:]); err != nil {
			// crypto/rand failure is unrecoverable for a durability-critical
			// token source; there is nothing sensible to degrade to.
			panic(fmt.Sprintf("lsn: failed to read random bytes: %v", err))
		}
	}

	return encode(ms, iss.lastRand)
}

// incrementTail bumps the random payload by one, carrying across bytes.
// This keeps same-millisecond bursts strictly increasing without ever
// touching the time component.
func incrementTail(tail *[randBytes]byte) {
	for i := len(tail) - 1; i >= 0; i-- {
		tail[i]++
		if tail[i] != 0 {
			return
		}
	}
}

// encode lays out a 48-bit millisecond timestamp followed by the 80-bit
// random payload, both base32-encoded with the Crockford alphabet, for a
// fixed Length-character token (10 + 16 = 26).
func encode(ms int64, tail [randBytes]byte) string {
	var buf [Length]byte

	// 48 bits of timestamp -> 10 base32 characters (50 bits of capacity).
	for i := 9; i >= 0; i-- {
		buf[i] = encoding[ms&0x1F]
		ms >>= 5
	}

	// 80 bits of randomness -> exactly 16 base32 characters, no remainder.
	bits := uint64(0)
	bitCount := 0
	out := 10
	for _, b := range tail {
		bits = bits<<8 | uint64(b)
		bitCount += 8
		for bitCount >= 5 {
			bitCount -= 5
			buf[out] = encoding[(bits>>uint(bitCount))&0x1F]
			out++
		}
	}

	return string(buf[:])
}
