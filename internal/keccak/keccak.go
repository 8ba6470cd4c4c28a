// Package keccak implements the Keccak-256 hash used by Ethereum.
//
// This is the pre-SHA3 ("legacy") Keccak variant with 0x01 domain
// padding, not the standardized SHA3-256 (which pads with 0x06). The
// two produce different digests for every input, so the distinction
// matters: Ethereum function selectors and contract call hashing are
// defined over this variant.
package keccak

import "encoding/binary"

const (
	// rate is the sponge rate for Keccak-256: (1600 - 2*256) / 8 bytes
	// absorbed per permutation.
	rate = 136

	// numLanes is the number of 64-bit lanes in the Keccak-f[1600] state.
	numLanes = 25

	rounds = 24
)

// state is the Keccak-f[1600] state: 25 lanes of 64 bits. A fresh
// zero value is a valid initial state. Byte-level access goes through
// xorIn and copyOut; the lane array is never aliased as raw bytes.
type state [numLanes]uint64

// roundConstants are the iota-step constants, one per round.
var roundConstants = [rounds]uint64{
	0x0000000000000001, 0x0000000000008082, 0x800000000000808a,
	0x8000000080008000, 0x000000000000808b, 0x0000000080000001,
	0x8000000080008081, 0x8000000000008009, 0x000000000000008a,
	0x0000000000000088, 0x0000000080008009, 0x000000008000000a,
	0x000000008000808b, 0x800000000000008b, 0x8000000000008089,
	0x8000000000008003, 0x8000000000008002, 0x8000000000000080,
	0x000000000000800a, 0x800000008000000a, 0x8000000080008081,
	0x8000000000008080, 0x0000000080000001, 0x8000000080008008,
}

// rhoOffsets and piLanes drive the combined rho+pi step as a 24-step
// walk: step i rotates the current lane by rhoOffsets[i] bits and
// deposits it at lane piLanes[i]. The values are fixed Keccak
// constants; a single wrong entry silently produces a different hash.
var rhoOffsets = [24]int{
	1, 3, 6, 10, 15, 21, 28, 36, 45, 55, 2, 14,
	27, 41, 56, 8, 25, 43, 62, 18, 39, 61, 20, 44,
}

var piLanes = [24]int{
	10, 7, 11, 17, 18, 3, 5, 16, 8, 21, 24, 4,
	15, 23, 19, 13, 12, 2, 20, 14, 22, 9, 6, 1,
}

// rotl64 rotates x left by n bits, n in [1,63].
func rotl64(x uint64, n int) uint64 {
	return (x << n) | (x >> (64 - n))
}

// permute applies the full 24-round Keccak-f[1600] transform in place.
func (a *state) permute() {
	for round := 0; round < rounds; round++ {
		// Theta: column parities, then diffuse each column with its
		// left neighbour's parity XOR the rotated right neighbour's.
		var c [5]uint64
		for i := 0; i < 5; i++ {
			c[i] = a[i] ^ a[i+5] ^ a[i+10] ^ a[i+15] ^ a[i+20]
		}
		for i := 0; i < 5; i++ {
			d := c[(i+4)%5] ^ rotl64(c[(i+1)%5], 1)
			for j := 0; j < numLanes; j += 5 {
				a[j+i] ^= d
			}
		}

		// Rho and Pi: walk lanes 1..24, rotating and relocating each.
		current := a[1]
		for i := 0; i < 24; i++ {
			j := piLanes[i]
			current, a[j] = a[j], rotl64(current, rhoOffsets[i])
		}

		// Chi: the non-linear row mix.
		for j := 0; j < numLanes; j += 5 {
			var row [5]uint64
			for i := 0; i < 5; i++ {
				row[i] = a[j+i]
			}
			for i := 0; i < 5; i++ {
				a[j+i] = row[i] ^ (^row[(i+1)%5] & row[(i+2)%5])
			}
		}

		// Iota: only lane 0 takes the round constant.
		a[0] ^= roundConstants[round]
	}
}

// xorIn XORs up to rate bytes of block into the state, interpreting
// the state as little-endian 64-bit lanes. Partial trailing lanes are
// handled byte by byte.
func (a *state) xorIn(block []byte) {
	n := len(block) / 8
	for i := 0; i < n; i++ {
		a[i] ^= binary.LittleEndian.Uint64(block[i*8:])
	}
	for i, b := range block[n*8:] {
		a[n] ^= uint64(b) << (8 * uint(i))
	}
}

// xorByte XORs a single byte into the state at the given byte offset.
func (a *state) xorByte(pos int, b byte) {
	a[pos/8] ^= uint64(b) << (8 * uint(pos%8))
}

// copyOut writes the first len(out) bytes of the state, little-endian
// lane order, into out. len(out) must not exceed the state size.
func (a *state) copyOut(out []byte) {
	var lane [8]byte
	for i := 0; len(out) > 0; i++ {
		binary.LittleEndian.PutUint64(lane[:], a[i])
		n := copy(out, lane[:])
		out = out[n:]
	}
}

// Sum256 computes the legacy Keccak-256 digest of data. Pure and
// allocation-local: each call owns its own state, so concurrent use
// on independent inputs needs no locking.
func Sum256(data []byte) [32]byte {
	var a state

	for len(data) >= rate {
		a.xorIn(data[:rate])
		a.permute()
		data = data[rate:]
	}

	// Final partial block plus legacy padding. The 0x01 domain byte
	// lands just past the input and the 0x80 terminator at the last
	// rate byte; when len(data) == rate-1 both hit the same byte, so
	// each is XORed rather than assigned.
	a.xorIn(data)
	a.xorByte(len(data), 0x01)
	a.xorByte(rate-1, 0x80)
	a.permute()

	var digest [32]byte
	a.copyOut(digest[:])
	return digest
}
