// Package abi encodes contract call data for Solidity functions
// taking dynamic string arguments.
//
// Only encoding is implemented; the service never decodes ABI data
// (the eth_call result is a bare 32-byte word handled elsewhere).
package abi

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/pendergraft/web3auth/internal/keccak"
)

// slotSize is the EVM word size. Every head offset, length word and
// padded argument body is a multiple of it.
const slotSize = 32

// Selector returns the 4-byte function selector for a canonical
// Solidity signature such as "getDigestHash(string,string,string,string,string)".
// The signature is not validated; a malformed signature just selects
// a function that does not exist.
func Selector(signature string) [4]byte {
	digest := keccak.Sum256([]byte(signature))
	var sel [4]byte
	copy(sel[:], digest[:4])
	return sel
}

// SelectorHex returns the selector as a 0x-prefixed hex string.
func SelectorHex(signature string) string {
	sel := Selector(signature)
	return "0x" + hex.EncodeToString(sel[:])
}

// EncodeStringCall builds the call data for a function of N dynamic
// string arguments: selector, a head of N 32-byte big-endian offsets
// (relative to the start of the head), then for each argument a
// 32-byte length word followed by its UTF-8 bytes zero-padded up to a
// 32-byte boundary. The result is lowercase hex without a 0x prefix.
//
// An empty string still occupies a full length word plus one padded
// slot, so the first offset is always len(args)*32. Encoding is pure:
// the same arguments always produce byte-identical call data.
func EncodeStringCall(signature string, args ...string) string {
	sel := Selector(signature)

	head := make([]byte, 0, len(args)*slotSize)
	tail := make([]byte, 0)

	offset := uint64(len(args) * slotSize)
	for _, arg := range args {
		head = append(head, uint64Slot(offset)...)

		body := []byte(arg)
		padded := paddedLen(len(body))
		tail = append(tail, uint64Slot(uint64(len(body)))...)
		tail = append(tail, body...)
		tail = append(tail, make([]byte, padded-len(body))...)

		offset += slotSize + uint64(padded)
	}

	data := make([]byte, 0, len(sel)+len(head)+len(tail))
	data = append(data, sel[:]...)
	data = append(data, head...)
	data = append(data, tail...)
	return hex.EncodeToString(data)
}

// paddedLen rounds n up to a multiple of the slot size, with a
// minimum of one full slot for empty values.
func paddedLen(n int) int {
	if n == 0 {
		return slotSize
	}
	return ((n + slotSize - 1) / slotSize) * slotSize
}

// uint64Slot encodes v as a 32-byte big-endian word.
func uint64Slot(v uint64) []byte {
	slot := make([]byte, slotSize)
	binary.BigEndian.PutUint64(slot[slotSize-8:], v)
	return slot
}
