package ethrpc

import (
	"errors"
	"fmt"
	"strings"
)

// Errors classifying failed eth_call responses.
var (
	// ErrMalformedResponse means the body did not contain a quoted
	// "result" value where one was expected.
	ErrMalformedResponse = errors.New("malformed RPC response")

	// ErrContractError means the node returned an error envelope:
	// the call reverted or the node rejected it.
	ErrContractError = errors.New("contract call error")

	// ErrUserNotFound is the contract-level error for an identity
	// that is absent from the contract. Callers report it as "not
	// found" rather than a generic contract fault.
	ErrUserNotFound = fmt.Errorf("%w: user not found", ErrContractError)
)

const (
	resultPattern   = `"result":"`
	errorPattern    = `"error"`
	notFoundPattern = "User not found"
)

// ExtractResult pulls the hex result string out of a JSON-RPC
// response body.
//
// This is a deliberate string scrape, not a JSON parser: the node's
// response shape is fixed and the scrape is the documented contract.
// It lives behind this function so a structured parser could replace
// it without touching the verifier.
func ExtractResult(body string) (string, error) {
	if strings.Contains(body, errorPattern) {
		if strings.Contains(body, notFoundPattern) {
			return "", ErrUserNotFound
		}
		return "", ErrContractError
	}

	start := strings.Index(body, resultPattern)
	if start < 0 {
		return "", fmt.Errorf("%w: no result field", ErrMalformedResponse)
	}
	rest := body[start+len(resultPattern):]

	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return "", fmt.Errorf("%w: unterminated result field", ErrMalformedResponse)
	}

	return rest[:end], nil
}

// TruncateDigest reduces a returned 32-byte EVM word to the 32 hex
// characters the contract stores the digest in: the high-order 16
// bytes, i.e. characters [2,34) after the 0x prefix. Anything shorter
// than a full prefixed word yields "", which callers must treat as an
// automatic mismatch.
//
// Discarding the low half of the word is the deployed contract's
// return convention. It must not be widened or "fixed" here; doing so
// would break interoperability with the existing contract.
func TruncateDigest(resultHex string) string {
	if len(resultHex) < 66 {
		return ""
	}
	return resultHex[2:34]
}
