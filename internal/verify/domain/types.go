package domain

import (
	"context"
	"errors"
)

// Common errors returned by the verification service.
var (
	// ErrMissingCredentials means at least one required digest field
	// was empty. Verification never reaches the network in that case.
	ErrMissingCredentials = errors.New("missing credentials")
)

// DigestHashSig is the on-chain function computing the expected
// digest response. The argument order (username, realm, method, uri,
// nonce) is part of the contract and must match the deployed
// function's parameter order.
const DigestHashSig = "getDigestHash(string,string,string,string,string)"

// Credentials carries the fields extracted from a SIP Authorization
// header plus the request method. Response is the client-asserted
// digest under test. The service never mutates or retains a
// Credentials value past a single Verify call.
type Credentials struct {
	Username string `json:"username"`
	Realm    string `json:"realm"`
	URI      string `json:"uri"`
	Nonce    string `json:"nonce"`
	Response string `json:"response"`
	Method   string `json:"method"`
}

// Complete reports whether every required field is non-empty.
func (c Credentials) Complete() bool {
	return c.Username != "" && c.Realm != "" && c.URI != "" &&
		c.Nonce != "" && c.Response != "" && c.Method != ""
}

// Verdict is the outcome of one verification attempt.
type Verdict string

const (
	// Match: the on-chain digest equals the client response.
	Match Verdict = "match"
	// Mismatch: a well-formed comparison that failed.
	Mismatch Verdict = "mismatch"
	// Indeterminate: transport failure, malformed response or a
	// contract-level error; the attempt never reached a comparison.
	Indeterminate Verdict = "indeterminate"
)

// Outcome is a verdict plus a diagnostic reason. Only the
// accept/reject distinction crosses the SIP boundary; the reason is
// for logs and operators.
type Outcome struct {
	Verdict Verdict `json:"verdict"`
	Reason  string  `json:"reason,omitempty"`
	// NotFound marks the indeterminate sub-case where the contract
	// itself reported the identity as unregistered.
	NotFound bool `json:"notFound,omitempty"`
}

// Accepted reports whether the outcome authenticates the client.
func (o Outcome) Accepted() bool {
	return o.Verdict == Match
}

// ContractCaller is the transport collaborator that performs the
// eth_call round trip. It returns the raw response body text.
type ContractCaller interface {
	CallContract(ctx context.Context, callData string) (string, error)
}
