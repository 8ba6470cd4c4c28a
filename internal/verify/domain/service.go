// Package domain contains the business logic for blockchain-backed
// SIP digest verification.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pendergraft/web3auth/internal/abi"
	"github.com/pendergraft/web3auth/internal/ethrpc"
)

// AttemptRecorder persists verification attempts for auditing. A nil
// recorder disables auditing; recording failures never change a
// verdict.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, creds Credentials, outcome Outcome, elapsed time.Duration) error
}

type service struct {
	caller   ContractCaller
	attempts AttemptRecorder
}

// NewService creates a verification service calling the contract
// through caller. attempts may be nil.
func NewService(caller ContractCaller, attempts AttemptRecorder) *service {
	return &service{
		caller:   caller,
		attempts: attempts,
	}
}

// Verify checks the client-supplied digest response against the value
// the contract computes for these credentials.
//
// The flow is a straight line: validate, encode, call, parse,
// truncate, compare. Every failure short-circuits to an Indeterminate
// outcome; nothing is retried here. ErrMissingCredentials is the only
// error return, and it is raised before any network I/O.
func (s *service) Verify(ctx context.Context, creds Credentials) (Outcome, error) {
	if !creds.Complete() {
		return Outcome{}, ErrMissingCredentials
	}
	start := time.Now()

	callData := abi.EncodeStringCall(DigestHashSig,
		creds.Username, creds.Realm, creds.Method, creds.URI, creds.Nonce)

	body, err := s.caller.CallContract(ctx, callData)
	if err != nil {
		return s.finish(ctx, creds, Outcome{
			Verdict: Indeterminate,
			Reason:  fmt.Sprintf("transport failure: %v", err),
		}, start), nil
	}

	result, err := ethrpc.ExtractResult(body)
	if err != nil {
		outcome := Outcome{
			Verdict: Indeterminate,
			Reason:  fmt.Sprintf("contract error: %v", err),
		}
		switch {
		case errors.Is(err, ethrpc.ErrUserNotFound):
			outcome.Reason = "not found: identity absent from contract"
			outcome.NotFound = true
		case errors.Is(err, ethrpc.ErrMalformedResponse):
			outcome.Reason = fmt.Sprintf("malformed response: %v", err)
		}
		return s.finish(ctx, creds, outcome, start), nil
	}

	// A short or empty result truncates to "" and can never match:
	// Response is known non-empty here.
	expected := ethrpc.TruncateDigest(result)
	if expected != creds.Response {
		return s.finish(ctx, creds, Outcome{
			Verdict: Mismatch,
			Reason:  "digest response mismatch",
		}, start), nil
	}

	return s.finish(ctx, creds, Outcome{Verdict: Match}, start), nil
}

// finish records the attempt (best effort) and returns the outcome.
func (s *service) finish(ctx context.Context, creds Credentials, outcome Outcome, start time.Time) Outcome {
	if s.attempts != nil {
		_ = s.attempts.RecordAttempt(ctx, creds, outcome, time.Since(start))
	}
	return outcome
}
