package sip

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/web3auth/internal/verify/domain"
)

// mockVerifier implements Verifier for testing
type mockVerifier struct {
	outcome domain.Outcome
	err     error
	creds   domain.Credentials
	calls   int
}

func (m *mockVerifier) Verify(ctx context.Context, creds domain.Credentials) (domain.Outcome, error) {
	m.calls++
	m.creds = creds
	return m.outcome, m.err
}

func newTestServer(v Verifier) *Server {
	return NewServer(v, "sip.example.com", slog.New(slog.NewTextHandler(testWriter{}, nil)))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func registerWithAuth(nonce string) string {
	auth := fmt.Sprintf(`Digest username="alice", realm="sip.example.com", nonce="%s", uri="sip:sip.example.com", response="deadbeefdeadbeefdeadbeefdeadbeef"`, nonce)
	return "REGISTER sip:sip.example.com SIP/2.0\r\n" +
		"Via: SIP/2.0/UDP 192.0.2.1:5060;branch=z9hG4bK776\r\n" +
		"To: <sip:alice@sip.example.com>\r\n" +
		"From: <sip:alice@sip.example.com>;tag=1928\r\n" +
		"Call-ID: call-1\r\n" +
		"CSeq: 1 REGISTER\r\n" +
		"Contact: <sip:alice@192.0.2.1:5060>\r\n" +
		"Authorization: " + auth + "\r\n" +
		"\r\n"
}

// extractNonce pulls the nonce out of a 401 challenge.
func extractNonce(t *testing.T, challenge string) string {
	t.Helper()
	idx := strings.Index(challenge, `nonce="`)
	require.GreaterOrEqual(t, idx, 0, "challenge must carry a nonce")
	rest := challenge[idx+len(`nonce="`):]
	end := strings.Index(rest, `"`)
	require.GreaterOrEqual(t, end, 0)
	return rest[:end]
}

func TestRegister_ChallengesWithoutAuth(t *testing.T) {
	verifier := &mockVerifier{}
	srv := newTestServer(verifier)

	resp := srv.serve(context.Background(), "REGISTER sip:x SIP/2.0\r\nTo: <sip:alice@x>\r\n\r\n")

	assert.True(t, strings.HasPrefix(resp, "SIP/2.0 401 Unauthorized"))
	assert.Contains(t, resp, `Digest realm="sip.example.com"`)
	assert.Contains(t, resp, "qop=\"auth\"")
	assert.Equal(t, 0, verifier.calls)
}

func TestRegister_FullHandshake(t *testing.T) {
	verifier := &mockVerifier{outcome: domain.Outcome{Verdict: domain.Match}}
	srv := newTestServer(verifier)
	ctx := context.Background()

	challenge := srv.serve(ctx, "REGISTER sip:x SIP/2.0\r\nTo: <sip:alice@x>\r\n\r\n")
	nonce := extractNonce(t, challenge)

	resp := srv.serve(ctx, registerWithAuth(nonce))
	assert.True(t, strings.HasPrefix(resp, "SIP/2.0 200 OK"), resp)

	require.Equal(t, 1, verifier.calls)
	assert.Equal(t, "alice", verifier.creds.Username)
	assert.Equal(t, "REGISTER", verifier.creds.Method)
	assert.Equal(t, nonce, verifier.creds.Nonce)

	contact, ok := srv.Registration("alice")
	require.True(t, ok)
	assert.Contains(t, contact, "sip:alice@192.0.2.1:5060")
}

func TestRegister_NonceIsSingleUse(t *testing.T) {
	verifier := &mockVerifier{outcome: domain.Outcome{Verdict: domain.Match}}
	srv := newTestServer(verifier)
	ctx := context.Background()

	challenge := srv.serve(ctx, "REGISTER sip:x SIP/2.0\r\nTo: <sip:alice@x>\r\n\r\n")
	nonce := extractNonce(t, challenge)

	first := srv.serve(ctx, registerWithAuth(nonce))
	assert.True(t, strings.HasPrefix(first, "SIP/2.0 200 OK"))

	// Replaying the same nonce earns a new challenge, not a verdict.
	second := srv.serve(ctx, registerWithAuth(nonce))
	assert.True(t, strings.HasPrefix(second, "SIP/2.0 401 Unauthorized"))
	assert.Equal(t, 1, verifier.calls)
}

func TestRegister_UnknownNonceRechallenges(t *testing.T) {
	verifier := &mockVerifier{}
	srv := newTestServer(verifier)

	resp := srv.serve(context.Background(), registerWithAuth("never-issued"))
	assert.True(t, strings.HasPrefix(resp, "SIP/2.0 401 Unauthorized"))
	assert.Equal(t, 0, verifier.calls)
}

func TestRegister_Mismatch(t *testing.T) {
	verifier := &mockVerifier{outcome: domain.Outcome{Verdict: domain.Mismatch, Reason: "digest response mismatch"}}
	srv := newTestServer(verifier)
	ctx := context.Background()

	nonce := extractNonce(t, srv.serve(ctx, "REGISTER sip:x SIP/2.0\r\nTo: <sip:alice@x>\r\n\r\n"))
	resp := srv.serve(ctx, registerWithAuth(nonce))

	assert.True(t, strings.HasPrefix(resp, "SIP/2.0 403 Forbidden"))
	_, registered := srv.Registration("alice")
	assert.False(t, registered)
}

func TestRegister_UnknownIdentity(t *testing.T) {
	verifier := &mockVerifier{outcome: domain.Outcome{
		Verdict:  domain.Indeterminate,
		Reason:   "not found: identity absent from contract",
		NotFound: true,
	}}
	srv := newTestServer(verifier)
	ctx := context.Background()

	nonce := extractNonce(t, srv.serve(ctx, "REGISTER sip:x SIP/2.0\r\nTo: <sip:alice@x>\r\n\r\n"))
	resp := srv.serve(ctx, registerWithAuth(nonce))

	assert.True(t, strings.HasPrefix(resp, "SIP/2.0 404 Not Found"))
}

func TestRegister_IndeterminateMapsToServerTimeout(t *testing.T) {
	verifier := &mockVerifier{outcome: domain.Outcome{
		Verdict: domain.Indeterminate,
		Reason:  "transport failure: connection refused",
	}}
	srv := newTestServer(verifier)
	ctx := context.Background()

	nonce := extractNonce(t, srv.serve(ctx, "REGISTER sip:x SIP/2.0\r\nTo: <sip:alice@x>\r\n\r\n"))
	resp := srv.serve(ctx, registerWithAuth(nonce))

	assert.True(t, strings.HasPrefix(resp, "SIP/2.0 504 Server Time-out"))
}

func TestRegister_MissingDigestParameters(t *testing.T) {
	verifier := &mockVerifier{}
	srv := newTestServer(verifier)

	raw := "REGISTER sip:x SIP/2.0\r\n" +
		`Authorization: Digest username="alice", realm="sip.example.com"` + "\r\n" +
		"\r\n"
	resp := srv.serve(context.Background(), raw)

	assert.True(t, strings.HasPrefix(resp, "SIP/2.0 400 Bad Request"))
	assert.Equal(t, 0, verifier.calls)
}

func TestRegister_ZeroExpiresUnbinds(t *testing.T) {
	verifier := &mockVerifier{outcome: domain.Outcome{Verdict: domain.Match}}
	srv := newTestServer(verifier)
	ctx := context.Background()

	nonce := extractNonce(t, srv.serve(ctx, "REGISTER sip:x SIP/2.0\r\nTo: <sip:alice@x>\r\n\r\n"))
	srv.serve(ctx, registerWithAuth(nonce))
	_, registered := srv.Registration("alice")
	require.True(t, registered)

	nonce = extractNonce(t, srv.serve(ctx, "REGISTER sip:x SIP/2.0\r\nTo: <sip:alice@x>\r\n\r\n"))
	unbind := strings.Replace(registerWithAuth(nonce),
		"Contact: <sip:alice@192.0.2.1:5060>\r\n",
		"Contact: <sip:alice@192.0.2.1:5060>\r\nExpires: 0\r\n", 1)
	resp := srv.serve(ctx, unbind)
	assert.True(t, strings.HasPrefix(resp, "SIP/2.0 200 OK"))

	_, registered = srv.Registration("alice")
	assert.False(t, registered)
}

func TestServe_IgnoresResponses(t *testing.T) {
	srv := newTestServer(&mockVerifier{})
	assert.Empty(t, srv.serve(context.Background(), "SIP/2.0 200 OK\r\n\r\n"))
}

func TestServe_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(&mockVerifier{})
	resp := srv.serve(context.Background(), "INVITE sip:x SIP/2.0\r\nTo: <sip:bob@x>\r\n\r\n")
	assert.True(t, strings.HasPrefix(resp, "SIP/2.0 405 Method Not Allowed"))
	assert.Contains(t, resp, "Allow: REGISTER, OPTIONS")
}

func TestWithNonceTTL(t *testing.T) {
	srv := NewServer(&mockVerifier{}, "sip.example.com",
		slog.New(slog.NewTextHandler(testWriter{}, nil)),
		WithNonceTTL(15*time.Minute))
	assert.Equal(t, 15*time.Minute, srv.nonces.ttl)

	// Zero keeps the default
	srv = NewServer(&mockVerifier{}, "sip.example.com",
		slog.New(slog.NewTextHandler(testWriter{}, nil)),
		WithNonceTTL(0))
	assert.Equal(t, DefaultNonceTTL, srv.nonces.ttl)
}

func TestNonceStore_Expiry(t *testing.T) {
	store := newNonceStore(10 * time.Millisecond)
	nonce := store.Issue()
	time.Sleep(20 * time.Millisecond)
	assert.False(t, store.Consume(nonce))
}

func TestNonceStore_Sweep(t *testing.T) {
	store := newNonceStore(time.Nanosecond)
	store.Issue()
	time.Sleep(time.Millisecond)
	store.Sweep()
	assert.Empty(t, store.nonces)
}
