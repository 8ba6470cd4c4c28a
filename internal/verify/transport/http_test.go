package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/web3auth/internal/verify/domain"
)

// mockService implements Service for testing
type mockService struct {
	outcome domain.Outcome
	err     error
	creds   domain.Credentials
	calls   int
}

func (m *mockService) Verify(ctx context.Context, creds domain.Credentials) (domain.Outcome, error) {
	m.calls++
	m.creds = creds
	return m.outcome, m.err
}

func setupRouter(svc Service) *chi.Mux {
	r := chi.NewRouter()
	NewHandler(svc).RegisterRoutes(r)
	return r
}

func verifyBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]string{
		"username": "alice",
		"realm":    "sip.example.com",
		"uri":      "sip:sip.example.com",
		"nonce":    "abc123",
		"response": strings.Repeat("ab", 16),
		"method":   "REGISTER",
	})
	require.NoError(t, err)
	return body
}

func TestHandleVerify_Match(t *testing.T) {
	svc := &mockService{outcome: domain.Outcome{Verdict: domain.Match}}
	router := setupRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/verify", bytes.NewReader(verifyBody(t)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp VerifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "match", resp.Verdict)
	assert.True(t, resp.Accepted)
	assert.Equal(t, "alice", svc.creds.Username)
	assert.Equal(t, "REGISTER", svc.creds.Method)
}

func TestHandleVerify_Indeterminate(t *testing.T) {
	svc := &mockService{outcome: domain.Outcome{
		Verdict: domain.Indeterminate,
		Reason:  "transport failure: connection refused",
	}}
	router := setupRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/verify", bytes.NewReader(verifyBody(t)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// An indeterminate verdict is still a successful HTTP exchange; the
	// caller decides how to treat it.
	require.Equal(t, http.StatusOK, rec.Code)

	var resp VerifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "indeterminate", resp.Verdict)
	assert.False(t, resp.Accepted)
	assert.Contains(t, resp.Reason, "transport failure")
}

func TestHandleVerify_InvalidJSON(t *testing.T) {
	svc := &mockService{}
	router := setupRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/verify", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, svc.calls)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "INVALID_REQUEST", resp.Error.Code)
}

func TestHandleVerify_MissingCredentials(t *testing.T) {
	svc := &mockService{err: domain.ErrMissingCredentials}
	router := setupRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/verify", strings.NewReader(`{"username":"alice"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "INVALID_REQUEST", resp.Error.Code)
}
