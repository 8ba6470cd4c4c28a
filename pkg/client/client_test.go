package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	var gotCreds Credentials
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/verify", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotCreds))

		json.NewEncoder(w).Encode(VerifyResult{Verdict: "match", Accepted: true})
	}))
	defer ts.Close()

	c := New(ts.URL, "")
	result, err := c.Verify(context.Background(), Credentials{
		Username: "alice",
		Realm:    "sip.example.com",
		URI:      "sip:sip.example.com",
		Nonce:    "abc",
		Response: "deadbeef",
		Method:   "REGISTER",
	})
	require.NoError(t, err)

	assert.True(t, result.Accepted)
	assert.Equal(t, "match", result.Verdict)
	assert.Equal(t, "alice", gotCreds.Username)
}

func TestVerify_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"code": "INVALID_REQUEST", "message": "missing credentials"},
		})
	}))
	defer ts.Close()

	c := New(ts.URL, "")
	_, err := c.Verify(context.Background(), Credentials{})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "INVALID_REQUEST", apiErr.Code)
}

func TestListAttempts_SendsFilterAndKey(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/attempts", r.URL.Path)
		assert.Equal(t, "alice", r.URL.Query().Get("username"))
		assert.Equal(t, "mismatch", r.URL.Query().Get("verdict"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "w3a_key_test", r.Header.Get("X-API-Key"))

		json.NewEncoder(w).Encode(ListAttemptsResponse{
			Data: []Attempt{{ID: "a1", Username: "alice", Verdict: "mismatch"}},
		})
	}))
	defer ts.Close()

	c := New(ts.URL, "w3a_key_test")
	resp, err := c.ListAttempts(context.Background(), AttemptFilter{
		Username: "alice",
		Verdict:  "mismatch",
		Limit:    10,
	})
	require.NoError(t, err)

	require.Len(t, resp.Data, 1)
	assert.Equal(t, "a1", resp.Data[0].ID)
}

func TestHealth(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	assert.NoError(t, New(ts.URL, "").Health(context.Background()))
}

func TestHealth_Down(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	assert.Error(t, New(ts.URL, "").Health(context.Background()))
}
