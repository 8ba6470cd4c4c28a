//go:build e2e

package e2e

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/web3auth/pkg/client"
)

// TestAuth_AttemptsRequireKey checks the audit API rejects requests
// without a valid API key while /api/v1/verify stays open.
func TestAuth_AttemptsRequireKey(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		c := newClient(testCtx.TestServer, "")
		_, err := c.ListAttempts(context.Background(), client.AttemptFilter{})
		require.Error(t, err)

		var apiErr *client.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "UNAUTHORIZED", apiErr.Code)
	})

	t.Run("invalid key", func(t *testing.T) {
		c := newClient(testCtx.TestServer, "w3a_key_definitelynotreal")
		_, err := c.ListAttempts(context.Background(), client.AttemptFilter{})
		require.Error(t, err)

		var apiErr *client.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "UNAUTHORIZED", apiErr.Code)
	})

	t.Run("valid key", func(t *testing.T) {
		apiKey := createTestAPIKey(t, testCtx.Store, "auth-test")
		c := newClient(testCtx.TestServer, apiKey)
		_, err := c.ListAttempts(context.Background(), client.AttemptFilter{})
		require.NoError(t, err)
	})
}

// TestAuth_RevokedKey verifies a revoked key stops working.
func TestAuth_RevokedKey(t *testing.T) {
	ctx := context.Background()

	apiKey := createTestAPIKey(t, testCtx.Store, "revoke-test")
	c := newClient(testCtx.TestServer, apiKey)
	_, err := c.ListAttempts(ctx, client.AttemptFilter{})
	require.NoError(t, err)

	keys, err := testCtx.Store.ListAPIKeys(ctx)
	require.NoError(t, err)
	for _, k := range keys {
		if k.Name == "revoke-test" {
			require.NoError(t, testCtx.Store.RevokeAPIKey(ctx, k.ID))
		}
	}

	_, err = c.ListAttempts(ctx, client.AttemptFilter{})
	require.Error(t, err)

	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "UNAUTHORIZED", apiErr.Code)
}
