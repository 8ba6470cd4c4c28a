//go:build e2e

package e2e

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pendergraft/web3auth/internal/config"
	"github.com/pendergraft/web3auth/internal/ethrpc"
	"github.com/pendergraft/web3auth/internal/server"
	"github.com/pendergraft/web3auth/internal/storage"
	"github.com/pendergraft/web3auth/pkg/client"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestContext holds shared test infrastructure
type TestContext struct {
	PostgresContainer *postgres.PostgresContainer
	ConnString        string
	Node              *mockNode
	TestServer        *httptest.Server
	Store             storage.Store
}

// setupPostgresE starts a Postgres container and returns the connection string
func setupPostgresE(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	postgresContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("web3auth"),
		postgres.WithUsername("web3auth"),
		postgres.WithPassword("web3auth"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = postgresContainer.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	return postgresContainer, connString, nil
}

// mockNode is a stand-in JSON-RPC node. Each registered identity maps
// to the hex word its contract would return for a getDigestHash call;
// unknown identities get the contract's "User not found" revert body.
type mockNode struct {
	mu      sync.Mutex
	server  *httptest.Server
	digests map[string]string // username -> 32-hex-char stored digest
	fail    bool
}

func newMockNode() *mockNode {
	n := &mockNode{digests: make(map[string]string)}
	n.server = httptest.NewServer(http.HandlerFunc(n.handle))
	return n
}

func (n *mockNode) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read failed", http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if n.fail {
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"execution timed out"}}`)
		return
	}

	// The username travels ABI-encoded inside the call data, so its
	// hex form appears verbatim in the request body.
	for username, digest := range n.digests {
		if strings.Contains(string(body), hex.EncodeToString([]byte(username))) {
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":"0x%s%s"}`, digest, "00000000000000000000000000000000")
			return
		}
	}

	fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"error":{"code":3,"message":"execution reverted: User not found"}}`)
}

// register makes the node answer getDigestHash for username with the
// given 32-hex-char digest.
func (n *mockNode) register(username, digest string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.digests[username] = digest
}

// setFailing toggles node-level errors for every call.
func (n *mockNode) setFailing(fail bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fail = fail
}

func (n *mockNode) Close() {
	n.server.Close()
}

// startServerE starts the web3auth server in-process against the mock node
func startServerE(connString, nodeURL string) (*httptest.Server, storage.Store, error) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Chain: config.ChainConfig{
			RPCURL:          nodeURL,
			ContractAddress: "0x1b55e67Ce5118559672Bf9EC0564AE3A46C41000",
			CallTimeout:     5,
		},
		Storage: config.StorageConfig{
			Type: "postgres",
			Postgres: config.PostgresConfig{
				URL: connString,
			},
		},
		Auth:      config.AuthConfig{Type: "api-key"},
		Logging:   config.LoggingConfig{Level: "debug", Format: "text"},
		RateLimit: config.RateLimitConfig{Enabled: false},
		Metrics:   config.MetricsConfig{Enabled: false},
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create store: %w", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	caller := ethrpc.New(cfg.Chain.RPCURL, cfg.Chain.ContractAddress,
		ethrpc.WithTimeout(time.Duration(cfg.Chain.CallTimeout)*time.Second))

	srv := server.New(cfg, store, caller, logger)
	testServer := httptest.NewServer(srv.Handler())

	return testServer, store, nil
}

// newClient creates a new API client for the test server
func newClient(testServer *httptest.Server, apiKey string) *client.Client {
	return client.New(testServer.URL, apiKey)
}

// createTestAPIKey creates a test API key using the store directly
func createTestAPIKey(t *testing.T, store storage.Store, name string) string {
	key, err := store.CreateAPIKey(context.Background(), name)
	require.NoError(t, err, "Failed to create API key")
	return key
}

// testCredentials returns a credential set for username whose response
// digest the mock node will confirm once register(username, digest) ran.
func testCredentials(username, digest string) client.Credentials {
	return client.Credentials{
		Username: username,
		Realm:    "sip.example.com",
		Method:   "REGISTER",
		URI:      "sip:sip.example.com",
		Nonce:    "deadbeef01234567",
		Response: digest,
	}
}
