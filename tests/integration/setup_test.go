//go:build integration

package integration

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"gofile/config"
	"gofile/internal/app"
	"gofile/internal/files"
)

// TestServerConfig configures how the test server is set up.
type TestServerConfig struct {
	// DBType is either "postgresql" or "mongodb"
	DBType string

	// MasterKey sets the authentication master key (empty = unsafe mode)
	MasterKey string

	// ProcessingDelay is how long uploads stay "uploaded", in seconds
	ProcessingDelay int

	// ValidateJSONL enables JSONL validation for fine-tune uploads
	ValidateJSONL bool
}

// TestServerFixture holds test server resources.
type TestServerFixture struct {
	// ServerURL is the base URL of the test server
	ServerURL string

	// App is the running application
	App *app.App

	// Client is a typed files client pointed at the test server
	Client *files.Client

	// PgPool is the PostgreSQL connection pool (for DB assertions)
	PgPool *pgxpool.Pool

	// MongoDb is the MongoDB database (for DB assertions)
	MongoDb *mongo.Database

	// DBType is the configured database type
	DBType string

	cancelFunc context.CancelFunc
}

// SetupTestServer creates a simulator backed by the requested database.
func SetupTestServer(t *testing.T, cfg TestServerConfig) *TestServerFixture {
	t.Helper()

	ctx, cancel := context.WithCancel(GetTestContext())

	// Find available port
	port, err := findAvailablePort()
	require.NoError(t, err, "failed to find available port")

	// Build app config
	appCfg := buildAppConfig(t, cfg, port)

	// Create app
	application, err := app.New(ctx, appCfg)
	require.NoError(t, err, "failed to create app")

	// Start server in background
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	go func() {
		addr := fmt.Sprintf("127.0.0.1:%d", port)
		_ = application.Start(addr)
	}()

	// Wait for server to be healthy
	err = waitForServer(serverURL + "/health")
	require.NoError(t, err, "server failed to become healthy")

	apiKey := cfg.MasterKey
	if apiKey == "" {
		apiKey = "sk-test"
	}

	fixture := &TestServerFixture{
		ServerURL:  serverURL,
		App:        application,
		Client:     files.New(apiKey, files.Options{BaseURL: serverURL + "/v1"}),
		DBType:     cfg.DBType,
		cancelFunc: cancel,
	}

	// Set database references for assertions
	switch cfg.DBType {
	case "postgresql":
		fixture.PgPool = GetPostgreSQLPool()
	case "mongodb":
		fixture.MongoDb = GetMongoDatabase()
	}

	return fixture
}

// Shutdown gracefully shuts down the test server. File writes are
// synchronous, so database assertions need no flush beforehand.
func (f *TestServerFixture) Shutdown(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if f.App != nil {
		_ = f.App.Shutdown(ctx)
	}

	if f.cancelFunc != nil {
		f.cancelFunc()
	}
}

// buildAppConfig creates an application config for testing.
func buildAppConfig(t *testing.T, cfg TestServerConfig, port int) *config.Config {
	t.Helper()

	appCfg := &config.Config{
		Logging: config.LoggingConfig{
			Level:  "error",
			Format: "json",
		},
		Sim: config.SimConfig{
			Port:            fmt.Sprintf("%d", port),
			MasterKey:       cfg.MasterKey,
			ProcessingDelay: cfg.ProcessingDelay,
			ValidateJSONL:   cfg.ValidateJSONL,
		},
	}

	// Configure the file store based on DBType
	switch cfg.DBType {
	case "postgresql":
		appCfg.Sim.Store = config.StoreConfig{
			Type: "postgresql",
			PostgreSQL: config.PostgreSQLConfig{
				URL:      GetPostgreSQLURL(),
				MaxConns: 5,
			},
		}
	case "mongodb":
		appCfg.Sim.Store = config.StoreConfig{
			Type: "mongodb",
			MongoDB: config.MongoDBConfig{
				URI:      GetMongoURL(),
				Database: "gofile_test",
			},
		}
	default:
		t.Fatalf("unsupported DB type: %s", cfg.DBType)
	}

	return appCfg
}

// waitForServer waits for the server to become healthy.
func waitForServer(healthURL string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	for i := 0; i < 50; i++ {
		resp, err := client.Get(healthURL)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server did not become healthy within timeout")
}

// findAvailablePort finds an available TCP port on loopback.
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer func() { _ = listener.Close() }()
	return listener.Addr().(*net.TCPAddr).Port, nil
}
