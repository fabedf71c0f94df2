package integration

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"

	"github.com/Ramsey-B/clover/internal/repositories/apiclient"
	"github.com/Ramsey-B/clover/internal/repositories/fieldmapping"
	"github.com/Ramsey-B/clover/internal/repositories/item"
	"github.com/Ramsey-B/clover/internal/repositories/token"
	"github.com/Ramsey-B/clover/pkg/auth"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/detection"
	"github.com/Ramsey-B/clover/pkg/email"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/ingest"
	"github.com/Ramsey-B/clover/pkg/locks"
	"github.com/Ramsey-B/clover/pkg/models"
)

const detectorTimeout = 5 * time.Second

var migrateOnce sync.Once

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getTestDB connects to the test database and applies migrations once per
// run. Tests are skipped when no database is reachable.
func getTestDB(t *testing.T) database.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		envOr("DB_HOST", "localhost"),
		envOr("DB_PORT", "5432"),
		envOr("DB_USER_NAME", "postgres"),
		envOr("DB_PASSWORD", "postgres"),
		envOr("DB_NAME", "clover_test"),
	)

	conn, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Skipf("Database not configured: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	logger := getTestLogger()

	migrateOnce.Do(func() {
		driver, err := migratepg.WithInstance(conn.DB, &migratepg.Config{})
		require.NoError(t, err)
		svc := database.NewMigrationService(logger, &database.MigrationConfig{
			MigrationFolderPath: "../../migrations",
			AutoRollback:        true,
		})
		require.NoError(t, svc.Migrate(envOr("DB_NAME", "clover_test"), driver))
	})

	return database.NewDatabaseInstance(conn, logger)
}

// countingDetector wraps a fixed verdict and remembers how often it ran.
type countingDetector struct {
	mu       sync.Mutex
	calls    int
	quantity *string
	price    *string
	err      error
}

func (d *countingDetector) DetectFields(_ context.Context, _ map[string]any) (*detection.Result, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	return &detection.Result{QuantityField: d.quantity, PriceField: d.price}, nil
}

func (d *countingDetector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func strptr(s string) *string { return &s }

// testStack is one fully wired ingest stack over the shared database. Each
// stack has its own mapping cache and locker, like one service replica.
type testStack struct {
	db       database.DB
	engine   *ingest.Engine
	items    *item.Repository
	mappings *fieldmapping.Repository
	clients  *apiclient.Repository
	auth     *auth.Service
	detector *countingDetector
}

func newTestStack(t *testing.T, db database.DB, detector *countingDetector) *testStack {
	t.Helper()
	logger := getTestLogger()

	clientRepo := apiclient.NewRepository(db, logger)
	mappingRepo := fieldmapping.NewRepository(db, logger)
	itemRepo := item.NewRepository(db, logger)
	tokenRepo := token.NewRepository(db, logger)

	authService := auth.NewService(logger, clientRepo, tokenRepo, email.NewConsoleSender(logger), auth.DefaultServiceConfig())

	cache := ingest.NewMappingCache(ingest.DefaultMappingCacheConfig())
	resolver := ingest.NewResolver(mappingRepo, cache, detector, detectorTimeout, logger)

	engine := ingest.NewEngine(
		logger, db, resolver, itemRepo,
		locks.NewKeyedMutex(),
		events.NewEmitter(nil, logger),
		ingest.DefaultEngineConfig(),
	)

	return &testStack{
		db:       db,
		engine:   engine,
		items:    itemRepo,
		mappings: mappingRepo,
		clients:  clientRepo,
		auth:     authService,
		detector: detector,
	}
}

// registerClient creates a fresh organization so tests stay isolated from
// one another without truncating shared tables.
func (s *testStack) registerClient(t *testing.T) *models.ApiClient {
	t.Helper()
	ctx := context.Background()

	suffix := uuid.New().String()[:8]
	resp, err := s.auth.Register(ctx, models.RegisterClientRequest{
		Email:         fmt.Sprintf("dist-%s@example.com", suffix),
		OrgName:       "Test Distributor " + suffix,
		DistributorID: "dist-" + suffix,
		Password:      "correct-horse-battery",
	})
	require.NoError(t, err)

	client, err := s.clients.GetByID(ctx, resp.ClientID)
	require.NoError(t, err)
	require.NotNil(t, client)
	return client
}

func (s *testStack) itemsFor(t *testing.T, clientID string) []models.StoreItem {
	t.Helper()

	var items []models.StoreItem
	err := s.db.SelectContext(context.Background(), &items,
		`SELECT id, api_client_id, fingerprint, data, price, quantity, is_exported, exported_at, created_at, updated_at
		 FROM store_items WHERE api_client_id = $1 ORDER BY created_at`, clientID)
	require.NoError(t, err)
	return items
}
