package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/detection"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type stubTx struct {
	committed  bool
	rolledBack bool
}

func (t *stubTx) IsOpen() bool { return !t.committed && !t.rolledBack }

func (t *stubTx) Commit(_ context.Context) error {
	t.committed = true
	return nil
}

func (t *stubTx) Rollback(_ context.Context) error {
	if t.committed {
		return nil
	}
	t.rolledBack = true
	return nil
}

func (t *stubTx) ExecContext(_ context.Context, _ string, _ ...any) (sql.Result, error) {
	return nil, nil
}
func (t *stubTx) GetContext(_ context.Context, _ any, _ string, _ ...any) error    { return nil }
func (t *stubTx) SelectContext(_ context.Context, _ any, _ string, _ ...any) error { return nil }
func (t *stubTx) QueryxContext(_ context.Context, _ string, _ ...any) (*sqlx.Rows, error) {
	return nil, nil
}
func (t *stubTx) QueryRowxContext(_ context.Context, _ string, _ ...any) *sqlx.Row { return nil }

type stubDB struct {
	tx       *stubTx
	getTxErr error
}

func (d *stubDB) ExecContext(_ context.Context, _ string, _ ...any) (sql.Result, error) {
	return nil, nil
}
func (d *stubDB) GetContext(_ context.Context, _ any, _ string, _ ...any) error    { return nil }
func (d *stubDB) SelectContext(_ context.Context, _ any, _ string, _ ...any) error { return nil }
func (d *stubDB) QueryxContext(_ context.Context, _ string, _ ...any) (*sqlx.Rows, error) {
	return nil, nil
}
func (d *stubDB) QueryRowxContext(_ context.Context, _ string, _ ...any) *sqlx.Row { return nil }
func (d *stubDB) BeginTxx(_ context.Context, _ *sql.TxOptions) (*sqlx.Tx, error)   { return nil, nil }
func (d *stubDB) PingContext(_ context.Context) error                              { return nil }
func (d *stubDB) Close() error                                                     { return nil }

func (d *stubDB) GetTx(ctx context.Context, _ *sql.TxOptions) (context.Context, database.Tx, error) {
	if d.getTxErr != nil {
		return ctx, nil, d.getTxErr
	}
	d.tx = &stubTx{}
	return ctx, d.tx, nil
}

// stubItemStore keeps items in memory keyed by client and fingerprint so
// records later in a batch can match records earlier in it.
type stubItemStore struct {
	items       map[string][]models.StoreItem
	upserts     []string
	updates     []string
	findErr     error
	upsertErr   error
	updateErr   error
	nextID      int
	extraMatch  *models.StoreItem
	lastUpdated *models.StoreItem
}

func newStubItemStore() *stubItemStore {
	return &stubItemStore{items: map[string][]models.StoreItem{}}
}

func storeKey(apiClientID, fp string) string { return apiClientID + "|" + fp }

func (s *stubItemStore) FindByFingerprint(_ context.Context, apiClientID, fp string) ([]models.StoreItem, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	matches := s.items[storeKey(apiClientID, fp)]
	if s.extraMatch != nil && len(matches) > 0 {
		matches = append(matches, *s.extraMatch)
	}
	return matches, nil
}

func (s *stubItemStore) Upsert(_ context.Context, apiClientID, fp string, data json.RawMessage, price, quantity *float64) (*models.UpsertItemResult, error) {
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	s.nextID++
	item := models.StoreItem{
		ID:          fmt.Sprintf("item-%d", s.nextID),
		APIClientID: apiClientID,
		Fingerprint: fp,
		Data:        data,
		Price:       price,
		Quantity:    quantity,
	}
	s.items[storeKey(apiClientID, fp)] = []models.StoreItem{item}
	s.upserts = append(s.upserts, fp)
	return &models.UpsertItemResult{Item: &item, Inserted: true}, nil
}

func (s *stubItemStore) Update(_ context.Context, id string, data json.RawMessage, price, quantity *float64) (*models.StoreItem, error) {
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	s.updates = append(s.updates, id)
	item := &models.StoreItem{ID: id, Data: data, Price: price, Quantity: quantity}
	s.lastUpdated = item
	return item, nil
}

type stubMappingStore struct {
	mapping   *models.FieldMapping
	getErr    error
	createErr error
	creates   int
}

func (s *stubMappingStore) Get(_ context.Context, _ string) (*models.FieldMapping, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.mapping, nil
}

func (s *stubMappingStore) Create(_ context.Context, apiClientID string, quantityField, priceField *string, raw map[string]any) (*models.FieldMapping, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.creates++
	if s.mapping == nil {
		var rawCol *database.JSONB[map[string]any]
		if raw != nil {
			jb := database.NewJSONB(raw)
			rawCol = &jb
		}
		s.mapping = &models.FieldMapping{
			ID:            "mapping-1",
			APIClientID:   apiClientID,
			QuantityField: quantityField,
			PriceField:    priceField,
			RawResponse:   rawCol,
			DetectedAt:    time.Now().UTC(),
		}
	}
	return s.mapping, nil
}

type stubDetector struct {
	result *detection.Result
	err    error
	calls  int
}

func (d *stubDetector) DetectFields(_ context.Context, _ map[string]any) (*detection.Result, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.result, nil
}

type stubLocker struct {
	acquires int
	releases int
	err      error
}

func (l *stubLocker) Acquire(_ context.Context, _ string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquires++
	return func() { l.releases++ }, nil
}

type engineHarness struct {
	engine   *Engine
	db       *stubDB
	items    *stubItemStore
	mappings *stubMappingStore
	detector *stubDetector
	locker   *stubLocker
}

func newEngineHarness(t *testing.T) *engineHarness {
	t.Helper()

	logger := testLogger()
	db := &stubDB{}
	items := newStubItemStore()
	mappings := &stubMappingStore{}
	detector := &stubDetector{result: &detection.Result{}}
	locker := &stubLocker{}

	cache := NewMappingCache(DefaultMappingCacheConfig())
	resolver := NewResolver(mappings, cache, detector, time.Second, logger)
	emitter := events.NewEmitter(nil, logger)
	engine := NewEngine(logger, db, resolver, items, locker, emitter, DefaultEngineConfig())

	return &engineHarness{
		engine:   engine,
		db:       db,
		items:    items,
		mappings: mappings,
		detector: detector,
		locker:   locker,
	}
}

func strPtr(s string) *string { return &s }

func testClient() *models.ApiClient {
	return &models.ApiClient{ID: "client-1", Email: "ops@acme.test", OrgName: "Acme", DistributorID: "acme-dist"}
}

func TestEngine_IngestBatch_FirstBatchDetectsAndInserts(t *testing.T) {
	h := newEngineHarness(t)
	h.detector.result = &detection.Result{
		QuantityField: strPtr("qty"),
		PriceField:    strPtr("cost"),
		Raw:           map[string]any{"quantity_field": "qty", "price_field": "cost"},
	}

	records := []map[string]any{
		{"sku": "ABC-1", "qty": float64(10), "cost": float64(99.5)},
		{"sku": "DEF-2", "qty": float64(3), "cost": float64(12)},
	}

	resp, err := h.engine.IngestBatch(context.Background(), testClient(), records)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Processed)

	assert.Equal(t, 1, h.detector.calls)
	assert.Equal(t, 1, h.mappings.creates)
	require.NotNil(t, h.mappings.mapping)
	assert.Equal(t, "qty", *h.mappings.mapping.QuantityField)
	assert.Equal(t, "cost", *h.mappings.mapping.PriceField)

	assert.Len(t, h.items.upserts, 2)
	assert.Empty(t, h.items.updates)
	require.NotNil(t, h.db.tx)
	assert.True(t, h.db.tx.committed)
	assert.False(t, h.db.tx.rolledBack)
	assert.Equal(t, 1, h.locker.releases)
}

func TestEngine_IngestBatch_SecondBatchSkipsDetectionAndUpdates(t *testing.T) {
	h := newEngineHarness(t)
	h.mappings.mapping = &models.FieldMapping{
		ID:            "mapping-1",
		APIClientID:   "client-1",
		QuantityField: strPtr("qty"),
		PriceField:    strPtr("cost"),
	}

	first := []map[string]any{{"sku": "ABC-1", "qty": float64(10), "cost": float64(99.5)}}
	_, err := h.engine.IngestBatch(context.Background(), testClient(), first)
	require.NoError(t, err)
	require.Len(t, h.items.upserts, 1)

	// Same item, different quantity and price: the mapped fields are excluded
	// from the fingerprint so this must match and update, not insert.
	second := []map[string]any{{"sku": "ABC-1", "qty": float64(25), "cost": float64(80)}}
	resp, err := h.engine.IngestBatch(context.Background(), testClient(), second)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Processed)

	assert.Equal(t, 0, h.detector.calls)
	assert.Len(t, h.items.upserts, 1)
	require.Len(t, h.items.updates, 1)
	assert.Equal(t, "item-1", h.items.updates[0])
	require.NotNil(t, h.items.lastUpdated.Quantity)
	assert.Equal(t, float64(25), *h.items.lastUpdated.Quantity)
}

func TestEngine_IngestBatch_DetectorFailureStoresNullMapping(t *testing.T) {
	h := newEngineHarness(t)
	h.detector.err = errors.New("model overloaded")

	records := []map[string]any{{"sku": "ABC-1", "qty": float64(10)}}
	resp, err := h.engine.IngestBatch(context.Background(), testClient(), records)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Processed)

	require.NotNil(t, h.mappings.mapping)
	assert.Nil(t, h.mappings.mapping.QuantityField)
	assert.Nil(t, h.mappings.mapping.PriceField)

	// With no mapping the whole payload participates in the fingerprint.
	require.Len(t, h.items.upserts, 1)
	upserted := h.items.items[storeKey("client-1", h.items.upserts[0])][0]
	var stored map[string]any
	require.NoError(t, json.Unmarshal(upserted.Data, &stored))
	assert.Equal(t, float64(10), stored["qty"])
	assert.Nil(t, upserted.Quantity)
}

func TestEngine_IngestBatch_DetectorFailureIsPermanent(t *testing.T) {
	h := newEngineHarness(t)
	h.detector.err = errors.New("model overloaded")

	records := []map[string]any{{"sku": "ABC-1"}}
	_, err := h.engine.IngestBatch(context.Background(), testClient(), records)
	require.NoError(t, err)
	assert.Equal(t, 1, h.detector.calls)

	// The detector recovering later must not matter: the null mapping is
	// already stored.
	h.detector.err = nil
	h.detector.result = &detection.Result{QuantityField: strPtr("qty")}
	_, err = h.engine.IngestBatch(context.Background(), testClient(), records)
	require.NoError(t, err)
	assert.Equal(t, 1, h.detector.calls)
	assert.Nil(t, h.mappings.mapping.QuantityField)
}

func TestEngine_IngestBatch_OversizeBatchRejectedBeforeAnyWork(t *testing.T) {
	h := newEngineHarness(t)

	records := make([]map[string]any, DefaultEngineConfig().MaxBatchSize+1)
	for i := range records {
		records[i] = map[string]any{"sku": fmt.Sprintf("SKU-%d", i)}
	}

	resp, err := h.engine.IngestBatch(context.Background(), testClient(), records)
	assert.Nil(t, resp)
	require.Error(t, err)

	assert.True(t, httperror.IsHTTPError(err))
	assert.Equal(t, http.StatusRequestEntityTooLarge, httperror.GetStatusCode(err))
	assert.Contains(t, err.Error(), "Batch size exceeds limit")

	assert.Equal(t, 0, h.detector.calls)
	assert.Equal(t, 0, h.mappings.creates)
	assert.Equal(t, 0, h.locker.acquires)
	assert.Empty(t, h.items.upserts)
	assert.Nil(t, h.db.tx)
}

func TestEngine_IngestBatch_EmptyBatch(t *testing.T) {
	h := newEngineHarness(t)

	resp, err := h.engine.IngestBatch(context.Background(), testClient(), []map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Processed)

	assert.Equal(t, 0, h.detector.calls)
	assert.Equal(t, 0, h.mappings.creates)
	assert.Nil(t, h.db.tx)
}

func TestEngine_IngestBatch_IntraBatchDuplicate(t *testing.T) {
	h := newEngineHarness(t)
	h.mappings.mapping = &models.FieldMapping{
		ID:            "mapping-1",
		APIClientID:   "client-1",
		QuantityField: strPtr("qty"),
	}

	records := []map[string]any{
		{"sku": "ABC-1", "qty": float64(5)},
		{"sku": "ABC-1", "qty": float64(9)},
	}

	resp, err := h.engine.IngestBatch(context.Background(), testClient(), records)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Processed)

	assert.Len(t, h.items.upserts, 1)
	require.Len(t, h.items.updates, 1)
	assert.Equal(t, "item-1", h.items.updates[0])
	require.NotNil(t, h.items.lastUpdated.Quantity)
	assert.Equal(t, float64(9), *h.items.lastUpdated.Quantity)
}

func TestEngine_IngestBatch_StoreErrorRollsBackBatch(t *testing.T) {
	h := newEngineHarness(t)
	h.items.findErr = errors.New("connection reset")

	records := []map[string]any{{"sku": "ABC-1"}}
	_, err := h.engine.IngestBatch(context.Background(), testClient(), records)
	require.Error(t, err)

	require.NotNil(t, h.db.tx)
	assert.False(t, h.db.tx.committed)
	assert.True(t, h.db.tx.rolledBack)
	assert.Equal(t, 1, h.locker.releases)
}

func TestEngine_IngestBatch_DuplicateFingerprintsUpdateOldest(t *testing.T) {
	h := newEngineHarness(t)
	h.mappings.mapping = &models.FieldMapping{ID: "mapping-1", APIClientID: "client-1"}

	records := []map[string]any{{"sku": "ABC-1"}}
	_, err := h.engine.IngestBatch(context.Background(), testClient(), records)
	require.NoError(t, err)

	// A second row sharing the fingerprint, as a broken unique constraint
	// would leave behind. The earliest row must win.
	h.items.extraMatch = &models.StoreItem{ID: "item-999"}

	_, err = h.engine.IngestBatch(context.Background(), testClient(), records)
	require.NoError(t, err)
	require.Len(t, h.items.updates, 1)
	assert.Equal(t, "item-1", h.items.updates[0])
}

func TestEngine_IngestBatch_LockFailureReturnsServiceUnavailable(t *testing.T) {
	h := newEngineHarness(t)
	h.locker.err = errors.New("lock wait timed out")

	records := []map[string]any{{"sku": "ABC-1"}}
	_, err := h.engine.IngestBatch(context.Background(), testClient(), records)
	require.Error(t, err)

	assert.True(t, httperror.IsHTTPError(err))
	assert.Equal(t, http.StatusServiceUnavailable, httperror.GetStatusCode(err))
	assert.Equal(t, 0, h.detector.calls)
	assert.Nil(t, h.db.tx)
}

func TestEngine_IngestBatch_NilRecordFingerprintsAsEmpty(t *testing.T) {
	h := newEngineHarness(t)
	h.mappings.mapping = &models.FieldMapping{ID: "mapping-1", APIClientID: "client-1"}

	records := []map[string]any{nil, nil}
	resp, err := h.engine.IngestBatch(context.Background(), testClient(), records)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Processed)

	// Both nils collapse to the empty object fingerprint.
	assert.Len(t, h.items.upserts, 1)
	assert.Len(t, h.items.updates, 1)
}

func TestResolver_Resolve_CachesMapping(t *testing.T) {
	logger := testLogger()
	mappings := &stubMappingStore{mapping: &models.FieldMapping{ID: "mapping-1", APIClientID: "client-1"}}
	detector := &stubDetector{result: &detection.Result{}}
	cache := NewMappingCache(DefaultMappingCacheConfig())
	resolver := NewResolver(mappings, cache, detector, time.Second, logger)

	first, err := resolver.Resolve(context.Background(), "client-1", map[string]any{"sku": "A"})
	require.NoError(t, err)
	require.NotNil(t, first)

	// Point the store elsewhere; a cache hit never touches it.
	mappings.getErr = errors.New("store should not be hit")
	second, err := resolver.Resolve(context.Background(), "client-1", map[string]any{"sku": "B"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 0, detector.calls)
}

func TestResolver_Resolve_StoreErrorSurfaces(t *testing.T) {
	logger := testLogger()
	mappings := &stubMappingStore{getErr: errors.New("connection refused")}
	detector := &stubDetector{result: &detection.Result{}}
	cache := NewMappingCache(DefaultMappingCacheConfig())
	resolver := NewResolver(mappings, cache, detector, time.Second, logger)

	_, err := resolver.Resolve(context.Background(), "client-1", map[string]any{})
	require.Error(t, err)
	assert.Equal(t, 0, detector.calls)
}
