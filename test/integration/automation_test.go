package integration

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/automation"
)

func newExporter(stack *testStack) *automation.Exporter {
	return automation.NewExporter(getTestLogger(), stack.db, stack.items, automation.DefaultExporterConfig())
}

func TestAutomation_ExportDrainsUnexported(t *testing.T) {
	db := getTestDB(t)
	detector := &countingDetector{quantity: strptr("quantity"), price: strptr("price")}
	stack := newTestStack(t, db, detector)
	client := stack.registerClient(t)
	ctx := context.Background()

	_, err := stack.engine.IngestBatch(ctx, client, []map[string]any{
		{"sku": "A", "price": 1.0, "quantity": 1.0},
		{"sku": "B", "price": 2.0, "quantity": 2.0},
	})
	require.NoError(t, err)

	exporter := newExporter(stack)

	batch, err := exporter.ExportBatch(ctx, client.ID, 10)
	require.NoError(t, err)
	assert.Len(t, batch.Items, 2)

	// second poll finds nothing new
	batch, err = exporter.ExportBatch(ctx, client.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, batch.Items)

	pending, err := exporter.Pending(ctx, client.ID)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestAutomation_UpdateRequeuesItem(t *testing.T) {
	db := getTestDB(t)
	detector := &countingDetector{quantity: strptr("quantity"), price: strptr("price")}
	stack := newTestStack(t, db, detector)
	client := stack.registerClient(t)
	ctx := context.Background()

	_, err := stack.engine.IngestBatch(ctx, client, []map[string]any{
		{"sku": "A", "price": 1.0, "quantity": 1.0},
	})
	require.NoError(t, err)

	exporter := newExporter(stack)
	batch, err := exporter.ExportBatch(ctx, client.ID, 10)
	require.NoError(t, err)
	require.Len(t, batch.Items, 1)

	// updating the row puts it back on the feed with the fresh values
	_, err = stack.engine.IngestBatch(ctx, client, []map[string]any{
		{"sku": "A", "price": 5.0, "quantity": 5.0},
	})
	require.NoError(t, err)

	batch, err = exporter.ExportBatch(ctx, client.ID, 10)
	require.NoError(t, err)
	require.Len(t, batch.Items, 1)
	assert.Equal(t, 5.0, *batch.Items[0].Price)
	assert.Equal(t, 5.0, *batch.Items[0].Quantity)
}

func TestAutomation_ConcurrentPollersNeverDoubleDeliver(t *testing.T) {
	db := getTestDB(t)
	detector := &countingDetector{quantity: strptr("quantity"), price: strptr("price")}
	stack := newTestStack(t, db, detector)
	client := stack.registerClient(t)
	ctx := context.Background()

	records := make([]map[string]any, 20)
	for i := range records {
		records[i] = map[string]any{"sku": i, "price": 1.0, "quantity": 1.0}
	}
	_, err := stack.engine.IngestBatch(ctx, client, records)
	require.NoError(t, err)

	exporter := newExporter(stack)

	var wg sync.WaitGroup
	results := make([][]string, 4)
	wg.Add(4)
	for i := 0; i < 4; i++ {
		go func(i int) {
			defer wg.Done()
			batch, err := exporter.ExportBatch(ctx, client.ID, 10)
			if err != nil {
				return
			}
			for _, item := range batch.Items {
				results[i] = append(results[i], item.ID)
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	total := 0
	for _, ids := range results {
		for _, id := range ids {
			require.False(t, seen[id], "item delivered to two pollers")
			seen[id] = true
			total++
		}
	}
	assert.Equal(t, 20, total)
}
