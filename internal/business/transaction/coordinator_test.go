package transaction

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/central-system/internal/storage"
)

func TestGenerateTransactionID_Range(t *testing.T) {
	c := NewCoordinator(nil, storage.NewMemoryGateway(), nil)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		id, err := c.GenerateTransactionID(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, id, 100000)
		assert.LessOrEqual(t, id, 999999)
	}
}

func TestGenerateTransactionID_SkipsExisting(t *testing.T) {
	store := storage.NewMemoryGateway()
	c := NewCoordinator(nil, store, nil)
	ctx := context.Background()

	id, err := c.GenerateTransactionID(ctx)
	require.NoError(t, err)

	_, err = store.CreateTransaction(ctx, &storage.Transaction{
		TransactionID: id,
		ChargePointID: "CP001",
		ConnectorID:   1,
		StartTime:     time.Now(),
	})
	require.NoError(t, err)

	next, err := c.GenerateTransactionID(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, id, next)
}

func TestObserveSoC_WriteOnceStartSoC(t *testing.T) {
	store := storage.NewMemoryGateway()
	c := NewCoordinator(nil, store, nil)
	ctx := context.Background()

	_, err := store.CreateTransaction(ctx, &storage.Transaction{
		TransactionID: 123456,
		ChargePointID: "CP001",
		ConnectorID:   1,
		StartTime:     time.Now(),
	})
	require.NoError(t, err)

	require.NoError(t, c.ObserveSoC(ctx, 123456, 40))
	require.NoError(t, c.ObserveSoC(ctx, 123456, 75))

	tx, err := store.GetTransaction(ctx, 123456)
	require.NoError(t, err)
	require.NotNil(t, tx.StartSoC)
	assert.Equal(t, 40.0, *tx.StartSoC)

	soc, ok := c.LastSoC(123456)
	require.True(t, ok)
	assert.Equal(t, 75.0, soc)

	c.ForgetTransaction(123456)
	_, ok = c.LastSoC(123456)
	assert.False(t, ok)
}

func TestObserveSoC_UnknownTransactionIgnored(t *testing.T) {
	c := NewCoordinator(nil, storage.NewMemoryGateway(), nil)
	assert.NoError(t, c.ObserveSoC(context.Background(), 999999, 50))
}

func TestPendingStart_TakeRemoves(t *testing.T) {
	c := NewCoordinator(nil, storage.NewMemoryGateway(), nil)

	c.PutPendingStart("CP001", 1, &RemoteStartContext{IdTag: "TAG1", VehicleID: "veh-7"})
	assert.Equal(t, 1, c.PendingCount())

	rsc, ok := c.TakePendingStart("CP001", 1)
	require.True(t, ok)
	assert.Equal(t, "TAG1", rsc.IdTag)
	assert.Equal(t, "veh-7", rsc.VehicleID)
	assert.Equal(t, 0, c.PendingCount())

	_, ok = c.TakePendingStart("CP001", 1)
	assert.False(t, ok)
}

func TestPendingStart_Expiry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PendingTTL = 10 * time.Millisecond
	c := NewCoordinator(cfg, storage.NewMemoryGateway(), nil)

	c.PutPendingStart("CP001", 1, &RemoteStartContext{IdTag: "TAG1"})
	time.Sleep(20 * time.Millisecond)

	_, ok := c.TakePendingStart("CP001", 1)
	assert.False(t, ok)
}

func TestPendingStart_CleanupRoutine(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PendingTTL = 10 * time.Millisecond
	cfg.CleanupInterval = 20 * time.Millisecond
	c := NewCoordinator(cfg, storage.NewMemoryGateway(), nil)
	c.Start()
	defer c.Stop()

	c.PutPendingStart("CP001", 1, &RemoteStartContext{IdTag: "TAG1"})
	c.PutPendingStart("CP001", 2, &RemoteStartContext{IdTag: "TAG2"})

	assert.Eventually(t, func() bool {
		return c.PendingCount() == 0
	}, time.Second, 10*time.Millisecond)
}
