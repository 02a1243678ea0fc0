package transaction

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/storage"
)

// Transaction ids are drawn from this closed range.
const (
	minTransactionID = 100000
	maxTransactionID = 999999
)

// ErrIDSpaceExhausted is returned when no free transactionId was found
// within the configured number of retries.
var ErrIDSpaceExhausted = errors.New("transaction id space exhausted")

// RemoteStartContext carries operator-supplied context from a
// RemoteStartTransaction to the StartTransaction the CP eventually sends.
type RemoteStartContext struct {
	IdTag       string    `json:"idTag"`
	VehicleID   string    `json:"vehicleId,omitempty"`
	FleetID     string    `json:"fleetId,omitempty"`
	RequestedBy string    `json:"requestedBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Config tunes the coordinator.
type Config struct {
	// IDRetries bounds uniqueness retries for transactionId generation.
	IDRetries int
	// PendingTTL bounds how long a remote-start context survives unused.
	PendingTTL time.Duration
	// CleanupInterval is the sweep period for expired contexts.
	CleanupInterval time.Duration
}

// DefaultConfig returns the default coordinator settings.
func DefaultConfig() *Config {
	return &Config{
		IDRetries:       10,
		PendingTTL:      5 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

// Coordinator owns transactionId allocation, per-transaction SoC tracking
// and the pending remote-start context map.
type Coordinator struct {
	config  *Config
	store   storage.Gateway
	logger  *logger.Logger

	mu       sync.RWMutex
	lastSoC  map[int]float64              // transactionId -> last observed SoC
	pending  map[string]*RemoteStartContext // "cpId:connectorId" -> context

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCoordinator builds a coordinator over the given storage gateway.
func NewCoordinator(config *Config, store storage.Gateway, log *logger.Logger) *Coordinator {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = logger.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		config:  config,
		store:   store,
		logger:  log,
		lastSoC: make(map[int]float64),
		pending: make(map[string]*RemoteStartContext),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the expired-context sweeper.
func (c *Coordinator) Start() {
	c.wg.Add(1)
	go c.cleanupRoutine()
}

// Stop terminates the sweeper and waits for it.
func (c *Coordinator) Stop() {
	c.cancel()
	c.wg.Wait()
}

// GenerateTransactionID draws a cryptographically random id in
// [100000, 999999] and retries until it does not collide with a stored
// transaction.
func (c *Coordinator) GenerateTransactionID(ctx context.Context) (int, error) {
	span := big.NewInt(maxTransactionID - minTransactionID + 1)
	for attempt := 0; attempt < c.config.IDRetries; attempt++ {
		n, err := rand.Int(rand.Reader, span)
		if err != nil {
			return 0, fmt.Errorf("failed to draw transaction id: %w", err)
		}
		id := minTransactionID + int(n.Int64())

		_, err = c.store.GetTransaction(ctx, id)
		if errors.Is(err, storage.ErrTransactionNotFound) {
			return id, nil
		}
		if err != nil {
			return 0, fmt.Errorf("failed to check transaction id %d: %w", id, err)
		}
		c.logger.Debugf("Transaction id %d already taken, retrying", id)
	}
	return 0, ErrIDSpaceExhausted
}

// ObserveSoC records the latest SoC seen for a transaction and writes the
// start SoC once. The database row is the idempotency anchor: WriteStartSoC
// only fills a null column.
func (c *Coordinator) ObserveSoC(ctx context.Context, transactionID int, soc float64) error {
	c.mu.Lock()
	c.lastSoC[transactionID] = soc
	c.mu.Unlock()

	if err := c.store.WriteStartSoC(ctx, transactionID, soc); err != nil {
		if errors.Is(err, storage.ErrTransactionNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// LastSoC returns the most recent SoC observed for a transaction.
func (c *Coordinator) LastSoC(transactionID int) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	soc, ok := c.lastSoC[transactionID]
	return soc, ok
}

// ForgetTransaction drops the in-memory SoC entry after a stop.
func (c *Coordinator) ForgetTransaction(transactionID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lastSoC, transactionID)
}

func pendingKey(chargePointID string, connectorID int) string {
	return fmt.Sprintf("%s:%d", chargePointID, connectorID)
}

// PutPendingStart stores remote-start context for the connector.
func (c *Coordinator) PutPendingStart(chargePointID string, connectorID int, rsc *RemoteStartContext) {
	rsc.CreatedAt = time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[pendingKey(chargePointID, connectorID)] = rsc
}

// TakePendingStart removes and returns the context for the connector, if
// present and not expired.
func (c *Coordinator) TakePendingStart(chargePointID string, connectorID int) (*RemoteStartContext, bool) {
	key := pendingKey(chargePointID, connectorID)
	c.mu.Lock()
	defer c.mu.Unlock()
	rsc, ok := c.pending[key]
	if !ok {
		return nil, false
	}
	delete(c.pending, key)
	if time.Since(rsc.CreatedAt) > c.config.PendingTTL {
		return nil, false
	}
	return rsc, true
}

// PendingCount reports how many remote-start contexts are waiting.
func (c *Coordinator) PendingCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pending)
}

func (c *Coordinator) cleanupRoutine() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.cleanupExpired()
		}
	}
}

func (c *Coordinator) cleanupExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, rsc := range c.pending {
		if now.Sub(rsc.CreatedAt) > c.config.PendingTTL {
			c.logger.Debugf("Expiring pending remote start for %s", key)
			delete(c.pending, key)
		}
	}
}
