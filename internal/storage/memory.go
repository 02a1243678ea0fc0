package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
)

// MemoryGateway is an in-memory Gateway used by unit tests and local runs
// without a database.
type MemoryGateway struct {
	mu           sync.RWMutex
	chargePoints map[string]*ChargePoint
	connectors   map[string]*Connector // keyed "cpId:connectorId"
	transactions map[int]*Transaction
	meterValues  []MeterValueRecord
	idTags       map[string]*IdTagVerdict
	alarms       []*Alarm
	nextRowID    int64
}

// NewMemoryGateway returns an empty in-memory gateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		chargePoints: make(map[string]*ChargePoint),
		connectors:   make(map[string]*Connector),
		transactions: make(map[int]*Transaction),
		idTags:       make(map[string]*IdTagVerdict),
		nextRowID:    1,
	}
}

func connectorKey(chargePointID string, connectorID int) string {
	return fmt.Sprintf("%s:%d", chargePointID, connectorID)
}

// SeedIdTag registers an idTag verdict for tests.
func (g *MemoryGateway) SeedIdTag(idTag string, status ocpp16.AuthorizationStatus, expiry *time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.idTags[idTag] = &IdTagVerdict{Status: status, ExpiryDate: expiry}
}

// UpsertChargePoint stores a copy of the station row.
func (g *MemoryGateway) UpsertChargePoint(_ context.Context, cp *ChargePoint) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	clone := *cp
	g.chargePoints[cp.ID] = &clone
	return nil
}

// SetChargePointOnline flips the online flag.
func (g *MemoryGateway) SetChargePointOnline(_ context.Context, chargePointID string, online bool, now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp, ok := g.chargePoints[chargePointID]
	if !ok {
		cp = &ChargePoint{ID: chargePointID}
		g.chargePoints[chargePointID] = cp
	}
	cp.IsOnline = online
	cp.LastSeen = now
	return nil
}

// GetChargePoint reads one station row.
func (g *MemoryGateway) GetChargePoint(_ context.Context, chargePointID string) (*ChargePoint, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cp, ok := g.chargePoints[chargePointID]
	if !ok {
		return nil, nil
	}
	clone := *cp
	return &clone, nil
}

// ListChargePoints returns all station rows.
func (g *MemoryGateway) ListChargePoints(_ context.Context) ([]*ChargePoint, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*ChargePoint, 0, len(g.chargePoints))
	for _, cp := range g.chargePoints {
		clone := *cp
		out = append(out, &clone)
	}
	return out, nil
}

// UpsertConnector stores a copy of the connector row.
func (g *MemoryGateway) UpsertConnector(_ context.Context, c *Connector) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	clone := *c
	g.connectors[connectorKey(c.ChargePointID, c.ConnectorID)] = &clone
	return nil
}

// SetConnectorStatus applies a status update, creating the row if needed.
func (g *MemoryGateway) SetConnectorStatus(_ context.Context, chargePointID string, connectorID int, update ConnectorStatusUpdate) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := connectorKey(chargePointID, connectorID)
	c, ok := g.connectors[key]
	if !ok {
		c = &Connector{ChargePointID: chargePointID, ConnectorID: connectorID}
		g.connectors[key] = c
	}
	c.Status = update.Status
	c.ErrorCode = update.ErrorCode
	c.VendorErrorCode = update.VendorErrorCode
	c.Info = update.Info
	c.LastUpdated = time.Now()
	return nil
}

// ListConnectors returns the connector rows of a station.
func (g *MemoryGateway) ListConnectors(_ context.Context, chargePointID string) ([]*Connector, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*Connector
	for _, c := range g.connectors {
		if c.ChargePointID == chargePointID {
			clone := *c
			out = append(out, &clone)
		}
	}
	return out, nil
}

// CreateTransaction stores a new transaction, rejecting duplicate ids.
func (g *MemoryGateway) CreateTransaction(_ context.Context, tx *Transaction) (*Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.transactions[tx.TransactionID]; exists {
		return nil, ErrDuplicateTransactionID
	}
	clone := *tx
	clone.ID = g.nextRowID
	g.nextRowID++
	g.transactions[tx.TransactionID] = &clone
	result := clone
	return &result, nil
}

// StopTransaction closes a stored transaction.
func (g *MemoryGateway) StopTransaction(_ context.Context, transactionID int, meterStop float64, ts time.Time, reason StopReason, stopSoC *float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	tx, ok := g.transactions[transactionID]
	if !ok {
		return ErrTransactionNotFound
	}
	tx.MeterStop = &meterStop
	tx.StopTime = &ts
	tx.StopReason = &reason
	if stopSoC != nil {
		tx.StopSoC = stopSoC
	}
	return nil
}

// WriteStartSoC sets startSoC only when still unset.
func (g *MemoryGateway) WriteStartSoC(_ context.Context, transactionID int, soc float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	tx, ok := g.transactions[transactionID]
	if !ok {
		return ErrTransactionNotFound
	}
	if tx.StartSoC == nil {
		tx.StartSoC = &soc
	}
	return nil
}

// GetTransaction reads a stored transaction.
func (g *MemoryGateway) GetTransaction(_ context.Context, transactionID int) (*Transaction, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	tx, ok := g.transactions[transactionID]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	clone := *tx
	return &clone, nil
}

// ListTransactions returns stored transactions, newest first.
func (g *MemoryGateway) ListTransactions(_ context.Context, chargePointID string, limit int) ([]*Transaction, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*Transaction
	for _, tx := range g.transactions {
		if chargePointID == "" || tx.ChargePointID == chargePointID {
			clone := *tx
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.After(out[j].StartTime)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveMeterValues appends sample rows.
func (g *MemoryGateway) SaveMeterValues(_ context.Context, batch []MeterValueRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.meterValues = append(g.meterValues, batch...)
	return nil
}

// MeterValueCount reports how many samples were persisted (test helper).
func (g *MemoryGateway) MeterValueCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.meterValues)
}

// ValidateIdTag returns the seeded verdict, Invalid for unknown tags.
func (g *MemoryGateway) ValidateIdTag(_ context.Context, idTag string) (*IdTagVerdict, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.idTags[idTag]
	if !ok {
		return &IdTagVerdict{Status: ocpp16.AuthorizationStatusInvalid}, nil
	}
	clone := *v
	return &clone, nil
}

// CreateAlarm appends a fault record.
func (g *MemoryGateway) CreateAlarm(_ context.Context, a *Alarm) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	clone := *a
	clone.ID = g.nextRowID
	g.nextRowID++
	g.alarms = append(g.alarms, &clone)
	return nil
}

// ResolveAlarms closes open alarms on one connector.
func (g *MemoryGateway) ResolveAlarms(_ context.Context, chargePointID string, connectorID int, resolver string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now()
	for _, a := range g.alarms {
		if a.ChargePointID == chargePointID && !a.Resolved &&
			a.ConnectorID != nil && *a.ConnectorID == connectorID {
			a.Resolved = true
			a.ResolvedAt = &now
			a.ResolvedBy = &resolver
		}
	}
	return nil
}

// Alarms returns a snapshot of all fault records (test helper).
func (g *MemoryGateway) Alarms() []*Alarm {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Alarm, 0, len(g.alarms))
	for _, a := range g.alarms {
		clone := *a
		out = append(out, &clone)
	}
	return out
}

// Ping always succeeds.
func (g *MemoryGateway) Ping(_ context.Context) error {
	return nil
}
