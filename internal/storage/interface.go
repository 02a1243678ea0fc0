package storage

import (
	"context"
	"errors"
	"time"
)

// ErrTransactionNotFound is returned when a transactionId has no row.
var ErrTransactionNotFound = errors.New("transaction not found")

// ErrDuplicateTransactionID is returned when a generated transactionId
// collides with an existing row.
var ErrDuplicateTransactionID = errors.New("duplicate transaction id")

// ConnectorStatusUpdate carries the fields applied by SetConnectorStatus.
type ConnectorStatusUpdate struct {
	Status          ConnectorStatus
	ErrorCode       *string
	VendorErrorCode *string
	Info            *string
}

// Gateway is the durable storage contract the protocol core depends on.
// Implementations must be safe for concurrent use.
type Gateway interface {
	// Charge points
	UpsertChargePoint(ctx context.Context, cp *ChargePoint) error
	SetChargePointOnline(ctx context.Context, chargePointID string, online bool, now time.Time) error
	GetChargePoint(ctx context.Context, chargePointID string) (*ChargePoint, error)
	ListChargePoints(ctx context.Context) ([]*ChargePoint, error)

	// Connectors
	UpsertConnector(ctx context.Context, c *Connector) error
	SetConnectorStatus(ctx context.Context, chargePointID string, connectorID int, update ConnectorStatusUpdate) error
	ListConnectors(ctx context.Context, chargePointID string) ([]*Connector, error)

	// Transactions
	CreateTransaction(ctx context.Context, tx *Transaction) (*Transaction, error)
	StopTransaction(ctx context.Context, transactionID int, meterStop float64, ts time.Time, reason StopReason, stopSoC *float64) error
	WriteStartSoC(ctx context.Context, transactionID int, soc float64) error
	GetTransaction(ctx context.Context, transactionID int) (*Transaction, error)
	ListTransactions(ctx context.Context, chargePointID string, limit int) ([]*Transaction, error)

	// Meter values
	SaveMeterValues(ctx context.Context, batch []MeterValueRecord) error

	// Authorization
	ValidateIdTag(ctx context.Context, idTag string) (*IdTagVerdict, error)

	// Alarms
	CreateAlarm(ctx context.Context, a *Alarm) error
	ResolveAlarms(ctx context.Context, chargePointID string, connectorID int, resolver string) error

	// Ping reports backend health.
	Ping(ctx context.Context) error
}
