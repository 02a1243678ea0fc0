package ocpp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/charging-platform/central-system/internal/business/transaction"
	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/logger"
)

// Commands exposes the central system initiated operations, resolving the
// target session by charge point id.
type Commands struct {
	registry    *Registry
	coordinator *transaction.Coordinator
	logger      *logger.Logger
}

// NewCommands wires the command layer.
func NewCommands(registry *Registry, coordinator *transaction.Coordinator, log *logger.Logger) *Commands {
	if log == nil {
		log = logger.Default()
	}
	return &Commands{registry: registry, coordinator: coordinator, logger: log}
}

func (c *Commands) session(chargePointID string) (*Session, error) {
	s, ok := c.registry.Get(chargePointID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Send issues a raw action with an arbitrary payload and returns the raw
// CALLRESULT payload.
func (c *Commands) Send(ctx context.Context, chargePointID string, action ocpp16.Action, payload interface{}) (json.RawMessage, error) {
	s, err := c.session(chargePointID)
	if err != nil {
		return nil, err
	}
	return s.Call(ctx, action, payload, 0)
}

// RemoteStart asks a charge point to start charging. A non-nil rsc is
// parked so the resulting StartTransaction can be attributed to it.
func (c *Commands) RemoteStart(ctx context.Context, chargePointID string, connectorID *int, idTag string, rsc *transaction.RemoteStartContext) (*ocpp16.RemoteStartTransactionResponse, error) {
	s, err := c.session(chargePointID)
	if err != nil {
		return nil, err
	}

	if rsc != nil && connectorID != nil {
		if rsc.CreatedAt.IsZero() {
			rsc.CreatedAt = time.Now()
		}
		c.coordinator.PutPendingStart(chargePointID, *connectorID, rsc)
	}

	req := ocpp16.RemoteStartTransactionRequest{ConnectorID: connectorID, IdTag: idTag}
	var resp ocpp16.RemoteStartTransactionResponse
	if err := s.CallInto(ctx, ocpp16.ActionRemoteStartTransaction, req, &resp, 0); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RemoteStop asks a charge point to stop a transaction.
func (c *Commands) RemoteStop(ctx context.Context, chargePointID string, transactionID int) (*ocpp16.RemoteStopTransactionResponse, error) {
	s, err := c.session(chargePointID)
	if err != nil {
		return nil, err
	}
	req := ocpp16.RemoteStopTransactionRequest{TransactionID: transactionID}
	var resp ocpp16.RemoteStopTransactionResponse
	if err := s.CallInto(ctx, ocpp16.ActionRemoteStopTransaction, req, &resp, 0); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reset asks a charge point to reboot.
func (c *Commands) Reset(ctx context.Context, chargePointID string, resetType ocpp16.ResetType) (*ocpp16.ResetResponse, error) {
	s, err := c.session(chargePointID)
	if err != nil {
		return nil, err
	}
	var resp ocpp16.ResetResponse
	if err := s.CallInto(ctx, ocpp16.ActionReset, ocpp16.ResetRequest{Type: resetType}, &resp, 0); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UnlockConnector asks a charge point to release a connector lock.
func (c *Commands) UnlockConnector(ctx context.Context, chargePointID string, connectorID int) (*ocpp16.UnlockConnectorResponse, error) {
	s, err := c.session(chargePointID)
	if err != nil {
		return nil, err
	}
	req := ocpp16.UnlockConnectorRequest{ConnectorID: connectorID}
	var resp ocpp16.UnlockConnectorResponse
	if err := s.CallInto(ctx, ocpp16.ActionUnlockConnector, req, &resp, 0); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetConfiguration reads configuration keys from a charge point; empty
// keys means all.
func (c *Commands) GetConfiguration(ctx context.Context, chargePointID string, keys []string) (*ocpp16.GetConfigurationResponse, error) {
	s, err := c.session(chargePointID)
	if err != nil {
		return nil, err
	}
	req := ocpp16.GetConfigurationRequest{Key: keys}
	var resp ocpp16.GetConfigurationResponse
	if err := s.CallInto(ctx, ocpp16.ActionGetConfiguration, req, &resp, 0); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ChangeConfiguration writes one configuration key on a charge point.
func (c *Commands) ChangeConfiguration(ctx context.Context, chargePointID, key, value string) (*ocpp16.ChangeConfigurationResponse, error) {
	s, err := c.session(chargePointID)
	if err != nil {
		return nil, err
	}
	req := ocpp16.ChangeConfigurationRequest{Key: key, Value: value}
	var resp ocpp16.ChangeConfigurationResponse
	if err := s.CallInto(ctx, ocpp16.ActionChangeConfiguration, req, &resp, 0); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ChangeAvailability switches a connector in or out of service.
func (c *Commands) ChangeAvailability(ctx context.Context, chargePointID string, connectorID int, availability ocpp16.AvailabilityType) (*ocpp16.ChangeAvailabilityResponse, error) {
	s, err := c.session(chargePointID)
	if err != nil {
		return nil, err
	}
	req := ocpp16.ChangeAvailabilityRequest{ConnectorID: connectorID, Type: availability}
	var resp ocpp16.ChangeAvailabilityResponse
	if err := s.CallInto(ctx, ocpp16.ActionChangeAvailability, req, &resp, 0); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TriggerMessage asks a charge point to send a specific message now.
func (c *Commands) TriggerMessage(ctx context.Context, chargePointID string, trigger ocpp16.MessageTrigger, connectorID *int) (*ocpp16.TriggerMessageResponse, error) {
	s, err := c.session(chargePointID)
	if err != nil {
		return nil, err
	}
	req := ocpp16.TriggerMessageRequest{RequestedMessage: trigger, ConnectorID: connectorID}
	var resp ocpp16.TriggerMessageResponse
	if err := s.CallInto(ctx, ocpp16.ActionTriggerMessage, req, &resp, 0); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClearCache asks a charge point to clear its authorization cache.
func (c *Commands) ClearCache(ctx context.Context, chargePointID string) (*ocpp16.ClearCacheResponse, error) {
	s, err := c.session(chargePointID)
	if err != nil {
		return nil, err
	}
	var resp ocpp16.ClearCacheResponse
	if err := s.CallInto(ctx, ocpp16.ActionClearCache, ocpp16.ClearCacheRequest{}, &resp, 0); err != nil {
		return nil, err
	}
	return &resp, nil
}
