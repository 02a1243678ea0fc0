package ocpp

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/domain/validation"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/metrics"
)

// HandlerFunc processes one inbound CALL. It returns the response payload
// or a CallError to be written as a CALLERROR.
type HandlerFunc func(ctx context.Context, s *Session, payload json.RawMessage) (interface{}, *CallError)

// Dispatcher routes inbound CALL frames to registered action handlers and
// produces the wire response. Unknown actions answer NotSupported; handler
// panics answer InternalError.
type Dispatcher struct {
	mu        sync.RWMutex
	handlers  map[ocpp16.Action]HandlerFunc
	validator *validation.Validator
	logger    *logger.Logger
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher(log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Default()
	}
	return &Dispatcher{
		handlers:  make(map[ocpp16.Action]HandlerFunc),
		validator: validation.NewValidator(),
		logger:    log,
	}
}

// Register installs the handler for an action.
func (d *Dispatcher) Register(action ocpp16.Action, handler HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[action] = handler
}

// Actions lists the registered action names.
func (d *Dispatcher) Actions() []ocpp16.Action {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]ocpp16.Action, 0, len(d.handlers))
	for a := range d.handlers {
		out = append(out, a)
	}
	return out
}

// HandleCall runs the handler for one CALL frame and returns the encoded
// CALLRESULT or CALLERROR. Exactly one response is produced per CALL.
func (d *Dispatcher) HandleCall(ctx context.Context, s *Session, frame *ocpp16.Frame) []byte {
	if err := d.validator.ValidateMessageID(frame.MessageID); err != nil {
		return marshalError(frame.MessageID, ocpp16.ErrorCodeFormationViolation, err.Error())
	}

	d.mu.RLock()
	handler, ok := d.handlers[frame.Action]
	d.mu.RUnlock()
	if !ok {
		d.logger.Warnf("Unsupported action %s from %s", frame.Action, s.ChargePointID)
		metrics.HandlerErrors.WithLabelValues(string(frame.Action), string(ocpp16.ErrorCodeNotSupported)).Inc()
		return marshalError(frame.MessageID, ocpp16.ErrorCodeNotSupported, "action not supported")
	}

	started := time.Now()
	result, callErr := d.invoke(ctx, s, frame, handler)
	metrics.HandlerDuration.WithLabelValues(string(frame.Action)).Observe(time.Since(started).Seconds())

	if callErr != nil {
		metrics.HandlerErrors.WithLabelValues(string(frame.Action), string(callErr.Code)).Inc()
		return marshalError(frame.MessageID, callErr.Code, callErr.Description)
	}

	data, err := ocpp16.MarshalCallResult(frame.MessageID, result)
	if err != nil {
		d.logger.Errorf("Failed to encode %s result: %v", frame.Action, err)
		return marshalError(frame.MessageID, ocpp16.ErrorCodeInternalError, "internal error")
	}
	return data
}

// invoke runs the handler with panic recovery. A handler bug must never
// take down the session.
func (d *Dispatcher) invoke(ctx context.Context, s *Session, frame *ocpp16.Frame, handler HandlerFunc) (result interface{}, callErr *CallError) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorf("Handler panic for %s (messageId %s): %v", frame.Action, frame.MessageID, r)
			result = nil
			callErr = NewCallError(ocpp16.ErrorCodeInternalError, "internal error")
		}
	}()
	return handler(ctx, s, frame.Payload)
}

// DecodePayload unmarshals and validates an action payload. Malformed JSON
// answers FormationViolation; failed constraints answer
// PropertyConstraintViolation.
func (d *Dispatcher) DecodePayload(payload json.RawMessage, v interface{}) *CallError {
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return NewCallError(ocpp16.ErrorCodeFormationViolation, "malformed payload: "+err.Error())
	}
	if err := d.validator.ValidateStruct(v); err != nil {
		return NewCallError(ocpp16.ErrorCodePropertyConstraintViolation, err.Error())
	}
	return nil
}

func marshalError(messageID string, code ocpp16.ErrorCode, description string) []byte {
	data, err := ocpp16.MarshalCallError(messageID, code, description, nil)
	if err != nil {
		return nil
	}
	return data
}
