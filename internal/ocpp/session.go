package ocpp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/metrics"
	"github.com/charging-platform/central-system/internal/storage"
)

// ConnectorState is the in-memory per-connector view a session maintains.
type ConnectorState struct {
	ConnectorID          int                        `json:"connectorId"`
	Status               ocpp16.ChargePointStatus   `json:"status"`
	ErrorCode            ocpp16.ChargePointErrorCode `json:"errorCode,omitempty"`
	VendorErrorCode      *string                    `json:"vendorErrorCode,omitempty"`
	Info                 *string                    `json:"info,omitempty"`
	Telemetry            storage.ConnectorTelemetry `json:"telemetry"`
	CurrentTransactionID *int                       `json:"currentTransactionId,omitempty"`
	LastUpdated          time.Time                  `json:"lastUpdated"`
}

// SessionConfig tunes one charge point connection.
type SessionConfig struct {
	CallTimeout     time.Duration
	SendQueueSize   int
	WriteWait       time.Duration
	ReadLimit       int64
	RateLimitPoints int
	RateLimitWindow time.Duration
}

// DefaultSessionConfig returns the default connection settings.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		CallTimeout:     30 * time.Second,
		SendQueueSize:   256,
		WriteWait:       10 * time.Second,
		ReadLimit:       1 << 20,
		RateLimitPoints: 0,
		RateLimitWindow: time.Second,
	}
}

// Session owns one charge point WebSocket: its socket, liveness, connector
// map and in-flight calls. Inbound frames are processed serially by the
// receive loop, so per-session state mutations stay ordered.
type Session struct {
	ChargePointID string

	conn       *websocket.Conn
	config     *SessionConfig
	dispatcher *Dispatcher
	pending    *PendingCalls
	logger     *logger.Logger

	sendChan  chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	onClose   func(*Session, string)

	mu                   sync.RWMutex
	isAlive              bool
	lastSeen             time.Time
	connectedAt          time.Time
	bootNotificationSent bool
	heartbeatInterval    time.Duration
	numberOfConnectors   *int
	connectors           map[int]*ConnectorState

	rateCount       int
	rateWindowStart time.Time
}

// NewSession wraps an upgraded connection.
func NewSession(chargePointID string, conn *websocket.Conn, dispatcher *Dispatcher, config *SessionConfig, log *logger.Logger) *Session {
	if config == nil {
		config = DefaultSessionConfig()
	}
	if log == nil {
		log = logger.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ChargePointID:     chargePointID,
		conn:              conn,
		config:            config,
		dispatcher:        dispatcher,
		pending:           NewPendingCalls(),
		logger:            log.With("charge_point_id", chargePointID),
		sendChan:          make(chan []byte, config.SendQueueSize),
		ctx:               ctx,
		cancel:            cancel,
		isAlive:           true,
		lastSeen:          time.Now(),
		connectedAt:       time.Now(),
		heartbeatInterval: 300 * time.Second,
		connectors:        make(map[int]*ConnectorState),
		rateWindowStart:   time.Now(),
	}
}

// SetOnClose installs the teardown callback (registry removal plus
// disconnect side effects). Must be called before Start.
func (s *Session) SetOnClose(fn func(*Session, string)) {
	s.onClose = fn
}

// Start launches the send and receive routines.
func (s *Session) Start() {
	if s.config.ReadLimit > 0 {
		s.conn.SetReadLimit(s.config.ReadLimit)
	}
	s.conn.SetPongHandler(func(string) error {
		s.SetAlive(true)
		s.Touch()
		return nil
	})

	s.wg.Add(2)
	go s.sendRoutine()
	go s.receiveRoutine()
}

// Call sends a CALL and blocks until CALLRESULT, CALLERROR, timeout or
// cancellation. A zero timeout uses the configured default.
func (s *Session) Call(ctx context.Context, action ocpp16.Action, payload interface{}, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = s.config.CallTimeout
	}
	messageID := uuid.New().String()

	ch, err := s.pending.Register(messageID, timeout)
	if err != nil {
		return nil, err
	}

	data, err := ocpp16.MarshalCall(messageID, action, payload)
	if err != nil {
		s.pending.Reject(messageID, err)
		return nil, fmt.Errorf("failed to encode %s call: %w", action, err)
	}

	if err := s.enqueue(data); err != nil {
		s.pending.Reject(messageID, err)
		return nil, err
	}
	metrics.CallsSent.WithLabelValues(string(action)).Inc()

	select {
	case <-ctx.Done():
		s.pending.Reject(messageID, ctx.Err())
		return nil, ctx.Err()
	case outcome := <-ch:
		return outcome.Payload, outcome.Err
	}
}

// CallInto sends a CALL and unmarshals the CALLRESULT into result.
func (s *Session) CallInto(ctx context.Context, action ocpp16.Action, payload, result interface{}, timeout time.Duration) error {
	raw, err := s.Call(ctx, action, payload, timeout)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", action, err)
	}
	return nil
}

// Ping sends a WebSocket ping control frame.
func (s *Session) Ping() error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.config.WriteWait))
}

// Close tears the session down exactly once: close frame, socket close,
// waiter teardown, then the onClose callback.
func (s *Session) Close(code int, reason string) {
	s.closeOnce.Do(func() {
		s.logger.Infof("Closing session: %s (code %d)", reason, code)

		msg := websocket.FormatCloseMessage(code, reason)
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.config.WriteWait))

		s.cancel()
		_ = s.conn.Close()
		s.pending.FailAll(ErrConnectionClosed)
		s.SetAlive(false)

		if s.onClose != nil {
			s.onClose(s, reason)
		}
	})
}

// Done is closed when the session has been torn down.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

func (s *Session) enqueue(data []byte) error {
	select {
	case <-s.ctx.Done():
		return ErrConnectionClosed
	case s.sendChan <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (s *Session) sendRoutine() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case data := <-s.sendChan:
			s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warnf("Write failed: %v", err)
				go s.Close(websocket.CloseInternalServerErr, "write failed")
				return
			}
		}
	}
}

func (s *Session) receiveRoutine() {
	defer s.wg.Done()
	defer s.Close(websocket.CloseNormalClosure, "socket closed")

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Debugf("Read failed: %v", err)
			}
			return
		}

		s.Touch()
		s.SetAlive(true)
		s.handleFrame(data)
	}
}

// handleFrame decodes and dispatches one inbound frame. Frames are handled
// serially in arrival order.
func (s *Session) handleFrame(data []byte) {
	frame, err := ocpp16.ParseFrame(data)
	if err != nil {
		s.logger.Warnf("Invalid frame: %v", err)
		if messageID := ocpp16.RecoverMessageID(data); messageID != "" {
			resp, _ := ocpp16.MarshalCallError(messageID, ocpp16.ErrorCodeFormationViolation, err.Error(), nil)
			if err := s.enqueue(resp); err != nil {
				s.logger.Warnf("Failed to send CALLERROR: %v", err)
			}
		}
		return
	}

	switch frame.Type {
	case ocpp16.Call:
		metrics.FramesReceived.WithLabelValues("CALL").Inc()
		if s.overRateLimit() {
			// Every CALL still gets exactly one answer; replies to our own
			// outstanding calls are never throttled.
			metrics.CallsRateLimited.Inc()
			s.logger.Warnf("Rate limit exceeded, rejecting %s call %s", frame.Action, frame.MessageID)
			resp, _ := ocpp16.MarshalCallError(frame.MessageID, ocpp16.ErrorCodeGenericError, "rate limited", nil)
			if err := s.enqueue(resp); err != nil {
				s.logger.Warnf("Failed to send CALLERROR: %v", err)
			}
			return
		}
		resp := s.dispatcher.HandleCall(s.ctx, s, frame)
		if resp != nil {
			if err := s.enqueue(resp); err != nil {
				s.logger.Warnf("Failed to send response for %s: %v", frame.MessageID, err)
			} else {
				metrics.FramesSent.WithLabelValues("RESPONSE").Inc()
			}
		}

	case ocpp16.CallResult:
		metrics.FramesReceived.WithLabelValues("CALLRESULT").Inc()
		if !s.pending.Resolve(frame.MessageID, frame.Payload) {
			s.logger.Debugf("Dropping late CALLRESULT %s", frame.MessageID)
		}

	case ocpp16.CallError:
		metrics.FramesReceived.WithLabelValues("CALLERROR").Inc()
		callErr := NewCallError(frame.ErrorCode, frame.ErrorDescription)
		if !s.pending.Reject(frame.MessageID, callErr) {
			s.logger.Debugf("Dropping late CALLERROR %s", frame.MessageID)
		}
	}
}

func (s *Session) overRateLimit() bool {
	if s.config.RateLimitPoints <= 0 {
		return false
	}
	now := time.Now()
	if now.Sub(s.rateWindowStart) > s.config.RateLimitWindow {
		s.rateWindowStart = now
		s.rateCount = 0
	}
	s.rateCount++
	return s.rateCount > s.config.RateLimitPoints
}

// Touch refreshes lastSeen.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// LastSeen returns the last activity timestamp.
func (s *Session) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

// ConnectedAt returns when the socket was accepted.
func (s *Session) ConnectedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connectedAt
}

// SetAlive flips the liveness flag used by the heartbeat sweeper.
func (s *Session) SetAlive(alive bool) {
	s.mu.Lock()
	s.isAlive = alive
	s.mu.Unlock()
}

// IsAlive reports the liveness flag.
func (s *Session) IsAlive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isAlive
}

// MarkBootSent records that a BootNotification was processed.
func (s *Session) MarkBootSent(interval time.Duration) {
	s.mu.Lock()
	s.bootNotificationSent = true
	s.heartbeatInterval = interval
	s.mu.Unlock()
}

// BootSent reports whether a BootNotification was processed.
func (s *Session) BootSent() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bootNotificationSent
}

// HeartbeatInterval returns the negotiated heartbeat period.
func (s *Session) HeartbeatInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.heartbeatInterval
}

// SetNumberOfConnectors records the configured connector count.
func (s *Session) SetNumberOfConnectors(n int) {
	s.mu.Lock()
	s.numberOfConnectors = &n
	s.mu.Unlock()
}

// NumberOfConnectors returns the configured connector count, if known.
func (s *Session) NumberOfConnectors() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.numberOfConnectors == nil {
		return 0, false
	}
	return *s.numberOfConnectors, true
}

// UpdateConnector mutates (creating if needed) one connector state entry.
func (s *Session) UpdateConnector(connectorID int, mutate func(*ConnectorState)) ConnectorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connectors[connectorID]
	if !ok {
		c = &ConnectorState{
			ConnectorID: connectorID,
			Status:      ocpp16.ChargePointStatusUnavailable,
		}
		s.connectors[connectorID] = c
	}
	mutate(c)
	c.LastUpdated = time.Now()
	return *c
}

// Connector returns a copy of one connector state.
func (s *Session) Connector(connectorID int) (ConnectorState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.connectors[connectorID]
	if !ok {
		return ConnectorState{}, false
	}
	return *c, true
}

// Connectors returns a copy of all connector states, ordered by id.
func (s *Session) Connectors() []ConnectorState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ConnectorState, 0, len(s.connectors))
	for _, c := range s.connectors {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectorID < out[j].ConnectorID })
	return out
}

// ConnectorCount reports how many connectors the session knows about.
func (s *Session) ConnectorCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connectors)
}

// AdoptConnectors installs connector state inherited from a superseded
// session, without clobbering entries the new session already has.
func (s *Session) AdoptConnectors(states []ConnectorState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range states {
		if _, exists := s.connectors[c.ConnectorID]; !exists {
			clone := c
			s.connectors[c.ConnectorID] = &clone
		}
	}
}

// PendingCallCount reports in-flight CS-initiated calls.
func (s *Session) PendingCallCount() int {
	return s.pending.Count()
}
