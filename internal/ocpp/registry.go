package ocpp

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/charging-platform/central-system/internal/domain/validation"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/metrics"
)

// CloseCodeSuperseded is sent to a session displaced by a reconnect from
// the same charge point id.
const CloseCodeSuperseded = 4000

// Lifecycle receives session connect and disconnect side effects.
type Lifecycle interface {
	OnConnect(s *Session)
	OnDisconnect(s *Session, reason string)
}

// RegistryConfig tunes the session registry.
type RegistryConfig struct {
	// SweepInterval is the liveness sweep period.
	SweepInterval time.Duration
	// Session configures each accepted connection.
	Session *SessionConfig

	ReadBufferSize  int
	WriteBufferSize int
}

// DefaultRegistryConfig returns the default registry settings.
func DefaultRegistryConfig() *RegistryConfig {
	return &RegistryConfig{
		SweepInterval:   30 * time.Second,
		Session:         DefaultSessionConfig(),
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
}

// Registry owns the charge point id to session map. One session per id; a
// reconnect supersedes the previous socket and inherits its connector state.
type Registry struct {
	config     *RegistryConfig
	dispatcher *Dispatcher
	lifecycle  Lifecycle
	logger     *logger.Logger
	upgrader   websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*Session

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRegistry builds a registry. lifecycle may be nil.
func NewRegistry(config *RegistryConfig, dispatcher *Dispatcher, lifecycle Lifecycle, log *logger.Logger) *Registry {
	if config == nil {
		config = DefaultRegistryConfig()
	}
	if log == nil {
		log = logger.Default()
	}
	return &Registry{
		config:     config,
		dispatcher: dispatcher,
		lifecycle:  lifecycle,
		logger:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			Subprotocols:    []string{"ocpp1.6"},
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sessions: make(map[string]*Session),
		stopChan: make(chan struct{}),
	}
}

// Start launches the liveness sweeper.
func (r *Registry) Start() {
	r.wg.Add(1)
	go r.sweepRoutine()
}

// Stop closes every session and stops the sweeper.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
	for _, s := range r.List() {
		s.Close(websocket.CloseGoingAway, "server shutdown")
	}
	r.wg.Wait()
}

// HandleWebSocket upgrades an incoming charge point connection. The charge
// point id is the last path segment.
func (r *Registry) HandleWebSocket(w http.ResponseWriter, req *http.Request) {
	chargePointID := chargePointIDFromPath(req.URL.Path)

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warnf("WebSocket upgrade failed for %s: %v", req.RemoteAddr, err)
		return
	}

	if err := validation.ValidateChargePointID(chargePointID); err != nil {
		r.logger.Warnf("Rejecting connection from %s: %v", req.RemoteAddr, err)
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid charge point id")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	s := NewSession(chargePointID, conn, r.dispatcher, r.config.Session, r.logger)
	s.SetOnClose(r.onSessionClose)
	r.accept(s)

	if r.lifecycle != nil {
		r.lifecycle.OnConnect(s)
	}
	s.Start()
	r.logger.Infof("Charge point %s connected from %s", chargePointID, req.RemoteAddr)
}

// accept registers the session, displacing any previous one for the same id.
func (r *Registry) accept(s *Session) {
	r.mu.Lock()
	old := r.sessions[s.ChargePointID]
	if old != nil {
		s.AdoptConnectors(old.Connectors())
	}
	r.sessions[s.ChargePointID] = s
	count := len(r.sessions)
	r.mu.Unlock()

	metrics.ActiveSessions.Set(float64(count))

	if old != nil {
		r.logger.Infof("Superseding session for %s", s.ChargePointID)
		metrics.SessionsSuperseded.Inc()
		old.Close(CloseCodeSuperseded, "superseded by new connection")
	}
}

// onSessionClose removes the session and, when it was still the registered
// one, applies the disconnect side effects. A superseded session has
// already been replaced and must not clobber its successor's state.
func (r *Registry) onSessionClose(s *Session, reason string) {
	r.mu.Lock()
	current := r.sessions[s.ChargePointID] == s
	if current {
		delete(r.sessions, s.ChargePointID)
	}
	count := len(r.sessions)
	r.mu.Unlock()

	metrics.ActiveSessions.Set(float64(count))

	if current && r.lifecycle != nil {
		r.lifecycle.OnDisconnect(s, reason)
	}
}

// Get returns the live session for a charge point id.
func (r *Registry) Get(chargePointID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[chargePointID]
	return s, ok
}

// List returns all live sessions, ordered by charge point id.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ChargePointID < out[j].ChargePointID })
	return out
}

// Count reports the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// sweepRoutine terminates sessions that missed a ping/pong round trip.
func (r *Registry) sweepRoutine() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Registry) sweep() {
	for _, s := range r.List() {
		if !s.IsAlive() {
			r.logger.Warnf("Sweeping unresponsive session %s (last seen %s)",
				s.ChargePointID, s.LastSeen().Format(time.RFC3339))
			metrics.SessionsSwept.Inc()
			s.Close(websocket.CloseGoingAway, "heartbeat timeout")
			continue
		}
		s.SetAlive(false)
		if err := s.Ping(); err != nil {
			r.logger.Warnf("Ping failed for %s: %v", s.ChargePointID, err)
			metrics.SessionsSwept.Inc()
			s.Close(websocket.CloseGoingAway, "ping failed")
		}
	}
}

// chargePointIDFromPath extracts the trailing path segment.
func chargePointIDFromPath(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}
