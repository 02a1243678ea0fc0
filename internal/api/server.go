package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/charging-platform/central-system/internal/business/transaction"
	"github.com/charging-platform/central-system/internal/cache"
	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/ocpp"
	"github.com/charging-platform/central-system/internal/storage"
	"github.com/charging-platform/central-system/internal/stream"
)

// Server is the operator REST/SSE API.
type Server struct {
	store      storage.Gateway
	cache      cache.Gateway
	registry   *ocpp.Registry
	commands   *ocpp.Commands
	discoverer *ocpp.Discoverer
	fanout     *stream.Fanout
	logger     *logger.Logger

	httpServer *http.Server
}

// NewServer wires the API over the protocol core. cache and fanout may be
// nil when the corresponding subsystem is disabled.
func NewServer(addr string, store storage.Gateway, cacheGw cache.Gateway,
	registry *ocpp.Registry, commands *ocpp.Commands, discoverer *ocpp.Discoverer,
	fanout *stream.Fanout, log *logger.Logger) *Server {

	if log == nil {
		log = logger.Default()
	}
	s := &Server{
		store:      store,
		cache:      cacheGw,
		registry:   registry,
		commands:   commands,
		discoverer: discoverer,
		fanout:     fanout,
		logger:     log,
	}
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams stay open
	}
	return s
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/chargepoints", s.handleListChargePoints).Methods(http.MethodGet)
	v1.HandleFunc("/chargepoints/{id}", s.handleGetChargePoint).Methods(http.MethodGet)
	v1.HandleFunc("/chargepoints/{id}/connectors", s.handleListConnectors).Methods(http.MethodGet)
	v1.HandleFunc("/chargepoints/{id}/transactions", s.handleListTransactions).Methods(http.MethodGet)

	v1.HandleFunc("/chargepoints/{id}/commands/remote-start", s.handleRemoteStart).Methods(http.MethodPost)
	v1.HandleFunc("/chargepoints/{id}/commands/remote-stop", s.handleRemoteStop).Methods(http.MethodPost)
	v1.HandleFunc("/chargepoints/{id}/commands/reset", s.handleReset).Methods(http.MethodPost)
	v1.HandleFunc("/chargepoints/{id}/commands/unlock", s.handleUnlock).Methods(http.MethodPost)
	v1.HandleFunc("/chargepoints/{id}/commands/change-availability", s.handleChangeAvailability).Methods(http.MethodPost)
	v1.HandleFunc("/chargepoints/{id}/commands/trigger-message", s.handleTriggerMessage).Methods(http.MethodPost)
	v1.HandleFunc("/chargepoints/{id}/configuration", s.handleGetConfiguration).Methods(http.MethodGet)
	v1.HandleFunc("/chargepoints/{id}/configuration", s.handleChangeConfiguration).Methods(http.MethodPost)
	v1.HandleFunc("/chargepoints/{id}/discovery", s.handleDiscovery).Methods(http.MethodPost)
	v1.HandleFunc("/chargepoints/{id}/actions", s.handleSendAction).Methods(http.MethodPost)

	v1.HandleFunc("/meter/stream", s.handleMeterStream).Methods(http.MethodGet)

	return r
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Infof("Operator API listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warnf("Failed to encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	s.writeJSON(w, status, errorResponse{Error: fmt.Sprintf(format, args...)})
}

// writeCommandError maps protocol-layer failures onto HTTP statuses.
func (s *Server) writeCommandError(w http.ResponseWriter, err error) {
	var callErr *ocpp.CallError
	switch {
	case errors.Is(err, ocpp.ErrSessionNotFound):
		s.writeError(w, http.StatusNotFound, "charge point is not connected")
	case errors.Is(err, ocpp.ErrTimeout):
		s.writeError(w, http.StatusGatewayTimeout, "charge point did not respond")
	case errors.Is(err, ocpp.ErrSendQueueFull):
		s.writeError(w, http.StatusServiceUnavailable, "charge point send queue is full")
	case errors.As(err, &callErr):
		s.writeError(w, http.StatusBadGateway, "charge point answered %s: %s", callErr.Code, callErr.Description)
	default:
		s.writeError(w, http.StatusInternalServerError, "%v", err)
	}
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	health := map[string]interface{}{
		"status":          "ok",
		"active_sessions": s.registry.Count(),
	}
	status := http.StatusOK

	if err := s.store.Ping(ctx); err != nil {
		health["status"] = "degraded"
		health["storage"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if s.cache != nil {
		if err := s.cache.Ping(ctx); err != nil {
			health["status"] = "degraded"
			health["cache"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	s.writeJSON(w, status, health)
}

// chargePointView decorates the stored row with the live session state.
type chargePointView struct {
	*storage.ChargePoint
	Connected bool `json:"connected"`
}

func (s *Server) handleListChargePoints(w http.ResponseWriter, r *http.Request) {
	cps, ok := s.cachedStationList(r.Context())
	if !ok {
		var err error
		cps, err = s.store.ListChargePoints(r.Context())
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "failed to list charge points: %v", err)
			return
		}
		s.cacheStationList(r.Context(), cps)
	}
	// The connected flag is decorated live, never cached.
	views := make([]chargePointView, 0, len(cps))
	for _, cp := range cps {
		_, connected := s.registry.Get(cp.ID)
		views = append(views, chargePointView{ChargePoint: cp, Connected: connected})
	}
	s.writeJSON(w, http.StatusOK, views)
}

// cachedStationList reads the short-lived station list snapshot.
func (s *Server) cachedStationList(ctx context.Context) ([]*storage.ChargePoint, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, err := s.cache.Get(ctx, cache.AllStationsKey)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warnf("Cache read failed for %s: %v", cache.AllStationsKey, err)
		}
		return nil, false
	}
	var cps []*storage.ChargePoint
	if err := json.Unmarshal(data, &cps); err != nil {
		s.logger.Warnf("Discarding corrupt snapshot %s: %v", cache.AllStationsKey, err)
		return nil, false
	}
	return cps, true
}

func (s *Server) cacheStationList(ctx context.Context, cps []*storage.ChargePoint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, cache.AllStationsKey, cps, cache.GlobalTTL); err != nil {
		s.logger.Warnf("Cache write failed for %s: %v", cache.AllStationsKey, err)
	}
}

func (s *Server) handleGetChargePoint(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	cp, err := s.store.GetChargePoint(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load charge point: %v", err)
		return
	}
	if cp == nil {
		s.writeError(w, http.StatusNotFound, "unknown charge point %s", id)
		return
	}
	connectors, err := s.store.ListConnectors(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load connectors: %v", err)
		return
	}
	_, connected := s.registry.Get(id)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"chargePoint": chargePointView{ChargePoint: cp, Connected: connected},
		"connectors":  connectors,
	})
}

func (s *Server) handleListConnectors(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	// Prefer the live session view over the stored rows.
	if session, ok := s.registry.Get(id); ok {
		s.writeJSON(w, http.StatusOK, session.Connectors())
		return
	}
	connectors, err := s.store.ListConnectors(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load connectors: %v", err)
		return
	}
	s.writeJSON(w, http.StatusOK, connectors)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit %q", raw)
			return
		}
		limit = n
	}
	txs, err := s.store.ListTransactions(r.Context(), id, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list transactions: %v", err)
		return
	}
	s.writeJSON(w, http.StatusOK, txs)
}

type remoteStartRequest struct {
	ConnectorID *int   `json:"connectorId,omitempty"`
	IdTag       string `json:"idTag"`
	VehicleID   string `json:"vehicleId,omitempty"`
	FleetID     string `json:"fleetId,omitempty"`
	RequestedBy string `json:"requestedBy,omitempty"`
}

func (s *Server) handleRemoteStart(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req remoteStartRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.IdTag == "" {
		s.writeError(w, http.StatusBadRequest, "idTag is required")
		return
	}

	var rsc *transaction.RemoteStartContext
	if req.VehicleID != "" || req.FleetID != "" || req.RequestedBy != "" {
		rsc = &transaction.RemoteStartContext{
			IdTag:       req.IdTag,
			VehicleID:   req.VehicleID,
			FleetID:     req.FleetID,
			RequestedBy: req.RequestedBy,
			CreatedAt:   time.Now(),
		}
	}

	resp, err := s.commands.RemoteStart(r.Context(), id, req.ConnectorID, req.IdTag, rsc)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type remoteStopRequest struct {
	TransactionID int `json:"transactionId"`
}

func (s *Server) handleRemoteStop(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req remoteStopRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	resp, err := s.commands.RemoteStop(r.Context(), id, req.TransactionID)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type resetRequest struct {
	Type string `json:"type"`
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req resetRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	resetType := ocpp16.ResetType(req.Type)
	if resetType != ocpp16.ResetTypeHard && resetType != ocpp16.ResetTypeSoft {
		s.writeError(w, http.StatusBadRequest, "type must be Hard or Soft")
		return
	}
	resp, err := s.commands.Reset(r.Context(), id, resetType)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type unlockRequest struct {
	ConnectorID int `json:"connectorId"`
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req unlockRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.ConnectorID <= 0 {
		s.writeError(w, http.StatusBadRequest, "connectorId must be positive")
		return
	}
	resp, err := s.commands.UnlockConnector(r.Context(), id, req.ConnectorID)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type changeAvailabilityRequest struct {
	ConnectorID int    `json:"connectorId"`
	Type        string `json:"type"`
}

func (s *Server) handleChangeAvailability(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req changeAvailabilityRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	availability := ocpp16.AvailabilityType(req.Type)
	if availability != ocpp16.AvailabilityTypeOperative && availability != ocpp16.AvailabilityTypeInoperative {
		s.writeError(w, http.StatusBadRequest, "type must be Operative or Inoperative")
		return
	}
	resp, err := s.commands.ChangeAvailability(r.Context(), id, req.ConnectorID, availability)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type triggerMessageRequest struct {
	RequestedMessage string `json:"requestedMessage"`
	ConnectorID      *int   `json:"connectorId,omitempty"`
}

func (s *Server) handleTriggerMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req triggerMessageRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.RequestedMessage == "" {
		s.writeError(w, http.StatusBadRequest, "requestedMessage is required")
		return
	}
	resp, err := s.commands.TriggerMessage(r.Context(), id, ocpp16.MessageTrigger(req.RequestedMessage), req.ConnectorID)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetConfiguration(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var keys []string
	if raw := r.URL.Query().Get("keys"); raw != "" {
		keys = strings.Split(raw, ",")
	}
	resp, err := s.commands.GetConfiguration(r.Context(), id, keys)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type changeConfigurationRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *Server) handleChangeConfiguration(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req changeConfigurationRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Key == "" {
		s.writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	resp, err := s.commands.ChangeConfiguration(r.Context(), id, req.Key, req.Value)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	session, ok := s.registry.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "charge point is not connected")
		return
	}
	result := s.discoverer.Discover(r.Context(), session)
	s.writeJSON(w, http.StatusOK, result)
}

type sendActionRequest struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (s *Server) handleSendAction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req sendActionRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Action == "" {
		s.writeError(w, http.StatusBadRequest, "action is required")
		return
	}
	var payload interface{}
	if len(req.Payload) > 0 {
		payload = req.Payload
	}
	raw, err := s.commands.Send(r.Context(), id, ocpp16.Action(req.Action), payload)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"result": raw})
}

// sseSink buffers samples for one SSE client. A full buffer fails the
// write, which unsubscribes the client.
type sseSink struct {
	ch chan *stream.MeterSample
}

func (s *sseSink) Write(sample *stream.MeterSample) error {
	select {
	case s.ch <- sample:
		return nil
	default:
		return errors.New("subscriber buffer full")
	}
}

func (s *Server) handleMeterStream(w http.ResponseWriter, r *http.Request) {
	if s.fanout == nil {
		s.writeError(w, http.StatusServiceUnavailable, "meter streaming is disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	filter := stream.Filter{ChargePointID: r.URL.Query().Get("chargePointId")}
	if raw := r.URL.Query().Get("connectorId"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid connectorId %q", raw)
			return
		}
		filter.ConnectorID = &n
	}

	sink := &sseSink{ch: make(chan *stream.MeterSample, 64)}
	cancel := s.fanout.Subscribe(filter, sink)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case sample := <-sink.ch:
			data, err := json.Marshal(sample)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
