package ocpp

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/charging-platform/central-system/internal/business/transaction"
	"github.com/charging-platform/central-system/internal/cache"
	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/events"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/message"
	"github.com/charging-platform/central-system/internal/metrics"
	"github.com/charging-platform/central-system/internal/storage"
	"github.com/charging-platform/central-system/internal/stream"
)

// HandlersConfig tunes the action handlers.
type HandlersConfig struct {
	// HeartbeatInterval is handed to charge points at boot.
	HeartbeatInterval time.Duration
	// MeterQueueSize bounds the meter persistence queue.
	MeterQueueSize int
	// StorageTimeout bounds storage calls made outside a frame context.
	StorageTimeout time.Duration
}

// DefaultHandlersConfig returns the default handler settings.
func DefaultHandlersConfig() *HandlersConfig {
	return &HandlersConfig{
		HeartbeatInterval: 300 * time.Second,
		MeterQueueSize:    1024,
		StorageTimeout:    5 * time.Second,
	}
}

// Handlers implements the charge point initiated actions and the
// connect/disconnect side effects.
type Handlers struct {
	config      *HandlersConfig
	store       storage.Gateway
	cache       cache.Gateway
	coordinator *transaction.Coordinator
	meters      stream.Publisher
	publisher   message.Publisher
	logger      *logger.Logger
	dispatcher  *Dispatcher

	meterQueue chan []storage.MeterValueRecord
	queueCtx   context.Context
	queueStop  context.CancelFunc
	wg         sync.WaitGroup
}

// NewHandlers wires the handler set. cache, meters and publisher may be nil
// when the corresponding subsystem is disabled.
func NewHandlers(config *HandlersConfig, store storage.Gateway, cacheGw cache.Gateway,
	coordinator *transaction.Coordinator, meters stream.Publisher,
	publisher message.Publisher, log *logger.Logger) *Handlers {

	if config == nil {
		config = DefaultHandlersConfig()
	}
	if log == nil {
		log = logger.Default()
	}
	if publisher == nil {
		publisher = message.NoopPublisher{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Handlers{
		config:      config,
		store:       store,
		cache:       cacheGw,
		coordinator: coordinator,
		meters:      meters,
		publisher:   publisher,
		logger:      log,
		meterQueue:  make(chan []storage.MeterValueRecord, config.MeterQueueSize),
		queueCtx:    ctx,
		queueStop:   cancel,
	}
}

// RegisterAll installs every supported action on the dispatcher and starts
// the meter persistence worker.
func (h *Handlers) RegisterAll(d *Dispatcher) {
	h.dispatcher = d
	d.Register(ocpp16.ActionBootNotification, h.handleBootNotification)
	d.Register(ocpp16.ActionHeartbeat, h.handleHeartbeat)
	d.Register(ocpp16.ActionStatusNotification, h.handleStatusNotification)
	d.Register(ocpp16.ActionAuthorize, h.handleAuthorize)
	d.Register(ocpp16.ActionStartTransaction, h.handleStartTransaction)
	d.Register(ocpp16.ActionStopTransaction, h.handleStopTransaction)
	d.Register(ocpp16.ActionMeterValues, h.handleMeterValues)
	d.Register(ocpp16.ActionDataTransfer, h.handleDataTransfer)

	h.wg.Add(1)
	go h.meterWorker()
}

// Stop drains the meter worker.
func (h *Handlers) Stop() {
	h.queueStop()
	h.wg.Wait()
}

func (h *Handlers) handleBootNotification(ctx context.Context, s *Session, payload json.RawMessage) (interface{}, *CallError) {
	var req ocpp16.BootNotificationRequest
	if callErr := h.dispatcher.DecodePayload(payload, &req); callErr != nil {
		return nil, callErr
	}

	now := time.Now().UTC()
	cp := &storage.ChargePoint{
		ID:                s.ChargePointID,
		Vendor:            req.ChargePointVendor,
		Model:             req.ChargePointModel,
		SerialNumber:      req.ChargePointSerialNumber,
		FirmwareVersion:   req.FirmwareVersion,
		Iccid:             req.Iccid,
		Imsi:              req.Imsi,
		MeterType:         req.MeterType,
		MeterSerialNumber: req.MeterSerialNumber,
		IsOnline:          true,
		LastSeen:          now,
	}
	if err := h.store.UpsertChargePoint(ctx, cp); err != nil {
		h.logger.Errorf("Failed to persist boot of %s: %v", s.ChargePointID, err)
		return nil, NewCallError(ocpp16.ErrorCodeInternalError, "internal error")
	}

	interval := h.config.HeartbeatInterval
	s.MarkBootSent(interval)
	h.cacheSet(cache.InfoKey(s.ChargePointID), cp, cache.InfoTTL)
	h.cacheDel(cache.AllStationsKey)

	firmware := ""
	if req.FirmwareVersion != nil {
		firmware = *req.FirmwareVersion
	}
	h.publish(events.New(events.EventTypeChargePointRegistered, s.ChargePointID, events.RegisteredPayload{
		Vendor:          req.ChargePointVendor,
		Model:           req.ChargePointModel,
		FirmwareVersion: firmware,
		Interval:        int(interval.Seconds()),
	}))

	return ocpp16.BootNotificationResponse{
		Status:      ocpp16.RegistrationStatusAccepted,
		CurrentTime: ocpp16.NewDateTime(now),
		Interval:    int(interval.Seconds()),
	}, nil
}

func (h *Handlers) handleHeartbeat(_ context.Context, _ *Session, _ json.RawMessage) (interface{}, *CallError) {
	return ocpp16.HeartbeatResponse{CurrentTime: ocpp16.NewDateTime(time.Now())}, nil
}

func (h *Handlers) handleStatusNotification(ctx context.Context, s *Session, payload json.RawMessage) (interface{}, *CallError) {
	var req ocpp16.StatusNotificationRequest
	if callErr := h.dispatcher.DecodePayload(payload, &req); callErr != nil {
		return nil, callErr
	}

	s.UpdateConnector(req.ConnectorID, func(c *ConnectorState) {
		c.Status = req.Status
		c.ErrorCode = req.ErrorCode
		c.VendorErrorCode = req.VendorErrorCode
		c.Info = req.Info
	})

	update := storage.ConnectorStatusUpdate{
		Status:          storage.ConnectorStatusFromOCPP(req.Status),
		VendorErrorCode: req.VendorErrorCode,
		Info:            req.Info,
	}
	errCode := string(req.ErrorCode)
	update.ErrorCode = &errCode
	if err := h.store.SetConnectorStatus(ctx, s.ChargePointID, req.ConnectorID, update); err != nil {
		h.logger.Errorf("Failed to persist status of %s/%d: %v", s.ChargePointID, req.ConnectorID, err)
		return nil, NewCallError(ocpp16.ErrorCodeInternalError, "internal error")
	}

	if req.ErrorCode != ocpp16.ChargePointErrorCodeNoError && req.ErrorCode != "" {
		h.openAlarm(ctx, s, &req)
	} else {
		if err := h.store.ResolveAlarms(ctx, s.ChargePointID, req.ConnectorID, "system"); err != nil {
			h.logger.Warnf("Failed to resolve alarms for %s/%d: %v", s.ChargePointID, req.ConnectorID, err)
		}
	}

	h.cacheSet(cache.ConnectorsKey(s.ChargePointID), s.Connectors(), cache.ConnectorsTTL)

	h.publish(events.New(events.EventTypeConnectorStatusChanged, s.ChargePointID, events.StatusChangedPayload{
		ConnectorID: req.ConnectorID,
		Status:      string(req.Status),
		ErrorCode:   string(req.ErrorCode),
	}))

	return ocpp16.StatusNotificationResponse{}, nil
}

func (h *Handlers) openAlarm(ctx context.Context, s *Session, req *ocpp16.StatusNotificationRequest) {
	severity := storage.AlarmSeverityFor(req.ErrorCode)
	msg := string(req.ErrorCode)
	if req.Info != nil {
		msg += ": " + *req.Info
	}
	connectorID := req.ConnectorID
	alarm := &storage.Alarm{
		ChargePointID: s.ChargePointID,
		ConnectorID:   &connectorID,
		AlarmType:     string(req.ErrorCode),
		Severity:      severity,
		Message:       msg,
		CreatedAt:     time.Now().UTC(),
	}
	if err := h.store.CreateAlarm(ctx, alarm); err != nil {
		h.logger.Errorf("Failed to create alarm for %s/%d: %v", s.ChargePointID, connectorID, err)
		return
	}
	h.publish(events.New(events.EventTypeAlarmRaised, s.ChargePointID, events.AlarmPayload{
		ConnectorID: connectorID,
		AlarmType:   string(req.ErrorCode),
		Severity:    string(severity),
		Message:     msg,
	}))
}

func (h *Handlers) handleAuthorize(ctx context.Context, s *Session, payload json.RawMessage) (interface{}, *CallError) {
	var req ocpp16.AuthorizeRequest
	if callErr := h.dispatcher.DecodePayload(payload, &req); callErr != nil {
		return nil, callErr
	}

	info, err := h.verdictFor(ctx, req.IdTag)
	if err != nil {
		h.logger.Errorf("Failed to authorize %s: %v", req.IdTag, err)
		return nil, NewCallError(ocpp16.ErrorCodeInternalError, "internal error")
	}
	return ocpp16.AuthorizeResponse{IdTagInfo: *info}, nil
}

// verdictFor reads the idTag verdict and downgrades expired tags.
func (h *Handlers) verdictFor(ctx context.Context, idTag string) (*ocpp16.IdTagInfo, error) {
	verdict, err := h.store.ValidateIdTag(ctx, idTag)
	if err != nil {
		return nil, err
	}
	info := &ocpp16.IdTagInfo{Status: verdict.Status}
	if verdict.ExpiryDate != nil {
		dt := ocpp16.NewDateTime(*verdict.ExpiryDate)
		info.ExpiryDate = &dt
		if verdict.ExpiryDate.Before(time.Now()) {
			info.Status = ocpp16.AuthorizationStatusExpired
		}
	}
	return info, nil
}

func (h *Handlers) handleStartTransaction(ctx context.Context, s *Session, payload json.RawMessage) (interface{}, *CallError) {
	var req ocpp16.StartTransactionRequest
	if callErr := h.dispatcher.DecodePayload(payload, &req); callErr != nil {
		return nil, callErr
	}

	info, err := h.verdictFor(ctx, req.IdTag)
	if err != nil {
		h.logger.Errorf("Failed to validate idTag %s: %v", req.IdTag, err)
		return nil, NewCallError(ocpp16.ErrorCodeInternalError, "internal error")
	}
	if info.Status != ocpp16.AuthorizationStatusAccepted {
		return ocpp16.StartTransactionResponse{
			TransactionID: -1,
			IdTagInfo:     *info,
		}, nil
	}

	// One active transaction per connector.
	if c, ok := s.Connector(req.ConnectorID); ok && c.CurrentTransactionID != nil {
		h.logger.Warnf("Concurrent StartTransaction on %s/%d (active tx %d)",
			s.ChargePointID, req.ConnectorID, *c.CurrentTransactionID)
		return ocpp16.StartTransactionResponse{
			TransactionID: -1,
			IdTagInfo:     ocpp16.IdTagInfo{Status: ocpp16.AuthorizationStatusConcurrentTx},
		}, nil
	}

	txID, err := h.coordinator.GenerateTransactionID(ctx)
	if err != nil {
		h.logger.Errorf("Failed to allocate transaction id: %v", err)
		return nil, NewCallError(ocpp16.ErrorCodeInternalError, "internal error")
	}

	if rsc, ok := h.coordinator.TakePendingStart(s.ChargePointID, req.ConnectorID); ok {
		h.logger.Infof("Binding remote start context (vehicle %s) to transaction %d", rsc.VehicleID, txID)
	}

	idTag := req.IdTag
	tx := &storage.Transaction{
		TransactionID: txID,
		ChargePointID: s.ChargePointID,
		ConnectorID:   req.ConnectorID,
		IdTag:         &idTag,
		MeterStart:    float64(req.MeterStart),
		StartTime:     req.Timestamp.Time,
	}
	if _, err := h.store.CreateTransaction(ctx, tx); err != nil {
		// Cannot fabricate a persisted transaction; the failure propagates.
		h.logger.Errorf("Failed to persist transaction %d: %v", txID, err)
		return nil, NewCallError(ocpp16.ErrorCodeInternalError, "internal error")
	}

	state := s.UpdateConnector(req.ConnectorID, func(c *ConnectorState) {
		c.Status = ocpp16.ChargePointStatusCharging
		c.CurrentTransactionID = &txID
	})
	h.persistConnector(ctx, s.ChargePointID, state)
	h.cacheSet(cache.ConnectorsKey(s.ChargePointID), s.Connectors(), cache.ConnectorsTTL)

	h.publish(events.New(events.EventTypeTransactionStarted, s.ChargePointID, events.TransactionPayload{
		TransactionID: txID,
		ConnectorID:   req.ConnectorID,
		IdTag:         req.IdTag,
		MeterStart:    float64(req.MeterStart),
	}))

	return ocpp16.StartTransactionResponse{
		TransactionID: txID,
		IdTagInfo:     *info,
	}, nil
}

func (h *Handlers) handleStopTransaction(ctx context.Context, s *Session, payload json.RawMessage) (interface{}, *CallError) {
	var req ocpp16.StopTransactionRequest
	if callErr := h.dispatcher.DecodePayload(payload, &req); callErr != nil {
		return nil, callErr
	}

	accepted := ocpp16.StopTransactionResponse{
		IdTagInfo: &ocpp16.IdTagInfo{Status: ocpp16.AuthorizationStatusAccepted},
	}

	tx, err := h.store.GetTransaction(ctx, req.TransactionID)
	if err == storage.ErrTransactionNotFound {
		// Lenient: the CP may have lost the id across a reboot.
		h.logger.Warnf("StopTransaction for unknown transaction %d from %s", req.TransactionID, s.ChargePointID)
		return accepted, nil
	}
	if err != nil {
		h.logger.Errorf("Failed to load transaction %d: %v", req.TransactionID, err)
		return nil, NewCallError(ocpp16.ErrorCodeInternalError, "internal error")
	}

	var stopSoC *float64
	if soc, ok := h.coordinator.LastSoC(req.TransactionID); ok {
		stopSoC = &soc
	}
	reason := storage.StopReasonFromOCPP(req.Reason)

	// A completed transaction never regresses below its start values; a
	// CP reporting a lower reading or an earlier clock gets clamped.
	meterStop := float64(req.MeterStop)
	if meterStop < tx.MeterStart {
		h.logger.Warnf("Transaction %d reports meterStop %.1f below meterStart %.1f, clamping",
			req.TransactionID, meterStop, tx.MeterStart)
		meterStop = tx.MeterStart
	}
	stopTime := req.Timestamp.Time
	if stopTime.Before(tx.StartTime) {
		h.logger.Warnf("Transaction %d reports stop time %s before start time %s, clamping",
			req.TransactionID, stopTime.Format(time.RFC3339), tx.StartTime.Format(time.RFC3339))
		stopTime = tx.StartTime
	}

	if err := h.store.StopTransaction(ctx, req.TransactionID, meterStop, stopTime, reason, stopSoC); err != nil {
		h.logger.Errorf("Failed to stop transaction %d: %v", req.TransactionID, err)
		return nil, NewCallError(ocpp16.ErrorCodeInternalError, "internal error")
	}
	h.coordinator.ForgetTransaction(req.TransactionID)

	if len(req.TransactionData) > 0 {
		txID := req.TransactionID
		records := flattenMeterValues(s.ChargePointID, tx.ConnectorID, &txID, req.TransactionData)
		h.enqueueMeterBatch(records)
	}

	state := s.UpdateConnector(tx.ConnectorID, func(c *ConnectorState) {
		c.Status = ocpp16.ChargePointStatusAvailable
		c.CurrentTransactionID = nil
	})
	h.persistConnector(ctx, s.ChargePointID, state)
	h.cacheSet(cache.ConnectorsKey(s.ChargePointID), s.Connectors(), cache.ConnectorsTTL)

	h.publish(events.New(events.EventTypeTransactionStopped, s.ChargePointID, events.TransactionPayload{
		TransactionID: req.TransactionID,
		ConnectorID:   tx.ConnectorID,
		MeterStop:     &meterStop,
		StopReason:    string(reason),
	}))

	return accepted, nil
}

func (h *Handlers) handleMeterValues(ctx context.Context, s *Session, payload json.RawMessage) (interface{}, *CallError) {
	var req ocpp16.MeterValuesRequest
	if callErr := h.dispatcher.DecodePayload(payload, &req); callErr != nil {
		return nil, callErr
	}

	txID := req.TransactionID
	if txID != nil && *txID <= 0 {
		txID = nil
	}

	for _, mv := range req.MeterValue {
		for _, sv := range mv.SampledValue {
			measurand := sv.MeasurandOrDefault()

			if measurand == ocpp16.MeasurandSoC && txID != nil {
				if soc, err := strconv.ParseFloat(sv.Value, 64); err == nil {
					if err := h.coordinator.ObserveSoC(ctx, *txID, soc); err != nil {
						h.logger.Warnf("Failed to record SoC for transaction %d: %v", *txID, err)
					}
				}
			}

			s.UpdateConnector(req.ConnectorID, func(c *ConnectorState) {
				applyTelemetry(&c.Telemetry, sv)
			})

			if h.meters != nil {
				sample := &stream.MeterSample{
					ChargePointID: s.ChargePointID,
					ConnectorID:   req.ConnectorID,
					TransactionID: txID,
					Timestamp:     mv.Timestamp.Time,
					Value:         sv.Value,
					Measurand:     string(measurand),
				}
				if sv.Unit != nil {
					sample.Unit = string(*sv.Unit)
				}
				if sv.Phase != nil {
					sample.Phase = string(*sv.Phase)
				}
				h.meters.Publish(sample)
			}
		}
	}

	if state, ok := s.Connector(req.ConnectorID); ok {
		h.persistConnector(ctx, s.ChargePointID, state)
	}

	// Persistence must never back up the socket; the bounded queue sheds
	// oldest batches under load.
	records := flattenMeterValues(s.ChargePointID, req.ConnectorID, txID, req.MeterValue)
	h.enqueueMeterBatch(records)

	return ocpp16.MeterValuesResponse{}, nil
}

func (h *Handlers) handleDataTransfer(_ context.Context, s *Session, payload json.RawMessage) (interface{}, *CallError) {
	var req ocpp16.DataTransferRequest
	if callErr := h.dispatcher.DecodePayload(payload, &req); callErr != nil {
		return nil, callErr
	}
	h.logger.Infof("DataTransfer from %s (vendor %s)", s.ChargePointID, req.VendorID)
	return ocpp16.DataTransferResponse{Status: ocpp16.DataTransferStatusAccepted}, nil
}

// OnConnect marks the charge point online and announces the session.
func (h *Handlers) OnConnect(s *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.StorageTimeout)
	defer cancel()
	if err := h.store.SetChargePointOnline(ctx, s.ChargePointID, true, time.Now().UTC()); err != nil {
		h.logger.Errorf("Failed to mark %s online: %v", s.ChargePointID, err)
	}
	h.cacheDel(cache.AllStationsKey)
	h.publish(events.New(events.EventTypeChargePointConnected, s.ChargePointID, nil))
}

// OnDisconnect applies the socket-close side effects: offline flag, every
// known connector UNAVAILABLE, cache tombstone, disconnect event.
func (h *Handlers) OnDisconnect(s *Session, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.StorageTimeout)
	defer cancel()

	now := time.Now().UTC()
	if err := h.store.SetChargePointOnline(ctx, s.ChargePointID, false, now); err != nil {
		h.logger.Errorf("Failed to mark %s offline: %v", s.ChargePointID, err)
	}

	for _, c := range s.Connectors() {
		state := s.UpdateConnector(c.ConnectorID, func(cs *ConnectorState) {
			cs.Status = ocpp16.ChargePointStatusUnavailable
		})
		h.persistConnector(ctx, s.ChargePointID, state)
	}

	h.cacheSet(cache.StatusKey(s.ChargePointID), cache.NewDisconnectRecord(now), cache.StatusTTL)
	h.cacheSet(cache.ConnectorsKey(s.ChargePointID), s.Connectors(), cache.ConnectorsTTL)
	h.cacheDel(cache.AllStationsKey)

	h.publish(events.New(events.EventTypeChargePointDisconnected, s.ChargePointID, events.DisconnectedPayload{
		Reason: reason,
	}))
}

func (h *Handlers) persistConnector(ctx context.Context, chargePointID string, state ConnectorState) {
	errCode := string(state.ErrorCode)
	row := &storage.Connector{
		ChargePointID:        chargePointID,
		ConnectorID:          state.ConnectorID,
		Status:               storage.ConnectorStatusFromOCPP(state.Status),
		VendorErrorCode:      state.VendorErrorCode,
		Info:                 state.Info,
		Telemetry:            state.Telemetry,
		CurrentTransactionID: state.CurrentTransactionID,
		LastUpdated:          state.LastUpdated,
	}
	if errCode != "" {
		row.ErrorCode = &errCode
	}
	if err := h.store.UpsertConnector(ctx, row); err != nil {
		h.logger.Errorf("Failed to persist connector %s/%d: %v", chargePointID, state.ConnectorID, err)
	}
}

func (h *Handlers) cacheSet(key string, value interface{}, ttl time.Duration) {
	if h.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.cache.Set(ctx, key, value, ttl); err != nil {
		h.logger.Warnf("Cache write failed for %s: %v", key, err)
	}
}

func (h *Handlers) cacheDel(key string) {
	if h.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.cache.Del(ctx, key); err != nil {
		h.logger.Warnf("Cache invalidation failed for %s: %v", key, err)
	}
}

func (h *Handlers) publish(e *events.Event) {
	if err := h.publisher.PublishEvent(e); err != nil {
		h.logger.Warnf("Failed to publish %s event: %v", e.Type, err)
	}
}

// enqueueMeterBatch queues a persistence batch, shedding the oldest batch
// when the queue is full.
func (h *Handlers) enqueueMeterBatch(records []storage.MeterValueRecord) {
	if len(records) == 0 {
		return
	}
	select {
	case h.meterQueue <- records:
		return
	default:
	}

	select {
	case dropped := <-h.meterQueue:
		metrics.MeterSamplesDropped.Add(float64(len(dropped)))
		h.logger.Warnf("Meter queue full, dropped %d samples", len(dropped))
	default:
	}

	select {
	case h.meterQueue <- records:
	default:
		metrics.MeterSamplesDropped.Add(float64(len(records)))
		h.logger.Warnf("Meter queue full, dropped incoming batch of %d samples", len(records))
	}
}

func (h *Handlers) meterWorker() {
	defer h.wg.Done()
	for {
		select {
		case <-h.queueCtx.Done():
			// drain what is already queued
			for {
				select {
				case batch := <-h.meterQueue:
					h.persistMeterBatch(batch)
				default:
					return
				}
			}
		case batch := <-h.meterQueue:
			h.persistMeterBatch(batch)
		}
	}
}

func (h *Handlers) persistMeterBatch(batch []storage.MeterValueRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.StorageTimeout)
	defer cancel()
	// Telemetry ingest must not back up; failures are logged and dropped.
	if err := h.store.SaveMeterValues(ctx, batch); err != nil {
		h.logger.Errorf("Failed to persist %d meter samples: %v", len(batch), err)
	}
}

// flattenMeterValues converts wire samples into storage rows.
func flattenMeterValues(chargePointID string, connectorID int, txID *int, values []ocpp16.MeterValue) []storage.MeterValueRecord {
	var out []storage.MeterValueRecord
	for _, mv := range values {
		for _, sv := range mv.SampledValue {
			rec := storage.MeterValueRecord{
				ChargePointID: chargePointID,
				ConnectorID:   connectorID,
				TransactionID: txID,
				Timestamp:     mv.Timestamp.Time,
				Value:         sv.Value,
				Measurand:     string(sv.MeasurandOrDefault()),
			}
			if sv.Phase != nil {
				p := string(*sv.Phase)
				rec.Phase = &p
			}
			if sv.Location != nil {
				l := string(*sv.Location)
				rec.Location = &l
			}
			if sv.Unit != nil {
				u := string(*sv.Unit)
				rec.Unit = &u
			}
			if sv.Context != nil {
				c := string(*sv.Context)
				rec.Context = &c
			}
			out = append(out, rec)
		}
	}
	return out
}

// applyTelemetry routes one sample into the connector telemetry fields.
func applyTelemetry(t *storage.ConnectorTelemetry, sv ocpp16.SampledValue) {
	value, err := strconv.ParseFloat(sv.Value, 64)
	if err != nil {
		return
	}
	v := value

	switch sv.MeasurandOrDefault() {
	case ocpp16.MeasurandVoltage:
		if sv.LocationOrDefault() == ocpp16.LocationInlet {
			t.InputVoltage = &v
		} else {
			t.OutputVoltage = &v
		}
	case ocpp16.MeasurandCurrentImport:
		if sv.LocationOrDefault() == ocpp16.LocationInlet {
			t.InputCurrent = &v
		} else {
			t.DemandCurrent = &v
		}
	case ocpp16.MeasurandEnergyActiveImportRegister:
		t.ChargingEnergy = &v
	case ocpp16.MeasurandPowerActiveImport:
		t.OutputEnergy = &v
	case ocpp16.MeasurandTemperature:
		t.GunTemperature = &v
	case ocpp16.MeasurandSoC:
		t.StateOfCharge = &v
	}
}
