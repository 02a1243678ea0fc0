package stream

import (
	"sync"
	"time"

	"github.com/charging-platform/central-system/internal/logger"
	"github.com/charging-platform/central-system/internal/metrics"
)

// MeterSample is one live telemetry point pushed to subscribers.
type MeterSample struct {
	ChargePointID string    `json:"chargePointId"`
	ConnectorID   int       `json:"connectorId"`
	TransactionID *int      `json:"transactionId,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Value         string    `json:"value"`
	Measurand     string    `json:"measurand"`
	Unit          string    `json:"unit,omitempty"`
	Phase         string    `json:"phase,omitempty"`
}

// Filter selects which samples a subscriber receives. Empty/nil fields
// match everything.
type Filter struct {
	ChargePointID string
	ConnectorID   *int
}

// Matches reports whether the sample passes the filter.
func (f Filter) Matches(s *MeterSample) bool {
	if f.ChargePointID != "" && f.ChargePointID != s.ChargePointID {
		return false
	}
	if f.ConnectorID != nil && *f.ConnectorID != s.ConnectorID {
		return false
	}
	return true
}

// Sink receives matched samples. A Write error removes the subscriber.
type Sink interface {
	Write(sample *MeterSample) error
}

// Publisher is the fan-out contract the meter handler publishes through.
type Publisher interface {
	Publish(sample *MeterSample)
}

type subscriber struct {
	id     uint64
	filter Filter
	sink   Sink
}

// Fanout delivers meter samples to filtered subscribers. Delivery is
// non-blocking per subscriber: a failed sink is dropped without affecting
// the rest.
type Fanout struct {
	mu          sync.RWMutex
	subscribers map[uint64]*subscriber
	nextID      uint64
	logger      *logger.Logger
}

// NewFanout returns an empty fan-out.
func NewFanout(log *logger.Logger) *Fanout {
	if log == nil {
		log = logger.Default()
	}
	return &Fanout{
		subscribers: make(map[uint64]*subscriber),
		logger:      log,
	}
}

// Subscribe registers a sink and returns an unsubscribe function.
func (f *Fanout) Subscribe(filter Filter, sink Sink) func() {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.subscribers[id] = &subscriber{id: id, filter: filter, sink: sink}
	count := len(f.subscribers)
	f.mu.Unlock()

	f.logger.Debugf("Meter subscriber %d added, %d active", id, count)

	return func() {
		f.mu.Lock()
		delete(f.subscribers, id)
		f.mu.Unlock()
	}
}

// SubscriberCount reports the number of active subscribers.
func (f *Fanout) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}

// Publish delivers the sample to every matching subscriber. Subscribers
// whose sink write fails are removed.
func (f *Fanout) Publish(sample *MeterSample) {
	f.mu.RLock()
	matched := make([]*subscriber, 0, len(f.subscribers))
	for _, sub := range f.subscribers {
		if sub.filter.Matches(sample) {
			matched = append(matched, sub)
		}
	}
	f.mu.RUnlock()

	var failed []uint64
	for _, sub := range matched {
		if err := sub.sink.Write(sample); err != nil {
			f.logger.Warnf("Dropping meter subscriber %d: %v", sub.id, err)
			failed = append(failed, sub.id)
		}
	}

	if len(failed) > 0 {
		f.mu.Lock()
		for _, id := range failed {
			delete(f.subscribers, id)
		}
		f.mu.Unlock()
	}

	metrics.MeterSamplesPublished.Inc()
}
