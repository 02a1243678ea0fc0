package stream

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingSink struct {
	mu      sync.Mutex
	samples []*MeterSample
	err     error
}

func (s *recordingSink) Write(sample *MeterSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.samples = append(s.samples, sample)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

func sample(cp string, connector int) *MeterSample {
	return &MeterSample{
		ChargePointID: cp,
		ConnectorID:   connector,
		Timestamp:     time.Now(),
		Value:         "42",
		Measurand:     "Energy.Active.Import.Register",
	}
}

func TestFanout_DeliversToMatchingSubscribers(t *testing.T) {
	f := NewFanout(nil)

	all := &recordingSink{}
	cpOnly := &recordingSink{}
	connOnly := &recordingSink{}

	f.Subscribe(Filter{}, all)
	f.Subscribe(Filter{ChargePointID: "CP001"}, cpOnly)
	one := 1
	f.Subscribe(Filter{ChargePointID: "CP001", ConnectorID: &one}, connOnly)

	f.Publish(sample("CP001", 1))
	f.Publish(sample("CP001", 2))
	f.Publish(sample("CP002", 1))

	assert.Equal(t, 3, all.count())
	assert.Equal(t, 2, cpOnly.count())
	assert.Equal(t, 1, connOnly.count())
}

func TestFanout_FailedSinkRemoved(t *testing.T) {
	f := NewFanout(nil)

	healthy := &recordingSink{}
	broken := &recordingSink{err: errors.New("sink closed")}

	f.Subscribe(Filter{}, healthy)
	f.Subscribe(Filter{}, broken)
	assert.Equal(t, 2, f.SubscriberCount())

	f.Publish(sample("CP001", 1))

	assert.Equal(t, 1, f.SubscriberCount())
	assert.Equal(t, 1, healthy.count())

	// later publishes reach only the survivor
	f.Publish(sample("CP001", 1))
	assert.Equal(t, 2, healthy.count())
}

func TestFanout_Unsubscribe(t *testing.T) {
	f := NewFanout(nil)

	sink := &recordingSink{}
	cancel := f.Subscribe(Filter{}, sink)

	f.Publish(sample("CP001", 1))
	cancel()
	f.Publish(sample("CP001", 1))

	assert.Equal(t, 1, sink.count())
	assert.Equal(t, 0, f.SubscriberCount())
}

func TestFilter_Matches(t *testing.T) {
	s := sample("CP001", 2)

	assert.True(t, Filter{}.Matches(s))
	assert.True(t, Filter{ChargePointID: "CP001"}.Matches(s))
	assert.False(t, Filter{ChargePointID: "CP002"}.Matches(s))

	two := 2
	three := 3
	assert.True(t, Filter{ConnectorID: &two}.Matches(s))
	assert.False(t, Filter{ConnectorID: &three}.Matches(s))
	assert.False(t, Filter{ChargePointID: "CP001", ConnectorID: &three}.Matches(s))
}
