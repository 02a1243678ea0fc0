package ocpp

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingCalls_Resolve(t *testing.T) {
	p := NewPendingCalls()

	ch, err := p.Register("msg-1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Count())

	ok := p.Resolve("msg-1", json.RawMessage(`{"status":"Accepted"}`))
	assert.True(t, ok)
	assert.Equal(t, 0, p.Count())

	outcome := <-ch
	require.NoError(t, outcome.Err)
	assert.JSONEq(t, `{"status":"Accepted"}`, string(outcome.Payload))
}

func TestPendingCalls_Reject(t *testing.T) {
	p := NewPendingCalls()

	ch, err := p.Register("msg-2", time.Second)
	require.NoError(t, err)

	callErr := NewCallError("InternalError", "boom")
	assert.True(t, p.Reject("msg-2", callErr))

	outcome := <-ch
	assert.ErrorIs(t, outcome.Err, callErr)
}

func TestPendingCalls_Timeout(t *testing.T) {
	p := NewPendingCalls()

	ch, err := p.Register("msg-3", 20*time.Millisecond)
	require.NoError(t, err)

	select {
	case outcome := <-ch:
		assert.ErrorIs(t, outcome.Err, ErrTimeout)
	case <-time.After(time.Second):
		t.Fatal("waiter did not time out")
	}
	assert.Equal(t, 0, p.Count())

	// a late response finds no waiter
	assert.False(t, p.Resolve("msg-3", json.RawMessage(`{}`)))
}

func TestPendingCalls_ResolveOnlyOnce(t *testing.T) {
	p := NewPendingCalls()

	ch, err := p.Register("msg-4", time.Second)
	require.NoError(t, err)

	assert.True(t, p.Resolve("msg-4", json.RawMessage(`{}`)))
	assert.False(t, p.Resolve("msg-4", json.RawMessage(`{}`)))
	assert.False(t, p.Reject("msg-4", ErrTimeout))

	<-ch
}

func TestPendingCalls_DuplicateMessageID(t *testing.T) {
	p := NewPendingCalls()

	_, err := p.Register("msg-5", time.Second)
	require.NoError(t, err)

	_, err = p.Register("msg-5", time.Second)
	assert.ErrorIs(t, err, ErrDuplicateMessageID)
}

func TestPendingCalls_FailAll(t *testing.T) {
	p := NewPendingCalls()

	ch1, err := p.Register("msg-6", time.Minute)
	require.NoError(t, err)
	ch2, err := p.Register("msg-7", time.Minute)
	require.NoError(t, err)

	p.FailAll(ErrConnectionClosed)

	assert.ErrorIs(t, (<-ch1).Err, ErrConnectionClosed)
	assert.ErrorIs(t, (<-ch2).Err, ErrConnectionClosed)
	assert.Equal(t, 0, p.Count())

	// teardown refuses new registrations
	_, err = p.Register("msg-8", time.Second)
	assert.ErrorIs(t, err, ErrConnectionClosed)
}
