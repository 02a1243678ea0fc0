package ocpp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/central-system/internal/business/transaction"
	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/storage"
)

// testGateway hosts a registry behind httptest with the full handler set.
type testGateway struct {
	registry *Registry
	store    *storage.MemoryGateway
	server   *httptest.Server
}

func newTestGateway(t *testing.T) *testGateway {
	return newTestGatewayWithConfig(t, nil)
}

func newTestGatewayWithConfig(t *testing.T, config *RegistryConfig) *testGateway {
	t.Helper()
	store := storage.NewMemoryGateway()
	store.SeedIdTag("TAG-OK", ocpp16.AuthorizationStatusAccepted, nil)

	coordinator := transaction.NewCoordinator(nil, store, nil)
	h := NewHandlers(nil, store, nil, coordinator, nil, nil, nil)
	d := NewDispatcher(nil)
	h.RegisterAll(d)
	t.Cleanup(h.Stop)

	registry := NewRegistry(config, d, h, nil)
	server := httptest.NewServer(http.HandlerFunc(registry.HandleWebSocket))
	t.Cleanup(server.Close)
	t.Cleanup(registry.Stop)

	return &testGateway{registry: registry, store: store, server: server}
}

func (g *testGateway) dial(t *testing.T, chargePointID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(g.server.URL, "http") + "/ocpp/" + chargePointID
	dialer := websocket.Dialer{Subprotocols: []string{"ocpp1.6"}}
	conn, _, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

// call sends a CALL and reads frames until the matching CALLRESULT arrives.
func wsCall(t *testing.T, conn *websocket.Conn, messageID string, action ocpp16.Action, payload interface{}) json.RawMessage {
	t.Helper()
	data, err := ocpp16.MarshalCall(messageID, action, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))

	deadline := time.Now().Add(5 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, resp, err := conn.ReadMessage()
		require.NoError(t, err)
		frame, err := ocpp16.ParseFrame(resp)
		require.NoError(t, err)
		if frame.MessageID != messageID {
			continue
		}
		require.Equal(t, ocpp16.CallResult, frame.Type, "got %s", string(resp))
		return frame.Payload
	}
}

func TestRegistry_BootHeartbeatRoundTrip(t *testing.T) {
	g := newTestGateway(t)

	conn := g.dial(t, "CP-100")
	defer conn.Close()

	raw := wsCall(t, conn, "m1", ocpp16.ActionBootNotification, ocpp16.BootNotificationRequest{
		ChargePointVendor: "VendorX",
		ChargePointModel:  "ModelY",
	})
	var boot ocpp16.BootNotificationResponse
	require.NoError(t, json.Unmarshal(raw, &boot))
	assert.Equal(t, ocpp16.RegistrationStatusAccepted, boot.Status)
	assert.Equal(t, 300, boot.Interval)

	raw = wsCall(t, conn, "m2", ocpp16.ActionHeartbeat, struct{}{})
	var hb ocpp16.HeartbeatResponse
	require.NoError(t, json.Unmarshal(raw, &hb))
	assert.WithinDuration(t, time.Now(), hb.CurrentTime.Time, 5*time.Second)

	assert.Equal(t, 1, g.registry.Count())
	cp, err := g.store.GetChargePoint(context.Background(), "CP-100")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.True(t, cp.IsOnline)
}

func TestRegistry_MalformedFrameAnswersFormationViolation(t *testing.T) {
	g := newTestGateway(t)

	conn := g.dial(t, "CP-101")
	defer conn.Close()

	// CALL with wrong arity but a recoverable messageId
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`[2,"bad-1","Heartbeat"]`)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, resp, err := conn.ReadMessage()
	require.NoError(t, err)

	frame, err := ocpp16.ParseFrame(resp)
	require.NoError(t, err)
	assert.Equal(t, ocpp16.CallError, frame.Type)
	assert.Equal(t, "bad-1", frame.MessageID)
	assert.Equal(t, ocpp16.ErrorCodeFormationViolation, frame.ErrorCode)
}

func TestRegistry_SupersedePreservesConnectorState(t *testing.T) {
	g := newTestGateway(t)

	first := g.dial(t, "CP-102")
	defer first.Close()

	wsCall(t, first, "m1", ocpp16.ActionBootNotification, ocpp16.BootNotificationRequest{
		ChargePointVendor: "VendorX",
		ChargePointModel:  "ModelY",
	})
	wsCall(t, first, "m2", ocpp16.ActionStatusNotification, ocpp16.StatusNotificationRequest{
		ConnectorID: 1,
		Status:      ocpp16.ChargePointStatusCharging,
		ErrorCode:   ocpp16.ChargePointErrorCodeNoError,
	})

	second := g.dial(t, "CP-102")
	defer second.Close()

	// old socket receives the supersede close code
	require.NoError(t, first.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := first.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*websocket.CloseError)
	if ok {
		assert.Equal(t, CloseCodeSuperseded, closeErr.Code)
	}

	require.Eventually(t, func() bool {
		s, ok := g.registry.Get("CP-102")
		if !ok {
			return false
		}
		c, ok := s.Connector(1)
		return ok && c.Status == ocpp16.ChargePointStatusCharging
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, g.registry.Count())

	// the new session still persists as online
	cp, err := g.store.GetChargePoint(context.Background(), "CP-102")
	require.NoError(t, err)
	assert.True(t, cp.IsOnline)
}

func TestRegistry_InvalidChargePointIDRejected(t *testing.T) {
	g := newTestGateway(t)

	url := "ws" + strings.TrimPrefix(g.server.URL, "http") + "/ocpp/bad%20id"
	dialer := websocket.Dialer{Subprotocols: []string{"ocpp1.6"}}
	conn, _, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.Equal(t, 0, g.registry.Count())
}

func TestRegistry_DisconnectMarksConnectorsUnavailable(t *testing.T) {
	g := newTestGateway(t)

	conn := g.dial(t, "CP-103")
	wsCall(t, conn, "m1", ocpp16.ActionBootNotification, ocpp16.BootNotificationRequest{
		ChargePointVendor: "VendorX",
		ChargePointModel:  "ModelY",
	})
	wsCall(t, conn, "m2", ocpp16.ActionStatusNotification, ocpp16.StatusNotificationRequest{
		ConnectorID: 1,
		Status:      ocpp16.ChargePointStatusAvailable,
		ErrorCode:   ocpp16.ChargePointErrorCodeNoError,
	})

	conn.Close()

	require.Eventually(t, func() bool {
		cp, err := g.store.GetChargePoint(context.Background(), "CP-103")
		return err == nil && cp != nil && !cp.IsOnline
	}, 2*time.Second, 10*time.Millisecond)

	rows, err := g.store.ListConnectors(context.Background(), "CP-103")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, storage.ConnectorStatusUnavailable, rows[0].Status)
	assert.Equal(t, 0, g.registry.Count())
}

func TestRegistry_RateLimitedCallAnsweredWithCallError(t *testing.T) {
	config := DefaultRegistryConfig()
	config.Session.RateLimitPoints = 2
	config.Session.RateLimitWindow = time.Minute
	g := newTestGatewayWithConfig(t, config)

	conn := g.dial(t, "CP-104")
	defer conn.Close()

	wsCall(t, conn, "hb-1", ocpp16.ActionHeartbeat, struct{}{})
	wsCall(t, conn, "hb-2", ocpp16.ActionHeartbeat, struct{}{})

	// the third call in the window is rejected, never silenced
	data, err := ocpp16.MarshalCall("hb-3", ocpp16.ActionHeartbeat, struct{}{})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, resp, err := conn.ReadMessage()
	require.NoError(t, err)
	frame, err := ocpp16.ParseFrame(resp)
	require.NoError(t, err)
	assert.Equal(t, ocpp16.CallError, frame.Type)
	assert.Equal(t, "hb-3", frame.MessageID)
	assert.Equal(t, ocpp16.ErrorCodeGenericError, frame.ErrorCode)

	// replies to CS-initiated calls are never throttled
	session, ok := g.registry.Get("CP-104")
	require.True(t, ok)

	done := make(chan error, 1)
	go func() {
		var trig ocpp16.TriggerMessageResponse
		done <- session.CallInto(context.Background(), ocpp16.ActionTriggerMessage,
			ocpp16.TriggerMessageRequest{RequestedMessage: ocpp16.MessageTriggerStatusNotification}, &trig, 5*time.Second)
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	call, err := ocpp16.ParseFrame(data)
	require.NoError(t, err)
	require.Equal(t, ocpp16.Call, call.Type)

	answer, err := ocpp16.MarshalCallResult(call.MessageID, ocpp16.TriggerMessageResponse{Status: ocpp16.TriggerMessageStatusAccepted})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, answer))

	require.NoError(t, <-done)
}

func TestChargePointIDFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/ocpp/CP-001", "CP-001"},
		{"/CP-001", "CP-001"},
		{"/ocpp/", ""},
		{"/", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, chargePointIDFromPath(tt.path), tt.path)
	}
}
