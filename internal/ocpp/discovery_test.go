package ocpp

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
)

func testDiscoveryConfig() *DiscoveryConfig {
	return &DiscoveryConfig{
		BroadcastWait:    50 * time.Millisecond,
		PerConnectorWait: 100 * time.Millisecond,
		MeterValuesWait:  50 * time.Millisecond,
		ProbeWait:        100 * time.Millisecond,
		ProbeIDs:         []int{1, 2, 3, 4},
	}
}

// scriptedChargePoint answers inbound CS calls the way a real station would.
type scriptedChargePoint struct {
	t          *testing.T
	conn       *websocket.Conn
	connectors int
	// reportConfig controls whether NumberOfConnectors is answered.
	reportConfig bool
	// rejectPerID answers per-connector triggers with Rejected.
	rejectPerID bool
	// broadcastIDs are reported in response to a connector-less trigger.
	broadcastIDs []int
	done         chan struct{}
}

func runScriptedChargePoint(t *testing.T, conn *websocket.Conn, connectors int, reportConfig bool) *scriptedChargePoint {
	cp := &scriptedChargePoint{
		t:            t,
		conn:         conn,
		connectors:   connectors,
		reportConfig: reportConfig,
		done:         make(chan struct{}),
	}
	go cp.loop()
	return cp
}

// runBroadcastOnlyChargePoint scripts a station that rejects per-connector
// triggers and only reports its connectors on the connector-less trigger.
func runBroadcastOnlyChargePoint(t *testing.T, conn *websocket.Conn, ids []int) *scriptedChargePoint {
	cp := &scriptedChargePoint{
		t:            t,
		conn:         conn,
		rejectPerID:  true,
		broadcastIDs: ids,
		done:         make(chan struct{}),
	}
	go cp.loop()
	return cp
}

func (cp *scriptedChargePoint) loop() {
	defer close(cp.done)
	for {
		_ = cp.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := cp.conn.ReadMessage()
		if err != nil {
			return
		}
		frame, err := ocpp16.ParseFrame(data)
		if err != nil || frame.Type != ocpp16.Call {
			continue
		}
		cp.answer(frame)
	}
}

func (cp *scriptedChargePoint) send(data []byte, err error) {
	require.NoError(cp.t, err)
	require.NoError(cp.t, cp.conn.WriteMessage(websocket.TextMessage, data))
}

func (cp *scriptedChargePoint) answer(frame *ocpp16.Frame) {
	switch frame.Action {
	case ocpp16.ActionGetConfiguration:
		resp := ocpp16.GetConfigurationResponse{}
		if cp.reportConfig {
			value := strconv.Itoa(cp.connectors)
			resp.ConfigurationKey = []ocpp16.KeyValue{{
				Key:      ocpp16.NumberOfConnectorsKey,
				Readonly: true,
				Value:    &value,
			}}
		} else {
			resp.UnknownKey = []string{ocpp16.NumberOfConnectorsKey}
		}
		cp.send(ocpp16.MarshalCallResult(frame.MessageID, resp))

	case ocpp16.ActionTriggerMessage:
		var req ocpp16.TriggerMessageRequest
		require.NoError(cp.t, json.Unmarshal(frame.Payload, &req))

		status := ocpp16.TriggerMessageStatusAccepted
		connectorID := 0
		if req.ConnectorID != nil {
			connectorID = *req.ConnectorID
			if cp.rejectPerID || connectorID > cp.connectors {
				status = ocpp16.TriggerMessageStatusRejected
			}
		}
		cp.send(ocpp16.MarshalCallResult(frame.MessageID, ocpp16.TriggerMessageResponse{Status: status}))

		if status != ocpp16.TriggerMessageStatusAccepted || req.RequestedMessage != ocpp16.MessageTriggerStatusNotification {
			return
		}
		if connectorID > 0 {
			cp.reportStatus(connectorID)
			return
		}
		for _, id := range cp.broadcastIDs {
			cp.reportStatus(id)
		}
	}
}

func (cp *scriptedChargePoint) reportStatus(connectorID int) {
	cp.send(ocpp16.MarshalCall("trig-"+strconv.Itoa(connectorID), ocpp16.ActionStatusNotification,
		ocpp16.StatusNotificationRequest{
			ConnectorID: connectorID,
			Status:      ocpp16.ChargePointStatusAvailable,
			ErrorCode:   ocpp16.ChargePointErrorCodeNoError,
		}))
}

func TestDiscoverer_ViaConfiguration(t *testing.T) {
	g := newTestGateway(t)

	conn := g.dial(t, "CP-200")
	defer conn.Close()
	runScriptedChargePoint(t, conn, 2, true)

	var session *Session
	require.Eventually(t, func() bool {
		s, ok := g.registry.Get("CP-200")
		session = s
		return ok
	}, time.Second, 10*time.Millisecond)

	d := NewDiscoverer(testDiscoveryConfig(), nil)
	result := d.Discover(context.Background(), session)

	assert.True(t, result.Success)
	assert.Equal(t, DiscoveryMethodConfiguration, result.Metadata.DiscoveryMethod)
	require.NotNil(t, result.Metadata.ConfiguredCount)
	assert.Equal(t, 2, *result.Metadata.ConfiguredCount)
	assert.Equal(t, 2, result.Metadata.DiscoveredCount)
	require.Len(t, result.Connectors, 2)
	assert.Equal(t, 1, result.Connectors[0].ConnectorID)
	assert.Equal(t, 2, result.Connectors[1].ConnectorID)
	assert.Empty(t, result.Metadata.Errors)

	n, ok := session.NumberOfConnectors()
	require.True(t, ok)
	assert.Equal(t, 2, n)
}

func TestDiscoverer_FallsBackToProbing(t *testing.T) {
	g := newTestGateway(t)

	conn := g.dial(t, "CP-201")
	defer conn.Close()
	runScriptedChargePoint(t, conn, 2, false)

	var session *Session
	require.Eventually(t, func() bool {
		s, ok := g.registry.Get("CP-201")
		session = s
		return ok
	}, time.Second, 10*time.Millisecond)

	d := NewDiscoverer(testDiscoveryConfig(), nil)
	result := d.Discover(context.Background(), session)

	assert.True(t, result.Success)
	assert.Equal(t, DiscoveryMethodProbe, result.Metadata.DiscoveryMethod)
	assert.Nil(t, result.Metadata.ConfiguredCount)
	assert.Equal(t, 2, result.Metadata.DiscoveredCount)
	require.Len(t, result.Connectors, 2)
	// probes for connectors 3 and 4 were rejected
	assert.NotEmpty(t, result.Metadata.Errors)
}

func TestDiscoverer_BroadcastFindsUnprobedConnector(t *testing.T) {
	g := newTestGateway(t)

	conn := g.dial(t, "CP-202")
	defer conn.Close()
	// NumberOfConnectors unknown, per-id triggers rejected, only the
	// connector-less trigger reports connector 5.
	runBroadcastOnlyChargePoint(t, conn, []int{5})

	var session *Session
	require.Eventually(t, func() bool {
		s, ok := g.registry.Get("CP-202")
		session = s
		return ok
	}, time.Second, 10*time.Millisecond)

	d := NewDiscoverer(testDiscoveryConfig(), nil)
	result := d.Discover(context.Background(), session)

	assert.True(t, result.Success)
	assert.Equal(t, DiscoveryMethodConfiguration, result.Metadata.DiscoveryMethod)
	assert.Nil(t, result.Metadata.ConfiguredCount)
	assert.Equal(t, 1, result.Metadata.DiscoveredCount)
	require.Len(t, result.Connectors, 1)
	assert.Equal(t, 5, result.Connectors[0].ConnectorID)
}
