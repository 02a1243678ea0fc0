package ocpp16

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrame_Call(t *testing.T) {
	raw := `[2,"msg-001","BootNotification",{"chargePointVendor":"Vendor","chargePointModel":"Model"}]`

	frame, err := ParseFrame([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, Call, frame.Type)
	assert.Equal(t, "msg-001", frame.MessageID)
	assert.Equal(t, ActionBootNotification, frame.Action)

	var req BootNotificationRequest
	require.NoError(t, json.Unmarshal(frame.Payload, &req))
	assert.Equal(t, "Vendor", req.ChargePointVendor)
	assert.Equal(t, "Model", req.ChargePointModel)
}

func TestParseFrame_CallResult(t *testing.T) {
	raw := `[3,"msg-002",{"currentTime":"2025-01-15T10:00:00Z"}]`

	frame, err := ParseFrame([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, CallResult, frame.Type)
	assert.Equal(t, "msg-002", frame.MessageID)

	var resp HeartbeatResponse
	require.NoError(t, json.Unmarshal(frame.Payload, &resp))
	assert.Equal(t, 2025, resp.CurrentTime.Year())
}

func TestParseFrame_CallError(t *testing.T) {
	raw := `[4,"msg-003","NotSupported","action not supported",{}]`

	frame, err := ParseFrame([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, CallError, frame.Type)
	assert.Equal(t, ErrorCodeNotSupported, frame.ErrorCode)
	assert.Equal(t, "action not supported", frame.ErrorDescription)
}

func TestParseFrame_CallErrorWithoutDetails(t *testing.T) {
	raw := `[4,"msg-004","InternalError","boom"]`

	frame, err := ParseFrame([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, ErrorCodeInternalError, frame.ErrorCode)
	assert.Nil(t, frame.ErrorDetails)
}

func TestParseFrame_Invalid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `not json`},
		{"object not array", `{"messageTypeId":2}`},
		{"too short", `[2,"id"]`},
		{"call missing payload", `[2,"id","Heartbeat"]`},
		{"call extra element", `[2,"id","Heartbeat",{},{}]`},
		{"result wrong arity", `[3,"id",{},{}]`},
		{"unknown type", `[7,"id",{}]`},
		{"numeric message id", `[2,42,"Heartbeat",{}]`},
		{"empty message id", `[2,"","Heartbeat",{}]`},
		{"numeric action", `[2,"id",42,{}]`},
		{"empty action", `[2,"id","",{}]`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseFrame([]byte(tc.raw))
			assert.Error(t, err)
			var frameErr *FrameError
			assert.ErrorAs(t, err, &frameErr)
		})
	}
}

func TestMarshalCall_RoundTrip(t *testing.T) {
	payload := HeartbeatRequest{}
	data, err := MarshalCall("msg-005", ActionHeartbeat, payload)
	require.NoError(t, err)

	frame, err := ParseFrame(data)
	require.NoError(t, err)
	assert.Equal(t, Call, frame.Type)
	assert.Equal(t, "msg-005", frame.MessageID)
	assert.Equal(t, ActionHeartbeat, frame.Action)
}

func TestMarshalCallResult_NilPayload(t *testing.T) {
	data, err := MarshalCallResult("msg-006", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[3,"msg-006",{}]`, string(data))
}

func TestMarshalCallError(t *testing.T) {
	data, err := MarshalCallError("msg-007", ErrorCodeFormationViolation, "bad payload", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[4,"msg-007","FormationViolation","bad payload",{}]`, string(data))
}

func TestDateTime_JSON(t *testing.T) {
	dt := NewDateTime(time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC))

	data, err := json.Marshal(dt)
	require.NoError(t, err)
	assert.Equal(t, `"2025-06-01T12:30:00Z"`, string(data))

	var parsed DateTime
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.True(t, dt.Equal(parsed.Time))
}

func TestSampledValue_Defaults(t *testing.T) {
	sv := SampledValue{Value: "1200"}
	assert.Equal(t, MeasurandEnergyActiveImportRegister, sv.MeasurandOrDefault())
	assert.Equal(t, LocationOutlet, sv.LocationOrDefault())

	m := MeasurandVoltage
	l := LocationInlet
	sv = SampledValue{Value: "230", Measurand: &m, Location: &l}
	assert.Equal(t, MeasurandVoltage, sv.MeasurandOrDefault())
	assert.Equal(t, LocationInlet, sv.LocationOrDefault())
}
