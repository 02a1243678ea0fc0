package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
)

func TestValidateStruct_BootNotification(t *testing.T) {
	v := NewValidator()

	req := ocpp16.BootNotificationRequest{
		ChargePointVendor: "Vendor",
		ChargePointModel:  "Model-X",
	}
	assert.NoError(t, v.ValidateStruct(req))

	req.ChargePointVendor = ""
	err := v.ValidateStruct(req)
	require.Error(t, err)

	verrs, ok := err.(ValidationErrors)
	require.True(t, ok)
	assert.Equal(t, "ChargePointVendor", verrs[0].Field)
	assert.Equal(t, "required", verrs[0].Tag)
}

func TestValidateStruct_StartTransaction(t *testing.T) {
	v := NewValidator()

	req := ocpp16.StartTransactionRequest{
		ConnectorID: 1,
		IdTag:       "TAG001",
		MeterStart:  0,
		Timestamp:   ocpp16.NewDateTime(time.Now()),
	}
	assert.NoError(t, v.ValidateStruct(req))

	req.ConnectorID = 0
	assert.Error(t, v.ValidateStruct(req))

	req.ConnectorID = 1
	req.IdTag = "THIS-TAG-IS-FAR-TOO-LONG-FOR-OCPP"
	assert.Error(t, v.ValidateStruct(req))
}

func TestValidateMessageID(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateMessageID("abc-123"))
	assert.Error(t, v.ValidateMessageID(""))

	long := make([]byte, 37)
	for i := range long {
		long[i] = 'a'
	}
	assert.Error(t, v.ValidateMessageID(string(long)))
}

func TestValidateChargePointID(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateChargePointID("CP-001"))
	assert.NoError(t, v.ValidateChargePointID("station_42"))
	assert.Error(t, v.ValidateChargePointID(""))
	assert.Error(t, v.ValidateChargePointID("bad/id"))
	assert.Error(t, v.ValidateChargePointID("has space"))
}
