package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
)

func TestMemoryGateway_ChargePointLifecycle(t *testing.T) {
	g := NewMemoryGateway()
	ctx := context.Background()

	cp := &ChargePoint{ID: "CP001", Vendor: "Vendor", Model: "Model", IsOnline: true, LastSeen: time.Now()}
	require.NoError(t, g.UpsertChargePoint(ctx, cp))

	got, err := g.GetChargePoint(ctx, "CP001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.IsOnline)

	require.NoError(t, g.SetChargePointOnline(ctx, "CP001", false, time.Now()))
	got, err = g.GetChargePoint(ctx, "CP001")
	require.NoError(t, err)
	assert.False(t, got.IsOnline)

	all, err := g.ListChargePoints(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMemoryGateway_TransactionLifecycle(t *testing.T) {
	g := NewMemoryGateway()
	ctx := context.Background()

	tag := "RFID001"
	tx := &Transaction{
		TransactionID: 123456,
		ChargePointID: "CP001",
		ConnectorID:   1,
		IdTag:         &tag,
		MeterStart:    1000,
		StartTime:     time.Now(),
	}
	created, err := g.CreateTransaction(ctx, tx)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	// duplicate id rejected
	_, err = g.CreateTransaction(ctx, &Transaction{TransactionID: 123456})
	assert.ErrorIs(t, err, ErrDuplicateTransactionID)

	// startSoC is write-once
	require.NoError(t, g.WriteStartSoC(ctx, 123456, 55))
	require.NoError(t, g.WriteStartSoC(ctx, 123456, 99))
	got, err := g.GetTransaction(ctx, 123456)
	require.NoError(t, err)
	require.NotNil(t, got.StartSoC)
	assert.Equal(t, 55.0, *got.StartSoC)

	soc := 80.0
	require.NoError(t, g.StopTransaction(ctx, 123456, 5000, time.Now(), StopReasonLocal, &soc))
	got, err = g.GetTransaction(ctx, 123456)
	require.NoError(t, err)
	require.NotNil(t, got.MeterStop)
	assert.Equal(t, 5000.0, *got.MeterStop)
	assert.Equal(t, StopReasonLocal, *got.StopReason)
	assert.Equal(t, 80.0, *got.StopSoC)

	assert.ErrorIs(t, g.StopTransaction(ctx, 999, 0, time.Now(), StopReasonOther, nil), ErrTransactionNotFound)
}

func TestMemoryGateway_ListTransactionsNewestFirst(t *testing.T) {
	g := NewMemoryGateway()
	ctx := context.Background()

	base := time.Now()
	for i, offset := range []time.Duration{2 * time.Hour, 0, time.Hour} {
		_, err := g.CreateTransaction(ctx, &Transaction{
			TransactionID: 100000 + i,
			ChargePointID: "CP001",
			ConnectorID:   1,
			StartTime:     base.Add(-offset),
		})
		require.NoError(t, err)
	}

	txs, err := g.ListTransactions(ctx, "CP001", 0)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, 100001, txs[0].TransactionID)
	assert.Equal(t, 100002, txs[1].TransactionID)
	assert.Equal(t, 100000, txs[2].TransactionID)

	// limit keeps the newest rows
	txs, err = g.ListTransactions(ctx, "CP001", 2)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, 100001, txs[0].TransactionID)
}

func TestMemoryGateway_IdTags(t *testing.T) {
	g := NewMemoryGateway()
	ctx := context.Background()

	g.SeedIdTag("GOOD", ocpp16.AuthorizationStatusAccepted, nil)
	g.SeedIdTag("BAD", ocpp16.AuthorizationStatusBlocked, nil)

	v, err := g.ValidateIdTag(ctx, "GOOD")
	require.NoError(t, err)
	assert.Equal(t, ocpp16.AuthorizationStatusAccepted, v.Status)

	v, err = g.ValidateIdTag(ctx, "BAD")
	require.NoError(t, err)
	assert.Equal(t, ocpp16.AuthorizationStatusBlocked, v.Status)

	v, err = g.ValidateIdTag(ctx, "UNKNOWN")
	require.NoError(t, err)
	assert.Equal(t, ocpp16.AuthorizationStatusInvalid, v.Status)
}

func TestMemoryGateway_Alarms(t *testing.T) {
	g := NewMemoryGateway()
	ctx := context.Background()

	connector := 1
	require.NoError(t, g.CreateAlarm(ctx, &Alarm{
		ChargePointID: "CP001",
		ConnectorID:   &connector,
		AlarmType:     "GroundFailure",
		Severity:      AlarmSeverityCritical,
		Message:       "ground failure reported",
		CreatedAt:     time.Now(),
	}))

	require.NoError(t, g.ResolveAlarms(ctx, "CP001", 1, "system"))
	alarms := g.Alarms()
	require.Len(t, alarms, 1)
	assert.True(t, alarms[0].Resolved)
	require.NotNil(t, alarms[0].ResolvedBy)
	assert.Equal(t, "system", *alarms[0].ResolvedBy)
}

func TestStopReasonMapping(t *testing.T) {
	local := ocpp16.ReasonLocal
	remote := ocpp16.ReasonRemote
	evd := ocpp16.ReasonEVDisconnected
	hard := ocpp16.ReasonHardReset
	soft := ocpp16.ReasonSoftReset
	power := ocpp16.ReasonPowerLoss
	unlock := ocpp16.ReasonUnlockCommand

	assert.Equal(t, StopReasonLocal, StopReasonFromOCPP(&local))
	assert.Equal(t, StopReasonRemote, StopReasonFromOCPP(&remote))
	assert.Equal(t, StopReasonEVDisconnected, StopReasonFromOCPP(&evd))
	assert.Equal(t, StopReasonHardReset, StopReasonFromOCPP(&hard))
	assert.Equal(t, StopReasonSoftReset, StopReasonFromOCPP(&soft))
	assert.Equal(t, StopReasonPowerLoss, StopReasonFromOCPP(&power))
	assert.Equal(t, StopReasonOther, StopReasonFromOCPP(&unlock))
	assert.Equal(t, StopReasonOther, StopReasonFromOCPP(nil))
}

func TestAlarmSeverityTable(t *testing.T) {
	assert.Equal(t, AlarmSeverityCritical, AlarmSeverityFor(ocpp16.ChargePointErrorCodeGroundFailure))
	assert.Equal(t, AlarmSeverityCritical, AlarmSeverityFor(ocpp16.ChargePointErrorCodeHighTemperature))
	assert.Equal(t, AlarmSeverityCritical, AlarmSeverityFor(ocpp16.ChargePointErrorCodeInternalError))
	assert.Equal(t, AlarmSeverityError, AlarmSeverityFor(ocpp16.ChargePointErrorCodePowerMeterFailure))
	assert.Equal(t, AlarmSeverityError, AlarmSeverityFor(ocpp16.ChargePointErrorCodeReaderFailure))
	assert.Equal(t, AlarmSeverityError, AlarmSeverityFor(ocpp16.ChargePointErrorCodeResetFailure))
	assert.Equal(t, AlarmSeverityWarning, AlarmSeverityFor(ocpp16.ChargePointErrorCodeConnectorLockFailure))
	assert.Equal(t, AlarmSeverityWarning, AlarmSeverityFor(ocpp16.ChargePointErrorCodeEVCommunicationError))
	assert.Equal(t, AlarmSeverityWarning, AlarmSeverityFor(ocpp16.ChargePointErrorCodePowerSwitchFailure))
	assert.Equal(t, AlarmSeverityInfo, AlarmSeverityFor(ocpp16.ChargePointErrorCodeOtherError))
	assert.Equal(t, AlarmSeverityInfo, AlarmSeverityFor(ocpp16.ChargePointErrorCodeWeakSignal))
}
