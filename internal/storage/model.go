package storage

import (
	"time"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
)

// ConnectorStatus is the stored connector state.
type ConnectorStatus string

const (
	ConnectorStatusAvailable     ConnectorStatus = "AVAILABLE"
	ConnectorStatusPreparing     ConnectorStatus = "PREPARING"
	ConnectorStatusCharging      ConnectorStatus = "CHARGING"
	ConnectorStatusSuspendedEVSE ConnectorStatus = "SUSPENDED_EVSE"
	ConnectorStatusSuspendedEV   ConnectorStatus = "SUSPENDED_EV"
	ConnectorStatusFinishing     ConnectorStatus = "FINISHING"
	ConnectorStatusReserved      ConnectorStatus = "RESERVED"
	ConnectorStatusUnavailable   ConnectorStatus = "UNAVAILABLE"
	ConnectorStatusFaulted       ConnectorStatus = "FAULTED"
)

// ConnectorStatusFromOCPP maps a wire status onto the stored enum.
func ConnectorStatusFromOCPP(s ocpp16.ChargePointStatus) ConnectorStatus {
	switch s {
	case ocpp16.ChargePointStatusAvailable:
		return ConnectorStatusAvailable
	case ocpp16.ChargePointStatusPreparing:
		return ConnectorStatusPreparing
	case ocpp16.ChargePointStatusCharging:
		return ConnectorStatusCharging
	case ocpp16.ChargePointStatusSuspendedEVSE:
		return ConnectorStatusSuspendedEVSE
	case ocpp16.ChargePointStatusSuspendedEV:
		return ConnectorStatusSuspendedEV
	case ocpp16.ChargePointStatusFinishing:
		return ConnectorStatusFinishing
	case ocpp16.ChargePointStatusReserved:
		return ConnectorStatusReserved
	case ocpp16.ChargePointStatusUnavailable:
		return ConnectorStatusUnavailable
	case ocpp16.ChargePointStatusFaulted:
		return ConnectorStatusFaulted
	default:
		return ConnectorStatusUnavailable
	}
}

// ConnectorType classifies the physical socket.
type ConnectorType string

const (
	ConnectorTypeCCS     ConnectorType = "CCS"
	ConnectorTypeCHAdeMO ConnectorType = "CHADEMO"
	ConnectorTypeType1   ConnectorType = "TYPE1"
	ConnectorTypeType2   ConnectorType = "TYPE2"
	ConnectorTypeTesla   ConnectorType = "TESLA"
	ConnectorTypeGBT     ConnectorType = "GBT"
)

// StopReason is the stored transaction stop reason.
type StopReason string

const (
	StopReasonLocal          StopReason = "LOCAL"
	StopReasonRemote         StopReason = "REMOTE"
	StopReasonEVDisconnected StopReason = "EV_DISCONNECTED"
	StopReasonHardReset      StopReason = "HARD_RESET"
	StopReasonSoftReset      StopReason = "SOFT_RESET"
	StopReasonPowerLoss      StopReason = "POWER_LOSS"
	StopReasonEmergencyStop  StopReason = "EMERGENCY_STOP"
	StopReasonDeAuthorized   StopReason = "DE_AUTHORIZED"
	StopReasonOther          StopReason = "OTHER"
)

// StopReasonFromOCPP maps the wire reason string onto the stored enum.
// Unknown or absent reasons fall back to OTHER.
func StopReasonFromOCPP(r *ocpp16.Reason) StopReason {
	if r == nil {
		return StopReasonOther
	}
	switch *r {
	case ocpp16.ReasonLocal:
		return StopReasonLocal
	case ocpp16.ReasonRemote:
		return StopReasonRemote
	case ocpp16.ReasonEVDisconnected:
		return StopReasonEVDisconnected
	case ocpp16.ReasonHardReset:
		return StopReasonHardReset
	case ocpp16.ReasonSoftReset:
		return StopReasonSoftReset
	case ocpp16.ReasonPowerLoss:
		return StopReasonPowerLoss
	case ocpp16.ReasonEmergencyStop:
		return StopReasonEmergencyStop
	case ocpp16.ReasonDeAuthorized:
		return StopReasonDeAuthorized
	default:
		return StopReasonOther
	}
}

// AlarmSeverity grades an alarm opened from a StatusNotification.
type AlarmSeverity string

const (
	AlarmSeverityInfo     AlarmSeverity = "INFO"
	AlarmSeverityWarning  AlarmSeverity = "WARNING"
	AlarmSeverityError    AlarmSeverity = "ERROR"
	AlarmSeverityCritical AlarmSeverity = "CRITICAL"
)

// AlarmSeverityFor classifies a charge point error code.
func AlarmSeverityFor(code ocpp16.ChargePointErrorCode) AlarmSeverity {
	switch code {
	case ocpp16.ChargePointErrorCodeGroundFailure,
		ocpp16.ChargePointErrorCodeHighTemperature,
		ocpp16.ChargePointErrorCodeInternalError:
		return AlarmSeverityCritical
	case ocpp16.ChargePointErrorCodePowerMeterFailure,
		ocpp16.ChargePointErrorCodeReaderFailure,
		ocpp16.ChargePointErrorCodeResetFailure:
		return AlarmSeverityError
	case ocpp16.ChargePointErrorCodeConnectorLockFailure,
		ocpp16.ChargePointErrorCodeEVCommunicationError,
		ocpp16.ChargePointErrorCodePowerSwitchFailure:
		return AlarmSeverityWarning
	default:
		return AlarmSeverityInfo
	}
}

// ChargePoint is the stored station identity and metadata.
type ChargePoint struct {
	ID                string     `json:"id"`
	Vendor            string     `json:"vendor"`
	Model             string     `json:"model"`
	SerialNumber      *string    `json:"serialNumber,omitempty"`
	FirmwareVersion   *string    `json:"firmwareVersion,omitempty"`
	Iccid             *string    `json:"iccid,omitempty"`
	Imsi              *string    `json:"imsi,omitempty"`
	MeterType         *string    `json:"meterType,omitempty"`
	MeterSerialNumber *string    `json:"meterSerialNumber,omitempty"`
	IsOnline          bool       `json:"isOnline"`
	LastSeen          time.Time  `json:"lastSeen"`
}

// ConnectorTelemetry is the latest sampled electrical state of a connector.
type ConnectorTelemetry struct {
	InputVoltage  *float64 `json:"inputVoltage,omitempty"`
	OutputVoltage *float64 `json:"outputVoltage,omitempty"`
	InputCurrent  *float64 `json:"inputCurrent,omitempty"`
	DemandCurrent *float64 `json:"demandCurrent,omitempty"`
	// ChargingEnergy is the energy register reading in Wh.
	ChargingEnergy *float64 `json:"chargingEnergy,omitempty"`
	// OutputEnergy is the instantaneous active power in W.
	OutputEnergy   *float64 `json:"outputEnergy,omitempty"`
	GunTemperature *float64 `json:"gunTemperature,omitempty"`
	StateOfCharge  *float64 `json:"stateOfCharge,omitempty"`
}

// Connector is the stored per-socket state of a charge point.
type Connector struct {
	ChargePointID        string             `json:"chargePointId"`
	ConnectorID          int                `json:"connectorId"`
	Type                 ConnectorType      `json:"type,omitempty"`
	Status               ConnectorStatus    `json:"status"`
	ErrorCode            *string            `json:"errorCode,omitempty"`
	VendorErrorCode      *string            `json:"vendorErrorCode,omitempty"`
	Info                 *string            `json:"info,omitempty"`
	Telemetry            ConnectorTelemetry `json:"telemetry"`
	CurrentTransactionID *int               `json:"currentTransactionId,omitempty"`
	LastUpdated          time.Time          `json:"lastUpdated"`
}

// Transaction is one stored charging transaction.
type Transaction struct {
	ID            int64       `json:"id"`
	TransactionID int         `json:"transactionId"`
	ChargePointID string      `json:"chargePointId"`
	ConnectorID   int         `json:"connectorId"`
	IdTag         *string     `json:"idTag,omitempty"`
	MeterStart    float64     `json:"meterStart"`
	MeterStop     *float64    `json:"meterStop,omitempty"`
	StartTime     time.Time   `json:"startTimestamp"`
	StopTime      *time.Time  `json:"stopTimestamp,omitempty"`
	StopReason    *StopReason `json:"stopReason,omitempty"`
	StartSoC      *float64    `json:"startSoC,omitempty"`
	StopSoC       *float64    `json:"stopSoC,omitempty"`
}

// IdTagVerdict is the authorization answer for an idTag.
type IdTagVerdict struct {
	Status     ocpp16.AuthorizationStatus `json:"status"`
	ExpiryDate *time.Time                 `json:"expiryDate,omitempty"`
}

// Alarm is one fault record opened from a StatusNotification.
type Alarm struct {
	ID            int64         `json:"id"`
	ChargePointID string        `json:"chargePointId"`
	ConnectorID   *int          `json:"connectorId,omitempty"`
	AlarmType     string        `json:"alarmType"`
	Severity      AlarmSeverity `json:"severity"`
	Message       string        `json:"message"`
	Resolved      bool          `json:"resolved"`
	ResolvedAt    *time.Time    `json:"resolvedAt,omitempty"`
	ResolvedBy    *string       `json:"resolvedBy,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// MeterValueRecord is one persisted sample row.
type MeterValueRecord struct {
	ChargePointID string     `json:"chargePointId"`
	ConnectorID   int        `json:"connectorId"`
	TransactionID *int       `json:"transactionId,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
	Value         string     `json:"value"`
	Measurand     string     `json:"measurand"`
	Phase         *string    `json:"phase,omitempty"`
	Location      *string    `json:"location,omitempty"`
	Unit          *string    `json:"unit,omitempty"`
	Context       *string    `json:"context,omitempty"`
}
