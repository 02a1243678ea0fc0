package ocpp16

// BootNotificationRequest is sent by the CP after (re)connecting.
type BootNotificationRequest struct {
	ChargePointVendor       string  `json:"chargePointVendor" validate:"required,max=20"`
	ChargePointModel        string  `json:"chargePointModel" validate:"required,max=20"`
	ChargePointSerialNumber *string `json:"chargePointSerialNumber,omitempty" validate:"omitempty,max=25"`
	ChargeBoxSerialNumber   *string `json:"chargeBoxSerialNumber,omitempty" validate:"omitempty,max=25"`
	FirmwareVersion         *string `json:"firmwareVersion,omitempty" validate:"omitempty,max=50"`
	Iccid                   *string `json:"iccid,omitempty" validate:"omitempty,max=20"`
	Imsi                    *string `json:"imsi,omitempty" validate:"omitempty,max=20"`
	MeterType               *string `json:"meterType,omitempty" validate:"omitempty,max=25"`
	MeterSerialNumber       *string `json:"meterSerialNumber,omitempty" validate:"omitempty,max=25"`
}

// BootNotificationResponse tells the CP whether it is registered and how
// often to send heartbeats.
type BootNotificationResponse struct {
	Status      RegistrationStatus `json:"status" validate:"required"`
	CurrentTime DateTime           `json:"currentTime" validate:"required"`
	Interval    int                `json:"interval" validate:"gte=0"`
}

// HeartbeatRequest has no fields.
type HeartbeatRequest struct{}

// HeartbeatResponse returns the CS clock.
type HeartbeatResponse struct {
	CurrentTime DateTime `json:"currentTime" validate:"required"`
}

// StatusNotificationRequest reports a connector status change.
type StatusNotificationRequest struct {
	ConnectorID     int                  `json:"connectorId" validate:"gte=0"`
	ErrorCode       ChargePointErrorCode `json:"errorCode" validate:"required"`
	Info            *string              `json:"info,omitempty" validate:"omitempty,max=50"`
	Status          ChargePointStatus    `json:"status" validate:"required"`
	Timestamp       *DateTime            `json:"timestamp,omitempty"`
	VendorID        *string              `json:"vendorId,omitempty" validate:"omitempty,max=255"`
	VendorErrorCode *string              `json:"vendorErrorCode,omitempty" validate:"omitempty,max=50"`
}

// StatusNotificationResponse is empty.
type StatusNotificationResponse struct{}

// AuthorizeRequest asks whether an idTag may charge.
type AuthorizeRequest struct {
	IdTag string `json:"idTag" validate:"required,max=20"`
}

// AuthorizeResponse carries the verdict.
type AuthorizeResponse struct {
	IdTagInfo IdTagInfo `json:"idTagInfo" validate:"required"`
}

// StartTransactionRequest opens a charging transaction.
type StartTransactionRequest struct {
	ConnectorID   int       `json:"connectorId" validate:"gt=0"`
	IdTag         string    `json:"idTag" validate:"required,max=20"`
	MeterStart    int       `json:"meterStart" validate:"gte=0"`
	ReservationID *int      `json:"reservationId,omitempty"`
	Timestamp     DateTime  `json:"timestamp" validate:"required"`
}

// StartTransactionResponse returns the CS-assigned transactionId.
type StartTransactionResponse struct {
	IdTagInfo     IdTagInfo `json:"idTagInfo" validate:"required"`
	TransactionID int       `json:"transactionId"`
}

// StopTransactionRequest closes a charging transaction.
type StopTransactionRequest struct {
	IdTag           *string      `json:"idTag,omitempty" validate:"omitempty,max=20"`
	MeterStop       int          `json:"meterStop" validate:"gte=0"`
	Timestamp       DateTime     `json:"timestamp" validate:"required"`
	TransactionID   int          `json:"transactionId"`
	Reason          *Reason      `json:"reason,omitempty"`
	TransactionData []MeterValue `json:"transactionData,omitempty" validate:"omitempty,dive"`
}

// StopTransactionResponse optionally re-states the idTag verdict.
type StopTransactionResponse struct {
	IdTagInfo *IdTagInfo `json:"idTagInfo,omitempty"`
}

// MeterValuesRequest streams periodic meter samples.
type MeterValuesRequest struct {
	ConnectorID   int          `json:"connectorId" validate:"gte=0"`
	TransactionID *int         `json:"transactionId,omitempty"`
	MeterValue    []MeterValue `json:"meterValue" validate:"required,min=1,dive"`
}

// MeterValuesResponse is empty.
type MeterValuesResponse struct{}

// DataTransferRequest carries vendor-specific data.
type DataTransferRequest struct {
	VendorID  string  `json:"vendorId" validate:"required,max=255"`
	MessageID *string `json:"messageId,omitempty" validate:"omitempty,max=50"`
	Data      *string `json:"data,omitempty"`
}

// DataTransferResponse acknowledges vendor-specific data.
type DataTransferResponse struct {
	Status DataTransferStatus `json:"status" validate:"required"`
	Data   *string            `json:"data,omitempty"`
}

// RemoteStartTransactionRequest asks the CP to start charging.
type RemoteStartTransactionRequest struct {
	ConnectorID *int   `json:"connectorId,omitempty" validate:"omitempty,gt=0"`
	IdTag       string `json:"idTag" validate:"required,max=20"`
}

// RemoteStartTransactionResponse is the CP's accept/reject answer.
type RemoteStartTransactionResponse struct {
	Status RemoteStartStopStatus `json:"status" validate:"required"`
}

// RemoteStopTransactionRequest asks the CP to stop a transaction.
type RemoteStopTransactionRequest struct {
	TransactionID int `json:"transactionId"`
}

// RemoteStopTransactionResponse is the CP's accept/reject answer.
type RemoteStopTransactionResponse struct {
	Status RemoteStartStopStatus `json:"status" validate:"required"`
}

// ResetRequest asks the CP to reboot.
type ResetRequest struct {
	Type ResetType `json:"type" validate:"required"`
}

// ResetResponse is the CP's accept/reject answer.
type ResetResponse struct {
	Status ResetStatus `json:"status" validate:"required"`
}

// UnlockConnectorRequest asks the CP to release a connector lock.
type UnlockConnectorRequest struct {
	ConnectorID int `json:"connectorId" validate:"gt=0"`
}

// UnlockConnectorResponse reports the unlock outcome.
type UnlockConnectorResponse struct {
	Status UnlockStatus `json:"status" validate:"required"`
}

// GetConfigurationRequest reads configuration keys; empty means all.
type GetConfigurationRequest struct {
	Key []string `json:"key,omitempty" validate:"omitempty,dive,max=50"`
}

// GetConfigurationResponse returns known and unknown keys.
type GetConfigurationResponse struct {
	ConfigurationKey []KeyValue `json:"configurationKey,omitempty"`
	UnknownKey       []string   `json:"unknownKey,omitempty"`
}

// ChangeConfigurationRequest writes one configuration key.
type ChangeConfigurationRequest struct {
	Key   string `json:"key" validate:"required,max=50"`
	Value string `json:"value" validate:"required,max=500"`
}

// ChangeConfigurationResponse reports the write outcome.
type ChangeConfigurationResponse struct {
	Status ConfigurationStatus `json:"status" validate:"required"`
}

// ChangeAvailabilityRequest switches a connector in or out of service.
type ChangeAvailabilityRequest struct {
	ConnectorID int              `json:"connectorId" validate:"gte=0"`
	Type        AvailabilityType `json:"type" validate:"required"`
}

// ChangeAvailabilityResponse reports the availability change outcome.
type ChangeAvailabilityResponse struct {
	Status AvailabilityStatus `json:"status" validate:"required"`
}

// TriggerMessageRequest asks the CP to send a specific message now.
type TriggerMessageRequest struct {
	RequestedMessage MessageTrigger `json:"requestedMessage" validate:"required"`
	ConnectorID      *int           `json:"connectorId,omitempty" validate:"omitempty,gt=0"`
}

// TriggerMessageResponse is the CP's answer to a trigger.
type TriggerMessageResponse struct {
	Status TriggerMessageStatus `json:"status" validate:"required"`
}

// ClearCacheRequest has no fields.
type ClearCacheRequest struct{}

// ClearCacheResponse reports the cache clear outcome.
type ClearCacheResponse struct {
	Status string `json:"status" validate:"required,oneof=Accepted Rejected"`
}
