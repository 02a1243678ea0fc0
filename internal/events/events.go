package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType names a domain event published to the broker.
type EventType string

const (
	EventTypeChargePointConnected    EventType = "chargepoint.connected"
	EventTypeChargePointDisconnected EventType = "chargepoint.disconnected"
	EventTypeChargePointRegistered   EventType = "chargepoint.registered"
	EventTypeConnectorStatusChanged  EventType = "connector.status_changed"
	EventTypeTransactionStarted      EventType = "transaction.started"
	EventTypeTransactionStopped      EventType = "transaction.stopped"
	EventTypeAlarmRaised             EventType = "alarm.raised"
)

// Event is one domain event. Payload carries the type-specific body.
type Event struct {
	ID            string      `json:"id"`
	Type          EventType   `json:"type"`
	ChargePointID string      `json:"chargePointId"`
	Timestamp     time.Time   `json:"timestamp"`
	Payload       interface{} `json:"payload,omitempty"`
}

// New builds an event with a fresh id and UTC timestamp.
func New(eventType EventType, chargePointID string, payload interface{}) *Event {
	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		ChargePointID: chargePointID,
		Timestamp:     time.Now().UTC(),
		Payload:       payload,
	}
}

// ToJSON serializes the event for the wire.
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// RegisteredPayload is the body of a chargepoint.registered event.
type RegisteredPayload struct {
	Vendor          string `json:"vendor"`
	Model           string `json:"model"`
	FirmwareVersion string `json:"firmwareVersion,omitempty"`
	Interval        int    `json:"interval"`
}

// DisconnectedPayload is the body of a chargepoint.disconnected event.
type DisconnectedPayload struct {
	Reason string `json:"reason"`
}

// StatusChangedPayload is the body of a connector.status_changed event.
type StatusChangedPayload struct {
	ConnectorID int    `json:"connectorId"`
	Status      string `json:"status"`
	ErrorCode   string `json:"errorCode,omitempty"`
}

// TransactionPayload is the body of transaction lifecycle events.
type TransactionPayload struct {
	TransactionID int      `json:"transactionId"`
	ConnectorID   int      `json:"connectorId"`
	IdTag         string   `json:"idTag,omitempty"`
	MeterStart    float64  `json:"meterStart,omitempty"`
	MeterStop     *float64 `json:"meterStop,omitempty"`
	StopReason    string   `json:"stopReason,omitempty"`
}

// AlarmPayload is the body of an alarm.raised event.
type AlarmPayload struct {
	ConnectorID int    `json:"connectorId"`
	AlarmType   string `json:"alarmType"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
}
