package ocpp16

import (
	"encoding/json"
	"fmt"
)

// Frame is one decoded OCPP-J message. Exactly one of the payload fields is
// meaningful depending on Type.
type Frame struct {
	Type      MessageType
	MessageID string

	// Call fields
	Action  Action
	Payload json.RawMessage

	// CallError fields
	ErrorCode        ErrorCode
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

// FrameError reports a frame that violates the OCPP-J array format.
type FrameError struct {
	Reason string
}

func (e *FrameError) Error() string {
	return "invalid frame: " + e.Reason
}

func frameErrorf(format string, args ...interface{}) error {
	return &FrameError{Reason: fmt.Sprintf(format, args...)}
}

// ParseFrame decodes a raw OCPP-J array into a Frame. It enforces the arity
// and element types of the three frame shapes and rejects everything else.
func ParseFrame(data []byte) (*Frame, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil {
		return nil, frameErrorf("not a JSON array: %v", err)
	}
	if len(elements) < 3 {
		return nil, frameErrorf("array has %d elements, need at least 3", len(elements))
	}

	var msgType int
	if err := json.Unmarshal(elements[0], &msgType); err != nil {
		return nil, frameErrorf("message type is not a number: %v", err)
	}

	var messageID string
	if err := json.Unmarshal(elements[1], &messageID); err != nil {
		return nil, frameErrorf("message id is not a string: %v", err)
	}
	if messageID == "" {
		return nil, frameErrorf("message id is empty")
	}

	frame := &Frame{Type: MessageType(msgType), MessageID: messageID}

	switch frame.Type {
	case Call:
		if len(elements) != 4 {
			return nil, frameErrorf("CALL has %d elements, need 4", len(elements))
		}
		var action string
		if err := json.Unmarshal(elements[2], &action); err != nil {
			return nil, frameErrorf("action is not a string: %v", err)
		}
		if action == "" {
			return nil, frameErrorf("action is empty")
		}
		frame.Action = Action(action)
		frame.Payload = elements[3]

	case CallResult:
		if len(elements) != 3 {
			return nil, frameErrorf("CALLRESULT has %d elements, need 3", len(elements))
		}
		frame.Payload = elements[2]

	case CallError:
		if len(elements) != 4 && len(elements) != 5 {
			return nil, frameErrorf("CALLERROR has %d elements, need 4 or 5", len(elements))
		}
		var code string
		if err := json.Unmarshal(elements[2], &code); err != nil {
			return nil, frameErrorf("error code is not a string: %v", err)
		}
		frame.ErrorCode = ErrorCode(code)
		var desc string
		if err := json.Unmarshal(elements[3], &desc); err != nil {
			return nil, frameErrorf("error description is not a string: %v", err)
		}
		frame.ErrorDescription = desc
		if len(elements) == 5 {
			frame.ErrorDetails = elements[4]
		}

	default:
		return nil, frameErrorf("unknown message type %d", msgType)
	}

	return frame, nil
}

// RecoverMessageID best-effort extracts the messageId from a malformed
// frame so an inbound error can still be answered. Returns "" when the id
// cannot be recovered.
func RecoverMessageID(data []byte) string {
	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil || len(elements) < 2 {
		return ""
	}
	var messageID string
	if err := json.Unmarshal(elements[1], &messageID); err != nil {
		return ""
	}
	return messageID
}

// MarshalCall encodes [2, messageId, action, payload].
func MarshalCall(messageID string, action Action, payload interface{}) ([]byte, error) {
	if payload == nil {
		payload = struct{}{}
	}
	return json.Marshal([]interface{}{int(Call), messageID, string(action), payload})
}

// MarshalCallResult encodes [3, messageId, payload].
func MarshalCallResult(messageID string, payload interface{}) ([]byte, error) {
	if payload == nil {
		payload = struct{}{}
	}
	return json.Marshal([]interface{}{int(CallResult), messageID, payload})
}

// MarshalCallError encodes [4, messageId, errorCode, errorDescription, errorDetails].
func MarshalCallError(messageID string, code ErrorCode, description string, details interface{}) ([]byte, error) {
	if details == nil {
		details = struct{}{}
	}
	return json.Marshal([]interface{}{int(CallError), messageID, string(code), description, details})
}
