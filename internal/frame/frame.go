// Package frame implements the newline-delimited JSON wire format shared by
// the host and the agent process. Every frame is one JSON object per line,
// UTF-8, terminated by '\n'. The package classifies decoded frames into the
// three protocol lanes (event messages, control requests, control responses)
// and builds outbound frames.
package frame

import (
	"encoding/json"
	"fmt"
)

// Kind identifies which protocol lane a decoded frame belongs to.
type Kind int

const (
	// KindMessage is a plain event message destined for the consumer stream.
	KindMessage Kind = iota
	// KindControlRequest is a control request (host-issued on the way out,
	// process-issued callbacks on the way in).
	KindControlRequest
	// KindControlResponse answers a control request by id.
	KindControlResponse
	// KindControlCancel asks the host to cancel an in-flight inbound request.
	KindControlCancel
)

// Frame type discriminator values on the wire.
const (
	TypeControlRequest  = "control_request"
	TypeControlResponse = "control_response"
	TypeControlCancel   = "control_cancel_request"
)

// maxRawDiagnostic caps how much of a bad line a decode error carries.
const maxRawDiagnostic = 512

// Envelope is one decoded inbound frame.
type Envelope struct {
	Kind Kind
	Data map[string]any
}

// DecodeError reports a line that could not be decoded as a frame.
// The session survives a decode error; the bad line is carried (truncated)
// for diagnostics.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed frame: %v (raw: %s)", e.Err, e.Raw)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode parses one line into an Envelope. The line must not include the
// trailing newline. Decode never panics on adversarial input; any failure is
// returned as a *DecodeError.
func Decode(line []byte) (*Envelope, error) {
	var data map[string]any
	if err := json.Unmarshal(line, &data); err != nil {
		return nil, &DecodeError{Raw: truncate(line), Err: err}
	}

	return Classify(data), nil
}

// Classify buckets an already-decoded frame by its type discriminator.
// Anything that is not control traffic is an event message; unknown message
// types are the consumer's concern, not the router's.
func Classify(data map[string]any) *Envelope {
	kind := KindMessage

	switch data["type"] {
	case TypeControlRequest:
		kind = KindControlRequest
	case TypeControlResponse:
		kind = KindControlResponse
	case TypeControlCancel:
		kind = KindControlCancel
	}

	return &Envelope{Kind: kind, Data: data}
}

// EncodeUserTurn builds a user message frame for the given prompt.
// The sessionID groups turns within one connection; "default" when empty.
func EncodeUserTurn(prompt, sessionID string) ([]byte, error) {
	if sessionID == "" {
		sessionID = "default"
	}

	payload := map[string]any{
		"type":               "user",
		"message":            map[string]any{"role": "user", "content": prompt},
		"parent_tool_use_id": nil,
		"session_id":         sessionID,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode user turn: %w", err)
	}

	return data, nil
}

// EncodeControlRequest builds an outbound control request frame. The payload
// is merged beside the subtype inside the nested request object.
func EncodeControlRequest(requestID, subtype string, payload map[string]any) ([]byte, error) {
	request := make(map[string]any, len(payload)+1)
	request["subtype"] = subtype

	for k, v := range payload {
		request[k] = v
	}

	data, err := json.Marshal(map[string]any{
		"type":       TypeControlRequest,
		"request_id": requestID,
		"request":    request,
	})
	if err != nil {
		return nil, fmt.Errorf("encode control request %s: %w", subtype, err)
	}

	return data, nil
}

// EncodeSuccessResponse builds a success control response for requestID.
func EncodeSuccessResponse(requestID string, payload map[string]any) ([]byte, error) {
	data, err := json.Marshal(map[string]any{
		"type": TypeControlResponse,
		"response": map[string]any{
			"subtype":    "success",
			"request_id": requestID,
			"response":   payload,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode success response: %w", err)
	}

	return data, nil
}

// EncodeErrorResponse builds an error control response for requestID.
func EncodeErrorResponse(requestID, message string) ([]byte, error) {
	data, err := json.Marshal(map[string]any{
		"type": TypeControlResponse,
		"response": map[string]any{
			"subtype":    "error",
			"request_id": requestID,
			"error":      message,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode error response: %w", err)
	}

	return data, nil
}

// EncodeCancelAck builds the acknowledgment for a cancel frame. found
// reports whether the target request was known; alreadyCompleted whether it
// had finished before the cancel arrived.
func EncodeCancelAck(requestID string, found, alreadyCompleted bool) ([]byte, error) {
	data, err := json.Marshal(map[string]any{
		"type": TypeControlResponse,
		"response": map[string]any{
			"subtype":           "cancel_acknowledgment",
			"request_id":        requestID,
			"found":             found,
			"already_completed": alreadyCompleted,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode cancel acknowledgment: %w", err)
	}

	return data, nil
}

func truncate(line []byte) string {
	if len(line) > maxRawDiagnostic {
		return string(line[:maxRawDiagnostic]) + "..."
	}

	return string(line)
}
