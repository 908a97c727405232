// Package wire defines the JSON envelope exchanged over a gateway
// connection and the codec that validates its structural shape.
package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// Reserved envelope types. Everything else selects a registered handler.
const (
	TypeWelcome = "welcome" // server -> client, sent once on connect
	TypePing    = "ping"    // bidirectional liveness probe
	TypePong    = "pong"    // reply to ping
	TypeError   = "error"   // server -> client failure report
)

// Machine-readable error codes produced by the gateway itself. Handlers
// may introduce their own codes via HandlerError.
const (
	CodeInvalidFormat      = "INVALID_FORMAT"
	CodeUnknownMessageType = "UNKNOWN_MESSAGE_TYPE"
	CodeInternalError      = "INTERNAL_ERROR"
)

// Now is the clock used for response timestamps. Overridable in tests.
var Now = time.Now

// ErrorPayload describes a failure inside a response envelope.
type ErrorPayload struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

// Envelope is the message unit for both directions. Inbound frames carry
// ID, Type, Timestamp and Data; outbound frames additionally may carry
// Error. Data is kept raw so each handler parses its own schema.
type Envelope struct {
	ID        string          `json:"id,omitempty"`
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     *ErrorPayload   `json:"error,omitempty"`
}

// DecodeError reports an inbound frame that failed structural validation.
// The connection that produced it stays open; the caller answers with an
// INVALID_FORMAT error envelope instead.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode envelope: %s: %v", e.Reason, e.Err)
	}
	return "decode envelope: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// HandlerError lets a handler surface a machine-readable error code to
// the peer. Any other error (or a panic) becomes INTERNAL_ERROR.
type HandlerError struct {
	Code    string
	Message string
	Details json.RawMessage
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Decode parses a raw inbound frame. It fails with *DecodeError if the
// payload is not valid JSON or the type field is missing or empty.
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &DecodeError{Reason: "malformed JSON", Err: err}
	}
	if env.Type == "" {
		return nil, &DecodeError{Reason: "missing type"}
	}
	return &env, nil
}

// Encode serializes an outbound envelope. It never fails for envelopes
// built through the constructors below.
func Encode(env *Envelope) ([]byte, error) {
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return raw, nil
}

// NewResponse builds a success envelope answering the request with the
// given correlation id. data is marshalled into the Data field.
func NewResponse(requestID, typ string, data any) (*Envelope, error) {
	raw, err := marshalData(data)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		ID:        requestID,
		Type:      typ,
		Timestamp: Now().UTC().Format(time.RFC3339),
		Data:      raw,
	}, nil
}

// NewPush builds a server-initiated envelope with no correlation id,
// used for welcomes and broadcasts.
func NewPush(typ string, data any) (*Envelope, error) {
	return NewResponse("", typ, data)
}

// NewErrorResponse builds an error envelope. requestID may be empty when
// the originating frame could not be parsed at all.
func NewErrorResponse(requestID, code, message string, details json.RawMessage) *Envelope {
	return &Envelope{
		ID:        requestID,
		Type:      TypeError,
		Timestamp: Now().UTC().Format(time.RFC3339),
		Error: &ErrorPayload{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// DecodeData unmarshals the envelope's Data into v (a pointer). A null
// or absent payload leaves v untouched, which zero-values empty request
// structs the way handlers expect.
func (e *Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

func marshalData(data any) (json.RawMessage, error) {
	if data == nil {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope data: %w", err)
	}
	return raw, nil
}
