package livedash

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Event names exchanged with clients.
const (
	EventUpdateValue    = "update-value"
	EventControlChanged = "control-changed"
	EventTreeUpdate     = "tree-update"
	EventReplayRequest  = "replay-request"
	EventReplayDone     = "replay-done"
	EventRefreshRequest = "refresh-request"
	EventJoinRoom       = "join-room"
	EventLeaveRoom      = "leave-room"
	EventTabChange      = "ui-change"
)

// Msg is a flow message: {payload, topic?, enabled?, ui_control?, ...}.
// Binary values are carried as []byte.
type Msg map[string]any

// Clone returns a shallow copy.
func (m Msg) Clone() Msg {
	if m == nil {
		return Msg{}
	}
	out := make(Msg, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Has reports whether key is present, even with a nil value.
func (m Msg) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// String returns the string value stored under key, or "".
func (m Msg) String(key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// envelope is the frame exchanged over the socket
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encodeEnvelope(event string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
		}
		raw = b
	}
	return json.Marshal(envelope{Event: event, Data: raw})
}

func decodeEnvelope(frame []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return envelope{}, fmt.Errorf("failed to parse frame: %w", err)
	}
	if env.Event == "" {
		return envelope{}, fmt.Errorf("failed to parse frame: missing event")
	}
	return env, nil
}

// ClientUpdate is a value change sent by a client.
type ClientUpdate struct {
	ID       string `json:"id" validate:"required"`
	Value    any    `json:"value"`
	SocketID string `json:"socketid"`
}

// TabChange is sent by a client when it switches tabs. Item indexes the
// menu root and Page the child of that item.
type TabChange struct {
	Item *int `json:"item" validate:"required,gte=0"`
	Page *int `json:"page" validate:"required,gte=0"`
}

// clientData wraps the raw data of a client event with utilities for
// binding and validation
type clientData struct {
	raw   Msg
	bytes []byte
}

func newClientData(raw json.RawMessage) (*clientData, error) {
	var m Msg
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to parse data: %w", err)
	}
	if m == nil {
		m = Msg{}
	}
	return &clientData{raw: m, bytes: raw}, nil
}

// Bind unmarshals the data into a struct
func (d *clientData) Bind(v any) error {
	if d.bytes == nil {
		var err error
		d.bytes, err = json.Marshal(d.raw)
		if err != nil {
			return fmt.Errorf("failed to marshal data: %w", err)
		}
	}
	return json.Unmarshal(d.bytes, v)
}

// BindAndValidate binds data to struct and validates it in one step
func (d *clientData) BindAndValidate(v any, validate *validator.Validate) error {
	if err := d.Bind(v); err != nil {
		return MultiError{NewFieldError("data", err)}
	}
	if err := validate.Struct(v); err != nil {
		return ValidationToMultiError(err)
	}
	return nil
}

// Raw returns the underlying map for direct access
func (d *clientData) Raw() Msg {
	return d.raw
}
