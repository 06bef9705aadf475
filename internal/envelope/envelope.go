// Package envelope defines the versioned wire format of the task API.
//
// An envelope is encoded as
//
//	{"version":"ApiV1","data":[target, request_id, body]}
//
// where target is "Frontend", "LocalMachine" or {"RemoteMachine":"name"}.
// Request and response bodies are single-key objects naming the operation.
package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// VersionV1 is the only wire version.
const VersionV1 = "ApiV1"

// APIVersion returns the numeric major version for a wire version tag.
func APIVersion(version string) (int, bool) {
	if version == VersionV1 {
		return 1, true
	}

	return 0, false
}

var (
	// ErrUnsupportedVersion is returned for envelopes with an unknown version tag.
	ErrUnsupportedVersion = errors.New("unsupported envelope version")
	// ErrMalformed is returned when an envelope does not have the expected shape.
	ErrMalformed = errors.New("malformed envelope")
)

// TargetKind selects who handles an envelope.
type TargetKind string

// Target kinds.
const (
	Frontend      TargetKind = "Frontend"
	LocalMachine  TargetKind = "LocalMachine"
	RemoteMachine TargetKind = "RemoteMachine"
)

// Target addresses an envelope. Name is set for RemoteMachine only.
type Target struct {
	Kind TargetKind
	Name string
}

// Remote returns a RemoteMachine target.
func Remote(name string) Target {
	return Target{Kind: RemoteMachine, Name: name}
}

// String renders the target for logs and the journal.
func (t Target) String() string {
	if t.Kind == RemoteMachine {
		return fmt.Sprintf("RemoteMachine(%s)", t.Name)
	}

	return string(t.Kind)
}

// MarshalJSON implements json.Marshaler.
func (t Target) MarshalJSON() ([]byte, error) {
	switch t.Kind {
	case Frontend, LocalMachine:
		return json.Marshal(string(t.Kind))
	case RemoteMachine:
		return json.Marshal(map[string]string{string(RemoteMachine): t.Name})
	default:
		return nil, fmt.Errorf("unknown target kind %q", t.Kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler. Unknown kinds decode without
// error so the caller can reject them with a proper status.
func (t *Target) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*t = Target{Kind: TargetKind(name)}
		return nil
	}

	var tagged map[string]string
	if err := json.Unmarshal(data, &tagged); err != nil || len(tagged) != 1 {
		return fmt.Errorf("%w: target must be a string or a single-key object", ErrMalformed)
	}

	for k, v := range tagged {
		*t = Target{Kind: TargetKind(k), Name: v}
	}

	return nil
}

// Known reports whether the target kind is one of the defined kinds.
func (t Target) Known() bool {
	switch t.Kind {
	case Frontend, LocalMachine:
		return true
	case RemoteMachine:
		return t.Name != ""
	default:
		return false
	}
}

// Envelope carries one request or response body.
type Envelope[B any] struct {
	Version   string
	Target    Target
	RequestID uuid.UUID
	Body      B
}

// RequestEnvelope and ResponseEnvelope are the two directions on the wire.
type (
	RequestEnvelope  = Envelope[Request]
	ResponseEnvelope = Envelope[Response]
)

// NewRequest wraps body in a v1 envelope.
func NewRequest(target Target, id uuid.UUID, body Request) RequestEnvelope {
	return RequestEnvelope{Version: VersionV1, Target: target, RequestID: id, Body: body}
}

// NewResponse wraps body in a v1 envelope.
func NewResponse(target Target, id uuid.UUID, body Response) ResponseEnvelope {
	return ResponseEnvelope{Version: VersionV1, Target: target, RequestID: id, Body: body}
}

type wireEnvelope struct {
	Version string            `json:"version"`
	Data    []json.RawMessage `json:"data"`
}

// MarshalJSON implements json.Marshaler.
func (e Envelope[B]) MarshalJSON() ([]byte, error) {
	version := e.Version
	if version == "" {
		version = VersionV1
	}

	target, err := json.Marshal(e.Target)
	if err != nil {
		return nil, err
	}

	id, err := json.Marshal(e.RequestID.String())
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(e.Body)
	if err != nil {
		return nil, err
	}

	return json.Marshal(wireEnvelope{Version: version, Data: []json.RawMessage{target, id, body}})
}

// UnmarshalJSON implements json.Unmarshaler. The request id may be a bare
// UUID string or an object {"inner": "<uuid>"}.
func (e *Envelope[B]) UnmarshalJSON(data []byte) error {
	var wire wireEnvelope
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if _, ok := APIVersion(wire.Version); !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedVersion, wire.Version)
	}

	if len(wire.Data) != 3 {
		return fmt.Errorf("%w: data must hold target, request id and body", ErrMalformed)
	}

	var out Envelope[B]
	out.Version = wire.Version

	if err := json.Unmarshal(wire.Data[0], &out.Target); err != nil {
		return err
	}

	id, err := decodeRequestID(wire.Data[1])
	if err != nil {
		return err
	}

	out.RequestID = id

	if err := json.Unmarshal(wire.Data[2], &out.Body); err != nil {
		return fmt.Errorf("%w: body: %v", ErrMalformed, err)
	}

	*e = out

	return nil
}

func decodeRequestID(raw json.RawMessage) (uuid.UUID, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var wrapped struct {
			Inner string `json:"inner"`
		}

		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return uuid.Nil, fmt.Errorf("%w: request id", ErrMalformed)
		}

		s = wrapped.Inner
	}

	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: request id: %v", ErrMalformed, err)
	}

	return id, nil
}

// encodeTagged renders {"tag": payload}. A nil payload encodes as {}.
func encodeTagged(tag string, payload json.RawMessage) ([]byte, error) {
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	return json.Marshal(map[string]json.RawMessage{tag: payload})
}

// decodeTagged parses a single-key object.
func decodeTagged(data []byte) (string, json.RawMessage, error) {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return "", nil, fmt.Errorf("%w: body is null", ErrMalformed)
	}

	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		var bare string
		if strErr := json.Unmarshal(data, &bare); strErr == nil && bare != "" {
			return bare, nil, nil
		}

		return "", nil, err
	}

	if len(tagged) != 1 {
		return "", nil, fmt.Errorf("%w: expected exactly one operation, got %d", ErrMalformed, len(tagged))
	}

	for k, v := range tagged {
		return k, v, nil
	}

	return "", nil, nil
}
