// Package job defines the identity and lifecycle state of supervised work.
package job

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// UnixTime is whole seconds since 1970-01-01 UTC.
type UnixTime uint64

// Now returns the current time, saturating to zero before the epoch.
func Now() UnixTime {
	return FromTime(time.Now())
}

// FromTime converts t to UnixTime, saturating to zero before the epoch.
func FromTime(t time.Time) UnixTime {
	secs := t.Unix()
	if secs < 0 {
		return 0
	}

	return UnixTime(secs)
}

// Time returns the UTC time for u.
func (u UnixTime) Time() time.Time {
	return time.Unix(int64(u), 0).UTC() //nolint:gosec // seconds fit in int64 until year 292277026596
}

// ID identifies one spawned unit of work. Equality uses UUID only; Ordered is
// informational and used for chronological display.
type ID struct {
	UUID    uuid.UUID `json:"uuid"`
	Ordered UnixTime  `json:"ordered"`
}

// NewID creates a fresh random job id stamped with the current time.
func NewID() ID {
	return ID{UUID: uuid.New(), Ordered: Now()}
}

// ParseID parses the textual UUID form. Ordered is left zero.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ID{}, fmt.Errorf("parse job id: %w", err)
	}

	return ID{UUID: u}, nil
}

// Key returns the map key for the id. Store lookups must go through Key so
// ids that differ only in Ordered resolve to the same job.
func (id ID) Key() uuid.UUID {
	return id.UUID
}

// Equal reports whether two ids name the same job.
func (id ID) Equal(other ID) bool {
	return id.UUID == other.UUID
}

// String returns the UUID text.
func (id ID) String() string {
	return id.UUID.String()
}

// Kind enumerates job states.
type Kind string

// Job state kinds.
const (
	Scheduled Kind = "Scheduled"
	Submitted Kind = "Submitted"
	Running   Kind = "Running"
	Completed Kind = "Completed"
	Unknown   Kind = "Unknown"
	NotListed Kind = "NotListed"
)

// State is a job state. ExitCode is meaningful only for Completed.
type State struct {
	Kind     Kind
	ExitCode int
}

// CompletedWith returns a Completed state with the given exit code.
func CompletedWith(code int) State {
	return State{Kind: Completed, ExitCode: code}
}

// StateOf returns a state without an exit code.
func StateOf(kind Kind) State {
	return State{Kind: kind}
}

// IsTerminal reports whether the state can no longer change.
func (s State) IsTerminal() bool {
	return s.Kind == Completed || s.Kind == NotListed
}

func (s State) String() string {
	if s.Kind == Completed {
		return "Completed(" + strconv.Itoa(s.ExitCode) + ")"
	}

	return string(s.Kind)
}

// MarshalJSON encodes Completed as {"Completed":code} and other kinds as a bare string.
func (s State) MarshalJSON() ([]byte, error) {
	if s.Kind == Completed {
		return json.Marshal(map[string]int{string(Completed): s.ExitCode})
	}

	return json.Marshal(string(s.Kind))
}

// UnmarshalJSON accepts both encodings produced by MarshalJSON.
func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		switch Kind(name) {
		case Scheduled, Submitted, Running, Unknown, NotListed:
			*s = State{Kind: Kind(name)}
			return nil
		default:
			return fmt.Errorf("unknown job state %q", name)
		}
	}

	var completed map[string]int
	if err := json.Unmarshal(data, &completed); err != nil {
		return fmt.Errorf("decode job state: %w", err)
	}

	code, ok := completed[string(Completed)]
	if !ok || len(completed) != 1 {
		return fmt.Errorf("decode job state: unexpected object %s", string(data))
	}

	*s = CompletedWith(code)

	return nil
}
