package job

import (
	"encoding/json"
	"testing"
	"time"
)

func TestFromTimeSaturatesBeforeEpoch(t *testing.T) {
	if got := FromTime(time.Unix(-10, 0)); got != 0 {
		t.Fatalf("FromTime(before epoch) = %d, want 0", got)
	}

	if got := FromTime(time.Unix(42, 0)); got != 42 {
		t.Fatalf("FromTime(42) = %d, want 42", got)
	}
}

func TestIDEqualityIgnoresOrderTime(t *testing.T) {
	a := NewID()
	b := a
	b.Ordered += 100

	if !a.Equal(b) {
		t.Fatal("ids with the same uuid should be equal")
	}

	if a.Key() != b.Key() {
		t.Fatal("ids with the same uuid should share a key")
	}

	if a.Equal(NewID()) {
		t.Fatal("fresh ids should differ")
	}
}

func TestParseID(t *testing.T) {
	id := NewID()

	parsed, err := ParseID(id.String())
	if err != nil {
		t.Fatalf("ParseID() error = %v", err)
	}

	if !parsed.Equal(id) {
		t.Fatalf("ParseID() = %v, want %v", parsed, id)
	}

	if _, err := ParseID("not-a-uuid"); err == nil {
		t.Fatal("ParseID(garbage) expected error")
	}
}

func TestStateJSON(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateOf(Running), `"Running"`},
		{StateOf(NotListed), `"NotListed"`},
		{CompletedWith(3), `{"Completed":3}`},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			data, err := json.Marshal(tt.state)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}

			if string(data) != tt.want {
				t.Fatalf("Marshal() = %s, want %s", data, tt.want)
			}

			var back State
			if err := json.Unmarshal(data, &back); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}

			if back != tt.state {
				t.Fatalf("Unmarshal() = %v, want %v", back, tt.state)
			}
		})
	}
}

func TestStateUnmarshalRejectsUnknown(t *testing.T) {
	var s State
	if err := json.Unmarshal([]byte(`"Exploded"`), &s); err == nil {
		t.Fatal("expected error for unknown state")
	}
}
