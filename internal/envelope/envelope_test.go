package envelope

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/colony-launcher/colony/internal/job"
)

func TestTargetJSON(t *testing.T) {
	tests := []struct {
		name   string
		target Target
		want   string
	}{
		{"frontend", Target{Kind: Frontend}, `"Frontend"`},
		{"local", Target{Kind: LocalMachine}, `"LocalMachine"`},
		{"remote", Remote("hpc"), `{"RemoteMachine":"hpc"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.target)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}

			if string(got) != tt.want {
				t.Fatalf("Marshal() = %s, want %s", got, tt.want)
			}

			var back Target
			if err := json.Unmarshal(got, &back); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}

			if back != tt.target {
				t.Fatalf("Unmarshal() = %+v, want %+v", back, tt.target)
			}
		})
	}
}

func TestTargetUnknownKindDecodes(t *testing.T) {
	var target Target
	if err := json.Unmarshal([]byte(`"Mars"`), &target); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if target.Known() {
		t.Fatalf("Known() = true for %+v", target)
	}

	if target.String() != "Mars" {
		t.Fatalf("String() = %q", target.String())
	}
}

func TestRequestEnvelopeWireShape(t *testing.T) {
	id := uuid.MustParse("6f1c1a52-8a51-4a4e-9d1f-2b0c3f8a1e11")

	body, err := NewRequestBody(PluginTask, OpListDirectory, ListDirectory{Directory: "/data"})
	if err != nil {
		t.Fatalf("NewRequestBody() error = %v", err)
	}

	got, err := json.Marshal(NewRequest(Target{Kind: LocalMachine}, id, body))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	want := `{"version":"ApiV1","data":["LocalMachine","6f1c1a52-8a51-4a4e-9d1f-2b0c3f8a1e11",` +
		`{"PluginTaskRequest":{"ListDirectory":{"directory":"/data"}}}]}`
	if string(got) != want {
		t.Fatalf("Marshal() =\n%s\nwant\n%s", got, want)
	}

	var back RequestEnvelope
	if err := json.Unmarshal(got, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if back.RequestID != id || back.Body.Group != PluginTask || back.Body.Op != OpListDirectory {
		t.Fatalf("Unmarshal() = %+v", back)
	}

	var params ListDirectory
	if err := back.Body.Decode(&params); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if params.Directory != "/data" {
		t.Fatalf("Directory = %q, want /data", params.Directory)
	}
}

func TestRequestIDInnerObject(t *testing.T) {
	raw := `{"version":"ApiV1","data":[{"RemoteMachine":"hpc"},{"inner":"6f1c1a52-8a51-4a4e-9d1f-2b0c3f8a1e11"},` +
		`{"PluginTaskRequest":{"Terminate":{}}}]}`

	var env RequestEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if env.Target != Remote("hpc") {
		t.Fatalf("Target = %+v", env.Target)
	}

	if env.RequestID.String() != "6f1c1a52-8a51-4a4e-9d1f-2b0c3f8a1e11" {
		t.Fatalf("RequestID = %s", env.RequestID)
	}

	if env.Body.Op != OpTerminate {
		t.Fatalf("Op = %s", env.Body.Op)
	}
}

func TestEnvelopeDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"not an object", `[]`, ErrMalformed},
		{"bad version", `{"version":"ApiV2","data":["Frontend","6f1c1a52-8a51-4a4e-9d1f-2b0c3f8a1e11",{}]}`, ErrUnsupportedVersion},
		{"short data", `{"version":"ApiV1","data":["Frontend"]}`, ErrMalformed},
		{"bad id", `{"version":"ApiV1","data":["Frontend","nope",{"PluginTaskRequest":{"Terminate":{}}}]}`, ErrMalformed},
		{"two ops", `{"version":"ApiV1","data":["Frontend","6f1c1a52-8a51-4a4e-9d1f-2b0c3f8a1e11",{"A":{},"B":{}}]}`, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var env RequestEnvelope

			err := json.Unmarshal([]byte(tt.raw), &env)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Unmarshal() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestErrorJSON(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"not supported", ErrNotSupported(), `"NotSupported"`},
		{"parsing", Errorf(ParsingError, "line %d", 3), `{"ParsingError":"line 3"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.err)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}

			if string(got) != tt.want {
				t.Fatalf("Marshal() = %s, want %s", got, tt.want)
			}

			var back Error
			if err := json.Unmarshal(got, &back); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}

			if back != *tt.err {
				t.Fatalf("Unmarshal() = %+v, want %+v", back, *tt.err)
			}
		})
	}
}

func TestResponseShapes(t *testing.T) {
	id := job.ID{UUID: uuid.MustParse("6f1c1a52-8a51-4a4e-9d1f-2b0c3f8a1e11"), Ordered: 42}

	ok, err := Reply(OpRunSingularityJob, RunSingularityJobResponse{Success: Ok(id)})
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}

	got, err := json.Marshal(ok)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	want := `{"RunSingularityJob":{"success":{"Ok":{"uuid":"6f1c1a52-8a51-4a4e-9d1f-2b0c3f8a1e11","ordered":42}}}}`
	if string(got) != want {
		t.Fatalf("Marshal() = %s, want %s", got, want)
	}

	got, err = json.Marshal(Failure(ErrNotSupported()))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	if string(got) != `{"Error":"NotSupported"}` {
		t.Fatalf("Marshal() = %s", got)
	}

	var back Response
	if err := json.Unmarshal(got, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	var payload SuccessResponse
	if err := back.Decode(&payload); err == nil || back.Err.Kind != NotSupported {
		t.Fatalf("Decode() error = %v, Err = %+v", err, back.Err)
	}
}

func TestListingResultRoundTrip(t *testing.T) {
	resp := ListDirectoryResponse{Content: Ok([]FsElement{
		{Kind: FsDirectory, Path: "/data/a"},
		{Kind: FsFile, Path: "/data/b.txt"},
	})}

	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	want := `{"content":{"Ok":[{"Directory":"/data/a"},{"File":"/data/b.txt"}]}}`
	if string(raw) != want {
		t.Fatalf("Marshal() = %s, want %s", raw, want)
	}

	var back ListDirectoryResponse
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if len(back.Content.Value) != 2 || back.Content.Value[1].Path != "/data/b.txt" {
		t.Fatalf("Unmarshal() = %+v", back)
	}

	failed, err := json.Marshal(ListDirectoryResponse{Content: Fail[[]FsElement](Errorf(IncorrectParameters, "no such dir"))})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	if string(failed) != `{"content":{"Err":{"IncorrectParameters":"no such dir"}}}` {
		t.Fatalf("Marshal() = %s", failed)
	}
}

func TestRequestDecodeBadParams(t *testing.T) {
	req := Request{Group: PluginTask, Op: OpMoveFile, Params: json.RawMessage(`{"source":1}`)}

	var params MoveFile

	err := req.Decode(&params)

	var wireErr *Error
	if !errors.As(err, &wireErr) || wireErr.Kind != ParsingError {
		t.Fatalf("Decode() error = %v, want ParsingError", err)
	}
}
