package broker

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/colony-launcher/colony/internal/envelope"
	"github.com/colony-launcher/colony/internal/fsview"
	"github.com/colony-launcher/colony/internal/job"
	"github.com/colony-launcher/colony/internal/platform"
	"github.com/colony-launcher/colony/internal/singularity"
)

// Kind names a request.
type Kind string

// Request kinds.
const (
	CheckPlatform                Kind = "CheckPlatform"
	SetAppState                  Kind = "SetAppState"
	ReadPersistentState          Kind = "ReadPersistentState"
	UpdatePersistentState        Kind = "UpdatePersistentState"
	QueryContainer               Kind = "QueryContainer"
	RunContainer                 Kind = "RunContainer"
	RunContainerApp              Kind = "RunContainerApp"
	StartLocalWebServer          Kind = "StartLocalWebServer"
	InformLocalWebserverStarted  Kind = "InformLocalWebserverStarted"
	AcceptConfiguration          Kind = "AcceptConfiguration"
	ExportAnalysisIntoRepository Kind = "ExportAnalysisIntoRepository"
	SendJobInfo                  Kind = "SendJobInfo"
	SendJobOutput                Kind = "SendJobOutput"
	StopProcess                  Kind = "StopProcess"
	StopAllProcesses             Kind = "StopAllProcesses"
	StopProgram                  Kind = "StopProgram"
	InspectFilesystem            Kind = "InspectFilesystem"
	ListDirectory                Kind = "ListDirectory"
	MoveContent                  Kind = "MoveContent"
	DownloadContent              Kind = "DownloadContent"
)

// ResponseKind names a response.
type ResponseKind string

// Response kinds.
const (
	InstallStepCompleted    ResponseKind = "InstallStepCompleted"
	AppState                ResponseKind = "SetAppState"
	PersistentState         ResponseKind = "PersistentState"
	AddedNewContainer       ResponseKind = "AddedNewContainer"
	SingularityInfo         ResponseKind = "SingularityInfo"
	LocalWebServerStarted   ResponseKind = "LocalWebServerStarted"
	Configuration           ResponseKind = "Configuration"
	ExportedAnalysis        ResponseKind = "ExportedAnalysisIntoRepository"
	JobInfo                 ResponseKind = "JobInfo"
	JobOutput               ResponseKind = "JobOutput"
	StoppedProcess          ResponseKind = "StoppedProcess"
	StoppedAllProcesses     ResponseKind = "StoppedAllProcesses"
	ProgramStopping         ResponseKind = "ProgramStopping"
	FileMetadata            ResponseKind = "FileMetadata"
	DirectoryListing        ResponseKind = "ListDirectory"
	FileCreated             ResponseKind = "FileCreated"
	Failure                 ResponseKind = "Error"
)

// noOutputLine answers SendJobOutput for jobs without a buffer.
const noOutputLine = "No Output"

// Request is one message to the broker. ID correlates the responses it
// produces.
type Request struct {
	ID   string          `json:"id"`
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewRequest builds a request with a fresh id.
func NewRequest(kind Kind, data any) (Request, error) {
	req := Request{ID: uuid.NewString(), Kind: kind}

	if data == nil {
		return req, nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return Request{}, fmt.Errorf("encode %s request: %w", kind, err)
	}

	req.Data = raw

	return req, nil
}

// decode unmarshals the request data into v. Missing data decodes as {}.
func (r Request) decode(v any) *envelope.Error {
	data := r.Data
	if len(data) == 0 || string(data) == "null" {
		data = []byte("{}")
	}

	if err := json.Unmarshal(data, v); err != nil {
		return envelope.Errorf(envelope.ParsingError, "%s: %v", r.Kind, err)
	}

	return nil
}

// Response is one message from the broker. A request may produce several
// responses; each carries the id of the request that caused it.
type Response struct {
	RequestID string       `json:"request_id"`
	Kind      ResponseKind `json:"kind"`
	Data      any          `json:"data,omitempty"`
}

// Request payloads.
type (
	CheckPlatformData struct {
		// DistributionTar overrides the configured distribution archive.
		DistributionTar string `json:"distribution_tar,omitempty"`
	}

	// ContainerUpdate holds exactly one catalog change.
	ContainerUpdate struct {
		AddContainer          *string    `json:"AddContainer,omitempty"`
		RemoveContainer       *uuid.UUID `json:"RemoveContainer,omitempty"`
		RemoveContainerByPath *string    `json:"RemoveContainerByPath,omitempty"`
		// SetLastPickerDir clears the directory when set to "".
		SetLastPickerDir *string `json:"SetLastPickerDir,omitempty"`
	}

	QueryContainerData struct {
		Container string            `json:"container"`
		Query     singularity.Query `json:"query"`
	}

	RunContainerData struct {
		Workdir   string   `json:"workdir"`
		Container string   `json:"container"`
		App       string   `json:"app,omitempty"`
		Args      []string `json:"args"`
	}

	StartLocalWebServerData struct {
		// Followup is the front-end state to return to once a
		// configuration has been saved.
		Followup json.RawMessage `json:"followup"`
		Partner  string          `json:"partner"`
	}

	InformLocalWebserverStartedData struct {
		Port *int   `json:"port"`
		Job  job.ID `json:"job"`
	}

	ConfigurationData struct {
		Container     string `json:"container"`
		Configuration string `json:"configuration"`
	}

	ExportData struct {
		Job           job.ID `json:"job"`
		Workdir       string `json:"workdir"`
		Container     string `json:"container"`
		Configuration string `json:"configuration"`
	}

	JobData struct {
		Job job.ID `json:"job"`
	}

	JobOutputData struct {
		Job    job.ID `json:"job"`
		Offset int    `json:"offset"`
	}

	FilesystemData struct {
		Filesystem fsview.Filesystem `json:"filesystem"`
		Path       string            `json:"path"`
		// Pattern filters listings with a doublestar glob.
		Pattern string `json:"pattern,omitempty"`
	}

	MoveContentData struct {
		Source string `json:"source"`
		Target string `json:"target"`
	}

	DownloadContentData struct {
		URL    string              `json:"url"`
		Target string              `json:"target"`
		Auth   *fsview.Credentials `json:"auth,omitempty"`
	}
)

// Response payloads.
type (
	InstallStep struct {
		Job   job.ID         `json:"job"`
		State platform.State `json:"state"`
	}

	SingularityInfoData struct {
		Container string              `json:"container"`
		Answer    *singularity.Answer `json:"answer"`
	}

	WebServerData struct {
		Port *int   `json:"port"`
		Job  job.ID `json:"job"`
	}

	JobInfoData struct {
		Job   job.ID    `json:"job"`
		State job.State `json:"state"`
	}

	JobOutputLines struct {
		Job   job.ID   `json:"job"`
		Lines []string `json:"lines"`
	}

	FileCreatedData struct {
		Path *string `json:"path"`
	}

	ExportedData struct {
		Workdir *string `json:"workdir"`
	}

	ListingData struct {
		Filesystem fsview.Filesystem              `json:"filesystem"`
		Result     envelope.Result[fsview.Listing] `json:"result"`
	}
)
