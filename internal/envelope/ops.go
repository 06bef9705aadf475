package envelope

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/colony-launcher/colony/internal/job"
)

// Group separates operations handled by the back-end from those addressed to
// the front-end.
type Group string

// Request groups.
const (
	PluginTask   Group = "PluginTaskRequest"
	FrontendTask Group = "FrontendTaskRequest"
)

// Op names one operation. Requests and their responses share the name.
type Op string

// Back-end operations.
const (
	OpAddServerAccess            Op = "AddServerAccess"
	OpEditServerAccess           Op = "EditServerAccess"
	OpEditServerConfiguration    Op = "EditServerConfiguration"
	OpConnectToServer            Op = "ConnectToServer"
	OpDisconnectFromServer       Op = "DisconnectFromServer"
	OpDisconnectFromAllServers   Op = "DisconnectFromAllServers"
	OpListDirectory              Op = "ListDirectory"
	OpMoveFile                   Op = "MoveFile"
	OpCopyFile                   Op = "CopyFile"
	OpDeleteFile                 Op = "DeleteFile"
	OpShowFileMetadata           Op = "ShowFileMetadata"
	OpDownloadData               Op = "DownloadData"
	OpRunSingularityJob          Op = "RunSingularityJob"
	OpShowSingularityJobLogs     Op = "ShowSingularityJobLogs"
	OpShowSingularityJobsRunning Op = "ShowSingularityJobsRunning"
	OpEnqueueMultipleJobs        Op = "EnqueueMultipleJobs"
	OpStopRunningJobs            Op = "StopRunningJobs"
	OpSendMessages               Op = "SendMessages"
	OpTerminate                  Op = "Terminate"
)

// Front-end operations.
const (
	OpRequestConfiguration    Op = "RequestConfiguration"
	OpHaveConfigurationStored Op = "HaveConfigurationStored"
	OpOpenChatChannel         Op = "OpenChatChannel"
	OpCloseChatChannel        Op = "CloseChatChannel"
)

// opError is the response tag for a generic failure.
const opError Op = "Error"

// Request is one operation with its raw parameters.
type Request struct {
	Group  Group
	Op     Op
	Params json.RawMessage
}

// NewRequestBody encodes params for op in group.
func NewRequestBody(group Group, op Op, params any) (Request, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Request{}, fmt.Errorf("encode %s params: %w", op, err)
	}

	return Request{Group: group, Op: op, Params: raw}, nil
}

// Decode unmarshals the parameters into v.
func (r Request) Decode(v any) error {
	params := r.Params
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}

	if err := json.Unmarshal(params, v); err != nil {
		return Errorf(ParsingError, "%s parameters: %v", r.Op, err)
	}

	return nil
}

// MarshalJSON encodes {"<group>":{"<op>":params}}.
func (r Request) MarshalJSON() ([]byte, error) {
	inner, err := encodeTagged(string(r.Op), r.Params)
	if err != nil {
		return nil, err
	}

	return encodeTagged(string(r.Group), inner)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Request) UnmarshalJSON(data []byte) error {
	group, inner, err := decodeTagged(data)
	if err != nil {
		return err
	}

	op, params, err := decodeTagged(inner)
	if err != nil {
		return err
	}

	*r = Request{Group: Group(group), Op: Op(op), Params: params}

	return nil
}

// Response is one operation result, or a generic failure when Err is set.
type Response struct {
	Op      Op
	Payload json.RawMessage
	Err     *Error
}

// Reply encodes payload as the response to op.
func Reply(op Op, payload any) (Response, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("encode %s response: %w", op, err)
	}

	return Response{Op: op, Payload: raw}, nil
}

// Failure returns a generic error response.
func Failure(err *Error) Response {
	return Response{Op: opError, Err: err}
}

// Decode unmarshals the payload into v. A failure response returns its Error.
func (r Response) Decode(v any) error {
	if r.Err != nil {
		return r.Err
	}

	return json.Unmarshal(r.Payload, v)
}

// MarshalJSON encodes {"<op>":payload} or {"Error":error}.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Err != nil {
		raw, err := json.Marshal(r.Err)
		if err != nil {
			return nil, err
		}

		return encodeTagged(string(opError), raw)
	}

	return encodeTagged(string(r.Op), r.Payload)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Response) UnmarshalJSON(data []byte) error {
	op, payload, err := decodeTagged(data)
	if err != nil {
		return err
	}

	if Op(op) == opError {
		var e Error
		if err := json.Unmarshal(payload, &e); err != nil {
			return err
		}

		*r = Response{Op: opError, Err: &e}

		return nil
	}

	*r = Response{Op: Op(op), Payload: payload}

	return nil
}

// --- Request parameters ---

// ConnectToServer names a remote server.
type ConnectToServer struct {
	ServerName string `json:"server_name"`
}

// ListDirectory lists one directory.
type ListDirectory struct {
	Directory string `json:"directory"`
}

// MoveFile and CopyFile move or copy Source to Target.
type MoveFile struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// CopyFile copies Source to Target.
type CopyFile struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// DeleteFile removes one file or directory tree.
type DeleteFile struct {
	FilePath string `json:"file_path"`
}

// ShowFileMetadata describes one path.
type ShowFileMetadata struct {
	FilePath string `json:"file_path"`
}

// DownloadAuth is HTTP basic credentials for a download.
type DownloadAuth struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// DownloadData fetches URL into the download directory.
type DownloadData struct {
	URL  string        `json:"url"`
	Auth *DownloadAuth `json:"auth"`
}

// SingularityJob describes a container run.
type SingularityJob struct {
	SingularityContainer string `json:"singularity_container"`
	Configuration        string `json:"configuration"`
	WorkingDirectory     string `json:"working_directory"`
}

// RunSingularityJob starts a container run.
type RunSingularityJob struct {
	Specification SingularityJob `json:"specification"`
}

// ShowSingularityJobLogs reads a job's output.
type ShowSingularityJobLogs struct {
	Job job.ID `json:"job"`
	// Offset skips lines already seen.
	Offset int `json:"offset,omitempty"`
}

// --- Response payloads ---

// FsKind distinguishes files from directories in a listing.
type FsKind string

// Listing entry kinds.
const (
	FsFile      FsKind = "File"
	FsDirectory FsKind = "Directory"
)

// FsElement is one listing entry, encoded as {"File":path} or {"Directory":path}.
type FsElement struct {
	Kind FsKind
	Path string
}

// MarshalJSON implements json.Marshaler.
func (f FsElement) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{string(f.Kind): f.Path})
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FsElement) UnmarshalJSON(data []byte) error {
	var tagged map[string]string
	if err := json.Unmarshal(data, &tagged); err != nil || len(tagged) != 1 {
		return fmt.Errorf("%w: filesystem element", ErrMalformed)
	}

	for k, v := range tagged {
		*f = FsElement{Kind: FsKind(k), Path: v}
	}

	return nil
}

// FileMetadata describes one path.
type FileMetadata struct {
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Mode     string    `json:"mode"`
	IsDir    bool      `json:"is_dir"`
	Modified time.Time `json:"modified"`
}

// ListDirectoryResponse answers ListDirectory.
type ListDirectoryResponse struct {
	Content Result[[]FsElement] `json:"content"`
}

// DestinationResponse answers MoveFile and CopyFile.
type DestinationResponse struct {
	Destination Result[string] `json:"destination"`
}

// SuccessResponse answers operations with no result value.
type SuccessResponse struct {
	Success Result[Unit] `json:"success"`
}

// ShowFileMetadataResponse answers ShowFileMetadata.
type ShowFileMetadataResponse struct {
	Meta Result[FileMetadata] `json:"meta"`
}

// DownloadDataResponse answers DownloadData.
type DownloadDataResponse struct {
	ID Result[uuid.UUID] `json:"id"`
}

// RunSingularityJobResponse answers RunSingularityJob.
type RunSingularityJobResponse struct {
	Success Result[job.ID] `json:"success"`
}

// ShowSingularityJobLogsResponse answers ShowSingularityJobLogs.
type ShowSingularityJobLogsResponse struct {
	Logs Result[[]string] `json:"logs"`
}

// RunningJob is one entry of ShowSingularityJobsRunning.
type RunningJob struct {
	ID    job.ID    `json:"id"`
	State job.State `json:"state"`
}

// ShowSingularityJobsRunningResponse answers ShowSingularityJobsRunning.
type ShowSingularityJobsRunningResponse struct {
	RunningJobs Result[[]RunningJob] `json:"running_jobs"`
}

// TerminateResponse answers Terminate.
type TerminateResponse struct{}
