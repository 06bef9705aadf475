package apiserver

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/colony-launcher/colony/internal/envelope"
	"github.com/colony-launcher/colony/internal/fsview"
	"github.com/colony-launcher/colony/internal/job"
	"github.com/colony-launcher/colony/internal/journal"
	"github.com/colony-launcher/colony/internal/supervisor"
)

// handler runs one operation and returns its response body.
type handler func(ctx context.Context, env envelope.RequestEnvelope) envelope.Response

func (s *Server) handlers() map[envelope.Op]handler {
	return map[envelope.Op]handler{
		envelope.OpListDirectory:              s.listDirectory,
		envelope.OpMoveFile:                   s.moveFile,
		envelope.OpCopyFile:                   s.copyFile,
		envelope.OpDeleteFile:                 s.deleteFile,
		envelope.OpShowFileMetadata:           s.showFileMetadata,
		envelope.OpDownloadData:               s.downloadData,
		envelope.OpRunSingularityJob:          s.runSingularityJob,
		envelope.OpShowSingularityJobLogs:     s.showJobLogs,
		envelope.OpShowSingularityJobsRunning: s.showJobsRunning,
		envelope.OpStopRunningJobs:            s.stopRunningJobs,
		envelope.OpTerminate:                  s.terminateOp,
	}
}

// remoteOps need a remote server connection.
var remoteOps = map[envelope.Op]bool{
	envelope.OpAddServerAccess:          true,
	envelope.OpEditServerAccess:         true,
	envelope.OpEditServerConfiguration:  true,
	envelope.OpConnectToServer:          true,
	envelope.OpDisconnectFromServer:     true,
	envelope.OpDisconnectFromAllServers: true,
	envelope.OpEnqueueMultipleJobs:      true,
	envelope.OpSendMessages:             true,
}

func (s *Server) dispatch(ctx context.Context, env envelope.RequestEnvelope) envelope.Response {
	// Front-end operations are answered by the front end itself.
	if env.Target.Kind == envelope.Frontend {
		return envelope.Failure(envelope.ErrNotSupported())
	}

	if env.Body.Group != envelope.PluginTask {
		return envelope.Failure(envelope.Errorf(envelope.ClientServerInconsistency,
			"%s is not a back-end operation", env.Body.Op))
	}

	if remoteOps[env.Body.Op] {
		return envelope.Failure(envelope.ErrNotSupported())
	}

	h, ok := s.handlers()[env.Body.Op]
	if !ok {
		return envelope.Failure(envelope.Errorf(envelope.ClientServerInconsistency,
			"unknown operation %q", env.Body.Op))
	}

	return h(ctx, env)
}

// reply encodes payload for op; encoding failures become InternalFailure.
func reply(op envelope.Op, payload any) envelope.Response {
	resp, err := envelope.Reply(op, payload)
	if err != nil {
		return envelope.Failure(envelope.Errorf(envelope.InternalFailure, "%v", err))
	}

	return resp
}

// decodeParams returns a failure response when params do not decode.
func decodeParams(env envelope.RequestEnvelope, v any) *envelope.Response {
	if err := env.Body.Decode(v); err != nil {
		var wireErr *envelope.Error
		if !errors.As(err, &wireErr) {
			wireErr = envelope.Errorf(envelope.ParsingError, "%v", err)
		}

		resp := envelope.Failure(wireErr)

		return &resp
	}

	return nil
}

// fsError classifies a filesystem failure: a missing or invalid path is the
// caller's mistake, anything else is ours.
func fsError(err error) *envelope.Error {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrExist) {
		return envelope.Errorf(envelope.IncorrectParameters, "%v", err)
	}

	return envelope.Errorf(envelope.InternalFailure, "%v", err)
}

func (s *Server) listDirectory(_ context.Context, env envelope.RequestEnvelope) envelope.Response {
	var params envelope.ListDirectory
	if resp := decodeParams(env, &params); resp != nil {
		return *resp
	}

	listing, err := fsview.ListLocal(params.Directory)
	if err != nil {
		return reply(envelope.OpListDirectory, envelope.ListDirectoryResponse{
			Content: envelope.Fail[[]envelope.FsElement](envelope.Errorf(envelope.InternalFailure, "%v", err)),
		})
	}

	dirs, files := listing.Paths()
	elements := make([]envelope.FsElement, 0, len(dirs)+len(files))

	for _, d := range dirs {
		elements = append(elements, envelope.FsElement{Kind: envelope.FsDirectory, Path: d})
	}

	for _, f := range files {
		elements = append(elements, envelope.FsElement{Kind: envelope.FsFile, Path: f})
	}

	return reply(envelope.OpListDirectory, envelope.ListDirectoryResponse{Content: envelope.Ok(elements)})
}

func (s *Server) moveFile(_ context.Context, env envelope.RequestEnvelope) envelope.Response {
	var params envelope.MoveFile
	if resp := decodeParams(env, &params); resp != nil {
		return *resp
	}

	dst, err := fsview.Move(params.Source, params.Target)
	if err != nil {
		return reply(envelope.OpMoveFile, envelope.DestinationResponse{Destination: envelope.Fail[string](fsError(err))})
	}

	return reply(envelope.OpMoveFile, envelope.DestinationResponse{Destination: envelope.Ok(dst)})
}

func (s *Server) copyFile(_ context.Context, env envelope.RequestEnvelope) envelope.Response {
	var params envelope.CopyFile
	if resp := decodeParams(env, &params); resp != nil {
		return *resp
	}

	dst, err := fsview.Copy(params.Source, params.Target)
	if err != nil {
		return reply(envelope.OpCopyFile, envelope.DestinationResponse{Destination: envelope.Fail[string](fsError(err))})
	}

	return reply(envelope.OpCopyFile, envelope.DestinationResponse{Destination: envelope.Ok(dst)})
}

func (s *Server) deleteFile(_ context.Context, env envelope.RequestEnvelope) envelope.Response {
	var params envelope.DeleteFile
	if resp := decodeParams(env, &params); resp != nil {
		return *resp
	}

	if err := fsview.Delete(params.FilePath); err != nil {
		return reply(envelope.OpDeleteFile, envelope.SuccessResponse{Success: envelope.Fail[envelope.Unit](fsError(err))})
	}

	return reply(envelope.OpDeleteFile, envelope.SuccessResponse{Success: envelope.Ok(envelope.Unit{})})
}

func (s *Server) showFileMetadata(_ context.Context, env envelope.RequestEnvelope) envelope.Response {
	var params envelope.ShowFileMetadata
	if resp := decodeParams(env, &params); resp != nil {
		return *resp
	}

	meta, err := fsview.Stat(params.FilePath)
	if err != nil {
		return reply(envelope.OpShowFileMetadata, envelope.ShowFileMetadataResponse{
			Meta: envelope.Fail[envelope.FileMetadata](fsError(err)),
		})
	}

	return reply(envelope.OpShowFileMetadata, envelope.ShowFileMetadataResponse{Meta: envelope.Ok(envelope.FileMetadata{
		Path:     meta.Path,
		Size:     meta.Size,
		Mode:     meta.Mode.String(),
		IsDir:    meta.IsDir,
		Modified: meta.Modified,
	})})
}

// downloadData answers with the download id at once and fetches in the
// background into DownloadDir/<id>. The outcome is appended to the journal.
func (s *Server) downloadData(_ context.Context, env envelope.RequestEnvelope) envelope.Response {
	var params envelope.DownloadData
	if resp := decodeParams(env, &params); resp != nil {
		return *resp
	}

	fail := func(err *envelope.Error) envelope.Response {
		return reply(envelope.OpDownloadData, envelope.DownloadDataResponse{ID: envelope.Fail[uuid.UUID](err)})
	}

	if params.URL == "" {
		return fail(envelope.Errorf(envelope.IncorrectParameters, "url is required"))
	}

	if s.opts.DownloadDir == "" {
		return fail(envelope.Errorf(envelope.InternalFailure, "no download directory configured"))
	}

	// #nosec G301 -- download directory follows the user's umask
	if err := os.MkdirAll(s.opts.DownloadDir, 0o755); err != nil {
		return fail(envelope.Errorf(envelope.InternalFailure, "%v", err))
	}

	var auth *fsview.Credentials
	if params.Auth != nil {
		auth = &fsview.Credentials{Username: params.Auth.Username, Password: params.Auth.Password}
	}

	id := uuid.New()
	dst := filepath.Join(s.opts.DownloadDir, id.String())

	go func() {
		err := fsview.Download(s.baseCtx, s.client, params.URL, dst, auth)

		line := "download complete: " + dst
		if err != nil {
			line = "download failed: " + err.Error()
			s.logger.Warn("download failed", slog.String("url", params.URL), slog.String("error", err.Error()))
		} else {
			s.logger.Info("download complete", slog.String("path", dst))
		}

		s.appendEvent(env.RequestID, line)
	}()

	return reply(envelope.OpDownloadData, envelope.DownloadDataResponse{ID: envelope.Ok(id)})
}

func (s *Server) runSingularityJob(ctx context.Context, env envelope.RequestEnvelope) envelope.Response {
	var params envelope.RunSingularityJob
	if resp := decodeParams(env, &params); resp != nil {
		return *resp
	}

	fail := func(err *envelope.Error) envelope.Response {
		return reply(envelope.OpRunSingularityJob, envelope.RunSingularityJobResponse{Success: envelope.Fail[job.ID](err)})
	}

	spec := params.Specification
	if spec.SingularityContainer == "" || spec.WorkingDirectory == "" {
		return fail(envelope.Errorf(envelope.IncorrectParameters, "container and working directory are required"))
	}

	var args []string
	if spec.Configuration != "" {
		args = append(args, s.opts.Host.Path(spec.Configuration))
	}

	cmd := s.opts.Host.Run(spec.WorkingDirectory, spec.SingularityContainer, args)

	// The job outlives this request.
	id, err := s.sup.Spawn(s.baseCtx, cmd)
	if err != nil {
		return fail(envelope.Errorf(envelope.InternalFailure, "%v", err))
	}

	if s.opts.Journal != nil {
		containerID := uuid.NewSHA1(uuid.NameSpaceURL, []byte(spec.SingularityContainer))
		if err := s.opts.Journal.RecordContainer(ctx, containerID, spec.SingularityContainer, []string{}); err != nil {
			s.logger.Warn("journal container", slog.String("error", err.Error()))
		}
	}

	go s.recordExit(env.RequestID, id)

	return reply(envelope.OpRunSingularityJob, envelope.RunSingularityJobResponse{Success: envelope.Ok(id)})
}

// recordExit appends the job's final state to the journal once it exits.
func (s *Server) recordExit(requestID uuid.UUID, id job.ID) {
	state, err := s.sup.Wait(s.baseCtx, id)
	if err != nil {
		return
	}

	s.appendEvent(requestID, "job "+id.String()+" "+state.String())
}

func (s *Server) appendEvent(requestID uuid.UUID, line string) {
	if s.opts.Journal == nil {
		return
	}

	if err := s.opts.Journal.AppendLog(context.WithoutCancel(s.baseCtx), requestID, journal.Event, line, nil); err != nil {
		s.logger.Warn("journal log", slog.String("error", err.Error()))
	}
}

func (s *Server) showJobLogs(_ context.Context, env envelope.RequestEnvelope) envelope.Response {
	var params envelope.ShowSingularityJobLogs
	if resp := decodeParams(env, &params); resp != nil {
		return *resp
	}

	lines, err := s.sup.ReadLines(params.Job, params.Offset)
	if err != nil {
		kind := envelope.InternalFailure
		if errors.Is(err, supervisor.ErrUnknownJob) {
			kind = envelope.IncorrectParameters
		}

		return reply(envelope.OpShowSingularityJobLogs, envelope.ShowSingularityJobLogsResponse{
			Logs: envelope.Fail[[]string](envelope.Errorf(kind, "%v", err)),
		})
	}

	if lines == nil {
		lines = []string{}
	}

	return reply(envelope.OpShowSingularityJobLogs, envelope.ShowSingularityJobLogsResponse{Logs: envelope.Ok(lines)})
}

func (s *Server) showJobsRunning(context.Context, envelope.RequestEnvelope) envelope.Response {
	running := []envelope.RunningJob{}

	for _, j := range s.sup.Jobs() {
		if j.State.IsTerminal() {
			continue
		}

		running = append(running, envelope.RunningJob{ID: j.ID, State: j.State})
	}

	return reply(envelope.OpShowSingularityJobsRunning, envelope.ShowSingularityJobsRunningResponse{
		RunningJobs: envelope.Ok(running),
	})
}

func (s *Server) stopRunningJobs(context.Context, envelope.RequestEnvelope) envelope.Response {
	killed := s.sup.KillAll()
	s.logger.Info("stopped running jobs", slog.Int("killed", killed))

	return reply(envelope.OpStopRunningJobs, envelope.SuccessResponse{Success: envelope.Ok(envelope.Unit{})})
}

// terminateOp only answers; API shuts the server down after the response
// has been written.
func (s *Server) terminateOp(context.Context, envelope.RequestEnvelope) envelope.Response {
	return reply(envelope.OpTerminate, envelope.TerminateResponse{})
}
