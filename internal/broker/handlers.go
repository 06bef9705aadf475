package broker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/colony-launcher/colony/internal/catalog"
	"github.com/colony-launcher/colony/internal/envelope"
	"github.com/colony-launcher/colony/internal/fsview"
	"github.com/colony-launcher/colony/internal/helperserver"
	"github.com/colony-launcher/colony/internal/job"
	"github.com/colony-launcher/colony/internal/observability"
	"github.com/colony-launcher/colony/internal/platform"
	"github.com/colony-launcher/colony/internal/singularity"
	"github.com/colony-launcher/colony/internal/supervisor"
)

func (b *Broker) checkPlatform(ctx context.Context, req Request) {
	var data CheckPlatformData
	if !b.decode(ctx, req, &data) {
		return
	}

	opts := b.opts.Platform
	if data.DistributionTar != "" {
		opts.DistributionTar = data.DistributionTar
	}

	id := job.NewID()
	out := b.sup.Outputs().Attach(id, nil)

	ctx, cancel := context.WithCancel(ctx)
	b.tasks.start(id, cancel)
	b.emit(ctx, req, JobInfo, JobInfoData{Job: id, State: job.StateOf(job.Running)})

	go func() {
		defer cancel()

		err := b.checker.Run(ctx, platform.Plan(opts), out, func(state platform.State) {
			b.emit(ctx, req, InstallStepCompleted, InstallStep{Job: id, State: state})
		})

		code := 0
		if err != nil {
			code = 1
		}

		b.tasks.finish(id, code)
	}()
}

func (b *Broker) updatePersistentState(ctx context.Context, req Request) {
	var update ContainerUpdate
	if !b.decode(ctx, req, &update) {
		return
	}

	next := b.catalog.Clone()

	var (
		added   *catalog.Descriptor
		removed string
	)

	switch {
	case countSet(update) != 1:
		b.fail(ctx, req, envelope.Errorf(envelope.IncorrectParameters, "update must name exactly one change"))
		return
	case update.AddContainer != nil:
		d, created, err := next.AddContainer(*update.AddContainer)
		if err != nil {
			b.fail(ctx, req, envelope.Errorf(envelope.IncorrectParameters, "%v", err))
			return
		}

		if created {
			added = &d
		}
	case update.RemoveContainer != nil:
		if d, ok := next.ByID(*update.RemoveContainer); ok {
			removed = d.Path
		}

		next.RemoveContainer(*update.RemoveContainer)
	case update.RemoveContainerByPath != nil:
		if next.RemoveContainerByPath(*update.RemoveContainerByPath) {
			removed = *update.RemoveContainerByPath
		}
	case update.SetLastPickerDir != nil:
		dir := update.SetLastPickerDir
		if *dir == "" {
			dir = nil
		}

		next.SetLastPickerDir(dir)
	}

	if b.opts.CatalogPath != "" {
		if err := next.Save(b.opts.CatalogPath); err != nil {
			b.fail(ctx, req, envelope.Errorf(envelope.InternalFailure, "save catalog: %v", err))
			return
		}
	}

	b.catalog = next

	// Finished jobs of a removed container are no longer reachable from the
	// front end.
	if removed != "" {
		b.sup.ReleaseContainer(removed)
	}

	if added != nil {
		b.emit(ctx, req, AddedNewContainer, *added)
	}

	b.emit(ctx, req, PersistentState, b.catalog.Clone())
}

func countSet(u ContainerUpdate) int {
	n := 0

	for _, set := range []bool{
		u.AddContainer != nil,
		u.RemoveContainer != nil,
		u.RemoveContainerByPath != nil,
		u.SetLastPickerDir != nil,
	} {
		if set {
			n++
		}
	}

	return n
}

func (b *Broker) queryContainer(ctx context.Context, req Request) {
	var data QueryContainerData
	if !b.decode(ctx, req, &data) {
		return
	}

	go func() {
		info := SingularityInfoData{Container: data.Container}

		answer, err := b.querier.Query(ctx, data.Container, data.Query)
		if err != nil {
			b.logger.Warn("container query failed",
				slog.String("container", data.Container),
				slog.String("query", string(data.Query.Kind)),
				slog.String("error", err.Error()),
			)
		} else {
			info.Answer = &answer
			b.offerMetadata(data.Container, answer)
		}

		b.emit(ctx, req, SingularityInfo, info)
	}()
}

type containerMetadata struct {
	container string
	answer    singularity.Answer
}

// offerMetadata hands a query answer to the loop. It never blocks: a full
// queue or a stopped loop drops the answer.
func (b *Broker) offerMetadata(container string, answer singularity.Answer) {
	if answer.Failed {
		return
	}

	select {
	case b.metadata <- containerMetadata{container: container, answer: answer}:
	case <-b.stopped:
	default:
		b.logger.Debug("container metadata dropped", slog.String("container", container))
	}
}

// cacheMetadata stores app lists and labels on the container's descriptor.
func (b *Broker) cacheMetadata(m containerMetadata) {
	var (
		title  *string
		labels map[string]string
		apps   []string
	)

	switch m.answer.Kind {
	case singularity.AppList:
		apps = m.answer.Apps
		if apps == nil {
			apps = []string{}
		}
	case singularity.RunLabels:
		parsed, err := singularity.Labels(m.answer.Text)
		if err != nil {
			b.logger.Debug("container labels not cached", slog.String("container", m.container), slog.String("error", err.Error()))
			return
		}

		labels = parsed
		if t, ok := singularity.Title(parsed); ok {
			title = &t
		}
	default:
		return
	}

	next := b.catalog.Clone()
	if !next.UpdateMetadata(m.container, title, labels, apps) {
		return
	}

	if b.opts.CatalogPath != "" {
		if err := next.Save(b.opts.CatalogPath); err != nil {
			b.logger.Warn("save container metadata", slog.String("container", m.container), slog.String("error", err.Error()))
			return
		}
	}

	b.catalog = next
}

func (b *Broker) runContainer(ctx context.Context, req Request) {
	var data RunContainerData
	if !b.decode(ctx, req, &data) {
		return
	}

	var cmd supervisor.Command

	switch {
	case req.Kind == RunContainerApp && data.App == "":
		b.fail(ctx, req, envelope.Errorf(envelope.IncorrectParameters, "app name is empty"))
		return
	case req.Kind == RunContainerApp:
		cmd = b.opts.Host.RunApp(data.Workdir, data.Container, data.App, data.Args)
	default:
		cmd = b.opts.Host.Run(data.Workdir, data.Container, data.Args)
	}

	id, err := b.sup.Spawn(ctx, cmd)
	if err != nil {
		b.fail(ctx, req, envelope.Errorf(envelope.InternalFailure, "%v", err))
		return
	}

	b.emit(ctx, req, JobInfo, JobInfoData{Job: id, State: job.StateOf(job.Running)})
}

func (b *Broker) startLocalWebServer(ctx context.Context, req Request) {
	var data StartLocalWebServerData
	if !b.decode(ctx, req, &data) {
		return
	}

	id := job.NewID()
	b.sup.Outputs().Attach(id, nil)

	opts := b.opts.Helper
	opts.Logger = b.opts.Logger
	opts.Client = b.client
	opts.OnConfiguration = func(path string) {
		b.resubmit(ctx, req, SetAppState, data.Followup)
		b.resubmit(ctx, req, AcceptConfiguration, ConfigurationData{Container: data.Partner, Configuration: path})
		b.resubmit(ctx, req, StopProcess, JobData{Job: id})
	}

	srv := helperserver.New(opts)

	b.tasks.start(id, func() {
		go func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), loopbackTimeout)
			defer cancel()

			if err := srv.Stop(stopCtx); err != nil {
				b.logger.Warn("stop helper server", slog.String("error", err.Error()))
			}
		}()
	})

	go func() {
		inform := InformLocalWebserverStartedData{Job: id}

		port, err := srv.Start(ctx)
		if err != nil {
			b.logger.Error("helper server failed to start", slog.String("error", err.Error()))
			b.tasks.finish(id, 1)
		} else {
			inform.Port = &port

			go func() {
				<-srv.Done()
				b.tasks.finish(id, 0)
			}()
		}

		b.resubmit(ctx, req, InformLocalWebserverStarted, inform)
	}()
}

func (b *Broker) exportAnalysis(ctx context.Context, req Request) {
	var data ExportData
	if !b.decode(ctx, req, &data) {
		return
	}

	id := data.Job
	b.tasks.start(id, nil)
	b.emit(ctx, req, JobInfo, JobInfoData{Job: id, State: job.StateOf(job.Running)})

	go func() {
		result := ExportedData{}
		code := 0

		if err := exportAnalysis(b.opts.Host, data.Workdir, data.Container, data.Configuration); err != nil {
			b.logger.Warn("export failed", slog.String("workdir", data.Workdir), slog.String("error", err.Error()))
			code = 1
		} else {
			result.Workdir = &data.Workdir
		}

		b.tasks.finish(id, code)
		b.emit(ctx, req, JobInfo, JobInfoData{Job: id, State: job.CompletedWith(code)})
		b.emit(ctx, req, ExportedAnalysis, result)
	}()
}

func (b *Broker) sendJobOutput(ctx context.Context, req Request) {
	var data JobOutputData
	if !b.decode(ctx, req, &data) {
		return
	}

	lines, err := b.sup.ReadLines(data.Job, data.Offset)
	if err != nil {
		lines = []string{noOutputLine}
	}

	b.emit(ctx, req, JobOutput, JobOutputLines{Job: data.Job, Lines: lines})
}

func (b *Broker) stopProcess(ctx context.Context, req Request) {
	var data JobData
	if !b.decode(ctx, req, &data) {
		return
	}

	killed := b.sup.Kill(data.Job) == nil
	isTask := b.tasks.stop(data.Job)

	if !killed && !isTask {
		b.logger.Debug("stop for unknown job", slog.String(observability.JobKey, data.Job.String()))
	}

	go func() {
		if killed {
			b.awaitKilled(ctx, []job.ID{data.Job}, killGrace)
		}

		b.emit(ctx, req, StoppedProcess, JobData{Job: data.Job})
	}()
}

func (b *Broker) stopAllProcesses(ctx context.Context, req Request) {
	var running []job.ID

	for _, s := range b.sup.Jobs() {
		if !s.State.IsTerminal() {
			running = append(running, s.ID)
		}
	}

	n := b.sup.KillAll()
	b.tasks.stopAll()
	b.logger.Info("stopped all processes", slog.Int("killed", n))

	go func() {
		b.terminateLoopback(ctx)
		b.awaitKilled(ctx, running, killGrace)
		b.emit(ctx, req, StoppedAllProcesses, nil)
	}()
}

// stopProgram shuts the subsystem down, giving it at most stopProgramGrace.
func (b *Broker) stopProgram(ctx context.Context, req Request) {
	if cmd := b.opts.StopCommand; cmd != nil {
		id, err := b.sup.Spawn(ctx, *cmd)
		if err != nil {
			b.logger.Warn("subsystem shutdown failed", slog.String("error", err.Error()))
		} else {
			b.pollUntilExit(ctx, id, stopProgramGrace)
		}
	}

	b.emit(ctx, req, ProgramStopping, nil)
}

func (b *Broker) pollUntilExit(ctx context.Context, id job.ID, grace time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(stopProgramPoll), 1)

	for {
		if b.sup.PollState(id).IsTerminal() {
			return
		}

		if err := limiter.Wait(ctx); err != nil {
			b.logger.Warn("subsystem did not exit in time", slog.String(observability.JobKey, id.String()))
			return
		}
	}
}

func (b *Broker) inspectFilesystem(ctx context.Context, req Request) {
	var data FilesystemData
	if !b.decode(ctx, req, &data) {
		return
	}

	path := data.Path

	switch data.Filesystem.Kind {
	case fsview.Remote:
		b.fail(ctx, req, envelope.ErrNotSupported())
		return
	case fsview.Subsystem:
		path = b.opts.Host.HostPath(path)
	}

	meta, err := fsview.Stat(path)
	if err != nil {
		b.fail(ctx, req, envelope.Errorf(envelope.IncorrectParameters, "%v", err))
		return
	}

	b.emit(ctx, req, FileMetadata, meta)
}

func (b *Broker) listDirectory(ctx context.Context, req Request) {
	var data FilesystemData
	if !b.decode(ctx, req, &data) {
		return
	}

	go func() {
		listing, err := b.lister.List(ctx, data.Filesystem, data.Path)
		if err == nil && data.Pattern != "" {
			listing, err = fsview.Filter(listing, data.Pattern)
		}

		result := envelope.Ok(listing)
		if err != nil {
			result = envelope.Fail[fsview.Listing](listingError(err))
		}

		b.emit(ctx, req, DirectoryListing, ListingData{Filesystem: data.Filesystem, Result: result})
	}()
}

func listingError(err error) *envelope.Error {
	switch {
	case errors.Is(err, fsview.ErrRemoteUnsupported):
		return envelope.ErrNotSupported()
	case errors.Is(err, fsview.ErrListingMismatch):
		return envelope.Errorf(envelope.ParsingError, "%v", err)
	case errors.Is(err, fsview.ErrUnreadable):
		return envelope.Errorf(envelope.IncorrectParameters, "%v", err)
	default:
		return envelope.Errorf(envelope.InternalFailure, "%v", err)
	}
}

func (b *Broker) moveContent(ctx context.Context, req Request) {
	var data MoveContentData
	if !b.decode(ctx, req, &data) {
		return
	}

	go func() {
		var created FileCreatedData

		path, err := fsview.Move(data.Source, data.Target)
		if err != nil {
			b.logger.Warn("move failed", slog.String("source", data.Source), slog.String("error", err.Error()))
		} else {
			created.Path = &path
		}

		b.emit(ctx, req, FileCreated, created)
	}()
}

func (b *Broker) downloadContent(ctx context.Context, req Request) {
	var data DownloadContentData
	if !b.decode(ctx, req, &data) {
		return
	}

	go func() {
		var created FileCreatedData

		if err := fsview.Download(ctx, b.client, data.URL, data.Target, data.Auth); err != nil {
			b.logger.Warn("download failed", slog.String("url", data.URL), slog.String("error", err.Error()))
		} else {
			created.Path = &data.Target
		}

		b.emit(ctx, req, FileCreated, created)
	}()
}
