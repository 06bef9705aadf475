// Package broker is the launcher's single-consumer event loop.
//
// The front end submits Requests and reads Responses from one shared channel.
// The loop owns the catalog, the supervisor, and every helper server; work
// that blocks on I/O runs in goroutines that report back through the shared
// stores or by submitting follow-up requests.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

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

const (
	queueSize = 64
	// killGrace bounds how long stop requests wait for killed children.
	killGrace = 2 * time.Second
	// stopProgramGrace bounds the wait for the subsystem to shut down.
	stopProgramGrace = time.Second
	stopProgramPoll  = 100 * time.Millisecond
	loopbackTimeout  = 2 * time.Second
)

// ErrStopped is returned by Submit once the loop has exited.
var ErrStopped = errors.New("broker stopped")

// Options configures a Broker.
type Options struct {
	Supervisor *supervisor.Supervisor
	Catalog    *catalog.Catalog
	// CatalogPath is rewritten after every catalog update. Empty keeps the
	// catalog in memory.
	CatalogPath string

	Host singularity.Host
	// Exec runs one-shot commands; nil uses supervisor.Run.
	Exec func(context.Context, supervisor.Command) (supervisor.Result, error)

	Platform platform.PlanOptions
	// Helper configures helper servers started by StartLocalWebServer.
	Helper helperserver.Options
	// StopCommand shuts the subsystem down on StopProgram.
	StopCommand *supervisor.Command

	Client *http.Client
	Logger *slog.Logger
}

// Broker dispatches requests. Create it with New and drive it with Run.
type Broker struct {
	opts    Options
	logger  *slog.Logger
	sup     *supervisor.Supervisor
	querier singularity.Querier
	lister  fsview.Lister
	checker *platform.Checker
	client  *http.Client

	requests  chan Request
	responses chan Response
	// metadata carries container query results back to the loop, which
	// caches them in the catalog.
	metadata chan containerMetadata
	// stopped is closed as soon as the loop stops consuming requests; done
	// follows once cleanup has finished.
	stopped chan struct{}
	done    chan struct{}

	// catalog is owned by the loop.
	catalog *catalog.Catalog
	tasks   *taskStore
}

// New returns a broker that is not yet running.
func New(opts Options) *Broker {
	logger := observability.Component(opts.Logger, "broker")

	sup := opts.Supervisor
	if sup == nil {
		sup = supervisor.New(supervisor.Options{Logger: opts.Logger})
	}

	cat := opts.Catalog
	if cat == nil {
		cat = catalog.New()
	}

	client := opts.Client
	if client == nil {
		client = observability.HTTPClient(0)
	}

	querier := singularity.Querier{Host: opts.Host, Exec: opts.Exec}

	if opts.Platform.Exec == nil {
		opts.Platform.Exec = opts.Exec
	}

	opts.Platform.Querier = querier

	return &Broker{
		opts:      opts,
		logger:    logger,
		sup:       sup,
		querier:   querier,
		lister:    fsview.Lister{Host: opts.Host, Exec: opts.Exec},
		checker:   platform.NewChecker(sup, opts.Logger),
		client:    client,
		requests:  make(chan Request, queueSize),
		responses: make(chan Response, queueSize),
		metadata:  make(chan containerMetadata, queueSize),
		stopped:   make(chan struct{}),
		done:      make(chan struct{}),
		catalog:   cat,
		tasks:     newTaskStore(),
	}
}

// Submit enqueues req. Once the loop has stopped every call fails with
// ErrStopped.
func (b *Broker) Submit(ctx context.Context, req Request) error {
	select {
	case <-b.stopped:
		return ErrStopped
	default:
	}

	select {
	case b.requests <- req:
		return nil
	case <-b.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Responses carries every response in emission order.
func (b *Broker) Responses() <-chan Response {
	return b.responses
}

// Done is closed after Run has returned and every child was killed.
func (b *Broker) Done() <-chan struct{} {
	return b.done
}

// Run consumes requests until StopProgram, which returns nil, or until ctx
// ends. Every child and helper server is stopped before Run returns.
func (b *Broker) Run(ctx context.Context) error {
	defer close(b.done)
	defer b.sup.Shutdown()
	defer b.tasks.stopAll()
	defer close(b.stopped)

	b.logger.Info("broker started")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("broker stopped", slog.String("reason", ctx.Err().Error()))
			return ctx.Err()
		case req := <-b.requests:
			if b.dispatch(ctx, req) {
				b.logger.Info("broker stopped", slog.String("reason", "StopProgram"))
				return nil
			}
		case m := <-b.metadata:
			b.cacheMetadata(m)
		}
	}
}

// dispatch handles one request and reports whether the loop must end.
func (b *Broker) dispatch(ctx context.Context, req Request) bool {
	b.logger.Debug("request", slog.String(observability.RequestKey, req.ID), slog.String("kind", string(req.Kind)))

	switch req.Kind {
	case CheckPlatform:
		b.checkPlatform(ctx, req)
	case SetAppState:
		b.emit(ctx, req, AppState, req.Data)
	case ReadPersistentState:
		b.emit(ctx, req, PersistentState, b.catalog.Clone())
	case UpdatePersistentState:
		b.updatePersistentState(ctx, req)
	case QueryContainer:
		b.queryContainer(ctx, req)
	case RunContainer, RunContainerApp:
		b.runContainer(ctx, req)
	case StartLocalWebServer:
		b.startLocalWebServer(ctx, req)
	case InformLocalWebserverStarted:
		var data InformLocalWebserverStartedData
		if b.decode(ctx, req, &data) {
			b.emit(ctx, req, LocalWebServerStarted, WebServerData(data))
		}
	case AcceptConfiguration:
		var data ConfigurationData
		if b.decode(ctx, req, &data) {
			b.emit(ctx, req, Configuration, data)
		}
	case ExportAnalysisIntoRepository:
		b.exportAnalysis(ctx, req)
	case SendJobInfo:
		var data JobData
		if b.decode(ctx, req, &data) {
			b.emit(ctx, req, JobInfo, JobInfoData{Job: data.Job, State: b.jobState(data.Job)})
		}
	case SendJobOutput:
		b.sendJobOutput(ctx, req)
	case StopProcess:
		b.stopProcess(ctx, req)
	case StopAllProcesses:
		b.stopAllProcesses(ctx, req)
	case StopProgram:
		b.stopProgram(ctx, req)
		return true
	case InspectFilesystem:
		b.inspectFilesystem(ctx, req)
	case ListDirectory:
		b.listDirectory(ctx, req)
	case MoveContent:
		b.moveContent(ctx, req)
	case DownloadContent:
		b.downloadContent(ctx, req)
	default:
		b.fail(ctx, req, envelope.Errorf(envelope.IncorrectParameters, "unknown request kind %q", req.Kind))
	}

	return false
}

func (b *Broker) emit(ctx context.Context, req Request, kind ResponseKind, data any) {
	select {
	case b.responses <- Response{RequestID: req.ID, Kind: kind, Data: data}:
	case <-b.done:
	case <-ctx.Done():
	}
}

func (b *Broker) fail(ctx context.Context, req Request, err *envelope.Error) {
	b.logger.Warn("request failed",
		slog.String(observability.RequestKey, req.ID),
		slog.String("kind", string(req.Kind)),
		slog.String("error", err.Error()),
	)
	b.emit(ctx, req, Failure, err)
}

// decode fills v from req and answers with a ParsingError on failure.
func (b *Broker) decode(ctx context.Context, req Request, v any) bool {
	if err := req.decode(v); err != nil {
		b.fail(ctx, req, err)
		return false
	}

	return true
}

// resubmit queues a follow-up request under the id of the request that
// caused it.
func (b *Broker) resubmit(ctx context.Context, cause Request, kind Kind, data any) {
	req, err := NewRequest(kind, data)
	if err != nil {
		b.logger.Error("build follow-up request", slog.String("kind", string(kind)), slog.String("error", err.Error()))
		return
	}

	req.ID = cause.ID

	if err := b.Submit(ctx, req); err != nil {
		b.logger.Debug("follow-up request dropped", slog.String("kind", string(kind)), slog.String("error", err.Error()))
	}
}

func (b *Broker) jobState(id job.ID) job.State {
	state := b.sup.PollState(id)
	if state.Kind != job.NotListed {
		return state
	}

	if t, ok := b.tasks.state(id); ok {
		return t
	}

	return state
}

// terminateLoopback asks whatever listens on the helper and front-end ports
// to shut down. Nothing listening is not an error.
func (b *Broker) terminateLoopback(ctx context.Context) {
	ports := []int{b.opts.Helper.Port, b.opts.Helper.FrontendPort}
	if ports[0] == 0 {
		ports[0] = helperserver.DefaultPort
	}

	if ports[1] == 0 {
		ports[1] = helperserver.DefaultFrontendPort
	}

	for _, port := range ports {
		ctx, cancel := context.WithTimeout(ctx, loopbackTimeout)
		url := fmt.Sprintf("http://%s/terminate", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
		if err == nil {
			if resp, err := b.client.Do(req); err == nil {
				_ = resp.Body.Close()
			}
		}

		cancel()
	}
}

// awaitKilled waits until every id has exited or grace elapses.
func (b *Broker) awaitKilled(ctx context.Context, ids []job.ID, grace time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	for _, id := range ids {
		if _, err := b.sup.Wait(ctx, id); errors.Is(err, context.DeadlineExceeded) {
			b.logger.Warn("killed job still running", slog.String(observability.JobKey, id.String()))
			return
		}
	}
}
