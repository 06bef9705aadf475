package apiserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"

	"github.com/colony-launcher/colony/internal/envelope"
	"github.com/colony-launcher/colony/internal/observability"
)

// API serves one envelope. The request is journaled before it runs and the
// response after, so a row without an end time marks a request that never
// finished.
func (s *Server) API(w http.ResponseWriter, r *http.Request) {
	env, err := s.readEnvelope(w, r)
	if err != nil {
		s.logger.Warn("rejected envelope", slog.String("error", err.Error()))
		http.Error(w, err.Error(), mapError(err))

		return
	}

	logger := s.logger.With(
		slog.String(observability.RequestKey, env.RequestID.String()),
		slog.String("target", env.Target.String()),
		slog.String("op", string(env.Body.Op)),
	)

	if s.opts.Journal != nil {
		if err := s.opts.Journal.RegisterRequest(r.Context(), env, r.RemoteAddr); err != nil {
			logger.Error("journal request", slog.String("error", err.Error()))
			http.Error(w, err.Error(), mapError(err))

			return
		}
	}

	if !servable(env.Target) {
		s.resolveUnanswered(r.Context(), env, logger)
		http.Error(w, fmt.Sprintf("%v: %s", ErrUnprocessableTarget, env.Target), mapError(ErrUnprocessableTarget))

		return
	}

	ctx, span := observability.StartSpan(r.Context(), "apiserver", "envelope "+string(env.Body.Op),
		attribute.String(observability.RequestKey, env.RequestID.String()),
		attribute.String("target", env.Target.String()),
	)
	body := s.dispatch(ctx, env)
	observability.EndSpan(span, nil)

	resp := envelope.NewResponse(env.Target, env.RequestID, body)

	if s.opts.Journal != nil {
		if err := s.opts.Journal.RegisterResponse(r.Context(), resp); err != nil {
			logger.Error("journal response", slog.String("error", err.Error()))
		}
	}

	logger.Debug("envelope served")

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("write response", slog.String("error", err.Error()))
	}

	if env.Target.Kind == envelope.LocalMachine && env.Body.Op == envelope.OpTerminate {
		s.requestTerminate()
	}
}

func (s *Server) readEnvelope(w http.ResponseWriter, r *http.Request) (envelope.RequestEnvelope, error) {
	var env envelope.RequestEnvelope

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.BodyLimit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return env, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.opts.BodyLimit)
		}

		return env, fmt.Errorf("%w: read body: %v", envelope.ErrMalformed, err)
	}

	if err := json.Unmarshal(raw, &env); err != nil {
		if errors.Is(err, envelope.ErrUnsupportedVersion) || errors.Is(err, envelope.ErrMalformed) {
			return env, err
		}

		return env, fmt.Errorf("%w: %v", envelope.ErrMalformed, err)
	}

	return env, nil
}

// servable reports whether this server answers envelopes for target.
// RemoteMachine needs remote execution, which does not exist yet.
func servable(target envelope.Target) bool {
	if !target.Known() {
		return false
	}

	return target.Kind != envelope.RemoteMachine
}

func (s *Server) resolveUnanswered(ctx context.Context, env envelope.RequestEnvelope, logger *slog.Logger) {
	if s.opts.Journal == nil {
		return
	}

	if err := s.opts.Journal.MarkRequestResolved(ctx, env.RequestID); err != nil {
		logger.Error("journal resolve", slog.String("error", err.Error()))
	}
}
