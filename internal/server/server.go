// Package server exposes the companion over HTTP and WebSocket: turn
// submission, voice upload, listen-mode control, settings, and a
// realtime event stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/normanking/cortexcompanion/internal/ai"
	"github.com/normanking/cortexcompanion/internal/bus"
	"github.com/normanking/cortexcompanion/internal/config"
	"github.com/normanking/cortexcompanion/internal/ingest"
	"github.com/normanking/cortexcompanion/internal/listen"
	"github.com/normanking/cortexcompanion/internal/queue"
	"github.com/normanking/cortexcompanion/internal/turn"
)

// Server ties the transport surface to the core.
type Server struct {
	config       config.ServerConfig
	orchestrator *turn.Orchestrator
	inputs       *queue.Queue
	listenSess   *listen.Session
	ingestWorker *ingest.Worker
	transcriber  ai.Transcriber
	captioner    ai.Captioner
	events       *bus.EventBus
	logger       zerolog.Logger

	httpServer *http.Server
	serializer *Serializer
	hub        *wsHub
	startTime  time.Time
	baseCtx    context.Context
}

// Deps collects everything the server serves. Transcriber and Captioner
// are optional; their routes answer 503 when absent.
type Deps struct {
	Orchestrator *turn.Orchestrator
	Inputs       *queue.Queue
	ListenSess   *listen.Session
	IngestWorker *ingest.Worker
	Transcriber  ai.Transcriber
	Captioner    ai.Captioner
	Events       *bus.EventBus
}

// New creates the server.
func New(cfg config.ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	s := &Server{
		config:       cfg,
		orchestrator: deps.Orchestrator,
		inputs:       deps.Inputs,
		listenSess:   deps.ListenSess,
		ingestWorker: deps.IngestWorker,
		transcriber:  deps.Transcriber,
		captioner:    deps.Captioner,
		events:       deps.Events,
		logger:       logger.With().Str("component", "server").Logger(),
		startTime:    time.Now(),
	}
	s.serializer = NewSerializer(deps.Inputs, deps.Orchestrator, deps.Events, logger)
	s.hub = newWSHub(deps.Events, logger)
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /greeting", s.handleGreeting)
	mux.HandleFunc("POST /ask", s.handleAsk)
	mux.HandleFunc("POST /voice", s.handleVoice)
	mux.HandleFunc("POST /periodic_message", s.handlePeriodic)
	mux.HandleFunc("GET /settings", s.handleGetSettings)
	mux.HandleFunc("POST /settings", s.handleUpdateSettings)
	mux.HandleFunc("POST /reset", s.handleReset)
	mux.HandleFunc("POST /listen/start", s.handleListenStart)
	mux.HandleFunc("POST /listen/stop", s.handleListenStop)
	mux.HandleFunc("GET /ws", s.hub.handleUpgrade)
	return mux
}

// Start launches the serializer, the event bridges, and the HTTP
// listener. It returns once the listener is up; serve errors surface on
// the returned channel.
func (s *Server) Start(ctx context.Context) <-chan error {
	s.baseCtx = ctx
	s.serializer.Start(ctx)
	s.hub.start(ctx)
	s.bridgeListenEvents(ctx)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown stops accepting requests, then winds down the background
// loops in dependency order: producers first, queue, serializer, and
// finally in-flight speech.
func (s *Server) Shutdown(ctx context.Context) error {
	// Synchronous so clients see the notice before connections drop.
	s.events.PublishSync(bus.Event{Type: bus.EventTypeShuttingDown})

	var httpErr error
	if s.httpServer != nil {
		httpErr = s.httpServer.Shutdown(ctx)
	}

	if s.ingestWorker != nil {
		s.ingestWorker.Stop()
	}
	if s.listenSess != nil {
		s.listenSess.Stop()
		s.listenSess.Join()
	}

	s.inputs.Close()
	s.serializer.Join()
	s.orchestrator.Wait()

	s.logger.Info().Msg("Server shut down")
	return httpErr
}

// bridgeListenEvents republishes listen-session events onto the bus so
// WebSocket clients see them.
func (s *Server) bridgeListenEvents(ctx context.Context) {
	if s.listenSess == nil {
		return
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case e := <-s.listenSess.Events():
				s.events.Publish(bus.Event{Type: listenEventType(e.Kind), Data: map[string]any{
					"transcript": e.Transcript,
					"reply":      e.Reply,
					"error":      errString(e.Err),
				}})
			}
		}
	}()
}

func listenEventType(kind listen.EventKind) bus.EventType {
	switch kind {
	case listen.EventResult:
		return bus.EventTypeListenResult
	case listen.EventPeriodic:
		return bus.EventTypeListenPeriodic
	case listen.EventQuit:
		return bus.EventTypeListenQuit
	case listen.EventError:
		return bus.EventTypeListenError
	default:
		return bus.EventTypeListenEnded
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
