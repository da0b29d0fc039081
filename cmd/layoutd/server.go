package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/graphlayout/core"
	"github.com/signalsfoundry/graphlayout/internal/logging"
	"github.com/signalsfoundry/graphlayout/internal/observability"
	"github.com/signalsfoundry/graphlayout/model"
	"github.com/signalsfoundry/graphlayout/protocol"
	"github.com/signalsfoundry/graphlayout/session"
)

const maxCommandBytes = 8 << 20

// server exposes one layout session over HTTP: commands in via POST, events
// out via SSE. It fans the session's single event stream out to any number
// of stream subscribers.
type server struct {
	sess      *session.Session
	collector *observability.LayoutCollector
	log       logging.Logger

	mu       sync.Mutex
	subs     map[chan protocol.Event]struct{}
	nodes    []model.Node
	links    []model.Link
	settled  bool
	lastTick *protocol.TickEvent
}

func newServer(sess *session.Session, collector *observability.LayoutCollector, log logging.Logger) *server {
	return &server{
		sess:      sess,
		collector: collector,
		log:       log,
		subs:      make(map[chan protocol.Event]struct{}),
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)

	r.Route("/api/v1/session", func(r chi.Router) {
		r.With(s.collector.Middleware("/api/v1/session/commands")).
			Post("/commands", s.handleCommand)
		r.With(s.collector.Middleware("/api/v1/session/stream")).
			Get("/stream", s.handleStream)
		r.With(s.collector.Middleware("/api/v1/session/graph")).
			Get("/graph", s.handleGraph)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// requestID tags every request context with a request_id so handler logs
// correlate.
func (s *server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, id := logging.EnsureRequestID(r.Context())
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// broadcast drains the session event stream and fans each event out to the
// current subscribers. A subscriber that cannot keep up misses ticks; the
// lossless contract holds on the session channel, not on the viewer edge.
func (s *server) broadcast(ctx context.Context) {
	for {
		select {
		case ev, ok := <-s.sess.Events():
			if !ok {
				return
			}
			s.mu.Lock()
			switch e := ev.(type) {
			case protocol.TickEvent:
				s.lastTick = &e
				s.settled = false
			case protocol.SettledEvent:
				s.settled = true
			}
			for ch := range s.subs {
				select {
				case ch <- ev:
				default:
				}
			}
			s.mu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}

func (s *server) subscribe() (<-chan protocol.Event, func()) {
	ch := make(chan protocol.Event, 64)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch, func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}
}

func (s *server) setGraph(scenario *core.GraphScenario) {
	s.mu.Lock()
	s.nodes = scenario.Nodes
	s.links = scenario.Links
	s.mu.Unlock()
}

func (s *server) handleCommand(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("layoutd").Start(r.Context(), "session.command")
	defer span.End()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	cmd, err := protocol.UnmarshalCommand(body)
	if err != nil {
		s.log.Warn(ctx, "rejecting malformed command", logging.Err(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("command.type", cmd.Type()))

	if init, ok := cmd.(protocol.InitCommand); ok {
		// Validate before caching so /graph never reports a graph the
		// engine would reject.
		if err := core.ValidateGraph(init.Nodes, init.Links); err != nil {
			s.log.Warn(ctx, "rejecting invalid init", logging.Err(err))
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.nodes = init.Nodes
		s.links = init.Links
		s.mu.Unlock()
	}

	if !s.sess.Post(cmd) {
		s.log.Warn(ctx, "command buffer full", logging.String("type", cmd.Type()))
		http.Error(w, "command buffer full", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "accepted",
		"type":   cmd.Type(),
	})
}

func (s *server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, unsubscribe := s.subscribe()
	defer unsubscribe()

	// A late subscriber gets the most recent snapshot immediately so it can
	// render without waiting for the next tick.
	s.mu.Lock()
	last := s.lastTick
	s.mu.Unlock()
	if last != nil {
		if !writeSSE(w, flusher, *last) {
			return
		}
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !writeSSE(w, flusher, ev) {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func writeSSE(w io.Writer, flusher http.Flusher, ev protocol.Event) bool {
	payload, err := protocol.MarshalEvent(ev)
	if err != nil {
		return false
	}
	if _, err := w.Write([]byte("event: " + ev.Type() + "\ndata: ")); err != nil {
		return false
	}
	if _, err := w.Write(payload); err != nil {
		return false
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		return false
	}
	flusher.Flush()
	return true
}

func (s *server) handleGraph(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	resp := struct {
		Nodes   []model.Node `json:"nodes"`
		Links   []model.Link `json:"links"`
		Settled bool         `json:"settled"`
	}{
		Nodes:   s.nodes,
		Links:   s.links,
		Settled: s.settled,
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
