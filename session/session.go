// Package session runs a layout engine in its own goroutine and exposes it
// exclusively through ordered, asynchronous command and event channels. The
// interactive side never sees engine-owned memory: position snapshots are
// freshly allocated buffers whose ownership transfers on send.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/signalsfoundry/graphlayout/core"
	"github.com/signalsfoundry/graphlayout/internal/logging"
	"github.com/signalsfoundry/graphlayout/internal/observability"
	"github.com/signalsfoundry/graphlayout/model"
	"github.com/signalsfoundry/graphlayout/protocol"
)

const (
	defaultSnapshotEvery = 2
	defaultCommandBuffer = 64
	defaultEventBuffer   = 256
)

// Options configures a Session. The zero value gives an accelerated session
// with default buffering and throttling.
type Options struct {
	// Mode selects between paced (ticker-driven) and accelerated iteration.
	Mode Mode
	// TickInterval is the iteration cadence in Paced mode.
	TickInterval time.Duration
	// SnapshotEvery emits a tick every Nth iteration. The terminal snapshot
	// at settle is always emitted regardless. Default 2.
	SnapshotEvery int
	// CommandBuffer sizes the inbound command channel. Default 64.
	CommandBuffer int
	// EventBuffer sizes the outbound event channel. Default 256.
	EventBuffer int

	Logger  logging.Logger
	Metrics *observability.LayoutCollector
}

// Session owns one engine and the two channels connecting it to the
// interactive context. Create with New, drive with Start.
type Session struct {
	opts   Options
	engine *core.Engine
	log    logging.Logger

	cmds   chan protocol.Command
	events chan protocol.Event
	done   chan struct{}
}

// New builds a session around a fresh idle engine.
func New(opts Options) *Session {
	if opts.SnapshotEvery <= 0 {
		opts.SnapshotEvery = defaultSnapshotEvery
	}
	if opts.CommandBuffer <= 0 {
		opts.CommandBuffer = defaultCommandBuffer
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}
	if opts.Logger == nil {
		opts.Logger = logging.Noop()
	}
	return &Session{
		opts:   opts,
		engine: core.NewEngine(),
		log:    opts.Logger,
		cmds:   make(chan protocol.Command, opts.CommandBuffer),
		events: make(chan protocol.Event, opts.EventBuffer),
		done:   make(chan struct{}),
	}
}

// Start launches the simulation goroutine. It returns immediately; the
// goroutine runs until ctx is cancelled. The event channel is closed when
// the goroutine exits, so consumers can range over Events.
func (s *Session) Start(ctx context.Context) {
	go s.run(ctx)
}

// Post enqueues a command without blocking. It reports false when the
// command buffer is full; the caller decides whether to retry or drop.
func (s *Session) Post(cmd protocol.Command) bool {
	select {
	case s.cmds <- cmd:
		return true
	default:
		return false
	}
}

// Events is the ordered stream of tick and settled events. Buffers carried
// by tick events belong to the receiver.
func (s *Session) Events() <-chan protocol.Event {
	return s.events
}

// Done is closed once the simulation goroutine has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// run is the simulation context: the only goroutine that ever touches the
// engine. Commands are drained at iteration boundaries, never mid-step.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.events)

	pacer := newPacer(s.opts.Mode, s.opts.TickInterval)
	defer pacer.stop()

	for {
		if !s.drainCommands(ctx) {
			return
		}

		if s.engine.Phase() != core.PhaseRunning {
			// Nothing to iterate; park until the next command arrives.
			select {
			case cmd := <-s.cmds:
				s.apply(ctx, cmd)
			case <-ctx.Done():
				return
			}
			continue
		}

		settled := s.engine.Step()
		s.opts.Metrics.ObserveIteration(s.engine.Alpha())

		if settled {
			// The terminal snapshot bypasses the throttle so the last
			// position update is never lost.
			if !s.emit(ctx, protocol.TickEvent{Positions: s.engine.Snapshot(), Alpha: s.engine.Alpha()}) {
				return
			}
			if !s.emit(ctx, protocol.SettledEvent{Alpha: s.engine.Alpha()}) {
				return
			}
			s.opts.Metrics.ObserveSettled(s.engine.Iteration())
			s.log.Info(ctx, "layout settled",
				logging.Int("iterations", s.engine.Iteration()),
				logging.Float("alpha", s.engine.Alpha()),
			)
			continue
		}

		if s.engine.Iteration()%s.opts.SnapshotEvery == 0 {
			if !s.emit(ctx, protocol.TickEvent{Positions: s.engine.Snapshot(), Alpha: s.engine.Alpha()}) {
				return
			}
		}

		if !pacer.wait(ctx) {
			return
		}
	}
}

// drainCommands applies every command already queued, in arrival order.
// It reports false when the context is done.
func (s *Session) drainCommands(ctx context.Context) bool {
	for {
		select {
		case cmd := <-s.cmds:
			s.apply(ctx, cmd)
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
}

func (s *Session) apply(ctx context.Context, cmd protocol.Command) {
	s.opts.Metrics.ObserveCommand(cmd.Type())

	switch c := cmd.(type) {
	case protocol.InitCommand:
		cfg := model.DefaultConfig().Merge(c.Config)
		if err := s.engine.Init(c.Nodes, c.Links, cfg); err != nil {
			if errors.Is(err, core.ErrInvalidLink) {
				s.log.Error(ctx, "init rejected", logging.Err(err))
				return
			}
			s.log.Error(ctx, "init failed", logging.Err(err))
			return
		}
		s.opts.Metrics.ObserveGraph(len(c.Nodes), len(c.Links))
		s.log.Info(ctx, "layout initialized",
			logging.Int("nodes", len(c.Nodes)),
			logging.Int("links", len(c.Links)),
		)
	case protocol.ReheatCommand:
		s.engine.SetAlpha(c.Alpha)
	case protocol.ConfigCommand:
		s.engine.Reconfigure(c.Config)
	case protocol.PinCommand:
		if c.FX == nil || c.FY == nil {
			s.engine.Pin(c.NodeIndex, nil)
			return
		}
		s.engine.Pin(c.NodeIndex, &core.Vec2{X: *c.FX, Y: *c.FY})
	case protocol.UnpinCommand:
		s.engine.Unpin(c.NodeID)
	case protocol.AlphaTargetCommand:
		s.engine.SetAlphaTarget(c.Value)
	case protocol.AlphaCommand:
		s.engine.SetAlpha(c.Value)
	case protocol.RestartCommand:
		s.engine.Restart()
	case protocol.StopCommand:
		s.engine.Stop()
	case protocol.UnknownCommand:
		// Forward-compatible no-op. The raw wire type is log-only; the
		// metric above recorded the fixed "unknown" label.
		s.log.Warn(ctx, "ignoring unknown command", logging.String("type", c.Raw))
	default:
		s.log.Warn(ctx, "ignoring unhandled command", logging.String("type", cmd.Type()))
	}
}

// emit delivers an event in order. Once the buffer is full the simulation
// waits rather than dropping: losing a snapshot would break the cadence
// contract, and the terminal snapshot must always arrive.
func (s *Session) emit(ctx context.Context, ev protocol.Event) bool {
	select {
	case s.events <- ev:
		if _, ok := ev.(protocol.TickEvent); ok {
			s.opts.Metrics.ObserveSnapshot()
		}
		return true
	case <-ctx.Done():
		return false
	}
}
