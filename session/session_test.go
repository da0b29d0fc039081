package session

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/graphlayout/internal/observability"
	"github.com/signalsfoundry/graphlayout/model"
	"github.com/signalsfoundry/graphlayout/protocol"
)

// fastGraph returns a two-node linked graph plus a config override that
// settles in exactly 10 iterations (alpha halves each step, 0.5^10 < 0.001).
func fastGraph() protocol.InitCommand {
	decay := 0.5
	return protocol.InitCommand{
		Nodes: []model.Node{
			{ID: "A", Kind: model.NodeKindMinor, Radius: 20},
			{ID: "B", Kind: model.NodeKindMinor, Radius: 20},
		},
		Links: []model.Link{
			{SourceID: "A", TargetID: "B", Kind: model.LinkKindSubfeature},
		},
		Config: model.PartialConfig{AlphaDecay: &decay},
	}
}

// collectUntilSettled drains events until a settled event arrives.
func collectUntilSettled(t *testing.T, s *Session) []protocol.Event {
	t.Helper()
	var events []protocol.Event
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				t.Fatalf("event channel closed before settled; got %d events", len(events))
			}
			events = append(events, ev)
			if _, ok := ev.(protocol.SettledEvent); ok {
				return events
			}
		case <-deadline:
			t.Fatalf("timed out waiting for settled; got %d events", len(events))
		}
	}
}

func assertNoEvent(t *testing.T, s *Session, wait time.Duration) {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		if ok {
			t.Fatalf("unexpected event %T", ev)
		}
	case <-time.After(wait):
	}
}

func TestSnapshotCadenceAndTermination(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s := New(Options{Mode: Accelerated})
	if !s.Post(fastGraph()) {
		t.Fatal("Post(init) refused")
	}
	s.Start(ctx)

	events := collectUntilSettled(t, s)

	// 10 iterations at a snapshot-every-2 throttle: ticks after iterations
	// 2, 4, 6, 8, plus the terminal snapshot at the settling iteration,
	// then the settled event.
	var ticks int
	for _, ev := range events[:len(events)-1] {
		tick, ok := ev.(protocol.TickEvent)
		if !ok {
			t.Fatalf("event %T before settled, want only ticks", ev)
		}
		if got := len(tick.Positions); got != 4 {
			t.Fatalf("tick carries %d coordinates, want 4", got)
		}
		ticks++
	}
	if ticks != 5 {
		t.Fatalf("ticks before settled = %d, want 5 (4 throttled + 1 terminal)", ticks)
	}
	if _, ok := events[len(events)-1].(protocol.SettledEvent); !ok {
		t.Fatalf("last event = %T, want SettledEvent", events[len(events)-1])
	}
}

func TestAlphaNonIncreasingAcrossTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s := New(Options{Mode: Accelerated})
	s.Post(fastGraph())
	s.Start(ctx)

	prev := 1.1
	for _, ev := range collectUntilSettled(t, s) {
		tick, ok := ev.(protocol.TickEvent)
		if !ok {
			continue
		}
		if tick.Alpha > prev {
			t.Fatalf("alpha increased across ticks: %v -> %v", prev, tick.Alpha)
		}
		prev = tick.Alpha
	}
}

func TestPinnedNodeIsExactInEverySnapshot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s := New(Options{Mode: Accelerated})
	fx, fy := 100.0, 100.0
	// Both commands queue before the first iteration, so every snapshot
	// reflects the pin.
	s.Post(fastGraph())
	s.Post(protocol.PinCommand{NodeIndex: 0, FX: &fx, FY: &fy})
	s.Start(ctx)

	for _, ev := range collectUntilSettled(t, s) {
		tick, ok := ev.(protocol.TickEvent)
		if !ok {
			continue
		}
		if tick.Positions[0] != 100 || tick.Positions[1] != 100 {
			t.Fatalf("pinned node at (%v, %v), want exactly (100, 100)",
				tick.Positions[0], tick.Positions[1])
		}
	}
}

func TestStopSilencesEventStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s := New(Options{Mode: Accelerated})
	s.Post(fastGraph())
	s.Post(protocol.StopCommand{})
	s.Start(ctx)

	// Both commands are applied before the first iteration, so nothing is
	// ever emitted.
	assertNoEvent(t, s, 100*time.Millisecond)

	// Restart resumes from where stop left off and runs to settled.
	s.Post(protocol.RestartCommand{})
	events := collectUntilSettled(t, s)
	if len(events) == 0 {
		t.Fatal("no events after restart")
	}
}

func TestInvalidLinkInitEmitsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s := New(Options{Mode: Accelerated})
	s.Post(protocol.InitCommand{
		Nodes: []model.Node{{ID: "A", Kind: model.NodeKindMinor, Radius: 10}},
		Links: []model.Link{{SourceID: "A", TargetID: "ghost", Kind: model.LinkKindOverlap}},
	})
	s.Start(ctx)

	assertNoEvent(t, s, 100*time.Millisecond)
}

func TestUnknownCommandDoesNotDisturbRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s := New(Options{Mode: Accelerated})
	s.Post(protocol.UnknownCommand{Raw: "teleport"})
	s.Post(fastGraph())
	s.Post(protocol.UnknownCommand{Raw: "warp"})
	s.Start(ctx)

	events := collectUntilSettled(t, s)
	if len(events) < 2 {
		t.Fatalf("got %d events, want a full tick stream despite unknown commands", len(events))
	}
}

func TestUnknownCommandsShareOneMetricSeries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reg := prometheus.NewRegistry()
	collector, err := observability.NewLayoutCollector(reg)
	if err != nil {
		t.Fatalf("NewLayoutCollector: %v", err)
	}

	s := New(Options{Mode: Accelerated, Metrics: collector})
	// Wire types are caller-controlled; they must not mint metric series.
	for _, raw := range []string{"teleport", "warp", "detonate"} {
		if !s.Post(protocol.UnknownCommand{Raw: raw}) {
			t.Fatalf("Post(%q) refused", raw)
		}
	}
	s.Post(fastGraph())
	s.Start(ctx)
	collectUntilSettled(t, s)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "layout_commands_total" {
			continue
		}
		seen := make(map[string]float64)
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "type" {
					seen[lp.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
		if len(seen) != 2 {
			t.Fatalf("command type labels = %v, want only init and unknown", seen)
		}
		if got := seen[protocol.CommandUnknown]; got != 3 {
			t.Fatalf("unknown command count = %v, want 3", got)
		}
		if got := seen[protocol.CommandInit]; got != 1 {
			t.Fatalf("init command count = %v, want 1", got)
		}
		return
	}
	t.Fatal("layout_commands_total not gathered")
}

func TestTickBuffersAreOwnedByReceiver(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s := New(Options{Mode: Accelerated})
	s.Post(fastGraph())
	s.Start(ctx)

	var buffers [][]float64
	for _, ev := range collectUntilSettled(t, s) {
		if tick, ok := ev.(protocol.TickEvent); ok {
			buffers = append(buffers, tick.Positions)
		}
	}
	if len(buffers) < 2 {
		t.Fatalf("need at least 2 ticks, got %d", len(buffers))
	}
	for i := 1; i < len(buffers); i++ {
		if &buffers[i][0] == &buffers[i-1][0] {
			t.Fatalf("ticks %d and %d share a buffer; ownership must transfer per snapshot", i-1, i)
		}
	}
}

func TestReheatResumesAfterSettle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s := New(Options{Mode: Accelerated})
	s.Post(fastGraph())
	s.Start(ctx)
	collectUntilSettled(t, s)

	if !s.Post(protocol.ReheatCommand{Alpha: 0.5}) {
		t.Fatal("Post(reheat) refused")
	}
	events := collectUntilSettled(t, s)
	if len(events) < 2 {
		t.Fatalf("got %d events after reheat, want a fresh tick stream", len(events))
	}
}

func TestPacedModeStillSettles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s := New(Options{Mode: Paced, TickInterval: time.Millisecond})
	s.Post(fastGraph())
	s.Start(ctx)

	events := collectUntilSettled(t, s)
	if _, ok := events[len(events)-1].(protocol.SettledEvent); !ok {
		t.Fatalf("last event = %T, want SettledEvent", events[len(events)-1])
	}
}

func TestCancelClosesEventChannel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	s := New(Options{Mode: Accelerated})
	s.Post(fastGraph())
	s.Start(ctx)
	collectUntilSettled(t, s)

	cancel()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session goroutine did not exit after cancel")
	}
}
