package core

import (
	"errors"
	"fmt"
	"math"

	"github.com/signalsfoundry/graphlayout/model"
)

// ErrInvalidLink is returned by Init when a link references a node ID that
// is not present in the node set. The whole init is rejected; the engine
// never builds a partial graph.
var ErrInvalidLink = errors.New("link references unknown node id")

// Phase is the engine lifecycle state.
type Phase int

const (
	// PhaseIdle means no graph is loaded.
	PhaseIdle Phase = iota
	// PhaseRunning means the engine is iterating.
	PhaseRunning
	// PhaseSettled means alpha decayed below the convergence threshold.
	PhaseSettled
	// PhaseStopped means iteration was halted by an explicit stop.
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseSettled:
		return "settled"
	case PhaseStopped:
		return "stopped"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// layoutNode is one entry in the engine-owned arena. Nothing outside the
// engine ever holds a reference to it; snapshots are copies.
type layoutNode struct {
	id     string
	kind   model.NodeKind
	group  string
	radius float64
	pos    Vec2
	vel    Vec2
	fixed  *Vec2
}

// layoutLink holds endpoints resolved to arena indices at init time.
type layoutLink struct {
	source, target int
	kind           model.LinkKind
}

// Engine owns all mutable layout state for one session and advances it one
// iteration at a time. It is not safe for concurrent use; the session layer
// confines it to a single goroutine.
type Engine struct {
	phase Phase
	cfg   model.Config

	nodes []layoutNode
	links []layoutLink
	byID  map[string]int

	// force is the per-iteration accumulator, reused across iterations.
	force []Vec2

	alpha       float64
	alphaTarget float64
	iteration   int
}

// NewEngine returns an idle engine with no graph loaded.
func NewEngine() *Engine {
	return &Engine{phase: PhaseIdle}
}

// Node seeding constants: nodes without an initial position are placed on a
// deterministic phyllotaxis spiral so dense graphs start evenly spread.
const (
	initialRadius = 10.0
	initialAngle  = math.Pi * (3 - 2.2360679774997896) // 3 − √5
)

// Init replaces any previous graph with the supplied one and transitions to
// Running. It validates every link endpoint against the node set first and
// returns ErrInvalidLink without touching existing state when validation
// fails.
func (e *Engine) Init(nodes []model.Node, links []model.Link, cfg model.Config) error {
	byID := make(map[string]int, len(nodes))
	for i, n := range nodes {
		byID[n.ID] = i
	}
	resolved := make([]layoutLink, 0, len(links))
	for _, l := range links {
		src, ok := byID[l.SourceID]
		if !ok {
			return fmt.Errorf("link %s->%s: source: %w", l.SourceID, l.TargetID, ErrInvalidLink)
		}
		dst, ok := byID[l.TargetID]
		if !ok {
			return fmt.Errorf("link %s->%s: target: %w", l.SourceID, l.TargetID, ErrInvalidLink)
		}
		resolved = append(resolved, layoutLink{source: src, target: dst, kind: l.Kind})
	}

	arena := make([]layoutNode, len(nodes))
	for i, n := range nodes {
		ln := layoutNode{
			id:     n.ID,
			kind:   n.Kind,
			group:  n.Group,
			radius: n.Radius,
		}
		if n.X != nil && n.Y != nil {
			ln.pos = Vec2{X: *n.X, Y: *n.Y}.Sanitized()
		} else {
			r := initialRadius * math.Sqrt(0.5+float64(i))
			a := float64(i) * initialAngle
			ln.pos = Vec2{X: r * math.Cos(a), Y: r * math.Sin(a)}
		}
		arena[i] = ln
	}

	e.nodes = arena
	e.links = resolved
	e.byID = byID
	e.cfg = cfg
	e.force = make([]Vec2, len(arena))
	e.alpha = 1.0
	e.alphaTarget = 0
	e.iteration = 0
	e.phase = PhaseRunning
	return nil
}

// Step advances the simulation by one iteration. It reports whether this
// step caused the engine to settle. Calling Step in any phase other than
// Running is a no-op.
func (e *Engine) Step() (settled bool) {
	if e.phase != PhaseRunning {
		return false
	}

	e.applyForces()

	damping := 1 - e.cfg.VelocityDecay
	for i := range e.nodes {
		n := &e.nodes[i]
		n.vel = n.vel.Add(e.force[i]).Scale(damping).Sanitized()
		n.pos = n.pos.Add(n.vel).Sanitized()
		if n.fixed != nil {
			n.pos = *n.fixed
			n.vel = Vec2{}
		}
	}

	e.alpha += (e.alphaTarget - e.alpha) * e.cfg.AlphaDecay
	e.iteration++

	if e.alpha < e.cfg.AlphaMin {
		e.phase = PhaseSettled
		return true
	}
	return false
}

// Pin fixes the node at index to the given point; the node stays exactly
// there until unpinned. A nil fixed releases it. Out-of-range indices are
// dropped, not fatal.
func (e *Engine) Pin(index int, fixed *Vec2) {
	if index < 0 || index >= len(e.nodes) {
		return
	}
	n := &e.nodes[index]
	if fixed == nil {
		n.fixed = nil
		return
	}
	f := fixed.Sanitized()
	n.fixed = &f
	n.pos = f
	n.vel = Vec2{}
}

// Unpin releases the node with the given ID. Unknown IDs are dropped.
func (e *Engine) Unpin(id string) {
	if i, ok := e.byID[id]; ok {
		e.nodes[i].fixed = nil
	}
}

// Reconfigure merges the supplied fields into the live configuration,
// effective from the next iteration.
func (e *Engine) Reconfigure(p model.PartialConfig) {
	e.cfg = e.cfg.Merge(p)
}

// SetAlpha overwrites the current alpha. Setting alpha on a settled layout
// resumes iteration, which is how a drag handler reheats the simulation.
// A stopped engine stays stopped until Restart or a fresh Init.
func (e *Engine) SetAlpha(alpha float64) {
	e.alpha = clamp01(alpha)
	if e.phase == PhaseSettled && e.alpha >= e.cfg.AlphaMin {
		e.phase = PhaseRunning
	}
}

// SetAlphaTarget overwrites the floor alpha decays toward.
func (e *Engine) SetAlphaTarget(target float64) {
	e.alphaTarget = clamp01(target)
	if e.phase == PhaseSettled && e.alphaTarget >= e.cfg.AlphaMin {
		e.phase = PhaseRunning
	}
}

// Restart resumes iteration from Settled or Stopped with alpha reset to 0.3.
// An idle engine has nothing to restart.
func (e *Engine) Restart() {
	if e.phase == PhaseIdle {
		return
	}
	e.alpha = 0.3
	e.phase = PhaseRunning
}

// Stop halts iteration until Restart or a fresh Init. Stopping an already
// stopped or idle engine is a no-op.
func (e *Engine) Stop() {
	if e.phase == PhaseIdle {
		return
	}
	e.phase = PhaseStopped
}

// Snapshot allocates and returns a flat buffer of 2×nodeCount coordinates,
// x then y, ordered by node index. Each call returns a fresh buffer so the
// caller may hand it across a channel and never see it again.
func (e *Engine) Snapshot() []float64 {
	buf := make([]float64, 2*len(e.nodes))
	for i := range e.nodes {
		p := e.nodes[i].pos.Sanitized()
		buf[2*i] = p.X
		buf[2*i+1] = p.Y
	}
	return buf
}

// Phase returns the current lifecycle state.
func (e *Engine) Phase() Phase { return e.phase }

// Alpha returns the current simulation temperature.
func (e *Engine) Alpha() float64 { return e.alpha }

// AlphaTarget returns the floor alpha decays toward.
func (e *Engine) AlphaTarget() float64 { return e.alphaTarget }

// Iteration returns the number of completed iterations since the last Init.
func (e *Engine) Iteration() int { return e.iteration }

// NodeCount returns the size of the node arena.
func (e *Engine) NodeCount() int { return len(e.nodes) }

// NodeIndex resolves a node ID to its arena index.
func (e *Engine) NodeIndex(id string) (int, bool) {
	i, ok := e.byID[id]
	return i, ok
}

// NodePosition returns the current position of the node at index.
func (e *Engine) NodePosition(index int) Vec2 {
	return e.nodes[index].pos
}

func clamp01(f float64) float64 {
	if !isFinite(f) || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
