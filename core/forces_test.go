package core

import (
	"math"
	"testing"

	"github.com/signalsfoundry/graphlayout/model"
)

// pairEngine builds a running engine with two minor nodes at the given
// positions, optionally linked.
func pairEngine(t *testing.T, ax, ay, bx, by float64, linked bool) *Engine {
	t.Helper()
	nodes := []model.Node{
		{ID: "a", Kind: model.NodeKindMinor, Radius: 10, X: &ax, Y: &ay},
		{ID: "b", Kind: model.NodeKindMinor, Radius: 10, X: &bx, Y: &by},
	}
	var links []model.Link
	if linked {
		links = append(links, model.Link{SourceID: "a", TargetID: "b", Kind: model.LinkKindSubfeature})
	}
	e := NewEngine()
	if err := e.Init(nodes, links, model.DefaultConfig()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return e
}

func TestLinkForcePullsDistantNodesTogether(t *testing.T) {
	// Far beyond the subfeature rest length of 230.
	e := pairEngine(t, 0, 0, 800, 0, true)
	before := e.NodePosition(0).DistanceTo(e.NodePosition(1))
	for i := 0; i < 30; i++ {
		e.Step()
	}
	after := e.NodePosition(0).DistanceTo(e.NodePosition(1))
	if after >= before {
		t.Fatalf("distance grew under spring tension: %v -> %v", before, after)
	}
}

func TestRepulsionPushesUnlinkedNodesApart(t *testing.T) {
	e := pairEngine(t, 0, 0, 90, 0, false)
	before := e.NodePosition(0).DistanceTo(e.NodePosition(1))
	for i := 0; i < 30; i++ {
		e.Step()
	}
	after := e.NodePosition(0).DistanceTo(e.NodePosition(1))
	if after <= before {
		t.Fatalf("unlinked nodes did not repel: %v -> %v", before, after)
	}
}

func TestCollisionSeparatesOverlappingNodes(t *testing.T) {
	// Overlapping: distance 5, combined radii + padding = 42.
	e := pairEngine(t, 0, 0, 5, 0, false)
	for i := 0; i < 200; i++ {
		e.Step()
	}
	minSeparation := 10.0 + 10.0 + model.DefaultConfig().CollisionPadding
	if got := e.NodePosition(0).DistanceTo(e.NodePosition(1)); got < minSeparation {
		t.Fatalf("nodes still overlapping after 200 iterations: distance %v, want >= %v", got, minSeparation)
	}
}

func TestCoincidentNodesDoNotProduceNaN(t *testing.T) {
	// Exactly coincident points exercise the zero-distance jiggle path in
	// every pairwise force.
	e := pairEngine(t, 50, 50, 50, 50, true)
	for i := 0; i < 50; i++ {
		e.Step()
	}
	for i := 0; i < 2; i++ {
		p := e.NodePosition(i)
		if !p.IsFinite() {
			t.Fatalf("node %d position %v is not finite", i, p)
		}
	}
	if got := e.NodePosition(0).DistanceTo(e.NodePosition(1)); got == 0 {
		t.Fatal("coincident nodes never separated")
	}
}

func TestCenteringKeepsCentroidAtOrigin(t *testing.T) {
	e := pairEngine(t, 1000, 1000, 1400, 1200, true)
	for i := 0; i < 5; i++ {
		e.Step()
	}
	var cx, cy float64
	for i := 0; i < 2; i++ {
		p := e.NodePosition(i)
		cx += p.X
		cy += p.Y
	}
	cx /= 2
	cy /= 2
	if math.Abs(cx) > 1e-6 || math.Abs(cy) > 1e-6 {
		t.Fatalf("centroid = (%v, %v), want origin", cx, cy)
	}
}
