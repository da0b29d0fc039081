package model

// NodeKind classifies a node for repulsion purposes.
type NodeKind string

const (
	NodeKindMajor NodeKind = "major"
	NodeKindMinor NodeKind = "minor"
)

// LinkKind classifies an edge, controlling its rest distance and spring strength.
type LinkKind string

const (
	LinkKindOrchestrator LinkKind = "orchestrator"
	LinkKindSubfeature   LinkKind = "subfeature"
	LinkKindOverlap      LinkKind = "overlap"
)

// Node describes one graph node as supplied to the engine at init time.
// Position is optional; nodes without one are seeded deterministically.
type Node struct {
	ID     string   `json:"id"`
	Kind   NodeKind `json:"kind"`
	Group  string   `json:"group,omitempty"`
	Radius float64  `json:"radius"`
	X      *float64 `json:"x,omitempty"`
	Y      *float64 `json:"y,omitempty"`
}

// Link describes one edge between two node IDs. Both endpoints must exist
// in the node set handed to the same init call.
type Link struct {
	SourceID string   `json:"source"`
	TargetID string   `json:"target"`
	Kind     LinkKind `json:"kind"`
}
