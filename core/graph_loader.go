package core

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/signalsfoundry/graphlayout/model"
)

// GraphScenario is a parsed layout scenario ready to hand to an init
// command: the node/link lists plus the effective configuration (defaults
// merged with any overrides the file supplies). Overrides keeps the raw
// per-file overrides so they can travel inside an init command unchanged.
type GraphScenario struct {
	Nodes     []model.Node
	Links     []model.Link
	Config    model.Config
	Overrides model.PartialConfig
}

// internal JSON shape – unexported so the file format can evolve freely.
type graphScenarioJSON struct {
	Nodes  []model.Node        `json:"nodes"`
	Links  []model.Link        `json:"links"`
	Config model.PartialConfig `json:"config"`
}

// ValidateGraph checks a node/link list the way Engine.Init will, plus the
// structural constraints Init does not re-check: node IDs must be non-empty
// and unique, kinds must come from the closed sets, radii must be positive,
// and every link endpoint must name a declared node. Link endpoint failures
// wrap ErrInvalidLink.
func ValidateGraph(nodes []model.Node, links []model.Link) error {
	seen := make(map[string]bool, len(nodes))
	for i, n := range nodes {
		if n.ID == "" {
			return fmt.Errorf("node %d has empty id", i)
		}
		if seen[n.ID] {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		seen[n.ID] = true
		switch n.Kind {
		case model.NodeKindMajor, model.NodeKindMinor:
		default:
			return fmt.Errorf("node %q: unknown kind %q", n.ID, n.Kind)
		}
		if n.Radius <= 0 {
			return fmt.Errorf("node %q: radius must be > 0, got %v", n.ID, n.Radius)
		}
	}

	for _, l := range links {
		if !seen[l.SourceID] {
			return fmt.Errorf("link %s->%s: source: %w", l.SourceID, l.TargetID, ErrInvalidLink)
		}
		if !seen[l.TargetID] {
			return fmt.Errorf("link %s->%s: target: %w", l.SourceID, l.TargetID, ErrInvalidLink)
		}
		switch l.Kind {
		case model.LinkKindOrchestrator, model.LinkKindSubfeature, model.LinkKindOverlap:
		default:
			return fmt.Errorf("link %s->%s: unknown kind %q", l.SourceID, l.TargetID, l.Kind)
		}
	}
	return nil
}

// LoadGraphScenario reads a JSON scenario from r and validates it with
// ValidateGraph. Structural problems fail the whole load; there is no
// partial result.
func LoadGraphScenario(r io.Reader) (*GraphScenario, error) {
	var payload graphScenarioJSON
	dec := json.NewDecoder(r)
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadGraphScenario: decode failed: %w", err)
	}
	if err := ValidateGraph(payload.Nodes, payload.Links); err != nil {
		return nil, fmt.Errorf("LoadGraphScenario: %w", err)
	}

	return &GraphScenario{
		Nodes:     payload.Nodes,
		Links:     payload.Links,
		Config:    model.DefaultConfig().Merge(payload.Config),
		Overrides: payload.Config,
	}, nil
}
