package model

// Config holds the per-kind force tables and the scalar decay rates.
// The kind sets are closed, so plain maps keyed by kind replace any
// per-link callback mechanism.
type Config struct {
	// LinkDistance is the rest length of the spring for each link kind.
	LinkDistance map[LinkKind]float64 `json:"linkDistance"`
	// LinkStrength scales the spring force for each link kind.
	LinkStrength map[LinkKind]float64 `json:"linkStrength"`
	// Repulsion is the many-body charge per node kind. Negative repels.
	Repulsion map[NodeKind]float64 `json:"repulsion"`
	// CollisionPadding is added to both radii when testing for overlap.
	CollisionPadding float64 `json:"collisionPadding"`
	// AlphaDecay is the per-iteration rate at which alpha approaches alphaTarget.
	AlphaDecay float64 `json:"alphaDecay"`
	// VelocityDecay is the per-iteration friction applied to velocity.
	VelocityDecay float64 `json:"velocityDecay"`
	// AlphaMin is the convergence threshold below which the layout settles.
	// A hand-tuned default, not a protocol constant.
	AlphaMin float64 `json:"alphaMin"`
}

// DefaultConfig returns the tuned defaults for architecture-map layouts.
func DefaultConfig() Config {
	return Config{
		LinkDistance: map[LinkKind]float64{
			LinkKindOrchestrator: 380,
			LinkKindOverlap:      400,
			LinkKindSubfeature:   230,
		},
		LinkStrength: map[LinkKind]float64{
			LinkKindOrchestrator: 0.6,
			LinkKindOverlap:      0.08,
			LinkKindSubfeature:   0.32,
		},
		Repulsion: map[NodeKind]float64{
			NodeKindMajor: -2400,
			NodeKindMinor: -600,
		},
		CollisionPadding: 22,
		AlphaDecay:       0.011,
		VelocityDecay:    0.35,
		AlphaMin:         0.001,
	}
}

// PartialConfig carries only the fields a reconfigure supplies. Nil fields
// leave the live configuration untouched; map entries merge key by key.
type PartialConfig struct {
	LinkDistance     map[LinkKind]float64 `json:"linkDistance,omitempty"`
	LinkStrength     map[LinkKind]float64 `json:"linkStrength,omitempty"`
	Repulsion        map[NodeKind]float64 `json:"repulsion,omitempty"`
	CollisionPadding *float64             `json:"collisionPadding,omitempty"`
	AlphaDecay       *float64             `json:"alphaDecay,omitempty"`
	VelocityDecay    *float64             `json:"velocityDecay,omitempty"`
	AlphaMin         *float64             `json:"alphaMin,omitempty"`
}

// Merge applies the supplied fields of p on top of c and returns the result.
// The receiver's maps are copied before merging so callers holding the old
// Config never observe the change.
func (c Config) Merge(p PartialConfig) Config {
	out := c
	out.LinkDistance = mergeKeyed(c.LinkDistance, p.LinkDistance)
	out.LinkStrength = mergeKeyed(c.LinkStrength, p.LinkStrength)
	out.Repulsion = mergeKeyed(c.Repulsion, p.Repulsion)
	if p.CollisionPadding != nil {
		out.CollisionPadding = *p.CollisionPadding
	}
	if p.AlphaDecay != nil {
		out.AlphaDecay = *p.AlphaDecay
	}
	if p.VelocityDecay != nil {
		out.VelocityDecay = *p.VelocityDecay
	}
	if p.AlphaMin != nil {
		out.AlphaMin = *p.AlphaMin
	}
	return out
}

func mergeKeyed[K comparable](base, overlay map[K]float64) map[K]float64 {
	if len(overlay) == 0 {
		return base
	}
	merged := make(map[K]float64, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}
