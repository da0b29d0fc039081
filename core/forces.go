package core

// Force model: link springs, pairwise repulsion, collision resolution, and
// centering, summed into the per-iteration accumulator. All contributions
// scale with alpha except collision, which resolves hard overlap regardless
// of temperature.

// applyForces recomputes the accumulator for the current iteration and
// re-centers the arena. Every written value is finite.
func (e *Engine) applyForces() {
	for i := range e.force {
		e.force[i] = Vec2{}
	}
	e.applyLinkForces()
	e.applyRepulsion()
	e.applyCollision()
	e.applyCentering()
}

// applyLinkForces treats each link as a spring toward its configured rest
// distance, split equally between the two endpoints.
func (e *Engine) applyLinkForces() {
	for li, l := range e.links {
		src := &e.nodes[l.source]
		dst := &e.nodes[l.target]

		d := dst.pos.Add(dst.vel).Sub(src.pos.Add(src.vel))
		dist := d.Norm()
		if dist == 0 {
			d = jiggle(li)
			dist = d.Norm()
		}

		rest := e.cfg.LinkDistance[l.kind]
		strength := e.cfg.LinkStrength[l.kind]
		// Relative displacement toward the rest length, scaled by alpha.
		f := d.Scale((dist - rest) / dist * strength * e.alpha * 0.5)
		if !f.IsFinite() {
			continue
		}
		e.force[l.target] = e.force[l.target].Sub(f)
		e.force[l.source] = e.force[l.source].Add(f)
	}
}

// applyRepulsion applies the Coulomb-like many-body force between every
// node pair. Charge is keyed by node kind and negative charge repels.
// Quadratic in node count; architecture maps are small enough that a
// spatial index has not been worth it.
func (e *Engine) applyRepulsion() {
	for i := 0; i < len(e.nodes); i++ {
		for j := i + 1; j < len(e.nodes); j++ {
			d := e.nodes[j].pos.Sub(e.nodes[i].pos)
			l2 := d.X*d.X + d.Y*d.Y
			if l2 == 0 {
				d = jiggle(i*len(e.nodes) + j)
				l2 = d.X*d.X + d.Y*d.Y
			}

			// Charge of each endpoint acts on the other; negative charge
			// pushes the affected node away along the pair axis.
			wj := e.cfg.Repulsion[e.nodes[i].kind] * e.alpha / l2
			wi := e.cfg.Repulsion[e.nodes[j].kind] * e.alpha / l2
			fj := d.Scale(wj)
			fi := d.Scale(wi)
			if fj.IsFinite() {
				e.force[j] = e.force[j].Sub(fj)
			}
			if fi.IsFinite() {
				e.force[i] = e.force[i].Add(fi)
			}
		}
	}
}

// applyCollision pushes apart any pair closer than the sum of radii plus
// the configured padding, weighted toward the lighter (smaller) node.
func (e *Engine) applyCollision() {
	pad := e.cfg.CollisionPadding
	for i := 0; i < len(e.nodes); i++ {
		for j := i + 1; j < len(e.nodes); j++ {
			ni, nj := &e.nodes[i], &e.nodes[j]
			r := ni.radius + nj.radius + pad

			d := nj.pos.Add(nj.vel).Sub(ni.pos.Add(ni.vel))
			dist := d.Norm()
			if dist >= r {
				continue
			}
			if dist == 0 {
				d = jiggle(i*len(e.nodes) + j)
				dist = d.Norm()
			}

			overlap := (r - dist) / dist
			ri2 := ni.radius * ni.radius
			rj2 := nj.radius * nj.radius
			w := rj2 / (ri2 + rj2)
			push := d.Scale(overlap)
			if !push.IsFinite() {
				continue
			}
			e.force[i] = e.force[i].Sub(push.Scale(w))
			e.force[j] = e.force[j].Add(push.Scale(1 - w))
		}
	}
}

// applyCentering shifts every node so the centroid lands on the origin.
// This is a direct positional correction, not a velocity term, so it never
// injects energy into the system.
func (e *Engine) applyCentering() {
	if len(e.nodes) == 0 {
		return
	}
	var c Vec2
	for i := range e.nodes {
		c = c.Add(e.nodes[i].pos)
	}
	c = c.Scale(1 / float64(len(e.nodes)))
	if !c.IsFinite() {
		return
	}
	for i := range e.nodes {
		e.nodes[i].pos = e.nodes[i].pos.Sub(c)
	}
}

// jiggle returns a tiny deterministic offset used when two coincident
// points would otherwise produce a zero-length force direction.
func jiggle(seed int) Vec2 {
	// Splitmix-style hash of the seed keeps the offset stable across runs.
	z := uint64(seed)*0x9e3779b97f4a7c15 + 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	x := float64(int64(z%2001)-1000) / 1e9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	y := float64(int64(z%2001)-1000) / 1e9
	if x == 0 && y == 0 {
		x = 1e-6
	}
	return Vec2{X: x, Y: y}
}
