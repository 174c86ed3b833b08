package radio

import (
	"fmt"

	"pipelined.dev/radio/dtype"
)

// resolve assigns one candidate signature to every node so that the
// producer type of each edge satisfies the consumer's accept. It is a
// constraint propagator: single-candidate blocks seed the solution,
// then a reverse-topological pass followed by a topological pass
// eliminates candidates that conflict with already-resolved neighbors.
// Remaining ties are broken towards the candidate agreeing with the
// most resolved neighbors, then towards the earliest declared
// candidate. A block left without candidates fails the graph with
// ErrSignatureMismatch naming the edge that killed the last candidate;
// a block never constrained by any resolved neighbor fails with
// ErrAmbiguousSignature.
func (g *Graph) resolve() error {
	remaining := make(map[*node][]int, len(g.nodes))
	for _, n := range g.nodes {
		indices := make([]int, len(n.candidates))
		for i := range indices {
			indices[i] = i
		}
		remaining[n] = indices
		n.sigIndex = -1
	}

	// seed with single-candidate blocks
	for _, n := range g.nodes {
		if len(n.candidates) == 1 {
			n.sigIndex = 0
		}
	}

	ordered := g.topological()
	reversed := make([]*node, len(ordered))
	for i, n := range ordered {
		reversed[len(ordered)-1-i] = n
	}

	for _, pass := range [][]*node{reversed, ordered} {
		for _, n := range pass {
			if n.sigIndex >= 0 {
				continue
			}
			kept, killer := g.eliminate(n, remaining[n])
			if len(kept) == 0 {
				return fmt.Errorf("%w: no candidate signature of %s satisfies %s", ErrSignatureMismatch, n.name(), killer)
			}
			remaining[n] = kept
			if len(kept) == 1 {
				n.sigIndex = kept[0]
				continue
			}
			if g.hasResolvedNeighbor(n) {
				n.sigIndex = g.tieBreak(n, kept)
			}
		}
	}

	for _, n := range g.nodes {
		if n.sigIndex < 0 {
			return fmt.Errorf("%w: %d candidate signatures of %s remain viable", ErrAmbiguousSignature, len(remaining[n]), n.name())
		}
	}

	return g.bind()
}

// eliminate filters candidates of n against its resolved neighbors. It
// returns the surviving candidate indices and, when the last candidate
// died, the edge that killed it.
func (g *Graph) eliminate(n *node, candidates []int) ([]int, *edge) {
	kept := candidates[:0:0]
	var killer *edge
	for _, c := range candidates {
		ok, edge := g.compatible(n, n.candidates[c])
		if ok {
			kept = append(kept, c)
		} else {
			killer = edge
		}
	}
	return kept, killer
}

// compatible checks one candidate of n against every resolved neighbor.
func (g *Graph) compatible(n *node, candidate Signature) (bool, *edge) {
	for port, e := range n.ins {
		if e == nil || e.from.sigIndex < 0 {
			continue
		}
		produced := e.from.candidates[e.from.sigIndex].Outputs[e.fromPort]
		t, ok := dtype.Lookup(produced)
		if !ok {
			return false, e
		}
		if !candidate.Inputs[port].Matches(t) {
			return false, e
		}
	}
	for port, fanout := range n.outs {
		for _, e := range fanout {
			if e.to.sigIndex < 0 {
				continue
			}
			t, ok := dtype.Lookup(candidate.Outputs[port])
			if !ok {
				return false, e
			}
			accept := e.to.candidates[e.to.sigIndex].Inputs[e.toPort]
			if !accept.Matches(t) {
				return false, e
			}
		}
	}
	return true, nil
}

func (g *Graph) hasResolvedNeighbor(n *node) bool {
	for _, e := range n.neighborEdges() {
		if other(e, n).sigIndex >= 0 {
			return true
		}
	}
	return false
}

func other(e *edge, n *node) *node {
	if e.from == n {
		return e.to
	}
	return e.from
}

// tieBreak picks among surviving candidates: first the candidate whose
// edge types literally equal the types chosen by the most resolved
// neighbors, then the candidate declared earliest.
func (g *Graph) tieBreak(n *node, candidates []int) int {
	best, bestScore := candidates[0], -1
	for _, c := range candidates {
		score := 0
		candidate := n.candidates[c]
		for port, e := range n.ins {
			if e == nil || e.from.sigIndex < 0 {
				continue
			}
			produced := e.from.candidates[e.from.sigIndex].Outputs[e.fromPort]
			if candidate.Inputs[port].Type == produced {
				score++
			}
		}
		for port, fanout := range n.outs {
			for _, e := range fanout {
				if e.to.sigIndex < 0 {
					continue
				}
				accepted := e.to.candidates[e.to.sigIndex].Inputs[e.toPort].Type
				if accepted != "" && candidate.Outputs[port] == accepted {
					score++
				}
			}
		}
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	return best
}

// bind materializes the chosen signatures: concrete dtype per port and
// per edge, with a final agreement check over every edge.
func (g *Graph) bind() error {
	for _, n := range g.nodes {
		chosen := n.candidates[n.sigIndex]
		resolved := Resolved{
			Inputs:    make([]dtype.Type, n.numIn),
			Outputs:   make([]dtype.Type, n.numOut),
			RateScale: make([]float64, n.numOut),
		}
		for i, name := range chosen.Outputs {
			t, ok := dtype.Lookup(name)
			if !ok {
				return fmt.Errorf("%w: %s declares unregistered type %q", ErrSignatureMismatch, n.name(), name)
			}
			resolved.Outputs[i] = t
			resolved.RateScale[i] = chosen.scale(i)
		}
		n.resolved = resolved
	}
	for _, e := range g.edges() {
		produced := e.from.resolved.Outputs[e.fromPort]
		accept := e.to.candidates[e.to.sigIndex].Inputs[e.toPort]
		if !accept.Matches(produced) {
			return fmt.Errorf("%w: %s carries %s but consumer accepts %s", ErrSignatureMismatch, e, produced, accept)
		}
		e.dt = produced
		e.to.resolved.Inputs[e.toPort] = produced
	}
	return nil
}
