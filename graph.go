package radio

import (
	"fmt"
	"sync"

	"github.com/rs/xid"

	"pipelined.dev/radio/dtype"
)

// newUID returns new unique id value.
func newUID() string {
	return xid.New().String()
}

type (
	// node is a block with its place in the graph.
	node struct {
		id         string
		block      Block
		candidates []Signature
		numIn      int
		numOut     int
		ins        []*edge   // one inbound edge per input port
		outs       [][]*edge // fan-out list per output port

		// set by resolution and rate propagation
		sigIndex int
		resolved Resolved
		rate     float64
	}

	// edge is a directed connection between two ports. After
	// resolution it carries a concrete type, after rate propagation a
	// sample rate.
	edge struct {
		from     *node
		fromPort int
		to       *node
		toPort   int
		dt       dtype.Type
		rate     float64
	}
)

func (n *node) name() string {
	if named, ok := n.block.(Namer); ok {
		return named.Name()
	}
	return n.id
}

func (e *edge) String() string {
	return fmt.Sprintf("%s.out[%d]->%s.in[%d]", e.from.name(), e.fromPort, e.to.name(), e.toPort)
}

// Graph is a set of blocks and directed connections between their
// ports. It is mutable until Start and frozen while running.
type Graph struct {
	uid        string
	name       string
	bufferSize int
	log        Logger
	clock      clock
	realtime   bool
	meter      meterFunc

	mu     sync.Mutex
	nodes  []*node
	lookup map[Block]*node
	frozen bool

	// run state, valid between Start and the end of Wait
	run *runState
}

// Add registers a block in the graph. All candidate signatures of the
// block must agree on port counts. Adding the same block twice is a
// no-op.
func (g *Graph) Add(b Block) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		return ErrInvalidState
	}
	_, err := g.add(b)
	return err
}

func (g *Graph) add(b Block) (*node, error) {
	if n, ok := g.lookup[b]; ok {
		return n, nil
	}
	candidates := b.Signatures()
	if len(candidates) == 0 {
		return nil, fmt.Errorf("block declares no signatures")
	}
	numIn, numOut := len(candidates[0].Inputs), len(candidates[0].Outputs)
	for _, c := range candidates[1:] {
		if len(c.Inputs) != numIn || len(c.Outputs) != numOut {
			return nil, fmt.Errorf("block signatures disagree on port count")
		}
	}
	n := &node{
		id:         newUID(),
		block:      b,
		candidates: candidates,
		numIn:      numIn,
		numOut:     numOut,
		ins:        make([]*edge, numIn),
		outs:       make([][]*edge, numOut),
		sigIndex:   -1,
	}
	g.nodes = append(g.nodes, n)
	g.lookup[b] = n
	return n, nil
}

// Connect wires output port outPort of one block to input port inPort
// of another, adding the blocks if needed. It rejects duplicate fan-in
// and connections that would close a cycle.
func (g *Graph) Connect(from Block, outPort int, to Block, inPort int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		return ErrInvalidState
	}
	src, err := g.add(from)
	if err != nil {
		return err
	}
	dst, err := g.add(to)
	if err != nil {
		return err
	}
	if outPort < 0 || outPort >= src.numOut {
		return fmt.Errorf("%s has no output port %d", src.name(), outPort)
	}
	if inPort < 0 || inPort >= dst.numIn {
		return fmt.Errorf("%s has no input port %d", dst.name(), inPort)
	}
	if dst.ins[inPort] != nil {
		return fmt.Errorf("%w: %s.in[%d] already has a producer", ErrFanInConflict, dst.name(), inPort)
	}
	if g.reaches(dst, src) {
		return fmt.Errorf("%w: connecting %s to %s", ErrCycle, src.name(), dst.name())
	}
	e := &edge{from: src, fromPort: outPort, to: dst, toPort: inPort}
	src.outs[outPort] = append(src.outs[outPort], e)
	dst.ins[inPort] = e
	return nil
}

// Remove detaches a block and all its edges from the graph.
func (g *Graph) Remove(b Block) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		return ErrInvalidState
	}
	n, ok := g.lookup[b]
	if !ok {
		return fmt.Errorf("block not in graph")
	}
	for _, e := range n.ins {
		if e != nil {
			e.from.outs[e.fromPort] = removeEdge(e.from.outs[e.fromPort], e)
		}
	}
	for _, fanout := range n.outs {
		for _, e := range fanout {
			e.to.ins[e.toPort] = nil
		}
	}
	for i, other := range g.nodes {
		if other == n {
			g.nodes = append(g.nodes[:i], g.nodes[i+1:]...)
			break
		}
	}
	delete(g.lookup, b)
	return nil
}

func removeEdge(edges []*edge, e *edge) []*edge {
	for i, candidate := range edges {
		if candidate == e {
			return append(edges[:i], edges[i+1:]...)
		}
	}
	return edges
}

// reaches reports whether to is reachable from from.
func (g *Graph) reaches(from, to *node) bool {
	if from == to {
		return true
	}
	for _, fanout := range from.outs {
		for _, e := range fanout {
			if g.reaches(e.to, to) {
				return true
			}
		}
	}
	return false
}

// Sources returns the blocks with no input ports, in insertion order.
func (g *Graph) Sources() []Block {
	g.mu.Lock()
	defer g.mu.Unlock()
	var sources []Block
	for _, n := range g.nodes {
		if n.numIn == 0 {
			sources = append(sources, n.block)
		}
	}
	return sources
}

// Sinks returns the blocks with no output ports, in insertion order.
func (g *Graph) Sinks() []Block {
	g.mu.Lock()
	defer g.mu.Unlock()
	var sinks []Block
	for _, n := range g.nodes {
		if n.numOut == 0 {
			sinks = append(sinks, n.block)
		}
	}
	return sinks
}

// ReverseTopological returns the blocks in reverse topological order:
// every consumer before its producers.
func (g *Graph) ReverseTopological() []Block {
	g.mu.Lock()
	defer g.mu.Unlock()
	ordered := g.topological()
	blocks := make([]Block, 0, len(ordered))
	for i := len(ordered) - 1; i >= 0; i-- {
		blocks = append(blocks, ordered[i].block)
	}
	return blocks
}

// topological returns nodes so that every producer precedes its
// consumers. Ties follow insertion order, which keeps resolution and
// rate propagation deterministic.
func (g *Graph) topological() []*node {
	indegree := make(map[*node]int, len(g.nodes))
	for _, n := range g.nodes {
		for _, e := range n.ins {
			if e != nil {
				indegree[n]++
			}
		}
	}
	ordered := make([]*node, 0, len(g.nodes))
	ready := make([]*node, 0, len(g.nodes))
	for _, n := range g.nodes {
		if indegree[n] == 0 {
			ready = append(ready, n)
		}
	}
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		ordered = append(ordered, n)
		for _, fanout := range n.outs {
			for _, e := range fanout {
				indegree[e.to]--
				if indegree[e.to] == 0 {
					ready = append(ready, e.to)
				}
			}
		}
	}
	return ordered
}

// edges returns all edges in deterministic producer order.
func (g *Graph) edges() []*edge {
	var all []*edge
	for _, n := range g.nodes {
		for _, fanout := range n.outs {
			all = append(all, fanout...)
		}
	}
	return all
}

// neighborEdges returns all edges touching n.
func (n *node) neighborEdges() []*edge {
	var all []*edge
	for _, e := range n.ins {
		if e != nil {
			all = append(all, e)
		}
	}
	for _, fanout := range n.outs {
		all = append(all, fanout...)
	}
	return all
}
