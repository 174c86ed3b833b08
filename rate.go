package radio

import "fmt"

// propagateRates walks the resolved graph in topological order,
// assigning a sample rate to every block and edge. A source exposes its
// nominal rate; every other block inherits the rate of its first input
// edge and must see the same rate on all inputs. Output edges carry the
// input rate scaled by the resolved signature. Each block is
// initialized right after its rate is known, so it can precompute
// rate-dependent coefficients.
func (g *Graph) propagateRates() error {
	for _, n := range g.topological() {
		if n.numIn == 0 {
			source, ok := n.block.(RateSource)
			if !ok {
				return fmt.Errorf("%w: source %s declares no sample rate", ErrBlockInit, n.name())
			}
			n.rate = source.SampleRate()
			if n.rate <= 0 {
				return fmt.Errorf("%w: source %s declares sample rate %v", ErrBlockInit, n.name(), n.rate)
			}
		} else {
			n.rate = n.ins[0].rate
			for _, e := range n.ins {
				if e.rate != n.rate {
					return fmt.Errorf("%w: %s sees %v on in[0] and %v on in[%d]", ErrRateMismatch, n.name(), n.rate, e.rate, e.toPort)
				}
			}
		}
		for port, fanout := range n.outs {
			rate := n.rate * n.resolved.RateScale[port]
			for _, e := range fanout {
				e.rate = rate
			}
		}
		if init, ok := n.block.(Initializer); ok {
			if err := init.Initialize(n.resolved, n.rate); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrBlockInit, n.name(), err)
			}
		}
	}
	return nil
}
