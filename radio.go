// Package radio implements a flow-graph runtime for streaming digital
// signal processing. A user composes a Graph of Blocks connected by
// typed sample streams; Start resolves one concrete signature per
// block, propagates sample rates from the sources, allocates an edge
// buffer per connection and drives every block on its own worker with
// back-pressured transport in between.
package radio

import (
	"pipelined.dev/radio/dtype"
)

type (
	// Accept describes what an input port accepts: either one concrete
	// type by name, or any type carrying a capability.
	Accept struct {
		Type       string
		Capability string
	}

	// Signature is one candidate port typing for a block: an Accept per
	// input port, a concrete type per output port and an optional rate
	// scaling factor per output. A nil RateScale means 1.0 everywhere.
	Signature struct {
		Inputs    []Accept
		Outputs   []string
		RateScale []float64
	}

	// Resolved is a signature after resolution, concrete on every port.
	Resolved struct {
		Inputs    []dtype.Type
		Outputs   []dtype.Type
		RateScale []float64
	}

	// Block is a unit of computation. Process receives one readable
	// buffer per input port and returns one buffer per output port.
	// Conventions, after the source/pump contract used across the
	// pipeline packages:
	//	- sources return io.EOF when the stream ends;
	//	- a block that cannot act on the window it was handed returns
	//	  dtype.ErrShortInput and is re-invoked with more input;
	//	- any other error is fatal for the graph.
	// A block consumes every sample it is handed.
	Block interface {
		Signatures() []Signature
		Process(in []dtype.Buffer) ([]dtype.Buffer, error)
	}

	// Initializer is implemented by blocks that precompute state from
	// the resolved signature and input rate. It is called once, after
	// resolution and rate assignment, before any Process call.
	Initializer interface {
		Initialize(resolved Resolved, sampleRate float64) error
	}

	// RateSource must be implemented by every block with no inputs; it
	// declares the nominal sample rate the block produces at.
	RateSource interface {
		SampleRate() float64
	}

	// Namer is implemented by blocks that want a stable name in logs
	// and errors instead of their generated ID.
	Namer interface {
		Name() string
	}

	// Flusher is implemented by blocks that hold external resources.
	// Flush is called once when the block's worker winds down,
	// regardless of how the run ended.
	Flusher interface {
		Flush() error
	}

	// MinInputer is implemented by blocks that need more than one
	// sample per Process call.
	MinInputer interface {
		MinInput() int
	}

	// Logger is a global interface for radio loggers.
	Logger interface {
		Debug(...interface{})
		Info(...interface{})
	}
)

// ErrShortInput mirrors dtype.ErrShortInput for block authors who only
// import this package.
var ErrShortInput = dtype.ErrShortInput

// AcceptType accepts exactly one concrete type.
func AcceptType(name string) Accept {
	return Accept{Type: name}
}

// AcceptCapability accepts any type carrying the capability.
func AcceptCapability(capability string) Accept {
	return Accept{Capability: capability}
}

// Matches reports whether a concrete producer type satisfies the accept.
func (a Accept) Matches(t dtype.Type) bool {
	if a.Capability != "" {
		return dtype.HasCapability(t.Name, a.Capability)
	}
	return a.Type == t.Name
}

func (a Accept) String() string {
	if a.Capability != "" {
		return "<" + a.Capability + ">"
	}
	return a.Type
}

// scale returns the rate scaling factor of output port i.
func (s Signature) scale(i int) float64 {
	if s.RateScale == nil || i >= len(s.RateScale) {
		return 1.0
	}
	return s.RateScale[i]
}
