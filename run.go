package radio

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/clockz"

	"pipelined.dev/radio/dtype"
	"pipelined.dev/radio/internal/buffer"
	"pipelined.dev/radio/internal/runtime"
	"pipelined.dev/radio/metric"
)

type (
	clock     = clockz.Clock
	meterFunc func(block interface{}, sampleRate float64) metric.ResetFunc
)

// Status identifies one of the possible graph states.
type Status int

const (
	// StatusReady means the graph can be started.
	StatusReady Status = iota
	// StatusRunning means workers are executing.
	StatusRunning
	// StatusStopped means every worker has terminated.
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusStopped:
		return "stopped"
	}
	return "unknown"
}

// Option provides a way to set functional parameters to the graph.
type Option func(g *Graph) error

// New creates a new graph with the given transport chunk size, in
// samples, and applies provided options. Returned graph is in Ready
// state.
func New(bufferSize int, options ...Option) (*Graph, error) {
	if bufferSize <= 0 {
		return nil, fmt.Errorf("non-positive buffer size %d", bufferSize)
	}
	g := &Graph{
		uid:        newUID(),
		bufferSize: bufferSize,
		log:        silent,
		clock:      clockz.RealClock,
		lookup:     make(map[Block]*node),
	}
	for _, option := range options {
		if err := option(g); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// WithName sets name to the graph.
func WithName(n string) Option {
	return func(g *Graph) error {
		g.name = n
		return nil
	}
}

// WithLogger sets logger to the graph. If this option is not provided,
// silent logger is used.
func WithLogger(logger Logger) Option {
	return func(g *Graph) error {
		g.log = logger
		return nil
	}
}

// WithMetric adds metrics for this graph and all blocks.
func WithMetric() Option {
	return func(g *Graph) error {
		g.meter = metric.Meter
		return nil
	}
}

// WithRealtime throttles sources to their nominal sample rate. A nil
// clock means wall-clock time.
func WithRealtime(c clock) Option {
	return func(g *Graph) error {
		g.realtime = true
		if c != nil {
			g.clock = c
		}
		return nil
	}
}

// Convert graph to string. Name is included if it has value.
func (g *Graph) String() string {
	if g.name == "" {
		return g.uid
	}
	return fmt.Sprintf("%v %v", g.name, g.uid)
}

// runState holds everything that exists only between Start and the end
// of the run: the cancellation context, the edge buffers, the control
// channel and the aggregated result.
type runState struct {
	cancel   context.CancelFunc
	events   chan runtime.Event
	buffers  []interface{ Close() }
	workers  int
	status   int32
	stopOnce sync.Once
	done     chan struct{}
	err      error
}

func (r *runState) shutdown() {
	r.stopOnce.Do(func() {
		r.cancel()
		for _, b := range r.buffers {
			b.Close()
		}
	})
}

// Start freezes the graph, resolves signatures, propagates rates,
// allocates an edge buffer per connection and launches one worker per
// block. Construction-time failures are returned synchronously and
// leave the graph unlocked, with no workers spawned and no buffers
// allocated.
func (g *Graph) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		return ErrInvalidState
	}
	if len(g.nodes) == 0 {
		return fmt.Errorf("%w: empty graph", ErrInvalidState)
	}
	for _, n := range g.nodes {
		for port, e := range n.ins {
			if e == nil {
				return fmt.Errorf("%w: %s.in[%d] has no producer", ErrInvalidState, n.name(), port)
			}
		}
	}
	if err := g.resolve(); err != nil {
		return err
	}
	if err := g.propagateRates(); err != nil {
		return err
	}
	g.frozen = true

	ctx, cancel := context.WithCancel(context.Background())
	run := &runState{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	// allocate one buffer per output port, shared by its fan-out edges
	inputs := make(map[*edge]runtime.Input)
	outputs := make(map[*node][]runtime.Output)
	page := os.Getpagesize()
	for _, n := range g.nodes {
		outs := make([]runtime.Output, n.numOut)
		for port, fanout := range n.outs {
			if len(fanout) == 0 {
				outs[port] = discardOutput{}
				continue
			}
			t := n.resolved.Outputs[port]
			if t.Fixed() {
				ring := buffer.NewRing(t.Size, ringCapacity(t.Size, g.bufferSize, page))
				for _, e := range fanout {
					inputs[e] = runtime.FixedInput{Reader: ring.AddReader(), Type: t}
				}
				outs[port] = runtime.FixedOutput{Ring: ring, Type: t}
				run.buffers = append(run.buffers, ring)
			} else {
				queue := buffer.NewQueue(2 * g.bufferSize)
				for _, e := range fanout {
					inputs[e] = runtime.ObjectInput{Reader: queue.AddReader(), Type: t}
				}
				outs[port] = runtime.ObjectOutput{Queue: queue, Type: t}
				run.buffers = append(run.buffers, queue)
			}
		}
		outputs[n] = outs
	}

	workers := make([]*runtime.Worker, 0, len(g.nodes))
	for _, n := range g.nodes {
		w := &runtime.Worker{
			Block:   n.name(),
			Outputs: outputs[n],
			Fn:      n.block.Process,
		}
		for _, e := range n.ins {
			w.Inputs = append(w.Inputs, inputs[e])
		}
		if m, ok := n.block.(MinInputer); ok {
			w.MinInput = m.MinInput()
		}
		if f, ok := n.block.(Flusher); ok {
			w.Flush = f.Flush
		}
		if g.meter != nil {
			w.Meter = g.meter(n.block, n.rate)
		}
		if g.realtime && n.numIn == 0 {
			w.Clock = g.clock
			w.Rate = n.rate
		}
		workers = append(workers, w)
	}

	run.workers = len(workers)
	run.events = make(chan runtime.Event, 3*len(workers))
	for _, w := range workers {
		w.Events = run.events
		go w.Run(ctx)
	}
	g.run = run
	go g.supervise(run)
	g.log.Info("graph started: ", g.String())
	return nil
}

// supervise derives the graph state from the control channel alone: it
// counts worker starts and stops, aggregates the first fatal error per
// worker and initiates shutdown on the first failure.
func (g *Graph) supervise(run *runState) {
	var errs execErrors
	started, stopped := 0, 0
	for stopped < run.workers {
		ev := <-run.events
		g.log.Debug("control event: ", ev.Kind.String(), " ", ev.Block)
		switch ev.Kind {
		case runtime.Started:
			started++
			if started == run.workers {
				atomic.StoreInt32(&run.status, int32(StatusRunning))
			}
		case runtime.Error:
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrBlockRuntime, ev.Block, ev.Err))
			run.shutdown()
		case runtime.Stopped:
			stopped++
		}
	}
	run.shutdown()
	run.err = errs.ret()
	atomic.StoreInt32(&run.status, int32(StatusStopped))
	g.mu.Lock()
	g.frozen = false
	g.mu.Unlock()
	close(run.done)
}

// Stop broadcasts shutdown: the cancellation flag is set and every
// buffer write end is closed, so workers terminate within one process
// call plus buffer drain. Stop is idempotent and does not wait; use
// Wait for that.
func (g *Graph) Stop() {
	g.mu.Lock()
	run := g.run
	g.mu.Unlock()
	if run == nil {
		return
	}
	run.shutdown()
}

// Wait blocks until every worker has terminated and returns the
// aggregate of fatal worker errors, one per failed worker. It is
// idempotent after termination.
func (g *Graph) Wait() error {
	g.mu.Lock()
	run := g.run
	g.mu.Unlock()
	if run == nil {
		return nil
	}
	<-run.done
	return run.err
}

// Status reports the current graph state, derived from the control
// channel.
func (g *Graph) Status() Status {
	g.mu.Lock()
	run := g.run
	g.mu.Unlock()
	if run == nil {
		return StatusReady
	}
	return Status(atomic.LoadInt32(&run.status))
}

// ringCapacity picks a ring size in samples: at least twice the
// transport chunk, with the byte footprint rounded up to whole pages.
func ringCapacity(sampleSize, chunk, page int) int {
	minBytes := 2 * chunk * sampleSize
	pages := (minBytes + page - 1) / page
	return pages * page / sampleSize
}

// discardOutput drops samples written to an unconnected output port.
type discardOutput struct{}

func (discardOutput) Write(dtype.Buffer) error { return nil }
func (discardOutput) Close()                   {}

type silentLogger struct{}

func (silentLogger) Debug(...interface{}) {}
func (silentLogger) Info(...interface{})  {}

var silent silentLogger
