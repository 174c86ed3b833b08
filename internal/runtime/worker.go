package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/zoobzio/clockz"

	"pipelined.dev/radio/dtype"
	"pipelined.dev/radio/internal/buffer"
	"pipelined.dev/radio/metric"
)

// ProcessFunc is the process step of one block.
type ProcessFunc func(in []dtype.Buffer) ([]dtype.Buffer, error)

// Worker drives one execution unit: read inputs, call the process
// step, write outputs. Implementations should use next error
// conventions for the process step:
//	- io.EOF means the stream ended and the unit shuts down cleanly;
//	- dtype.ErrShortInput means the call needs a larger input window;
//	- any other error is fatal and is relayed over the control channel.
type Worker struct {
	Block    string
	Inputs   []Input
	Outputs  []Output
	Fn       ProcessFunc
	Flush    func() error
	MinInput int
	Events   chan<- Event
	Meter    metric.ResetFunc

	// Clock and Rate throttle a source unit to its nominal sample
	// rate. Zero Rate disables pacing.
	Clock clockz.Clock
	Rate  float64
}

// Run executes the unit until end-of-stream, cancellation or a fatal
// error. Outputs are closed on the way out so consumers observe
// end-of-stream; the final event is always Stopped.
func (w *Worker) Run(ctx context.Context) {
	w.Events <- Event{Kind: Started, Block: w.Block}
	err := w.run(ctx)
	for _, in := range w.Inputs {
		in.Close()
	}
	for _, out := range w.Outputs {
		out.Close()
	}
	if w.Flush != nil {
		if flushErr := w.Flush(); flushErr != nil && err == nil {
			err = fmt.Errorf("flush: %w", flushErr)
		}
	}
	if err != nil {
		w.Events <- Event{Kind: Error, Block: w.Block, Err: err}
	}
	w.Events <- Event{Kind: Stopped, Block: w.Block}
}

func (w *Worker) run(ctx context.Context) error {
	min := w.MinInput
	if min < 1 {
		min = 1
	}
	var measure metric.MeasureFunc
	if w.Meter != nil {
		measure = w.Meter()
	}
	var pace *pacer
	if w.Clock != nil && w.Rate > 0 {
		pace = &pacer{clock: w.Clock, rate: w.Rate, start: w.Clock.Now()}
	}
	need := min
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		ins := make([]dtype.Buffer, len(w.Inputs))
		window := 0
		closing := false
		for i, in := range w.Inputs {
			buf, err := in.Peek(need)
			if err != nil {
				if !errors.Is(err, buffer.ErrClosed) {
					return err
				}
				if buf.Len() == 0 {
					return nil
				}
				closing = true
			}
			ins[i] = buf
			if i == 0 || buf.Len() < window {
				window = buf.Len()
			}
		}
		for i := range ins {
			ins[i] = ins[i].Slice(0, window)
		}

		out, err := w.Fn(ins)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, dtype.ErrShortInput):
			if closing {
				// trailing partial window, upstream is done
				return nil
			}
			need = window + 1
			continue
		default:
			return err
		}
		need = min

		if len(out) != len(w.Outputs) {
			return fmt.Errorf("process returned %d outputs, want %d", len(out), len(w.Outputs))
		}
		// outputs may alias the input window, so they are flushed
		// downstream before the cursors advance
		produced := window
		for i, o := range w.Outputs {
			if i == 0 {
				produced = out[i].Len()
			}
			if err := o.Write(out[i]); err != nil {
				// downstream terminated, unwind quietly
				return nil
			}
		}
		for i, in := range w.Inputs {
			in.Advance(ins[i].Len())
		}
		if measure != nil {
			measure(int64(produced))
		}
		if pace != nil && !pace.wait(ctx, produced) {
			return nil
		}
	}
}

// pacer throttles a source to its nominal sample rate.
type pacer struct {
	clock    clockz.Clock
	rate     float64
	start    time.Time
	produced int64
}

// wait sleeps off the lead the source has built over wall-clock time.
// It returns false when cancelled.
func (p *pacer) wait(ctx context.Context, n int) bool {
	p.produced += int64(n)
	ahead := dtype.DurationOf(p.rate, p.produced) - p.clock.Now().Sub(p.start)
	if ahead <= 0 {
		return true
	}
	timer := p.clock.NewTimer(ahead)
	defer timer.Stop()
	select {
	case <-timer.C():
		return true
	case <-ctx.Done():
		return false
	}
}
