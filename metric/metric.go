// Package metric collects expvar counters for graph blocks: number of
// process calls, samples moved, call latency and streamed duration.
package metric

import (
	"expvar"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"pipelined.dev/radio/dtype"
)

const blocksLabel = "radio.blocks"

const (
	// CallCounter measures number of process calls.
	CallCounter = "Calls"
	// SampleCounter measures number of samples.
	SampleCounter = "Samples"
	// LatencyCounter measures latency between process calls.
	LatencyCounter = "Latency"
	// DurationCounter counts what's the duration of signal.
	DurationCounter = "Duration"
	// BlockCounter counts number of running blocks.
	BlockCounter = "Blocks"
)

var (
	blocks = metrics{
		m: make(map[string]metric),
	}

	counters = []string{
		CallCounter,
		SampleCounter,
		LatencyCounter,
		DurationCounter,
		BlockCounter,
	}
)

// Get metrics values for provided block type.
func Get(block interface{}) map[string]string {
	return getCounters(getType(block))
}

// GetAll returns counters for all measured block types.
func GetAll() map[string]map[string]string {
	m := make(map[string]map[string]string)
	blocks.Lock()
	defer blocks.Unlock()
	for block := range blocks.m {
		m[block] = getCounters(block)
	}
	return m
}

func getCounters(blockType string) map[string]string {
	m := make(map[string]string)
	for _, counter := range counters {
		v := expvar.Get(key(blockType, counter))
		if v != nil {
			m[counter] = v.String()
		}
	}
	return m
}

// ResetFunc returns new Measure closure. This closure is needed to postpone
// metrics capture until the block is actually running.
type ResetFunc func() MeasureFunc

// MeasureFunc captures metrics when a buffer is processed.
type MeasureFunc func(samples int64)

// Meter creates new meter closure to capture block counters.
func Meter(block interface{}, sampleRate float64) ResetFunc {
	t := getType(block)
	metric := blocks.get(t)
	metric.blocks.Add(1)
	return func() MeasureFunc {
		calledAt := time.Now()
		var (
			bufferSize     int64
			bufferDuration time.Duration
		)
		return func(s int64) {
			metric.latency.set(time.Since(calledAt))
			metric.calls.Add(1)
			metric.samples.Add(s)
			// recalculate buffer duration only when buffer size has changed
			if bufferSize != s {
				bufferSize = s
				bufferDuration = dtype.DurationOf(sampleRate, s)
			}
			metric.duration.add(bufferDuration)
			calledAt = time.Now()
		}
	}
}

type metrics struct {
	sync.Mutex
	m map[string]metric
}

func (m *metrics) get(blockType string) metric {
	m.Lock()
	defer m.Unlock()
	if metric, ok := m.m[blockType]; ok {
		// return existing metric if available
		return metric
	}
	// create new metric
	metric := newMetric(blockType)
	m.m[blockType] = metric
	return metric
}

type metric struct {
	key      string
	blocks   *expvar.Int
	calls    *expvar.Int
	samples  *expvar.Int
	latency  *duration
	duration *duration
}

func newMetric(blockType string) metric {
	m := metric{
		key:      blockType,
		blocks:   expvar.NewInt(key(blockType, BlockCounter)),
		calls:    expvar.NewInt(key(blockType, CallCounter)),
		samples:  expvar.NewInt(key(blockType, SampleCounter)),
		latency:  &duration{},
		duration: &duration{},
	}
	expvar.Publish(key(blockType, LatencyCounter), m.latency)
	expvar.Publish(key(blockType, DurationCounter), m.duration)
	return m
}

func key(blockType, counter string) string {
	return fmt.Sprintf("%s.%s.%s", blocksLabel, blockType, counter)
}

func getType(block interface{}) string {
	rv := reflect.ValueOf(block)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}
	return rv.Type().String()
}

// duration allows to format time.Duration metric values.
type duration struct {
	d int64
}

func (v *duration) String() string {
	return fmt.Sprintf("%v", time.Duration(atomic.LoadInt64(&v.d)))
}

func (v *duration) add(delta time.Duration) {
	atomic.AddInt64(&v.d, int64(delta))
}

func (v *duration) set(value time.Duration) {
	atomic.StoreInt64(&v.d, int64(value))
}
