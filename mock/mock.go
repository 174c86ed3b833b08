// Package mock provides configurable blocks to test graph resolution,
// rate propagation and transport.
package mock

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"pipelined.dev/radio"
	"pipelined.dev/radio/dtype"
)

const (
	defaultChunk = 64
	defaultRate  = 44100
)

// CapNumeric marks the real32 and complex32 sample types; AnySink uses
// it as its input predicate.
const CapNumeric = "numeric"

func init() {
	for _, t := range []dtype.Type{dtype.Real32, dtype.Complex32} {
		if err := dtype.AddCapability(t.Name, CapNumeric); err != nil {
			panic(err)
		}
	}
}

// Counter counts messages and samples.
type Counter struct {
	Messages int
	Samples  int
}

// advance counter's metrics.
func (c *Counter) advance(size int) {
	c.Messages++
	c.Samples = c.Samples + size
}

// Source produces a real32 ramp 0, 1, 2..., or the constant Value when
// Value is non-zero, Limit samples in total.
type Source struct {
	Counter
	Rate  float64
	Limit int
	Chunk int
	Value float32

	pos int
}

// SampleRate returns the nominal rate of the source.
func (s *Source) SampleRate() float64 {
	if s.Rate == 0 {
		return defaultRate
	}
	return s.Rate
}

// Signatures declares a single real32 output.
func (s *Source) Signatures() []radio.Signature {
	return []radio.Signature{
		{Outputs: []string{dtype.Real32.Name}},
	}
}

// Process emits the next chunk of the ramp.
func (s *Source) Process([]dtype.Buffer) ([]dtype.Buffer, error) {
	if s.pos >= s.Limit {
		return nil, io.EOF
	}
	chunk := s.Chunk
	if chunk == 0 {
		chunk = defaultChunk
	}
	if remaining := s.Limit - s.pos; remaining < chunk {
		chunk = remaining
	}
	out := dtype.MakeFixed(dtype.Real32, chunk)
	for i := 0; i < chunk; i++ {
		v := float32(s.pos + i)
		if s.Value != 0 {
			v = s.Value
		}
		dtype.PutFloat32(out.Data, i, v)
	}
	s.pos += chunk
	s.advance(chunk)
	return []dtype.Buffer{out}, nil
}

// Gain multiplies a real32 stream by Factor.
type Gain struct {
	Counter
	Factor float32

	rate float64
}

// Signatures declares real32 in, real32 out.
func (g *Gain) Signatures() []radio.Signature {
	return []radio.Signature{
		{Inputs: []radio.Accept{radio.AcceptType(dtype.Real32.Name)}, Outputs: []string{dtype.Real32.Name}},
	}
}

// Initialize captures the propagated rate.
func (g *Gain) Initialize(_ radio.Resolved, sampleRate float64) error {
	g.rate = sampleRate
	return nil
}

// InputRate returns the rate observed during initialization.
func (g *Gain) InputRate() float64 {
	return g.rate
}

// Process scales the input window.
func (g *Gain) Process(in []dtype.Buffer) ([]dtype.Buffer, error) {
	n := in[0].Len()
	out := dtype.MakeFixed(dtype.Real32, n)
	for i := 0; i < n; i++ {
		dtype.PutFloat32(out.Data, i, g.Factor*dtype.Float32At(in[0].Data, i))
	}
	g.advance(n)
	return []dtype.Buffer{out}, nil
}

// Multiply computes the element-wise product of two same-typed
// streams. It is overloaded: a complex32 and a real32 candidate.
// SwapCandidates flips the declaration order to exercise tie-breaks.
type Multiply struct {
	Counter
	SwapCandidates bool

	resolved radio.Resolved
}

// Signatures declares the complex and the real overloads.
func (m *Multiply) Signatures() []radio.Signature {
	complexSig := radio.Signature{
		Inputs:  []radio.Accept{radio.AcceptType(dtype.Complex32.Name), radio.AcceptType(dtype.Complex32.Name)},
		Outputs: []string{dtype.Complex32.Name},
	}
	realSig := radio.Signature{
		Inputs:  []radio.Accept{radio.AcceptType(dtype.Real32.Name), radio.AcceptType(dtype.Real32.Name)},
		Outputs: []string{dtype.Real32.Name},
	}
	if m.SwapCandidates {
		return []radio.Signature{realSig, complexSig}
	}
	return []radio.Signature{complexSig, realSig}
}

// Initialize keeps the resolved signature to pick the overload.
func (m *Multiply) Initialize(resolved radio.Resolved, _ float64) error {
	m.resolved = resolved
	return nil
}

// Resolved exposes the chosen signature.
func (m *Multiply) Resolved() radio.Resolved {
	return m.resolved
}

// Process multiplies both input windows element-wise.
func (m *Multiply) Process(in []dtype.Buffer) ([]dtype.Buffer, error) {
	n := in[0].Len()
	if in[1].Len() < n {
		n = in[1].Len()
	}
	t := m.resolved.Outputs[0]
	out := dtype.MakeFixed(t, n)
	if t.Equal(dtype.Complex32) {
		for i := 0; i < n; i++ {
			dtype.PutComplex64(out.Data, i, dtype.Complex64At(in[0].Data, i)*dtype.Complex64At(in[1].Data, i))
		}
	} else {
		for i := 0; i < n; i++ {
			dtype.PutFloat32(out.Data, i, dtype.Float32At(in[0].Data, i)*dtype.Float32At(in[1].Data, i))
		}
	}
	m.advance(n)
	return []dtype.Buffer{out}, nil
}

// Sink collects a real32 stream. Delay, when set, pauses the sink
// after every DelayEvery samples to exercise back-pressure.
type Sink struct {
	Counter
	Discard    bool
	Delay      time.Duration
	DelayEvery int

	Values      []float32
	sinceDelay  int
	initialized bool
	rate        float64
}

// Signatures declares a single real32 input.
func (s *Sink) Signatures() []radio.Signature {
	return []radio.Signature{
		{Inputs: []radio.Accept{radio.AcceptType(dtype.Real32.Name)}},
	}
}

// Initialize captures the propagated rate.
func (s *Sink) Initialize(_ radio.Resolved, sampleRate float64) error {
	s.initialized = true
	s.rate = sampleRate
	return nil
}

// InputRate returns the rate observed during initialization.
func (s *Sink) InputRate() float64 {
	return s.rate
}

// Process collects the input window.
func (s *Sink) Process(in []dtype.Buffer) ([]dtype.Buffer, error) {
	n := in[0].Len()
	if !s.Discard {
		s.Values = append(s.Values, dtype.Float32s(in[0].Data)...)
	}
	s.advance(n)
	if s.Delay > 0 {
		s.sinceDelay += n
		if s.DelayEvery == 0 || s.sinceDelay >= s.DelayEvery {
			s.sinceDelay = 0
			time.Sleep(s.Delay)
		}
	}
	return nil, nil
}

// Failer fails on demand: ErrorOnInit rejects initialization,
// ErrorOnProcess fails the first process call.
type Failer struct {
	ErrorOnInit    error
	ErrorOnProcess error
}

// Signatures declares real32 in, real32 out.
func (f *Failer) Signatures() []radio.Signature {
	return []radio.Signature{
		{Inputs: []radio.Accept{radio.AcceptType(dtype.Real32.Name)}, Outputs: []string{dtype.Real32.Name}},
	}
}

// Initialize fails when configured to.
func (f *Failer) Initialize(radio.Resolved, float64) error {
	return f.ErrorOnInit
}

// Process fails when configured to, passes the window through otherwise.
func (f *Failer) Process(in []dtype.Buffer) ([]dtype.Buffer, error) {
	if f.ErrorOnProcess != nil {
		return nil, f.ErrorOnProcess
	}
	return []dtype.Buffer{in[0]}, nil
}

// Decimator keeps every Factor-th real32 sample and scales the output
// rate accordingly.
type Decimator struct {
	Counter
	Factor int

	rate   float64
	offset int
}

// Signatures declares real32 in, real32 out at 1/Factor of the rate.
func (d *Decimator) Signatures() []radio.Signature {
	factor := d.Factor
	if factor == 0 {
		factor = 2
	}
	return []radio.Signature{
		{
			Inputs:    []radio.Accept{radio.AcceptType(dtype.Real32.Name)},
			Outputs:   []string{dtype.Real32.Name},
			RateScale: []float64{1 / float64(factor)},
		},
	}
}

// Initialize captures the propagated rate.
func (d *Decimator) Initialize(_ radio.Resolved, sampleRate float64) error {
	d.rate = sampleRate
	if d.Factor == 0 {
		d.Factor = 2
	}
	return nil
}

// InputRate returns the rate observed during initialization.
func (d *Decimator) InputRate() float64 {
	return d.rate
}

// Process forwards every Factor-th sample of the window.
func (d *Decimator) Process(in []dtype.Buffer) ([]dtype.Buffer, error) {
	n := in[0].Len()
	out := dtype.MakeFixed(dtype.Real32, 0)
	for i := 0; i < n; i++ {
		if (d.offset+i)%d.Factor == 0 {
			out.Data = dtype.AppendFloat32s(out.Data, dtype.Float32At(in[0].Data, i))
		}
	}
	d.offset = (d.offset + n) % d.Factor
	d.advance(n)
	return []dtype.Buffer{out}, nil
}

// ComplexSource produces a complex32 ramp (k, -k), Limit samples in
// total.
type ComplexSource struct {
	Counter
	Rate  float64
	Limit int
	Chunk int

	pos int
}

// SampleRate returns the nominal rate of the source.
func (s *ComplexSource) SampleRate() float64 {
	if s.Rate == 0 {
		return defaultRate
	}
	return s.Rate
}

// Signatures declares a single complex32 output.
func (s *ComplexSource) Signatures() []radio.Signature {
	return []radio.Signature{
		{Outputs: []string{dtype.Complex32.Name}},
	}
}

// Process emits the next chunk of the ramp.
func (s *ComplexSource) Process([]dtype.Buffer) ([]dtype.Buffer, error) {
	if s.pos >= s.Limit {
		return nil, io.EOF
	}
	chunk := s.Chunk
	if chunk == 0 {
		chunk = defaultChunk
	}
	if remaining := s.Limit - s.pos; remaining < chunk {
		chunk = remaining
	}
	out := dtype.MakeFixed(dtype.Complex32, chunk)
	for i := 0; i < chunk; i++ {
		k := float32(s.pos + i)
		dtype.PutComplex64(out.Data, i, complex(k, -k))
	}
	s.pos += chunk
	s.advance(chunk)
	return []dtype.Buffer{out}, nil
}

// Window passes real32 samples through once at least Size samples are
// available, asking for more input on shorter windows.
type Window struct {
	Counter
	Size int
}

// MinInput declares the smallest window the block acts on.
func (w *Window) MinInput() int {
	return w.Size
}

// Signatures declares real32 in, real32 out.
func (w *Window) Signatures() []radio.Signature {
	return []radio.Signature{
		{Inputs: []radio.Accept{radio.AcceptType(dtype.Real32.Name)}, Outputs: []string{dtype.Real32.Name}},
	}
}

// Process forwards whole windows only.
func (w *Window) Process(in []dtype.Buffer) ([]dtype.Buffer, error) {
	n := in[0].Len()
	if n < w.Size {
		return nil, dtype.ErrShortInput
	}
	w.advance(n)
	return []dtype.Buffer{in[0]}, nil
}

// AnySource is overloaded on its only output: a complex32 candidate
// declared before a real32 one. It emits a ramp in the resolved type.
type AnySource struct {
	Counter
	Rate  float64
	Limit int
	Chunk int

	resolved radio.Resolved
	pos      int
}

// SampleRate returns the nominal rate of the source.
func (s *AnySource) SampleRate() float64 {
	if s.Rate == 0 {
		return defaultRate
	}
	return s.Rate
}

// Signatures declares the complex and the real output candidates.
func (s *AnySource) Signatures() []radio.Signature {
	return []radio.Signature{
		{Outputs: []string{dtype.Complex32.Name}},
		{Outputs: []string{dtype.Real32.Name}},
	}
}

// Initialize keeps the resolved signature to pick the emitted type.
func (s *AnySource) Initialize(resolved radio.Resolved, _ float64) error {
	s.resolved = resolved
	return nil
}

// Process emits the next chunk of the ramp in the resolved type.
func (s *AnySource) Process([]dtype.Buffer) ([]dtype.Buffer, error) {
	if s.pos >= s.Limit {
		return nil, io.EOF
	}
	chunk := s.Chunk
	if chunk == 0 {
		chunk = defaultChunk
	}
	if remaining := s.Limit - s.pos; remaining < chunk {
		chunk = remaining
	}
	t := s.resolved.Outputs[0]
	out := dtype.MakeFixed(t, chunk)
	for i := 0; i < chunk; i++ {
		if t.Equal(dtype.Complex32) {
			dtype.PutComplex64(out.Data, i, complex(float32(s.pos+i), 0))
		} else {
			dtype.PutFloat32(out.Data, i, float32(s.pos+i))
		}
	}
	s.pos += chunk
	s.advance(chunk)
	return []dtype.Buffer{out}, nil
}

// AnySink accepts any numeric type through a capability predicate and
// discards the stream.
type AnySink struct {
	Counter

	resolved radio.Resolved
}

// Signatures declares a predicate input: any numeric type.
func (s *AnySink) Signatures() []radio.Signature {
	return []radio.Signature{
		{Inputs: []radio.Accept{radio.AcceptCapability(CapNumeric)}},
	}
}

// Initialize keeps the resolved signature.
func (s *AnySink) Initialize(resolved radio.Resolved, _ float64) error {
	s.resolved = resolved
	return nil
}

// Resolved exposes the concrete input type.
func (s *AnySink) Resolved() radio.Resolved {
	return s.resolved
}

// Process discards the input window.
func (s *AnySink) Process(in []dtype.Buffer) ([]dtype.Buffer, error) {
	s.advance(in[0].Len())
	return nil, nil
}

// PickySink is overloaded on its only input with two concrete
// candidates: complex32 declared before real32. Unlike AnySink it
// never seeds resolution, so an all-overloaded subgraph stays
// ambiguous.
type PickySink struct {
	Counter
}

// Signatures declares the complex and the real input candidates.
func (s *PickySink) Signatures() []radio.Signature {
	return []radio.Signature{
		{Inputs: []radio.Accept{radio.AcceptType(dtype.Complex32.Name)}},
		{Inputs: []radio.Accept{radio.AcceptType(dtype.Real32.Name)}},
	}
}

// Process discards the input window.
func (s *PickySink) Process(in []dtype.Buffer) ([]dtype.Buffer, error) {
	s.advance(in[0].Len())
	return nil, nil
}

// ComplexProbe collects a complex32 stream.
type ComplexProbe struct {
	Counter
	Values []complex64
}

// Signatures declares a single complex32 input.
func (p *ComplexProbe) Signatures() []radio.Signature {
	return []radio.Signature{
		{Inputs: []radio.Accept{radio.AcceptType(dtype.Complex32.Name)}},
	}
}

// Process collects the input window.
func (p *ComplexProbe) Process(in []dtype.Buffer) ([]dtype.Buffer, error) {
	n := in[0].Len()
	for i := 0; i < n; i++ {
		p.Values = append(p.Values, dtype.Complex64At(in[0].Data, i))
	}
	p.advance(n)
	return nil, nil
}

// Packet is the structured object streamed by PacketSource.
type Packet struct {
	Seq     int    `json:"seq"`
	Payload string `json:"payload"`
}

// PacketType registers the "packet" object type with JSON codecs and
// the json capability.
func PacketType() dtype.Type {
	t, err := dtype.RegisterObject("packet", encodePacket, decodePacket)
	if err != nil {
		panic(err)
	}
	if err := dtype.AddCapability(t.Name, dtype.CapJSON); err != nil {
		panic(err)
	}
	return t
}

func encodePacket(obj interface{}) ([]byte, error) {
	p, ok := obj.(Packet)
	if !ok {
		return nil, fmt.Errorf("encode packet: unexpected %T", obj)
	}
	return json.Marshal(p)
}

func decodePacket(data []byte) (interface{}, error) {
	var p Packet
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// PacketSource produces Limit packets, one per process call.
type PacketSource struct {
	Counter
	Rate  float64
	Limit int

	pos int
}

// SampleRate returns the nominal rate of the source.
func (s *PacketSource) SampleRate() float64 {
	if s.Rate == 0 {
		return defaultRate
	}
	return s.Rate
}

// Signatures declares a single packet output.
func (s *PacketSource) Signatures() []radio.Signature {
	return []radio.Signature{
		{Outputs: []string{PacketType().Name}},
	}
}

// Process emits the next packet.
func (s *PacketSource) Process([]dtype.Buffer) ([]dtype.Buffer, error) {
	if s.pos >= s.Limit {
		return nil, io.EOF
	}
	p := Packet{Seq: s.pos, Payload: fmt.Sprintf("payload-%d", s.pos)}
	s.pos++
	s.advance(1)
	return []dtype.Buffer{dtype.MakeObjects(PacketType(), p)}, nil
}

// JSONSink accepts any object type carrying the json capability and
// collects the re-encoded byte form of every object it consumes.
type JSONSink struct {
	Counter

	Objects []interface{}
	Encoded [][]byte

	resolved radio.Resolved
}

// Signatures declares a predicate input: any type with a JSON encoder.
func (s *JSONSink) Signatures() []radio.Signature {
	return []radio.Signature{
		{Inputs: []radio.Accept{radio.AcceptCapability(dtype.CapJSON)}},
	}
}

// Initialize keeps the resolved signature for re-encoding.
func (s *JSONSink) Initialize(resolved radio.Resolved, _ float64) error {
	s.resolved = resolved
	return nil
}

// Process collects objects and their encoded form.
func (s *JSONSink) Process(in []dtype.Buffer) ([]dtype.Buffer, error) {
	for _, obj := range in[0].Objects {
		encoded, err := s.resolved.Inputs[0].Encode(obj)
		if err != nil {
			return nil, err
		}
		s.Objects = append(s.Objects, obj)
		s.Encoded = append(s.Encoded, encoded)
	}
	s.advance(in[0].Len())
	return nil, nil
}
