// Package wav provides blocks that bridge real32 streams and WAV
// files: a Source reading a mono file at its own rate and a Sink
// encoding a stream into a file.
package wav

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"pipelined.dev/radio"
	"pipelined.dev/radio/dtype"
)

// ErrUnsupportedBitDepth is returned when unsupported bit depth is used.
var ErrUnsupportedBitDepth = errors.New("only 16 and 32 bit depth is supported")

const defaultChunk = 512

type (
	// Source reads a mono wav file into a real32 stream.
	// This block cannot be reused for consequent runs.
	Source struct {
		Chunk    int
		path     string
		file     *os.File
		decoder  *wav.Decoder
		buf      *audio.IntBuffer
		rate     float64
		bitDepth int
	}

	// Sink saves a real32 stream to a wav file.
	Sink struct {
		path     string
		bitDepth int
		file     *os.File
		encoder  *wav.Encoder
		buf      *audio.IntBuffer
	}
)

// NewSource opens a wav file and validates its format.
func NewSource(path string) (*Source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		if closeErr := file.Close(); closeErr != nil {
			return nil, fmt.Errorf("wav is not valid, failed to close the file %v", path)
		}
		return nil, errors.New("wav is not valid")
	}
	if decoder.BitDepth != 16 && decoder.BitDepth != 32 {
		_ = file.Close()
		return nil, ErrUnsupportedBitDepth
	}
	if decoder.Format().NumChannels != 1 {
		_ = file.Close()
		return nil, fmt.Errorf("wav source needs a mono file, got %d channels", decoder.Format().NumChannels)
	}
	return &Source{
		path:     path,
		file:     file,
		decoder:  decoder,
		rate:     float64(decoder.SampleRate),
		bitDepth: int(decoder.BitDepth),
	}, nil
}

// SampleRate returns the rate of the underlying file.
func (s *Source) SampleRate() float64 {
	return s.rate
}

// Signatures declares a single real32 output.
func (s *Source) Signatures() []radio.Signature {
	return []radio.Signature{
		{Outputs: []string{dtype.Real32.Name}},
	}
}

// Process decodes the next chunk of the file.
func (s *Source) Process([]dtype.Buffer) ([]dtype.Buffer, error) {
	chunk := s.Chunk
	if chunk == 0 {
		chunk = defaultChunk
	}
	if s.buf == nil {
		s.buf = &audio.IntBuffer{
			Format:         s.decoder.Format(),
			Data:           make([]int, chunk),
			SourceBitDepth: s.bitDepth,
		}
	}
	read, err := s.decoder.PCMBuffer(s.buf)
	if err != nil {
		return nil, err
	}
	if read == 0 {
		return nil, io.EOF
	}
	scale := float32(devider(s.bitDepth))
	out := dtype.MakeFixed(dtype.Real32, read)
	for i := 0; i < read; i++ {
		dtype.PutFloat32(out.Data, i, float32(s.buf.Data[i])/scale)
	}
	return []dtype.Buffer{out}, nil
}

// Flush closes the file.
func (s *Source) Flush() error {
	return s.file.Close()
}

// NewSink creates new wav sink.
func NewSink(path string, bitDepth int) (*Sink, error) {
	if bitDepth != 16 && bitDepth != 32 {
		return nil, ErrUnsupportedBitDepth
	}
	return &Sink{
		path:     path,
		bitDepth: bitDepth,
	}, nil
}

// Signatures declares a single real32 input.
func (s *Sink) Signatures() []radio.Signature {
	return []radio.Signature{
		{Inputs: []radio.Accept{radio.AcceptType(dtype.Real32.Name)}},
	}
}

// Initialize creates the file once the sample rate is known.
func (s *Sink) Initialize(_ radio.Resolved, sampleRate float64) error {
	file, err := os.Create(s.path)
	if err != nil {
		return err
	}
	s.file = file
	s.encoder = wav.NewEncoder(file, int(sampleRate), s.bitDepth, 1, 1)
	s.buf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  int(sampleRate),
		},
		SourceBitDepth: s.bitDepth,
	}
	return nil
}

// Process encodes the input window.
func (s *Sink) Process(in []dtype.Buffer) ([]dtype.Buffer, error) {
	n := in[0].Len()
	scale := float32(multiplier(s.bitDepth))
	if cap(s.buf.Data) < n {
		s.buf.Data = make([]int, n)
	}
	s.buf.Data = s.buf.Data[:n]
	for i := 0; i < n; i++ {
		s.buf.Data[i] = int(dtype.Float32At(in[0].Data, i) * scale)
	}
	return nil, s.encoder.Write(s.buf)
}

// Flush flushes encoder.
func (s *Sink) Flush() error {
	if s.encoder == nil {
		return nil
	}
	if err := s.encoder.Close(); err != nil {
		return err
	}
	return s.file.Close()
}

// devider is used when int to float conversion is done.
func devider(bitDepth int) int {
	switch bitDepth {
	case 16:
		return math.MaxInt16
	case 32:
		return math.MaxInt32
	default:
		return 1
	}
}

// multiplier is used when float to int conversion is done.
func multiplier(bitDepth int) int {
	switch bitDepth {
	case 16:
		return math.MaxInt16 - 1
	case 32:
		return math.MaxInt32 - 1
	default:
		return 1
	}
}
