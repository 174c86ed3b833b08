package wav_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/radio"
	"pipelined.dev/radio/mock"
	"pipelined.dev/radio/wav"
)

const bufferSize = 512

func TestSinkValidation(t *testing.T) {
	_, err := wav.NewSink("out.wav", 24)
	assert.Equal(t, wav.ErrUnsupportedBitDepth, err)
}

func TestSourceValidation(t *testing.T) {
	_, err := wav.NewSource(filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)
}

// a stream is written to a wav file and read back through a second
// graph at the file's own rate.
func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roundtrip.wav")

	source := &mock.Source{Rate: 8000, Limit: 1000, Value: 0.5}
	sink, err := wav.NewSink(path, 16)
	assert.NoError(t, err)

	g, err := radio.New(bufferSize)
	assert.NoError(t, err)
	assert.NoError(t, g.Connect(source, 0, sink, 0))
	assert.NoError(t, g.Start())
	assert.NoError(t, g.Wait())

	fileSource, err := wav.NewSource(path)
	assert.NoError(t, err)
	assert.Equal(t, 8000.0, fileSource.SampleRate())

	collector := &mock.Sink{}
	g, err = radio.New(bufferSize)
	assert.NoError(t, err)
	assert.NoError(t, g.Connect(fileSource, 0, collector, 0))
	assert.NoError(t, g.Start())
	assert.NoError(t, g.Wait())

	assert.Equal(t, 8000.0, collector.InputRate())
	assert.Equal(t, 1000, len(collector.Values))
	for _, v := range collector.Values {
		assert.InDelta(t, 0.5, v, 1e-3)
	}
}
