package radio_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/radio"
	"pipelined.dev/radio/mock"
)

const bufferSize = 512

func TestConnectFanInConflict(t *testing.T) {
	g, err := radio.New(bufferSize)
	assert.NoError(t, err)

	first := &mock.Source{Limit: 10}
	second := &mock.Source{Limit: 10}
	sink := &mock.Sink{}

	assert.NoError(t, g.Connect(first, 0, sink, 0))
	err = g.Connect(second, 0, sink, 0)
	assert.True(t, errors.Is(err, radio.ErrFanInConflict))
}

func TestConnectCycle(t *testing.T) {
	g, err := radio.New(bufferSize)
	assert.NoError(t, err)

	first := &mock.Gain{Factor: 1}
	second := &mock.Gain{Factor: 1}

	assert.NoError(t, g.Connect(first, 0, second, 0))
	err = g.Connect(second, 0, first, 0)
	assert.True(t, errors.Is(err, radio.ErrCycle))

	// self loop
	third := &mock.Gain{Factor: 1}
	err = g.Connect(third, 0, third, 0)
	assert.True(t, errors.Is(err, radio.ErrCycle))
}

func TestConnectPortRange(t *testing.T) {
	g, err := radio.New(bufferSize)
	assert.NoError(t, err)

	source := &mock.Source{Limit: 10}
	sink := &mock.Sink{}

	assert.Error(t, g.Connect(source, 1, sink, 0))
	assert.Error(t, g.Connect(source, 0, sink, 1))
}

func TestTopologyQueries(t *testing.T) {
	g, err := radio.New(bufferSize)
	assert.NoError(t, err)

	source := &mock.Source{Limit: 10}
	gain := &mock.Gain{Factor: 2}
	sink := &mock.Sink{}

	assert.NoError(t, g.Connect(source, 0, gain, 0))
	assert.NoError(t, g.Connect(gain, 0, sink, 0))

	assert.Equal(t, []radio.Block{source}, g.Sources())
	assert.Equal(t, []radio.Block{sink}, g.Sinks())
	assert.Equal(t, []radio.Block{sink, gain, source}, g.ReverseTopological())
}

func TestRemove(t *testing.T) {
	g, err := radio.New(bufferSize)
	assert.NoError(t, err)

	source := &mock.Source{Limit: 10}
	gain := &mock.Gain{Factor: 2}
	sink := &mock.Sink{}

	assert.NoError(t, g.Connect(source, 0, gain, 0))
	assert.NoError(t, g.Connect(gain, 0, sink, 0))
	assert.NoError(t, g.Remove(gain))

	// both former neighbors lost their edges
	assert.Equal(t, []radio.Block{source}, g.Sources())
	assert.Equal(t, []radio.Block{sink}, g.Sinks())

	// the sink's input port is free again
	assert.NoError(t, g.Connect(source, 0, sink, 0))
	assert.Error(t, g.Remove(gain))
}

func TestUnconnectedInput(t *testing.T) {
	g, err := radio.New(bufferSize)
	assert.NoError(t, err)

	assert.NoError(t, g.Add(&mock.Sink{}))
	err = g.Start()
	assert.True(t, errors.Is(err, radio.ErrInvalidState))
}

func TestEmptyGraph(t *testing.T) {
	g, err := radio.New(bufferSize)
	assert.NoError(t, err)
	assert.True(t, errors.Is(g.Start(), radio.ErrInvalidState))
}

func TestInvalidBufferSize(t *testing.T) {
	_, err := radio.New(0)
	assert.Error(t, err)
}
