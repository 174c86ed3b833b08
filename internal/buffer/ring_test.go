package buffer_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/radio/internal/buffer"
)

func write(t *testing.T, r *buffer.Ring, data []byte) {
	t.Helper()
	for len(data) > 0 {
		dst, err := r.ReserveWrite(len(data))
		assert.NoError(t, err)
		n := copy(dst, data)
		r.CommitWrite(n)
		data = data[n:]
	}
}

func TestRingOrder(t *testing.T) {
	r := buffer.NewRing(1, 8)
	reader := r.AddReader()

	write(t, r, []byte{1, 2, 3})
	data, err := reader.Peek(1)
	assert.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)
	reader.Advance(2)

	data, err = reader.Peek(1)
	assert.NoError(t, err)
	assert.Equal(t, []byte{3}, data)
	reader.Advance(1)
}

func TestRingWrap(t *testing.T) {
	r := buffer.NewRing(1, 4)
	reader := r.AddReader()

	collected := make([]byte, 0, 16)
	for round := byte(0); round < 4; round++ {
		write(t, r, []byte{4 * round, 4*round + 1, 4*round + 2, 4*round + 3})
		for len(collected) < int(4*(round+1)) {
			data, err := reader.Peek(1)
			assert.NoError(t, err)
			collected = append(collected, data...)
			reader.Advance(len(data))
		}
	}
	expected := make([]byte, 16)
	for i := range expected {
		expected[i] = byte(i)
	}
	assert.Equal(t, expected, collected)
}

func TestRingBackPressure(t *testing.T) {
	r := buffer.NewRing(1, 2)
	reader := r.AddReader()
	write(t, r, []byte{1, 2})

	unblocked := make(chan struct{})
	go func() {
		// ring is full, this blocks until the reader advances
		write(t, r, []byte{3})
		close(unblocked)
	}()

	select {
	case <-unblocked:
		t.Fatal("writer overtook the reader")
	case <-time.After(10 * time.Millisecond):
	}

	data, err := reader.Peek(1)
	assert.NoError(t, err)
	reader.Advance(len(data))
	select {
	case <-unblocked:
	case <-time.After(time.Second):
		t.Fatal("writer still blocked after advance")
	}
}

func TestRingFanOutGatesOnSlowest(t *testing.T) {
	r := buffer.NewRing(1, 4)
	fast := r.AddReader()
	slow := r.AddReader()
	write(t, r, []byte{1, 2, 3, 4})

	// fast drains everything, slow holds the cursor
	data, err := fast.Peek(4)
	assert.NoError(t, err)
	fast.Advance(len(data))

	blocked := make(chan struct{})
	go func() {
		write(t, r, []byte{5})
		close(blocked)
	}()
	select {
	case <-blocked:
		t.Fatal("writer overtook the slowest reader")
	case <-time.After(10 * time.Millisecond):
	}

	data, err = slow.Peek(1)
	assert.NoError(t, err)
	assert.Equal(t, byte(1), data[0])
	slow.Advance(len(data))
	select {
	case <-blocked:
	case <-time.After(time.Second):
		t.Fatal("writer still blocked")
	}
}

func TestRingClose(t *testing.T) {
	r := buffer.NewRing(2, 8)
	reader := r.AddReader()
	// four 2-byte samples; write() assumes 1-byte samples
	dst, err := r.ReserveWrite(4)
	assert.NoError(t, err)
	r.CommitWrite(copy(dst, []byte{1, 2, 3, 4, 5, 6, 7, 8}) / 2)
	r.Close()
	// close is idempotent
	r.Close()

	// remaining samples drain first
	data, err := reader.Peek(1)
	assert.NoError(t, err)
	assert.Equal(t, 8, len(data))
	reader.Advance(2)

	data, err = reader.Peek(2)
	assert.NoError(t, err)
	assert.Equal(t, 4, len(data))
	reader.Advance(1)

	// trailing partial window is returned with ErrClosed
	data, err = reader.Peek(2)
	assert.True(t, errors.Is(err, buffer.ErrClosed))
	assert.Equal(t, 2, len(data))
	reader.Advance(1)

	_, err = reader.Peek(1)
	assert.True(t, errors.Is(err, buffer.ErrClosed))

	_, err = r.ReserveWrite(1)
	assert.True(t, errors.Is(err, buffer.ErrClosed))
}

func TestRingCloseWakesBlockedReader(t *testing.T) {
	r := buffer.NewRing(1, 4)
	reader := r.AddReader()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := reader.Peek(1)
		assert.True(t, errors.Is(err, buffer.ErrClosed))
	}()
	time.Sleep(5 * time.Millisecond)
	r.Close()
	wg.Wait()
}

func TestRingConcurrent(t *testing.T) {
	const total = 10000
	r := buffer.NewRing(1, 64)
	reader := r.AddReader()

	go func() {
		sent := 0
		for sent < total {
			dst, err := r.ReserveWrite(total - sent)
			if err != nil {
				return
			}
			for i := range dst {
				dst[i] = byte(sent + i)
			}
			r.CommitWrite(len(dst))
			sent += len(dst)
		}
		r.Close()
	}()

	received := 0
	for {
		data, err := reader.Peek(1)
		for i := range data {
			if data[i] != byte(received+i) {
				t.Fatalf("sample %d out of order", received+i)
			}
		}
		received += len(data)
		reader.Advance(len(data))
		if errors.Is(err, buffer.ErrClosed) && received == total {
			break
		}
	}
	assert.Equal(t, total, received)
}

func TestRingReaderDetach(t *testing.T) {
	r := buffer.NewRing(1, 2)
	gone := r.AddReader()
	alive := r.AddReader()
	write(t, r, []byte{1, 2})

	// a detached cursor stops gating the writer
	gone.Close()
	data, err := alive.Peek(1)
	assert.NoError(t, err)
	alive.Advance(len(data))
	write(t, r, []byte{3})

	// once every reader detached, writing is pointless
	alive.Close()
	_, err = r.ReserveWrite(1)
	assert.True(t, errors.Is(err, buffer.ErrClosed))
}

func TestRingPeekWrapped(t *testing.T) {
	r := buffer.NewRing(1, 8)
	reader := r.AddReader()

	write(t, r, []byte{0, 1, 2, 3, 4, 5})
	data, err := reader.Peek(1)
	assert.NoError(t, err)
	reader.Advance(len(data))

	// the next window wraps the ring boundary and is handed out whole
	write(t, r, []byte{6, 7, 8, 9})
	data, err = reader.Peek(4)
	assert.NoError(t, err)
	assert.Equal(t, []byte{6, 7, 8, 9}, data)
	reader.Advance(4)
}

func TestQueue(t *testing.T) {
	q := buffer.NewQueue(4)
	reader := q.AddReader()

	assert.NoError(t, q.Push([]byte("one")))
	assert.NoError(t, q.Push([]byte("two")))

	frames, err := reader.Peek(2)
	assert.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("one"), []byte("two")}, frames)
	reader.Advance(2)

	q.Close()
	_, err = reader.Peek(1)
	assert.True(t, errors.Is(err, buffer.ErrClosed))
	assert.True(t, errors.Is(q.Push([]byte("three")), buffer.ErrClosed))
}

func TestQueueBackPressure(t *testing.T) {
	q := buffer.NewQueue(2)
	reader := q.AddReader()
	assert.NoError(t, q.Push([]byte{1}))
	assert.NoError(t, q.Push([]byte{2}))

	blocked := make(chan struct{})
	go func() {
		assert.NoError(t, q.Push([]byte{3}))
		close(blocked)
	}()
	select {
	case <-blocked:
		t.Fatal("push overtook the reader")
	case <-time.After(10 * time.Millisecond):
	}

	frames, err := reader.Peek(1)
	assert.NoError(t, err)
	reader.Advance(len(frames))
	select {
	case <-blocked:
	case <-time.After(time.Second):
		t.Fatal("push still blocked")
	}
}

func TestQueueFanOut(t *testing.T) {
	q := buffer.NewQueue(4)
	first := q.AddReader()
	second := q.AddReader()
	assert.NoError(t, q.Push([]byte("payload")))
	q.Close()

	for _, reader := range []*buffer.QueueReader{first, second} {
		frames, err := reader.Peek(1)
		assert.NoError(t, err)
		assert.Equal(t, "payload", string(frames[0]))
		reader.Advance(1)
	}
}
