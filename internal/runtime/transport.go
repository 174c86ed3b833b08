package runtime

import (
	"fmt"

	"pipelined.dev/radio/dtype"
	"pipelined.dev/radio/internal/buffer"
)

type (
	// Input is a worker's readable end of an edge.
	Input interface {
		// Peek blocks until min samples are readable. When the
		// upstream closed with fewer than min left, the remainder is
		// returned together with buffer.ErrClosed.
		Peek(min int) (dtype.Buffer, error)
		// Advance consumes n samples of the last peek.
		Advance(n int)
		// Close detaches the cursor so the upstream writer is no
		// longer gated by this consumer.
		Close()
	}

	// Output is a worker's writable end of an output port. One Output
	// backs all fan-out edges of the port.
	Output interface {
		// Write publishes a whole buffer, blocking on back-pressure.
		Write(dtype.Buffer) error
		// Close signals end-of-stream to all consumers.
		Close()
	}
)

// FixedInput reads fixed-size samples from a ring cursor.
type FixedInput struct {
	Reader *buffer.Reader
	Type   dtype.Type
}

func (in FixedInput) Peek(min int) (dtype.Buffer, error) {
	data, err := in.Reader.Peek(min)
	return dtype.Buffer{Type: in.Type, Data: data}, err
}

func (in FixedInput) Advance(n int) {
	in.Reader.Advance(n)
}

func (in FixedInput) Close() {
	in.Reader.Close()
}

// FixedOutput writes fixed-size samples into a shared ring.
type FixedOutput struct {
	Ring *buffer.Ring
	Type dtype.Type
}

func (out FixedOutput) Write(b dtype.Buffer) error {
	data := b.Data
	for len(data) > 0 {
		dst, err := out.Ring.ReserveWrite(len(data) / out.Type.Size)
		if err != nil {
			return err
		}
		n := copy(dst, data)
		out.Ring.CommitWrite(n / out.Type.Size)
		data = data[n:]
	}
	return nil
}

func (out FixedOutput) Close() {
	out.Ring.Close()
}

// ObjectInput decodes framed objects from a queue cursor.
type ObjectInput struct {
	Reader *buffer.QueueReader
	Type   dtype.Type
}

func (in ObjectInput) Peek(min int) (dtype.Buffer, error) {
	frames, err := in.Reader.Peek(min)
	objects := make([]interface{}, len(frames))
	for i, frame := range frames {
		obj, decodeErr := in.Type.Decode(frame)
		if decodeErr != nil {
			return dtype.Buffer{Type: in.Type}, fmt.Errorf("decoding %s: %w", in.Type, decodeErr)
		}
		objects[i] = obj
	}
	return dtype.Buffer{Type: in.Type, Objects: objects}, err
}

func (in ObjectInput) Advance(n int) {
	in.Reader.Advance(n)
}

func (in ObjectInput) Close() {
	in.Reader.Close()
}

// ObjectOutput encodes objects into a shared framed queue.
type ObjectOutput struct {
	Queue *buffer.Queue
	Type  dtype.Type
}

func (out ObjectOutput) Write(b dtype.Buffer) error {
	for _, obj := range b.Objects {
		frame, err := out.Type.Encode(obj)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", out.Type, err)
		}
		if err := out.Queue.Push(frame); err != nil {
			return err
		}
	}
	return nil
}

func (out ObjectOutput) Close() {
	out.Queue.Close()
}
