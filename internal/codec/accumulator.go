package codec

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	// ErrBodyTooLarge is returned when a decoded body exceeds the limit.
	ErrBodyTooLarge = errors.New("codec: body exceeds size limit")

	// ErrFinished is returned when a chunk arrives after a terminal outcome.
	ErrFinished = errors.New("codec: accumulator already finished")
)

// Accumulator collects body chunks as raw bytes. It settles exactly once,
// either through Finish or Fail; later calls return the settled outcome.
type Accumulator struct {
	buf   bytes.Buffer
	limit int64
	done  bool
	err   error
}

// NewAccumulator returns an accumulator capped at limit bytes (<= 0 means no cap).
func NewAccumulator(limit int64) *Accumulator {
	return &Accumulator{limit: limit}
}

// Push appends a copy of chunk.
func (a *Accumulator) Push(chunk []byte) error {
	if a.done {
		return ErrFinished
	}
	if a.limit > 0 && int64(a.buf.Len())+int64(len(chunk)) > a.limit {
		return fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, a.limit)
	}
	a.buf.Write(chunk)
	return nil
}

// Fail settles the accumulator with err and returns the settled error. If it
// had already settled, the first outcome wins.
func (a *Accumulator) Fail(err error) error {
	if a.done {
		return a.err
	}
	a.done = true
	a.err = err
	a.buf.Reset()
	return err
}

// Finish settles the accumulator successfully and returns the assembled bytes.
func (a *Accumulator) Finish() ([]byte, error) {
	if a.done {
		if a.err != nil {
			return nil, a.err
		}
		return a.buf.Bytes(), nil
	}
	a.done = true
	return a.buf.Bytes(), nil
}

// Len returns the number of bytes buffered so far.
func (a *Accumulator) Len() int { return a.buf.Len() }

// Done reports whether the accumulator has settled.
func (a *Accumulator) Done() bool { return a.done }
