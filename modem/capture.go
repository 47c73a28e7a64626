package modem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Direction of a captured chunk.
type Direction uint8

const (
	DirRead Direction = iota
	DirWrite
)

func (d Direction) String() string {
	if d == DirWrite {
		return ">"
	}
	return "<"
}

// Record is one chunk of modem traffic as it crossed the transport.
type Record struct {
	Time time.Time `cbor:"1,keyasint"`
	Dir  Direction `cbor:"2,keyasint"`
	Data []byte    `cbor:"3,keyasint"`
}

// Recorder is a Transport that writes every chunk read or written to a
// CBOR sequence.
type Recorder struct {
	Transport

	mu  sync.Mutex
	enc *cbor.Encoder
	err error
}

// NewRecorder captures the traffic of t to w.
func NewRecorder(t Transport, w io.Writer) *Recorder {
	return &Recorder{Transport: t, enc: cbor.NewEncoder(w)}
}

func (r *Recorder) Read(p []byte) (int, error) {
	n, err := r.Transport.Read(p)
	if n > 0 {
		r.record(DirRead, p[:n])
	}
	return n, err
}

func (r *Recorder) Write(p []byte) (int, error) {
	n, err := r.Transport.Write(p)
	if n > 0 {
		r.record(DirWrite, p[:n])
	}
	return n, err
}

// Err returns the first error writing the capture.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Recorder) record(dir Direction, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return
	}
	rec := Record{Time: time.Now(), Dir: dir, Data: append([]byte(nil), data...)}
	if err := r.enc.Encode(rec); err != nil {
		r.err = fmt.Errorf("write capture: %w", err)
	}
}

// RecordingDialer captures the traffic of every transport it dials.
type RecordingDialer struct {
	Dialer Dialer
	W      io.Writer
}

func (d RecordingDialer) Dial(ctx context.Context) (Transport, error) {
	t, err := d.Dialer.Dial(ctx)
	if err != nil || t == nil {
		return t, err
	}
	return NewRecorder(t, d.W), nil
}

// ReadCapture decodes a capture written by a Recorder.
func ReadCapture(r io.Reader) ([]Record, error) {
	dec := cbor.NewDecoder(r)

	var records []Record
	for {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			return records, fmt.Errorf("read capture record %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
}

// ReplayDialer plays the modem side of a capture back. Writes are accepted
// and discarded; each read returns the next captured read chunk once the
// writes recorded before it have been made. The transport reports EOF after
// the last chunk.
type ReplayDialer struct {
	Records []Record
}

func (d ReplayDialer) Dial(ctx context.Context) (Transport, error) {
	return newReplay(d.Records), nil
}

type replay struct {
	mu      sync.Mutex
	cond    *sync.Cond
	records []Record
	writes  int
	closed  bool
}

func newReplay(records []Record) *replay {
	r := &replay{records: records}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *replay) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		if r.closed {
			return 0, io.ErrClosedPipe
		}
		for len(r.records) > 0 && r.records[0].Dir == DirWrite && r.writes > 0 {
			r.records = r.records[1:]
			r.writes--
		}
		if len(r.records) == 0 {
			return 0, io.EOF
		}
		if rec := r.records[0]; rec.Dir == DirRead {
			n := copy(p, rec.Data)
			if n < len(rec.Data) {
				r.records[0].Data = rec.Data[n:]
			} else {
				r.records = r.records[1:]
			}
			return n, nil
		}
		r.cond.Wait()
	}
}

func (r *replay) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, io.ErrClosedPipe
	}
	r.writes++
	r.cond.Broadcast()
	return len(p), nil
}

func (r *replay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.cond.Broadcast()
	return nil
}
