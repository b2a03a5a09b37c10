// Package stream stitches independently produced byte streams into one
// ordered output. A Switch forwards exactly one source at a time into a
// shared io.Pipe; attaching a new source detaches the previous one, and
// nothing the detached source produces afterwards reaches the output.
//
// State machine:
//
//	Idle ──SwitchSource──▶ Piping ──source EOF──▶ Switching
//	                         ▲  │                    │
//	                         │  └───SwitchSource─────┤
//	                         └────SwitchSource───────┘
//	any ──Close/Fail──▶ Closed
//
// Because the output is an io.Pipe, a source is read only as fast as the
// consumer drains the output.
package stream

import (
	"errors"
	"io"
	"sync"
)

// State is the lifecycle state of a Switch.
type State int

const (
	// Idle means no source was ever attached.
	Idle State = iota
	// Piping means a source is attached and being forwarded.
	Piping
	// Switching means the attached source was drained and the output is
	// waiting for the next source or for Close.
	Switching
	// Closed means the output was ended by Close or Fail.
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Piping:
		return "piping"
	case Switching:
		return "switching"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	// ErrSegmentLimit is returned by SwitchSource when the configured
	// maximum number of switches has been reached.
	ErrSegmentLimit = errors.New("maximum response segments reached")

	// ErrClosed is returned by SwitchSource after Close or Fail.
	ErrClosed = errors.New("stream closed")

	// ErrDetached is reported on a source's done channel when the source was
	// replaced before it finished.
	ErrDetached = errors.New("source detached")
)

const defaultChunkSize = 32 << 10

// Option configures a Switch.
type Option func(*Switch)

// WithMaxSegments bounds the number of switches. Zero means unbounded.
func WithMaxSegments(n int) Option {
	return func(s *Switch) {
		if n > 0 {
			s.maxSegments = n
		}
	}
}

// WithChunkSize sets the read buffer used per source.
func WithChunkSize(n int) Option {
	return func(s *Switch) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// Switch is a switchable stream. It is safe for concurrent use.
type Switch struct {
	mu          sync.Mutex
	state       State
	switches    int
	maxSegments int
	gen         uint64

	// wmu serializes writes into the pipe so a detach never interleaves
	// with a chunk already being forwarded.
	wmu sync.Mutex

	chunkSize int
	pr        *io.PipeReader
	pw        *io.PipeWriter
}

// New returns an idle Switch.
func New(opts ...Option) *Switch {
	pr, pw := io.Pipe()
	s := &Switch{pr: pr, pw: pw, chunkSize: defaultChunkSize}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Reader returns the shared output. Closing it stops every forwarder.
func (s *Switch) Reader() io.ReadCloser { return s.pr }

// State returns the current state.
func (s *Switch) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Switches returns how many times a source replaced a previous one.
func (s *Switch) Switches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.switches
}

// SwitchSource attaches src as the active source. The first attach does not
// count as a switch; every later attach detaches the current source (without
// closing it) and increments Switches. When the switch budget is spent it
// returns ErrSegmentLimit before anything from src is read.
//
// The returned channel receives exactly one value once forwarding of src
// stops: nil at EOF, ErrDetached if src was replaced, ErrClosed if the
// output was closed first, or the read/write error.
func (s *Switch) SwitchSource(src io.Reader) (<-chan error, error) {
	s.mu.Lock()
	switch s.state {
	case Closed:
		s.mu.Unlock()
		return nil, ErrClosed
	case Piping, Switching:
		if s.maxSegments > 0 && s.switches >= s.maxSegments {
			s.mu.Unlock()
			return nil, ErrSegmentLimit
		}
		s.switches++
	}
	s.gen++
	gen := s.gen
	s.state = Piping
	s.mu.Unlock()

	done := make(chan error, 1)
	go s.forward(gen, src, done)
	return done, nil
}

// Close ends the output with EOF. It is idempotent.
func (s *Switch) Close() error {
	if !s.closeState() {
		return nil
	}
	return s.pw.Close()
}

// Fail ends the output with err so the consumer observes the failure instead
// of a clean EOF. It is a no-op after Close or a previous Fail.
func (s *Switch) Fail(err error) error {
	if !s.closeState() {
		return nil
	}
	return s.pw.CloseWithError(err)
}

func (s *Switch) closeState() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return false
	}
	s.state = Closed
	s.gen++
	return true
}

// owner reports why gen may no longer write, or nil if it still owns the output.
func (s *Switch) owner(gen uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.state == Closed:
		return ErrClosed
	case s.gen != gen:
		return ErrDetached
	}
	return nil
}

func (s *Switch) forward(gen uint64, src io.Reader, done chan<- error) {
	buf := make([]byte, s.chunkSize)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if err := s.write(gen, buf[:n]); err != nil {
				done <- err
				return
			}
		}
		if errors.Is(rerr, io.EOF) {
			s.drained(gen)
			done <- nil
			return
		}
		if rerr != nil {
			done <- rerr
			return
		}
		if err := s.owner(gen); err != nil {
			done <- err
			return
		}
	}
}

func (s *Switch) write(gen uint64, p []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.owner(gen); err != nil {
		return err
	}
	_, err := s.pw.Write(p)
	return err
}

func (s *Switch) drained(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen && s.state == Piping {
		s.state = Switching
	}
}
