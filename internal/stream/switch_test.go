package stream

import (
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func readAllAsync(r io.Reader) <-chan string {
	out := make(chan string, 1)
	go func() {
		b, _ := io.ReadAll(r)
		out <- string(b)
	}()
	return out
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("source did not finish")
		return nil
	}
}

// attach switches to src and waits for it to drain.
func attach(t *testing.T, s *Switch, src io.Reader) {
	t.Helper()
	done, err := s.SwitchSource(src)
	if err != nil {
		t.Fatalf("SwitchSource: %v", err)
	}
	if err := wait(t, done); err != nil {
		t.Fatalf("source: %v", err)
	}
}

func TestSwitch_ConcatenatesSourcesInOrder(t *testing.T) {
	s := New()
	got := readAllAsync(s.Reader())

	attach(t, s, strings.NewReader("hello "))
	if st := s.State(); st != Switching {
		t.Fatalf("state after drain = %v; want switching", st)
	}
	attach(t, s, strings.NewReader("world"))

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if out := <-got; out != "hello world" {
		t.Fatalf("output = %q", out)
	}
	if n := s.Switches(); n != 1 {
		t.Fatalf("switches = %d; want 1", n)
	}
	if st := s.State(); st != Closed {
		t.Fatalf("state = %v; want closed", st)
	}
}

func TestSwitch_DetachedSourceIsDropped(t *testing.T) {
	s := New()
	out := s.Reader()

	ar, aw := io.Pipe()
	doneA, err := s.SwitchSource(ar)
	if err != nil {
		t.Fatalf("SwitchSource(A): %v", err)
	}

	go func() { _, _ = aw.Write([]byte("A1")) }()
	buf := make([]byte, 2)
	if _, err := io.ReadFull(out, buf); err != nil || string(buf) != "A1" {
		t.Fatalf("first chunk = %q, %v", buf, err)
	}

	doneB, err := s.SwitchSource(strings.NewReader("B"))
	if err != nil {
		t.Fatalf("SwitchSource(B): %v", err)
	}

	// The old source is still readable by the switch but its bytes must not
	// reach the output any more.
	go func() { _, _ = aw.Write([]byte("late")) }()
	if err := wait(t, doneA); !errors.Is(err, ErrDetached) {
		t.Fatalf("old source = %v; want ErrDetached", err)
	}

	got := readAllAsync(out)
	if err := wait(t, doneB); err != nil {
		t.Fatalf("source B: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if rest := <-got; rest != "B" {
		t.Fatalf("rest = %q; want B", rest)
	}

	_ = aw.Close()
}

func TestSwitch_SegmentLimit(t *testing.T) {
	s := New(WithMaxSegments(2))
	got := readAllAsync(s.Reader())

	for _, part := range []string{"a", "b", "c"} {
		attach(t, s, strings.NewReader(part))
	}
	if n := s.Switches(); n != 2 {
		t.Fatalf("switches = %d; want 2", n)
	}

	if _, err := s.SwitchSource(strings.NewReader("never")); !errors.Is(err, ErrSegmentLimit) {
		t.Fatalf("over limit = %v; want ErrSegmentLimit", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if out := <-got; out != "abc" {
		t.Fatalf("output = %q; want abc", out)
	}
}

func TestSwitch_CloseIsIdempotent(t *testing.T) {
	s := New()
	got := readAllAsync(s.Reader())

	for i := range 2 {
		if err := s.Close(); err != nil {
			t.Fatalf("Close #%d: %v", i+1, err)
		}
	}
	if out := <-got; out != "" {
		t.Fatalf("output = %q", out)
	}
	if _, err := s.SwitchSource(strings.NewReader("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("switch after close = %v; want ErrClosed", err)
	}
}

func TestSwitch_FailSurfacesError(t *testing.T) {
	s := New()
	boom := errors.New("provider failed")

	done, err := s.SwitchSource(strings.NewReader("partial"))
	if err != nil {
		t.Fatalf("SwitchSource: %v", err)
	}

	errc := make(chan error, 1)
	var body strings.Builder
	go func() {
		_, err := io.Copy(&body, s.Reader())
		errc <- err
	}()

	if err := wait(t, done); err != nil {
		t.Fatalf("source: %v", err)
	}
	if err := s.Fail(boom); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if err := <-errc; !errors.Is(err, boom) {
		t.Fatalf("reader error = %v; want %v", err, boom)
	}
	if body.String() != "partial" {
		t.Fatalf("body = %q", body.String())
	}

	// Close after Fail keeps the failure.
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if st := s.State(); st != Closed {
		t.Fatalf("state = %v; want closed", st)
	}
}

func TestSwitch_Backpressure(t *testing.T) {
	s := New(WithChunkSize(1))
	src := &countingReader{data: []byte("abc")}

	done, err := s.SwitchSource(src)
	if err != nil {
		t.Fatalf("SwitchSource: %v", err)
	}

	// Nobody reads the output yet: the forwarder may hold at most one chunk.
	time.Sleep(50 * time.Millisecond)
	if n := src.Reads(); n > 1 {
		t.Fatalf("source read %d times before the consumer asked", n)
	}

	got := readAllAsync(s.Reader())
	if err := wait(t, done); err != nil {
		t.Fatalf("source: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if out := <-got; out != "abc" {
		t.Fatalf("output = %q", out)
	}
}

func TestSwitch_StateNames(t *testing.T) {
	for st, want := range map[State]string{
		Idle:      "idle",
		Piping:    "piping",
		Switching: "switching",
		Closed:    "closed",
	} {
		if got := st.String(); got != want {
			t.Errorf("%d.String() = %q; want %q", int(st), got, want)
		}
	}
	if st := New().State(); st != Idle {
		t.Fatalf("new switch state = %v; want idle", st)
	}
}

type countingReader struct {
	data  []byte
	reads atomic.Int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	r.reads.Add(1)
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func (r *countingReader) Reads() int { return int(r.reads.Load()) }
