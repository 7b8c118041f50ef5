package testhelpers

import (
	"errors"
	"io"
	"sync"
	"time"
)

// FakePort is an in-memory serial port. Reads return queued chunks, time out
// with (0, nil) like a real port with a read timeout, and fail once the port
// is closed or Fail is called. A chunk larger than the read buffer is
// returned across several reads.
type FakePort struct {
	mu          sync.Mutex
	written     []byte
	writeErr    error
	readTimeout time.Duration
	pending     []byte

	incoming chan []byte
	failCh   chan error
	closed   chan struct{}
	once     sync.Once
}

// NewFakePort returns an open fake port.
func NewFakePort() *FakePort {
	return &FakePort{
		readTimeout: 5 * time.Millisecond,
		incoming:    make(chan []byte, 64),
		failCh:      make(chan error, 1),
		closed:      make(chan struct{}),
	}
}

// Feed queues bytes for the next Read calls. It is a no-op once the port is
// closed.
func (p *FakePort) Feed(s string) {
	select {
	case p.incoming <- []byte(s):
	case <-p.closed:
	}
}

// Fail makes the next Read return err, simulating an unplugged device.
func (p *FakePort) Fail(err error) {
	p.failCh <- err
}

// SetWriteError makes subsequent writes fail with err.
func (p *FakePort) SetWriteError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

// Written returns everything written so far.
func (p *FakePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.written)
}

// IsClosed reports whether Close was called.
func (p *FakePort) IsClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

func (p *FakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if len(p.pending) > 0 {
		n := copy(b, p.pending)
		p.pending = p.pending[n:]
		p.mu.Unlock()
		return n, nil
	}
	timeout := p.readTimeout
	p.mu.Unlock()

	select {
	case <-p.closed:
		return 0, io.EOF
	case err := <-p.failCh:
		return 0, err
	case chunk := <-p.incoming:
		n := copy(b, chunk)
		if n < len(chunk) {
			p.mu.Lock()
			p.pending = chunk[n:]
			p.mu.Unlock()
		}
		return n, nil
	case <-time.After(timeout):
		return 0, nil
	}
}

func (p *FakePort) Write(b []byte) (int, error) {
	if p.IsClosed() {
		return 0, errors.New("fake port closed")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	p.written = append(p.written, b...)
	return len(b), nil
}

func (p *FakePort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *FakePort) SetReadTimeout(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readTimeout = d
	return nil
}
