package tnc

import (
	"context"
	"sync"
)

// Loopback is an in-memory Backend pair used by tests to exercise the
// segmentation and session layers without a real TNC, built the same way
// an in-process pipe loopback exercises a protocol session in tests.
type Loopback struct {
	out chan []byte
	in  chan []byte

	mu     sync.Mutex
	closed bool
}

// NewLoopbackPair returns two Backends, a and b, such that a.SendFrame
// delivers to b.ReceiveFrame and vice versa.
func NewLoopbackPair() (a, b *Loopback) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	a = &Loopback{out: ab, in: ba}
	b = &Loopback{out: ba, in: ab}
	return a, b
}

func (l *Loopback) SendFrame(ctx context.Context, frame []byte) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrTransportClosed
	}
	l.mu.Unlock()
	cp := append([]byte(nil), frame...)
	select {
	case l.out <- cp:
		return nil
	case <-ctx.Done():
		return ErrTimeout
	}
}

func (l *Loopback) ReceiveFrame(ctx context.Context) ([]byte, error) {
	select {
	case f, ok := <-l.in:
		if !ok {
			return nil, ErrTransportClosed
		}
		return f, nil
	case <-ctx.Done():
		return nil, ErrTimeout
	}
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.out)
	return nil
}

var _ Backend = (*Loopback)(nil)
