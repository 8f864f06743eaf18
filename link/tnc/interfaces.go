// Package tnc defines the TNC backend abstraction used by the scheduler:
// a uniform send/receive-frame and PTT interface implemented by
// KISS-over-TCP and KISS-over-serial backends. The VARA backend lives in
// the sibling vara package since it bypasses framing entirely.
package tnc

import (
	"context"
	"errors"
	"time"
)

// Backend is the minimal capability every TNC implementation must provide:
// send one AX.25 frame, receive the next one (blocking up to the context
// deadline), and close the underlying transport.
type Backend interface {
	SendFrame(ctx context.Context, frame []byte) error
	ReceiveFrame(ctx context.Context) ([]byte, error)
	Close() error
}

// PTTController is implemented by backends that assert push-to-talk
// themselves rather than relying on the TNC's own CSMA/VOX behaviour.
type PTTController interface {
	SetPTT(on bool) error
}

// TxBuffer is implemented by backends that can report how many bytes are
// still queued for transmission, letting the scheduler make a better PTT
// tail decision instead of a fixed delay.
type TxBuffer interface {
	TxBufferLen() (int, error)
}

// Flusher is implemented by backends that can be told to block until the
// transmit queue has drained.
type Flusher interface {
	Flush() error
}

var (
	// ErrTransportClosed is returned from SendFrame/ReceiveFrame once the
	// backend has been closed.
	ErrTransportClosed = errors.New("tnc: transport closed")
	// ErrTimeout is returned from ReceiveFrame when no frame arrives
	// before the context deadline.
	ErrTimeout = errors.New("tnc: timeout")
	// ErrWriteRefused is returned when the backend declines to accept a
	// frame for transmission (e.g. queue full).
	ErrWriteRefused = errors.New("tnc: write refused")
)

// DialTimeout is the default dial timeout used by Dial implementations
// that don't receive an explicit context deadline.
const DialTimeout = 30 * time.Second
