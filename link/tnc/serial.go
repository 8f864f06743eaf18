package tnc

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	serial "github.com/albenik/go-serial/v2"

	"github.com/n5htr/hamstr/link/kiss"
)

func init() {
	RegisterDialer("kiss-serial", serialDialer{})
}

type serialDialer struct{}

func (serialDialer) DialContext(ctx context.Context, addr *Addr) (Backend, error) {
	baud := addr.Baud
	if baud == 0 {
		baud = 9600
	}
	return DialKISSSerial(addr.Device, baud)
}

// drainer is satisfied by go-serial's *serial.Port, which exposes Drain
// (the termios tcdrain equivalent: block until the kernel's output buffer
// is empty). Asserted for rather than depended on directly so KISSSerial
// still compiles against any io.ReadWriteCloser in tests.
type drainer interface {
	Drain() error
}

// KISSSerial is a TNC backend that speaks KISS framing over a serial port,
// used for hardware TNCs directly attached to the host.
type KISSSerial struct {
	port io.ReadWriteCloser
	dec  *kiss.Decoder
	baud int

	mu      sync.Mutex
	closed  bool
	drainAt time.Time

	frames chan []byte
	errs   chan error
}

// DialKISSSerial opens device at baud and starts the background read loop.
func DialKISSSerial(device string, baud int) (*KISSSerial, error) {
	port, err := serial.Open(device,
		serial.WithBaudrate(baud),
		serial.WithDataBits(8),
		serial.WithParity(serial.NoParity),
		serial.WithStopBits(serial.OneStopBit),
	)
	if err != nil {
		return nil, fmt.Errorf("tnc: open %s: %w", device, err)
	}
	b := &KISSSerial{
		port:   port,
		dec:    kiss.NewDecoder(port),
		baud:   baud,
		frames: make(chan []byte, 64),
		errs:   make(chan error, 1),
	}
	go b.readLoop()
	return b, nil
}

func (b *KISSSerial) readLoop() {
	for {
		cmd, payload, err := b.dec.ReadFrame()
		if err != nil {
			b.errs <- err
			close(b.frames)
			return
		}
		if cmd != kiss.CmdDataFrame {
			continue
		}
		b.frames <- payload
	}
}

func (b *KISSSerial) SendFrame(ctx context.Context, frame []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrTransportClosed
	}
	wire := kiss.Encode(kiss.CmdDataFrame, frame)
	if _, err := b.port.Write(wire); err != nil {
		return fmt.Errorf("tnc: write: %w", err)
	}
	now := time.Now()
	if b.drainAt.Before(now) {
		b.drainAt = now
	}
	b.drainAt = b.drainAt.Add(transmitDuration(len(wire), b.baud))
	return nil
}

// TxBufferLen estimates how many bytes are still queued for transmission
// at the port's configured baud rate. go-serial doesn't expose a queued-
// byte count, only Drain (see Flush), so this is a software estimate.
func (b *KISSSerial) TxBufferLen() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrTransportClosed
	}
	remaining := time.Until(b.drainAt)
	if remaining <= 0 {
		return 0, nil
	}
	return int(remaining.Seconds() * float64(b.baud) / 10), nil
}

// Flush blocks until the underlying port reports its output buffer
// drained, if it supports that (go-serial's Port does); otherwise it
// falls back to waiting out the same estimate TxBufferLen reports.
func (b *KISSSerial) Flush() error {
	if d, ok := b.port.(drainer); ok {
		return d.Drain()
	}
	b.mu.Lock()
	remaining := time.Until(b.drainAt)
	b.mu.Unlock()
	if remaining <= 0 {
		return nil
	}
	t := time.NewTimer(remaining)
	defer t.Stop()
	<-t.C
	return nil
}

func (b *KISSSerial) ReceiveFrame(ctx context.Context) ([]byte, error) {
	select {
	case f, ok := <-b.frames:
		if !ok {
			select {
			case err := <-b.errs:
				return nil, fmt.Errorf("tnc: %w", err)
			default:
				return nil, ErrTransportClosed
			}
		}
		return f, nil
	case <-ctx.Done():
		return nil, ErrTimeout
	}
}

func (b *KISSSerial) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.port.Close()
}

var (
	_ Backend  = (*KISSSerial)(nil)
	_ TxBuffer = (*KISSSerial)(nil)
	_ Flusher  = (*KISSSerial)(nil)
)
