package tnc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/n5htr/hamstr/link/kiss"
)

func init() {
	RegisterDialer("kiss-tcp", tcpDialer{})
}

type tcpDialer struct{}

func (tcpDialer) DialContext(ctx context.Context, addr *Addr) (Backend, error) {
	return DialKISSTCP(ctx, fmt.Sprintf("%s:%d", addr.Host, addr.Port), addr.Baud)
}

// KISSTCP is a TNC backend that speaks KISS framing over a TCP socket
// (the common case for software TNCs like Direwolf). The TCP socket itself
// has no meaningful "baud rate" or hardware drain signal, so TxBufferLen
// and Flush are estimates derived from the RF baud rate the software TNC
// is configured to key the radio at, not from anything the socket reports.
type KISSTCP struct {
	conn net.Conn
	dec  *kiss.Decoder
	baud int

	mu      sync.Mutex
	closed  bool
	drainAt time.Time

	frames chan []byte
	errs   chan error
}

// DialKISSTCP connects to a KISS-over-TCP TNC at addr (host:port) and
// starts its background read loop. baud is the on-air baud rate the TNC
// keys the radio at, used only to estimate TxBufferLen/Flush; 0 defaults
// to 1200.
func DialKISSTCP(ctx context.Context, addr string, baud int) (*KISSTCP, error) {
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tnc: dial %s: %w", addr, err)
	}
	if baud <= 0 {
		baud = 1200
	}
	b := &KISSTCP{
		conn:   conn,
		dec:    kiss.NewDecoder(conn),
		baud:   baud,
		frames: make(chan []byte, 64),
		errs:   make(chan error, 1),
	}
	go b.readLoop()
	return b, nil
}

func (b *KISSTCP) readLoop() {
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

func (b *KISSTCP) SendFrame(ctx context.Context, frame []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrTransportClosed
	}
	wire := kiss.Encode(kiss.CmdDataFrame, frame)
	if _, err := b.conn.Write(wire); err != nil {
		return fmt.Errorf("tnc: write: %w", err)
	}
	now := time.Now()
	if b.drainAt.Before(now) {
		b.drainAt = now
	}
	b.drainAt = b.drainAt.Add(transmitDuration(len(wire), b.baud))
	return nil
}

// TxBufferLen estimates how many bytes are still queued for transmission,
// assuming frames drain continuously at baud from the moment they're
// written. There is no real queue-depth signal on a plain TCP socket to a
// software TNC, so this is a software estimate, not a measurement.
func (b *KISSTCP) TxBufferLen() (int, error) {
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

// Flush blocks until the estimated transmit queue has drained.
func (b *KISSTCP) Flush() error {
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

// transmitDuration estimates how long wireLen bytes take on the air at
// baud: 10 bits per byte (8 data bits plus start and stop bits).
func transmitDuration(wireLen, baud int) time.Duration {
	if baud <= 0 {
		baud = 1200
	}
	return time.Duration(float64(wireLen*10) / float64(baud) * float64(time.Second))
}

func (b *KISSTCP) ReceiveFrame(ctx context.Context) ([]byte, error) {
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

func (b *KISSTCP) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.conn.Close()
}

var (
	_ Backend  = (*KISSTCP)(nil)
	_ TxBuffer = (*KISSTCP)(nil)
	_ Flusher  = (*KISSTCP)(nil)
)
