// Package vara implements the VARA modem backend: a TCP control channel
// (line-oriented text commands/events) plus a TCP data channel carrying
// opaque length-prefixed blocks once the modem reports CONNECTED. This
// bypasses the KISS/AX.25/packet layers entirely — VARA's own ARQ mode
// already guarantees in-order, reliable delivery, so the adapter only
// needs to frame application-level blocks and track connection state.
package vara

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// State mirrors VARA's own connection-state vocabulary.
type State int

const (
	StateUnknown State = iota
	StateDisconnected
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

var stateMap = map[string]State{
	"DISCONNECTED": StateDisconnected,
	"CONNECTING":   StateConnecting,
	"CONNECTED":    StateConnected,
}

// TNC is a connection to a running VARA modem instance.
type TNC struct {
	ctrl net.Conn
	data net.Conn

	in  *broadcaster
	out chan string

	mu     sync.Mutex
	state  State
	busy   bool
	closed bool
	mycall string
	ptt    func(bool) error

	dataIn chan []byte
	errs   chan error
}

// Dial connects to a VARA modem's control port at addr (host:port); the
// data port is, by VARA convention, the next TCP port.
func Dial(ctx context.Context, addr string) (*TNC, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("vara: bad address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("vara: bad port %q: %w", portStr, err)
	}

	dialer := &net.Dialer{}
	ctrl, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("vara: dial control channel: %w", err)
	}
	dataAddr := net.JoinHostPort(host, strconv.Itoa(port+1))
	data, err := dialer.DialContext(ctx, "tcp", dataAddr)
	if err != nil {
		ctrl.Close()
		return nil, fmt.Errorf("vara: dial data channel: %w", err)
	}

	t := &TNC{
		ctrl:   ctrl,
		data:   data,
		in:     newBroadcaster(),
		out:    make(chan string, 16),
		dataIn: make(chan []byte, 16),
		errs:   make(chan error, 1),
		state:  StateDisconnected,
	}
	go t.controlWriter()
	go t.controlReader()
	go t.dataReader()
	return t, nil
}

// SetPTTFunc installs a callback invoked whenever VARA's control channel
// reports a PTT state change. VARA owns PTT; the callback exists only so
// the scheduler's telemetry tap can mirror it, never to assert PTT itself.
func (t *TNC) SetPTTFunc(f func(bool) error) { t.ptt = f }

// Errors returns a channel that receives exactly one value — the control
// channel scanner's terminal error, or nil on a clean close — when the
// control connection dies. Callers use this to notice a lost control
// channel independently of the data channel, which may stay open briefly
// after VARA itself has gone away.
func (t *TNC) Errors() <-chan error { return t.errs }

func (t *TNC) controlWriter() {
	for line := range t.out {
		if _, err := io.WriteString(t.ctrl, line+"\r\n"); err != nil {
			return
		}
	}
}

func (t *TNC) controlReader() {
	sc := bufio.NewScanner(t.ctrl)
	for sc.Scan() {
		msg := parseCtrlMsg(sc.Text())
		switch msg.cmd {
		case "NEWSTATE":
			if st, ok := stateMap[strings.ToUpper(msg.value)]; ok {
				t.mu.Lock()
				t.state = st
				t.mu.Unlock()
			}
		case "BUSY":
			t.mu.Lock()
			t.busy = msg.Bool()
			t.mu.Unlock()
		case "PTT":
			if t.ptt != nil {
				t.ptt(msg.Bool())
			}
		case "DISCONNECTED":
			t.mu.Lock()
			t.state = StateDisconnected
			t.mu.Unlock()
		}
		t.in.Send(msg)
	}
	t.errs <- sc.Err()
	t.in.CloseAll()
}

func (t *TNC) dataReader() {
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(t.data, lenBuf[:]); err != nil {
			close(t.dataIn)
			return
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		buf := make([]byte, n)
		if _, err := io.ReadFull(t.data, buf); err != nil {
			close(t.dataIn)
			return
		}
		t.dataIn <- buf
	}
}

// Connect opens a VARA ARQ connection to remoteCall as mycall, and blocks
// until VARA reports CONNECTED or the context expires.
func (t *TNC) Connect(ctx context.Context, mycall, remoteCall string) error {
	t.mycall = mycall
	l := t.in.Listen()
	defer l.Close()

	t.out <- fmt.Sprintf("CONNECT %s %s", mycall, remoteCall)
	for {
		select {
		case msg, ok := <-l.Msgs():
			if !ok {
				return fmt.Errorf("vara: control channel closed while connecting")
			}
			if msg.cmd == "NEWSTATE" && strings.EqualFold(msg.value, "CONNECTED") {
				return nil
			}
			if msg.cmd == "FAULT" {
				return fmt.Errorf("vara: %s", msg.value)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// SendBlock writes one length-prefixed application block to the data
// channel.
func (t *TNC) SendBlock(ctx context.Context, block []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(block)))
	if _, err := t.data.Write(hdr[:]); err != nil {
		return fmt.Errorf("vara: write block header: %w", err)
	}
	if _, err := t.data.Write(block); err != nil {
		return fmt.Errorf("vara: write block: %w", err)
	}
	return nil
}

// RecvBlock blocks for the next application block, or until ctx expires.
func (t *TNC) RecvBlock(ctx context.Context) ([]byte, error) {
	select {
	case b, ok := <-t.dataIn:
		if !ok {
			return nil, fmt.Errorf("vara: data channel closed")
		}
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Disconnect requests VARA tear down the ARQ connection and waits for
// confirmation.
func (t *TNC) Disconnect(ctx context.Context) error {
	l := t.in.Listen()
	defer l.Close()

	t.out <- "DISCONNECT"
	for {
		select {
		case msg, ok := <-l.Msgs():
			if !ok || msg.cmd == "DISCONNECTED" {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil // best-effort; VARA may already be idle
		}
	}
}

// State returns VARA's last-reported connection state.
func (t *TNC) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Close tears down both TCP channels.
func (t *TNC) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	close(t.out)
	return multierr.Combine(t.ctrl.Close(), t.data.Close())
}
