// Package session implements the HAMSTR session state machine: connect,
// data-request/ready handshake, reliable transfer, and disconnect, for
// both the initiating and responding role, on top of the segment package's
// reliable segmentation protocol.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/n5htr/hamstr/link"
	"github.com/n5htr/hamstr/link/ax25"
	"github.com/n5htr/hamstr/link/config"
	"github.com/n5htr/hamstr/link/events"
	"github.com/n5htr/hamstr/link/packet"
	"github.com/n5htr/hamstr/link/sched"
	"github.com/n5htr/hamstr/link/segment"
)

// Role distinguishes which side of the handshake a Session plays.
type Role int

const (
	Initiator Role = iota
	Responder
)

// State enumerates the session lifecycle per the session state machine.
type State int

const (
	Idle State = iota
	Connecting
	Connected
	Requesting
	ReadyTx
	Receiving
	Delivered
	Disconnecting
	Closed
	Failed
)

func (s State) String() string {
	return [...]string{"IDLE", "CONNECTING", "CONNECTED", "REQUESTING", "READY_TX", "RECEIVING", "DELIVERED", "DISCONNECTING", "CLOSED", "FAILED"}[s]
}

// Session is a single point-to-point exchange between two callsigns. All
// state mutation happens from the goroutine driving the session's public
// methods; mu only guards the State() accessor used by observers.
type Session struct {
	Role      Role
	Transport segment.Transport
	Cfg       config.Config
	Tap       *events.Tap

	ID     string
	Remote ax25.Callsign

	mu         sync.Mutex
	state      State
	cancel     chan struct{}
	cancelOnce sync.Once
}

// New constructs a Session. For Initiator role, a fresh session id is
// generated; for Responder role the id is taken from the inbound CONNECT
// by Accept. If transport is a
// *sched.Gate, its Remote callsign is adopted for the session log lines;
// callers on other transports should set Session.Remote themselves.
func New(role Role, transport segment.Transport, cfg config.Config, tap *events.Tap) *Session {
	s := &Session{Role: role, Transport: transport, Cfg: cfg, Tap: tap, state: Idle, cancel: make(chan struct{})}
	if gate, ok := transport.(*sched.Gate); ok {
		s.Remote = gate.Remote
	}
	if role == Initiator {
		s.ID = newSessionID()
	}
	return s
}

func newSessionID() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.Tap.Emitf(events.Session, "state -> %s", st)
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) send(ctx context.Context, typ packet.Type, body string) error {
	return s.Transport.Send(ctx, packet.Packet{SessionID: s.ID, Type: typ, Seq: 1, Total: 1, Body: []byte(body)})
}

// withCancel derives a context that is cancelled either the normal way, by
// the caller, or by a Cancel() call racing in from another goroutine. The
// watcher goroutine exits as soon as either fires.
func (s *Session) withCancel(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-s.cancel:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func (s *Session) isCancelled() bool {
	select {
	case <-s.cancel:
		return true
	default:
		return false
	}
}

// Cancel requests a cooperative abort of the session: any wait blocked in
// await, or in a segment Sender/Receiver driven from RequestPayload/
// SendPayload/AwaitDataRequest, wakes with a Cancelled error. A single
// best-effort DISCONNECT is then sent on a fresh, non-cancelled context so
// the peer learns the session ended even if the caller's own context is
// already done. Cancel is idempotent and safe to call from any goroutine.
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() {
		close(s.cancel)
		switch s.State() {
		case Idle, Closed, Failed:
			return
		}
		ctx, done := context.WithTimeout(context.Background(), s.Cfg.ShutdownTimeout)
		defer done()
		_ = s.send(ctx, packet.TypeDisconnect, "")
		s.setState(Closed)
	})
}

func (s *Session) await(ctx context.Context, timeout time.Duration, phase link.Phase, want ...packet.Type) (packet.Packet, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		p, err := s.Transport.Recv(ctx)
		if err != nil {
			if s.isCancelled() {
				return packet.Packet{}, link.New(link.KindCancelled, err)
			}
			return packet.Packet{}, link.NewTimeout(phase, err)
		}
		if p.SessionID != s.ID && s.ID != "" {
			return packet.Packet{}, link.New(link.KindProtocolViolation, fmt.Errorf("session: received packet for session %q, want %q", p.SessionID, s.ID))
		}
		for _, t := range want {
			if p.Type == t {
				return p, nil
			}
		}
	}
}

// Connect performs the initiator-side CONNECT / CONNECT_ACK handshake,
// retrying up to Cfg.DisconnectRetry times before failing.
func (s *Session) Connect(ctx context.Context) error {
	if s.Role != Initiator {
		return fmt.Errorf("session: Connect is only valid for the initiator role")
	}
	s.setState(Connecting)
	ctx, cancel := s.withCancel(ctx)
	defer cancel()
	for attempt := 0; attempt <= s.Cfg.DisconnectRetry; attempt++ {
		if err := s.send(ctx, packet.TypeConnect, ""); err != nil {
			s.setState(Failed)
			if s.isCancelled() {
				return link.New(link.KindCancelled, err)
			}
			return link.New(link.KindBackendError, err)
		}
		p, err := s.await(ctx, s.Cfg.ConnectAckTimeout, link.PhaseConnect, packet.TypeConnectAck)
		if err == nil {
			if len(p.SessionID) == packet.SessionIDLen {
				s.ID = p.SessionID
			}
			s.setState(Connected)
			s.Tap.Emitf(events.Session, "CONNECTED to %s-%d", s.Remote.Call, s.Remote.SSID)
			return nil
		}
		if s.isCancelled() {
			s.setState(Failed)
			return err
		}
	}
	s.setState(Failed)
	return link.NewTimeout(link.PhaseConnect, fmt.Errorf("exhausted %d CONNECT retries", s.Cfg.DisconnectRetry))
}

// Accept performs the responder-side half of the CONNECT handshake, given
// an already-received CONNECT packet (typically discovered by a listen
// loop scanning for CONNECTs addressed to the local callsign).
func (s *Session) Accept(ctx context.Context, connect packet.Packet) error {
	if s.Role != Responder {
		return fmt.Errorf("session: Accept is only valid for the responder role")
	}
	s.ID = connect.SessionID
	s.setState(Connecting)
	if err := s.send(ctx, packet.TypeConnectAck, ""); err != nil {
		s.setState(Failed)
		return link.New(link.KindBackendError, err)
	}
	s.setState(Connected)
	s.Tap.Emitf(events.Session, "CONNECTED to %s-%d", s.Remote.Call, s.Remote.SSID)
	return nil
}

// RequestPayload sends a DATA_REQUEST of the given kind/params and returns
// the responder's reassembled RESPONSE payload.
func (s *Session) RequestPayload(ctx context.Context, kind string, params []byte) ([]byte, error) {
	if s.state != Connected {
		return nil, fmt.Errorf("session: RequestPayload requires state Connected, have %s", s.state)
	}
	s.setState(Requesting)
	ctx, cancel := s.withCancel(ctx)
	defer cancel()

	sender := &segment.Sender{Transport: s.Transport, Cfg: s.Cfg, Tap: s.Tap, SessionID: s.ID}
	body := append([]byte(kind+"\x00"), params...)
	if err := sender.Send(ctx, packet.TypeDataRequest, body); err != nil {
		s.setState(Failed)
		if s.isCancelled() {
			return nil, link.New(link.KindCancelled, err)
		}
		return nil, link.New(link.KindBackendError, err)
	}

	if _, err := s.await(ctx, s.Cfg.ReadyTimeout, link.PhaseReady, packet.TypeReady); err != nil {
		s.setState(Failed)
		return nil, err
	}
	s.setState(ReadyTx)
	s.setState(Receiving)

	receiver := &segment.Receiver{Transport: s.Transport, Cfg: s.Cfg, Tap: s.Tap, SessionID: s.ID}
	payload, err := receiver.Receive(ctx)
	if err != nil {
		s.setState(Failed)
		if s.isCancelled() {
			return nil, link.New(link.KindCancelled, err)
		}
		return nil, link.New(link.KindReceiveIncomplete, err)
	}
	s.setState(Delivered)
	return payload, nil
}

// SendPayload transmits one reliable message of the given type (NOTE,
// ZAP_KIND9734_REQUEST, NWC_PAYMENT_REQUEST, ZAP_SUCCESS_CONFIRM) from the
// responder role after a DATA_REQUEST/READY handshake, or ad-hoc by the
// initiator for request/response pairs that don't fit RequestPayload.
func (s *Session) SendPayload(ctx context.Context, typ packet.Type, payload []byte) error {
	ctx, cancel := s.withCancel(ctx)
	defer cancel()
	sender := &segment.Sender{Transport: s.Transport, Cfg: s.Cfg, Tap: s.Tap, SessionID: s.ID}
	if err := sender.Send(ctx, typ, payload); err != nil {
		s.setState(Failed)
		if s.isCancelled() {
			return link.New(link.KindCancelled, err)
		}
		return link.New(link.KindIncompleteTransmission, err)
	}
	return nil
}

// AwaitDataRequest blocks (responder role) for the next DATA_REQUEST,
// returning its kind and parameter bytes.
func (s *Session) AwaitDataRequest(ctx context.Context) (kind string, params []byte, err error) {
	s.setState(Requesting)
	body, err := s.ReceivePayload(ctx)
	if err != nil {
		s.setState(Failed)
		return "", nil, err
	}
	for i, b := range body {
		if b == 0 {
			return string(body[:i]), body[i+1:], nil
		}
	}
	return string(body), nil, nil
}

// ReceivePayload blocks for the next reliably-segmented message addressed
// to this session, regardless of type, and returns its reassembled body.
// AwaitDataRequest layers the kind\x00params convention on top of this for
// the initial request; a RequestHandler reaches for ReceivePayload
// directly for any further sub-exchange within the same session (e.g. the
// NWC_PAYMENT_REQUEST and ZAP_SUCCESS_CONFIRM legs of a zap).
func (s *Session) ReceivePayload(ctx context.Context) ([]byte, error) {
	ctx, cancel := s.withCancel(ctx)
	defer cancel()
	receiver := &segment.Receiver{Transport: s.Transport, Cfg: s.Cfg, Tap: s.Tap, SessionID: s.ID}
	body, err := receiver.Receive(ctx)
	if err != nil {
		if s.isCancelled() {
			return nil, link.New(link.KindCancelled, err)
		}
		return nil, link.New(link.KindReceiveIncomplete, err)
	}
	return body, nil
}

// Ready signals (responder role) that the requested payload is about to
// be sent.
func (s *Session) Ready(ctx context.Context) error {
	s.setState(ReadyTx)
	return s.send(ctx, packet.TypeReady, "")
}

// Close performs the DISCONNECT / DISCONNECT_ACK handshake and transitions
// to Closed regardless of outcome (best-effort per the fatal-error path).
// Close is idempotent: a session already Closed returns success without
// putting anything on the air.
func (s *Session) Close(ctx context.Context) error {
	if s.State() == Closed {
		return nil
	}
	s.setState(Disconnecting)
	var lastErr error
	for attempt := 0; attempt <= s.Cfg.DisconnectRetry; attempt++ {
		if err := s.send(ctx, packet.TypeDisconnect, ""); err != nil {
			lastErr = err
			continue
		}
		if _, err := s.await(ctx, s.Cfg.DisconnectTimeout, link.PhaseDisconnect, packet.TypeDisconnectAck); err == nil {
			s.setState(Closed)
			s.Tap.Emitf(events.Session, "Client disconnect complete")
			return nil
		}
	}
	s.setState(Closed)
	if lastErr != nil {
		return link.New(link.KindTimeout, lastErr)
	}
	return nil
}

// AcknowledgeDisconnect replies DISCONNECT_ACK to a received DISCONNECT
// and transitions to Closed (responder role, or either role reacting to a
// peer-initiated close).
func (s *Session) AcknowledgeDisconnect(ctx context.Context) error {
	if err := s.send(ctx, packet.TypeDisconnectAck, ""); err != nil {
		return err
	}
	s.setState(Closed)
	s.Tap.Emitf(events.Session, "Client disconnect complete")
	return nil
}

// RequestHandler serves one DATA_REQUEST on an already-accepted responder
// Session, sending a READY followed by the response payload (or an error)
// before returning. It decouples the session protocol from whatever
// backs the requested data (a note cache, a relay query, a payment flow).
type RequestHandler interface {
	Handle(ctx context.Context, s *Session, kind string, params []byte) error
}

// Listen drives the responder side of the link: it blocks on gate for a
// CONNECT addressed to gate.Local, accepts it, binds a fresh per-peer
// Gate to the sender's callsign, and serves exactly one DATA_REQUEST
// through handler before disconnecting. Only one peer is served at a
// time: while a session is active the per-peer Gate discards frames from
// any other station, so a second CONNECT is dropped and gets no reply.
//
// Listen runs until ctx is cancelled or gate.Backend returns a fatal
// error from ReceiveFrame.
func Listen(ctx context.Context, gate *sched.Gate, cfg config.Config, tap *events.Tap, handler RequestHandler) error {
	for {
		remote, connect, err := gate.ListenConnect(ctx)
		if err != nil {
			return err
		}
		if err := serveOne(ctx, gate, remote, connect, cfg, tap, handler); err != nil {
			tap.Emitf(events.Warning, "session with %s ended: %v", remote, err)
		}
	}
}

func serveOne(ctx context.Context, gate *sched.Gate, remote ax25.Callsign, connect packet.Packet, cfg config.Config, tap *events.Tap, handler RequestHandler) error {
	peerGate := &sched.Gate{Backend: gate.Backend, Cfg: gate.Cfg, Tap: gate.Tap, Local: gate.Local, Remote: remote}
	s := New(Responder, peerGate, cfg, tap)

	if err := s.Accept(ctx, connect); err != nil {
		return fmt.Errorf("session: accept from %s: %w", remote, err)
	}
	defer s.Close(ctx)

	kind, params, err := s.AwaitDataRequest(ctx)
	if err != nil {
		return fmt.Errorf("session: await data request from %s: %w", remote, err)
	}

	if err := handler.Handle(ctx, s, kind, params); err != nil {
		_ = s.send(ctx, packet.TypeError, err.Error())
		return fmt.Errorf("session: handle %q from %s: %w", kind, remote, err)
	}
	return nil
}
