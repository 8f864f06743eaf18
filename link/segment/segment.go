// Package segment implements the reliable segmentation protocol: a
// stop-and-wait sender and a gap-tracking reassembling receiver, layered
// over an abstract packet Transport (normally the scheduler talking to a
// KISS/AX.25 TNC backend).
package segment

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/n5htr/hamstr/link"
	"github.com/n5htr/hamstr/link/config"
	"github.com/n5htr/hamstr/link/events"
	"github.com/n5htr/hamstr/link/packet"
)

// Transport is the narrow interface the segmentation layer needs from
// whatever carries packets: send one, and block for the next inbound
// packet belonging to the session.
type Transport interface {
	Send(ctx context.Context, p packet.Packet) error
	Recv(ctx context.Context) (packet.Packet, error)
}

// ErrIncompleteTransmission is returned by Send when missing-packet
// recovery cycles are exhausted without the receiver confirming delivery.
var ErrIncompleteTransmission = fmt.Errorf("segment: incomplete transmission")

// ErrReceiveIncomplete is returned by Receive when the sender stops
// responding before all sequences arrive.
var ErrReceiveIncomplete = fmt.Errorf("segment: receive incomplete")

// Sender drives the stop-and-wait send side of one logical message.
type Sender struct {
	Transport Transport
	Cfg       config.Config
	Tap       *events.Tap
	SessionID string
}

// Send splits body into Cfg.MaxPacketSize-bounded chunks of type typ and
// drives them through the ACK/retry/PKT_MISSING/DONE/DONE_ACK cycle
// described by the reliable segmentation protocol.
func (s *Sender) Send(ctx context.Context, typ packet.Type, body []byte) error {
	chunks := chunk(body, bodyBudget(s.Cfg))
	total := uint16(len(chunks))
	if total == 0 {
		total = 1
		chunks = [][]byte{{}}
	}

	for seq := uint16(1); seq <= total; seq++ {
		pkt := packet.Packet{SessionID: s.SessionID, Type: typ, Seq: seq, Total: total, Body: chunks[seq-1]}
		// A seq that exhausts its own retry budget here is not fatal: it
		// falls to the receiver's PKT_MISSING list and gets one more pass
		// in the cycle loop below instead of stalling the whole transfer.
		s.sendWithRetry(ctx, pkt)
		s.progress(seq, total)
	}

	for cycle := 0; cycle < s.Cfg.MissingCycles; cycle++ {
		if err := s.sendControl(ctx, packet.TypeDone, ""); err != nil {
			return err
		}
		reply, err := s.awaitControl(ctx, s.Cfg.MissingPacketsTimeout, link.PhaseDone, packet.TypeDoneAck, packet.TypePktMissing)
		if err != nil {
			continue // timeout: re-issue DONE
		}
		if reply.Type == packet.TypeDoneAck {
			return nil
		}
		missing := parseSeqList(string(reply.Body))
		s.Tap.Emitf(events.Control, "Received control: Type=PKT_MISSING, Content=%s", reply.Body)
		for _, seq := range missing {
			if int(seq) < 1 || int(seq) > len(chunks) {
				continue
			}
			pkt := packet.Packet{SessionID: s.SessionID, Type: typ, Seq: seq, Total: total, Body: chunks[seq-1]}
			s.sendWithRetry(ctx, pkt)
		}
	}
	return link.NewTimeout(link.PhaseDone, ErrIncompleteTransmission)
}

func (s *Sender) sendWithRetry(ctx context.Context, pkt packet.Packet) bool {
	for attempt := 0; attempt <= s.Cfg.SendRetries; attempt++ {
		est := estimatedTransmissionSeconds(wireOverhead+len(pkt.Body), s.Cfg)
		s.Tap.Emitf(events.Control, "Sending packet: Type=%s, Seq=%d/%d, Estimated transmission time: %.2f seconds", pkt.Type, pkt.Seq, pkt.Total, est)
		if err := s.Transport.Send(ctx, pkt); err != nil {
			return false
		}
		ackCtx, cancel := context.WithTimeout(ctx, s.Cfg.AckTimeout)
		reply, err := s.awaitControl(ackCtx, s.Cfg.AckTimeout, link.PhaseAck, packet.TypeAck)
		for err == nil && ackSeq(reply) < pkt.Seq {
			// A late ACK for an earlier seq is already accounted for; keep
			// waiting for this one within the same ACK timeout.
			reply, err = s.awaitControl(ackCtx, s.Cfg.AckTimeout, link.PhaseAck, packet.TypeAck)
		}
		cancel()
		if err == nil && ackSeq(reply) >= pkt.Seq {
			return true
		}
		time.Sleep(s.Cfg.PacketResendDelay)
	}
	return false
}

func (s *Sender) sendControl(ctx context.Context, typ packet.Type, body string) error {
	return s.Transport.Send(ctx, packet.Packet{SessionID: s.SessionID, Type: typ, Seq: 1, Total: 1, Body: []byte(body)})
}

// awaitControl blocks up to timeout for a packet whose type is in want.
func (s *Sender) awaitControl(ctx context.Context, timeout time.Duration, phase link.Phase, want ...packet.Type) (packet.Packet, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		p, err := s.Transport.Recv(ctx)
		if err != nil {
			return packet.Packet{}, link.NewTimeout(phase, err)
		}
		for _, t := range want {
			if p.Type == t {
				s.Tap.Emitf(events.Control, "Received control: Type=%s, Content=%s", p.Type, p.Body)
				return p, nil
			}
		}
		// Not a wanted type (e.g. a late ACK while DONE_ACK is awaited); ignore and keep waiting.
	}
}

func (s *Sender) progress(seq, total uint16) {
	pct := float64(seq) * 100 / float64(total)
	s.Tap.Emitf(events.Progress, "%.2f%% complete", pct)
}

func ackSeq(p packet.Packet) uint16 {
	n, _ := strconv.Atoi(strings.TrimPrefix(string(p.Body), "ACK|"))
	return uint16(n)
}

// wireOverhead is the packet.Encode framing cost: session_id+type+seq+total+crc.
const wireOverhead = 8 + 1 + 2 + 2 + 2

// estimatedTransmissionSeconds estimates how long a packet of wireLen bytes
// takes on the air: 10 bits per byte (8 data bits plus start and stop bits)
// at the configured baud rate, plus the configured per-packet send delay.
func estimatedTransmissionSeconds(wireLen int, cfg config.Config) float64 {
	baud := cfg.BaudRate
	if baud <= 0 {
		baud = 1200
	}
	return float64(wireLen*10)/float64(baud) + cfg.PacketSendDelay.Seconds()
}

func bodyBudget(cfg config.Config) int {
	const headerOverhead = wireOverhead
	budget := cfg.MaxPacketSize - headerOverhead
	if budget < 1 {
		budget = 1
	}
	return budget
}

func chunk(body []byte, size int) [][]byte {
	if len(body) == 0 {
		return nil
	}
	var out [][]byte
	for i := 0; i < len(body); i += size {
		end := i + size
		if end > len(body) {
			end = len(body)
		}
		out = append(out, body[i:end])
	}
	return out
}

func parseSeqList(csv string) []uint16 {
	csv = strings.TrimPrefix(csv, "PKT_MISSING|")
	var out []uint16
	for _, f := range strings.Split(csv, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if n, err := strconv.Atoi(f); err == nil {
			out = append(out, uint16(n))
		}
	}
	return out
}

// Receiver drives the reassembling receive side of one logical message.
type Receiver struct {
	Transport Transport
	Cfg       config.Config
	Tap       *events.Tap
	SessionID string

	received map[uint16][]byte
	total    uint16
}

// Receive blocks until a complete message has been reassembled from the
// data packets of any non-DONE type, or an error terminates the exchange.
func (r *Receiver) Receive(ctx context.Context) ([]byte, error) {
	r.received = make(map[uint16][]byte)
	reissues := 0

	for {
		ctx2, cancel := context.WithTimeout(ctx, r.missingTimeout())
		p, err := r.Transport.Recv(ctx2)
		cancel()
		if err != nil {
			if r.total == 0 {
				return nil, link.NewTimeout(link.PhaseData, err)
			}
			reissues++
			if reissues > r.Cfg.MissingPacketsThreshold {
				return nil, link.NewTimeout(link.PhaseData, ErrReceiveIncomplete)
			}
			if err := r.sendMissing(ctx); err != nil {
				return nil, err
			}
			continue
		}

		switch p.Type {
		case packet.TypeDone:
			// DONE is a control packet (Total == 1); the message's real
			// total comes from its data packets.
			if r.total == 0 {
				r.total = p.Total
			}
			missing := r.missing()
			if len(missing) == 0 {
				return r.assemble(), r.Transport.Send(ctx, packet.Packet{
					SessionID: r.SessionID, Type: packet.TypeDoneAck, Seq: 1, Total: 1,
				})
			}
			if err := r.sendMissing(ctx); err != nil {
				return nil, err
			}
		default:
			r.total = p.Total
			if _, dup := r.received[p.Seq]; !dup {
				r.received[p.Seq] = p.Body
			}
			r.Tap.Emitf(events.Packet, "Received data: Seq=%d/%d", p.Seq, p.Total)
			ack := packet.Packet{SessionID: r.SessionID, Type: packet.TypeAck, Seq: 1, Total: 1, Body: []byte(fmt.Sprintf("ACK|%d", p.Seq))}
			if err := r.Transport.Send(ctx, ack); err != nil {
				return nil, err
			}
		}
	}
}

func (r *Receiver) missingTimeout() time.Duration {
	if r.Cfg.MissingPacketsTimeout > 0 {
		return r.Cfg.MissingPacketsTimeout
	}
	return 8 * time.Second
}

func (r *Receiver) missing() []uint16 {
	var out []uint16
	for seq := uint16(1); seq <= r.total; seq++ {
		if _, ok := r.received[seq]; !ok {
			out = append(out, seq)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Receiver) sendMissing(ctx context.Context) error {
	missing := r.missing()
	parts := make([]string, len(missing))
	for i, s := range missing {
		parts[i] = strconv.Itoa(int(s))
	}
	body := "PKT_MISSING|" + strings.Join(parts, ",")
	r.Tap.Emitf(events.Control, "Sending packet: Type=PKT_MISSING, Content=%s", body)
	return r.Transport.Send(ctx, packet.Packet{SessionID: r.SessionID, Type: packet.TypePktMissing, Seq: 1, Total: 1, Body: []byte(body)})
}

func (r *Receiver) assemble() []byte {
	var out []byte
	for seq := uint16(1); seq <= r.total; seq++ {
		out = append(out, r.received[seq]...)
	}
	return out
}
