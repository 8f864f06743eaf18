// Package sched implements the scheduler & PTT gate: the single-threaded
// cooperative loop that owns a TNC backend, serializes all radio I/O, and
// enforces TX/RX tail delays and inter-packet spacing around every
// transmission. It also performs the packet<->AX.25 framing, giving higher
// layers a segment.Transport view of the link.
package sched

import (
	"context"
	"fmt"
	"time"

	"github.com/n5htr/hamstr/link/ax25"
	"github.com/n5htr/hamstr/link/config"
	"github.com/n5htr/hamstr/link/events"
	"github.com/n5htr/hamstr/link/packet"
	"github.com/n5htr/hamstr/link/tnc"
)

// Gate serializes access to a tnc.Backend and applies PTT/pacing timing
// around every transmitted frame. Only one Gate should be driving a given
// Backend at a time, matching the one-session-per-TNC resource model.
type Gate struct {
	Backend tnc.Backend
	Cfg     config.Config
	Tap     *events.Tap
	Local   ax25.Callsign
	Remote  ax25.Callsign

	lastTx time.Time
}

// Send frames p as an AX.25 UI frame addressed Local->Remote, asserting
// PTT (if the backend supports it) for the duration of the transmission
// and enforcing the configured tail/spacing delays afterward.
func (g *Gate) Send(ctx context.Context, p packet.Packet) error {
	wire, err := p.Encode()
	if err != nil {
		return fmt.Errorf("sched: encode packet: %w", err)
	}
	frame := ax25.EncodeUI(g.Remote, g.Local, wire)

	if !g.lastTx.IsZero() {
		if wait := g.Cfg.PacketSendDelay - time.Since(g.lastTx); wait > 0 {
			if err := sleepCtx(ctx, wait); err != nil {
				return err
			}
		}
	}

	if err := g.assertPTT(ctx, true); err != nil {
		return err
	}
	defer g.assertPTT(context.Background(), false)

	g.Tap.Emitf(events.Packet, "TX frame: Type=%s Seq=%d/%d (%d bytes)", p.Type, p.Seq, p.Total, len(frame))
	if err := g.Backend.SendFrame(ctx, frame); err != nil {
		return fmt.Errorf("sched: send frame: %w", err)
	}
	g.lastTx = time.Now()

	if err := g.drainTxQueue(ctx); err != nil {
		return err
	}
	return sleepCtx(ctx, g.Cfg.PTTTail)
}

// drainTxQueue waits for the frame just handed to the backend to actually
// leave the queue before the scheduler moves on (to the next frame, or to
// releasing PTT). Backends that can report this give a real wait; backends
// that can't fall back to doing nothing here; PTTTail absorbs the
// uncertainty in that case, same as it always has.
func (g *Gate) drainTxQueue(ctx context.Context) error {
	if f, ok := g.Backend.(tnc.Flusher); ok {
		return f.Flush()
	}
	b, ok := g.Backend.(tnc.TxBuffer)
	if !ok {
		return nil
	}
	for {
		n, err := b.TxBufferLen()
		if err != nil {
			return fmt.Errorf("sched: tx buffer len: %w", err)
		}
		if n <= 0 {
			return nil
		}
		if err := sleepCtx(ctx, txBufferPollInterval); err != nil {
			return err
		}
	}
}

const txBufferPollInterval = 20 * time.Millisecond

// Recv blocks for the next inbound AX.25 frame addressed to Local from
// Remote, decodes it into a Packet, and returns it. Frames from other
// stations or with bad FCS/CRC are silently discarded (no NACK is sent
// on corruption) and the loop continues.
func (g *Gate) Recv(ctx context.Context) (packet.Packet, error) {
	for {
		frame, err := g.Backend.ReceiveFrame(ctx)
		if err != nil {
			return packet.Packet{}, err
		}
		f, err := ax25.DecodeUI(frame)
		if err != nil {
			continue
		}
		if f.Dest != g.Local || f.Src != g.Remote {
			continue
		}
		p, err := packet.Decode(f.Payload)
		if err != nil {
			continue
		}
		g.Tap.Emitf(events.Packet, "RX frame: Type=%s Seq=%d/%d", p.Type, p.Seq, p.Total)
		return p, nil
	}
}

// ListenConnect blocks for the next inbound CONNECT addressed to Local,
// from any station, and returns the sender's callsign and the CONNECT
// packet. Frames not addressed to Local, or addressed to Local but not a
// CONNECT, are discarded and the loop continues. Callers typically use
// the returned callsign as the Remote of a fresh per-session Gate.
func (g *Gate) ListenConnect(ctx context.Context) (ax25.Callsign, packet.Packet, error) {
	for {
		frame, err := g.Backend.ReceiveFrame(ctx)
		if err != nil {
			return ax25.Callsign{}, packet.Packet{}, err
		}
		f, err := ax25.DecodeUI(frame)
		if err != nil || f.Dest != g.Local {
			continue
		}
		p, err := packet.Decode(f.Payload)
		if err != nil || p.Type != packet.TypeConnect {
			continue
		}
		g.Tap.Emitf(events.Packet, "RX frame: Type=%s from %s", p.Type, f.Src)
		return f.Src, p, nil
	}
}

func (g *Gate) assertPTT(ctx context.Context, on bool) error {
	pc, ok := g.Backend.(tnc.PTTController)
	if !ok {
		return nil // backend (e.g. VARA) owns PTT itself or the TNC handles CSMA on its own
	}
	if err := pc.SetPTT(on); err != nil {
		return fmt.Errorf("sched: set ptt %v: %w", on, err)
	}
	if on {
		return sleepCtx(ctx, g.Cfg.PTTTxDelay)
	}
	return sleepCtx(ctx, g.Cfg.PTTRxDelay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
