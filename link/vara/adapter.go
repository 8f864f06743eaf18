package vara

import (
	"bytes"
	"context"
	"fmt"
)

var doneMarker = []byte{0x00}
var doneAckMarker = []byte{0x01}

// Adapter implements the VARA mode's thin framing protocol over an already
// ARQ-connected TNC: one block per logical message, then a one-byte DONE
// marker awaiting a DONE_ACK marker, replacing the packet layer's
// ACK/retry/PKT_MISSING cycle (VARA's stream is already reliable and
// in-order).
type Adapter struct {
	TNC *TNC
}

// SendMessage transmits payload as a single block followed by the DONE/
// DONE_ACK handshake.
func (a *Adapter) SendMessage(ctx context.Context, payload []byte) error {
	if err := a.TNC.SendBlock(ctx, payload); err != nil {
		return fmt.Errorf("vara: send message block: %w", err)
	}
	if err := a.TNC.SendBlock(ctx, doneMarker); err != nil {
		return fmt.Errorf("vara: send DONE marker: %w", err)
	}
	ack, err := a.TNC.RecvBlock(ctx)
	if err != nil {
		return fmt.Errorf("vara: await DONE_ACK: %w", err)
	}
	if !bytes.Equal(ack, doneAckMarker) {
		return fmt.Errorf("vara: expected DONE_ACK marker, got %d bytes", len(ack))
	}
	return nil
}

// ReceiveMessage blocks for the next application block, then waits for the
// sender's DONE marker and replies with the DONE_ACK marker.
func (a *Adapter) ReceiveMessage(ctx context.Context) ([]byte, error) {
	block, err := a.TNC.RecvBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("vara: receive message block: %w", err)
	}
	done, err := a.TNC.RecvBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("vara: await DONE marker: %w", err)
	}
	if !bytes.Equal(done, doneMarker) {
		return nil, fmt.Errorf("vara: expected DONE marker, got %d bytes", len(done))
	}
	if err := a.TNC.SendBlock(ctx, doneAckMarker); err != nil {
		return nil, fmt.Errorf("vara: send DONE_ACK: %w", err)
	}
	return block, nil
}
