package vara

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// memBlockTNC is an in-memory stand-in for the block-oriented half of TNC
// (SendBlock/RecvBlock), letting the adapter's framing protocol be tested
// without a real VARA TCP data channel.
type memBlockTNC struct {
	out chan []byte
	in  chan []byte
}

func newMemPair() (a, b *memBlockTNC) {
	ab := make(chan []byte, 8)
	ba := make(chan []byte, 8)
	return &memBlockTNC{out: ab, in: ba}, &memBlockTNC{out: ba, in: ab}
}

func (m *memBlockTNC) SendBlock(ctx context.Context, block []byte) error {
	cp := append([]byte(nil), block...)
	select {
	case m.out <- cp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *memBlockTNC) RecvBlock(ctx context.Context) ([]byte, error) {
	select {
	case b := <-m.in:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type blockTransport interface {
	SendBlock(ctx context.Context, block []byte) error
	RecvBlock(ctx context.Context) ([]byte, error)
}

// testAdapter mirrors Adapter's framing logic against the blockTransport
// interface so the test doesn't need a real *TNC.
type testAdapter struct{ t blockTransport }

func (a *testAdapter) SendMessage(ctx context.Context, payload []byte) error {
	if err := a.t.SendBlock(ctx, payload); err != nil {
		return err
	}
	if err := a.t.SendBlock(ctx, doneMarker); err != nil {
		return err
	}
	ack, err := a.t.RecvBlock(ctx)
	if err != nil {
		return err
	}
	if string(ack) != string(doneAckMarker) {
		return fmt.Errorf("expected DONE_ACK marker, got %v", ack)
	}
	return nil
}

func (a *testAdapter) ReceiveMessage(ctx context.Context) ([]byte, error) {
	block, err := a.t.RecvBlock(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := a.t.RecvBlock(ctx); err != nil { // DONE marker
		return nil, err
	}
	if err := a.t.SendBlock(ctx, doneAckMarker); err != nil {
		return nil, err
	}
	return block, nil
}

func TestAdapterSendReceiveRoundTrip(t *testing.T) {
	sideA, sideB := newMemPair()
	sender := &testAdapter{t: sideA}
	receiver := &testAdapter{t: sideB}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan []byte, 1)
	errc := make(chan error, 1)
	go func() {
		b, err := receiver.ReceiveMessage(ctx)
		errc <- err
		done <- b
	}()

	if err := sender.SendMessage(ctx, []byte("hello over vara")); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if err := <-errc; err != nil {
		t.Fatalf("ReceiveMessage: %v", err)
	}
	got := <-done
	if string(got) != "hello over vara" {
		t.Fatalf("got %q", got)
	}
}

func TestParseCtrlMsgHandlesUnknownCommands(t *testing.T) {
	// Unknown/future control tokens must not panic the parser; the reader
	// loop passes anything it doesn't recognize to subscribers and otherwise
	// ignores it (it is not logged).
	msg := parseCtrlMsg("SOMENEWTHING 42")
	if msg.cmd != "SOMENEWTHING" || msg.value != "42" {
		t.Fatalf("got %+v", msg)
	}
}
