package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/n5htr/hamstr/link/config"
	"github.com/n5htr/hamstr/link/events"
	"github.com/n5htr/hamstr/link/packet"
)

type chanTransport struct {
	out chan packet.Packet
	in  chan packet.Packet
	mu  sync.Mutex
}

func newPair() (a, b *chanTransport) {
	ab := make(chan packet.Packet, 64)
	ba := make(chan packet.Packet, 64)
	return &chanTransport{out: ab, in: ba}, &chanTransport{out: ba, in: ab}
}

func (t *chanTransport) Send(ctx context.Context, p packet.Packet) error {
	select {
	case t.out <- p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *chanTransport) Recv(ctx context.Context) (packet.Packet, error) {
	select {
	case p := <-t.in:
		return p, nil
	case <-ctx.Done():
		return packet.Packet{}, ctx.Err()
	}
}

func fastConfig() config.Config {
	cfg := config.Default()
	cfg.AckTimeout = 200 * time.Millisecond
	cfg.ConnectAckTimeout = 300 * time.Millisecond
	cfg.ReadyTimeout = 300 * time.Millisecond
	cfg.MissingPacketsTimeout = 300 * time.Millisecond
	cfg.DisconnectTimeout = 300 * time.Millisecond
	cfg.PacketResendDelay = 10 * time.Millisecond
	cfg.MaxPacketSize = 64
	return cfg
}

func TestFullSessionExchange(t *testing.T) {
	initT, respT := newPair()
	cfg := fastConfig()

	initiator := New(Initiator, initT, cfg, events.NewTap())
	responder := New(Responder, respT, cfg, events.NewTap())

	errc := make(chan error, 2)
	var response []byte

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		// Responder waits for CONNECT itself (simplified: it knows one is
		// coming and builds the packet view it needs to Accept).
		p, err := respT.Recv(ctx)
		if err != nil {
			errc <- err
			return
		}
		if err := responder.Accept(ctx, p); err != nil {
			errc <- err
			return
		}
		kind, _, err := responder.AwaitDataRequest(ctx)
		if err != nil {
			errc <- err
			return
		}
		if kind != "FOLLOWING" {
			errc <- fmt.Errorf("unexpected kind %q", kind)
			return
		}
		if err := responder.Ready(ctx); err != nil {
			errc <- err
			return
		}
		if err := responder.SendPayload(ctx, packet.TypeResponse, []byte("a stream of notes")); err != nil {
			errc <- err
			return
		}
		errc <- nil
	}()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := initiator.Connect(ctx); err != nil {
			errc <- err
			return
		}
		responder.ID = initiator.ID // both sides must agree on the session id
		resp, err := initiator.RequestPayload(ctx, "FOLLOWING", nil)
		if err != nil {
			errc <- err
			return
		}
		response = resp
		errc <- nil
	}()

	for i := 0; i < 2; i++ {
		if err := <-errc; err != nil {
			t.Fatalf("exchange failed: %v", err)
		}
	}

	if string(response) != "a stream of notes" {
		t.Fatalf("response = %q", response)
	}
	if initiator.State() != Delivered {
		t.Fatalf("initiator state = %s, want DELIVERED", initiator.State())
	}
}
