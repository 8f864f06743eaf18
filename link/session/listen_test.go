package session

import (
	"context"
	"testing"
	"time"

	"github.com/n5htr/hamstr/link/ax25"
	"github.com/n5htr/hamstr/link/events"
	"github.com/n5htr/hamstr/link/packet"
	"github.com/n5htr/hamstr/link/sched"
	"github.com/n5htr/hamstr/link/tnc"
)

type echoHandler struct{}

func (echoHandler) Handle(ctx context.Context, s *Session, kind string, params []byte) error {
	if err := s.Ready(ctx); err != nil {
		return err
	}
	return s.SendPayload(ctx, packet.TypeResponse, []byte("echo:"+kind))
}

func TestListenAcceptsOneConnectAndServesRequest(t *testing.T) {
	gwStation, err := ax25.ParseCallsign("N0CALL-1")
	if err != nil {
		t.Fatalf("parse gateway callsign: %v", err)
	}
	fieldStation, err := ax25.ParseCallsign("N0CALL-2")
	if err != nil {
		t.Fatalf("parse field callsign: %v", err)
	}

	backA, backB := tnc.NewLoopbackPair()
	cfg := fastConfig()
	tap := events.NewTap()

	listenGate := &sched.Gate{Backend: backB, Cfg: cfg, Tap: tap, Local: gwStation}
	clientGate := &sched.Gate{Backend: backA, Cfg: cfg, Tap: tap, Local: fieldStation, Remote: gwStation}

	errc := make(chan error, 1)
	go func() {
		errc <- Listen(context.Background(), listenGate, cfg, tap, echoHandler{})
	}()

	initiator := New(Initiator, clientGate, cfg, tap)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := initiator.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	resp, err := initiator.RequestPayload(ctx, "FOLLOWING", nil)
	if err != nil {
		t.Fatalf("RequestPayload: %v", err)
	}
	if string(resp) != "echo:FOLLOWING" {
		t.Fatalf("resp = %q", resp)
	}
	if initiator.State() != Delivered {
		t.Fatalf("initiator state = %s, want DELIVERED", initiator.State())
	}
}
