package sched

import (
	"context"
	"testing"
	"time"

	"github.com/n5htr/hamstr/link/ax25"
	"github.com/n5htr/hamstr/link/config"
	"github.com/n5htr/hamstr/link/events"
	"github.com/n5htr/hamstr/link/packet"
	"github.com/n5htr/hamstr/link/tnc"
)

func fastConfig() config.Config {
	cfg := config.Default()
	cfg.PTTTxDelay = time.Millisecond
	cfg.PTTRxDelay = time.Millisecond
	cfg.PTTTail = time.Millisecond
	cfg.PacketSendDelay = time.Millisecond
	return cfg
}

func TestGateSendRecvRoundTrip(t *testing.T) {
	a, b := tnc.NewLoopbackPair()
	local, _ := ax25.ParseCallsign("N5HTR-1")
	remote, _ := ax25.ParseCallsign("KC2XYZ-2")

	gateA := &Gate{Backend: a, Cfg: fastConfig(), Tap: events.NewTap(), Local: local, Remote: remote}
	gateB := &Gate{Backend: b, Cfg: fastConfig(), Tap: events.NewTap(), Local: remote, Remote: local}

	p := packet.Packet{SessionID: "deadbeef", Type: packet.TypeConnect, Seq: 1, Total: 1, Body: []byte("hi")}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := gateA.Send(ctx, p); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err := gateB.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if got.SessionID != p.SessionID || got.Type != p.Type {
		t.Fatalf("got %+v, want %+v", got, p)
	}
}

func TestGateRecvDiscardsFramesFromOthers(t *testing.T) {
	a, b := tnc.NewLoopbackPair()
	local, _ := ax25.ParseCallsign("N5HTR-1")
	remote, _ := ax25.ParseCallsign("KC2XYZ-2")
	other, _ := ax25.ParseCallsign("W1AW")

	gateA := &Gate{Backend: a, Cfg: fastConfig(), Tap: events.NewTap(), Local: other, Remote: remote}
	gateB := &Gate{Backend: b, Cfg: fastConfig(), Tap: events.NewTap(), Local: remote, Remote: local}

	p := packet.Packet{SessionID: "deadbeef", Type: packet.TypeConnect, Seq: 1, Total: 1}
	if err := gateA.Send(context.Background(), p); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := gateB.Recv(ctx); err == nil {
		t.Fatal("expected Recv to time out discarding a frame from a different station")
	}
}

func TestGateListenConnectIgnoresNonConnectAndWrongDest(t *testing.T) {
	a, b := tnc.NewLoopbackPair()
	local, _ := ax25.ParseCallsign("N5HTR-1")
	remote, _ := ax25.ParseCallsign("KC2XYZ-2")
	other, _ := ax25.ParseCallsign("W1AW")

	listener := &Gate{Backend: b, Cfg: fastConfig(), Tap: events.NewTap(), Local: local}

	// addressed to a different station: must be ignored
	elsewhere := &Gate{Backend: a, Cfg: fastConfig(), Tap: events.NewTap(), Local: remote, Remote: other}
	if err := elsewhere.Send(context.Background(), packet.Packet{SessionID: "aaaaaaaa", Type: packet.TypeConnect, Seq: 1, Total: 1}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	gateA := &Gate{Backend: a, Cfg: fastConfig(), Tap: events.NewTap(), Local: remote, Remote: local}
	// right station, wrong type: must be ignored
	if err := gateA.Send(context.Background(), packet.Packet{SessionID: "bbbbbbbb", Type: packet.TypeAck, Seq: 1, Total: 1}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	// the real CONNECT
	if err := gateA.Send(context.Background(), packet.Packet{SessionID: "cccccccc", Type: packet.TypeConnect, Seq: 1, Total: 1}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	from, p, err := listener.ListenConnect(ctx)
	if err != nil {
		t.Fatalf("ListenConnect: %v", err)
	}
	if from != remote {
		t.Fatalf("from = %v, want %v", from, remote)
	}
	if p.SessionID != "cccccccc" {
		t.Fatalf("got session %q, want the CONNECT's", p.SessionID)
	}
}
