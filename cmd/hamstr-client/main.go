// Command hamstr-client is the off-grid CLI: it drives the link core
// directly against a KISS TNC reached over TCP (tcp_host/tcp_port; the
// configured connection type is not consulted and VARA is not used) to
// connect to a gateway station, request a note feed, or send a note/zap
// payload.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/urfave/cli/v2"

	gwconfig "github.com/n5htr/hamstr/internal/config"
	"github.com/n5htr/hamstr/link/ax25"
	linkconfig "github.com/n5htr/hamstr/link/config"
	"github.com/n5htr/hamstr/link/events"
	"github.com/n5htr/hamstr/link/packet"
	"github.com/n5htr/hamstr/link/sched"
	"github.com/n5htr/hamstr/link/session"
	"github.com/n5htr/hamstr/link/tnc"
)

func main() {
	app := &cli.App{
		Name:  "hamstr-client",
		Usage: "talk to a HAMSTR gateway over a radio link",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to JSON config file"},
		},
		Commands: []*cli.Command{
			{
				Name:      "request",
				Usage:     "connect, issue a DATA_REQUEST, print the response",
				ArgsUsage: "<kind>",
				Action:    requestCmd,
			},
			{
				Name:      "send",
				Usage:     "connect and send a NOTE payload from a file",
				ArgsUsage: "<path>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "charset", Usage: "charset the file is encoded in, if not UTF-8"},
				},
				Action: sendCmd,
			},
			{
				Name:      "zap",
				Usage:     "connect and zap a pubkey via the gateway's NWC wallet",
				ArgsUsage: "<recipient-pubkey> <amount-msat>",
				Action:    zapCmd,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func dialGate(c *cli.Context) (*sched.Gate, *gwconfig.Config, error) {
	cfg, err := gwconfig.Load(c.String("config"), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	tap := events.NewTap()
	tap.Subscribe(events.NewLogWriter(os.Stdout))

	local, err := ax25.ParseCallsign(cfg.LocalCallsign)
	if err != nil {
		return nil, nil, fmt.Errorf("local callsign: %w", err)
	}
	remote, err := ax25.ParseCallsign(cfg.RemoteCallsign)
	if err != nil {
		return nil, nil, fmt.Errorf("remote callsign: %w", err)
	}

	backend, err := tnc.Dial(context.Background(), &tnc.Addr{
		Scheme: "kiss-tcp", Host: cfg.TCPHost, Port: cfg.TCPPort, Baud: cfg.Link.BaudRate,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial tnc: %w", err)
	}

	return &sched.Gate{Backend: backend, Cfg: cfg.Link, Tap: tap, Local: local, Remote: remote}, &cfg, nil
}

// watchInterrupt cancels s (best-effort DISCONNECT, pending waits wake with
// Cancelled) if the operator hits Ctrl-C before the session finishes on its
// own; it stops watching once ctx is done.
func watchInterrupt(ctx context.Context, s *session.Session) {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigc)
		select {
		case <-sigc:
			s.Cancel()
		case <-ctx.Done():
		}
	}()
}

// closeSession runs Close on a context independent of the one the caller
// used for the session's own work, so a DISCONNECT still goes out even if
// that context already expired or was cancelled.
func closeSession(s *session.Session, cfg linkconfig.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	s.Close(ctx)
}

func requestCmd(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: hamstr-client request <kind>")
	}
	gate, cfg, err := dialGate(c)
	if err != nil {
		return err
	}
	defer gate.Backend.Close()

	s := session.New(session.Initiator, gate, cfg.Link, gate.Tap)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Link.ConnectionTimeout)
	defer cancel()
	watchInterrupt(ctx, s)

	if err := s.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer closeSession(s, cfg.Link)

	resp, err := s.RequestPayload(ctx, c.Args().First(), nil)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	_, err = os.Stdout.Write(resp)
	return err
}

func sendCmd(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: hamstr-client send <path>")
	}
	payload, err := os.ReadFile(c.Args().First())
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	gate, cfg, err := dialGate(c)
	if err != nil {
		return err
	}
	defer gate.Backend.Close()

	s := session.New(session.Initiator, gate, cfg.Link, gate.Tap)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Link.ConnectionTimeout)
	defer cancel()
	watchInterrupt(ctx, s)

	if err := s.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer closeSession(s, cfg.Link)

	kind := "NOTE"
	if charset := c.String("charset"); charset != "" {
		kind += ";charset=" + charset
	}
	if _, err := s.RequestPayload(ctx, kind, payload); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// zapCmd drives the initiator side of the §4.6 zap/NWC exchange: request
// an invoice for recipientPubkey, hand it back to the gateway as
// authorization to pay, then wait for the gateway's NWC wallet to settle
// it before confirming.
func zapCmd(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("usage: hamstr-client zap <recipient-pubkey> <amount-msat>")
	}
	amountMsat, err := strconv.ParseInt(c.Args().Get(1), 10, 64)
	if err != nil {
		return fmt.Errorf("amount-msat: %w", err)
	}

	gate, cfg, err := dialGate(c)
	if err != nil {
		return err
	}
	defer gate.Backend.Close()

	s := session.New(session.Initiator, gate, cfg.Link, gate.Tap)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Link.ConnectionTimeout)
	defer cancel()
	watchInterrupt(ctx, s)

	if err := s.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer closeSession(s, cfg.Link)

	req, err := json.Marshal(struct {
		RecipientPubkey string `json:"recipient_pubkey"`
		AmountMsat      int64  `json:"amount_msat"`
	}{RecipientPubkey: c.Args().First(), AmountMsat: amountMsat})
	if err != nil {
		return fmt.Errorf("marshal zap request: %w", err)
	}

	invoice, err := s.RequestPayload(ctx, "ZAP", req)
	if err != nil {
		return fmt.Errorf("request invoice: %w", err)
	}
	fmt.Fprintf(os.Stdout, "invoice: %s\n", invoice)

	if err := s.SendPayload(ctx, packet.TypeNWCPaymentRequest, invoice); err != nil {
		return fmt.Errorf("authorize payment: %w", err)
	}
	result, err := s.ReceivePayload(ctx)
	if err != nil {
		return fmt.Errorf("await payment result: %w", err)
	}
	fmt.Fprintf(os.Stdout, "payment result: %s\n", result)

	return s.SendPayload(ctx, packet.TypeZapSuccessConfirm, []byte("ok"))
}
