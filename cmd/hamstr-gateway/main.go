// Command hamstr-gateway is the internet-side daemon: it bridges Nostr
// relays to a radio-connected client through the link core, fronted by an
// HTTP+WebSocket API for a web UI or other local tooling.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	gwconfig "github.com/n5htr/hamstr/internal/config"
	"github.com/n5htr/hamstr/internal/gateway"
	"github.com/n5htr/hamstr/internal/notestore"
	"github.com/n5htr/hamstr/internal/nwc"
	"github.com/n5htr/hamstr/link/ax25"
	"github.com/n5htr/hamstr/link/events"
	"github.com/n5htr/hamstr/link/sched"
	"github.com/n5htr/hamstr/link/session"
	"github.com/n5htr/hamstr/link/tnc"
)

func main() {
	app := &cli.App{
		Name:  "hamstr-gateway",
		Usage: "bridge Nostr relays to a radio-connected HAMSTR client",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to JSON config file"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	cfg, err := gwconfig.Load(c.String("config"), nil)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	tap := events.NewTap()
	tap.Subscribe(events.NewLogWriter(os.Stdout))

	ctx := context.Background()
	backend, err := tnc.Dial(ctx, &tnc.Addr{
		Scheme: "kiss-tcp",
		Host:   cfg.TCPHost,
		Port:   cfg.TCPPort,
		Baud:   cfg.Link.BaudRate,
	})
	if err != nil {
		return fmt.Errorf("dial tnc: %w", err)
	}
	defer backend.Close()

	local, err := ax25.ParseCallsign(cfg.LocalCallsign)
	if err != nil {
		return fmt.Errorf("local callsign: %w", err)
	}
	gate := &sched.Gate{Backend: backend, Cfg: cfg.Link, Tap: tap, Local: local}

	var store *notestore.Store
	if cfg.NoteCachePath != "" {
		store, err = notestore.Open(cfg.NoteCachePath)
		if err != nil {
			return fmt.Errorf("open note cache: %w", err)
		}
		defer store.Close()

		handler := &gateway.NoteHandler{Store: store}
		if cfg.NWCConnString != "" {
			wallet, err := nwc.Parse(cfg.NWCConnString)
			if err != nil {
				return fmt.Errorf("parse nwc connection string: %w", err)
			}
			handler.Wallet = &wallet
			// Invoicer and Submitter are left unset: composing an invoice
			// against the recipient's own relay, and dialing the wallet's
			// relay to submit the sealed pay_invoice command, both need a
			// NOSTR relay WebSocket client this repo doesn't implement.
			// serveZap reports that boundary rather than fabricating either.
		}
		go func() {
			if err := session.Listen(ctx, gate, cfg.Link, tap, handler); err != nil {
				tap.Emitf(events.Warning, "session listener stopped: %v", err)
			}
		}()
	}

	gw := gateway.New(tap)

	var mailbox *gateway.MailboxWatcher
	if cfg.MailboxDir != "" {
		mailbox, err = gateway.WatchMailbox(cfg.MailboxDir, toRequestChan(gw))
		if err != nil {
			return fmt.Errorf("watch mailbox %s: %w", cfg.MailboxDir, err)
		}
		defer mailbox.Close()
	}

	srv := &http.Server{Addr: cfg.HTTPListenAddr, Handler: gw.Handler(os.Stdout)}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return multierr.Combine(srv.Close())
	}
}

// toRequestChan exposes gw's internal outbound-request intake as a
// send-only channel for the mailbox watcher to push onto.
func toRequestChan(gw *gateway.Server) chan<- gateway.Request {
	ch := make(chan gateway.Request, 64)
	go func() {
		for req := range ch {
			gw.Submit(req)
		}
	}()
	return ch
}
