package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/n5htr/hamstr/internal/noteconv"
	"github.com/n5htr/hamstr/internal/notestore"
	"github.com/n5htr/hamstr/internal/nwc"
	"github.com/n5htr/hamstr/link/packet"
	"github.com/n5htr/hamstr/link/session"
)

// Invoicer produces a Lightning invoice for a zap addressed to
// recipientPubkey. No implementation lives in this repo: composing and
// signing the underlying NOSTR/LNURL exchange with the recipient's relay
// is out of scope (spec.md's external-collaborators list), so NoteHandler
// treats a nil Invoicer as "zap invoicing not configured" rather than
// fabricating an invoice.
type Invoicer interface {
	Invoice(ctx context.Context, recipientPubkey string, amountMsat int64) (string, error)
}

// NoteHandler serves DATA_REQUEST kinds from the local note cache and the
// zap/NWC payment flow: "FOLLOWING" streams cached notes, "NOTE" (or
// "NOTE;charset=<name>") ingests an inbound note, and "ZAP" drives the
// multi-leg zap exchange. Unrecognized kinds fail with an error the
// session layer relays back as a TypeError packet.
type NoteHandler struct {
	Store *notestore.Store
	Limit int

	Invoicer  Invoicer
	Wallet    *nwc.Conn
	Submitter nwc.Submitter
}

var _ session.RequestHandler = (*NoteHandler)(nil)

func (h *NoteHandler) Handle(ctx context.Context, s *session.Session, kind string, params []byte) error {
	switch {
	case kind == "FOLLOWING":
		return h.serveFollowing(ctx, s, string(params))
	case kind == "ZAP":
		return h.serveZap(ctx, s, params)
	case strings.HasPrefix(kind, "NOTE"):
		return h.receiveNote(ctx, s, kind, params)
	default:
		return fmt.Errorf("gateway: unsupported request kind %q", kind)
	}
}

func (h *NoteHandler) serveFollowing(ctx context.Context, s *session.Session, pubkey string) error {
	limit := h.Limit
	if limit <= 0 {
		limit = 50
	}
	notes, err := h.Store.NotesByPubkey(ctx, pubkey, limit)
	if err != nil {
		return fmt.Errorf("gateway: load notes for %s: %w", pubkey, err)
	}

	if err := s.Ready(ctx); err != nil {
		return fmt.Errorf("gateway: send ready: %w", err)
	}

	lines := make([]string, 0, len(notes))
	for _, n := range notes {
		lines = append(lines, n.RawJSON)
	}
	body, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("gateway: marshal response: %w", err)
	}
	return s.SendPayload(ctx, packet.TypeResponse, body)
}

// receiveNote stores an inbound note sent from the field side. kind may
// carry a declared charset as "NOTE;charset=<name>" for bodies that arrive
// in a legacy encoding over the narrowband link; noteconv transcodes those
// to UTF-8 before the note is parsed and cached.
func (h *NoteHandler) receiveNote(ctx context.Context, s *session.Session, kind string, raw []byte) error {
	_, charset, _ := strings.Cut(kind, ";charset=")
	body, err := noteconv.ToUTF8(raw, charset)
	if err != nil {
		return fmt.Errorf("gateway: transcode note body: %w", err)
	}

	var evt struct {
		ID      string `json:"id"`
		Pubkey  string `json:"pubkey"`
		Kind    int    `json:"kind"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("gateway: parse note event: %w", err)
	}
	if err := h.Store.PutNote(ctx, notestore.Note{
		ID: evt.ID, Pubkey: evt.Pubkey, Kind: evt.Kind, Content: evt.Content,
		RawJSON: string(body), ReceivedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("gateway: store note: %w", err)
	}

	if err := s.Ready(ctx); err != nil {
		return fmt.Errorf("gateway: send ready: %w", err)
	}
	return s.SendPayload(ctx, packet.TypeResponse, []byte("ACCEPTED"))
}

type zapRequest struct {
	RecipientPubkey string `json:"recipient_pubkey"`
	AmountMsat      int64  `json:"amount_msat"`
}

// serveZap drives the full zap sub-exchange of §4.6 within a single
// DATA_REQUEST handler call: invoice out, NWC_PAYMENT_REQUEST in, the
// sealed pay_invoice round trip against the configured wallet connection,
// payment result out, ZAP_SUCCESS_CONFIRM in.
func (h *NoteHandler) serveZap(ctx context.Context, s *session.Session, params []byte) error {
	var req zapRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return fmt.Errorf("gateway: parse zap request: %w", err)
	}
	if h.Invoicer == nil {
		return fmt.Errorf("gateway: zap invoicing not configured")
	}
	invoice, err := h.Invoicer.Invoice(ctx, req.RecipientPubkey, req.AmountMsat)
	if err != nil {
		return fmt.Errorf("gateway: request invoice: %w", err)
	}

	if err := s.Ready(ctx); err != nil {
		return fmt.Errorf("gateway: send ready: %w", err)
	}
	if err := s.SendPayload(ctx, packet.TypeResponse, []byte(invoice)); err != nil {
		return fmt.Errorf("gateway: send invoice: %w", err)
	}

	if _, err := s.ReceivePayload(ctx); err != nil {
		return fmt.Errorf("gateway: await NWC_PAYMENT_REQUEST: %w", err)
	}

	result, err := h.payInvoice(ctx, invoice)
	if err != nil {
		_ = s.SendPayload(ctx, packet.TypeError, []byte(err.Error()))
		return fmt.Errorf("gateway: pay invoice: %w", err)
	}
	if err := s.SendPayload(ctx, packet.TypeResponse, result); err != nil {
		return fmt.Errorf("gateway: send payment result: %w", err)
	}

	if _, err := s.ReceivePayload(ctx); err != nil {
		return fmt.Errorf("gateway: await ZAP_SUCCESS_CONFIRM: %w", err)
	}
	return nil
}

// payInvoice seals a pay_invoice command for the configured wallet
// connection, relays it through Submitter, and opens the wallet's sealed
// response.
func (h *NoteHandler) payInvoice(ctx context.Context, invoice string) ([]byte, error) {
	if h.Wallet == nil {
		return nil, fmt.Errorf("no NWC wallet connection configured")
	}
	if h.Submitter == nil {
		return nil, fmt.Errorf("no NWC relay submitter configured")
	}
	envelope, err := h.Wallet.SealPayInvoice(invoice)
	if err != nil {
		return nil, fmt.Errorf("seal pay_invoice: %w", err)
	}
	reply, err := h.Submitter.Submit(ctx, h.Wallet.RelayURL, envelope)
	if err != nil {
		return nil, fmt.Errorf("submit to relay: %w", err)
	}
	result, err := h.Wallet.Open(reply)
	if err != nil {
		return nil, fmt.Errorf("open wallet response: %w", err)
	}
	return result, nil
}
