// Package packet implements the HAMSTR packet header carried inside an
// AX.25 UI frame's payload: a session id, message type, sequence number,
// total count, body, and a CRC over the body independent of the AX.25 FCS.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// SessionIDLen is the fixed length, in ASCII bytes, of a session id field.
const SessionIDLen = 8

// Type enumerates the HAMSTR message types.
type Type uint8

const (
	TypeConnect Type = iota + 1
	TypeConnectAck
	TypeReady
	TypeDataRequest
	TypeNote
	TypeResponse
	TypeAck
	TypeDone
	TypeDoneAck
	TypeDisconnect
	TypeDisconnectAck
	TypePktMissing
	TypeRetry
	TypeZapRequest
	TypeNWCPaymentRequest
	TypeZapSuccessConfirm
	TypeError
)

func (t Type) String() string {
	switch t {
	case TypeConnect:
		return "CONNECT"
	case TypeConnectAck:
		return "CONNECT_ACK"
	case TypeReady:
		return "READY"
	case TypeDataRequest:
		return "DATA_REQUEST"
	case TypeNote:
		return "NOTE"
	case TypeResponse:
		return "RESPONSE"
	case TypeAck:
		return "ACK"
	case TypeDone:
		return "DONE"
	case TypeDoneAck:
		return "DONE_ACK"
	case TypeDisconnect:
		return "DISCONNECT"
	case TypeDisconnectAck:
		return "DISCONNECT_ACK"
	case TypePktMissing:
		return "PKT_MISSING"
	case TypeRetry:
		return "RETRY"
	case TypeZapRequest:
		return "ZAP_KIND9734_REQUEST"
	case TypeNWCPaymentRequest:
		return "NWC_PAYMENT_REQUEST"
	case TypeZapSuccessConfirm:
		return "ZAP_SUCCESS_CONFIRM"
	case TypeError:
		return "ERROR"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// IsControl reports whether t is a control message type, always sent with
// Total == 1.
func (t Type) IsControl() bool {
	switch t {
	case TypeConnect, TypeConnectAck, TypeReady, TypeAck, TypeDone, TypeDoneAck,
		TypeDisconnect, TypeDisconnectAck, TypePktMissing, TypeRetry, TypeError:
		return true
	default:
		return false
	}
}

// ErrTruncated is returned when a byte slice is too short to contain a
// valid packet header.
var ErrTruncated = errors.New("packet: truncated")

// ErrBadCRC is returned when a packet's body fails its CRC check.
var ErrBadCRC = errors.New("packet: bad crc")

const headerLen = SessionIDLen + 1 + 2 + 2 // session_id + type + seq + total

// Packet is one on-air HAMSTR packet.
type Packet struct {
	SessionID string
	Type      Type
	Seq       uint16
	Total     uint16
	Body      []byte
}

// Encode serializes p into the wire format:
//
//	session_id(8B) | type(1B) | seq(2B BE) | total(2B BE) | body | crc16(body, 2B BE)
func (p Packet) Encode() ([]byte, error) {
	if len(p.SessionID) != SessionIDLen {
		return nil, fmt.Errorf("packet: session id %q must be %d bytes", p.SessionID, SessionIDLen)
	}
	out := make([]byte, headerLen+len(p.Body)+2)
	copy(out, p.SessionID)
	out[SessionIDLen] = byte(p.Type)
	binary.BigEndian.PutUint16(out[SessionIDLen+1:], p.Seq)
	binary.BigEndian.PutUint16(out[SessionIDLen+3:], p.Total)
	copy(out[headerLen:], p.Body)
	crc := CRC16(p.Body)
	binary.BigEndian.PutUint16(out[headerLen+len(p.Body):], crc)
	return out, nil
}

// Decode parses and CRC-validates a packet from its wire representation.
func Decode(b []byte) (Packet, error) {
	if len(b) < headerLen+2 {
		return Packet{}, ErrTruncated
	}
	p := Packet{
		SessionID: string(b[:SessionIDLen]),
		Type:      Type(b[SessionIDLen]),
		Seq:       binary.BigEndian.Uint16(b[SessionIDLen+1:]),
		Total:     binary.BigEndian.Uint16(b[SessionIDLen+3:]),
	}
	body := b[headerLen : len(b)-2]
	wantCRC := binary.BigEndian.Uint16(b[len(b)-2:])
	if CRC16(body) != wantCRC {
		return Packet{}, ErrBadCRC
	}
	p.Body = append([]byte(nil), body...)
	return p, nil
}
