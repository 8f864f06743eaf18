// Package kiss implements the KISS (Keep It Simple Stupid) TNC framing
// protocol: byte-stuffed frame delimiting over a raw byte stream.
package kiss

import (
	"bytes"
	"errors"
	"io"
)

const (
	FEND  = 0xC0
	FESC  = 0xDB
	TFEND = 0xDC
	TFESC = 0xDD
)

// Command is the KISS command nibble/byte. We only ever emit and expect
// data frames on port 0.
type Command byte

const (
	CmdDataFrame Command = 0x00
	CmdTXDelay   Command = 0x01
	CmdPersist   Command = 0x02
	CmdSlotTime  Command = 0x03
	CmdTXTail    Command = 0x04
	CmdFullDup   Command = 0x05
	CmdSetHW     Command = 0x06
	CmdReturn    Command = 0xFF
)

// ErrInvalidEscape is returned when an FESC byte is followed by anything
// other than TFEND or TFESC.
var ErrInvalidEscape = errors.New("kiss: invalid escape sequence")

// Encode wraps payload (a complete AX.25 frame) in a KISS data frame,
// byte-stuffing FEND and FESC occurrences.
func Encode(cmd Command, payload []byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte(FEND)
	buf.WriteByte(byte(cmd))
	for _, b := range payload {
		switch b {
		case FEND:
			buf.WriteByte(FESC)
			buf.WriteByte(TFEND)
		case FESC:
			buf.WriteByte(FESC)
			buf.WriteByte(TFESC)
		default:
			buf.WriteByte(b)
		}
	}
	buf.WriteByte(FEND)
	return buf.Bytes()
}

// A Decoder scans a byte stream for FEND-delimited KISS frames and yields
// the leading command byte and the unescaped payload of each, separately.
// It is resumable: bytes may be fed to it in arbitrary chunks.
type Decoder struct {
	r       io.Reader
	scratch []byte
}

// NewDecoder returns a Decoder reading raw bytes from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// ReadFrame blocks until one complete KISS frame (command byte + payload)
// has been read and unescaped, or returns an error from the underlying
// reader. Empty frames (consecutive FENDs) are skipped silently, matching
// typical TNC keep-alive behaviour.
func (d *Decoder) ReadFrame() (cmd Command, payload []byte, err error) {
	frame := d.scratch[:0]
	inFrame := false
	escaped := false
	one := make([]byte, 1)

	for {
		if _, err := io.ReadFull(d.r, one); err != nil {
			return 0, nil, err
		}
		b := one[0]

		switch {
		case b == FEND:
			if inFrame && len(frame) > 0 {
				cmd = Command(frame[0])
				payload = append([]byte(nil), frame[1:]...)
				// Keep the accumulator's backing array for the next frame
				// instead of letting it escape: payload above is already
				// an independent copy, safe to hand to the caller.
				d.scratch = frame[:0]
				return cmd, payload, nil
			}
			frame = frame[:0]
			inFrame = true
			escaped = false
		case !inFrame:
			// Noise before the first FEND; ignore.
			continue
		case escaped:
			switch b {
			case TFEND:
				frame = append(frame, FEND)
			case TFESC:
				frame = append(frame, FESC)
			default:
				return 0, nil, ErrInvalidEscape
			}
			escaped = false
		case b == FESC:
			escaped = true
		default:
			frame = append(frame, b)
		}
	}
}
