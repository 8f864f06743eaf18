package ax25

import (
	"errors"
	"fmt"
)

const (
	ctrlUI = 0x03
	pidNoL3 = 0xF0

	minFrameLen = 7 + 7 + 1 + 1 + 2 // dest+src addr, control, pid, fcs
)

// ErrTruncated is returned when a frame is shorter than the minimum
// addressing+control+PID+FCS overhead.
var ErrTruncated = errors.New("ax25: truncated frame")

// ErrBadFCS is returned when the frame's trailing FCS does not match the
// computed checksum over the header and payload.
var ErrBadFCS = errors.New("ax25: bad FCS")

// Frame is a decoded AX.25 UI frame.
type Frame struct {
	Dest    Callsign
	Src     Callsign
	Payload []byte
}

// EncodeUI builds a complete AX.25 UI frame (address fields, control,
// PID, payload, FCS) ready to be handed to the KISS layer.
func EncodeUI(dest, src Callsign, payload []byte) []byte {
	out := make([]byte, 0, 7+7+2+len(payload)+2)
	d := encodeAddress(dest, true, false)
	s := encodeAddress(src, false, true)
	out = append(out, d[:]...)
	out = append(out, s[:]...)
	out = append(out, ctrlUI, pidNoL3)
	out = append(out, payload...)
	return AppendFCS(out)
}

// DecodeUI parses a complete AX.25 UI frame, validating its FCS.
func DecodeUI(frame []byte) (Frame, error) {
	if len(frame) < minFrameLen {
		return Frame{}, ErrTruncated
	}
	if !VerifyFCS(frame) {
		return Frame{}, ErrBadFCS
	}
	body := frame[:len(frame)-2]
	dest, _ := decodeAddress(body[0:7])
	src, _ := decodeAddress(body[7:14])
	if body[14] != ctrlUI {
		return Frame{}, fmt.Errorf("ax25: unsupported control byte 0x%02x (only UI frames supported)", body[14])
	}
	payload := body[16:]
	return Frame{Dest: dest, Src: src, Payload: payload}, nil
}
