package ax25

import (
	"bytes"
	"testing"
)

func TestParseCallsign(t *testing.T) {
	cases := map[string]Callsign{
		"N5HTR":    {Call: "N5HTR", SSID: 0},
		"n5htr-7":  {Call: "N5HTR", SSID: 7},
		"KC2XYZ-0": {Call: "KC2XYZ", SSID: 0},
	}
	for in, want := range cases {
		got, err := ParseCallsign(in)
		if err != nil {
			t.Fatalf("ParseCallsign(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseCallsign(%q) = %+v, want %+v", in, got, want)
		}
	}
}

func TestParseCallsignInvalid(t *testing.T) {
	for _, in := range []string{"", "TOOLONGCALL", "N5HTR-99"} {
		if _, err := ParseCallsign(in); err == nil {
			t.Fatalf("ParseCallsign(%q): expected error", in)
		}
	}
}

func TestEncodeDecodeUIRoundTrip(t *testing.T) {
	dest, _ := ParseCallsign("N5HTR-1")
	src, _ := ParseCallsign("KC2XYZ-2")
	payload := []byte("hello over the air")

	frame := EncodeUI(dest, src, payload)
	decoded, err := DecodeUI(frame)
	if err != nil {
		t.Fatalf("DecodeUI: %v", err)
	}
	if decoded.Dest != dest || decoded.Src != src {
		t.Fatalf("addrs = %+v/%+v, want %+v/%+v", decoded.Dest, decoded.Src, dest, src)
	}
	if !bytes.Equal(decoded.Payload, payload) {
		t.Fatalf("payload = %q, want %q", decoded.Payload, payload)
	}
}

func TestDecodeUIBadFCS(t *testing.T) {
	dest, _ := ParseCallsign("N5HTR")
	src, _ := ParseCallsign("KC2XYZ")
	frame := EncodeUI(dest, src, []byte("x"))
	frame[len(frame)-1] ^= 0xFF

	if _, err := DecodeUI(frame); err != ErrBadFCS {
		t.Fatalf("err = %v, want %v", err, ErrBadFCS)
	}
}

func TestDecodeUITruncated(t *testing.T) {
	if _, err := DecodeUI([]byte{1, 2, 3}); err != ErrTruncated {
		t.Fatalf("err = %v, want %v", err, ErrTruncated)
	}
}

func TestComputeFCSKnownVector(t *testing.T) {
	// "123456789" under CRC-16/X-25 (reflected 0x8408, init 0xFFFF, final
	// complement) is the well-known check value 0x906E.
	got := ComputeFCS([]byte("123456789"))
	if got != 0x906E {
		t.Fatalf("ComputeFCS = 0x%04X, want 0x906E", got)
	}
}
