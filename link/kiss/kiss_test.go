package kiss

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := []byte{0x01, FEND, 0x02, FESC, 0x03}
	frame := Encode(CmdDataFrame, payload)

	dec := NewDecoder(bytes.NewReader(frame))
	cmd, got, err := dec.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if cmd != CmdDataFrame {
		t.Fatalf("cmd = %v, want %v", cmd, CmdDataFrame)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload = %x, want %x", got, payload)
	}
}

func TestDecodeSkipsEmptyFrames(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(FEND)
	buf.WriteByte(FEND)
	buf.WriteByte(FEND)
	buf.Write(Encode(CmdDataFrame, []byte("hi")))

	dec := NewDecoder(&buf)
	_, got, err := dec.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if string(got) != "hi" {
		t.Fatalf("got %q, want %q", got, "hi")
	}
}

func TestDecodeInvalidEscape(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(FEND)
	buf.WriteByte(byte(CmdDataFrame))
	buf.WriteByte(FESC)
	buf.WriteByte(0x42)
	buf.WriteByte(FEND)

	dec := NewDecoder(&buf)
	_, _, err := dec.ReadFrame()
	if err != ErrInvalidEscape {
		t.Fatalf("err = %v, want %v", err, ErrInvalidEscape)
	}
}

func TestMultipleFrames(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(Encode(CmdDataFrame, []byte("one")))
	buf.Write(Encode(CmdDataFrame, []byte("two")))

	dec := NewDecoder(&buf)
	for _, want := range []string{"one", "two"} {
		_, got, err := dec.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if string(got) != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	}
}
