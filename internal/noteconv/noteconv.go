// Package noteconv transcodes inbound note bodies that declare a non-UTF-8
// charset hint into UTF-8 before they're re-wrapped as NIP-01 JSON content,
// using go-charset for the legacy-encoded bodies that arrive over narrowband
// links.
package noteconv

import (
	"bytes"
	"fmt"
	"io"

	"github.com/paulrosania/go-charset/charset"
	_ "github.com/paulrosania/go-charset/data"
)

// ToUTF8 decodes body, declared to be in the given charset (e.g. "latin1",
// "koi8-r"), into UTF-8. An empty charset is treated as already-UTF-8 and
// returned unchanged.
func ToUTF8(body []byte, declaredCharset string) ([]byte, error) {
	if declaredCharset == "" || declaredCharset == "utf-8" || declaredCharset == "UTF-8" {
		return body, nil
	}
	r, err := charset.NewReader(declaredCharset, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("noteconv: unsupported charset %q: %w", declaredCharset, err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("noteconv: transcode from %q: %w", declaredCharset, err)
	}
	return out, nil
}
