package tnc

import (
	"context"
	"fmt"
	"sync"
)

// Dialer constructs a Backend from an Addr. Concrete backends
// register themselves under a scheme at init time.
type Dialer interface {
	DialContext(ctx context.Context, addr *Addr) (Backend, error)
}

var dialers struct {
	mu sync.Mutex
	m  map[string]Dialer
}

// RegisterDialer registers d to handle addresses with the given scheme.
// Panics if scheme is already registered: a fail-fast discipline for
// registration that only ever happens at init time.
func RegisterDialer(scheme string, d Dialer) {
	dialers.mu.Lock()
	defer dialers.mu.Unlock()
	if dialers.m == nil {
		dialers.m = make(map[string]Dialer)
	}
	if _, exists := dialers.m[scheme]; exists {
		panic(fmt.Sprintf("tnc: dialer already registered for scheme %q", scheme))
	}
	dialers.m[scheme] = d
}

// UnregisterDialer removes the dialer for scheme, if any. Primarily useful
// in tests that install a fake backend.
func UnregisterDialer(scheme string) {
	dialers.mu.Lock()
	defer dialers.mu.Unlock()
	delete(dialers.m, scheme)
}

// ErrUnsupportedScheme is returned by Dial when no dialer is registered
// for the address's scheme.
var ErrUnsupportedScheme = fmt.Errorf("tnc: unsupported scheme")

// Dial resolves addr's scheme to a registered Dialer and dials it.
func Dial(ctx context.Context, addr *Addr) (Backend, error) {
	dialers.mu.Lock()
	d, ok := dialers.m[addr.Scheme]
	dialers.mu.Unlock()
	if !ok {
		return nil, ErrUnsupportedScheme
	}
	return d.DialContext(ctx, addr)
}

// Addr describes where and how to reach a TNC: scheme selects the
// transport kind ("kiss-tcp" or "kiss-serial"; the vara package has its
// own Dial and registers no scheme). Host/Port apply to TCP, Device
// applies to serial. Baud
// is the on-air baud rate for both: it configures the serial port's bit
// rate on "kiss-serial", and on "kiss-tcp" it's purely informational,
// used only to estimate the software TNC's transmit queue drain time.
type Addr struct {
	Scheme string
	Host   string
	Port   int
	Device string
	Baud   int
}
