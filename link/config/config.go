// Package config defines the frozen configuration struct the link core
// accepts from its caller. The core never parses configuration files
// itself — that is the gateway/client application's job (see
// internal/config) — it only reads an already-validated Config by value.
package config

import "time"

// ConnectionType selects which TNC backend the core dials.
type ConnectionType string

const (
	ConnectionKISSTCP    ConnectionType = "tcp"
	ConnectionKISSSerial ConnectionType = "serial"
	ConnectionVARA       ConnectionType = "vara"
)

// Config is the complete set of tunables recognized by the link core, per
// the external-interfaces configuration keys.
type Config struct {
	// Transport
	ConnectionType ConnectionType
	TCPHost        string
	TCPPort        int
	SerialPort     string
	SerialSpeed    int

	// Addressing
	LocalCall  string
	LocalSSID  uint8
	RemoteCall string
	RemoteSSID uint8

	// Packet sizing
	MaxPacketSize int

	// Timers
	AckTimeout                time.Duration
	ConnectAckTimeout         time.Duration
	NoAckTimeout              time.Duration
	NoPacketTimeout           time.Duration
	ReadyTimeout              time.Duration
	MissingPacketsTimeout     time.Duration
	ConnectionAttemptTimeout  time.Duration
	ConnectionTimeout         time.Duration
	DisconnectTimeout         time.Duration
	ShutdownTimeout           time.Duration
	KeepAliveInterval         time.Duration
	KeepAliveRetryInterval    time.Duration
	KeepAliveFinalInterval    time.Duration

	// Retries
	SendRetries      int
	DisconnectRetry  int
	MissingCycles    int

	// PTT / pacing
	PTTTxDelay                  time.Duration
	PTTRxDelay                  time.Duration
	PTTTail                     time.Duration
	AckSpacing                  time.Duration
	PacketSendDelay             time.Duration
	PacketResendDelay           time.Duration
	ConnectionStabilizationDelay time.Duration
	MissingPacketsThreshold     int

	// Informational
	BaudRate int
}

// Default returns a Config populated with the reference defaults used
// throughout the design notes and tests: a 200-byte packet budget, modest
// retry budgets, and PTT timings appropriate for a 1200-baud AFSK link.
func Default() Config {
	return Config{
		MaxPacketSize: 200,

		AckTimeout:               5 * time.Second,
		ConnectAckTimeout:        10 * time.Second,
		NoAckTimeout:             30 * time.Second,
		NoPacketTimeout:          30 * time.Second,
		ReadyTimeout:             10 * time.Second,
		MissingPacketsTimeout:    8 * time.Second,
		ConnectionAttemptTimeout: 20 * time.Second,
		ConnectionTimeout:        5 * time.Minute,
		DisconnectTimeout:        5 * time.Second,
		ShutdownTimeout:          3 * time.Second,
		KeepAliveInterval:        60 * time.Second,
		KeepAliveRetryInterval:   10 * time.Second,
		KeepAliveFinalInterval:   5 * time.Second,

		SendRetries:     5,
		DisconnectRetry: 3,
		MissingCycles:   3,

		PTTTxDelay:                   200 * time.Millisecond,
		PTTRxDelay:                   100 * time.Millisecond,
		PTTTail:                      150 * time.Millisecond,
		AckSpacing:                   50 * time.Millisecond,
		PacketSendDelay:              100 * time.Millisecond,
		PacketResendDelay:            500 * time.Millisecond,
		ConnectionStabilizationDelay: 1 * time.Second,
		MissingPacketsThreshold:      3,

		BaudRate: 1200,
	}
}
