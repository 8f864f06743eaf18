// Package config loads gateway/client configuration: a JSON file merged
// with command-line flag overrides, parsed directly into a settings
// struct rather than through a third-party flag/config library (no such
// library fits this concern, so flag+encoding/json is used here as a
// deliberate stdlib choice).
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	linkcfg "github.com/n5htr/hamstr/link/config"
)

// Config is the full gateway/client configuration: the link core's frozen
// Config plus the ambient settings the core never sees.
type Config struct {
	Link linkcfg.Config `json:"-"`

	ConnectionType string `json:"connection_type"`
	TCPHost        string `json:"tcp_host"`
	TCPPort        int    `json:"tcp_port"`
	SerialPort     string `json:"serial_port"`
	SerialSpeed    int    `json:"serial_speed"`

	LocalCallsign  string `json:"local_callsign"`
	RemoteCallsign string `json:"remote_callsign"`

	HTTPListenAddr string   `json:"http_listen_addr"`
	HTTPStaticDir  string   `json:"http_static_dir"`
	RelayURLs      []string `json:"relay_urls"`
	NoteCachePath  string   `json:"note_cache_path"`
	NWCConnString  string   `json:"nwc_connection_string"`
	MailboxDir     string   `json:"mailbox_dir"`

	LogLevel string `json:"log_level"`
	LogJSON  bool   `json:"log_json"`
}

// Default returns a Config with the link core's reference defaults and
// empty ambient settings.
func Default() Config {
	return Config{Link: linkcfg.Default(), ConnectionType: "tcp", LogLevel: "info"}
}

// Load reads a JSON config file (if path is non-empty) into a Default
// Config, then applies flag overrides parsed from args by a private
// FlagSet (flag.CommandLine is not touched). Flags always
// win over the file, matching the usual CLI-overrides-file precedence.
func Load(path string, args []string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("config: open %s: %w", path, err)
		}
		defer f.Close()
		if err := json.NewDecoder(f).Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	fs := flag.NewFlagSet("hamstr", flag.ContinueOnError)
	fs.StringVar(&cfg.ConnectionType, "connection-type", cfg.ConnectionType, "tcp, serial, or vara")
	fs.StringVar(&cfg.TCPHost, "tcp-host", cfg.TCPHost, "KISS-over-TCP or VARA host")
	fs.IntVar(&cfg.TCPPort, "tcp-port", cfg.TCPPort, "KISS-over-TCP or VARA control port")
	fs.StringVar(&cfg.SerialPort, "serial-port", cfg.SerialPort, "serial device for KISS-over-serial")
	fs.IntVar(&cfg.SerialSpeed, "serial-speed", cfg.SerialSpeed, "serial baud rate")
	fs.StringVar(&cfg.LocalCallsign, "local-callsign", cfg.LocalCallsign, "local station callsign-SSID")
	fs.StringVar(&cfg.RemoteCallsign, "remote-callsign", cfg.RemoteCallsign, "remote station callsign-SSID")
	fs.StringVar(&cfg.HTTPListenAddr, "http-listen", cfg.HTTPListenAddr, "gateway HTTP/WS listen address")
	fs.StringVar(&cfg.NoteCachePath, "note-cache", cfg.NoteCachePath, "sqlite note/credential cache path")
	fs.StringVar(&cfg.NWCConnString, "nwc", cfg.NWCConnString, "Nostr Wallet Connect URI")
	fs.StringVar(&cfg.MailboxDir, "mailbox-dir", cfg.MailboxDir, "outbound spool directory watched for payload files")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log verbosity")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	cfg.Link.ConnectionType = linkcfg.ConnectionType(cfg.ConnectionType)
	cfg.Link.TCPHost = cfg.TCPHost
	cfg.Link.TCPPort = cfg.TCPPort
	cfg.Link.SerialPort = cfg.SerialPort
	cfg.Link.SerialSpeed = cfg.SerialSpeed
	return cfg, nil
}

// ParseDuration is a helper for JSON-file duration fields, kept here since
// the link config uses time.Duration while JSON only knows numbers/strings.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
