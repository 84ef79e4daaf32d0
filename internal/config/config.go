// Package config loads and validates the JSON configuration file shared by
// the server and client binaries.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config is the root configuration document, persisted as JSON.
type Config struct {
	Server   Server   `json:"server"`
	Client   Client   `json:"client"`
	Timeouts Timeouts `json:"timeouts"`
	Mixer    Mixer    `json:"mixer"`
}

// Server holds listener settings for the conferencing server.
type Server struct {
	Address      string `json:"address"`
	Port         int    `json:"port"`
	NoAudioMixer bool   `json:"no_audio_mixer"`
	MaxClients   int    `json:"max_clients"`
	UseWebsocket bool   `json:"use_websocket"`
}

// Client holds the defaults a client binary dials with.
type Client struct {
	Address          string `json:"address"`
	Port             int    `json:"port"`
	Audio            bool   `json:"audio"`
	Color            bool   `json:"color"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	UseWebsocket     bool   `json:"use_websocket"`
	InsecureNoVerify bool   `json:"insecure_no_verify"`
}

// Timeouts carries the connection/send/recv/keepalive defaults, all
// configurable.
type Timeouts struct {
	ConnectSec       int `json:"connect_seconds"`
	AcceptSec        int `json:"accept_seconds"`
	SendSec          int `json:"send_seconds"`
	RecvSec          int `json:"recv_seconds"`
	KeepaliveIdleSec int `json:"keepalive_idle_seconds"`
	ProbeIntervalSec int `json:"probe_interval_seconds"`
	MissedProbes     int `json:"missed_probes"`
	ReassemblySec    int `json:"reassembly_seconds"`
}

// Mixer tunes the audio mixer/render cadence.
type Mixer struct {
	TargetLatencyMillis int `json:"target_latency_millis"`
	AudioQueueCapacity  int `json:"audio_queue_capacity"`
}

func Default() Config {
	return Config{
		Server: Server{
			Address:      "0.0.0.0",
			Port:         27224,
			NoAudioMixer: false,
			MaxClients:   9,
			UseWebsocket: false,
		},
		Client: Client{
			Address: "127.0.0.1",
			Port:    27224,
			Audio:   true,
			Color:   true,
			Width:   80,
			Height:  24,
		},
		Timeouts: Timeouts{
			ConnectSec:       10,
			AcceptSec:        30,
			SendSec:          10,
			RecvSec:          10,
			KeepaliveIdleSec: 60,
			ProbeIntervalSec: 10,
			MissedProbes:     3,
			ReassemblySec:    10,
		},
		Mixer: Mixer{
			TargetLatencyMillis: 100,
			AudioQueueCapacity:  128,
		},
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Address) == "" {
		return errors.New("server.address is required")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be 0..65535")
	}
	if c.Server.MaxClients <= 0 {
		return errors.New("server.max_clients must be > 0")
	}
	if c.Client.Port < 0 || c.Client.Port > 65535 {
		return errors.New("client.port must be 0..65535")
	}
	if c.Client.Width <= 0 || c.Client.Height <= 0 {
		return errors.New("client.width and client.height must be > 0")
	}

	if c.Timeouts.ConnectSec <= 0 {
		return errors.New("timeouts.connect_seconds must be > 0")
	}
	if c.Timeouts.AcceptSec <= 0 {
		return errors.New("timeouts.accept_seconds must be > 0")
	}
	if c.Timeouts.SendSec <= 0 {
		return errors.New("timeouts.send_seconds must be > 0")
	}
	if c.Timeouts.RecvSec <= 0 {
		return errors.New("timeouts.recv_seconds must be > 0")
	}
	if c.Timeouts.KeepaliveIdleSec <= 0 {
		return errors.New("timeouts.keepalive_idle_seconds must be > 0")
	}
	if c.Timeouts.ProbeIntervalSec <= 0 {
		return errors.New("timeouts.probe_interval_seconds must be > 0")
	}
	if c.Timeouts.MissedProbes <= 0 {
		return errors.New("timeouts.missed_probes must be > 0")
	}
	if c.Timeouts.ReassemblySec <= 0 {
		return errors.New("timeouts.reassembly_seconds must be > 0")
	}

	if c.Mixer.TargetLatencyMillis <= 0 {
		return errors.New("mixer.target_latency_millis must be > 0")
	}
	if c.Mixer.AudioQueueCapacity <= 0 {
		return errors.New("mixer.audio_queue_capacity must be > 0")
	}

	return nil
}

// ConnectTimeout etc. convert the configured seconds into time.Duration for
// callers that wire timeouts straight into net.Dialer / context deadlines.
func (t Timeouts) ConnectTimeout() time.Duration { return time.Duration(t.ConnectSec) * time.Second }
func (t Timeouts) AcceptTimeout() time.Duration  { return time.Duration(t.AcceptSec) * time.Second }
func (t Timeouts) SendTimeout() time.Duration    { return time.Duration(t.SendSec) * time.Second }
func (t Timeouts) RecvTimeout() time.Duration    { return time.Duration(t.RecvSec) * time.Second }
func (t Timeouts) KeepaliveIdle() time.Duration {
	return time.Duration(t.KeepaliveIdleSec) * time.Second
}
func (t Timeouts) ProbeInterval() time.Duration {
	return time.Duration(t.ProbeIntervalSec) * time.Second
}
func (t Timeouts) ReassemblyTimeout() time.Duration {
	return time.Duration(t.ReassemblySec) * time.Second
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	// Start from defaults so missing JSON fields remain initialized.
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// Ensure loads config if it exists; otherwise creates a default config file.
// Returns (cfg, createdNew, err).
func Ensure(path string) (Config, bool, error) {
	if _, err := os.Stat(path); err == nil {
		cfg, err := Load(path)
		return cfg, false, err
	} else if !os.IsNotExist(err) {
		return Config{}, false, err
	}

	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return Config{}, false, fmt.Errorf("create default config: %w", err)
	}
	return cfg, true, nil
}
