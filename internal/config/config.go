// Package config holds the runtime configuration types.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Role represents which side of the negotiation this process plays. Exactly
// one side of a session must be the initiator; roles are never inferred.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// DefaultSTUNServers are used for reflexive-address discovery when no
// servers are configured. Two servers on distinct addresses are needed in
// the general case.
var DefaultSTUNServers = []string{
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19305",
}

// Config stores all parameters gathered from flags, prompts or a config file.
type Config struct {
	Role Role `yaml:"role"`

	// Initiator: control-link server to dial.
	Hostname string `yaml:"hostname"`
	Port     int    `yaml:"port"`
	Secure   bool   `yaml:"secure"` // wss:// instead of ws://

	// Responder: address the control-link server listens on.
	Listen string `yaml:"listen"`

	STUNServers  []string `yaml:"stun_servers"`
	ChannelLabel string   `yaml:"channel_label"`

	// Greeting is sent by the initiator once the channel opens. ProbeReply
	// is sent by the responder in answer to the first inbound message.
	// Empty disables either.
	Greeting   string `yaml:"greeting"`
	ProbeReply string `yaml:"probe_reply"`

	Debug bool `yaml:"debug"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Hostname:     "localhost",
		Port:         8080,
		Listen:       "0.0.0.0:8080",
		STUNServers:  append([]string(nil), DefaultSTUNServers...),
		ChannelLabel: "dc",
		Greeting:     "PING",
		ProbeReply:   "PONG",
	}
}

// LoadFile reads a YAML config file on top of the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// URL derives the control-link address the initiator dials.
func (c *Config) URL() string {
	scheme := "ws"
	if c.Secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s/", scheme, net.JoinHostPort(c.Hostname, strconv.Itoa(c.Port)))
}

// Validate checks the fields required by the configured role.
func (c *Config) Validate() error {
	switch c.Role {
	case RoleInitiator:
		if c.Hostname == "" {
			return errors.New("missing hostname")
		}
		if c.Port < 1 || c.Port > 65535 {
			return fmt.Errorf("invalid port %d: must be 1~65535", c.Port)
		}
	case RoleResponder:
		if _, _, err := net.SplitHostPort(c.Listen); err != nil {
			return fmt.Errorf("invalid listen address %q: %w", c.Listen, err)
		}
	default:
		return fmt.Errorf("invalid role %q: must be %q or %q", c.Role, RoleInitiator, RoleResponder)
	}
	if c.ChannelLabel == "" {
		return errors.New("missing channel label")
	}
	return nil
}
