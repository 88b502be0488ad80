// Package config loads the broker's ServerConfig (spec §6): peer
// identity, the optional admin user, bootstrap peers and the
// registration policy. No TOML/config library is wired, so Load
// parses a minimal "[section]\nKey = value" format with stdlib
// bufio/strconv.
package config

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"nextgraph.dev/broker/types"
)

// RegistrationMode is the server's account-creation policy (spec §6
// "registration:{closed|invitation|open}").
type RegistrationMode int

const (
	RegistrationClosed RegistrationMode = iota
	RegistrationInvitation
	RegistrationOpen
)

func parseRegistrationMode(s string) (RegistrationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "closed":
		return RegistrationClosed, nil
	case "invitation":
		return RegistrationInvitation, nil
	case "open":
		return RegistrationOpen, nil
	default:
		return RegistrationClosed, fmt.Errorf("config: invalid registration mode %q", s)
	}
}

func (m RegistrationMode) String() string {
	switch m {
	case RegistrationClosed:
		return "closed"
	case RegistrationInvitation:
		return "invitation"
	case RegistrationOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Server holds the ambient concerns the distilled ServerConfig leaves
// to "the outer CLI layer" (spec §1 "CLI/config loaders ... produce a
// ServerConfig") but that a standalone broker binary still needs:
// where it keeps its state and where it listens.
type Server struct {
	DataDir   string
	Addresses []string
}

// Logging configures the server's leveled log backend:
// whether logging is disabled, where it writes, and at what level.
type Logging struct {
	Disable bool
	File    string
	Level   string
}

// Config is the broker's ServerConfig (spec §6) plus the ambient
// Server/Logging sections carried alongside the domain-specific
// fields.
type Config struct {
	Server  Server
	Logging Logging

	PeerId          types.PeerId
	AdminUser       *types.UserId
	Bootstrap       []string
	RegistrationURL string
	Registration    RegistrationMode
}

// Validate checks the invariants Load cannot enforce while still
// parsing line by line: a non-zero peer_id, a data directory, at least
// one listen address and a known logging level. The registration mode
// is already checked while parsing.
func (c *Config) Validate() error {
	if c.PeerId.IsZero() {
		return fmt.Errorf("config: peer_id is required")
	}
	if c.Server.DataDir == "" {
		return fmt.Errorf("config: Server.DataDir is required")
	}
	if len(c.Server.Addresses) == 0 {
		return fmt.Errorf("config: Server.Addresses must list at least one listen address")
	}
	switch c.Logging.Level {
	case "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG":
	default:
		return fmt.Errorf("config: invalid Logging.Level %q", c.Logging.Level)
	}
	return nil
}

// Load parses raw in the minimal section/key=value style described
// above, defaulting Logging.Level to NOTICE and Registration to
// closed when left unspecified.
func Load(raw []byte) (*Config, error) {
	cfg := &Config{
		Logging:      Logging{Level: "NOTICE"},
		Registration: RegistrationClosed,
	}

	section := ""
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.ToLower(strings.TrimSuffix(strings.TrimPrefix(line, "["), "]"))
			continue
		}
		key, value, ok := splitKV(line)
		if !ok {
			return nil, fmt.Errorf("config: malformed line %q", line)
		}
		if err := cfg.set(section, key, value); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitKV(line string) (key, value string, ok bool) {
	i := strings.Index(line, "=")
	if i < 0 {
		return "", "", false
	}
	key = strings.ToLower(strings.TrimSpace(line[:i]))
	value = strings.Trim(strings.TrimSpace(line[i+1:]), `"`)
	return key, value, true
}

func (c *Config) set(section, key, value string) error {
	switch section {
	case "server":
		switch key {
		case "datadir":
			c.Server.DataDir = value
		case "addresses":
			c.Server.Addresses = splitList(value)
		case "peer_id":
			id, err := parsePubKey(value)
			if err != nil {
				return err
			}
			c.PeerId = id
		case "admin_user":
			id, err := parsePubKey(value)
			if err != nil {
				return err
			}
			c.AdminUser = &id
		case "bootstrap":
			c.Bootstrap = splitList(value)
		case "registration_url":
			c.RegistrationURL = value
		case "registration":
			mode, err := parseRegistrationMode(value)
			if err != nil {
				return err
			}
			c.Registration = mode
		default:
			return fmt.Errorf("config: unknown [server] key %q", key)
		}
	case "logging":
		switch key {
		case "disable":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("config: invalid Logging.Disable %q", value)
			}
			c.Logging.Disable = b
		case "file":
			c.Logging.File = value
		case "level":
			c.Logging.Level = strings.ToUpper(value)
		default:
			return fmt.Errorf("config: unknown [logging] key %q", key)
		}
	default:
		return fmt.Errorf("config: unknown section %q", section)
	}
	return nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parsePubKey(value string) (types.PubKey, error) {
	var k types.PubKey
	b, err := hex.DecodeString(value)
	if err != nil {
		return k, fmt.Errorf("config: invalid public key %q: %w", value, err)
	}
	if len(b) != len(k) {
		return k, fmt.Errorf("config: public key %q must be %d bytes, got %d", value, len(k), len(b))
	}
	copy(k[:], b)
	return k, nil
}
