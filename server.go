// server.go - NextGraph broker server.
// Copyright (C) 2017  Yawning Angel.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package server wires the broker's storage, connection FSM and
// listeners into a single running process.
package server

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/flynn/noise"
	golog "github.com/op/go-logging"
	"golang.org/x/crypto/hkdf"

	"nextgraph.dev/broker/broker"
	"nextgraph.dev/broker/config"
	"nextgraph.dev/broker/logging"
	"nextgraph.dev/broker/netfsm"
	"nextgraph.dev/broker/netfsm/actors"
	"nextgraph.dev/broker/storage/block"
	"nextgraph.dev/broker/storage/kcv"
	"nextgraph.dev/broker/types"
)

const fileMode = 0600

// Server is a NextGraph broker instance: the storage backends, the
// in-memory orchestrator, and the listeners terminating the
// connection FSM of spec §4.E.
type Server struct {
	cfg *config.Config

	identityKey ed25519.PrivateKey
	linkKey     noise.DHKey

	logBackend *logging.Backend
	log        *golog.Logger

	kcvStore   kcv.Storage
	blockStore block.Store
	broker     *broker.Broker
	dispatch   *netfsm.Dispatcher

	listeners []net.Listener
	wg        sync.WaitGroup

	haltOnce sync.Once
}

func (s *Server) initDataDir() error {
	const dirMode = os.ModeDir | 0700
	d := s.cfg.Server.DataDir

	if fi, err := os.Lstat(d); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("server: failed to stat() DataDir: %v", err)
		}
		if err = os.Mkdir(d, dirMode); err != nil {
			return fmt.Errorf("server: failed to create DataDir: %v", err)
		}
	} else if !fi.IsDir() {
		return fmt.Errorf("server: DataDir %q is not a directory", d)
	}
	return nil
}

func (s *Server) initLogging() error {
	backend, err := logging.NewBackend(s.cfg.Logging, s.cfg.Server.DataDir)
	if err != nil {
		return err
	}
	s.logBackend = backend
	s.log = backend.Logger("server")
	broker.SetLogBackend(backend.Leveled())
	netfsm.SetLogBackend(backend.Leveled())
	return nil
}

// masterKeyFromIdentity derives the KCV at-rest-encryption key from
// the broker's identity key via HKDF-SHA256, so the server carries
// one durable secret (identity.private.pem) rather than a second
// independently-generated master key file.
func masterKeyFromIdentity(identity ed25519.PrivateKey) ([32]byte, error) {
	var key [32]byte
	r := hkdf.New(sha256.New, identity.Seed(), nil, []byte("nextgraph-broker kcv-master-key v1"))
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return key, err
	}
	return key, nil
}

// Shutdown cleanly shuts down a given Server instance.
func (s *Server) Shutdown() {
	s.haltOnce.Do(func() { s.halt() })
}

func (s *Server) halt() {
	s.log.Notice("Starting graceful shutdown.")

	for _, l := range s.listeners {
		if l != nil {
			_ = l.Close()
		}
	}
	s.wg.Wait()

	if s.broker != nil {
		s.broker.Halt()
	}

	s.log.Notice("Shutdown complete.")
}

// New returns a new Server instance parameterized with the specified
// configuration.
func New(cfg *config.Config) (*Server, error) {
	s := new(Server)
	s.cfg = cfg

	if err := s.initDataDir(); err != nil {
		return nil, err
	}
	if err := s.initLogging(); err != nil {
		return nil, err
	}

	s.log.Noticef("NextGraph broker starting. Peer id: %s", cfg.PeerId)

	if err := s.initIdentity(); err != nil {
		s.log.Errorf("Failed to initialize identity: %v", err)
		return nil, err
	}
	s.log.Noticef("Broker identity public key is: %s", eddsaToPrintString(s.identityKey.Public().(ed25519.PublicKey)))
	if err := s.initLink(); err != nil {
		s.log.Errorf("Failed to initialize link key: %v", err)
		return nil, err
	}

	isOk := false
	defer func() {
		if !isOk {
			s.Shutdown()
		}
	}()

	masterKey, err := masterKeyFromIdentity(s.identityKey)
	if err != nil {
		s.log.Errorf("Failed to derive KCV master key: %v", err)
		return nil, err
	}
	s.kcvStore, err = kcv.Open(filepath.Join(cfg.Server.DataDir, "kcv.db"), masterKey)
	if err != nil {
		s.log.Errorf("Failed to open KCV store: %v", err)
		return nil, err
	}
	s.blockStore, err = block.OpenStore(filepath.Join(cfg.Server.DataDir, "blocks.db"))
	if err != nil {
		s.log.Errorf("Failed to open block store: %v", err)
		return nil, err
	}

	s.broker = broker.New(cfg.PeerId, s.kcvStore, s.blockStore)
	if cfg.AdminUser != nil {
		if err := s.broker.AddUser(*cfg.AdminUser, true); err != nil {
			s.log.Errorf("Failed to register admin user: %v", err)
			return nil, err
		}
	}

	s.dispatch = netfsm.NewDispatcher()
	actors.RegisterAll(s.dispatch)

	s.listeners = make([]net.Listener, 0, len(cfg.Server.Addresses))
	for _, addr := range cfg.Server.Addresses {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			s.log.Errorf("Failed to listen on %v: %v", addr, err)
			return nil, err
		}
		s.listeners = append(s.listeners, l)
		s.wg.Add(1)
		go s.acceptLoop(l)
	}

	isOk = true
	return s, nil
}

// acceptLoop accepts connections on l and drives each through the
// connection FSM in its own goroutine (spec §4.E), until l is closed
// during Shutdown.
func (s *Server) acceptLoop(l net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		go func() {
			fsm := netfsm.New(conn, s.broker, s.linkKey, s.dispatch)
			if err := fsm.Run(); err != nil {
				s.log.Debugf("connection from %v closed: %v", conn.RemoteAddr(), err)
			}
		}()
	}
}

// PeerId returns this broker's identity (spec §4.E "the acceptor
// replies with its own peer id").
func (s *Server) PeerId() types.PeerId { return s.broker.PeerID }

func eddsaToPrintString(pub ed25519.PublicKey) string {
	return fmt.Sprintf("%x", []byte(pub))
}
