// nodekey.go - broker node key store.
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

package server

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flynn/noise"
	"golang.org/x/crypto/curve25519"
)

// initIdentity loads or mints this broker's Ed25519 identity key, from
// which the KCV master key is derived. The peer id sent in the probe
// reply is the configured peer_id, not this key's public half.
func (s *Server) initIdentity() error {
	const (
		keyFile = "identity.private.pem"
		keyType = "Ed25519 PRIVATE KEY"
	)
	fn := filepath.Join(s.cfg.Server.DataDir, keyFile)

	if buf, err := os.ReadFile(fn); err == nil {
		blk, rest := pem.Decode(buf)
		if blk == nil || len(rest) != 0 {
			return fmt.Errorf("server: trailing garbage after identity private key")
		}
		if blk.Type != keyType {
			return fmt.Errorf("server: invalid PEM type: %q", blk.Type)
		}
		if len(blk.Bytes) != ed25519.PrivateKeySize {
			return fmt.Errorf("server: invalid identity key length %d", len(blk.Bytes))
		}
		s.identityKey = ed25519.PrivateKey(blk.Bytes)
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	s.identityKey = priv
	blk := &pem.Block{Type: keyType, Bytes: priv}
	return os.WriteFile(fn, pem.EncodeToMemory(blk), fileMode)
}

// initLink loads or mints this broker's X25519 Noise static keypair,
// used for Noise_XK_25519_ChaChaPoly_BLAKE2b (spec §4.E "Handshake").
func (s *Server) initLink() error {
	const (
		keyFile = "link.private.pem"
		keyType = "X25519 PRIVATE KEY"
	)
	fn := filepath.Join(s.cfg.Server.DataDir, keyFile)

	if buf, err := os.ReadFile(fn); err == nil {
		blk, rest := pem.Decode(buf)
		if blk == nil || len(rest) != 0 {
			return fmt.Errorf("server: trailing garbage after link private key")
		}
		if blk.Type != keyType {
			return fmt.Errorf("server: invalid PEM type: %q", blk.Type)
		}
		if len(blk.Bytes) != curve25519.ScalarSize {
			return fmt.Errorf("server: invalid link key length %d", len(blk.Bytes))
		}
		pub, err := curve25519.X25519(blk.Bytes, curve25519.Basepoint)
		if err != nil {
			return err
		}
		s.linkKey = noise.DHKey{Private: blk.Bytes, Public: pub}
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	key, err := noise.DH25519.GenerateKeypair(rand.Reader)
	if err != nil {
		return err
	}
	s.linkKey = key
	blk := &pem.Block{Type: keyType, Bytes: key.Private}
	return os.WriteFile(fn, pem.EncodeToMemory(blk), fileMode)
}
