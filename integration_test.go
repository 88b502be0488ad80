// integration_test.go - NextGraph broker integration test.
// Copyright (C) 2017  David Stainton.
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
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"nextgraph.dev/broker/config"
	"nextgraph.dev/broker/netfsm"
)

// TestClientServerIntegration boots a real Server from a config file,
// dials it over TCP, and drives the probe/start exchange of spec
// §4.E end to end.
func TestClientServerIntegration(t *testing.T) {
	datadir := t.TempDir()

	var peerID [32]byte
	_, err := rand.Read(peerID[:])
	require.NoError(t, err)

	basicConfig := fmt.Sprintf(`
[server]
DataDir = "%s"
Addresses = "127.0.0.1:0"
peer_id = "%s"
registration = "open"

[logging]
Level = "DEBUG"
`, datadir, hex.EncodeToString(peerID[:]))

	cfg, err := config.Load([]byte(basicConfig))
	require.NoError(t, err)

	srv, err := New(cfg)
	require.NoError(t, err)
	// New() already bound "127.0.0.1:0"; recover the actual address.
	require.Len(t, srv.listeners, 1)
	addr := srv.listeners[0].Addr().String()
	defer srv.Shutdown()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	writeFrame(t, conn, probeFrame())
	resp := readFrame(t, conn)
	require.Len(t, resp, 32)

	writeFrame(t, conn, []byte{byte(netfsm.StartClient)})
}

func probeFrame() []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], netfsm.MagicNgRequest)
	return b[:]
}

func writeFrame(t *testing.T, conn net.Conn, payload []byte) {
	t.Helper()
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	_, err := conn.Write(lenBuf[:])
	require.NoError(t, err)
	_, err = conn.Write(payload)
	require.NoError(t, err)
}

func readFrame(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	var lenBuf [4]byte
	_, err := conn.Read(lenBuf[:])
	require.NoError(t, err)
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	read := 0
	for read < len(buf) {
		k, err := conn.Read(buf[read:])
		require.NoError(t, err)
		read += k
	}
	return buf
}

