package netfsm_test

import (
	"encoding/binary"
	"io"
	"net"
	"path/filepath"
	"testing"

	"github.com/flynn/noise"
	"github.com/stretchr/testify/require"

	"nextgraph.dev/broker/broker"
	"nextgraph.dev/broker/netfsm"
	"nextgraph.dev/broker/netfsm/actors"
	blockstore "nextgraph.dev/broker/storage/block"
	"nextgraph.dev/broker/storage/kcv"
	"nextgraph.dev/broker/types"
)

var testCipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashBLAKE2b)

func writeFrame(w io.Writer, b []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	buf := make([]byte, binary.BigEndian.Uint32(lenBuf[:]))
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// TestFSMProbeStartHandshakeAndRequest drives a server FSM through
// Init -> Handshake -> Authed over a net.Pipe, acting as the client
// side by hand (this repository implements only the broker/responder
// half of the connection).
func TestFSMProbeStartHandshakeAndRequest(t *testing.T) {
	dir := t.TempDir()
	var masterKey [32]byte
	kcvStore, err := kcv.Open(filepath.Join(dir, "kcv.db"), masterKey)
	require.NoError(t, err)
	blkStore, err := blockstore.OpenStore(filepath.Join(dir, "blocks.db"))
	require.NoError(t, err)

	var serverPeerID types.PeerId
	serverPeerID[0] = 0x11
	b := broker.New(serverPeerID, kcvStore, blkStore)
	t.Cleanup(b.Halt)

	serverStatic, err := noise.DH25519.GenerateKeypair(nil)
	require.NoError(t, err)
	clientStatic, err := noise.DH25519.GenerateKeypair(nil)
	require.NoError(t, err)

	clientConn, serverConn := net.Pipe()

	dispatcher := netfsm.NewDispatcher()
	actors.RegisterAll(dispatcher)
	serverFSM := netfsm.New(serverConn, b, serverStatic, dispatcher)

	runDone := make(chan error, 1)
	go func() { runDone <- serverFSM.Run() }()

	// --- Probe ---
	var probe [4]byte
	binary.BigEndian.PutUint32(probe[:], netfsm.MagicNgRequest)
	require.NoError(t, writeFrame(clientConn, probe[:]))
	probeResp, err := readFrame(clientConn)
	require.NoError(t, err)
	require.Len(t, probeResp, 32)
	require.Equal(t, byte(0x11), probeResp[0])

	// --- Start(Client) ---
	require.NoError(t, writeFrame(clientConn, []byte{byte(netfsm.StartClient)}))

	// --- Noise_XK handshake, initiator side ---
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   testCipherSuite,
		Pattern:       noise.HandshakeXK,
		Initiator:     true,
		StaticKeypair: clientStatic,
		PeerStatic:    serverStatic.Public,
	})
	require.NoError(t, err)

	msg1, _, _, err := hs.WriteMessage(nil, nil)
	require.NoError(t, err)
	require.NoError(t, writeFrame(clientConn, msg1))

	msg2, err := readFrame(clientConn)
	require.NoError(t, err)
	_, _, _, err = hs.ReadMessage(nil, msg2)
	require.NoError(t, err)

	msg3, sendCS, recvCS, err := hs.WriteMessage(nil, nil)
	require.NoError(t, err)
	require.NoError(t, writeFrame(clientConn, msg3))

	// --- Authed request: list_users as admin is denied for a
	// Client-variant connection. ---
	content := netfsm.EncodeRequest(1, netfsm.KindListUsers, []byte{0})
	cipher := sendCS.Encrypt(nil, nil, content)
	require.NoError(t, writeFrame(clientConn, cipher))

	respCipher, err := readFrame(clientConn)
	require.NoError(t, err)
	plain, err := recvCS.Decrypt(nil, nil, respCipher)
	require.NoError(t, err)
	msg, err := netfsm.DecodeResponse(plain)
	require.NoError(t, err)
	require.Equal(t, int64(1), msg.Id)
	require.Equal(t, types.ErrAccessDenied, msg.Result)

	// The server closes the connection itself after a denied admin
	// request (spec §8 scenario 3: a failed admin check ends the
	// session), rather than leaving it open for the client to close.
	// The client observes this as its next read failing.
	_, err = readFrame(clientConn)
	require.Error(t, err)
	require.NoError(t, <-runDone)
}
