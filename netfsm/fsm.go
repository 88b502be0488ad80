// Package netfsm implements the per-connection protocol state machine
// of spec §4.E and the actor dispatch of §4.F: Init -> Handshake ->
// Authed -> {Streaming, Idle} -> Closed, running
// Noise_XK_25519_ChaChaPoly_BLAKE2b over an arbitrary transport.
package netfsm

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"sync"

	logging "github.com/op/go-logging"
	"github.com/flynn/noise"

	"nextgraph.dev/broker/broker"
	"nextgraph.dev/broker/types"
)

var log = logging.MustGetLogger("netfsm")

// SetLogBackend rebinds this package's logger onto backend.
func SetLogBackend(backend logging.LeveledBackend) {
	log.SetBackend(backend)
}

// MagicNgRequest is the Probe frame's magic prefix (spec §4.E "the
// acceptor reads a Probe (magic prefix MAGIC_NG_REQUEST)").
const MagicNgRequest uint32 = 0x4e470052 // "NG\x00R"

// State is one of the connection FSM's states (spec §4.E "States").
type State int

const (
	StateInit State = iota
	StateHandshake
	StateAuthed
	StateStreaming
	StateIdle
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateHandshake:
		return "Handshake"
	case StateAuthed:
		return "Authed"
	case StateStreaming:
		return "Streaming"
	case StateIdle:
		return "Idle"
	case StateClosed:
		return "Closed"
	default:
		return "unknown"
	}
}

// StartVariant is the connection's declared purpose (spec §6
// "Start(variant): Client | Ext | Admin | App").
type StartVariant int

const (
	StartClient StartVariant = iota
	StartExt
	StartAdmin
	StartApp
)

var noiseCipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashBLAKE2b)

// Conn is a length-prefixed framed transport; the FSM only depends on
// this minimal surface so it can run over TCP, QUIC streams, or an
// in-memory pipe in tests.
type Conn interface {
	io.ReadWriteCloser
}

// FSM drives one connection's lifecycle. The sendMu lock serializes
// writers and is held across both blocking conn.Write calls of a
// frame, so a peer that stops reading stalls every other sender on
// this connection until that write returns or fails.
type FSM struct {
	conn   Conn
	broker *broker.Broker

	staticKey noise.DHKey

	mu        sync.Mutex
	state     State
	variant   StartVariant
	peerID    types.PeerId
	hs        *noise.HandshakeState
	sendCS    *noise.CipherState
	recvCS    *noise.CipherState

	sendMu sync.Mutex

	dispatch  *Dispatcher
	closeOnce sync.Once
	closeCh   chan struct{}
}

// New creates an FSM in StateInit over conn, using staticKey as this
// broker's Noise static keypair.
func New(conn Conn, b *broker.Broker, staticKey noise.DHKey, dispatch *Dispatcher) *FSM {
	return &FSM{
		conn:      conn,
		broker:    b,
		staticKey: staticKey,
		state:     StateInit,
		dispatch:  dispatch,
		closeCh:   make(chan struct{}),
	}
}

func (f *FSM) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *FSM) setState(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

// writeFrame length-prefixes and writes frame, serialized by sendMu
// so concurrent responders never interleave bytes — but the lock is
// held only around the write itself, never across decode/encode work
// upstream of it (spec DESIGN NOTES §9 "Async state machine").
func (f *FSM) writeFrame(frame []byte) error {
	f.sendMu.Lock()
	defer f.sendMu.Unlock()
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(frame)))
	if _, err := f.conn.Write(lenBuf[:]); err != nil {
		return types.ProtoWriteError
	}
	if _, err := f.conn.Write(frame); err != nil {
		return types.ProtoWriteError
	}
	return nil
}

func (f *FSM) readFrame() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(f.conn, lenBuf[:]); err != nil {
		return nil, types.ProtoConnectionClosed
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(f.conn, buf); err != nil {
		return nil, types.ProtoConnectionClosed
	}
	return buf, nil
}

// Run drives the connection to completion: probe, handshake, then
// the authenticated request/response/event loop (spec §4.E).
func (f *FSM) Run() error {
	defer f.Close()

	if err := f.runProbe(); err != nil {
		return err
	}
	if err := f.runStart(); err != nil {
		return err
	}
	if err := f.runHandshake(); err != nil {
		f.setState(StateClosed)
		return types.ProtoNoiseHandshakeFailed
	}
	f.setState(StateAuthed)
	return f.runAuthedLoop()
}

// runStart reads the Start(variant) frame that follows the probe
// exchange (spec §6 "Start(variant): Client | Ext | Admin | App").
// Admin requires the not-yet-authenticated connection to later prove,
// during the handshake, a static key equal to the configured admin
// user; that check happens after the handshake, in actors.requireAdmin,
// each time an admin-only responder runs.
func (f *FSM) runStart() error {
	frame, err := f.readFrame()
	if err != nil {
		return err
	}
	if len(frame) != 1 {
		return types.ProtoInvalidState
	}
	v := StartVariant(frame[0])
	if v < StartClient || v > StartApp {
		return types.ProtoInvalidState
	}
	f.mu.Lock()
	f.variant = v
	f.mu.Unlock()
	return nil
}

func (f *FSM) runProbe() error {
	frame, err := f.readFrame()
	if err != nil {
		return err
	}
	if len(frame) != 4 || binary.BigEndian.Uint32(frame) != MagicNgRequest {
		return types.ProtoInvalidState
	}
	resp := make([]byte, 32)
	copy(resp, f.broker.PeerID[:])
	return f.writeFrame(resp)
}

// runHandshake runs Noise_XK_25519_ChaChaPoly_BLAKE2b as the
// responder (spec §4.E "Handshake"). The handshake is treated as a
// black box: the FSM only sees cleartext frames once it completes
// (spec DESIGN NOTES §9 "Noise integration").
func (f *FSM) runHandshake() error {
	f.setState(StateHandshake)
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   noiseCipherSuite,
		Random:        rand.Reader,
		Pattern:       noise.HandshakeXK,
		Initiator:     false,
		StaticKeypair: f.staticKey,
	})
	if err != nil {
		return err
	}
	f.hs = hs

	// Noise_XK is a 3-message pattern; the responder reads, writes,
	// then reads again to complete it.
	msg1, err := f.readFrame()
	if err != nil {
		return err
	}
	if _, _, _, err := hs.ReadMessage(nil, msg1); err != nil {
		return err
	}

	msg2, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return err
	}
	if err := f.writeFrame(msg2); err != nil {
		return err
	}

	msg3, err := f.readFrame()
	if err != nil {
		return err
	}
	payload, recvCS, sendCS, err := hs.ReadMessage(nil, msg3)
	if err != nil {
		return err
	}
	_ = payload
	f.sendCS = sendCS
	f.recvCS = recvCS
	copy(f.peerID[:], hs.PeerStatic())
	return nil
}

func (f *FSM) encrypt(plaintext []byte) ([]byte, error) {
	return f.sendCS.Encrypt(nil, nil, plaintext), nil
}

func (f *FSM) decrypt(ciphertext []byte) ([]byte, error) {
	return f.recvCS.Decrypt(nil, nil, ciphertext)
}

// runAuthedLoop reads tagged protocol messages and routes them to the
// actor dispatcher (spec §4.E "Authed") until the transport closes.
func (f *FSM) runAuthedLoop() error {
	for {
		select {
		case <-f.closeCh:
			return nil
		default:
		}
		frame, err := f.readFrame()
		if err != nil {
			return nil
		}
		plain, err := f.decrypt(frame)
		if err != nil {
			return types.ProtoSerializationError
		}
		msg, err := DecodeMessage(plain)
		if err != nil {
			f.SendError(0, types.ErrInvalidRequest)
			continue
		}
		f.dispatch.Handle(f, msg)
	}
}

// Send encodes, encrypts and writes a response/event frame. id is 0
// for unsolicited server-to-client frames (spec §6 "id=0 for
// unsolicited server-to-client frames").
func (f *FSM) Send(id int64, result types.ServerError, content []byte) error {
	msg := EncodeMessage(id, result, content)
	cipher, err := f.encrypt(msg)
	if err != nil {
		return types.ProtoWriteError
	}
	return f.writeFrame(cipher)
}

// SendError is a convenience wrapper for a terminal error reply.
func (f *FSM) SendError(id int64, e types.ServerError) error {
	return f.Send(id, e, nil)
}

// Broker exposes the shared broker handle to responders.
func (f *FSM) Broker() *broker.Broker { return f.broker }

// PeerID returns the authenticated remote peer's static public key.
func (f *FSM) PeerID() types.PeerId { return f.peerID }

// Variant returns the Start() variant this connection declared.
func (f *FSM) Variant() StartVariant {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.variant
}

// Close transitions to Closed and releases connection resources; any
// in-flight responder observes closeCh and frees its own resources
// (spec §4.E "Cancellation and timeout").
func (f *FSM) Close() {
	f.closeOnce.Do(func() {
		f.setState(StateClosed)
		close(f.closeCh)
		f.broker.RemoveAllSubscriptionsOfClient(f.peerID)
		_ = f.conn.Close()
	})
}

func (f *FSM) CloseSignal() <-chan struct{} { return f.closeCh }
