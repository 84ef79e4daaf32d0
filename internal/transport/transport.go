// Package transport implements the two wire-transport variants this module
// supports: a direct stream transport over net.Conn (the header's length
// field is the only framing needed) and a framed-message transport over a
// WebSocket connection, which must fragment large messages itself and
// reassemble them on the receiving end.
package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zfogg/ascii-chat/internal/cryptobox"
	"github.com/zfogg/ascii-chat/internal/errs"
	"github.com/zfogg/ascii-chat/internal/wire"
)

// Transport is the common contract: send/recv typed payloads, close, and
// query connectedness. Both variants below implement it.
type Transport interface {
	Send(typ wire.Type, sequence, clientID uint32, payload []byte) error
	Recv() (wire.Packet, error)
	Close() error
	IsConnected() bool
	SetBox(b *cryptobox.Box)
}

// ---- Stream transport -------------------------------------------------

// StreamTransport frames packets directly over a net.Conn using the wire
// header's length field; no additional fragmentation layer is needed since
// TCP already delivers a contiguous byte stream.
type StreamTransport struct {
	conn      net.Conn
	connected bool
	box       *cryptobox.Box
	sendMu    sync.Mutex // serializes Send across goroutines
}

// NewStream wraps an already-established connection.
func NewStream(conn net.Conn) *StreamTransport {
	return &StreamTransport{conn: conn, connected: true}
}

// SetBox installs the session box derived at the end of the handshake.
// Every Send/Recv call after this seals/opens the payload; packets
// exchanged before the handshake completes (capability and key exchange)
// are necessarily sent in the clear since no box exists yet.
func (t *StreamTransport) SetBox(b *cryptobox.Box) {
	t.box = b
}

func (t *StreamTransport) Send(typ wire.Type, sequence, clientID uint32, payload []byte) error {
	out := payload
	if t.box != nil {
		sealed, err := t.box.Seal(payload, nil)
		if err != nil {
			return err
		}
		out = sealed
	}
	h := wire.NewHeader(typ, sequence, clientID, out)
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	if err := wire.WritePacket(t.conn, h, out); err != nil {
		t.connected = false
		return err
	}
	return nil
}

func (t *StreamTransport) Recv() (wire.Packet, error) {
	pkt, err := wire.ReadPacket(t.conn)
	if err != nil {
		t.connected = false
		return wire.Packet{}, err
	}
	if t.box != nil && len(pkt.Payload) > 0 {
		plain, err := t.box.Open(pkt.Payload, nil)
		if err != nil {
			t.connected = false
			return wire.Packet{}, err
		}
		pkt.Payload = plain
	}
	return pkt, nil
}

func (t *StreamTransport) Close() error {
	t.connected = false
	return t.conn.Close()
}

func (t *StreamTransport) IsConnected() bool {
	return t.connected
}

// ---- Framed-message transport ------------------------------------------

// Role selects the per-role fragment size ceiling: 4 KiB client-side,
// 256 KiB server-side.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) fragmentLimit() int {
	if r == RoleServer {
		return 256 * 1024
	}
	return 4 * 1024
}

// fragHeaderSize is the in-band per-fragment header: message ID, fragment
// index, and a final-fragment flag.
const fragHeaderSize = 9

const reassemblyTimeout = 10 * time.Second

// FramedWS fragments each outbound wire packet into chunks no larger than
// the role's limit and reassembles inbound fragments into full wire
// packets, enforcing the fragmentation invariants: no fragment after a
// final one, and a bounded (MaxPacketSize-capped) partial buffer per
// connection.
type FramedWS struct {
	conn      *websocket.Conn
	role      Role
	connected bool
	box       *cryptobox.Box
	sendMu    sync.Mutex // serializes Send across goroutines

	nextMessageID uint32

	reassemblyMsgID uint32
	reassemblyBuf   []byte
	reassemblyAt    time.Time
	haveReassembly  bool
}

// NewFramedWS wraps an established WebSocket connection.
func NewFramedWS(conn *websocket.Conn, role Role) *FramedWS {
	return &FramedWS{conn: conn, role: role, connected: true}
}

// SetBox installs the session box derived at the end of the handshake, the
// same as StreamTransport.SetBox.
func (t *FramedWS) SetBox(b *cryptobox.Box) {
	t.box = b
}

func (t *FramedWS) Send(typ wire.Type, sequence, clientID uint32, payload []byte) error {
	out := payload
	if t.box != nil {
		sealed, err := t.box.Seal(payload, nil)
		if err != nil {
			return err
		}
		out = sealed
	}
	if len(out) > wire.MaxPacketSize {
		return fmt.Errorf("transport: payload length %d exceeds MaxPacketSize: %w", len(out), errs.ErrProtocol)
	}
	h := wire.NewHeader(typ, sequence, clientID, out)
	full := append(h.Encode(), out...)

	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	limit := t.role.fragmentLimit()
	msgID := t.nextMessageID
	t.nextMessageID++

	total := len(full)
	for offset := 0; offset < total || total == 0; {
		end := offset + limit
		if end > total {
			end = total
		}
		chunk := full[offset:end]
		final := end >= total

		fragIdx := uint32(offset / limit)
		frame := make([]byte, fragHeaderSize+len(chunk))
		binary.LittleEndian.PutUint32(frame[0:4], msgID)
		binary.LittleEndian.PutUint32(frame[4:8], fragIdx)
		if final {
			frame[8] = 1
		}
		copy(frame[fragHeaderSize:], chunk)

		if err := t.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			t.connected = false
			return fmt.Errorf("transport: write fragment: %w", errs.ErrNetwork)
		}
		if total == 0 {
			break
		}
		offset = end
	}
	return nil
}

func (t *FramedWS) Recv() (wire.Packet, error) {
	for {
		_ = t.conn.SetReadDeadline(time.Now().Add(reassemblyTimeout))
		_, frame, err := t.conn.ReadMessage()
		if err != nil {
			t.connected = false
			return wire.Packet{}, fmt.Errorf("transport: read fragment: %w", errs.ErrNetwork)
		}
		if len(frame) < fragHeaderSize {
			t.connected = false
			return wire.Packet{}, fmt.Errorf("transport: fragment shorter than header: %w", errs.ErrProtocol)
		}

		msgID := binary.LittleEndian.Uint32(frame[0:4])
		fragIdx := binary.LittleEndian.Uint32(frame[4:8])
		final := frame[8] != 0
		chunk := frame[fragHeaderSize:]

		if t.haveReassembly && msgID != t.reassemblyMsgID {
			// A fragment from a different message arrived mid-reassembly:
			// only legal if we'd already completed (shouldn't happen since we
			// return on final) — treat as a protocol violation.
			t.connected = false
			return wire.Packet{}, fmt.Errorf("transport: interleaved message id during reassembly: %w", errs.ErrProtocol)
		}

		if !t.haveReassembly {
			if fragIdx != 0 {
				t.connected = false
				return wire.Packet{}, fmt.Errorf("transport: reassembly did not start at fragment 0: %w", errs.ErrProtocol)
			}
			t.haveReassembly = true
			t.reassemblyMsgID = msgID
			t.reassemblyBuf = nil
		}

		if len(t.reassemblyBuf)+len(chunk) > wire.MaxPacketSize {
			t.connected = false
			return wire.Packet{}, fmt.Errorf("transport: reassembly buffer exceeds MaxPacketSize: %w", errs.ErrProtocol)
		}
		t.reassemblyBuf = append(t.reassemblyBuf, chunk...)

		if !final {
			continue
		}

		buf := t.reassemblyBuf
		t.reassemblyBuf = nil
		t.haveReassembly = false

		if len(buf) < wire.HeaderSize {
			t.connected = false
			return wire.Packet{}, fmt.Errorf("transport: reassembled message shorter than header: %w", errs.ErrProtocol)
		}
		h, err := wire.DecodeHeader(buf[:wire.HeaderSize])
		if err != nil {
			t.connected = false
			return wire.Packet{}, err
		}
		payload := buf[wire.HeaderSize:]
		if err := h.Validate(payload); err != nil {
			t.connected = false
			return wire.Packet{}, err
		}
		if t.box != nil && len(payload) > 0 {
			plain, err := t.box.Open(payload, nil)
			if err != nil {
				t.connected = false
				return wire.Packet{}, err
			}
			payload = plain
		}
		return wire.Packet{Header: h, Payload: payload}, nil
	}
}

func (t *FramedWS) Close() error {
	t.connected = false
	return t.conn.Close()
}

func (t *FramedWS) IsConnected() bool {
	return t.connected
}

var _ io.Closer = (*StreamTransport)(nil)
var _ io.Closer = (*FramedWS)(nil)
