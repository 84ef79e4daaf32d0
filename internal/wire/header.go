// Package wire defines the framed packet protocol: a fixed 24-byte header
// (magic, type, length, sequence, crc32, client_id, reserved), little-endian
// on the wire, followed by exactly Header.Length payload bytes.
package wire

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/zfogg/ascii-chat/internal/errs"
)

// Magic is the constant sentinel every valid packet header carries.
const Magic uint32 = 0x41534349 // "ASCI"

// MaxPacketSize is the largest payload a single packet may carry,
// enforced identically on both send and receive paths.
const MaxPacketSize = 5 * 1024 * 1024

// HeaderSize is the fixed on-wire header length in bytes.
const HeaderSize = 24

// Type enumerates the registered packet kinds.
type Type uint16

const (
	TypeASCIIFrame Type = iota + 1
	TypeImageFrame
	TypeAudio
	TypeSize
	TypePing
	TypePong
	TypeClientJoin
	TypeClientLeave
	TypeStreamStart
	TypeStreamStop
	TypeClearConsole
	TypeServerState
)

// RegisteredTypes is the validation set: any type outside this set fails
// validation.
var RegisteredTypes = map[Type]bool{
	TypeASCIIFrame:   true,
	TypeImageFrame:   true,
	TypeAudio:        true,
	TypeSize:         true,
	TypePing:         true,
	TypePong:         true,
	TypeClientJoin:   true,
	TypeClientLeave:  true,
	TypeStreamStart:  true,
	TypeStreamStop:   true,
	TypeClearConsole: true,
	TypeServerState:  true,
}

// zeroLengthOK lists types that may carry a zero-length payload.
var zeroLengthOK = map[Type]bool{
	TypePing:       true,
	TypePong:       true,
	TypeStreamStop: true,
}

func (t Type) String() string {
	switch t {
	case TypeASCIIFrame:
		return "ASCII_FRAME"
	case TypeImageFrame:
		return "IMAGE_FRAME"
	case TypeAudio:
		return "AUDIO"
	case TypeSize:
		return "SIZE"
	case TypePing:
		return "PING"
	case TypePong:
		return "PONG"
	case TypeClientJoin:
		return "CLIENT_JOIN"
	case TypeClientLeave:
		return "CLIENT_LEAVE"
	case TypeStreamStart:
		return "STREAM_START"
	case TypeStreamStop:
		return "STREAM_STOP"
	case TypeClearConsole:
		return "CLEAR_CONSOLE"
	case TypeServerState:
		return "SERVER_STATE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint16(t))
	}
}

// Header is the fixed 24-byte packet header.
type Header struct {
	Magic    uint32
	Type     Type
	Length   uint32
	Sequence uint32
	CRC32    uint32
	ClientID uint32
	Reserved uint16
}

// Packet is a decoded header plus its payload bytes.
type Packet struct {
	Header  Header
	Payload []byte
}

// NewHeader builds a header for an outbound packet of the given type,
// sequence, and client ID, computing length and CRC from payload.
func NewHeader(typ Type, sequence, clientID uint32, payload []byte) Header {
	return Header{
		Magic:    Magic,
		Type:     typ,
		Length:   uint32(len(payload)),
		Sequence: sequence,
		CRC32:    crc32.ChecksumIEEE(payload),
		ClientID: clientID,
	}
}

// Encode writes the header in little-endian wire format.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(h.Type))
	binary.LittleEndian.PutUint32(buf[6:10], h.Length)
	binary.LittleEndian.PutUint32(buf[10:14], h.Sequence)
	binary.LittleEndian.PutUint32(buf[14:18], h.CRC32)
	binary.LittleEndian.PutUint32(buf[18:22], h.ClientID)
	binary.LittleEndian.PutUint16(buf[22:24], h.Reserved)
	return buf
}

// DecodeHeader parses a HeaderSize-byte buffer into a Header. It does not
// validate magic/type/length — callers call Validate for that.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) != HeaderSize {
		return Header{}, fmt.Errorf("wire: short header (%d bytes): %w", len(buf), errs.ErrProtocol)
	}
	return Header{
		Magic:    binary.LittleEndian.Uint32(buf[0:4]),
		Type:     Type(binary.LittleEndian.Uint16(buf[4:6])),
		Length:   binary.LittleEndian.Uint32(buf[6:10]),
		Sequence: binary.LittleEndian.Uint32(buf[10:14]),
		CRC32:    binary.LittleEndian.Uint32(buf[14:18]),
		ClientID: binary.LittleEndian.Uint32(buf[18:22]),
		Reserved: binary.LittleEndian.Uint16(buf[22:24]),
	}, nil
}

// Validate checks the header and payload against the wire invariants:
// magic, registered type, length bound, and (given payload) CRC.
func (h Header) Validate(payload []byte) error {
	if h.Magic != Magic {
		return fmt.Errorf("wire: bad magic 0x%08x: %w", h.Magic, errs.ErrProtocol)
	}
	if !RegisteredTypes[h.Type] {
		return fmt.Errorf("wire: unregistered type %d: %w", uint16(h.Type), errs.ErrProtocol)
	}
	if h.Length > MaxPacketSize {
		return fmt.Errorf("wire: length %d exceeds MaxPacketSize: %w", h.Length, errs.ErrProtocol)
	}
	if h.Length == 0 && !zeroLengthOK[h.Type] {
		return fmt.Errorf("wire: type %s does not permit a zero-length payload: %w", h.Type, errs.ErrProtocol)
	}
	if payload != nil {
		if uint32(len(payload)) != h.Length {
			return fmt.Errorf("wire: payload length %d does not match header length %d: %w", len(payload), h.Length, errs.ErrProtocol)
		}
		if crc32.ChecksumIEEE(payload) != h.CRC32 {
			return fmt.Errorf("wire: crc mismatch: %w", errs.ErrProtocol)
		}
	}
	return nil
}

// WritePacket encodes and writes a full packet (header + payload) to w.
func WritePacket(w io.Writer, h Header, payload []byte) error {
	if len(payload) > MaxPacketSize {
		return fmt.Errorf("wire: payload length %d exceeds MaxPacketSize: %w", len(payload), errs.ErrProtocol)
	}
	if _, err := w.Write(h.Encode()); err != nil {
		return fmt.Errorf("wire: write header: %w", errs.ErrNetwork)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("wire: write payload: %w", errs.ErrNetwork)
		}
	}
	return nil
}

// ReadPacket reads one full packet (header + payload) from r, validating it.
// A short read is reported as ErrNetwork; a validation failure as
// ErrProtocol.
func ReadPacket(r io.Reader) (Packet, error) {
	hbuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, hbuf); err != nil {
		return Packet{}, fmt.Errorf("wire: read header: %w", errs.ErrNetwork)
	}
	h, err := DecodeHeader(hbuf)
	if err != nil {
		return Packet{}, err
	}
	if h.Magic != Magic || !RegisteredTypes[h.Type] || h.Length > MaxPacketSize {
		return Packet{}, h.Validate(nil)
	}

	payload := make([]byte, h.Length)
	if h.Length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Packet{}, fmt.Errorf("wire: read payload: %w", errs.ErrNetwork)
		}
	}
	if err := h.Validate(payload); err != nil {
		return Packet{}, err
	}
	return Packet{Header: h, Payload: payload}, nil
}
