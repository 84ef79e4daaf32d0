// Package recv implements the per-connection receive dispatch loop: pull
// packets off the transport and route them to the right subsystem. The
// server side reads IMAGE_FRAME/AUDIO/PING/CLIENT_LEAVE from its clients;
// the client side reads ASCII_FRAME/AUDIO/SERVER_STATE/CLEAR_CONSOLE/PING
// from the server. Both directions share this one dispatch loop.
package recv

import (
	"github.com/zfogg/ascii-chat/internal/errs"
	"github.com/zfogg/ascii-chat/internal/logging"
	"github.com/zfogg/ascii-chat/internal/wire"
)

var log = logging.New("recv")

// Receiver is the minimal transport surface the dispatch loop reads from.
type Receiver interface {
	Recv() (wire.Packet, error)
}

// Handlers routes each packet type to its owning subsystem. Any field left
// nil silently drops packets of that type.
type Handlers struct {
	OnImageFrame     func(clientID uint32, payload []byte)
	OnASCIIFrame     func(clientID uint32, payload []byte)
	OnAudio          func(clientID uint32, payload []byte)
	OnPing           func(clientID uint32)
	OnPong           func(clientID uint32)
	OnClientLeave    func(clientID uint32)
	OnSize           func(clientID uint32, payload []byte)
	OnServerState    func(clientID uint32, payload []byte)
	OnClearConsole   func(clientID uint32)
	OnStreamStart    func(clientID uint32)
	OnStreamStop     func(clientID uint32)
	OnProtocolError  func(err error)
	OnConnectionLost func(err error)
}

// Loop reads packets from r until stop is closed or a terminal error
// occurs, dispatching each to the matching Handlers field. A protocol
// violation (ErrProtocol) or network failure (ErrNetwork) both terminate
// the loop: a partial read or reassembly timeout fails the connection.
func Loop(r Receiver, clientID uint32, h Handlers, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		pkt, err := r.Recv()
		if err != nil {
			switch errs.Classify(err) {
			case errs.KindProtocol:
				if h.OnProtocolError != nil {
					h.OnProtocolError(err)
				}
			default:
				if h.OnConnectionLost != nil {
					h.OnConnectionLost(err)
				}
			}
			return
		}

		dispatch(pkt, clientID, h)
	}
}

func dispatch(pkt wire.Packet, clientID uint32, h Handlers) {
	switch pkt.Header.Type {
	case wire.TypeImageFrame:
		if h.OnImageFrame != nil {
			h.OnImageFrame(clientID, pkt.Payload)
		}
	case wire.TypeAudio:
		if h.OnAudio != nil {
			h.OnAudio(clientID, pkt.Payload)
		}
	case wire.TypePing:
		if h.OnPing != nil {
			h.OnPing(clientID)
		}
	case wire.TypePong:
		if h.OnPong != nil {
			h.OnPong(clientID)
		}
	case wire.TypeClientLeave:
		if h.OnClientLeave != nil {
			h.OnClientLeave(clientID)
		}
	case wire.TypeSize:
		if h.OnSize != nil {
			h.OnSize(clientID, pkt.Payload)
		}
	case wire.TypeASCIIFrame:
		if h.OnASCIIFrame != nil {
			h.OnASCIIFrame(clientID, pkt.Payload)
		}
	case wire.TypeServerState:
		if h.OnServerState != nil {
			h.OnServerState(clientID, pkt.Payload)
		}
	case wire.TypeClearConsole:
		if h.OnClearConsole != nil {
			h.OnClearConsole(clientID)
		}
	case wire.TypeStreamStart:
		if h.OnStreamStart != nil {
			h.OnStreamStart(clientID)
		}
	case wire.TypeStreamStop:
		if h.OnStreamStop != nil {
			h.OnStreamStop(clientID)
		}
	default:
		log.Debugf("client %d: unhandled packet type %s", clientID, pkt.Header.Type)
	}
}
