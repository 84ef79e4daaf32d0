// Package handshake drives the per-connection handshake: a capability
// exchange (declared video/audio/width/height/color mode) immediately
// followed by an X25519 key exchange that derives the session's AEAD box.
// Both sides run the same two-step sequence; the server is distinguished
// only by assigning the client ID.
package handshake

import (
	"encoding/json"
	"fmt"

	"github.com/zfogg/ascii-chat/internal/client"
	"github.com/zfogg/ascii-chat/internal/cryptobox"
	"github.com/zfogg/ascii-chat/internal/errs"
	"github.com/zfogg/ascii-chat/internal/wire"
)

// capabilityWire is the JSON payload carried in a CLIENT_JOIN packet.
type capabilityWire struct {
	Video     bool `json:"video"`
	Audio     bool `json:"audio"`
	Width     int  `json:"width"`
	Height    int  `json:"height"`
	ColorMode int  `json:"color_mode"`
}

// keyExchangeWire is the JSON payload carried in the key-exchange step,
// reusing CLIENT_JOIN/ack framing rather than adding a new packet type.
type keyExchangeWire struct {
	PublicKey [32]byte `json:"public_key"`
}

// Peer abstracts the minimal send/recv surface handshake needs, satisfied
// by internal/transport.Transport.
type Peer interface {
	Send(typ wire.Type, sequence, clientID uint32, payload []byte) error
	Recv() (wire.Packet, error)
}

// Result is everything the rest of the client/server pipeline needs once
// the handshake completes.
type Result struct {
	Capabilities client.Capabilities
	Box          *cryptobox.Box
}

// RunClient performs the client side: send our capabilities and ephemeral
// public key, then receive the server's.
func RunClient(peer Peer, sequence uint32, clientID uint32, caps client.Capabilities) (Result, error) {
	capBytes, err := json.Marshal(capabilityWire{
		Video: caps.Video, Audio: caps.Audio,
		Width: caps.Width, Height: caps.Height, ColorMode: caps.ColorMode,
	})
	if err != nil {
		return Result{}, fmt.Errorf("handshake: marshal capabilities: %w", errs.ErrInvalidParameter)
	}
	if err := peer.Send(wire.TypeClientJoin, sequence, clientID, capBytes); err != nil {
		return Result{}, err
	}

	kp, err := cryptobox.GenerateKeyPair()
	if err != nil {
		return Result{}, err
	}
	keyBytes, err := json.Marshal(keyExchangeWire{PublicKey: kp.Public})
	if err != nil {
		return Result{}, fmt.Errorf("handshake: marshal key exchange: %w", errs.ErrCrypto)
	}
	if err := peer.Send(wire.TypeClientJoin, sequence+1, clientID, keyBytes); err != nil {
		return Result{}, err
	}

	pkt, err := peer.Recv()
	if err != nil {
		return Result{}, err
	}
	var remoteKey keyExchangeWire
	if err := json.Unmarshal(pkt.Payload, &remoteKey); err != nil {
		return Result{}, fmt.Errorf("handshake: unmarshal peer key: %w", errs.ErrProtocol)
	}

	box, err := cryptobox.DeriveSessionBox(kp.Private, remoteKey.PublicKey, kp.Public, "ascii-chat-session")
	if err != nil {
		return Result{}, err
	}

	return Result{Capabilities: caps, Box: box}, nil
}

// RunServer performs the server side: receive the client's declared
// capabilities and public key, then reply with our own ephemeral key.
func RunServer(peer Peer, sequence uint32, clientID uint32) (Result, error) {
	capPkt, err := peer.Recv()
	if err != nil {
		return Result{}, err
	}
	var cw capabilityWire
	if err := json.Unmarshal(capPkt.Payload, &cw); err != nil {
		return Result{}, fmt.Errorf("handshake: unmarshal capabilities: %w", errs.ErrProtocol)
	}

	keyPkt, err := peer.Recv()
	if err != nil {
		return Result{}, err
	}
	var remoteKey keyExchangeWire
	if err := json.Unmarshal(keyPkt.Payload, &remoteKey); err != nil {
		return Result{}, fmt.Errorf("handshake: unmarshal peer key: %w", errs.ErrProtocol)
	}

	kp, err := cryptobox.GenerateKeyPair()
	if err != nil {
		return Result{}, err
	}
	keyBytes, err := json.Marshal(keyExchangeWire{PublicKey: kp.Public})
	if err != nil {
		return Result{}, fmt.Errorf("handshake: marshal key exchange: %w", errs.ErrCrypto)
	}
	if err := peer.Send(wire.TypeClientJoin, sequence, clientID, keyBytes); err != nil {
		return Result{}, err
	}

	box, err := cryptobox.DeriveSessionBox(kp.Private, remoteKey.PublicKey, kp.Public, "ascii-chat-session")
	if err != nil {
		return Result{}, err
	}

	caps := client.Capabilities{
		Video: cw.Video, Audio: cw.Audio,
		Width: cw.Width, Height: cw.Height, ColorMode: cw.ColorMode,
	}
	return Result{Capabilities: caps, Box: box}, nil
}
