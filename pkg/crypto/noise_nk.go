// Package crypto provides the Noise-NK channel used to protect
// plaintext-bearing RPCs between operator tooling and the server.
//
// The NK pattern gives the initiator confidentiality against a known
// server static key without requiring client credentials, which fits the
// emergency-access flow: an operator must be able to reach the issuance
// endpoint from an otherwise unprovisioned machine.
package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/flynn/noise"
)

// Role of a NoiseNK endpoint in the handshake.
const (
	RoleInitiator = "initiator"
	RoleResponder = "responder"
)

// NoiseNK is one endpoint of a Noise-NK channel.
type NoiseNK struct {
	isInitiator       bool
	prologue          []byte
	handshakeComplete bool
	localStaticKey    noise.DHKey
	remoteStaticKey   []byte
	handshakeState    *noise.HandshakeState
	sendCipher        *noise.CipherState
	recvCipher        *noise.CipherState
	handshakeHash     []byte
}

// NewNoiseNK creates a new Noise-NK endpoint.
//
// In the NK pattern only the responder has a static key: an initiator must
// supply the responder's public key, and a responder must supply (or have
// generated for it) its own keypair.
func NewNoiseNK(role string, localStaticKey *noise.DHKey, remoteStaticKey []byte, prologue []byte) (*NoiseNK, error) {
	if role != RoleInitiator && role != RoleResponder {
		return nil, errors.New("role must be 'initiator' or 'responder'")
	}

	nk := &NoiseNK{
		isInitiator: role == RoleInitiator,
		prologue:    prologue,
	}

	if nk.isInitiator {
		if remoteStaticKey == nil {
			return nil, errors.New("initiator must provide responder's static public key")
		}
		nk.remoteStaticKey = remoteStaticKey
	} else {
		if localStaticKey == nil {
			keypair, err := noise.DH25519.GenerateKeypair(rand.Reader)
			if err != nil {
				return nil, fmt.Errorf("failed to generate keypair: %v", err)
			}
			nk.localStaticKey = keypair
		} else {
			nk.localStaticKey = *localStaticKey
		}
	}

	if err := nk.initializeHandshake(); err != nil {
		return nil, err
	}

	return nk, nil
}

func (nk *NoiseNK) initializeHandshake() error {
	config := noise.Config{
		CipherSuite: noise.NewCipherSuite(noise.DH25519, noise.CipherAESGCM, noise.HashSHA256),
		Random:      rand.Reader,
		Pattern:     noise.HandshakeNK,
		Initiator:   nk.isInitiator,
		Prologue:    nk.prologue,
	}

	if nk.isInitiator {
		config.PeerStatic = nk.remoteStaticKey
	} else {
		config.StaticKeypair = nk.localStaticKey
	}

	hs, err := noise.NewHandshakeState(config)
	if err != nil {
		return fmt.Errorf("failed to create handshake state: %v", err)
	}

	nk.handshakeState = hs
	return nil
}

// GetPublicKey returns this endpoint's static public key, or nil for an
// initiator (which has none under NK).
func (nk *NoiseNK) GetPublicKey() []byte {
	if nk.isInitiator {
		return nil
	}
	return nk.localStaticKey.Public
}

// WriteHandshakeMessage writes the next handshake message with an optional
// payload.
func (nk *NoiseNK) WriteHandshakeMessage(payload []byte) ([]byte, error) {
	if nk.handshakeComplete {
		return nil, errors.New("handshake is already complete")
	}

	message, cs1, cs2, err := nk.handshakeState.WriteMessage(nil, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to write handshake message: %v", err)
	}

	if cs1 != nil && cs2 != nil {
		nk.finalizeHandshake(cs1, cs2)
	}

	return message, nil
}

// ReadHandshakeMessage processes a handshake message from the other party
// and returns its payload.
func (nk *NoiseNK) ReadHandshakeMessage(message []byte) ([]byte, error) {
	if nk.handshakeComplete {
		return nil, errors.New("handshake is already complete")
	}

	payload, cs1, cs2, err := nk.handshakeState.ReadMessage(nil, message)
	if err != nil {
		return nil, fmt.Errorf("failed to read handshake message: %v", err)
	}

	if cs1 != nil && cs2 != nil {
		nk.finalizeHandshake(cs1, cs2)
	}

	return payload, nil
}

// finalizeHandshake installs the transport ciphers. Cipher pairing depends
// on role: the initiator sends with cs1, the responder with cs2.
func (nk *NoiseNK) finalizeHandshake(cs1, cs2 *noise.CipherState) {
	if nk.isInitiator {
		nk.sendCipher = cs1
		nk.recvCipher = cs2
	} else {
		nk.sendCipher = cs2
		nk.recvCipher = cs1
	}

	nk.handshakeComplete = true
	nk.handshakeHash = nk.handshakeState.ChannelBinding()
}

// Encrypt encrypts a message after the handshake has completed.
func (nk *NoiseNK) Encrypt(plaintext, associatedData []byte) ([]byte, error) {
	if !nk.handshakeComplete {
		return nil, errors.New("handshake must be completed before encrypting messages")
	}

	return nk.sendCipher.Encrypt(nil, associatedData, plaintext)
}

// Decrypt decrypts a message after the handshake has completed.
func (nk *NoiseNK) Decrypt(ciphertext, associatedData []byte) ([]byte, error) {
	if !nk.handshakeComplete {
		return nil, errors.New("handshake must be completed before decrypting messages")
	}

	return nk.recvCipher.Decrypt(nil, associatedData, ciphertext)
}

// GetHandshakeHash returns the handshake hash for channel binding.
func (nk *NoiseNK) GetHandshakeHash() []byte {
	return nk.handshakeHash
}

// IsHandshakeComplete reports whether the handshake has completed.
func (nk *NoiseNK) IsHandshakeComplete() bool {
	return nk.handshakeComplete
}

// GenerateKeypair generates a new X25519 keypair for Noise-NK.
func GenerateKeypair() (noise.DHKey, error) {
	return noise.DH25519.GenerateKeypair(rand.Reader)
}
