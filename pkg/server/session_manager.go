// Session management for Noise-NK encrypted JSON-RPC calls.
//
// Each session carries exactly one encrypted method call and is then
// destroyed. Sessions are identified by 16-byte random ids; the server
// holds a static keypair for the NK responder role, and every session
// uses fresh ephemeral keys for forward secrecy. This matters here
// because the encrypted calls carry plaintext credentials: the base
// secret and freshly issued emergency passwords.
package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/flynn/noise"
	"github.com/rs/zerolog/log"

	snapcrypto "github.com/snapfleet/snapfleet/pkg/crypto"
)

// NoiseSessionManager manages Noise-NK encryption sessions for the
// JSON-RPC server.
type NoiseSessionManager struct {
	sessions    map[string]*snapcrypto.NoiseNK
	sessionLock sync.RWMutex
	serverKey   noise.DHKey
}

// NewNoiseSessionManager creates a session manager around the server's
// static keypair, generating one if none is supplied.
func NewNoiseSessionManager(serverStaticKey *noise.DHKey) (*NoiseSessionManager, error) {
	var serverKey noise.DHKey

	if serverStaticKey == nil {
		generated, err := snapcrypto.GenerateKeypair()
		if err != nil {
			return nil, fmt.Errorf("failed to generate server key: %v", err)
		}
		serverKey = generated
	} else {
		serverKey = *serverStaticKey
	}

	return &NoiseSessionManager{
		sessions:  make(map[string]*snapcrypto.NoiseNK),
		serverKey: serverKey,
	}, nil
}

// GetServerPublicKey returns the server's static public key for
// distribution to clients.
func (m *NoiseSessionManager) GetServerPublicKey() []byte {
	return m.serverKey.Public
}

// StartHandshake processes a client's handshake message for a new session
// and returns the server's response message.
func (m *NoiseSessionManager) StartHandshake(sessionID string, clientHandshakeMessage []byte) ([]byte, error) {
	m.sessionLock.Lock()
	defer m.sessionLock.Unlock()

	if _, exists := m.sessions[sessionID]; exists {
		return nil, fmt.Errorf("session ID already in use")
	}

	noiseSession, err := snapcrypto.NewNoiseNK(snapcrypto.RoleResponder, &m.serverKey, nil, []byte(""))
	if err != nil {
		return nil, fmt.Errorf("failed to create Noise session: %v", err)
	}

	if _, err := noiseSession.ReadHandshakeMessage(clientHandshakeMessage); err != nil {
		log.Debug().Err(err).Msg("rejected client handshake")
		return nil, fmt.Errorf("invalid handshake message: %v", err)
	}

	serverResponse, err := noiseSession.WriteHandshakeMessage(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create handshake response: %v", err)
	}

	m.sessions[sessionID] = noiseSession
	return serverResponse, nil
}

// DecryptCall decrypts an encrypted JSON-RPC call, keeping the session
// alive for the matching EncryptResponse.
func (m *NoiseSessionManager) DecryptCall(sessionID string, encryptedData []byte) (map[string]interface{}, error) {
	m.sessionLock.RLock()
	noiseSession, exists := m.sessions[sessionID]
	m.sessionLock.RUnlock()

	if !exists {
		return nil, fmt.Errorf("session not found or expired")
	}

	if !noiseSession.IsHandshakeComplete() {
		return nil, fmt.Errorf("handshake not completed")
	}

	decryptedJSON, err := noiseSession.Decrypt(encryptedData, nil)
	if err != nil {
		m.dropSession(sessionID)
		return nil, fmt.Errorf("decryption failed: %v", err)
	}

	var requestDict map[string]interface{}
	if err := json.Unmarshal(decryptedJSON, &requestDict); err != nil {
		m.dropSession(sessionID)
		return nil, fmt.Errorf("invalid JSON in encrypted message: %v", err)
	}

	return requestDict, nil
}

// EncryptResponse encrypts a JSON-RPC response and destroys the session.
func (m *NoiseSessionManager) EncryptResponse(sessionID string, responseDict map[string]interface{}) ([]byte, error) {
	m.sessionLock.Lock()
	defer m.sessionLock.Unlock()

	noiseSession, exists := m.sessions[sessionID]
	if !exists {
		return nil, fmt.Errorf("session not found or expired")
	}

	// Single use: the session is gone whatever happens next.
	delete(m.sessions, sessionID)

	responseJSON, err := json.Marshal(responseDict)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize response: %v", err)
	}

	encryptedResponse, err := noiseSession.Encrypt(responseJSON, nil)
	if err != nil {
		return nil, fmt.Errorf("encryption failed: %v", err)
	}

	return encryptedResponse, nil
}

// GetSessionCount returns the current number of active sessions (for monitoring)
func (m *NoiseSessionManager) GetSessionCount() int {
	m.sessionLock.RLock()
	defer m.sessionLock.RUnlock()
	return len(m.sessions)
}

func (m *NoiseSessionManager) dropSession(sessionID string) {
	m.sessionLock.Lock()
	delete(m.sessions, sessionID)
	m.sessionLock.Unlock()
}

// ValidateSessionID validates that a session ID has the correct format:
// the client mints 16 random bytes and sends them base64-encoded
func ValidateSessionID(sessionID string) bool {
	if len(sessionID) != 24 { // Base64 encoding of 16 bytes
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(sessionID)
	if err != nil {
		return false
	}

	return len(decoded) == 16
}
