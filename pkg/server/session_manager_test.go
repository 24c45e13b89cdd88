package server

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"testing"

	snapcrypto "github.com/snapfleet/snapfleet/pkg/crypto"
)

// testSessionID mints a session id the way a client would: 16 random
// bytes, base64-encoded.
func testSessionID(t *testing.T) string {
	t.Helper()

	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		t.Fatalf("Failed to generate session ID: %v", err)
	}
	return base64.StdEncoding.EncodeToString(bytes)
}

func newTestSessionManager(t *testing.T) *NoiseSessionManager {
	t.Helper()

	manager, err := NewNoiseSessionManager(nil)
	if err != nil {
		t.Fatalf("Failed to create session manager: %v", err)
	}
	return manager
}

// connectClient performs the client side of a handshake against the manager
// and returns the established client endpoint.
func connectClient(t *testing.T, manager *NoiseSessionManager, sessionID string) *snapcrypto.NoiseNK {
	t.Helper()

	client, err := snapcrypto.NewNoiseNK(snapcrypto.RoleInitiator, nil, manager.GetServerPublicKey(), []byte(""))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	clientMsg, err := client.WriteHandshakeMessage(nil)
	if err != nil {
		t.Fatalf("Client handshake write failed: %v", err)
	}

	serverMsg, err := manager.StartHandshake(sessionID, clientMsg)
	if err != nil {
		t.Fatalf("StartHandshake failed: %v", err)
	}

	if _, err := client.ReadHandshakeMessage(serverMsg); err != nil {
		t.Fatalf("Client handshake read failed: %v", err)
	}
	if !client.IsHandshakeComplete() {
		t.Fatal("Client handshake not complete")
	}

	return client
}

func TestValidateSessionID(t *testing.T) {
	sessionID := testSessionID(t)
	if !ValidateSessionID(sessionID) {
		t.Errorf("Client-minted session ID %q failed validation", sessionID)
	}

	invalid := []string{"", "short", "this-is-not-base64-encoded!!", sessionID + "A"}
	for _, id := range invalid {
		if ValidateSessionID(id) {
			t.Errorf("Invalid session ID %q accepted", id)
		}
	}
}

func TestEncryptedCallRoundTrip(t *testing.T) {
	manager := newTestSessionManager(t)

	sessionID := testSessionID(t)
	client := connectClient(t, manager, sessionID)

	if manager.GetSessionCount() != 1 {
		t.Errorf("Expected 1 session after handshake, got %d", manager.GetSessionCount())
	}

	// Client encrypts a method call
	call := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "GenerateCloudPassword",
		"params":  []interface{}{map[string]interface{}{"device_id": "AA:BB:CC:DD:EE:FF"}},
		"id":      float64(1),
	}
	callJSON, err := json.Marshal(call)
	if err != nil {
		t.Fatalf("Failed to marshal call: %v", err)
	}
	encrypted, err := client.Encrypt(callJSON, nil)
	if err != nil {
		t.Fatalf("Client encrypt failed: %v", err)
	}

	decrypted, err := manager.DecryptCall(sessionID, encrypted)
	if err != nil {
		t.Fatalf("DecryptCall failed: %v", err)
	}
	if decrypted["method"] != "GenerateCloudPassword" {
		t.Errorf("Expected method GenerateCloudPassword, got %v", decrypted["method"])
	}

	// Server encrypts the response; the session is destroyed afterwards
	response := map[string]interface{}{"jsonrpc": "2.0", "result": true, "id": float64(1)}
	encryptedResponse, err := manager.EncryptResponse(sessionID, response)
	if err != nil {
		t.Fatalf("EncryptResponse failed: %v", err)
	}

	responseJSON, err := client.Decrypt(encryptedResponse, nil)
	if err != nil {
		t.Fatalf("Client decrypt failed: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(responseJSON, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if decoded["result"] != true {
		t.Errorf("Expected result true, got %v", decoded["result"])
	}

	if manager.GetSessionCount() != 0 {
		t.Errorf("Expected 0 sessions after response, got %d", manager.GetSessionCount())
	}

	// Single use: the session cannot be reused
	if _, err := manager.DecryptCall(sessionID, encrypted); err == nil {
		t.Error("DecryptCall succeeded on a destroyed session")
	}
}

func TestDuplicateSessionRejected(t *testing.T) {
	manager := newTestSessionManager(t)

	sessionID := testSessionID(t)
	connectClient(t, manager, sessionID)

	client, err := snapcrypto.NewNoiseNK(snapcrypto.RoleInitiator, nil, manager.GetServerPublicKey(), []byte(""))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	clientMsg, err := client.WriteHandshakeMessage(nil)
	if err != nil {
		t.Fatalf("Client handshake write failed: %v", err)
	}

	if _, err := manager.StartHandshake(sessionID, clientMsg); err == nil {
		t.Error("Duplicate session ID accepted")
	}
}

func TestDecryptCallGarbageDropsSession(t *testing.T) {
	manager := newTestSessionManager(t)

	sessionID := testSessionID(t)
	connectClient(t, manager, sessionID)

	if _, err := manager.DecryptCall(sessionID, []byte("garbage ciphertext")); err == nil {
		t.Error("Garbage ciphertext decrypted")
	}
	if manager.GetSessionCount() != 0 {
		t.Errorf("Expected failed decryption to drop the session, %d remain", manager.GetSessionCount())
	}
}

func TestUnknownSessionRejected(t *testing.T) {
	manager := newTestSessionManager(t)

	if _, err := manager.DecryptCall("nonexistent", []byte("data")); err == nil {
		t.Error("DecryptCall succeeded for unknown session")
	}
	if _, err := manager.EncryptResponse("nonexistent", map[string]interface{}{}); err == nil {
		t.Error("EncryptResponse succeeded for unknown session")
	}
}
