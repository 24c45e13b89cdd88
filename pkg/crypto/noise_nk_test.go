package crypto

import (
	"bytes"
	"testing"
)

// handshake runs a full NK handshake between a fresh initiator and the
// given responder, returning the initiator side.
func handshake(t *testing.T, responder *NoiseNK) *NoiseNK {
	t.Helper()

	initiator, err := NewNoiseNK(RoleInitiator, nil, responder.GetPublicKey(), nil)
	if err != nil {
		t.Fatalf("Failed to create initiator: %v", err)
	}

	msg1, err := initiator.WriteHandshakeMessage(nil)
	if err != nil {
		t.Fatalf("Initiator handshake write failed: %v", err)
	}
	if _, err := responder.ReadHandshakeMessage(msg1); err != nil {
		t.Fatalf("Responder handshake read failed: %v", err)
	}

	msg2, err := responder.WriteHandshakeMessage(nil)
	if err != nil {
		t.Fatalf("Responder handshake write failed: %v", err)
	}
	if _, err := initiator.ReadHandshakeMessage(msg2); err != nil {
		t.Fatalf("Initiator handshake read failed: %v", err)
	}

	return initiator
}

func TestNoiseNKHandshakeAndTransport(t *testing.T) {
	responder, err := NewNoiseNK(RoleResponder, nil, nil, nil)
	if err != nil {
		t.Fatalf("Failed to create responder: %v", err)
	}

	if responder.IsHandshakeComplete() {
		t.Error("Handshake should not be complete before any messages")
	}

	initiator := handshake(t, responder)

	if !initiator.IsHandshakeComplete() {
		t.Error("Initiator handshake not complete")
	}
	if !responder.IsHandshakeComplete() {
		t.Error("Responder handshake not complete")
	}
	if !bytes.Equal(initiator.GetHandshakeHash(), responder.GetHandshakeHash()) {
		t.Error("Handshake hashes differ between endpoints")
	}

	// Initiator to responder
	plaintext := []byte(`{"method":"GenerateCloudPassword"}`)
	ciphertext, err := initiator.Encrypt(plaintext, nil)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if bytes.Equal(ciphertext, plaintext) {
		t.Error("Ciphertext equals plaintext")
	}

	decrypted, err := responder.Decrypt(ciphertext, nil)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("Decrypted %q, expected %q", decrypted, plaintext)
	}

	// Responder to initiator
	reply := []byte(`{"result":true}`)
	replyCiphertext, err := responder.Encrypt(reply, nil)
	if err != nil {
		t.Fatalf("Responder encrypt failed: %v", err)
	}
	replyDecrypted, err := initiator.Decrypt(replyCiphertext, nil)
	if err != nil {
		t.Fatalf("Initiator decrypt failed: %v", err)
	}
	if !bytes.Equal(replyDecrypted, reply) {
		t.Errorf("Decrypted %q, expected %q", replyDecrypted, reply)
	}
}

func TestNoiseNKTamperedCiphertextRejected(t *testing.T) {
	responder, err := NewNoiseNK(RoleResponder, nil, nil, nil)
	if err != nil {
		t.Fatalf("Failed to create responder: %v", err)
	}
	initiator := handshake(t, responder)

	ciphertext, err := initiator.Encrypt([]byte("secret payload"), nil)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	ciphertext[0] ^= 0xff
	if _, err := responder.Decrypt(ciphertext, nil); err == nil {
		t.Error("Tampered ciphertext decrypted without error")
	}
}

func TestNoiseNKRoleValidation(t *testing.T) {
	if _, err := NewNoiseNK("observer", nil, nil, nil); err == nil {
		t.Error("Invalid role accepted")
	}

	// An initiator must know the responder's static key.
	if _, err := NewNoiseNK(RoleInitiator, nil, nil, nil); err == nil {
		t.Error("Initiator without remote static key accepted")
	}
}

func TestNoiseNKEncryptBeforeHandshake(t *testing.T) {
	responder, err := NewNoiseNK(RoleResponder, nil, nil, nil)
	if err != nil {
		t.Fatalf("Failed to create responder: %v", err)
	}

	if _, err := responder.Encrypt([]byte("too early"), nil); err == nil {
		t.Error("Encrypt before handshake should fail")
	}
	if _, err := responder.Decrypt([]byte("too early"), nil); err == nil {
		t.Error("Decrypt before handshake should fail")
	}
}

func TestGenerateKeypair(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("Failed to generate keypair: %v", err)
	}
	if len(keypair.Public) != 32 {
		t.Errorf("Expected 32-byte public key, got %d bytes", len(keypair.Public))
	}
	if len(keypair.Private) != 32 {
		t.Errorf("Expected 32-byte private key, got %d bytes", len(keypair.Private))
	}
}
