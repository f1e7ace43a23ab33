// Package cryptostream implements the optional session-encryption layer:
// an ECDH P-256 handshake, HKDF-SHA256 directional key derivation, and an
// AES-GCM envelope with a rotating nonce counter.
package cryptostream

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"io"
	"sync/atomic"

	"golang.org/x/crypto/hkdf"

	enclave "github.com/jonwraymond/enclavejs"
)

// SelectedAlgorithm is the only cipher this build negotiates.
const SelectedAlgorithm = "AES-GCM-256"

// KDFName is advertised in ServerHello.KDF.
const KDFName = "HKDF-SHA-256"

const (
	infoClientToServer = "enclavejs-c2s-enc"
	infoServerToClient = "enclavejs-s2c-enc"
	keyLen             = 32
	nonceLen           = 12

	// maxMessagesPerKey is the §4.7 rotation threshold: 2^30 messages.
	maxMessagesPerKey = 1 << 30
)

// Handshake holds one endpoint's ephemeral ECDH state plus the derived
// directional keys, once completed.
type Handshake struct {
	priv *ecdh.PrivateKey

	sessionID enclave.SessionID
	keyID     string

	c2s []byte
	s2c []byte
}

// NewHandshake generates a fresh ephemeral P-256 keypair for one side of the
// handshake.
func NewHandshake(sessionID enclave.SessionID, keyID string) (*Handshake, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, enclave.NewSessionError(enclave.ErrCodeHandshakeFailed, "generate ephemeral key", err)
	}
	return &Handshake{priv: priv, sessionID: sessionID, keyID: keyID}, nil
}

// ClientHello builds this endpoint's outgoing hello.
func (h *Handshake) ClientHello() enclave.ClientHello {
	return enclave.ClientHello{
		PubB64:              base64.StdEncoding.EncodeToString(h.priv.PublicKey().Bytes()),
		Curve:               "P-256",
		SupportedAlgorithms: []string{SelectedAlgorithm},
	}
}

// ServerHello builds this endpoint's reply, given the peer's ClientHello.
// Completing it also derives the directional keys, so Seal/Open are usable
// immediately after.
func (h *Handshake) ServerHello(peer enclave.ClientHello) (enclave.ServerHello, error) {
	if err := h.deriveFromPeerPub(peer.PubB64); err != nil {
		return enclave.ServerHello{}, err
	}
	return enclave.ServerHello{
		PubB64:            base64.StdEncoding.EncodeToString(h.priv.PublicKey().Bytes()),
		SelectedAlgorithm: SelectedAlgorithm,
		KDF:               KDFName,
		KeyID:             h.keyID,
	}, nil
}

// CompleteAsClient derives the directional keys from the server's reply.
func (h *Handshake) CompleteAsClient(server enclave.ServerHello) error {
	if server.SelectedAlgorithm != SelectedAlgorithm {
		return enclave.NewSessionError(enclave.ErrCodeUnsupportedAlgorithm, server.SelectedAlgorithm, nil)
	}
	return h.deriveFromPeerPub(server.PubB64)
}

func (h *Handshake) deriveFromPeerPub(pubB64 string) error {
	raw, err := base64.StdEncoding.DecodeString(pubB64)
	if err != nil {
		return enclave.NewSessionError(enclave.ErrCodeInvalidPublicKey, "malformed base64", err)
	}
	peerPub, err := ecdh.P256().NewPublicKey(raw)
	if err != nil {
		return enclave.NewSessionError(enclave.ErrCodeInvalidPublicKey, "not a valid P-256 point", err)
	}
	shared, err := h.priv.ECDH(peerPub)
	if err != nil {
		return enclave.NewSessionError(enclave.ErrCodeHandshakeFailed, "ECDH agreement failed", err)
	}

	salt := []byte(h.sessionID)
	c2s, err := deriveKey(shared, salt, infoClientToServer)
	if err != nil {
		return err
	}
	s2c, err := deriveKey(shared, salt, infoServerToClient)
	if err != nil {
		return err
	}
	h.c2s, h.s2c = c2s, s2c
	return nil
}

func deriveKey(shared, salt []byte, info string) ([]byte, error) {
	r := hkdf.New(sha256.New, shared, salt, []byte(info))
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, enclave.NewSessionError(enclave.ErrCodeKeyDerivationFailed, "HKDF expand", err)
	}
	return key, nil
}

// ClientToServerKey returns the key used to seal messages sent to the server.
func (h *Handshake) ClientToServerKey() []byte { return h.c2s }

// ServerToClientKey returns the key used to seal messages sent to the client.
func (h *Handshake) ServerToClientKey() []byte { return h.s2c }

// Endpoint encrypts/decrypts one direction of traffic with a rotating nonce
// counter. A session owns two Endpoints: one per direction.
type Endpoint struct {
	keyID   string
	aead    cipher.AEAD
	counter uint64 // atomic
}

// NewEndpoint constructs an Endpoint from a derived 32-byte key.
func NewEndpoint(keyID string, key []byte) (*Endpoint, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, enclave.NewSessionError(enclave.ErrCodeKeyDerivationFailed, "invalid AES key", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, enclave.NewSessionError(enclave.ErrCodeKeyDerivationFailed, "GCM init", err)
	}
	return &Endpoint{keyID: keyID, aead: aead}, nil
}

// Expired reports whether this endpoint has sealed the maximum number of
// messages allowed under one key (§4.7: rotate after 2^30 messages).
func (e *Endpoint) Expired() bool {
	return atomic.LoadUint64(&e.counter) >= maxMessagesPerKey
}

// Seal encrypts ev's payload and returns the wire-level EncryptedEnvelope.
// seq travels outside the ciphertext so gap detection works without
// decrypting (§3).
func (e *Endpoint) Seal(sessionID enclave.SessionID, seq uint64, ev enclave.StreamEvent) (enclave.EncryptedEnvelope, error) {
	if e.Expired() {
		return enclave.EncryptedEnvelope{}, enclave.NewSessionError(enclave.ErrCodeKeyExpired, "message counter exhausted, rotate key", nil)
	}
	plaintext, err := json.Marshal(ev)
	if err != nil {
		return enclave.EncryptedEnvelope{}, enclave.NewSessionError(enclave.ErrCodeExecutionError, "marshal event", err)
	}

	n := atomic.AddUint64(&e.counter, 1) - 1
	nonce := nonceFromCounter(n)
	ciphertext := e.aead.Seal(nil, nonce, plaintext, nil)

	return enclave.EncryptedEnvelope{
		ProtocolVersion: enclave.ProtocolVersion,
		SessionID:       sessionID,
		Seq:             seq,
		KID:             e.keyID,
		NonceB64:        base64.StdEncoding.EncodeToString(nonce),
		CiphertextB64:   base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

// Open decrypts env back into a StreamEvent.
func (e *Endpoint) Open(env enclave.EncryptedEnvelope) (enclave.StreamEvent, error) {
	var ev enclave.StreamEvent
	nonce, err := base64.StdEncoding.DecodeString(env.NonceB64)
	if err != nil || len(nonce) != nonceLen {
		return ev, enclave.NewSessionError(enclave.ErrCodeDecryptionFailed, "malformed nonce", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.CiphertextB64)
	if err != nil {
		return ev, enclave.NewSessionError(enclave.ErrCodeDecryptionFailed, "malformed ciphertext", err)
	}
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return ev, enclave.NewSessionError(enclave.ErrCodeDecryptionFailed, "authentication failed", err)
	}
	if err := json.Unmarshal(plaintext, &ev); err != nil {
		return ev, enclave.NewSessionError(enclave.ErrCodeDecryptionFailed, "invalid plaintext JSON", err)
	}
	return ev, nil
}

// nonceFromCounter builds the 12-byte nonce from a per-endpoint counter,
// big-endian, left-padded with zeros (§4.7).
func nonceFromCounter(counter uint64) []byte {
	nonce := make([]byte, nonceLen)
	binary.BigEndian.PutUint64(nonce[nonceLen-8:], counter)
	return nonce
}
