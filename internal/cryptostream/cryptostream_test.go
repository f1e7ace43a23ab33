package cryptostream

import (
	"testing"

	"github.com/stretchr/testify/require"

	enclave "github.com/jonwraymond/enclavejs"
)

func TestHandshake_DerivesMatchingDirectionalKeys(t *testing.T) {
	sessionID := enclave.SessionID("s_test123")

	client, err := NewHandshake(sessionID, "")
	require.NoError(t, err)
	server, err := NewHandshake(sessionID, "kid_1")
	require.NoError(t, err)

	serverHello, err := server.ServerHello(client.ClientHello())
	require.NoError(t, err)
	require.Equal(t, SelectedAlgorithm, serverHello.SelectedAlgorithm)

	require.NoError(t, client.CompleteAsClient(serverHello))

	require.Equal(t, server.ClientToServerKey(), client.ClientToServerKey())
	require.Equal(t, server.ServerToClientKey(), client.ServerToClientKey())
	require.NotEqual(t, client.ClientToServerKey(), client.ServerToClientKey())
}

func TestHandshake_RejectsUnsupportedAlgorithm(t *testing.T) {
	sessionID := enclave.SessionID("s_test123")
	client, err := NewHandshake(sessionID, "")
	require.NoError(t, err)

	err = client.CompleteAsClient(enclave.ServerHello{SelectedAlgorithm: "ChaCha20-Poly1305"})
	require.Error(t, err)

	var serr *enclave.SessionError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, enclave.ErrCodeUnsupportedAlgorithm, serr.Code)
}

func TestHandshake_RejectsInvalidPeerKey(t *testing.T) {
	client, err := NewHandshake("s_1", "")
	require.NoError(t, err)

	err = client.deriveFromPeerPub("not-valid-base64!!")
	require.Error(t, err)
	var serr *enclave.SessionError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, enclave.ErrCodeInvalidPublicKey, serr.Code)
}

func completedPair(t *testing.T) (clientKey, serverKey []byte) {
	t.Helper()
	sessionID := enclave.SessionID("s_roundtrip")
	client, err := NewHandshake(sessionID, "")
	require.NoError(t, err)
	server, err := NewHandshake(sessionID, "kid_1")
	require.NoError(t, err)

	serverHello, err := server.ServerHello(client.ClientHello())
	require.NoError(t, err)
	require.NoError(t, client.CompleteAsClient(serverHello))

	return client.ClientToServerKey(), server.ClientToServerKey()
}

func TestEndpoint_SealOpenRoundTrip(t *testing.T) {
	clientKey, serverKey := completedPair(t)
	require.Equal(t, clientKey, serverKey)

	sealer, err := NewEndpoint("kid_1", clientKey)
	require.NoError(t, err)
	opener, err := NewEndpoint("kid_1", serverKey)
	require.NoError(t, err)

	ev := enclave.StreamEvent{
		ProtocolVersion: enclave.ProtocolVersion,
		SessionID:       "s_roundtrip",
		Seq:             7,
		Type:            enclave.EventHeartbeat,
		Payload:         enclave.HeartbeatPayload{},
	}

	env, err := sealer.Seal(ev.SessionID, ev.Seq, ev)
	require.NoError(t, err)
	require.Equal(t, uint64(7), env.Seq)

	got, err := opener.Open(env)
	require.NoError(t, err)
	require.Equal(t, ev.Type, got.Type)
	require.Equal(t, ev.SessionID, got.SessionID)
}

func TestEndpoint_OpenRejectsTamperedCiphertext(t *testing.T) {
	clientKey, serverKey := completedPair(t)
	sealer, err := NewEndpoint("kid_1", clientKey)
	require.NoError(t, err)
	opener, err := NewEndpoint("kid_1", serverKey)
	require.NoError(t, err)

	env, err := sealer.Seal("s_roundtrip", 1, enclave.StreamEvent{Type: enclave.EventHeartbeat})
	require.NoError(t, err)
	env.CiphertextB64 = env.CiphertextB64[:len(env.CiphertextB64)-4] + "abcd"

	_, err = opener.Open(env)
	require.Error(t, err)
	var serr *enclave.SessionError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, enclave.ErrCodeDecryptionFailed, serr.Code)
}

func TestEndpoint_NonceIncrementsPerMessage(t *testing.T) {
	clientKey, _ := completedPair(t)
	sealer, err := NewEndpoint("kid_1", clientKey)
	require.NoError(t, err)

	env1, err := sealer.Seal("s_roundtrip", 1, enclave.StreamEvent{Type: enclave.EventHeartbeat})
	require.NoError(t, err)
	env2, err := sealer.Seal("s_roundtrip", 2, enclave.StreamEvent{Type: enclave.EventHeartbeat})
	require.NoError(t, err)

	require.NotEqual(t, env1.NonceB64, env2.NonceB64)
}

func TestEndpoint_ExpiredAfterMaxMessages(t *testing.T) {
	clientKey, _ := completedPair(t)
	sealer, err := NewEndpoint("kid_1", clientKey)
	require.NoError(t, err)
	sealer.counter = maxMessagesPerKey

	require.True(t, sealer.Expired())
	_, err = sealer.Seal("s_roundtrip", 1, enclave.StreamEvent{Type: enclave.EventHeartbeat})
	require.Error(t, err)
	var serr *enclave.SessionError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, enclave.ErrCodeKeyExpired, serr.Code)
}
