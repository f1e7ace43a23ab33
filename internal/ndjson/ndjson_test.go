package ndjson

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	enclave "github.com/jonwraymond/enclavejs"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	schema, err := CompileEnvelopeSchema()
	require.NoError(t, err)

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	ev := enclave.StreamEvent{
		ProtocolVersion: enclave.ProtocolVersion,
		SessionID:       "s_abc",
		Seq:             1,
		Type:            enclave.EventHeartbeat,
		Payload:         enclave.HeartbeatPayload{},
	}
	require.NoError(t, enc.Encode(ev))

	dec := NewDecoder(&buf, schema)
	got, ok := dec.Next()
	require.True(t, ok)
	require.Equal(t, ev.SessionID, got.SessionID)
	require.Equal(t, ev.Seq, got.Seq)
	require.Equal(t, ev.Type, got.Type)
	require.Empty(t, dec.Errors())

	_, ok = dec.Next()
	require.False(t, ok)
}

func TestDecoder_SkipsMalformedLineAndContinues(t *testing.T) {
	schema, err := CompileEnvelopeSchema()
	require.NoError(t, err)

	input := strings.Join([]string{
		`not json at all`,
		`{"protocolVersion":1,"sessionId":"s_1","seq":0,"type":"heartbeat","payload":{}}`,
	}, "\n")

	dec := NewDecoder(strings.NewReader(input), schema)
	ev, ok := dec.Next()
	require.True(t, ok)
	require.Equal(t, enclave.EventHeartbeat, ev.Type)

	errs := dec.Errors()
	require.Len(t, errs, 1)
	require.Equal(t, 1, errs[0].Line)
	require.Equal(t, "not json at all", errs[0].Content)
}

func TestDecoder_RejectsSchemaInvalidLine(t *testing.T) {
	schema, err := CompileEnvelopeSchema()
	require.NoError(t, err)

	input := `{"sessionId":"s_1","seq":0,"type":"heartbeat"}` + "\n"
	dec := NewDecoder(strings.NewReader(input), schema)

	_, ok := dec.Next()
	require.False(t, ok)
	require.Len(t, dec.Errors(), 1)
}

func TestDecoder_RejectsUnknownEventType(t *testing.T) {
	input := `{"protocolVersion":1,"sessionId":"s_1","seq":0,"type":"bogus","payload":{}}` + "\n"
	dec := NewDecoder(strings.NewReader(input), nil)

	_, ok := dec.Next()
	require.False(t, ok)
	require.Len(t, dec.Errors(), 1)
}

func TestDecoder_TruncatesLongContentInParseError(t *testing.T) {
	longGarbage := strings.Repeat("x", 200)
	dec := NewDecoder(strings.NewReader(longGarbage), nil)

	_, ok := dec.Next()
	require.False(t, ok)
	require.Len(t, dec.Errors(), 1)
	require.Len(t, dec.Errors()[0].Content, 100)
}
