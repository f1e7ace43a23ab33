package ndjson

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// envelopeSchemaJSON validates the StreamEvent envelope shared by every
// event on the wire (§3/§4.6). Payload itself is left unconstrained here;
// its per-type shape is enforced by Go's own struct unmarshaling.
const envelopeSchemaJSON = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["protocolVersion", "sessionId", "seq", "type"],
	"properties": {
		"protocolVersion": {"type": "integer"},
		"sessionId": {"type": "string"},
		"seq": {"type": "integer", "minimum": 0},
		"type": {
			"type": "string",
			"enum": ["session_init", "stdout", "log", "tool_call", "tool_result_applied", "heartbeat", "error", "final"]
		},
		"payload": {}
	}
}`

// CompileEnvelopeSchema compiles the envelope schema used to validate every
// decoded line before it's dispatched (§4.6).
func CompileEnvelopeSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("envelope.json", strings.NewReader(envelopeSchemaJSON)); err != nil {
		return nil, err
	}
	return c.Compile("envelope.json")
}
