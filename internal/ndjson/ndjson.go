// Package ndjson implements the wire codec: one UTF-8 JSON event per
// line, newline-terminated, tolerant of malformed lines.
package ndjson

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	enclave "github.com/jonwraymond/enclavejs"
)

// ParseError describes one line the Decoder could not turn into a valid
// event (§4.6: "{line, error, content≤100chars}"). Parse failures never
// kill the stream; they're collected here and the decode loop continues.
type ParseError struct {
	Line    int
	Err     string
	Content string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Err, e.Content)
}

// Decoder reads NDJSON-framed StreamEvents from r, skipping empty lines and
// tolerating malformed ones.
type Decoder struct {
	scanner *bufio.Scanner
	line    int
	schema  *jsonschema.Schema
	errs    []ParseError
}

// NewDecoder wraps r. schema may be nil to skip schema validation (tests
// that don't care about wire-shape enforcement).
func NewDecoder(r io.Reader, schema *jsonschema.Schema) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	return &Decoder{scanner: sc, schema: schema}
}

// Next returns the next well-formed, schema-valid event, or false once the
// stream is exhausted. Every skipped line along the way is recorded and
// retrievable via Errors.
func (d *Decoder) Next() (*enclave.StreamEvent, bool) {
	for d.scanner.Scan() {
		d.line++
		raw := d.scanner.Text()
		if strings.TrimSpace(raw) == "" {
			continue
		}

		var generic interface{}
		if err := json.Unmarshal([]byte(raw), &generic); err != nil {
			d.record(raw, err)
			continue
		}
		if d.schema != nil {
			if err := d.schema.Validate(generic); err != nil {
				d.record(raw, err)
				continue
			}
		}

		var ev enclave.StreamEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			d.record(raw, err)
			continue
		}
		if ev.ProtocolVersion != enclave.ProtocolVersion {
			d.record(raw, fmt.Errorf("protocol version mismatch: got %d, want %d", ev.ProtocolVersion, enclave.ProtocolVersion))
			continue
		}
		if !knownEventType(ev.Type) {
			d.record(raw, fmt.Errorf("unknown event type %q, dropped", ev.Type))
			continue
		}
		return &ev, true
	}
	return nil, false
}

// Errors returns every ParseError recorded so far, in line order.
func (d *Decoder) Errors() []ParseError { return d.errs }

func (d *Decoder) record(raw string, err error) {
	content := raw
	if len(content) > 100 {
		content = content[:100]
	}
	d.errs = append(d.errs, ParseError{Line: d.line, Err: err.Error(), Content: content})
}

func knownEventType(t enclave.EventType) bool {
	switch t {
	case enclave.EventSessionInit, enclave.EventStdout, enclave.EventLog, enclave.EventToolCall,
		enclave.EventToolResultApplied, enclave.EventHeartbeat, enclave.EventError, enclave.EventFinal:
		return true
	default:
		return false
	}
}

// Encoder writes StreamEvents as NDJSON lines.
type Encoder struct {
	w io.Writer
}

// NewEncoder wraps w.
func NewEncoder(w io.Writer) *Encoder { return &Encoder{w: w} }

// Encode writes ev as one JSON line terminated by \n.
func (e *Encoder) Encode(ev enclave.StreamEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("ndjson: encode: %w", err)
	}
	b = append(b, '\n')
	_, err = e.w.Write(b)
	return err
}
