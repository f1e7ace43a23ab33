package enclave

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// SessionID is a branded identifier for a session, always prefixed "s_".
type SessionID string

// CallID is a branded identifier for a single tool invocation, always prefixed "c_".
type CallID string

// RefID is a branded identifier for a RefToken, always prefixed "ref_".
type RefID string

const (
	sessionIDPrefix = "s_"
	callIDPrefix    = "c_"
	refIDPrefix     = "ref_"
)

// NewSessionID generates a fresh SessionID.
func NewSessionID() SessionID {
	return SessionID(sessionIDPrefix + uuid.NewString())
}

// NewCallID generates a fresh CallID.
func NewCallID() CallID {
	return CallID(callIDPrefix + uuid.NewString())
}

// NewRefID generates a fresh RefID.
func NewRefID() RefID {
	return RefID(refIDPrefix + uuid.NewString())
}

// Valid reports whether id carries the "s_" prefix and a non-empty suffix.
func (id SessionID) Valid() bool {
	return hasPrefixedSuffix(string(id), sessionIDPrefix)
}

func (id CallID) Valid() bool {
	return hasPrefixedSuffix(string(id), callIDPrefix)
}

func (id RefID) Valid() bool {
	return hasPrefixedSuffix(string(id), refIDPrefix)
}

func (id CallID) String() string    { return string(id) }
func (id SessionID) String() string { return string(id) }
func (id RefID) String() string     { return string(id) }

func hasPrefixedSuffix(s, prefix string) bool {
	return len(s) > len(prefix) && strings.HasPrefix(s, prefix)
}

// ParseSessionID validates and returns s as a SessionID.
func ParseSessionID(s string) (SessionID, error) {
	id := SessionID(s)
	if !id.Valid() {
		return "", fmt.Errorf("%w: session id %q", ErrInvalidIdentifier, s)
	}
	return id, nil
}

// ParseCallID validates and returns s as a CallID.
func ParseCallID(s string) (CallID, error) {
	id := CallID(s)
	if !id.Valid() {
		return "", fmt.Errorf("%w: call id %q", ErrInvalidIdentifier, s)
	}
	return id, nil
}

// ParseRefID validates and returns s as a RefID.
func ParseRefID(s string) (RefID, error) {
	id := RefID(s)
	if !id.Valid() {
		return "", fmt.Errorf("%w: ref id %q", ErrInvalidIdentifier, s)
	}
	return id, nil
}
