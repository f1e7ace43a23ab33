package serialize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitize_StripsDunderKeys(t *testing.T) {
	out, err := Sanitize(map[string]interface{}{
		"ok":        1.0,
		"__proto__": "evil",
		"__secret":  "nope",
	})
	require.NoError(t, err)
	m := out.(map[string]interface{})
	require.Equal(t, 1.0, m["ok"])
	_, hasProto := m["__proto__"]
	require.False(t, hasProto)
	_, hasSecret := m["__secret"]
	require.False(t, hasSecret)
}

func TestSanitize_RejectsCycle(t *testing.T) {
	m := map[string]interface{}{}
	m["self"] = m
	_, err := Sanitize(m)
	require.ErrorIs(t, err, ErrCyclic)
}

func TestSanitize_RejectsNonJSONValue(t *testing.T) {
	_, err := Sanitize(func() {})
	require.ErrorIs(t, err, ErrNotSerializable)
}

func TestCapSize_RejectsOverflow(t *testing.T) {
	big := make([]interface{}, 0, 100)
	for i := 0; i < 100; i++ {
		big = append(big, "0123456789")
	}
	_, err := CapSize(big, 50)
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestSanitizeOrRef_SubstitutesRefTokenOnOverflow(t *testing.T) {
	big := make([]interface{}, 0, 100)
	for i := 0; i < 100; i++ {
		big = append(big, "0123456789")
	}
	out, err := SanitizeOrRef(big, 50)
	require.NoError(t, err)
	ref, ok := out.(RefToken)
	require.True(t, ok)
	require.True(t, ref.Ref.ID.Valid())
}
