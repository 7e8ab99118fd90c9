package crypto

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() string {
	return base64.URLEncoding.EncodeToString([]byte(strings.Repeat("k", keySize)))
}

func TestSealOpen(t *testing.T) {
	s, err := NewSealer(testKey())
	require.NoError(t, err)

	token, err := s.Seal(map[string]interface{}{"smart": "verified", "temp": 41.5})
	require.NoError(t, err)
	assert.NotContains(t, token, "verified")

	var out map[string]interface{}
	require.NoError(t, s.Open(token, &out))
	assert.Equal(t, "verified", out["smart"])
	assert.Equal(t, 41.5, out["temp"])
}

func TestSealUsesFreshNonce(t *testing.T) {
	s, err := NewSealer(testKey())
	require.NoError(t, err)
	a, err := s.Seal("x")
	require.NoError(t, err)
	b, err := s.Seal("x")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpenRejectsTampering(t *testing.T) {
	s, err := NewSealer(testKey())
	require.NoError(t, err)
	token, err := s.Seal("payload")
	require.NoError(t, err)

	raw, _ := base64.URLEncoding.DecodeString(token)
	raw[len(raw)-1] ^= 0xff
	var out string
	assert.ErrorIs(t, s.Open(base64.URLEncoding.EncodeToString(raw), &out), ErrDecrypt)
	assert.ErrorIs(t, s.Open("not base64!", &out), ErrDecrypt)
}

func TestNewSealerValidatesKey(t *testing.T) {
	_, err := NewSealer("short")
	assert.Error(t, err)
	_, err = NewSealer(base64.StdEncoding.EncodeToString([]byte("sixteen-byte-key")))
	assert.Error(t, err)
}
