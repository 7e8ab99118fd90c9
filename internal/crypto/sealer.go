// Package crypto seals raw telemetry payloads before they are stored.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

var ErrDecrypt = errors.New("cannot open sealed payload")

// Sealer encrypts JSON payloads with a 32-byte secretbox key.
type Sealer struct {
	key [keySize]byte
}

// NewSealer parses a base64 key (URL-safe or standard alphabet) that must decode to 32 bytes.
func NewSealer(encoded string) (*Sealer, error) {
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		raw, err = base64.StdEncoding.DecodeString(encoded)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key encoding: %w", err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", keySize, len(raw))
	}
	s := &Sealer{}
	copy(s.key[:], raw)
	return s, nil
}

// Seal marshals v and returns base64(nonce || box).
func (s *Sealer) Seal(v interface{}) (string, error) {
	plain, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to read nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], plain, &nonce, &s.key)
	return base64.URLEncoding.EncodeToString(box), nil
}

// Open reverses Seal into v.
func (s *Sealer) Open(token string, v interface{}) error {
	box, err := base64.URLEncoding.DecodeString(token)
	if err != nil || len(box) < nonceSize+secretbox.Overhead {
		return ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, &s.key)
	if !ok {
		return ErrDecrypt
	}
	return json.Unmarshal(plain, v)
}
