package capability

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jose "github.com/go-jose/go-jose/v3"
)

// KeySize is the required key length in bytes (AES-256-GCM).
const KeySize = 32

var (
	// ErrDecode is returned for every token that cannot be used: bad
	// encoding, wrong key, failed authentication tag or bad payload.
	ErrDecode = errors.New("capability token cannot be decoded")
	// ErrInvalidKey is returned when a key is not exactly [KeySize] bytes.
	ErrInvalidKey = errors.New("capability key must be 32 bytes")
	// ErrEmptyPayload is returned by Encode when selector or token is empty.
	ErrEmptyPayload = errors.New("capability payload requires selector and token")
)

// Payload is the continuation state carried by the client between code
// verification and password reset.
type Payload struct {
	Selector string `json:"selector"`
	Token    string `json:"token"`
}

// Codec seals payloads into compact JWE strings (dir + A256GCM) under one
// active key. There is no fallback to other keys.
type Codec struct {
	key       []byte
	encrypter jose.Encrypter
}

// NewCodec builds a codec for key. The key is copied.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	k := make([]byte, KeySize)
	copy(k, key)

	enc, err := jose.NewEncrypter(
		jose.A256GCM,
		jose.Recipient{Algorithm: jose.DIRECT, Key: k},
		(&jose.EncrypterOptions{}).WithContentType("capability+json"),
	)
	if err != nil {
		return nil, fmt.Errorf("create encrypter: %w", err)
	}
	return &Codec{key: k, encrypter: enc}, nil
}

// Encode seals (selector, token) and returns the opaque transport string.
func (c *Codec) Encode(selector, token string) (string, error) {
	if selector == "" || token == "" {
		return "", ErrEmptyPayload
	}
	plaintext, err := json.Marshal(Payload{Selector: selector, Token: token})
	if err != nil {
		return "", err
	}
	obj, err := c.encrypter.Encrypt(plaintext)
	if err != nil {
		return "", fmt.Errorf("encrypt capability payload: %w", err)
	}
	return obj.CompactSerialize()
}

// Decode opens an opaque token. Any failure yields [ErrDecode] without
// distinguishing tampering from malformed input.
func (c *Codec) Decode(opaque string) (Payload, error) {
	if opaque == "" || strings.Count(opaque, ".") != 4 {
		return Payload{}, ErrDecode
	}
	obj, err := jose.ParseEncrypted(opaque)
	if err != nil {
		return Payload{}, ErrDecode
	}
	if obj.Header.Algorithm != string(jose.DIRECT) {
		return Payload{}, ErrDecode
	}
	plaintext, err := obj.Decrypt(c.key)
	if err != nil {
		return Payload{}, ErrDecode
	}

	dec := json.NewDecoder(bytes.NewReader(plaintext))
	dec.DisallowUnknownFields()
	var p Payload
	if err := dec.Decode(&p); err != nil {
		return Payload{}, ErrDecode
	}
	if dec.More() || p.Selector == "" || p.Token == "" {
		return Payload{}, ErrDecode
	}
	return p, nil
}

// GenerateKey returns a fresh random key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// ParseKey decodes a hex-encoded key as provisioned in configuration.
func ParseKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil || len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	return key, nil
}
