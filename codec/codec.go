// Package codec encodes and decodes the request/response body envelopes used
// by the Matrix web client: plain base64 JSON, and AES-256-GCM encrypted JSON
// written as base64(iv) + "." + base64(ciphertext).
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/RunningKuma/matrix-on-vscode/errors"
	"github.com/RunningKuma/matrix-on-vscode/jsonv"
)

// Envelope types understood by Codec.
const (
	Base64 = "base64"
	AESGCM = "aes-256-gcm"
)

const ivSize = 12

// DefaultKey is the AES-256 key shared with the Matrix web client.
var DefaultKey = []byte{
	139, 72, 187, 152, 69, 41, 31, 86, 194, 221, 37, 192, 102, 32, 190, 117,
	241, 26, 34, 253, 76, 62, 177, 182, 83, 236, 173, 157, 25, 41, 28, 8,
}

var ErrKeySize = errors.New("AES-256 key must be 32 bytes")

// Codec implements both envelope types with a fixed key.
type Codec struct {
	aead cipher.AEAD
	rand io.Reader
}

// New creates a Codec using key for aes-256-gcm envelopes.
func New(key []byte) (*Codec, error) {
	if len(key) != 32 {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.NewError("codec", "cannot create cipher", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, errors.NewError("codec", "cannot create GCM", err)
	}
	return &Codec{aead: aead, rand: rand.Reader}, nil
}

// NewFromHex is New with a hex-encoded key. An empty string selects
// DefaultKey.
func NewFromHex(key string) (*Codec, error) {
	if key == "" {
		return New(DefaultKey)
	}
	raw, err := hex.DecodeString(strings.TrimSpace(key))
	if err != nil {
		return nil, errors.NewError("codec", "invalid hex key", err)
	}
	return New(raw)
}

// Default returns a Codec using DefaultKey.
func Default() *Codec {
	c, err := New(DefaultKey)
	if err != nil {
		panic(err)
	}
	return c
}

// Decode unwraps body according to typ and parses the JSON inside. It
// reports false for unknown types, malformed base64, failed decryption,
// invalid UTF-8 and invalid JSON.
func (c *Codec) Decode(typ, body string) (jsonv.Value, bool) {
	var plain []byte
	switch typ {
	case AESGCM:
		parts := strings.Split(body, ".")
		if len(parts) != 2 {
			return jsonv.Value{}, false
		}
		iv, ok := decodeBase64(parts[0])
		if !ok || len(iv) != ivSize {
			return jsonv.Value{}, false
		}
		data, ok := decodeBase64(parts[1])
		if !ok {
			return jsonv.Value{}, false
		}
		out, err := c.aead.Open(nil, iv, data, nil)
		if err != nil {
			return jsonv.Value{}, false
		}
		plain = out
	case Base64:
		out, ok := decodeBase64(body)
		if !ok {
			return jsonv.Value{}, false
		}
		plain = out
	default:
		return jsonv.Value{}, false
	}

	if !utf8.Valid(plain) {
		return jsonv.Value{}, false
	}
	// Some server builds pad the plaintext with a single NUL.
	if n := len(plain); n > 0 && plain[n-1] == 0 {
		plain = plain[:n-1]
	}
	v, err := jsonv.Parse(plain)
	if err != nil {
		return jsonv.Value{}, false
	}
	return v, true
}

// Encode marshals v to JSON and wraps it according to typ.
func (c *Codec) Encode(typ string, v any) (string, bool) {
	plain, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	switch typ {
	case AESGCM:
		iv := make([]byte, ivSize)
		if _, err := io.ReadFull(c.rand, iv); err != nil {
			return "", false
		}
		sealed := c.aead.Seal(nil, iv, plain, nil)
		return base64.StdEncoding.EncodeToString(iv) + "." + base64.StdEncoding.EncodeToString(sealed), true
	case Base64:
		return base64.StdEncoding.EncodeToString(plain), true
	}
	return "", false
}

// decodeBase64 accepts standard and URL-safe alphabets, with or without
// padding, ignoring embedded whitespace.
func decodeBase64(s string) ([]byte, bool) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		case '-':
			return '+'
		case '_':
			return '/'
		}
		return r
	}, s)
	s = strings.TrimRight(s, "=")
	out, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return nil, false
	}
	return out, true
}
