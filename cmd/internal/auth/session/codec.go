package session

import (
	"crypto/hmac"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"sessiond/cmd/security/token"
)

// maxTokenLen bounds inbound tokens before any decoding work.
const maxTokenLen = 4096

// Claims is the content carried inside a token.
type Claims struct {
	Email    string
	IssuedAt time.Time
	Nonce    string
}

// Codec turns claims into an opaque token and back.
// Decode must fail with ErrInvalidToken for anything it did not produce.
type Codec interface {
	Encode(c Claims) (string, error)
	Decode(tok string) (Claims, error)
}

// NewCodec builds the codec selected by cfg. hmacKey is required for FormatHMAC.
func NewCodec(cfg Config, hmacKey []byte) (Codec, error) {
	switch cfg.Format {
	case FormatHMAC, "":
		return NewHMACCodec(hmacKey)
	case FormatPaseto:
		return NewPasetoV4Codec(cfg)
	default:
		return nil, ErrConfig
	}
}

type hmacCodec struct {
	key []byte
}

// NewHMACCodec returns the default codec.
//
// Tokens are base64url(payload) "." base64url(sig) with payload
// "<email>:<issuedAtMillis>:<nonce>" and sig = HMAC-SHA256 under a subkey of key.
func NewHMACCodec(key []byte) (Codec, error) {
	if len(key) == 0 {
		return nil, ErrConfig
	}
	return &hmacCodec{key: token.DeriveKey(key, "sessiond.claims.v1")}, nil
}

func (c *hmacCodec) Encode(cl Claims) (string, error) {
	email := strings.TrimSpace(cl.Email)
	if email == "" {
		return "", ErrInvalidIdentity
	}
	if strings.ContainsAny(cl.Nonce, ":.") || cl.Nonce == "" {
		return "", errors.New("session: nonce must be non-empty base64url")
	}

	payload := email + ":" + strconv.FormatInt(cl.IssuedAt.UnixMilli(), 10) + ":" + cl.Nonce
	sig := token.SignHMACSHA256([]byte(payload), c.key)

	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(payload)) + "." + enc.EncodeToString(sig), nil
}

func (c *hmacCodec) Decode(tok string) (Claims, error) {
	if tok == "" || len(tok) > maxTokenLen {
		return Claims{}, ErrInvalidToken
	}

	p64, s64, ok := strings.Cut(tok, ".")
	if !ok {
		return Claims{}, ErrInvalidToken
	}

	enc := base64.RawURLEncoding
	payload, err := enc.DecodeString(p64)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	sig, err := enc.DecodeString(s64)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	if !hmac.Equal(sig, token.SignHMACSHA256(payload, c.key)) {
		return Claims{}, ErrInvalidToken
	}

	return parsePayload(string(payload))
}

// parsePayload splits from the right: the email may itself contain ':'.
func parsePayload(p string) (Claims, error) {
	i := strings.LastIndexByte(p, ':')
	if i < 0 {
		return Claims{}, ErrInvalidToken
	}
	nonce := p[i+1:]
	rest := p[:i]

	j := strings.LastIndexByte(rest, ':')
	if j < 0 {
		return Claims{}, ErrInvalidToken
	}
	email := rest[:j]
	ms, err := strconv.ParseInt(rest[j+1:], 10, 64)
	if err != nil || ms < 0 {
		return Claims{}, ErrInvalidToken
	}

	if strings.TrimSpace(email) == "" || nonce == "" {
		return Claims{}, ErrInvalidToken
	}

	return Claims{
		Email:    email,
		IssuedAt: time.UnixMilli(ms).UTC(),
		Nonce:    nonce,
	}, nil
}
