package session

import (
	"strings"

	paseto "aidanwoods.dev/go-paseto"
)

type pasetoV4Codec struct {
	issuer string
	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
}

// NewPasetoV4Codec builds a Codec based on PASETO v4.public.
//
// Tokens carry iss, iat, jti (the nonce) and an "email" claim. They carry no
// exp: lifetime is owned by the session record so Refresh can extend it
// without reissuing the token.
func NewPasetoV4Codec(cfg Config) (Codec, error) {
	secret, err := paseto.NewV4AsymmetricSecretKeyFromHex(cfg.PasetoV4SecretKeyHex)
	if err != nil {
		return nil, ErrConfig
	}

	return &pasetoV4Codec{
		issuer: cfg.Issuer,
		secret: secret,
		public: secret.Public(),
	}, nil
}

func (c *pasetoV4Codec) Encode(cl Claims) (string, error) {
	email := strings.TrimSpace(cl.Email)
	if email == "" {
		return "", ErrInvalidIdentity
	}

	tok := paseto.NewToken()
	tok.SetIssuer(c.issuer)
	tok.SetIssuedAt(cl.IssuedAt)
	tok.SetJti(cl.Nonce)
	if err := tok.Set("email", email); err != nil {
		return "", err
	}

	return tok.V4Sign(c.secret, nil), nil
}

func (c *pasetoV4Codec) Decode(raw string) (Claims, error) {
	if raw == "" || len(raw) > maxTokenLen {
		return Claims{}, ErrInvalidToken
	}

	// Fresh parser per call so rules never accumulate.
	p := paseto.NewParserWithoutExpiryCheck()
	p.AddRule(paseto.IssuedBy(c.issuer))

	parsed, err := p.ParseV4Public(c.public, raw, nil)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	email, err := parsed.GetString("email")
	if err != nil || strings.TrimSpace(email) == "" {
		return Claims{}, ErrInvalidToken
	}
	iat, err := parsed.GetIssuedAt()
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	jti, err := parsed.GetJti()
	if err != nil || jti == "" {
		return Claims{}, ErrInvalidToken
	}

	return Claims{Email: email, IssuedAt: iat.UTC(), Nonce: jti}, nil
}
