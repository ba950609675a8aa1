package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the payload embedded in a signed token.
type Claims struct {
	Username  string `json:"username"`
	TokenID   string `json:"jti"`
	ExpiresAt int64  `json:"exp"` // unix seconds
}

// Signer mints and checks bearer tokens: base64url(claims JSON) + "." +
// hex(HMAC-SHA256(payload)). Stateless; possession of the secret is the only
// authority.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

func NewSigner(secret []byte, ttl time.Duration) *Signer {
	return &Signer{secret: secret, ttl: ttl}
}

func (s *Signer) Issue(username string, now time.Time) (string, error) {
	claims := Claims{
		Username:  username,
		TokenID:   uuid.NewString(),
		ExpiresAt: now.Add(s.ttl).Unix(),
	}
	raw, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	payload := base64.RawURLEncoding.EncodeToString(raw)
	return payload + "." + s.sign(payload), nil
}

func (s *Signer) Verify(token string, now time.Time) (Claims, error) {
	var claims Claims
	payload, sig, ok := strings.Cut(token, ".")
	if !ok {
		return claims, ErrTokenInvalid
	}
	if !hmac.Equal([]byte(s.sign(payload)), []byte(strings.ToLower(sig))) {
		return claims, ErrTokenInvalid
	}
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return claims, ErrTokenInvalid
	}
	if err := json.Unmarshal(raw, &claims); err != nil {
		return claims, ErrTokenInvalid
	}
	if claims.Username == "" {
		return claims, ErrTokenInvalid
	}
	if now.Unix() >= claims.ExpiresAt {
		return claims, ErrTokenExpired
	}
	return claims, nil
}

func (s *Signer) sign(payload string) string {
	h := hmac.New(sha256.New, s.secret)
	_, _ = h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}
