package credential

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	contractx "github.com/calldeck/calldeck/agent/contract"
)

const tokenIssuer = "calldeck"

type Config struct {
	Secret string        `envconfig:"SECRET" split_words:"true" required:"true"`
	TTL    time.Duration `envconfig:"TTL" split_words:"true" default:"1h"`
}

// Issuer mints the bounded-lifetime credential a provisioned agent presents to
// the voice channel. One token per session, expiring after the configured TTL.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

var _ contractx.CredentialIssuer = (*Issuer)(nil)

func NewIssuer(cfg Config) (*Issuer, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("session token secret is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

func (i *Issuer) Issue(sessionID string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", errors.New("session id is required")
	}

	now := i.now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Parse validates a previously issued token and returns the session id it is
// scoped to.
func (i *Issuer) Parse(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("parse session token: %w", err)
	}
	return claims.Subject, nil
}
