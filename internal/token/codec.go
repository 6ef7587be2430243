// Package token issues and verifies the signed capability tokens that let an
// invitee cancel or reschedule a booking without an account.
//
// Tokens are stateless HS256 JWTs. They carry the booking's token version,
// so bumping the version on reschedule revokes every earlier token.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"booking-service/internal/domain"
)

type Action string

const (
	ActionCancel     Action = "cancel"
	ActionReschedule Action = "reschedule"
)

const DefaultTTL = 7 * 24 * time.Hour

type Claims struct {
	Action  Action `json:"act"`
	Version int    `json:"ver"`
	jwt.RegisteredClaims
}

// Grant is what a verified token entitles its bearer to.
type Grant struct {
	BookingUUID uuid.UUID
	Action      Action
	Version     int
	ExpiresAt   time.Time
}

type Codec struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

type Option func(*Codec)

func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

func WithIssuer(issuer string) Option {
	return func(c *Codec) { c.issuer = issuer }
}

func NewCodec(secret string, ttl time.Duration, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("token secret is empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Codec{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Codec) Issue(bookingUUID uuid.UUID, action Action, version int) (string, error) {
	now := c.now()
	claims := Claims{
		Action:  action,
		Version: version,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    c.issuer,
			Subject:   bookingUUID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", action, err)
	}
	return signed, nil
}

// Verify checks signature, expiry and action, and returns the grant.
func (c *Codec) Verify(tokenStr string, expected Action) (Grant, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		return Grant{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if claims.Action != expected {
		return Grant{}, fmt.Errorf("%w: token is not valid for %s", domain.ErrUnauthorized, expected)
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Grant{}, fmt.Errorf("%w: malformed subject", domain.ErrUnauthorized)
	}

	g := Grant{BookingUUID: id, Action: claims.Action, Version: claims.Version}
	if claims.ExpiresAt != nil {
		g.ExpiresAt = claims.ExpiresAt.Time
	}
	return g, nil
}

// VerifyFor is Verify plus a check that the token names bookingUUID.
func (c *Codec) VerifyFor(tokenStr string, expected Action, bookingUUID uuid.UUID) (Grant, error) {
	g, err := c.Verify(tokenStr, expected)
	if err != nil {
		return Grant{}, err
	}
	if g.BookingUUID != bookingUUID {
		return Grant{}, fmt.Errorf("%w: token was issued for another booking", domain.ErrUnauthorized)
	}
	return g, nil
}
