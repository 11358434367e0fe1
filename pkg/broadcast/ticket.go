package broadcast

import (
	"errors"
	"fmt"
	"time"

	"chatboard/pkg/cache"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidTicket = errors.New("invalid subscription ticket")

// Tickets issues and checks short-lived HS256 tokens that authorize a
// websocket connection. A Tickets with an empty secret is disabled and
// accepts every connection. Each ticket opens one connection.
type Tickets struct {
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
	redeemed *cache.Cache // jti -> redeemed, unbounded; each entry expires with its ticket
}

func NewTickets(secret string, ttl time.Duration) *Tickets {
	if ttl <= 0 {
		ttl = time.Minute
	}
	t := &Tickets{secret: []byte(secret), ttl: ttl, now: time.Now}
	if t.Enabled() {
		t.redeemed = cache.New(0, time.Minute)
	}
	return t
}

// Close releases the redeemed-ticket registry.
func (t *Tickets) Close() {
	if t != nil && t.redeemed != nil {
		t.redeemed.Close()
	}
}

func (t *Tickets) Enabled() bool {
	return t != nil && len(t.secret) > 0
}

// Issue signs a ticket for the given client address.
func (t *Tickets) Issue(addr string) (string, time.Time, error) {
	if !t.Enabled() {
		return "", time.Time{}, errors.New("subscription tickets are disabled")
	}
	issued := t.now()
	expires := issued.Add(t.ttl)
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   addr,
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign ticket: %w", err)
	}
	return signed, expires, nil
}

// Verify checks token and marks it redeemed. Any token is accepted when
// tickets are disabled.
func (t *Tickets) Verify(token string) error {
	if !t.Enabled() {
		return nil
	}
	if token == "" {
		return ErrInvalidTicket
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return fmt.Errorf("%w: %v", ErrInvalidTicket, err)
	}
	if claims.ID == "" {
		return fmt.Errorf("%w: missing jti", ErrInvalidTicket)
	}
	remaining := claims.ExpiresAt.Sub(t.now())
	if !t.redeemed.SetIfAbsent(claims.ID, struct{}{}, remaining+time.Second) {
		return fmt.Errorf("%w: already used", ErrInvalidTicket)
	}
	return nil
}
