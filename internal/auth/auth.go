package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/katinat-coffee/ordering-backend/internal/apperr"
)

// Role of an authenticated caller.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	RoleStaff    Role = "staff"
)

// Identity is what a verified credential resolves to.
type Identity struct {
	UserID  string
	Role    Role
	StoreID string // set for staff
	Email   string
}

type claims struct {
	Role    string `json:"role"`
	StoreID string `json:"store_id,omitempty"`
	Email   string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Verifier issues and verifies the bearer tokens used by both the REST
// surface and the fan-out handshake.
type Verifier struct {
	secret  []byte
	ttl     time.Duration
	nowFunc func() time.Time
}

func NewVerifier(secret string, ttl time.Duration) *Verifier {
	return &Verifier{secret: []byte(secret), ttl: ttl, nowFunc: time.Now}
}

// Issue signs a token for the identity. Used by the identity-provider
// surface and by tests.
func (v *Verifier) Issue(ident Identity) (string, error) {
	now := v.nowFunc()
	c := claims{
		Role:    string(ident.Role),
		StoreID: ident.StoreID,
		Email:   ident.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ident.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
}

// Verify parses and validates a token, returning the caller's identity.
func (v *Verifier) Verify(token string) (Identity, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.nowFunc))
	if err != nil || !parsed.Valid {
		return Identity{}, apperr.Unauthorized("invalid or expired token")
	}

	role := Role(c.Role)
	switch role {
	case RoleCustomer, RoleAdmin, RoleStaff:
	default:
		return Identity{}, apperr.Unauthorized("unknown role %q", c.Role)
	}

	return Identity{
		UserID:  c.Subject,
		Role:    role,
		StoreID: c.StoreID,
		Email:   c.Email,
	}, nil
}
