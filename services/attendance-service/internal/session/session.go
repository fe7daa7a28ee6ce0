package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/model"
	"github.com/vasapolrittideah/school-attendance-api/shared/auth"
)

// Claims are the signed contents of a session token.
type Claims struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	UserType string `json:"userType"`
	jwt.RegisteredClaims
}

// Codec mints and validates session tokens with a single process-wide secret.
type Codec struct {
	jwtAuth auth.JWTAuthenticator
	secret  string
	ttl     time.Duration
	now     func() time.Time
}

// NewCodec creates a Codec that signs with secret and issues tokens valid for ttl.
func NewCodec(jwtAuth auth.JWTAuthenticator, secret string, ttl time.Duration) *Codec {
	return &Codec{
		jwtAuth: jwtAuth,
		secret:  secret,
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock returns a copy of the codec that mints and validates against now.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	clone := *c
	clone.now = now
	clone.jwtAuth = c.jwtAuth.WithClock(now)
	return &clone
}

// Mint signs a token naming the user, valid for the codec's ttl from now.
// Each token carries a random jti.
func (c *Codec) Mint(userID, email string, role model.Role) (string, error) {
	now := c.now()
	claims := Claims{
		UserID:   userID,
		Email:    email,
		UserType: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			Issuer:    c.jwtAuth.Issuer(),
			Audience:  jwt.ClaimStrings{c.jwtAuth.Audience()},
		},
	}

	return c.jwtAuth.GenerateToken(claims, c.secret)
}

// Validate returns the claims of a well-formed, correctly signed and unexpired token.
// Failures are auth.ErrTokenMissing, auth.ErrTokenExpired or auth.ErrTokenInvalid.
func (c *Codec) Validate(token string) (*Claims, error) {
	var claims Claims
	if _, err := c.jwtAuth.ValidateTokenWithClaims(token, c.secret, &claims); err != nil {
		return nil, err
	}

	if claims.UserID == "" {
		return nil, auth.ErrTokenInvalid
	}

	return &claims, nil
}
