package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token is a signed access token.
type Token struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Claims represents the JWT payload.
type Claims struct {
	Role    Role   `json:"role"`
	Email   string `json:"email"`
	RollNo  string `json:"rollNo,omitempty"`
	Section string `json:"section,omitempty"`
	jwt.RegisteredClaims
}

// UserID is the M_/T_/S_ prefixed account id.
func (c Claims) UserID() string { return c.Subject }

// Issue signs an access token for the identity.
func Issue(id Identity, issuer, key string, ttl time.Duration, now time.Time) (Token, error) {
	exp := now.Add(ttl)
	claims := Claims{
		Role:    id.Role,
		Email:   id.Email,
		RollNo:  id.RollNo,
		Section: id.Section,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id.ID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: signed, ExpiresAt: exp}, nil
}

// Parse validates a token and returns claims. Expiry is judged against now,
// or the wall clock when now is nil.
func Parse(tokenStr, key, issuer string, now func() time.Time) (Claims, error) {
	if now == nil {
		now = time.Now
	}
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	}, jwt.WithTimeFunc(now))
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	if !claims.Role.Valid() {
		return Claims{}, errors.New("unknown role")
	}
	return *claims, nil
}
