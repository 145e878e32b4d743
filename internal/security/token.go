package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "starterkit"

var ErrInvalidToken = errors.New("invalid token")

// SessionClaims is the payload of the session cookie.
type SessionClaims struct {
	Role    string `json:"role"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

func (c *SessionClaims) UserID() string {
	return c.Subject
}

type TokenSubject struct {
	UserID  string
	Role    string
	Name    string
	Email   string
	Picture string
}

type TokenManager struct {
	secret    []byte
	maxAge    time.Duration
	updateAge time.Duration
	now       func() time.Time
}

func NewTokenManager(secret string, maxAge time.Duration, updateAge time.Duration) *TokenManager {
	return &TokenManager{
		secret:    []byte(secret),
		maxAge:    maxAge,
		updateAge: updateAge,
		now:       time.Now,
	}
}

func (m *TokenManager) MaxAge() time.Duration {
	return m.maxAge
}

// Issue signs a fresh session token with a new token id.
func (m *TokenManager) Issue(subject TokenSubject) (string, *SessionClaims, error) {
	now := m.now()
	claims := &SessionClaims{
		Role:    subject.Role,
		Name:    subject.Name,
		Email:   subject.Email,
		Picture: subject.Picture,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   subject.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.maxAge)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := m.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// NeedsRefresh reports whether the token is older than the update age.
func (m *TokenManager) NeedsRefresh(claims *SessionClaims) bool {
	if claims == nil || claims.IssuedAt == nil {
		return false
	}
	return m.now().Sub(claims.IssuedAt.Time) >= m.updateAge
}

// Refresh re-signs the claims with a slid expiry. The token id is kept so a
// sign-out revokes every token of the session.
func (m *TokenManager) Refresh(claims *SessionClaims) (string, *SessionClaims, error) {
	now := m.now()
	next := *claims
	next.IssuedAt = jwt.NewNumericDate(now)
	next.ExpiresAt = jwt.NewNumericDate(now.Add(m.maxAge))

	signed, err := m.sign(&next)
	if err != nil {
		return "", nil, err
	}
	return signed, &next, nil
}

func (m *TokenManager) Parse(tokenStr string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (m *TokenManager) sign(claims *SessionClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}
