// Package authority issues and verifies session-scoped role tokens.
// The relay treats it as an opaque capability: issue(sessionID, role)
// and verify(token) -> (sessionID, role).
package authority

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	SessionID string
	Role      string
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Authority struct {
	secret []byte
}

func New(secret string) *Authority {
	return &Authority{
		secret: []byte(secret),
	}
}

// Enabled reports whether token verification is configured at all. With
// no secret the relay accepts claimed identities as-is.
func (a *Authority) Enabled() bool {
	return len(a.secret) > 0
}

// Issue creates a token binding the given role to the session until the
// session's expiry deadline.
func (a *Authority) Issue(sessionID, role string, expiresAt time.Time) (string, error) {
	claims := tokenClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Verify decodes and validates a token. The caller is responsible for
// matching the returned claims against the identity the client claims.
func (a *Authority) Verify(tokenString string) (*Claims, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, NewVerifyError("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, NewVerifyError(err.Error())
	}
	if !token.Valid {
		return nil, NewVerifyError("token is not valid")
	}

	return &Claims{
		SessionID: claims.Subject,
		Role:      claims.Role,
	}, nil
}
