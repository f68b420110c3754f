package stubauth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-portal-sessions/tabs"
)

// sessionClaims is the payload of the HS256 tokens this backend issues.
// Tokens are opaque to the portal client; only this backend inspects them.
type sessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

func (s *Server) mintToken(userID, email, name string, role tabs.Role) (string, string, error) {
	now := s.nowTime()
	jti := uuid.NewString()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
		Email: email,
		Name:  name,
		Role:  string(role),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", "", errors.Wrap(err, "[Server.mintToken] sign")
	}
	return token, jti, nil
}

func (s *Server) parseToken(raw string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.nowTime))
	if err != nil {
		return nil, errors.Wrap(err, "[Server.parseToken]")
	}
	if !token.Valid {
		return nil, errors.New("[Server.parseToken] invalid token")
	}
	return claims, nil
}

// roleHold records which account currently owns a role and until when.
// Holds expire with their token; the client's logout is a local clear only,
// so expiry is what eventually frees a role abandoned without a switch.
type roleHold struct {
	email     string
	jti       string
	expiresAt time.Time
}
