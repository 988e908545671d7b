package identity

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrMissingSubject = errors.New("token subject is required")
)

// Claims are the JWT claims accepted by the storefront. The subject is the
// account id.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// Validator checks HS256 tokens issued by the account provider.
type Validator struct {
	secret []byte
	parser *jwt.Parser
}

func NewValidator(secret []byte, issuer string) *Validator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &Validator{secret: secret, parser: jwt.NewParser(opts...)}
}

// Validate returns the account id carried by tokenStr.
func (v *Validator) Validate(tokenStr string) (string, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrMissingSubject
	}
	return claims.Subject, nil
}

// SubjectOf reads the subject without verifying the signature. Clients use it
// to learn their own account id; the server always verifies.
func SubjectOf(tokenStr string) (string, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", ErrMissingSubject
	}
	return claims.Subject, nil
}
