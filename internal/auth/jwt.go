package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Validator checks bearer tokens issued by the auth service. RS256 with
// a PEM public key in production; HS256 with a shared secret for local
// setups.
type Validator struct {
	pub    *rsa.PublicKey
	secret []byte
}

func NewRS256Validator(pubKeyPath string) (*Validator, error) {
	b, err := os.ReadFile(pubKeyPath)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, errors.New("failed to decode public key")
	}
	pubIfc, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	pub, ok := pubIfc.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not rsa public key")
	}
	return &Validator{pub: pub}, nil
}

func NewHS256Validator(secret string) *Validator {
	return &Validator{secret: []byte(secret)}
}

// Validate returns the authenticated user id carried by the token.
func (v *Validator) Validate(tokenStr string) (string, error) {
	keyFunc := func(t *jwt.Token) (interface{}, error) {
		if v.pub != nil {
			return v.pub, nil
		}
		return v.secret, nil
	}
	methods := []string{"RS256"}
	if v.pub == nil {
		methods = []string{"HS256"}
	}
	tok, err := jwt.Parse(tokenStr, keyFunc, jwt.WithValidMethods(methods))
	if err != nil {
		return "", err
	}
	if claims, ok := tok.Claims.(jwt.MapClaims); ok && tok.Valid {
		if sub, ok := claims["sub"].(string); ok && sub != "" {
			return sub, nil
		}
		if userID, ok := claims["user_id"].(string); ok && userID != "" {
			return userID, nil
		}
	}
	return "", errors.New("invalid token")
}

// FromHeader extracts the bearer token from an Authorization header.
func FromHeader(header string) (string, error) {
	const pref = "Bearer "
	if header == "" {
		return "", errors.New("missing authorization")
	}
	if !strings.HasPrefix(header, pref) || len(header) == len(pref) {
		return "", errors.New("invalid authorization")
	}
	return header[len(pref):], nil
}
