package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid session token")

// ClerkVerifier checks networkless Clerk session tokens against the instance's PEM public key.
type ClerkVerifier struct {
	key               *rsa.PublicKey
	authorizedParties map[string]struct{}
	leeway            time.Duration
	now               func() time.Time
}

type clerkClaims struct {
	jwt.RegisteredClaims

	AuthorizedParty string `json:"azp,omitempty"`
	SessionID       string `json:"sid,omitempty"`
}

func NewClerkVerifier(pemKey string, authorizedParties map[string]struct{}) (*ClerkVerifier, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemKey))
	if err != nil {
		return nil, fmt.Errorf("parse clerk public key: %w", err)
	}
	parties := make(map[string]struct{}, len(authorizedParties))
	for k := range authorizedParties {
		parties[k] = struct{}{}
	}
	return &ClerkVerifier{
		key:               key,
		authorizedParties: parties,
		leeway:            5 * time.Second,
		now:               time.Now,
	}, nil
}

func (v *ClerkVerifier) Verify(token string) (*Principal, error) {
	if v == nil || token == "" {
		return nil, ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	claims := &clerkClaims{}
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	if len(v.authorizedParties) > 0 && claims.AuthorizedParty != "" {
		if _, ok := v.authorizedParties[claims.AuthorizedParty]; !ok {
			return nil, fmt.Errorf("%w: unauthorized party %q", ErrInvalidToken, claims.AuthorizedParty)
		}
	}

	return &Principal{UserID: claims.Subject, SessionID: claims.SessionID}, nil
}
