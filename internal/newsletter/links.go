package newsletter

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LinkPurpose restricts what a signed link token may be used for.
type LinkPurpose string

// Link purposes.
const (
	LinkPurposeUnsubscribe LinkPurpose = "unsubscribe"
	LinkPurposePreferences LinkPurpose = "preferences"
)

// DefaultLinkTTL is the lifetime of footer link tokens.
const DefaultLinkTTL = 30 * 24 * time.Hour

type linkClaims struct {
	Purpose LinkPurpose `json:"purpose"`
	jwt.RegisteredClaims
}

// LinkSigner issues and verifies HS256 tokens embedded in footer links.
type LinkSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewLinkSigner creates a signer. A zero ttl falls back to DefaultLinkTTL.
func NewLinkSigner(secret string, ttl time.Duration) (*LinkSigner, error) {
	if secret == "" {
		return nil, errors.New("link signing secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultLinkTTL
	}
	return &LinkSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Sign returns a token binding subscriberID to purpose.
func (s *LinkSigner) Sign(subscriberID string, purpose LinkPurpose) (string, error) {
	now := s.now()
	claims := linkClaims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subscriberID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign link token: %w", err)
	}
	return signed, nil
}

// Verify checks token and returns the subscriber id it was issued for.
func (s *LinkSigner) Verify(token string, purpose LinkPurpose) (string, error) {
	claims := &linkClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidLinkToken
	}
	if claims.Purpose != purpose || claims.Subject == "" {
		return "", ErrInvalidLinkToken
	}
	return claims.Subject, nil
}

// Links builds the absolute URLs placed in a newsletter.
type Links struct {
	BaseURL string
	Signer  *LinkSigner
}

// Business returns the public page of a business.
func (l Links) Business(slug string) string {
	return l.base() + "/business/" + url.PathEscape(slug)
}

// Footer returns the preference-management and unsubscribe URLs for a
// subscriber. Without a signer the links carry no token.
func (l Links) Footer(subscriberID string) (preferences, unsubscribe string, err error) {
	preferences = l.base() + "/preferences"
	unsubscribe = l.base() + "/api/v1/newsletter/unsubscribe"
	if l.Signer == nil {
		return preferences, unsubscribe, nil
	}

	prefToken, err := l.Signer.Sign(subscriberID, LinkPurposePreferences)
	if err != nil {
		return "", "", err
	}
	unsubToken, err := l.Signer.Sign(subscriberID, LinkPurposeUnsubscribe)
	if err != nil {
		return "", "", err
	}

	preferences += "?token=" + url.QueryEscape(prefToken)
	unsubscribe += "?token=" + url.QueryEscape(unsubToken)
	return preferences, unsubscribe, nil
}

func (l Links) base() string {
	return strings.TrimRight(l.BaseURL, "/")
}
