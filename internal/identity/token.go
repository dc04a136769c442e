// Package identity resolves the acting user and their companies from a
// bearer token issued by the upstream identity provider.
package identity

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/odyssey-erp/odyssey-rvu/internal/shared"
)

// Claims is the token payload understood by the service.
type Claims struct {
	CompanyIDs []int64 `json:"companies"`
	jwt.RegisteredClaims
}

// Provider verifies HS256 tokens.
type Provider struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewProvider constructs a Provider. An empty issuer disables the issuer check.
func NewProvider(secret, issuer string) *Provider {
	return &Provider{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Issue signs a token for the principal. Used by operators and tests.
func (p *Provider) Issue(principal shared.Principal, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := p.now()
	claims := &Claims{
		CompanyIDs: principal.CompanyIDs,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(principal.UserID, 10),
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

// Parse validates raw and returns the principal it names.
func (p *Provider) Parse(raw string) (shared.Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		return p.secret, nil
	}, opts...)
	if err != nil {
		return shared.Principal{}, fmt.Errorf("%w: %v", shared.ErrUnauthorized, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return shared.Principal{}, fmt.Errorf("%w: %v", shared.ErrUnauthorized, jwt.ErrTokenInvalidClaims)
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return shared.Principal{}, fmt.Errorf("%w: invalid subject", shared.ErrUnauthorized)
	}
	return shared.Principal{UserID: userID, CompanyIDs: claims.CompanyIDs}, nil
}
