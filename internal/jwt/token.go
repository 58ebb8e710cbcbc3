package jwt

import (
	"errors"
	"fmt"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	"github.com/smallbiznis/smallbiznis-users/internal/domain"
)

// ErrInvalidToken covers tampered, expired, and malformed tokens alike.
var ErrInvalidToken = errors.New("invalid access token")

// AccessTokenClaims are the custom claims carried next to the standard set.
type AccessTokenClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Generator issues and verifies stateless HS256 access tokens. There is no
// revocation list; expiry alone bounds validity.
type Generator struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewGenerator creates a token generator.
func NewGenerator(secret []byte, issuer string, ttl time.Duration) *Generator {
	return &Generator{secret: secret, issuer: issuer, ttl: ttl}
}

// Issue signs a token encoding the account's username and role.
func (g *Generator) Issue(account domain.Account) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: g.secret},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("create signer: %w", err)
	}

	now := time.Now()
	std := jwt.Claims{
		Subject:  account.Username,
		Issuer:   g.issuer,
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(g.ttl)),
	}
	custom := AccessTokenClaims{
		Username: account.Username,
		Role:     string(account.Role),
	}

	raw, err := jwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return raw, nil
}

// Decode verifies the signature, issuer, and expiry of a token and returns its
// claims. Any failure is reported as ErrInvalidToken.
func (g *Generator) Decode(raw string) (*AccessTokenClaims, error) {
	parsed, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, ErrInvalidToken
	}

	var (
		std    jwt.Claims
		custom AccessTokenClaims
	)
	if err := parsed.Claims(g.secret, &std, &custom); err != nil {
		return nil, ErrInvalidToken
	}
	if err := std.Validate(jwt.Expected{Issuer: g.issuer, Time: time.Now()}); err != nil {
		return nil, ErrInvalidToken
	}
	if custom.Username == "" {
		custom.Username = std.Subject
	}
	if custom.Username == "" || custom.Role == "" {
		return nil, ErrInvalidToken
	}
	return &custom, nil
}
