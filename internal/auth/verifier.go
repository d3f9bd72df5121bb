// Package auth turns Cognito access tokens into ledger principals.
package auth

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"donationledger/pkg/types"

	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

// TokenVerifier validates a raw access token and returns the caller.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (types.Principal, error)
}

type keySetFunc func(ctx context.Context) (jwk.Set, error)

type JWKSVerifier struct {
	keySet     keySetFunc
	issuer     string
	clientID   string
	adminGroup string
}

// NewJWKSVerifier registers the issuer's JWKS endpoint with a refreshing
// cache.
func NewJWKSVerifier(ctx context.Context, config *types.Config) (*JWKSVerifier, error) {
	if config.CognitoIssuerURL == "" {
		return nil, fmt.Errorf("set COGNITO_ISSUER_URL")
	}

	cache, err := jwk.NewCache(ctx, httprc.NewClient())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize jwk cache: %w", err)
	}

	jwksURL := fmt.Sprintf("%s/.well-known/jwks.json", strings.TrimSuffix(config.CognitoIssuerURL, "/"))

	err = cache.Register(ctx, jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to register jwks url with cache: %w", err)
	}

	return &JWKSVerifier{
		keySet: func(ctx context.Context) (jwk.Set, error) {
			return cache.Lookup(ctx, jwksURL)
		},
		issuer:     config.CognitoIssuerURL,
		clientID:   config.CognitoClientID,
		adminGroup: config.AdminGroup,
	}, nil
}

func (v *JWKSVerifier) Verify(ctx context.Context, raw string) (types.Principal, error) {
	if raw == "" {
		return types.Principal{}, fmt.Errorf("%w: missing access token", types.ErrUnauthenticated)
	}

	set, err := v.keySet(ctx)
	if err != nil {
		return types.Principal{}, fmt.Errorf("failed to fetch JWKS: %w: %w", types.ErrUnavailable, err)
	}

	options := []jwt.ParseOption{
		jwt.WithKeySet(set),
		jwt.WithValidate(true),
	}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.Parse([]byte(raw), options...)
	if err != nil {
		return types.Principal{}, fmt.Errorf("%w: %w", types.ErrUnauthenticated, err)
	}

	// ID tokens carry aud instead of client_id and must not pass as access tokens
	var tokenUse string
	if err := token.Get("token_use", &tokenUse); err != nil || tokenUse != "access" {
		return types.Principal{}, fmt.Errorf("%w: not an access token", types.ErrUnauthenticated)
	}

	if v.clientID != "" {
		var clientID string
		if err := token.Get("client_id", &clientID); err != nil || clientID != v.clientID {
			return types.Principal{}, fmt.Errorf("%w: token issued to another client", types.ErrUnauthenticated)
		}
	}

	return principalFromToken(token, v.adminGroup)
}

// principalFromToken reads the subject, the optional email and the Cognito
// group membership from a verified token.
func principalFromToken(token jwt.Token, adminGroup string) (types.Principal, error) {
	subject, ok := token.Subject()
	if !ok || subject == "" {
		return types.Principal{}, fmt.Errorf("%w: token has no subject", types.ErrUnauthenticated)
	}

	principal := types.Principal{ID: subject, Authenticated: true}

	var email string
	if err := token.Get("email", &email); err == nil {
		principal.Email = email
	}

	var groups []any
	if err := token.Get("cognito:groups", &groups); err == nil && adminGroup != "" {
		principal.Admin = slices.ContainsFunc(groups, func(g any) bool {
			name, ok := g.(string)
			return ok && name == adminGroup
		})
	}

	return principal, nil
}
