package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"donationledger/pkg/types"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIssuer = "https://cognito-idp.us-east-1.amazonaws.com/us-east-1_test"

func TestPrincipalFromToken(t *testing.T) {
	token, err := jwt.NewBuilder().
		Subject("donor-123").
		Claim("email", "donor@example.org").
		Claim("cognito:groups", []any{"volunteers", "admin"}).
		Build()
	require.NoError(t, err)

	principal, err := principalFromToken(token, "admin")
	require.NoError(t, err)
	assert.Equal(t, types.Principal{ID: "donor-123", Email: "donor@example.org", Authenticated: true, Admin: true}, principal)

	principal, err = principalFromToken(token, "board")
	require.NoError(t, err)
	assert.False(t, principal.Admin)
}

func TestPrincipalFromTokenWithoutOptionalClaims(t *testing.T) {
	token, err := jwt.NewBuilder().Subject("donor-123").Build()
	require.NoError(t, err)

	principal, err := principalFromToken(token, "admin")
	require.NoError(t, err)
	assert.True(t, principal.IsAuthenticated())
	assert.Empty(t, principal.Email)
	assert.False(t, principal.Admin)
}

func TestPrincipalFromTokenRequiresSubject(t *testing.T) {
	token, err := jwt.NewBuilder().Claim("email", "x@example.org").Build()
	require.NoError(t, err)

	_, err = principalFromToken(token, "admin")
	assert.ErrorIs(t, err, types.ErrUnauthenticated)
}

type signer struct {
	key jwk.Key
	set jwk.Set
}

func newSigner(t *testing.T) signer {
	t.Helper()

	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	key, err := jwk.Import(raw)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, "test-key"))
	require.NoError(t, key.Set(jwk.AlgorithmKey, jwa.RS256()))

	public, err := jwk.PublicKeyOf(key)
	require.NoError(t, err)

	set := jwk.NewSet()
	require.NoError(t, set.AddKey(public))

	return signer{key: key, set: set}
}

func (s signer) sign(t *testing.T, build func(*jwt.Builder) *jwt.Builder) string {
	t.Helper()

	token, err := build(jwt.NewBuilder().Issuer(testIssuer).Expiration(time.Now().Add(time.Hour))).Build()
	require.NoError(t, err)

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256(), s.key))
	require.NoError(t, err)
	return string(signed)
}

func (s signer) verifier() *JWKSVerifier {
	return &JWKSVerifier{
		keySet:     func(context.Context) (jwk.Set, error) { return s.set, nil },
		issuer:     testIssuer,
		clientID:   "web-client",
		adminGroup: "admin",
	}
}

func TestJWKSVerifierAcceptsSignedToken(t *testing.T) {
	s := newSigner(t)

	raw := s.sign(t, func(b *jwt.Builder) *jwt.Builder {
		return b.Subject("donor-9").Claim("token_use", "access").Claim("client_id", "web-client")
	})

	principal, err := s.verifier().Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "donor-9", principal.ID)
	assert.True(t, principal.Authenticated)
}

func TestJWKSVerifierRejects(t *testing.T) {
	s := newSigner(t)
	other := newSigner(t)

	tests := map[string]string{
		"empty":        "",
		"garbage":      "not-a-jwt",
		"other signer": other.sign(t, func(b *jwt.Builder) *jwt.Builder { return b.Subject("donor-9") }),
		"wrong client": s.sign(t, func(b *jwt.Builder) *jwt.Builder {
			return b.Subject("donor-9").Claim("token_use", "access").Claim("client_id", "mobile")
		}),
		"missing client": s.sign(t, func(b *jwt.Builder) *jwt.Builder {
			return b.Subject("donor-9").Claim("token_use", "access")
		}),
		"id token": s.sign(t, func(b *jwt.Builder) *jwt.Builder {
			return b.Subject("donor-9").Claim("token_use", "id").Audience([]string{"web-client"})
		}),
		"no token use": s.sign(t, func(b *jwt.Builder) *jwt.Builder {
			return b.Subject("donor-9").Claim("client_id", "web-client")
		}),
		"expired": s.sign(t, func(b *jwt.Builder) *jwt.Builder {
			return b.Subject("donor-9").Expiration(time.Now().Add(-time.Hour))
		}),
		"wrong issuer": s.sign(t, func(b *jwt.Builder) *jwt.Builder {
			return b.Subject("donor-9").Issuer("https://evil.example.org")
		}),
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := s.verifier().Verify(context.Background(), raw)
			assert.ErrorIs(t, err, types.ErrUnauthenticated)
		})
	}
}

func TestJWKSVerifierKeySetUnavailable(t *testing.T) {
	v := &JWKSVerifier{
		keySet: func(context.Context) (jwk.Set, error) { return nil, errors.New("dial tcp: timeout") },
	}

	_, err := v.Verify(context.Background(), "header.payload.signature")
	assert.ErrorIs(t, err, types.ErrUnavailable)
}
