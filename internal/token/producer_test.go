package token_test

import (
	"crypto/elliptic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/tokensmith/internal/keys"
	"github.com/dropDatabas3/tokensmith/internal/token"
)

func newCache(t *testing.T) *keys.Cache {
	t.Helper()
	cache, err := keys.Open(t.TempDir())
	require.NoError(t, err)
	return cache
}

func ecGen() *keys.Generator {
	g := keys.EC(elliptic.P256())
	return &g
}

func TestProduceVerifyRoundTrip(t *testing.T) {
	cache := newCache(t)
	_, kid, err := cache.CreatePrivateKey("round", ecGen())
	require.NoError(t, err)

	exp := time.Now().Add(10 * time.Minute)
	nbf := time.Now().Add(-time.Minute)

	producer := token.NewProducer(cache).
		WithKeyID("round").
		WithIssuer("issuer@example.tld").
		WithAudience("resource.example.tld").
		WithNotBefore(nbf).
		WithExpiration(exp).
		WithTokenID("jti-1").
		AddClaim("role", "admin")
	require.NoError(t, producer.AddClaimsJSON([]byte(`{"scope":"read write"}`)))

	minted, err := producer.Produce("subject@example.tld")
	require.NoError(t, err)
	assert.Equal(t, kid, minted.Header.KeyID)
	assert.Equal(t, "ES256", minted.Header.Alg)

	verified, gotKid, err := token.NewVerifier(cache).
		ExpectKeyID("round").
		Verify(minted.Raw)
	require.NoError(t, err)
	assert.Equal(t, kid, gotKid)

	c := verified.Claims
	assert.Equal(t, "issuer@example.tld", c.Issuer)
	assert.Equal(t, "subject@example.tld", c.Subject)
	assert.Equal(t, "resource.example.tld", c.Audience)
	assert.Equal(t, "jti-1", c.TokenID)
	require.NotNil(t, c.IssuedAt)
	require.NotNil(t, c.NotBefore)
	require.NotNil(t, c.ExpiresAt)
	assert.Equal(t, nbf.Unix(), *c.NotBefore)
	assert.Equal(t, exp.Unix(), *c.ExpiresAt)
	assert.Equal(t, "admin", c.Extra["role"])
	assert.Equal(t, "read write", c.Extra["scope"])
}

// Escenario de referencia: clave RSA-2048 "test1", claims fijos, verificación
// sin checks temporales.
func TestProduceVerifyRSAScenario(t *testing.T) {
	cache := newCache(t)
	gen := keys.RSA(2048)
	_, _, err := cache.CreatePrivateKey("test1", &gen)
	require.NoError(t, err)

	minted, err := token.NewProducer(cache).
		WithIssuer("issuer@example.tld").
		WithKeyID("test1").
		WithAudience("resource.example.tld").
		WithTokenID("qwertyuiop").
		Produce("subject@example.tld")
	require.NoError(t, err)
	assert.Equal(t, "RS512", minted.Header.Alg)

	verified, kid, err := token.NewVerifier(cache).
		DisableTimeChecks().
		Verify(minted.Raw)
	require.NoError(t, err)
	assert.Equal(t, "test1", kid)
	assert.Equal(t, "issuer@example.tld", verified.Claims.Issuer)
	assert.Equal(t, "resource.example.tld", verified.Claims.Audience)
	assert.Equal(t, "qwertyuiop", verified.Claims.TokenID)
	assert.Equal(t, "subject@example.tld", verified.Claims.Subject)
	require.NotNil(t, verified.Claims.IssuedAt)
}

func TestProduceUsesDefaultKey(t *testing.T) {
	cache := newCache(t)
	_, kid, err := cache.CreatePrivateKey("", ecGen())
	require.NoError(t, err)

	minted, err := token.NewProducer(cache).Produce("s")
	require.NoError(t, err)
	assert.Equal(t, kid, minted.Header.KeyID)
}

func TestProduceNoDefaultKey(t *testing.T) {
	cache := newCache(t)

	_, err := token.NewProducer(cache).Produce("s")
	require.ErrorIs(t, err, keys.ErrNoDefaultKey)
}

func TestProduceUnknownKeyID(t *testing.T) {
	cache := newCache(t)
	_, _, err := cache.CreatePrivateKey("exists", ecGen())
	require.NoError(t, err)

	_, err = token.NewProducer(cache).WithKeyID("ghost").Produce("s")
	require.ErrorIs(t, err, keys.ErrKeyNotFound)
}

func TestRandomTokenID(t *testing.T) {
	cache := newCache(t)
	_, _, err := cache.CreatePrivateKey("", ecGen())
	require.NoError(t, err)

	minted, err := token.NewProducer(cache).WithRandomTokenID(0).Produce("s")
	require.NoError(t, err)
	assert.Len(t, minted.Claims.TokenID, token.DefaultTokenIDLength)

	other, err := token.NewProducer(cache).WithRandomTokenID(8).Produce("s")
	require.NoError(t, err)
	assert.Len(t, other.Claims.TokenID, 8)
	assert.NotEqual(t, minted.Claims.TokenID, other.Claims.TokenID)
}

func TestAddClaimsJSONRejectsNonObject(t *testing.T) {
	cache := newCache(t)
	p := token.NewProducer(cache)

	require.Error(t, p.AddClaimsJSON([]byte(`["not","an","object"]`)))
	require.Error(t, p.AddClaimsJSON([]byte(`"scalar"`)))
	require.NoError(t, p.AddClaimsJSON([]byte(`{"k":"v"}`)))
}
