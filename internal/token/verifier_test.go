package token_test

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/tokensmith/internal/keys"
	"github.com/dropDatabas3/tokensmith/internal/token"
)

// mint firma un token mínimo con exp/nbf controlados.
func mint(t *testing.T, cache *keys.Cache, keyID string, mutate func(*token.Producer)) string {
	t.Helper()
	p := token.NewProducer(cache).WithKeyID(keyID)
	if mutate != nil {
		mutate(p)
	}
	minted, err := p.Produce("subject@example.tld")
	require.NoError(t, err)
	return minted.Raw
}

func TestVerifyMalformed(t *testing.T) {
	cache := newCache(t)

	for _, raw := range []string{"", "garbage", "a.b", "a.b.c.d", "!!!.@@@.###"} {
		_, _, err := token.NewVerifier(cache).Verify(raw)
		assert.ErrorIs(t, err, token.ErrTokenMalformed, "input %q", raw)
	}
}

func TestVerifyUnknownKid(t *testing.T) {
	signer := newCache(t)
	_, _, err := signer.CreatePrivateKey("signer", ecGen())
	require.NoError(t, err)
	raw := mint(t, signer, "signer", withFutureExp())

	// Cache sin esa clave: el kid del header no resuelve
	stranger := newCache(t)
	_, _, err = stranger.CreatePrivateKey("other", ecGen())
	require.NoError(t, err)

	_, _, err = token.NewVerifier(stranger).Verify(raw)
	require.ErrorIs(t, err, keys.ErrKeyNotFound)
}

// El check de kid esperado corre antes del resultado de firma: un token
// firmado por A con firma rota sigue fallando por mismatch si se esperaba B.
func TestVerifyKeyIDMismatchPrecedesSignature(t *testing.T) {
	cache := newCache(t)
	_, _, err := cache.CreatePrivateKey("keyA", ecGen())
	require.NoError(t, err)
	_, _, err = cache.CreatePrivateKey("keyB", ecGen())
	require.NoError(t, err)

	raw := mint(t, cache, "keyA", withFutureExp())

	// Firma válida, kid equivocado
	_, _, err = token.NewVerifier(cache).ExpectKeyID("keyB").Verify(raw)
	require.ErrorIs(t, err, token.ErrKeyIDMismatch)

	// Firma rota, kid equivocado: gana el mismatch igual
	_, _, err = token.NewVerifier(cache).ExpectKeyID("keyB").Verify(tamper(t, raw))
	require.ErrorIs(t, err, token.ErrKeyIDMismatch)
}

func TestVerifySignatureInvalid(t *testing.T) {
	cache := newCache(t)
	_, _, err := cache.CreatePrivateKey("k", ecGen())
	require.NoError(t, err)

	raw := mint(t, cache, "k", withFutureExp())
	_, _, err = token.NewVerifier(cache).Verify(tamper(t, raw))
	require.ErrorIs(t, err, token.ErrSignatureInvalid)
}

func TestVerifyRejectsForeignAlg(t *testing.T) {
	cache := newCache(t)
	_, _, err := cache.CreatePrivateKey("k", ecGen())
	require.NoError(t, err)

	raw := mint(t, cache, "k", withFutureExp())
	parts := strings.Split(raw, ".")

	// Header reescrito a alg none; la clave resuelta es EC, no puede pasar
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT","kid":"k"}`))
	forged := header + "." + parts[1] + "."
	_, _, err = token.NewVerifier(cache).Verify(forged)
	require.ErrorIs(t, err, token.ErrSignatureInvalid)
}

func TestVerifyIssuerChecks(t *testing.T) {
	cache := newCache(t)
	_, _, err := cache.CreatePrivateKey("k", ecGen())
	require.NoError(t, err)

	noIssuer := mint(t, cache, "k", withFutureExp())
	_, _, err = token.NewVerifier(cache).ExpectIssuer("iss").Verify(noIssuer)
	var missing *token.ClaimMissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "issuer", missing.Field)

	wrongIssuer := mint(t, cache, "k", func(p *token.Producer) {
		withFutureExp()(p)
		p.WithIssuer("someone-else")
	})
	_, _, err = token.NewVerifier(cache).ExpectIssuer("iss").Verify(wrongIssuer)
	var mismatch *token.ClaimMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "issuer", mismatch.Field)
}

func TestVerifyAudienceChecks(t *testing.T) {
	cache := newCache(t)
	_, _, err := cache.CreatePrivateKey("k", ecGen())
	require.NoError(t, err)

	noAud := mint(t, cache, "k", withFutureExp())
	_, _, err = token.NewVerifier(cache).ExpectAudience("aud").Verify(noAud)
	var missing *token.ClaimMissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "audience", missing.Field)

	wrongAud := mint(t, cache, "k", func(p *token.Producer) {
		withFutureExp()(p)
		p.WithAudience("other-service")
	})
	_, _, err = token.NewVerifier(cache).ExpectAudience("aud").Verify(wrongAud)
	var mismatch *token.ClaimMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "audience", mismatch.Field)
}

func TestVerifyIssuedAfterFloor(t *testing.T) {
	cache := newCache(t)
	_, _, err := cache.CreatePrivateKey("k", ecGen())
	require.NoError(t, err)

	raw := mint(t, cache, "k", withFutureExp())

	// iat es "ahora": un piso en el futuro lo rechaza
	_, _, err = token.NewVerifier(cache).
		IssuedAfter(time.Now().Add(time.Hour)).
		Verify(raw)
	require.ErrorIs(t, err, token.ErrIssuedTooEarly)

	// Piso en el pasado: pasa
	_, _, err = token.NewVerifier(cache).
		IssuedAfter(time.Now().Add(-time.Hour)).
		Verify(raw)
	require.NoError(t, err)
}

func TestVerifyNotYetValid(t *testing.T) {
	cache := newCache(t)
	_, _, err := cache.CreatePrivateKey("k", ecGen())
	require.NoError(t, err)

	raw := mint(t, cache, "k", func(p *token.Producer) {
		p.WithNotBefore(time.Now().Add(time.Hour))
		p.WithExpiration(time.Now().Add(2 * time.Hour))
	})
	_, _, err = token.NewVerifier(cache).Verify(raw)
	require.ErrorIs(t, err, token.ErrTokenNotYetValid)
}

func TestVerifyMissingExpiration(t *testing.T) {
	cache := newCache(t)
	_, _, err := cache.CreatePrivateKey("k", ecGen())
	require.NoError(t, err)

	raw := mint(t, cache, "k", nil) // sin exp
	_, _, err = token.NewVerifier(cache).Verify(raw)
	var missing *token.ClaimMissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "expiration", missing.Field)
}

func TestVerifyExpired(t *testing.T) {
	cache := newCache(t)
	_, _, err := cache.CreatePrivateKey("k", ecGen())
	require.NoError(t, err)

	raw := mint(t, cache, "k", func(p *token.Producer) {
		p.WithExpiration(time.Now().Add(-time.Hour))
	})
	_, _, err = token.NewVerifier(cache).Verify(raw)
	require.ErrorIs(t, err, token.ErrTokenExpired)
}

// El tope exp − iat se evalúa contra los claims, no contra el reloj: un token
// lejos de vencer cae igual si pide más vida de la permitida.
func TestVerifyExpirationCap(t *testing.T) {
	cache := newCache(t)
	_, _, err := cache.CreatePrivateKey("k", ecGen())
	require.NoError(t, err)

	raw := mint(t, cache, "k", func(p *token.Producer) {
		p.WithExpiration(time.Now().Add(10000 * time.Second))
	})
	_, _, err = token.NewVerifier(cache).
		WithMaxExpiration(5 * time.Second).
		Verify(raw)
	require.ErrorIs(t, err, token.ErrExpirationExceedsMax)

	// Con margen suficiente pasa
	_, _, err = token.NewVerifier(cache).
		WithMaxExpiration(20000 * time.Second).
		Verify(raw)
	require.NoError(t, err)
}

func TestVerifyTimeCheckBypass(t *testing.T) {
	cache := newCache(t)
	_, _, err := cache.CreatePrivateKey("k", ecGen())
	require.NoError(t, err)

	expired := mint(t, cache, "k", func(p *token.Producer) {
		p.WithIssuer("trusted")
		p.WithExpiration(time.Now().Add(-time.Hour))
	})

	// Vencido pero con checks apagados: verifica
	_, _, err = token.NewVerifier(cache).DisableTimeChecks().Verify(expired)
	require.NoError(t, err)

	// Los checks de identidad siguen vivos
	_, _, err = token.NewVerifier(cache).
		DisableTimeChecks().
		ExpectIssuer("someone-else").
		Verify(expired)
	var mismatch *token.ClaimMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "issuer", mismatch.Field)
}

func withFutureExp() func(*token.Producer) {
	return func(p *token.Producer) {
		p.WithExpiration(time.Now().Add(10 * time.Minute))
	}
}

// tamper cambia un byte del payload sin tocar header ni firma.
func tamper(t *testing.T, raw string) string {
	t.Helper()
	parts := strings.Split(raw, ".")
	require.Len(t, parts, 3)
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	mutated := strings.Replace(string(payload), "subject@example.tld", "attacker@example.tld", 1)
	require.NotEqual(t, string(payload), mutated)
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(mutated))
	return strings.Join(parts, ".")
}
