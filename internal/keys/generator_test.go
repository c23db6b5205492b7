package keys_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/tokensmith/internal/keys"
)

func TestGenerateRSA(t *testing.T) {
	key, err := keys.RSA(2048).Generate()
	require.NoError(t, err)

	rsaKey, ok := key.(*rsa.PrivateKey)
	require.True(t, ok, "expected *rsa.PrivateKey, got %T", key)
	require.Equal(t, 2048, rsaKey.N.BitLen())
}

func TestGenerateEC(t *testing.T) {
	key, err := keys.EC(elliptic.P256()).Generate()
	require.NoError(t, err)

	ecKey, ok := key.(*ecdsa.PrivateKey)
	require.True(t, ok, "expected *ecdsa.PrivateKey, got %T", key)
	require.Equal(t, elliptic.P256(), ecKey.Curve)
}

func TestGenerateECDefaultCurve(t *testing.T) {
	// Sin curva explícita se usa P-521 (alg ES512, digest SHA-512).
	key, err := keys.EC(nil).Generate()
	require.NoError(t, err)
	require.Equal(t, elliptic.P521(), key.(*ecdsa.PrivateKey).Curve)
}

func TestGenerateRSARejectsWeakModulus(t *testing.T) {
	_, err := keys.RSA(512).Generate()
	require.ErrorIs(t, err, keys.ErrKeyGeneration)
}

func TestGeneratorZeroValueFails(t *testing.T) {
	var g keys.Generator
	_, err := g.Generate()
	require.ErrorIs(t, err, keys.ErrKeyGeneration)
}
