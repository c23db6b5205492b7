package keys_test

import (
	"crypto/elliptic"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/tokensmith/internal/keys"
)

func ecGen() *keys.Generator {
	g := keys.EC(elliptic.P256())
	return &g
}

func TestCacheFirstKeyBecomesDefault(t *testing.T) {
	dir := t.TempDir()
	cache, err := keys.Open(dir)
	require.NoError(t, err)

	_, kid, err := cache.CreatePrivateKey("", ecGen())
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[A-Za-z0-9]{16}$`), kid)
	assert.Equal(t, kid, cache.DefaultKeyID())

	// En disco también
	data, err := os.ReadFile(filepath.Join(dir, "default.txt"))
	require.NoError(t, err)
	assert.Equal(t, kid, string(data))

	// La segunda clave no mueve el default
	_, _, err = cache.CreatePrivateKey("second", ecGen())
	require.NoError(t, err)
	assert.Equal(t, kid, cache.DefaultKeyID())
}

func TestCacheNoDefaultKey(t *testing.T) {
	cache, err := keys.Open(t.TempDir())
	require.NoError(t, err)

	_, _, err = cache.GetPrivateKey("")
	require.ErrorIs(t, err, keys.ErrNoDefaultKey)

	_, _, err = cache.GetPublicKey("")
	require.ErrorIs(t, err, keys.ErrNoDefaultKey)
}

func TestCacheResolvesDefault(t *testing.T) {
	cache, err := keys.Open(t.TempDir())
	require.NoError(t, err)

	created, kid, err := cache.CreatePrivateKey("main", ecGen())
	require.NoError(t, err)
	require.Equal(t, "main", kid)

	key, resolved, err := cache.GetPrivateKey("")
	require.NoError(t, err)
	assert.Equal(t, "main", resolved)
	assert.Same(t, created, key) // hit de cache, mismo handle

	pub, resolved, err := cache.GetPublicKey("")
	require.NoError(t, err)
	assert.Equal(t, "main", resolved)
	requireSamePublic(t, created, pub)
}

func TestCacheColdStartAdoptsGreatestID(t *testing.T) {
	dir := t.TempDir()
	store := keys.NewStore(dir)
	_, err := store.CreateKeyPair("alpha", keys.EC(elliptic.P256()))
	require.NoError(t, err)
	_, err = store.CreateKeyPair("omega", keys.EC(elliptic.P256()))
	require.NoError(t, err)
	// sin default.txt

	cache, err := keys.NewCache(store)
	require.NoError(t, err)
	assert.Equal(t, "omega", cache.DefaultKeyID())

	// La elección quedó persistida
	def, err := store.DefaultKeyID()
	require.NoError(t, err)
	assert.Equal(t, "omega", def)
}

func TestCacheCreateDuplicatePropagates(t *testing.T) {
	cache, err := keys.Open(t.TempDir())
	require.NoError(t, err)

	_, _, err = cache.CreatePrivateKey("dup", ecGen())
	require.NoError(t, err)
	_, _, err = cache.CreatePrivateKey("dup", ecGen())
	require.ErrorIs(t, err, keys.ErrKeyExists)
}

func TestCacheKeyIDListReflectsDisk(t *testing.T) {
	dir := t.TempDir()
	cache, err := keys.Open(dir)
	require.NoError(t, err)

	_, _, err = cache.CreatePrivateKey("one", ecGen())
	require.NoError(t, err)

	// Otra instancia escribe al mismo base dir, por fuera del cache
	_, err = keys.NewStore(dir).CreateKeyPair("two", keys.EC(elliptic.P256()))
	require.NoError(t, err)

	ids, err := cache.KeyIDList()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"one", "two"}, ids)
}

func TestCacheConcurrentLookups(t *testing.T) {
	dir := t.TempDir()
	cache, err := keys.Open(dir)
	require.NoError(t, err)
	_, kid, err := cache.CreatePrivateKey("", ecGen())
	require.NoError(t, err)

	// Cache frío en otra instancia: todos los goroutines disparan el
	// mismo load; nadie debe ver una clave a medio inicializar.
	cold, err := keys.Open(dir)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pub, resolved, err := cold.GetPublicKey("")
			assert.NoError(t, err)
			assert.Equal(t, kid, resolved)
			assert.NotNil(t, pub)

			priv, resolved, err := cold.GetPrivateKey(kid)
			assert.NoError(t, err)
			assert.Equal(t, kid, resolved)
			assert.NotNil(t, priv)
		}()
	}
	wg.Wait()
}
