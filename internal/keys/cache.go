package keys

import (
	"crypto"
	"sort"
	"sync"

	"github.com/dropDatabas3/tokensmith/internal/util/randx"
)

const randomKeyIDLength = 16

// Cache es el único punto de entrada del resto del sistema al material de
// claves: envuelve un Store con memoización y el bookkeeping del default.
//
// Un solo RWMutex protege los dos maps y el default ID. La secuencia
// "miss → load de disco → insert" corre entera bajo el write lock, así dos
// verificaciones concurrentes del mismo kid nunca duplican el load ni ven
// una clave a medio inicializar.
//
// Las entradas no se desalojan nunca: una clave cargada se reusa por el
// resto de la vida del proceso.
type Cache struct {
	store *Store

	mu        sync.RWMutex
	priv      map[string]crypto.Signer
	pub       map[string]crypto.PublicKey
	defaultID string
}

// Open crea un Cache sobre un Store nuevo en dir.
func Open(dir string) (*Cache, error) {
	return NewCache(NewStore(dir))
}

// NewCache construye el cache y reconcilia el default: si default.txt no
// existe pero ya hay claves en disco, adopta el ID lexicográficamente mayor
// y lo persiste. El listado de directorio no tiene orden estable entre
// filesystems, por eso la regla es determinista y no "el último listado".
func NewCache(store *Store) (*Cache, error) {
	defaultID, err := store.DefaultKeyID()
	if err != nil {
		return nil, err
	}
	if defaultID == "" {
		ids, err := store.KeyIDList()
		if err != nil {
			return nil, err
		}
		if len(ids) > 0 {
			sort.Strings(ids)
			defaultID = ids[len(ids)-1]
			if err := store.MakeDefault(defaultID); err != nil {
				return nil, err
			}
		}
	}

	return &Cache{
		store:     store,
		priv:      make(map[string]crypto.Signer),
		pub:       make(map[string]crypto.PublicKey),
		defaultID: defaultID,
	}, nil
}

// CreatePrivateKey crea un par nuevo y lo deja cacheado.
//
// keyID vacío → ID aleatorio alfanumérico de 16 chars. gen nil → RSA-2048.
// Si es la primera clave del store (sin default todavía), pasa a ser el
// default tanto en disco como en memoria. ErrKeyExists se propaga tal cual:
// una colisión de ID aleatorio es rarísima pero no se reintenta en silencio.
func (c *Cache) CreatePrivateKey(keyID string, gen *Generator) (crypto.Signer, string, error) {
	if keyID == "" {
		keyID = randx.Alphanumeric(randomKeyIDLength)
	}
	g := DefaultGenerator()
	if gen != nil {
		g = *gen
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key, err := c.store.CreateKeyPair(keyID, g)
	if err != nil {
		return nil, "", err
	}

	if c.defaultID == "" {
		if err := c.store.MakeDefault(keyID); err != nil {
			return nil, "", err
		}
		c.defaultID = keyID
	}

	c.priv[keyID] = key
	return key, keyID, nil
}

// resolve mapea "" al default. Caller debe tener al menos el read lock.
func (c *Cache) resolve(keyID string) (string, error) {
	if keyID != "" {
		return keyID, nil
	}
	if c.defaultID == "" {
		return "", ErrNoDefaultKey
	}
	return c.defaultID, nil
}

// GetPrivateKey resuelve keyID ("" → default), carga del Store en el primer
// miss y memoiza. Retorna el ID resuelto junto con la clave para que el
// caller (ej. el header de un token) sepa qué kid se usó realmente.
func (c *Cache) GetPrivateKey(keyID string) (crypto.Signer, string, error) {
	c.mu.RLock()
	id, err := c.resolve(keyID)
	if err != nil {
		c.mu.RUnlock()
		return nil, "", err
	}
	if key, ok := c.priv[id]; ok {
		c.mu.RUnlock()
		return key, id, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	// Double-check después del lock
	if key, ok := c.priv[id]; ok {
		return key, id, nil
	}
	key, err := c.store.LoadPrivateKey(id)
	if err != nil {
		return nil, "", err
	}
	c.priv[id] = key
	return key, id, nil
}

// GetPublicKey es el simétrico de GetPrivateKey sobre el map de públicas.
func (c *Cache) GetPublicKey(keyID string) (crypto.PublicKey, string, error) {
	c.mu.RLock()
	id, err := c.resolve(keyID)
	if err != nil {
		c.mu.RUnlock()
		return nil, "", err
	}
	if key, ok := c.pub[id]; ok {
		c.mu.RUnlock()
		return key, id, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if key, ok := c.pub[id]; ok {
		return key, id, nil
	}
	key, err := c.store.LoadPublicKey(id)
	if err != nil {
		return nil, "", err
	}
	c.pub[id] = key
	return key, id, nil
}

// KeyIDList es passthrough al Store: nunca se cachea, tiene que reflejar
// el estado actual del disco.
func (c *Cache) KeyIDList() ([]string, error) {
	return c.store.KeyIDList()
}

// DefaultKeyID retorna el default actual en memoria ("" si no hay).
func (c *Cache) DefaultKeyID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defaultID
}
