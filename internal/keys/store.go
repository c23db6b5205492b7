package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dropDatabas3/tokensmith/internal/util/atomicwrite"
)

const (
	keyDirPrefix   = "key_"
	defaultTxtName = "default.txt"
	privatePEMName = "private.pem"
	publicPEMName  = "public.pem"
)

// Store persiste pares de claves bajo un directorio base, sin caching:
// cada llamada toca el filesystem.
//
// Layout:
//
//	<base>/key_<id>/private.pem   (PKCS#8)
//	<base>/key_<id>/public.pem    (PKIX)
//	<base>/default.txt            (key id crudo)
type Store struct {
	baseDir string
}

// NewStore crea un Store sobre baseDir. No valida el directorio:
// se crea lazy en la primera escritura.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) keyDir(keyID string) string {
	return filepath.Join(s.baseDir, keyDirPrefix+keyID)
}

// CreateKeyPair genera y persiste un par nuevo con ID keyID.
// Falla con ErrKeyExists si el directorio del par ya existe; no es
// idempotente a propósito (reintentar sobre ErrKeyExists no puede
// pisar material existente).
func (s *Store) CreateKeyPair(keyID string, gen Generator) (crypto.Signer, error) {
	dir := s.keyDir(keyID)

	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrKeyExists, keyID)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, &StorageError{Op: "stat", Path: dir, Err: err}
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, &StorageError{Op: "mkdir", Path: dir, Err: err}
	}

	key, err := gen.Generate()
	if err != nil {
		return nil, err
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal pkcs8: %v", ErrKeyGeneration, err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	privPath := filepath.Join(dir, privatePEMName)
	if err := atomicwrite.AtomicWriteFile(privPath, privPEM, 0600); err != nil {
		return nil, &StorageError{Op: "write", Path: privPath, Err: err}
	}

	pubDER, err := x509.MarshalPKIXPublicKey(key.Public())
	if err != nil {
		return nil, fmt.Errorf("%w: marshal pkix: %v", ErrKeyGeneration, err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	pubPath := filepath.Join(dir, publicPEMName)
	if err := atomicwrite.AtomicWriteFile(pubPath, pubPEM, 0644); err != nil {
		return nil, &StorageError{Op: "write", Path: pubPath, Err: err}
	}

	return key, nil
}

// LoadPrivateKey lee y parsea el private.pem del par keyID.
func (s *Store) LoadPrivateKey(keyID string) (crypto.Signer, error) {
	path := filepath.Join(s.keyDir(keyID), privatePEMName)
	block, err := s.readPEM(keyID, path)
	if err != nil {
		return nil, err
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, &ParseError{KeyID: keyID, Err: err}
	}
	signer, ok := parsed.(crypto.Signer)
	if !ok {
		return nil, &ParseError{KeyID: keyID, Err: fmt.Errorf("pkcs8 key %T cannot sign", parsed)}
	}
	return signer, nil
}

// LoadPublicKey lee y parsea el public.pem del par keyID.
func (s *Store) LoadPublicKey(keyID string) (crypto.PublicKey, error) {
	path := filepath.Join(s.keyDir(keyID), publicPEMName)
	block, err := s.readPEM(keyID, path)
	if err != nil {
		return nil, err
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, &ParseError{KeyID: keyID, Err: err}
	}
	switch pub.(type) {
	case *rsa.PublicKey, *ecdsa.PublicKey:
		return pub, nil
	default:
		return nil, &ParseError{KeyID: keyID, Err: fmt.Errorf("unsupported public key type %T", pub)}
	}
}

func (s *Store) readPEM(keyID, path string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, keyID)
		}
		return nil, &StorageError{Op: "read", Path: path, Err: err}
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, &ParseError{KeyID: keyID, Err: errors.New("no PEM block found")}
	}
	return block, nil
}

// KeyIDList enumera los IDs de todos los pares bajo el directorio base.
// Sin orden garantizado. Un base dir inexistente cuenta como store vacío.
func (s *Store) KeyIDList() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &StorageError{Op: "readdir", Path: s.baseDir, Err: err}
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), keyDirPrefix) {
			ids = append(ids, strings.TrimPrefix(e.Name(), keyDirPrefix))
		}
	}
	return ids, nil
}

// MakeDefault apunta default.txt a keyID. Incondicional: no chequea
// que el par exista (el caller decide; Cache sólo lo llama con IDs recién
// creados o enumerados).
func (s *Store) MakeDefault(keyID string) error {
	path := filepath.Join(s.baseDir, defaultTxtName)
	if err := atomicwrite.AtomicWriteFile(path, []byte(keyID), 0644); err != nil {
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// DefaultKeyID lee el puntero de default. Retorna "" si no hay.
// El contenido se trimea: un default.txt editado a mano con newline
// final no debe romper los lookups.
func (s *Store) DefaultKeyID() (string, error) {
	path := filepath.Join(s.baseDir, defaultTxtName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", &StorageError{Op: "read", Path: path, Err: err}
	}
	return strings.TrimSpace(string(data)), nil
}
