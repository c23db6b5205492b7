package keys

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyExists indica que ya hay un par de claves con ese ID.
	// La creación no es idempotente: reintentar con el mismo ID debe fallar.
	ErrKeyExists = errors.New("key_already_exists")

	// ErrKeyNotFound indica que no existe el archivo PEM pedido.
	ErrKeyNotFound = errors.New("key_not_found")

	// ErrNoDefaultKey indica que no se pasó key ID y no hay default configurado.
	ErrNoDefaultKey = errors.New("no_default_key")

	// ErrKeyGeneration indica que la primitiva criptográfica rechazó los parámetros.
	ErrKeyGeneration = errors.New("key_generation_failed")
)

// ParseError es un PEM presente pero con contenido inválido.
type ParseError struct {
	KeyID string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse key %q: %v", e.KeyID, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StorageError envuelve fallas del filesystem (permisos, disco lleno).
// Se distingue de ParseError para que el caller pueda separar
// "disco roto" de "archivo corrupto".
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("keystore %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
