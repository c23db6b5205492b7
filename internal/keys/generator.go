package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
)

const (
	// DefaultRSABits es el tamaño de módulo usado cuando no se pide otro.
	DefaultRSABits = 2048

	// MinRSABits es el mínimo aceptado. Por debajo la clave no sirve para firmar nada serio.
	MinRSABits = 2048
)

// Generator describe cómo sintetizar un par de claves asimétricas.
// Es un value object puro: sin estado, sin I/O. El único efecto de
// Generate es consumir CPU y entropía.
type Generator struct {
	kind  string // "rsa" | "ec"
	bits  int
	curve elliptic.Curve
}

// RSA retorna un generador de claves RSA con el tamaño de módulo dado.
func RSA(bits int) Generator {
	return Generator{kind: "rsa", bits: bits}
}

// EC retorna un generador de claves de curva elíptica sobre la curva dada.
// Si curve es nil, usa P-521 (única curva cuyo alg JOSE lleva SHA-512).
func EC(curve elliptic.Curve) Generator {
	if curve == nil {
		curve = elliptic.P521()
	}
	return Generator{kind: "ec", curve: curve}
}

// DefaultGenerator es el usado cuando el caller no especifica uno.
func DefaultGenerator() Generator {
	return RSA(DefaultRSABits)
}

// String describe el generador para logs ("rsa-2048", "ec-P-521").
func (g Generator) String() string {
	switch g.kind {
	case "rsa":
		return fmt.Sprintf("rsa-%d", g.bits)
	case "ec":
		return "ec-" + g.curve.Params().Name
	default:
		return "unknown"
	}
}

// Generate crea un par de claves nuevo según los parámetros configurados.
// Retorna la clave privada; la pública se deriva de ella (Signer.Public).
func (g Generator) Generate() (crypto.Signer, error) {
	switch g.kind {
	case "rsa":
		if g.bits < MinRSABits {
			return nil, fmt.Errorf("%w: rsa modulus %d below minimum %d", ErrKeyGeneration, g.bits, MinRSABits)
		}
		key, err := rsa.GenerateKey(rand.Reader, g.bits)
		if err != nil {
			return nil, fmt.Errorf("%w: rsa: %v", ErrKeyGeneration, err)
		}
		return key, nil
	case "ec":
		key, err := ecdsa.GenerateKey(g.curve, rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("%w: ecdsa %s: %v", ErrKeyGeneration, g.curve.Params().Name, err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("%w: empty generator", ErrKeyGeneration)
	}
}
