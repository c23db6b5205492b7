// Package randx genera identificadores aleatorios cortos (key IDs, jti).
package randx

import (
	"crypto/rand"
	"math/big"
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Alphanumeric retorna un string aleatorio de n caracteres [A-Za-z0-9],
// usando crypto/rand. Panic sólo si el RNG del sistema está roto.
func Alphanumeric(n int) string {
	b := make([]byte, n)
	max := big.NewInt(int64(len(alphanumeric)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("randx: system RNG unavailable: " + err.Error())
		}
		b[i] = alphanumeric[idx.Int64()]
	}
	return string(b)
}
