package token

import (
	"errors"
	"fmt"
)

var (
	// ErrTokenMalformed: el compact string no tiene forma de JWT.
	ErrTokenMalformed = errors.New("token_malformed")

	// ErrSignatureInvalid: la firma no verifica contra la clave pública resuelta.
	ErrSignatureInvalid = errors.New("signature_invalid")

	// ErrSigning: falló el paso criptográfico de firma al producir.
	ErrSigning = errors.New("signing_failed")

	// ErrKeyIDMismatch: el kid resuelto no coincide con el esperado.
	ErrKeyIDMismatch = errors.New("key_id_mismatch")

	// ErrIssuedTooEarly: iat por debajo del piso configurado.
	ErrIssuedTooEarly = errors.New("issued_too_early")

	// ErrTokenNotYetValid: nbf en el futuro.
	ErrTokenNotYetValid = errors.New("token_not_yet_valid")

	// ErrTokenExpired: exp en el pasado.
	ErrTokenExpired = errors.New("token_expired")

	// ErrExpirationExceedsMax: exp − iat mayor que el delta máximo configurado.
	ErrExpirationExceedsMax = errors.New("expiration_exceeds_max")
)

// ClaimMissingError: un check configurado requería un claim que el token no trae.
type ClaimMissingError struct {
	Field string
}

func (e *ClaimMissingError) Error() string {
	return fmt.Sprintf("claim %q not set in token", e.Field)
}

// ClaimMismatchError: el claim está presente pero no coincide con lo esperado.
type ClaimMismatchError struct {
	Field string
}

func (e *ClaimMismatchError) Error() string {
	return fmt.Sprintf("claim %q does not match", e.Field)
}
