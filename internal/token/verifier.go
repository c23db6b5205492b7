package token

import (
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/tokensmith/internal/keys"
)

// Verifier valida un token no confiable contra el key cache y una cadena
// ordenada de checks. Single-use, mismo esquema builder que Producer.
//
// El orden del pipeline es fijo y cada etapa corta con su error propio:
//
//	parse → resolver clave → kid esperado → firma → iss → aud →
//	piso de iat → bloque temporal (nbf, iat, exp, tope exp−iat, vencimiento)
//
// Los checks tardíos asumen que los tempranos pasaron; no reordenar.
type Verifier struct {
	cache *keys.Cache

	keyID         string
	issuer        *string
	audience      *string
	issuedAfter   *time.Time
	maxExpiration *time.Duration
	checkTimes    bool
	now           time.Time
}

// NewVerifier crea un builder sobre el key cache compartido.
// Los checks temporales arrancan habilitados; now queda capturado acá.
func NewVerifier(cache *keys.Cache) *Verifier {
	return &Verifier{
		cache:      cache,
		checkTimes: true,
		now:        time.Now().UTC(),
	}
}

// ExpectKeyID exige que el token esté firmado con esta clave.
func (v *Verifier) ExpectKeyID(keyID string) *Verifier {
	v.keyID = keyID
	return v
}

// ExpectIssuer exige el claim iss con este valor exacto.
func (v *Verifier) ExpectIssuer(issuer string) *Verifier {
	v.issuer = &issuer
	return v
}

// ExpectAudience exige el claim aud con este valor exacto.
func (v *Verifier) ExpectAudience(audience string) *Verifier {
	v.audience = &audience
	return v
}

// IssuedAfter exige iat >= t. Sirve para invalidar tokens anteriores a un
// incidente, al costo de invalidar todos los emitidos antes de t.
func (v *Verifier) IssuedAfter(t time.Time) *Verifier {
	t = t.UTC()
	v.issuedAfter = &t
	return v
}

// WithMaxExpiration acota exp − iat al delta dado.
func (v *Verifier) WithMaxExpiration(d time.Duration) *Verifier {
	v.maxExpiration = &d
	return v
}

// DisableTimeChecks apaga el bloque temporal completo (tests, contextos
// tolerantes a clock skew). Los checks de identidad siguen corriendo.
func (v *Verifier) DisableTimeChecks() *Verifier {
	v.checkTimes = false
	return v
}

// Verify ejecuta el pipeline sobre el compact token y retorna el token
// verificado junto con el key ID que lo firmó.
func (v *Verifier) Verify(compact string) (*Token, string, error) {
	// 1. Parse estructural, sin verificar firma todavía.
	parser := jwtv5.NewParser(jwtv5.WithoutClaimsValidation())
	tok, parts, err := parser.ParseUnverified(compact, jwtv5.MapClaims{})
	if err != nil {
		return nil, "", ErrTokenMalformed
	}
	sig, err := parser.DecodeSegment(parts[2])
	if err != nil {
		return nil, "", ErrTokenMalformed
	}

	// 2. Resolver la clave de verificación por kid (ausente → default).
	kid, _ := tok.Header["kid"].(string)
	pub, resolvedKID, err := v.cache.GetPublicKey(kid)
	if err != nil {
		return nil, "", err
	}

	// 3. kid esperado, antes de gastar en criptografía.
	if v.keyID != "" && v.keyID != resolvedKID {
		return nil, "", ErrKeyIDMismatch
	}

	// 4. Firma. El alg se deriva del tipo de la clave resuelta, nunca del
	// header: un alg adulterado falla acá.
	method, err := signingMethodFor(pub)
	if err != nil {
		return nil, "", ErrSignatureInvalid
	}
	if alg, _ := tok.Header["alg"].(string); alg != method.Alg() {
		return nil, "", ErrSignatureInvalid
	}
	if err := method.Verify(strings.Join(parts[0:2], "."), sig, pub); err != nil {
		return nil, "", ErrSignatureInvalid
	}

	mc, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, "", ErrTokenMalformed
	}
	claims := claimsFromMap(mc)

	// 5. Issuer esperado.
	if v.issuer != nil {
		if claims.Issuer == "" {
			return nil, "", &ClaimMissingError{Field: "issuer"}
		}
		if claims.Issuer != *v.issuer {
			return nil, "", &ClaimMismatchError{Field: "issuer"}
		}
	}

	// 6. Audience esperada.
	if v.audience != nil {
		if claims.Audience == "" {
			return nil, "", &ClaimMissingError{Field: "audience"}
		}
		if claims.Audience != *v.audience {
			return nil, "", &ClaimMismatchError{Field: "audience"}
		}
	}

	// 7. Piso de emisión.
	if v.issuedAfter != nil {
		if claims.IssuedAt == nil {
			return nil, "", &ClaimMissingError{Field: "issued_at"}
		}
		if *claims.IssuedAt < v.issuedAfter.Unix() {
			return nil, "", ErrIssuedTooEarly
		}
	}

	// 8. Bloque temporal.
	if v.checkTimes {
		now := v.now.Unix()
		if claims.NotBefore != nil && *claims.NotBefore > now {
			return nil, "", ErrTokenNotYetValid
		}
		if claims.IssuedAt == nil {
			return nil, "", &ClaimMissingError{Field: "issued_at"}
		}
		if claims.ExpiresAt == nil {
			return nil, "", &ClaimMissingError{Field: "expiration"}
		}
		if v.maxExpiration != nil {
			if *claims.ExpiresAt > *claims.IssuedAt+int64(v.maxExpiration.Seconds()) {
				return nil, "", ErrExpirationExceedsMax
			}
		}
		if *claims.ExpiresAt < now {
			return nil, "", ErrTokenExpired
		}
	}

	alg, _ := tok.Header["alg"].(string)
	return &Token{
		Raw:    compact,
		Header: Header{Alg: alg, KeyID: resolvedKID},
		Claims: claims,
	}, resolvedKID, nil
}
