// Package token arma y verifica JWTs firmados con claves del key cache.
//
// La firma siempre usa digest SHA-512 para RSA (RS512). Para EC el alg
// JOSE viene atado a la curva (ES256/ES384/ES512); la curva default de
// los generadores es P-521, así el camino default también firma SHA-512.
package token

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/json"
	"fmt"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Claims es el payload de un token: el set registrado más un mapa abierto
// de claims adicionales. Todos los registrados son opcionales; los strings
// vacíos y los punteros nil significan "ausente".
type Claims struct {
	Issuer    string
	Subject   string
	Audience  string
	IssuedAt  *int64 // epoch seconds
	NotBefore *int64
	ExpiresAt *int64
	TokenID   string
	Extra     map[string]any
}

// Header es la parte firmada del encabezado que nos interesa.
type Header struct {
	Alg   string
	KeyID string
}

// Token es un JWT ya firmado (producido) o ya verificado. Inmutable.
type Token struct {
	Raw    string
	Header Header
	Claims Claims
}

var registeredNames = map[string]struct{}{
	"iss": {}, "sub": {}, "aud": {}, "iat": {}, "nbf": {}, "exp": {}, "jti": {},
}

// toMap serializa Claims a MapClaims. Los registrados pisan cualquier
// colisión con Extra.
func (c Claims) toMap() jwtv5.MapClaims {
	m := jwtv5.MapClaims{}
	for k, v := range c.Extra {
		m[k] = v
	}
	if c.Issuer != "" {
		m["iss"] = c.Issuer
	}
	if c.Subject != "" {
		m["sub"] = c.Subject
	}
	if c.Audience != "" {
		m["aud"] = c.Audience
	}
	if c.IssuedAt != nil {
		m["iat"] = *c.IssuedAt
	}
	if c.NotBefore != nil {
		m["nbf"] = *c.NotBefore
	}
	if c.ExpiresAt != nil {
		m["exp"] = *c.ExpiresAt
	}
	if c.TokenID != "" {
		m["jti"] = c.TokenID
	}
	return m
}

func claimsFromMap(m jwtv5.MapClaims) Claims {
	c := Claims{Extra: make(map[string]any)}
	c.Issuer, _ = m["iss"].(string)
	c.Subject, _ = m["sub"].(string)
	c.TokenID, _ = m["jti"].(string)
	switch aud := m["aud"].(type) {
	case string:
		c.Audience = aud
	case []any:
		if len(aud) > 0 {
			c.Audience, _ = aud[0].(string)
		}
	}
	c.IssuedAt = numericClaim(m, "iat")
	c.NotBefore = numericClaim(m, "nbf")
	c.ExpiresAt = numericClaim(m, "exp")
	for k, v := range m {
		if _, ok := registeredNames[k]; !ok {
			c.Extra[k] = v
		}
	}
	return c
}

func numericClaim(m jwtv5.MapClaims, name string) *int64 {
	v, ok := m[name]
	if !ok {
		return nil
	}
	var n int64
	switch t := v.(type) {
	case float64:
		n = int64(t)
	case int64:
		n = t
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil
		}
		n = int64(f)
	default:
		return nil
	}
	return &n
}

// signingMethodFor deriva el alg JOSE del tipo de clave: RSA → RS512
// (digest fijo SHA-512), EC → ES<curva>.
func signingMethodFor(key any) (jwtv5.SigningMethod, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey, *rsa.PublicKey:
		return jwtv5.SigningMethodRS512, nil
	case *ecdsa.PrivateKey:
		return methodForCurve(k.Curve)
	case *ecdsa.PublicKey:
		return methodForCurve(k.Curve)
	default:
		return nil, fmt.Errorf("%w: unsupported key type %T", ErrSigning, key)
	}
}

func methodForCurve(curve elliptic.Curve) (jwtv5.SigningMethod, error) {
	switch curve {
	case elliptic.P256():
		return jwtv5.SigningMethodES256, nil
	case elliptic.P384():
		return jwtv5.SigningMethodES384, nil
	case elliptic.P521():
		return jwtv5.SigningMethodES512, nil
	default:
		return nil, fmt.Errorf("%w: no JOSE alg for curve %s", ErrSigning, curve.Params().Name)
	}
}
