package token

import (
	"encoding/json"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/tokensmith/internal/keys"
	"github.com/dropDatabas3/tokensmith/internal/util/randx"
)

// DefaultTokenIDLength es el largo del jti aleatorio si no se pide otro.
const DefaultTokenIDLength = 20

// Producer arma un token firmado a partir de claims acumulados por builder.
// Single-use: configurar con los With*/Add* encadenados y cerrar con Produce.
//
// iat queda fijado al construir el Producer, no al llamar Produce, para que
// el builder sea determinista a través de la cadena de configuración.
type Producer struct {
	cache *keys.Cache

	keyID     string
	issuer    string
	audience  string
	notBefore *time.Time
	expiresAt *time.Time
	tokenID   string
	extra     map[string]any
	now       time.Time
}

// NewProducer crea un builder sobre el key cache compartido.
func NewProducer(cache *keys.Cache) *Producer {
	return &Producer{
		cache: cache,
		extra: make(map[string]any),
		now:   time.Now().UTC(),
	}
}

// WithKeyID elige la clave de firma. Sin esto se usa el default del cache.
func (p *Producer) WithKeyID(keyID string) *Producer {
	p.keyID = keyID
	return p
}

// WithIssuer setea el claim iss.
func (p *Producer) WithIssuer(issuer string) *Producer {
	p.issuer = issuer
	return p
}

// WithAudience setea el claim aud.
func (p *Producer) WithAudience(audience string) *Producer {
	p.audience = audience
	return p
}

// WithNotBefore setea el claim nbf.
func (p *Producer) WithNotBefore(t time.Time) *Producer {
	t = t.UTC()
	p.notBefore = &t
	return p
}

// WithExpiration setea el claim exp.
func (p *Producer) WithExpiration(t time.Time) *Producer {
	t = t.UTC()
	p.expiresAt = &t
	return p
}

// WithTokenID setea el claim jti.
func (p *Producer) WithTokenID(tokenID string) *Producer {
	p.tokenID = tokenID
	return p
}

// WithRandomTokenID setea un jti alfanumérico aleatorio.
// length <= 0 usa DefaultTokenIDLength.
func (p *Producer) WithRandomTokenID(length int) *Producer {
	if length <= 0 {
		length = DefaultTokenIDLength
	}
	p.tokenID = randx.Alphanumeric(length)
	return p
}

// AddClaim agrega un claim adicional. Claves repetidas pisan la anterior.
func (p *Producer) AddClaim(name string, value any) *Producer {
	p.extra[name] = value
	return p
}

// AddClaimsJSON mergea un objeto JSON como claims adicionales.
// raw tiene que ser un objeto; cualquier otra cosa es error.
func (p *Producer) AddClaimsJSON(raw []byte) error {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return fmt.Errorf("claims json: expected object: %w", err)
	}
	for k, v := range obj {
		p.extra[k] = v
	}
	return nil
}

// Produce resuelve la clave de firma, arma header y claims, y firma.
// El kid del header es el ID que el cache resolvió realmente (explícito
// o default).
func (p *Producer) Produce(subject string) (*Token, error) {
	key, keyID, err := p.cache.GetPrivateKey(p.keyID)
	if err != nil {
		return nil, err
	}

	method, err := signingMethodFor(key)
	if err != nil {
		return nil, err
	}

	iat := p.now.Unix()
	claims := Claims{
		Issuer:   p.issuer,
		Subject:  subject,
		Audience: p.audience,
		IssuedAt: &iat,
		TokenID:  p.tokenID,
		Extra:    p.extra,
	}
	if p.notBefore != nil {
		nbf := p.notBefore.Unix()
		claims.NotBefore = &nbf
	}
	if p.expiresAt != nil {
		exp := p.expiresAt.Unix()
		claims.ExpiresAt = &exp
	}

	tk := jwtv5.NewWithClaims(method, claims.toMap())
	tk.Header["kid"] = keyID

	signed, err := tk.SignedString(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}

	return &Token{
		Raw:    signed,
		Header: Header{Alg: method.Alg(), KeyID: keyID},
		Claims: claims,
	}, nil
}
