package httpapi

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/tokensmith/internal/keys"
	"github.com/dropDatabas3/tokensmith/internal/observability/logger"
	"github.com/dropDatabas3/tokensmith/internal/observability/metrics"
	"github.com/dropDatabas3/tokensmith/internal/token"
)

type TokensController struct {
	cache  *keys.Cache
	policy Policy
}

func NewTokensController(cache *keys.Cache, policy Policy) *TokensController {
	return &TokensController{cache: cache, policy: policy}
}

type mintRequest struct {
	Subject     string         `json:"subject"`
	KeyID       string         `json:"key_id,omitempty"`
	Issuer      string         `json:"issuer,omitempty"`
	Audience    string         `json:"audience,omitempty"`
	ExpiresIn   int64          `json:"expires_in,omitempty"`    // segundos desde ahora
	NotBeforeIn int64          `json:"not_before_in,omitempty"` // segundos desde ahora
	TokenID     string         `json:"token_id,omitempty"`
	Claims      map[string]any `json:"claims,omitempty"`
}

type mintResponse struct {
	Token     string `json:"token"`
	KeyID     string `json:"key_id"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

// POST /v1/tokens
func (c *TokensController) Mint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	if req.Subject == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "subject es obligatorio")
		return
	}

	now := time.Now().UTC()
	p := token.NewProducer(c.cache).WithRandomTokenID(0)

	if req.KeyID != "" {
		p.WithKeyID(req.KeyID)
	}
	issuer := req.Issuer
	if issuer == "" {
		issuer = c.policy.Issuer
	}
	if issuer != "" {
		p.WithIssuer(issuer)
	}
	audience := req.Audience
	if audience == "" {
		audience = c.policy.Audience
	}
	if audience != "" {
		p.WithAudience(audience)
	}
	if req.NotBeforeIn != 0 {
		p.WithNotBefore(now.Add(time.Duration(req.NotBeforeIn) * time.Second))
	}
	expiresIn := req.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = int64(c.policy.MaxExpiration / time.Second)
	}
	p.WithExpiration(now.Add(time.Duration(expiresIn) * time.Second))
	if req.TokenID != "" {
		p.WithTokenID(req.TokenID)
	}
	for k, v := range req.Claims {
		p.AddClaim(k, v)
	}

	tok, err := p.Produce(req.Subject)
	if err != nil {
		switch {
		case errors.Is(err, keys.ErrKeyNotFound):
			WriteError(w, http.StatusNotFound, "key_not_found", "clave de firma no encontrada")
		case errors.Is(err, keys.ErrNoDefaultKey):
			WriteError(w, http.StatusConflict, "no_default_key", "no hay clave default en el store")
		default:
			logger.From(r.Context()).Error("mint token", zap.Error(err))
			WriteError(w, http.StatusInternalServerError, "internal_error", "no se pudo firmar el token")
		}
		return
	}

	metrics.TokensIssuedTotal.WithLabelValues(tok.Header.Alg).Inc()

	resp := mintResponse{Token: tok.Raw, KeyID: tok.Header.KeyID}
	if tok.Claims.ExpiresAt != nil {
		resp.ExpiresAt = *tok.Claims.ExpiresAt
	}
	WriteJSON(w, http.StatusCreated, resp)
}

type verifyRequest struct {
	Token          string `json:"token"`
	ExpectKeyID    string `json:"expect_key_id,omitempty"`
	ExpectIssuer   string `json:"expect_issuer,omitempty"`
	ExpectAudience string `json:"expect_audience,omitempty"`
}

type verifyResponse struct {
	Valid   bool           `json:"valid"`
	Subject string         `json:"subject,omitempty"`
	KeyID   string         `json:"key_id,omitempty"`
	Claims  map[string]any `json:"claims,omitempty"`
}

// POST /v1/tokens/verify
//
// La política del servicio (issuer, audience, piso iat, exp máximo) siempre
// aplica; el body puede sumar expectativas, nunca relajarlas.
func (c *TokensController) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	if req.Token == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "token es obligatorio")
		return
	}

	v := c.policy.verifier(c.cache)
	if req.ExpectKeyID != "" {
		v.ExpectKeyID(req.ExpectKeyID)
	}
	if req.ExpectIssuer != "" {
		v.ExpectIssuer(req.ExpectIssuer)
	}
	if req.ExpectAudience != "" {
		v.ExpectAudience(req.ExpectAudience)
	}

	tok, _, err := v.Verify(req.Token)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, token.ErrTokenMalformed) {
			status = http.StatusBadRequest
		}
		code, desc := verifyErrorCode(err)
		metrics.TokensVerifiedTotal.WithLabelValues(code).Inc()
		WriteError(w, status, code, desc)
		return
	}

	metrics.TokensVerifiedTotal.WithLabelValues("ok").Inc()
	WriteJSON(w, http.StatusOK, verifyResponse{
		Valid:   true,
		Subject: tok.Claims.Subject,
		KeyID:   tok.Header.KeyID,
		Claims:  claimsView(tok.Claims),
	})
}

// claimsView aplana Claims para la respuesta JSON.
func claimsView(c token.Claims) map[string]any {
	m := make(map[string]any, len(c.Extra)+7)
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

// verifyErrorCode mapea errores de verificación a códigos de API estables.
func verifyErrorCode(err error) (code, desc string) {
	var missing *token.ClaimMissingError
	var mismatch *token.ClaimMismatchError
	switch {
	case errors.Is(err, token.ErrTokenMalformed):
		return "token_malformed", "el token no es un JWT bien formado"
	case errors.Is(err, keys.ErrKeyNotFound):
		return "key_not_found", "no hay clave pública para el kid del token"
	case errors.Is(err, keys.ErrNoDefaultKey):
		return "no_default_key", "no hay clave default para verificar"
	case errors.Is(err, token.ErrKeyIDMismatch):
		return "kid_mismatch", "el kid del token no es el esperado"
	case errors.Is(err, token.ErrSignatureInvalid):
		return "signature_invalid", "firma inválida"
	case errors.As(err, &missing):
		return "claim_missing", "falta el claim " + missing.Field
	case errors.As(err, &mismatch):
		return "claim_mismatch", "el claim " + mismatch.Field + " no coincide"
	case errors.Is(err, token.ErrIssuedTooEarly):
		return "issued_too_early", "iat anterior al piso configurado"
	case errors.Is(err, token.ErrTokenNotYetValid):
		return "token_not_yet_valid", "nbf en el futuro"
	case errors.Is(err, token.ErrTokenExpired):
		return "token_expired", "token expirado"
	case errors.Is(err, token.ErrExpirationExceedsMax):
		return "expiration_exceeds_max", "la vigencia excede el máximo permitido"
	default:
		return "invalid_token", err.Error()
	}
}
