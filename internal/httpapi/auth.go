package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/tokensmith/internal/keys"
	"github.com/dropDatabas3/tokensmith/internal/token"
)

// Policy reúne las expectativas de verificación configuradas para el servicio.
type Policy struct {
	Issuer        string
	Audience      string
	IssuedAfter   time.Time
	MaxExpiration time.Duration
}

// verifier arma un token.Verifier de un solo uso con la política aplicada.
func (p Policy) verifier(kc *keys.Cache) *token.Verifier {
	v := token.NewVerifier(kc)
	if p.Issuer != "" {
		v.ExpectIssuer(p.Issuer)
	}
	if p.Audience != "" {
		v.ExpectAudience(p.Audience)
	}
	if !p.IssuedAfter.IsZero() {
		v.IssuedAfter(p.IssuedAfter)
	}
	if p.MaxExpiration > 0 {
		v.WithMaxExpiration(p.MaxExpiration)
	}
	return v
}

type subjectKey struct{}

// SubjectFrom devuelve el subject autenticado, si el bearer middleware corrió.
func SubjectFrom(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(subjectKey{}).(string)
	return s, ok
}

// WithBearerAuth exige un Authorization: Bearer <token> válido bajo la política.
func WithBearerAuth(kc *keys.Cache, policy Policy) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="tokensmith"`)
				WriteError(w, http.StatusUnauthorized, "missing_token", "se requiere bearer token")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(auth, prefix))

			tok, _, err := policy.verifier(kc).Verify(raw)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="tokensmith", error="invalid_token"`)
				code, desc := verifyErrorCode(err)
				WriteError(w, http.StatusUnauthorized, code, desc)
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey{}, tok.Claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
