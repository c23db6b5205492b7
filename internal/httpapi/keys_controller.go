package httpapi

import (
	"crypto/elliptic"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dropDatabas3/tokensmith/internal/keys"
	"github.com/dropDatabas3/tokensmith/internal/observability/logger"
	"github.com/dropDatabas3/tokensmith/internal/observability/metrics"
)

type KeysController struct {
	cache *keys.Cache
}

func NewKeysController(cache *keys.Cache) *KeysController {
	return &KeysController{cache: cache}
}

type createKeyRequest struct {
	KeyID string `json:"key_id,omitempty"`
	Kind  string `json:"kind,omitempty"`  // "rsa" | "ec"
	Bits  int    `json:"bits,omitempty"`  // rsa
	Curve string `json:"curve,omitempty"` // ec: P-256 | P-384 | P-521
}

type createKeyResponse struct {
	KeyID   string `json:"key_id"`
	Default bool   `json:"default"`
}

func generatorFrom(req createKeyRequest) (*keys.Generator, string) {
	var g keys.Generator
	switch req.Kind {
	case "", "rsa":
		bits := req.Bits
		if bits == 0 {
			bits = keys.DefaultRSABits
		}
		g = keys.RSA(bits)
	case "ec":
		switch req.Curve {
		case "", "P-521":
			g = keys.EC(elliptic.P521())
		case "P-384":
			g = keys.EC(elliptic.P384())
		case "P-256":
			g = keys.EC(elliptic.P256())
		default:
			return nil, "curva no soportada: " + req.Curve
		}
	default:
		return nil, "kind debe ser rsa o ec"
	}
	return &g, ""
}

// POST /v1/keys
func (c *KeysController) Create(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if !ReadJSON(w, r, &req) {
		return
	}

	gen, problem := generatorFrom(req)
	if problem != "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", problem)
		return
	}

	_, keyID, err := c.cache.CreatePrivateKey(req.KeyID, gen)
	if err != nil {
		switch {
		case errors.Is(err, keys.ErrKeyExists):
			WriteError(w, http.StatusConflict, "key_already_exists", "ya existe una clave con ese id")
		case errors.Is(err, keys.ErrKeyGeneration):
			WriteError(w, http.StatusBadRequest, "key_generation_failed", err.Error())
		default:
			logger.From(r.Context()).Error("create key", zap.Error(err))
			WriteError(w, http.StatusInternalServerError, "internal_error", "no se pudo crear la clave")
		}
		return
	}

	metrics.KeyPairsCreated.Inc()
	WriteJSON(w, http.StatusCreated, createKeyResponse{
		KeyID:   keyID,
		Default: c.cache.DefaultKeyID() == keyID,
	})
}

// GET /v1/keys
func (c *KeysController) List(w http.ResponseWriter, r *http.Request) {
	ids, err := c.cache.KeyIDList()
	if err != nil {
		logger.From(r.Context()).Error("list keys", zap.Error(err))
		WriteError(w, http.StatusInternalServerError, "internal_error", "no se pudo listar")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"keys":    ids,
		"default": c.cache.DefaultKeyID(),
	})
}

// GET /v1/keys/{kid}/public
func (c *KeysController) ShowPublic(w http.ResponseWriter, r *http.Request) {
	kid := chi.URLParam(r, "kid")

	pub, _, err := c.cache.GetPublicKey(kid)
	if err != nil {
		switch {
		case errors.Is(err, keys.ErrKeyNotFound):
			WriteError(w, http.StatusNotFound, "key_not_found", "clave no encontrada")
		default:
			logger.From(r.Context()).Error("load public key", zap.Error(err))
			WriteError(w, http.StatusInternalServerError, "internal_error", "no se pudo leer la clave")
		}
		return
	}

	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		logger.From(r.Context()).Error("marshal public key", zap.Error(err))
		WriteError(w, http.StatusInternalServerError, "internal_error", "no se pudo serializar la clave")
		return
	}
	w.Header().Set("Content-Type", "application/x-pem-file")
	w.WriteHeader(http.StatusOK)
	_ = pem.Encode(w, &pem.Block{Type: "PUBLIC KEY", Bytes: der})
}
