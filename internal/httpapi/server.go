package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/tokensmith/internal/cache"
	"github.com/dropDatabas3/tokensmith/internal/config"
	"github.com/dropDatabas3/tokensmith/internal/keys"
	"github.com/dropDatabas3/tokensmith/internal/observability/logger"
	"github.com/dropDatabas3/tokensmith/internal/observability/metrics"
)

// Server expone el key store y la emisión/verificación de tokens por HTTP.
type Server struct {
	cfg    *config.Config
	cache  *keys.Cache
	client cache.Client
	policy Policy
}

func NewServer(cfg *config.Config, kc *keys.Cache, client cache.Client) (*Server, error) {
	issuedAfter, err := cfg.IssuedAfter()
	if err != nil {
		return nil, err
	}
	if err := metrics.Register(nil); err != nil {
		return nil, err
	}
	return &Server{
		cfg:    cfg,
		cache:  kc,
		client: client,
		policy: Policy{
			Issuer:        cfg.JWT.Issuer,
			Audience:      cfg.JWT.Audience,
			IssuedAfter:   issuedAfter,
			MaxExpiration: cfg.MaxExpiration(),
		},
	}, nil
}

// Handler arma el router completo con middlewares y rutas.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	keysCtl := NewKeysController(s.cache)
	tokensCtl := NewTokensController(s.cache, s.policy)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		// Mutaciones del key store van detrás de bearer auth.
		r.Group(func(r chi.Router) {
			r.Use(WithBearerAuth(s.cache, s.policy))
			r.Post("/keys", keysCtl.Create)
		})
		r.Get("/keys", keysCtl.List)
		r.Get("/keys/{kid}/public", keysCtl.ShowPublic)

		r.Post("/tokens", tokensCtl.Mint)
		r.Post("/tokens/verify", tokensCtl.Verify)
	})

	mws := []Middleware{WithRequestID, WithRecover, WithLogging}
	if s.cfg.Rate.Enabled {
		mws = append(mws, WithRateLimit(s.client, RateConfig{
			Window:      s.cfg.RateWindow(),
			MaxRequests: s.cfg.Rate.MaxRequests,
		}))
	}
	return Chain(r, mws...)
}

// Run levanta el listener y apaga de forma ordenada cuando ctx se cancela.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.L().Info("http listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.L().Info("http shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
