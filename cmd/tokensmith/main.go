package main

import (
	"crypto/elliptic"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/tokensmith/internal/cache"
	"github.com/dropDatabas3/tokensmith/internal/config"
	"github.com/dropDatabas3/tokensmith/internal/httpapi"
	"github.com/dropDatabas3/tokensmith/internal/keys"
	"github.com/dropDatabas3/tokensmith/internal/observability/logger"
	"github.com/dropDatabas3/tokensmith/internal/token"
)

func main() {
	keyDir := envOr("KEYS_DIR", "./keys")

	root := &cobra.Command{
		Use:   "tokensmith",
		Short: "Key store en filesystem + emisión y verificación de JWTs",
	}
	root.PersistentFlags().StringVar(&keyDir, "key-dir", keyDir, "Directorio base del key store (env KEYS_DIR)")

	openCache := func() (*keys.Cache, error) {
		return keys.Open(keyDir)
	}

	// ─── create-key ───
	var ckID, ckKind, ckCurve string
	var ckBits int
	createKeyCmd := &cobra.Command{
		Use:   "create-key",
		Short: "Crear un par de claves nuevo (la primera queda como default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			kc, err := openCache()
			if err != nil {
				return err
			}
			gen, err := parseGenerator(ckKind, ckBits, ckCurve)
			if err != nil {
				return err
			}
			_, keyID, err := kc.CreatePrivateKey(ckID, gen)
			if err != nil {
				return err
			}
			isDefault := kc.DefaultKeyID() == keyID
			fmt.Printf("key_id=%s default=%v\n", keyID, isDefault)
			return nil
		},
	}
	createKeyCmd.Flags().StringVar(&ckID, "key-id", "", "ID de la clave (vacío = aleatorio)")
	createKeyCmd.Flags().StringVar(&ckKind, "kind", "rsa", "Tipo de clave: rsa|ec")
	createKeyCmd.Flags().IntVar(&ckBits, "bits", keys.DefaultRSABits, "Tamaño de módulo RSA")
	createKeyCmd.Flags().StringVar(&ckCurve, "curve", "", "Curva EC: P-256|P-384|P-521 (default P-521)")

	// ─── list-keys ───
	listKeysCmd := &cobra.Command{
		Use:   "list-keys",
		Short: "Listar los IDs de clave del store",
		RunE: func(cmd *cobra.Command, args []string) error {
			kc, err := openCache()
			if err != nil {
				return err
			}
			ids, err := kc.KeyIDList()
			if err != nil {
				return err
			}
			def := kc.DefaultKeyID()
			for _, id := range ids {
				if id == def {
					fmt.Printf("%s (default)\n", id)
				} else {
					fmt.Println(id)
				}
			}
			return nil
		},
	}

	// ─── show-public ───
	showPublicCmd := &cobra.Command{
		Use:   "show-public [key-id]",
		Short: "Imprimir la clave pública en PEM (sin argumento usa la default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kc, err := openCache()
			if err != nil {
				return err
			}
			keyID := ""
			if len(args) == 1 {
				keyID = args[0]
			}
			pub, _, err := kc.GetPublicKey(keyID)
			if err != nil {
				return err
			}
			der, err := x509.MarshalPKIXPublicKey(pub)
			if err != nil {
				return err
			}
			return pem.Encode(os.Stdout, &pem.Block{Type: "PUBLIC KEY", Bytes: der})
		},
	}

	// ─── create-token ───
	var ctKeyID, ctIssuer, ctAudience, ctTokenID, ctClaimsJSON string
	var ctExpiresIn, ctNotBeforeIn time.Duration
	var ctClaims []string
	createTokenCmd := &cobra.Command{
		Use:   "create-token <subject>",
		Short: "Firmar un token para un subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kc, err := openCache()
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			p := token.NewProducer(kc).WithRandomTokenID(0)
			if ctKeyID != "" {
				p.WithKeyID(ctKeyID)
			}
			if ctIssuer != "" {
				p.WithIssuer(ctIssuer)
			}
			if ctAudience != "" {
				p.WithAudience(ctAudience)
			}
			if ctExpiresIn > 0 {
				p.WithExpiration(now.Add(ctExpiresIn))
			}
			if ctNotBeforeIn > 0 {
				p.WithNotBefore(now.Add(ctNotBeforeIn))
			}
			if ctTokenID != "" {
				p.WithTokenID(ctTokenID)
			}
			for _, kv := range ctClaims {
				name, value, err := parseClaim(kv)
				if err != nil {
					return err
				}
				p.AddClaim(name, value)
			}
			if ctClaimsJSON != "" {
				if err := p.AddClaimsJSON([]byte(ctClaimsJSON)); err != nil {
					return err
				}
			}
			tok, err := p.Produce(args[0])
			if err != nil {
				return err
			}
			fmt.Println(tok.Raw)
			return nil
		},
	}
	createTokenCmd.Flags().StringVar(&ctKeyID, "key-id", "", "Clave de firma (vacío = default)")
	createTokenCmd.Flags().StringVar(&ctIssuer, "issuer", "", "Claim iss")
	createTokenCmd.Flags().StringVar(&ctAudience, "audience", "", "Claim aud")
	createTokenCmd.Flags().DurationVar(&ctExpiresIn, "expires-in", time.Hour, "Vigencia desde ahora (claim exp)")
	createTokenCmd.Flags().DurationVar(&ctNotBeforeIn, "not-before-in", 0, "Retraso de validez desde ahora (claim nbf)")
	createTokenCmd.Flags().StringVar(&ctTokenID, "token-id", "", "Claim jti (vacío = aleatorio)")
	createTokenCmd.Flags().StringArrayVar(&ctClaims, "claim", nil, "Claim adicional nombre=valor (repetible; el valor se intenta parsear como JSON)")
	createTokenCmd.Flags().StringVar(&ctClaimsJSON, "claims-json", "", "Objeto JSON con claims adicionales")

	// ─── verify-token ───
	var vtKeyID, vtIssuer, vtAudience, vtIssuedAfter string
	var vtMaxExpiration time.Duration
	var vtNoTimeChecks bool
	verifyTokenCmd := &cobra.Command{
		Use:   "verify-token <token>",
		Short: "Verificar un token y mostrar sus claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kc, err := openCache()
			if err != nil {
				return err
			}
			v := token.NewVerifier(kc)
			if vtKeyID != "" {
				v.ExpectKeyID(vtKeyID)
			}
			if vtIssuer != "" {
				v.ExpectIssuer(vtIssuer)
			}
			if vtAudience != "" {
				v.ExpectAudience(vtAudience)
			}
			if vtIssuedAfter != "" {
				t, err := time.Parse(time.RFC3339, vtIssuedAfter)
				if err != nil {
					return fmt.Errorf("--issued-after: %w", err)
				}
				v.IssuedAfter(t)
			}
			if vtMaxExpiration > 0 {
				v.WithMaxExpiration(vtMaxExpiration)
			}
			if vtNoTimeChecks {
				v.DisableTimeChecks()
			}
			tok, _, err := v.Verify(args[0])
			if err != nil {
				return err
			}
			out := map[string]any{
				"subject": tok.Claims.Subject,
				"key_id":  tok.Header.KeyID,
				"alg":     tok.Header.Alg,
			}
			b, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(b))
			return nil
		},
	}
	verifyTokenCmd.Flags().StringVar(&vtKeyID, "expect-key-id", "", "kid exigido")
	verifyTokenCmd.Flags().StringVar(&vtIssuer, "expect-issuer", "", "iss exigido")
	verifyTokenCmd.Flags().StringVar(&vtAudience, "expect-audience", "", "aud exigido")
	verifyTokenCmd.Flags().StringVar(&vtIssuedAfter, "issued-after", "", "Piso de iat, RFC3339")
	verifyTokenCmd.Flags().DurationVar(&vtMaxExpiration, "max-expiration", 0, "Tope de exp − iat")
	verifyTokenCmd.Flags().BoolVar(&vtNoTimeChecks, "no-time-checks", false, "Saltear los chequeos temporales (debug)")

	// ─── serve ───
	var cfgPath, envFile string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Levantar el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				_ = godotenv.Load(envFile)
			} else {
				_ = godotenv.Load()
			}

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("key-dir") {
				cfg.Keys.Dir = keyDir
			}

			logger.Init(logger.Config{
				Env:         cfg.App.Env,
				Level:       cfg.Log.Level,
				ServiceName: "tokensmith",
			})
			defer logger.Sync()

			kc, err := keys.Open(cfg.Keys.Dir)
			if err != nil {
				return err
			}

			var ccfg cache.Config
			ccfg.Kind = cfg.Cache.Kind
			ccfg.Redis.Addr = cfg.Cache.Redis.Addr
			ccfg.Redis.DB = cfg.Cache.Redis.DB
			ccfg.Redis.Prefix = cfg.Cache.Redis.Prefix
			if cfg.Cache.Memory.DefaultTTL != "" {
				if d, err := time.ParseDuration(cfg.Cache.Memory.DefaultTTL); err == nil {
					ccfg.Memory.DefaultTTL = d
				}
			}
			client, err := cache.New(ccfg)
			if err != nil {
				return err
			}
			defer client.Close()

			srv, err := httpapi.NewServer(cfg, kc, client)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}
	serveCmd.Flags().StringVar(&cfgPath, "config", "", "Ruta al YAML de configuración")
	serveCmd.Flags().StringVar(&envFile, "env-file", "", "Archivo .env a cargar antes de leer la config")

	root.AddCommand(createKeyCmd, listKeysCmd, showPublicCmd, createTokenCmd, verifyTokenCmd, serveCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// parseGenerator mapea flags a un keys.Generator.
func parseGenerator(kind string, bits int, curve string) (*keys.Generator, error) {
	var g keys.Generator
	switch kind {
	case "rsa":
		g = keys.RSA(bits)
	case "ec":
		switch curve {
		case "", "P-521":
			g = keys.EC(elliptic.P521())
		case "P-384":
			g = keys.EC(elliptic.P384())
		case "P-256":
			g = keys.EC(elliptic.P256())
		default:
			return nil, fmt.Errorf("curva no soportada: %s", curve)
		}
	default:
		return nil, fmt.Errorf("kind debe ser rsa o ec, no %q", kind)
	}
	return &g, nil
}

// parseClaim parte "nombre=valor"; el valor se intenta como JSON y si no,
// queda como string literal.
func parseClaim(kv string) (string, any, error) {
	name, raw, ok := strings.Cut(kv, "=")
	if !ok || name == "" {
		return "", nil, fmt.Errorf("claim inválido %q, se espera nombre=valor", kv)
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		v = raw
	}
	return name, v, nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
