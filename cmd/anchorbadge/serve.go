package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/anchorbadge/anchorbadge-core/internal/platform/config"
	"github.com/anchorbadge/anchorbadge-core/internal/platform/database"
	"github.com/anchorbadge/anchorbadge-core/internal/platform/logger"
	platformredis "github.com/anchorbadge/anchorbadge-core/internal/platform/redis"
	httptransport "github.com/anchorbadge/anchorbadge-core/internal/transport/http"
	"github.com/anchorbadge/anchorbadge-core/pkg/anchor"
	"github.com/anchorbadge/anchorbadge-core/pkg/audit"
	"github.com/anchorbadge/anchorbadge-core/pkg/badge"
	"github.com/anchorbadge/anchorbadge-core/pkg/crypto"
	"github.com/anchorbadge/anchorbadge-core/pkg/metrics"
	"github.com/anchorbadge/anchorbadge-core/pkg/store"
)

const redisStatsInterval = 15 * time.Second

var serveFlags struct {
	addr           string
	issuer         string
	validity       time.Duration
	store          string
	signingKeyFile string
	migrate        bool
	logLevel       string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the badge issuer API",
	Long: `Run the badge issuer HTTP API.

Configuration is read from the environment (BADGE_ADDR, BADGE_ISSUER,
BADGE_VALIDITY, BADGE_SIGNING_KEY, BADGE_SIGNING_KEY_FILE, BADGE_STORE,
DATABASE_URL, REDIS_URL, BADGE_STORE_TIMEOUT, BADGE_AUDIT_BUFFER,
BADGE_ADMIN_TOKEN, BADGE_DB_MIGRATE, BADGE_LOG_LEVEL). Flags override it.

Without a signing key an ephemeral one is generated; badges it signs stop
verifying once the process exits.`,
	Example: `  # Development server with in-memory storage
  anchorbadge serve

  # Postgres-backed server
  DATABASE_URL=postgres://localhost/anchorbadge anchorbadge serve --store postgres --migrate --signing-key-file issuer.key.jwk`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.FromEnv()
		if err != nil {
			return err
		}
		applyServeFlags(cmd, &cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, logger.New(cfg.LogLevel))
	},
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Server) {
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr = serveFlags.addr
	}
	if flags.Changed("issuer") {
		cfg.Issuer = serveFlags.issuer
	}
	if flags.Changed("validity") {
		cfg.Validity = serveFlags.validity
	}
	if flags.Changed("store") {
		cfg.Store = serveFlags.store
	}
	if flags.Changed("signing-key-file") {
		cfg.SigningKeyFile = serveFlags.signingKeyFile
		cfg.SigningKey = ""
	}
	if flags.Changed("migrate") {
		cfg.Migrate = serveFlags.migrate
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = serveFlags.logLevel
	}
}

// backends are the storage collaborators of one server process.
type backends struct {
	badges  badge.Store
	anchors anchor.Store
	audit   audit.Store
	redis   *platformredis.Client
	closers []func() error
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i]()
	}
}

// openBackends connects the configured store. Anchors and audit records live in
// Postgres when the badge store does; otherwise they stay in memory.
func openBackends(ctx context.Context, cfg config.Server, reg prometheus.Registerer, health *httptransport.Health) (*backends, error) {
	b := &backends{
		badges:  store.NewMemoryStore(),
		anchors: anchor.NewInMemoryStore(),
		audit:   audit.NewInMemoryStore(),
	}

	switch cfg.Store {
	case config.StorePostgres:
		dbCfg := database.DefaultConfig()
		dbCfg.URL = cfg.DatabaseURL
		pool, err := database.New(ctx, dbCfg)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, pool.Close)
		if cfg.Migrate {
			if err := database.Migrate(ctx, pool.DB()); err != nil {
				b.Close()
				return nil, err
			}
		}
		b.badges = store.NewPostgresStore(pool.DB())
		b.anchors = anchor.NewPostgresStore(pool.DB())
		b.audit = audit.NewPostgresStore(pool.DB())
		health.RegisterCheck("postgres", pool.Health)

	case config.StoreRedis:
		client, err := platformredis.New(ctx, cfg.RedisURL, reg)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, client.Close)
		b.badges = store.NewRedisStore(client.Client)
		b.redis = client
		health.RegisterCheck("redis", client.Health)
	}
	return b, nil
}

func loadSigningKey(cfg config.Server, log *slog.Logger) (*crypto.KeyManager, error) {
	switch {
	case cfg.SigningKeyFile != "":
		data, err := os.ReadFile(cfg.SigningKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read signing key file: %w", err)
		}
		return crypto.LoadKeyManagerFromJWK(data)
	case cfg.SigningKey != "":
		return crypto.NewKeyManagerFromBase64(cfg.SigningKey)
	default:
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate key: %w", err)
		}
		log.Warn("no signing key configured, using an ephemeral key")
		return crypto.NewKeyManager(priv)
	}
}

func serve(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	keys, err := loadSigningKey(cfg, log)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	health := httptransport.NewHealth(2 * time.Second)

	b, err := openBackends(ctx, cfg, reg, health)
	if err != nil {
		return err
	}
	defer b.Close()

	recorder := audit.NewRecorder(b.audit,
		audit.WithAsyncBuffer(cfg.AuditBuffer),
		audit.WithLogger(log),
		audit.WithDropCounter(m.AuditDropped),
		audit.WithFailureCounter(m.AuditWriteFailure),
	)
	defer recorder.Close()

	mgr, err := badge.NewManager(badge.ManagerConfig{
		Issuer:       cfg.Issuer,
		Validity:     cfg.Validity,
		StoreTimeout: cfg.StoreTimeout,
	}, b.badges, crypto.NewSigner(keys), nil,
		badge.WithAnchorStore(b.anchors),
		badge.WithAuditRecorder(recorder),
		badge.WithMetrics(m),
		badge.WithLogger(log),
	)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httptransport.NewRouter(httptransport.Config{
			Service:        mgr,
			JWKS:           keys.JWKS,
			Logger:         log,
			AdminToken:     cfg.AdminToken,
			RequestTimeout: cfg.RequestTimeout,
			Gatherer:       reg,
			Health:         health,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("badge issuer listening",
			"addr", cfg.Addr,
			"store", cfg.Store,
			"issuer", cfg.Issuer,
			"key_id", keys.KeyID(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if b.redis != nil {
		g.Go(func() error {
			b.redis.RunPoolStats(gctx, redisStatsInterval)
			return nil
		})
	}
	return g.Wait()
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.StringVar(&serveFlags.addr, "addr", config.DefaultAddr, "Listen address")
	f.StringVar(&serveFlags.issuer, "issuer", config.DefaultIssuer, "Issuer written to the iss claim")
	f.DurationVar(&serveFlags.validity, "validity", config.DefaultValidity, "Badge validity period")
	f.StringVar(&serveFlags.store, "store", config.StoreMemory, "Badge store: memory, postgres or redis")
	f.StringVar(&serveFlags.signingKeyFile, "signing-key-file", "", "Private JWK written by \"anchorbadge key gen\"")
	f.BoolVar(&serveFlags.migrate, "migrate", false, "Apply the embedded schema on start (postgres)")
	f.StringVar(&serveFlags.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
}
