package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/anchorbadge/anchorbadge-core/internal/platform/logger"
	"github.com/anchorbadge/anchorbadge-core/pkg/badge"
	"github.com/anchorbadge/anchorbadge-core/pkg/gateway"
	"github.com/anchorbadge/anchorbadge-core/pkg/revocation"
	"github.com/anchorbadge/anchorbadge-core/pkg/scoring"
	"github.com/anchorbadge/anchorbadge-core/pkg/trust"
)

var gatewayFlags struct {
	addr         string
	target       string
	issuerURL    string
	minClearance string
	offline      bool
	trustDir     string
	syncInterval time.Duration
	logLevel     string
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run a badge-enforcing reverse proxy",
}

var gatewayStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway server",
	Long: `Start a reverse proxy that forwards only requests presenting a valid
trust badge in the X-Anchor-Badge header, at or above --min-clearance.

Online mode verifies every badge with the issuer. Offline mode verifies
against the local trust store and an in-memory revocation list polled from
--issuer every --sync-interval.`,
	Example: `  anchorbadge gateway start --target http://localhost:3000 \
    --issuer https://badges.example.com --offline --min-clearance verified`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		minClearance, err := scoring.ParseClearance(gatewayFlags.minClearance)
		if err != nil {
			return err
		}
		if !gatewayFlags.offline && gatewayFlags.issuerURL == "" {
			return fmt.Errorf("--issuer is required unless --offline is set")
		}

		log := logger.New(gatewayFlags.logLevel)
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, gctx := errgroup.WithContext(ctx)

		var verifier gateway.Verifier
		if gatewayFlags.offline {
			keys, err := trust.NewFileStore(gatewayFlags.trustDir)
			if err != nil {
				return fmt.Errorf("failed to open trust store: %w", err)
			}
			revs := revocation.NewMemoryCache()
			if gatewayFlags.issuerURL != "" {
				poller := revocation.NewPoller(revs, badge.NewClient(gatewayFlags.issuerURL), gatewayFlags.syncInterval, log)
				g.Go(func() error { return poller.Run(gctx) })
			} else {
				log.Warn("offline gateway without --issuer never learns of revocations")
			}
			verifier = badge.NewOfflineVerifier(keys, revs)
		} else {
			verifier = badge.NewClient(gatewayFlags.issuerURL)
		}

		gw, err := gateway.NewGateway(gatewayFlags.target, verifier,
			gateway.WithMinClearance(minClearance),
			gateway.WithLogger(log),
		)
		if err != nil {
			return err
		}

		srv := &http.Server{Addr: gatewayFlags.addr, Handler: gw, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			log.Info("gateway listening",
				"addr", gatewayFlags.addr,
				"target", gw.Target().String(),
				"min_clearance", minClearance.Label,
				"offline", gatewayFlags.offline,
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("gateway server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
	gatewayCmd.AddCommand(gatewayStartCmd)

	f := gatewayStartCmd.Flags()
	f.StringVar(&gatewayFlags.addr, "addr", ":8081", "Listen address")
	f.StringVar(&gatewayFlags.target, "target", "http://localhost:3000", "Upstream target URL")
	f.StringVar(&gatewayFlags.issuerURL, "issuer", "", "Issuer base URL")
	f.StringVar(&gatewayFlags.minClearance, "min-clearance", scoring.ClearanceSpectator.Label, "Lowest admitted clearance: spectator, verified, trusted or elite")
	f.BoolVar(&gatewayFlags.offline, "offline", false, "Verify locally with the trust store")
	f.StringVar(&gatewayFlags.trustDir, "trust-dir", "", "Trust store directory (default ~/.anchorbadge/trust)")
	f.DurationVar(&gatewayFlags.syncInterval, "sync-interval", revocation.DefaultPollInterval, "Revocation poll interval in offline mode")
	f.StringVar(&gatewayFlags.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
}
