// Copyright (C) 2025, MarketForge Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketforge/cpv/core"
	"github.com/marketforge/cpv/pkg/api"
	"github.com/marketforge/cpv/pkg/billing"
	"github.com/marketforge/cpv/pkg/catalog"
	"github.com/marketforge/cpv/pkg/config"
	"github.com/marketforge/cpv/pkg/gate"
	"github.com/marketforge/cpv/pkg/limiter"
	"github.com/marketforge/cpv/pkg/log"
	"github.com/marketforge/cpv/pkg/metric"
	"github.com/marketforge/cpv/pkg/qualify"
	"github.com/marketforge/cpv/pkg/ranking"
	"github.com/marketforge/cpv/pkg/storage"
	"github.com/marketforge/cpv/pkg/viewledger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	var (
		port           = flag.Int("port", 8080, "Public API port")
		adminPort      = flag.Int("admin-port", 9090, "Admin/metrics port")
		dbType         = flag.String("db", "badger", "Storage backend (badger|memory)")
		dbPath         = flag.String("db-path", "/var/lib/cpv", "Storage path for badger")
		logLevel       = flag.String("log-level", "info", "Log level")
		accessCode     = flag.String("investor-code", "", "Investor gate access code")
		dwellDirect    = flag.Int64("min-dwell-direct-ms", 30000, "Minimum dwell for direct views")
		dwellListing   = flag.Int64("min-dwell-listing-ms", 10000, "Minimum dwell for listing impressions")
		minScroll      = flag.Int("min-scroll-depth", 50, "Minimum scroll depth percent")
		dedupWindow    = flag.Duration("dedup-window", 5*time.Second, "View dedup window")
		maxAttempts    = flag.Int("gate-max-attempts", 5, "Gate failures before lockout")
		lockoutWindow  = flag.Duration("gate-lockout", 15*time.Minute, "Gate lockout window")
		sweepInterval  = flag.Duration("sweep-interval", 10*time.Minute, "Housekeeping sweep interval")
		seedDemo       = flag.Bool("seed-demo", false, "Seed demo vendors and products")
		releaseMode    = flag.Bool("release", true, "Run gin in release mode")
		version        = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *version {
		fmt.Printf("cpvd v%s (commit: %s, built: %s)\n", Version, GitCommit, BuildTime)
		os.Exit(0)
	}

	logger := log.NewWithLevel(*logLevel)
	defer logger.Sync()

	cfg := config.DefaultConfig()
	cfg.Qualification.MinDwellMsDirect = *dwellDirect
	cfg.Qualification.MinDwellMsListing = *dwellListing
	cfg.Qualification.MinScrollDepth = *minScroll
	cfg.DedupWindow = *dedupWindow
	cfg.Limiter.MaxAttempts = *maxAttempts
	cfg.Limiter.LockoutWindow = *lockoutWindow
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", "error", err.Error())
	}

	store, err := storage.NewStorage(*dbType, *dbPath)
	if err != nil {
		logger.Fatal("failed to open storage", "error", err.Error())
	}
	defer store.Close()

	metrics, err := metric.NewMetrics()
	if err != nil {
		logger.Fatal("failed to init metrics", "error", err.Error())
	}

	dir := catalog.NewDirectory()
	rates := catalog.NewRates()
	if *seedDemo {
		seed(dir, rates)
		logger.Info("demo catalog seeded")
	}

	views := viewledger.NewLedger(store, dir, cfg.DedupWindow, logger)
	ranker := ranking.NewRanker(dir, rates, nil, cfg.Ranking, logger)
	bills := billing.NewLedger(store, rates, views, ranker, ranker, cfg.Billing, logger)
	ranker.SetBalanceSource(bills)
	engine := qualify.NewEngine(views, bills, cfg.Qualification, logger)

	lim := limiter.New(cfg.Limiter.MaxAttempts, cfg.Limiter.LockoutWindow, logger)

	code := *accessCode
	if code == "" {
		code = os.Getenv("CPV_INVESTOR_CODE")
	}
	if code == "" {
		logger.Warn("no investor access code configured, gate disabled with random code")
		code = fmt.Sprintf("disabled-%d", time.Now().UnixNano())
	}
	investorGate, err := gate.New(code, lim, logger)
	if err != nil {
		logger.Fatal("failed to init investor gate", "error", err.Error())
	}

	server := api.NewServer(views, engine, bills, ranker, investorGate, metrics, cfg, logger)

	publicSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: server.Router(*releaseMode),
	}
	adminSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", *adminPort),
		Handler: server.AdminRouter(),
	}

	go func() {
		logger.Info("public API listening", "addr", publicSrv.Addr, "version", Version)
		if err := publicSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("public server failed", "error", err.Error())
		}
	}()
	go func() {
		logger.Info("admin server listening", "addr", adminSrv.Addr)
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("admin server failed", "error", err.Error())
		}
	}()

	// Housekeeping: expire stale attempt records and abandoned raw views.
	stopSweep := make(chan struct{})
	go func() {
		ticker := time.NewTicker(*sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				lim.Sweep()
				if n := views.SweepStaleRaw(cfg.RawViewTTL); n > 0 {
					metrics.ViewsExpired.Add(float64(n))
				}
			case <-stopSweep:
				return
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	close(stopSweep)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	publicSrv.Shutdown(ctx)
	adminSrv.Shutdown(ctx)
}

// seed loads a small demo catalog so the engine is exercisable out of
// the box.
func seed(dir *catalog.Directory, rates *catalog.Rates) {
	rates.SetProfile(&core.CategoryRateProfile{
		CategoryID:      "cat-electronics",
		BaseViewRate:    decimal.NewFromFloat(0.08),
		MinBidAmount:    decimal.NewFromFloat(0.05),
		MaxBidAmount:    decimal.NewFromFloat(0.50),
		Competitiveness: core.CompetitivenessHigh,
	})
	rates.SetProfile(&core.CategoryRateProfile{
		CategoryID:      "cat-furniture",
		BaseViewRate:    decimal.NewFromFloat(0.05),
		MinBidAmount:    decimal.NewFromFloat(0.02),
		MaxBidAmount:    decimal.NewFromFloat(0.25),
		Competitiveness: core.CompetitivenessMedium,
	})

	dir.AddProduct(&core.Product{
		ProductID:  "prod-1001",
		VendorID:   "vendor-alpha",
		CategoryID: "cat-electronics",
		Active:     true,
		Rating:     decimal.NewFromFloat(4.6),
	})
	dir.AddProduct(&core.Product{
		ProductID:  "prod-1002",
		VendorID:   "vendor-beta",
		CategoryID: "cat-furniture",
		Active:     true,
		Rating:     decimal.NewFromFloat(4.1),
	})
}
