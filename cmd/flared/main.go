package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	v1 "go_flare/api/v1"
	"go_flare/internal/cache"
	"go_flare/internal/config"
	"go_flare/internal/db"
	"go_flare/internal/dispatcher"
	"go_flare/internal/dns"
	"go_flare/internal/dns/providers/cloudflare"
	"go_flare/internal/dns/providers/faulty"
	"go_flare/internal/logx"
	"go_flare/internal/status"
	"go_flare/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	zoneLoadTimeout = 30 * time.Second
	shutdownTimeout = 30 * time.Second
)

func main() {
	configPath := flag.String("config", os.Getenv("FLARE_CONFIG"), "path to INI config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "flared: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// 1. Load configuration
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromINI(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logx.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	if err != nil {
		return err
	}
	log := logx.Component(logger, "flared")
	log.Info("Configuration loaded")

	// 2. Initialize MySQL
	if err := db.InitMySQL(cfg.MySQL.DSN); err != nil {
		return err
	}
	defer db.Close()
	log.Info("MySQL connected")

	if cfg.Migrate {
		if err := db.Migrate(db.GetDB(), log); err != nil {
			return err
		}
	}

	// 3. Initialize Redis
	if err := cache.InitRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
		return err
	}
	defer cache.Close()
	log.Info("Redis connected")

	// 4. DNS provider and zones
	cf := cloudflare.NewCloudflareProvider(cfg.Cloudflare.Email, cfg.Cloudflare.APIToken)
	var provider dns.Provider = cf
	if cfg.FaultRate > 0 {
		log.Warnf("Fault injection enabled: %.0f%% of provider calls will fail", cfg.FaultRate*100)
		provider = faulty.New(cf, faulty.Config{
			FailureRate:      cfg.FaultRate,
			RateLimitedShare: 0.25,
			Source:           rand.NewSource(time.Now().UnixNano()),
		})
	}

	zoneCtx, cancelZones := context.WithTimeout(context.Background(), zoneLoadTimeout)
	zones, err := dns.LoadZoneDirectory(zoneCtx, dns.LoadOptions{
		Lister:     cf,
		Snapshots:  dns.NewSnapshotStore(db.GetDB(), "cloudflare"),
		StaticFile: cfg.ZonesFile,
		Logger:     logx.Component(logger, "zone-loader"),
	})
	cancelZones()
	if err != nil {
		return fmt.Errorf("failed to load zones: %w", err)
	}
	log.Infof("Loaded %d zones", zones.Len())

	// 5. Reporters and dispatcher
	var d *dispatcher.Dispatcher
	socket := ws.NewServer(logrus.NewEntry(logger), func() interface{} {
		return d.Stats()
	})

	reporter := status.Multi{
		status.NewLogReporter(logrus.NewEntry(logger)),
		status.NewDBReporter(db.GetDB(), logrus.NewEntry(logger)),
		status.NewPubSubReporter(cache.Client, cfg.Redis.Channel, logrus.NewEntry(logger)),
		status.NewSocketReporter(socket),
	}

	dc := cfg.Dispatcher
	d = dispatcher.New(dispatcher.Config{
		RateLimit:      dc.RateLimit,
		RateWindow:     dc.RateWindow(),
		MaxConcurrent:  dc.MaxConcurrent,
		AttemptTimeout: dc.AttemptTimeout(),
		RetryBaseDelay: dc.RetryBaseDelay(),
		MaxRetries:     dc.MaxRetries,
		BatchWindow:    dc.BatchWindow(),
	}, zones, provider, reporter,
		dispatcher.WithLogger(logrus.NewEntry(logger)),
		dispatcher.WithMetrics(dispatcher.NewMetrics(prometheus.DefaultRegisterer)),
	)

	// 6. HTTP server
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	v1.SetupRouter(r, v1.Dependencies{
		Dispatcher: d,
		Socket:     socket,
		Logger:     logrus.NewEntry(logger),
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d.Start()

	go func() {
		if err := socket.Serve(); err != nil {
			log.Errorf("Socket.IO server error: %v", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("Server starting on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Stop intake first so no flare is accepted after the dispatcher closes
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnf("HTTP shutdown: %v", err)
		}
		if err := d.Stop(shutdownCtx); err != nil {
			log.Warnf("Dispatcher stop: %v", err)
		}
		return socket.Close()
	})

	return g.Wait()
}
