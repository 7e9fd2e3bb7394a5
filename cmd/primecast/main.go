package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voyagen/primecast/internal/auth"
	"github.com/voyagen/primecast/internal/browse"
	"github.com/voyagen/primecast/internal/cache"
	"github.com/voyagen/primecast/internal/catalog"
	"github.com/voyagen/primecast/internal/config"
	"github.com/voyagen/primecast/internal/log"
	"github.com/voyagen/primecast/internal/probe"
	"github.com/voyagen/primecast/internal/server"
	"github.com/voyagen/primecast/internal/service"
	"github.com/voyagen/primecast/internal/store"
)

func main() {
	configPath := flag.String("config", "", "Optional config file path (YAML); else use env DATABASE_URL")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log.Configure(log.Config{Level: cfg.LogLevel})
	logger := log.WithComponent("main")

	ctx := context.Background()

	if err := store.EnsureCitext(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("citext extension")
	}
	if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}

	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("db")
	}
	defer pg.Close()

	// Redis is optional: it backs the user list cache, the catalog dataset
	// cache and the refresh queue.
	var rds *cache.Redis
	var users store.Store = pg
	if cfg.RedisURL != "" {
		rds, err = cache.New(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer rds.Close()

		if err := rds.Ping(ctx); err != nil {
			logger.Fatal().Err(err).Msg("redis ping")
		}
		users = store.NewCachedStore(pg, rds)
		logger.Info().Msg("redis connected (caching enabled)")
	} else {
		logger.Info().Msg("redis disabled (REDIS_URL not set)")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat := catalog.New(catalog.NewFetcher(cfg.CatalogURL, cfg.UserAgent, cfg.Timeout), rds, cfg.CatalogTTL)
	prober := probe.New(probe.NewHTTPChecker(cfg.ProbeTimeout, cfg.UserAgent), probe.Options{
		MaxStreamsPerChannel: cfg.ProbeMaxStreams,
		BatchSize:            cfg.ProbeBatchSize,
	})
	sessions := browse.NewManager(cat, prober, cfg.BrowseIdleTTL)
	go sessions.Run(ctx)

	if rds != nil {
		go service.RunCatalogWorker(ctx, rds, cat, 5*time.Second)
	}

	srv := server.New(cfg, server.Deps{
		Accounts: service.NewAccounts(users),
		Browse:   sessions,
		Catalog:  cat,
		Redis:    rds,
		Tokens:   auth.NewIssuer(cfg.SessionSecret, auth.DefaultSessionTTL),
		Admin:    auth.AdminCredentials{Email: cfg.AdminEmail, Password: cfg.AdminPassword},
	})
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error().Err(err).Msg("server")
		os.Exit(1)
	}
}
