package main

import (
	"context"
	"fmt"
	"time"

	"github.com/trailhound/trailhound/internal/cache"
	"github.com/trailhound/trailhound/internal/config"
	"github.com/trailhound/trailhound/internal/connectors"
	"github.com/trailhound/trailhound/internal/discovery"
	"github.com/trailhound/trailhound/internal/fetch"
	"github.com/trailhound/trailhound/internal/graph"
	"github.com/trailhound/trailhound/internal/investigation"
	"github.com/trailhound/trailhound/internal/metrics"
	"github.com/trailhound/trailhound/internal/parse"
	"github.com/trailhound/trailhound/internal/ratelimit"
	"github.com/trailhound/trailhound/internal/storage"
)

// app wires the pipeline components for one process
type app struct {
	registry *connectors.Registry
	store    storage.Store
	manager  *investigation.Manager
	metrics  *metrics.Metrics

	mirror  *cache.RedisMirror
	backend graph.Backend
}

// buildApp constructs every component from the loaded configuration.
// Optional externals (redis mirror, neo4j export) degrade with a warning
// instead of failing startup.
func buildApp(ctx context.Context) (*app, error) {
	creds := config.NewCredentialStore(cfg.Connectors.UseKeyring)
	registry := connectors.BuildRegistry(cfg, creds)

	limiter := ratelimit.NewController()
	for _, name := range registry.Names() {
		conn, _ := registry.Get(name)
		limiter.Register(name, conn.RateLimitPerHour())
	}

	var mirror *cache.RedisMirror
	if cfg.Cache.RedisAddr != "" {
		var err error
		mirror, err = cache.NewRedisMirror(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisDB)
		if err != nil {
			logger.WithError(err).Warn("Redis cache mirror unavailable, continuing without it")
			mirror = nil
		}
	}
	var cacheMirror cache.Mirror
	if mirror != nil {
		cacheMirror = mirror
	}
	resultCache := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL, cfg.Cache.PerSource, cacheMirror)

	blocklist := discovery.DefaultBlocklist()
	if cfg.Security.BlocklistFile != "" {
		var err error
		blocklist, err = discovery.LoadBlocklist(cfg.Security.BlocklistFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load blocklist: %w", err)
		}
	}
	planner := discovery.NewPlanner(registry, blocklist, cfg.Pipeline.PlanQueryCap)

	scheduler := fetch.New(registry, resultCache, limiter, fetch.Options{
		MaxConcurrent:    cfg.Pipeline.MaxConcurrentQueries,
		QueryTimeout:     cfg.Pipeline.QueryTimeout,
		RetryMaxAttempts: cfg.Pipeline.RetryMaxAttempts,
		RetryBase:        cfg.Pipeline.BackoffBase,
		RetryFactor:      cfg.Pipeline.BackoffFactor,
		RetryCap:         cfg.Pipeline.BackoffCap,
		RetryJitterFrac:  cfg.Pipeline.BackoffJitterFrac,
		MaxContentBytes:  cfg.Security.MaxContentBytes,
	})

	store, err := storage.Open(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open investigation store: %w", err)
	}

	var backend graph.Backend
	if cfg.Graph.Neo4jURI != "" {
		b, err := graph.NewNeo4jBackend(ctx, cfg.Graph.Neo4jURI, cfg.Graph.Neo4jUser, cfg.Graph.Neo4jPassword, "neo4j", "")
		if err != nil {
			logger.WithError(err).Warn("Neo4j graph export unavailable, continuing without it")
		} else {
			backend = b
		}
	}

	met := metrics.New()
	manager := investigation.NewManager(investigation.Deps{
		Registry:     registry,
		Planner:      planner,
		Scheduler:    scheduler,
		Parser:       parse.New(cfg.Security.MaxContentBytes, true),
		Store:        store,
		GraphBackend: backend,
		Metrics:      met,
		Pipeline:     cfg.Pipeline,
	})

	return &app{
		registry: registry,
		store:    store,
		manager:  manager,
		metrics:  met,
		mirror:   mirror,
		backend:  backend,
	}, nil
}

// Close releases external connections
func (a *app) Close() {
	if a.backend != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.backend.Close(ctx); err != nil {
			logger.WithError(err).Warn("Neo4j close failed")
		}
		cancel()
	}
	if a.mirror != nil {
		if err := a.mirror.Close(); err != nil {
			logger.WithError(err).Warn("Redis close failed")
		}
	}
	if err := a.store.Close(); err != nil {
		logger.WithError(err).Warn("Store close failed")
	}
}
