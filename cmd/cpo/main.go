package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"cpo/internal/config"
	"cpo/internal/db"
	"cpo/internal/httpapi"
	"cpo/internal/metrics"
	"cpo/internal/models"
	"cpo/internal/ocpiclient"
	"cpo/internal/registry"
	"cpo/internal/repo"
	"cpo/internal/services"
	"cpo/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := cfg.Logger()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("cpo stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var pool *pgxpool.Pool
	if cfg.Storage == config.StoragePostgres || cfg.PartyStore == config.StoragePostgres {
		d, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer d.Close()
		if err := d.Migrate(ctx); err != nil {
			return err
		}
		pool = d.Pool
	}

	var parties registry.PartyStore
	switch cfg.PartyStore {
	case config.StoragePostgres:
		parties = repo.NewPartiesRepo(pool)
	case config.StorageRedis:
		client, err := registry.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		parties = registry.NewRedisStore(client)
	default:
		parties = registry.NewMemoryStore()
	}
	reg := registry.New(parties, log.Named("registry"))
	for _, p := range cfg.Parties {
		if err := reg.Upsert(ctx, p); err != nil {
			return err
		}
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewCollector(promReg)

	svcLog := log.Named("sync")
	dispatcher := services.NewCommandDispatcher(cfg.CommandTimeout, log.Named("commands"),
		func(t models.CommandType, resp models.CommandResponse, _ time.Duration) {
			m.IncrementCommands(string(t), string(resp.Result))
		})

	srv := &httpapi.Server{
		Self:        cfg.Self(),
		ExternalURL: cfg.ExternalURL,
		OpenData:    httpapi.OpenData{Locations: cfg.OpenLocations, Tariffs: cfg.OpenTariffs},
		CORSOrigins: cfg.CORSOrigins,
		Registry:    reg,
		Locations: services.NewResourceService[models.Location](models.KindLocation,
			newStore[models.Location](pool, cfg, models.KindLocation), models.MatchLocation, cfg.AllowDowngrades, svcLog),
		Tariffs: services.NewResourceService[models.Tariff](models.KindTariff,
			newStore[models.Tariff](pool, cfg, models.KindTariff), models.MatchTariff, cfg.AllowDowngrades, svcLog),
		Sessions: services.NewResourceService[models.Session](models.KindSession,
			newStore[models.Session](pool, cfg, models.KindSession), models.MatchSession, cfg.AllowDowngrades, svcLog),
		CDRs: services.NewResourceService[models.CDR](models.KindCDR,
			newStore[models.CDR](pool, cfg, models.KindCDR), models.MatchCDR, cfg.AllowDowngrades, svcLog),
		Tokens: services.NewResourceService[models.Token](models.KindToken,
			newStore[models.Token](pool, cfg, models.KindToken), models.MatchToken, cfg.AllowDowngrades, svcLog),
		Commands:  dispatcher,
		Metrics:   m,
		Observers: []httpapi.Observer{httpapi.LogObserver(log.Named("http")), httpapi.MetricsObserver(m)},
		Log:       log.Named("http"),
	}
	if cfg.MetricsEnabled {
		srv.MetricsHandler = promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})
	}

	clientOpts := cfg.ClientOptions()
	clientOpts.Logger = log.Named("client")
	clientOpts.Observers = []ocpiclient.Observer{ocpiclient.LogObserver(clientOpts.Logger), ocpiclient.MetricsObserver(m)}
	clients := ocpiclient.NewCache(reg, clientOpts)

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go refreshEndpoints(runCtx, reg, clients, log)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("CPO listening", zap.String("addr", cfg.ListenAddr), zap.Stringer("party", cfg.Self()),
			zap.String("storage", cfg.Storage), zap.String("party_store", cfg.PartyStore))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-runCtx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("CPO shutdown complete")
	return nil
}

func newStore[T models.Resource](pool *pgxpool.Pool, cfg config.Config, kind models.Kind) store.Store[T] {
	if cfg.Storage == config.StoragePostgres {
		return repo.NewResourcesRepo[T](pool, kind)
	}
	return store.NewMemory[T]()
}

// refreshEndpoints rediscovers the endpoints of every party we hold an outgoing credential for.
// Parties that cannot be reached keep their stored endpoints.
func refreshEndpoints(ctx context.Context, reg *registry.Registry, clients *ocpiclient.Cache, log *zap.Logger) {
	parties, err := reg.List(ctx)
	if err != nil {
		log.Warn("listing parties for endpoint refresh failed", zap.Error(err))
		return
	}
	for _, p := range parties {
		if _, ok := p.UsableOutgoing(); !ok {
			continue
		}
		ve, err := clients.RefreshEndpoints(ctx, p.ID, reg)
		if err != nil {
			log.Warn("endpoint refresh failed", zap.Stringer("party", p.ID), zap.Error(err))
			continue
		}
		log.Info("endpoints refreshed", zap.Stringer("party", p.ID), zap.String("version", ve.Version),
			zap.Int("endpoints", len(ve.Endpoints)))
	}
}
