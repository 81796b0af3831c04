package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"nationsim.io/internal/config"
	"nationsim.io/internal/persistence/kvstore"
	persistlog "nationsim.io/internal/persistence/log"
	"nationsim.io/internal/sim/catalogs"
	"nationsim.io/internal/sim/registry"
	"nationsim.io/internal/sim/tuning"
	"nationsim.io/internal/transport/ws"
)

func main() {
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	cfg.BindFlags(flag.CommandLine)
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("config: %v", err)
	}

	tune, err := tuning.Load(cfg.ResolvedTuningPath())
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", cfg.ResolvedTuningPath())
		tune = tuning.Defaults()
	}
	cat, err := catalogs.Load(cfg.ResolvedCatalogPath())
	if err != nil {
		logger.Fatalf("load catalog: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	store, err := kvstore.Open(ctx, cfg.StoreOptions())
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer store.Close()

	// Optional: read-model index (does not affect the simulation).
	idx, err := openRuntimeIndex(cfg)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertConfig(cat.Raw, tune); err != nil {
			logger.Printf("index backend: upsert config: %v", err)
		}
	}

	var loggers multiLogger
	if idx != nil {
		loggers.ticks = append(loggers.ticks, idx)
		loggers.audits = append(loggers.audits, idx)
	}
	if !cfg.DisableLogs {
		tickLog := persistlog.NewTickLogger(cfg.DataDir)
		auditLog := persistlog.NewAuditLogger(cfg.DataDir)
		defer tickLog.Close()
		defer auditLog.Close()
		loggers.ticks = append(loggers.ticks, tickLog)
		loggers.audits = append(loggers.audits, auditLog)
	}

	reg, err := registry.New(registry.Options{
		Tuning:      tune,
		Store:       store,
		StateKey:    cfg.Store.StateKey,
		Logger:      log.New(os.Stdout, "[registry] ", log.LstdFlags|log.Lmicroseconds),
		TickLogger:  loggers,
		AuditLogger: loggers,
	})
	if err != nil {
		logger.Fatalf("registry: %v", err)
	}
	// Close saves once more; it must run before the store is closed.
	defer reg.Close()

	if err := reg.Load(ctx); err != nil {
		logger.Fatalf("load state: %v", err)
	}
	if len(reg.Rooms()) == 0 {
		for _, name := range cfg.Rooms {
			if err := reg.CreateRoom(name); err != nil {
				logger.Fatalf("create room %s: %v", name, err)
			}
		}
	}
	logger.Printf("rooms=%v tick_period_ms=%d ticks_per_month=%d", reg.Rooms(), tune.TickPeriodMs, tune.TicksPerMonth)

	wsSrv := ws.NewServer(reg, cat, log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds))
	wsSrv.CmdsPerSecond = cfg.CmdsPerSecond

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(cfg, reg, wsSrv, idx, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return reg.Run(gctx)
	})
	g.Go(func() error {
		logger.Printf("listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return srv.Shutdown(ctx2)
	})
	if err := g.Wait(); err != nil {
		logger.Printf("server stopped: %v", err)
	}
	logger.Printf("shutting down: %+v", reg.Stats())
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(ch)
	}()
	return ctx, cancel
}
