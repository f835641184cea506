package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quarry-network/quarry/internal/api"
	"github.com/quarry-network/quarry/internal/app/ledger"
	"github.com/quarry-network/quarry/internal/app/worker"
	"github.com/quarry-network/quarry/internal/infra/events"
	"github.com/quarry-network/quarry/internal/infra/sqlite"
)

// Daemon is the core Quarry runtime. It wires together all services:
// everything is explicitly constructed and injected, nothing is
// reached through ambient globals.
type Daemon struct {
	Config Config
	DB     *sqlite.DB
	Bus    *events.Bus
	Ledger *ledger.Ledger
	Worker *worker.Scheduler
	Server *api.Server
	cancel context.CancelFunc
}

// New creates and initializes a Daemon with all services wired.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	db, err := sqlite.Open(quarryHome())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	bus := events.NewBus()

	ledgerCfg := ledger.Config{
		MinPayment:       cfg.Ledger.MinPayment,
		StakePct:         cfg.Ledger.StakePct,
		FeeBps:           cfg.Ledger.FeeBps,
		AutoApproveDelay: time.Duration(cfg.Ledger.AutoApproveHours) * time.Hour,
		MaxResultLen:     cfg.Ledger.MaxResultLen,
		MinDeadlineHours: 1,
		MaxDeadlineHours: 168,
		Arbiter:          cfg.Ledger.Arbiter,
		FeeAccount:       cfg.Ledger.FeeAccount,
	}
	l := ledger.New(db, ledgerCfg, bus)

	srv := api.NewServer(l)
	srv.SetBus(bus)
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}

	d := &Daemon{
		Config: cfg,
		DB:     db,
		Bus:    bus,
		Ledger: l,
		Server: srv,
	}

	if cfg.Worker.Enabled {
		workerCfg := worker.Config{
			Address:             cfg.Worker.Address,
			ScanInterval:        parseDuration(cfg.Worker.ScanInterval, 15*time.Second),
			ScanWindow:          cfg.Worker.ScanWindow,
			MinPayment:          cfg.Worker.MinPayment,
			MaxConcurrent:       cfg.Worker.MaxConcurrent,
			ConfidenceThreshold: cfg.Worker.ConfidenceThreshold,
			ProcessingTimeout:   parseDuration(cfg.Worker.ProcessingTimeout, 2*time.Minute),
			QuarantineDuration:  parseDuration(cfg.Worker.QuarantineDuration, 10*time.Minute),
			QueryRetries:        3,
			QueryBaseDelay:      250 * time.Millisecond,
		}
		// Deterministic stand-ins until a real evaluator/executor is
		// plugged in (they are external collaborators).
		d.Worker = worker.New(workerCfg, l,
			worker.NewMockEvaluator(80),
			&worker.MockExecutor{Delay: time.Second},
			bus,
		)
		srv.SetScheduler(d.Worker)
	}

	return d, nil
}

// Serve starts the worker and the HTTP server, blocking until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if d.Worker != nil {
		d.Worker.Start(ctx)
	}

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // Long for the SSE event feed
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if d.Worker != nil {
			d.Worker.Stop()
		}
		_ = httpServer.Shutdown(shutdownCtx)
		_ = d.DB.Close()
	}()

	fmt.Printf("Quarry serving on http://%s\n", addr)
	if d.Config.Worker.Enabled {
		fmt.Printf("  Worker: %s (max %d concurrent)\n", d.Config.Worker.Address, d.Config.Worker.MaxConcurrent)
	}
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Worker != nil {
		d.Worker.Stop()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}
