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

	"github.com/me/agentq/internal/config"
	"github.com/me/agentq/internal/logging"
	"github.com/me/agentq/internal/queue"
	"github.com/me/agentq/internal/scheduler"
	"github.com/me/agentq/internal/server"
	"github.com/me/agentq/internal/store"
)

func main() {
	configFile := flag.String("config", os.Getenv("AGENTQ_CONFIG"), "Path to config file, YAML or TOML (or AGENTQ_CONFIG env)")
	addr := flag.String("addr", "", "Listen address (overrides server.addr)")
	dbDriver := flag.String("db-driver", "", "Database driver: sqlite, postgres")
	db := flag.String("db", "", "Database DSN (default ~/.agentq/agentq.db)")
	schedAddr := flag.String("scheduler", "", "Scheduler address host:port")
	noNotify := flag.Bool("no-notify", false, "Do not notify the scheduler of queue changes")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "Log format (text, json)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = *loaded
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dbDriver != "" {
		cfg.Database.Driver = *dbDriver
	}
	if *db != "" {
		cfg.Database.DSN = *db
	}
	if *schedAddr != "" {
		cfg.Scheduler.Addr = *schedAddr
	}
	if *noNotify {
		cfg.Scheduler.Disabled = true
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if *debug {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging, "server", os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	dsn, err := cfg.ResolveDSN()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// Open store and run migrations.
	st, err := store.Open(cfg.Database.Driver, dsn, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Migrate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
		os.Exit(1)
	}
	logger.Info("database ready", "driver", cfg.Database.Driver)

	reg, err := queue.LoadRegistry(st, cfg.Agents, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "agents: %v\n", err)
		os.Exit(1)
	}

	var notifier scheduler.Notifier = scheduler.Nop{}
	schedulerAddr := ""
	if !cfg.Scheduler.Disabled {
		notifier = scheduler.NewClient(cfg.Scheduler.Addr, cfg.Scheduler.Timeout, logger)
		schedulerAddr = cfg.Scheduler.Addr
	} else {
		logger.Info("scheduler notification disabled")
	}

	mgr := queue.NewManager(st, reg, notifier, logger)
	srv := server.New(cfg.Server, st, mgr, logger,
		server.WithDefaultOwner(cfg.UserID),
		server.WithSchedulerAddr(schedulerAddr),
	)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Handler(),
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server starting", "addr", cfg.Server.Addr, "agents", reg.Names())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
