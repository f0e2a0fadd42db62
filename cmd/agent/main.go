// Command agent runs an external analysis command as a scheduler agent.
//
// The scheduler starts it with --scheduler_start, --userID and --jobId and
// feeds upload ids on stdin; every upload id runs the --exec command with
// the id appended:
//
//	agent --name nomos --agent-version 3.1 --exec "nomossa --json" --scheduler_start --jobId 7
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/me/agentq/internal/agent"
	"github.com/me/agentq/internal/config"
	"github.com/me/agentq/internal/logging"
	"github.com/me/agentq/internal/store"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var (
		configFile  string
		name        string
		version     string
		revision    string
		description string
		execLine    string
		dbDriver    string
		db          string
		logLevel    string
		logFormat   string
		debug       bool
	)

	fs := pflag.NewFlagSet("agent", pflag.ContinueOnError)
	fs.StringVar(&configFile, "config", os.Getenv("AGENTQ_CONFIG"), "Config file, YAML or TOML (or AGENTQ_CONFIG env)")
	fs.StringVar(&name, "name", "", "Agent type name, e.g. nomos")
	fs.StringVar(&version, "agent-version", "", "Agent version")
	fs.StringVar(&revision, "agent-revision", "", "Agent revision (commit)")
	fs.StringVar(&description, "description", "", "Agent description")
	fs.StringVar(&execLine, "exec", "", "Command run per upload; the upload id is appended")
	fs.StringVar(&dbDriver, "db-driver", "", "Database driver (sqlite, postgres)")
	fs.StringVar(&db, "db", "", "Database DSN")
	fs.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&logFormat, "log-format", "", "Log format (text, json)")
	fs.BoolVar(&debug, "debug", false, "Shorthand for --log-level=debug")
	fs.Duration("heartbeat", 0, "Heartbeat interval (overrides agent.heartbeat_interval)")

	// Scheduler options share the command line and are parsed separately.
	if err := agent.ParseKnown(fs, args); err != nil {
		fmt.Fprintf(os.Stderr, "agent: %v\n", err)
		return agent.ExitFailure
	}
	opts, err := agent.ParseOptions(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "agent: %v\n", err)
		return agent.ExitFailure
	}

	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "agent: load config: %v\n", err)
			return agent.ExitFailure
		}
		cfg = *loaded
	}
	if dbDriver != "" {
		cfg.Database.Driver = dbDriver
	}
	if db != "" {
		cfg.Database.DSN = db
	}
	if hb, _ := fs.GetDuration("heartbeat"); hb > 0 {
		cfg.Agent.HeartbeatInterval = hb
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	// stdout carries the scheduler protocol; logs go to stderr.
	logger, err := logging.New(cfg.Logging, name, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		return agent.ExitFailure
	}

	command := strings.Fields(execLine)
	if len(command) == 0 {
		logger.Error("--exec is required")
		return agent.ExitFailure
	}

	dsn, err := cfg.ResolveDSN()
	if err != nil {
		logger.Error("resolve database", "error", err)
		return agent.ExitFailure
	}
	st, err := store.Open(cfg.Database.Driver, dsn, logger)
	if err != nil {
		logger.Error("open database", "error", err)
		return agent.ExitFailure
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := st.Migrate(ctx); err != nil {
		logger.Error("migrate database", "error", err)
		return agent.ExitFailure
	}

	proc, err := agent.NewCommandProcessor(command, opts, logger)
	if err != nil {
		logger.Error("create processor", "error", err)
		return agent.ExitFailure
	}

	rt, err := agent.New(ctx, agent.Config{
		Name:              name,
		Version:           version,
		Revision:          revision,
		Description:       description,
		HeartbeatInterval: cfg.Agent.HeartbeatInterval,
	}, st, proc, logger)
	if err != nil {
		logger.Error("agent startup failed", "error", err)
		return agent.ExitFailure
	}

	return rt.Run(ctx, opts, os.Stdin, os.Stdout)
}
