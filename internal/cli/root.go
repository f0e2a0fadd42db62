package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/agentq/internal/config"
	"github.com/me/agentq/internal/logging"
	"github.com/me/agentq/internal/queue"
	"github.com/me/agentq/internal/scheduler"
	"github.com/me/agentq/internal/store"
)

var (
	flagConfig    string
	flagDBDriver  string
	flagDB        string
	flagScheduler string
	flagNoNotify  bool
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	cfg    *config.Config
	st     store.Store
	mgr    *queue.Manager
)

// defaultConfigPath returns the config file named by AGENTQ_CONFIG, if any.
func defaultConfigPath() string {
	return os.Getenv("AGENTQ_CONFIG")
}

// NewRootCmd creates the root cobra command for the agentq CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agentq",
		Short: "agentq: dependency-aware job queue for analysis agents",
		Long:  "agentq schedules analysis agents on uploads, resolving agent dependencies and notifying the scheduler.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd)
		},
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flagConfig, "config", defaultConfigPath(), "Config file, YAML or TOML (or AGENTQ_CONFIG env)")
	pf.StringVar(&flagDBDriver, "db-driver", "", "Database driver (sqlite, postgres)")
	pf.StringVar(&flagDB, "db", "", "Database DSN (file path for sqlite)")
	pf.StringVar(&flagScheduler, "scheduler", "", "Scheduler address host:port")
	pf.BoolVar(&flagNoNotify, "no-notify", false, "Do not notify the scheduler of queue changes")
	pf.BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&flagLogFormat, "log-format", "", "Log format (text, json)")

	root.AddCommand(
		newScheduleCmd(),
		newUploadCmd(),
		newJobCmd(),
		newTaskCmd(),
		newTasksCmd(),
		newAgentsCmd(),
	)

	return root
}

// Execute runs the agentq CLI with args and closes the store opened for the
// command, whether or not it succeeded.
func Execute(args []string, stdout, stderr io.Writer) error {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	defer func() {
		if st != nil {
			st.Close()
			st = nil
		}
	}()
	return root.Execute()
}

// setup loads configuration, applies flag overrides and opens the store and
// queue manager shared by every subcommand.
func setup(cmd *cobra.Command) error {
	c := config.Default()
	if flagConfig != "" {
		loaded, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		c = *loaded
	}

	if flagDBDriver != "" {
		c.Database.Driver = flagDBDriver
	}
	if flagDB != "" {
		c.Database.DSN = flagDB
	}
	if flagScheduler != "" {
		c.Scheduler.Addr = flagScheduler
	}
	if flagNoNotify {
		c.Scheduler.Disabled = true
	}
	if flagLogLevel != "" {
		c.Logging.Level = flagLogLevel
	}
	if flagLogFormat != "" {
		c.Logging.Format = flagLogFormat
	}
	if flagDebug {
		c.Logging.Level = "debug"
	}
	if err := c.Validate(); err != nil {
		return err
	}
	cfg = &c

	l, err := logging.New(c.Logging, "cli", cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	logger = l

	dsn, err := c.ResolveDSN()
	if err != nil {
		return err
	}
	s, err := store.Open(c.Database.Driver, dsn, logger)
	if err != nil {
		return err
	}
	if err := s.Migrate(context.Background()); err != nil {
		s.Close()
		return fmt.Errorf("migrate: %w", err)
	}

	reg, err := queue.LoadRegistry(s, c.Agents, logger)
	if err != nil {
		s.Close()
		return fmt.Errorf("agents: %w", err)
	}

	var n scheduler.Notifier = scheduler.Nop{}
	if !c.Scheduler.Disabled {
		n = scheduler.NewClient(c.Scheduler.Addr, c.Scheduler.Timeout, logger)
	}

	st = s
	mgr = queue.NewManager(s, reg, n, logger)
	return nil
}
