package cmd

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/jcdickinson/daemonize/internal/config"
	"github.com/jcdickinson/daemonize/internal/daemon"
	"github.com/jcdickinson/daemonize/internal/launch"
	"github.com/jcdickinson/daemonize/internal/logging"
	"github.com/spf13/cobra"
)

const usage = "Usage: ./daemonize <executable> [args...]"

// Swapped out in tests so no real processes are started or exited.
var (
	newSystem      = daemon.OS
	newStageLogger = logging.Stage
	newLogger      = logging.Invoker
	exit           = os.Exit
)

var rootCmd = &cobra.Command{
	Use:   "daemonize <executable> [args...]",
	Short: "Run an executable as a detached daemon with its own command line",
	Long: `Detach an executable from the terminal and session and exec it, so the
daemon's command line starts with its own name rather than a wrapper's.
Process monitors that look pollers up by command line rely on this.

Arguments after the executable are passed through unchanged, flags included.
argv[0] is the executable's basename unless DAEMONIZE_ARGV0 (or argv0 in
config.toml) selects "path" or "fixed".`,
	Example: `  daemonize /opt/harvest/bin/poller --poller dc1 --daemon
  DAEMONIZE_ARGV0=fixed DAEMONIZE_NAME=poller daemonize ./bin/poller --poller dc1`,
	Args:               cobra.ArbitraryArgs,
	DisableFlagParsing: true,
	SilenceUsage:       true,
	SilenceErrors:      true,
	RunE:               runDaemonize,
}

// Execute runs the CLI, or the next step of a detach sequence when this
// process is one of the re-executed stages.
func Execute() {
	if plan, ok, err := daemon.PlanFromEnv(); ok {
		runStage(plan, err)
		return
	}

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("command failed: %v", err)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	// A nameless, hidden help command leaves "help" free as an executable.
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(logsCmd)
}

// isHelp compares by content; only the first argument is inspected so
// flags meant for the daemon pass through.
func isHelp(args []string) bool {
	return len(args) == 0 || args[0] == "-h" || args[0] == "--help"
}

func runDaemonize(cmd *cobra.Command, args []string) error {
	if isHelp(args) {
		fmt.Fprintln(cmd.OutOrStdout(), usage)
		return nil
	}

	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	req, err := launch.New(args[0], args[1:], cfg.Argv0, cfg.Name)
	if err != nil {
		return err
	}

	logger, closer := newLogger(cfg.SyslogTag, cmd.ErrOrStderr())
	defer closer.Close()

	return newDaemonizer(cfg, logger).Daemonize(req)
}

func newDaemonizer(cfg *config.Config, logger *slog.Logger) *daemon.Daemonizer {
	return daemon.New(newSystem(), logger, daemon.Options{
		Dir:            cfg.WorkDir,
		Umask:          cfg.Umask,
		NullDevice:     cfg.NullDevice,
		FallbackMaxFDs: cfg.FallbackMaxFDs,
		SyslogTag:      cfg.SyslogTag,
	})
}
