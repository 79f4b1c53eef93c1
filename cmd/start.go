package cmd

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jcdickinson/daemonize/internal/config"
	"github.com/jcdickinson/daemonize/internal/launch"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var startCmd = &cobra.Command{
	Use:   "start [program ...]",
	Short: "Daemonize programs defined in the config file",
	Long: `Launch named programs from the [programs] table of config.toml, or every
configured program when none are named. Each one goes through the same
detach sequence as "daemonize <executable>".`,
	Example: `  daemonize start
  daemonize start dc1 dc2
  daemonize start --config /opt/harvest/daemonize.toml dc1`,
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	RunE:         runStart,
}

var (
	startConfig   string
	startParallel int
)

func init() {
	startCmd.Flags().StringVarP(&startConfig, "config", "c", "", "config file (default ./config.toml, then $XDG_CONFIG_HOME/daemonize/config.toml)")
	startCmd.Flags().IntVar(&startParallel, "parallel", 4, "max programs launched at once")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(startConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	names := args
	if len(names) == 0 {
		names = cfg.ProgramNames()
	}
	if len(names) == 0 {
		return errors.New("no programs configured")
	}

	// Resolve everything up front so a typo launches nothing.
	reqs := make([]launch.Request, len(names))
	for i, name := range names {
		if reqs[i], err = cfg.Request(name); err != nil {
			return err
		}
	}

	logger, closer := newLogger(cfg.SyslogTag, cmd.ErrOrStderr())
	defer closer.Close()
	d := newDaemonizer(cfg, logger)

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	if startParallel > 0 {
		g.SetLimit(startParallel)
	}
	for i, name := range names {
		g.Go(func() error {
			if err := d.Daemonize(reqs[i]); err != nil {
				logger.Error("failed to start program", "program", name, "error", err)
				return fmt.Errorf("starting %s: %w", name, err)
			}
			mu.Lock()
			fmt.Fprintf(cmd.OutOrStdout(), "started %s\n", name)
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}
