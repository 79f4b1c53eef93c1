package cmd

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"

	"github.com/jcdickinson/daemonize/internal/config"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View daemonize entries in the system log",
	Long: `Show system log entries written under the configured syslog tag. Failures
after the detach (a missing executable, for instance) are only recorded
there, since the daemon's stdio is the null device by then.`,
	Example: `  daemonize logs -f
  daemonize logs --config /opt/harvest/daemonize.toml -n 200`,
	Run: runLogs,
}

var lookPath = exec.LookPath

var (
	logsConfig string
	logsFollow bool
	logsLines  int
)

func init() {
	logsCmd.Flags().StringVarP(&logsConfig, "config", "c", "", "config file holding syslog_tag")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "follow log output")
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 50, "number of lines to show")
}

// journalctlArgs builds the journalctl invocation for tag.
func journalctlArgs(tag string, lines int, follow bool) []string {
	args := []string{"-t", tag, "-n", strconv.Itoa(lines), "--no-pager"}
	if follow {
		args = append(args, "-f")
	}
	return args
}

func runLogs(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(logsConfig)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	journalctl, err := lookPath("journalctl")
	if err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "journalctl not found; look for entries tagged %q in your system log\n", cfg.SyslogTag)
		return
	}

	jCmd := exec.Command(journalctl, journalctlArgs(cfg.SyslogTag, logsLines, logsFollow)...)
	jCmd.Stdout = os.Stdout
	jCmd.Stderr = os.Stderr

	if err := jCmd.Run(); err != nil {
		log.Fatalf("journalctl failed: %v", err)
	}
}
