package cmd

import (
	"github.com/jcdickinson/daemonize/internal/config"
	"github.com/jcdickinson/daemonize/internal/daemon"
)

// runStage is the entrypoint of the re-executed copies of this binary that
// carry out the detach sequence. stdio is already the null device here, so
// everything goes to the system log. It does not return: the exec stage
// becomes the target program, every other outcome exits.
func runStage(plan daemon.Plan, planErr error) {
	tag := plan.SyslogTag
	if tag == "" {
		tag = config.DefaultSyslogTag
	}
	logger, closer := newStageLogger(tag)

	if planErr != nil {
		logger.Error("bad stage plan", "error", planErr)
		closer.Close()
		exit(daemon.ExitFailure)
		return
	}

	code := daemon.RunStage(newSystem(), logger, plan)
	closer.Close()
	exit(code)
}
