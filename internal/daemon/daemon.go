// Package daemon detaches an executable from the invoking terminal and
// session and replaces a process image with it, so the daemon carries its
// own command line (argv[0] is the target's display name, not ours).
//
// The Go runtime cannot fork safely, so each fork of the classic
// double-fork sequence is a re-execution of this binary with a Plan in
// the environment:
//
//	invoke:  spawn self with Setsid (new session), return to the shell
//	session: spawn self without Setsid (not a session leader), exit
//	exec:    umask, chdir, close-on-exec sweep, stdio to null, execve
package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jcdickinson/daemonize/internal/launch"
)

// PlanEnv carries the JSON-encoded Plan between stages.
const PlanEnv = "DAEMONIZE_STAGE_PLAN"

// ExitFailure is the status a stage exits with when it cannot continue.
const ExitFailure = 255

var (
	ErrSessionCreation  = errors.New("session creation failed")
	ErrImageReplacement = errors.New("image replacement failed")
	ErrInvalidPlan      = errors.New("invalid stage plan")
	ErrUnsupported      = errors.New("daemonize is not supported on this platform")
)

type Stage string

const (
	StageSession Stage = "session"
	StageExec    Stage = "exec"
)

// Plan is everything a stage process needs to carry on the sequence.
type Plan struct {
	Stage          Stage    `json:"stage"`
	Path           string   `json:"path"`
	Argv           []string `json:"argv"`
	Dir            string   `json:"dir"`
	Umask          int      `json:"umask"`
	NullDevice     string   `json:"null_device"`
	FallbackMaxFDs int      `json:"fallback_max_fds"`
	SyslogTag      string   `json:"syslog_tag"`
}

func (p Plan) validate() error {
	switch p.Stage {
	case StageSession, StageExec:
	default:
		return fmt.Errorf("%w: unknown stage %q", ErrInvalidPlan, p.Stage)
	}
	if err := (launch.Request{Path: p.Path, Argv: p.Argv}).Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}
	if p.NullDevice == "" {
		return fmt.Errorf("%w: no null device", ErrInvalidPlan)
	}
	return nil
}

// PlanFromEnv reports whether this process is a stage of a detach sequence
// and, if so, decodes its plan.
func PlanFromEnv() (Plan, bool, error) {
	raw, ok := os.LookupEnv(PlanEnv)
	if !ok {
		return Plan{}, false, nil
	}
	var plan Plan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return Plan{}, true, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}
	if err := plan.validate(); err != nil {
		return plan, true, err
	}
	return plan, true, nil
}

// withPlan returns env with PlanEnv set to plan, replacing any previous value.
func withPlan(env []string, plan Plan) ([]string, error) {
	data, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("encoding plan: %w", err)
	}
	out := withoutPlan(env)
	return append(out, PlanEnv+"="+string(data)), nil
}

// withoutPlan returns a copy of env with every PlanEnv entry removed.
func withoutPlan(env []string) []string {
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if strings.HasPrefix(kv, PlanEnv+"=") {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// SpawnAttr describes how System.Spawn starts a child. Stdio is always
// bound to NullDevice.
type SpawnAttr struct {
	Setsid     bool
	NullDevice string
}

// System is the set of OS calls the detach sequence makes.
type System interface {
	Executable() (string, error)
	Environ() []string
	// Spawn starts path and returns its pid without waiting for it.
	Spawn(path string, argv, env []string, attr SpawnAttr) (int, error)
	Umask(mask int) int
	Chdir(dir string) error
	// OpenFileLimit returns the soft descriptor limit, or an error when it
	// cannot be read or is unbounded.
	OpenFileLimit() (int, error)
	// CloseOnExecFrom marks every descriptor from fd up close-on-exec in
	// one call. Callers fall back to CloseOnExec when it fails.
	CloseOnExecFrom(fd int) error
	CloseOnExec(fd int)
	// RedirectStdio rebinds descriptors 0, 1 and 2 to nullDevice.
	RedirectStdio(nullDevice string) error
	// Exec replaces the process image. It only returns on failure.
	Exec(path string, argv, env []string) error
}

// Options are the parts of a Plan that come from configuration.
type Options struct {
	Dir            string
	Umask          int
	NullDevice     string
	FallbackMaxFDs int
	SyslogTag      string
}

type Daemonizer struct {
	sys  System
	log  *slog.Logger
	opts Options
}

func New(sys System, log *slog.Logger, opts Options) *Daemonizer {
	if opts.Dir == "" {
		opts.Dir = "/"
	}
	if opts.NullDevice == "" {
		opts.NullDevice = os.DevNull
	}
	if opts.FallbackMaxFDs <= 3 {
		opts.FallbackMaxFDs = 256
	}
	if opts.SyslogTag == "" {
		opts.SyslogTag = "daemonize"
	}
	return &Daemonizer{sys: sys, log: log, opts: opts}
}

// Daemonize starts the detach sequence for req and returns once the first
// detached copy is running. Everything after that happens in processes the
// caller cannot observe; their failures go to the system log.
func (d *Daemonizer) Daemonize(req launch.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}

	self, err := d.sys.Executable()
	if err != nil {
		return fmt.Errorf("finding executable path: %w", err)
	}

	plan := Plan{
		Stage:          StageSession,
		Path:           req.Path,
		Argv:           req.Argv,
		Dir:            d.opts.Dir,
		Umask:          d.opts.Umask,
		NullDevice:     d.opts.NullDevice,
		FallbackMaxFDs: d.opts.FallbackMaxFDs,
		SyslogTag:      d.opts.SyslogTag,
	}
	env, err := withPlan(d.sys.Environ(), plan)
	if err != nil {
		return err
	}

	pid, err := d.sys.Spawn(self, []string{self}, env, SpawnAttr{
		Setsid:     true,
		NullDevice: d.opts.NullDevice,
	})
	if err != nil {
		d.log.Error("setsid failed", "path", req.Path, "error", err)
		return fmt.Errorf("%w: %w", ErrSessionCreation, err)
	}

	d.log.Info("detached", "pid", pid, "path", req.Path, "argv0", req.Argv[0], "args", req.Args())
	return nil
}

// RunStage runs one stage of the sequence in a re-executed copy of this
// binary and returns the status the process should exit with. The exec
// stage only returns on failure.
func RunStage(sys System, log *slog.Logger, plan Plan) int {
	if err := plan.validate(); err != nil {
		log.Error("bad stage plan", "error", err)
		return ExitFailure
	}

	var err error
	switch plan.Stage {
	case StageSession:
		err = runSession(sys, log, plan)
	case StageExec:
		err = runExec(sys, log, plan)
	}
	if err != nil {
		return ExitFailure
	}
	return 0
}

// runSession is the session leader: it starts the process that will exec
// the target, outside of the leader role, and gets out of the way.
func runSession(sys System, log *slog.Logger, plan Plan) error {
	self, err := sys.Executable()
	if err != nil {
		log.Error("second fork failed", "error", err)
		return fmt.Errorf("%w: %w", ErrSessionCreation, err)
	}

	plan.Stage = StageExec
	env, err := withPlan(sys.Environ(), plan)
	if err != nil {
		log.Error("second fork failed", "error", err)
		return err
	}

	// No working directory here: the exec stage applies it, so a missing
	// directory is a warning rather than a failed fork.
	pid, err := sys.Spawn(self, []string{self}, env, SpawnAttr{NullDevice: plan.NullDevice})
	if err != nil {
		log.Error("second fork failed", "error", err)
		return fmt.Errorf("%w: %w", ErrSessionCreation, err)
	}
	log.Info("second fork", "pid", pid)
	return nil
}

// runExec sanitizes the process and replaces its image with the target.
// The steps must run in this order: descriptors are swept before stdio is
// rebound so the null device lands on 0, 1 and 2. The sweep only sets
// close-on-exec, so the syslog connection stays usable until the exec.
func runExec(sys System, log *slog.Logger, plan Plan) error {
	sys.Umask(plan.Umask)

	if err := sys.Chdir(plan.Dir); err != nil {
		log.Warn("chdir failed", "dir", plan.Dir, "error", err)
	}

	if err := sys.CloseOnExecFrom(3); err != nil {
		maxFDs := openFileLimit(sys, plan.FallbackMaxFDs)
		for fd := 3; fd < maxFDs; fd++ {
			sys.CloseOnExec(fd)
		}
	}

	if err := sys.RedirectStdio(plan.NullDevice); err != nil {
		log.Warn("redirecting stdio failed", "device", plan.NullDevice, "error", err)
	}

	log.Info("exec", "path", plan.Path, "argv0", plan.Argv[0])
	err := sys.Exec(plan.Path, plan.Argv, withoutPlan(sys.Environ()))
	log.Error("execv failed", "path", plan.Path, "argv0", plan.Argv[0], "error", err)
	return fmt.Errorf("%w: %w", ErrImageReplacement, err)
}

func openFileLimit(sys System, fallback int) int {
	n, err := sys.OpenFileLimit()
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
