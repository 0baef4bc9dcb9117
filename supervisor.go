package initd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// State is the supervisor lifecycle state
type State int

// Supervisor states, in order
const (
	// StateStarting covers credential resolution, materialization,
	// filesystem prep and the three launches
	StateStarting State = iota
	// StateRunning is the monitoring loop
	StateRunning
	// StateShuttingDown means children are being signaled
	StateShuttingDown
	// StateStopped means every child has been reaped
	StateStopped
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting-down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Supervisor is the top-level driver: it resolves credentials, writes
// the secret artifacts, prepares the filesystem, launches the pipeline
// in order, and supervises it until the first exit or an external
// termination signal.
type Supervisor struct {
	// Resolver produces the effective credentials
	Resolver *Resolver
	// Materializer writes the secret artifacts
	Materializer *Materializer
	// Preparer ensures the filesystem preconditions
	Preparer *Preparer
	// Specs is the pipeline in launch order
	Specs []*ProcessSpec
	// PollInterval is the monitoring loop cadence
	PollInterval time.Duration
	// KillTimeout bounds the SIGTERM grace period before SIGKILL
	KillTimeout time.Duration
	// Signals are the termination signals forwarded to children
	Signals []os.Signal
	// Diag is the raw diagnostic stream
	Diag io.Writer
	// Log is the structured logger
	Log zerolog.Logger

	mu    sync.Mutex
	state State
	procs []*Process
}

// Option configures a Supervisor
type Option func(*Supervisor)

// WithProcesses sets the pipeline specs, replacing the default
func WithProcesses(specs ...*ProcessSpec) Option {
	return func(s *Supervisor) {
		s.Specs = specs
	}
}

// WithResolver sets the credential resolver
func WithResolver(r *Resolver) Option {
	return func(s *Supervisor) {
		s.Resolver = r
	}
}

// WithMaterializer sets the secret materializer
func WithMaterializer(m *Materializer) Option {
	return func(s *Supervisor) {
		s.Materializer = m
	}
}

// WithPreparer sets the filesystem preparer
func WithPreparer(p *Preparer) Option {
	return func(s *Supervisor) {
		s.Preparer = p
	}
}

// WithPollInterval sets the monitoring loop cadence
func WithPollInterval(d time.Duration) Option {
	return func(s *Supervisor) {
		s.PollInterval = d
	}
}

// WithKillTimeout sets the SIGTERM grace period before SIGKILL
func WithKillTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		s.KillTimeout = d
	}
}

// WithSignals sets the termination signals the supervisor reacts to
func WithSignals(sigs ...os.Signal) Option {
	return func(s *Supervisor) {
		s.Signals = sigs
	}
}

// WithDiagnostics sets the raw diagnostic stream
func WithDiagnostics(w io.Writer) Option {
	return func(s *Supervisor) {
		s.Diag = w
	}
}

// WithLogger sets the structured logger
func WithLogger(log zerolog.Logger) Option {
	return func(s *Supervisor) {
		s.Log = log
	}
}

// New creates a Supervisor wired for the real appliance: default
// pipeline, fixed paths, SIGTERM/SIGINT handling, stderr diagnostics.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		Resolver:     NewResolver(),
		Materializer: NewMaterializer(),
		Preparer:     NewPreparer(),
		Specs:        DefaultPipeline(),
		PollInterval: DefaultPollInterval,
		KillTimeout:  DefaultKillTimeout,
		Signals:      []os.Signal{syscall.SIGTERM, syscall.SIGINT},
		Diag:         os.Stderr,
		Log:          NewLogger(os.Stderr, ""),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run drives the full lifecycle and blocks until every child has been
// reaped. It returns nil after a clean, signal-initiated shutdown; an
// error wrapping ErrChildExit when a subordinate's death forced the
// shutdown; any other error means startup failed before the pipeline
// was (fully) launched.
func (s *Supervisor) Run(ctx context.Context) error {
	s.setState(StateStarting)
	fmt.Fprintln(s.Diag, "mqbase-init: Starting services...")

	creds := s.Resolver.Resolve()
	if err := s.Materializer.Materialize(creds); err != nil {
		return err
	}
	if err := s.Preparer.Prepare(); err != nil {
		// Deferred to downstream process failure.
		s.Log.Warn().Err(err).Msg("filesystem preparation incomplete")
	}

	// Buffered so reaper goroutines never block, even when teardown has
	// stopped consuming.
	exits := make(chan ExitEvent, len(s.Specs))

	// Signal delivery only flips the loop out of Running and re-signals
	// known children; all reaping happens in the main flow.
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, s.Signals...)
	defer signal.Stop(sigc)

	for i, spec := range s.Specs {
		p := spec.Start(i, exits)
		s.mu.Lock()
		s.procs = append(s.procs, p)
		s.mu.Unlock()
		if pid := p.PID(); pid > 0 {
			fmt.Fprintf(s.Diag, "mqbase-init: Started %s (pid %d)\n", spec.Name, pid)
		} else {
			// exec failed; the synthetic exit event is already queued.
			fmt.Fprintf(s.Diag, "mqbase-init: Failed to start %s\n", spec.Name)
		}

		if spec.Settle > 0 {
			time.Sleep(spec.Settle)
		}
		if spec.ReadyPath != "" {
			if !awaitFile(ctx, spec.ReadyPath, spec.ReadyTimeout) {
				s.Log.Warn().Str("path", spec.ReadyPath).Err(ErrNotReady).
					Msg("proceeding without on-disk layout")
			}
		}
		for _, path := range spec.RelaxPaths {
			if err := os.Chmod(path, SharedFileMode); err != nil {
				s.Log.Debug().Err(err).Str("path", path).Msg("relaxing data file")
			}
		}
	}

	fmt.Fprintln(s.Diag, "mqbase-init: All services started")
	s.setState(StateRunning)

	var cause error
	tick := time.NewTicker(s.PollInterval)
	defer tick.Stop()

	for s.State() == StateRunning {
		select {
		case ev := <-exits:
			fmt.Fprintf(s.Diag, "mqbase-init: %s (pid %d) exited with status %d\n",
				ev.Name, ev.PID, ev.Status)
			s.reap(ev)
			cause = &OpError{Op: OpSupervise, Path: ev.Name, Err: ErrChildExit}
			s.setState(StateShuttingDown)

		case <-sigc:
			// Whatever arrived, children get the graceful signal.
			s.forward(syscall.SIGTERM)
			s.setState(StateShuttingDown)

		case <-ctx.Done():
			s.setState(StateShuttingDown)

		case <-tick.C:
			// Cadence check; exits and signals arrive on their channels.
		}
	}

	s.setState(StateShuttingDown)
	fmt.Fprintln(s.Diag, "mqbase-init: Shutting down...")
	s.forward(syscall.SIGTERM)
	s.drain(exits)

	s.setState(StateStopped)
	fmt.Fprintln(s.Diag, "mqbase-init: Shutdown complete")
	return cause
}

// reap marks the event's process as no longer tracked
func (s *Supervisor) reap(ev ExitEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.Ordinal < len(s.procs) {
		s.procs[ev.Ordinal].markReaped()
	}
}

// forward sends sig to every still-tracked child
func (s *Supervisor) forward(sig os.Signal) {
	s.mu.Lock()
	procs := make([]*Process, len(s.procs))
	copy(procs, s.procs)
	s.mu.Unlock()

	for _, p := range procs {
		if err := p.Signal(sig); err != nil {
			s.Log.Debug().Err(err).Str("name", p.Spec.Name).Msg("signaling child")
		}
	}
}

// liveCount returns the number of started, not yet reaped children
func (s *Supervisor) liveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.procs {
		if p.Alive() {
			n++
		}
	}
	return n
}

// drain blocks until every child has been reaped, escalating to SIGKILL
// once if a child outlives the grace period. No child is left unsignaled
// when the supervisor terminates.
func (s *Supervisor) drain(exits <-chan ExitEvent) {
	escalated := false
	for s.liveCount() > 0 {
		select {
		case ev := <-exits:
			s.reap(ev)
		case <-time.After(s.KillTimeout):
			if escalated {
				s.Log.Error().Msg("children survived SIGKILL grace period; abandoning")
				return
			}
			s.Log.Warn().Msg("children outlived the grace period; sending SIGKILL")
			s.forward(syscall.SIGKILL)
			escalated = true
		}
	}
}
