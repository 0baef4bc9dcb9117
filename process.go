package initd

import (
	"errors"
	"os"
	"os/exec"
	"sync"
	"time"
)

// ProcessSpec describes one subordinate process of the fixed pipeline.
// The builder methods follow the same fluent style as the rest of the
// package and return the receiver.
type ProcessSpec struct {
	// Name is the short process name used in diagnostics
	Name string
	// Path is the executable path
	Path string
	// Args is the argument vector (without argv[0])
	Args []string
	// Settle is an optional pause after starting this process, letting
	// it create its on-disk layout before the next one starts
	Settle time.Duration
	// ReadyPath, when set, is a file whose existence signals the
	// layout is in place; waited for after the settle, bounded by
	// ReadyTimeout
	ReadyPath string
	// ReadyTimeout bounds the ReadyPath wait
	ReadyTimeout time.Duration
	// RelaxPaths are made world-read-write after the settle so a
	// differently-privileged process can open the same files
	RelaxPaths []string
}

// NewProcessSpec creates a spec for the named executable
func NewProcessSpec(name, path string) *ProcessSpec {
	return &ProcessSpec{Name: name, Path: path}
}

// WithArgs sets the argument vector
func (s *ProcessSpec) WithArgs(args ...string) *ProcessSpec {
	s.Args = args
	return s
}

// WithSettle sets the post-start settling delay
func (s *ProcessSpec) WithSettle(d time.Duration) *ProcessSpec {
	s.Settle = d
	return s
}

// WithReadyPath sets the layout file waited for after the settle
func (s *ProcessSpec) WithReadyPath(path string, timeout time.Duration) *ProcessSpec {
	s.ReadyPath = path
	s.ReadyTimeout = timeout
	return s
}

// WithRelaxPaths sets the files relaxed to world-read-write after the settle
func (s *ProcessSpec) WithRelaxPaths(paths ...string) *ProcessSpec {
	s.RelaxPaths = paths
	return s
}

// DefaultPipeline returns the appliance's fixed three-process pipeline
// in launch order: proxy, database server, broker. The settling delay
// and permission relaxation between sqld and mosquitto cover the
// deliberate shared-file coupling between the two.
func DefaultPipeline() []*ProcessSpec {
	return []*ProcessSpec{
		NewProcessSpec("nginx", "/usr/sbin/nginx").
			WithArgs("-g", "daemon off;"),
		NewProcessSpec("sqld", "/usr/local/bin/sqld").
			WithArgs(
				"-d", "/mosquitto/data",
				"--http-listen-addr", "127.0.0.1:8000",
				"--enable-http-console",
			).
			WithSettle(DefaultSettleDelay).
			WithReadyPath("/mosquitto/data/dbs/default/data", DefaultReadyTimeout).
			WithRelaxPaths(sqldDataFiles...),
		NewProcessSpec("mosquitto", "/usr/sbin/mosquitto").
			WithArgs("-c", "/mosquitto/config/mosquitto.conf"),
	}
}

// ExitEvent reports a reaped subordinate
type ExitEvent struct {
	// Ordinal is the process's position in the pipeline
	Ordinal int
	// Name is the process name
	Name string
	// PID is the process id, 0 when the process never started
	PID int
	// Status is the exit status; -1 when killed by signal or unknown
	Status int
	// Err is the underlying wait or start error, nil for a clean exit
	Err error
}

// Process is one running (or reaped) subordinate
type Process struct {
	// Spec is the launch specification
	Spec *ProcessSpec
	// Ordinal is the position in the pipeline
	Ordinal int

	mu    sync.Mutex
	cmd   *exec.Cmd
	pid   int
	alive bool
}

// Start launches the spec'd executable with inherited stdout/stderr and
// begins reaping it: exactly one ExitEvent is delivered on exits when
// the process ends. The caller does not wait for readiness. A start
// failure (missing or non-runnable executable) is reported as an
// immediate exit rather than an error, matching a forked child that
// dies in exec; the supervisor reaps it like any other death.
func (s *ProcessSpec) Start(ordinal int, exits chan<- ExitEvent) *Process {
	p := &Process{Spec: s, Ordinal: ordinal}

	cmd := exec.Command(s.Path, s.Args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		exits <- ExitEvent{Ordinal: ordinal, Name: s.Name, Status: 1, Err: err}
		return p
	}

	p.cmd = cmd
	p.pid = cmd.Process.Pid
	p.alive = true

	go func() {
		err := cmd.Wait()
		status := 0
		if err != nil {
			status = -1
			var ee *exec.ExitError
			if errors.As(err, &ee) {
				status = ee.ExitCode()
			}
		}
		exits <- ExitEvent{Ordinal: ordinal, Name: s.Name, PID: p.pid, Status: status, Err: err}
	}()

	return p
}

// PID returns the process id, 0 if the process never started
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

// Alive reports whether the process has been started and not yet reaped
func (p *Process) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

// markReaped clears the live flag once the supervisor has consumed the
// process's exit event
func (p *Process) markReaped() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alive = false
	p.pid = 0
}

// Signal forwards a signal to the process. Signaling a never-started or
// already-reaped process is a no-op.
func (p *Process) Signal(sig os.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.alive || p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Signal(sig)
}
