package initd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestSupervisor wires a supervisor entirely into a temp directory:
// stubbed environment credentials (so nothing is auto-generated),
// artifact paths and filesystem root under TempDir, and a fast
// monitoring cadence.
func newTestSupervisor(t *testing.T, opts ...Option) (*Supervisor, *bytes.Buffer) {
	t.Helper()
	tmp := t.TempDir()
	diag := &bytes.Buffer{}

	base := []Option{
		WithResolver(NewResolver(
			WithSecretsPath(filepath.Join(tmp, "secrets.conf")),
			WithLookupEnv(stubEnv(map[string]string{
				EnvMQTTCredentials: "mqttuser:mqttpass",
				EnvHTTPCredentials: "httpuser:httppass",
			})),
			WithResolverDiagnostics(diag),
			WithResolverLogger(zerolog.Nop()),
		)),
		WithMaterializer(NewMaterializer(
			WithArtifactPaths(
				filepath.Join(tmp, "mqtt-credentials.json"),
				filepath.Join(tmp, "htpasswd"),
				filepath.Join(tmp, "app-config.json"),
			),
			WithMaterializerLogger(zerolog.Nop()),
		)),
		WithPreparer(NewPreparer(
			WithRoot(tmp),
			WithPreparerLogger(zerolog.Nop()),
		)),
		WithPollInterval(10 * time.Millisecond),
		WithKillTimeout(2 * time.Second),
		WithDiagnostics(diag),
		WithLogger(zerolog.Nop()),
	}
	return New(append(base, opts...)...), diag
}

// runSupervisor runs Run in the background and returns its result, or
// fails the test if it does not finish in time
func runSupervisor(t *testing.T, ctx context.Context, sup *Supervisor, within time.Duration) error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- sup.Run(ctx)
	}()
	select {
	case err := <-done:
		return err
	case <-time.After(within):
		t.Fatal("supervisor did not finish in time")
		return nil
	}
}

func sleeperSpec(name string) *ProcessSpec {
	return NewProcessSpec(name, "/bin/sh").WithArgs("-c", "sleep 30")
}

func TestSupervisorChildDeathTriggersShutdown(t *testing.T) {
	sup, diag := newTestSupervisor(t,
		WithProcesses(
			sleeperSpec("proxy"),
			NewProcessSpec("db", "/bin/sh").WithArgs("-c", "sleep 0.2; exit 7"),
			sleeperSpec("broker"),
		),
	)

	err := runSupervisor(t, context.Background(), sup, 15*time.Second)

	require.ErrorIs(t, err, ErrChildExit)
	assert.Equal(t, StateStopped, sup.State())

	out := diag.String()
	assert.Contains(t, out, "mqbase-init: Starting services...")
	assert.Contains(t, out, "mqbase-init: All services started")
	assert.Contains(t, out, "db (pid")
	assert.Contains(t, out, "exited with status 7")
	assert.Contains(t, out, "mqbase-init: Shutting down...")
	assert.Contains(t, out, "mqbase-init: Shutdown complete")
}

func TestSupervisorSignalInitiatedShutdown(t *testing.T) {
	sup, diag := newTestSupervisor(t,
		WithProcesses(sleeperSpec("proxy"), sleeperSpec("broker")),
		WithSignals(syscall.SIGUSR1),
	)

	done := make(chan error, 1)
	go func() {
		done <- sup.Run(context.Background())
	}()

	require.Eventually(t, func() bool {
		return sup.State() == StateRunning
	}, 5*time.Second, 10*time.Millisecond, "supervisor never reached Running")

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))

	select {
	case err := <-done:
		assert.NoError(t, err, "signal-initiated shutdown must be clean")
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor did not shut down after signal")
	}

	assert.Equal(t, StateStopped, sup.State())
	out := diag.String()
	assert.Contains(t, out, "mqbase-init: Shutting down...")
	assert.Contains(t, out, "mqbase-init: Shutdown complete")
	assert.NotContains(t, out, "exited with status")
}

func TestSupervisorContextCancellation(t *testing.T) {
	sup, _ := newTestSupervisor(t,
		WithProcesses(sleeperSpec("proxy")),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- sup.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return sup.State() == StateRunning
	}, 5*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor did not shut down after cancellation")
	}
}

func TestSupervisorStartupFailureLaunchesNothing(t *testing.T) {
	tmp := t.TempDir()
	sup, diag := newTestSupervisor(t,
		WithProcesses(sleeperSpec("proxy")),
		// Unwritable artifact location: materialization must abort
		// startup before any child is launched.
		WithMaterializer(NewMaterializer(
			WithArtifactPaths(
				filepath.Join(tmp, "missing", "dir", "mqtt-credentials.json"),
				filepath.Join(tmp, "htpasswd"),
				filepath.Join(tmp, "app-config.json"),
			),
			WithMaterializerLogger(zerolog.Nop()),
		)),
	)

	err := runSupervisor(t, context.Background(), sup, 10*time.Second)

	require.Error(t, err)
	require.NotErrorIs(t, err, ErrChildExit)
	assert.NotContains(t, diag.String(), "Started")
	assert.Equal(t, StateStarting, sup.State())
}

func TestSupervisorLaunchFailureTearsDownPipeline(t *testing.T) {
	sup, diag := newTestSupervisor(t,
		WithProcesses(
			sleeperSpec("proxy"),
			NewProcessSpec("db", "/nonexistent/definitely-missing-binary"),
			sleeperSpec("broker"),
		),
	)

	err := runSupervisor(t, context.Background(), sup, 15*time.Second)

	// The exec-failed child is reaped like any other death and brings
	// the whole session down.
	require.ErrorIs(t, err, ErrChildExit)
	assert.Equal(t, StateStopped, sup.State())
	assert.Contains(t, diag.String(), "mqbase-init: Started proxy")
	assert.Contains(t, diag.String(), "mqbase-init: Failed to start db")
	assert.NotContains(t, diag.String(), "Started db")
	assert.Contains(t, diag.String(), "mqbase-init: Shutdown complete")
}

func TestSupervisorMaterializesBeforeLaunch(t *testing.T) {
	sup, _ := newTestSupervisor(t,
		WithProcesses(NewProcessSpec("oneshot", "/bin/sh").WithArgs("-c", "exit 0")),
	)

	err := runSupervisor(t, context.Background(), sup, 15*time.Second)
	require.ErrorIs(t, err, ErrChildExit)

	// All three artifacts exist by the time the pipeline ran.
	for _, path := range []string{
		sup.Materializer.MQTTCredentialsPath,
		sup.Materializer.HtpasswdPath,
		sup.Materializer.AppConfigPath,
	} {
		_, statErr := os.Stat(path)
		assert.NoError(t, statErr, path)
	}
}

func TestSupervisorOptions(t *testing.T) {
	diag := &bytes.Buffer{}
	sup := New(
		WithPollInterval(42*time.Millisecond),
		WithKillTimeout(3*time.Second),
		WithSignals(syscall.SIGUSR2),
		WithDiagnostics(diag),
	)

	assert.Equal(t, 42*time.Millisecond, sup.PollInterval)
	assert.Equal(t, 3*time.Second, sup.KillTimeout)
	assert.Equal(t, []os.Signal{syscall.SIGUSR2}, sup.Signals)
	assert.Equal(t, diag, sup.Diag)
	assert.Len(t, sup.Specs, 3, "default pipeline expected")
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateStarting, "starting"},
		{StateRunning, "running"},
		{StateShuttingDown, "shutting-down"},
		{StateStopped, "stopped"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.state.String())
	}
}
