package initd

import (
	"os"
	"path/filepath"
	"testing"
)

func preparedRoot(t *testing.T) (string, *Preparer) {
	t.Helper()
	root := t.TempDir()

	// Ship the image's read-only seed.
	configDir := filepath.Join(root, "mosquitto", "config")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dynsec.json"), []byte(`{"clients":[]}`), 0o444); err != nil {
		t.Fatal(err)
	}

	return root, NewPreparer(WithRoot(root))
}

func TestPrepareCreatesDirectories(t *testing.T) {
	root, p := preparedRoot(t)

	if err := p.Prepare(); err != nil {
		t.Fatalf("Prepare() = %v", err)
	}

	for _, dir := range prepDirs {
		info, err := os.Stat(filepath.Join(root, dir))
		if err != nil {
			t.Errorf("missing %s: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}

	// Re-chmodded dirs must be wide open even under a restrictive umask.
	for _, dir := range relaxDirs {
		info, err := os.Stat(filepath.Join(root, dir))
		if err != nil {
			t.Fatal(err)
		}
		if got := info.Mode().Perm(); got != DirMode {
			t.Errorf("%s mode = %o, want %o", dir, got, DirMode)
		}
	}
}

func TestPrepareIdempotent(t *testing.T) {
	_, p := preparedRoot(t)

	if err := p.Prepare(); err != nil {
		t.Fatalf("first Prepare() = %v", err)
	}
	if err := p.Prepare(); err != nil {
		t.Fatalf("second Prepare() = %v", err)
	}
}

func TestPrepareBrokerLog(t *testing.T) {
	_, p := preparedRoot(t)

	if err := p.Prepare(); err != nil {
		t.Fatalf("Prepare() = %v", err)
	}

	info, err := os.Stat(p.BrokerLog)
	if err != nil {
		t.Fatal(err)
	}
	if got := info.Mode().Perm(); got != SharedFileMode {
		t.Errorf("broker log mode = %o, want %o", got, SharedFileMode)
	}
}

func TestPrepareSeedsDynsecOnce(t *testing.T) {
	_, p := preparedRoot(t)

	if err := p.Prepare(); err != nil {
		t.Fatalf("Prepare() = %v", err)
	}

	seeded, err := os.ReadFile(p.DynsecSeed)
	if err != nil {
		t.Fatal(err)
	}
	if string(seeded) != `{"clients":[]}` {
		t.Errorf("seed content = %q", seeded)
	}

	// The broker mutates the seeded copy at runtime; a later boot must
	// not clobber it.
	mutated := `{"clients":[{"username":"admin"}]}`
	if err := os.WriteFile(p.DynsecSeed, []byte(mutated), 0o666); err != nil {
		t.Fatal(err)
	}

	if err := p.Prepare(); err != nil {
		t.Fatalf("reboot Prepare() = %v", err)
	}

	got, err := os.ReadFile(p.DynsecSeed)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != mutated {
		t.Errorf("seed was overwritten: %q", got)
	}
}

func TestPrepareMissingDynsecSource(t *testing.T) {
	root := t.TempDir()
	p := NewPreparer(WithRoot(root))

	// No seed shipped: not an error, everything else still prepared.
	if err := p.Prepare(); err != nil {
		t.Fatalf("Prepare() = %v", err)
	}
	if _, err := os.Stat(p.DynsecSeed); !os.IsNotExist(err) {
		t.Errorf("unexpected seed file, stat err = %v", err)
	}
}
