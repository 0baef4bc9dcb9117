package initd

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Preparer idempotently ensures the directories and files the
// subordinates need exist with permissions usable by their
// less-privileged identities. Every step is best effort: a failure is
// logged and collected but never aborts startup, since a genuinely
// unusable path makes the owning subordinate fail loudly on its own.
type Preparer struct {
	// Root is prefixed to every fixed path; empty for the real filesystem
	Root string
	// DynsecSource is the read-only access-control database in the image
	DynsecSource string
	// DynsecSeed is the writable location seeded on first boot
	DynsecSeed string
	// BrokerLog is the broker's log file
	BrokerLog string
	// Log is the structured logger
	Log zerolog.Logger
}

// PreparerOption configures a Preparer
type PreparerOption func(*Preparer)

// WithRoot prefixes all fixed paths, including the dynsec and broker-log
// locations, with the given directory
func WithRoot(root string) PreparerOption {
	return func(p *Preparer) {
		p.Root = root
		p.DynsecSource = filepath.Join(root, DefaultDynsecSourcePath)
		p.DynsecSeed = filepath.Join(root, DefaultDynsecSeedPath)
		p.BrokerLog = filepath.Join(root, DefaultBrokerLogPath)
	}
}

// WithPreparerLogger sets the structured logger
func WithPreparerLogger(log zerolog.Logger) PreparerOption {
	return func(p *Preparer) {
		p.Log = log
	}
}

// NewPreparer creates a Preparer for the appliance's fixed layout
func NewPreparer(opts ...PreparerOption) *Preparer {
	p := &Preparer{
		DynsecSource: DefaultDynsecSourcePath,
		DynsecSeed:   DefaultDynsecSeedPath,
		BrokerLog:    DefaultBrokerLogPath,
		Log:          NewLogger(os.Stderr, ""),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// path maps a fixed appliance path under the configured root
func (p *Preparer) path(fixed string) string {
	if p.Root == "" {
		return fixed
	}
	return filepath.Join(p.Root, fixed)
}

// Prepare runs all filesystem preparation steps and returns the
// accumulated non-fatal errors, nil if everything succeeded.
func (p *Preparer) Prepare() error {
	merr := &MultiError{}

	for _, dir := range prepDirs {
		full := p.path(dir)
		if err := os.MkdirAll(full, DirMode); err != nil {
			p.Log.Warn().Err(err).Str("dir", full).Msg("creating directory")
			merr.Add(&OpError{Op: OpPrepare, Path: full, Err: err})
		}
	}

	// The image may ship these read-only; chmod again even when they
	// already existed.
	for _, dir := range relaxDirs {
		full := p.path(dir)
		if err := os.Chmod(full, DirMode); err != nil {
			p.Log.Warn().Err(err).Str("dir", full).Msg("relaxing directory permissions")
			merr.Add(&OpError{Op: OpPrepare, Path: full, Err: err})
		}
	}

	merr.Add(p.touchBrokerLog())
	merr.Add(p.seedDynsec())

	return merr.Err()
}

// touchBrokerLog ensures the broker's log file exists and is
// world-writable before mosquitto starts unprivileged
func (p *Preparer) touchBrokerLog() error {
	f, err := os.OpenFile(p.BrokerLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, SharedFileMode)
	if err != nil {
		p.Log.Warn().Err(err).Str("path", p.BrokerLog).Msg("touching broker log")
		return &OpError{Op: OpPrepare, Path: p.BrokerLog, Err: err}
	}
	_ = f.Close()
	if err := os.Chmod(p.BrokerLog, SharedFileMode); err != nil {
		p.Log.Warn().Err(err).Str("path", p.BrokerLog).Msg("chmod broker log")
		return &OpError{Op: OpPrepare, Path: p.BrokerLog, Err: err}
	}
	return nil
}

// seedDynsec copies the pre-seeded access-control database into its
// writable location on first boot only. An existing destination is the
// persistence boundary and is never overwritten. The read-only source is
// also relaxed, since the broker plugin rewrites it in place on the
// non-persistent layout.
func (p *Preparer) seedDynsec() error {
	if err := os.Chmod(p.DynsecSource, SharedFileMode); err != nil && !os.IsNotExist(err) {
		p.Log.Warn().Err(err).Str("path", p.DynsecSource).Msg("relaxing dynsec source")
	}

	src, err := os.Open(p.DynsecSource)
	if err != nil {
		// No seed shipped; nothing to do.
		return nil
	}
	defer func() { _ = src.Close() }()

	dst, err := os.OpenFile(p.DynsecSeed, os.O_WRONLY|os.O_CREATE|os.O_EXCL, SharedFileMode)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		p.Log.Warn().Err(err).Str("path", p.DynsecSeed).Msg("seeding dynsec")
		return &OpError{Op: OpPrepare, Path: p.DynsecSeed, Err: err}
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, src); err != nil {
		p.Log.Warn().Err(err).Str("path", p.DynsecSeed).Msg("seeding dynsec")
		return &OpError{Op: OpPrepare, Path: p.DynsecSeed, Err: err}
	}
	if err := os.Chmod(p.DynsecSeed, SharedFileMode); err != nil {
		p.Log.Warn().Err(err).Str("path", p.DynsecSeed).Msg("chmod dynsec seed")
		return &OpError{Op: OpPrepare, Path: p.DynsecSeed, Err: err}
	}
	return nil
}
