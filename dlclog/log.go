// Package dlclog centralizes subsystem logger construction for the DLC
// engine, mirroring the teacher's per-package btclog.Logger wiring.
package dlclog

import (
	"io"
	"os"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate"
)

// Disabled is btclog's logger that discards everything. The packages of
// this module do not use it: their loggers come from NewSubsystem.
var Disabled = btclog.Disabled

// backend is the shared btclog.Backend that NewSubsystem carves loggers out
// of. It starts out writing to stdout; InitLogging replaces it with one that
// also writes to a rotating log file.
var backend = btclog.NewBackend(os.Stdout)

// NewSubsystem carves a new leveled logger for the named subsystem out of
// the shared backend, the same way lnd.go registers a logger per package
// (lnwallet, lnwire, ...).
func NewSubsystem(tag string) btclog.Logger {
	return backend.Logger(tag)
}

// InitLogging replaces the shared backend with one writing to a rotating
// log file on disk as well as stdout. Only loggers that NewSubsystem creates
// after this call use the new backend; loggers created earlier, including
// the package-level loggers set at init, keep writing to stdout only.
// filename empty disables file logging.
func InitLogging(filename string, maxRolls int) (func() error, error) {
	if filename == "" {
		return func() error { return nil }, nil
	}

	rotator, err := logrotate.NewFile(filename)
	if err != nil {
		return nil, err
	}
	rotator.MaxRolls = maxRolls

	backend = btclog.NewBackend(io.MultiWriter(os.Stdout, rotator))

	return rotator.Close, nil
}

// SetLevel sets the log level for a previously created subsystem logger.
func SetLevel(logger btclog.Logger, level string) {
	lvl, ok := btclog.LevelFromString(level)
	if !ok {
		lvl = btclog.InfoLvl
	}
	logger.SetLevel(lvl)
}
