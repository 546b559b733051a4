// Package log provides the subsystem-scoped logging backend shared by
// chainidx's packages. Callers obtain a logger for their subsystem and wire
// it in with that package's UseLogger function; packages default to
// btclog.Disabled until wired, so library use outside the daemon never
// panics on a nil logger.
package log

import (
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	n, err := os.Stdout.Write(p)
	if err != nil {
		return n, err
	}
	if logRotator != nil {
		if _, err := logRotator.Write(p); err != nil {
			return n, err
		}
	}
	return len(p), nil
}

var (
	// backendLog is the logging backend every subsystem logger below is
	// created from. It must not be used before InitRotator runs if a log
	// directory is wanted; stdout output works regardless.
	backendLog = btclog.NewBackend(logWriter{})

	// logRotator is the optional file sink, nil until InitRotator succeeds.
	logRotator *rotator.Rotator

	// IndexLog is the indexdb package's subsystem logger.
	IndexLog = backendLog.Logger("INDX")
	// ClientLog is the chainclient package's subsystem logger.
	ClientLog = backendLog.Logger("CHLT")
	// StoreLog is the store package's subsystem logger.
	StoreLog = backendLog.Logger("STOR")
)

// subsystemLoggers maps each subsystem identifier to its logger, so new
// subsystems only need an entry here to pick up SetLogLevel/SetLogLevels.
var subsystemLoggers = map[string]btclog.Logger{
	"INDX": IndexLog,
	"CHLT": ClientLog,
	"STOR": StoreLog,
}

// InitRotator creates the log directory for logFile and starts writing
// rotated copies of everything written to the backend. Not calling it
// leaves logging on stdout only.
func InitRotator(logFile string) error {
	logDir, _ := filepath.Split(logFile)
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0700); err != nil {
			return err
		}
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return err
	}
	logRotator = r
	return nil
}

// SetLogLevel sets the logging level for the named subsystem. Unknown
// subsystems are ignored; an invalid level defaults to info.
func SetLogLevel(subsystemID string, logLevel string) {
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}
	level, _ := btclog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// SetLogLevels sets every subsystem logger to logLevel.
func SetLogLevels(logLevel string) {
	for subsystemID := range subsystemLoggers {
		SetLogLevel(subsystemID, logLevel)
	}
}
