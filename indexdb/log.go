package indexdb

import "github.com/btcsuite/btclog"

// log is this package's subsystem logger, disabled until UseLogger wires in
// a real backend (the chainidx/log package's IndexLog, in the daemon).
var log = btclog.Disabled

// UseLogger sets the package-wide logger used by IndexDB.
func UseLogger(logger btclog.Logger) {
	log = logger
}
