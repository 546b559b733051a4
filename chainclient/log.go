package chainclient

import "github.com/btcsuite/btclog"

// log is this package's subsystem logger, disabled until UseLogger wires in
// a real backend (the chainidx/log package's ClientLog, in the daemon).
var log = btclog.Disabled

// UseLogger sets the package-wide logger used by MemClient.
func UseLogger(logger btclog.Logger) {
	log = logger
}
