package cli

import "github.com/quarry-network/quarry/internal/daemon"

// openDaemon constructs the daemon for one-shot CLI commands. The
// worker scheduler is not started; commands only touch the ledger.
func openDaemon() (*daemon.Daemon, error) {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return nil, err
	}
	cfg.Worker.Enabled = false
	return daemon.NewWithConfig(cfg)
}
