package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/casekeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   address and port of the backend server
//	-i int      online check interval in seconds
//	-s string   store driver: sqlite, postgres, s3, memory
//	-d string   store DSN (file path or postgres URL)
//	-l string   log level
//	-m string   address for the /metrics endpoint, empty to disable
//
// args are filtered with flagx.FilterArgs so flags handled elsewhere
// (such as -c) do not break parsing.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-i", "-s", "-d", "-l", "-m"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.StoreDriver, "s", cfg.StoreDriver, "store driver")
	fs.StringVar(&cfg.StoreDSN, "d", cfg.StoreDSN, "store DSN")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.MetricsAddr, "m", cfg.MetricsAddr, "metrics listen address")

	if err := fs.Parse(args); err != nil {
		return err
	}

	// Only an explicit -i overrides, so sub-second file values survive.
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "i" {
			cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
		}
	})
	return nil
}
