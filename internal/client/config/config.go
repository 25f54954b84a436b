package config

import (
	"errors"
	"fmt"
	"time"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverS3       = "s3"
	DriverMemory   = "memory"
)

// Config holds runtime settings for the casekeeper CLI.
type Config struct {
	ServerEndpointAddr  string
	OnlineCheckInterval time.Duration
	PingTimeout         time.Duration
	// DeliveryTimeout bounds a single replayed operation. A replay is not
	// cancelled midway, so this is the only thing that stops a stuck call.
	DeliveryTimeout time.Duration

	StoreDriver string
	StoreDSN    string

	S3Bucket          string
	S3Prefix          string
	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string

	LogLevel  string
	LogFormat string

	MetricsAddr string

	// UndeliverableAfter is the number of failed delivery attempts of the
	// queue head after which the user is warned.
	UndeliverableAfter int

	// Work factor for newly created salts.
	KDFTime      uint32
	KDFMemoryKiB uint32
	KDFThreads   uint8
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.OnlineCheckInterval = 3 * time.Second
	c.PingTimeout = 3 * time.Second
	c.DeliveryTimeout = 10 * time.Second
	c.StoreDriver = DriverSQLite
	c.StoreDSN = "casekeeper.db"
	c.S3Region = "us-east-1"
	c.LogLevel = "info"
	c.LogFormat = "text"
	c.UndeliverableAfter = 5
	c.KDFTime = 1
	c.KDFMemoryKiB = 64 * 1024
	c.KDFThreads = 4
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverSQLite, DriverPostgres:
		if c.StoreDSN == "" {
			return fmt.Errorf("store_dsn is required for driver %q", c.StoreDriver)
		}
	case DriverS3:
		if c.S3Bucket == "" {
			return errors.New("s3_bucket is required for driver \"s3\"")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}

	if c.OnlineCheckInterval <= 0 {
		return errors.New("online_check_interval must be positive")
	}
	if c.PingTimeout <= 0 {
		return errors.New("ping_timeout must be positive")
	}
	if c.DeliveryTimeout <= 0 {
		return errors.New("delivery_timeout must be positive")
	}
	if c.UndeliverableAfter <= 0 {
		return errors.New("undeliverable_after must be positive")
	}
	if c.KDFTime == 0 || c.KDFMemoryKiB == 0 || c.KDFThreads == 0 {
		return errors.New("kdf parameters must be positive")
	}
	return nil
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// a config file (if given with -c/-config) and command-line flags. Later
// sources take precedence over earlier ones. args excludes the program name.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseFile(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
