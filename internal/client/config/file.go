package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmitrijs2005/casekeeper/internal/flagx"
	"github.com/dmitrijs2005/casekeeper/internal/timex"
)

// FileConfig is a DTO used exclusively for config file unmarshalling.
// Pointer fields tell "absent" apart from "zero", so a file only overrides
// the keys it sets. Intervals use timex.Duration and accept "3s" or integer
// nanoseconds.
type FileConfig struct {
	ServerEndpointAddr  *string         `json:"server_endpoint_addr" yaml:"server_endpoint_addr"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval" yaml:"online_check_interval"`
	PingTimeout         *timex.Duration `json:"ping_timeout" yaml:"ping_timeout"`
	DeliveryTimeout     *timex.Duration `json:"delivery_timeout" yaml:"delivery_timeout"`

	StoreDriver *string `json:"store_driver" yaml:"store_driver"`
	StoreDSN    *string `json:"store_dsn" yaml:"store_dsn"`

	S3Bucket          *string `json:"s3_bucket" yaml:"s3_bucket"`
	S3Prefix          *string `json:"s3_prefix" yaml:"s3_prefix"`
	S3Endpoint        *string `json:"s3_endpoint" yaml:"s3_endpoint"`
	S3Region          *string `json:"s3_region" yaml:"s3_region"`
	S3AccessKeyID     *string `json:"s3_access_key_id" yaml:"s3_access_key_id"`
	S3SecretAccessKey *string `json:"s3_secret_access_key" yaml:"s3_secret_access_key"`

	LogLevel    *string `json:"log_level" yaml:"log_level"`
	LogFormat   *string `json:"log_format" yaml:"log_format"`
	MetricsAddr *string `json:"metrics_addr" yaml:"metrics_addr"`

	UndeliverableAfter *int `json:"undeliverable_after" yaml:"undeliverable_after"`

	KDFTime      *uint32 `json:"kdf_time" yaml:"kdf_time"`
	KDFMemoryKiB *uint32 `json:"kdf_memory_kib" yaml:"kdf_memory_kib"`
	KDFThreads   *uint8  `json:"kdf_threads" yaml:"kdf_threads"`
}

// parseFile overlays cfg with values from the file named by -c or -config.
// The format follows the extension: .yaml and .yml are YAML, anything else
// is JSON. Without the flag nothing is loaded.
func parseFile(cfg *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	fc.apply(cfg)
	return nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *timex.Duration) {
	if src != nil {
		*dst = src.Duration
	}
}

func (fc *FileConfig) apply(cfg *Config) {
	setIf(&cfg.ServerEndpointAddr, fc.ServerEndpointAddr)
	setDuration(&cfg.OnlineCheckInterval, fc.OnlineCheckInterval)
	setDuration(&cfg.PingTimeout, fc.PingTimeout)
	setDuration(&cfg.DeliveryTimeout, fc.DeliveryTimeout)
	setIf(&cfg.StoreDriver, fc.StoreDriver)
	setIf(&cfg.StoreDSN, fc.StoreDSN)
	setIf(&cfg.S3Bucket, fc.S3Bucket)
	setIf(&cfg.S3Prefix, fc.S3Prefix)
	setIf(&cfg.S3Endpoint, fc.S3Endpoint)
	setIf(&cfg.S3Region, fc.S3Region)
	setIf(&cfg.S3AccessKeyID, fc.S3AccessKeyID)
	setIf(&cfg.S3SecretAccessKey, fc.S3SecretAccessKey)
	setIf(&cfg.LogLevel, fc.LogLevel)
	setIf(&cfg.LogFormat, fc.LogFormat)
	setIf(&cfg.MetricsAddr, fc.MetricsAddr)
	setIf(&cfg.UndeliverableAfter, fc.UndeliverableAfter)
	setIf(&cfg.KDFTime, fc.KDFTime)
	setIf(&cfg.KDFMemoryKiB, fc.KDFMemoryKiB)
	setIf(&cfg.KDFThreads, fc.KDFThreads)
}
