// Package config loads runtime configuration for the casekeeper CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file selected via -c or -config. Files ending in
//     .yaml or .yml are YAML, everything else JSON.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   address:port of the backend gRPC endpoint
//	-i int      online status check interval (seconds)
//	-s string   store driver (sqlite, postgres, s3, memory)
//	-d string   store DSN
//	-l string   log level
//	-m string   metrics listen address
//
// # File schema
//
// Intervals use timex.Duration, so values can be strings like "3s" or
// integer nanoseconds:
//
//	server_endpoint_addr: 127.0.0.1:50051
//	online_check_interval: 3s
//	store_driver: s3
//	s3_bucket: casekeeper-offline
//	s3_endpoint: http://127.0.0.1:9000
//	kdf_memory_kib: 65536
//
// Note: This package does not read environment variables directly. The S3
// driver falls back to the AWS default credentials chain when no keys are
// configured.
package config
