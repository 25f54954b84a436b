package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		expected *Config
		name     string
		args     []string
		wantErr  bool
	}{
		{
			name: "all flags",
			args: []string{"-a", "127.0.0.1:9090", "-i", "10", "-s", "postgres", "-d", "postgres://u@h/db", "-l", "debug", "-m", ":9100"},
			expected: &Config{
				ServerEndpointAddr:  "127.0.0.1:9090",
				OnlineCheckInterval: 10 * time.Second,
				StoreDriver:         "postgres",
				StoreDSN:            "postgres://u@h/db",
				LogLevel:            "debug",
				MetricsAddr:         ":9100",
			},
		},
		{
			name:     "foreign flags are ignored",
			args:     []string{"-c", "cfg.yaml", "-x", "1", "-a", "h:1"},
			expected: &Config{ServerEndpointAddr: "h:1"},
		},
		{
			name:     "incorrect check interval",
			args:     []string{"-a", "127.0.0.1:9090", "-i", "abc"},
			wantErr:  true,
			expected: &Config{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{}

			err := parseFlags(config, tt.args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(tt.expected, config))
		})
	}
}

func TestParseFlags_IntervalKeptWhenNotGiven(t *testing.T) {
	cfg := &Config{OnlineCheckInterval: 1500 * time.Millisecond}
	require.NoError(t, parseFlags(cfg, []string{"-a", "h:1"}))
	assert.Equal(t, 1500*time.Millisecond, cfg.OnlineCheckInterval)
}
