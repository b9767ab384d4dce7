package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	conf, err := LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)

	require.Equal(t, "/var/lib/abdm-broker", conf.Broker.DataDir)
	require.Equal(t, 120*time.Second, conf.refreshBuffer())
	require.Equal(t, 15*time.Minute, conf.refreshInterval())
	require.Equal(t, 180*24*time.Hour, conf.keyHorizon())
	require.Equal(t, 24*time.Hour, conf.keyCheckInterval())
	require.Equal(t, "sbx", conf.Gateway.CMID)
	require.Equal(t, ":8002", conf.HTTP.Listen)
	require.Equal(t, "stderr", conf.Log.Output)
}

func TestLoadConfig(t *testing.T) {
	conf, err := LoadConfig(writeConfig(t, `
[broker]
data_dir = "/tmp/broker-test"
refresh_buffer_seconds = 300
refresh_interval_minutes = 5
key_horizon_days = 30
key_check_interval_hours = 6

[gateway]
session_url = "https://gateway.example.com/sessions"
certificate_url = "https://gateway.example.com/certs"
cm_id = "abdm"

[http]
listen = "127.0.0.1:9000"

[log]
output = "stdout"
severity = "DEBUG"
`))
	require.NoError(t, err)

	require.Equal(t, "/tmp/broker-test", conf.Broker.DataDir)
	require.Equal(t, filepath.Join("/tmp/broker-test", "credential.json"), conf.tokenFile())
	require.Equal(t, filepath.Join("/tmp/broker-test", "public_key.pem"), conf.keyFile())
	require.Equal(t, 300*time.Second, conf.refreshBuffer())
	require.Equal(t, 5*time.Minute, conf.refreshInterval())
	require.Equal(t, 30*24*time.Hour, conf.keyHorizon())
	require.Equal(t, 6*time.Hour, conf.keyCheckInterval())
	require.Equal(t, "https://gateway.example.com/sessions", conf.Gateway.SessionURL)
	require.Equal(t, "abdm", conf.Gateway.CMID)
	require.Equal(t, "127.0.0.1:9000", conf.HTTP.Listen)
	require.Equal(t, "DEBUG", conf.Log.Severity)
}

func TestLoadConfigNegativeBuffer(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
[broker]
refresh_buffer_seconds = -1
`))
	require.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestExampleConfigParses(t *testing.T) {
	conf, err := LoadConfig(writeConfig(t, exampleConfig))
	require.NoError(t, err)
	require.Equal(t, "/var/lib/abdm-broker", conf.Broker.DataDir)
	require.Equal(t, "sbx", conf.Gateway.CMID)
}
