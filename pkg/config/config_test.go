package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvAsInt(t *testing.T) {
	t.Setenv("PLCPING_TEST_INT", "42")
	assert.Equal(t, 42, GetEnvAsInt("PLCPING_TEST_INT", 1))

	t.Setenv("PLCPING_TEST_INT", "forty-two")
	assert.Equal(t, 1, GetEnvAsInt("PLCPING_TEST_INT", 1))

	assert.Equal(t, 7, GetEnvAsInt("PLCPING_TEST_UNSET", 7))
}

func TestParseTargets(t *testing.T) {
	got, err := ParseTargets("TestPLC,127.0.0.1,0,5; line2 , 192.168.0.50 ;;")
	require.NoError(t, err)

	want := []PLCConfig{
		{Name: "TestPLC", Host: "127.0.0.1", Auxiliary: 0, Attempts: 5, TimeoutMs: DefaultTimeoutMs, Port: DefaultPort},
		{Name: "line2", Host: "192.168.0.50", Attempts: DefaultAttempts, TimeoutMs: DefaultTimeoutMs, Port: DefaultPort},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("targets mismatch (-want +got):\n%s", diff)
	}
}

func TestParseTargets_Invalid(t *testing.T) {
	for _, in := range []string{"onlyname", "a,b,c,d,e", "a,b,x", "a,b,0,y"} {
		_, err := ParseTargets(in)
		assert.Error(t, err, in)
	}

	got, err := ParseTargets("")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadDevicesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plcs.yaml")
	content := `plcs:
  - name: press-1
    host: 192.168.0.10
    auxiliary: 2
    attempts: 3
    timeout_ms: 250
    method: tcp
    port: 502
  - host: 10.0.0.7
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	got, err := LoadDevicesFile(path)
	require.NoError(t, err)

	want := []PLCConfig{
		{Name: "press-1", Host: "192.168.0.10", Auxiliary: 2, Attempts: 3, TimeoutMs: 250, Method: "tcp", Port: 502},
		{Name: "10.0.0.7", Host: "10.0.0.7", Attempts: DefaultAttempts, TimeoutMs: DefaultTimeoutMs, Port: DefaultPort},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("devices mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadDevicesFile_Errors(t *testing.T) {
	_, err := LoadDevicesFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("plcs: [name: {"), 0o600))
	_, err = LoadDevicesFile(path)
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	t.Setenv("PLC_HOST", "127.0.0.1")
	t.Setenv("PLC_NAME", "TestPLC")
	t.Setenv("PLC_ATTEMPTS", "5")
	t.Setenv("SEC_PLC_HOST", "")
	t.Setenv("PLC_TARGETS", "extra,10.1.1.1")
	t.Setenv("PLC_DEVICES_FILE", "")
	t.Setenv("MQTT_SKIP", "TRUE")
	t.Setenv("MONITOR_WORKERS", "2")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.env"))
	require.NoError(t, err)

	assert.True(t, cfg.MqttSkip)
	assert.Equal(t, 2, cfg.MonitorWorkers)
	require.Len(t, cfg.PLCs, 2)
	assert.Equal(t, "TestPLC", cfg.PLCs[0].Name)
	assert.Equal(t, 5, cfg.PLCs[0].Attempts)
	assert.Equal(t, DefaultPort, cfg.PLCs[0].Port)
	assert.Equal(t, "extra", cfg.PLCs[1].Name)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env.local")
	require.NoError(t, os.WriteFile(path, []byte("PLCPING_FROM_FILE_HOST=10.9.9.9\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("PLCPING_FROM_FILE_HOST") })

	_, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10.9.9.9", os.Getenv("PLCPING_FROM_FILE_HOST"))
}

func TestValidate(t *testing.T) {
	base := AppConfig{MonitorIntervalMs: 1000, MonitorWorkers: 1}

	tests := map[string]PLCConfig{
		"empty host":       {Name: "a"},
		"negative attempt": {Host: "h", Attempts: -1},
		"negative timeout": {Host: "h", TimeoutMs: -5},
		"bad port":         {Host: "h", Port: 70000},
		"bad method":       {Host: "h", Method: "snmp"},
	}
	for name, p := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := base
			cfg.PLCs = []PLCConfig{p}
			assert.Error(t, cfg.Validate())
		})
	}

	assert.Error(t, AppConfig{MonitorIntervalMs: 0, MonitorWorkers: 1}.Validate())
	assert.Error(t, AppConfig{MonitorIntervalMs: 1, MonitorWorkers: 0}.Validate())

	ok := base
	ok.PLCs = []PLCConfig{{Host: "h", Method: "ICMP"}}
	assert.NoError(t, ok.Validate())
}
