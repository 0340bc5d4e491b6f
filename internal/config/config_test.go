package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func load(t *testing.T, settings map[string]string) (*RunConfig, error) {
	t.Helper()
	v := NewViper()
	for k, val := range settings {
		v.Set(k, val)
	}
	return Load(v)
}

func requireConfigError(t *testing.T, err error, field string) {
	t.Helper()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if cfgErr.Field != field {
		t.Fatalf("field=%s want %s", cfgErr.Field, field)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := load(t, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cfg.Interfaces, []string{"eth0", "wlan0"}) {
		t.Fatalf("interfaces=%v", cfg.Interfaces)
	}
	if cfg.Ping.Interval != DefaultPingInterval || cfg.Ping.Count != 4 {
		t.Fatalf("ping=%+v", cfg.Ping)
	}
	if cfg.HTTP.Interval != 15*time.Minute || cfg.HTTP.Duration != 30*time.Second {
		t.Fatalf("http=%+v", cfg.HTTP)
	}
	if !cfg.Ping.Enabled || !cfg.Speedtest.Enabled || !cfg.Download.Enabled || !cfg.HTTP.Enabled {
		t.Fatalf("all kinds should be enabled by default: %+v", cfg)
	}
	if len(cfg.Download.Files) != 3 || cfg.Download.Files[0].URL != "https://example.com/test-files/5mb.zip" {
		t.Fatalf("files=%+v", cfg.Download.Files)
	}
	if cfg.Influx.Org != "wan-monitor" || cfg.Influx.MaxRetries != 3 {
		t.Fatalf("influx=%+v", cfg.Influx)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Parallel()

	cfg, err := load(t, map[string]string{
		"ping_count":      "9",
		"ping_targets":    "a.example.com, b.example.com",
		"ping_interfaces": "eth0, wlan0,eth0",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ping.Count != 9 {
		t.Fatalf("count=%d", cfg.Ping.Count)
	}
	if !reflect.DeepEqual(cfg.Ping.Targets, []string{"a.example.com", "b.example.com"}) {
		t.Fatalf("targets=%v", cfg.Ping.Targets)
	}
	if !reflect.DeepEqual(cfg.Interfaces, []string{"eth0", "wlan0"}) {
		t.Fatalf("interfaces=%v", cfg.Interfaces)
	}
}

func TestLoad_DecimalIntegers(t *testing.T) {
	t.Parallel()

	cfg, err := load(t, map[string]string{"http_locust_users": "010", "ping_count": "08"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Users != 10 || cfg.Ping.Count != 8 {
		t.Fatalf("users=%d count=%d", cfg.HTTP.Users, cfg.Ping.Count)
	}
}

func TestLoad_DurationFitsStaggerSlot(t *testing.T) {
	t.Parallel()

	cfg, err := load(t, map[string]string{
		"http_test_urls":             "https://a.example,https://b.example",
		"http_test_interval_minutes": "2",
		"http_test_duration_seconds": "30",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.HTTP.Enabled {
		t.Fatalf("http should be enabled")
	}
}

func TestLoad_EmptyListDisablesKind(t *testing.T) {
	t.Parallel()

	cfg, err := load(t, map[string]string{"http_test_urls": ""})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Enabled {
		t.Fatalf("http should be disabled")
	}
}

func TestLoad_EmptyInterfaces(t *testing.T) {
	t.Parallel()

	cfg, err := load(t, map[string]string{"ping_interfaces": ""})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Interfaces) != 0 {
		t.Fatalf("interfaces=%v", cfg.Interfaces)
	}
}

func TestLoad_ExplicitEnableRequiresList(t *testing.T) {
	t.Parallel()

	_, err := load(t, map[string]string{"http_test_urls": "", "enable_http_tests": "yes"})
	requireConfigError(t, err, "HTTP_TEST_URLS")
}

func TestLoad_DisabledBySwitch(t *testing.T) {
	t.Parallel()

	cfg, err := load(t, map[string]string{"enable_speedtest": "off"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Speedtest.Enabled {
		t.Fatalf("speedtest should be disabled")
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		settings map[string]string
		field    string
	}{
		{"zero interval", map[string]string{"speedtest_interval_minutes": "0"}, "SPEEDTEST_INTERVAL_MINUTES"},
		{"negative ping interval", map[string]string{"ping_interval_seconds": "-5"}, "PING_INTERVAL_SECONDS"},
		{"not a number", map[string]string{"ping_count": "many"}, "PING_COUNT"},
		{"bad bool", map[string]string{"enable_ping": "maybe"}, "ENABLE_PING"},
		{"bad log level", map[string]string{"log_level": "trace"}, "LOG_LEVEL"},
		{"bad http url", map[string]string{"http_test_urls": "ftp://x"}, "HTTP_TEST_URLS"},
		{"zero users", map[string]string{"http_locust_users": "0"}, "HTTP_LOCUST_USERS"},
		{"duration over interval", map[string]string{"http_test_duration_seconds": "900"}, "HTTP_TEST_DURATION_SECONDS"},
		{"duration over stagger slot", map[string]string{
			"http_test_urls":             "http://a,http://b",
			"http_test_interval_minutes": "1",
			"http_test_duration_seconds": "50",
		}, "HTTP_TEST_DURATION_SECONDS"},
		{"hex users", map[string]string{"http_locust_users": "0x10"}, "HTTP_LOCUST_USERS"},
		{"missing influx url", map[string]string{"influx_url": ""}, "INFLUX_URL"},
		{"bad download entry", map[string]string{"download_files": "x|https://h/f|big"}, "DOWNLOAD_FILES"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := load(t, tt.settings)
			requireConfigError(t, err, tt.field)
		})
	}
}

func TestLoad_TokenFallback(t *testing.T) {
	t.Parallel()

	cfg, err := load(t, map[string]string{"influxdb_token": "legacy"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Influx.Token != "legacy" {
		t.Fatalf("token=%q", cfg.Influx.Token)
	}

	cfg, err = load(t, map[string]string{"influxdb_token": "legacy", "influx_token": "primary"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Influx.Token != "primary" {
		t.Fatalf("token=%q", cfg.Influx.Token)
	}
}

func TestLoad_PingIntervalPrecedence(t *testing.T) {
	t.Parallel()

	cfg, err := load(t, map[string]string{"ping_interval_minutes": "2"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ping.Interval != 2*time.Minute || len(cfg.Deprecated) != 1 {
		t.Fatalf("interval=%s deprecated=%v", cfg.Ping.Interval, cfg.Deprecated)
	}

	cfg, err = load(t, map[string]string{"ping_interval_minutes": "2", "ping_interval_seconds": "30"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ping.Interval != 30*time.Second || len(cfg.Deprecated) != 0 {
		t.Fatalf("interval=%s deprecated=%v", cfg.Ping.Interval, cfg.Deprecated)
	}
}

func TestReadEnvFile_EnvironmentWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("PING_COUNT=7\nHTTP_LOCUST_USERS=12\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("PING_COUNT", "5")

	v := NewViper()
	if err := ReadEnvFile(v, path); err != nil {
		t.Fatalf("ReadEnvFile: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ping.Count != 5 {
		t.Fatalf("count=%d", cfg.Ping.Count)
	}
	if cfg.HTTP.Users != 12 {
		t.Fatalf("users=%d", cfg.HTTP.Users)
	}
}

func TestReadEnvFile_Missing(t *testing.T) {
	t.Parallel()

	v := NewViper()
	if err := ReadEnvFile(v, filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("ReadEnvFile: %v", err)
	}
}

func TestParseDownloadFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		entry string
		want  DownloadFile
	}{
		{"5mb.zip", DownloadFile{Name: "5mb.zip", URL: "https://base/files/5mb.zip"}},
		{"https://cdn.example.com/big/80mb.bin", DownloadFile{Name: "80mb.bin", URL: "https://cdn.example.com/big/80mb.bin"}},
		{"small|https://cdn.example.com/a", DownloadFile{Name: "small", URL: "https://cdn.example.com/a"}},
		{"small|https://cdn.example.com/a|5000000", DownloadFile{Name: "small", URL: "https://cdn.example.com/a", ExpectedBytes: 5000000}},
		{"rel|10mb.zip", DownloadFile{Name: "rel", URL: "https://base/files/10mb.zip"}},
	}
	for _, tt := range tests {
		got, err := parseDownloadFile(tt.entry, "https://base/files/")
		if err != nil {
			t.Fatalf("%s: %v", tt.entry, err)
		}
		if got != tt.want {
			t.Fatalf("%s: got %+v want %+v", tt.entry, got, tt.want)
		}
	}

	if _, err := parseDownloadFile("label|", "https://base"); err == nil {
		t.Fatalf("expected error for empty source")
	}
}
