package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Ключи настроек совпадают с именами переменных окружения в нижнем регистре
const (
	keyInterfaces = "ping_interfaces"

	keyEnablePing      = "enable_ping"
	keyEnableSpeedtest = "enable_speedtest"
	keyEnableDownload  = "enable_download_tests"
	keyEnableHTTP      = "enable_http_tests"

	keyPingTargets         = "ping_targets"
	keyPingCount           = "ping_count"
	keyPingIntervalSeconds = "ping_interval_seconds"
	keyPingIntervalMinutes = "ping_interval_minutes"
	keyPingTimeout         = "ping_timeout_seconds"
	keyPingPrivileged      = "ping_privileged"

	keySpeedtestInterval = "speedtest_interval_minutes"
	keySpeedtestBin      = "speedtest_bin"
	keySpeedtestTimeout  = "speedtest_timeout_seconds"

	keyDownloadInterval = "download_interval_minutes"
	keyDownloadBaseURL  = "download_base_url"
	keyDownloadFiles    = "download_files"
	keyDownloadTimeout  = "download_timeout_seconds"

	keyHTTPURLs           = "http_test_urls"
	keyHTTPInterval       = "http_test_interval_minutes"
	keyHTTPUsers          = "http_locust_users"
	keyHTTPSpawnRate      = "http_locust_spawn_rate"
	keyHTTPDuration       = "http_test_duration_seconds"
	keyHTTPRequestTimeout = "http_request_timeout_seconds"

	keyInfluxURL          = "influx_url"
	keyInfluxToken        = "influx_token"
	keyInfluxTokenLegacy  = "influxdb_token"
	keyInfluxOrg          = "influx_org"
	keyInfluxBucket       = "influx_bucket"
	keyInfluxMaxRetries   = "influx_max_retries"
	keyInfluxRetryBackoff = "influx_retry_backoff_ms"
	keyInfluxTimeout      = "influx_timeout_seconds"

	keyTick       = "scheduler_tick_seconds"
	keyGrace      = "shutdown_grace_seconds"
	keyLogLevel   = "log_level"
	keyDiagListen = "diag_listen"
)

// DefaultPingInterval используется, если интервал пинга не задан
const DefaultPingInterval = 10 * time.Second

// RunConfig неизменяемая конфигурация процесса
type RunConfig struct {
	Interfaces []string

	Ping      PingConfig
	Speedtest SpeedtestConfig
	Download  DownloadConfig
	HTTP      HTTPConfig
	Influx    InfluxConfig

	TickInterval  time.Duration
	ShutdownGrace time.Duration
	LogLevel      string
	DiagListen    string

	// Deprecated содержит предупреждения об устаревших настройках
	Deprecated []string
}

// PingConfig параметры измерения задержки
type PingConfig struct {
	Enabled    bool
	Interval   time.Duration
	Targets    []string
	Count      int
	Timeout    time.Duration
	Privileged bool
}

// SpeedtestConfig параметры измерения пропускной способности
type SpeedtestConfig struct {
	Enabled  bool
	Interval time.Duration
	Binary   string
	Timeout  time.Duration
}

// DownloadFile описывает файл для теста скачивания
type DownloadFile struct {
	Name          string
	URL           string
	ExpectedBytes int64
}

// DownloadConfig параметры теста скачивания
type DownloadConfig struct {
	Enabled  bool
	Interval time.Duration
	BaseURL  string
	Files    []DownloadFile
	Timeout  time.Duration
}

// HTTPConfig параметры нагрузочного HTTP теста
type HTTPConfig struct {
	Enabled        bool
	Interval       time.Duration
	URLs           []string
	Users          int
	SpawnRate      int
	Duration       time.Duration
	RequestTimeout time.Duration
}

// InfluxConfig параметры подключения к хранилищу метрик
type InfluxConfig struct {
	URL          string
	Token        string
	Org          string
	Bucket       string
	MaxRetries   int
	RetryBackoff time.Duration
	Timeout      time.Duration
}

// ConfigError сообщает о некорректной настройке
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func invalid(key, format string, args ...interface{}) error {
	return &ConfigError{Field: envName(key), Reason: fmt.Sprintf(format, args...)}
}

// NewViper создает источник настроек со значениями по умолчанию и чтением окружения
func NewViper() *viper.Viper {
	v := viper.New()
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	v.SetDefault(keyInterfaces, "eth0,wlan0")

	v.SetDefault(keyPingTargets, "www.google.ch,wiki.bzz.ch")
	v.SetDefault(keyPingCount, 4)
	v.SetDefault(keyPingTimeout, 10)
	v.SetDefault(keyPingPrivileged, "false")

	v.SetDefault(keySpeedtestInterval, 60)
	v.SetDefault(keySpeedtestBin, "speedtest")
	v.SetDefault(keySpeedtestTimeout, 120)

	v.SetDefault(keyDownloadInterval, 5)
	v.SetDefault(keyDownloadBaseURL, "https://example.com/test-files")
	v.SetDefault(keyDownloadFiles, "5mb.zip,50mb.zip,80mb.zip")
	v.SetDefault(keyDownloadTimeout, 120)

	v.SetDefault(keyHTTPURLs, "https://www.google.com")
	v.SetDefault(keyHTTPInterval, 15)
	v.SetDefault(keyHTTPUsers, 100)
	v.SetDefault(keyHTTPSpawnRate, 100)
	v.SetDefault(keyHTTPDuration, 30)
	v.SetDefault(keyHTTPRequestTimeout, 10)

	v.SetDefault(keyInfluxURL, "http://localhost:8086")
	v.SetDefault(keyInfluxOrg, "wan-monitor")
	v.SetDefault(keyInfluxBucket, "wan-monitor")
	v.SetDefault(keyInfluxMaxRetries, 3)
	v.SetDefault(keyInfluxRetryBackoff, 500)
	v.SetDefault(keyInfluxTimeout, 10)

	v.SetDefault(keyTick, 5)
	v.SetDefault(keyGrace, 30)
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyDiagListen, "")

	return v
}

// AddFlags добавляет флаги в cobra команду и связывает их с настройками
func AddFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.PersistentFlags()
	flags.String("env-file", ".env", "Dotenv file with settings (process environment wins)")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("diag-listen", "", "Address for the diagnostics server, e.g. :9100 (empty disables)")
	flags.String("influx-url", "", "InfluxDB URL")
	flags.String("interfaces", "", "Comma-separated interface list")

	_ = v.BindPFlag(keyLogLevel, flags.Lookup("log-level"))
	_ = v.BindPFlag(keyDiagListen, flags.Lookup("diag-listen"))
	_ = v.BindPFlag(keyInfluxURL, flags.Lookup("influx-url"))
	_ = v.BindPFlag(keyInterfaces, flags.Lookup("interfaces"))
}

// ReadEnvFile подгружает dotenv файл; отсутствующий файл не является ошибкой
func ReadEnvFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	return nil
}

// Load собирает и проверяет RunConfig
func Load(v *viper.Viper) (*RunConfig, error) {
	cfg := &RunConfig{}
	r := reader{v: v}

	cfg.Interfaces = dedupe(splitList(v.GetString(keyInterfaces)))

	// Пинг
	cfg.Ping.Targets = splitList(v.GetString(keyPingTargets))
	cfg.Ping.Count = r.int(keyPingCount)
	cfg.Ping.Timeout = r.seconds(keyPingTimeout)
	cfg.Ping.Privileged = r.bool(keyPingPrivileged, false)
	switch {
	case v.IsSet(keyPingIntervalSeconds):
		cfg.Ping.Interval = r.seconds(keyPingIntervalSeconds)
	case v.IsSet(keyPingIntervalMinutes):
		cfg.Ping.Interval = r.minutes(keyPingIntervalMinutes)
		cfg.Deprecated = append(cfg.Deprecated,
			fmt.Sprintf("PING_INTERVAL_MINUTES is deprecated, use PING_INTERVAL_SECONDS (currently %s)", cfg.Ping.Interval))
	default:
		cfg.Ping.Interval = DefaultPingInterval
	}

	// Speedtest
	cfg.Speedtest.Interval = r.minutes(keySpeedtestInterval)
	cfg.Speedtest.Binary = v.GetString(keySpeedtestBin)
	cfg.Speedtest.Timeout = r.seconds(keySpeedtestTimeout)

	// Скачивание
	cfg.Download.Interval = r.minutes(keyDownloadInterval)
	cfg.Download.BaseURL = v.GetString(keyDownloadBaseURL)
	cfg.Download.Timeout = r.seconds(keyDownloadTimeout)

	// HTTP нагрузка
	cfg.HTTP.URLs = splitList(v.GetString(keyHTTPURLs))
	cfg.HTTP.Interval = r.minutes(keyHTTPInterval)
	cfg.HTTP.Users = r.int(keyHTTPUsers)
	cfg.HTTP.SpawnRate = r.int(keyHTTPSpawnRate)
	cfg.HTTP.Duration = r.seconds(keyHTTPDuration)
	cfg.HTTP.RequestTimeout = r.seconds(keyHTTPRequestTimeout)

	// InfluxDB
	cfg.Influx.URL = v.GetString(keyInfluxURL)
	cfg.Influx.Token = v.GetString(keyInfluxToken)
	if cfg.Influx.Token == "" {
		cfg.Influx.Token = v.GetString(keyInfluxTokenLegacy)
	}
	cfg.Influx.Org = v.GetString(keyInfluxOrg)
	cfg.Influx.Bucket = v.GetString(keyInfluxBucket)
	cfg.Influx.MaxRetries = r.int(keyInfluxMaxRetries)
	cfg.Influx.RetryBackoff = time.Duration(r.int(keyInfluxRetryBackoff)) * time.Millisecond
	cfg.Influx.Timeout = r.seconds(keyInfluxTimeout)

	// Общие
	cfg.TickInterval = r.seconds(keyTick)
	cfg.ShutdownGrace = r.seconds(keyGrace)
	cfg.LogLevel = v.GetString(keyLogLevel)
	cfg.DiagListen = v.GetString(keyDiagListen)

	if r.err != nil {
		return nil, r.err
	}

	var err error
	if cfg.Ping.Enabled, err = resolveEnabled(v, keyEnablePing, len(cfg.Ping.Targets) > 0, keyPingTargets); err != nil {
		return nil, err
	}
	if cfg.Speedtest.Enabled, err = resolveEnabled(v, keyEnableSpeedtest, true, ""); err != nil {
		return nil, err
	}

	rawFiles := splitList(v.GetString(keyDownloadFiles))
	if cfg.Download.Enabled, err = resolveEnabled(v, keyEnableDownload, len(rawFiles) > 0, keyDownloadFiles); err != nil {
		return nil, err
	}
	if cfg.Download.Enabled {
		for _, entry := range rawFiles {
			file, err := parseDownloadFile(entry, cfg.Download.BaseURL)
			if err != nil {
				return nil, invalid(keyDownloadFiles, "%v", err)
			}
			cfg.Download.Files = append(cfg.Download.Files, file)
		}
	}

	if cfg.HTTP.Enabled, err = resolveEnabled(v, keyEnableHTTP, len(cfg.HTTP.URLs) > 0, keyHTTPURLs); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveEnabled определяет, включен ли вид измерения.
// Пустой список отключает измерение, если переключатель не задан явно.
func resolveEnabled(v *viper.Viper, key string, hasParams bool, paramKey string) (bool, error) {
	explicit := v.IsSet(key)
	enabled := true
	if explicit {
		b, err := parseBool(v.Get(key))
		if err != nil {
			return false, invalid(key, "%v", err)
		}
		enabled = b
	}
	if !enabled {
		return false, nil
	}
	if !hasParams {
		if explicit {
			return false, invalid(paramKey, "must not be empty when %s is true", envName(key))
		}
		return false, nil
	}
	return true, nil
}

// Validate проверяет корректность конфигурации
func (c *RunConfig) Validate() error {
	if c.TickInterval <= 0 {
		return invalid(keyTick, "must be positive")
	}
	if c.ShutdownGrace <= 0 {
		return invalid(keyGrace, "must be positive")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return invalid(keyLogLevel, "unknown level %q", c.LogLevel)
	}

	if err := validateURL(c.Influx.URL); err != nil {
		return invalid(keyInfluxURL, "%v", err)
	}
	if c.Influx.MaxRetries <= 0 {
		return invalid(keyInfluxMaxRetries, "must be positive")
	}
	if c.Influx.RetryBackoff <= 0 {
		return invalid(keyInfluxRetryBackoff, "must be positive")
	}
	if c.Influx.Timeout <= 0 {
		return invalid(keyInfluxTimeout, "must be positive")
	}

	intervals := []struct {
		key   string
		value time.Duration
	}{
		{keyPingIntervalSeconds, c.Ping.Interval},
		{keySpeedtestInterval, c.Speedtest.Interval},
		{keyDownloadInterval, c.Download.Interval},
		{keyHTTPInterval, c.HTTP.Interval},
	}
	for _, iv := range intervals {
		if iv.value <= 0 {
			return invalid(iv.key, "must be positive")
		}
	}

	if c.Ping.Enabled {
		if c.Ping.Count <= 0 {
			return invalid(keyPingCount, "must be positive")
		}
		if c.Ping.Timeout <= 0 {
			return invalid(keyPingTimeout, "must be positive")
		}
	}

	if c.Speedtest.Enabled {
		if c.Speedtest.Binary == "" {
			return invalid(keySpeedtestBin, "must not be empty")
		}
		if c.Speedtest.Timeout <= 0 {
			return invalid(keySpeedtestTimeout, "must be positive")
		}
	}

	if c.Download.Enabled {
		if c.Download.Timeout <= 0 {
			return invalid(keyDownloadTimeout, "must be positive")
		}
	}

	if c.HTTP.Enabled {
		if c.HTTP.Users <= 0 {
			return invalid(keyHTTPUsers, "must be positive")
		}
		if c.HTTP.SpawnRate <= 0 {
			return invalid(keyHTTPSpawnRate, "must be positive")
		}
		if c.HTTP.Duration <= 0 {
			return invalid(keyHTTPDuration, "must be positive")
		}
		if c.HTTP.Duration >= c.HTTP.Interval {
			return invalid(keyHTTPDuration, "must be shorter than the test interval")
		}
		// прогоны по всем URL и интерфейсам делят интервал поровну и не должны пересекаться
		if slots := len(c.HTTP.URLs) * len(c.Interfaces); slots > 1 {
			slot := c.HTTP.Interval / time.Duration(slots)
			if c.HTTP.Duration > slot {
				return invalid(keyHTTPDuration, "%s exceeds the %s slot of %d staggered runs",
					c.HTTP.Duration, slot, slots)
			}
		}
		if c.HTTP.RequestTimeout <= 0 {
			return invalid(keyHTTPRequestTimeout, "must be positive")
		}
		for _, u := range c.HTTP.URLs {
			if err := validateURL(u); err != nil {
				return invalid(keyHTTPURLs, "%v", err)
			}
		}
	}

	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL %q has no host", raw)
	}
	return nil
}
