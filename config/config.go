// Package config loads environment variables and provides a typed Config used by the probe.
// Defaults match the docker-compose setup so the binary runs locally with no setup at all.
// An optional YAML file (PROBE_CONFIG_FILE) can supply the same keys; environment variables win.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Supported database/sql driver names.
const (
	DriverPgx      = "pgx"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Defaults applied when neither the environment nor the config file sets a value.
const (
	DefaultDBName         = "health_db"
	DefaultDBUser         = "health_user"
	DefaultDBPassword     = "health_password" //nolint:gosec // G101: local docker-compose default
	DefaultDBHost         = "localhost"
	DefaultDBPort         = "5432"
	DefaultDBDriver       = DriverPgx
	DefaultDBSSLMode      = "disable"
	DefaultWaitRetries    = 10
	DefaultWaitDelay      = 5 * time.Second
	DefaultConnectTimeout = 5 * time.Second
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

var (
	ErrInvalidPort     = errors.New("DB_PORT must be a valid port number")
	ErrUnknownDriver   = errors.New("DB_DRIVER must be one of pgx, postgres, mysql")
	ErrInvalidRetries  = errors.New("WAIT_RETRIES must be at least 1")
	ErrInvalidDuration = errors.New("duration must be positive")
)

type Config struct {
	// Database
	DBName     string `koanf:"postgres_db"`
	DBUser     string `koanf:"postgres_user"`
	DBPassword string `koanf:"postgres_password"`
	DBHost     string `koanf:"db_host"`
	DBPort     string `koanf:"db_port"`
	DBDriver   string `koanf:"db_driver"`
	DBSSLMode  string `koanf:"db_sslmode"`

	// Readiness wait
	WaitForDB      bool          `koanf:"wait_for_db"`
	WaitRetries    int           `koanf:"wait_retries"`
	WaitDelay      time.Duration `koanf:"wait_delay"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`

	// Telemetry
	PushgatewayURL string `koanf:"pushgateway_url"`

	// Logging
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
}

// Load reads the optional YAML file at path (ignored when empty), then environment variables,
// and applies defaults. The returned config has been validated.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		DBName:         connValue("POSTGRES_DB", k, DefaultDBName),
		DBUser:         connValue("POSTGRES_USER", k, DefaultDBUser),
		DBPassword:     connValue("POSTGRES_PASSWORD", k, DefaultDBPassword),
		DBHost:         connValue("DB_HOST", k, DefaultDBHost),
		DBPort:         connValue("DB_PORT", k, DefaultDBPort),
		DBDriver:       strings.ToLower(stringValue("DB_DRIVER", k, DefaultDBDriver)),
		DBSSLMode:      stringValue("DB_SSLMODE", k, DefaultDBSSLMode),
		PushgatewayURL: stringValue("PUSHGATEWAY_URL", k, ""),
		LogLevel:       strings.ToLower(stringValue("LOG_LEVEL", k, DefaultLogLevel)),
		LogFormat:      strings.ToLower(stringValue("LOG_FORMAT", k, DefaultLogFormat)),
	}

	// WAIT_FOR_DB is enabled only by the literal "true", matching the compose files.
	cfg.WaitForDB = k.Bool("wait_for_db")
	if v := os.Getenv("WAIT_FOR_DB"); v != "" {
		cfg.WaitForDB = v == "true"
	}

	var err error
	if cfg.WaitRetries, err = intValue("WAIT_RETRIES", k, DefaultWaitRetries); err != nil {
		return nil, err
	}
	if cfg.WaitDelay, err = durationValue("WAIT_DELAY", k, DefaultWaitDelay); err != nil {
		return nil, err
	}
	if cfg.ConnectTimeout, err = durationValue("CONNECT_TIMEOUT", k, DefaultConnectTimeout); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values DSN assembly and the readiness loop depend on.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.DBPort)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("%w: %q", ErrInvalidPort, c.DBPort)
	}
	switch c.DBDriver {
	case DriverPgx, DriverPostgres, DriverMySQL:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.DBDriver)
	}
	if c.WaitRetries < 1 {
		return ErrInvalidRetries
	}
	if c.WaitDelay <= 0 {
		return fmt.Errorf("WAIT_DELAY: %w", ErrInvalidDuration)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("CONNECT_TIMEOUT: %w", ErrInvalidDuration)
	}
	return nil
}

// Address returns host:port for log lines.
func (c *Config) Address() string {
	return c.DBHost + ":" + c.DBPort
}

// DSN builds the data source name for the configured driver. A positive connectTimeout is
// passed to the driver so a single dial cannot block longer than that.
func (c *Config) DSN(connectTimeout time.Duration) string {
	if c.DBDriver == DriverMySQL {
		dsn := fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true",
			c.DBUser, c.DBPassword, net.JoinHostPort(c.DBHost, c.DBPort), c.DBName)
		if connectTimeout > 0 {
			dsn += "&timeout=" + connectTimeout.String()
		}
		return dsn
	}

	q := url.Values{}
	if c.DBSSLMode != "" {
		q.Set("sslmode", c.DBSSLMode)
	}
	if connectTimeout > 0 {
		secs := int(connectTimeout / time.Second)
		if secs < 1 {
			secs = 1
		}
		q.Set("connect_timeout", strconv.Itoa(secs))
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     net.JoinHostPort(c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// stringValue returns the environment variable if set, otherwise the file value, otherwise def.
func stringValue(envKey string, k *koanf.Koanf, def string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if v := k.String(strings.ToLower(envKey)); v != "" {
		return v
	}
	return def
}

// connValue is stringValue for connection parameters, except that a variable set to the empty
// string is used as is (an empty password stays empty).
func connValue(envKey string, k *koanf.Koanf, def string) string {
	if v, ok := os.LookupEnv(envKey); ok {
		return v
	}
	return stringValue(envKey, k, def)
}

func intValue(envKey string, k *koanf.Koanf, def int) (int, error) {
	if v := os.Getenv(envKey); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, err)
		}
		return i, nil
	}
	if key := strings.ToLower(envKey); k.Exists(key) {
		return k.Int(key), nil
	}
	return def, nil
}

// durationValue accepts Go duration strings ("5s") or a bare number of seconds.
func durationValue(envKey string, k *koanf.Koanf, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(envKey)
	if raw == "" {
		raw = k.String(strings.ToLower(envKey))
	}
	if raw == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", envKey, err)
	}
	return d, nil
}
