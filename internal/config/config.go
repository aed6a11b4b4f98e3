package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ErrConfiguration marks every error caused by a missing or malformed setting.
var ErrConfiguration = errors.New("configuration error")

const (
	// EnvRetention and EnvBucket are the variables deployments have always been configured with.
	EnvRetention = "DEPLOYMENT_RETENTION"
	EnvBucket    = "DEPLOYMENT_BUCKET"

	envPrefix = "DEPLOYPRUNE"
)

type Config struct {
	Retention          int                  `mapstructure:"-"`
	Bucket             string               `mapstructure:"bucket"`
	AllowZeroRetention bool                 `mapstructure:"allow_zero_retention"`
	Schedule           string               `mapstructure:"schedule"`
	Storage            StorageConfig        `mapstructure:"storage"`
	Log                LogConfig            `mapstructure:"log"`
	Metrics            MetricsConfig        `mapstructure:"metrics"`
	Notifications      []NotificationConfig `mapstructure:"notifications"`
}

type StorageConfig struct {
	Type      string `mapstructure:"type"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	PathStyle bool   `mapstructure:"path_style"`
	Insecure  bool   `mapstructure:"insecure"`
	// Path is the root directory for the local backend; the bucket is a directory below it.
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

type NotificationConfig struct {
	Type   string              `mapstructure:"type"`
	On     []string            `mapstructure:"on"`
	Config NotificationDetails `mapstructure:"config"`
}

type NotificationDetails struct {
	SMTPHost string            `mapstructure:"smtp_host"`
	SMTPPort int               `mapstructure:"smtp_port"`
	From     string            `mapstructure:"from"`
	To       string            `mapstructure:"to"`
	Username string            `mapstructure:"username"`
	Password string            `mapstructure:"password"`
	URL      string            `mapstructure:"url"`
	Headers  map[string]string `mapstructure:"headers"`
}

var defaults = map[string]any{
	"bucket":               "",
	"allow_zero_retention": false,
	"schedule":             "",
	"storage.type":         "s3",
	"storage.region":       "",
	"storage.endpoint":     "",
	"storage.access_key":   "",
	"storage.secret_key":   "",
	"storage.path_style":   false,
	"storage.insecure":     false,
	"storage.path":         "",
	"log.level":            "info",
	"log.format":           "console",
	"metrics.textfile":     "",
}

// LoadConfig layers an optional config file, the environment and explicit overrides (highest
// precedence). path may be empty. Keys in overrides use the dotted viper form, e.g. "storage.type".
func LoadConfig(path string, overrides map[string]any) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("retention", EnvRetention, envPrefix+"_RETENTION"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}
	if err := v.BindEnv("bucket", EnvBucket, envPrefix+"_BUCKET"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: failed to read config: %w", ErrConfiguration, err)
		}
	}

	for k, val := range overrides {
		v.Set(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %w", ErrConfiguration, err)
	}

	retention, err := parseRetention(v.Get("retention"))
	if err != nil {
		return nil, err
	}
	cfg.Retention = retention

	ModifyConfig(&cfg)

	return &cfg, nil
}

// parseRetention accepts a base-10 integer string or an integer value.
// Hex, octal and fractional forms are rejected rather than coerced.
func parseRetention(raw any) (int, error) {
	switch val := raw.(type) {
	case nil:
		return 0, fmt.Errorf("%w: retention is required (set %s)", ErrConfiguration, EnvRetention)
	case string:
		s := strings.TrimSpace(os.ExpandEnv(val))
		if s == "" {
			return 0, fmt.Errorf("%w: retention is required (set %s)", ErrConfiguration, EnvRetention)
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("%w: retention %q is not an integer", ErrConfiguration, s)
		}
		return n, nil
	case float32, float64:
		f := cast.ToFloat64(val)
		if f != math.Trunc(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("%w: retention %v is not an integer", ErrConfiguration, val)
		}
		return int(f), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		n, err := cast.ToIntE(val)
		if err != nil {
			return 0, fmt.Errorf("%w: retention %v: %v", ErrConfiguration, val, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: retention %v is not an integer", ErrConfiguration, raw)
	}
}

// ModifyConfig expands ${VAR} references in string settings.
func ModifyConfig(cfg *Config) {
	cfg.Bucket = strings.TrimSpace(os.ExpandEnv(cfg.Bucket))
	cfg.Schedule = os.ExpandEnv(cfg.Schedule)

	st := &cfg.Storage
	st.Type = strings.ToLower(strings.TrimSpace(os.ExpandEnv(st.Type)))
	st.Region = os.ExpandEnv(st.Region)
	st.Endpoint = os.ExpandEnv(st.Endpoint)
	st.AccessKey = os.ExpandEnv(st.AccessKey)
	st.SecretKey = os.ExpandEnv(st.SecretKey)
	st.Path = os.ExpandEnv(st.Path)

	cfg.Log.Level = os.ExpandEnv(cfg.Log.Level)
	cfg.Log.Format = os.ExpandEnv(cfg.Log.Format)
	cfg.Metrics.Textfile = os.ExpandEnv(cfg.Metrics.Textfile)

	for i := range cfg.Notifications {
		nt := &cfg.Notifications[i]
		nt.Type = os.ExpandEnv(nt.Type)
		for j := range nt.On {
			nt.On[j] = os.ExpandEnv(nt.On[j])
		}
		nt.Config.SMTPHost = os.ExpandEnv(nt.Config.SMTPHost)
		nt.Config.From = os.ExpandEnv(nt.Config.From)
		nt.Config.To = os.ExpandEnv(nt.Config.To)
		nt.Config.Username = os.ExpandEnv(nt.Config.Username)
		nt.Config.Password = os.ExpandEnv(nt.Config.Password)
		nt.Config.URL = os.ExpandEnv(nt.Config.URL)
		for k, v := range nt.Config.Headers {
			nt.Config.Headers[k] = os.ExpandEnv(v)
		}
	}
}
