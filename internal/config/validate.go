package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate reports the first setting that would make a cleanup run unsafe or impossible.
// Every returned error wraps ErrConfiguration.
func (c *Config) Validate() error {
	if c.Retention < 0 {
		return fmt.Errorf("%w: retention must be >= 0, got %d", ErrConfiguration, c.Retention)
	}
	if c.Retention == 0 && !c.AllowZeroRetention {
		return fmt.Errorf("%w: retention=0 deletes every deployment; set allow_zero_retention to confirm", ErrConfiguration)
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return fmt.Errorf("%w: bucket is required (set %s)", ErrConfiguration, EnvBucket)
	}
	if strings.Contains(c.Bucket, "/") {
		return fmt.Errorf("%w: bucket %q must not contain '/'", ErrConfiguration, c.Bucket)
	}

	switch c.Storage.Type {
	case "s3":
	case "minio":
		if c.Storage.Endpoint == "" {
			return fmt.Errorf("%w: storage.endpoint is required for minio", ErrConfiguration)
		}
	case "local":
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: storage.path is required for local storage", ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: storage.type %q is not one of s3, minio, local", ErrConfiguration, c.Storage.Type)
	}
	if (c.Storage.AccessKey == "") != (c.Storage.SecretKey == "") {
		return fmt.Errorf("%w: storage.access_key and storage.secret_key must be set together", ErrConfiguration)
	}

	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("%w: log.format %q is not one of console, json", ErrConfiguration, c.Log.Format)
	}

	if s := strings.TrimSpace(c.Schedule); s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			return fmt.Errorf("%w: schedule %q: %w", ErrConfiguration, s, err)
		}
	}

	for i, n := range c.Notifications {
		if strings.TrimSpace(n.Type) == "" {
			return fmt.Errorf("%w: notifications[%d].type is required", ErrConfiguration, i)
		}
	}
	return nil
}
