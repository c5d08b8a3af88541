package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the settings a command mode depends on. Modes: "store"
// (any command touching the database), "serve" and "alerts".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "store":
		errs = append(errs, c.validateStore()...)
	case "serve":
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateServer()...)
		errs = append(errs, c.validateFCI()...)
		errs = append(errs, c.validateMonitoring()...)
	case "alerts":
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateMonitoring()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store.sqlite_path is required for the sqlite driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	return errs
}

func (c *Config) validateServer() []string {
	var errs []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server.rate_limit must be >= 0")
	}
	if c.Reports.Concurrency < 1 || c.Reports.Concurrency > 32 {
		errs = append(errs, "reports.concurrency must be between 1 and 32")
	}
	return errs
}

func (c *Config) validateFCI() []string {
	b := c.FCI
	if b.Good <= 0 || b.Fair < b.Good || b.Poor < b.Fair {
		return []string{"fci thresholds must satisfy 0 < good <= fair <= poor"}
	}
	return nil
}

func (c *Config) validateMonitoring() []string {
	var errs []string
	m := c.Monitoring
	if m.ImmediateCostThreshold < 0 {
		errs = append(errs, "monitoring.immediate_cost_threshold must be >= 0")
	}
	if m.StaleDraftDays < 0 || m.StaleDraftsMax < 0 || m.CriticalBuildingsMax < 0 {
		errs = append(errs, "monitoring thresholds must be >= 0")
	}
	return errs
}
