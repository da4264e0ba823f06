// Package config loads runtime settings from defaults, an optional ini file
// and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"

	"bolus/internal/domain"
)

// Store drivers.
const (
	DriverCSV      = "csv"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// DosingSection holds the deployment dosing constants.
type DosingSection struct {
	TargetGlucose     float64 `ini:"target_glucose"`
	SensitivityFactor float64 `ini:"sensitivity_factor"`
}

// StoreSection selects and configures the record store.
type StoreSection struct {
	Driver      string `ini:"driver"`
	DataDir     string `ini:"data_dir"`
	DatabaseURL string `ini:"database_url"`
}

// ServerSection configures the HTTP server.
type ServerSection struct {
	Addr        string `ini:"addr"`
	WebDir      string `ini:"web_dir"`
	DisableAuth bool   `ini:"disable_auth"`
}

// OIDCSection configures single sign-on. SSO is enabled when Issuer is set.
type OIDCSection struct {
	Issuer       string `ini:"issuer"`
	ClientID     string `ini:"client_id"`
	ClientSecret string `ini:"client_secret"`
	RedirectURL  string `ini:"redirect_url"`
}

// LogSection configures the logger.
type LogSection struct {
	Level  string `ini:"level"`
	Format string `ini:"format"`
}

// Config is the complete runtime configuration.
type Config struct {
	Dosing DosingSection
	Store  StoreSection
	Server ServerSection
	OIDC   OIDCSection
	Log    LogSection
}

// Default returns the built-in configuration.
func Default() Config {
	d := domain.DefaultDosingConfig()
	return Config{
		Dosing: DosingSection{TargetGlucose: d.TargetGlucose, SensitivityFactor: d.SensitivityFactor},
		Store:  StoreSection{Driver: DriverCSV, DataDir: "data"},
		Server: ServerSection{Addr: ":8080", WebDir: "web"},
		Log:    LogSection{Level: "info", Format: "text"},
	}
}

// Load builds the configuration. path may be empty; a named file that does
// not exist is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) loadFile(path string) error {
	f, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	sections := map[string]any{
		"dosing": &c.Dosing,
		"store":  &c.Store,
		"server": &c.Server,
		"oidc":   &c.OIDC,
		"log":    &c.Log,
	}
	for name, dst := range sections {
		if !f.HasSection(name) {
			continue
		}
		if err := f.Section(name).MapTo(dst); err != nil {
			return fmt.Errorf("config %s [%s]: %w", path, name, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	var err error
	if c.Dosing.TargetGlucose, err = envFloat("TARGET_GLUCOSE", c.Dosing.TargetGlucose); err != nil {
		return err
	}
	if c.Dosing.SensitivityFactor, err = envFloat("SENSITIVITY_FACTOR", c.Dosing.SensitivityFactor); err != nil {
		return err
	}
	c.Store.Driver = env("STORE_DRIVER", c.Store.Driver)
	c.Store.DataDir = env("DATA_DIR", c.Store.DataDir)
	c.Store.DatabaseURL = env("DATABASE_URL", c.Store.DatabaseURL)
	c.Server.Addr = env("ADDR", c.Server.Addr)
	c.Server.WebDir = env("WEB_DIR", c.Server.WebDir)
	if v := os.Getenv("DISABLE_AUTH"); v != "" {
		if c.Server.DisableAuth, err = strconv.ParseBool(v); err != nil {
			return fmt.Errorf("DISABLE_AUTH: %w", err)
		}
	}
	c.Log.Level = env("LOG_LEVEL", c.Log.Level)
	c.Log.Format = env("LOG_FORMAT", c.Log.Format)
	c.OIDC.Issuer = env("OIDC_ISSUER", c.OIDC.Issuer)
	c.OIDC.ClientID = env("OIDC_CLIENT_ID", c.OIDC.ClientID)
	c.OIDC.ClientSecret = env("OIDC_CLIENT_SECRET", c.OIDC.ClientSecret)
	c.OIDC.RedirectURL = env("OIDC_REDIRECT_URL", c.OIDC.RedirectURL)
	return nil
}

// Validate rejects configurations the services cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Dosing.TargetGlucose <= 0 {
		errs = append(errs, errors.New("target_glucose must be positive"))
	}
	if c.Dosing.SensitivityFactor <= 0 {
		errs = append(errs, errors.New("sensitivity_factor must be positive"))
	}
	switch c.Store.Driver {
	case DriverCSV, DriverMemory:
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("database_url is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.OIDC.Issuer != "" && (c.OIDC.ClientID == "" || c.OIDC.RedirectURL == "") {
		errs = append(errs, errors.New("oidc requires client_id and redirect_url"))
	}
	return errors.Join(errs...)
}

// DosingConfig returns the dosing constants as the domain type.
func (c Config) DosingConfig() domain.DosingConfig {
	return domain.DosingConfig{
		TargetGlucose:     c.Dosing.TargetGlucose,
		SensitivityFactor: c.Dosing.SensitivityFactor,
	}
}

// SSOEnabled reports whether OIDC login is configured.
func (c Config) SSOEnabled() bool {
	return c.OIDC.Issuer != ""
}

// NewLogger builds the logger described by the log section.
func (c Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(c.Log.Level); err == nil {
		log.SetLevel(lvl)
	}
	if strings.EqualFold(c.Log.Format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}
