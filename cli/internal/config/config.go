// Package config loads the sqlforge command configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// AppFs is the filesystem configuration and schema files are read from.
var AppFs = afero.NewOsFs()

// Config holds the command configuration.
type Config struct {
	Driver      string
	DSN         string
	SchemaPath  string
	AsidePolicy string
	History     bool
	LogLevel    string
	ArrayParams bool
	Debug       bool
}

// New returns a viper instance with the sqlforge search paths, env binding and defaults.
func New() (*viper.Viper, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetFs(AppFs)
	v.SetConfigName(".sqlforge")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(home)
	v.AddConfigPath(filepath.Join(home, ".config", "sqlforge"))

	v.SetEnvPrefix("SQLFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("dsn", "SQLFORGE_DSN", "DATABASE_URL"); err != nil {
		return nil, err
	}

	v.SetDefault("driver", "sqlite3")
	v.SetDefault("schema_path", "sqlforge.yaml")
	v.SetDefault("aside_policy", "archive")
	v.SetDefault("history", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("array_params", false)
	v.SetDefault("debug", false)
	return v, nil
}

// Load reads .env files and the config file into v and resolves the configuration.
// A missing config file is not an error.
func Load(v *viper.Viper) (*Config, error) {
	if err := loadEnv(".env", false); err != nil {
		return nil, err
	}
	if err := loadEnv(".env.local", true); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	schema, err := homedir.Expand(v.GetString("schema_path"))
	if err != nil {
		return nil, fmt.Errorf("invalid schema_path: %w", err)
	}
	return &Config{
		Driver:      v.GetString("driver"),
		DSN:         v.GetString("dsn"),
		SchemaPath:  schema,
		AsidePolicy: v.GetString("aside_policy"),
		History:     v.GetBool("history"),
		LogLevel:    v.GetString("log_level"),
		ArrayParams: v.GetBool("array_params"),
		Debug:       v.GetBool("debug"),
	}, nil
}

// loadEnv reads name from AppFs into the process environment. Variables already set win
// unless override is set.
func loadEnv(name string, override bool) error {
	f, err := AppFs.Open(name)
	if err != nil {
		return nil
	}
	defer f.Close()

	vars, err := godotenv.Parse(f)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	for k, val := range vars {
		if os.Getenv(k) != "" && !override {
			continue
		}
		if err := os.Setenv(k, val); err != nil {
			return err
		}
	}
	return nil
}

// Save writes the configuration to $HOME/.config/sqlforge/.sqlforge.yaml.
func Save(v *viper.Viper, cfg *Config) error {
	v.Set("driver", cfg.Driver)
	v.Set("dsn", cfg.DSN)
	v.Set("schema_path", cfg.SchemaPath)
	v.Set("aside_policy", cfg.AsidePolicy)
	v.Set("history", cfg.History)
	v.Set("log_level", cfg.LogLevel)
	v.Set("array_params", cfg.ArrayParams)

	home, err := homedir.Dir()
	if err != nil {
		return err
	}
	dir := filepath.Join(home, ".config", "sqlforge")
	if err := AppFs.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return v.WriteConfigAs(filepath.Join(dir, ".sqlforge.yaml"))
}
