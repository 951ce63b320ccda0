// Package config provides functionality for managing configuration options
// for the store server using command-line flags, environment variables and
// an optional JSON file.
//
// Precedence, lowest first: flag defaults, JSON file, flags set explicitly
// on the command line, environment variables.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

// Duration is a time.Duration that reads as a string ("720h") in JSON.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Options holds the configuration values for the server.
type Options struct {
	// Addr defines the server's listening address (ip:port).
	Addr string `json:"address"`

	// DatabaseDSN holds the database connection string.
	DatabaseDSN string `json:"database_dsn"`

	// TLSCert and TLSKey locate the server certificate and key. The server
	// speaks plain HTTP when both are empty.
	TLSCert string `json:"tls_cert"`
	TLSKey  string `json:"tls_key"`

	// APIKeys lists the accepted apikey header values. Empty accepts any.
	APIKeys []string `json:"api_keys"`

	// Retention is how long a snapshot survives without being updated.
	// Zero disables the cleaner.
	Retention Duration `json:"retention"`

	// CleanInterval is how often the cleaner runs.
	CleanInterval Duration `json:"clean_interval"`

	// LogLevel is the zap level name.
	LogLevel string `json:"log_level"`

	// Config is the path to the JSON config file.
	Config string `json:"-"`
}

// Parse parses the process arguments and environment.
func Parse() (*Options, error) {
	return ParseArgs(os.Args[1:], os.Getenv)
}

// ParseArgs parses args and reads environment variables through getenv.
func ParseArgs(args []string, getenv func(string) string) (*Options, error) {
	options := &Options{}
	var apiKeys string
	var retention, interval time.Duration

	fs := flag.NewFlagSet("sessionsync-server", flag.ContinueOnError)
	fs.StringVar(&options.Addr, "a", "localhost:8080", "run on ip:port server")
	fs.StringVar(&options.DatabaseDSN, "d", "", "db address")
	fs.StringVar(&options.TLSCert, "tls-cert", "", "server certificate PEM")
	fs.StringVar(&options.TLSKey, "tls-key", "", "server private key PEM")
	fs.StringVar(&apiKeys, "api-keys", "", "comma-separated accepted api keys")
	fs.DurationVar(&retention, "retention", 90*24*time.Hour, "drop snapshots not updated for this long (0 disables)")
	fs.DurationVar(&interval, "clean-interval", time.Hour, "how often stale snapshots are removed")
	fs.StringVar(&options.LogLevel, "log-level", "info", "log level")
	fs.StringVar(&options.Config, "config", "", "path to config file")
	fs.StringVar(&options.Config, "c", "", "path to config file (shorthand)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	options.APIKeys = splitList(apiKeys)
	options.Retention = Duration(retention)
	options.CleanInterval = Duration(interval)

	if configPath := getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		data, err := os.ReadFile(options.Config)
		if err != nil {
			return nil, fmt.Errorf("error while reading config file: %w", err)
		}
		if err := json.Unmarshal(data, options); err != nil {
			return nil, fmt.Errorf("error while parsing config file: %w", err)
		}
		// Explicit flags win over the file.
		explicit := map[string]bool{}
		fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
		reapply(fs, explicit, options, apiKeys, retention, interval)
	}

	if v := getenv("SERVER_ADDRESS"); v != "" {
		options.Addr = v
	}
	if v := getenv("DATABASE_DSN"); v != "" {
		options.DatabaseDSN = v
	}
	if v := getenv("API_KEYS"); v != "" {
		options.APIKeys = splitList(v)
	}
	if v := getenv("RETENTION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("RETENTION: %w", err)
		}
		options.Retention = Duration(d)
	}

	if (options.TLSCert == "") != (options.TLSKey == "") {
		return nil, errors.New("tls-cert and tls-key must be set together")
	}
	if options.CleanInterval <= 0 {
		return nil, errors.New("clean-interval must be positive")
	}
	return options, nil
}

func reapply(fs *flag.FlagSet, explicit map[string]bool, o *Options, apiKeys string, retention, interval time.Duration) {
	get := func(name string) string { return fs.Lookup(name).Value.String() }
	if explicit["a"] {
		o.Addr = get("a")
	}
	if explicit["d"] {
		o.DatabaseDSN = get("d")
	}
	if explicit["tls-cert"] {
		o.TLSCert = get("tls-cert")
	}
	if explicit["tls-key"] {
		o.TLSKey = get("tls-key")
	}
	if explicit["api-keys"] {
		o.APIKeys = splitList(apiKeys)
	}
	if explicit["retention"] {
		o.Retention = Duration(retention)
	}
	if explicit["clean-interval"] {
		o.CleanInterval = Duration(interval)
	}
	if explicit["log-level"] {
		o.LogLevel = get("log-level")
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
