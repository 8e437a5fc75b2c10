// Package config provides functionality for managing configuration options
// for the server and the client using command-line flags, a JSON file and
// environment variables.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
)

// Storage backends of the server.
const (
	StoragePostgres = "postgres"
	StorageS3       = "s3"
	StorageMemory   = "memory"
)

// Options holds the configuration values for the server.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string `json:"address" validate:"required,hostname_port"`

	// DatabaseDSN holds the database connection string.
	DatabaseDSN string `json:"database_dsn" validate:"required_if=Storage postgres"`

	// Storage selects the vault repository: postgres, s3 or memory.
	Storage string `json:"storage" validate:"oneof=postgres s3 memory"`

	S3Bucket   string `json:"s3_bucket" validate:"required_if=Storage s3"`
	S3Endpoint string `json:"s3_endpoint" validate:"omitempty,url"`
	S3Region   string `json:"s3_region"`

	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string `json:"tls_cert" validate:"required_with=TLSKey"`
	TLSKey  string `json:"tls_key" validate:"required_with=TLSCert"`

	// RateLimit is the per-IP request rate per second; zero disables it.
	RateLimit float64 `json:"rate_limit" validate:"gte=0"`
	// RateBurst is the per-IP burst size.
	RateBurst int `json:"rate_burst" validate:"gte=0"`
	// TrustProxy keys rate limits on X-Forwarded-For. Only for servers
	// behind a proxy that sets it.
	TrustProxy bool `json:"trust_proxy"`

	// Retention is how long soft-deleted vaults are kept.
	Retention time.Duration `json:"retention"`

	LogLevel string `json:"log_level" validate:"oneof=debug info warn error"`

	// Config is the path to the Config file.
	Config string `json:"-"`
}

var validate = validator.New()

// Parse parses the command-line flags and environment variables to set
// configuration values. Environment variables win over the config file,
// which wins over flags. It exits the process on invalid input.
func Parse() *Options {
	opts, err := parse(flag.CommandLine, os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return opts
}

func parse(fs *flag.FlagSet, args []string, getenv func(string) string) (*Options, error) {
	options := &Options{}
	fs.StringVar(&options.Port, "a", "localhost:8080", "run on ip:port server")
	fs.StringVar(&options.DatabaseDSN, "d", "", "db address")
	fs.StringVar(&options.Storage, "storage", StoragePostgres, "vault storage: postgres, s3 or memory")
	fs.StringVar(&options.S3Bucket, "s3-bucket", "", "S3 bucket for vault blobs")
	fs.StringVar(&options.S3Endpoint, "s3-endpoint", "", "custom S3 endpoint URL")
	fs.StringVar(&options.S3Region, "s3-region", "us-east-1", "S3 region")
	fs.StringVar(&options.TLSCert, "tls-cert", "", "path to TLS certificate")
	fs.StringVar(&options.TLSKey, "tls-key", "", "path to TLS key")
	fs.Float64Var(&options.RateLimit, "rate", 5, "requests per second per client ip, 0 to disable")
	fs.IntVar(&options.RateBurst, "burst", 10, "request burst per client ip")
	fs.BoolVar(&options.TrustProxy, "trust-proxy", false, "take the client ip from X-Forwarded-For")
	fs.DurationVar(&options.Retention, "retention", 30*24*time.Hour, "retention of soft-deleted vaults")
	fs.StringVar(&options.LogLevel, "log-level", "info", "log level")
	fs.StringVar(&options.Config, "config", "config.json", "path to config file")
	fs.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if configPath := getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		if _, err := os.Stat(options.Config); err == nil {
			data, err := os.ReadFile(options.Config)
			if err != nil {
				return nil, fmt.Errorf("error while reading config file: %w", err)
			}
			if err := json.Unmarshal(data, options); err != nil {
				return nil, fmt.Errorf("error while parsing config file: %w", err)
			}
		}
	}

	if serverAddress := getenv("SERVER_ADDRESS"); serverAddress != "" {
		options.Port = serverAddress
	}
	if dsn := getenv("DATABASE_DSN"); dsn != "" {
		options.DatabaseDSN = dsn
	}

	if err := validate.Struct(options); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("invalid config: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return options, nil
}

// ClientOptions holds the defaults of the command-line client.
type ClientOptions struct {
	// ServerURL is the base URL of the vault server.
	ServerURL string
	// DataDir holds the credential store and the local entries.
	DataDir string
}

// ClientDefaults returns client settings from CORTEX_SERVER_URL and
// CORTEX_DATA_DIR, falling back to localhost and the user config dir.
func ClientDefaults(getenv func(string) string) ClientOptions {
	opts := ClientOptions{
		ServerURL: "https://localhost:8080",
		DataDir:   ".cortexvault",
	}
	if dir, err := os.UserConfigDir(); err == nil {
		opts.DataDir = filepath.Join(dir, "cortexvault")
	}
	if v := getenv("CORTEX_SERVER_URL"); v != "" {
		opts.ServerURL = v
	}
	if v := getenv("CORTEX_DATA_DIR"); v != "" {
		opts.DataDir = v
	}
	return opts
}
