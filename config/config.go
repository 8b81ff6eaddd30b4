package config

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"runtime"
	"strconv"
)

// EnvPrefix is the prefix of environment variables read by Load, e.g. WEBBY_PORT.
const EnvPrefix = "WEBBY"

// Config holds all application configuration.
type Config struct {
	Host      string `config:"host"`
	Port      int    `config:"port"`
	Env       string `config:"env"`
	PublicDir string `config:"public.dir"`
	Workers   int    `config:"workers"`
	Verbose   bool   `config:"verbose"`
}

// flag name -> config key
var flagKeys = map[string]string{
	"host":       "host",
	"port":       "port",
	"env":        "env",
	"public-dir": "public.dir",
	"workers":    "workers",
	"verbose":    "verbose",
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Host:      "127.0.0.1",
		Port:      3000,
		Env:       "development",
		PublicDir: "public",
		Workers:   runtime.NumCPU(),
	}
}

// New loads configuration from the command line and environment, exiting on error.
func New() *Config {
	cfg, err := Load(os.Args[1:])
	if err != nil {
		log.Fatalf("Config: %v", err)
	}
	return cfg
}

// Load builds a Config from defaults, then the JSON file named by -config,
// then WEBBY_* environment variables, then flags given explicitly in args.
func Load(args []string) (*Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("webby", flag.ContinueOnError)
	configFile := fs.String("config", "", "JSON configuration file")
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Listen host")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "Listen port")
	fs.StringVar(&cfg.Env, "env", cfg.Env, "Environment (development/production)")
	fs.StringVar(&cfg.PublicDir, "public-dir", cfg.PublicDir, "Static file base directory")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Request worker goroutines")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "Log every request and static file miss")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	m := NewManager()
	if *configFile != "" {
		if err := m.LoadFromJSON(*configFile); err != nil {
			return nil, err
		}
	}
	m.LoadFromEnv(EnvPrefix)
	fs.Visit(func(f *flag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			m.Set(key, f.Value.String())
		}
	})

	if err := m.Unmarshal("", cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Workers < 1 {
		return fmt.Errorf("invalid worker count: %d", c.Workers)
	}
	if c.Env != "development" && c.Env != "production" {
		return fmt.Errorf("invalid env %q (want development or production)", c.Env)
	}
	return nil
}

// Address returns host:port.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
