package main

import (
	"bytes"
	"fmt"
	"os"
	goruntime "runtime"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// config holds the serve settings. Flags override the environment, which
// overrides the config file.
type config struct {
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
	Host     string `yaml:"host"`
	PlotsDir string `yaml:"plots_dir"`
	Workers  int    `yaml:"workers"`
	LogLevel string `yaml:"log_level"`
}

func defaultConfig() config {
	return config{
		Port:     8787,
		GRPCPort: 8788,
		Host:     "0.0.0.0",
		Workers:  goruntime.NumCPU(),
		LogLevel: "info",
	}
}

func (c config) addr() string     { return fmt.Sprintf("%s:%d", c.Host, c.Port) }
func (c config) grpcAddr() string { return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort) }

func loadConfig(cmd *cobra.Command) (config, error) {
	cfg := defaultConfig()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	for _, env := range []struct {
		key string
		dst *int
	}{
		{"PORT", &cfg.Port},
		{"GRPC_PORT", &cfg.GRPCPort},
		{"WORKERS", &cfg.Workers},
	} {
		if v := os.Getenv(env.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return cfg, fmt.Errorf("invalid %s %q: %w", env.key, v, err)
			}
			*env.dst = n
		}
	}
	if v := os.Getenv("HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("PLOTS_DIR"); v != "" {
		cfg.PlotsDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("grpc-port") {
		cfg.GRPCPort, _ = flags.GetInt("grpc-port")
	}
	if flags.Changed("host") {
		cfg.Host, _ = flags.GetString("host")
	}
	if flags.Changed("plots-dir") {
		cfg.PlotsDir, _ = flags.GetString("plots-dir")
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}

	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return cfg, nil
}
