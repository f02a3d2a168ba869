// Package config binds the casimir CLI's flags and CASIMIR_-prefixed
// environment variables to a typed Config, mirroring how the teacher's
// process-level config loader layers viper over pflag.
package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all process-level configuration for casimir. It is
// distinct from the in-protocol NCI configuration store (see
// internal/nciparam), which models §6.1 parameters, not process flags.
type Config struct {
	NCIPort    int    `mapstructure:"nci_port"`
	RFPort     int    `mapstructure:"rf_port"`
	GRPCPort   int    `mapstructure:"grpc_port"`
	LogLevel   string `mapstructure:"log_level"`
	LogFormat  string `mapstructure:"log_format"`
	LogDir     string `mapstructure:"log_dir"`
	MQTTBroker string `mapstructure:"mqtt_broker"`
}

// Load parses the given argument list (normally os.Args[1:]) and
// returns the resulting Config. Flags take precedence over environment
// variables, which take precedence over defaults.
func Load(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("casimir", pflag.ContinueOnError)
	fs.Int("nci-port", 7000, "TCP port for the NCI transport")
	fs.Int("rf-port", 7001, "TCP port for the raw RF transport")
	fs.Int("grpc-port", 50051, "TCP port for the management RPC scaffold")
	fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.String("log-format", "console", "log encoding: console, json")
	fs.String("log-dir", "", "directory for rotated log files (empty disables file logging)")
	fs.String("mqtt-broker", "", "optional MQTT broker URL for lifecycle event telemetry (empty disables it)")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("CASIMIR")
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	cfg := &Config{
		NCIPort:    v.GetInt("nci-port"),
		RFPort:     v.GetInt("rf-port"),
		GRPCPort:   v.GetInt("grpc-port"),
		LogLevel:   v.GetString("log-level"),
		LogFormat:  v.GetString("log-format"),
		LogDir:     v.GetString("log-dir"),
		MQTTBroker: v.GetString("mqtt-broker"),
	}
	return cfg, nil
}
