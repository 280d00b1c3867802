package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mborders/logmatic"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/warp/vesting-engine/factory"
	"github.com/warp/vesting-engine/generic"
	"github.com/warp/vesting-engine/presets"
)

const (
	defaultDBPath = "vesting.db"
	defaultPreset = "reward-fixed"
)

// newConfig sets up the viper instance with defaults.
func newConfig() *viper.Viper {
	conf := viper.New()
	conf.SetDefault("port", 8080)
	conf.SetDefault("db", defaultDBPath)
	conf.SetDefault("preset", defaultPreset)
	conf.SetDefault("deployment", "")
	conf.SetDefault("log_level", "info")
	conf.SetDefault("clock", "system")
	conf.SetDefault("clock_start", "")
	conf.SetDefault("sweeper.enabled", false)
	conf.SetDefault("sweeper.interval", time.Hour)
	conf.SetDefault("cors.origins", []string{})
	conf.SetDefault("accounts.engine", "")
	conf.SetDefault("accounts.consumption", "")
	conf.SetDefault("accounts.deployer", "")

	conf.SetEnvPrefix("VESTING")
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	conf.AutomaticEnv()
	return conf
}

// loadConfig reads the config file, if any, and binds flags by key.
func loadConfig(conf *viper.Viper, file string, flags *pflag.FlagSet) error {
	conf.SetConfigType("yaml")
	if file != "" {
		conf.SetConfigFile(file)
	} else {
		conf.SetConfigName("config")
		conf.AddConfigPath(".")
	}
	if err := conf.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	for key, flag := range map[string]string{
		"port":             "port",
		"db":               "db",
		"preset":           "preset",
		"deployment":       "deployment",
		"log_level":        "log-level",
		"clock":            "clock",
		"sweeper.enabled":  "sweeper",
		"sweeper.interval": "sweep-interval",
	} {
		if f := flags.Lookup(flag); f != nil {
			if err := conf.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// newLogger builds the process logger from log_level.
func newLogger(conf *viper.Viper) *logmatic.Logger {
	l := logmatic.NewLogger()
	switch strings.ToLower(conf.GetString("log_level")) {
	case "error":
		l.SetLevel(logmatic.ERROR)
	case "warn":
		l.SetLevel(logmatic.WARN)
	case "debug":
		l.SetLevel(logmatic.DEBUG)
	case "trace":
		l.SetLevel(logmatic.TRACE)
	default:
		l.SetLevel(logmatic.INFO)
	}
	return l
}

// loadDeployment reads the deployment file, or builds the configured preset.
func loadDeployment(conf *viper.Viper) (*factory.Deployment, error) {
	var jsonStr string
	if path := conf.GetString("deployment"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading deployment: %w", err)
		}
		jsonStr = string(data)
	} else {
		var err error
		jsonStr, err = presets.ByName(conf.GetString("preset"), presets.Accounts{
			Engine:      conf.GetString("accounts.engine"),
			Consumption: conf.GetString("accounts.consumption"),
			Deployer:    conf.GetString("accounts.deployer"),
		})
		if err != nil {
			return nil, err
		}
	}
	return factory.NewDeploymentFactory().ParseDeployment(jsonStr)
}

// newClock returns the system clock, or a manual clock for demos.
func newClock(conf *viper.Viper) (generic.Clock, error) {
	switch conf.GetString("clock") {
	case "", "system":
		return generic.SystemClock{}, nil
	case "manual":
		start := time.Now().UTC().Truncate(time.Second)
		if s := conf.GetString("clock_start"); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return nil, fmt.Errorf("clock_start: %w", err)
			}
			start = t.UTC()
		}
		return generic.NewManualClock(start), nil
	default:
		return nil, fmt.Errorf("unknown clock %q (system|manual)", conf.GetString("clock"))
	}
}

// sweepInterval returns sweeper.interval, which must be positive.
func sweepInterval(conf *viper.Viper) (time.Duration, error) {
	d := conf.GetDuration("sweeper.interval")
	if d <= 0 {
		return 0, fmt.Errorf("sweeper.interval must be positive, got %v", d)
	}
	return d, nil
}
