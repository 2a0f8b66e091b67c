package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/fanctl/internal/controller"
	"codeberg.org/mutker/fanctl/internal/errors"
	"codeberg.org/mutker/fanctl/internal/logger"
	"codeberg.org/mutker/fanctl/internal/metrics"
	"codeberg.org/mutker/fanctl/internal/policy"
	"codeberg.org/mutker/fanctl/internal/sensor"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix  = "FANCTL"
	DefaultConfigName = "fanctl"
	DefaultConfigDir  = "/etc"
	DefaultLogLevel   = "info"
	DefaultLogFile    = "/var/log/gpu-cpu-fan-control.log"

	// Seconds
	DefaultInterval       = int(controller.DefaultInterval / time.Second)
	DefaultCommandTimeout = int(controller.DefaultShutdownTimeout / time.Second)

	BackendSMI  = "smi"
	BackendNVML = "nvml"
)

type Config struct {
	Interval        int    `mapstructure:"interval"`
	LogLevel        string `mapstructure:"log_level"`
	LogFile         string `mapstructure:"log_file"`
	GPUBackend      string `mapstructure:"gpu_backend"`
	ThermalZoneGlob string `mapstructure:"thermal_zone_glob"`
	CommandTimeout  int    `mapstructure:"command_timeout"`
	Monitor         bool   `mapstructure:"monitor"`
	HistoryWindow   int    `mapstructure:"history_window"`
	PIDFile         string `mapstructure:"pid_file"`

	Levels     LevelsConfig     `mapstructure:"levels"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	IPMI       IPMIConfig       `mapstructure:"ipmi"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`

	// ShowHistory prints this many recorded decisions and exits. Flag only.
	ShowHistory int `mapstructure:"-"`
}

// LevelsConfig holds the duty cycle percentage of each cooling level
type LevelsConfig struct {
	Default int `mapstructure:"default"`
	Medium  int `mapstructure:"medium"`
	High    int `mapstructure:"high"`
	Max     int `mapstructure:"max"`
}

type TempThresholdsConfig struct {
	Low      int `mapstructure:"low"`
	Medium   int `mapstructure:"medium"`
	High     int `mapstructure:"high"`
	Critical int `mapstructure:"critical"`
}

type UtilThresholdsConfig struct {
	Low  int `mapstructure:"low"`
	High int `mapstructure:"high"`
}

type ThresholdsConfig struct {
	GPU  TempThresholdsConfig `mapstructure:"gpu"`
	CPU  TempThresholdsConfig `mapstructure:"cpu"`
	Util UtilThresholdsConfig `mapstructure:"util"`
}

type IPMIConfig struct {
	Interface string `mapstructure:"interface"`
	Host      string `mapstructure:"host"`
	User      string `mapstructure:"user"`
	Password  string `mapstructure:"password"`
}

type MetricsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	DBPath       string `mapstructure:"db_path"`
	BatchSize    int    `mapstructure:"batch_size"`
	BatchTimeout int    `mapstructure:"batch_timeout"`
}

func setDefaults(v *viper.Viper) {
	d := policy.DefaultDuties()
	t := policy.DefaultThresholds()
	m := metrics.DefaultConfig()

	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_file", DefaultLogFile)
	v.SetDefault("gpu_backend", BackendSMI)
	v.SetDefault("thermal_zone_glob", sensor.DefaultThermalZoneGlob)
	v.SetDefault("command_timeout", DefaultCommandTimeout)
	v.SetDefault("monitor", false)
	v.SetDefault("history_window", controller.DefaultHistoryWindow)
	v.SetDefault("pid_file", "")

	v.SetDefault("levels.default", d.Duty(policy.Default))
	v.SetDefault("levels.medium", d.Duty(policy.Medium))
	v.SetDefault("levels.high", d.Duty(policy.High))
	v.SetDefault("levels.max", d.Duty(policy.Max))

	v.SetDefault("thresholds.gpu.low", t.GPU.Low)
	v.SetDefault("thresholds.gpu.medium", t.GPU.Medium)
	v.SetDefault("thresholds.gpu.high", t.GPU.High)
	v.SetDefault("thresholds.gpu.critical", t.GPU.Critical)
	v.SetDefault("thresholds.cpu.low", t.CPU.Low)
	v.SetDefault("thresholds.cpu.medium", t.CPU.Medium)
	v.SetDefault("thresholds.cpu.high", t.CPU.High)
	v.SetDefault("thresholds.cpu.critical", t.CPU.Critical)
	v.SetDefault("thresholds.util.low", t.Util.Low)
	v.SetDefault("thresholds.util.high", t.Util.High)

	v.SetDefault("ipmi.interface", "")
	v.SetDefault("ipmi.host", "")
	v.SetDefault("ipmi.user", "")
	v.SetDefault("ipmi.password", "")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.db_path", m.DBPath)
	v.SetDefault("metrics.batch_size", m.BatchSize)
	v.SetDefault("metrics.batch_timeout", m.BatchTimeout)
}

// flagKeys maps command line flags to configuration keys
var flagKeys = map[string]string{
	"interval":    "interval",
	"log-level":   "log_level",
	"log-file":    "log_file",
	"gpu-backend": "gpu_backend",
	"monitor":     "monitor",
	"metrics":     "metrics.enabled",
	"metrics-db":  "metrics.db_path",
	"pid-file":    "pid_file",
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("fanctl", pflag.ContinueOnError)
	fs.StringP("config", "c", "", "Path to the configuration file")
	fs.Int("interval", DefaultInterval, "Seconds between sensor polls")
	fs.String("log-level", DefaultLogLevel, "Log level: debug, info, warning, error")
	fs.String("log-file", DefaultLogFile, "Status log file, empty to disable")
	fs.String("gpu-backend", BackendSMI, "GPU telemetry backend: smi or nvml")
	fs.Bool("monitor", false, "Only monitor and log decisions, never touch the fans")
	fs.Bool("metrics", false, "Record every decision to the history database")
	fs.String("metrics-db", metrics.DefaultConfig().DBPath, "Path to the history database")
	fs.String("pid-file", "", "PID file path")
	fs.Int("history", 0, "Print the last N recorded decisions and exit")
	return fs
}

// Load reads configuration from defaults, the TOML file, FANCTL_*
// environment variables and args, in increasing order of precedence.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	configPath := o.configPath
	if f := fs.Lookup("config"); f.Changed {
		configPath = f.Value.String()
	}
	if configPath == "" {
		configPath = os.Getenv(o.envPrefix + "_CONFIG")
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("toml")
		v.AddConfigPath(DefaultConfigDir)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errFactory.Wrap(errors.ErrReadConfig, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}
	cfg.ShowHistory, _ = fs.GetInt("history")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks every load-time contract. Nothing is re-checked while
// the controller runs.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.GPUBackend != BackendSMI && c.GPUBackend != BackendNVML {
		return errFactory.WithData(errors.ErrInvalidBackend, c.GPUBackend)
	}
	if c.HistoryWindow < 1 {
		return errFactory.WithData(errors.ErrInvalidConfig, fmt.Sprintf("history_window=%d", c.HistoryWindow))
	}
	if c.CommandTimeout < 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, fmt.Sprintf("command_timeout=%d", c.CommandTimeout))
	}
	if c.Metrics.Enabled && c.Metrics.DBPath == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "metrics.db_path is empty")
	}
	if err := c.Duties().Validate(); err != nil {
		return err
	}

	return c.PolicyThresholds().Validate()
}

// Duties returns the level to duty cycle mapping
func (c *Config) Duties() policy.Duties {
	return policy.Duties{
		policy.Default: c.Levels.Default,
		policy.Medium:  c.Levels.Medium,
		policy.High:    c.Levels.High,
		policy.Max:     c.Levels.Max,
	}
}

// PolicyThresholds returns the policy boundaries
func (c *Config) PolicyThresholds() policy.Thresholds {
	t := c.Thresholds
	return policy.Thresholds{
		GPU:  policy.TempThresholds(t.GPU),
		CPU:  policy.TempThresholds(t.CPU),
		Util: policy.UtilThresholds(t.Util),
	}
}

// Level returns the parsed log level. Validate has already checked it.
func (c *Config) Level() logger.LogLevel {
	level, _ := logger.ParseLevel(c.LogLevel)
	return level
}
