package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"cohort/constants"
)

const (
	AcceleratorSyscall  = "syscall"
	AcceleratorLoopback = "loopback"
)

type Config struct {
	Channel     Channel     `yaml:"channel"`
	Accelerator Accelerator `yaml:"accelerator"`
	Registry    Registry    `yaml:"registry"`
	Log         Log         `yaml:"log"`
	Metrics     Metrics     `yaml:"metrics"`
}

type Channel struct {
	Capacity     int           `yaml:"capacity"`      // usable slots per direction
	Identity     uint8         `yaml:"identity"`      // registration tag
	Backoff      uint64        `yaml:"backoff"`       // passed to the accelerator untouched
	AuxInitial   uint64        `yaml:"aux_initial"`   // aux word value before registration
	LockMemory   bool          `yaml:"lock_memory"`   // mlock the shared region
	Retries      int           `yaml:"retries"`       // extra unregister attempts before leaking
	RetryDelay   time.Duration `yaml:"retry_delay"`   // first pause between attempts
	CollectStats bool          `yaml:"collect_stats"` // push/pop counters
}

type Accelerator struct {
	Kind         string `yaml:"kind"` // "syscall" or "loopback"
	RegisterNr   uint   `yaml:"register_nr"`
	UnregisterNr uint   `yaml:"unregister_nr"`
	Core         int    `yaml:"core"` // loopback worker CPU, -1 unpinned
}

type Registry struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type Log struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

type Metrics struct {
	Listen string `yaml:"listen"` // empty disables the endpoint
}

// Default mirrors the values in package constants.
func Default() *Config {
	return &Config{
		Channel: Channel{
			Capacity:   constants.DefaultCapacity,
			Backoff:    constants.BackoffThreshold,
			Retries:    constants.UnregisterRetries,
			RetryDelay: constants.UnregisterRetryDelay,
		},
		Accelerator: Accelerator{
			Kind:         AcceleratorSyscall,
			RegisterNr:   constants.SysRegister,
			UnregisterNr: constants.SysUnregister,
			Core:         -1,
		},
		Registry: Registry{
			Enabled: true,
			Path:    constants.DefaultRegistryPath,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads path over the defaults.  An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config yaml file %s: %w", path, err)
	}
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml from %s: %w", path, err)
	}
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Channel.Capacity <= 0 || uint64(c.Channel.Capacity) > constants.MaxCapacity {
		errs = append(errs, fmt.Errorf("channel.capacity %d out of range", c.Channel.Capacity))
	}
	if c.Channel.Retries < 0 {
		errs = append(errs, fmt.Errorf("channel.retries %d is negative", c.Channel.Retries))
	}
	if c.Channel.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("channel.retry_delay %s is negative", c.Channel.RetryDelay))
	}
	switch c.Accelerator.Kind {
	case AcceleratorSyscall:
		if c.Accelerator.RegisterNr == 0 || c.Accelerator.UnregisterNr == 0 {
			errs = append(errs, errors.New("accelerator syscall numbers must be set"))
		}
	case AcceleratorLoopback:
	default:
		errs = append(errs, fmt.Errorf("accelerator.kind %q unknown", c.Accelerator.Kind))
	}
	if c.Registry.Enabled && c.Registry.Path == "" {
		errs = append(errs, errors.New("registry.path is empty"))
	}
	return errors.Join(errs...)
}
