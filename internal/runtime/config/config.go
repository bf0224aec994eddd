package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultRetries          = 3
	DefaultCoordinationPort = 2181
	DefaultListenerPort     = 9092
	DefaultStartupTimeout   = 30 * time.Second
	DefaultTopicTimeout     = 30 * time.Second
	DefaultStopTimeout      = 10 * time.Second
	DefaultReachableTimeout = 15 * time.Second
)

// Config groups the settings of one local broker session. Zero values fall
// back to the defaults above.
type Config struct {
	// Topics are created once the broker is reachable.
	Topics []string `yaml:"topics"`

	// Retries is the number of extra attempts per service, each with a freshly
	// allocated port. Zero means DefaultRetries; use NoRetries for none.
	Retries int `yaml:"retries"`
	// NoRetries disables retrying regardless of Retries.
	NoRetries bool `yaml:"no_retries"`

	// Initial ports. They are replaced by allocated ports on retry.
	CoordinationPort int `yaml:"coordination_port"`
	ListenerPort     int `yaml:"listener_port"`

	// BaseDir is where the session directory is created. Empty means os.TempDir.
	BaseDir string `yaml:"base_dir"`
	// BinDir holds the Kafka scripts. Empty means resolve them from PATH.
	BinDir string `yaml:"bin_dir"`

	StartupTimeout   time.Duration `yaml:"startup_timeout"`
	TopicTimeout     time.Duration `yaml:"topic_timeout"`
	StopTimeout      time.Duration `yaml:"stop_timeout"`
	ReachableTimeout time.Duration `yaml:"reachable_timeout"`

	// AllowReentrant lets a synchronous Start/Stop proceed while another
	// lifecycle operation is already running on the scheduler.
	AllowReentrant bool `yaml:"allow_reentrant"`
	// StrictStop makes a synchronous Stop on a never-started broker fail with
	// ErrNotStarted instead of being a no-op.
	StrictStop bool `yaml:"strict_stop"`
	// RollbackOnFailure stops already-running services when Start fails part
	// way through. Without it they stay up until Stop is called.
	RollbackOnFailure bool `yaml:"rollback_on_failure"`

	// Extra key/value pairs appended to each service's properties file.
	CoordinationExtra map[string]string `yaml:"coordination_extra"`
	BrokerExtra       map[string]string `yaml:"broker_extra"`

	// Metrics configuration.
	MetricsEnabled bool `yaml:"metrics_enabled"`
	// MetricsPort is where the CLI exposes Prometheus metrics. Zero disables it.
	MetricsPort int `yaml:"metrics_port"`
}

// WithDefaults returns a copy of c with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.Retries == 0 {
		c.Retries = DefaultRetries
	}
	if c.NoRetries {
		c.Retries = 0
	}
	if c.CoordinationPort == 0 {
		c.CoordinationPort = DefaultCoordinationPort
	}
	if c.ListenerPort == 0 {
		c.ListenerPort = DefaultListenerPort
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = DefaultStartupTimeout
	}
	if c.TopicTimeout <= 0 {
		c.TopicTimeout = DefaultTopicTimeout
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	if c.ReachableTimeout <= 0 {
		c.ReachableTimeout = DefaultReachableTimeout
	}
	c.Topics = append([]string(nil), c.Topics...)
	c.CoordinationExtra = cloneMap(c.CoordinationExtra)
	c.BrokerExtra = cloneMap(c.BrokerExtra)
	return c
}

func (c Config) String() string {
	type configAlias Config
	return fmt.Sprintf("%+v", configAlias(c))
}

// Validate checks that the configuration is usable. All problems are joined
// into one error.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, c.validateRetry()...)
	errs = append(errs, c.validatePorts()...)
	errs = append(errs, c.validateTopics()...)
	errs = append(errs, c.validateTimeouts()...)

	return errors.Join(errs...)
}

func (c *Config) validateRetry() []error {
	if c.Retries < 0 {
		return []error{errors.New("retry: retries cannot be negative")}
	}
	return nil
}

func (c *Config) validatePorts() []error {
	var errs []error
	check := func(name string, port int) {
		if port < 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("%s: invalid port %d", name, port))
		}
	}
	check("coordination", c.CoordinationPort)
	check("listener", c.ListenerPort)
	check("metrics", c.MetricsPort)
	coordination, listener := c.effectivePorts()
	if coordination == listener {
		errs = append(errs, fmt.Errorf("ports: coordination and listener port must differ (%d)", listener))
	}
	return errs
}

// effectivePorts returns the initial ports after defaults are applied.
func (c *Config) effectivePorts() (coordination, listener int) {
	coordination, listener = c.CoordinationPort, c.ListenerPort
	if coordination == 0 {
		coordination = DefaultCoordinationPort
	}
	if listener == 0 {
		listener = DefaultListenerPort
	}
	return coordination, listener
}

func (c *Config) validateTopics() []error {
	var errs []error
	seen := make(map[string]struct{}, len(c.Topics))
	for _, topic := range c.Topics {
		switch {
		case strings.TrimSpace(topic) == "":
			errs = append(errs, errors.New("topics: topic name cannot be empty"))
		case strings.ContainsAny(topic, " \t\n="):
			errs = append(errs, fmt.Errorf("topics: invalid topic name %q", topic))
		}
		if _, dup := seen[topic]; dup {
			errs = append(errs, fmt.Errorf("topics: duplicate topic %q", topic))
		}
		seen[topic] = struct{}{}
	}
	return errs
}

func (c *Config) validateTimeouts() []error {
	var errs []error
	timeouts := []struct {
		name string
		d    time.Duration
	}{
		{"startup", c.StartupTimeout},
		{"topic", c.TopicTimeout},
		{"stop", c.StopTimeout},
		{"reachable", c.ReachableTimeout},
	}
	for _, t := range timeouts {
		if t.d < 0 {
			errs = append(errs, fmt.Errorf("timeouts: %s timeout cannot be negative", t.name))
		}
	}
	return errs
}

// ValidateConfig is a convenience function to validate a config pointer.
func ValidateConfig(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}

// Load reads a YAML config file. Durations use Go syntax ("30s").
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes, rejecting unknown keys.
func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
