// Package serviceconf renders the properties files of the coordination
// (ZooKeeper) and broker (Kafka) services. Rendering is pure: no I/O, and the
// same ServiceConfig always produces the same text.
package serviceconf

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies one of the two supervised services.
type Kind string

const (
	KindCoordination Kind = "zookeeper"
	KindBroker       Kind = "kafka"
)

// ErrInvalid marks a ServiceConfig that cannot be rendered.
var ErrInvalid = errors.New("invalid service config")

// ServiceConfig holds the parameters of one launch attempt. It is a value:
// WithPort returns a new attempt-scoped copy rather than mutating.
type ServiceConfig struct {
	Kind    Kind   `json:"kind"`
	DataDir string `json:"data_dir"`
	// CoordinationPort is the client port for the coordination service and the
	// referenced coordination port for the broker service.
	CoordinationPort int `json:"coordination_port"`
	// ListenerPort is only used by the broker service.
	ListenerPort int               `json:"listener_port,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// Port returns the port that varies between attempts of this kind.
func (c ServiceConfig) Port() int {
	if c.Kind == KindBroker {
		return c.ListenerPort
	}
	return c.CoordinationPort
}

// WithPort returns a copy with the kind's own port replaced.
func (c ServiceConfig) WithPort(port int) ServiceConfig {
	next := c.Clone()
	if c.Kind == KindBroker {
		next.ListenerPort = port
	} else {
		next.CoordinationPort = port
	}
	return next
}

// Clone returns a deep copy.
func (c ServiceConfig) Clone() ServiceConfig {
	if c.Extra != nil {
		extra := make(map[string]string, len(c.Extra))
		for k, v := range c.Extra {
			extra[k] = v
		}
		c.Extra = extra
	}
	return c
}

// FileName is the properties file name used for this kind.
func (c ServiceConfig) FileName() string {
	return string(c.Kind) + ".properties"
}

type property struct {
	key   string
	value string
}

var reserved = map[Kind][]string{
	KindCoordination: {"dataDir", "clientPort"},
	KindBroker:       {"broker.id", "listeners", "log.dirs", "zookeeper.connect"},
}

// Generate renders the properties text for cfg.
func Generate(cfg ServiceConfig) (string, error) {
	if err := validate(cfg); err != nil {
		return "", err
	}

	var props []property
	switch cfg.Kind {
	case KindCoordination:
		props = coordinationProperties(cfg)
	case KindBroker:
		props = brokerProperties(cfg)
	}
	props = applyExtra(props, cfg.Extra)

	var b strings.Builder
	for _, p := range props {
		b.WriteString(p.key)
		b.WriteByte('=')
		b.WriteString(p.value)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func coordinationProperties(cfg ServiceConfig) []property {
	return []property{
		{"dataDir", filepath.Join(cfg.DataDir, "zookeeper")},
		{"clientPort", strconv.Itoa(cfg.CoordinationPort)},
		{"maxClientCnxns", "0"},
		{"admin.enableServer", "false"},
	}
}

func brokerProperties(cfg ServiceConfig) []property {
	return []property{
		{"broker.id", "0"},
		{"listeners", fmt.Sprintf("PLAINTEXT://:%d", cfg.ListenerPort)},
		{"num.network.threads", "3"},
		{"num.io.threads", "8"},
		{"socket.send.buffer.bytes", "102400"},
		{"socket.receive.buffer.bytes", "102400"},
		{"socket.request.max.bytes", "104857600"},
		{"log.dirs", filepath.Join(cfg.DataDir, "kafka_logs")},
		{"num.partitions", "1"},
		{"num.recovery.threads.per.data.dir", "1"},
		{"offsets.topic.replication.factor", "1"},
		{"transaction.state.log.replication.factor", "1"},
		{"transaction.state.log.min.isr", "1"},
		{"log.flush.interval.messages", "10000"},
		{"log.flush.interval.ms", "1000"},
		{"log.retention.hours", "168"},
		{"log.retention.bytes", "1073741824"},
		{"log.segment.bytes", "1073741824"},
		{"log.retention.check.interval.ms", "300000"},
		{"zookeeper.connect", fmt.Sprintf("localhost:%d", cfg.CoordinationPort)},
		{"zookeeper.connection.timeout.ms", "18000"},
		{"group.initial.rebalance.delay.ms", "0"},
	}
}

// applyExtra overrides defaults in place and appends new keys sorted.
func applyExtra(props []property, extra map[string]string) []property {
	if len(extra) == 0 {
		return props
	}
	index := make(map[string]int, len(props))
	for i, p := range props {
		index[p.key] = i
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if i, ok := index[k]; ok {
			props[i].value = extra[k]
			continue
		}
		props = append(props, property{key: k, value: extra[k]})
	}
	return props
}

func validate(cfg ServiceConfig) error {
	var errs []error
	if cfg.Kind != KindCoordination && cfg.Kind != KindBroker {
		errs = append(errs, fmt.Errorf("unknown service kind %q", cfg.Kind))
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		errs = append(errs, errors.New("data dir is required"))
	}
	if !validPort(cfg.CoordinationPort) {
		errs = append(errs, fmt.Errorf("coordination port %d out of range", cfg.CoordinationPort))
	}
	if cfg.Kind == KindBroker && !validPort(cfg.ListenerPort) {
		errs = append(errs, fmt.Errorf("listener port %d out of range", cfg.ListenerPort))
	}
	for _, key := range reserved[cfg.Kind] {
		if _, ok := cfg.Extra[key]; ok {
			errs = append(errs, fmt.Errorf("extra key %q is managed by protobroker", key))
		}
	}
	for k, v := range cfg.Extra {
		if k == "" || strings.ContainsAny(k, "=\n") || strings.Contains(v, "\n") {
			errs = append(errs, fmt.Errorf("extra entry %q is not a valid property", k))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

func validPort(port int) bool {
	return port > 0 && port <= 65535
}
