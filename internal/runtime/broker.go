package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	configpkg "github.com/drblury/protobroker/internal/runtime/config"
	errspkg "github.com/drblury/protobroker/internal/runtime/errors"
	"github.com/drblury/protobroker/internal/runtime/ids"
	"github.com/drblury/protobroker/internal/runtime/logging"
	"github.com/drblury/protobroker/internal/runtime/ports"
	"github.com/drblury/protobroker/internal/runtime/process"
	"github.com/drblury/protobroker/internal/runtime/serviceconf"
	"github.com/drblury/protobroker/internal/runtime/topics"
	"github.com/drblury/protobroker/transport"
	kafkatransport "github.com/drblury/protobroker/transport/kafka"
)

const tracerName = "github.com/drblury/protobroker"

// TopicCreator provisions topics on a running broker.
type TopicCreator interface {
	CreateTopics(ctx context.Context, topics []string, bootstrap string) error
}

// ReachabilityProbe blocks until a client can reach addr or gives up.
type ReachabilityProbe func(ctx context.Context, addr string) error

// BrokerDependencies holds the optional collaborators a Broker uses.
// Leave fields nil to get the defaults.
type BrokerDependencies struct {
	// Allocator hands out ports for retries. Defaults to ports.Loopback.
	Allocator ports.Allocator
	Hooks     LifecycleHooks
	Metrics   *Metrics
	// Topics defaults to a topics.Provisioner running kafka-topics.sh.
	Topics TopicCreator
	// Probe defaults to dialing the bootstrap address with backoff.
	Probe ReachabilityProbe
	// CheckDependencies defaults to looking up DefaultDependencies.
	CheckDependencies func(binDir string) error
	Tracer            trace.Tracer
	Transports        *transport.Registry
}

// Broker runs one local ZooKeeper plus Kafka session at a time.
type Broker struct {
	conf configpkg.Config
	log  logging.ServiceLogger

	allocator  ports.Allocator
	hooks      LifecycleHooks
	metrics    *Metrics
	topics     TopicCreator
	probe      ReachabilityProbe
	checkDeps  func(binDir string) error
	tracer     trace.Tracer
	transports *transport.Registry

	mu        sync.Mutex
	starting  bool
	started   bool
	sessionID string
	dir       string
	bootstrap string
	services  map[serviceconf.Kind]*serviceEntry
}

// NewBroker validates conf and returns an idle Broker.
func NewBroker(conf *configpkg.Config, log logging.ServiceLogger, deps BrokerDependencies) (*Broker, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}
	if log == nil {
		log = logging.NewNopServiceLogger()
	}
	c := conf.WithDefaults()

	b := &Broker{
		conf:       c,
		log:        log,
		allocator:  deps.Allocator,
		hooks:      deps.Hooks,
		metrics:    deps.Metrics,
		topics:     deps.Topics,
		probe:      deps.Probe,
		checkDeps:  deps.CheckDependencies,
		tracer:     deps.Tracer,
		transports: deps.Transports,
		services: map[serviceconf.Kind]*serviceEntry{
			serviceconf.KindCoordination: {kind: serviceconf.KindCoordination},
			serviceconf.KindBroker:       {kind: serviceconf.KindBroker},
		},
	}
	if b.allocator == nil {
		b.allocator = ports.Loopback{}
	}
	if b.topics == nil {
		p := topics.NewProvisioner(ResolveExecutable(c.BinDir, TopicsExecutable), log)
		p.Timeout = c.TopicTimeout
		b.topics = p
	}
	if b.probe == nil {
		b.probe = dialProbe(c.ReachableTimeout)
	}
	if b.checkDeps == nil {
		b.checkDeps = func(binDir string) error { return CheckDependencies(binDir, DefaultDependencies) }
	}
	if b.tracer == nil {
		b.tracer = otel.Tracer(tracerName)
	}
	if b.transports == nil {
		b.transports = transport.DefaultRegistry
	}
	if b.metrics != nil {
		b.hooks = b.hooks.Merge(MetricsHooks(b.metrics))
	}
	return b, nil
}

// Config returns the effective configuration with defaults applied.
func (b *Broker) Config() configpkg.Config {
	return b.conf
}

// Start checks dependencies, creates the session directory, starts ZooKeeper
// then Kafka, waits for the listener, creates the configured topics and
// returns the bootstrap address.
//
// When Start fails after ZooKeeper came up, ZooKeeper keeps running (together
// with the session directory) until Stop is called, unless RollbackOnFailure
// is set. A Start on a Broker with such leftovers fails with ErrSessionActive.
func (b *Broker) Start(ctx context.Context) (string, error) {
	b.mu.Lock()
	if b.started || b.starting || b.hasResourcesLocked() {
		b.mu.Unlock()
		return "", errspkg.ErrSessionActive
	}
	b.starting = true
	b.sessionID = ids.NewSessionID()
	b.mu.Unlock()

	began := time.Now()
	ctx, span := b.tracer.Start(ctx, "protobroker.start",
		trace.WithAttributes(
			attribute.String("session.id", b.sessionID),
			attribute.StringSlice("session.topics", b.conf.Topics),
		))
	defer span.End()

	log := b.log.With(logging.LogFields{"session": b.sessionID})
	addr, err := b.start(ctx, log)

	b.mu.Lock()
	b.starting = false
	if err == nil {
		b.started = true
		b.bootstrap = addr
	}
	b.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.metrics.RecordSessionFailed()
		return "", b.afterFailedStart(log, err)
	}

	span.SetAttributes(attribute.String("session.bootstrap", addr))
	b.metrics.RecordSessionStarted(time.Since(began))
	log.Info("Local Kafka broker up and running", logging.LogFields{"bootstrap": addr})
	return addr, nil
}

func (b *Broker) start(ctx context.Context, log logging.ServiceLogger) (string, error) {
	if err := b.checkDeps(b.conf.BinDir); err != nil {
		return "", err
	}

	dir, err := os.MkdirTemp(b.conf.BaseDir, "protobroker-"+b.sessionID+"-")
	if err != nil {
		return "", fmt.Errorf("create session directory: %w", err)
	}
	b.mu.Lock()
	b.dir = dir
	b.mu.Unlock()
	log.Debug("Created session directory", logging.LogFields{"dir": dir})

	coordination, _, err := b.startService(ctx, serviceconf.ServiceConfig{
		Kind:             serviceconf.KindCoordination,
		DataDir:          dir,
		CoordinationPort: b.conf.CoordinationPort,
		Extra:            b.conf.CoordinationExtra,
	})
	if err != nil {
		return "", err
	}

	// The broker references the port ZooKeeper finally came up on.
	kafka, _, err := b.startService(ctx, serviceconf.ServiceConfig{
		Kind:             serviceconf.KindBroker,
		DataDir:          dir,
		CoordinationPort: coordination.CoordinationPort,
		ListenerPort:     b.conf.ListenerPort,
		Extra:            b.conf.BrokerExtra,
	})
	if err != nil {
		return "", err
	}

	addr := bootstrapAddress(kafka.ListenerPort)
	if err := b.probe(ctx, addr); err != nil {
		return "", fmt.Errorf("broker at %s not reachable: %w", addr, err)
	}

	if err := b.createTopics(ctx, addr); err != nil {
		return "", err
	}
	return addr, nil
}

func (b *Broker) createTopics(ctx context.Context, addr string) error {
	if len(b.conf.Topics) == 0 {
		return nil
	}
	ctx, span := b.tracer.Start(ctx, "protobroker.create_topics",
		trace.WithAttributes(attribute.Int("topics.count", len(b.conf.Topics))))
	defer span.End()

	err := b.topics.CreateTopics(ctx, b.conf.Topics, addr)
	failed := 0
	var topicErr *errspkg.TopicCreationError
	if errors.As(err, &topicErr) {
		failed = len(topicErr.Failed)
	} else if err != nil {
		failed = len(b.conf.Topics)
	}
	b.metrics.RecordTopics(len(b.conf.Topics)-failed, failed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// afterFailedStart cleans up what can be cleaned without hiding startErr.
func (b *Broker) afterFailedStart(log logging.ServiceLogger, startErr error) error {
	if !b.conf.RollbackOnFailure && b.anyRunning() {
		log.Warn("Start failed with a service still running; call Stop to clean up", logging.LogFields{
			"error": startErr.Error(),
		})
		return startErr
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.conf.StopTimeout)
	defer cancel()
	if err := b.teardown(ctx, false); err != nil {
		return errors.Join(startErr, fmt.Errorf("rollback: %w", err))
	}
	return startErr
}

// Stop terminates Kafka then ZooKeeper and removes the session directory.
// It is safe after a partial Start and safe to call twice. On a Broker with
// nothing to stop it returns nil, or ErrNotStarted when StrictStop is set.
func (b *Broker) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.starting {
		b.mu.Unlock()
		return fmt.Errorf("stop: %w: start in progress", errspkg.ErrSessionActive)
	}
	if !b.started && !b.hasResourcesLocked() {
		b.mu.Unlock()
		if b.conf.StrictStop {
			return errspkg.ErrNotStarted
		}
		b.log.Debug("Stop called on an idle broker", nil)
		return nil
	}
	wasStarted := b.started
	b.started = false
	b.mu.Unlock()

	ctx, span := b.tracer.Start(ctx, "protobroker.stop",
		trace.WithAttributes(attribute.String("session.id", b.SessionID())))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, b.conf.StopTimeout)
	defer cancel()

	err := b.teardown(ctx, true)
	if wasStarted {
		b.metrics.RecordSessionStopped()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	b.log.Info("Local Kafka broker stopped", logging.LogFields{"session": b.SessionID()})
	return nil
}

// teardown terminates the handles, broker first, and always removes the
// session directory. Service states are kept after a failed start so callers
// can still inspect them.
func (b *Broker) teardown(ctx context.Context, resetState bool) error {
	b.mu.Lock()
	handles := []*process.Handle{
		b.services[serviceconf.KindBroker].handle,
		b.services[serviceconf.KindCoordination].handle,
	}
	for _, entry := range b.services {
		entry.handle = nil
		if resetState {
			entry.state = StateNotStarted
		}
	}
	dir := b.dir
	b.dir = ""
	b.bootstrap = ""
	b.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := h.Terminate(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if dir != "" {
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, fmt.Errorf("remove session directory: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Run starts the broker, calls fn with the bootstrap address and always
// stops the broker afterwards. A start error comes first in the result.
func (b *Broker) Run(ctx context.Context, fn func(ctx context.Context, bootstrap string) error) error {
	addr, err := b.Start(ctx)
	if err != nil {
		if errors.Is(err, errspkg.ErrSessionActive) || !b.hasResources() {
			return err
		}
		return errors.Join(err, b.Stop(context.Background()))
	}
	runErr := fn(ctx, addr)
	return errors.Join(runErr, b.Stop(context.Background()))
}

// Transport returns a Watermill Kafka publisher/subscriber pair for the
// running session. The caller closes it before stopping the broker.
func (b *Broker) Transport(ctx context.Context, consumerGroup string) (transport.Transport, error) {
	addr := b.BootstrapServer()
	if addr == "" {
		return transport.Transport{}, errspkg.ErrNotStarted
	}
	cfg := transport.SessionConfig{
		System:        kafkatransport.TransportName,
		Brokers:       []string{addr},
		ConsumerGroup: consumerGroup,
	}
	return b.transports.Build(ctx, cfg, logging.NewWatermillAdapter(b.log))
}

// IsStarted reports whether both services are ready and topics were created.
func (b *Broker) IsStarted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started
}

// BootstrapServer returns the bootstrap address, or "" when not started.
func (b *Broker) BootstrapServer() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bootstrap
}

// SessionID returns the ID of the current or most recent session.
func (b *Broker) SessionID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessionID
}

// Dir returns the session directory, or "" when there is none.
func (b *Broker) Dir() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dir
}

// ServiceState returns the state of one service kind.
func (b *Broker) ServiceState(kind serviceconf.Kind) ServiceState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if entry, ok := b.services[kind]; ok {
		return entry.state
	}
	return StateNotStarted
}

// ServiceConfig returns the configuration of the latest attempt of kind.
func (b *Broker) ServiceConfig(kind serviceconf.Kind) serviceconf.ServiceConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	if entry, ok := b.services[kind]; ok {
		return entry.config.Clone()
	}
	return serviceconf.ServiceConfig{}
}

// Attempts returns every configuration tried for kind in the latest Start.
func (b *Broker) Attempts(kind serviceconf.Kind) []serviceconf.ServiceConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.services[kind]
	if !ok {
		return nil
	}
	out := make([]serviceconf.ServiceConfig, len(entry.attempts))
	for i, cfg := range entry.attempts {
		out[i] = cfg.Clone()
	}
	return out
}

// Pids returns the process IDs of the running services.
func (b *Broker) Pids() map[serviceconf.Kind]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	pids := make(map[serviceconf.Kind]int, len(b.services))
	for kind, entry := range b.services {
		if entry.handle.Running() {
			pids[kind] = entry.handle.Pid()
		}
	}
	return pids
}

func (b *Broker) anyRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, entry := range b.services {
		if entry.handle.Running() {
			return true
		}
	}
	return false
}

func (b *Broker) hasResources() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hasResourcesLocked()
}

func (b *Broker) hasResourcesLocked() bool {
	if b.dir != "" {
		return true
	}
	for _, entry := range b.services {
		if entry.handle != nil {
			return true
		}
	}
	return false
}

// dialProbe dials addr with exponential backoff until it accepts a TCP
// connection or maxElapsed passes.
func dialProbe(maxElapsed time.Duration) ReachabilityProbe {
	return func(ctx context.Context, addr string) error {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 50 * time.Millisecond
		b.MaxInterval = time.Second

		var dialer net.Dialer
		_, err := backoff.Retry(ctx, func() (struct{}, error) {
			dialCtx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()
			conn, err := dialer.DialContext(dialCtx, "tcp", addr)
			if err != nil {
				return struct{}{}, err
			}
			return struct{}{}, conn.Close()
		}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(maxElapsed))
		return err
	}
}
