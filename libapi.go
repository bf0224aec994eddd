package protobroker

import (
	runtimepkg "github.com/drblury/protobroker/internal/runtime"
	configpkg "github.com/drblury/protobroker/internal/runtime/config"
	errspkg "github.com/drblury/protobroker/internal/runtime/errors"
	idspkg "github.com/drblury/protobroker/internal/runtime/ids"
	jsoncodec "github.com/drblury/protobroker/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/protobroker/internal/runtime/logging"
	portspkg "github.com/drblury/protobroker/internal/runtime/ports"
	serviceconfpkg "github.com/drblury/protobroker/internal/runtime/serviceconf"
	topicspkg "github.com/drblury/protobroker/internal/runtime/topics"
	newtransport "github.com/drblury/protobroker/transport"
)

type (
	Config             = configpkg.Config
	Broker             = runtimepkg.Broker
	SyncBroker         = runtimepkg.SyncBroker
	BrokerDependencies = runtimepkg.BrokerDependencies
	TopicCreator       = runtimepkg.TopicCreator
	ReachabilityProbe  = runtimepkg.ReachabilityProbe
	ServiceState       = runtimepkg.ServiceState
	Dependency         = runtimepkg.Dependency

	ServiceKind   = serviceconfpkg.Kind
	ServiceConfig = serviceconfpkg.ServiceConfig

	PortAllocator     = portspkg.Allocator
	PortAllocatorFunc = portspkg.AllocatorFunc

	TopicLister      = topicspkg.Lister
	CLITopicLister   = topicspkg.CLILister
	AdminTopicLister = topicspkg.AdminLister
	TopicProvisioner = topicspkg.Provisioner

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	// Attempt lifecycle hooks
	AttemptContext = runtimepkg.AttemptContext
	LifecycleHooks = runtimepkg.LifecycleHooks

	// Metrics
	Metrics         = runtimepkg.Metrics
	ServiceMetrics  = runtimepkg.ServiceMetrics
	SessionMetrics  = runtimepkg.SessionMetrics
	MetricsSnapshot = runtimepkg.MetricsSnapshot

	// Error types
	ConfigValidationError     = errspkg.ConfigValidationError
	DependencyMissingError    = errspkg.DependencyMissingError
	ProcessCrashedError       = errspkg.ProcessCrashedError
	ReadinessTimeoutError     = errspkg.ReadinessTimeoutError
	LaunchError               = errspkg.LaunchError
	TopicCreationError        = errspkg.TopicCreationError
	RetryBudgetExhaustedError = runtimepkg.RetryBudgetExhaustedError

	Transport         = newtransport.Transport
	TransportBuilder  = newtransport.Builder
	TransportConfig   = newtransport.Config
	TransportRegistry = newtransport.Registry
)

const (
	KindCoordination = serviceconfpkg.KindCoordination
	KindBroker       = serviceconfpkg.KindBroker

	StateNotStarted = runtimepkg.StateNotStarted
	StateStarting   = runtimepkg.StateStarting
	StateReady      = runtimepkg.StateReady
	StateFailed     = runtimepkg.StateFailed

	OutcomeReady   = runtimepkg.OutcomeReady
	OutcomeCrashed = runtimepkg.OutcomeCrashed
	OutcomeTimeout = runtimepkg.OutcomeTimeout
	OutcomeLaunch  = runtimepkg.OutcomeLaunch
	OutcomeOther   = runtimepkg.OutcomeOther
)

var (
	NewBroker      = runtimepkg.NewBroker
	NewSyncBroker  = runtimepkg.NewSyncBroker
	LoadConfig     = configpkg.Load
	ParseConfig    = configpkg.Parse
	ValidateConfig = configpkg.ValidateConfig

	CheckDependencies   = runtimepkg.CheckDependencies
	DefaultDependencies = runtimepkg.DefaultDependencies

	NewProvisioner = topicspkg.NewProvisioner
	MissingTopics  = topicspkg.Missing

	// Attempt lifecycle hooks
	LoggingHooks  = runtimepkg.LoggingHooks
	MetricsHooks  = runtimepkg.MetricsHooks
	AlertingHooks = runtimepkg.AlertingHooks

	NewMetrics = runtimepkg.NewMetrics

	DefaultTransportRegistry = newtransport.DefaultRegistry
	RegisterTransport        = newtransport.Register
	BuildTransport           = newtransport.Build

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent

	ErrConfigRequired       = errspkg.ErrConfigRequired
	ErrDependencyMissing    = errspkg.ErrDependencyMissing
	ErrProcessCrashed       = errspkg.ErrProcessCrashed
	ErrReadinessTimeout     = errspkg.ErrReadinessTimeout
	ErrRetryBudgetExhausted = errspkg.ErrRetryBudgetExhausted
	ErrTopicCreationFailed  = errspkg.ErrTopicCreationFailed
	ErrSchedulerActive      = errspkg.ErrSchedulerActive
	ErrNotStarted           = errspkg.ErrNotStarted
	ErrSessionActive        = errspkg.ErrSessionActive
	ErrLaunchFailed         = errspkg.ErrLaunchFailed

	IsRecoverable = errspkg.IsRecoverable

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewNopServiceLogger  = loggingpkg.NewNopServiceLogger

	CreateULID   = idspkg.CreateULID
	NewSessionID = idspkg.NewSessionID
)
