// Package protobroker starts a disposable local Kafka broker, backed by its
// own ZooKeeper, for development and integration tests. It drives the shell
// scripts shipped with the Kafka distribution, so a JDK and the Kafka bin
// directory must be installed.
//
// NewBroker takes a Config listing the topics to create. Start writes fresh
// properties files into a private session directory, launches ZooKeeper and
// Kafka one after the other, and waits for each to log its readiness line.
// When a service crashes or never becomes ready, for example because another
// process grabbed its port, it is relaunched on a newly allocated port.
// Start returns the bootstrap address once every topic exists; Stop tears the
// session down again. Run wraps both around a callback.
//
// SyncBroker offers the same lifecycle as plain blocking calls.
//
// # Hooks
//
// LifecycleHooks provides OnAttemptStart, OnAttemptReady, and OnAttemptError
// callbacks around each launch attempt. LoggingHooks, MetricsHooks, and
// AlertingHooks are ready-made presets.
//
// # Transport
//
// Broker.Transport returns a Watermill Kafka publisher and subscriber bound to
// the running session, which is usually all a test needs to exercise its
// handlers end to end.
package protobroker
