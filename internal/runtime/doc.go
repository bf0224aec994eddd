/*
Package runtime runs a throwaway ZooKeeper plus Kafka pair for local
development and integration tests.

# Architecture Overview

A Broker owns one session at a time. Start checks that the JDK and the Kafka
scripts are installed, creates a private session directory, launches
ZooKeeper, then Kafka pointed at the port ZooKeeper came up on, waits until
the listener accepts connections and finally creates the configured topics.
Stop terminates Kafka before ZooKeeper and removes the session directory.

Each service is launched from a generated properties file and watched by the
process supervisor until its readiness line shows up on stdout. A crash or a
readiness timeout is retried on a freshly allocated port, up to Retries extra
attempts per service.

# Package Structure

## Broker (broker.go, service.go)

Session lifecycle and the per-service retry loop.

## Synchronous API (bridge.go)

SyncBroker serializes Start and Stop on a scheduler goroutine for callers
that want plain blocking calls.

## Hooks & Metrics (hooks.go, metrics.go)

Attempt callbacks plus a Prometheus collector fed by them.

# Sub-packages

  - config/: Session configuration with validation and YAML loading
  - errors/: Sentinel errors and error types
  - ids/: ULID session identifiers
  - jsoncodec/: JSON marshaling utilities
  - logging/: Logger interface and adapters
  - ports/: Free port allocation
  - process/: Launch-and-await-readiness process supervisor
  - serviceconf/: Properties file generation
  - topics/: Topic provisioning and listing

# Usage Example

	b, err := protobroker.NewBroker(&protobroker.Config{
		Topics: []string{"orders", "payments"},
	}, logger, protobroker.BrokerDependencies{})
	if err != nil {
		return err
	}
	return b.Run(ctx, func(ctx context.Context, bootstrap string) error {
		return runTests(ctx, bootstrap)
	})
*/
package runtime
