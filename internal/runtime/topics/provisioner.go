// Package topics creates and lists topics on a running broker through the
// Kafka command line tools, with a sarama admin client as an alternative
// lister.
package topics

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	errspkg "github.com/drblury/protobroker/internal/runtime/errors"
	"github.com/drblury/protobroker/internal/runtime/logging"
)

const (
	DefaultTimeout = 30 * time.Second

	// DefaultCommand is resolved through PATH when Provisioner.Command is empty.
	DefaultCommand = "kafka-topics.sh"

	waitDelay  = 2 * time.Second
	outputTail = 512
)

// Request is a single topic creation against a bootstrap address.
type Request struct {
	Name      string
	Bootstrap string
}

func (r Request) args() []string {
	return []string{"--create", "--topic=" + r.Name, "--bootstrap-server=" + r.Bootstrap}
}

// Provisioner creates topics by running one creation child per topic.
type Provisioner struct {
	Command string
	// Timeout is shared by all children and counted from the start of
	// CreateTopics.
	Timeout time.Duration
	Logger  logging.ServiceLogger
}

// NewProvisioner returns a Provisioner for the given kafka-topics executable.
func NewProvisioner(command string, logger logging.ServiceLogger) *Provisioner {
	return &Provisioner{Command: command, Timeout: DefaultTimeout, Logger: logger}
}

func (p *Provisioner) command() string {
	if p.Command == "" {
		return DefaultCommand
	}
	return p.Command
}

func (p *Provisioner) logger() logging.ServiceLogger {
	if p.Logger == nil {
		return logging.NewNopServiceLogger()
	}
	return p.Logger
}

// CreateTopics launches every creation concurrently and returns only after all
// of them finished or were killed at the shared deadline. Failures are
// reported together as a single *errors.TopicCreationError. Topics that were
// created are left in place.
func (p *Provisioner) CreateTopics(ctx context.Context, topics []string, bootstrap string) error {
	if len(topics) == 0 {
		return nil
	}
	if bootstrap == "" {
		return errspkg.NewConfigValidationError(errors.New("topics: bootstrap address is required"))
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log := p.logger().With(logging.LogFields{"bootstrap": bootstrap, "topics": len(topics)})
	log.Info("Creating topics", logging.LogFields{"names": topics})

	// A plain group: one failing child must not cancel its siblings.
	var g errgroup.Group
	results := make([]error, len(topics))
	for i, name := range topics {
		req := Request{Name: name, Bootstrap: bootstrap}
		g.Go(func() error {
			results[i] = p.create(ctx, req)
			return results[i]
		})
	}
	_ = g.Wait()

	var (
		merr   *multierror.Error
		failed []string
	)
	for i, err := range results {
		if err == nil {
			continue
		}
		failed = append(failed, topics[i])
		merr = multierror.Append(merr, err)
	}
	if merr == nil {
		log.Info("Topics created", nil)
		return nil
	}
	merr.ErrorFormat = listFormat
	log.Error("Topic creation failed", merr, logging.LogFields{"failed": failed})
	return &errspkg.TopicCreationError{Failed: failed, Err: merr.ErrorOrNil()}
}

func (p *Provisioner) create(ctx context.Context, req Request) error {
	cmd := exec.CommandContext(ctx, p.command(), req.args()...)
	cmd.WaitDelay = waitDelay
	out, err := cmd.CombinedOutput()
	if err == nil {
		p.logger().Debug("Topic created", logging.LogFields{"topic": req.Name})
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("topic %q: %w", req.Name, ctxErr)
	}
	return fmt.Errorf("topic %q: %w: %s", req.Name, err, tail(out))
}

func listFormat(errs []error) string {
	parts := make([]string, len(errs))
	for i, err := range errs {
		parts[i] = err.Error()
	}
	return strings.Join(parts, "; ")
}

func tail(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > outputTail {
		s = "..." + s[len(s)-outputTail:]
	}
	return s
}
