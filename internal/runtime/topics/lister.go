package topics

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

// Lister returns the user topics present on a broker, sorted by name.
type Lister interface {
	ListTopics(ctx context.Context) ([]string, error)
}

// CLILister lists topics with `kafka-topics.sh --list`.
type CLILister struct {
	Command   string
	Bootstrap string
}

func (l CLILister) ListTopics(ctx context.Context) ([]string, error) {
	command := l.Command
	if command == "" {
		command = DefaultCommand
	}
	cmd := exec.CommandContext(ctx, command, "--list", "--bootstrap-server="+l.Bootstrap)
	cmd.WaitDelay = waitDelay
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("list topics on %s: %w: %s", l.Bootstrap, err, tail(stderr.Bytes()))
	}

	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		names = append(names, strings.TrimSpace(scanner.Text()))
	}
	return userTopics(names), scanner.Err()
}

// AdminLister lists topics through a sarama cluster admin.
type AdminLister struct {
	Addrs []string
	// Config defaults to sarama.NewConfig bounded by the context deadline.
	Config *sarama.Config
}

func (l AdminLister) ListTopics(ctx context.Context) ([]string, error) {
	cfg := l.Config
	if cfg == nil {
		cfg = sarama.NewConfig()
		cfg.ClientID = "protobroker"
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining > 0 {
				cfg.Net.DialTimeout = remaining
				cfg.Admin.Timeout = remaining
			}
		}
	}

	admin, err := sarama.NewClusterAdmin(l.Addrs, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect cluster admin %v: %w", l.Addrs, err)
	}
	defer func() { _ = admin.Close() }()

	details, err := admin.ListTopics()
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	names := make([]string, 0, len(details))
	for name := range details {
		names = append(names, name)
	}
	return userTopics(names), nil
}

// userTopics drops blanks and broker internal topics and sorts the rest.
func userTopics(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" || strings.HasPrefix(name, "__") {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Missing returns the entries of want that are absent from have.
func Missing(want, have []string) []string {
	present := make(map[string]struct{}, len(have))
	for _, name := range have {
		present[name] = struct{}{}
	}
	var missing []string
	for _, name := range want {
		if _, ok := present[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
