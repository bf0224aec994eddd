//go:build !windows

package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/protobroker/internal/runtime/config"
	"github.com/drblury/protobroker/internal/runtime/ports"
	"github.com/drblury/protobroker/internal/runtime/serviceconf"
)

// fakeServiceScript stands in for zookeeper-server-start.sh and
// kafka-server-start.sh. Every launch appends its port and pid to files in
// the bin directory. The first "<kind>.fail" launches either hang without the
// readiness line or crash, depending on "<kind>.mode".
const fakeServiceScript = `#!/bin/sh
dir="$(dirname "$0")"
kind=%KIND%
if [ "$kind" = zookeeper ]; then
  port=$(sed -n 's/^clientPort=//p' "$1")
else
  port=$(sed -n 's/^listeners=PLAINTEXT:\/\/://p' "$1")
  sed -n 's/^zookeeper.connect=localhost://p' "$1" >> "$dir/kafka.zk"
fi
echo "$port" >> "$dir/$kind.ports"
echo "$$" >> "$dir/$kind.pids"
n=$(wc -l < "$dir/$kind.ports" | tr -d ' ')
fail=$(cat "$dir/$kind.fail" 2>/dev/null || echo 0)
mode=$(cat "$dir/$kind.mode" 2>/dev/null || echo hang)
if [ "$n" -le "$fail" ]; then
  if [ "$mode" = crash ]; then
    echo "java.net.BindException: Address already in use" 1>&2
    exit 1
  fi
  echo "INFO starting on $port"
  exec sleep 30
fi
echo "INFO starting on $port"
echo "%READY%"
exec sleep 300
`

// fakeTopicsScript stands in for kafka-topics.sh: --create records the topic,
// --list prints every recorded topic. Topics listed in topics.fail exit 1.
const fakeTopicsScript = `#!/bin/sh
dir="$(dirname "$0")"
mkdir -p "$dir/topics"
for arg in "$@"; do
  case "$arg" in
    --list) ls "$dir/topics"; echo "__consumer_offsets"; exit 0 ;;
    --topic=*) topic="${arg#--topic=}" ;;
  esac
done
if grep -qx "$topic" "$dir/topics.fail" 2>/dev/null; then
  echo "Error while executing topic command" 1>&2
  exit 1
fi
touch "$dir/topics/$topic"
echo "Created topic $topic."
`

type fakeKafka struct {
	t      *testing.T
	binDir string
}

func newFakeKafka(t *testing.T) *fakeKafka {
	t.Helper()
	binDir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(binDir, name), []byte(content), 0o755))
	}
	write(CoordinationExecutable, strings.NewReplacer("%KIND%", "zookeeper", "%READY%", "INFO Snapshot taken").Replace(fakeServiceScript))
	write(BrokerExecutable, strings.NewReplacer("%KIND%", "kafka", "%READY%", "INFO [KafkaServer id=0] started (kafka.server.KafkaServer)").Replace(fakeServiceScript))
	write(TopicsExecutable, fakeTopicsScript)
	return &fakeKafka{t: t, binDir: binDir}
}

// failFirst makes the first n launches of kind fail in the given mode.
func (f *fakeKafka) failFirst(kind serviceconf.Kind, n int, mode string) {
	f.t.Helper()
	require.NoError(f.t, os.WriteFile(filepath.Join(f.binDir, string(kind)+".fail"), []byte(strconv.Itoa(n)), 0o644))
	require.NoError(f.t, os.WriteFile(filepath.Join(f.binDir, string(kind)+".mode"), []byte(mode), 0o644))
}

func (f *fakeKafka) failTopics(names ...string) {
	f.t.Helper()
	require.NoError(f.t, os.WriteFile(filepath.Join(f.binDir, "topics.fail"), []byte(strings.Join(names, "\n")+"\n"), 0o644))
}

func (f *fakeKafka) readInts(name string) []int {
	f.t.Helper()
	data, err := os.ReadFile(filepath.Join(f.binDir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(f.t, err)
	var out []int
	for _, line := range strings.Fields(string(data)) {
		n, err := strconv.Atoi(line)
		require.NoError(f.t, err)
		out = append(out, n)
	}
	return out
}

func (f *fakeKafka) ports(kind serviceconf.Kind) []int { return f.readInts(string(kind) + ".ports") }
func (f *fakeKafka) pids(kind serviceconf.Kind) []int  { return f.readInts(string(kind) + ".pids") }

// requireAllExited waits briefly for every launched process to be gone.
func (f *fakeKafka) requireAllExited() {
	f.t.Helper()
	pids := append(f.pids(serviceconf.KindCoordination), f.pids(serviceconf.KindBroker)...)
	require.Eventually(f.t, func() bool {
		for _, pid := range pids {
			if alive(pid) {
				return false
			}
		}
		return true
	}, 2*time.Second, 20*time.Millisecond, "child processes still alive: %v", pids)
}

func alive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

func (f *fakeKafka) config(topics ...string) *configpkg.Config {
	return &configpkg.Config{
		Topics:           topics,
		Retries:          2,
		CoordinationPort: 32181,
		ListenerPort:     39092,
		BaseDir:          f.t.TempDir(),
		BinDir:           f.binDir,
		StartupTimeout:   2 * time.Second,
		TopicTimeout:     5 * time.Second,
		StopTimeout:      2 * time.Second,
	}
}

func (f *fakeKafka) deps(alloc ports.Allocator) BrokerDependencies {
	return BrokerDependencies{
		Allocator:         alloc,
		Probe:             func(context.Context, string) error { return nil },
		CheckDependencies: func(string) error { return nil },
	}
}

// sequenceAllocator returns the given ports in order and records each call.
type sequenceAllocator struct {
	mu    sync.Mutex
	ports []int
	calls int
}

func newSequenceAllocator(ports ...int) *sequenceAllocator {
	return &sequenceAllocator{ports: ports}
}

func (a *sequenceAllocator) Allocate() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.calls >= len(a.ports) {
		return 0, errors.New("allocator exhausted")
	}
	p := a.ports[a.calls]
	a.calls++
	return p, nil
}

func (a *sequenceAllocator) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}
