//go:build !windows

package topics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/protobroker/internal/runtime/errors"
)

// fakeTopicsScript records every created topic into dir and fails or hangs for
// the topics named in the script body.
func fakeTopicsScript(t *testing.T, body string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	created := filepath.Join(dir, "created")
	require.NoError(t, os.Mkdir(created, 0o755))
	script := filepath.Join(dir, "kafka-topics.sh")
	content := `#!/bin/sh
for arg in "$@"; do
  case "$arg" in
    --topic=*) topic="${arg#--topic=}" ;;
    --bootstrap-server=*) bootstrap="${arg#--bootstrap-server=}" ;;
  esac
done
` + body + `
echo "$bootstrap" > "` + created + `/$topic"
echo "Created topic $topic."
`
	require.NoError(t, os.WriteFile(script, []byte(content), 0o755))
	return script, created
}

func createdTopics(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestCreateTopics(t *testing.T) {
	script, created := fakeTopicsScript(t, "")
	p := NewProvisioner(script, nil)

	err := p.CreateTopics(context.Background(), []string{"orders", "payments", "audit"}, "127.0.0.1:39092")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"orders", "payments", "audit"}, createdTopics(t, created))
	data, err := os.ReadFile(filepath.Join(created, "orders"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:39092\n", string(data))
}

func TestCreateTopicsEmpty(t *testing.T) {
	p := NewProvisioner(filepath.Join(t.TempDir(), "never-run"), nil)
	require.NoError(t, p.CreateTopics(context.Background(), nil, "127.0.0.1:9092"))
}

func TestCreateTopicsRequiresBootstrap(t *testing.T) {
	p := NewProvisioner("kafka-topics.sh", nil)
	err := p.CreateTopics(context.Background(), []string{"a"}, "")
	var cfgErr errspkg.ConfigValidationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestCreateTopicsAggregatesSingleFailure(t *testing.T) {
	script, created := fakeTopicsScript(t, `if [ "$topic" = "t3" ]; then
  echo "Topic t3 is invalid" 1>&2
  exit 1
fi`)
	p := NewProvisioner(script, nil)

	start := time.Now()
	err := p.CreateTopics(context.Background(), []string{"t1", "t2", "t3", "t4", "t5"}, "127.0.0.1:9092")
	require.Error(t, err)
	assert.Less(t, time.Since(start), DefaultTimeout)

	var topicErr *errspkg.TopicCreationError
	require.ErrorAs(t, err, &topicErr)
	assert.Equal(t, []string{"t3"}, topicErr.Failed)
	assert.True(t, errors.Is(err, errspkg.ErrTopicCreationFailed))
	assert.Contains(t, err.Error(), "Topic t3 is invalid")
	assert.Equal(t, 1, strings.Count(err.Error(), "topic \""))

	assert.ElementsMatch(t, []string{"t1", "t2", "t4", "t5"}, createdTopics(t, created))
}

func TestCreateTopicsSharedTimeout(t *testing.T) {
	script, created := fakeTopicsScript(t, `if [ "$topic" = "slow" ]; then
  exec sleep 30
fi`)
	p := &Provisioner{Command: script, Timeout: 300 * time.Millisecond}

	start := time.Now()
	err := p.CreateTopics(context.Background(), []string{"fast", "slow"}, "127.0.0.1:9092")
	elapsed := time.Since(start)

	var topicErr *errspkg.TopicCreationError
	require.ErrorAs(t, err, &topicErr)
	assert.Equal(t, []string{"slow"}, topicErr.Failed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	assert.Less(t, elapsed, 10*time.Second)
	assert.Equal(t, []string{"fast"}, createdTopics(t, created))
}

func TestCreateTopicsMissingCommand(t *testing.T) {
	p := NewProvisioner(filepath.Join(t.TempDir(), "kafka-topics.sh"), nil)
	err := p.CreateTopics(context.Background(), []string{"a", "b"}, "127.0.0.1:9092")

	var topicErr *errspkg.TopicCreationError
	require.ErrorAs(t, err, &topicErr)
	assert.Equal(t, []string{"a", "b"}, topicErr.Failed)
}

func TestCLILister(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "kafka-topics.sh")
	require.NoError(t, os.WriteFile(script, []byte(`#!/bin/sh
echo "payments"
echo "__consumer_offsets"
echo ""
echo "orders"
`), 0o755))

	names, err := CLILister{Command: script, Bootstrap: "127.0.0.1:9092"}.ListTopics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "payments"}, names)
}

func TestCLIListerFailure(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "kafka-topics.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho 'connection refused' 1>&2\nexit 1\n"), 0o755))

	_, err := CLILister{Command: script, Bootstrap: "127.0.0.1:1"}.ListTopics(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestMissing(t *testing.T) {
	assert.Equal(t, []string{"c"}, Missing([]string{"a", "b", "c"}, []string{"b", "a"}))
	assert.Nil(t, Missing([]string{"a"}, []string{"a", "z"}))
}
