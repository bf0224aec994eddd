package serviceconf

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCoordination(t *testing.T) {
	out, err := Generate(ServiceConfig{Kind: KindCoordination, DataDir: "/tmp/session", CoordinationPort: 2181})
	require.NoError(t, err)

	assert.Equal(t, "dataDir=/tmp/session/zookeeper\nclientPort=2181\nmaxClientCnxns=0\nadmin.enableServer=false\n", out)
}

func TestGenerateBroker(t *testing.T) {
	out, err := Generate(ServiceConfig{
		Kind:             KindBroker,
		DataDir:          "/tmp/session",
		CoordinationPort: 32181,
		ListenerPort:     39092,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "broker.id=0\n"))
	assert.Contains(t, out, "listeners=PLAINTEXT://:39092\n")
	assert.Contains(t, out, "log.dirs=/tmp/session/kafka_logs\n")
	assert.Contains(t, out, "zookeeper.connect=localhost:32181\n")
	assert.Contains(t, out, "offsets.topic.replication.factor=1\n")
}

func TestGenerateIsDeterministic(t *testing.T) {
	cfg := ServiceConfig{
		Kind:             KindBroker,
		DataDir:          "/data",
		CoordinationPort: 2181,
		ListenerPort:     9092,
		Extra:            map[string]string{"z.key": "1", "a.key": "2", "m.key": "3"},
	}
	first, err := Generate(cfg)
	require.NoError(t, err)
	for range 20 {
		again, err := Generate(cfg)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
	assert.Less(t, strings.Index(first, "a.key="), strings.Index(first, "m.key="))
	assert.Less(t, strings.Index(first, "m.key="), strings.Index(first, "z.key="))
}

func TestGenerateExtraOverridesDefaults(t *testing.T) {
	out, err := Generate(ServiceConfig{
		Kind:             KindBroker,
		DataDir:          "/data",
		CoordinationPort: 2181,
		ListenerPort:     9092,
		Extra:            map[string]string{"num.partitions": "4"},
	})
	require.NoError(t, err)

	assert.Contains(t, out, "num.partitions=4\n")
	assert.NotContains(t, out, "num.partitions=1\n")
	assert.Equal(t, 1, strings.Count(out, "num.partitions="))
}

func TestGenerateRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServiceConfig
		want string
	}{
		{"missing data dir", ServiceConfig{Kind: KindCoordination, CoordinationPort: 2181}, "data dir is required"},
		{"unknown kind", ServiceConfig{Kind: "redis", DataDir: "/d", CoordinationPort: 1}, "unknown service kind"},
		{"coordination port", ServiceConfig{Kind: KindCoordination, DataDir: "/d"}, "coordination port 0"},
		{"listener port", ServiceConfig{Kind: KindBroker, DataDir: "/d", CoordinationPort: 2181, ListenerPort: 70000}, "listener port 70000"},
		{"reserved extra", ServiceConfig{Kind: KindBroker, DataDir: "/d", CoordinationPort: 2181, ListenerPort: 9092, Extra: map[string]string{"listeners": "x"}}, `"listeners" is managed`},
		{"newline extra", ServiceConfig{Kind: KindCoordination, DataDir: "/d", CoordinationPort: 2181, Extra: map[string]string{"k": "a\nb"}}, "not a valid property"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Generate(tt.cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestWithPortVariesOnlyOwnPort(t *testing.T) {
	coord := ServiceConfig{Kind: KindCoordination, DataDir: "/d", CoordinationPort: 2181}
	next := coord.WithPort(40000)
	assert.Equal(t, 2181, coord.CoordinationPort, "original must not change")
	assert.Equal(t, 40000, next.CoordinationPort)
	assert.Equal(t, 40000, next.Port())

	broker := ServiceConfig{Kind: KindBroker, DataDir: "/d", CoordinationPort: 2181, ListenerPort: 9092, Extra: map[string]string{"k": "v"}}
	nextBroker := broker.WithPort(40001)
	assert.Equal(t, 2181, nextBroker.CoordinationPort)
	assert.Equal(t, 40001, nextBroker.ListenerPort)
	assert.Equal(t, 9092, broker.ListenerPort)

	nextBroker.Extra["k"] = "changed"
	assert.Equal(t, "v", broker.Extra["k"], "extra must be deep-copied")

	before, err := Generate(broker)
	require.NoError(t, err)
	after, err := Generate(broker.WithPort(40001))
	require.NoError(t, err)
	assert.Equal(t,
		strings.Replace(before, "PLAINTEXT://:9092", "PLAINTEXT://:40001", 1),
		after,
		"only the varied port may differ between attempts")
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "zookeeper.properties", ServiceConfig{Kind: KindCoordination}.FileName())
	assert.Equal(t, "kafka.properties", ServiceConfig{Kind: KindBroker}.FileName())
}
