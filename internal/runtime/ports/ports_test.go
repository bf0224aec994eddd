package ports

import (
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopbackAllocateReturnsBindablePort(t *testing.T) {
	port, err := Loopback{}.Allocate()
	require.NoError(t, err)
	assert.Greater(t, port, 0)
	assert.LessOrEqual(t, port, 65535)

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err, "allocated port should be free again after release")
	require.NoError(t, ln.Close())
}

func TestAllocatorFunc(t *testing.T) {
	calls := 0
	alloc := AllocatorFunc(func() (int, error) {
		calls++
		if calls > 1 {
			return 0, errors.New("exhausted")
		}
		return 4242, nil
	})

	port, err := alloc.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 4242, port)

	_, err = alloc.Allocate()
	assert.EqualError(t, err, "exhausted")
}
