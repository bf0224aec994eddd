// Package ports hands out currently unused local TCP ports.
//
// The guarantee is weak: a port is free when Allocate returns, but another
// process may take it before the caller binds it. Callers absorb that race by
// retrying with a new port.
package ports

import (
	"fmt"
	"net"
)

// Allocator returns a port that was free at the time of the call.
type Allocator interface {
	Allocate() (int, error)
}

// AllocatorFunc adapts a function to Allocator.
type AllocatorFunc func() (int, error)

func (f AllocatorFunc) Allocate() (int, error) { return f() }

// Loopback binds 127.0.0.1:0, reads the assigned port and releases it.
type Loopback struct{}

func (Loopback) Allocate() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("allocate port: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	if err := ln.Close(); err != nil {
		return 0, fmt.Errorf("release port %d: %w", port, err)
	}
	return port, nil
}
