package testhelper

import (
	"sync"
	"testing"

	"github.com/phayes/freeport"
	"github.com/stretchr/testify/require"
)

var (
	usedPorts   = make(map[int]struct{})
	usedPortsMu sync.Mutex
)

// FreePort returns a free tcp port that no other test in this process has been given.
func FreePort(t testing.TB) int {
	t.Helper()
	usedPortsMu.Lock()
	defer usedPortsMu.Unlock()
	for {
		port, err := freeport.GetFreePort()
		require.NoError(t, err)

		if _, used := usedPorts[port]; used {
			continue
		}
		usedPorts[port] = struct{}{}
		return port
	}
}
