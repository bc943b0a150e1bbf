package server

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mnemo/internal/profile"
	"github.com/hrygo/mnemo/store"
)

func TestNewServerUnixSocketListenerNetwork(t *testing.T) {
	p := &profile.Profile{
		Mode:         "dev",
		Driver:       "sqlite",
		UNIXSock:     filepath.Join(t.TempDir(), "mnemo.sock"),
		QueueWorkers: 1,
		MaxJobs:      1,
	}

	s, err := NewServer(context.Background(), p, store.New(nil, p))
	require.NoError(t, err)
	assert.Equal(t, "unix", s.echoServer.ListenerNetwork)
}

func TestNewServerDefaultsToTCP(t *testing.T) {
	p := &profile.Profile{
		Mode:         "dev",
		Driver:       "sqlite",
		Port:         28090,
		QueueWorkers: 1,
		MaxJobs:      1,
	}

	s, err := NewServer(context.Background(), p, store.New(nil, p))
	require.NoError(t, err)
	assert.Equal(t, "tcp", s.echoServer.ListenerNetwork)
}
