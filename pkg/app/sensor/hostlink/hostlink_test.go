package hostlink_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slimtoolkit/hooksensor/pkg/app/sensor/eventbuf"
	"github.com/slimtoolkit/hooksensor/pkg/app/sensor/hostlink"
	serr "github.com/slimtoolkit/hooksensor/pkg/errors"
	"github.com/slimtoolkit/hooksensor/pkg/ipc/command"
	stubhost "github.com/slimtoolkit/hooksensor/pkg/test/stub/host"
)

const (
	connectTimeout = time.Second
	callTimeout    = 500 * time.Millisecond
)

func connect(t *testing.T, host *stubhost.HostStub) *hostlink.Link {
	t.Helper()

	link, err := hostlink.Connect(host.Name, connectTimeout, callTimeout)
	require.NoError(t, err)
	t.Cleanup(func() { link.Close() })
	return link
}

func TestConnect_NoHost(t *testing.T) {
	_, err := hostlink.Connect(filepath.Join(t.TempDir(), "nobody.sock"), connectTimeout, callTimeout)
	require.Error(t, err)
	assert.ErrorIs(t, err, serr.ErrConnection)
}

func TestLink_Calls(t *testing.T) {
	host := stubhost.Start(t)
	link := connect(t, host)

	require.NoError(t, link.Ping())
	require.NoError(t, link.AnnounceReady(1234))
	require.NoError(t, link.ReportMessage("hooks installed"))
	require.NoError(t, link.SendHeartbeat())
	require.NoError(t, link.SendBatch([]eventbuf.Record{
		eventbuf.NewRecord(1, 2, "first"),
		eventbuf.NewRecord(1, 2, "second"),
	}))

	assert.Equal(t, []command.MessageName{
		command.PingName,
		command.IsInstalledName,
		command.ReportMessageName,
		command.PingName,
		command.ReportMessagesName,
	}, host.Names())

	installed, ok := host.Received()[1].(*command.IsInstalled)
	require.True(t, ok)
	assert.Equal(t, 1234, installed.PID)
	assert.Equal(t, link.Session(), installed.Session)

	assert.Equal(t, [][]string{{"[1:2]: first", "[1:2]: second"}}, host.Batches())
	assert.True(t, link.Reachable())
}

func TestLink_EmptyBatch(t *testing.T) {
	host := stubhost.Start(t)
	link := connect(t, host)

	assert.ErrorIs(t, link.SendBatch(nil), hostlink.ErrEmptyBatch)
	assert.True(t, link.Reachable())
	assert.Empty(t, host.Received())
}

func TestLink_UnreachableIsPermanent(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *stubhost.HostStub)
	}{
		{
			name:  "transport failure",
			setup: func(h *stubhost.HostStub) { h.FailOn(command.ReportMessageName) },
		},
		{
			name:  "error status",
			setup: func(h *stubhost.HostStub) { h.RefuseOn(command.ReportMessageName) },
		},
		{
			name:  "timeout",
			setup: func(h *stubhost.HostStub) { h.Delay(2 * callTimeout) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := stubhost.Start(t)
			link := connect(t, host)
			tt.setup(host)

			err := link.ReportMessage("x")
			require.Error(t, err)
			assert.ErrorIs(t, err, serr.ErrConnection)
			assert.Equal(t, hostlink.StateUnreachable, link.State())

			before := len(host.Received())
			err = link.SendHeartbeat()
			assert.ErrorIs(t, err, hostlink.ErrUnreachable)
			assert.ErrorIs(t, err, serr.ErrConnection)
			assert.Len(t, host.Received(), before, "no traffic once unreachable")
		})
	}
}

func TestLink_HostGone(t *testing.T) {
	host := stubhost.Start(t)
	link := connect(t, host)

	host.Server.Stop()

	err := link.SendHeartbeat()
	require.Error(t, err)
	assert.ErrorIs(t, err, serr.ErrConnection)
	assert.False(t, link.Reachable())
}
