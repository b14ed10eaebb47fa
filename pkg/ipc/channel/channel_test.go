package channel

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoHandler struct {
	fail  bool
	delay time.Duration
}

func (h *echoHandler) OnRequest(data []byte) ([]byte, error) {
	if h.delay > 0 {
		time.Sleep(h.delay)
	}

	if h.fail {
		return nil, errors.New("boom")
	}

	return data, nil
}

func startServer(t *testing.T, handler RequestHandler) (*CommandServer, string) {
	t.Helper()

	name := filepath.Join(t.TempDir(), "ch.sock")
	server, err := NewCommandServer(name, handler)
	require.NoError(t, err)
	require.NoError(t, server.Start(true))
	t.Cleanup(server.Stop)

	return server, name
}

func TestAddress(t *testing.T) {
	network, addr, err := Address("tcp://127.0.0.1:65501")
	require.NoError(t, err)
	assert.Equal(t, "tcp", network)
	assert.Equal(t, "127.0.0.1:65501", addr)

	network, addr, err = Address("monitor")
	require.NoError(t, err)
	assert.Equal(t, "unix", network)
	assert.Equal(t, "hooksensor-monitor.sock", filepath.Base(addr))

	_, _, err = Address("")
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestFrameRoundTrip(t *testing.T) {
	raw, err := createFrameBytesFromFields(RequestFrameType, []byte(`{"a":1}`), "tid-1")
	require.NoError(t, err)

	frame, err := getFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, "tid-1", frame.TID)
	assert.Equal(t, RequestFrameType, frame.Type)
	assert.JSONEq(t, `{"a":1}`, string(frame.Body))

	_, err = getFrame([]byte("garbage\n"))
	assert.ErrorIs(t, err, ErrFrameMalformed)
}

func TestGenerateTID_Unique(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 100; i++ {
		tid := GenerateTID()
		_, dup := seen[tid]
		require.False(t, dup, "duplicate TID %s", tid)
		seen[tid] = struct{}{}
	}
}

func TestClient_PingAndCall(t *testing.T) {
	_, name := startServer(t, &echoHandler{})

	client, err := NewCommandClient(name, time.Second, time.Second)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Ping())

	for i := 0; i < 3; i++ {
		body := []byte(fmt.Sprintf(`{"n":%d}`, i))
		resp, err := client.Call(body)
		require.NoError(t, err)
		assert.JSONEq(t, string(body), string(resp))
	}

	_, err = client.Call(nil)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestClient_RemoteError(t *testing.T) {
	_, name := startServer(t, &echoHandler{fail: true})

	client, err := NewCommandClient(name, time.Second, time.Second)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Call([]byte(`{}`))
	assert.ErrorIs(t, err, ErrRemoteError)
}

func TestClient_CallTimeout(t *testing.T) {
	_, name := startServer(t, &echoHandler{delay: 500 * time.Millisecond})

	client, err := NewCommandClient(name, time.Second, 50*time.Millisecond)
	require.NoError(t, err)
	defer client.Close()

	start := time.Now()
	_, err = client.Call([]byte(`{}`))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestClient_ServerGone(t *testing.T) {
	server, name := startServer(t, &echoHandler{})

	client, err := NewCommandClient(name, time.Second, time.Second)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Ping())
	server.Stop()

	assert.Error(t, client.Ping())
}

func TestClient_NoServer(t *testing.T) {
	name := filepath.Join(t.TempDir(), "missing.sock")
	_, err := NewCommandClient(name, 100*time.Millisecond, time.Second)
	assert.Error(t, err)
}

func TestClient_Closed(t *testing.T) {
	_, name := startServer(t, &echoHandler{})

	client, err := NewCommandClient(name, time.Second, time.Second)
	require.NoError(t, err)
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	assert.ErrorIs(t, client.Ping(), ErrClosed)
}
