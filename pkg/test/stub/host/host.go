package host

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/slimtoolkit/hooksensor/pkg/ipc/channel"
	"github.com/slimtoolkit/hooksensor/pkg/ipc/command"
)

var ErrInjected = errors.New("injected host failure")

// HostStub is a scriptable master. It records every decoded command and
// can be told to reject calls by name or after a number of calls.
type HostStub struct {
	mu       sync.Mutex
	received []command.Message
	failOn   map[command.MessageName]bool
	refuse   map[command.MessageName]bool
	failFrom int
	delay    time.Duration

	Server *channel.CommandServer
	Name   string

	notify chan command.Message
}

// Start binds a stub host on a socket under the test's temp dir.
func Start(t *testing.T) *HostStub {
	t.Helper()

	h := &HostStub{
		failOn: map[command.MessageName]bool{},
		refuse: map[command.MessageName]bool{},
		notify: make(chan command.Message, 4096),
		Name:   filepath.Join(t.TempDir(), "host.sock"),
	}

	server, err := channel.NewCommandServer(h.Name, h)
	require.NoError(t, err)
	require.NoError(t, server.Start(true))
	t.Cleanup(server.Stop)

	h.Server = server
	return h
}

// FailOn makes the transport fail for the named command.
func (h *HostStub) FailOn(name command.MessageName) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failOn[name] = true
}

// RefuseOn answers the named command with an error status.
func (h *HostStub) RefuseOn(name command.MessageName) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refuse[name] = true
}

// FailFrom fails every call once n calls have been received. Zero disables it.
func (h *HostStub) FailFrom(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failFrom = n
}

// Delay holds every reply for d.
func (h *HostStub) Delay(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.delay = d
}

func (h *HostStub) OnRequest(data []byte) ([]byte, error) {
	msg, err := command.Decode(data)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.received = append(h.received, msg)
	count := len(h.received)
	fail := h.failOn[msg.GetName()] || (h.failFrom > 0 && count > h.failFrom)
	refuse := h.refuse[msg.GetName()]
	delay := h.delay
	h.mu.Unlock()

	select {
	case h.notify <- msg:
	default:
	}

	if delay > 0 {
		time.Sleep(delay)
	}

	if fail {
		return nil, ErrInjected
	}

	resp := command.Response{Status: command.ResponseStatusOk}
	if refuse {
		resp = command.Response{Status: command.ResponseStatusError, Error: ErrInjected.Error()}
	}

	return json.Marshal(&resp)
}

// Next waits for the next received command.
func (h *HostStub) Next(timeout time.Duration) (command.Message, bool) {
	select {
	case msg := <-h.notify:
		return msg, true
	case <-time.After(timeout):
		return nil, false
	}
}

func (h *HostStub) Received() []command.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]command.Message, len(h.received))
	copy(out, h.received)
	return out
}

// Count returns how many commands with the given name were received.
func (h *HostStub) Count(name command.MessageName) int {
	count := 0
	for _, msg := range h.Received() {
		if msg.GetName() == name {
			count++
		}
	}

	return count
}

// Batches returns the payload of every ReportMessages call, in order.
func (h *HostStub) Batches() [][]string {
	var out [][]string
	for _, msg := range h.Received() {
		if batch, ok := msg.(*command.ReportMessages); ok {
			out = append(out, batch.Messages)
		}
	}

	return out
}

// Names lists received command names in order.
func (h *HostStub) Names() []command.MessageName {
	var out []command.MessageName
	for _, msg := range h.Received() {
		out = append(out, msg.GetName())
	}

	return out
}
