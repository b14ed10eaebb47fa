package master

import (
	log "github.com/sirupsen/logrus"

	"github.com/slimtoolkit/hooksensor/pkg/ipc/channel"
)

// Master serves the sensor calls on a named channel.
type Master struct {
	Handler *Handler
	server  *channel.CommandServer
}

// Start binds the channel and serves it in the background.
func Start(name string, opts ...HandlerOption) (*Master, error) {
	handler, err := NewHandler(opts...)
	if err != nil {
		return nil, err
	}

	server, err := channel.NewCommandServer(name, handler)
	if err != nil {
		return nil, err
	}

	if err := server.Start(true); err != nil {
		return nil, err
	}

	log.WithField("channel", name).Infof("master: listening on %s", server.Addr())
	return &Master{Handler: handler, server: server}, nil
}

func (m *Master) Addr() string {
	if addr := m.server.Addr(); addr != nil {
		return addr.String()
	}

	return ""
}

// Stop drops every sensor connection. Connected sensors see their next
// call fail and shut down.
func (m *Master) Stop() {
	m.server.Stop()
	log.Debug("master: stopped")
}
