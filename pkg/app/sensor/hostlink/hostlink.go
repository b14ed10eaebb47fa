package hostlink

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/slimtoolkit/hooksensor/pkg/app/sensor/eventbuf"
	serr "github.com/slimtoolkit/hooksensor/pkg/errors"
	"github.com/slimtoolkit/hooksensor/pkg/ipc/channel"
	"github.com/slimtoolkit/hooksensor/pkg/ipc/command"
)

var (
	ErrUnreachable = errors.New("host is unreachable")
	ErrEmptyBatch  = errors.New("empty batch")
	ErrNoResponse  = errors.New("no response")
)

// State is the reachability of the master
type State int32

const (
	StateReachable State = iota
	StateUnreachable
)

func (s State) String() string {
	if s == StateReachable {
		return "reachable"
	}

	return "unreachable"
}

// Caller is the request/response transport under the link.
type Caller interface {
	Ping() error
	Call(data []byte) ([]byte, error)
	Close() error
}

// Link is the sensor's connection to the master. The first failed call
// makes it unreachable for good; there is no reconnection.
type Link struct {
	channel string
	session string
	caller  Caller
	state   atomic.Int32
}

// Connect dials the named channel and verifies it with a control frame.
func Connect(name string, connectTimeout, callTimeout time.Duration) (*Link, error) {
	const op = "hostlink.Connect"

	client, err := channel.NewCommandClient(name, connectTimeout, callTimeout)
	if err != nil {
		return nil, serr.Connection(op+"/channel.NewCommandClient", err)
	}

	if err := client.Ping(); err != nil {
		client.Close()
		return nil, serr.Connection(op+"/channel.Ping", err)
	}

	log.WithField("channel", name).Debugf("sensor: host link connected (%s)", client)
	return New(name, client), nil
}

// New wraps an already connected caller.
func New(name string, caller Caller) *Link {
	return &Link{
		channel: name,
		session: uuid.NewString(),
		caller:  caller,
	}
}

func (l *Link) Channel() string {
	return l.channel
}

func (l *Link) Session() string {
	return l.session
}

func (l *Link) State() State {
	return State(l.state.Load())
}

func (l *Link) Reachable() bool {
	return l.State() == StateReachable
}

func (l *Link) fail(op string, err error) error {
	if l.state.Swap(int32(StateUnreachable)) == int32(StateReachable) {
		log.WithError(err).WithField("op", op).Debug("sensor: host link is now unreachable")
	}

	return serr.Connection(op, err)
}

func (l *Link) send(op string, msg command.Message) error {
	if !l.Reachable() {
		return serr.Connection(op, ErrUnreachable)
	}

	reqData, err := command.Encode(msg)
	if err != nil {
		// Local encoding problem, the channel itself is fine.
		return fmt.Errorf("%s: encode: %w", op, err)
	}

	respData, err := l.caller.Call(reqData)
	if err != nil {
		return l.fail(op, err)
	}

	if len(respData) == 0 {
		return l.fail(op, ErrNoResponse)
	}

	var resp command.Response
	if err := json.Unmarshal(respData, &resp); err != nil {
		return l.fail(op, err)
	}

	if resp.Status != command.ResponseStatusOk {
		return l.fail(op, fmt.Errorf("%w: %s", channel.ErrRemoteError, resp.Error))
	}

	return nil
}

// Ping is the liveness probe.
func (l *Link) Ping() error {
	return l.send("hostlink.Ping", &command.Ping{})
}

// AnnounceReady tells the master interception is active in pid.
func (l *Link) AnnounceReady(pid int) error {
	return l.send("hostlink.AnnounceReady", &command.IsInstalled{PID: pid, Session: l.session})
}

// ReportMessage sends one informational string.
func (l *Link) ReportMessage(text string) error {
	return l.send("hostlink.ReportMessage", &command.ReportMessage{Text: text})
}

// SendHeartbeat is sent on ticks with nothing to report.
func (l *Link) SendHeartbeat() error {
	return l.send("hostlink.SendHeartbeat", &command.Ping{})
}

// SendBatch delivers records in order as a single call. Batches are
// never empty.
func (l *Link) SendBatch(records []eventbuf.Record) error {
	if len(records) == 0 {
		return ErrEmptyBatch
	}

	return l.send("hostlink.SendBatch", &command.ReportMessages{Messages: eventbuf.Texts(records)})
}

func (l *Link) Close() error {
	return l.caller.Close()
}
