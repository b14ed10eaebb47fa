package channel

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
	log "github.com/sirupsen/logrus"
)

var (
	ErrNoData           = errors.New("no data")
	ErrFrameTIDMismatch = errors.New("frame TID mismatch")
	ErrFrameUnexpected  = errors.New("unexpected frame type")
	ErrRemoteError      = errors.New("remote error")
	ErrFrameMalformed   = errors.New("malformed frame")
	ErrClosed           = errors.New("channel closed")
	ErrEmptyName        = errors.New("empty channel name")
)

const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultCallTimeout    = 5 * time.Second

	serverIdleReadTimeout = 11 * time.Second
	serverWriteTimeout    = 11 * time.Second
	msgEndByte            = '\n'
	tcpPrefix             = "tcp://"
	socketPrefix          = "hooksensor-"
)

var (
	frameHeader  = []byte("[<|]")
	frameTrailer = []byte("[|>]\n")
)

// FrameType is a Frame struct type
type FrameType string

// Supported frame types
const (
	RequestFrameType  FrameType = "ft.request"
	ResponseFrameType FrameType = "ft.response"
	ErrorFrameType    FrameType = "ft.error"
	ControlFrameType  FrameType = "ft.control"
)

type Frame struct {
	TID  string          `json:"tid"`
	Type FrameType       `json:"type"`
	Body json.RawMessage `json:"body,omitempty"`
}

func newFrame(ftype FrameType, data []byte, tid string) *Frame {
	frame := Frame{
		Type: ftype,
		Body: data,
	}

	if tid != "" {
		frame.TID = tid
	} else {
		frame.TID = GenerateTID()
	}

	return &frame
}

func createFrameBytes(frame *Frame) ([]byte, error) {
	raw, err := json.Marshal(frame)
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	b.Write(frameHeader)
	b.Write(raw)
	b.Write(frameTrailer)

	return b.Bytes(), nil
}

func createFrameBytesFromFields(ftype FrameType, data []byte, tid string) ([]byte, error) {
	return createFrameBytes(newFrame(ftype, data, tid))
}

// GenerateTID returns a new, time-sortable transaction ID
func GenerateTID() string {
	return ksuid.New().String()
}

func getFrame(raw []byte) (*Frame, error) {
	if len(raw) > (len(frameHeader)+len(frameTrailer)) && bytes.HasPrefix(raw, frameHeader) && bytes.HasSuffix(raw, frameTrailer) {
		data := raw[len(frameHeader) : len(raw)-len(frameTrailer)]

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, err
		}

		return &frame, nil
	}

	return nil, ErrFrameMalformed
}

// Address maps a channel name to a dialable network address.
// "tcp://host:port" names are used as-is, every other name
// becomes a unix socket in the temp directory.
func Address(name string) (network string, addr string, err error) {
	if name == "" {
		return "", "", ErrEmptyName
	}

	if strings.HasPrefix(name, tcpPrefix) {
		return "tcp", strings.TrimPrefix(name, tcpPrefix), nil
	}

	if filepath.IsAbs(name) {
		return "unix", name, nil
	}

	return "unix", filepath.Join(os.TempDir(), socketPrefix+name+".sock"), nil
}

type RequestHandler interface {
	OnRequest(data []byte) ([]byte, error)
}

// CommandServer is the master side of a channel
type CommandServer struct {
	name     string
	network  string
	addr     string
	listener net.Listener
	handler  RequestHandler

	mu    sync.Mutex
	conns map[net.Conn]struct{}

	pending chan struct{}
	once    sync.Once
}

func NewCommandServer(name string, handler RequestHandler) (*CommandServer, error) {
	network, addr, err := Address(name)
	if err != nil {
		return nil, err
	}

	return &CommandServer{
		name:    name,
		network: network,
		addr:    addr,
		handler: handler,
		conns:   map[net.Conn]struct{}{},
		pending: make(chan struct{}),
	}, nil
}

// Addr returns the bound address (useful with "tcp://127.0.0.1:0")
func (s *CommandServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

func (s *CommandServer) Start(async bool) error {
	log.Debugf("channel.CommandServer.Start() - network=%v addr=%v", s.network, s.addr)
	if s.network == "unix" {
		// A stale socket from a previous run blocks the bind.
		_ = os.Remove(s.addr)
	}

	var err error
	s.listener, err = net.Listen(s.network, s.addr)
	if err != nil {
		log.Debugf("channel.CommandServer.Start() - net.Listen error = %v", err)
		return err
	}

	loop := func() {
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					log.Debug("channel.CommandServer.Start.loop: listener closed")
				} else {
					log.Errorf("channel.CommandServer.Start.loop: Accept error = %v", err)
				}
				return
			}

			log.Debugf("channel.CommandServer.Start.loop: new connection = %s -> %s", conn.RemoteAddr(), conn.LocalAddr())
			s.OnConnection(conn)
		}
	}

	if async {
		go loop()
	} else {
		loop()
	}

	return nil
}

// Stop closes the listener and drops every open connection
func (s *CommandServer) Stop() {
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.conns = map[net.Conn]struct{}{}
	s.mu.Unlock()

	if s.network == "unix" {
		_ = os.Remove(s.addr)
	}
}

func (s *CommandServer) WaitForConnection() {
	<-s.pending
}

func (s *CommandServer) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func (s *CommandServer) OnConnection(conn net.Conn) {
	s.track(conn, true)
	s.once.Do(func() { close(s.pending) })

	go func() {
		defer func() {
			log.Debug("channel.CommandServer.OnConnection.worker: closing connection...")
			s.track(conn, false)
			conn.Close()
		}()

		reader := bufio.NewReader(conn)
		for {
			conn.SetReadDeadline(time.Now().Add(serverIdleReadTimeout))
			inRaw, err := reader.ReadBytes(msgEndByte)
			if err == io.EOF {
				log.Debugf("channel.CommandServer.OnConnection.worker: %s - connection done...", conn.LocalAddr())
				return
			} else if os.IsTimeout(err) {
				continue
			} else if err != nil {
				log.Debugf("channel.CommandServer.OnConnection.worker: %s - read error (%v)", conn.LocalAddr(), err)
				return
			}

			inFrame, err := getFrame(inRaw)
			if err != nil {
				log.Errorf("channel.CommandServer.OnConnection.worker: error getting frame (%v) [raw(%v)='%s']",
					err, len(inRaw), inRaw)
				return
			}

			outFrame, err := s.reply(inFrame)
			if err != nil {
				log.Errorf("channel.CommandServer.OnConnection.worker: error creating out frame (%v)", err)
				return
			}

			conn.SetWriteDeadline(time.Now().Add(serverWriteTimeout))
			if _, err := conn.Write(outFrame); err != nil {
				log.Debugf("channel.CommandServer.OnConnection.worker: write error = %v (worker exiting)", err)
				return
			}
		}
	}()
}

func (s *CommandServer) reply(inFrame *Frame) ([]byte, error) {
	if inFrame.Type == ControlFrameType {
		return createFrameBytesFromFields(ControlFrameType, nil, inFrame.TID)
	}

	if s.handler == nil {
		return createFrameBytesFromFields(ErrorFrameType, nil, inFrame.TID)
	}

	outData, err := s.handler.OnRequest(inFrame.Body)
	if err != nil {
		log.Errorf("channel.CommandServer.OnConnection.worker: handler.OnRequest error => %v", err)
		return createFrameBytesFromFields(ErrorFrameType, nil, inFrame.TID)
	}

	return createFrameBytesFromFields(ResponseFrameType, outData, inFrame.TID)
}

// CommandClient is the sensor side of a channel. Calls are serialized
// and each one is bounded by the call timeout.
type CommandClient struct {
	mu          sync.Mutex
	conn        net.Conn
	reader      *bufio.Reader
	callTimeout time.Duration
	closed      bool
}

func NewCommandClient(name string, connectTimeout, callTimeout time.Duration) (*CommandClient, error) {
	network, addr, err := Address(name)
	if err != nil {
		return nil, err
	}

	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}

	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}

	log.Debugf("channel.NewCommandClient: net.DialTimeout(%v,%v,%v)", network, addr, connectTimeout)
	conn, err := net.DialTimeout(network, addr, connectTimeout)
	if err != nil {
		return nil, err
	}

	return &CommandClient{
		conn:        conn,
		reader:      bufio.NewReader(conn),
		callTimeout: callTimeout,
	}, nil
}

func (c *CommandClient) roundTrip(reqFrame *Frame) (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	frameBytes, err := createFrameBytes(reqFrame)
	if err != nil {
		return nil, err
	}

	// One deadline covers the write and the reply.
	c.conn.SetDeadline(time.Now().Add(c.callTimeout))

	if _, err := c.conn.Write(frameBytes); err != nil {
		return nil, err
	}

	raw, err := c.reader.ReadBytes(msgEndByte)
	if err != nil {
		return nil, err
	}

	replyFrame, err := getFrame(raw)
	if err != nil {
		log.Debugf("channel.CommandClient.roundTrip: malformed frame (%v) ='%s'", len(raw), raw)
		return nil, err
	}

	if replyFrame.Type == ErrorFrameType {
		return nil, ErrRemoteError
	}

	if reqFrame.TID != replyFrame.TID {
		log.Errorf("channel.CommandClient.roundTrip: frame TID mismatch  %s = %s", reqFrame.TID, replyFrame.TID)
		return nil, ErrFrameTIDMismatch
	}

	return replyFrame, nil
}

// Ping sends a control frame and waits for it to be echoed back
func (c *CommandClient) Ping() error {
	replyFrame, err := c.roundTrip(newFrame(ControlFrameType, nil, ""))
	if err != nil {
		return err
	}

	if replyFrame.Type != ControlFrameType {
		return ErrFrameUnexpected
	}

	return nil
}

func (c *CommandClient) Call(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrNoData
	}

	replyFrame, err := c.roundTrip(newFrame(RequestFrameType, data, ""))
	if err != nil {
		return nil, err
	}

	if replyFrame.Type != ResponseFrameType {
		return nil, ErrFrameUnexpected
	}

	return replyFrame.Body, nil
}

func (c *CommandClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	return c.conn.Close()
}

func (c *CommandClient) String() string {
	return fmt.Sprintf("%s->%s", c.conn.LocalAddr(), c.conn.RemoteAddr())
}
