package sensor

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/slimtoolkit/hooksensor/pkg/acounter"
	"github.com/slimtoolkit/hooksensor/pkg/app/sensor/eventbuf"
	"github.com/slimtoolkit/hooksensor/pkg/app/sensor/hostlink"
	"github.com/slimtoolkit/hooksensor/pkg/app/sensor/intercept"
	"github.com/slimtoolkit/hooksensor/pkg/hook"
	"github.com/slimtoolkit/hooksensor/pkg/system"
	"github.com/slimtoolkit/hooksensor/pkg/target/xinput"
)

var (
	ErrNoProvider     = errors.New("execution context has no hook provider")
	ErrAlreadyStarted = errors.New("sensor already started")
	ErrNotStarted     = errors.New("sensor is not started")
	ErrStopped        = errors.New("sensor is stopped")
)

// State is the sensor lifecycle stage.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}

	return fmt.Sprintf("state(%d)", int32(s))
}

// ExecutionContext is what the loader hands over: the hook provider for the
// host process and how the target's arguments are read.
type ExecutionContext struct {
	Provider hook.Provider
	// Describe builds the record detail. Defaults to the XInputGetState describer.
	Describe intercept.Describer
	// Discriminator builds the delay matcher. Defaults to matching the user index.
	Discriminator func(value int) intercept.Matcher
}

func (xc *ExecutionContext) describer() intercept.Describer {
	if xc.Describe != nil {
		return xc.Describe
	}

	return xinput.Describe
}

func (xc *ExecutionContext) matcher(value int) intercept.Matcher {
	if xc.Discriminator != nil {
		return xc.Discriminator(value)
	}

	return xinput.UserIndex(value)
}

type tickerFunc func(d time.Duration) (<-chan time.Time, func())

func newTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Sensor drives one interception run: connect, install, report until the
// master goes away, then restore the target.
type Sensor struct {
	cfg  Config
	xc   *ExecutionContext
	link *hostlink.Link

	buffer      *eventbuf.Buffer
	interceptor *intercept.Interceptor
	controller  *hook.Controller
	handle      *hook.Handle

	state   atomic.Int32
	started atomic.Bool
	running atomic.Bool
	done    chan struct{}
	doneErr error
	once    sync.Once

	ticker  tickerFunc
	ticks   acounter.Type
	batches acounter.Type
	beats   acounter.Type
}

func New(xc *ExecutionContext, cfg Config) *Sensor {
	return &Sensor{
		cfg:    cfg,
		xc:     xc,
		done:   make(chan struct{}),
		ticker: newTicker,
	}
}

// Start connects to the master and checks it answers. On failure the
// sensor is stopped and nothing gets installed.
func (s *Sensor) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	if err := s.connect(); err != nil {
		s.stop(err)
		return err
	}

	return nil
}

func (s *Sensor) connect() error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	if s.xc == nil || s.xc.Provider == nil {
		return ErrNoProvider
	}

	link, err := hostlink.Connect(s.cfg.ChannelName, s.cfg.ConnectTimeout, s.cfg.CallTimeout)
	if err != nil {
		return err
	}
	s.link = link

	if err := link.Ping(); err != nil {
		log.WithError(err).Debug("sensor: master did not answer the ping")
		return err
	}

	s.buffer = eventbuf.New(s.cfg.BufferCapacity)
	s.controller = hook.NewController(s.xc.Provider)

	var opts []intercept.Option
	if s.cfg.InjectedDelay > 0 {
		opts = append(opts, intercept.WithDelay(s.cfg.InjectedDelay, s.xc.matcher(s.cfg.DelayDiscriminator)))
	}
	s.interceptor = intercept.New(s.buffer, s.xc.describer(), opts...)

	return nil
}

func (s *Sensor) setState(state State) {
	prev := State(s.state.Swap(int32(state)))
	if prev != state {
		log.Debugf("sensor: state %s -> %s", prev, state)
	}
}

func (s *Sensor) State() State {
	return State(s.state.Load())
}

// Done is closed when the sensor reaches StateStopped.
func (s *Sensor) Done() <-chan struct{} {
	return s.done
}

// Err is the reason the sensor stopped.
func (s *Sensor) Err() error {
	<-s.done
	return s.doneErr
}

func (s *Sensor) stop(cause error) {
	s.once.Do(func() {
		if s.link != nil {
			s.link.Close()
		}

		s.doneErr = cause
		s.setState(StateStopped)
		close(s.done)
	})
}

// Run installs the hook and reports until the master is lost. It blocks and
// returns the error that ended the run.
func (s *Sensor) Run() error {
	if !s.started.Load() {
		return ErrNotStarted
	}

	if s.State() == StateStopped {
		return ErrStopped
	}

	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	// Keep the lifecycle on one OS thread so it can exclude itself.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	err := s.install()
	if err != nil {
		s.stop(err)
		return err
	}

	s.setState(StateRunning)
	err = s.loop()

	s.setState(StateDraining)
	s.remove()

	s.stop(err)
	return err
}

func (s *Sensor) install() error {
	pid := os.Getpid()
	if err := s.link.AnnounceReady(pid); err != nil {
		return err
	}

	var excluded []int
	if tid := system.ThreadID(); tid != 0 {
		excluded = []int{tid}
	}

	h, err := s.controller.Install(s.cfg.Target, s.interceptor.Callback(), excluded)
	if err != nil {
		log.WithError(err).Errorf("sensor: could not hook %s", s.cfg.Target)
		return err
	}
	s.handle = h

	log.WithFields(log.Fields{
		"pid":     pid,
		"target":  s.cfg.Target.String(),
		"session": s.link.Session(),
	}).Info("sensor: hooks installed")

	return nil
}

func (s *Sensor) loop() error {
	if err := s.link.ReportMessage(fmt.Sprintf("%s hooks installed", s.cfg.Target)); err != nil {
		return err
	}

	ticks, stopTicker := s.ticker(s.cfg.PollInterval)
	defer stopTicker()

	for range ticks {
		s.ticks.Inc()
		if err := s.report(); err != nil {
			log.WithError(err).WithField("tick", s.ticks.Value()).Info("sensor: master is unreachable, stopping")
			return err
		}
	}

	return nil
}

// report drains the buffer once and sends it, or a heartbeat when empty.
func (s *Sensor) report() error {
	records := s.buffer.Drain()
	if len(records) == 0 {
		s.beats.Inc()
		return s.link.SendHeartbeat()
	}

	s.batches.Inc()
	log.Tracef("sensor: sending %d records", len(records))
	return s.link.SendBatch(records)
}

func (s *Sensor) remove() {
	if s.handle == nil {
		return
	}

	if err := s.controller.Remove(s.handle); err != nil {
		log.WithError(err).Warnf("sensor: could not remove the %s hook", s.cfg.Target)
		return
	}

	log.WithField("target", s.cfg.Target.String()).Debug("sensor: hooks removed")
}

// Stats is a snapshot of the sensor counters.
type Stats struct {
	State      State
	Ticks      uint64
	Batches    uint64
	Heartbeats uint64
	Calls      uint64
	Pending    int
}

func (s *Sensor) Stats() Stats {
	st := Stats{
		State:      s.State(),
		Ticks:      s.ticks.Value(),
		Batches:    s.batches.Value(),
		Heartbeats: s.beats.Value(),
	}

	if s.interceptor != nil {
		st.Calls = s.interceptor.Stats().Calls
	}

	if s.buffer != nil {
		st.Pending = s.buffer.Len()
	}

	return st
}
