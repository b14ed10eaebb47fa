package master

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"

	"github.com/slimtoolkit/hooksensor/pkg/acounter"
	"github.com/slimtoolkit/hooksensor/pkg/ipc/command"
)

// DefaultMaxThreads bounds the per-thread caller statistics.
const DefaultMaxThreads = 1024

// EventKind is the type of a master event
type EventKind string

const (
	EventInstalled EventKind = "installed"
	EventMessage   EventKind = "message"
	EventBatch     EventKind = "batch"
	EventHeartbeat EventKind = "heartbeat"
)

// Event is what the handler observed for one sensor call
type Event struct {
	Kind     EventKind
	Time     time.Time
	PID      int
	Session  string
	Text     string
	Messages []string
}

// Installed is the one-time announcement from a sensor
type Installed struct {
	PID     int
	Session string
	Time    time.Time
}

// ThreadStats are the call counts for one (pid, tid)
type ThreadStats struct {
	PID      int
	TID      int
	Calls    uint64
	LastSeen time.Time
}

// Stats is a snapshot of everything the master received
type Stats struct {
	Installed  []Installed
	Heartbeats uint64
	Batches    uint64
	Records    uint64
	Messages   uint64
	Unparsed   uint64
	Threads    []ThreadStats
}

// Summary is a one-line human readable view of the stats.
func (s Stats) Summary() string {
	return fmt.Sprintf("sensors=%d records=%s batches=%s heartbeats=%s messages=%s threads=%d",
		len(s.Installed),
		humanize.Comma(int64(s.Records)),
		humanize.Comma(int64(s.Batches)),
		humanize.Comma(int64(s.Heartbeats)),
		humanize.Comma(int64(s.Messages)),
		len(s.Threads))
}

// TopThreads returns up to n threads with the most calls.
func (s Stats) TopThreads(n int) []ThreadStats {
	out := append([]ThreadStats(nil), s.Threads...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Calls == out[j].Calls {
			if out[i].PID == out[j].PID {
				return out[i].TID < out[j].TID
			}
			return out[i].PID < out[j].PID
		}
		return out[i].Calls > out[j].Calls
	})

	if n >= 0 && len(out) > n {
		out = out[:n]
	}

	return out
}

func (ts ThreadStats) String() string {
	return fmt.Sprintf("[%d:%d] calls=%s last=%s",
		ts.PID, ts.TID, humanize.Comma(int64(ts.Calls)), humanize.Time(ts.LastSeen))
}

var recordPattern = regexp.MustCompile(`^\[(\d+):(\d+)\]: `)

func parseRecord(text string) (pid, tid int, ok bool) {
	m := recordPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, false
	}

	pid, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}

	tid, err = strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, false
	}

	return pid, tid, true
}

type threadKey struct {
	pid int
	tid int
}

type HandlerOption func(*Handler)

// WithSink gets every event the handler accepts. It runs on the
// connection goroutine, so it must not block for long.
func WithSink(sink func(Event)) HandlerOption {
	return func(h *Handler) {
		h.sink = sink
	}
}

// WithMaxThreads bounds how many (pid, tid) pairs are tracked.
func WithMaxThreads(n int) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxThreads = n
		}
	}
}

// Handler is the master side of the sensor calls.
type Handler struct {
	mu         sync.Mutex
	installed  []Installed
	threads    *lru.Cache[threadKey, *ThreadStats]
	maxThreads int

	heartbeats acounter.Type
	batches    acounter.Type
	records    acounter.Type
	messages   acounter.Type
	unparsed   acounter.Type

	installedCh chan Installed
	sink        func(Event)
	now         func() time.Time
}

func NewHandler(opts ...HandlerOption) (*Handler, error) {
	h := &Handler{
		maxThreads:  DefaultMaxThreads,
		installedCh: make(chan Installed, 16),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(h)
	}

	cache, err := lru.New[threadKey, *ThreadStats](h.maxThreads)
	if err != nil {
		return nil, err
	}
	h.threads = cache

	return h, nil
}

// Installed delivers sensor announcements. Announcements are dropped
// when nobody reads them.
func (h *Handler) Installed() <-chan Installed {
	return h.installedCh
}

func (h *Handler) OnRequest(data []byte) ([]byte, error) {
	msg, err := command.Decode(data)
	if err != nil {
		log.Errorf("master.Handler.OnRequest: command.Decode error => %v", err)
		return response(err)
	}

	now := h.now()
	var ev Event

	switch m := msg.(type) {
	case *command.Ping:
		h.heartbeats.Inc()
		ev = Event{Kind: EventHeartbeat}
	case *command.IsInstalled:
		info := Installed{PID: m.PID, Session: m.Session, Time: now}
		h.mu.Lock()
		h.installed = append(h.installed, info)
		h.mu.Unlock()

		select {
		case h.installedCh <- info:
		default:
		}

		log.WithFields(log.Fields{"pid": m.PID, "session": m.Session}).Info("master: sensor installed")
		ev = Event{Kind: EventInstalled, PID: m.PID, Session: m.Session}
	case *command.ReportMessage:
		h.messages.Inc()
		log.Debugf("master: message => %s", m.Text)
		ev = Event{Kind: EventMessage, Text: m.Text}
	case *command.ReportMessages:
		h.batches.Inc()
		h.records.Add(uint64(len(m.Messages)))
		h.track(m.Messages, now)
		ev = Event{Kind: EventBatch, Messages: m.Messages}
	default:
		return response(command.ErrUnknownMessage)
	}

	ev.Time = now
	if h.sink != nil {
		h.sink(ev)
	}

	return response(nil)
}

func (h *Handler) track(texts []string, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, text := range texts {
		pid, tid, ok := parseRecord(text)
		if !ok {
			h.unparsed.Inc()
			continue
		}

		key := threadKey{pid: pid, tid: tid}
		ts, found := h.threads.Get(key)
		if !found {
			ts = &ThreadStats{PID: pid, TID: tid}
			h.threads.Add(key, ts)
		}

		ts.Calls++
		ts.LastSeen = now
	}
}

func (h *Handler) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := Stats{
		Installed:  append([]Installed(nil), h.installed...),
		Heartbeats: h.heartbeats.Value(),
		Batches:    h.batches.Value(),
		Records:    h.records.Value(),
		Messages:   h.messages.Value(),
		Unparsed:   h.unparsed.Value(),
	}

	for _, key := range h.threads.Keys() {
		if ts, found := h.threads.Peek(key); found {
			st.Threads = append(st.Threads, *ts)
		}
	}

	return st
}

func response(err error) ([]byte, error) {
	resp := command.Response{Status: command.ResponseStatusOk}
	if err != nil {
		resp = command.Response{Status: command.ResponseStatusError, Error: err.Error()}
	}

	return json.Marshal(&resp)
}
