package eventbuf

import (
	"fmt"
	"sync"
)

const DefaultCapacity = 1000

// Record is one observed call. It is never modified after creation.
type Record struct {
	PID    int
	TID    int
	Detail string
	Text   string
}

// NewRecord builds a record with the "[pid:tid]: detail" description.
func NewRecord(pid, tid int, detail string) Record {
	return Record{
		PID:    pid,
		TID:    tid,
		Detail: detail,
		Text:   fmt.Sprintf("[%d:%d]: %s", pid, tid, detail),
	}
}

func (r Record) String() string {
	return r.Text
}

// Buffer is a bounded FIFO of records shared by any number of producers
// and a single draining consumer. Pushes beyond capacity are dropped.
type Buffer struct {
	mu       sync.Mutex
	records  []Record
	capacity int
}

func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Buffer{
		records:  make([]Record, 0, capacity),
		capacity: capacity,
	}
}

// Push appends rec unless the buffer is full. It never blocks on the
// consumer and reports whether the record was kept.
func (b *Buffer) Push(rec Record) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.records) >= b.capacity {
		return false
	}

	b.records = append(b.records, rec)
	return true
}

// Drain swaps out everything queued so far, in push order, and leaves
// the buffer empty for new producers.
func (b *Buffer) Drain() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.records) == 0 {
		return nil
	}

	drained := b.records
	b.records = make([]Record, 0, b.capacity)
	return drained
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.records)
}

func (b *Buffer) Cap() int {
	return b.capacity
}

// Texts flattens records to their descriptions.
func Texts(records []Record) []string {
	if len(records) == 0 {
		return nil
	}

	out := make([]string, len(records))
	for i, rec := range records {
		out[i] = rec.Text
	}

	return out
}
