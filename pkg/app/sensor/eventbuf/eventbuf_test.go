package eventbuf

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_DropNewest(t *testing.T) {
	buf := New(DefaultCapacity)

	kept := 0
	for i := 0; i < 1200; i++ {
		if buf.Push(Record{Text: fmt.Sprintf("call-%d", i)}) {
			kept++
		}
	}

	assert.Equal(t, 1000, kept)
	assert.Equal(t, 1000, buf.Len())

	drained := buf.Drain()
	require.Len(t, drained, 1000)
	for i, rec := range drained {
		if rec.Text != fmt.Sprintf("call-%d", i) {
			t.Fatalf("record %d out of order: %q", i, rec.Text)
		}
	}

	assert.Equal(t, 0, buf.Len())
	assert.Nil(t, buf.Drain())
}

func TestNewRecord(t *testing.T) {
	rec := NewRecord(10, 11, "XInputGetState call for user (0)")
	assert.Equal(t, "[10:11]: XInputGetState call for user (0)", rec.String())
	assert.Equal(t, 10, rec.PID)
	assert.Equal(t, 11, rec.TID)
}

func TestBuffer_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0).Cap())
	assert.Equal(t, 3, New(3).Cap())
}

func TestBuffer_DrainDetachesSlice(t *testing.T) {
	buf := New(2)
	buf.Push(Record{Text: "a"})

	first := buf.Drain()
	buf.Push(Record{Text: "b"})

	assert.Equal(t, []string{"a"}, Texts(first))
	assert.Equal(t, []string{"b"}, Texts(buf.Drain()))
}

func TestBuffer_ConcurrentProducers(t *testing.T) {
	const producers, perProducer, capacity = 16, 200, 1000

	buf := New(capacity)

	var (
		mu        sync.Mutex
		collected []Record
		wg        sync.WaitGroup
		stop      = make(chan struct{})
		consumer  sync.WaitGroup
	)

	consumer.Add(1)
	go func() {
		defer consumer.Done()
		for {
			select {
			case <-stop:
				mu.Lock()
				collected = append(collected, buf.Drain()...)
				mu.Unlock()
				return
			default:
				if n := buf.Len(); n > capacity {
					t.Errorf("buffer over capacity: %d", n)
				}
				mu.Lock()
				collected = append(collected, buf.Drain()...)
				mu.Unlock()
			}
		}
	}()

	var kept sync.Map
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				text := fmt.Sprintf("%d/%d", p, i)
				if buf.Push(Record{Text: text}) {
					kept.Store(text, struct{}{})
				}
			}
		}(p)
	}

	wg.Wait()
	close(stop)
	consumer.Wait()

	// Nothing kept is lost and nothing is duplicated.
	seen := map[string]struct{}{}
	lastIndex := map[string]int{}
	for _, rec := range collected {
		_, dup := seen[rec.Text]
		require.False(t, dup, "duplicate record %q", rec.Text)
		seen[rec.Text] = struct{}{}

		var p, i int
		_, err := fmt.Sscanf(rec.Text, "%d/%d", &p, &i)
		require.NoError(t, err)
		key := fmt.Sprint(p)
		if last, ok := lastIndex[key]; ok {
			require.Greater(t, i, last, "per-producer order must hold")
		}
		lastIndex[key] = i
	}

	keptCount := 0
	kept.Range(func(k, _ any) bool {
		keptCount++
		_, found := seen[k.(string)]
		assert.True(t, found, "kept record %v was lost", k)
		return true
	})
	assert.Equal(t, keptCount, len(collected))
}
