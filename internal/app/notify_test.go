package app

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type settleRecorder struct {
	mu   sync.Mutex
	keys []string
	done chan string
}

func newSettleRecorder() *settleRecorder {
	return &settleRecorder{done: make(chan string, 16)}
}

func (r *settleRecorder) settle(key string) {
	r.mu.Lock()
	r.keys = append(r.keys, key)
	r.mu.Unlock()
	r.done <- key
}

func (r *settleRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

func TestDebouncerCoalescesBursts(t *testing.T) {
	defer goleak.VerifyNone(t)
	rec := newSettleRecorder()
	d := NewDebouncer(30*time.Millisecond, rec.settle)
	defer d.Close()

	for range 5 {
		d.Trigger("a")
	}
	assert.True(t, d.Pending("a"))

	select {
	case key := <-rec.done:
		assert.Equal(t, "a", key)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for settle")
	}
	assert.False(t, d.Pending("a"))
	assert.Equal(t, []string{"a"}, rec.snapshot())
}

func TestDebouncerKeysAreIndependent(t *testing.T) {
	defer goleak.VerifyNone(t)
	rec := newSettleRecorder()
	d := NewDebouncer(time.Hour, rec.settle)

	d.Trigger("a")
	d.Trigger("b")
	d.Flush("a")
	require.Equal(t, []string{"a"}, rec.snapshot())
	assert.True(t, d.Pending("b"))

	d.Flush("a")
	assert.Len(t, rec.snapshot(), 1, "flushing an idle key is a no-op")

	d.Close()
	assert.ElementsMatch(t, []string{"a", "b"}, rec.snapshot())
}

func TestDebouncerIgnoresTriggersAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)
	rec := newSettleRecorder()
	d := NewDebouncer(time.Millisecond, rec.settle)
	d.Close()
	d.Trigger("a")
	assert.False(t, d.Pending("a"))
	d.Close()
	assert.Empty(t, rec.snapshot())
}

func TestDebouncerCloseSettlesTimerThatAlreadyFired(t *testing.T) {
	defer goleak.VerifyNone(t)
	for round := range 500 {
		var settled atomic.Int32
		d := NewDebouncer(time.Microsecond, func(string) { settled.Add(1) })
		d.Trigger("a")
		time.Sleep(time.Microsecond)
		d.Close()
		require.Equal(t, int32(1), settled.Load(), "round %d", round)
	}
}

func TestNewDebouncerDefaultsDelay(t *testing.T) {
	d := NewDebouncer(0, func(string) {})
	defer d.Close()
	assert.Equal(t, DefaultDebounce, d.delay)
}
