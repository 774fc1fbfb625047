package mailbox

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeekDoesNotRemoveValue(t *testing.T) {
	t.Parallel()

	m := Seeded("token-1")

	assert.Equal(t, "token-1", m.Peek())
	assert.Equal(t, "token-1", m.Peek())

	v, ok := m.TryPeek()
	require.True(t, ok)
	assert.Equal(t, "token-1", v)
}

func TestConcurrentReadersSeeSameValue(t *testing.T) {
	t.Parallel()

	m := Seeded(42)

	var wg sync.WaitGroup
	results := make(chan int, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- m.Peek()
		}()
	}
	wg.Wait()
	close(results)

	for v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestTakeForUpdateEmptiesSlotUntilPublish(t *testing.T) {
	t.Parallel()

	m := Seeded("old")
	assert.Equal(t, "old", m.TakeForUpdate())

	_, ok := m.TryPeek()
	assert.False(t, ok)

	got := make(chan string, 1)
	go func() {
		got <- m.Peek()
	}()

	select {
	case v := <-got:
		t.Fatalf("peek returned %q while slot was empty", v)
	case <-time.After(50 * time.Millisecond):
	}

	m.Publish("new")

	select {
	case v := <-got:
		assert.Equal(t, "new", v)
	case <-time.After(2 * time.Second):
		t.Fatal("peek did not wake after publish")
	}
}

func TestPublishBlocksWhileFull(t *testing.T) {
	t.Parallel()

	m := Seeded(1)

	published := make(chan struct{})
	go func() {
		m.Publish(2)
		close(published)
	}()

	select {
	case <-published:
		t.Fatal("publish completed while slot was full")
	case <-time.After(50 * time.Millisecond):
	}

	assert.Equal(t, 1, m.TakeForUpdate())

	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("publish did not complete after slot was emptied")
	}
	assert.Equal(t, 2, m.Peek())
}

func TestNewMailboxBlocksUntilSeeded(t *testing.T) {
	t.Parallel()

	m := New[string]()
	_, ok := m.TryPeek()
	assert.False(t, ok)

	m.Publish("first")
	assert.Equal(t, "first", m.Peek())
}
