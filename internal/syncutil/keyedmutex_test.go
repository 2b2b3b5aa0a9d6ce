package syncutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	m := NewKeyedMutex(16)
	ctx := context.Background()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(ctx, "eth:0xabc")
			if !assert.NoError(t, err) {
				return
			}
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestKeyedMutex_ContextCancelled(t *testing.T) {
	m := NewKeyedMutex(4)
	unlock, err := m.Lock(context.Background(), "sol:wallet")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Lock(ctx, "sol:wallet")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKeyedMutex_ReleaseHandsOver(t *testing.T) {
	m := NewKeyedMutex(0)
	unlock, err := m.Lock(context.Background(), "tron:T1")
	require.NoError(t, err)

	_, ok := m.TryLock("tron:T1")
	assert.False(t, ok)

	acquired := make(chan struct{})
	go func() {
		u, err := m.Lock(context.Background(), "tron:T1")
		if err == nil {
			close(acquired)
			u()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("acquired while held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("not acquired after release")
	}
}

func TestKeyedMutex_SingleShardSharesLock(t *testing.T) {
	m := NewKeyedMutex(1)
	unlock, ok := m.TryLock("eth:0x1")
	require.True(t, ok)
	_, ok = m.TryLock("base:0x2")
	assert.False(t, ok)
	unlock()
	unlock2, ok := m.TryLock("base:0x2")
	require.True(t, ok)
	unlock2()
}
