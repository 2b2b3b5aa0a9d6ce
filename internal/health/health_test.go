package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestRegistry_Empty(t *testing.T) {
	healthy, statuses := NewRegistry().CheckAll(context.Background())
	assert.True(t, healthy)
	assert.Empty(t, statuses)
}

func TestRegistry_ReportsInRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.Register("postgres", PingCheck(fakePinger{}))
	r.Register("redis", PingCheck(fakePinger{err: errors.New("dial tcp: connection refused")}))
	r.Register("cache", Static("in-memory"))

	healthy, statuses := r.CheckAll(context.Background())
	assert.False(t, healthy)
	require.Len(t, statuses, 3)
	assert.Equal(t, Status{Name: "postgres", Healthy: true}, statuses[0])
	assert.Equal(t, Status{Name: "redis", Healthy: false, Detail: "dial tcp: connection refused"}, statuses[1])
	assert.Equal(t, Status{Name: "cache", Healthy: true, Detail: "in-memory"}, statuses[2])
}

func TestRegistry_ChecksRunUnderTimeout(t *testing.T) {
	r := NewRegistry()
	r.Register("slow", func(ctx context.Context) Status {
		dl, ok := ctx.Deadline()
		return Status{Healthy: ok && time.Until(dl) <= CheckTimeout}
	})
	healthy, _ := r.CheckAll(context.Background())
	assert.True(t, healthy)
}

func TestRegistry_ConcurrentRegisterAndCheck(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Register("storage", Static("in-memory"))
		}()
		go func() {
			defer wg.Done()
			r.CheckAll(context.Background())
		}()
	}
	wg.Wait()

	healthy, statuses := r.CheckAll(context.Background())
	assert.True(t, healthy)
	assert.Len(t, statuses, 10)
}
