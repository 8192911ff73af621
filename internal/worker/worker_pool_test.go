package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mochigome-git/plc-ping/pkg/plc"
	"github.com/mochigome-git/plc-ping/pkg/probe"
)

type staticProber struct {
	err error
}

func (s staticProber) Method() probe.Method { return probe.MethodTCP }

func (s staticProber) Probe(ctx context.Context, host string) (probe.Response, error) {
	return probe.Response{RTT: time.Millisecond}, s.err
}

func TestPool_ProbesEveryJob(t *testing.T) {
	logger, _ := test.NewNullLogger()

	var mu sync.Mutex
	got := map[string]bool{}
	pool := NewPool(3, func(job Job, res probe.Result) {
		mu.Lock()
		got[job.Key] = res.Reachable
		mu.Unlock()
	}, logger)
	pool.Start(context.Background())

	jobs := []*plc.PLC{
		plc.NewPLC("a", "10.0.0.1", 0, 1, plc.WithProber(staticProber{})),
		plc.NewPLC("b", "10.0.0.2", 0, 1, plc.WithProber(staticProber{err: probe.ErrNoResponse})),
		plc.NewPLC("c", "10.0.0.3", 0, 1, plc.WithProber(staticProber{})),
	}
	for _, job := range jobs {
		require.NoError(t, pool.Enqueue(context.Background(), Job{Key: job.Name(), PLC: job}))
	}
	pool.Stop()

	assert.Equal(t, map[string]bool{"a": true, "b": false, "c": true}, got)
}

func TestPool_EnqueueAfterStop(t *testing.T) {
	logger, _ := test.NewNullLogger()
	pool := NewPool(1, nil, logger)
	pool.Start(context.Background())
	pool.Stop()
	pool.Stop()

	err := pool.Enqueue(context.Background(), Job{Key: "a", PLC: plc.NewPLC("a", "h", 0, 1, plc.WithProber(staticProber{}))})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestPool_EnqueueHonorsContext(t *testing.T) {
	logger, _ := test.NewNullLogger()
	// Not started: nobody receives.
	pool := NewPool(1, nil, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := pool.Enqueue(ctx, Job{Key: "a", PLC: plc.NewPLC("a", "h", 0, 1, plc.WithProber(staticProber{}))})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
