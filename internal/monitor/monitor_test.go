package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mochigome-git/plc-ping/internal/worker"
	"github.com/mochigome-git/plc-ping/pkg/plc"
	"github.com/mochigome-git/plc-ping/pkg/probe"
)

// switchProber answers according to a flag the test flips.
type switchProber struct {
	mu sync.Mutex
	up bool
}

func (s *switchProber) Method() probe.Method { return probe.MethodTCP }

func (s *switchProber) Probe(ctx context.Context, host string) (probe.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.up {
		return probe.Response{RTT: time.Millisecond, Method: probe.MethodTCP}, nil
	}
	return probe.Response{}, probe.ErrNoResponse
}

func (s *switchProber) set(up bool) {
	s.mu.Lock()
	s.up = up
	s.mu.Unlock()
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(res probe.Result) error {
	return m.Called(res.Name, res.Reachable).Error(0)
}

// recordingEnqueuer accepts jobs without running them.
type recordingEnqueuer struct {
	mu   sync.Mutex
	jobs []worker.Job
}

func (r *recordingEnqueuer) Enqueue(ctx context.Context, job worker.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return nil
}

// stallingProber answers at once while up, otherwise holds until its context
// ends and reports each stall on started.
type stallingProber struct {
	switchProber
	started chan struct{}
}

func (s *stallingProber) Probe(ctx context.Context, host string) (probe.Response, error) {
	s.mu.Lock()
	up := s.up
	s.mu.Unlock()
	if up {
		return probe.Response{RTT: time.Millisecond, Method: probe.MethodTCP}, nil
	}
	s.started <- struct{}{}
	<-ctx.Done()
	return probe.Response{}, probe.ErrNoResponse
}

func newTestMonitor(pub Publisher) (*DeviceMonitor, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return NewDeviceMonitor(20*time.Millisecond, pub, logger), hook
}

func newPLC(name string, pr probe.Prober) *plc.PLC {
	return plc.NewPLC(name, "10.0.0.1", 0, 1, plc.WithProber(pr), plc.WithTimeout(20*time.Millisecond))
}

func TestRegister_DuplicateNames(t *testing.T) {
	m, _ := newTestMonitor(nil)

	assert.Equal(t, "TestPLC", m.Register(newPLC("TestPLC", &switchProber{})))
	assert.Equal(t, "TestPLC#2", m.Register(newPLC("TestPLC", &switchProber{})))
	assert.Equal(t, "TestPLC#3", m.Register(newPLC("TestPLC", &switchProber{})))
	assert.Equal(t, []string{"TestPLC", "TestPLC#2", "TestPLC#3"}, m.Keys())

	st, ok := m.Status("TestPLC#2")
	require.True(t, ok)
	assert.Equal(t, "TestPLC", st.Name)
	assert.False(t, st.Checked)
}

func TestCheckNow_Transitions(t *testing.T) {
	pub := new(mockPublisher)
	pub.On("Publish", "line-1", true).Return(nil)
	pub.On("Publish", "line-1", false).Return(nil)

	m, hook := newTestMonitor(pub)
	pr := &switchProber{up: true}
	key := m.Register(newPLC("line-1", pr))

	res, err := m.CheckNow(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, res.Reachable)

	st, _ := m.Status(key)
	require.NotNil(t, st.LastChange)
	firstChange := *st.LastChange
	assert.True(t, st.Reachable)
	assert.Equal(t, uint64(1), st.Checks)

	// Same state again: no transition.
	_, err = m.CheckNow(context.Background(), key)
	require.NoError(t, err)
	st, _ = m.Status(key)
	assert.Equal(t, firstChange, *st.LastChange)

	pr.set(false)
	_, err = m.CheckNow(context.Background(), key)
	require.NoError(t, err)
	_, err = m.CheckNow(context.Background(), key)
	require.NoError(t, err)

	st, _ = m.Status(key)
	assert.False(t, st.Reachable)
	assert.Equal(t, 2, st.ConsecutiveFailures)
	assert.Equal(t, uint64(4), st.Checks)
	assert.NotEmpty(t, st.Error)
	assert.Equal(t, []string{key}, m.Unreachable())

	var disconnected bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["plc"] == key {
			disconnected = true
		}
	}
	assert.True(t, disconnected, "disconnect must be logged as a warning")

	pr.set(true)
	_, err = m.CheckNow(context.Background(), key)
	require.NoError(t, err)
	st, _ = m.Status(key)
	assert.Equal(t, 0, st.ConsecutiveFailures)
	assert.Empty(t, m.Unreachable())

	stats := m.Stats()
	assert.Equal(t, uint64(5), stats.Probes)
	assert.Equal(t, uint64(3), stats.Reachable)
	assert.Equal(t, uint64(2), stats.Unreachable)
	assert.Equal(t, uint64(5), stats.Published)
	pub.AssertNumberOfCalls(t, "Publish", 5)
}

func TestCheckNow_Unknown(t *testing.T) {
	m, _ := newTestMonitor(nil)
	_, err := m.CheckNow(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUnknownDevice)
}

func TestRecord_PublishFailure(t *testing.T) {
	pub := new(mockPublisher)
	pub.On("Publish", "p", true).Return(errors.New("broker down"))

	m, _ := newTestMonitor(pub)
	key := m.Register(newPLC("p", &switchProber{up: true}))
	_, err := m.CheckNow(context.Background(), key)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), m.Stats().PublishFailed)
	assert.Equal(t, uint64(0), m.Stats().Published)
}

func TestRecord_Unregistered(t *testing.T) {
	m, hook := newTestMonitor(nil)
	m.Record("ghost", probe.Result{Name: "ghost"})
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestCheckAll_SkipsInFlight(t *testing.T) {
	m, _ := newTestMonitor(nil)
	m.Register(newPLC("a", &switchProber{}))
	m.Register(newPLC("b", &switchProber{}))

	q := &recordingEnqueuer{}
	m.checkAll(context.Background(), q)
	m.checkAll(context.Background(), q)

	assert.Len(t, q.jobs, 2)
	assert.Equal(t, uint64(2), m.Stats().SkippedInFlight)

	// A pool result frees the slot.
	m.HandleResult(worker.Job{Key: "a"}, probe.Result{Name: "a", Reachable: true, CheckedAt: time.Now()})
	m.checkAll(context.Background(), q)
	assert.Len(t, q.jobs, 3)
	assert.Equal(t, "a", q.jobs[2].Key)
}

func TestRun_WithPool(t *testing.T) {
	m, _ := newTestMonitor(nil)
	up := &switchProber{up: true}
	down := &switchProber{}
	m.Register(newPLC("up", up))
	m.Register(newPLC("down", down))

	logger, _ := test.NewNullLogger()
	pool := worker.NewPool(2, m.HandleResult, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	pool.Start(ctx)
	m.Run(ctx, pool)
	pool.Stop()

	statuses := m.Statuses()
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Checked)
	assert.True(t, statuses[0].Reachable)
	assert.True(t, statuses[1].Checked)
	assert.False(t, statuses[1].Reachable)
	assert.GreaterOrEqual(t, statuses[0].Checks, uint64(2))
}

func TestHandleResult_ShutdownKeepsLastState(t *testing.T) {
	pub := new(mockPublisher)
	pub.On("Publish", "line-1", true).Return(nil)

	m, _ := newTestMonitor(pub)
	pr := &stallingProber{switchProber: switchProber{up: true}, started: make(chan struct{}, 1)}
	key := m.Register(plc.NewPLC("line-1", "10.0.0.1", 0, 1, plc.WithProber(pr), plc.WithTimeout(5*time.Second)))

	_, err := m.CheckNow(context.Background(), key)
	require.NoError(t, err)
	before, _ := m.Status(key)
	require.True(t, before.Reachable)

	pr.set(false)
	logger, _ := test.NewNullLogger()
	pool := worker.NewPool(1, m.HandleResult, logger)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	m.checkAll(ctx, pool)

	select {
	case <-pr.started:
	case <-time.After(2 * time.Second):
		t.Fatal("probe never started")
	}
	cancel()
	pool.Stop()

	after, _ := m.Status(key)
	assert.Equal(t, before, after)
	assert.Empty(t, m.Unreachable())
	assert.Equal(t, uint64(1), m.Stats().Canceled)
	assert.Equal(t, uint64(1), m.Stats().Probes)
	pub.AssertNumberOfCalls(t, "Publish", 1)

	// The canceled job still released its slot.
	q := &recordingEnqueuer{}
	m.checkAll(context.Background(), q)
	assert.Len(t, q.jobs, 1)
}

func TestCheckNow_LeavesPoolProbeInFlight(t *testing.T) {
	m, _ := newTestMonitor(nil)
	key := m.Register(newPLC("a", &switchProber{up: true}))

	q := &recordingEnqueuer{}
	m.checkAll(context.Background(), q)
	require.Len(t, q.jobs, 1)

	_, err := m.CheckNow(context.Background(), key)
	require.NoError(t, err)

	m.checkAll(context.Background(), q)
	assert.Len(t, q.jobs, 1, "pool probe still running, no duplicate")
	assert.Equal(t, uint64(1), m.Stats().SkippedInFlight)

	m.HandleResult(q.jobs[0], probe.Result{Name: "a", Reachable: true, CheckedAt: time.Now()})
	m.checkAll(context.Background(), q)
	assert.Len(t, q.jobs, 2)
}
