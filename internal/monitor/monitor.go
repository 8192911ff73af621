package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mochigome-git/plc-ping/internal/worker"
	"github.com/mochigome-git/plc-ping/pkg/enip"
	"github.com/mochigome-git/plc-ping/pkg/plc"
	"github.com/mochigome-git/plc-ping/pkg/probe"
)

var ErrUnknownDevice = errors.New("unknown device")

// DeviceStatus is the last known state of a monitored PLC.
type DeviceStatus struct {
	Key                 string         `json:"key"`
	Name                string         `json:"name"`
	Address             string         `json:"address"`
	Auxiliary           int            `json:"auxiliary"`
	Method              probe.Method   `json:"method"`
	Reachable           bool           `json:"reachable"`
	Checked             bool           `json:"checked"`
	Checks              uint64         `json:"checks"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
	RTT                 time.Duration  `json:"rtt_ns"`
	LastCheck           time.Time      `json:"last_check"`
	LastChange          *time.Time     `json:"last_change,omitempty"`
	Error               string         `json:"error,omitempty"`
	Identity            *enip.Identity `json:"identity,omitempty"`
}

// Publisher forwards results outside the process.
type Publisher interface {
	Publish(res probe.Result) error
}

// Enqueuer is the part of the worker pool the monitor drives.
type Enqueuer interface {
	Enqueue(ctx context.Context, job worker.Job) error
}

type device struct {
	plc      *plc.PLC
	status   DeviceStatus
	inFlight bool
}

// DeviceMonitor checks every registered PLC once per interval.
type DeviceMonitor struct {
	interval  time.Duration
	publisher Publisher
	logger    logrus.FieldLogger
	stats     *Stats

	mu      sync.RWMutex
	devices map[string]*device
	order   []string
}

func NewDeviceMonitor(interval time.Duration, publisher Publisher, logger logrus.FieldLogger) *DeviceMonitor {
	return &DeviceMonitor{
		interval:  interval,
		publisher: publisher,
		logger:    logger,
		stats:     newStats(),
		devices:   make(map[string]*device),
	}
}

// Register adds a PLC and returns the key it is tracked under. Names need not
// be unique; later duplicates get a "#n" suffix.
func (m *DeviceMonitor) Register(p *plc.PLC) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := p.Name()
	for n := 2; ; n++ {
		if _, taken := m.devices[key]; !taken {
			break
		}
		key = fmt.Sprintf("%s#%d", p.Name(), n)
	}

	m.devices[key] = &device{
		plc: p,
		status: DeviceStatus{
			Key:       key,
			Name:      p.Name(),
			Address:   p.Address(),
			Auxiliary: p.Auxiliary(),
			Method:    p.Method(),
		},
	}
	m.order = append(m.order, key)

	m.logger.WithFields(logrus.Fields{"plc": key, "address": p.Address()}).
		Infof("Registered for monitoring (method %s, %d attempt(s) of %v)", p.Method(), p.Attempts(), p.Timeout())
	return key
}

// Run checks all devices immediately and then on every tick until ctx ends.
func (m *DeviceMonitor) Run(ctx context.Context, pool Enqueuer) {
	m.logger.Infof("Starting device monitor (interval: %v, devices: %d)", m.interval, m.Len())

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.checkAll(ctx, pool)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Device monitor stopped")
			return
		case <-ticker.C:
			m.checkAll(ctx, pool)
		}
	}
}

func (m *DeviceMonitor) checkAll(ctx context.Context, pool Enqueuer) {
	for _, key := range m.Keys() {
		m.mu.Lock()
		dev, ok := m.devices[key]
		if !ok {
			m.mu.Unlock()
			continue
		}
		if dev.inFlight {
			m.mu.Unlock()
			m.stats.skippedInFlight.Add(1)
			m.logger.WithField("plc", key).Debug("previous probe still running, skipping")
			continue
		}
		dev.inFlight = true
		m.mu.Unlock()

		if err := pool.Enqueue(ctx, worker.Job{Key: key, PLC: dev.plc}); err != nil {
			m.mu.Lock()
			dev.inFlight = false
			m.mu.Unlock()
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				m.logger.WithField("plc", key).Errorf("enqueue probe: %v", err)
			}
			return
		}
	}
}

// HandleResult is the worker pool handler. It frees the device for the next
// tick; only the pool path sets and clears the in-flight mark.
func (m *DeviceMonitor) HandleResult(job worker.Job, res probe.Result) {
	m.mu.Lock()
	if dev, ok := m.devices[job.Key]; ok {
		dev.inFlight = false
	}
	m.mu.Unlock()

	m.Record(job.Key, res)
}

// Record stores a result, logs state changes and publishes it. Results of
// probes cut short by their caller are dropped.
func (m *DeviceMonitor) Record(key string, res probe.Result) {
	if res.Canceled {
		m.stats.canceled.Add(1)
		m.logger.WithField("plc", key).Debugf("probe canceled, result dropped: %s", res.Error)
		return
	}

	m.stats.probes.Add(1)
	if res.Reachable {
		m.stats.reachable.Add(1)
	} else {
		m.stats.unreachable.Add(1)
	}

	m.mu.Lock()
	dev, ok := m.devices[key]
	if !ok {
		m.mu.Unlock()
		m.logger.WithField("plc", key).Warn("result for unregistered device dropped")
		return
	}

	st := &dev.status
	first := !st.Checked
	changed := first || st.Reachable != res.Reachable

	st.Checked = true
	st.Checks++
	st.Reachable = res.Reachable
	st.Method = res.Method
	st.RTT = res.RTT
	st.Error = res.Error
	st.LastCheck = res.CheckedAt
	if res.Identity != nil {
		st.Identity = res.Identity
	}
	if res.Reachable {
		st.ConsecutiveFailures = 0
	} else {
		st.ConsecutiveFailures++
	}
	if changed {
		at := res.CheckedAt
		st.LastChange = &at
	}
	m.mu.Unlock()

	entry := m.logger.WithFields(logrus.Fields{"plc": key, "address": res.Address})
	switch {
	case first && res.Reachable:
		entry.Infof("PLC reachable (%v via %s)", res.RTT, res.Method)
	case first:
		entry.Warnf("PLC unreachable after %d attempt(s): %s", res.Attempts, res.Error)
	case changed && res.Reachable:
		entry.Infof("PLC reconnected (%v via %s)", res.RTT, res.Method)
	case changed:
		entry.Warnf("PLC disconnected after %d attempt(s): %s", res.Attempts, res.Error)
	}

	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(res); err != nil {
		m.stats.publishFailed.Add(1)
		entry.Errorf("publish result: %v", err)
		return
	}
	m.stats.published.Add(1)
}

// CheckNow probes one device synchronously, records and returns the result.
func (m *DeviceMonitor) CheckNow(ctx context.Context, key string) (probe.Result, error) {
	m.mu.RLock()
	dev, ok := m.devices[key]
	m.mu.RUnlock()
	if !ok {
		return probe.Result{}, fmt.Errorf("%w: %s", ErrUnknownDevice, key)
	}

	res := dev.plc.Probe(ctx)
	m.Record(key, res)
	return res, nil
}

// Status returns a copy of one device's state.
func (m *DeviceMonitor) Status(key string) (DeviceStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dev, ok := m.devices[key]
	if !ok {
		return DeviceStatus{}, false
	}
	return dev.status, true
}

// Statuses returns copies of all device states in registration order.
func (m *DeviceMonitor) Statuses() []DeviceStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]DeviceStatus, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, m.devices[key].status)
	}
	return out
}

// Keys returns the device keys in registration order.
func (m *DeviceMonitor) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

func (m *DeviceMonitor) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.devices)
}

// Unreachable lists the keys of devices whose last check failed, sorted.
func (m *DeviceMonitor) Unreachable() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for key, dev := range m.devices {
		if dev.status.Checked && !dev.status.Reachable {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func (m *DeviceMonitor) Stats() StatsSnapshot {
	return m.stats.Snapshot()
}
