package plc

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mochigome-git/plc-ping/internal/logging"
	"github.com/mochigome-git/plc-ping/pkg/config"
	"github.com/mochigome-git/plc-ping/pkg/probe"
)

// PLC describes one controller to check. It is immutable after NewPLC returns,
// so one value may be pinged from several goroutines.
type PLC struct {
	name    string
	address string
	// auxiliary is the third constructor argument. Its meaning (slot, unit ID
	// or port are all candidates) has not been assigned yet; it is carried
	// into results and logs and never affects probing.
	auxiliary int
	attempts  int
	timeout   time.Duration
	interval  time.Duration
	method    probe.Method
	port      int
	prober    probe.Prober
	logger    logrus.FieldLogger
}

type Option func(*PLC)

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *PLC) { p.timeout = d }
}

// WithInterval sets the pause between attempts.
func WithInterval(d time.Duration) Option {
	return func(p *PLC) { p.interval = d }
}

func WithMethod(m probe.Method) Option {
	return func(p *PLC) { p.method = m }
}

// WithPort sets the port used by the tcp and enip methods.
func WithPort(port int) Option {
	return func(p *PLC) { p.port = port }
}

// WithProber replaces the prober built from the method. Mostly for tests.
func WithProber(pr probe.Prober) Option {
	return func(p *PLC) { p.prober = pr }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(p *PLC) { p.logger = l }
}

// NewPLC creates a descriptor. attempts <= 0 is treated as a single attempt.
func NewPLC(name, address string, auxiliary, attempts int, opts ...Option) *PLC {
	p := &PLC{
		name:      name,
		address:   address,
		auxiliary: auxiliary,
		attempts:  attempts,
		timeout:   probe.DefaultTimeout,
		interval:  probe.DefaultInterval,
		method:    probe.MethodAuto,
		port:      config.DefaultPort,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.attempts <= 0 {
		p.attempts = 1
	}
	if p.timeout <= 0 {
		p.timeout = probe.DefaultTimeout
	}
	if p.interval < 0 {
		p.interval = 0
	}
	if p.logger == nil {
		p.logger = logrus.StandardLogger()
	}
	p.logger = logging.ForPLC(p.logger, p.name, p.address)

	if p.prober == nil {
		pr, err := probe.New(p.method, p.port)
		if err != nil {
			p.logger.Warnf("%v, falling back to %s", err, probe.MethodAuto)
			p.method = probe.MethodAuto
			pr, _ = probe.New(probe.MethodAuto, p.port)
		}
		p.prober = pr
	} else {
		p.method = p.prober.Method()
	}
	return p
}

// FromConfig builds a descriptor from a configuration entry.
func FromConfig(c config.PLCConfig, logger logrus.FieldLogger) (*PLC, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	method, err := probe.ParseMethod(c.Method)
	if err != nil {
		return nil, err
	}
	return NewPLC(c.Name, c.Host, c.Auxiliary, c.Attempts,
		WithTimeout(time.Duration(c.TimeoutMs)*time.Millisecond),
		WithMethod(method),
		WithPort(c.Port),
		WithLogger(logger),
	), nil
}

func (p *PLC) Name() string           { return p.name }
func (p *PLC) Address() string        { return p.address }
func (p *PLC) Auxiliary() int         { return p.auxiliary }
func (p *PLC) Attempts() int          { return p.attempts }
func (p *PLC) Timeout() time.Duration { return p.timeout }
func (p *PLC) Method() probe.Method   { return p.method }

func (p *PLC) String() string {
	return fmt.Sprintf("%s(%s)", p.name, p.address)
}

func (p *PLC) policy() probe.Policy {
	return probe.Policy{Attempts: p.attempts, Timeout: p.timeout, Interval: p.interval}
}

// MaxDuration is the upper bound of a single ping of this PLC.
func (p *PLC) MaxDuration() time.Duration {
	return p.policy().MaxDuration()
}

// PingPLCDevice reports whether the PLC answers a liveness probe within the
// configured attempts. An unreachable or malformed address yields false.
func (p *PLC) PingPLCDevice() bool {
	return p.PingPLCDeviceContext(context.Background())
}

// PingPLCDeviceContext is PingPLCDevice with caller-controlled cancellation.
func (p *PLC) PingPLCDeviceContext(ctx context.Context) bool {
	return p.Probe(ctx).Reachable
}

// Probe runs the attempt loop and returns the detailed outcome.
func (p *PLC) Probe(ctx context.Context) probe.Result {
	res := probe.Run(ctx, p.prober, p.address, p.policy(), p.logger)
	res.Name = p.name
	res.Auxiliary = p.auxiliary

	if res.Reachable {
		p.logger.Debugf("reachable via %s in %v after %d attempt(s)", res.Method, res.RTT, res.Attempts)
	} else {
		p.logger.Debugf("unreachable after %d attempt(s): %s", res.Attempts, res.Error)
	}
	return res
}
