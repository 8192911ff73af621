package probe

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/mochigome-git/plc-ping/pkg/enip"
)

const (
	DefaultTimeout  = time.Second
	DefaultInterval = 200 * time.Millisecond
)

// Policy bounds a probe run: at most Attempts tries of Timeout each, Interval apart.
type Policy struct {
	Attempts int
	Timeout  time.Duration
	Interval time.Duration
}

func (p Policy) normalize() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	if p.Interval < 0 {
		p.Interval = 0
	}
	return p
}

// MaxDuration is the longest a Run with this policy can take.
func (p Policy) MaxDuration() time.Duration {
	p = p.normalize()
	return time.Duration(p.Attempts)*p.Timeout + time.Duration(p.Attempts-1)*p.Interval
}

// Result is the outcome of one probe run against one device.
type Result struct {
	Name      string        `json:"name"`
	Address   string        `json:"address"`
	Auxiliary int           `json:"auxiliary"`
	Method    Method        `json:"method"`
	Reachable bool          `json:"reachable"`
	Attempts  int           `json:"attempts"`
	RTT       time.Duration `json:"rtt_ns"`
	Error     string        `json:"error,omitempty"`
	// Canceled is set when the caller's context ended before the device
	// answered. Such a result says nothing about the device.
	Canceled  bool           `json:"canceled,omitempty"`
	Identity  *enip.Identity `json:"identity,omitempty"`
	CheckedAt time.Time      `json:"checked_at"`
}

// Run probes host until it answers or the policy is exhausted. It never
// returns an error; failures are reported in Result.Error.
func Run(ctx context.Context, p Prober, host string, policy Policy, logger logrus.FieldLogger) Result {
	policy = policy.normalize()
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	res := Result{Address: host, Method: p.Method()}

	var b backoff.BackOff = backoff.NewConstantBackOff(policy.Interval)
	b = backoff.WithMaxRetries(b, uint64(policy.Attempts-1))
	b = backoff.WithContext(b, ctx)

	op := func() error {
		res.Attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, policy.Timeout)
		defer cancel()

		resp, err := p.Probe(attemptCtx, host)
		if err == nil {
			res.Reachable = true
			res.RTT = resp.RTT
			if resp.Method != "" {
				res.Method = resp.Method
			}
			res.Identity = resp.Identity
			return nil
		}

		logger.WithFields(logrus.Fields{
			"address": host,
			"attempt": res.Attempts,
			"method":  p.Method(),
		}).Debugf("probe attempt failed: %v", err)

		if errors.Is(err, ErrInvalidAddress) || errors.Is(err, ErrUnavailable) {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(op, b); err != nil {
		res.Error = err.Error()
		res.Canceled = ctx.Err() != nil
	}
	res.CheckedAt = time.Now()
	return res
}
