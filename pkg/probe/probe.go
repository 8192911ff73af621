// Package probe implements network-level liveness checks for PLCs.
package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mochigome-git/plc-ping/pkg/enip"
)

var (
	// ErrNoResponse means the target stayed silent; a later attempt may succeed.
	ErrNoResponse = errors.New("no response")
	// ErrUnavailable means the mechanism cannot run here, e.g. no permission for ICMP sockets.
	ErrUnavailable = errors.New("probe mechanism unavailable")
	// ErrInvalidAddress means the address cannot be resolved to a probe target.
	ErrInvalidAddress = errors.New("invalid address")
)

type Method string

const (
	MethodAuto Method = "auto"
	MethodICMP Method = "icmp"
	MethodTCP  Method = "tcp"
	MethodENIP Method = "enip"
)

// ParseMethod maps a config string to a Method. Empty means auto.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MethodAuto, nil
	case MethodAuto, MethodICMP, MethodTCP, MethodENIP:
		return m, nil
	default:
		return "", fmt.Errorf("unknown probe method %q (want auto, icmp, tcp or enip)", s)
	}
}

// Response is what a single successful attempt observed.
type Response struct {
	RTT      time.Duration
	Method   Method
	Identity *enip.Identity
}

// Prober performs one liveness attempt against host. Implementations must honor ctx.
type Prober interface {
	Method() Method
	Probe(ctx context.Context, host string) (Response, error)
}

// New builds the prober for method. port is used by the tcp and enip methods; 0 selects 44818.
func New(method Method, port int) (Prober, error) {
	if port <= 0 {
		port = enip.DefaultPort
	}
	switch method {
	case MethodAuto, "":
		return Chain{&ICMPProber{}, &TCPProber{Port: port}}, nil
	case MethodICMP:
		return &ICMPProber{}, nil
	case MethodTCP:
		return &TCPProber{Port: port}, nil
	case MethodENIP:
		return &ENIPProber{Port: port}, nil
	default:
		return nil, fmt.Errorf("unknown probe method %q", method)
	}
}

// noResponse wraps err so that errors.Is(err, ErrNoResponse) holds.
func noResponse(err error) error {
	if err == nil {
		return ErrNoResponse
	}
	return fmt.Errorf("%w: %v", ErrNoResponse, err)
}
