package probe

import (
	"context"
	"errors"
	"net"
	"strconv"
	"syscall"
	"time"
)

// TCPProber opens a TCP connection to Port. The host counts as alive when the
// handshake completes or when it actively refuses the connection.
type TCPProber struct {
	Port int
}

func (p *TCPProber) Method() Method {
	return MethodTCP
}

func (p *TCPProber) Probe(ctx context.Context, host string) (Response, error) {
	if host == "" {
		return Response{}, ErrInvalidAddress
	}

	var d net.Dialer
	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(p.Port)))
	rtt := time.Since(start)
	if err == nil {
		conn.Close()
		return Response{RTT: rtt, Method: MethodTCP}, nil
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return Response{RTT: rtt, Method: MethodTCP}, nil
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return Response{}, errors.Join(ErrInvalidAddress, err)
	}
	return Response{}, noResponse(err)
}
