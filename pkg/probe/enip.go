package probe

import (
	"context"
	"errors"
	"net"

	"github.com/mochigome-git/plc-ping/pkg/enip"
)

// ENIPProber asks the target for its EtherNet/IP identity. Only a well-formed
// ListIdentity reply counts; a host without the service is reported silent.
type ENIPProber struct {
	Port int
}

func (p *ENIPProber) Method() Method {
	return MethodENIP
}

func (p *ENIPProber) Probe(ctx context.Context, host string) (Response, error) {
	if host == "" {
		return Response{}, ErrInvalidAddress
	}

	id, rtt, err := enip.Identify(ctx, host, p.Port)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return Response{}, errors.Join(ErrInvalidAddress, err)
		}
		return Response{}, noResponse(err)
	}
	return Response{RTT: rtt, Method: MethodENIP, Identity: &id}, nil
}
