package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"golang.org/x/net/icmp"
)

var echoPayload = []byte("plc-ping/echo")

// echoSeq is shared by all ICMP probers so concurrent probes never reuse a sequence number.
var echoSeq atomic.Uint32

// ICMPProber sends an ICMP echo request and waits for the matching reply.
// It prefers a raw socket and falls back to an unprivileged datagram socket.
type ICMPProber struct{}

func (p *ICMPProber) Method() Method {
	return MethodICMP
}

func (p *ICMPProber) Probe(ctx context.Context, host string) (Response, error) {
	ip, err := resolveIPv4(ctx, host)
	if err != nil {
		return Response{}, err
	}

	conn, privileged, err := listenICMP()
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return Response{}, fmt.Errorf("set deadline: %w", err)
		}
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	id := uint16(os.Getpid() & 0xffff)
	seq := uint16(echoSeq.Add(1))
	req, err := encodeEchoRequest(id, seq, echoPayload)
	if err != nil {
		return Response{}, fmt.Errorf("encode echo request: %w", err)
	}

	var dst net.Addr = &net.IPAddr{IP: ip}
	if !privileged {
		dst = &net.UDPAddr{IP: ip}
	}

	start := time.Now()
	if _, err := conn.WriteTo(req, dst); err != nil {
		return Response{}, noResponse(err)
	}

	buf := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Response{}, noResponse(ctxErr)
			}
			return Response{}, noResponse(err)
		}

		reply, ok := decodeEchoReply(buf[:n])
		if !ok || reply.Seq != seq {
			continue
		}
		// Datagram sockets get their identifier rewritten by the kernel.
		if privileged && reply.Id != id {
			continue
		}
		if !peerIP(peer).Equal(ip) {
			continue
		}
		return Response{RTT: time.Since(start), Method: MethodICMP}, nil
	}
}

func listenICMP() (*icmp.PacketConn, bool, error) {
	conn, rawErr := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if rawErr == nil {
		return conn, true, nil
	}
	conn, dgramErr := icmp.ListenPacket("udp4", "0.0.0.0")
	if dgramErr == nil {
		return conn, false, nil
	}
	return nil, false, fmt.Errorf("%w: raw socket: %v; datagram socket: %v", ErrUnavailable, rawErr, dgramErr)
}

func resolveIPv4(ctx context.Context, host string) (net.IP, error) {
	if host == "" {
		return nil, ErrInvalidAddress
	}
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
		return nil, fmt.Errorf("%w: %s is not IPv4", ErrUnavailable, host)
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", host)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return nil, errors.Join(ErrInvalidAddress, err)
		}
		return nil, noResponse(err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("%w: %s has no IPv4 address", ErrUnavailable, host)
	}
	return ips[0].To4(), nil
}

func peerIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.IPAddr:
		return a.IP
	case *net.UDPAddr:
		return a.IP
	default:
		return nil
	}
}

func encodeEchoRequest(id, seq uint16, payload []byte) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{ComputeChecksums: true},
		&layers.ICMPv4{
			TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
			Id:       id,
			Seq:      seq,
		},
		gopacket.Payload(payload),
	)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeEchoReply(b []byte) (*layers.ICMPv4, bool) {
	packet := gopacket.NewPacket(b, layers.LayerTypeICMPv4, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	layer := packet.Layer(layers.LayerTypeICMPv4)
	if layer == nil {
		return nil, false
	}
	msg, ok := layer.(*layers.ICMPv4)
	if !ok || msg.TypeCode.Type() != layers.ICMPv4TypeEchoReply {
		return nil, false
	}
	return msg, true
}
